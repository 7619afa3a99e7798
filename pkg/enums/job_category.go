package enums

import "fmt"

// JobCategory is the posting taxonomy shown to freelancers.
type JobCategory string

const (
	JobCategoryWebDev    JobCategory = "web_dev"
	JobCategoryMobileDev JobCategory = "mobile_dev"
	JobCategoryDesign    JobCategory = "design"
	JobCategoryWriting   JobCategory = "writing"
	JobCategoryMarketing JobCategory = "marketing"
	JobCategoryDataEntry JobCategory = "data_entry"
	JobCategoryOther     JobCategory = "other"
)

var validJobCategories = []JobCategory{
	JobCategoryWebDev,
	JobCategoryMobileDev,
	JobCategoryDesign,
	JobCategoryWriting,
	JobCategoryMarketing,
	JobCategoryDataEntry,
	JobCategoryOther,
}

// String implements fmt.Stringer.
func (j JobCategory) String() string {
	return string(j)
}

// IsValid reports whether the value is a known JobCategory.
func (j JobCategory) IsValid() bool {
	for _, candidate := range validJobCategories {
		if candidate == j {
			return true
		}
	}
	return false
}

// ParseJobCategory converts raw input into a JobCategory.
func ParseJobCategory(value string) (JobCategory, error) {
	for _, candidate := range validJobCategories {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid job category %q", value)
}
