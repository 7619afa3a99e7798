package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/maazehsan003/workhub-backend/pkg/enums"
)

// Application is a freelancer's bid on a job. A freelancer may apply to a
// given job at most once (unique job_id + freelancer_id).
type Application struct {
	ID                uuid.UUID               `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	JobID             uuid.UUID               `gorm:"column:job_id;type:uuid;not null;uniqueIndex:ux_applications_job_freelancer"`
	FreelancerID      uuid.UUID               `gorm:"column:freelancer_id;type:uuid;not null;uniqueIndex:ux_applications_job_freelancer"`
	CoverLetter       string                  `gorm:"column:cover_letter;type:text;not null"`
	ProposedBudget    decimal.Decimal         `gorm:"column:proposed_budget;type:numeric(12,2);not null"`
	EstimatedDuration string                  `gorm:"column:estimated_duration;type:text;not null"`
	Status            enums.ApplicationStatus `gorm:"column:status;type:application_status_enum;not null;default:'pending'"`
	AppliedAt         time.Time               `gorm:"column:applied_at;autoCreateTime"`
}
