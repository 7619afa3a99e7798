package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/maazehsan003/workhub-backend/pkg/enums"
)

// Job is a client posting that freelancers bid on.
type Job struct {
	ID           uuid.UUID         `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Title        string            `gorm:"column:title;type:text;not null"`
	Description  string            `gorm:"column:description;type:text;not null"`
	Category     enums.JobCategory `gorm:"column:category;type:job_category_enum;not null"`
	Budget       decimal.Decimal   `gorm:"column:budget;type:numeric(12,2);not null"`
	Deadline     time.Time         `gorm:"column:deadline;not null"`
	Status       enums.JobStatus   `gorm:"column:status;type:job_status_enum;not null;default:'open'"`
	ClientID     uuid.UUID         `gorm:"column:client_id;type:uuid;not null;index"`
	FreelancerID *uuid.UUID        `gorm:"column:freelancer_id;type:uuid;index"`
	CreatedAt    time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}
