package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/maazehsan003/workhub-backend/pkg/enums"
)

// Payment is a transfer between a payer and (for job payments) a payee.
// Job payments enter on_hold and resolve to completed or refunded; wallet
// top-ups are created completed with no payee. Rows are never deleted and
// only the status/completed_at pair mutates, via guarded transitions.
type Payment struct {
	ID          uuid.UUID           `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	JobID       *uuid.UUID          `gorm:"column:job_id;type:uuid;index"`
	FromUserID  uuid.UUID           `gorm:"column:from_user_id;type:uuid;not null;index"`
	ToUserID    *uuid.UUID          `gorm:"column:to_user_id;type:uuid;index"`
	Amount      decimal.Decimal     `gorm:"column:amount;type:numeric(12,2);not null"`
	Status      enums.PaymentStatus `gorm:"column:status;type:payment_status_enum;not null"`
	PaymentType enums.PaymentType   `gorm:"column:payment_type;type:payment_type_enum;not null"`
	Description string              `gorm:"column:description;type:text;not null"`
	CreatedAt   time.Time           `gorm:"column:created_at;autoCreateTime"`
	CompletedAt *time.Time          `gorm:"column:completed_at"`
}
