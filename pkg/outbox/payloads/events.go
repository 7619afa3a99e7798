package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentHeldEvent signals funds moved from a client wallet into escrow.
type PaymentHeldEvent struct {
	PaymentID  uuid.UUID       `json:"payment_id"`
	JobID      *uuid.UUID      `json:"job_id,omitempty"`
	FromUserID uuid.UUID       `json:"from_user_id"`
	ToUserID   uuid.UUID       `json:"to_user_id"`
	Amount     decimal.Decimal `json:"amount"`
}

// PaymentReleasedEvent signals escrowed funds credited to the payee.
type PaymentReleasedEvent struct {
	PaymentID  uuid.UUID       `json:"payment_id"`
	JobID      *uuid.UUID      `json:"job_id,omitempty"`
	ToUserID   uuid.UUID       `json:"to_user_id"`
	Amount     decimal.Decimal `json:"amount"`
	ReleasedAt time.Time       `json:"released_at"`
}

// PaymentRefundedEvent signals escrowed funds returned to the payer.
type PaymentRefundedEvent struct {
	PaymentID  uuid.UUID       `json:"payment_id"`
	JobID      *uuid.UUID      `json:"job_id,omitempty"`
	FromUserID uuid.UUID       `json:"from_user_id"`
	Amount     decimal.Decimal `json:"amount"`
	RefundedAt time.Time       `json:"refunded_at"`
}

// WalletToppedUpEvent signals a completed wallet funding.
type WalletToppedUpEvent struct {
	PaymentID uuid.UUID       `json:"payment_id"`
	UserID    uuid.UUID       `json:"user_id"`
	Amount    decimal.Decimal `json:"amount"`
}

// JobAssignedEvent is emitted when an application is accepted and the job
// moves in_progress with funds on hold.
type JobAssignedEvent struct {
	JobID         uuid.UUID `json:"job_id"`
	ApplicationID uuid.UUID `json:"application_id"`
	ClientID      uuid.UUID `json:"client_id"`
	FreelancerID  uuid.UUID `json:"freelancer_id"`
	PaymentID     uuid.UUID `json:"payment_id"`
}

// JobCompletedEvent is emitted when a freelancer marks a job done.
type JobCompletedEvent struct {
	JobID        uuid.UUID  `json:"job_id"`
	FreelancerID uuid.UUID  `json:"freelancer_id"`
	PaymentID    *uuid.UUID `json:"payment_id,omitempty"`
}

// JobCancelledEvent is emitted when a client cancels a job.
type JobCancelledEvent struct {
	JobID     uuid.UUID  `json:"job_id"`
	ClientID  uuid.UUID  `json:"client_id"`
	PaymentID *uuid.UUID `json:"payment_id,omitempty"`
}

// ApplicationDecidedEvent is emitted when a client accepts or declines a bid.
type ApplicationDecidedEvent struct {
	ApplicationID uuid.UUID `json:"application_id"`
	JobID         uuid.UUID `json:"job_id"`
	FreelancerID  uuid.UUID `json:"freelancer_id"`
	Decision      string    `json:"decision"`
}
