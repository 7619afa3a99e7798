package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregatePayment     OutboxAggregateType = "payment"
	AggregateWallet      OutboxAggregateType = "wallet"
	AggregateJob         OutboxAggregateType = "job"
	AggregateApplication OutboxAggregateType = "application"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregatePayment,
	AggregateWallet,
	AggregateJob,
	AggregateApplication,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventPaymentHeld        OutboxEventType = "payment_held"
	EventPaymentReleased    OutboxEventType = "payment_released"
	EventPaymentRefunded    OutboxEventType = "payment_refunded"
	EventWalletToppedUp     OutboxEventType = "wallet_topped_up"
	EventJobAssigned        OutboxEventType = "job_assigned"
	EventJobCompleted       OutboxEventType = "job_completed"
	EventJobCancelled       OutboxEventType = "job_cancelled"
	EventApplicationDecided OutboxEventType = "application_decided"
)

var validOutboxEventTypes = []OutboxEventType{
	EventPaymentHeld,
	EventPaymentReleased,
	EventPaymentRefunded,
	EventWalletToppedUp,
	EventJobAssigned,
	EventJobCompleted,
	EventJobCancelled,
	EventApplicationDecided,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
