package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/maazehsan003/workhub-backend/pkg/enums"
)

// Transaction is the append-only audit record of a single wallet movement.
// balance_after snapshots the wallet balance immediately after the movement;
// replaying a wallet's transactions in creation order reproduces its balance.
type Transaction struct {
	ID           uuid.UUID             `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	WalletID     uuid.UUID             `gorm:"column:wallet_id;type:uuid;not null;index"`
	PaymentID    *uuid.UUID            `gorm:"column:payment_id;type:uuid;index"`
	Amount       decimal.Decimal       `gorm:"column:amount;type:numeric(12,2);not null"`
	Type         enums.TransactionType `gorm:"column:transaction_type;type:transaction_type_enum;not null"`
	Description  string                `gorm:"column:description;type:text;not null"`
	BalanceAfter decimal.Decimal       `gorm:"column:balance_after;type:numeric(12,2);not null"`
	CreatedAt    time.Time             `gorm:"column:created_at;autoCreateTime"`
}
