package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/maazehsan003/workhub-backend/pkg/db/models"
	"github.com/maazehsan003/workhub-backend/pkg/enums"
	pkgerrors "github.com/maazehsan003/workhub-backend/pkg/errors"
)

// Service defines operations over the wallet transaction trail.
type Service interface {
	Record(ctx context.Context, input RecordTransactionInput) (*models.Transaction, error)
	Statement(ctx context.Context, walletID uuid.UUID, limit, offset int) (*StatementPage, error)
	ReplayBalance(ctx context.Context, walletID uuid.UUID) (decimal.Decimal, error)
}

type service struct {
	repo Repository
}

// RecordTransactionInput captures the immutable data a transaction requires.
type RecordTransactionInput struct {
	WalletID     uuid.UUID
	PaymentID    *uuid.UUID
	Amount       decimal.Decimal
	Type         enums.TransactionType
	Description  string
	BalanceAfter decimal.Decimal
}

// StatementPage is one page of a wallet's transaction history, newest first.
type StatementPage struct {
	Transactions []models.Transaction
	Total        int64
	Limit        int
	Offset       int
}

// NewService wires a ledger service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Record(ctx context.Context, input RecordTransactionInput) (*models.Transaction, error) {
	if input.WalletID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "wallet id required")
	}
	if !input.Type.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid transaction type %q", input.Type))
	}
	if !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction amount must be positive")
	}
	if input.BalanceAfter.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "balance snapshot cannot be negative")
	}

	txn := &models.Transaction{
		ID:           uuid.New(),
		WalletID:     input.WalletID,
		PaymentID:    input.PaymentID,
		Amount:       input.Amount,
		Type:         input.Type,
		Description:  input.Description,
		BalanceAfter: input.BalanceAfter,
	}
	if err := s.repo.Create(ctx, txn); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record transaction")
	}
	return txn, nil
}

func (s *service) Statement(ctx context.Context, walletID uuid.UUID, limit, offset int) (*StatementPage, error) {
	if walletID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "wallet id required")
	}
	if limit < 0 || offset < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "limit and offset cannot be negative")
	}

	txns, err := s.repo.ListByWallet(ctx, walletID, limit, offset)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list transactions")
	}
	total, err := s.repo.CountByWallet(ctx, walletID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count transactions")
	}
	return &StatementPage{
		Transactions: txns,
		Total:        total,
		Limit:        limit,
		Offset:       offset,
	}, nil
}

// ReplayBalance reconstructs a wallet balance by folding its transaction
// trail oldest-first. The result must match the wallet row and the last
// balance_after snapshot.
func (s *service) ReplayBalance(ctx context.Context, walletID uuid.UUID) (decimal.Decimal, error) {
	if walletID == uuid.Nil {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "wallet id required")
	}

	txns, err := s.repo.ListByWallet(ctx, walletID, 0, 0)
	if err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list transactions")
	}

	balance := decimal.Zero
	for i := len(txns) - 1; i >= 0; i-- {
		txn := txns[i]
		switch txn.Type {
		case enums.TransactionTypeCredit:
			balance = balance.Add(txn.Amount)
		case enums.TransactionTypeDebit:
			balance = balance.Sub(txn.Amount)
		default:
			return decimal.Zero, pkgerrors.New(pkgerrors.CodeInternal, fmt.Sprintf("unknown transaction type %q", txn.Type))
		}
	}
	return balance, nil
}
