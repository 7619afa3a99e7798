package wallet

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/maazehsan003/workhub-backend/pkg/db/models"
	pkgerrors "github.com/maazehsan003/workhub-backend/pkg/errors"
)

// Service exposes read access to wallets. Wallets are created lazily on
// first touch; a user without one observes a zero balance.
type Service interface {
	GetWallet(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	Balance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error)
	CanWithdraw(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (bool, error)
}

type service struct {
	repo Repository
}

// NewService wires a wallet service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("wallet repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) GetWallet(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	wallet, err := s.repo.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load wallet")
	}
	return wallet, nil
}

func (s *service) Balance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	wallet, err := s.GetWallet(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	return wallet.Balance, nil
}

// CanWithdraw is an advisory check only; actual debits re-verify the balance
// atomically inside their unit of work.
func (s *service) CanWithdraw(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (bool, error) {
	if amount.Cmp(decimal.Zero) <= 0 {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	balance, err := s.Balance(ctx, userID)
	if err != nil {
		return false, err
	}
	return balance.Cmp(amount) >= 0, nil
}
