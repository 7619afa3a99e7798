package escrow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/maazehsan003/workhub-backend/internal/ledger"
	"github.com/maazehsan003/workhub-backend/internal/wallet"
	"github.com/maazehsan003/workhub-backend/pkg/config"
	dbpkg "github.com/maazehsan003/workhub-backend/pkg/db"
	"github.com/maazehsan003/workhub-backend/pkg/db/models"
	"github.com/maazehsan003/workhub-backend/pkg/enums"
	pkgerrors "github.com/maazehsan003/workhub-backend/pkg/errors"
	"github.com/maazehsan003/workhub-backend/pkg/metrics"
	"github.com/maazehsan003/workhub-backend/pkg/outbox"
	"github.com/maazehsan003/workhub-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// IdempotencyStore reserves top-up request keys so a retried submission
// cannot fund a wallet twice. A reservation is released again when the
// funding transaction rolls back, so only a committed top-up consumes a key.
type IdempotencyStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

// Engine moves funds between wallets and escrow. Every operation runs as a
// single transaction: the payment row, the wallet balance and the transaction
// record all commit together or not at all. The Tx variants run against a
// caller-owned transaction so job workflows can compose them.
type Engine interface {
	Hold(ctx context.Context, input HoldInput) (*models.Payment, error)
	HoldTx(ctx context.Context, tx *gorm.DB, input HoldInput) (*models.Payment, error)
	Release(ctx context.Context, input ReleaseInput) (*models.Payment, error)
	ReleaseTx(ctx context.Context, tx *gorm.DB, input ReleaseInput) (*models.Payment, error)
	Refund(ctx context.Context, input RefundInput) (*models.Payment, error)
	RefundTx(ctx context.Context, tx *gorm.DB, input RefundInput) (*models.Payment, error)
	TopUp(ctx context.Context, input TopUpInput) (*models.Payment, error)
	History(ctx context.Context, userID uuid.UUID) (*PaymentHistory, error)
	Statement(ctx context.Context, userID uuid.UUID, limit, offset int) (*ledger.StatementPage, error)
}

type service struct {
	payments Repository
	wallets  wallet.Repository
	ledger   ledger.Repository
	tx       txRunner
	outbox   outboxEmitter
	idem     IdempotencyStore
	metrics  *metrics.EscrowMetrics
	cfg      config.EscrowConfig
}

// HoldInput captures a request to place escrow funds for a job.
type HoldInput struct {
	JobID     uuid.UUID
	JobTitle  string
	PayerID   uuid.UUID
	PayeeID   uuid.UUID
	Amount    decimal.Decimal
	ActorID   uuid.UUID
	ActorRole string
}

// ReleaseInput captures a payee's request to collect escrowed funds.
type ReleaseInput struct {
	PaymentID uuid.UUID
	ActorID   uuid.UUID
	ActorRole string
}

// RefundInput captures a payer's request to recover escrowed funds.
type RefundInput struct {
	PaymentID uuid.UUID
	ActorID   uuid.UUID
	ActorRole string
}

// TopUpInput captures a wallet funding request.
type TopUpInput struct {
	UserID         uuid.UUID
	Amount         decimal.Decimal
	ActorID        uuid.UUID
	ActorRole      string
	IdempotencyKey string
}

// InsufficientFundsDetails surfaces how far short the payer's balance fell.
type InsufficientFundsDetails struct {
	Required  decimal.Decimal `json:"required"`
	Available decimal.Decimal `json:"available"`
	Shortfall decimal.Decimal `json:"shortfall"`
}

// PaymentHistory groups a user's payments by direction, newest first.
type PaymentHistory struct {
	Sent     []models.Payment
	Received []models.Payment
}

// NewService builds an escrow engine with the required dependencies.
// The idempotency store and metrics are optional.
func NewService(
	payments Repository,
	wallets wallet.Repository,
	ledgerRepo ledger.Repository,
	tx txRunner,
	emitter outboxEmitter,
	idem IdempotencyStore,
	escrowMetrics *metrics.EscrowMetrics,
	cfg config.EscrowConfig,
) (Engine, error) {
	if payments == nil {
		return nil, fmt.Errorf("payment repository required")
	}
	if wallets == nil {
		return nil, fmt.Errorf("wallet repository required")
	}
	if ledgerRepo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	return &service{
		payments: payments,
		wallets:  wallets,
		ledger:   ledgerRepo,
		tx:       tx,
		outbox:   emitter,
		idem:     idem,
		metrics:  escrowMetrics,
		cfg:      cfg,
	}, nil
}

func (s *service) Hold(ctx context.Context, input HoldInput) (*models.Payment, error) {
	start := time.Now()
	var payment *models.Payment
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		p, err := s.HoldTx(ctx, tx, input)
		payment = p
		return err
	})
	s.observe("hold", start, err)
	return payment, err
}

func (s *service) HoldTx(ctx context.Context, tx *gorm.DB, input HoldInput) (*models.Payment, error) {
	if input.ActorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if input.ActorID != input.PayerID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the payer can place funds on hold")
	}
	if input.JobID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "job id required")
	}
	if input.PayeeID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payee id required")
	}
	if input.PayerID == input.PayeeID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payer and payee cannot match")
	}
	if !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be greater than 0")
	}

	wallets := s.wallets.WithTx(tx)
	payerWallet, err := wallets.GetOrCreate(ctx, input.PayerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payer wallet")
	}

	ok, err := wallets.DebitIfSufficient(ctx, payerWallet.ID, input.Amount)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "debit payer wallet")
	}
	if !ok {
		s.metrics.IncInsufficientFunds()
		return nil, pkgerrors.New(pkgerrors.CodeInsufficientFunds, "insufficient balance to fund escrow").
			WithDetails(InsufficientFundsDetails{
				Required:  input.Amount,
				Available: payerWallet.Balance,
				Shortfall: input.Amount.Sub(payerWallet.Balance),
			})
	}

	payment := &models.Payment{
		ID:          uuid.New(),
		JobID:       &input.JobID,
		FromUserID:  input.PayerID,
		ToUserID:    &input.PayeeID,
		Amount:      input.Amount,
		Status:      enums.PaymentStatusOnHold,
		PaymentType: enums.PaymentTypeJobPayment,
		Description: fmt.Sprintf("Payment for job: %s", input.JobTitle),
	}
	if err := s.payments.WithTx(tx).Create(ctx, payment); err != nil {
		if dbpkg.IsUniqueViolation(err, "ux_payments_job_payee_on_hold") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "payment already on hold for this job")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment")
	}

	debited, err := wallets.FindByID(ctx, payerWallet.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload payer wallet")
	}
	if err := s.recordMovement(ctx, tx, debited, payment, enums.TransactionTypeDebit,
		fmt.Sprintf("Payment on hold for job: %s", input.JobTitle)); err != nil {
		return nil, err
	}

	event := outbox.DomainEvent{
		EventType:     enums.EventPaymentHeld,
		AggregateType: enums.AggregatePayment,
		AggregateID:   payment.ID,
		Version:       1,
		Actor:         buildActor(input.ActorID, input.ActorRole),
		Data: payloads.PaymentHeldEvent{
			PaymentID:  payment.ID,
			JobID:      payment.JobID,
			FromUserID: payment.FromUserID,
			ToUserID:   input.PayeeID,
			Amount:     payment.Amount,
		},
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue payment_held event")
	}
	return payment, nil
}

func (s *service) Release(ctx context.Context, input ReleaseInput) (*models.Payment, error) {
	start := time.Now()
	var payment *models.Payment
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		p, err := s.ReleaseTx(ctx, tx, input)
		payment = p
		return err
	})
	s.observe("release", start, err)
	return payment, err
}

func (s *service) ReleaseTx(ctx context.Context, tx *gorm.DB, input ReleaseInput) (*models.Payment, error) {
	if input.ActorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if input.PaymentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment id required")
	}

	payments := s.payments.WithTx(tx)
	payment, err := payments.FindByID(ctx, input.PaymentID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}
	if payment.PaymentType != enums.PaymentTypeJobPayment || payment.ToUserID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment cannot be released")
	}
	if *payment.ToUserID != input.ActorID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "payment does not belong to user")
	}

	now := time.Now()
	ok, err := payments.TransitionStatus(ctx, payment.ID, enums.PaymentStatusOnHold, enums.PaymentStatusCompleted, now)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payment status")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment is not on hold")
	}
	payment.Status = enums.PaymentStatusCompleted
	payment.CompletedAt = &now

	wallets := s.wallets.WithTx(tx)
	payeeWallet, err := wallets.GetOrCreate(ctx, *payment.ToUserID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payee wallet")
	}
	if err := wallets.Credit(ctx, payeeWallet.ID, payment.Amount); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "credit payee wallet")
	}
	credited, err := wallets.FindByID(ctx, payeeWallet.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload payee wallet")
	}

	if err := s.recordMovement(ctx, tx, credited, payment, enums.TransactionTypeCredit,
		fmt.Sprintf("Payment received for job: %s", s.jobTitle(ctx, tx, payment))); err != nil {
		return nil, err
	}

	event := outbox.DomainEvent{
		EventType:     enums.EventPaymentReleased,
		AggregateType: enums.AggregatePayment,
		AggregateID:   payment.ID,
		Version:       1,
		Actor:         buildActor(input.ActorID, input.ActorRole),
		Data: payloads.PaymentReleasedEvent{
			PaymentID:  payment.ID,
			JobID:      payment.JobID,
			ToUserID:   *payment.ToUserID,
			Amount:     payment.Amount,
			ReleasedAt: now,
		},
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue payment_released event")
	}
	return payment, nil
}

func (s *service) Refund(ctx context.Context, input RefundInput) (*models.Payment, error) {
	start := time.Now()
	var payment *models.Payment
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		p, err := s.RefundTx(ctx, tx, input)
		payment = p
		return err
	})
	s.observe("refund", start, err)
	return payment, err
}

func (s *service) RefundTx(ctx context.Context, tx *gorm.DB, input RefundInput) (*models.Payment, error) {
	if input.ActorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if input.PaymentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment id required")
	}

	payments := s.payments.WithTx(tx)
	payment, err := payments.FindByID(ctx, input.PaymentID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}
	if payment.FromUserID != input.ActorID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "payment does not belong to user")
	}
	if payment.Status != enums.PaymentStatusOnHold {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment cannot be refunded")
	}

	jobTitle := "N/A"
	if payment.JobID != nil {
		job, err := payments.FindJob(ctx, *payment.JobID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load job")
		}
		if job.Status != enums.JobStatusCancelled {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "job must be cancelled before refund")
		}
		jobTitle = job.Title
	}

	now := time.Now()
	ok, err := payments.TransitionStatus(ctx, payment.ID, enums.PaymentStatusOnHold, enums.PaymentStatusRefunded, now)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payment status")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment is not on hold")
	}
	payment.Status = enums.PaymentStatusRefunded
	payment.CompletedAt = &now

	wallets := s.wallets.WithTx(tx)
	payerWallet, err := wallets.GetOrCreate(ctx, payment.FromUserID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payer wallet")
	}
	if err := wallets.Credit(ctx, payerWallet.ID, payment.Amount); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "credit payer wallet")
	}
	credited, err := wallets.FindByID(ctx, payerWallet.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload payer wallet")
	}

	if err := s.recordMovement(ctx, tx, credited, payment, enums.TransactionTypeCredit,
		fmt.Sprintf("Refund for cancelled job: %s", jobTitle)); err != nil {
		return nil, err
	}

	event := outbox.DomainEvent{
		EventType:     enums.EventPaymentRefunded,
		AggregateType: enums.AggregatePayment,
		AggregateID:   payment.ID,
		Version:       1,
		Actor:         buildActor(input.ActorID, input.ActorRole),
		Data: payloads.PaymentRefundedEvent{
			PaymentID:  payment.ID,
			JobID:      payment.JobID,
			FromUserID: payment.FromUserID,
			Amount:     payment.Amount,
			RefundedAt: now,
		},
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue payment_refunded event")
	}
	return payment, nil
}

func (s *service) TopUp(ctx context.Context, input TopUpInput) (*models.Payment, error) {
	start := time.Now()
	payment, err := s.topUp(ctx, input)
	s.observe("topup", start, err)
	return payment, err
}

func (s *service) topUp(ctx context.Context, input TopUpInput) (*models.Payment, error) {
	if input.ActorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if input.ActorID != input.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "cannot fund another user's wallet")
	}
	if !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be greater than 0")
	}
	limit := decimal.NewFromInt(s.cfg.TopUpLimit)
	if limit.IsPositive() && input.Amount.GreaterThan(limit) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("maximum top-up amount is $%s", limit))
	}

	var reservedKey string
	if s.idem != nil && input.IdempotencyKey != "" {
		key := s.idem.IdempotencyKey("topup", input.IdempotencyKey)
		fresh, err := s.idem.SetNX(ctx, key, input.UserID.String(), s.cfg.TopUpIdempotencyTTL)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve idempotency key")
		}
		if !fresh {
			return nil, pkgerrors.New(pkgerrors.CodeIdempotency, "top-up request already processed")
		}
		reservedKey = key
	}

	var payment *models.Payment
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		wallets := s.wallets.WithTx(tx)
		userWallet, err := wallets.GetOrCreate(ctx, input.UserID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load wallet")
		}

		now := time.Now()
		payment = &models.Payment{
			ID:          uuid.New(),
			FromUserID:  input.UserID,
			Amount:      input.Amount,
			Status:      enums.PaymentStatusCompleted,
			PaymentType: enums.PaymentTypeWalletTopUp,
			Description: fmt.Sprintf("Wallet top-up of $%s", input.Amount),
			CompletedAt: &now,
		}
		if err := s.payments.WithTx(tx).Create(ctx, payment); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment")
		}

		if err := wallets.Credit(ctx, userWallet.ID, input.Amount); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "credit wallet")
		}
		credited, err := wallets.FindByID(ctx, userWallet.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload wallet")
		}

		if err := s.recordMovement(ctx, tx, credited, payment, enums.TransactionTypeCredit, "Wallet top-up"); err != nil {
			return err
		}

		event := outbox.DomainEvent{
			EventType:     enums.EventWalletToppedUp,
			AggregateType: enums.AggregatePayment,
			AggregateID:   payment.ID,
			Version:       1,
			Actor:         buildActor(input.ActorID, input.ActorRole),
			Data: payloads.WalletToppedUpEvent{
				PaymentID: payment.ID,
				UserID:    input.UserID,
				Amount:    input.Amount,
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue wallet_topped_up event")
		}
		return nil
	})
	if err != nil {
		// the wallet was never credited; free the key so a retry can land
		if reservedKey != "" {
			_ = s.idem.Del(ctx, reservedKey)
		}
		return nil, err
	}
	return payment, nil
}

func (s *service) History(ctx context.Context, userID uuid.UUID) (*PaymentHistory, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}

	sent, err := s.payments.ListSentByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list sent payments")
	}
	received, err := s.payments.ListReceivedByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list received payments")
	}
	return &PaymentHistory{Sent: sent, Received: received}, nil
}

// Statement pages through the user's wallet transactions, newest first.
// A user without a wallet has an empty statement rather than an error.
func (s *service) Statement(ctx context.Context, userID uuid.UUID, limit, offset int) (*ledger.StatementPage, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if limit <= 0 {
		limit = s.cfg.StatementPageSize
		if limit <= 0 {
			limit = 20
		}
	}
	if offset < 0 {
		offset = 0
	}

	w, err := s.wallets.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &ledger.StatementPage{Limit: limit, Offset: offset}, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load wallet")
	}

	txns, err := s.ledger.ListByWallet(ctx, w.ID, limit, offset)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list transactions")
	}
	total, err := s.ledger.CountByWallet(ctx, w.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count transactions")
	}
	return &ledger.StatementPage{
		Transactions: txns,
		Total:        total,
		Limit:        limit,
		Offset:       offset,
	}, nil
}

func (s *service) recordMovement(ctx context.Context, tx *gorm.DB, w *models.Wallet, payment *models.Payment, txnType enums.TransactionType, description string) error {
	txn := &models.Transaction{
		ID:           uuid.New(),
		WalletID:     w.ID,
		PaymentID:    &payment.ID,
		Amount:       payment.Amount,
		Type:         txnType,
		Description:  description,
		BalanceAfter: w.Balance,
	}
	if err := s.ledger.WithTx(tx).Create(ctx, txn); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record transaction")
	}
	return nil
}

func (s *service) jobTitle(ctx context.Context, tx *gorm.DB, payment *models.Payment) string {
	if payment.JobID == nil {
		return "N/A"
	}
	job, err := s.payments.WithTx(tx).FindJob(ctx, *payment.JobID)
	if err != nil {
		return "N/A"
	}
	return job.Title
}

func (s *service) observe(operation string, start time.Time, err error) {
	s.metrics.ObserveDuration(operation, time.Since(start))
	if err == nil {
		s.metrics.IncSuccess(operation)
		return
	}
	s.metrics.IncFailure(operation)
}

func buildActor(userID uuid.UUID, role string) *outbox.ActorRef {
	if userID == uuid.Nil {
		return nil
	}
	return &outbox.ActorRef{UserID: userID, Role: role}
}
