package escrow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/maazehsan003/workhub-backend/internal/ledger"
	"github.com/maazehsan003/workhub-backend/internal/wallet"
	"github.com/maazehsan003/workhub-backend/pkg/config"
	"github.com/maazehsan003/workhub-backend/pkg/db/models"
	"github.com/maazehsan003/workhub-backend/pkg/enums"
	pkgerrors "github.com/maazehsan003/workhub-backend/pkg/errors"
	"github.com/maazehsan003/workhub-backend/pkg/outbox"
)

type testTxRunner struct {
	db *gorm.DB
}

func (r *testTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

type fakeEmitter struct {
	events   []outbox.DomainEvent
	failNext error
}

func (f *fakeEmitter) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		return err
	}
	f.events = append(f.events, event)
	return nil
}

func (f *fakeEmitter) lastEvent(t *testing.T) outbox.DomainEvent {
	t.Helper()
	require.NotEmpty(t, f.events)
	return f.events[len(f.events)-1]
}

type fakeIdemStore struct {
	keys map[string]bool
}

func (f *fakeIdemStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if f.keys == nil {
		f.keys = map[string]bool{}
	}
	if f.keys[key] {
		return false, nil
	}
	f.keys[key] = true
	return true, nil
}

func (f *fakeIdemStore) Del(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.keys, key)
	}
	return nil
}

func (f *fakeIdemStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("wh:idem:%s:%s", scope, id)
}

type engineHarness struct {
	db      *gorm.DB
	engine  Engine
	wallets wallet.Repository
	ledger  ledger.Repository
	emitter *fakeEmitter
	idem    *fakeIdemStore
}

func setupEngine(t *testing.T) *engineHarness {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	ddl := []string{
		`CREATE TABLE IF NOT EXISTS jobs (
  id TEXT PRIMARY KEY,
  title TEXT NOT NULL,
  description TEXT NOT NULL,
  category TEXT NOT NULL,
  budget NUMERIC NOT NULL,
  deadline DATETIME NOT NULL,
  status TEXT NOT NULL DEFAULT 'open',
  client_id TEXT NOT NULL,
  freelancer_id TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS wallets (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL UNIQUE,
  balance NUMERIC NOT NULL DEFAULT 0 CHECK (balance >= 0),
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS payments (
  id TEXT PRIMARY KEY,
  job_id TEXT,
  from_user_id TEXT NOT NULL,
  to_user_id TEXT,
  amount NUMERIC NOT NULL,
  status TEXT NOT NULL,
  payment_type TEXT NOT NULL,
  description TEXT NOT NULL,
  created_at DATETIME,
  completed_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS transactions (
  id TEXT PRIMARY KEY,
  wallet_id TEXT NOT NULL,
  payment_id TEXT,
  amount NUMERIC NOT NULL,
  transaction_type TEXT NOT NULL,
  description TEXT NOT NULL,
  balance_after NUMERIC NOT NULL,
  created_at DATETIME
);`,
	}
	for _, stmt := range ddl {
		require.NoError(t, db.Exec(stmt).Error)
	}

	emitter := &fakeEmitter{}
	idem := &fakeIdemStore{}
	walletRepo := wallet.NewRepository(db)
	ledgerRepo := ledger.NewRepository(db)

	engine, err := NewService(
		NewRepository(db),
		walletRepo,
		ledgerRepo,
		&testTxRunner{db: db},
		emitter,
		idem,
		nil,
		config.EscrowConfig{TopUpLimit: 10000, TopUpIdempotencyTTL: time.Hour, StatementPageSize: 2},
	)
	require.NoError(t, err)

	return &engineHarness{
		db:      db,
		engine:  engine,
		wallets: walletRepo,
		ledger:  ledgerRepo,
		emitter: emitter,
		idem:    idem,
	}
}

func (h *engineHarness) seedWallet(t *testing.T, userID uuid.UUID, balance int64) *models.Wallet {
	t.Helper()
	w := &models.Wallet{ID: uuid.New(), UserID: userID, Balance: decimal.NewFromInt(balance)}
	require.NoError(t, h.db.Create(w).Error)
	return w
}

func (h *engineHarness) seedJob(t *testing.T, clientID, freelancerID uuid.UUID, title string, status enums.JobStatus) *models.Job {
	t.Helper()
	job := &models.Job{
		ID:          uuid.New(),
		Title:       title,
		Description: "test job",
		Category:    enums.JobCategoryWebDev,
		Budget:      decimal.NewFromInt(100),
		Deadline:    time.Now().Add(7 * 24 * time.Hour),
		Status:      status,
		ClientID:    clientID,
	}
	if freelancerID != uuid.Nil {
		job.FreelancerID = &freelancerID
	}
	require.NoError(t, h.db.Create(job).Error)
	return job
}

func (h *engineHarness) balance(t *testing.T, userID uuid.UUID) decimal.Decimal {
	t.Helper()
	w, err := h.wallets.FindByUserID(context.Background(), userID)
	require.NoError(t, err)
	return w.Balance
}

func TestEngine_HoldMovesFundsIntoEscrow(t *testing.T) {
	h := setupEngine(t)
	ctx := context.Background()

	client := uuid.New()
	freelancer := uuid.New()
	h.seedWallet(t, client, 100)
	job := h.seedJob(t, client, freelancer, "Landing page", enums.JobStatusInProgress)

	payment, err := h.engine.Hold(ctx, HoldInput{
		JobID:    job.ID,
		JobTitle: job.Title,
		PayerID:  client,
		PayeeID:  freelancer,
		Amount:   decimal.NewFromInt(40),
		ActorID:  client,
	})
	require.NoError(t, err)
	require.NotNil(t, payment)
	assert.Equal(t, enums.PaymentStatusOnHold, payment.Status)
	assert.Equal(t, enums.PaymentTypeJobPayment, payment.PaymentType)
	assert.Equal(t, "Payment for job: Landing page", payment.Description)
	assert.Nil(t, payment.CompletedAt)

	assert.True(t, h.balance(t, client).Equal(decimal.NewFromInt(60)))

	wlt, err := h.wallets.FindByUserID(ctx, client)
	require.NoError(t, err)
	txns, err := h.ledger.ListByWallet(ctx, wlt.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.Equal(t, enums.TransactionTypeDebit, txns[0].Type)
	assert.Equal(t, "Payment on hold for job: Landing page", txns[0].Description)
	assert.True(t, txns[0].BalanceAfter.Equal(decimal.NewFromInt(60)))

	event := h.emitter.lastEvent(t)
	assert.Equal(t, enums.EventPaymentHeld, event.EventType)
	assert.Equal(t, payment.ID, event.AggregateID)
}

func TestEngine_HoldInsufficientFunds(t *testing.T) {
	h := setupEngine(t)
	ctx := context.Background()

	client := uuid.New()
	freelancer := uuid.New()
	h.seedWallet(t, client, 30)
	job := h.seedJob(t, client, freelancer, "API build", enums.JobStatusOpen)

	_, err := h.engine.Hold(ctx, HoldInput{
		JobID:    job.ID,
		JobTitle: job.Title,
		PayerID:  client,
		PayeeID:  freelancer,
		Amount:   decimal.NewFromInt(50),
		ActorID:  client,
	})
	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, pkgerrors.CodeInsufficientFunds, appErr.Code())

	details, ok := appErr.Details().(InsufficientFundsDetails)
	require.True(t, ok)
	assert.True(t, details.Required.Equal(decimal.NewFromInt(50)))
	assert.True(t, details.Available.Equal(decimal.NewFromInt(30)))
	assert.True(t, details.Shortfall.Equal(decimal.NewFromInt(20)))

	// nothing committed
	assert.True(t, h.balance(t, client).Equal(decimal.NewFromInt(30)))
	var count int64
	require.NoError(t, h.db.Model(&models.Payment{}).Count(&count).Error)
	assert.Zero(t, count)
	assert.Empty(t, h.emitter.events)
}

func TestEngine_ConcurrentHoldsSingleWinner(t *testing.T) {
	h := setupEngine(t)
	ctx := context.Background()

	// one connection so the racing transactions queue at the pool
	// instead of tripping sqlite's shared-cache write locking
	sqlDB, err := h.db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	client := uuid.New()
	h.seedWallet(t, client, 100)

	freelancers := []uuid.UUID{uuid.New(), uuid.New()}
	jobs := []*models.Job{
		h.seedJob(t, client, freelancers[0], "Mobile app", enums.JobStatusInProgress),
		h.seedJob(t, client, freelancers[1], "Data import", enums.JobStatusInProgress),
	}

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := h.engine.Hold(ctx, HoldInput{
				JobID:    jobs[i].ID,
				JobTitle: jobs[i].Title,
				PayerID:  client,
				PayeeID:  freelancers[i],
				Amount:   decimal.NewFromInt(60),
				ActorID:  client,
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	held := 0
	for err := range errs {
		if err == nil {
			held++
			continue
		}
		appErr := pkgerrors.As(err)
		require.NotNil(t, appErr, "unexpected error: %v", err)
		assert.Equal(t, pkgerrors.CodeInsufficientFunds, appErr.Code())
	}
	assert.Equal(t, 1, held, "only one of the competing holds may be funded")

	assert.True(t, h.balance(t, client).Equal(decimal.NewFromInt(40)))
	var count int64
	require.NoError(t, h.db.Model(&models.Payment{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestEngine_HoldCreatesWalletLazily(t *testing.T) {
	h := setupEngine(t)
	ctx := context.Background()

	client := uuid.New()
	freelancer := uuid.New()
	job := h.seedJob(t, client, freelancer, "Logo", enums.JobStatusOpen)

	_, err := h.engine.Hold(ctx, HoldInput{
		JobID:    job.ID,
		JobTitle: job.Title,
		PayerID:  client,
		PayeeID:  freelancer,
		Amount:   decimal.NewFromInt(10),
		ActorID:  client,
	})
	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, pkgerrors.CodeInsufficientFunds, appErr.Code())

	// the lazily created wallet starts at zero, so the shortfall is the full amount
	details, ok := appErr.Details().(InsufficientFundsDetails)
	require.True(t, ok)
	assert.True(t, details.Available.IsZero())
	assert.True(t, details.Shortfall.Equal(decimal.NewFromInt(10)))

	// the whole unit of work rolled back, wallet row included
	_, err = h.wallets.FindByUserID(ctx, client)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestEngine_HoldValidation(t *testing.T) {
	h := setupEngine(t)
	ctx := context.Background()

	client := uuid.New()
	freelancer := uuid.New()
	jobID := uuid.New()

	cases := []struct {
		name string
		in   HoldInput
		code pkgerrors.Code
	}{
		{
			name: "missing actor",
			in:   HoldInput{JobID: jobID, PayerID: client, PayeeID: freelancer, Amount: decimal.NewFromInt(10)},
			code: pkgerrors.CodeUnauthorized,
		},
		{
			name: "actor is not payer",
			in:   HoldInput{JobID: jobID, PayerID: client, PayeeID: freelancer, Amount: decimal.NewFromInt(10), ActorID: freelancer},
			code: pkgerrors.CodeForbidden,
		},
		{
			name: "zero amount",
			in:   HoldInput{JobID: jobID, PayerID: client, PayeeID: freelancer, Amount: decimal.Zero, ActorID: client},
			code: pkgerrors.CodeValidation,
		},
		{
			name: "negative amount",
			in:   HoldInput{JobID: jobID, PayerID: client, PayeeID: freelancer, Amount: decimal.NewFromInt(-5), ActorID: client},
			code: pkgerrors.CodeValidation,
		},
		{
			name: "payer pays self",
			in:   HoldInput{JobID: jobID, PayerID: client, PayeeID: client, Amount: decimal.NewFromInt(10), ActorID: client},
			code: pkgerrors.CodeValidation,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.engine.Hold(ctx, tc.in)
			appErr := pkgerrors.As(err)
			require.NotNil(t, appErr)
			assert.Equal(t, tc.code, appErr.Code())
		})
	}
}

func TestEngine_ReleaseCreditsPayee(t *testing.T) {
	h := setupEngine(t)
	ctx := context.Background()

	client := uuid.New()
	freelancer := uuid.New()
	h.seedWallet(t, client, 100)
	job := h.seedJob(t, client, freelancer, "Data import", enums.JobStatusInProgress)

	held, err := h.engine.Hold(ctx, HoldInput{
		JobID:    job.ID,
		JobTitle: job.Title,
		PayerID:  client,
		PayeeID:  freelancer,
		Amount:   decimal.NewFromInt(40),
		ActorID:  client,
	})
	require.NoError(t, err)

	released, err := h.engine.Release(ctx, ReleaseInput{PaymentID: held.ID, ActorID: freelancer})
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusCompleted, released.Status)
	require.NotNil(t, released.CompletedAt)

	assert.True(t, h.balance(t, client).Equal(decimal.NewFromInt(60)))
	assert.True(t, h.balance(t, freelancer).Equal(decimal.NewFromInt(40)))

	wlt, err := h.wallets.FindByUserID(ctx, freelancer)
	require.NoError(t, err)
	txns, err := h.ledger.ListByWallet(ctx, wlt.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.Equal(t, enums.TransactionTypeCredit, txns[0].Type)
	assert.Equal(t, "Payment received for job: Data import", txns[0].Description)
	assert.True(t, txns[0].BalanceAfter.Equal(decimal.NewFromInt(40)))

	event := h.emitter.lastEvent(t)
	assert.Equal(t, enums.EventPaymentReleased, event.EventType)
}

func TestEngine_ReleaseTwice(t *testing.T) {
	h := setupEngine(t)
	ctx := context.Background()

	client := uuid.New()
	freelancer := uuid.New()
	h.seedWallet(t, client, 100)
	job := h.seedJob(t, client, freelancer, "Copywriting", enums.JobStatusInProgress)

	held, err := h.engine.Hold(ctx, HoldInput{
		JobID:    job.ID,
		JobTitle: job.Title,
		PayerID:  client,
		PayeeID:  freelancer,
		Amount:   decimal.NewFromInt(25),
		ActorID:  client,
	})
	require.NoError(t, err)

	_, err = h.engine.Release(ctx, ReleaseInput{PaymentID: held.ID, ActorID: freelancer})
	require.NoError(t, err)

	_, err = h.engine.Release(ctx, ReleaseInput{PaymentID: held.ID, ActorID: freelancer})
	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, pkgerrors.CodeStateConflict, appErr.Code())

	// no double credit
	assert.True(t, h.balance(t, freelancer).Equal(decimal.NewFromInt(25)))
}

func TestEngine_ReleaseAuthorization(t *testing.T) {
	h := setupEngine(t)
	ctx := context.Background()

	client := uuid.New()
	freelancer := uuid.New()
	stranger := uuid.New()
	h.seedWallet(t, client, 100)
	job := h.seedJob(t, client, freelancer, "QA pass", enums.JobStatusInProgress)

	held, err := h.engine.Hold(ctx, HoldInput{
		JobID:    job.ID,
		JobTitle: job.Title,
		PayerID:  client,
		PayeeID:  freelancer,
		Amount:   decimal.NewFromInt(20),
		ActorID:  client,
	})
	require.NoError(t, err)

	_, err = h.engine.Release(ctx, ReleaseInput{PaymentID: held.ID, ActorID: stranger})
	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, pkgerrors.CodeForbidden, appErr.Code())

	_, err = h.engine.Release(ctx, ReleaseInput{PaymentID: uuid.New(), ActorID: freelancer})
	appErr = pkgerrors.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, pkgerrors.CodeNotFound, appErr.Code())
}

func TestEngine_RefundRestoresPayerBalance(t *testing.T) {
	h := setupEngine(t)
	ctx := context.Background()

	client := uuid.New()
	freelancer := uuid.New()
	h.seedWallet(t, client, 100)
	job := h.seedJob(t, client, freelancer, "Mobile app", enums.JobStatusInProgress)

	held, err := h.engine.Hold(ctx, HoldInput{
		JobID:    job.ID,
		JobTitle: job.Title,
		PayerID:  client,
		PayeeID:  freelancer,
		Amount:   decimal.NewFromInt(70),
		ActorID:  client,
	})
	require.NoError(t, err)
	require.True(t, h.balance(t, client).Equal(decimal.NewFromInt(30)))

	// refund is blocked while the job is live
	_, err = h.engine.Refund(ctx, RefundInput{PaymentID: held.ID, ActorID: client})
	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, pkgerrors.CodeStateConflict, appErr.Code())

	require.NoError(t, h.db.Model(&models.Job{}).Where("id = ?", job.ID).Update("status", enums.JobStatusCancelled).Error)

	refunded, err := h.engine.Refund(ctx, RefundInput{PaymentID: held.ID, ActorID: client})
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusRefunded, refunded.Status)

	assert.True(t, h.balance(t, client).Equal(decimal.NewFromInt(100)))

	wlt, err := h.wallets.FindByUserID(ctx, client)
	require.NoError(t, err)
	txns, err := h.ledger.ListByWallet(ctx, wlt.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, txns, 2)
	assert.Equal(t, "Refund for cancelled job: Mobile app", txns[0].Description)

	event := h.emitter.lastEvent(t)
	assert.Equal(t, enums.EventPaymentRefunded, event.EventType)
}

func TestEngine_RefundAuthorization(t *testing.T) {
	h := setupEngine(t)
	ctx := context.Background()

	client := uuid.New()
	freelancer := uuid.New()
	h.seedWallet(t, client, 50)
	job := h.seedJob(t, client, freelancer, "SEO audit", enums.JobStatusCancelled)

	held, err := h.engine.Hold(ctx, HoldInput{
		JobID:    job.ID,
		JobTitle: job.Title,
		PayerID:  client,
		PayeeID:  freelancer,
		Amount:   decimal.NewFromInt(50),
		ActorID:  client,
	})
	require.NoError(t, err)

	// only the payer can refund
	_, err = h.engine.Refund(ctx, RefundInput{PaymentID: held.ID, ActorID: freelancer})
	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, pkgerrors.CodeForbidden, appErr.Code())
}

func TestEngine_RefundAfterRelease(t *testing.T) {
	h := setupEngine(t)
	ctx := context.Background()

	client := uuid.New()
	freelancer := uuid.New()
	h.seedWallet(t, client, 100)
	job := h.seedJob(t, client, freelancer, "Video edit", enums.JobStatusInProgress)

	held, err := h.engine.Hold(ctx, HoldInput{
		JobID:    job.ID,
		JobTitle: job.Title,
		PayerID:  client,
		PayeeID:  freelancer,
		Amount:   decimal.NewFromInt(30),
		ActorID:  client,
	})
	require.NoError(t, err)

	_, err = h.engine.Release(ctx, ReleaseInput{PaymentID: held.ID, ActorID: freelancer})
	require.NoError(t, err)

	require.NoError(t, h.db.Model(&models.Job{}).Where("id = ?", job.ID).Update("status", enums.JobStatusCancelled).Error)

	_, err = h.engine.Refund(ctx, RefundInput{PaymentID: held.ID, ActorID: client})
	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, pkgerrors.CodeStateConflict, appErr.Code())

	assert.True(t, h.balance(t, client).Equal(decimal.NewFromInt(70)))
	assert.True(t, h.balance(t, freelancer).Equal(decimal.NewFromInt(30)))
}

func TestEngine_TopUp(t *testing.T) {
	h := setupEngine(t)
	ctx := context.Background()

	userID := uuid.New()
	payment, err := h.engine.TopUp(ctx, TopUpInput{
		UserID:  userID,
		Amount:  decimal.NewFromInt(500),
		ActorID: userID,
	})
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusCompleted, payment.Status)
	assert.Equal(t, enums.PaymentTypeWalletTopUp, payment.PaymentType)
	assert.Nil(t, payment.ToUserID)
	require.NotNil(t, payment.CompletedAt)
	assert.Equal(t, "Wallet top-up of $500", payment.Description)

	assert.True(t, h.balance(t, userID).Equal(decimal.NewFromInt(500)))

	wlt, err := h.wallets.FindByUserID(ctx, userID)
	require.NoError(t, err)
	txns, err := h.ledger.ListByWallet(ctx, wlt.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.Equal(t, enums.TransactionTypeCredit, txns[0].Type)
	assert.Equal(t, "Wallet top-up", txns[0].Description)
	assert.True(t, txns[0].BalanceAfter.Equal(decimal.NewFromInt(500)))

	event := h.emitter.lastEvent(t)
	assert.Equal(t, enums.EventWalletToppedUp, event.EventType)
}

func TestEngine_TopUpLimit(t *testing.T) {
	h := setupEngine(t)
	ctx := context.Background()

	userID := uuid.New()

	// the cap itself is allowed
	_, err := h.engine.TopUp(ctx, TopUpInput{UserID: userID, Amount: decimal.NewFromInt(10000), ActorID: userID})
	require.NoError(t, err)

	_, err = h.engine.TopUp(ctx, TopUpInput{UserID: userID, Amount: decimal.NewFromInt(10001), ActorID: userID})
	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, pkgerrors.CodeValidation, appErr.Code())

	assert.True(t, h.balance(t, userID).Equal(decimal.NewFromInt(10000)))
}

func TestEngine_TopUpIdempotency(t *testing.T) {
	h := setupEngine(t)
	ctx := context.Background()

	userID := uuid.New()
	input := TopUpInput{
		UserID:         userID,
		Amount:         decimal.NewFromInt(100),
		ActorID:        userID,
		IdempotencyKey: "req-abc-123",
	}

	_, err := h.engine.TopUp(ctx, input)
	require.NoError(t, err)

	_, err = h.engine.TopUp(ctx, input)
	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, pkgerrors.CodeIdempotency, appErr.Code())

	assert.True(t, h.balance(t, userID).Equal(decimal.NewFromInt(100)))
}

func TestEngine_TopUpRetryAfterRollback(t *testing.T) {
	h := setupEngine(t)
	ctx := context.Background()

	userID := uuid.New()
	input := TopUpInput{
		UserID:         userID,
		Amount:         decimal.NewFromInt(100),
		ActorID:        userID,
		IdempotencyKey: "req-retry-1",
	}

	// transient failure inside the unit of work rolls everything back
	h.emitter.failNext = errors.New("publish buffer full")
	_, err := h.engine.TopUp(ctx, input)
	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, pkgerrors.CodeDependency, appErr.Code())

	_, err = h.wallets.FindByUserID(ctx, userID)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)

	// the key was released, so the same request may retry and land once
	payment, err := h.engine.TopUp(ctx, input)
	require.NoError(t, err)
	require.Equal(t, enums.PaymentStatusCompleted, payment.Status)
	assert.True(t, h.balance(t, userID).Equal(decimal.NewFromInt(100)))

	// and a further duplicate is still rejected
	_, err = h.engine.TopUp(ctx, input)
	appErr = pkgerrors.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, pkgerrors.CodeIdempotency, appErr.Code())
}

func TestEngine_TopUpAuthorization(t *testing.T) {
	h := setupEngine(t)
	ctx := context.Background()

	userID := uuid.New()
	_, err := h.engine.TopUp(ctx, TopUpInput{UserID: userID, Amount: decimal.NewFromInt(10), ActorID: uuid.New()})
	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, pkgerrors.CodeForbidden, appErr.Code())
}

func TestEngine_MoneyConservation(t *testing.T) {
	h := setupEngine(t)
	ctx := context.Background()

	client := uuid.New()
	freelancerA := uuid.New()
	freelancerB := uuid.New()

	_, err := h.engine.TopUp(ctx, TopUpInput{UserID: client, Amount: decimal.NewFromInt(1000), ActorID: client})
	require.NoError(t, err)

	jobA := h.seedJob(t, client, freelancerA, "Job A", enums.JobStatusInProgress)
	jobB := h.seedJob(t, client, freelancerB, "Job B", enums.JobStatusInProgress)

	heldA, err := h.engine.Hold(ctx, HoldInput{
		JobID: jobA.ID, JobTitle: jobA.Title, PayerID: client, PayeeID: freelancerA,
		Amount: decimal.NewFromInt(300), ActorID: client,
	})
	require.NoError(t, err)
	heldB, err := h.engine.Hold(ctx, HoldInput{
		JobID: jobB.ID, JobTitle: jobB.Title, PayerID: client, PayeeID: freelancerB,
		Amount: decimal.NewFromInt(200), ActorID: client,
	})
	require.NoError(t, err)

	_, err = h.engine.Release(ctx, ReleaseInput{PaymentID: heldA.ID, ActorID: freelancerA})
	require.NoError(t, err)

	require.NoError(t, h.db.Model(&models.Job{}).Where("id = ?", jobB.ID).Update("status", enums.JobStatusCancelled).Error)
	_, err = h.engine.Refund(ctx, RefundInput{PaymentID: heldB.ID, ActorID: client})
	require.NoError(t, err)

	// every unit that entered via top-up is accounted for across wallets,
	// with no funds left in escrow
	total := h.balance(t, client).Add(h.balance(t, freelancerA))
	assert.True(t, h.balance(t, client).Equal(decimal.NewFromInt(700)))
	assert.True(t, h.balance(t, freelancerA).Equal(decimal.NewFromInt(300)))
	assert.True(t, total.Equal(decimal.NewFromInt(1000)))

	var held int64
	require.NoError(t, h.db.Model(&models.Payment{}).
		Where("status = ?", enums.PaymentStatusOnHold).Count(&held).Error)
	assert.Zero(t, held)
}

func TestEngine_History(t *testing.T) {
	h := setupEngine(t)
	ctx := context.Background()

	client := uuid.New()
	freelancer := uuid.New()
	h.seedWallet(t, client, 100)
	job := h.seedJob(t, client, freelancer, "Brochure", enums.JobStatusInProgress)

	held, err := h.engine.Hold(ctx, HoldInput{
		JobID: job.ID, JobTitle: job.Title, PayerID: client, PayeeID: freelancer,
		Amount: decimal.NewFromInt(10), ActorID: client,
	})
	require.NoError(t, err)

	clientHistory, err := h.engine.History(ctx, client)
	require.NoError(t, err)
	require.Len(t, clientHistory.Sent, 1)
	assert.Equal(t, held.ID, clientHistory.Sent[0].ID)
	assert.Empty(t, clientHistory.Received)

	freelancerHistory, err := h.engine.History(ctx, freelancer)
	require.NoError(t, err)
	require.Len(t, freelancerHistory.Received, 1)
	assert.Empty(t, freelancerHistory.Sent)
}

func TestEngine_StatementPagesWithConfiguredSize(t *testing.T) {
	h := setupEngine(t)
	ctx := context.Background()

	userID := uuid.New()
	for i, key := range []string{"st-1", "st-2", "st-3"} {
		_, err := h.engine.TopUp(ctx, TopUpInput{
			UserID:         userID,
			Amount:         decimal.NewFromInt(int64(10 * (i + 1))),
			ActorID:        userID,
			IdempotencyKey: key,
		})
		require.NoError(t, err)
	}

	// limit 0 falls back to the configured page size of 2
	page, err := h.engine.Statement(ctx, userID, 0, 0)
	require.NoError(t, err)
	require.Len(t, page.Transactions, 2)
	assert.EqualValues(t, 3, page.Total)
	assert.Equal(t, 2, page.Limit)
	assert.Zero(t, page.Offset)

	next, err := h.engine.Statement(ctx, userID, 2, 2)
	require.NoError(t, err)
	require.Len(t, next.Transactions, 1)
	assert.EqualValues(t, 3, next.Total)
	assert.Equal(t, 2, next.Offset)
}

func TestEngine_StatementUnknownUser(t *testing.T) {
	h := setupEngine(t)
	ctx := context.Background()

	page, err := h.engine.Statement(ctx, uuid.New(), 0, 0)
	require.NoError(t, err)
	assert.Empty(t, page.Transactions)
	assert.Zero(t, page.Total)
	assert.Equal(t, 2, page.Limit)

	_, err = h.engine.Statement(ctx, uuid.Nil, 0, 0)
	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, pkgerrors.CodeValidation, appErr.Code())
}
