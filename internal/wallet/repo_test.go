package wallet

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/maazehsan003/workhub-backend/pkg/db/models"
)

func setupWalletTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	wallets := `
CREATE TABLE IF NOT EXISTS wallets (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL UNIQUE,
  balance NUMERIC NOT NULL DEFAULT 0 CHECK (balance >= 0),
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, db.Exec(wallets).Error)
	return db
}

func createWallet(t *testing.T, db *gorm.DB, userID uuid.UUID, balance decimal.Decimal) *models.Wallet {
	t.Helper()

	wallet := &models.Wallet{
		ID:      uuid.New(),
		UserID:  userID,
		Balance: balance,
	}
	require.NoError(t, db.Create(wallet).Error)
	return wallet
}

func TestRepositoryGetOrCreate_createsZeroBalanceWallet(t *testing.T) {
	db := setupWalletTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	userID := uuid.New()
	wallet, err := repo.GetOrCreate(ctx, userID)
	require.NoError(t, err)
	require.NotNil(t, wallet)
	assert.Equal(t, userID, wallet.UserID)
	assert.True(t, wallet.Balance.IsZero())

	again, err := repo.GetOrCreate(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, wallet.ID, again.ID)
}

func TestRepositoryDebitIfSufficient(t *testing.T) {
	db := setupWalletTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	wallet := createWallet(t, db, uuid.New(), decimal.NewFromInt(100))

	ok, err := repo.DebitIfSufficient(ctx, wallet.ID, decimal.NewFromInt(60))
	require.NoError(t, err)
	assert.True(t, ok)

	reloaded, err := repo.FindByID(ctx, wallet.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.Balance.Equal(decimal.NewFromInt(40)), "balance = %s", reloaded.Balance)

	// guard rejects a debit larger than the remaining balance
	ok, err = repo.DebitIfSufficient(ctx, wallet.ID, decimal.NewFromInt(41))
	require.NoError(t, err)
	assert.False(t, ok)

	reloaded, err = repo.FindByID(ctx, wallet.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.Balance.Equal(decimal.NewFromInt(40)))
}

func TestRepositoryDebitIfSufficient_exactBalance(t *testing.T) {
	db := setupWalletTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	wallet := createWallet(t, db, uuid.New(), decimal.NewFromInt(25))

	ok, err := repo.DebitIfSufficient(ctx, wallet.ID, decimal.NewFromInt(25))
	require.NoError(t, err)
	assert.True(t, ok)

	reloaded, err := repo.FindByID(ctx, wallet.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.Balance.IsZero())
}

func TestRepositoryDebitIfSufficient_concurrentDebits(t *testing.T) {
	db := setupWalletTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	// one connection so the two debits serialize instead of tripping
	// sqlite's shared-cache write locking
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	wallet := createWallet(t, db, uuid.New(), decimal.NewFromInt(100))

	type result struct {
		ok  bool
		err error
	}
	results := make(chan result, 2)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := repo.DebitIfSufficient(ctx, wallet.ID, decimal.NewFromInt(60))
			results <- result{ok: ok, err: err}
		}()
	}
	wg.Wait()
	close(results)

	debited := 0
	for r := range results {
		require.NoError(t, r.err)
		if r.ok {
			debited++
		}
	}
	assert.Equal(t, 1, debited, "exactly one of the competing debits may land")

	reloaded, err := repo.FindByID(ctx, wallet.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.Balance.Equal(decimal.NewFromInt(40)), "balance = %s", reloaded.Balance)
}

func TestRepositoryCredit(t *testing.T) {
	db := setupWalletTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	wallet := createWallet(t, db, uuid.New(), decimal.NewFromInt(10))

	require.NoError(t, repo.Credit(ctx, wallet.ID, decimal.NewFromInt(15)))

	reloaded, err := repo.FindByID(ctx, wallet.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.Balance.Equal(decimal.NewFromInt(25)))
}

func TestRepositoryCredit_missingWallet(t *testing.T) {
	db := setupWalletTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	err := repo.Credit(ctx, uuid.New(), decimal.NewFromInt(5))
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
