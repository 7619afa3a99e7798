package wallet

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/maazehsan003/workhub-backend/pkg/db/models"
)

// Repository manages persistence for wallets.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, wallet *models.Wallet) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Wallet, error)
	FindByUserID(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	GetOrCreate(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	DebitIfSufficient(ctx context.Context, walletID uuid.UUID, amount decimal.Decimal) (bool, error)
	Credit(ctx context.Context, walletID uuid.UUID, amount decimal.Decimal) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a wallet repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, wallet *models.Wallet) error {
	return r.db.WithContext(ctx).Create(wallet).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Wallet, error) {
	var wallet models.Wallet
	if err := r.db.WithContext(ctx).First(&wallet, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &wallet, nil
}

func (r *repository) FindByUserID(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	var wallet models.Wallet
	if err := r.db.WithContext(ctx).First(&wallet, "user_id = ?", userID).Error; err != nil {
		return nil, err
	}
	return &wallet, nil
}

// GetOrCreate returns the user's wallet, creating a zero-balance row on first
// touch. A concurrent create loses the unique race on user_id and re-reads.
func (r *repository) GetOrCreate(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	wallet, err := r.FindByUserID(ctx, userID)
	if err == nil {
		return wallet, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}

	fresh := &models.Wallet{
		ID:      uuid.New(),
		UserID:  userID,
		Balance: decimal.Zero,
	}
	if createErr := r.Create(ctx, fresh); createErr != nil {
		existing, findErr := r.FindByUserID(ctx, userID)
		if findErr == nil {
			return existing, nil
		}
		return nil, createErr
	}
	return fresh, nil
}

// DebitIfSufficient atomically decrements the balance when it covers the
// amount. Returns false when the guard fails, leaving the row untouched.
func (r *repository) DebitIfSufficient(ctx context.Context, walletID uuid.UUID, amount decimal.Decimal) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Wallet{}).
		Where("id = ? AND balance >= ?", walletID, amount).
		Update("balance", gorm.Expr("balance - ?", amount))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repository) Credit(ctx context.Context, walletID uuid.UUID, amount decimal.Decimal) error {
	result := r.db.WithContext(ctx).
		Model(&models.Wallet{}).
		Where("id = ?", walletID).
		Update("balance", gorm.Expr("balance + ?", amount))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
