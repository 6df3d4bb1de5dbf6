package repository

import (
	"context"
	"time"

	"github.com/finbridge/tradegate/internal/model"
	ctxutil "github.com/finbridge/tradegate/pkg/context"
	"github.com/finbridge/tradegate/pkg/logger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type BrokerAccountRepository struct {
	db *gorm.DB
}

func NewBrokerAccountRepository(db *gorm.DB) *BrokerAccountRepository {
	return &BrokerAccountRepository{db: db}
}

// GetByUserAndEnv fetches the broker account for a user in one trading
// environment. There is at most one per (user, environment).
func (r *BrokerAccountRepository) GetByUserAndEnv(ctx context.Context, userID uint, environment string) (*model.BrokerAccount, error) {
	ctx = ctxutil.NewContextWithRequest(ctx, "repository", "GetByUserAndEnv")

	var account model.BrokerAccount
	result := r.db.WithContext(ctx).
		Where("user_id = ? AND environment = ?", userID, environment).
		First(&account)
	if result.Error != nil {
		logger.DebugWithContext(ctx, "Broker account lookup failed").
			Uint("user_id", userID).
			String("environment", environment).
			Err(result.Error).
			Log()
		return nil, result.Error
	}

	return &account, nil
}

// GetByAPIKeyHash finds any account holding the given API key hash.
// Used to enforce global uniqueness of broker credentials.
func (r *BrokerAccountRepository) GetByAPIKeyHash(ctx context.Context, apiKeyHash string) (*model.BrokerAccount, error) {
	ctx = ctxutil.NewContextWithRequest(ctx, "repository", "GetByAPIKeyHash")

	var account model.BrokerAccount
	result := r.db.WithContext(ctx).
		Where("api_key_hash = ?", apiKeyHash).
		First(&account)
	if result.Error != nil {
		return nil, result.Error
	}

	return &account, nil
}

// Upsert inserts the account or, when the user already has one for the
// environment, replaces its credentials and clears the session cache.
func (r *BrokerAccountRepository) Upsert(ctx context.Context, account *model.BrokerAccount) error {
	ctx = ctxutil.NewContextWithRequest(ctx, "repository", "Upsert")

	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "environment"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"encrypted_api_key",
			"api_key_hash",
			"encrypted_identifier",
			"encrypted_api_password",
			"broker_account_id",
			"encrypted_session_tokens",
			"session_updated_at",
			"updated_at",
		}),
	}).Create(account)
	if result.Error != nil {
		logger.ErrorWithContext(ctx, "Failed to upsert broker account").
			Uint("user_id", account.UserID).
			String("environment", account.Environment).
			Err(result.Error).
			Log()
		return result.Error
	}

	logger.InfoWithContext(ctx, "Broker account saved").
		Uint("user_id", account.UserID).
		String("environment", account.Environment).
		Log()

	return nil
}

// UpdateSessionCache stores the freshly encrypted session envelope and
// its timestamp for an account.
func (r *BrokerAccountRepository) UpdateSessionCache(ctx context.Context, id uint, encrypted string, updatedAt time.Time) error {
	ctx = ctxutil.NewContextWithRequest(ctx, "repository", "UpdateSessionCache")

	result := r.db.WithContext(ctx).Model(&model.BrokerAccount{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"encrypted_session_tokens": encrypted,
			"session_updated_at":       updatedAt,
		})
	if result.Error != nil {
		logger.ErrorWithContext(ctx, "Failed to update session cache").
			Uint("account_id", id).
			Err(result.Error).
			Log()
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}

	return nil
}

// ClearSessionCache drops the cached broker session for an account.
func (r *BrokerAccountRepository) ClearSessionCache(ctx context.Context, id uint) error {
	ctx = ctxutil.NewContextWithRequest(ctx, "repository", "ClearSessionCache")

	result := r.db.WithContext(ctx).Model(&model.BrokerAccount{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"encrypted_session_tokens": nil,
			"session_updated_at":       nil,
		})
	if result.Error != nil {
		logger.ErrorWithContext(ctx, "Failed to clear session cache").
			Uint("account_id", id).
			Err(result.Error).
			Log()
		return result.Error
	}

	return nil
}

// ListByUser returns every broker account the user has linked.
func (r *BrokerAccountRepository) ListByUser(ctx context.Context, userID uint) ([]model.BrokerAccount, error) {
	ctx = ctxutil.NewContextWithRequest(ctx, "repository", "ListByUser")

	var accounts []model.BrokerAccount
	result := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("environment").
		Find(&accounts)
	if result.Error != nil {
		logger.ErrorWithContext(ctx, "Failed to list broker accounts").
			Uint("user_id", userID).
			Err(result.Error).
			Log()
		return nil, result.Error
	}

	return accounts, nil
}
