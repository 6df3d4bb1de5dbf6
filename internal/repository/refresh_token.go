package repository

import (
	"context"
	"time"

	"github.com/finbridge/tradegate/internal/model"
	ctxutil "github.com/finbridge/tradegate/pkg/context"
	"github.com/finbridge/tradegate/pkg/logger"
	"gorm.io/gorm"
)

type RefreshTokenRepository struct {
	db *gorm.DB
}

func NewRefreshTokenRepository(db *gorm.DB) *RefreshTokenRepository {
	return &RefreshTokenRepository{db: db}
}

func (r *RefreshTokenRepository) Create(ctx context.Context, token *model.RefreshToken) error {
	ctx = ctxutil.NewContextWithRequest(ctx, "repository", "Create")

	result := r.db.WithContext(ctx).Create(token)
	if result.Error != nil {
		logger.ErrorWithContext(ctx, "Failed to store refresh token").
			Uint("user_id", token.UserID).
			Err(result.Error).
			Log()
		return result.Error
	}

	return nil
}

// GetByHash finds a refresh token row by its SHA-256 hash, revoked or not.
// The caller decides what a revoked hit means.
func (r *RefreshTokenRepository) GetByHash(ctx context.Context, tokenHash string) (*model.RefreshToken, error) {
	ctx = ctxutil.NewContextWithRequest(ctx, "repository", "GetByHash")

	var token model.RefreshToken
	result := r.db.WithContext(ctx).Where("token_hash = ?", tokenHash).First(&token)
	if result.Error != nil {
		logger.DebugWithContext(ctx, "Refresh token lookup failed").
			Err(result.Error).
			Log()
		return nil, result.Error
	}

	return &token, nil
}

// RevokeIfActive marks the token revoked only if it is not already.
// The conditional update makes rotation atomic: of two concurrent
// refreshes with the same token exactly one sees rows affected == 1.
func (r *RefreshTokenRepository) RevokeIfActive(ctx context.Context, id uint) (bool, error) {
	ctx = ctxutil.NewContextWithRequest(ctx, "repository", "RevokeIfActive")

	result := r.db.WithContext(ctx).Model(&model.RefreshToken{}).
		Where("id = ? AND revoked = false", id).
		Update("revoked", true)
	if result.Error != nil {
		logger.ErrorWithContext(ctx, "Failed to revoke refresh token").
			Uint("token_id", id).
			Err(result.Error).
			Log()
		return false, result.Error
	}

	return result.RowsAffected == 1, nil
}

// RevokeAllForUser revokes every active token of the user. Used on
// logout-everywhere and when token reuse is detected.
func (r *RefreshTokenRepository) RevokeAllForUser(ctx context.Context, userID uint) (int64, error) {
	ctx = ctxutil.NewContextWithRequest(ctx, "repository", "RevokeAllForUser")

	result := r.db.WithContext(ctx).Model(&model.RefreshToken{}).
		Where("user_id = ? AND revoked = false", userID).
		Update("revoked", true)
	if result.Error != nil {
		logger.ErrorWithContext(ctx, "Failed to revoke user refresh tokens").
			Uint("user_id", userID).
			Err(result.Error).
			Log()
		return 0, result.Error
	}

	logger.InfoWithContext(ctx, "Revoked all refresh tokens for user").
		Uint("user_id", userID).
		Any("revoked_count", result.RowsAffected).
		Log()

	return result.RowsAffected, nil
}

// DeleteExpired removes rows whose expiry has long passed. Revoked rows
// are kept until expiry so reuse of a rotated token is still detectable.
func (r *RefreshTokenRepository) DeleteExpired(ctx context.Context) (int64, error) {
	ctx = ctxutil.NewContextWithRequest(ctx, "repository", "DeleteExpired")

	result := r.db.WithContext(ctx).
		Where("expires_at < ?", time.Now()).
		Delete(&model.RefreshToken{})
	if result.Error != nil {
		logger.ErrorWithContext(ctx, "Failed to delete expired refresh tokens").
			Err(result.Error).
			Log()
		return 0, result.Error
	}

	if result.RowsAffected > 0 {
		logger.InfoWithContext(ctx, "Deleted expired refresh tokens").
			Any("deleted_count", result.RowsAffected).
			Log()
	}

	return result.RowsAffected, nil
}
