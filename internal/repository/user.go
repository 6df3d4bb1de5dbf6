package repository

import (
	"context"
	"time"

	"github.com/finbridge/tradegate/internal/model"
	ctxutil "github.com/finbridge/tradegate/pkg/context"
	"github.com/finbridge/tradegate/pkg/logger"
	"gorm.io/gorm"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetByID(ctx context.Context, id uint) (*model.User, error) {
	ctx = ctxutil.NewContextWithRequest(ctx, "repository", "GetByID")

	var user model.User
	result := r.db.WithContext(ctx).First(&user, id)
	if result.Error != nil {
		logger.DebugWithContext(ctx, "User lookup by ID failed").
			Uint("user_id", id).
			Err(result.Error).
			Log()
		return nil, result.Error
	}

	return &user, nil
}

// GetByEmail finds a user by email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	ctx = ctxutil.NewContextWithRequest(ctx, "repository", "GetByEmail")

	var user model.User
	result := r.db.WithContext(ctx).Where("email = ?", email).First(&user)
	if result.Error != nil {
		logger.DebugWithContext(ctx, "User lookup by email failed").
			String("email", email).
			Err(result.Error).
			Log()
		return nil, result.Error
	}

	return &user, nil
}

func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	ctx = ctxutil.NewContextWithRequest(ctx, "repository", "Create")

	start := time.Now()
	result := r.db.WithContext(ctx).Create(user)
	if result.Error != nil {
		logger.ErrorWithContext(ctx, "Failed to create user").
			String("email", user.Email).
			Err(result.Error).
			Log()
		return result.Error
	}

	logger.InfoWithContext(ctx, "User created").
		Uint("user_id", user.ID).
		String("email", user.Email).
		Duration(time.Since(start)).
		Log()

	return nil
}

// UpdatePassword replaces the stored password hash.
func (r *UserRepository) UpdatePassword(ctx context.Context, id uint, passwordHash string) error {
	ctx = ctxutil.NewContextWithRequest(ctx, "repository", "UpdatePassword")

	result := r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).
		Update("password_hash", passwordHash)
	if result.Error != nil {
		logger.ErrorWithContext(ctx, "Failed to update password").
			Uint("user_id", id).
			Err(result.Error).
			Log()
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}

	logger.InfoWithContext(ctx, "Password updated").
		Uint("user_id", id).
		Log()

	return nil
}

// IncrementTokenVersion invalidates every outstanding access token for
// the user. Done in SQL so concurrent increments never lose an update.
func (r *UserRepository) IncrementTokenVersion(ctx context.Context, id uint) error {
	ctx = ctxutil.NewContextWithRequest(ctx, "repository", "IncrementTokenVersion")

	result := r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).
		Update("token_version", gorm.Expr("token_version + 1"))
	if result.Error != nil {
		logger.ErrorWithContext(ctx, "Failed to increment token version").
			Uint("user_id", id).
			Err(result.Error).
			Log()
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}

	return nil
}

// UpdateLastLogin stamps the last successful login time.
func (r *UserRepository) UpdateLastLogin(ctx context.Context, id uint) error {
	ctx = ctxutil.NewContextWithRequest(ctx, "repository", "UpdateLastLogin")

	result := r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).
		Update("last_login", time.Now())
	if result.Error != nil {
		logger.ErrorWithContext(ctx, "Failed to update last login").
			Uint("user_id", id).
			Err(result.Error).
			Log()
		return result.Error
	}

	return nil
}
