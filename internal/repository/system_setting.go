package repository

import (
	"context"

	"github.com/finbridge/tradegate/internal/model"
	ctxutil "github.com/finbridge/tradegate/pkg/context"
	"github.com/finbridge/tradegate/pkg/logger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SystemSettingRepository struct {
	db *gorm.DB
}

func NewSystemSettingRepository(db *gorm.DB) *SystemSettingRepository {
	return &SystemSettingRepository{db: db}
}

func (r *SystemSettingRepository) Get(ctx context.Context, key string) (string, error) {
	ctx = ctxutil.NewContextWithRequest(ctx, "repository", "Get")

	var setting model.SystemSetting
	result := r.db.WithContext(ctx).Where("key = ?", key).First(&setting)
	if result.Error != nil {
		return "", result.Error
	}

	return setting.Value, nil
}

// Set upserts one setting.
func (r *SystemSettingRepository) Set(ctx context.Context, key, value string) error {
	ctx = ctxutil.NewContextWithRequest(ctx, "repository", "Set")

	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&model.SystemSetting{Key: key, Value: value})
	if result.Error != nil {
		logger.ErrorWithContext(ctx, "Failed to save system setting").
			String("key", key).
			Err(result.Error).
			Log()
		return result.Error
	}

	return nil
}
