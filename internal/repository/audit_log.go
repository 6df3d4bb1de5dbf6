package repository

import (
	"context"

	"github.com/finbridge/tradegate/internal/model"
	ctxutil "github.com/finbridge/tradegate/pkg/context"
	"github.com/finbridge/tradegate/pkg/logger"
	"gorm.io/gorm"
)

type AuditLogRepository struct {
	db *gorm.DB
}

func NewAuditLogRepository(db *gorm.DB) *AuditLogRepository {
	return &AuditLogRepository{db: db}
}

// Create writes one audit entry. Audit failures are logged but must not
// fail the calling operation, so callers usually ignore the error.
func (r *AuditLogRepository) Create(ctx context.Context, entry *model.AuditLog) error {
	ctx = ctxutil.NewContextWithRequest(ctx, "repository", "Create")

	result := r.db.WithContext(ctx).Create(entry)
	if result.Error != nil {
		logger.ErrorWithContext(ctx, "Failed to write audit log").
			String("action", entry.Action).
			Err(result.Error).
			Log()
		return result.Error
	}

	return nil
}

// ListByUser returns a page of the user's audit trail, newest first.
func (r *AuditLogRepository) ListByUser(ctx context.Context, userID uint, limit, offset int) ([]model.AuditLog, error) {
	ctx = ctxutil.NewContextWithRequest(ctx, "repository", "ListByUser")

	var entries []model.AuditLog
	result := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&entries)
	if result.Error != nil {
		logger.ErrorWithContext(ctx, "Failed to list audit logs").
			Uint("user_id", userID).
			Err(result.Error).
			Log()
		return nil, result.Error
	}

	return entries, nil
}
