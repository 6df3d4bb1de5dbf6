package database

import (
	"fmt"

	"github.com/finbridge/tradegate/internal/model"
	"github.com/finbridge/tradegate/pkg/logger"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Migrate runs the schema migrations for every model.
func Migrate(db *gorm.DB) error {
	models := []interface{}{
		&model.User{},
		&model.RefreshToken{},
		&model.BrokerAccount{},
		&model.AuditLog{},
		&model.SystemSetting{},
	}

	for _, m := range models {
		if err := db.AutoMigrate(m); err != nil {
			return fmt.Errorf("migration failed for %T: %w", m, err)
		}
	}

	logger.GetLogger().Info("Database migrations applied",
		zap.Int("models", len(models)),
	)

	return nil
}
