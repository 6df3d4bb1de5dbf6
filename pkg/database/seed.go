package database

import (
	"errors"
	"strings"

	"github.com/finbridge/tradegate/config"
	"github.com/finbridge/tradegate/internal/constants"
	"github.com/finbridge/tradegate/internal/model"
	"github.com/finbridge/tradegate/pkg/logger"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Seed writes the default system settings and, outside production, a
// development admin account.
func Seed(db *gorm.DB, cfg *config.Config) error {
	if err := seedSettings(db); err != nil {
		return err
	}

	if !cfg.IsProduction() {
		if err := seedDevAdmin(db); err != nil {
			return err
		}
	}

	return nil
}

func seedSettings(db *gorm.DB) error {
	var existing model.SystemSetting
	err := db.Where("key = ?", constants.SettingDefaultEpics).First(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	setting := model.SystemSetting{
		Key:   constants.SettingDefaultEpics,
		Value: strings.Join(constants.DefaultEpics, ","),
	}
	if err := db.Create(&setting).Error; err != nil {
		return err
	}

	logger.GetLogger().Info("Seeded default epics watchlist",
		zap.String("value", setting.Value),
	)

	return nil
}

func seedDevAdmin(db *gorm.DB) error {
	const devAdminEmail = "admin@localhost"

	var existing model.User
	err := db.Where("email = ?", devAdminEmail).First(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte("admin12345"), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	hashStr := string(hash)
	admin := model.User{
		Email:        devAdminEmail,
		PasswordHash: &hashStr,
		FullName:     "Development Admin",
		Role:         "admin",
		TokenVersion: 1,
	}
	if err := db.Create(&admin).Error; err != nil {
		return err
	}

	logger.GetLogger().Warn("Seeded development admin account",
		zap.String("email", devAdminEmail),
	)

	return nil
}
