package model

import "time"

// SystemSetting is a simple key-value store for operator-tunable values
// such as the default quote watchlist.
type SystemSetting struct {
	Key       string    `gorm:"column:key;primaryKey"`
	Value     string    `gorm:"column:value;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}
