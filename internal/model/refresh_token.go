package model

import (
	"time"

	"gorm.io/gorm"
)

// RefreshToken stores one rotation generation of a user's refresh chain.
// Only the SHA-256 hash of the opaque token is persisted.
type RefreshToken struct {
	gorm.Model
	UserID     uint      `gorm:"column:user_id;index;not null"`
	TokenHash  string    `gorm:"column:token_hash;size:64;uniqueIndex;not null"`
	ExpiresAt  time.Time `gorm:"column:expires_at;not null"`
	Revoked    bool      `gorm:"column:revoked;default:false;not null"`
	DeviceInfo *string   `gorm:"column:device_info"`
	IPAddress  *string   `gorm:"column:ip_address"`

	User User `gorm:"foreignKey:UserID"`
}

// Active reports whether the token can still be exchanged.
func (t *RefreshToken) Active(now time.Time) bool {
	return !t.Revoked && now.Before(t.ExpiresAt)
}
