package model

import (
	"time"

	"gorm.io/gorm"
)

type User struct {
	gorm.Model
	Email        string     `gorm:"column:email;unique;not null"`
	PasswordHash *string    `gorm:"column:password_hash"`
	FullName     string     `gorm:"column:full_name"`
	Role         string     `gorm:"column:role;default:user;not null"`
	TokenVersion int        `gorm:"column:token_version;default:1;not null"`
	LastLogin    *time.Time `gorm:"column:last_login"`
}

// HasPassword reports whether the user can log in with a password. An
// account created through an external identity flow has none.
func (u *User) HasPassword() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}
