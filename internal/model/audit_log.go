package model

import (
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AuditLog records security-relevant actions. UserID is nullable so
// failed logins for unknown emails can still be recorded.
type AuditLog struct {
	gorm.Model
	UserID    *uint          `gorm:"column:user_id;index"`
	Action    string         `gorm:"column:action;index;not null"`
	IPAddress string         `gorm:"column:ip_address"`
	UserAgent string         `gorm:"column:user_agent"`
	Metadata  datatypes.JSON `gorm:"column:metadata"`
}
