package model

import (
	"time"

	"gorm.io/gorm"
)

// BrokerAccount links a user to one set of broker credentials per
// trading environment. Credential columns hold vault envelopes, never
// plaintext. APIKeyHash enforces global uniqueness of the API key
// without being reversible.
type BrokerAccount struct {
	gorm.Model
	UserID      uint   `gorm:"column:user_id;uniqueIndex:idx_broker_accounts_user_env;not null"`
	Environment string `gorm:"column:environment;uniqueIndex:idx_broker_accounts_user_env;not null"`

	EncryptedAPIKey      string  `gorm:"column:encrypted_api_key;not null"`
	APIKeyHash           string  `gorm:"column:api_key_hash;size:64;uniqueIndex;not null"`
	EncryptedIdentifier  string  `gorm:"column:encrypted_identifier;not null"`
	EncryptedAPIPassword *string `gorm:"column:encrypted_api_password"`

	BrokerAccountID *string `gorm:"column:broker_account_id"`

	EncryptedSessionTokens *string    `gorm:"column:encrypted_session_tokens"`
	SessionUpdatedAt       *time.Time `gorm:"column:session_updated_at"`

	User User `gorm:"foreignKey:UserID"`
}
