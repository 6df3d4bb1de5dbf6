package service

import (
	"context"
	"time"

	"github.com/finbridge/tradegate/internal/broker"
	"github.com/finbridge/tradegate/internal/model"
)

// The service layer depends on these narrow interfaces rather than the
// concrete gorm repositories so it can be tested with mocks.

type UserRepository interface {
	GetByID(ctx context.Context, id uint) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	Create(ctx context.Context, user *model.User) error
	UpdatePassword(ctx context.Context, id uint, passwordHash string) error
	IncrementTokenVersion(ctx context.Context, id uint) error
	UpdateLastLogin(ctx context.Context, id uint) error
}

type RefreshTokenRepository interface {
	Create(ctx context.Context, token *model.RefreshToken) error
	GetByHash(ctx context.Context, tokenHash string) (*model.RefreshToken, error)
	RevokeIfActive(ctx context.Context, id uint) (bool, error)
	RevokeAllForUser(ctx context.Context, userID uint) (int64, error)
	DeleteExpired(ctx context.Context) (int64, error)
}

type BrokerAccountRepository interface {
	GetByUserAndEnv(ctx context.Context, userID uint, environment string) (*model.BrokerAccount, error)
	GetByAPIKeyHash(ctx context.Context, apiKeyHash string) (*model.BrokerAccount, error)
	Upsert(ctx context.Context, account *model.BrokerAccount) error
	UpdateSessionCache(ctx context.Context, id uint, encrypted string, updatedAt time.Time) error
	ClearSessionCache(ctx context.Context, id uint) error
	ListByUser(ctx context.Context, userID uint) ([]model.BrokerAccount, error)
}

type AuditLogRepository interface {
	Create(ctx context.Context, entry *model.AuditLog) error
	ListByUser(ctx context.Context, userID uint, limit, offset int) ([]model.AuditLog, error)
}

type SystemSettingRepository interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}

// BrokerAPI is the upstream trading API surface used by the services.
// *broker.Client implements it.
type BrokerAPI interface {
	CreateSession(ctx context.Context, environment, apiKey, identifier, password string) (broker.SessionTokens, *broker.SessionDetails, error)
	GetAccounts(ctx context.Context, environment string, tokens broker.SessionTokens) ([]broker.Account, error)
	GetPositions(ctx context.Context, environment string, tokens broker.SessionTokens) ([]broker.Position, error)
	GetActivityHistory(ctx context.Context, environment string, tokens broker.SessionTokens, from, to string) ([]broker.Activity, error)
	GetMarkets(ctx context.Context, environment string, tokens broker.SessionTokens, epics []string) ([]broker.MarketSnapshot, error)
	PlaceOrder(ctx context.Context, environment string, tokens broker.SessionTokens, ticket broker.OrderTicket) (*broker.OrderConfirmation, error)
}
