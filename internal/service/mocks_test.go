package service

import (
	"context"
	"time"

	"github.com/finbridge/tradegate/internal/broker"
	"github.com/finbridge/tradegate/internal/model"
	"github.com/stretchr/testify/mock"
)

type mockUserRepo struct {
	mock.Mock
}

func (m *mockUserRepo) GetByID(ctx context.Context, id uint) (*model.User, error) {
	args := m.Called(ctx, id)
	if user := args.Get(0); user != nil {
		return user.(*model.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockUserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	args := m.Called(ctx, email)
	if user := args.Get(0); user != nil {
		return user.(*model.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockUserRepo) Create(ctx context.Context, user *model.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *mockUserRepo) UpdatePassword(ctx context.Context, id uint, passwordHash string) error {
	args := m.Called(ctx, id, passwordHash)
	return args.Error(0)
}

func (m *mockUserRepo) IncrementTokenVersion(ctx context.Context, id uint) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockUserRepo) UpdateLastLogin(ctx context.Context, id uint) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type mockRefreshTokenRepo struct {
	mock.Mock
}

func (m *mockRefreshTokenRepo) Create(ctx context.Context, token *model.RefreshToken) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

func (m *mockRefreshTokenRepo) GetByHash(ctx context.Context, tokenHash string) (*model.RefreshToken, error) {
	args := m.Called(ctx, tokenHash)
	if row := args.Get(0); row != nil {
		return row.(*model.RefreshToken), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockRefreshTokenRepo) RevokeIfActive(ctx context.Context, id uint) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *mockRefreshTokenRepo) RevokeAllForUser(ctx context.Context, userID uint) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockRefreshTokenRepo) DeleteExpired(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

type mockBrokerAccountRepo struct {
	mock.Mock
}

func (m *mockBrokerAccountRepo) GetByUserAndEnv(ctx context.Context, userID uint, environment string) (*model.BrokerAccount, error) {
	args := m.Called(ctx, userID, environment)
	if account := args.Get(0); account != nil {
		return account.(*model.BrokerAccount), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockBrokerAccountRepo) GetByAPIKeyHash(ctx context.Context, apiKeyHash string) (*model.BrokerAccount, error) {
	args := m.Called(ctx, apiKeyHash)
	if account := args.Get(0); account != nil {
		return account.(*model.BrokerAccount), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockBrokerAccountRepo) Upsert(ctx context.Context, account *model.BrokerAccount) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

func (m *mockBrokerAccountRepo) UpdateSessionCache(ctx context.Context, id uint, encrypted string, updatedAt time.Time) error {
	args := m.Called(ctx, id, encrypted, updatedAt)
	return args.Error(0)
}

func (m *mockBrokerAccountRepo) ClearSessionCache(ctx context.Context, id uint) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockBrokerAccountRepo) ListByUser(ctx context.Context, userID uint) ([]model.BrokerAccount, error) {
	args := m.Called(ctx, userID)
	if accounts := args.Get(0); accounts != nil {
		return accounts.([]model.BrokerAccount), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockAuditLogRepo struct {
	mock.Mock
}

func (m *mockAuditLogRepo) Create(ctx context.Context, entry *model.AuditLog) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *mockAuditLogRepo) ListByUser(ctx context.Context, userID uint, limit, offset int) ([]model.AuditLog, error) {
	args := m.Called(ctx, userID, limit, offset)
	if entries := args.Get(0); entries != nil {
		return entries.([]model.AuditLog), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockSystemSettingRepo struct {
	mock.Mock
}

func (m *mockSystemSettingRepo) Get(ctx context.Context, key string) (string, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Error(1)
}

func (m *mockSystemSettingRepo) Set(ctx context.Context, key, value string) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

type mockBrokerAPI struct {
	mock.Mock
}

func (m *mockBrokerAPI) CreateSession(ctx context.Context, environment, apiKey, identifier, password string) (broker.SessionTokens, *broker.SessionDetails, error) {
	args := m.Called(ctx, environment, apiKey, identifier, password)
	var details *broker.SessionDetails
	if d := args.Get(1); d != nil {
		details = d.(*broker.SessionDetails)
	}
	return args.Get(0).(broker.SessionTokens), details, args.Error(2)
}

func (m *mockBrokerAPI) GetAccounts(ctx context.Context, environment string, tokens broker.SessionTokens) ([]broker.Account, error) {
	args := m.Called(ctx, environment, tokens)
	if accounts := args.Get(0); accounts != nil {
		return accounts.([]broker.Account), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockBrokerAPI) GetPositions(ctx context.Context, environment string, tokens broker.SessionTokens) ([]broker.Position, error) {
	args := m.Called(ctx, environment, tokens)
	if positions := args.Get(0); positions != nil {
		return positions.([]broker.Position), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockBrokerAPI) GetActivityHistory(ctx context.Context, environment string, tokens broker.SessionTokens, from, to string) ([]broker.Activity, error) {
	args := m.Called(ctx, environment, tokens, from, to)
	if activities := args.Get(0); activities != nil {
		return activities.([]broker.Activity), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockBrokerAPI) GetMarkets(ctx context.Context, environment string, tokens broker.SessionTokens, epics []string) ([]broker.MarketSnapshot, error) {
	args := m.Called(ctx, environment, tokens, epics)
	if snapshots := args.Get(0); snapshots != nil {
		return snapshots.([]broker.MarketSnapshot), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockBrokerAPI) PlaceOrder(ctx context.Context, environment string, tokens broker.SessionTokens, ticket broker.OrderTicket) (*broker.OrderConfirmation, error) {
	args := m.Called(ctx, environment, tokens, ticket)
	if confirmation := args.Get(0); confirmation != nil {
		return confirmation.(*broker.OrderConfirmation), args.Error(1)
	}
	return nil, args.Error(1)
}
