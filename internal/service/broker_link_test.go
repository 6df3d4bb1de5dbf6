package service

import (
	"context"
	"testing"

	"github.com/finbridge/tradegate/internal/broker"
	"github.com/finbridge/tradegate/internal/constants"
	apperrors "github.com/finbridge/tradegate/internal/errors"
	"github.com/finbridge/tradegate/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type linkFixture struct {
	accounts *mockBrokerAccountRepo
	audits   *mockAuditLogRepo
	api      *mockBrokerAPI
	vault    *Vault
	svc      *BrokerLinkService
}

func newLinkFixture() *linkFixture {
	f := &linkFixture{
		accounts: new(mockBrokerAccountRepo),
		audits:   new(mockAuditLogRepo),
		api:      new(mockBrokerAPI),
		vault:    NewVault("test-master-key-0123456789abcdef"),
	}
	f.svc = NewBrokerLinkService(f.accounts, f.audits, f.vault, f.api)
	return f
}

func TestConnectValidatesBeforePersisting(t *testing.T) {
	f := newLinkFixture()

	f.api.On("CreateSession", mock.Anything, "demo", "api-key-1", "trader@example.com", "broker-pw").
		Return(broker.SessionTokens{CST: "cst", SecurityToken: "sec"}, &broker.SessionDetails{AccountID: "ACC9"}, nil)
	f.accounts.On("GetByAPIKeyHash", mock.Anything, HashAPIKey("api-key-1")).Return(nil, gorm.ErrRecordNotFound)
	f.accounts.On("Upsert", mock.Anything, mock.MatchedBy(func(a *model.BrokerAccount) bool {
		return a.UserID == 7 &&
			a.Environment == "demo" &&
			a.APIKeyHash == HashAPIKey("api-key-1") &&
			a.EncryptedAPIKey != "api-key-1" &&
			a.BrokerAccountID != nil && *a.BrokerAccountID == "ACC9" &&
			a.EncryptedSessionTokens != nil
	})).Return(nil)
	f.audits.On("Create", mock.Anything, mock.MatchedBy(func(e *model.AuditLog) bool {
		return e.Action == constants.ActionBrokerConnect
	})).Return(nil)

	account, err := f.svc.Connect(context.Background(), 7, "demo", "api-key-1", "trader@example.com", "broker-pw", ClientMeta{})

	require.NoError(t, err)
	assert.NotNil(t, account.EncryptedSessionTokens)

	// stored credentials decrypt back to the originals
	apiKey, err := f.vault.Decrypt(account.EncryptedAPIKey)
	require.NoError(t, err)
	assert.Equal(t, "api-key-1", apiKey)

	f.accounts.AssertExpectations(t)
	f.audits.AssertExpectations(t)
}

func TestConnectRejectedByBrokerStoresNothing(t *testing.T) {
	f := newLinkFixture()

	f.api.On("CreateSession", mock.Anything, "demo", "bad-key", "trader@example.com", "wrong").
		Return(broker.SessionTokens{}, nil, apperrors.ErrInvalidCredentials)
	f.audits.On("Create", mock.Anything, mock.MatchedBy(func(e *model.AuditLog) bool {
		return e.Action == constants.ActionBrokerConnFail
	})).Return(nil)

	_, err := f.svc.Connect(context.Background(), 7, "demo", "bad-key", "trader@example.com", "wrong", ClientMeta{})

	assert.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
	f.accounts.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
	f.accounts.AssertNotCalled(t, "GetByAPIKeyHash", mock.Anything, mock.Anything)
}

func TestConnectCredentialsLinkedToAnotherUser(t *testing.T) {
	f := newLinkFixture()

	f.api.On("CreateSession", mock.Anything, "demo", "shared-key", "a@example.com", "pw").
		Return(broker.SessionTokens{CST: "cst", SecurityToken: "sec"}, nil, nil)
	f.accounts.On("GetByAPIKeyHash", mock.Anything, HashAPIKey("shared-key")).
		Return(&model.BrokerAccount{Model: gorm.Model{ID: 5}, UserID: 99, Environment: "demo"}, nil)
	f.audits.On("Create", mock.Anything, mock.Anything).Return(nil)

	_, err := f.svc.Connect(context.Background(), 7, "demo", "shared-key", "a@example.com", "pw", ClientMeta{})

	assert.ErrorIs(t, err, apperrors.ErrCredentialConflict)
	f.accounts.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
}

func TestConnectRelinkSameUserSameEnv(t *testing.T) {
	f := newLinkFixture()

	f.api.On("CreateSession", mock.Anything, "demo", "api-key-1", "trader@example.com", "new-pw").
		Return(broker.SessionTokens{CST: "cst", SecurityToken: "sec"}, nil, nil)
	f.accounts.On("GetByAPIKeyHash", mock.Anything, HashAPIKey("api-key-1")).
		Return(&model.BrokerAccount{Model: gorm.Model{ID: 5}, UserID: 7, Environment: "demo"}, nil)
	f.accounts.On("Upsert", mock.Anything, mock.Anything).Return(nil)
	f.audits.On("Create", mock.Anything, mock.Anything).Return(nil)

	_, err := f.svc.Connect(context.Background(), 7, "demo", "api-key-1", "trader@example.com", "new-pw", ClientMeta{})

	assert.NoError(t, err)
	f.accounts.AssertExpectations(t)
}

func TestConnectInvalidEnvironment(t *testing.T) {
	f := newLinkFixture()

	_, err := f.svc.Connect(context.Background(), 7, "staging", "k", "i", "p", ClientMeta{})

	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	f.api.AssertNotCalled(t, "CreateSession", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
