package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/finbridge/tradegate/internal/broker"
	apperrors "github.com/finbridge/tradegate/internal/errors"
	"github.com/finbridge/tradegate/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type sessionFixture struct {
	accounts *mockBrokerAccountRepo
	api      *mockBrokerAPI
	vault    *Vault
	svc      *BrokerSessionService
}

func newSessionFixture() *sessionFixture {
	f := &sessionFixture{
		accounts: new(mockBrokerAccountRepo),
		api:      new(mockBrokerAPI),
		vault:    NewVault("test-master-key-0123456789abcdef"),
	}
	f.svc = NewBrokerSessionService(f.accounts, f.vault, f.api, 6*time.Hour)
	return f
}

// linkedAccount builds an account row with encrypted credentials and,
// optionally, a cached session of the given age.
func (f *sessionFixture) linkedAccount(t *testing.T, cacheAge time.Duration, withCache bool) *model.BrokerAccount {
	t.Helper()

	encKey, err := f.vault.Encrypt("api-key-plain")
	require.NoError(t, err)
	encID, err := f.vault.Encrypt("identifier-plain")
	require.NoError(t, err)
	encPW, err := f.vault.Encrypt("api-password-plain")
	require.NoError(t, err)

	account := &model.BrokerAccount{
		Model:                gorm.Model{ID: 11},
		UserID:               7,
		Environment:          "demo",
		EncryptedAPIKey:      encKey,
		EncryptedIdentifier:  encID,
		EncryptedAPIPassword: &encPW,
		APIKeyHash:           HashAPIKey("api-key-plain"),
	}

	if withCache {
		raw, err := json.Marshal(sessionPayload{
			Kind:          sessionPayloadKind,
			CST:           "cached-cst",
			SecurityToken: "cached-sec",
		})
		require.NoError(t, err)
		envelope, err := f.vault.Encrypt(string(raw))
		require.NoError(t, err)
		updatedAt := time.Now().Add(-cacheAge)
		account.EncryptedSessionTokens = &envelope
		account.SessionUpdatedAt = &updatedAt
	}

	return account
}

func TestYoungCacheServedWithoutBrokerCall(t *testing.T) {
	f := newSessionFixture()
	account := f.linkedAccount(t, 30*time.Minute, true)

	f.accounts.On("GetByUserAndEnv", mock.Anything, uint(7), "demo").Return(account, nil)

	tokens, _, err := f.svc.GetValidSession(context.Background(), 7, "demo", false)

	require.NoError(t, err)
	assert.Equal(t, "cached-cst", tokens.CST)
	assert.Equal(t, "cached-sec", tokens.SecurityToken)
	f.api.AssertNotCalled(t, "CreateSession", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestStaleCacheTriggersFreshLogin(t *testing.T) {
	f := newSessionFixture()
	account := f.linkedAccount(t, 7*time.Hour, true)

	f.accounts.On("GetByUserAndEnv", mock.Anything, uint(7), "demo").Return(account, nil)
	f.api.On("CreateSession", mock.Anything, "demo", "api-key-plain", "identifier-plain", "api-password-plain").
		Return(broker.SessionTokens{CST: "fresh-cst", SecurityToken: "fresh-sec"}, &broker.SessionDetails{AccountID: "ACC1"}, nil).
		Once()
	f.accounts.On("UpdateSessionCache", mock.Anything, uint(11), mock.Anything, mock.Anything).Return(nil)

	tokens, _, err := f.svc.GetValidSession(context.Background(), 7, "demo", false)

	require.NoError(t, err)
	assert.Equal(t, "fresh-cst", tokens.CST)
	f.api.AssertExpectations(t)
	f.accounts.AssertExpectations(t)
}

func TestForceRefreshSkipsYoungCache(t *testing.T) {
	f := newSessionFixture()
	account := f.linkedAccount(t, time.Minute, true)

	f.accounts.On("GetByUserAndEnv", mock.Anything, uint(7), "demo").Return(account, nil)
	f.api.On("CreateSession", mock.Anything, "demo", "api-key-plain", "identifier-plain", "api-password-plain").
		Return(broker.SessionTokens{CST: "forced-cst", SecurityToken: "forced-sec"}, nil, nil).
		Once()
	f.accounts.On("UpdateSessionCache", mock.Anything, uint(11), mock.Anything, mock.Anything).Return(nil)

	tokens, _, err := f.svc.GetValidSession(context.Background(), 7, "demo", true)

	require.NoError(t, err)
	assert.Equal(t, "forced-cst", tokens.CST)
	f.api.AssertExpectations(t)
}

func TestCorruptCacheFallsThroughToLogin(t *testing.T) {
	f := newSessionFixture()
	account := f.linkedAccount(t, time.Minute, true)
	garbage := "zz:not:an:envelope"
	account.EncryptedSessionTokens = &garbage

	f.accounts.On("GetByUserAndEnv", mock.Anything, uint(7), "demo").Return(account, nil)
	f.api.On("CreateSession", mock.Anything, "demo", "api-key-plain", "identifier-plain", "api-password-plain").
		Return(broker.SessionTokens{CST: "recovered-cst", SecurityToken: "recovered-sec"}, nil, nil).
		Once()
	f.accounts.On("UpdateSessionCache", mock.Anything, uint(11), mock.Anything, mock.Anything).Return(nil)

	tokens, _, err := f.svc.GetValidSession(context.Background(), 7, "demo", false)

	require.NoError(t, err)
	assert.Equal(t, "recovered-cst", tokens.CST)
}

func TestMissingAPIPassword(t *testing.T) {
	f := newSessionFixture()
	account := f.linkedAccount(t, 0, false)
	account.EncryptedAPIPassword = nil

	f.accounts.On("GetByUserAndEnv", mock.Anything, uint(7), "demo").Return(account, nil)

	_, _, err := f.svc.GetValidSession(context.Background(), 7, "demo", false)

	assert.ErrorIs(t, err, apperrors.ErrMissingCredential)
	f.api.AssertNotCalled(t, "CreateSession", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestNoLinkedAccountForEnvironment(t *testing.T) {
	f := newSessionFixture()

	f.accounts.On("GetByUserAndEnv", mock.Anything, uint(7), "live").Return(nil, gorm.ErrRecordNotFound)

	_, _, err := f.svc.GetValidSession(context.Background(), 7, "live", false)

	// no silent fallback to another environment's account
	assert.ErrorIs(t, err, apperrors.ErrAccountNotFound)
}

func TestWithSessionRetriesOnceOnExpiry(t *testing.T) {
	f := newSessionFixture()
	account := f.linkedAccount(t, time.Minute, true)

	f.accounts.On("GetByUserAndEnv", mock.Anything, uint(7), "demo").Return(account, nil)
	f.api.On("CreateSession", mock.Anything, "demo", "api-key-plain", "identifier-plain", "api-password-plain").
		Return(broker.SessionTokens{CST: "fresh-cst", SecurityToken: "fresh-sec"}, nil, nil).
		Once()
	f.accounts.On("UpdateSessionCache", mock.Anything, uint(11), mock.Anything, mock.Anything).Return(nil)

	calls := 0
	err := f.svc.WithSession(context.Background(), 7, "demo", func(tokens broker.SessionTokens) error {
		calls++
		if tokens.CST == "cached-cst" {
			return apperrors.ErrBrokerSessionExpired
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	f.api.AssertExpectations(t)
}

func TestWithSessionDoesNotRetryTwice(t *testing.T) {
	f := newSessionFixture()
	account := f.linkedAccount(t, time.Minute, true)

	f.accounts.On("GetByUserAndEnv", mock.Anything, uint(7), "demo").Return(account, nil)
	f.api.On("CreateSession", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(broker.SessionTokens{CST: "fresh-cst", SecurityToken: "fresh-sec"}, nil, nil).
		Once()
	f.accounts.On("UpdateSessionCache", mock.Anything, uint(11), mock.Anything, mock.Anything).Return(nil)

	calls := 0
	err := f.svc.WithSession(context.Background(), 7, "demo", func(tokens broker.SessionTokens) error {
		calls++
		return apperrors.ErrBrokerSessionExpired
	})

	assert.ErrorIs(t, err, apperrors.ErrBrokerSessionExpired)
	assert.Equal(t, 2, calls)
}
