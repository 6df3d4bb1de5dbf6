package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/finbridge/tradegate/internal/broker"
	apperrors "github.com/finbridge/tradegate/internal/errors"
	"github.com/finbridge/tradegate/internal/model"
	ctxutil "github.com/finbridge/tradegate/pkg/context"
	"github.com/finbridge/tradegate/pkg/logger"
	"gorm.io/gorm"
)

const sessionPayloadKind = "session_tokens"

// sessionPayload is the plaintext stored inside the encrypted session
// cache column. The kind tag guards against a decrypt that yields valid
// JSON of the wrong shape.
type sessionPayload struct {
	Kind          string `json:"kind"`
	CST           string `json:"cst"`
	SecurityToken string `json:"security_token"`
}

// BrokerSessionService caches broker session tokens per linked account.
// Tokens live encrypted in the account row and are reused until the TTL
// lapses, the caller forces a refresh, or the broker rejects them.
type BrokerSessionService struct {
	accounts   BrokerAccountRepository
	vault      *Vault
	api        BrokerAPI
	sessionTTL time.Duration
}

func NewBrokerSessionService(accounts BrokerAccountRepository, vault *Vault, api BrokerAPI, sessionTTL time.Duration) *BrokerSessionService {
	return &BrokerSessionService{
		accounts:   accounts,
		vault:      vault,
		api:        api,
		sessionTTL: sessionTTL,
	}
}

// GetValidSession returns usable session tokens for the user's account
// in the given environment, creating a broker session only when the
// cache can't serve one. A corrupt cached envelope is treated as a
// cache miss, not an error.
func (s *BrokerSessionService) GetValidSession(ctx context.Context, userID uint, environment string, forceRefresh bool) (broker.SessionTokens, *model.BrokerAccount, error) {
	ctx = ctxutil.NewContextWithRequest(ctx, "service", "GetValidSession")

	account, err := s.accounts.GetByUserAndEnv(ctx, userID, environment)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return broker.SessionTokens{}, nil, apperrors.ErrAccountNotFound
		}
		return broker.SessionTokens{}, nil, apperrors.WrapError(apperrors.ErrInternal, err)
	}

	if !forceRefresh {
		if tokens, ok := s.cachedTokens(ctx, account); ok {
			return tokens, account, nil
		}
	}

	tokens, err := s.createSession(ctx, account, environment)
	if err != nil {
		return broker.SessionTokens{}, nil, err
	}

	return tokens, account, nil
}

// cachedTokens tries to serve tokens from the encrypted cache column.
func (s *BrokerSessionService) cachedTokens(ctx context.Context, account *model.BrokerAccount) (broker.SessionTokens, bool) {
	if account.EncryptedSessionTokens == nil || account.SessionUpdatedAt == nil {
		return broker.SessionTokens{}, false
	}
	if time.Since(*account.SessionUpdatedAt) >= s.sessionTTL {
		return broker.SessionTokens{}, false
	}

	plaintext, err := s.vault.Decrypt(*account.EncryptedSessionTokens)
	if err != nil {
		logger.WarnWithContext(ctx, "Cached broker session unreadable, falling through to fresh login").
			Uint("account_id", account.ID).
			Err(err).
			Log()
		return broker.SessionTokens{}, false
	}

	var payload sessionPayload
	if err := json.Unmarshal([]byte(plaintext), &payload); err != nil || payload.Kind != sessionPayloadKind {
		logger.WarnWithContext(ctx, "Cached broker session has unexpected shape").
			Uint("account_id", account.ID).
			Log()
		return broker.SessionTokens{}, false
	}

	return broker.SessionTokens{
		CST:           payload.CST,
		SecurityToken: payload.SecurityToken,
	}, true
}

// createSession logs in at the broker with the account's decrypted
// credentials and stores the fresh tokens back into the cache.
func (s *BrokerSessionService) createSession(ctx context.Context, account *model.BrokerAccount, environment string) (broker.SessionTokens, error) {
	apiKey, err := s.vault.Decrypt(account.EncryptedAPIKey)
	if err != nil {
		return broker.SessionTokens{}, err
	}
	identifier, err := s.vault.Decrypt(account.EncryptedIdentifier)
	if err != nil {
		return broker.SessionTokens{}, err
	}

	if account.EncryptedAPIPassword == nil {
		return broker.SessionTokens{}, apperrors.ErrMissingCredential
	}
	apiPassword, err := s.vault.Decrypt(*account.EncryptedAPIPassword)
	if err != nil {
		return broker.SessionTokens{}, err
	}

	tokens, _, err := s.api.CreateSession(ctx, environment, apiKey, identifier, apiPassword)
	if err != nil {
		return broker.SessionTokens{}, err
	}

	if err := s.storeTokens(ctx, account, tokens); err != nil {
		// the session itself is good; a cache write failure just means
		// the next request logs in again
		logger.WarnWithContext(ctx, "Failed to cache broker session").
			Uint("account_id", account.ID).
			Err(err).
			Log()
	}

	return tokens, nil
}

func (s *BrokerSessionService) storeTokens(ctx context.Context, account *model.BrokerAccount, tokens broker.SessionTokens) error {
	raw, err := json.Marshal(sessionPayload{
		Kind:          sessionPayloadKind,
		CST:           tokens.CST,
		SecurityToken: tokens.SecurityToken,
	})
	if err != nil {
		return err
	}

	envelope, err := s.vault.Encrypt(string(raw))
	if err != nil {
		return err
	}

	now := time.Now()
	if err := s.accounts.UpdateSessionCache(ctx, account.ID, envelope, now); err != nil {
		return err
	}

	account.EncryptedSessionTokens = &envelope
	account.SessionUpdatedAt = &now
	return nil
}

// Invalidate drops the cached session for the user's account.
func (s *BrokerSessionService) Invalidate(ctx context.Context, userID uint, environment string) error {
	ctx = ctxutil.NewContextWithRequest(ctx, "service", "Invalidate")

	account, err := s.accounts.GetByUserAndEnv(ctx, userID, environment)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.ErrAccountNotFound
		}
		return apperrors.WrapError(apperrors.ErrInternal, err)
	}

	return s.accounts.ClearSessionCache(ctx, account.ID)
}

// WithSession runs fn with valid session tokens, retrying exactly once
// with a forced refresh when the broker reports the session expired.
func (s *BrokerSessionService) WithSession(ctx context.Context, userID uint, environment string, fn func(tokens broker.SessionTokens) error) error {
	tokens, _, err := s.GetValidSession(ctx, userID, environment, false)
	if err != nil {
		return err
	}

	err = fn(tokens)
	if !errors.Is(err, apperrors.ErrBrokerSessionExpired) {
		return err
	}

	logger.InfoWithContext(ctx, "Broker session rejected, refreshing once").
		Uint("user_id", userID).
		String("environment", environment).
		Log()

	tokens, _, err = s.GetValidSession(ctx, userID, environment, true)
	if err != nil {
		return err
	}

	return fn(tokens)
}
