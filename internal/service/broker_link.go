package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/finbridge/tradegate/internal/constants"
	apperrors "github.com/finbridge/tradegate/internal/errors"
	"github.com/finbridge/tradegate/internal/model"
	ctxutil "github.com/finbridge/tradegate/pkg/context"
	"github.com/finbridge/tradegate/pkg/logger"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// BrokerLinkService connects a user's broker credentials to their
// dashboard account. Credentials are proven against the broker before
// anything is stored, and the session created during validation warms
// the session cache.
type BrokerLinkService struct {
	accounts BrokerAccountRepository
	audits   AuditLogRepository
	vault    *Vault
	api      BrokerAPI
}

func NewBrokerLinkService(accounts BrokerAccountRepository, audits AuditLogRepository, vault *Vault, api BrokerAPI) *BrokerLinkService {
	return &BrokerLinkService{
		accounts: accounts,
		audits:   audits,
		vault:    vault,
		api:      api,
	}
}

// Connect validates, then checks uniqueness, then persists. Validation
// comes first so invalid credentials never reach the database, and a
// credential conflict is only revealed for keys that actually work.
func (s *BrokerLinkService) Connect(ctx context.Context, userID uint, environment, apiKey, identifier, apiPassword string, meta ClientMeta) (*model.BrokerAccount, error) {
	ctx = ctxutil.NewContextWithRequest(ctx, "service", "Connect")

	if !constants.ValidEnvironment(environment) {
		return nil, apperrors.ErrInvalidInput
	}

	tokens, details, err := s.api.CreateSession(ctx, environment, apiKey, identifier, apiPassword)
	if err != nil {
		s.auditConnect(ctx, userID, constants.ActionBrokerConnFail, environment, meta)
		return nil, err
	}

	apiKeyHash := HashAPIKey(apiKey)
	existing, err := s.accounts.GetByAPIKeyHash(ctx, apiKeyHash)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.WrapError(apperrors.ErrInternal, err)
	}
	if existing != nil && (existing.UserID != userID || existing.Environment != environment) {
		s.auditConnect(ctx, userID, constants.ActionBrokerConnFail, environment, meta)
		return nil, apperrors.ErrCredentialConflict
	}

	encKey, err := s.vault.Encrypt(apiKey)
	if err != nil {
		return nil, err
	}
	encIdentifier, err := s.vault.Encrypt(identifier)
	if err != nil {
		return nil, err
	}
	encPassword, err := s.vault.Encrypt(apiPassword)
	if err != nil {
		return nil, err
	}

	account := &model.BrokerAccount{
		UserID:               userID,
		Environment:          environment,
		EncryptedAPIKey:      encKey,
		APIKeyHash:           apiKeyHash,
		EncryptedIdentifier:  encIdentifier,
		EncryptedAPIPassword: &encPassword,
	}
	if details != nil && details.AccountID != "" {
		account.BrokerAccountID = &details.AccountID
	}

	// the validation session is perfectly good, cache it
	if raw, err := json.Marshal(sessionPayload{
		Kind:          sessionPayloadKind,
		CST:           tokens.CST,
		SecurityToken: tokens.SecurityToken,
	}); err == nil {
		if envelope, err := s.vault.Encrypt(string(raw)); err == nil {
			now := time.Now()
			account.EncryptedSessionTokens = &envelope
			account.SessionUpdatedAt = &now
		}
	}

	if err := s.accounts.Upsert(ctx, account); err != nil {
		return nil, apperrors.WrapError(apperrors.ErrInternal, err)
	}

	s.auditConnect(ctx, userID, constants.ActionBrokerConnect, environment, meta)

	logger.InfoWithContext(ctx, "Broker account linked").
		Uint("user_id", userID).
		String("environment", environment).
		Log()

	return account, nil
}

// ListAccounts returns the user's linked accounts. Callers get the rows
// as stored; credential columns stay encrypted.
func (s *BrokerLinkService) ListAccounts(ctx context.Context, userID uint) ([]model.BrokerAccount, error) {
	ctx = ctxutil.NewContextWithRequest(ctx, "service", "ListAccounts")
	return s.accounts.ListByUser(ctx, userID)
}

func (s *BrokerLinkService) auditConnect(ctx context.Context, userID uint, action, environment string, meta ClientMeta) {
	raw, _ := json.Marshal(map[string]string{"environment": environment})
	entry := &model.AuditLog{
		UserID:    &userID,
		Action:    action,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
		Metadata:  datatypes.JSON(raw),
	}
	if err := s.audits.Create(ctx, entry); err != nil {
		logger.WarnWithContext(ctx, "Audit write failed").
			String("action", action).
			Err(err).
			Log()
	}
}
