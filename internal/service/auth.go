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
	"golang.org/x/crypto/bcrypt"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ClientMeta carries the request attributes recorded in the audit
// trail and on refresh token rows.
type ClientMeta struct {
	IPAddress string
	UserAgent string
}

// TokenPair is one issued session: a signed access token plus the
// opaque refresh token of the current rotation generation.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresIn  time.Duration
	RefreshExpiresAt time.Time
}

// AuthService owns user registration and the session token lifecycle.
type AuthService struct {
	users         UserRepository
	refreshTokens RefreshTokenRepository
	audits        AuditLogRepository
	tokens        *TokenService
}

func NewAuthService(users UserRepository, refreshTokens RefreshTokenRepository, audits AuditLogRepository, tokens *TokenService) *AuthService {
	return &AuthService{
		users:         users,
		refreshTokens: refreshTokens,
		audits:        audits,
		tokens:        tokens,
	}
}

// Register creates a user and signs them in.
func (s *AuthService) Register(ctx context.Context, email, password, fullName string, meta ClientMeta) (*model.User, *TokenPair, error) {
	ctx = ctxutil.NewContextWithRequest(ctx, "service", "Register")

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, nil, apperrors.ErrEmailExists
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, apperrors.WrapError(apperrors.ErrInternal, err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, nil, apperrors.WrapError(apperrors.ErrInternal, err)
	}

	hashStr := string(hash)
	user := &model.User{
		Email:        email,
		PasswordHash: &hashStr,
		FullName:     fullName,
		Role:         "user",
		TokenVersion: 1,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, nil, apperrors.WrapError(apperrors.ErrInternal, err)
	}

	pair, err := s.issuePair(ctx, user, meta)
	if err != nil {
		return nil, nil, err
	}

	s.audit(ctx, &user.ID, constants.ActionRegister, meta, map[string]interface{}{"email": email})

	logger.InfoWithContext(ctx, "User registered").
		Uint("user_id", user.ID).
		String("email", email).
		Log()

	return user, pair, nil
}

// Login verifies the password and issues a fresh token pair. Failures
// are audited whether or not the email exists, without revealing which
// case occurred to the caller.
func (s *AuthService) Login(ctx context.Context, email, password string, meta ClientMeta) (*model.User, *TokenPair, error) {
	ctx = ctxutil.NewContextWithRequest(ctx, "service", "Login")

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.audit(ctx, nil, constants.ActionLoginFailed, meta, map[string]interface{}{"email": email, "reason": "unknown_email"})
			return nil, nil, apperrors.ErrInvalidCredentials
		}
		return nil, nil, apperrors.WrapError(apperrors.ErrInternal, err)
	}

	if !user.HasPassword() {
		s.audit(ctx, &user.ID, constants.ActionLoginFailed, meta, map[string]interface{}{"reason": "no_password"})
		return nil, nil, apperrors.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte(password)); err != nil {
		s.audit(ctx, &user.ID, constants.ActionLoginFailed, meta, map[string]interface{}{"reason": "wrong_password"})
		return nil, nil, apperrors.ErrInvalidCredentials
	}

	pair, err := s.issuePair(ctx, user, meta)
	if err != nil {
		return nil, nil, err
	}

	if err := s.users.UpdateLastLogin(ctx, user.ID); err != nil {
		logger.WarnWithContext(ctx, "Failed to stamp last login").
			Uint("user_id", user.ID).
			Err(err).
			Log()
	}

	s.audit(ctx, &user.ID, constants.ActionLogin, meta, nil)

	logger.InfoWithContext(ctx, "User logged in").
		Uint("user_id", user.ID).
		Log()

	return user, pair, nil
}

// Refresh rotates the refresh token: the presented token is revoked
// atomically and a new pair is issued. Presenting an already revoked
// token is treated as theft evidence and revokes the user's entire
// chain.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string, meta ClientMeta) (*model.User, *TokenPair, error) {
	ctx = ctxutil.NewContextWithRequest(ctx, "service", "Refresh")

	row, err := s.refreshTokens.GetByHash(ctx, HashToken(refreshToken))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, apperrors.ErrInvalidRefreshToken
		}
		return nil, nil, apperrors.WrapError(apperrors.ErrInternal, err)
	}

	if time.Now().After(row.ExpiresAt) {
		return nil, nil, apperrors.ErrRefreshTokenExpired
	}

	if row.Revoked {
		return nil, nil, s.handleTokenReuse(ctx, row, meta)
	}

	rotated, err := s.refreshTokens.RevokeIfActive(ctx, row.ID)
	if err != nil {
		return nil, nil, apperrors.WrapError(apperrors.ErrInternal, err)
	}
	if !rotated {
		// lost the race to a concurrent refresh with the same token,
		// which is indistinguishable from replay
		return nil, nil, s.handleTokenReuse(ctx, row, meta)
	}

	user, err := s.users.GetByID(ctx, row.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, apperrors.ErrInvalidRefreshToken
		}
		return nil, nil, apperrors.WrapError(apperrors.ErrInternal, err)
	}

	pair, err := s.issuePair(ctx, user, meta)
	if err != nil {
		return nil, nil, err
	}

	s.audit(ctx, &user.ID, constants.ActionRefreshToken, meta, nil)

	return user, pair, nil
}

func (s *AuthService) handleTokenReuse(ctx context.Context, row *model.RefreshToken, meta ClientMeta) error {
	revoked, err := s.refreshTokens.RevokeAllForUser(ctx, row.UserID)
	if err != nil {
		logger.ErrorWithContext(ctx, "Failed to revoke token chain after reuse").
			Uint("user_id", row.UserID).
			Err(err).
			Log()
	}

	s.audit(ctx, &row.UserID, constants.ActionTokenReuse, meta, map[string]interface{}{
		"token_id":      row.ID,
		"revoked_count": revoked,
	})

	logger.WarnWithContext(ctx, "Refresh token reuse detected").
		Uint("user_id", row.UserID).
		Uint("token_id", row.ID).
		Log()

	return apperrors.ErrInvalidRefreshToken
}

// Logout revokes the presented refresh token. An unknown token is not
// an error; the session cookie is cleared either way.
func (s *AuthService) Logout(ctx context.Context, refreshToken string, meta ClientMeta) error {
	ctx = ctxutil.NewContextWithRequest(ctx, "service", "Logout")

	if refreshToken == "" {
		return nil
	}

	row, err := s.refreshTokens.GetByHash(ctx, HashToken(refreshToken))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return apperrors.WrapError(apperrors.ErrInternal, err)
	}

	if _, err := s.refreshTokens.RevokeIfActive(ctx, row.ID); err != nil {
		return apperrors.WrapError(apperrors.ErrInternal, err)
	}

	s.audit(ctx, &row.UserID, constants.ActionLogout, meta, nil)

	return nil
}

// ChangePassword verifies the current password, stores the new hash,
// bumps the token version and revokes all refresh tokens so every other
// session dies.
func (s *AuthService) ChangePassword(ctx context.Context, userID uint, currentPassword, newPassword string, meta ClientMeta) error {
	ctx = ctxutil.NewContextWithRequest(ctx, "service", "ChangePassword")

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.ErrUserNotFound
		}
		return apperrors.WrapError(apperrors.ErrInternal, err)
	}

	if user.HasPassword() {
		if err := bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte(currentPassword)); err != nil {
			return apperrors.ErrIncorrectPassword
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return apperrors.WrapError(apperrors.ErrInternal, err)
	}

	if err := s.users.UpdatePassword(ctx, userID, string(hash)); err != nil {
		return apperrors.WrapError(apperrors.ErrInternal, err)
	}
	if err := s.users.IncrementTokenVersion(ctx, userID); err != nil {
		return apperrors.WrapError(apperrors.ErrInternal, err)
	}
	if _, err := s.refreshTokens.RevokeAllForUser(ctx, userID); err != nil {
		return apperrors.WrapError(apperrors.ErrInternal, err)
	}

	s.audit(ctx, &userID, constants.ActionPasswordChanged, meta, nil)

	logger.InfoWithContext(ctx, "Password changed, sessions revoked").
		Uint("user_id", userID).
		Log()

	return nil
}

// ValidateAccessClaims checks parsed claims against the current user
// row. A stale token_version means the token was issued before a
// password change.
func (s *AuthService) ValidateAccessClaims(ctx context.Context, claims *AccessClaims) (*model.User, error) {
	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrUnauthorized
		}
		return nil, apperrors.WrapError(apperrors.ErrInternal, err)
	}

	if user.TokenVersion != claims.TokenVersion {
		return nil, apperrors.ErrUnauthorized
	}

	return user, nil
}

func (s *AuthService) issuePair(ctx context.Context, user *model.User, meta ClientMeta) (*TokenPair, error) {
	accessToken, err := s.tokens.GenerateAccessToken(user)
	if err != nil {
		return nil, err
	}

	refreshToken, tokenHash, err := s.tokens.GenerateRefreshToken()
	if err != nil {
		return nil, err
	}

	expiresAt := time.Now().Add(s.tokens.RefreshTTL())
	row := &model.RefreshToken{
		UserID:    user.ID,
		TokenHash: tokenHash,
		ExpiresAt: expiresAt,
	}
	if meta.UserAgent != "" {
		row.DeviceInfo = &meta.UserAgent
	}
	if meta.IPAddress != "" {
		row.IPAddress = &meta.IPAddress
	}

	if err := s.refreshTokens.Create(ctx, row); err != nil {
		return nil, apperrors.WrapError(apperrors.ErrInternal, err)
	}

	return &TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		AccessExpiresIn:  s.tokens.AccessTTL(),
		RefreshExpiresAt: expiresAt,
	}, nil
}

// audit writes one trail entry. Failures are logged, never propagated.
func (s *AuthService) audit(ctx context.Context, userID *uint, action string, meta ClientMeta, extra map[string]interface{}) {
	entry := &model.AuditLog{
		UserID:    userID,
		Action:    action,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
	}
	if len(extra) > 0 {
		if raw, err := json.Marshal(extra); err == nil {
			entry.Metadata = datatypes.JSON(raw)
		}
	}

	if err := s.audits.Create(ctx, entry); err != nil {
		logger.WarnWithContext(ctx, "Audit write failed").
			String("action", action).
			Err(err).
			Log()
	}
}
