package service

import (
	"context"
	"testing"
	"time"

	"github.com/finbridge/tradegate/internal/constants"
	apperrors "github.com/finbridge/tradegate/internal/errors"
	"github.com/finbridge/tradegate/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type authFixture struct {
	users  *mockUserRepo
	tokens *mockRefreshTokenRepo
	audits *mockAuditLogRepo
	svc    *AuthService
}

func newAuthFixture() *authFixture {
	f := &authFixture{
		users:  new(mockUserRepo),
		tokens: new(mockRefreshTokenRepo),
		audits: new(mockAuditLogRepo),
	}
	f.svc = NewAuthService(f.users, f.tokens, f.audits, testTokenService())
	return f
}

func hashedUser(id uint, email, password string) *model.User {
	hash, _ := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	hashStr := string(hash)
	return &model.User{
		Model:        gorm.Model{ID: id},
		Email:        email,
		PasswordHash: &hashStr,
		Role:         "user",
		TokenVersion: 1,
	}
}

func TestRegisterNewUser(t *testing.T) {
	f := newAuthFixture()
	ctx := context.Background()

	f.users.On("GetByEmail", mock.Anything, "new@example.com").Return(nil, gorm.ErrRecordNotFound)
	f.users.On("Create", mock.Anything, mock.MatchedBy(func(u *model.User) bool {
		return u.Email == "new@example.com" && u.HasPassword() && u.Role == "user"
	})).Return(nil)
	f.tokens.On("Create", mock.Anything, mock.Anything).Return(nil)
	f.audits.On("Create", mock.Anything, mock.MatchedBy(func(e *model.AuditLog) bool {
		return e.Action == constants.ActionRegister
	})).Return(nil)

	user, pair, err := f.svc.Register(ctx, "new@example.com", "swordfish1", "New Trader", ClientMeta{IPAddress: "1.2.3.4"})

	require.NoError(t, err)
	assert.Equal(t, "new@example.com", user.Email)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	f.users.AssertExpectations(t)
	f.audits.AssertExpectations(t)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	f := newAuthFixture()

	f.users.On("GetByEmail", mock.Anything, "taken@example.com").
		Return(hashedUser(7, "taken@example.com", "x"), nil)

	_, _, err := f.svc.Register(context.Background(), "taken@example.com", "swordfish1", "", ClientMeta{})

	assert.ErrorIs(t, err, apperrors.ErrEmailExists)
	f.users.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestLoginSuccessIsAudited(t *testing.T) {
	f := newAuthFixture()
	user := hashedUser(7, "trader@example.com", "correct-horse")

	f.users.On("GetByEmail", mock.Anything, "trader@example.com").Return(user, nil)
	f.users.On("UpdateLastLogin", mock.Anything, uint(7)).Return(nil)
	f.tokens.On("Create", mock.Anything, mock.Anything).Return(nil)
	f.audits.On("Create", mock.Anything, mock.MatchedBy(func(e *model.AuditLog) bool {
		return e.Action == constants.ActionLogin && e.UserID != nil && *e.UserID == 7
	})).Return(nil)

	_, pair, err := f.svc.Login(context.Background(), "trader@example.com", "correct-horse", ClientMeta{IPAddress: "10.0.0.1"})

	require.NoError(t, err)
	assert.NotEmpty(t, pair.RefreshToken)
	f.audits.AssertExpectations(t)
}

func TestLoginWrongPassword(t *testing.T) {
	f := newAuthFixture()
	user := hashedUser(7, "trader@example.com", "correct-horse")

	f.users.On("GetByEmail", mock.Anything, "trader@example.com").Return(user, nil)
	f.audits.On("Create", mock.Anything, mock.MatchedBy(func(e *model.AuditLog) bool {
		return e.Action == constants.ActionLoginFailed
	})).Return(nil)

	_, _, err := f.svc.Login(context.Background(), "trader@example.com", "wrong", ClientMeta{})

	assert.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
	f.tokens.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	f.audits.AssertExpectations(t)
}

func TestLoginUnknownEmailSameError(t *testing.T) {
	f := newAuthFixture()

	f.users.On("GetByEmail", mock.Anything, "ghost@example.com").Return(nil, gorm.ErrRecordNotFound)
	f.audits.On("Create", mock.Anything, mock.Anything).Return(nil)

	_, _, err := f.svc.Login(context.Background(), "ghost@example.com", "whatever", ClientMeta{})

	// same error as a wrong password, no account enumeration
	assert.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
}

func TestRefreshRotatesExactlyOnce(t *testing.T) {
	f := newAuthFixture()
	user := hashedUser(7, "trader@example.com", "pw")
	refreshToken := "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	row := &model.RefreshToken{
		Model:     gorm.Model{ID: 3},
		UserID:    7,
		TokenHash: HashToken(refreshToken),
		ExpiresAt: time.Now().Add(time.Hour),
	}

	f.tokens.On("GetByHash", mock.Anything, row.TokenHash).Return(row, nil)
	f.tokens.On("RevokeIfActive", mock.Anything, uint(3)).Return(true, nil).Once()
	f.users.On("GetByID", mock.Anything, uint(7)).Return(user, nil)
	f.tokens.On("Create", mock.Anything, mock.MatchedBy(func(r *model.RefreshToken) bool {
		return r.UserID == 7 && r.TokenHash != row.TokenHash
	})).Return(nil)
	f.audits.On("Create", mock.Anything, mock.MatchedBy(func(e *model.AuditLog) bool {
		return e.Action == constants.ActionRefreshToken
	})).Return(nil)

	_, pair, err := f.svc.Refresh(context.Background(), refreshToken, ClientMeta{})

	require.NoError(t, err)
	assert.NotEqual(t, refreshToken, pair.RefreshToken)
	f.tokens.AssertExpectations(t)
}

func TestRefreshReuseRevokesChain(t *testing.T) {
	f := newAuthFixture()
	refreshToken := "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	row := &model.RefreshToken{
		Model:     gorm.Model{ID: 4},
		UserID:    9,
		TokenHash: HashToken(refreshToken),
		ExpiresAt: time.Now().Add(time.Hour),
		Revoked:   true,
	}

	f.tokens.On("GetByHash", mock.Anything, row.TokenHash).Return(row, nil)
	f.tokens.On("RevokeAllForUser", mock.Anything, uint(9)).Return(int64(2), nil)
	f.audits.On("Create", mock.Anything, mock.MatchedBy(func(e *model.AuditLog) bool {
		return e.Action == constants.ActionTokenReuse
	})).Return(nil)

	_, _, err := f.svc.Refresh(context.Background(), refreshToken, ClientMeta{})

	assert.ErrorIs(t, err, apperrors.ErrInvalidRefreshToken)
	f.tokens.AssertExpectations(t)
	f.audits.AssertExpectations(t)
}

func TestRefreshLostRaceTreatedAsReuse(t *testing.T) {
	f := newAuthFixture()
	refreshToken := "cccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccc"
	row := &model.RefreshToken{
		Model:     gorm.Model{ID: 5},
		UserID:    9,
		TokenHash: HashToken(refreshToken),
		ExpiresAt: time.Now().Add(time.Hour),
	}

	f.tokens.On("GetByHash", mock.Anything, row.TokenHash).Return(row, nil)
	f.tokens.On("RevokeIfActive", mock.Anything, uint(5)).Return(false, nil)
	f.tokens.On("RevokeAllForUser", mock.Anything, uint(9)).Return(int64(1), nil)
	f.audits.On("Create", mock.Anything, mock.Anything).Return(nil)

	_, _, err := f.svc.Refresh(context.Background(), refreshToken, ClientMeta{})

	assert.ErrorIs(t, err, apperrors.ErrInvalidRefreshToken)
	f.tokens.AssertExpectations(t)
}

func TestRefreshExpiredToken(t *testing.T) {
	f := newAuthFixture()
	refreshToken := "dddddddddddddddddddddddddddddddddddddddddddddddddddddddddddddddd"
	row := &model.RefreshToken{
		Model:     gorm.Model{ID: 6},
		UserID:    9,
		TokenHash: HashToken(refreshToken),
		ExpiresAt: time.Now().Add(-time.Minute),
	}

	f.tokens.On("GetByHash", mock.Anything, row.TokenHash).Return(row, nil)

	_, _, err := f.svc.Refresh(context.Background(), refreshToken, ClientMeta{})

	assert.ErrorIs(t, err, apperrors.ErrRefreshTokenExpired)
	f.tokens.AssertNotCalled(t, "RevokeIfActive", mock.Anything, mock.Anything)
}

func TestRefreshUnknownToken(t *testing.T) {
	f := newAuthFixture()

	f.tokens.On("GetByHash", mock.Anything, mock.Anything).Return(nil, gorm.ErrRecordNotFound)

	_, _, err := f.svc.Refresh(context.Background(), "never-issued", ClientMeta{})

	assert.ErrorIs(t, err, apperrors.ErrInvalidRefreshToken)
}

func TestChangePasswordRevokesEverything(t *testing.T) {
	f := newAuthFixture()
	user := hashedUser(7, "trader@example.com", "old-password")

	f.users.On("GetByID", mock.Anything, uint(7)).Return(user, nil)
	f.users.On("UpdatePassword", mock.Anything, uint(7), mock.Anything).Return(nil)
	f.users.On("IncrementTokenVersion", mock.Anything, uint(7)).Return(nil)
	f.tokens.On("RevokeAllForUser", mock.Anything, uint(7)).Return(int64(3), nil)
	f.audits.On("Create", mock.Anything, mock.MatchedBy(func(e *model.AuditLog) bool {
		return e.Action == constants.ActionPasswordChanged
	})).Return(nil)

	err := f.svc.ChangePassword(context.Background(), 7, "old-password", "new-password-1", ClientMeta{})

	require.NoError(t, err)
	f.users.AssertExpectations(t)
	f.tokens.AssertExpectations(t)
}

func TestChangePasswordWrongCurrent(t *testing.T) {
	f := newAuthFixture()
	user := hashedUser(7, "trader@example.com", "old-password")

	f.users.On("GetByID", mock.Anything, uint(7)).Return(user, nil)

	err := f.svc.ChangePassword(context.Background(), 7, "not-the-password", "new-password-1", ClientMeta{})

	assert.ErrorIs(t, err, apperrors.ErrIncorrectPassword)
	f.users.AssertNotCalled(t, "UpdatePassword", mock.Anything, mock.Anything, mock.Anything)
}

func TestValidateAccessClaimsStaleVersion(t *testing.T) {
	f := newAuthFixture()
	user := hashedUser(7, "trader@example.com", "pw")
	user.TokenVersion = 2

	f.users.On("GetByID", mock.Anything, uint(7)).Return(user, nil)

	_, err := f.svc.ValidateAccessClaims(context.Background(), &AccessClaims{UserID: 7, TokenVersion: 1})

	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
}

func TestLogoutUnknownTokenIsNoop(t *testing.T) {
	f := newAuthFixture()

	f.tokens.On("GetByHash", mock.Anything, mock.Anything).Return(nil, gorm.ErrRecordNotFound)

	err := f.svc.Logout(context.Background(), "stale-cookie-value", ClientMeta{})

	assert.NoError(t, err)
}
