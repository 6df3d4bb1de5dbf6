package service

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/finbridge/tradegate/config"
	apperrors "github.com/finbridge/tradegate/internal/errors"
	"github.com/finbridge/tradegate/internal/model"
	"github.com/golang-jwt/jwt/v5"
)

// AccessClaims is what an access token asserts about its bearer.
type AccessClaims struct {
	UserID       uint
	Email        string
	Role         string
	TokenVersion int
}

// TokenService issues short-lived HS256 access tokens and opaque
// refresh tokens. Refresh tokens are 32 random bytes; only their
// SHA-256 hash is ever stored.
type TokenService struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewTokenService(cfg config.JWTConfig) *TokenService {
	return &TokenService{
		secret:     []byte(cfg.Secret),
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
	}
}

func (s *TokenService) AccessTTL() time.Duration  { return s.accessTTL }
func (s *TokenService) RefreshTTL() time.Duration { return s.refreshTTL }

// GenerateAccessToken signs a token for the user. The embedded
// token_version lets a password change invalidate every token issued
// before it.
func (s *TokenService) GenerateAccessToken(user *model.User) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"user_id":       user.ID,
		"email":         user.Email,
		"role":          user.Role,
		"token_version": user.TokenVersion,
		"iat":           now.Unix(),
		"exp":           now.Add(s.accessTTL).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", apperrors.WrapError(apperrors.ErrInternal, err)
	}
	return signed, nil
}

// ParseAccessToken validates signature and expiry and returns the
// claims. The token_version still has to be checked against the user
// row by the caller.
func (s *TokenService) ParseAccessToken(tokenString string) (*AccessClaims, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, apperrors.WrapError(apperrors.ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, apperrors.ErrInvalidToken
	}

	userID, ok := claims["user_id"].(float64)
	if !ok {
		return nil, apperrors.ErrInvalidToken
	}
	version, ok := claims["token_version"].(float64)
	if !ok {
		return nil, apperrors.ErrInvalidToken
	}

	email, _ := claims["email"].(string)
	role, _ := claims["role"].(string)

	return &AccessClaims{
		UserID:       uint(userID),
		Email:        email,
		Role:         role,
		TokenVersion: int(version),
	}, nil
}

// GenerateRefreshToken returns a fresh opaque token and its storage
// hash.
func (s *TokenService) GenerateRefreshToken() (token, tokenHash string, err error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", "", apperrors.WrapError(apperrors.ErrInternal, err)
	}
	token = hex.EncodeToString(raw)
	return token, HashToken(token), nil
}

// HashToken is the storage hash for refresh tokens. SHA-256 is enough
// here: the input is 256 bits of randomness, not a password.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
