package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// DomainError represents a domain-specific error with a code and message
type DomainError struct {
	Code    string
	Message string
	Err     error // underlying error for wrapping
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for errors.Is and errors.As
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches domain errors by code, so a wrapped sentinel still
// satisfies errors.Is against the bare sentinel.
func (e *DomainError) Is(target error) bool {
	var t *DomainError
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// WrapError wraps an existing error with domain error context
func WrapError(domainErr *DomainError, err error) *DomainError {
	return &DomainError{
		Code:    domainErr.Code,
		Message: domainErr.Message,
		Err:     err,
	}
}

// Predefined domain errors
var (
	// User errors
	ErrUserNotFound       = NewDomainError("USER_NOT_FOUND", "user not found")
	ErrEmailExists        = NewDomainError("EMAIL_EXISTS", "email already registered")
	ErrInvalidCredentials = NewDomainError("INVALID_CREDENTIALS", "invalid email or password")

	// Authentication errors
	ErrUnauthorized        = NewDomainError("UNAUTHORIZED", "unauthorized")
	ErrInvalidToken        = NewDomainError("INVALID_TOKEN", "invalid or expired token")
	ErrInvalidRefreshToken = NewDomainError("INVALID_REFRESH_TOKEN", "invalid refresh token")
	ErrRefreshTokenExpired = NewDomainError("REFRESH_TOKEN_EXPIRED", "refresh token has expired")

	// Validation errors
	ErrInvalidInput      = NewDomainError("INVALID_INPUT", "invalid input")
	ErrPasswordMismatch  = NewDomainError("PASSWORD_MISMATCH", "new password and confirmation do not match")
	ErrIncorrectPassword = NewDomainError("INCORRECT_PASSWORD", "current password is incorrect")

	// Credential vault errors
	ErrVaultTampered     = NewDomainError("TAMPERED_OR_CORRUPT", "stored credential is tampered or corrupt")
	ErrMissingCredential = NewDomainError("MISSING_CREDENTIAL", "broker API password is not stored for this account")

	// Broker account errors
	ErrAccountNotFound    = NewDomainError("ACCOUNT_NOT_FOUND", "no broker account linked for this environment")
	ErrDuplicateAccount   = NewDomainError("DUPLICATE_ACCOUNT", "a broker account is already linked for this environment")
	ErrCredentialConflict = NewDomainError("CREDENTIAL_CONFLICT", "these broker credentials are linked to another user")

	// Broker gateway errors
	ErrBrokerSessionExpired = NewDomainError("SESSION_EXPIRED", "broker session expired")
	ErrBrokerRequestFailed  = NewDomainError("BROKER_REQUEST_FAILED", "broker request failed")
	ErrBrokerUnavailable    = NewDomainError("BROKER_UNAVAILABLE", "broker is unreachable")

	// System errors
	ErrInternal           = NewDomainError("INTERNAL_ERROR", "internal server error")
	ErrServiceUnavailable = NewDomainError("SERVICE_UNAVAILABLE", "service unavailable")
)

// IsDomainError checks if an error is a domain error
func IsDomainError(err error) bool {
	var domainErr *DomainError
	return errors.As(err, &domainErr)
}

// GetDomainError extracts the domain error from an error
func GetDomainError(err error) *DomainError {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return nil
}

// ToHTTPStatus maps domain errors to HTTP status codes.
// This should only be used in the handler/presentation layer.
func ToHTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}

	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErrorToHTTPStatus(domainErr)
	}

	return http.StatusInternalServerError
}

func domainErrorToHTTPStatus(err *DomainError) int {
	switch err.Code {
	// 400 Bad Request
	case "INVALID_INPUT", "PASSWORD_MISMATCH":
		return http.StatusBadRequest

	// 401 Unauthorized
	case "UNAUTHORIZED", "INVALID_CREDENTIALS", "INVALID_TOKEN",
		"INCORRECT_PASSWORD", "SESSION_EXPIRED":
		return http.StatusUnauthorized

	// 403 Forbidden. Refresh-token failures get 403 rather than 401 so
	// clients stop retrying with the same cookie.
	case "INVALID_REFRESH_TOKEN", "REFRESH_TOKEN_EXPIRED":
		return http.StatusForbidden

	// 404 Not Found
	case "USER_NOT_FOUND", "ACCOUNT_NOT_FOUND":
		return http.StatusNotFound

	// 409 Conflict
	case "EMAIL_EXISTS", "DUPLICATE_ACCOUNT", "CREDENTIAL_CONFLICT":
		return http.StatusConflict

	// 422 Unprocessable Entity
	case "MISSING_CREDENTIAL":
		return http.StatusUnprocessableEntity

	// 502 Bad Gateway
	case "BROKER_REQUEST_FAILED":
		return http.StatusBadGateway

	// 503 Service Unavailable
	case "SERVICE_UNAVAILABLE", "BROKER_UNAVAILABLE":
		return http.StatusServiceUnavailable

	default:
		return http.StatusInternalServerError
	}
}

// GetErrorMessage safely extracts error message
func GetErrorMessage(err error) string {
	if err == nil {
		return ""
	}

	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Message
	}

	return err.Error()
}
