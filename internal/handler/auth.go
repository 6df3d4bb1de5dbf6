package handler

import (
	"net/http"
	"time"

	"github.com/finbridge/tradegate/internal/constants"
	"github.com/finbridge/tradegate/internal/dto"
	apperrors "github.com/finbridge/tradegate/internal/errors"
	"github.com/finbridge/tradegate/internal/model"
	"github.com/finbridge/tradegate/internal/service"
	ctxutil "github.com/finbridge/tradegate/pkg/context"
	"github.com/finbridge/tradegate/pkg/logger"
	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	authService  *service.AuthService
	cookieSecure bool
}

func NewAuthHandler(authService *service.AuthService, cookieSecure bool) *AuthHandler {
	return &AuthHandler{
		authService:  authService,
		cookieSecure: cookieSecure,
	}
}

func clientMeta(c *gin.Context) service.ClientMeta {
	return service.ClientMeta{
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
}

// setAuthCookies installs both session cookies. The refresh cookie is
// path-scoped to the refresh endpoint so it rides along only when the
// client actually refreshes.
func (h *AuthHandler) setAuthCookies(c *gin.Context, pair *service.TokenPair) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(constants.AccessTokenCookie, pair.AccessToken,
		int(pair.AccessExpiresIn.Seconds()), "/", "", h.cookieSecure, true)
	c.SetCookie(constants.RefreshTokenCookie, pair.RefreshToken,
		int(time.Until(pair.RefreshExpiresAt).Seconds()), constants.RefreshCookiePath, "", h.cookieSecure, true)
}

func (h *AuthHandler) clearAuthCookies(c *gin.Context) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(constants.AccessTokenCookie, "", -1, "/", "", h.cookieSecure, true)
	c.SetCookie(constants.RefreshTokenCookie, "", -1, constants.RefreshCookiePath, "", h.cookieSecure, true)
}

func userResponse(user *model.User) dto.UserResponse {
	return dto.UserResponse{
		ID:        user.ID,
		Email:     user.Email,
		FullName:  user.FullName,
		Role:      user.Role,
		LastLogin: user.LastLogin,
		CreatedAt: user.CreatedAt,
	}
}

// Register handles account creation
func (h *AuthHandler) Register(c *gin.Context) {
	ctx := ctxutil.NewContextWithRequest(c.Request.Context(), "handler", "Register")

	var req dto.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, constants.BuildErrorResponse("Invalid request format", err.Error()))
		return
	}

	user, pair, err := h.authService.Register(ctx, req.Email, req.Password, req.FullName, clientMeta(c))
	if err != nil {
		logger.WarnWithContext(ctx, "Registration failed").
			String("email", req.Email).
			Err(err).
			Log()
		c.JSON(apperrors.ToHTTPStatus(err), constants.BuildErrorResponse("Registration failed", apperrors.GetErrorMessage(err)))
		return
	}

	h.setAuthCookies(c, pair)
	c.JSON(http.StatusCreated, constants.BuildDataResponse(dto.AuthResponse{
		User:      userResponse(user),
		ExpiresIn: int64(pair.AccessExpiresIn.Seconds()),
	}))
}

// Login handles user authentication
func (h *AuthHandler) Login(c *gin.Context) {
	ctx := ctxutil.NewContextWithRequest(c.Request.Context(), "handler", "Login")

	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, constants.BuildErrorResponse("Invalid request format", err.Error()))
		return
	}

	user, pair, err := h.authService.Login(ctx, req.Email, req.Password, clientMeta(c))
	if err != nil {
		logger.WarnWithContext(ctx, "Login failed").
			String("email", req.Email).
			Err(err).
			Log()
		c.JSON(apperrors.ToHTTPStatus(err), constants.BuildErrorResponse("Authentication failed", apperrors.GetErrorMessage(err)))
		return
	}

	h.setAuthCookies(c, pair)
	c.JSON(http.StatusOK, constants.BuildDataResponse(dto.AuthResponse{
		User:      userResponse(user),
		ExpiresIn: int64(pair.AccessExpiresIn.Seconds()),
	}))
}

// Refresh rotates the refresh token presented in the cookie.
func (h *AuthHandler) Refresh(c *gin.Context) {
	ctx := ctxutil.NewContextWithRequest(c.Request.Context(), "handler", "Refresh")

	refreshToken, err := c.Cookie(constants.RefreshTokenCookie)
	if err != nil || refreshToken == "" {
		c.JSON(http.StatusForbidden, constants.BuildErrorResponse("Refresh failed", "missing refresh token"))
		return
	}

	user, pair, err := h.authService.Refresh(ctx, refreshToken, clientMeta(c))
	if err != nil {
		logger.WarnWithContext(ctx, "Token refresh failed").
			Err(err).
			Log()
		// whatever went wrong, the cookies the client holds are dead
		h.clearAuthCookies(c)
		c.JSON(apperrors.ToHTTPStatus(err), constants.BuildErrorResponse("Refresh failed", apperrors.GetErrorMessage(err)))
		return
	}

	h.setAuthCookies(c, pair)
	c.JSON(http.StatusOK, constants.BuildDataResponse(dto.AuthResponse{
		User:      userResponse(user),
		ExpiresIn: int64(pair.AccessExpiresIn.Seconds()),
	}))
}

// Logout revokes the refresh token and clears both cookies.
func (h *AuthHandler) Logout(c *gin.Context) {
	ctx := ctxutil.NewContextWithRequest(c.Request.Context(), "handler", "Logout")

	refreshToken, _ := c.Cookie(constants.RefreshTokenCookie)
	if err := h.authService.Logout(ctx, refreshToken, clientMeta(c)); err != nil {
		logger.WarnWithContext(ctx, "Logout cleanup failed").
			Err(err).
			Log()
	}

	h.clearAuthCookies(c)
	c.JSON(http.StatusOK, constants.BuildSuccessResponse("Logged out"))
}

// ChangePassword updates the password and kills every other session.
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	ctx := ctxutil.NewContextWithRequest(c.Request.Context(), "handler", "ChangePassword")

	userID, ok := ctxutil.GetUserID(ctx)
	if !ok {
		c.JSON(http.StatusUnauthorized, constants.BuildErrorResponse("Unauthorized", ""))
		return
	}

	var req dto.ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, constants.BuildErrorResponse("Invalid request format", err.Error()))
		return
	}
	if req.NewPassword != req.ConfirmPassword {
		c.JSON(apperrors.ToHTTPStatus(apperrors.ErrPasswordMismatch),
			constants.BuildErrorResponse("Password change failed", apperrors.GetErrorMessage(apperrors.ErrPasswordMismatch)))
		return
	}

	if err := h.authService.ChangePassword(ctx, userID, req.CurrentPassword, req.NewPassword, clientMeta(c)); err != nil {
		logger.WarnWithContext(ctx, "Password change failed").
			Uint("user_id", userID).
			Err(err).
			Log()
		c.JSON(apperrors.ToHTTPStatus(err), constants.BuildErrorResponse("Password change failed", apperrors.GetErrorMessage(err)))
		return
	}

	h.clearAuthCookies(c)
	c.JSON(http.StatusOK, constants.BuildSuccessResponse("Password changed, please log in again"))
}

// Me returns the authenticated user's profile.
func (h *AuthHandler) Me(c *gin.Context) {
	ctx := ctxutil.NewContextWithRequest(c.Request.Context(), "handler", "Me")

	claims, exists := c.Get("claims")
	if !exists {
		c.JSON(http.StatusUnauthorized, constants.BuildErrorResponse("Unauthorized", ""))
		return
	}
	accessClaims := claims.(*service.AccessClaims)

	user, err := h.authService.ValidateAccessClaims(ctx, accessClaims)
	if err != nil {
		c.JSON(apperrors.ToHTTPStatus(err), constants.BuildErrorResponse("Unauthorized", ""))
		return
	}

	c.JSON(http.StatusOK, constants.BuildDataResponse(userResponse(user)))
}
