package middleware

import (
	"net/http"
	"strings"

	"github.com/finbridge/tradegate/internal/constants"
	apperrors "github.com/finbridge/tradegate/internal/errors"
	"github.com/finbridge/tradegate/internal/service"
	ctxutil "github.com/finbridge/tradegate/pkg/context"
	"github.com/finbridge/tradegate/pkg/logger"
	"github.com/gin-gonic/gin"
)

// Auth authenticates the request from the access token cookie, falling
// back to a Bearer header for non-browser clients. Claims are verified
// against the user row so tokens minted before a password change die
// immediately.
func Auth(tokens *service.TokenService, auth *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := extractToken(c)
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				constants.BuildErrorResponse("Unauthorized", "missing access token"))
			return
		}

		claims, err := tokens.ParseAccessToken(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				constants.BuildErrorResponse("Unauthorized", apperrors.GetErrorMessage(err)))
			return
		}

		user, err := auth.ValidateAccessClaims(c.Request.Context(), claims)
		if err != nil {
			logger.WarnWithContext(c.Request.Context(), "Access token rejected").
				Uint("user_id", claims.UserID).
				Err(err).
				Log()
			c.AbortWithStatusJSON(apperrors.ToHTTPStatus(err),
				constants.BuildErrorResponse("Unauthorized", apperrors.GetErrorMessage(err)))
			return
		}

		c.Set("claims", claims)
		c.Set("user", user)
		c.Request = c.Request.WithContext(ctxutil.WithUserID(c.Request.Context(), user.ID))

		c.Next()
	}
}

// RequireRole gates a route group on the user's role.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, exists := c.Get("claims")
		if !exists {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				constants.BuildErrorResponse("Unauthorized", ""))
			return
		}
		if claims.(*service.AccessClaims).Role != role {
			c.AbortWithStatusJSON(http.StatusForbidden,
				constants.BuildErrorResponse("Forbidden", "insufficient role"))
			return
		}
		c.Next()
	}
}

func extractToken(c *gin.Context) string {
	if cookie, err := c.Cookie(constants.AccessTokenCookie); err == nil && cookie != "" {
		return cookie
	}
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}
