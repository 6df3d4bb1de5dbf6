package middleware

import (
	"context"
	"time"

	"github.com/finbridge/tradegate/internal/constants"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RequestContext seeds the request context with the values every log
// line downstream picks up: request id, client IP, user agent, start
// time. The request id is echoed back so clients can quote it.
func RequestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ctx := c.Request.Context()
		ctx = context.WithValue(ctx, constants.CtxKeyRequestID, requestID)
		ctx = context.WithValue(ctx, constants.CtxKeyClientIP, c.ClientIP())
		ctx = context.WithValue(ctx, constants.CtxKeyUserAgent, c.Request.UserAgent())
		ctx = context.WithValue(ctx, constants.CtxKeyStartTime, time.Now())

		c.Request = c.Request.WithContext(ctx)
		c.Writer.Header().Set("X-Request-ID", requestID)

		c.Next()
	}
}
