package middleware

import (
	"time"

	ctxutil "github.com/finbridge/tradegate/pkg/context"
	"github.com/finbridge/tradegate/pkg/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RequestLogger writes one structured line per request after it
// completes.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status_code", c.Writer.Status()),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			zap.String("client_ip", c.ClientIP()),
			zap.String("request_id", ctxutil.GetRequestID(c.Request.Context())),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		switch {
		case c.Writer.Status() >= 500:
			logger.GetLogger().Error("HTTP Request", fields...)
		case c.Writer.Status() >= 400:
			logger.GetLogger().Warn("HTTP Request", fields...)
		default:
			logger.GetLogger().Info("HTTP Request", fields...)
		}
	}
}

// Recovery converts panics into 500 responses with a logged stack.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if recovered := recover(); recovered != nil {
				logger.LogPanic(recovered)
				c.AbortWithStatus(500)
			}
		}()
		c.Next()
	}
}
