package handler

import (
	"net/http"
	"time"

	"github.com/finbridge/tradegate/pkg/circuit"
	redispkg "github.com/finbridge/tradegate/pkg/redis"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type HealthHandler struct {
	db       *gorm.DB
	cache    *redispkg.Client
	breakers *circuit.BreakerRegistry
	started  time.Time
}

func NewHealthHandler(db *gorm.DB, cache *redispkg.Client, breakers *circuit.BreakerRegistry) *HealthHandler {
	return &HealthHandler{
		db:       db,
		cache:    cache,
		breakers: breakers,
		started:  time.Now(),
	}
}

// Health reports liveness plus dependency status. Database failure
// makes the whole check unhealthy; the cache is optional.
func (h *HealthHandler) Health(c *gin.Context) {
	status := http.StatusOK
	checks := gin.H{}

	dbStatus := "ok"
	if sqlDB, err := h.db.DB(); err != nil {
		dbStatus = "error: " + err.Error()
		status = http.StatusServiceUnavailable
	} else if err := sqlDB.PingContext(c.Request.Context()); err != nil {
		dbStatus = "error: " + err.Error()
		status = http.StatusServiceUnavailable
	}
	checks["database"] = dbStatus

	cacheStatus := "disabled"
	if h.cache.IsEnabled() {
		cacheStatus = "ok"
		if err := h.cache.Ping(c.Request.Context()); err != nil {
			cacheStatus = "error: " + err.Error()
		}
	}
	checks["cache"] = cacheStatus

	checks["broker_circuits"] = h.breakers.Stats()

	c.JSON(status, gin.H{
		"status":    http.StatusText(status),
		"uptime":    time.Since(h.started).Round(time.Second).String(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    checks,
	})
}
