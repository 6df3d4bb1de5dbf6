package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/finbridge/tradegate/internal/constants"
	"github.com/gin-gonic/gin"
)

type rateLimiter struct {
	mu         sync.Mutex
	hits       map[string][]time.Time
	maxRequest int
	window     time.Duration
	lastSweep  time.Time
}

// sweep drops clients whose newest hit has aged out of the window, at
// most once per window, so the map does not grow with one-off IPs.
func (rl *rateLimiter) sweep(now time.Time) {
	if now.Sub(rl.lastSweep) < rl.window {
		return
	}
	rl.lastSweep = now

	for key, hits := range rl.hits {
		if len(hits) == 0 || now.Sub(hits[len(hits)-1]) > rl.window {
			delete(rl.hits, key)
		}
	}
}

func (rl *rateLimiter) allow(key string, now time.Time) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.sweep(now)

	valid := rl.hits[key][:0]
	for _, hit := range rl.hits[key] {
		if now.Sub(hit) <= rl.window {
			valid = append(valid, hit)
		}
	}

	if len(valid) >= rl.maxRequest {
		rl.hits[key] = valid
		return false
	}

	rl.hits[key] = append(valid, now)
	return true
}

// RateLimit caps requests per client IP over a sliding window. State is
// in-process; with several replicas each enforces its own share.
func RateLimit(maxRequest int, window time.Duration) gin.HandlerFunc {
	limiter := &rateLimiter{
		hits:       make(map[string][]time.Time),
		maxRequest: maxRequest,
		window:     window,
	}

	return func(c *gin.Context) {
		if !limiter.allow(c.ClientIP(), time.Now()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests,
				constants.BuildErrorResponse("Too many requests", "slow down"))
			return
		}
		c.Next()
	}
}
