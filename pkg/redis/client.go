package redis

import (
	"context"
	"errors"
	"time"

	"github.com/finbridge/tradegate/config"
	"github.com/finbridge/tradegate/pkg/logger"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Client wraps go-redis behind a nil-safe byte cache. When Redis is
// disabled in config every read is a miss and every write a no-op, so
// callers never branch on availability.
type Client struct {
	rdb     *goredis.Client
	enabled bool
}

// NewClient connects to Redis when enabled. A failed ping downgrades to
// disabled instead of failing startup; the cache is an optimization.
func NewClient(cfg *config.Config) *Client {
	if !cfg.Redis.Enabled {
		logger.GetLogger().Info("Redis disabled, cache is a no-op")
		return &Client{}
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:         cfg.RedisAddress(),
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.Database,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.GetLogger().Warn("Redis unreachable, continuing without cache",
			zap.String("addr", cfg.RedisAddress()),
			zap.Error(err),
		)
		_ = rdb.Close()
		return &Client{}
	}

	logger.GetLogger().Info("Redis connected",
		zap.String("addr", cfg.RedisAddress()),
	)

	return &Client{rdb: rdb, enabled: true}
}

func (c *Client) IsEnabled() bool {
	return c != nil && c.enabled
}

// Get returns the cached bytes, or (nil, nil) on a miss.
func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	if !c.IsEnabled() {
		return nil, nil
	}

	value, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	return value, nil
}

// Set stores bytes with a TTL.
func (c *Client) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if !c.IsEnabled() {
		return nil
	}
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

// Delete removes a key.
func (c *Client) Delete(ctx context.Context, key string) error {
	if !c.IsEnabled() {
		return nil
	}
	return c.rdb.Del(ctx, key).Err()
}

// Ping reports cache health for the health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	if !c.IsEnabled() {
		return errors.New("redis disabled")
	}
	return c.rdb.Ping(ctx).Err()
}

func (c *Client) Close() error {
	if !c.IsEnabled() {
		return nil
	}
	return c.rdb.Close()
}
