package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Vault     VaultConfig
	Broker    BrokerConfig
	RateLimit RateLimitConfig
}

type AppConfig struct {
	Name        string
	Environment string
	Debug       bool
	Port        string
	CORSOrigins []string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string

	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

type RedisConfig struct {
	Host         string
	Port         int
	Password     string
	Database     int
	Enabled      bool
	PoolSize     int
	MinIdleConns int
	QuoteTTL     time.Duration
}

type JWTConfig struct {
	Secret     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// VaultConfig holds the master secret for at-rest credential encryption.
// The secret is validated at startup; in production a missing or short
// secret aborts boot instead of degrading to an insecure default.
type VaultConfig struct {
	MasterKey string
}

type BrokerConfig struct {
	DemoBaseURL string
	LiveBaseURL string
	Timeout     time.Duration
	SessionTTL  time.Duration
}

type RateLimitConfig struct {
	Request  int
	Duration int
}

const devMasterKey = "dev-only-insecure-master-key-0000"

func LoadConfig() (*Config, error) {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	config := &Config{
		App: AppConfig{
			Name:        getEnv("APP_NAME", "tradegate"),
			Environment: getEnv("APP_ENV", "development"),
			Port:        getEnv("APP_PORT", "8080"),
			Debug:       getEnvAsBool("APP_DEBUG", true),
			CORSOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", nil),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvAsInt("DB_PORT", 5432),
			Name:            getEnv("DB_NAME", "tradegate_db"),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", "postgres"),
			SSLMode:         getEnv("DB_SSL_MODE", "disable"),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 100),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", time.Hour),
			ConnMaxIdleTime: getEnvAsDuration("DB_CONN_MAX_IDLE_TIME", 10*time.Minute),
		},
		Redis: RedisConfig{
			Host:         getEnv("REDIS_HOST", "localhost"),
			Port:         getEnvAsInt("REDIS_PORT", 6379),
			Password:     getEnv("REDIS_PASSWORD", ""),
			Database:     getEnvAsInt("REDIS_DB", 0),
			Enabled:      getEnvAsBool("REDIS_ENABLED", true),
			PoolSize:     getEnvAsInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvAsInt("REDIS_MIN_IDLE_CONNS", 5),
			QuoteTTL:     getEnvAsDuration("REDIS_QUOTE_TTL", 10*time.Second),
		},
		JWT: JWTConfig{
			Secret:     getEnv("JWT_SECRET", "default_secret_key_change_in_production"),
			AccessTTL:  getEnvAsDuration("JWT_ACCESS_TTL", 15*time.Minute),
			RefreshTTL: getEnvAsDuration("JWT_REFRESH_TTL", 7*24*time.Hour),
		},
		Vault: VaultConfig{
			MasterKey: getEnv("VAULT_MASTER_KEY", ""),
		},
		Broker: BrokerConfig{
			DemoBaseURL: getEnv("BROKER_DEMO_BASE_URL", "https://demo-api-capital.backend-capital.com/api/v1"),
			LiveBaseURL: getEnv("BROKER_LIVE_BASE_URL", "https://api-capital.backend-capital.com/api/v1"),
			Timeout:     getEnvAsDuration("BROKER_TIMEOUT", 15*time.Second),
			SessionTTL:  getEnvAsDuration("BROKER_SESSION_TTL", 6*time.Hour),
		},
		RateLimit: RateLimitConfig{
			Request:  getEnvAsInt("RATE_LIMIT_MAX_REQUEST", 60),
			Duration: getEnvAsInt("RATE_LIMIT_DURATION", 60),
		},
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// validate enforces the fail-fast startup rules. Outside production the
// vault falls back to a flagged dev key so local setups keep working.
func (c *Config) validate() error {
	if c.IsProduction() {
		if len(c.Vault.MasterKey) < 32 {
			return fmt.Errorf("VAULT_MASTER_KEY must be set and at least 32 characters in production")
		}
		if c.JWT.Secret == "default_secret_key_change_in_production" {
			return fmt.Errorf("JWT_SECRET must be set in production")
		}
	}
	if c.Vault.MasterKey == "" {
		c.Vault.MasterKey = devMasterKey
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// UsingDevMasterKey reports whether the vault is running on the insecure
// development fallback, so startup can log it loudly.
func (c *Config) UsingDevMasterKey() bool {
	return c.Vault.MasterKey == devMasterKey
}

func (c *Config) RedisAddress() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		boolValue, err := strconv.ParseBool(value)
		if err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
