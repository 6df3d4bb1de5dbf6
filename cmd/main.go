package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/finbridge/tradegate/config"
	"github.com/finbridge/tradegate/internal/broker"
	"github.com/finbridge/tradegate/internal/handler"
	"github.com/finbridge/tradegate/internal/repository"
	"github.com/finbridge/tradegate/internal/router"
	"github.com/finbridge/tradegate/internal/service"
	"github.com/finbridge/tradegate/pkg/circuit"
	"github.com/finbridge/tradegate/pkg/database"
	"github.com/finbridge/tradegate/pkg/logger"
	redispkg "github.com/finbridge/tradegate/pkg/redis"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := logger.InitLogger(cfg); err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync()

	zlog := logger.GetLogger()

	if cfg.UsingDevMasterKey() {
		zlog.Warn("Vault is running on the development master key; set VAULT_MASTER_KEY")
	}

	db, err := database.NewPostgresDB(cfg.Database)
	if err != nil {
		zlog.Fatal("Database connection failed", zap.Error(err))
	}
	defer func() {
		if err := database.CloseDB(db); err != nil {
			zlog.Warn("Database close failed", zap.Error(err))
		}
	}()

	if err := database.Migrate(db); err != nil {
		zlog.Fatal("Database migration failed", zap.Error(err))
	}
	if err := database.Seed(db, cfg); err != nil {
		zlog.Fatal("Database seed failed", zap.Error(err))
	}

	cache := redispkg.NewClient(cfg)
	defer func() {
		if err := cache.Close(); err != nil {
			zlog.Warn("Redis close failed", zap.Error(err))
		}
	}()

	// repositories
	userRepo := repository.NewUserRepository(db)
	refreshTokenRepo := repository.NewRefreshTokenRepository(db)
	brokerAccountRepo := repository.NewBrokerAccountRepository(db)
	auditLogRepo := repository.NewAuditLogRepository(db)
	settingRepo := repository.NewSystemSettingRepository(db)

	// broker gateway
	breakers := circuit.NewBreakerRegistry(circuit.DefaultConfig(), zlog)
	brokerClient := broker.NewClient(cfg.Broker, breakers)

	// services
	vault := service.NewVault(cfg.Vault.MasterKey)
	tokenService := service.NewTokenService(cfg.JWT)
	authService := service.NewAuthService(userRepo, refreshTokenRepo, auditLogRepo, tokenService)
	sessionService := service.NewBrokerSessionService(brokerAccountRepo, vault, brokerClient, cfg.Broker.SessionTTL)
	linkService := service.NewBrokerLinkService(brokerAccountRepo, auditLogRepo, vault, brokerClient)
	tradingService := service.NewTradingService(sessionService, brokerClient, settingRepo, auditLogRepo, cache, cfg.Redis.QuoteTTL)

	// handlers
	authHandler := handler.NewAuthHandler(authService, cfg.IsProduction())
	brokerHandler := handler.NewBrokerHandler(linkService, tradingService)
	healthHandler := handler.NewHealthHandler(db, cache, breakers)

	engine := router.NewRouter(authHandler, brokerHandler, healthHandler, tokenService, authService, cfg).SetupRoutes()

	server := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// periodic refresh token cleanup
	cleanupCtx, cancelCleanup := context.WithCancel(context.Background())
	defer cancelCleanup()
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-cleanupCtx.Done():
				return
			case <-ticker.C:
				if _, err := refreshTokenRepo.DeleteExpired(cleanupCtx); err != nil {
					zlog.Warn("Refresh token cleanup failed", zap.Error(err))
				}
			}
		}
	}()

	go func() {
		zlog.Info("Server starting",
			zap.String("port", cfg.App.Port),
			zap.String("environment", cfg.App.Environment),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal("Server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zlog.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error("Graceful shutdown failed", zap.Error(err))
	}

	zlog.Info("Server stopped")
}
