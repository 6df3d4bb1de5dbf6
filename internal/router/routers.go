package router

import (
	"time"

	"github.com/finbridge/tradegate/config"
	"github.com/finbridge/tradegate/internal/dto"
	"github.com/finbridge/tradegate/internal/handler"
	"github.com/finbridge/tradegate/internal/middleware"
	"github.com/finbridge/tradegate/internal/service"
	"github.com/gin-gonic/gin"
)

type Router struct {
	authHandler   *handler.AuthHandler
	brokerHandler *handler.BrokerHandler
	healthHandler *handler.HealthHandler

	tokenService *service.TokenService
	authService  *service.AuthService

	cfg *config.Config
}

func NewRouter(
	auth *handler.AuthHandler,
	broker *handler.BrokerHandler,
	health *handler.HealthHandler,
	tokenService *service.TokenService,
	authService *service.AuthService,
	cfg *config.Config,
) *Router {
	return &Router{
		authHandler:   auth,
		brokerHandler: broker,
		healthHandler: health,
		tokenService:  tokenService,
		authService:   authService,
		cfg:           cfg,
	}
}

func (r *Router) SetupRoutes() *gin.Engine {
	if r.cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	dto.RegisterValidators()

	router := gin.New()

	router.Use(middleware.Recovery())
	router.Use(middleware.RequestContext())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.CORS(r.cfg.App.CORSOrigins))

	api := router.Group("/api")
	{
		api.GET("/health", r.healthHandler.Health)

		v1 := api.Group("/v1")
		{
			v1.Use(middleware.RateLimit(r.cfg.RateLimit.Request,
				time.Duration(r.cfg.RateLimit.Duration)*time.Second))

			r.authRoutes(v1)
			r.brokerRoutes(v1)
		}
	}

	return router
}
