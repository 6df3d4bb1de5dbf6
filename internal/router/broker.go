package router

import (
	"github.com/finbridge/tradegate/internal/middleware"
	"github.com/gin-gonic/gin"
)

func (r *Router) brokerRoutes(v1 *gin.RouterGroup) {
	broker := v1.Group("/broker")
	broker.Use(middleware.Auth(r.tokenService, r.authService))
	{
		broker.POST("/connect", r.brokerHandler.Connect)
		broker.GET("/linked", r.brokerHandler.Linked)
		broker.GET("/accounts", r.brokerHandler.Accounts)
		broker.GET("/positions", r.brokerHandler.Positions)
		broker.GET("/history", r.brokerHandler.History)
		broker.GET("/markets", r.brokerHandler.Markets)
		broker.POST("/orders", r.brokerHandler.PlaceOrder)
	}
}
