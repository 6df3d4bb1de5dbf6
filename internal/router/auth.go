package router

import (
	"github.com/finbridge/tradegate/internal/middleware"
	"github.com/gin-gonic/gin"
)

func (r *Router) authRoutes(v1 *gin.RouterGroup) {
	auth := v1.Group("/auth")
	{
		auth.POST("/register", r.authHandler.Register)
		auth.POST("/login", r.authHandler.Login)
		auth.POST("/refresh", r.authHandler.Refresh)
		auth.POST("/logout", r.authHandler.Logout)

		protected := auth.Group("")
		protected.Use(middleware.Auth(r.tokenService, r.authService))
		{
			protected.GET("/me", r.authHandler.Me)
			protected.PUT("/password", r.authHandler.ChangePassword)
		}
	}
}
