package http

import (
	"github.com/gin-gonic/gin"
	"github.com/layer-3/doctorauth/ports"
	"github.com/layer-3/doctorauth/service"
	"github.com/rs/zerolog"
)

// RouterConfig carries what the router needs besides the auth service
type RouterConfig struct {
	Identity string
	Cookies  CookieConfig
	Health   ports.Pinger
}

// SetupRouter sets up the Gin router
func SetupRouter(authService *service.AuthService, cfg RouterConfig, logger zerolog.Logger) *gin.Engine {
	router := gin.New()
	router.Use(Recovery(logger), RequestLogger(logger))

	handlers := NewAuthHandlers(authService, cfg.Identity, cfg.Cookies, cfg.Health, logger)

	router.GET("/health", handlers.Health)

	// Auth routes
	auth := router.Group("/api/auth")
	{
		auth.POST("/verify-pin", handlers.VerifyPin)
		auth.POST("/refresh", handlers.Refresh)
		auth.POST("/logout", handlers.Logout)
	}

	// Protected routes
	protected := router.Group("/api/auth")
	protected.Use(AuthMiddleware(authService))
	{
		protected.GET("/me", handlers.Me)
	}

	return router
}
