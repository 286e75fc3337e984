package http

import (
	"github.com/gin-gonic/gin"

	"github.com/layer-3/tokengate/ratelimit"
	"github.com/layer-3/tokengate/service"
)

// SetupRouter sets up the Gin router. apiLimiter guards the protected
// group; the tighter issuance limiter lives inside the handlers.
func SetupRouter(authService *service.AuthService, handlers *AuthHandlers, apiLimiter *ratelimit.Limiter) *gin.Engine {
	router := gin.Default()

	// Auth routes
	auth := router.Group("/auth")
	{
		auth.POST("/token", handlers.IssueStatic)
		auth.POST("/token/dynamic", handlers.IssueDynamic)
		auth.POST("/refresh", handlers.Refresh)
		auth.POST("/revoke", AuthMiddleware(authService), handlers.Revoke)
	}

	// Protected API routes; rate limiting runs before the gate.
	api := router.Group("/api")
	api.Use(RateLimitMiddleware(apiLimiter), AuthMiddleware(authService))
	{
		api.GET("/me", handlers.Me)
		api.GET("/resource", handlers.Resource)
	}

	return router
}
