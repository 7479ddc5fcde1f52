package api

import (
	"github.com/gin-gonic/gin"

	"github.com/prompthub/authcore/internal/handlers"
)

type authRouteDeps struct {
	AuthHandler  *handlers.AuthHandler
	OAuthHandler *handlers.OAuthHandler
}

func registerAuthRoutes(engine *gin.Engine, requireAuth gin.HandlerFunc, deps authRouteDeps) {
	auth := engine.Group("/api/auth")
	{
		auth.POST("/register", deps.AuthHandler.Register)
		auth.POST("/login", deps.AuthHandler.Login)
		auth.POST("/refresh", deps.AuthHandler.Refresh)
		auth.POST("/password/reset/request", deps.AuthHandler.RequestPasswordReset)
		auth.POST("/password/reset/confirm", deps.AuthHandler.ConfirmPasswordReset)

		auth.GET("/oauth/providers", deps.OAuthHandler.Providers)
		auth.GET("/oauth/:provider/start", deps.OAuthHandler.Start)
		auth.GET("/oauth/:provider/callback", deps.OAuthHandler.Callback)
	}

	protected := engine.Group("/api/auth", requireAuth)
	{
		protected.POST("/logout", deps.AuthHandler.Logout)
		protected.GET("/me", deps.AuthHandler.Me)
		protected.GET("/session", deps.AuthHandler.Session)
		protected.POST("/password/change", deps.AuthHandler.ChangePassword)
		protected.POST("/oauth/:provider/link", deps.OAuthHandler.Link)
		protected.DELETE("/oauth/:provider", deps.OAuthHandler.Unlink)
	}
}
