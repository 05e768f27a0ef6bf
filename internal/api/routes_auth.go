package api

import (
	"github.com/gin-gonic/gin"

	iauth "github.com/resonatefm/resonate/internal/auth"
	"github.com/resonatefm/resonate/internal/handlers"
)

func registerAuthRoutes(r *gin.Engine, jwt *iauth.JWTService, oidc *iauth.OIDCProvider, svcs Services, requireAuth gin.HandlerFunc) {
	authHandler := handlers.NewAuthHandler(svcs.Users, jwt, oidc)

	auth := r.Group("/api/auth")
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
		auth.GET("/verify-email", authHandler.VerifyEmail(svcs.Verifications))
		auth.POST("/resend-verification", authHandler.ResendVerification)
		auth.GET("/oauth/login", authHandler.OAuthBegin)
		auth.GET("/oauth/callback", authHandler.OAuthCallback)

		auth.GET("/me", requireAuth, authHandler.Me)
	}

	// The browser-facing verification link from the email lands here too.
	r.GET("/verify-email", authHandler.VerifyEmail(svcs.Verifications))
}
