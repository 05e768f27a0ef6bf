package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/resonatefm/resonate/internal/app"
	iauth "github.com/resonatefm/resonate/internal/auth"
	"github.com/resonatefm/resonate/internal/handlers"
	"github.com/resonatefm/resonate/internal/middleware"
	"github.com/resonatefm/resonate/internal/services"
)

// Services bundles the constructed service layer handed to the router.
type Services struct {
	Users         *services.UserService
	Songs         *services.SongService
	Ratings       *services.RatingService
	Analytics     *services.AnalyticsService
	Emails        *services.EmailService
	Verifications *services.VerificationService
	Processor     *services.EmailProcessor
}

// NewRouter builds the Gin engine, wires middleware and registers all routes.
func NewRouter(db *gorm.DB, jwt *iauth.JWTService, oidc *iauth.OIDCProvider, cfg *app.Config, svcs Services) (*gin.Engine, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if jwt == nil {
		return nil, fmt.Errorf("jwt service must be provided")
	}
	if cfg == nil {
		return nil, fmt.Errorf("config must be provided")
	}
	if svcs.Users == nil || svcs.Songs == nil || svcs.Emails == nil || svcs.Verifications == nil || svcs.Processor == nil {
		return nil, fmt.Errorf("all services must be provided")
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())

	r.NoRoute(middleware.NotFoundHandler)

	// Public operational endpoints
	r.GET("/health", handlers.Health(db))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	requireAuth := middleware.Auth(jwt)
	requireAdmin := middleware.RequireAdmin()
	optionalAuth := middleware.OptionalAuth(jwt)

	registerAuthRoutes(r, jwt, oidc, svcs, requireAuth)
	registerSongRoutes(r, svcs, requireAuth, requireAdmin, optionalAuth)
	registerUserRoutes(r, svcs, requireAuth)
	registerEmailRoutes(r, svcs, requireAuth, requireAdmin)

	return r, nil
}
