package api

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/prompthub/authcore/internal/app"
	iauth "github.com/prompthub/authcore/internal/auth"
	"github.com/prompthub/authcore/internal/cache"
	"github.com/prompthub/authcore/internal/handlers"
	"github.com/prompthub/authcore/internal/middleware"
	"github.com/prompthub/authcore/internal/session"
	"github.com/prompthub/authcore/internal/workspaces"
)

// Dependencies are the services the HTTP surface delegates to.
type Dependencies struct {
	DB         *gorm.DB
	Config     *app.Config
	Passwords  *iauth.PasswordService
	Tokens     *iauth.TokenService
	OAuth      *iauth.OAuthService
	Workspaces *workspaces.Service
	// RateStore backs the global rate limiter. Nil falls back to process memory.
	RateStore cache.Store
}

func (d Dependencies) validate() error {
	switch {
	case d.DB == nil:
		return errors.New("database handle must be provided")
	case d.Config == nil:
		return errors.New("config must be provided")
	case d.Passwords == nil:
		return errors.New("password service must be provided")
	case d.Tokens == nil:
		return errors.New("token service must be provided")
	case d.OAuth == nil:
		return errors.New("oauth service must be provided")
	case d.Workspaces == nil:
		return errors.New("workspace service must be provided")
	}
	return nil
}

// NewRouter builds the Gin engine, wires middleware and registers the API routes.
func NewRouter(deps Dependencies) (*gin.Engine, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	cfg := deps.Config

	boundary, err := session.NewBoundary(deps.Tokens, deps.Workspaces)
	if err != nil {
		return nil, err
	}

	rateStore := deps.RateStore
	if rateStore == nil {
		rateStore = cache.NewMemoryStore()
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.Server.CORS.AllowedOrigins))
	if cfg.Server.RateLimit.Requests > 0 {
		r.Use(middleware.RateLimit(rateStore, cfg.Server.RateLimit.Requests, cfg.Server.RateLimit.Window))
	}

	registerHealthRoutes(r, deps.DB)

	cookie := handlers.CookieConfig{
		Secure: cfg.Auth.Cookie.Secure,
		Domain: cfg.Auth.Cookie.Domain,
		TTL:    deps.Tokens.RefreshTTL(),
	}
	requireAuth := middleware.RequireAuth(boundary)

	registerAuthRoutes(r, requireAuth, authRouteDeps{
		AuthHandler:  handlers.NewAuthHandler(deps.DB, deps.Passwords, deps.Tokens, deps.OAuth, cookie),
		OAuthHandler: handlers.NewOAuthHandler(deps.OAuth, cfg.Server.AppURL, cookie),
	})

	registerWorkspaceRoutes(r, requireAuth, boundary, handlers.NewWorkspaceHandler(deps.Workspaces))

	// Metrics endpoint
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
