package main

import (
	"context"
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/prompthub/authcore/internal/api"
	"github.com/prompthub/authcore/internal/app"
	"github.com/prompthub/authcore/internal/app/maintenance"
	iauth "github.com/prompthub/authcore/internal/auth"
	"github.com/prompthub/authcore/internal/auth/providers"
	"github.com/prompthub/authcore/internal/cache"
	"github.com/prompthub/authcore/internal/database"
	"github.com/prompthub/authcore/internal/workspaces"
	"github.com/prompthub/authcore/pkg/logger"
	"github.com/prompthub/authcore/pkg/mail"
)

// services are the domain services shared by the server and the cleanup command.
type services struct {
	Tokens     *iauth.TokenService
	Passwords  *iauth.PasswordService
	OAuth      *iauth.OAuthService
	Workspaces *workspaces.Service
}

// runtimeStack bundles long-lived resources used by the HTTP server.
type runtimeStack struct {
	DB        *gorm.DB
	Redis     *cache.RedisStore
	Services  *services
	Cleaner   *maintenance.Cleaner
	RateStore cache.Store
	Router    *gin.Engine
}

// bootstrapRuntime initialises the database, counters, services and the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	success := false
	defer func() {
		if !success {
			stack.Shutdown(log)
		}
	}()

	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}
	stack.DB = db

	stack.Services, err = buildServices(ctx, db, cfg)
	if err != nil {
		return nil, err
	}

	dbStore := cache.NewDatabaseStore(db)
	stack.RateStore = dbStore
	if cfg.Cache.Redis.Enabled {
		redisStore, redisErr := cache.NewRedisStore(ctx, cfg.Cache.RedisClientConfig())
		if redisErr != nil {
			log.Warn("redis unavailable; falling back to database-backed rate limiting", zap.Error(redisErr))
		} else {
			stack.Redis = redisStore
			stack.RateStore = redisStore
			log.Info("redis connected", zap.String("addr", cfg.Cache.Redis.Address))
		}
	}

	if cfg.Maintenance.Enabled {
		opts := []maintenance.Option{maintenance.WithTokenSchedule(cfg.Maintenance.TokenSchedule)}
		if stack.Redis == nil {
			opts = append(opts, maintenance.WithCounterStore(dbStore))
		}
		stack.Cleaner = maintenance.NewCleaner(stack.Services.Tokens, stack.Services.Passwords, opts...)
		if err := stack.Cleaner.Start(); err != nil {
			return nil, fmt.Errorf("start maintenance jobs: %w", err)
		}
	}

	stack.Router, err = api.NewRouter(api.Dependencies{
		DB:         db,
		Config:     cfg,
		Passwords:  stack.Services.Passwords,
		Tokens:     stack.Services.Tokens,
		OAuth:      stack.Services.OAuth,
		Workspaces: stack.Services.Workspaces,
		RateStore:  stack.RateStore,
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

func buildServices(ctx context.Context, db *gorm.DB, cfg *app.Config) (*services, error) {
	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise jwt service: %w", err)
	}

	tokens, err := iauth.NewTokenService(db, jwtSvc, cfg.Auth.TokenServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise token service: %w", err)
	}

	mailer, err := mail.NewMailer(cfg.Email.SMTPSettings())
	if err != nil {
		return nil, fmt.Errorf("initialise mailer: %w", err)
	}
	if !mail.IsAvailable(mailer) {
		logger.WithModule("bootstrap").Warn("smtp disabled; password reset emails will not be delivered")
	}

	passwords, err := iauth.NewPasswordService(db, tokens, mailer,
		cfg.Auth.PasswordServiceConfig(cfg.Server.AppURL, cfg.Email.SMTP.From, cfg.Email.SMTP.Timeout))
	if err != nil {
		return nil, fmt.Errorf("initialise password service: %w", err)
	}

	registry, err := buildProviders(ctx, cfg.Auth.OAuth)
	if err != nil {
		return nil, err
	}

	oauth, err := iauth.NewOAuthService(db, tokens, registry, cfg.Auth.OAuthServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise oauth service: %w", err)
	}

	ws, err := workspaces.NewService(db)
	if err != nil {
		return nil, fmt.Errorf("initialise workspace service: %w", err)
	}

	return &services{Tokens: tokens, Passwords: passwords, OAuth: oauth, Workspaces: ws}, nil
}

// buildProviders registers every provider that carries client credentials.
// Google performs OIDC discovery and therefore needs network access at startup.
func buildProviders(ctx context.Context, settings app.OAuthSettings) (*providers.Registry, error) {
	registry := providers.NewRegistry()

	if settings.Google.Configured() {
		google, err := providers.NewGoogleProvider(ctx, settings.GoogleProviderConfig())
		if err != nil {
			return nil, fmt.Errorf("initialise google provider: %w", err)
		}
		if err := registry.Register(google); err != nil {
			return nil, err
		}
	}

	if settings.GitHub.Configured() {
		github, err := providers.NewGitHubProvider(settings.GitHubProviderConfig())
		if err != nil {
			return nil, fmt.Errorf("initialise github provider: %w", err)
		}
		if err := registry.Register(github); err != nil {
			return nil, err
		}
	}

	return registry, nil
}

// Shutdown stops background jobs, waits for pending mail and releases resources.
func (s *runtimeStack) Shutdown(log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Cleaner != nil {
		<-s.Cleaner.Stop().Done()
	}

	if s.Services != nil && s.Services.Passwords != nil {
		s.Services.Passwords.Wait()
	}

	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			log.Warn("redis shutdown", zap.Error(err))
		}
	}

	if s.DB != nil {
		closeDatabase(s.DB, log)
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	conn := cfg.Database.Connection()
	db, err := database.Open(conn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrate(db); err != nil {
		_ = database.Close(db)
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	logger.WithModule("database").Info("database connected", zap.String("driver", conn.Driver))
	return db, nil
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if err := database.Close(db); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}
