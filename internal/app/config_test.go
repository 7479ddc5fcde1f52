package app

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/prompthub/authcore/internal/auth"
	"github.com/prompthub/authcore/internal/database"
)

func TestLoadConfigFromFile(t *testing.T) {
	cfg, err := LoadConfig("testdata")
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "debug", cfg.Server.LogLevel)
	require.Equal(t, "console", cfg.Server.LogFormat)
	require.Equal(t, "https://prompts.example.com", cfg.Server.AppURL)
	require.Equal(t, []string{"https://prompts.example.com", "https://admin.example.com"}, cfg.Server.CORS.AllowedOrigins)
	require.Equal(t, 50, cfg.Server.RateLimit.Requests)
	require.Equal(t, 30*time.Second, cfg.Server.RateLimit.Window)

	require.Equal(t, "postgres", cfg.Database.Driver)
	require.Equal(t, "db.example.com", cfg.Database.Postgres.Host)
	require.Equal(t, 5433, cfg.Database.Postgres.Port)

	require.True(t, cfg.Cache.Redis.Enabled)
	require.Equal(t, "redis.example.com:6380", cfg.Cache.Redis.Address)
	require.Equal(t, 2, cfg.Cache.Redis.DB)
	require.Equal(t, 3*time.Second, cfg.Cache.Redis.Timeout)

	require.Equal(t, "prompthub", cfg.Auth.JWT.Issuer)
	require.Equal(t, 30*time.Minute, cfg.Auth.JWT.TTL)
	require.Equal(t, 14, cfg.Auth.Refresh.TTLDays)
	require.Equal(t, 64, cfg.Auth.Refresh.TokenLength)
	require.False(t, cfg.Auth.Refresh.RevokeOnReuse)
	require.True(t, cfg.Auth.Cookie.Secure)
	require.Equal(t, "example.com", cfg.Auth.Cookie.Domain)
	require.Equal(t, 8, cfg.Auth.Password.MinLength)
	require.Equal(t, 11, cfg.Auth.Password.BcryptCost)
	require.Equal(t, 45*time.Minute, cfg.Auth.Password.ResetTTL)
	require.True(t, cfg.Auth.OAuth.GitHub.Configured())
	require.False(t, cfg.Auth.OAuth.Google.Configured())

	require.True(t, cfg.Email.SMTP.Enabled)
	require.Equal(t, "smtp.example.com", cfg.Email.SMTP.Host)
	require.Equal(t, 2525, cfg.Email.SMTP.Port)
	require.Equal(t, 15*time.Second, cfg.Email.SMTP.Timeout)

	require.False(t, cfg.Maintenance.Enabled)
	require.Equal(t, "@every 30m", cfg.Maintenance.TokenSchedule)

	require.NoError(t, cfg.Validate())
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, 8000, cfg.Server.Port)
	require.Equal(t, "json", cfg.Server.LogFormat)
	require.Equal(t, "sqlite", cfg.Database.Driver)
	require.Equal(t, 15*time.Minute, cfg.Auth.JWT.TTL)
	require.Equal(t, 30, cfg.Auth.Refresh.TTLDays)
	require.True(t, cfg.Auth.Refresh.RevokeOnReuse)
	require.Equal(t, 6, cfg.Auth.Password.MinLength)
	require.Equal(t, time.Hour, cfg.Auth.Password.ResetTTL)
	require.False(t, cfg.Email.SMTP.Enabled)
	require.True(t, cfg.Maintenance.Enabled)

	require.ErrorContains(t, cfg.Validate(), "auth.jwt.secret")
}

func TestLoadConfigEnvironmentOverrides(t *testing.T) {
	t.Setenv("AUTHCORE_SERVER_PORT", "7070")
	t.Setenv("AUTHCORE_AUTH_JWT_SECRET", strings.Repeat("j", 40))
	t.Setenv("AUTHCORE_AUTH_REFRESH_TTL_DAYS", "7")
	t.Setenv("AUTHCORE_SERVER_CORS_ALLOWED_ORIGINS", "https://a.example.com,https://b.example.com")

	cfg, err := LoadConfig("testdata")
	require.NoError(t, err)

	require.Equal(t, 7070, cfg.Server.Port)
	require.Equal(t, strings.Repeat("j", 40), cfg.Auth.JWT.Secret)
	require.Equal(t, 7, cfg.Auth.Refresh.TTLDays)
	require.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.Server.CORS.AllowedOrigins)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server: ServerConfig{Port: 8000, AppURL: "http://localhost:3000"},
			Auth: AuthConfig{
				JWT:     JWTSettings{Secret: strings.Repeat("a", 32)},
				Refresh: RefreshSettings{Secret: strings.Repeat("b", 32)},
			},
		}
	}
	require.NoError(t, valid().Validate())

	shortRefresh := valid()
	shortRefresh.Auth.Refresh.Secret = "short"
	require.ErrorContains(t, shortRefresh.Validate(), "auth.refresh.secret")

	shared := valid()
	shared.Auth.Refresh.Secret = shared.Auth.JWT.Secret
	require.ErrorContains(t, shared.Validate(), "must differ")

	noURL := valid()
	noURL.Server.AppURL = ""
	require.ErrorContains(t, noURL.Validate(), "app_url")

	badLimit := valid()
	badLimit.Server.RateLimit.Requests = 10
	require.ErrorContains(t, badLimit.Validate(), "rate_limit.window")
}

func TestAuthConfigAdapters(t *testing.T) {
	cfg := AuthConfig{
		JWT:      JWTSettings{Secret: "jwt", Issuer: "issuer", TTL: 30 * time.Minute},
		Refresh:  RefreshSettings{Secret: "refresh", TTLDays: 7, TokenLength: 32, RevokeOnReuse: true},
		Password: PasswordSettings{MinLength: 10, BcryptCost: 11, ResetTTL: 20 * time.Minute},
	}

	require.Equal(t, auth.JWTConfig{
		Secret:         "jwt",
		Issuer:         "issuer",
		AccessTokenTTL: 30 * time.Minute,
	}, cfg.JWTServiceConfig())

	require.Equal(t, auth.TokenConfig{
		RefreshSecret:   "refresh",
		RefreshTokenTTL: 7 * 24 * time.Hour,
		RefreshLength:   32,
		RevokeOnReuse:   true,
	}, cfg.TokenServiceConfig())

	pw := cfg.PasswordServiceConfig("https://app.example.com", "no-reply@example.com", 5*time.Second)
	require.Equal(t, 10, pw.MinLength)
	require.Equal(t, 20*time.Minute, pw.ResetTTL)
	require.Equal(t, "refresh", pw.TokenSecret)
	require.Equal(t, "https://app.example.com", pw.AppURL)

	require.Equal(t, "jwt", cfg.OAuthServiceConfig().Secret)
}

func TestAuthConfigAdaptersFallback(t *testing.T) {
	var cfg AuthConfig

	require.Equal(t, auth.DefaultAccessTokenTTL, cfg.JWTServiceConfig().AccessTokenTTL)

	tokens := cfg.TokenServiceConfig()
	require.Equal(t, auth.DefaultRefreshTokenTTL, tokens.RefreshTokenTTL)
	require.Equal(t, auth.DefaultRefreshTokenLength, tokens.RefreshLength)

	pw := cfg.PasswordServiceConfig("", "", 0)
	require.Equal(t, auth.DefaultMinPasswordLength, pw.MinLength)
	require.Equal(t, auth.DefaultResetTokenTTL, pw.ResetTTL)
}

func TestDatabaseConnection(t *testing.T) {
	cfg := DatabaseConfig{
		Driver: "MySQL",
		MySQL:  DBAuthConfig{Host: "mysql.local", Port: 3307, Database: "auth", Username: "u", Password: "p"},
		Postgres: DBAuthConfig{
			Host: "ignored",
		},
	}
	require.Equal(t, database.Config{
		Driver:   "mysql",
		Host:     "mysql.local",
		Port:     3307,
		Name:     "auth",
		User:     "u",
		Password: "p",
	}, cfg.Connection())

	sqlite := DatabaseConfig{Driver: "sqlite", Path: "./data/test.sqlite"}
	require.Equal(t, database.Config{Driver: "sqlite", Path: "./data/test.sqlite"}, sqlite.Connection())
}

func TestSMTPSettingsRequireHostAndSender(t *testing.T) {
	cfg := EmailConfig{SMTP: SMTPConfig{Enabled: true, Host: "smtp.example.com"}}
	require.False(t, cfg.SMTPSettings().Enabled)

	cfg.SMTP.From = "no-reply@example.com"
	require.True(t, cfg.SMTPSettings().Enabled)
}
