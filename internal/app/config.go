package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// MinSecretLength is the shortest accepted signing secret.
const MinSecretLength = 32

// Config represents the runtime configuration for the authcore server.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Email       EmailConfig       `mapstructure:"email"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port      int             `mapstructure:"port"`
	LogLevel  string          `mapstructure:"log_level"`
	LogFormat string          `mapstructure:"log_format"`
	AppURL    string          `mapstructure:"app_url"`
	CORS      CORSConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// CORSConfig lists the browser origins allowed to call the API with credentials.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// RateLimitConfig bounds requests per client within a fixed window. Zero requests disables it.
type RateLimitConfig struct {
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

// DatabaseConfig describes connection options for the supported databases.
type DatabaseConfig struct {
	Driver   string       `mapstructure:"driver"`
	Path     string       `mapstructure:"path"`
	DSN      string       `mapstructure:"dsn"`
	Postgres DBAuthConfig `mapstructure:"postgres"`
	MySQL    DBAuthConfig `mapstructure:"mysql"`
}

// DBAuthConfig represents host based database parameters.
type DBAuthConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// CacheConfig describes the rate-limit counter backends.
type CacheConfig struct {
	Redis RedisCacheConfig `mapstructure:"redis"`
}

// RedisCacheConfig holds Redis connection options.
type RedisCacheConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Address  string        `mapstructure:"address"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TLS      bool          `mapstructure:"tls"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// AuthConfig captures all authentication-related settings.
type AuthConfig struct {
	JWT      JWTSettings      `mapstructure:"jwt"`
	Refresh  RefreshSettings  `mapstructure:"refresh"`
	Cookie   CookieSettings   `mapstructure:"cookie"`
	Password PasswordSettings `mapstructure:"password"`
	OAuth    OAuthSettings    `mapstructure:"oauth"`
}

// JWTSettings configures access tokens.
type JWTSettings struct {
	Secret string        `mapstructure:"secret"`
	Issuer string        `mapstructure:"issuer"`
	TTL    time.Duration `mapstructure:"access_token_ttl"`
}

// RefreshSettings configures the rotating refresh credential.
type RefreshSettings struct {
	Secret        string `mapstructure:"secret"`
	TTLDays       int    `mapstructure:"ttl_days"`
	TokenLength   int    `mapstructure:"token_length"`
	RevokeOnReuse bool   `mapstructure:"revoke_on_reuse"`
}

// CookieSettings controls the refresh cookie attributes that vary per deployment.
type CookieSettings struct {
	Secure bool   `mapstructure:"secure"`
	Domain string `mapstructure:"domain"`
}

// PasswordSettings controls local credentials and the reset flow.
type PasswordSettings struct {
	MinLength  int           `mapstructure:"min_length"`
	BcryptCost int           `mapstructure:"bcrypt_cost"`
	ResetTTL   time.Duration `mapstructure:"reset_ttl"`
}

// OAuthSettings holds the client registrations of the external identity providers.
type OAuthSettings struct {
	Google OAuthClient `mapstructure:"google"`
	GitHub OAuthClient `mapstructure:"github"`
}

// OAuthClient is one provider registration. A provider without a client id is not offered.
type OAuthClient struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RedirectURL  string `mapstructure:"redirect_url"`
}

// Configured reports whether the client carries credentials.
func (c OAuthClient) Configured() bool {
	return strings.TrimSpace(c.ClientID) != "" && strings.TrimSpace(c.ClientSecret) != ""
}

// EmailConfig captures outbound email settings.
type EmailConfig struct {
	SMTP SMTPConfig `mapstructure:"smtp"`
}

// SMTPConfig defines SMTP dialer settings for sending email.
type SMTPConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	From     string        `mapstructure:"from"`
	UseTLS   bool          `mapstructure:"use_tls"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// MaintenanceConfig schedules the background cleaner.
type MaintenanceConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	TokenSchedule string `mapstructure:"token_schedule"`
}

// LoadConfig initialises application configuration using Viper with sensible defaults.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix("AUTHCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	return &config, nil
}

// Validate checks the settings that cannot be defaulted safely.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config: nil config")
	}
	if len(strings.TrimSpace(c.Auth.JWT.Secret)) < MinSecretLength {
		return fmt.Errorf("config: auth.jwt.secret must be at least %d characters", MinSecretLength)
	}
	if len(strings.TrimSpace(c.Auth.Refresh.Secret)) < MinSecretLength {
		return fmt.Errorf("config: auth.refresh.secret must be at least %d characters", MinSecretLength)
	}
	if c.Auth.JWT.Secret == c.Auth.Refresh.Secret {
		return errors.New("config: auth.jwt.secret and auth.refresh.secret must differ")
	}
	if strings.TrimSpace(c.Server.AppURL) == "" {
		return errors.New("config: server.app_url is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: invalid server.port %d", c.Server.Port)
	}
	if c.Server.RateLimit.Requests > 0 && c.Server.RateLimit.Window <= 0 {
		return errors.New("config: server.rate_limit.window must be positive")
	}
	return nil
}

// every key needs a default so AutomaticEnv can override it during Unmarshal
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "json")
	v.SetDefault("server.app_url", "http://localhost:3000")
	v.SetDefault("server.cors.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.rate_limit.requests", 300)
	v.SetDefault("server.rate_limit.window", "1m")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/authcore.sqlite")
	v.SetDefault("database.dsn", "")
	for _, driver := range []string{"postgres", "mysql"} {
		v.SetDefault("database."+driver+".host", "")
		v.SetDefault("database."+driver+".port", 0)
		v.SetDefault("database."+driver+".database", "")
		v.SetDefault("database."+driver+".username", "")
		v.SetDefault("database."+driver+".password", "")
	}

	v.SetDefault("cache.redis.enabled", false)
	v.SetDefault("cache.redis.address", "127.0.0.1:6379")
	v.SetDefault("cache.redis.username", "")
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.tls", false)
	v.SetDefault("cache.redis.timeout", "5s")

	v.SetDefault("auth.jwt.secret", "")
	v.SetDefault("auth.jwt.issuer", "authcore")
	v.SetDefault("auth.jwt.access_token_ttl", "15m")
	v.SetDefault("auth.refresh.secret", "")
	v.SetDefault("auth.refresh.ttl_days", 30)
	v.SetDefault("auth.refresh.token_length", 48)
	v.SetDefault("auth.refresh.revoke_on_reuse", true)
	v.SetDefault("auth.cookie.secure", false)
	v.SetDefault("auth.cookie.domain", "")
	v.SetDefault("auth.password.min_length", 6)
	v.SetDefault("auth.password.bcrypt_cost", 12)
	v.SetDefault("auth.password.reset_ttl", "1h")
	for _, provider := range []string{"google", "github"} {
		v.SetDefault("auth.oauth."+provider+".client_id", "")
		v.SetDefault("auth.oauth."+provider+".client_secret", "")
		v.SetDefault("auth.oauth."+provider+".redirect_url", "")
	}

	v.SetDefault("email.smtp.enabled", false)
	v.SetDefault("email.smtp.host", "")
	v.SetDefault("email.smtp.port", 587)
	v.SetDefault("email.smtp.username", "")
	v.SetDefault("email.smtp.password", "")
	v.SetDefault("email.smtp.from", "")
	v.SetDefault("email.smtp.use_tls", true)
	v.SetDefault("email.smtp.timeout", "10s")

	v.SetDefault("maintenance.enabled", true)
	v.SetDefault("maintenance.token_schedule", "@hourly")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
