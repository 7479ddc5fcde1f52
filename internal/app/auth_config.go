package app

import (
	"strings"
	"time"

	"github.com/prompthub/authcore/internal/auth"
	"github.com/prompthub/authcore/internal/auth/providers"
)

// JWTServiceConfig converts AuthConfig into the parameters expected by the JWT service.
func (c AuthConfig) JWTServiceConfig() auth.JWTConfig {
	ttl := c.JWT.TTL
	if ttl <= 0 {
		ttl = auth.DefaultAccessTokenTTL
	}

	return auth.JWTConfig{
		Secret:         c.JWT.Secret,
		Issuer:         c.JWT.Issuer,
		AccessTokenTTL: ttl,
	}
}

// TokenServiceConfig converts AuthConfig into TokenService parameters.
func (c AuthConfig) TokenServiceConfig() auth.TokenConfig {
	ttl := time.Duration(c.Refresh.TTLDays) * 24 * time.Hour
	if ttl <= 0 {
		ttl = auth.DefaultRefreshTokenTTL
	}

	length := c.Refresh.TokenLength
	if length <= 0 {
		length = auth.DefaultRefreshTokenLength
	}

	return auth.TokenConfig{
		RefreshSecret:   c.Refresh.Secret,
		RefreshTokenTTL: ttl,
		RefreshLength:   length,
		RevokeOnReuse:   c.Refresh.RevokeOnReuse,
	}
}

// PasswordServiceConfig converts AuthConfig into PasswordService parameters. Reset
// links point at appURL and are sent from mailFrom.
func (c AuthConfig) PasswordServiceConfig(appURL, mailFrom string, mailTimeout time.Duration) auth.PasswordConfig {
	minLength := c.Password.MinLength
	if minLength <= 0 {
		minLength = auth.DefaultMinPasswordLength
	}
	resetTTL := c.Password.ResetTTL
	if resetTTL <= 0 {
		resetTTL = auth.DefaultResetTokenTTL
	}

	return auth.PasswordConfig{
		MinLength:   minLength,
		BcryptCost:  c.Password.BcryptCost,
		ResetTTL:    resetTTL,
		AppURL:      appURL,
		MailFrom:    mailFrom,
		MailTimeout: mailTimeout,
		TokenSecret: c.Refresh.Secret,
	}
}

// OAuthServiceConfig converts AuthConfig into OAuthService parameters.
func (c AuthConfig) OAuthServiceConfig() auth.OAuthConfig {
	return auth.OAuthConfig{
		Secret:   c.JWT.Secret,
		StateTTL: auth.DefaultStateTTL,
	}
}

// GoogleProviderConfig converts the Google client registration into provider parameters.
func (c OAuthSettings) GoogleProviderConfig() providers.GoogleConfig {
	return providers.GoogleConfig{
		ClientID:     strings.TrimSpace(c.Google.ClientID),
		ClientSecret: c.Google.ClientSecret,
		RedirectURL:  strings.TrimSpace(c.Google.RedirectURL),
	}
}

// GitHubProviderConfig converts the GitHub client registration into provider parameters.
func (c OAuthSettings) GitHubProviderConfig() providers.GitHubConfig {
	return providers.GitHubConfig{
		ClientID:     strings.TrimSpace(c.GitHub.ClientID),
		ClientSecret: c.GitHub.ClientSecret,
		RedirectURL:  strings.TrimSpace(c.GitHub.RedirectURL),
	}
}
