package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	// RefreshCookieName carries the opaque refresh token.
	RefreshCookieName = "refresh_token"
	refreshCookiePath = "/api/auth"

	// OAuthBindingCookieName ties a provider round trip to the browser that started it.
	OAuthBindingCookieName = "oauth_binding"
	oauthBindingCookiePath = "/api/auth/oauth"
)

// CookieConfig holds the deployment-specific refresh cookie attributes.
type CookieConfig struct {
	Secure bool
	Domain string
	TTL    time.Duration
}

// setRefreshCookie stores token as an HttpOnly, SameSite=Strict cookie that lives as long as the token.
func setRefreshCookie(c *gin.Context, cfg CookieConfig, token string) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    token,
		Path:     refreshCookiePath,
		Domain:   cfg.Domain,
		MaxAge:   int(cfg.TTL / time.Second),
		Secure:   cfg.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

// clearRefreshCookie expires the refresh cookie immediately.
func clearRefreshCookie(c *gin.Context, cfg CookieConfig) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    "",
		Path:     refreshCookiePath,
		Domain:   cfg.Domain,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		Secure:   cfg.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

// refreshCookie reads the refresh token. Bodies and headers are never consulted.
func refreshCookie(c *gin.Context) string {
	value, err := c.Cookie(RefreshCookieName)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(value)
}

// setOAuthBindingCookie stores the round-trip binding. SameSite=Lax so it
// survives the top-level redirect back from the provider.
func setOAuthBindingCookie(c *gin.Context, cfg CookieConfig, binding string, ttl time.Duration) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     OAuthBindingCookieName,
		Value:    binding,
		Path:     oauthBindingCookiePath,
		Domain:   cfg.Domain,
		MaxAge:   int(ttl / time.Second),
		Secure:   cfg.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// takeOAuthBindingCookie reads the binding and expires it, so each value completes one round trip.
func takeOAuthBindingCookie(c *gin.Context, cfg CookieConfig) string {
	value, err := c.Cookie(OAuthBindingCookieName)
	if err != nil {
		value = ""
	}
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     OAuthBindingCookieName,
		Value:    "",
		Path:     oauthBindingCookiePath,
		Domain:   cfg.Domain,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		Secure:   cfg.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return strings.TrimSpace(value)
}
