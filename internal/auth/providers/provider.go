package providers

import (
	"context"
	"strings"
)

// Supported provider names. The set is closed.
const (
	Google = "google"
	GitHub = "github"
)

// Supported reports whether name is one of the identity providers this service can link.
func Supported(name string) bool {
	switch Normalise(name) {
	case Google, GitHub:
		return true
	default:
		return false
	}
}

// Normalise lower-cases and trims a provider name.
func Normalise(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// AuthorizeRequest carries the values bound into the provider authorization URL.
type AuthorizeRequest struct {
	State         string
	Nonce         string
	PKCEChallenge string
}

// ExchangeRequest carries the callback values needed to complete the code exchange.
type ExchangeRequest struct {
	Code          string
	PKCEVerifier  string
	ExpectedNonce string
}

// Identity represents the profile returned from an external identity provider.
type Identity struct {
	Provider      string
	Subject       string
	Email         string
	EmailVerified bool
	DisplayName   string
	Login         string
	AvatarURL     string
	AccessToken   string
	RefreshToken  string
	RawClaims     map[string]any
}

// Provider drives the authorization code flow for one external identity provider.
type Provider interface {
	Name() string
	AuthCodeURL(req AuthorizeRequest) (string, error)
	Exchange(ctx context.Context, req ExchangeRequest) (*Identity, error)
}

func stringValue(claims map[string]any, key string) string {
	if v, ok := claims[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func boolValue(claims map[string]any, key string) bool {
	if v, ok := claims[key]; ok {
		switch val := v.(type) {
		case bool:
			return val
		case string:
			return strings.EqualFold(val, "true")
		}
	}
	return false
}
