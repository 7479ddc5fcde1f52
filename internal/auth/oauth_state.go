package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prompthub/authcore/pkg/crypto"
)

// DefaultStateTTL bounds how long an authorization round trip may take.
const DefaultStateTTL = 10 * time.Minute

var (
	errStateExpired = errors.New("oauth state: expired")
	errStateInvalid = errors.New("oauth state: invalid")
)

// OAuthMode selects what a completed authorization does.
type OAuthMode string

const (
	// OAuthModeLogin signs in (or signs up) with the provider identity.
	OAuthModeLogin OAuthMode = "login"
	// OAuthModeLink attaches the provider identity to an already signed-in user.
	OAuthModeLink OAuthMode = "link"
)

// StateCodec seals the values an authorization callback needs into the
// opaque state parameter, so no server-side flow storage is required.
type StateCodec struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// StatePayload is the sealed content of the state parameter.
type StatePayload struct {
	Provider string    `json:"p"`
	Mode     OAuthMode `json:"m"`
	UserID   uint      `json:"u,omitempty"`
	Nonce    string    `json:"n"`
	PKCE     string    `json:"k"`
	Binding  string    `json:"b"`
	IssuedAt time.Time `json:"iat"`
}

// NewStateCodec constructs a StateCodec using the provided symmetric encryption key and lifetime.
func NewStateCodec(key []byte, ttl time.Duration, now func() time.Time) (*StateCodec, error) {
	length := len(key)
	if length != 16 && length != 24 && length != 32 {
		return nil, fmt.Errorf("oauth state: key must be 16, 24, or 32 bytes, got %d", length)
	}
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	if now == nil {
		now = time.Now
	}
	return &StateCodec{key: key, ttl: ttl, now: now}, nil
}

// Encode encrypts the supplied payload into a compact state string.
func (c *StateCodec) Encode(payload StatePayload) (string, error) {
	payload.Provider = strings.ToLower(strings.TrimSpace(payload.Provider))
	if payload.Provider == "" {
		return "", errors.New("oauth state: provider is required")
	}
	switch payload.Mode {
	case OAuthModeLogin:
		payload.UserID = 0
	case OAuthModeLink:
		if payload.UserID == 0 {
			return "", errors.New("oauth state: link mode requires a user")
		}
	default:
		return "", fmt.Errorf("oauth state: unknown mode %q", payload.Mode)
	}
	if payload.Binding == "" {
		return "", errors.New("oauth state: browser binding is required")
	}
	payload.IssuedAt = c.now().UTC()

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("oauth state: marshal payload: %w", err)
	}

	encoded, err := crypto.Encrypt(raw, c.key)
	if err != nil {
		return "", fmt.Errorf("oauth state: encrypt payload: %w", err)
	}
	return encoded, nil
}

// TTL reports how long an encoded state stays valid.
func (c *StateCodec) TTL() time.Duration {
	return c.ttl
}

// Decode decrypts the state string back into a payload while enforcing expiry.
func (c *StateCodec) Decode(token string) (StatePayload, error) {
	var payload StatePayload
	if strings.TrimSpace(token) == "" {
		return payload, errStateInvalid
	}

	raw, err := crypto.Decrypt(token, c.key)
	if err != nil {
		return payload, errStateInvalid
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return payload, errStateInvalid
	}

	if payload.Provider == "" || payload.Binding == "" || payload.IssuedAt.IsZero() {
		return payload, errStateInvalid
	}
	if payload.Mode != OAuthModeLogin && payload.Mode != OAuthModeLink {
		return payload, errStateInvalid
	}
	if payload.Mode == OAuthModeLink && payload.UserID == 0 {
		return payload, errStateInvalid
	}

	if c.now().UTC().After(payload.IssuedAt.Add(c.ttl)) {
		return payload, errStateExpired
	}
	return payload, nil
}
