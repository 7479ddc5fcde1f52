// Package session is the request-facing entry point other modules call to
// authenticate a caller and authorize workspace access.
package session

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/prompthub/authcore/internal/workspaces"
	apperrors "github.com/prompthub/authcore/pkg/errors"
)

// ErrAnonymous is returned when a request carries no usable access token.
var ErrAnonymous = apperrors.ErrUnauthorized.WithMessage("Authentication required")

// AccessVerifier checks access tokens.
type AccessVerifier interface {
	VerifyAccess(token string) (uint, time.Duration, error)
}

// WorkspaceLoader resolves workspace authorization state.
type WorkspaceLoader interface {
	Load(ctx context.Context, workspaceID, requesterID uint) (*workspaces.Context, error)
}

// Identity is the authenticated caller of a request.
type Identity struct {
	UserID    uint
	ExpiresIn time.Duration
}

// Boundary authenticates requests and loads workspace context for them.
type Boundary struct {
	tokens     AccessVerifier
	workspaces WorkspaceLoader
}

// NewBoundary constructs a Boundary.
func NewBoundary(tokens AccessVerifier, loader WorkspaceLoader) (*Boundary, error) {
	if tokens == nil {
		return nil, errors.New("session boundary: access verifier is required")
	}
	if loader == nil {
		return nil, errors.New("session boundary: workspace loader is required")
	}
	return &Boundary{tokens: tokens, workspaces: loader}, nil
}

// Authenticate extracts a Bearer token from an Authorization header value and verifies it.
func (b *Boundary) Authenticate(bearerHeader string) (Identity, error) {
	token, ok := BearerToken(bearerHeader)
	if !ok {
		return Identity{}, ErrAnonymous
	}
	userID, remaining, err := b.tokens.VerifyAccess(token)
	if err != nil || userID == 0 {
		return Identity{}, ErrAnonymous
	}
	return Identity{UserID: userID, ExpiresIn: remaining}, nil
}

// AuthorizeWorkspace parses a workspace path parameter and loads the
// requester's context for it. Malformed ids are reported as not found.
func (b *Boundary) AuthorizeWorkspace(ctx context.Context, workspaceParam string, requesterID uint) (*workspaces.Context, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(workspaceParam), 10, 64)
	if err != nil || id == 0 {
		return nil, apperrors.ErrWorkspaceNotFound
	}
	return b.workspaces.Load(ctx, uint(id), requesterID)
}

// BearerToken returns the token of an "Authorization: Bearer <token>" value.
func BearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if len(header) < 8 || !strings.EqualFold(header[:7], "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(header[7:])
	return token, token != ""
}
