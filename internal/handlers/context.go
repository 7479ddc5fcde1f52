package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/prompthub/authcore/internal/middleware"
	"github.com/prompthub/authcore/internal/workspaces"
	"github.com/prompthub/authcore/pkg/errors"
	"github.com/prompthub/authcore/pkg/response"
)

// requestContext safely returns the request context with a background fallback for tests.
func requestContext(c *gin.Context) context.Context {
	if c == nil {
		return context.Background()
	}
	if req := c.Request; req != nil {
		return req.Context()
	}
	return context.Background()
}

// currentUser returns the authenticated caller, writing a 401 when the route is
// not behind RequireAuth.
func currentUser(c *gin.Context) (uint, bool) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return 0, false
	}
	return userID, true
}

// currentWorkspace returns the context resolved by RequireWorkspace.
func currentWorkspace(c *gin.Context) (*workspaces.Context, bool) {
	wc, ok := middleware.Workspace(c)
	if !ok {
		response.Error(c, errors.ErrWorkspaceNotFound)
		return nil, false
	}
	return wc, true
}
