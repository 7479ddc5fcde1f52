package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/prompthub/authcore/internal/session"
	"github.com/prompthub/authcore/internal/workspaces"
	"github.com/prompthub/authcore/pkg/errors"
	"github.com/prompthub/authcore/pkg/response"
)

const CtxWorkspaceKey = "workspaceContext"

// RequireWorkspace loads the workspace named by the :id path parameter for the
// authenticated caller and applies the given decisions. Must run after RequireAuth.
func RequireWorkspace(boundary *session.Boundary, decisions ...workspaces.Decision) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := UserID(c)
		if !ok {
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		wc, err := boundary.AuthorizeWorkspace(c.Request.Context(), c.Param("id"), userID)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}
		if err := workspaces.Require(wc, decisions...); err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		c.Set(CtxWorkspaceKey, wc)
		c.Next()
	}
}

// Workspace returns the context stored by RequireWorkspace.
func Workspace(c *gin.Context) (*workspaces.Context, bool) {
	v, ok := c.Get(CtxWorkspaceKey)
	if !ok {
		return nil, false
	}
	wc, ok := v.(*workspaces.Context)
	return wc, ok && wc != nil
}
