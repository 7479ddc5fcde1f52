package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/prompthub/authcore/internal/session"
	"github.com/prompthub/authcore/pkg/response"
)

const (
	CtxUserIDKey         = "userID"
	CtxTokenExpiresInKey = "tokenExpiresIn"
)

// RequireAuth rejects requests without a valid Bearer access token and
// stores the caller on the gin context.
func RequireAuth(boundary *session.Boundary) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, err := boundary.Authenticate(c.GetHeader("Authorization"))
		if err != nil {
			c.Header("WWW-Authenticate", "Bearer")
			response.Error(c, err)
			c.Abort()
			return
		}

		c.Set(CtxUserIDKey, identity.UserID)
		c.Set(CtxTokenExpiresInKey, identity.ExpiresIn)
		c.Next()
	}
}

// UserID returns the authenticated user stored by RequireAuth.
func UserID(c *gin.Context) (uint, bool) {
	v, ok := c.Get(CtxUserIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint)
	return id, ok && id != 0
}

// TokenExpiresIn returns the remaining lifetime of the presented access token.
func TokenExpiresIn(c *gin.Context) time.Duration {
	v, ok := c.Get(CtxTokenExpiresInKey)
	if !ok {
		return 0
	}
	d, _ := v.(time.Duration)
	return d
}
