package api

import (
	"github.com/gin-gonic/gin"

	"github.com/prompthub/authcore/internal/handlers"
	"github.com/prompthub/authcore/internal/middleware"
	"github.com/prompthub/authcore/internal/session"
	"github.com/prompthub/authcore/internal/workspaces"
)

func registerWorkspaceRoutes(engine *gin.Engine, requireAuth gin.HandlerFunc, boundary *session.Boundary, h *handlers.WorkspaceHandler) {
	group := engine.Group("/api/workspaces", requireAuth)
	{
		group.POST("", h.Create)
		group.DELETE("/invites/:token", h.CancelInvite)

		member := middleware.RequireWorkspace(boundary, workspaces.IsMember)
		group.GET("/:id", member, h.Get)
		group.GET("/:id/members", member, h.Members)
		group.DELETE("/:id/members/:userId", member, h.RemoveMember)

		group.POST("/:id/invites", middleware.RequireWorkspace(boundary, workspaces.IsMember, workspaces.IsAdminOrOwner), h.Invite)
	}
}
