package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/prompthub/authcore/internal/models"
	"github.com/prompthub/authcore/internal/workspaces"
	"github.com/prompthub/authcore/pkg/errors"
	"github.com/prompthub/authcore/pkg/response"
)

// WorkspaceHandler exposes workspace membership endpoints. Membership checks
// run in middleware.RequireWorkspace before these handlers.
type WorkspaceHandler struct {
	svc *workspaces.Service
}

func NewWorkspaceHandler(svc *workspaces.Service) *WorkspaceHandler {
	return &WorkspaceHandler{svc: svc}
}

type workspaceResponse struct {
	Workspace *models.Workspace    `json:"workspace"`
	Role      models.WorkspaceRole `json:"role"`
}

// POST /api/workspaces
func (h *WorkspaceHandler) Create(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req workspaces.CreateInput
	if !bindJSON(c, &req) {
		return
	}

	workspace, err := h.svc.Create(requestContext(c), userID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, workspaceResponse{Workspace: workspace, Role: models.RoleOwner})
}

// GET /api/workspaces/:id
func (h *WorkspaceHandler) Get(c *gin.Context) {
	wc, ok := currentWorkspace(c)
	if !ok {
		return
	}
	response.Success(c, http.StatusOK, workspaceResponse{Workspace: wc.Workspace, Role: workspaces.EffectiveRole(wc)})
}

// GET /api/workspaces/:id/members
func (h *WorkspaceHandler) Members(c *gin.Context) {
	wc, ok := currentWorkspace(c)
	if !ok {
		return
	}

	members, err := h.svc.Members(requestContext(c), wc)
	if err != nil {
		response.Error(c, err)
		return
	}
	if members == nil {
		members = []models.WorkspaceMember{}
	}
	response.Success(c, http.StatusOK, members)
}

// POST /api/workspaces/:id/invites
func (h *WorkspaceHandler) Invite(c *gin.Context) {
	wc, ok := currentWorkspace(c)
	if !ok {
		return
	}

	var req workspaces.InviteInput
	if !bindAndValidate(c, &req) {
		return
	}

	invite, err := h.svc.Invite(requestContext(c), wc, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, invite)
}

// DELETE /api/workspaces/:id/members/:userId
func (h *WorkspaceHandler) RemoveMember(c *gin.Context) {
	wc, ok := currentWorkspace(c)
	if !ok {
		return
	}

	target, err := strconv.ParseUint(strings.TrimSpace(c.Param("userId")), 10, 64)
	if err != nil || target == 0 {
		response.Error(c, errors.ErrNotFound.WithMessage("Member not found"))
		return
	}

	if err := h.svc.RemoveMember(requestContext(c), wc, uint(target)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// DELETE /api/workspaces/invites/:token
func (h *WorkspaceHandler) CancelInvite(c *gin.Context) {
	if _, ok := currentUser(c); !ok {
		return
	}
	response.Error(c, h.svc.CancelInvite(requestContext(c), c.Param("token")))
}
