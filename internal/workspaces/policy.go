// Package workspaces decides what a caller may do inside a workspace.
//
// Decisions are pure functions over a loaded Context. Handlers compose them
// with Require instead of stacking middleware.
package workspaces

import (
	"github.com/prompthub/authcore/internal/models"
	apperrors "github.com/prompthub/authcore/pkg/errors"
	"github.com/prompthub/authcore/pkg/metrics"
)

// Context is the authorization state of one request against one workspace.
type Context struct {
	Workspace   *models.Workspace
	RequesterID uint
	// Role is the requester's membership role, empty when not a member.
	Role models.WorkspaceRole
}

// Decision renders an allow (nil) or deny (*errors.AppError) outcome.
type Decision func(c *Context) error

// IsCreator reports whether the requester created the workspace.
func (c *Context) IsCreator() bool {
	return c != nil && c.Workspace != nil && c.RequesterID != 0 && c.Workspace.CreatedBy == c.RequesterID
}

// EffectiveRole returns the role used for ordering. The creator always ranks as owner.
func EffectiveRole(c *Context) models.WorkspaceRole {
	if c == nil {
		return ""
	}
	if c.IsCreator() {
		return models.RoleOwner
	}
	if c.Role.Valid() {
		return c.Role
	}
	return ""
}

// IsMember allows the creator of a personal workspace and anyone holding a role.
func IsMember(c *Context) error {
	allowed := c != nil && c.Workspace != nil &&
		((c.Workspace.Kind == models.WorkspaceKindPersonal && c.IsCreator()) || c.Role.Valid())
	return record("is_member", allowed, apperrors.ErrForbidden)
}

// IsAdminOrOwner allows admins, owner rows and the creator.
func IsAdminOrOwner(c *Context) error {
	allowed := c != nil && (c.IsCreator() || c.Role == models.RoleAdmin || c.Role == models.RoleOwner)
	return record("is_admin_or_owner", allowed, apperrors.ErrForbiddenAction)
}

// CanRemoveMember allows self-removal and removal by an admin or owner.
func CanRemoveMember(c *Context, targetUserID uint) error {
	if c != nil && c.RequesterID != 0 && c.RequesterID == targetUserID {
		return record("can_remove_member", true, nil)
	}
	if IsAdminOrOwner(c) == nil {
		return record("can_remove_member", true, nil)
	}
	return record("can_remove_member", false, apperrors.ErrForbiddenAction)
}

// RemoveMemberDecision adapts CanRemoveMember for Require.
func RemoveMemberDecision(targetUserID uint) Decision {
	return func(c *Context) error {
		return CanRemoveMember(c, targetUserID)
	}
}

// CanSharePrompt allows any member. Callers run it after IsMember.
func CanSharePrompt(*Context) error {
	return record("can_share_prompt", true, nil)
}

// CancelInvite always fails: invites are applied when created, so there is nothing to cancel.
func CancelInvite() error {
	metrics.PermissionChecks.WithLabelValues("cancel_invite", "disabled").Inc()
	return apperrors.ErrInviteFlowDisabled
}

// Require runs decisions in order and returns the first denial.
func Require(c *Context, decisions ...Decision) error {
	for _, decide := range decisions {
		if err := decide(c); err != nil {
			return err
		}
	}
	return nil
}

func record(check string, allowed bool, deny *apperrors.AppError) error {
	if allowed {
		metrics.PermissionChecks.WithLabelValues(check, "allow").Inc()
		return nil
	}
	metrics.PermissionChecks.WithLabelValues(check, "deny").Inc()
	return deny
}
