package workspaces

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	nanoid "github.com/jaevor/go-nanoid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/prompthub/authcore/internal/database"
	"github.com/prompthub/authcore/internal/models"
	apperrors "github.com/prompthub/authcore/pkg/errors"
	"github.com/prompthub/authcore/pkg/logger"
	"github.com/prompthub/authcore/pkg/validator"
)

const inviteTokenLength = 21

// CreateInput describes a new workspace.
type CreateInput struct {
	Name string               `json:"name" validate:"required,max=255"`
	Kind models.WorkspaceKind `json:"kind" validate:"omitempty,oneof=personal shared"`
}

// InviteInput names the invitee by email or userid and the granted role.
type InviteInput struct {
	Invitee string               `json:"invitee" validate:"required,max=320"`
	Role    models.WorkspaceRole `json:"role" validate:"required,oneof=admin editor viewer"`
}

// Service loads workspace state and performs the membership changes the
// decisions guard.
type Service struct {
	db       *gorm.DB
	newToken func() string
	log      *zap.Logger
}

// NewService constructs a workspace Service.
func NewService(db *gorm.DB) (*Service, error) {
	if db == nil {
		return nil, errors.New("workspace service: db is required")
	}
	gen, err := nanoid.Standard(inviteTokenLength)
	if err != nil {
		return nil, fmt.Errorf("workspace service: invite token generator: %w", err)
	}
	return &Service{db: db, newToken: gen, log: logger.WithModule("workspaces")}, nil
}

// Load resolves the workspace and the requester's role in it.
func (s *Service) Load(ctx context.Context, workspaceID, requesterID uint) (*Context, error) {
	if workspaceID == 0 {
		return nil, apperrors.ErrWorkspaceNotFound
	}

	var workspace models.Workspace
	err := s.db.WithContext(ctx).Take(&workspace, workspaceID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrWorkspaceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("workspace service: load workspace: %w", err)
	}

	c := &Context{Workspace: &workspace, RequesterID: requesterID}

	var member models.WorkspaceMember
	err = s.db.WithContext(ctx).
		Where("workspace_id = ? AND user_id = ?", workspaceID, requesterID).
		Take(&member).Error
	switch {
	case err == nil:
		c.Role = member.Role
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, fmt.Errorf("workspace service: load membership: %w", err)
	}
	return c, nil
}

// Create makes a workspace owned by creatorID. Shared workspaces get an owner
// membership row; a personal workspace's creator is a member implicitly.
func (s *Service) Create(ctx context.Context, creatorID uint, in CreateInput) (*models.Workspace, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Kind == "" {
		in.Kind = models.WorkspaceKindShared
	}
	if err := validator.ValidateStruct(in); err != nil {
		return nil, apperrors.NewValidation(err.Error())
	}

	workspace := &models.Workspace{Name: in.Name, Kind: in.Kind, CreatedBy: creatorID}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(workspace).Error; err != nil {
			return err
		}
		if workspace.Kind == models.WorkspaceKindPersonal {
			return nil
		}
		return tx.Create(&models.WorkspaceMember{
			WorkspaceID: workspace.ID,
			UserID:      creatorID,
			Role:        models.RoleOwner,
		}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("workspace service: create workspace: %w", err)
	}

	s.log.Info("workspace created",
		zap.Uint("workspace_id", workspace.ID),
		zap.String("kind", string(workspace.Kind)),
		zap.Uint("created_by", creatorID),
	)
	return workspace, nil
}

// Invite adds a member immediately and records the invite as applied.
func (s *Service) Invite(ctx context.Context, c *Context, in InviteInput) (*models.WorkspaceInvite, error) {
	if err := Require(c, IsAdminOrOwner); err != nil {
		return nil, err
	}
	if c.Workspace.Kind == models.WorkspaceKindPersonal {
		return nil, apperrors.ErrForbiddenAction.WithMessage("Personal workspaces cannot have members")
	}

	in.Invitee = strings.TrimSpace(in.Invitee)
	if err := validator.ValidateStruct(in); err != nil {
		return nil, apperrors.NewValidation(err.Error())
	}

	invitee, err := s.findInvitee(ctx, in.Invitee)
	if err != nil {
		return nil, err
	}

	invite := &models.WorkspaceInvite{
		Token:       s.newToken(),
		WorkspaceID: c.Workspace.ID,
		InvitedBy:   c.RequesterID,
		InviteeID:   invitee.ID,
		Role:        in.Role,
		Status:      models.InviteStatusApplied,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.WorkspaceMember{}).
			Where("workspace_id = ? AND user_id = ?", c.Workspace.ID, invitee.ID).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 || invitee.ID == c.Workspace.CreatedBy {
			return apperrors.ErrAlreadyMember
		}
		if err := tx.Create(&models.WorkspaceMember{
			WorkspaceID: c.Workspace.ID,
			UserID:      invitee.ID,
			Role:        in.Role,
		}).Error; err != nil {
			return err
		}
		return tx.Create(invite).Error
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrAlreadyMember) || database.IsUniqueViolation(err) {
			return nil, apperrors.ErrAlreadyMember
		}
		return nil, fmt.Errorf("workspace service: apply invite: %w", err)
	}

	s.log.Info("invite applied",
		zap.Uint("workspace_id", c.Workspace.ID),
		zap.Uint("invitee_id", invitee.ID),
		zap.String("role", string(in.Role)),
	)
	return invite, nil
}

func (s *Service) findInvitee(ctx context.Context, ref string) (*models.User, error) {
	query := s.db.WithContext(ctx)
	if strings.Contains(ref, "@") {
		query = query.Where("email = ?", models.NormalizeEmail(ref))
	} else {
		query = query.Where("userid = ?", models.NormalizeUserID(ref))
	}

	var user models.User
	err := query.Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound.WithMessage("User not found")
	}
	if err != nil {
		return nil, fmt.Errorf("workspace service: find invitee: %w", err)
	}
	return &user, nil
}

// RemoveMember deletes targetUserID's membership. The creator cannot be removed.
func (s *Service) RemoveMember(ctx context.Context, c *Context, targetUserID uint) error {
	if err := Require(c, IsMember, RemoveMemberDecision(targetUserID)); err != nil {
		return err
	}
	if targetUserID == c.Workspace.CreatedBy {
		return apperrors.ErrForbiddenAction.WithMessage("The workspace creator cannot be removed")
	}

	result := s.db.WithContext(ctx).
		Where("workspace_id = ? AND user_id = ?", c.Workspace.ID, targetUserID).
		Delete(&models.WorkspaceMember{})
	if result.Error != nil {
		return fmt.Errorf("workspace service: remove member: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrNotFound.WithMessage("Member not found")
	}

	s.log.Info("member removed",
		zap.Uint("workspace_id", c.Workspace.ID),
		zap.Uint("user_id", targetUserID),
		zap.Uint("removed_by", c.RequesterID),
	)
	return nil
}

// Members lists memberships with their users, highest role first.
func (s *Service) Members(ctx context.Context, c *Context) ([]models.WorkspaceMember, error) {
	if err := Require(c, IsMember); err != nil {
		return nil, err
	}

	var members []models.WorkspaceMember
	if err := s.db.WithContext(ctx).
		Preload("User").
		Where("workspace_id = ?", c.Workspace.ID).
		Order("id").
		Find(&members).Error; err != nil {
		return nil, fmt.Errorf("workspace service: list members: %w", err)
	}

	sort.SliceStable(members, func(i, j int) bool {
		return members[i].Role.Rank() > members[j].Role.Rank()
	})
	return members, nil
}

// CancelInvite is kept as an entry point so callers get the disabled-flow error.
func (s *Service) CancelInvite(context.Context, string) error {
	return CancelInvite()
}

