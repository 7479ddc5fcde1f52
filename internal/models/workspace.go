package models

// WorkspaceKind distinguishes a user's private workspace from shared ones.
type WorkspaceKind string

const (
	WorkspaceKindPersonal WorkspaceKind = "personal"
	WorkspaceKindShared   WorkspaceKind = "shared"
)

// Valid reports whether k is a known workspace kind.
func (k WorkspaceKind) Valid() bool {
	return k == WorkspaceKindPersonal || k == WorkspaceKindShared
}

// WorkspaceRole is a membership role inside a workspace.
type WorkspaceRole string

const (
	RoleOwner  WorkspaceRole = "owner"
	RoleAdmin  WorkspaceRole = "admin"
	RoleEditor WorkspaceRole = "editor"
	RoleViewer WorkspaceRole = "viewer"
)

// Valid reports whether r belongs to the closed role set.
func (r WorkspaceRole) Valid() bool {
	return r.Rank() > 0
}

// Rank orders roles: owner > admin > editor > viewer. Unknown roles rank zero.
func (r WorkspaceRole) Rank() int {
	switch r {
	case RoleOwner:
		return 4
	case RoleAdmin:
		return 3
	case RoleEditor:
		return 2
	case RoleViewer:
		return 1
	default:
		return 0
	}
}

// Workspace is a collaboration container. Its creator is the implicit owner.
type Workspace struct {
	BaseModel

	Name      string        `gorm:"size:255;not null" json:"name"`
	Kind      WorkspaceKind `gorm:"size:16;not null;default:shared" json:"kind"`
	CreatedBy uint          `gorm:"not null;index" json:"created_by"`

	Members []WorkspaceMember `gorm:"foreignKey:WorkspaceID;constraint:OnDelete:CASCADE" json:"-"`
}

// WorkspaceMember grants a user a role inside a workspace.
type WorkspaceMember struct {
	BaseModel

	WorkspaceID uint          `gorm:"not null;uniqueIndex:idx_workspace_member" json:"workspace_id"`
	UserID      uint          `gorm:"not null;uniqueIndex:idx_workspace_member;index" json:"user_id"`
	Role        WorkspaceRole `gorm:"size:16;not null" json:"role"`

	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

// InviteStatus tracks the lifecycle of a workspace invite.
type InviteStatus string

// InviteStatusApplied marks invites whose membership was created immediately.
const InviteStatusApplied InviteStatus = "applied"

// WorkspaceInvite records who added whom to a workspace.
type WorkspaceInvite struct {
	BaseModel

	Token       string        `gorm:"uniqueIndex;size:32;not null" json:"token"`
	WorkspaceID uint          `gorm:"not null;index" json:"workspace_id"`
	InvitedBy   uint          `gorm:"not null" json:"invited_by"`
	InviteeID   uint          `gorm:"not null" json:"invitee_id"`
	Role        WorkspaceRole `gorm:"size:16;not null" json:"role"`
	Status      InviteStatus  `gorm:"size:16;not null" json:"status"`
}
