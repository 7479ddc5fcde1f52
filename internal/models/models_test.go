package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUserBeforeSaveNormalisesUniqueColumns(t *testing.T) {
	u := &User{Email: "  Alice@Example.COM ", Handle: " Alice_01"}
	require.NoError(t, u.BeforeSave(nil))
	require.Equal(t, "alice@example.com", u.Email)
	require.Equal(t, "alice_01", u.Handle)
}

func TestUserHasPassword(t *testing.T) {
	empty := ""
	hash := "$2a$04$hash"

	require.False(t, (&User{}).HasPassword())
	require.False(t, (&User{PasswordHash: &empty}).HasPassword())
	require.True(t, (&User{PasswordHash: &hash}).HasPassword())
}

func TestWorkspaceRoleOrdering(t *testing.T) {
	require.Greater(t, RoleOwner.Rank(), RoleAdmin.Rank())
	require.Greater(t, RoleAdmin.Rank(), RoleEditor.Rank())
	require.Greater(t, RoleEditor.Rank(), RoleViewer.Rank())
	require.False(t, WorkspaceRole("superuser").Valid())
	require.True(t, RoleViewer.Valid())
}

func TestWorkspaceKindValid(t *testing.T) {
	require.True(t, WorkspaceKindPersonal.Valid())
	require.True(t, WorkspaceKindShared.Valid())
	require.False(t, WorkspaceKind("team").Valid())
}
