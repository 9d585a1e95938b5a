package rbac

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/platinummonkey/atrium/pkg/apperrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPermissionsForRole(t *testing.T) {
	owner := PermissionsForRole(RoleOwner)
	admin := PermissionsForRole(RoleAdmin)
	editor := PermissionsForRole(RoleEditor)
	viewer := PermissionsForRole(RoleViewer)

	assert.True(t, owner.Equal(Vocabulary()), "owner holds the whole vocabulary")
	assert.False(t, admin.Contains(PermWorkspaceDelete))
	assert.True(t, admin.Contains(PermWorkspaceInvite))
	assert.True(t, admin.Contains(PermCanvasSetDefault))
	assert.False(t, editor.Contains(PermWorkspaceInvite))
	assert.False(t, editor.Contains(PermCanvasSetDefault))
	assert.True(t, editor.Contains(PermCardDelete))
	assert.Equal(t, []string{"canvas:read", "card:read", "workspace:read"}, viewer.Strings())

	t.Run("returns a copy", func(t *testing.T) {
		set := PermissionsForRole(RoleViewer)
		set.Add(PermWorkspaceDelete)
		assert.False(t, PermissionsForRole(RoleViewer).Contains(PermWorkspaceDelete))
	})

	t.Run("unknown role grants nothing", func(t *testing.T) {
		assert.Empty(t, PermissionsForRole(Role("superuser")))
	})

	t.Run("roles are nested", func(t *testing.T) {
		roles := Roles()
		for i := 0; i < len(roles)-1; i++ {
			higher := PermissionsForRole(roles[i])
			lower := PermissionsForRole(roles[i+1])
			assert.True(t, higher.ContainsAll(lower.Slice()...), "%s should include %s", roles[i], roles[i+1])
		}
	})
}

func TestParsePermission(t *testing.T) {
	tests := []struct {
		input   string
		want    Permission
		wantErr bool
	}{
		{input: "canvas:set_default", want: PermCanvasSetDefault},
		{input: " workspace:invite ", want: PermWorkspaceInvite},
		{input: "canvas:fly", wantErr: true},
		{input: "canvas", wantErr: true},
		{input: ":read", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParsePermission(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, apperrors.ErrValidation))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParsePermissions(t *testing.T) {
	set, err := ParsePermissions([]string{"card:read", "card:read", "invite:cancel"})
	require.NoError(t, err)
	assert.Equal(t, []string{"card:read", "invite:cancel"}, set.Strings())

	_, err = ParsePermissions([]string{"card:read", "card:fly", "bogus"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "card:fly")
	assert.Contains(t, err.Error(), "bogus")
}

func TestParseRole(t *testing.T) {
	for _, r := range Roles() {
		got, err := ParseRole(string(r))
		require.NoError(t, err)
		assert.Equal(t, r, got)
	}

	got, err := ParseRole(" Editor ")
	require.NoError(t, err)
	assert.Equal(t, RoleEditor, got)

	_, err = ParseRole("superadmin")
	assert.True(t, errors.Is(err, apperrors.ErrValidation))
}

func TestRoleRanking(t *testing.T) {
	assert.True(t, RoleOwner.Outranks(RoleAdmin))
	assert.True(t, RoleAdmin.Outranks(RoleEditor))
	assert.False(t, RoleViewer.Outranks(RoleViewer))
	assert.Equal(t, RoleAdmin, RoleViewer.Max(RoleAdmin))
	assert.Equal(t, RoleOwner, RoleOwner.Max(RoleEditor))
}

func TestRoleScan(t *testing.T) {
	var r Role
	require.NoError(t, r.Scan([]byte("admin")))
	assert.Equal(t, RoleAdmin, r)
	assert.Error(t, r.Scan("root"))
	assert.Error(t, r.Scan(42))
}

func TestPermissionSetOperations(t *testing.T) {
	a := NewPermissionSet(PermCardRead, PermCardCreate)
	b := NewPermissionSet(PermCardCreate, PermCanvasRead)

	union := a.Union(b)
	assert.Len(t, union, 3)
	assert.Len(t, a, 2, "union must not mutate its receiver")

	assert.Equal(t, []Permission{PermCanvasRead}, a.Missing(PermCardRead, PermCanvasRead))
	assert.True(t, union.ContainsAll(PermCardRead, PermCanvasRead))
	assert.False(t, union.Without(PermCardRead).Contains(PermCardRead))
	assert.True(t, union.Contains(PermCardRead))
}

func TestPermissionSetJSON(t *testing.T) {
	set := NewPermissionSet(PermInviteCancel, PermCardRead)
	data, err := json.Marshal(set)
	require.NoError(t, err)
	assert.JSONEq(t, `["card:read","invite:cancel"]`, string(data))

	var decoded PermissionSet
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, decoded.Equal(set))

	err = json.Unmarshal([]byte(`["card:read","card:teleport"]`), &decoded)
	assert.Error(t, err)
}

func TestPermissionSetSQL(t *testing.T) {
	set := NewPermissionSet(PermCanvasSetDefault)
	v, err := set.Value()
	require.NoError(t, err)
	assert.Equal(t, `["canvas:set_default"]`, v)

	var nilSet PermissionSet
	v, err = nilSet.Value()
	require.NoError(t, err)
	assert.Equal(t, "[]", v)

	var scanned PermissionSet
	require.NoError(t, scanned.Scan(`["canvas:set_default"]`))
	assert.True(t, scanned.Equal(set))
	require.NoError(t, scanned.Scan(nil))
	assert.Empty(t, scanned)
	assert.Error(t, scanned.Scan(`["nope:nope"]`))
}
