package rbac

import (
	"testing"

	"backoffice-iam/internal/domain/rbac"
	xerrors "backoffice-iam/internal/pkg/errors"

	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestGuardRoleMutation(t *testing.T) {
	t.Parallel()

	system := &rbac.Role{ID: "role_sys", IsSystemRole: true}
	custom := &rbac.Role{ID: "role_custom"}

	cases := []struct {
		name   string
		role   *rbac.Role
		m      rbac.RoleMutation
		fields []string
		ok     bool
	}{
		{name: "allow-listed fields", role: system, m: rbac.RoleMutation{Description: ptr("x"), IsActive: ptr(false), Metadata: map[string]any{"a": 1}, Actor: "admin_1"}, ok: true},
		{name: "rename mixed with description", role: system, m: rbac.RoleMutation{Description: ptr("x"), RoleName: ptr("Y")}, fields: []string{rbac.FieldRoleName}},
		{name: "permissions and level", role: system, m: rbac.RoleMutation{PermissionIDs: &[]string{"p"}, Level: ptr(2)}, fields: []string{rbac.FieldLevel, rbac.FieldPermissions}},
		{name: "delete", role: system, m: rbac.RoleMutation{Delete: true, Actor: "admin_1"}},
		{name: "custom role anything goes", role: custom, m: rbac.RoleMutation{RoleName: ptr("Y"), Delete: true}, ok: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := GuardRoleMutation(tc.role, tc.m)
			if tc.ok {
				require.NoError(t, err)
				return
			}
			var protected *xerrors.SystemEntityProtectedError
			require.ErrorAs(t, err, &protected)
			require.Equal(t, tc.fields, protected.Fields)
			if tc.m.Delete {
				require.Equal(t, "delete", protected.Op)
			}
		})
	}
}

func TestGuardPermissionMutation(t *testing.T) {
	t.Parallel()

	system := &rbac.Permission{ID: "perm_sys", IsSystemPermission: true}
	require.NoError(t, GuardPermissionMutation(system, rbac.PermissionMutation{IsActive: ptr(false), Actor: "admin_1"}))
	require.ErrorIs(t, GuardPermissionMutation(system, rbac.PermissionMutation{Name: ptr("renamed")}), xerrors.ErrSystemEntityProtected)
	require.ErrorIs(t, GuardPermissionMutation(system, rbac.PermissionMutation{Category: ptr(rbac.CategoryRead)}), xerrors.ErrSystemEntityProtected)
	require.ErrorIs(t, GuardPermissionMutation(system, rbac.PermissionMutation{Delete: true}), xerrors.ErrSystemEntityProtected)
	require.NoError(t, GuardPermissionMutation(&rbac.Permission{ID: "perm_x"}, rbac.PermissionMutation{Delete: true}))
}
