package rbac

import (
	"backoffice-iam/internal/domain/rbac"
	xerrors "backoffice-iam/internal/pkg/errors"
)

// systemAllowList holds the only fields a system role or permission accepts.
var systemAllowList = map[string]bool{
	rbac.FieldDescription: true,
	rbac.FieldUpdatedBy:   true,
	rbac.FieldMetadata:    true,
	rbac.FieldIsActive:    true,
}

// GuardRoleMutation decides whether m may be applied to current, the role as
// last read inside the writing transaction. The whole mutation is refused when
// any field falls outside the allow-list.
func GuardRoleMutation(current *rbac.Role, m rbac.RoleMutation) error {
	if current == nil || !current.IsSystemRole {
		return nil
	}
	if m.Delete {
		return &xerrors.SystemEntityProtectedError{Entity: "role", ID: current.ID, Op: "delete"}
	}
	if denied := protectedFields(m.TouchedFields()); len(denied) > 0 {
		return &xerrors.SystemEntityProtectedError{Entity: "role", ID: current.ID, Op: "update", Fields: denied}
	}
	return nil
}

// GuardPermissionMutation is GuardRoleMutation for permissions.
func GuardPermissionMutation(current *rbac.Permission, m rbac.PermissionMutation) error {
	if current == nil || !current.IsSystemPermission {
		return nil
	}
	if m.Delete {
		return &xerrors.SystemEntityProtectedError{Entity: "permission", ID: current.ID, Op: "delete"}
	}
	if denied := protectedFields(m.TouchedFields()); len(denied) > 0 {
		return &xerrors.SystemEntityProtectedError{Entity: "permission", ID: current.ID, Op: "update", Fields: denied}
	}
	return nil
}

func protectedFields(touched []string) []string {
	var denied []string
	for _, f := range touched {
		if !systemAllowList[f] {
			denied = append(denied, f)
		}
	}
	return denied
}
