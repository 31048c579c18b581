// internal/handlers/rbac/notify.go
package rbac

import (
	"context"

	"backoffice-iam/internal/domain/admin"
	"backoffice-iam/internal/domain/rbac"

	"go.uber.org/zap"
)

// PermissionsNotifier tells connected consoles to refresh their tokens.
type PermissionsNotifier interface {
	NotifyPermissionsChanged(adminIDs []string, reason string)
}

// AdminLister finds the admins holding a role.
type AdminLister interface {
	ListAdmins(ctx context.Context, f admin.Filter) ([]admin.AdminInfo, error)
}

// RoleLister finds the roles granting a permission.
type RoleLister interface {
	ListRoles(ctx context.Context, f rbac.RoleFilter) ([]*rbac.Role, error)
}

type audience struct {
	admins   AdminLister
	roles    RoleLister
	notifier PermissionsNotifier
	logger   *zap.Logger
}

// rolesChanged notifies every admin holding one of roleIDs. Lookup failures
// are logged only since the write already succeeded.
func (a *audience) rolesChanged(ctx context.Context, roleIDs []string, reason string) {
	if a.notifier == nil || len(roleIDs) == 0 {
		return
	}
	seen := make(map[string]struct{})
	var ids []string
	for _, roleID := range roleIDs {
		holders, err := a.admins.ListAdmins(ctx, admin.Filter{RoleID: roleID})
		if err != nil {
			a.logger.Warn("failed to list role holders", zap.String("role_id", roleID), zap.Error(err))
			continue
		}
		for _, h := range holders {
			if _, dup := seen[h.ID]; !dup {
				seen[h.ID] = struct{}{}
				ids = append(ids, h.ID)
			}
		}
	}
	if len(ids) > 0 {
		a.notifier.NotifyPermissionsChanged(ids, reason)
	}
}

// permissionsChanged notifies the holders of every role granting one of
// permissionIDs.
func (a *audience) permissionsChanged(ctx context.Context, permissionIDs []string, reason string) {
	if a.notifier == nil {
		return
	}
	var roleIDs []string
	for _, pid := range permissionIDs {
		roles, err := a.roles.ListRoles(ctx, rbac.RoleFilter{PermissionID: pid})
		if err != nil {
			a.logger.Warn("failed to list roles granting permission", zap.String("permission_id", pid), zap.Error(err))
			continue
		}
		for _, r := range roles {
			roleIDs = append(roleIDs, r.ID)
		}
	}
	a.rolesChanged(ctx, roleIDs, reason)
}
