package rbac

type CreateRoleRequest struct {
	RoleName      string         `json:"role_name" binding:"required"`
	DisplayName   string         `json:"display_name" binding:"required"`
	Description   string         `json:"description,omitempty"`
	PermissionIDs []string       `json:"permissions" binding:"required"`
	Level         int            `json:"level,omitempty"`
	IsActive      *bool          `json:"is_active,omitempty"`
	IsSystemRole  bool           `json:"is_system_role,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// UpdateRoleRequest mirrors RoleMutation on the wire.
type UpdateRoleRequest struct {
	RoleName      *string        `json:"role_name,omitempty"`
	DisplayName   *string        `json:"display_name,omitempty"`
	Description   *string        `json:"description,omitempty"`
	PermissionIDs *[]string      `json:"permissions,omitempty"`
	IsActive      *bool          `json:"is_active,omitempty"`
	Level         *int           `json:"level,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

func (r UpdateRoleRequest) Mutation(actor string) RoleMutation {
	return RoleMutation{
		RoleName:      r.RoleName,
		DisplayName:   r.DisplayName,
		Description:   r.Description,
		PermissionIDs: r.PermissionIDs,
		IsActive:      r.IsActive,
		Level:         r.Level,
		Metadata:      r.Metadata,
		Actor:         actor,
	}
}

type BulkUpdateRolesRequest struct {
	Filter RoleFilter        `json:"filter"`
	Update UpdateRoleRequest `json:"update"`
}

type CreatePermissionRequest struct {
	Key         string         `json:"key" binding:"required"`
	Name        string         `json:"name" binding:"required"`
	Description string         `json:"description,omitempty"`
	Module      Module         `json:"module" binding:"required"`
	Category    Category       `json:"category,omitempty"`
	IsActive    *bool          `json:"is_active,omitempty"`
	IsSystem    bool           `json:"is_system_permission,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

type UpdatePermissionRequest struct {
	Name        *string        `json:"name,omitempty"`
	Description *string        `json:"description,omitempty"`
	Category    *Category      `json:"category,omitempty"`
	IsActive    *bool          `json:"is_active,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

func (r UpdatePermissionRequest) Mutation(actor string) PermissionMutation {
	return PermissionMutation{
		Name:        r.Name,
		Description: r.Description,
		Category:    r.Category,
		IsActive:    r.IsActive,
		Metadata:    r.Metadata,
		Actor:       actor,
	}
}

type BulkUpdatePermissionsRequest struct {
	Filter PermissionFilter        `json:"filter"`
	Update UpdatePermissionRequest `json:"update"`
}
