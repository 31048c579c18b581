package rbac

import (
	"sort"
	"time"
)

// Field names reported by TouchedFields and matched against the system
// entity allow-list.
const (
	FieldRoleName    = "roleName"
	FieldDisplayName = "displayName"
	FieldName        = "name"
	FieldDescription = "description"
	FieldPermissions = "permissions"
	FieldCategory    = "category"
	FieldIsActive    = "isActive"
	FieldLevel       = "level"
	FieldMetadata    = "metadata"
	FieldUpdatedBy   = "updatedBy"
	FieldIsDeleted   = "isDeleted"
)

// RoleMutation is a field-set update. Nil fields are left untouched.
// The role's system flag is not expressible here and so never changes after
// creation.
type RoleMutation struct {
	RoleName      *string
	DisplayName   *string
	Description   *string
	PermissionIDs *[]string
	IsActive      *bool
	Level         *int
	Metadata      map[string]any
	Delete        bool
	Actor         string
}

func (m RoleMutation) TouchedFields() []string {
	var fields []string
	add := func(ok bool, name string) {
		if ok {
			fields = append(fields, name)
		}
	}
	add(m.RoleName != nil, FieldRoleName)
	add(m.DisplayName != nil, FieldDisplayName)
	add(m.Description != nil, FieldDescription)
	add(m.PermissionIDs != nil, FieldPermissions)
	add(m.IsActive != nil, FieldIsActive)
	add(m.Level != nil, FieldLevel)
	add(m.Metadata != nil, FieldMetadata)
	add(m.Actor != "", FieldUpdatedBy)
	add(m.Delete, FieldIsDeleted)
	sort.Strings(fields)
	return fields
}

func (m RoleMutation) Empty() bool { return len(m.TouchedFields()) == 0 }

// Apply writes the mutation onto r.
func (m RoleMutation) Apply(r *Role, now time.Time) {
	if m.RoleName != nil {
		r.RoleName = *m.RoleName
	}
	if m.DisplayName != nil {
		r.DisplayName = *m.DisplayName
	}
	if m.Description != nil {
		r.Description = *m.Description
	}
	if m.PermissionIDs != nil {
		r.PermissionIDs = append([]string(nil), (*m.PermissionIDs)...)
	}
	if m.IsActive != nil {
		r.IsActive = *m.IsActive
	}
	if m.Level != nil {
		r.Level = *m.Level
	}
	if m.Metadata != nil {
		r.Metadata = cloneMap(m.Metadata)
	}
	if m.Actor != "" {
		r.UpdatedBy = m.Actor
	}
	if m.Delete {
		deletedAt := now
		r.IsDeleted = true
		r.DeletedAt = &deletedAt
		r.DeletedBy = m.Actor
	}
	r.UpdatedAt = now
}

// PermissionMutation is a field-set update. Key, module and the system flag
// are immutable and have no setter.
type PermissionMutation struct {
	Name        *string
	Description *string
	Category    *Category
	IsActive    *bool
	Metadata    map[string]any
	Delete      bool
	Actor       string
}

func (m PermissionMutation) TouchedFields() []string {
	var fields []string
	add := func(ok bool, name string) {
		if ok {
			fields = append(fields, name)
		}
	}
	add(m.Name != nil, FieldName)
	add(m.Description != nil, FieldDescription)
	add(m.Category != nil, FieldCategory)
	add(m.IsActive != nil, FieldIsActive)
	add(m.Metadata != nil, FieldMetadata)
	add(m.Actor != "", FieldUpdatedBy)
	add(m.Delete, FieldIsDeleted)
	sort.Strings(fields)
	return fields
}

func (m PermissionMutation) Empty() bool { return len(m.TouchedFields()) == 0 }

// Apply writes the mutation onto p and bumps its version.
func (m PermissionMutation) Apply(p *Permission, now time.Time) {
	if m.Name != nil {
		p.Name = *m.Name
	}
	if m.Description != nil {
		p.Description = *m.Description
	}
	if m.Category != nil {
		p.Category = *m.Category
	}
	if m.IsActive != nil {
		p.IsActive = *m.IsActive
	}
	if m.Metadata != nil {
		p.Metadata = cloneMap(m.Metadata)
	}
	if m.Actor != "" {
		p.UpdatedBy = m.Actor
	}
	if m.Delete {
		deletedAt := now
		p.IsDeleted = true
		p.DeletedAt = &deletedAt
		p.DeletedBy = m.Actor
	}
	p.Version++
	p.UpdatedAt = now
}
