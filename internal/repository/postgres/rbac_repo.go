// internal/repository/postgres/rbac_repo.go
package postgres

import (
	"context"
	"fmt"
	"time"

	"backoffice-iam/internal/domain/rbac"
	"backoffice-iam/internal/pkg/softdelete"

	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"
)

const roleColumns = `id, role_name, display_name, description, permission_ids, is_system_role, is_active, level,
	metadata, created_by, updated_by, is_deleted, deleted_at, deleted_by, created_at, updated_at`

const permissionColumns = `id, key, name, description, module, category, is_system_permission, is_active, version,
	metadata, created_by, updated_by, is_deleted, deleted_at, deleted_by, created_at, updated_at`

type RoleRepository struct {
	db *DB
}

var _ rbac.RoleRepository = (*RoleRepository)(nil)

func NewRoleRepository(db *DB) *RoleRepository {
	return &RoleRepository{db: db}
}

func scanRole(row scanner) (*rbac.Role, error) {
	var (
		r        rbac.Role
		ids      []string
		metadata []byte
	)
	err := row.Scan(
		&r.ID, &r.RoleName, &r.DisplayName, &r.Description, &ids, &r.IsSystemRole, &r.IsActive, &r.Level,
		&metadata, &r.CreatedBy, &r.UpdatedBy, &r.IsDeleted, &r.DeletedAt, &r.DeletedBy, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, mapError(err)
	}
	r.PermissionIDs = ids
	if r.Metadata, err = unmarshalMap(metadata); err != nil {
		return nil, err
	}
	return &r, nil
}

func roleWhere(ctx context.Context, f rbac.RoleFilter) *where {
	w := &where{}
	w.add(softdelete.Clause(ctx, "is_deleted"))
	if len(f.IDs) > 0 {
		w.add("id = ANY(?)", pq.Array(f.IDs))
	}
	if len(f.Names) > 0 {
		w.add("role_name = ANY(?)", pq.Array(f.Names))
	}
	if f.IsSystem != nil {
		w.add("is_system_role = ?", *f.IsSystem)
	}
	if f.IsActive != nil {
		w.add("is_active = ?", *f.IsActive)
	}
	if f.PermissionID != "" {
		w.add("? = ANY(permission_ids)", f.PermissionID)
	}
	if f.MinLevel > 0 {
		w.add("level >= ?", f.MinLevel)
	}
	if f.MaxLevel > 0 {
		w.add("level <= ?", f.MaxLevel)
	}
	return w
}

func (r *RoleRepository) insert(ctx context.Context, role *rbac.Role, onConflict string) (int64, error) {
	metadata, err := marshalMap(role.Metadata)
	if err != nil {
		return 0, err
	}
	query := `
		INSERT INTO roles (
			id, role_name, display_name, description, permission_ids, is_system_role, is_active, level,
			metadata, created_by, updated_by, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	` + onConflict

	result, err := r.db.pool.Exec(ctx, query,
		role.ID, role.RoleName, role.DisplayName, role.Description, pq.Array(role.PermissionIDs),
		role.IsSystemRole, role.IsActive, role.Level, metadata, role.CreatedBy, role.UpdatedBy,
		role.CreatedAt, role.UpdatedAt,
	)
	if err != nil {
		return 0, mapError(fmt.Errorf("failed to insert role: %w", err))
	}
	return result.RowsAffected(), nil
}

func (r *RoleRepository) Create(ctx context.Context, role *rbac.Role) error {
	_, err := r.insert(ctx, role, "")
	return err
}

// Ensure inserts role unless one with the same name exists.
func (r *RoleRepository) Ensure(ctx context.Context, role *rbac.Role) (bool, error) {
	n, err := r.insert(ctx, role, "ON CONFLICT (role_name) DO NOTHING")
	return n == 1, err
}

func (r *RoleRepository) FindByID(ctx context.Context, id string) (*rbac.Role, error) {
	return r.findOne(ctx, rbac.RoleFilter{IDs: []string{id}})
}

func (r *RoleRepository) FindByName(ctx context.Context, name string) (*rbac.Role, error) {
	return r.findOne(ctx, rbac.RoleFilter{Names: []string{name}})
}

func (r *RoleRepository) findOne(ctx context.Context, f rbac.RoleFilter) (*rbac.Role, error) {
	w := roleWhere(ctx, f)
	query := fmt.Sprintf(`SELECT %s FROM roles %s LIMIT 1`, roleColumns, w.String())
	return scanRole(r.db.pool.QueryRow(ctx, query, w.args...))
}

func (r *RoleRepository) List(ctx context.Context, f rbac.RoleFilter) ([]*rbac.Role, error) {
	w := roleWhere(ctx, f)
	query := fmt.Sprintf(`SELECT %s FROM roles %s ORDER BY level DESC, role_name %s`,
		roleColumns, w.String(), w.paginate(f.Limit, f.Offset))
	return queryRoles(ctx, r.db.pool, query, w.args...)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

func queryRoles(ctx context.Context, q querier, query string, args ...interface{}) ([]*rbac.Role, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError(fmt.Errorf("failed to query roles: %w", err))
	}
	defer rows.Close()

	roles := []*rbac.Role{}
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, mapError(rows.Err())
}

// Mutate locks the matching rows with FOR UPDATE, so guard always sees the
// committed state, then writes every row or none.
func (r *RoleRepository) Mutate(ctx context.Context, f rbac.RoleFilter, m rbac.RoleMutation, guard rbac.RoleGuard, now time.Time) ([]*rbac.Role, error) {
	var updated []*rbac.Role
	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		w := roleWhere(ctx, f)
		query := fmt.Sprintf(`SELECT %s FROM roles %s ORDER BY level DESC, role_name FOR UPDATE`, roleColumns, w.String())
		current, err := queryRoles(ctx, tx, query, w.args...)
		if err != nil {
			return err
		}

		updated = make([]*rbac.Role, 0, len(current))
		for _, role := range current {
			if guard != nil {
				if err := guard(role.Clone()); err != nil {
					return err
				}
			}
			next := role.Clone()
			m.Apply(next, now)

			metadata, err := marshalMap(next.Metadata)
			if err != nil {
				return err
			}
			_, err = tx.Exec(ctx, `
				UPDATE roles SET role_name = $2, display_name = $3, description = $4, permission_ids = $5,
					is_active = $6, level = $7, metadata = $8, updated_by = $9,
					is_deleted = $10, deleted_at = $11, deleted_by = $12, updated_at = $13
				WHERE id = $1
			`, next.ID, next.RoleName, next.DisplayName, next.Description, pq.Array(next.PermissionIDs),
				next.IsActive, next.Level, metadata, next.UpdatedBy,
				next.IsDeleted, next.DeletedAt, next.DeletedBy, next.UpdatedAt,
			)
			if err != nil {
				return mapError(fmt.Errorf("failed to update role %s: %w", next.ID, err))
			}
			updated = append(updated, next)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

type PermissionRepository struct {
	db *DB
}

var _ rbac.PermissionRepository = (*PermissionRepository)(nil)

func NewPermissionRepository(db *DB) *PermissionRepository {
	return &PermissionRepository{db: db}
}

func scanPermission(row scanner) (*rbac.Permission, error) {
	var (
		p        rbac.Permission
		metadata []byte
	)
	err := row.Scan(
		&p.ID, &p.Key, &p.Name, &p.Description, &p.Module, &p.Category, &p.IsSystemPermission, &p.IsActive, &p.Version,
		&metadata, &p.CreatedBy, &p.UpdatedBy, &p.IsDeleted, &p.DeletedAt, &p.DeletedBy, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, mapError(err)
	}
	if p.Metadata, err = unmarshalMap(metadata); err != nil {
		return nil, err
	}
	return &p, nil
}

func permissionWhere(ctx context.Context, f rbac.PermissionFilter) *where {
	w := &where{}
	w.add(softdelete.Clause(ctx, "is_deleted"))
	if len(f.IDs) > 0 {
		w.add("id = ANY(?)", pq.Array(f.IDs))
	}
	if len(f.Keys) > 0 {
		w.add("key = ANY(?)", pq.Array(f.Keys))
	}
	if f.Module != "" {
		w.add("module = ?", f.Module)
	}
	if f.Category != "" {
		w.add("category = ?", f.Category)
	}
	if f.IsSystem != nil {
		w.add("is_system_permission = ?", *f.IsSystem)
	}
	if f.IsActive != nil {
		w.add("is_active = ?", *f.IsActive)
	}
	return w
}

func (r *PermissionRepository) insert(ctx context.Context, p *rbac.Permission, onConflict string) (int64, error) {
	metadata, err := marshalMap(p.Metadata)
	if err != nil {
		return 0, err
	}
	query := `
		INSERT INTO permissions (
			id, key, name, description, module, category, is_system_permission, is_active, version,
			metadata, created_by, updated_by, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	` + onConflict

	result, err := r.db.pool.Exec(ctx, query,
		p.ID, p.Key, p.Name, p.Description, p.Module, p.Category, p.IsSystemPermission, p.IsActive, p.Version,
		metadata, p.CreatedBy, p.UpdatedBy, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return 0, mapError(fmt.Errorf("failed to insert permission: %w", err))
	}
	return result.RowsAffected(), nil
}

func (r *PermissionRepository) Create(ctx context.Context, p *rbac.Permission) error {
	_, err := r.insert(ctx, p, "")
	return err
}

// Ensure inserts p unless a permission with the same key exists.
func (r *PermissionRepository) Ensure(ctx context.Context, p *rbac.Permission) (bool, error) {
	n, err := r.insert(ctx, p, "ON CONFLICT (key) DO NOTHING")
	return n == 1, err
}

func (r *PermissionRepository) FindByID(ctx context.Context, id string) (*rbac.Permission, error) {
	return r.findOne(ctx, rbac.PermissionFilter{IDs: []string{id}})
}

func (r *PermissionRepository) FindByKey(ctx context.Context, key string) (*rbac.Permission, error) {
	return r.findOne(ctx, rbac.PermissionFilter{Keys: []string{key}})
}

func (r *PermissionRepository) findOne(ctx context.Context, f rbac.PermissionFilter) (*rbac.Permission, error) {
	w := permissionWhere(ctx, f)
	query := fmt.Sprintf(`SELECT %s FROM permissions %s LIMIT 1`, permissionColumns, w.String())
	return scanPermission(r.db.pool.QueryRow(ctx, query, w.args...))
}

func (r *PermissionRepository) FindByIDs(ctx context.Context, ids []string) ([]*rbac.Permission, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return r.List(ctx, rbac.PermissionFilter{IDs: ids})
}

func (r *PermissionRepository) List(ctx context.Context, f rbac.PermissionFilter) ([]*rbac.Permission, error) {
	w := permissionWhere(ctx, f)
	query := fmt.Sprintf(`SELECT %s FROM permissions %s ORDER BY key %s`,
		permissionColumns, w.String(), w.paginate(f.Limit, f.Offset))
	return queryPermissions(ctx, r.db.pool, query, w.args...)
}

func queryPermissions(ctx context.Context, q querier, query string, args ...interface{}) ([]*rbac.Permission, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError(fmt.Errorf("failed to query permissions: %w", err))
	}
	defer rows.Close()

	permissions := []*rbac.Permission{}
	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, err
		}
		permissions = append(permissions, p)
	}
	return permissions, mapError(rows.Err())
}

func (r *PermissionRepository) Mutate(ctx context.Context, f rbac.PermissionFilter, m rbac.PermissionMutation, guard rbac.PermissionGuard, now time.Time) ([]*rbac.Permission, error) {
	var updated []*rbac.Permission
	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		w := permissionWhere(ctx, f)
		query := fmt.Sprintf(`SELECT %s FROM permissions %s ORDER BY key FOR UPDATE`, permissionColumns, w.String())
		current, err := queryPermissions(ctx, tx, query, w.args...)
		if err != nil {
			return err
		}

		updated = make([]*rbac.Permission, 0, len(current))
		for _, p := range current {
			if guard != nil {
				if err := guard(p.Clone()); err != nil {
					return err
				}
			}
			next := p.Clone()
			m.Apply(next, now)

			metadata, err := marshalMap(next.Metadata)
			if err != nil {
				return err
			}
			_, err = tx.Exec(ctx, `
				UPDATE permissions SET name = $2, description = $3, category = $4, is_active = $5,
					metadata = $6, updated_by = $7, is_deleted = $8, deleted_at = $9, deleted_by = $10,
					version = $11, updated_at = $12
				WHERE id = $1
			`, next.ID, next.Name, next.Description, next.Category, next.IsActive,
				metadata, next.UpdatedBy, next.IsDeleted, next.DeletedAt, next.DeletedBy,
				next.Version, next.UpdatedAt,
			)
			if err != nil {
				return mapError(fmt.Errorf("failed to update permission %s: %w", next.ID, err))
			}
			updated = append(updated, next)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}
