package rbac

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"backoffice-iam/internal/audit"
	"backoffice-iam/internal/domain/admin"
	"backoffice-iam/internal/domain/rbac"
	"backoffice-iam/internal/metrics"
	xerrors "backoffice-iam/internal/pkg/errors"
	"backoffice-iam/internal/pkg/softdelete"
	"backoffice-iam/internal/repository/memory"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 4, 10, 8, 0, 0, 0, time.UTC)

type mapCache struct {
	mu          sync.Mutex
	gen         int64
	entries     map[string][]string
	hits        int
	invalidated int
}

func newMapCache() *mapCache {
	return &mapCache{entries: map[string][]string{}}
}

func (c *mapCache) Generation(context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen, nil
}

func (c *mapCache) Get(_ context.Context, gen int64, roleID string) ([]string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys, ok := c.entries[fmt.Sprintf("%d:%s", gen, roleID)]
	if ok {
		c.hits++
	}
	return keys, ok, nil
}

func (c *mapCache) Set(_ context.Context, gen int64, roleID string, keys []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[fmt.Sprintf("%d:%s", gen, roleID)] = keys
	return nil
}

func (c *mapCache) InvalidateAll(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.invalidated++
	return nil
}

type fixture struct {
	svc      *Service
	store    *memory.Store
	cache    *mapCache
	metrics  *metrics.Metrics
	recorder *audit.Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    memory.NewStore(),
		cache:    newMapCache(),
		metrics:  metrics.New(nil),
		recorder: audit.NewRecorder(),
	}
	f.svc = NewService(f.store.Roles(), f.store.Permissions(), nil,
		WithClock(func() time.Time { return fixedNow }),
		WithCache(f.cache),
		WithMetrics(f.metrics),
		WithAuditSink(f.recorder),
	)
	_, err := f.svc.EnsureCatalog(context.Background(), "system")
	require.NoError(t, err)
	return f
}

func (f *fixture) role(t *testing.T, name string) *rbac.Role {
	t.Helper()
	r, err := f.svc.GetRoleByName(context.Background(), name)
	require.NoError(t, err)
	return r
}

func (f *fixture) permission(t *testing.T, key string) *rbac.Permission {
	t.Helper()
	p, err := f.store.Permissions().FindByKey(context.Background(), key)
	require.NoError(t, err)
	return p
}

func activeAdmin(roleID string) *admin.Admin {
	return &admin.Admin{ID: "admin_1", Email: "ops@example.com", RoleID: roleID, Status: admin.StatusActive}
}

func TestEnsureCatalogIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	catalog, err := DefaultCatalog()
	require.NoError(t, err)

	n, err := f.svc.EnsureCatalog(ctx, "system")
	require.NoError(t, err)
	require.Zero(t, n)

	super := f.role(t, SuperAdminRole)
	require.True(t, super.IsSystemRole)
	require.Len(t, super.PermissionIDs, len(catalog.Permissions))

	perms, err := f.svc.ListPermissions(ctx, rbac.PermissionFilter{IsSystem: ptr(true)})
	require.NoError(t, err)
	require.Len(t, perms, len(catalog.Permissions))
}

func TestParseCatalogRejectsUnknownReference(t *testing.T) {
	t.Parallel()

	_, err := ParseCatalog([]byte(`
permissions:
  - {key: "ROLES:READ", name: "View roles"}
roles:
  - {name: AUDITOR, display_name: Auditor, level: 2, permissions: ["ROLES:WRITE"]}
`))
	require.ErrorContains(t, err, "unknown permission")

	c, err := ParseCatalog([]byte(`
permissions:
  - {key: "roles:read", name: "View roles"}
`))
	require.NoError(t, err)
	require.Equal(t, "ROLES:READ", c.Permissions[0].Key)
	require.Equal(t, rbac.CategoryManage, c.Permissions[0].Category)
}

func TestSystemRoleRenameRejectedInFull(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	before := f.role(t, SuperAdminRole)

	_, err := f.svc.UpdateRole(ctx, before.ID, rbac.RoleMutation{Description: ptr("x"), RoleName: ptr("y_role"), Actor: "admin_1"})
	var protected *xerrors.SystemEntityProtectedError
	require.ErrorAs(t, err, &protected)
	require.Equal(t, []string{rbac.FieldRoleName}, protected.Fields)

	after := f.role(t, SuperAdminRole)
	require.Equal(t, before, after)
	require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.GuardRejections.WithLabelValues("role")))
	require.Contains(t, f.recorder.Names(), audit.SystemEntityProtected)

	updated, err := f.svc.UpdateRole(ctx, before.ID, rbac.RoleMutation{Description: ptr("x"), Actor: "admin_1"})
	require.NoError(t, err)
	require.Equal(t, "x", updated.Description)
	require.Equal(t, "admin_1", updated.UpdatedBy)
}

func TestBulkRoleUpdateRunsGuardOnEveryMatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	readID := f.permission(t, PermRolesRead).ID

	custom, err := f.svc.CreateRole(ctx, rbac.CreateRoleRequest{
		RoleName: "support_agent", DisplayName: "Support agent", PermissionIDs: []string{readID, readID}, Level: 3,
	}, "admin_1")
	require.NoError(t, err)
	require.Equal(t, "SUPPORT_AGENT", custom.RoleName)
	require.Equal(t, []string{readID}, custom.PermissionIDs)

	_, err = f.svc.UpdateRoles(ctx, rbac.RoleFilter{}, rbac.RoleMutation{Level: ptr(4)})
	require.ErrorIs(t, err, xerrors.ErrInvalidInput)

	_, err = f.svc.UpdateRoles(ctx, rbac.RoleFilter{MinLevel: 1}, rbac.RoleMutation{Level: ptr(4)})
	require.ErrorIs(t, err, xerrors.ErrSystemEntityProtected)
	got, err := f.svc.GetRole(ctx, custom.ID)
	require.NoError(t, err)
	require.Equal(t, 3, got.Level)

	updated, err := f.svc.UpdateRoles(ctx, rbac.RoleFilter{IsSystem: ptr(false)}, rbac.RoleMutation{Level: ptr(4)})
	require.NoError(t, err)
	require.Len(t, updated, 1)
	require.Equal(t, 4, updated[0].Level)
}

func TestSystemEntitiesCannotBeDeleted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	super := f.role(t, SuperAdminRole)
	perm := f.permission(t, PermAdminsRead)

	require.ErrorIs(t, f.svc.DeleteRole(ctx, super.ID, "admin_1"), xerrors.ErrSystemEntityProtected)
	require.ErrorIs(t, f.svc.DeletePermission(ctx, perm.ID, "admin_1"), xerrors.ErrSystemEntityProtected)

	_, err := f.svc.UpdatePermissions(ctx, rbac.PermissionFilter{Module: rbac.ModuleAdmins}, rbac.PermissionMutation{Delete: true, Actor: "admin_1"})
	require.ErrorIs(t, err, xerrors.ErrSystemEntityProtected)

	all := softdelete.IncludeDeleted(ctx)
	r, err := f.store.Roles().FindByID(all, super.ID)
	require.NoError(t, err)
	require.False(t, r.IsDeleted)
	p, err := f.store.Permissions().FindByID(all, perm.ID)
	require.NoError(t, err)
	require.False(t, p.IsDeleted)
}

func TestEffectivePermissionsSkipsInactiveAndDeleted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	extra, err := f.svc.CreatePermission(ctx, rbac.CreatePermissionRequest{Key: "support:export", Name: "Export tickets", Module: rbac.ModuleSupport}, "admin_1")
	require.NoError(t, err)
	require.Equal(t, rbac.CategoryManage, extra.Category)
	require.Equal(t, 1, extra.Version)

	read := f.permission(t, PermRolesRead)
	write := f.permission(t, PermRolesWrite)
	role, err := f.svc.CreateRole(ctx, rbac.CreateRoleRequest{
		RoleName: "ROLE_EDITOR", DisplayName: "Role editor", PermissionIDs: []string{read.ID, write.ID, extra.ID}, Level: 4,
	}, "admin_1")
	require.NoError(t, err)

	a := activeAdmin(role.ID)
	p, err := f.svc.EffectivePermissions(ctx, a)
	require.NoError(t, err)
	require.Equal(t, []string{PermRolesRead, PermRolesWrite, "SUPPORT:EXPORT"}, p.Keys)

	_, err = f.svc.UpdatePermission(ctx, write.ID, rbac.PermissionMutation{IsActive: ptr(false), Actor: "admin_1"})
	require.NoError(t, err)
	require.NoError(t, f.svc.DeletePermission(ctx, extra.ID, "admin_1"))

	p, err = f.svc.EffectivePermissions(ctx, a)
	require.NoError(t, err)
	require.Equal(t, []string{PermRolesRead}, p.Keys)
	require.True(t, p.HasPermission(PermRolesRead))
	require.False(t, p.HasPermission(PermRolesWrite))
	require.NoError(t, f.svc.Authorize(ctx, a, PermRolesRead))
	require.ErrorIs(t, f.svc.Authorize(ctx, a, PermRolesWrite), xerrors.ErrForbidden)

	stored, err := f.svc.GetRole(ctx, role.ID)
	require.NoError(t, err)
	require.Len(t, stored.PermissionIDs, 3)
}

func TestEffectivePermissionsEmptyForDisabledAccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	super := f.role(t, SuperAdminRole)

	suspended := activeAdmin(super.ID)
	suspended.Status = admin.StatusSuspended
	p, err := f.svc.EffectivePermissions(ctx, suspended)
	require.NoError(t, err)
	require.Empty(t, p.Keys)

	p, err = f.svc.EffectivePermissions(ctx, activeAdmin("role_missing"))
	require.NoError(t, err)
	require.Empty(t, p.Keys)

	_, err = f.svc.UpdateRole(ctx, super.ID, rbac.RoleMutation{IsActive: ptr(false), Actor: "admin_1"})
	require.NoError(t, err)
	p, err = f.svc.EffectivePermissions(ctx, activeAdmin(super.ID))
	require.NoError(t, err)
	require.Empty(t, p.Keys)
	require.Equal(t, SuperAdminRole, p.RoleName)
}

func TestResolutionIsCachedUntilWrite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	auditor := f.role(t, "AUDITOR")
	a := activeAdmin(auditor.ID)

	_, err := f.svc.EffectivePermissions(ctx, a)
	require.NoError(t, err)
	_, err = f.svc.EffectivePermissions(ctx, a)
	require.NoError(t, err)
	require.Equal(t, 1, f.cache.hits)

	invalidated := f.cache.invalidated
	_, err = f.svc.UpdatePermission(ctx, f.permission(t, PermAdminsRead).ID, rbac.PermissionMutation{IsActive: ptr(false), Actor: "admin_1"})
	require.NoError(t, err)
	require.Equal(t, invalidated+1, f.cache.invalidated)

	p, err := f.svc.EffectivePermissions(ctx, a)
	require.NoError(t, err)
	require.False(t, p.HasPermission(PermAdminsRead))
	require.True(t, p.HasPermission(PermRolesRead))
}

// writeDuringRead runs onRead once, after FindByIDs has taken its snapshot.
type writeDuringRead struct {
	rbac.PermissionRepository
	onRead func()
}

func (r *writeDuringRead) FindByIDs(ctx context.Context, ids []string) ([]*rbac.Permission, error) {
	perms, err := r.PermissionRepository.FindByIDs(ctx, ids)
	if hook := r.onRead; hook != nil {
		r.onRead = nil
		hook()
	}
	return perms, err
}

func TestWriteDuringResolutionIsNotCached(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	perms := &writeDuringRead{PermissionRepository: store.Permissions()}
	c := newMapCache()
	svc := NewService(store.Roles(), perms, nil,
		WithClock(func() time.Time { return fixedNow }),
		WithCache(c),
	)
	_, err := svc.EnsureCatalog(ctx, "system")
	require.NoError(t, err)

	auditor, err := svc.GetRoleByName(ctx, "AUDITOR")
	require.NoError(t, err)
	target, err := store.Permissions().FindByKey(ctx, PermAdminsRead)
	require.NoError(t, err)
	a := activeAdmin(auditor.ID)

	perms.onRead = func() {
		_, err := svc.UpdatePermission(ctx, target.ID, rbac.PermissionMutation{IsActive: ptr(false), Actor: "admin_1"})
		require.NoError(t, err)
	}

	// the resolution that raced the write may still see the old set
	p, err := svc.EffectivePermissions(ctx, a)
	require.NoError(t, err)
	require.True(t, p.HasPermission(PermAdminsRead))

	p, err = svc.EffectivePermissions(ctx, a)
	require.NoError(t, err)
	require.False(t, p.HasPermission(PermAdminsRead))
	require.True(t, p.HasPermission(PermRolesRead))
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateRole(ctx, rbac.CreateRoleRequest{RoleName: "GHOSTS", DisplayName: "Ghosts", PermissionIDs: []string{"perm_missing"}}, "admin_1")
	require.ErrorIs(t, err, xerrors.ErrInvalidInput)

	_, err = f.svc.CreateRole(ctx, rbac.CreateRoleRequest{RoleName: "AUDITOR", DisplayName: "Auditor 2", PermissionIDs: []string{f.permission(t, PermRolesRead).ID}}, "admin_1")
	require.ErrorIs(t, err, xerrors.ErrConflict)

	_, err = f.svc.CreatePermission(ctx, rbac.CreatePermissionRequest{Key: "USERS:EXPORT", Name: "Export", Module: rbac.ModuleFinance}, "admin_1")
	require.ErrorIs(t, err, xerrors.ErrInvalidInput)

	_, err = f.svc.CreatePermission(ctx, rbac.CreatePermissionRequest{Key: "ROLES:READ", Name: "Dup", Module: rbac.ModuleRoles}, "admin_1")
	require.ErrorIs(t, err, xerrors.ErrConflict)

	_, err = f.svc.UpdateRole(ctx, "role_missing", rbac.RoleMutation{Description: ptr("x")})
	require.ErrorIs(t, err, xerrors.ErrNotFound)
}
