package rbac

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/dev-raymund/getwobble/internal/shared"
)

type memoryRepo struct {
	roles       map[int64]Role
	permissions map[int64]Permission
	rolePerms   map[int64]map[int64]bool
	userRoles   map[int64]map[int64]bool
	nextID      int64

	permLookups int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		roles:       make(map[int64]Role),
		permissions: make(map[int64]Permission),
		rolePerms:   make(map[int64]map[int64]bool),
		userRoles:   make(map[int64]map[int64]bool),
	}
}

func (r *memoryRepo) ListRoles(ctx context.Context) ([]Role, error) {
	out := make([]Role, 0, len(r.roles))
	for _, role := range r.roles {
		out = append(out, role)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *memoryRepo) GetRole(ctx context.Context, id int64) (Role, error) {
	role, ok := r.roles[id]
	if !ok {
		return Role{}, fmt.Errorf("rbac: role %d: %w", id, shared.ErrNotFound)
	}
	return role, nil
}

func (r *memoryRepo) GetRoleByName(ctx context.Context, name, guard string) (Role, error) {
	for _, role := range r.roles {
		if role.Name == name && role.GuardName == guard {
			return role, nil
		}
	}
	return Role{}, fmt.Errorf("rbac: role %q: %w", name, shared.ErrNotFound)
}

func (r *memoryRepo) CreateRole(ctx context.Context, name, guard string) (Role, error) {
	for _, role := range r.roles {
		if role.Name == name && role.GuardName == guard {
			return Role{}, fmt.Errorf("rbac: role %q: %w", name, shared.ErrDuplicate)
		}
	}
	r.nextID++
	role := Role{ID: r.nextID, Name: name, GuardName: guard, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	r.roles[role.ID] = role
	return role, nil
}

func (r *memoryRepo) RenameRole(ctx context.Context, id int64, name string) (Role, error) {
	role, ok := r.roles[id]
	if !ok {
		return Role{}, fmt.Errorf("rbac: role %d: %w", id, shared.ErrNotFound)
	}
	for _, other := range r.roles {
		if other.ID != id && other.Name == name && other.GuardName == role.GuardName {
			return Role{}, fmt.Errorf("rbac: role %q: %w", name, shared.ErrDuplicate)
		}
	}
	role.Name = name
	role.UpdatedAt = time.Now()
	r.roles[id] = role
	return role, nil
}

func (r *memoryRepo) DeleteRole(ctx context.Context, id int64) error {
	if _, ok := r.roles[id]; !ok {
		return fmt.Errorf("rbac: role %d: %w", id, shared.ErrNotFound)
	}
	delete(r.roles, id)
	delete(r.rolePerms, id)
	for _, held := range r.userRoles {
		delete(held, id)
	}
	return nil
}

func (r *memoryRepo) ListPermissions(ctx context.Context, guard string) ([]Permission, error) {
	out := make([]Permission, 0, len(r.permissions))
	for _, p := range r.permissions {
		if p.GuardName == guard {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *memoryRepo) GetPermissionByName(ctx context.Context, name, guard string) (Permission, error) {
	for _, p := range r.permissions {
		if p.Name == name && p.GuardName == guard {
			return p, nil
		}
	}
	return Permission{}, fmt.Errorf("rbac: permission %q: %w", name, shared.ErrNotFound)
}

func (r *memoryRepo) UpsertPermission(ctx context.Context, name, guard string) (Permission, error) {
	for _, p := range r.permissions {
		if p.Name == name && p.GuardName == guard {
			return p, nil
		}
	}
	r.nextID++
	p := Permission{ID: r.nextID, Name: name, GuardName: guard}
	r.permissions[p.ID] = p
	return p, nil
}

func (r *memoryRepo) RolePermissionNames(ctx context.Context, roleID int64) ([]string, error) {
	var names []string
	for permID := range r.rolePerms[roleID] {
		names = append(names, r.permissions[permID].Name)
	}
	sort.Strings(names)
	return names, nil
}

func (r *memoryRepo) AttachPermission(ctx context.Context, roleID, permissionID int64) error {
	if r.rolePerms[roleID] == nil {
		r.rolePerms[roleID] = make(map[int64]bool)
	}
	r.rolePerms[roleID][permissionID] = true
	return nil
}

func (r *memoryRepo) DetachPermission(ctx context.Context, roleID, permissionID int64) error {
	delete(r.rolePerms[roleID], permissionID)
	return nil
}

func (r *memoryRepo) AssignRoleToUser(ctx context.Context, userID, roleID int64) error {
	if r.userRoles[userID] == nil {
		r.userRoles[userID] = make(map[int64]bool)
	}
	r.userRoles[userID][roleID] = true
	return nil
}

func (r *memoryRepo) RemoveRoleFromUser(ctx context.Context, userID, roleID int64) error {
	delete(r.userRoles[userID], roleID)
	return nil
}

func (r *memoryRepo) UserRoles(ctx context.Context, userID int64) ([]Role, error) {
	var out []Role
	for roleID := range r.userRoles[userID] {
		out = append(out, r.roles[roleID])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *memoryRepo) UserPermissionNames(ctx context.Context, userID int64) ([]string, error) {
	r.permLookups++
	seen := make(map[string]bool)
	for roleID := range r.userRoles[userID] {
		for permID := range r.rolePerms[roleID] {
			seen[r.permissions[permID].Name] = true
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func newTestService(t *testing.T, repo Repository) *Service {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewService(repo, NewCache(client, time.Minute))
}

func TestCreateRoleValidation(t *testing.T) {
	svc := newTestService(t, newMemoryRepo())
	ctx := context.Background()

	_, err := svc.CreateRole(ctx, "   ")
	require.Error(t, err)

	role, err := svc.CreateRole(ctx, "  editor  ")
	require.NoError(t, err)
	require.Equal(t, "editor", role.Name)
	require.Equal(t, DefaultGuard, role.GuardName)
}

func TestCreateRoleDuplicateName(t *testing.T) {
	svc := newTestService(t, newMemoryRepo())
	ctx := context.Background()

	_, err := svc.CreateRole(ctx, "editor")
	require.NoError(t, err)

	_, err = svc.CreateRole(ctx, "editor")
	require.ErrorIs(t, err, shared.ErrDuplicate)
}

func TestRenameRoleKeepsOwnName(t *testing.T) {
	svc := newTestService(t, newMemoryRepo())
	ctx := context.Background()

	role, err := svc.CreateRole(ctx, "editor")
	require.NoError(t, err)
	_, err = svc.CreateRole(ctx, "viewer")
	require.NoError(t, err)

	renamed, err := svc.RenameRole(ctx, role.ID, "editor")
	require.NoError(t, err)
	require.Equal(t, "editor", renamed.Name)

	_, err = svc.RenameRole(ctx, role.ID, "viewer")
	require.ErrorIs(t, err, shared.ErrDuplicate)
}

func TestAssignPermissionRequiresExistingPermission(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(t, repo)
	ctx := context.Background()

	role, err := svc.CreateRole(ctx, "editor")
	require.NoError(t, err)

	err = svc.AssignPermissionToRole(ctx, role.ID, "posts.edit")
	require.ErrorIs(t, err, shared.ErrNotFound)
	require.Empty(t, repo.rolePerms[role.ID])
}

func TestAssignPermissionIdempotent(t *testing.T) {
	svc := newTestService(t, newMemoryRepo())
	ctx := context.Background()

	role, err := svc.CreateRole(ctx, "editor")
	require.NoError(t, err)
	_, err = svc.EnsurePermission(ctx, "posts.edit")
	require.NoError(t, err)

	require.NoError(t, svc.AssignPermissionToRole(ctx, role.ID, "posts.edit"))
	require.NoError(t, svc.AssignPermissionToRole(ctx, role.ID, "posts.edit"))

	names, err := svc.ListRolesWithPermissions(ctx)
	require.NoError(t, err)
	require.Len(t, names, 1)
	require.Equal(t, []string{"posts.edit"}, names[0].Permissions)
}

func TestRevokeAbsentPermissionIsNoOp(t *testing.T) {
	svc := newTestService(t, newMemoryRepo())
	ctx := context.Background()

	role, err := svc.CreateRole(ctx, "editor")
	require.NoError(t, err)

	require.NoError(t, svc.RevokePermissionFromRole(ctx, role.ID, "does.not.exist"))
}

func TestAssignRoleToUserRequiresRole(t *testing.T) {
	svc := newTestService(t, newMemoryRepo())
	ctx := context.Background()

	err := svc.AssignRoleToUser(ctx, 7, "ghost")
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestEffectivePermissionsServedFromCache(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(t, repo)
	ctx := context.Background()

	role, err := svc.CreateRole(ctx, "editor")
	require.NoError(t, err)
	_, err = svc.EnsurePermission(ctx, "posts.edit")
	require.NoError(t, err)
	require.NoError(t, svc.AssignPermissionToRole(ctx, role.ID, "posts.edit"))
	require.NoError(t, svc.AssignRoleToUser(ctx, 7, "editor"))

	perms, err := svc.EffectivePermissions(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, []string{"posts.edit"}, perms)

	lookups := repo.permLookups
	perms, err = svc.EffectivePermissions(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, []string{"posts.edit"}, perms)
	require.Equal(t, lookups, repo.permLookups, "second resolution should hit the cache")
}

func TestRoleMutationInvalidatesEffectivePermissions(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(t, repo)
	ctx := context.Background()

	role, err := svc.CreateRole(ctx, "editor")
	require.NoError(t, err)
	_, err = svc.EnsurePermission(ctx, "posts.edit")
	require.NoError(t, err)
	require.NoError(t, svc.AssignPermissionToRole(ctx, role.ID, "posts.edit"))
	require.NoError(t, svc.AssignRoleToUser(ctx, 7, "editor"))

	perms, err := svc.EffectivePermissions(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, []string{"posts.edit"}, perms)

	require.NoError(t, svc.DeleteRole(ctx, role.ID))

	perms, err = svc.EffectivePermissions(ctx, 7)
	require.NoError(t, err)
	require.Empty(t, perms)
}

func TestRevokePermissionInvalidatesEffectivePermissions(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(t, repo)
	ctx := context.Background()

	role, err := svc.CreateRole(ctx, "editor")
	require.NoError(t, err)
	_, err = svc.EnsurePermission(ctx, "posts.edit")
	require.NoError(t, err)
	_, err = svc.EnsurePermission(ctx, "posts.view")
	require.NoError(t, err)
	require.NoError(t, svc.AssignPermissionToRole(ctx, role.ID, "posts.edit"))
	require.NoError(t, svc.AssignPermissionToRole(ctx, role.ID, "posts.view"))
	require.NoError(t, svc.AssignRoleToUser(ctx, 7, "editor"))

	perms, err := svc.EffectivePermissions(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, []string{"posts.edit", "posts.view"}, perms)

	require.NoError(t, svc.RevokePermissionFromRole(ctx, role.ID, "posts.edit"))

	perms, err = svc.EffectivePermissions(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, []string{"posts.view"}, perms)
}
