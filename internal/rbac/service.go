package rbac

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dev-raymund/getwobble/internal/shared"
)

const maxNameLength = 255

// Service orchestrates access-control store operations. All role-structure
// mutations invalidate the permission cache so authorization checks never
// observe stale grants.
type Service struct {
	repo  Repository
	cache *Cache
}

// NewService constructs a Service.
func NewService(repo Repository, cache *Cache) *Service {
	return &Service{repo: repo, cache: cache}
}

// ListRolesWithPermissions returns every role together with its permission names.
func (s *Service) ListRolesWithPermissions(ctx context.Context) ([]RoleWithPermissions, error) {
	roles, err := s.repo.ListRoles(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]RoleWithPermissions, 0, len(roles))
	for _, role := range roles {
		perms, err := s.repo.RolePermissionNames(ctx, role.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, RoleWithPermissions{ID: role.ID, Name: role.Name, Permissions: perms})
	}
	return out, nil
}

// ListPermissionNames returns all permission names in the default guard.
func (s *Service) ListPermissionNames(ctx context.Context) ([]string, error) {
	perms, err := s.repo.ListPermissions(ctx, DefaultGuard)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(perms))
	for _, p := range perms {
		names = append(names, p.Name)
	}
	return names, nil
}

// GetRole fetches a role by ID.
func (s *Service) GetRole(ctx context.Context, id int64) (Role, error) {
	return s.repo.GetRole(ctx, id)
}

// RoleExists reports whether a role with the given name exists in the
// default guard.
func (s *Service) RoleExists(ctx context.Context, name string) (bool, error) {
	_, err := s.repo.GetRoleByName(ctx, strings.TrimSpace(name), DefaultGuard)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// CreateRole inserts a new role under the default guard.
func (s *Service) CreateRole(ctx context.Context, name string) (Role, error) {
	name, err := validName(name)
	if err != nil {
		return Role{}, err
	}
	return s.repo.CreateRole(ctx, name, DefaultGuard)
}

// RenameRole updates a role's name. Renaming to the current name is allowed;
// colliding with another role in the same guard is rejected.
func (s *Service) RenameRole(ctx context.Context, id int64, name string) (Role, error) {
	name, err := validName(name)
	if err != nil {
		return Role{}, err
	}
	return s.repo.RenameRole(ctx, id, name)
}

// DeleteRole removes a role. Association rows cascade and cached permission
// resolutions are invalidated so checks against the role stop succeeding.
func (s *Service) DeleteRole(ctx context.Context, id int64) error {
	if err := s.repo.DeleteRole(ctx, id); err != nil {
		return err
	}
	return s.cache.Invalidate(ctx)
}

// AssignPermissionToRole attaches a permission, referenced by name, to a
// role. The permission must already exist; assigning one the role already
// holds is a no-op.
func (s *Service) AssignPermissionToRole(ctx context.Context, roleID int64, permissionName string) error {
	role, err := s.repo.GetRole(ctx, roleID)
	if err != nil {
		return err
	}
	perm, err := s.repo.GetPermissionByName(ctx, strings.TrimSpace(permissionName), role.GuardName)
	if err != nil {
		return err
	}
	if err := s.repo.AttachPermission(ctx, role.ID, perm.ID); err != nil {
		return err
	}
	return s.cache.Invalidate(ctx)
}

// RevokePermissionFromRole detaches a permission from a role. Revoking a
// permission the role does not hold is a no-op.
func (s *Service) RevokePermissionFromRole(ctx context.Context, roleID int64, permissionName string) error {
	role, err := s.repo.GetRole(ctx, roleID)
	if err != nil {
		return err
	}
	perm, err := s.repo.GetPermissionByName(ctx, strings.TrimSpace(permissionName), role.GuardName)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil
		}
		return err
	}
	if err := s.repo.DetachPermission(ctx, role.ID, perm.ID); err != nil {
		return err
	}
	return s.cache.Invalidate(ctx)
}

// EnsurePermission upserts a permission in the default guard.
func (s *Service) EnsurePermission(ctx context.Context, name string) (Permission, error) {
	name, err := validName(name)
	if err != nil {
		return Permission{}, err
	}
	return s.repo.UpsertPermission(ctx, name, DefaultGuard)
}

// AssignRoleToUser grants a role, referenced by name, to a user. The role
// must exist before any write happens; granting an already-held role is a
// no-op.
func (s *Service) AssignRoleToUser(ctx context.Context, userID int64, roleName string) error {
	role, err := s.repo.GetRoleByName(ctx, strings.TrimSpace(roleName), DefaultGuard)
	if err != nil {
		return err
	}
	if err := s.repo.AssignRoleToUser(ctx, userID, role.ID); err != nil {
		return err
	}
	return s.cache.Invalidate(ctx)
}

// RemoveRoleFromUser revokes a role from a user; absent associations are a
// no-op.
func (s *Service) RemoveRoleFromUser(ctx context.Context, userID, roleID int64) error {
	if err := s.repo.RemoveRoleFromUser(ctx, userID, roleID); err != nil {
		return err
	}
	return s.cache.Invalidate(ctx)
}

// RolesForUser returns the roles a user holds.
func (s *Service) RolesForUser(ctx context.Context, userID int64) ([]Role, error) {
	return s.repo.UserRoles(ctx, userID)
}

// EffectivePermissions returns the deduplicated permission names a user
// holds through role membership, served from the cache when warm.
func (s *Service) EffectivePermissions(ctx context.Context, userID int64) ([]string, error) {
	key, err := s.cache.BuildKey(ctx, keyUserPermissions(userID)...)
	if err != nil {
		return nil, err
	}
	var perms []string
	err = s.cache.FetchJSON(ctx, key, &perms, func(ctx context.Context) (interface{}, error) {
		return s.repo.UserPermissionNames(ctx, userID)
	})
	if err != nil {
		return nil, err
	}
	return perms, nil
}

func validName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("rbac: name required")
	}
	if len(name) > maxNameLength {
		return "", fmt.Errorf("rbac: name exceeds %d characters", maxNameLength)
	}
	return name, nil
}
