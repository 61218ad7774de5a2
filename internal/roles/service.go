package roles

import (
	"context"

	"github.com/dev-raymund/getwobble/internal/rbac"
)

// Store is the slice of the access-control store the roles module uses.
type Store interface {
	ListRolesWithPermissions(ctx context.Context) ([]rbac.RoleWithPermissions, error)
	ListPermissionNames(ctx context.Context) ([]string, error)
	CreateRole(ctx context.Context, name string) (rbac.Role, error)
	RenameRole(ctx context.Context, id int64, name string) (rbac.Role, error)
	DeleteRole(ctx context.Context, id int64) error
	AssignPermissionToRole(ctx context.Context, roleID int64, permissionName string) error
	RevokePermissionFromRole(ctx context.Context, roleID int64, permissionName string) error
}

// Service handles the roles-and-permissions view logic.
type Service struct {
	store Store
}

// NewService builds Service instance.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// ListRolesWithPermissions returns all roles with their permission names.
func (s *Service) ListRolesWithPermissions(ctx context.Context) ([]rbac.RoleWithPermissions, error) {
	return s.store.ListRolesWithPermissions(ctx)
}

// ListPermissionNames returns every known permission name.
func (s *Service) ListPermissionNames(ctx context.Context) ([]string, error) {
	return s.store.ListPermissionNames(ctx)
}

// CreateRole creates a role under the default guard.
func (s *Service) CreateRole(ctx context.Context, name string) (rbac.Role, error) {
	return s.store.CreateRole(ctx, name)
}

// RenameRole changes a role's name.
func (s *Service) RenameRole(ctx context.Context, id int64, name string) (rbac.Role, error) {
	return s.store.RenameRole(ctx, id, name)
}

// DeleteRole removes a role and invalidates cached permission resolutions.
func (s *Service) DeleteRole(ctx context.Context, id int64) error {
	return s.store.DeleteRole(ctx, id)
}

// AssignPermission attaches an existing permission to a role.
func (s *Service) AssignPermission(ctx context.Context, roleID int64, permission string) error {
	return s.store.AssignPermissionToRole(ctx, roleID, permission)
}

// RevokePermission detaches a permission from a role.
func (s *Service) RevokePermission(ctx context.Context, roleID int64, permission string) error {
	return s.store.RevokePermissionFromRole(ctx, roleID, permission)
}
