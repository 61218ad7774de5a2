package rbac

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dev-raymund/getwobble/internal/shared"
)

// Repository defines persistence operations for the access-control store.
type Repository interface {
	ListRoles(ctx context.Context) ([]Role, error)
	GetRole(ctx context.Context, id int64) (Role, error)
	GetRoleByName(ctx context.Context, name, guard string) (Role, error)
	CreateRole(ctx context.Context, name, guard string) (Role, error)
	RenameRole(ctx context.Context, id int64, name string) (Role, error)
	DeleteRole(ctx context.Context, id int64) error

	ListPermissions(ctx context.Context, guard string) ([]Permission, error)
	GetPermissionByName(ctx context.Context, name, guard string) (Permission, error)
	UpsertPermission(ctx context.Context, name, guard string) (Permission, error)
	RolePermissionNames(ctx context.Context, roleID int64) ([]string, error)
	AttachPermission(ctx context.Context, roleID, permissionID int64) error
	DetachPermission(ctx context.Context, roleID, permissionID int64) error

	AssignRoleToUser(ctx context.Context, userID, roleID int64) error
	RemoveRoleFromUser(ctx context.Context, userID, roleID int64) error
	UserRoles(ctx context.Context, userID int64) ([]Role, error)
	UserPermissionNames(ctx context.Context, userID int64) ([]string, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

var _ Repository = (*PGRepository)(nil)

// ListRoles returns all roles ordered by name.
func (r *PGRepository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, guard_name, created_at, updated_at FROM roles ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.GuardName, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// GetRole fetches a role by ID.
func (r *PGRepository) GetRole(ctx context.Context, id int64) (Role, error) {
	var role Role
	err := r.pool.QueryRow(ctx, `SELECT id, name, guard_name, created_at, updated_at FROM roles WHERE id = $1`, id).
		Scan(&role.ID, &role.Name, &role.GuardName, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, fmt.Errorf("rbac: role %d: %w", id, shared.ErrNotFound)
		}
		return Role{}, err
	}
	return role, nil
}

// GetRoleByName fetches a role by its name within a guard scope.
func (r *PGRepository) GetRoleByName(ctx context.Context, name, guard string) (Role, error) {
	var role Role
	err := r.pool.QueryRow(ctx, `SELECT id, name, guard_name, created_at, updated_at FROM roles WHERE name = $1 AND guard_name = $2`, name, guard).
		Scan(&role.ID, &role.Name, &role.GuardName, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, fmt.Errorf("rbac: role %q: %w", name, shared.ErrNotFound)
		}
		return Role{}, err
	}
	return role, nil
}

// CreateRole inserts a new role.
func (r *PGRepository) CreateRole(ctx context.Context, name, guard string) (Role, error) {
	var role Role
	err := r.pool.QueryRow(ctx,
		`INSERT INTO roles (name, guard_name, created_at, updated_at) VALUES ($1, $2, NOW(), NOW())
		 RETURNING id, name, guard_name, created_at, updated_at`, name, guard).
		Scan(&role.ID, &role.Name, &role.GuardName, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return Role{}, fmt.Errorf("rbac: role %q: %w", name, shared.ErrDuplicate)
		}
		return Role{}, err
	}
	return role, nil
}

// RenameRole updates the role name. The unique index on (name, guard_name)
// rejects collisions with other roles while the role's own row is untouched
// when the name is unchanged.
func (r *PGRepository) RenameRole(ctx context.Context, id int64, name string) (Role, error) {
	var role Role
	err := r.pool.QueryRow(ctx,
		`UPDATE roles SET name = $2, updated_at = NOW() WHERE id = $1
		 RETURNING id, name, guard_name, created_at, updated_at`, id, name).
		Scan(&role.ID, &role.Name, &role.GuardName, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, fmt.Errorf("rbac: role %d: %w", id, shared.ErrNotFound)
		}
		if isUniqueViolation(err) {
			return Role{}, fmt.Errorf("rbac: role %q: %w", name, shared.ErrDuplicate)
		}
		return Role{}, err
	}
	return role, nil
}

// DeleteRole removes a role. Association rows cascade at the schema level.
func (r *PGRepository) DeleteRole(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("rbac: role %d: %w", id, shared.ErrNotFound)
	}
	return nil
}

// ListPermissions returns all permissions in a guard scope ordered by name.
func (r *PGRepository) ListPermissions(ctx context.Context, guard string) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, guard_name FROM permissions WHERE guard_name = $1 ORDER BY name`, guard)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.GuardName); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// GetPermissionByName fetches a permission by name within a guard scope.
func (r *PGRepository) GetPermissionByName(ctx context.Context, name, guard string) (Permission, error) {
	var p Permission
	err := r.pool.QueryRow(ctx, `SELECT id, name, guard_name FROM permissions WHERE name = $1 AND guard_name = $2`, name, guard).
		Scan(&p.ID, &p.Name, &p.GuardName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Permission{}, fmt.Errorf("rbac: permission %q: %w", name, shared.ErrNotFound)
		}
		return Permission{}, err
	}
	return p, nil
}

// UpsertPermission creates the permission when missing and returns the row.
func (r *PGRepository) UpsertPermission(ctx context.Context, name, guard string) (Permission, error) {
	var p Permission
	err := r.pool.QueryRow(ctx,
		`INSERT INTO permissions (name, guard_name) VALUES ($1, $2)
		 ON CONFLICT (name, guard_name) DO UPDATE SET name = EXCLUDED.name
		 RETURNING id, name, guard_name`, name, guard).
		Scan(&p.ID, &p.Name, &p.GuardName)
	if err != nil {
		return Permission{}, err
	}
	return p, nil
}

// RolePermissionNames returns the permission names attached to a role.
func (r *PGRepository) RolePermissionNames(ctx context.Context, roleID int64) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT p.name FROM permissions p
		 JOIN role_has_permissions rp ON rp.permission_id = p.id
		 WHERE rp.role_id = $1 ORDER BY p.name`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanNames(rows)
}

// AttachPermission links a permission to a role, idempotently.
func (r *PGRepository) AttachPermission(ctx context.Context, roleID, permissionID int64) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO role_has_permissions (role_id, permission_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		roleID, permissionID)
	return err
}

// DetachPermission removes a role-permission link if present.
func (r *PGRepository) DetachPermission(ctx context.Context, roleID, permissionID int64) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM role_has_permissions WHERE role_id = $1 AND permission_id = $2`,
		roleID, permissionID)
	return err
}

// AssignRoleToUser links a role to a user, idempotently.
func (r *PGRepository) AssignRoleToUser(ctx context.Context, userID, roleID int64) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO user_has_roles (user_id, role_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		userID, roleID)
	if err != nil && isForeignKeyViolation(err) {
		return fmt.Errorf("rbac: user %d: %w", userID, shared.ErrNotFound)
	}
	return err
}

// RemoveRoleFromUser removes a user-role link if present.
func (r *PGRepository) RemoveRoleFromUser(ctx context.Context, userID, roleID int64) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM user_has_roles WHERE user_id = $1 AND role_id = $2`,
		userID, roleID)
	return err
}

// UserRoles returns the roles held by a user.
func (r *PGRepository) UserRoles(ctx context.Context, userID int64) ([]Role, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT r.id, r.name, r.guard_name, r.created_at, r.updated_at FROM roles r
		 JOIN user_has_roles ur ON ur.role_id = r.id
		 WHERE ur.user_id = $1 ORDER BY r.name`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.GuardName, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// UserPermissionNames resolves the deduplicated permission names a user
// holds through role membership.
func (r *PGRepository) UserPermissionNames(ctx context.Context, userID int64) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT DISTINCT p.name FROM permissions p
		 JOIN role_has_permissions rp ON rp.permission_id = p.id
		 JOIN user_has_roles ur ON ur.role_id = rp.role_id
		 WHERE ur.user_id = $1 ORDER BY p.name`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanNames(rows)
}

func scanNames(rows pgx.Rows) ([]string, error) {
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
