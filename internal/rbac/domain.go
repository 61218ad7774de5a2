package rbac

import "time"

// DefaultGuard is the guard scope applied to roles and permissions
// created through the admin panel.
const DefaultGuard = "web"

// Role represents a high-level permission grouping.
type Role struct {
	ID        int64
	Name      string
	GuardName string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Permission represents an atomic capability.
type Permission struct {
	ID        int64
	Name      string
	GuardName string
}

// RoleWithPermissions is the listing projection for the roles view.
type RoleWithPermissions struct {
	ID          int64
	Name        string
	Permissions []string
}

// RolePermission ties a permission to a role.
type RolePermission struct {
	RoleID       int64
	PermissionID int64
}

// UserRole links a user to a role.
type UserRole struct {
	UserID int64
	RoleID int64
}
