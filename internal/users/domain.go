package users

import (
	"time"

	"github.com/dev-raymund/getwobble/internal/rbac"
)

// User represents a user account for management. The password hash never
// leaves the repository layer.
type User struct {
	ID        int64
	Name      string
	Email     string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// UserWithRoles is the listing projection for the users view.
type UserWithRoles struct {
	User
	Roles []rbac.Role
}
