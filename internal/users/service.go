package users

import (
	"context"

	"golang.org/x/crypto/bcrypt"

	"github.com/dev-raymund/getwobble/internal/rbac"
	"github.com/dev-raymund/getwobble/internal/shared"
)

const usersPerPage = 15

// AccessControl is the slice of the access-control store the user module
// relies on for role membership.
type AccessControl interface {
	RoleExists(ctx context.Context, name string) (bool, error)
	AssignRoleToUser(ctx context.Context, userID int64, roleName string) error
	RemoveRoleFromUser(ctx context.Context, userID, roleID int64) error
	RolesForUser(ctx context.Context, userID int64) ([]rbac.Role, error)
}

// Service handles user management business logic.
type Service struct {
	repo RepositoryPort
	rbac AccessControl
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, rbac AccessControl) *Service {
	return &Service{repo: repo, rbac: rbac}
}

// ListUsersWithRoles returns one page of users with their roles resolved.
func (s *Service) ListUsersWithRoles(ctx context.Context, filters ListFilters) ([]UserWithRoles, shared.Pagination, error) {
	total, err := s.repo.CountUsers(ctx)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	pagination := shared.NewPagination(filters.Page, usersPerPage, total)
	users, err := s.repo.ListUsers(ctx, filters, pagination.PerPage, pagination.Offset())
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	out := make([]UserWithRoles, 0, len(users))
	for _, user := range users {
		roles, err := s.rbac.RolesForUser(ctx, user.ID)
		if err != nil {
			return nil, shared.Pagination{}, err
		}
		out = append(out, UserWithRoles{User: user, Roles: roles})
	}
	return out, pagination, nil
}

// GetUser fetches a user by ID.
func (s *Service) GetUser(ctx context.Context, id int64) (User, error) {
	return s.repo.GetUser(ctx, id)
}

// CreateUser hashes the password, creates the user and optionally grants
// the named role. The role's existence is checked before any write.
func (s *Service) CreateUser(ctx context.Context, req CreateUserRequest) (User, error) {
	if req.Role != "" {
		exists, err := s.rbac.RoleExists(ctx, req.Role)
		if err != nil {
			return User{}, err
		}
		if !exists {
			return User{}, ErrUnknownRole
		}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}
	user, err := s.repo.CreateUser(ctx, req.Name, req.Email, string(hash))
	if err != nil {
		return User{}, err
	}
	if req.Role != "" {
		if err := s.rbac.AssignRoleToUser(ctx, user.ID, req.Role); err != nil {
			return User{}, err
		}
	}
	return user, nil
}

// UpdateUser changes a user's name and email.
func (s *Service) UpdateUser(ctx context.Context, id int64, req UpdateUserRequest) (User, error) {
	return s.repo.UpdateUser(ctx, id, req.Name, req.Email)
}

// DeleteUser removes a user and, via cascade, its role associations.
func (s *Service) DeleteUser(ctx context.Context, id int64) error {
	return s.repo.DeleteUser(ctx, id)
}

// AssignRole grants the named role to a user.
func (s *Service) AssignRole(ctx context.Context, userID int64, roleName string) error {
	if _, err := s.repo.GetUser(ctx, userID); err != nil {
		return err
	}
	return s.rbac.AssignRoleToUser(ctx, userID, roleName)
}

// RemoveRole revokes a role from a user; removing one the user does not
// hold is a no-op.
func (s *Service) RemoveRole(ctx context.Context, userID, roleID int64) error {
	return s.rbac.RemoveRoleFromUser(ctx, userID, roleID)
}
