package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dev-raymund/getwobble/internal/shared"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	ListUsers(ctx context.Context, filters ListFilters, limit, offset int) ([]User, error)
	CountUsers(ctx context.Context) (int, error)
	GetUser(ctx context.Context, id int64) (User, error)
	CreateUser(ctx context.Context, name, email, passwordHash string) (User, error)
	UpdateUser(ctx context.Context, id int64, name, email string) (User, error)
	DeleteUser(ctx context.Context, id int64) error
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ RepositoryPort = (*Repository)(nil)

// ListUsers returns one page of users in the requested order.
func (r *Repository) ListUsers(ctx context.Context, filters ListFilters, limit, offset int) ([]User, error) {
	query := `SELECT id, name, email, is_active, created_at, updated_at FROM users ORDER BY ` +
		orderClause(filters) + ` LIMIT $1 OFFSET $2`
	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []User
	for rows.Next() {
		var user User
		if err := rows.Scan(&user.ID, &user.Name, &user.Email, &user.IsActive, &user.CreatedAt, &user.UpdatedAt); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// CountUsers returns the total number of user rows.
func (r *Repository) CountUsers(ctx context.Context) (int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

// GetUser fetches a user by ID.
func (r *Repository) GetUser(ctx context.Context, id int64) (User, error) {
	var user User
	err := r.pool.QueryRow(ctx, `SELECT id, name, email, is_active, created_at, updated_at FROM users WHERE id = $1`, id).
		Scan(&user.ID, &user.Name, &user.Email, &user.IsActive, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, fmt.Errorf("users: user %d: %w", id, shared.ErrNotFound)
		}
		return User{}, err
	}
	return user, nil
}

// CreateUser inserts a new user row.
func (r *Repository) CreateUser(ctx context.Context, name, email, passwordHash string) (User, error) {
	var user User
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (name, email, password_hash, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, TRUE, NOW(), NOW())
		 RETURNING id, name, email, is_active, created_at, updated_at`, name, email, passwordHash).
		Scan(&user.ID, &user.Name, &user.Email, &user.IsActive, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return User{}, fmt.Errorf("users: email %q: %w", email, shared.ErrDuplicate)
		}
		return User{}, err
	}
	return user, nil
}

// UpdateUser updates name and email for an existing user.
func (r *Repository) UpdateUser(ctx context.Context, id int64, name, email string) (User, error) {
	var user User
	err := r.pool.QueryRow(ctx,
		`UPDATE users SET name = $2, email = $3, updated_at = NOW() WHERE id = $1
		 RETURNING id, name, email, is_active, created_at, updated_at`, id, name, email).
		Scan(&user.ID, &user.Name, &user.Email, &user.IsActive, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, fmt.Errorf("users: user %d: %w", id, shared.ErrNotFound)
		}
		if isUniqueViolation(err) {
			return User{}, fmt.Errorf("users: email %q: %w", email, shared.ErrDuplicate)
		}
		return User{}, err
	}
	return user, nil
}

// DeleteUser removes a user. Role associations cascade at the schema level.
func (r *Repository) DeleteUser(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("users: user %d: %w", id, shared.ErrNotFound)
	}
	return nil
}

// orderClause whitelists sortable columns; anything else falls back to id.
func orderClause(filters ListFilters) string {
	column := "id"
	switch filters.SortBy {
	case "name", "email", "created_at":
		column = filters.SortBy
	}
	dir := "ASC"
	if filters.SortDir == "desc" {
		dir = "DESC"
	}
	return column + " " + dir
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
