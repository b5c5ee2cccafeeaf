package users

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ RepositoryPort = (*Repository)(nil)

// ListUsers returns all users.
func (r *Repository) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, email, name, is_active, created_at, updated_at FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []User
	for rows.Next() {
		var user User
		if err := rows.Scan(&user.ID, &user.Email, &user.Name, &user.IsActive, &user.CreatedAt, &user.UpdatedAt); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// GetUser fetches one user by id.
func (r *Repository) GetUser(ctx context.Context, id int64) (User, error) {
	var user User
	err := r.pool.QueryRow(ctx,
		`SELECT id, email, name, is_active, created_at, updated_at FROM users WHERE id = $1`, id,
	).Scan(&user.ID, &user.Email, &user.Name, &user.IsActive, &user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, httpx.ErrNotFound
	}
	return user, err
}

// CreateUser inserts a new account.
func (r *Repository) CreateUser(ctx context.Context, user User, passwordHash string) (User, error) {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (email, name, password_hash, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, NOW(), NOW())
		 RETURNING id, created_at, updated_at`,
		user.Email, user.Name, passwordHash, user.IsActive,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return User{}, mapPgError(err)
	}
	return user, nil
}

// UpdateUser persists name and active flag changes.
func (r *Repository) UpdateUser(ctx context.Context, user User) (User, error) {
	err := r.pool.QueryRow(ctx,
		`UPDATE users SET name = $2, is_active = $3, updated_at = NOW() WHERE id = $1 RETURNING updated_at`,
		user.ID, user.Name, user.IsActive,
	).Scan(&user.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, httpx.ErrNotFound
	}
	if err != nil {
		return User{}, err
	}
	return user, nil
}

// ListAssignments returns the user's role assignments ordered by creation.
func (r *Repository) ListAssignments(ctx context.Context, userID int64) ([]RoleAssignment, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT user_id, role_id, org_id, department_id, created_at
		 FROM user_roles WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RoleAssignment
	for rows.Next() {
		var a RoleAssignment
		if err := rows.Scan(&a.UserID, &a.RoleID, &a.OrgID, &a.DepartmentID, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// InsertAssignment records a user-role binding.
func (r *Repository) InsertAssignment(ctx context.Context, a RoleAssignment) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO user_roles (user_id, role_id, org_id, department_id, created_at)
		 VALUES ($1, $2, $3, $4, NOW())`,
		a.UserID, a.RoleID, a.OrgID, a.DepartmentID)
	return mapPgError(err)
}

// DeleteAssignment removes a binding, reporting whether a row existed.
func (r *Repository) DeleteAssignment(ctx context.Context, a RoleAssignment) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM user_roles
		 WHERE user_id = $1 AND role_id = $2 AND org_id = $3
		   AND department_id IS NOT DISTINCT FROM $4`,
		a.UserID, a.RoleID, a.OrgID, a.DepartmentID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return httpx.ErrDuplicate
		case "23503":
			return httpx.ErrValidation
		}
	}
	return err
}
