package orgs

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

// ListOrganizations returns all organizations ordered by id.
func (r *Repository) ListOrganizations(ctx context.Context) ([]Organization, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, code, name, created_at, updated_at FROM organizations ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var orgs []Organization
	for rows.Next() {
		var org Organization
		if err := rows.Scan(&org.ID, &org.Code, &org.Name, &org.CreatedAt, &org.UpdatedAt); err != nil {
			return nil, err
		}
		orgs = append(orgs, org)
	}
	return orgs, rows.Err()
}

// GetOrganization fetches one organization by id.
func (r *Repository) GetOrganization(ctx context.Context, id int64) (Organization, error) {
	var org Organization
	err := r.pool.QueryRow(ctx,
		`SELECT id, code, name, created_at, updated_at FROM organizations WHERE id = $1`, id,
	).Scan(&org.ID, &org.Code, &org.Name, &org.CreatedAt, &org.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Organization{}, httpx.ErrNotFound
	}
	return org, err
}

// CreateOrganization inserts a new organization.
func (r *Repository) CreateOrganization(ctx context.Context, org Organization) (Organization, error) {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO organizations (code, name, created_at, updated_at)
		 VALUES ($1, $2, NOW(), NOW())
		 RETURNING id, created_at, updated_at`,
		org.Code, org.Name,
	).Scan(&org.ID, &org.CreatedAt, &org.UpdatedAt)
	if err != nil {
		return Organization{}, mapPgError(err)
	}
	return org, nil
}

// UpdateOrganization persists name changes.
func (r *Repository) UpdateOrganization(ctx context.Context, org Organization) (Organization, error) {
	err := r.pool.QueryRow(ctx,
		`UPDATE organizations SET name = $2, updated_at = NOW() WHERE id = $1 RETURNING updated_at`,
		org.ID, org.Name,
	).Scan(&org.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Organization{}, httpx.ErrNotFound
	}
	if err != nil {
		return Organization{}, mapPgError(err)
	}
	return org, nil
}

// ListDepartments returns the organization's departments.
func (r *Repository) ListDepartments(ctx context.Context, orgID int64) ([]Department, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, org_id, code, name, created_at FROM departments WHERE org_id = $1 ORDER BY id`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var depts []Department
	for rows.Next() {
		var dept Department
		if err := rows.Scan(&dept.ID, &dept.OrgID, &dept.Code, &dept.Name, &dept.CreatedAt); err != nil {
			return nil, err
		}
		depts = append(depts, dept)
	}
	return depts, rows.Err()
}

// CreateDepartment inserts a department.
func (r *Repository) CreateDepartment(ctx context.Context, dept Department) (Department, error) {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO departments (org_id, code, name, created_at)
		 VALUES ($1, $2, $3, NOW())
		 RETURNING id, created_at`,
		dept.OrgID, dept.Code, dept.Name,
	).Scan(&dept.ID, &dept.CreatedAt)
	if err != nil {
		return Department{}, mapPgError(err)
	}
	return dept, nil
}

// DeleteDepartment removes a department by id.
func (r *Repository) DeleteDepartment(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM departments WHERE id = $1`, id)
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return httpx.ErrNotFound
	}
	return nil
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
