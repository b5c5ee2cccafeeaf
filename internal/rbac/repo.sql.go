package rbac

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/platform/db"
)

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx so the same queries
// serve plain reads and transactional mutations.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type queries struct {
	db dbtx
}

// Repository provides PostgreSQL backed persistence for the permission
// subsystem.
type Repository struct {
	pool *pgxpool.Pool
	queries
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, queries: queries{db: pool}}
}

// WithTx runs fn inside one RepeatableRead transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &queries{db: tx})
	})
}

// --- permissions ---

const permissionColumns = `id, code, name, category, description, is_active, created_at`

func (q *queries) GetPermission(ctx context.Context, code string) (Permission, error) {
	row := q.db.QueryRow(ctx, `SELECT `+permissionColumns+` FROM permissions WHERE code = $1`, code)
	return scanPermission(row)
}

func (q *queries) ListPermissions(ctx context.Context, category string) ([]Permission, error) {
	query := `SELECT ` + permissionColumns + ` FROM permissions ORDER BY category, code`
	args := []any{}
	if category != "" {
		query = `SELECT ` + permissionColumns + ` FROM permissions WHERE category = $1 ORDER BY code`
		args = append(args, category)
	}
	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []Permission
	for rows.Next() {
		perm, err := scanPermission(rows)
		if err != nil {
			return nil, err
		}
		perms = append(perms, perm)
	}
	return perms, rows.Err()
}

func (q *queries) EnsurePermission(ctx context.Context, perm Permission) (Permission, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO permissions (code, name, category, description, is_active)
		VALUES ($1, $2, $3, $4, TRUE)
		ON CONFLICT (code) DO UPDATE
		SET name = EXCLUDED.name, category = EXCLUDED.category, description = EXCLUDED.description, is_active = TRUE
		RETURNING `+permissionColumns,
		perm.Code, perm.Name, perm.Category, perm.Description)
	return scanPermission(row)
}

func (q *queries) DeactivatePermission(ctx context.Context, code string) error {
	tag, err := q.db.Exec(ctx, `UPDATE permissions SET is_active = FALSE WHERE code = $1`, code)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- dependencies ---

func (q *queries) ListDependencies(ctx context.Context) ([]Dependency, error) {
	rows, err := q.db.Query(ctx, `SELECT permission_code, requires_code FROM permission_dependencies ORDER BY permission_code, requires_code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var deps []Dependency
	for rows.Next() {
		var dep Dependency
		if err := rows.Scan(&dep.PermissionCode, &dep.RequiresCode); err != nil {
			return nil, err
		}
		deps = append(deps, dep)
	}
	return deps, rows.Err()
}

func (q *queries) InsertDependency(ctx context.Context, dep Dependency) error {
	_, err := q.db.Exec(ctx, `INSERT INTO permission_dependencies (permission_code, requires_code) VALUES ($1, $2)`,
		dep.PermissionCode, dep.RequiresCode)
	return mapPgError(err)
}

func (q *queries) DeleteDependency(ctx context.Context, dep Dependency) (bool, error) {
	tag, err := q.db.Exec(ctx, `DELETE FROM permission_dependencies WHERE permission_code = $1 AND requires_code = $2`,
		dep.PermissionCode, dep.RequiresCode)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// --- roles ---

const roleColumns = `id, org_id, code, name, description, created_at, updated_at`

func (q *queries) GetRole(ctx context.Context, id int64) (Role, error) {
	row := q.db.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1`, id)
	return scanRole(row)
}

func (q *queries) GetRoleByCode(ctx context.Context, orgID int64, code string) (Role, error) {
	row := q.db.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE org_id = $1 AND code = $2`, orgID, code)
	return scanRole(row)
}

func (q *queries) ListRoles(ctx context.Context, orgID int64) ([]Role, error) {
	rows, err := q.db.Query(ctx, `SELECT `+roleColumns+` FROM roles WHERE org_id = $1 OR org_id = 0 ORDER BY id`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

func (q *queries) CreateRole(ctx context.Context, role Role) (Role, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO roles (org_id, code, name, description)
		VALUES ($1, $2, $3, $4)
		RETURNING `+roleColumns,
		role.OrgID, role.Code, role.Name, role.Description)
	created, err := scanRole(row)
	if err != nil {
		return Role{}, mapPgError(err)
	}
	return created, nil
}

func (q *queries) UpdateRole(ctx context.Context, role Role) (Role, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE roles SET name = $2, description = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING `+roleColumns,
		role.ID, role.Name, role.Description)
	return scanRole(row)
}

func (q *queries) DeleteRole(ctx context.Context, id int64) error {
	tag, err := q.db.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (q *queries) CountRoleReferences(ctx context.Context, id int64) (int64, error) {
	var count int64
	err := q.db.QueryRow(ctx, `
		SELECT (SELECT COUNT(*) FROM role_inheritance_rules WHERE parent_role_id = $1 OR child_role_id = $1)
		     + (SELECT COUNT(*) FROM user_roles WHERE role_id = $1)`, id).Scan(&count)
	return count, err
}

// --- inheritance rules ---

const ruleColumns = `id, parent_role_id, child_role_id, inherit_all, selected_permissions, priority, is_active, created_at, updated_at`

func (q *queries) GetRule(ctx context.Context, id int64) (InheritanceRule, error) {
	row := q.db.QueryRow(ctx, `SELECT `+ruleColumns+` FROM role_inheritance_rules WHERE id = $1`, id)
	return scanRule(row)
}

func (q *queries) InsertRule(ctx context.Context, rule InheritanceRule) (InheritanceRule, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO role_inheritance_rules (parent_role_id, child_role_id, inherit_all, selected_permissions, priority, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+ruleColumns,
		rule.ParentRoleID, rule.ChildRoleID, rule.InheritAll, rule.SelectedPermissions, rule.Priority, rule.IsActive)
	inserted, err := scanRule(row)
	if err != nil {
		return InheritanceRule{}, mapPgError(err)
	}
	return inserted, nil
}

func (q *queries) UpdateRule(ctx context.Context, rule InheritanceRule) (InheritanceRule, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE role_inheritance_rules
		SET parent_role_id = $2, child_role_id = $3, inherit_all = $4, selected_permissions = $5, priority = $6, is_active = $7, updated_at = NOW()
		WHERE id = $1
		RETURNING `+ruleColumns,
		rule.ID, rule.ParentRoleID, rule.ChildRoleID, rule.InheritAll, rule.SelectedPermissions, rule.Priority, rule.IsActive)
	updated, err := scanRule(row)
	if err != nil {
		return InheritanceRule{}, mapPgError(err)
	}
	return updated, nil
}

// --- grants ---

func (q *queries) SetGrant(ctx context.Context, grant Grant) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO role_permission_grants (role_id, permission_code, granted)
		VALUES ($1, $2, $3)
		ON CONFLICT (role_id, permission_code) DO UPDATE SET granted = EXCLUDED.granted`,
		grant.RoleID, grant.PermissionCode, grant.Granted)
	return mapPgError(err)
}

func (q *queries) ClearGrant(ctx context.Context, roleID int64, code string) (bool, error) {
	tag, err := q.db.Exec(ctx, `DELETE FROM role_permission_grants WHERE role_id = $1 AND permission_code = $2`, roleID, code)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// --- snapshot ---

// LoadSnapshot materializes the organization's roles (plus global roles),
// their active inheritance rules and direct grants in three queries.
func (q *queries) LoadSnapshot(ctx context.Context, orgID int64) (*Snapshot, error) {
	roles, err := q.ListRoles(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("snapshot roles: %w", err)
	}

	ruleRows, err := q.db.Query(ctx, `
		SELECT `+ruleColumns+` FROM role_inheritance_rules
		WHERE child_role_id IN (SELECT id FROM roles WHERE org_id = $1 OR org_id = 0)
		ORDER BY id`, orgID)
	if err != nil {
		return nil, fmt.Errorf("snapshot rules: %w", err)
	}
	defer ruleRows.Close()
	var rules []InheritanceRule
	for ruleRows.Next() {
		rule, err := scanRule(ruleRows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	if err := ruleRows.Err(); err != nil {
		return nil, err
	}

	grantRows, err := q.db.Query(ctx, `
		SELECT role_id, permission_code, granted FROM role_permission_grants
		WHERE role_id IN (SELECT id FROM roles WHERE org_id = $1 OR org_id = 0)`, orgID)
	if err != nil {
		return nil, fmt.Errorf("snapshot grants: %w", err)
	}
	defer grantRows.Close()
	var grants []Grant
	for grantRows.Next() {
		var grant Grant
		if err := grantRows.Scan(&grant.RoleID, &grant.PermissionCode, &grant.Granted); err != nil {
			return nil, err
		}
		grants = append(grants, grant)
	}
	if err := grantRows.Err(); err != nil {
		return nil, err
	}

	return NewSnapshot(roles, rules, grants), nil
}

// --- user role context ---

func (q *queries) ListUserRoleIDs(ctx context.Context, userID, orgID int64, departmentID *int64) ([]int64, error) {
	rows, err := q.db.Query(ctx, `
		SELECT role_id FROM user_roles
		WHERE user_id = $1 AND org_id = $2
		  AND (department_id IS NULL OR department_id = $3)`,
		userID, orgID, departmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIDs(rows)
}

func (q *queries) ListAllUserRoleIDs(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := q.db.Query(ctx, `SELECT DISTINCT role_id FROM user_roles WHERE user_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIDs(rows)
}

// --- scan helpers ---

func scanPermission(row pgx.Row) (Permission, error) {
	var perm Permission
	err := row.Scan(&perm.ID, &perm.Code, &perm.Name, &perm.Category, &perm.Description, &perm.IsActive, &perm.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Permission{}, ErrNotFound
	}
	return perm, err
}

func scanRole(row pgx.Row) (Role, error) {
	var role Role
	err := row.Scan(&role.ID, &role.OrgID, &role.Code, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Role{}, ErrNotFound
	}
	return role, err
}

func scanRule(row pgx.Row) (InheritanceRule, error) {
	var rule InheritanceRule
	err := row.Scan(&rule.ID, &rule.ParentRoleID, &rule.ChildRoleID, &rule.InheritAll, &rule.SelectedPermissions, &rule.Priority, &rule.IsActive, &rule.CreatedAt, &rule.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return InheritanceRule{}, ErrNotFound
	}
	return rule, err
}

func scanIDs(rows pgx.Rows) ([]int64, error) {
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// mapPgError translates constraint violations into domain errors.
func mapPgError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.ConstraintName)
		case "23503":
			return fmt.Errorf("%w: %s", ErrValidation, pgErr.ConstraintName)
		}
	}
	return err
}
