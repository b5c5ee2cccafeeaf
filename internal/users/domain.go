package users

import "time"

// Audit actions recorded by the users module.
const (
	AuditUserCreated  = "user_created"
	AuditUserUpdated  = "user_updated"
	AuditRoleAssigned = "role_assigned"
	AuditRoleRevoked  = "role_revoked"

	AuditEntityUser = "users"
)

// User represents a user account for management.
type User struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RoleAssignment binds a user to a role within an organization, optionally
// narrowed to one department.
type RoleAssignment struct {
	UserID       int64     `json:"user_id"`
	RoleID       int64     `json:"role_id"`
	OrgID        int64     `json:"org_id"`
	DepartmentID *int64    `json:"department_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
