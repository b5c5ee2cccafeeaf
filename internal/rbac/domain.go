package rbac

import (
	"errors"
	"time"
)

// Sentinel errors surfaced by the permission subsystem.
var (
	// ErrNotFound indicates that the requested record does not exist.
	ErrNotFound = errors.New("rbac: not found")
	// ErrValidation indicates malformed or inconsistent input.
	ErrValidation = errors.New("rbac: validation failed")
	// ErrDuplicate indicates a uniqueness violation.
	ErrDuplicate = errors.New("rbac: duplicate")
	// ErrCircularInheritance indicates a rule that would make a role its own ancestor.
	ErrCircularInheritance = errors.New("rbac: circular inheritance")
	// ErrDependencyCycle indicates a prerequisite edge that would close a cycle.
	ErrDependencyCycle = errors.New("rbac: dependency cycle")
	// ErrRoleInUse blocks deletion of roles still referenced by rules or assignments.
	ErrRoleInUse = errors.New("rbac: role in use")
)

// Audit action identifiers recorded alongside mutations.
const (
	AuditInheritanceCreated = "inheritance_created"
	AuditInheritanceUpdated = "inheritance_updated"
	AuditPermissionGranted  = "permission_granted"
	AuditPermissionDenied   = "permission_denied"
	AuditGrantCleared       = "permission_grant_cleared"
	AuditDependencyCreated  = "dependency_created"
	AuditDependencyRemoved  = "dependency_removed"

	AuditEntityRole       = "roles"
	AuditEntityRule       = "role_inheritance_rules"
	AuditEntityPermission = "permissions"
)

// Permission represents an atomic capability in the catalog.
// Codes follow the "resource:action" convention and are immutable once created.
type Permission struct {
	ID          int64
	Code        string
	Name        string
	Category    string
	Description string
	IsActive    bool
	CreatedAt   time.Time
}

// Dependency is a directed prerequisite edge: holding PermissionCode
// presumes RequiresCode.
type Dependency struct {
	PermissionCode string
	RequiresCode   string
}

// Role groups permissions within an organization. OrgID zero marks a
// global role that may act as a parent for any organization.
type Role struct {
	ID          int64
	OrgID       int64
	Code        string
	Name        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsGlobal reports whether the role is shared across organizations.
func (r Role) IsGlobal() bool {
	return r.OrgID == 0
}

// InheritanceRule is a policy-carrying edge from a parent role to a child role.
type InheritanceRule struct {
	ID                  int64
	ParentRoleID        int64
	ChildRoleID         int64
	InheritAll          bool
	SelectedPermissions []string
	Priority            int
	IsActive            bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Inherits reports whether the rule passes the given permission code down.
func (r InheritanceRule) Inherits(code string) bool {
	if r.InheritAll {
		return true
	}
	for _, c := range r.SelectedPermissions {
		if c == code {
			return true
		}
	}
	return false
}

// Grant is a direct, non-inherited verdict for one (role, permission) pair.
// Absence of a grant means "not specified", distinct from Granted=false.
type Grant struct {
	RoleID         int64
	PermissionCode string
	Granted        bool
}

// Verdict is the resolved value for one permission, with provenance.
type Verdict struct {
	Granted        bool   `json:"granted"`
	SourceRoleID   int64  `json:"source_role_id"`
	SourceRoleCode string `json:"source_role_code"`
	Depth          int    `json:"depth"`
}

// ConflictSide captures one parent path's contribution to a disagreement.
type ConflictSide struct {
	RuleID         int64  `json:"rule_id"`
	ParentRoleID   int64  `json:"parent_role_id"`
	ParentRoleCode string `json:"parent_role_code"`
	Priority       int    `json:"priority"`
	Granted        bool   `json:"granted"`
	SourceRoleID   int64  `json:"source_role_id"`
	SourceRoleCode string `json:"source_role_code"`
}

// Conflict describes parent paths disagreeing about one permission.
// Conflicts are derived at evaluation time and never persisted.
type Conflict struct {
	PermissionCode string         `json:"permission_code"`
	Sides          []ConflictSide `json:"sides"`
}

// Strategy selects how conflicting parent paths are resolved.
type Strategy string

const (
	// StrategyDenyWins rejects the permission when any path denies it.
	StrategyDenyWins Strategy = "deny_wins"
	// StrategyPriority lets the highest-priority rule decide; ties fall
	// back to deny-wins.
	StrategyPriority Strategy = "priority"
)

// DependencyIssue flags a granted permission whose prerequisite is
// explicitly denied in the same effective set.
type DependencyIssue struct {
	PermissionCode string `json:"permission_code"`
	RequiresCode   string `json:"requires_code"`
}

// ParentLink pairs an inheritance rule with the parent role it points at.
type ParentLink struct {
	Rule InheritanceRule
	Role Role
}
