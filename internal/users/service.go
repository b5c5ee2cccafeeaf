package users

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/rbac"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	ListUsers(ctx context.Context) ([]User, error)
	GetUser(ctx context.Context, id int64) (User, error)
	CreateUser(ctx context.Context, user User, passwordHash string) (User, error)
	UpdateUser(ctx context.Context, user User) (User, error)

	ListAssignments(ctx context.Context, userID int64) ([]RoleAssignment, error)
	InsertAssignment(ctx context.Context, a RoleAssignment) error
	DeleteAssignment(ctx context.Context, a RoleAssignment) (bool, error)
}

// RoleDirectory resolves roles when validating assignments.
type RoleDirectory interface {
	GetRole(ctx context.Context, id int64) (rbac.Role, error)
	UserHasPermission(ctx context.Context, userID int64, code string, orgID int64, departmentID *int64) (bool, error)
}

// AuditRecorder captures audit entries for mutating operations.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service handles user business logic.
type Service struct {
	repo   RepositoryPort
	roles  RoleDirectory
	audit  AuditRecorder
	logger *slog.Logger
}

// NewService builds Service instance. audit may be nil in tests.
func NewService(repo RepositoryPort, roles RoleDirectory, audit AuditRecorder, logger *slog.Logger) *Service {
	return &Service{repo: repo, roles: roles, audit: audit, logger: logger}
}

// ListUsers returns all users.
func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	return s.repo.ListUsers(ctx)
}

// GetUser fetches one user.
func (s *Service) GetUser(ctx context.Context, id int64) (User, error) {
	return s.repo.GetUser(ctx, id)
}

// CreateUser registers a new account with a bcrypt password hash.
func (s *Service) CreateUser(ctx context.Context, email, name, password string, actorID int64) (User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	name = strings.TrimSpace(name)
	if email == "" || name == "" {
		return User{}, fmt.Errorf("%w: email and name required", httpx.ErrValidation)
	}
	if len(password) < 8 {
		return User{}, fmt.Errorf("%w: password must be at least 8 characters", httpx.ErrValidation)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}
	user, err := s.repo.CreateUser(ctx, User{Email: email, Name: name, IsActive: true}, string(hash))
	if err != nil {
		return User{}, err
	}
	s.record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   AuditUserCreated,
		Entity:   AuditEntityUser,
		EntityID: strconv.FormatInt(user.ID, 10),
		Meta:     map[string]any{"email": user.Email},
	})
	return user, nil
}

// UpdateUser renames an account or toggles its active flag.
func (s *Service) UpdateUser(ctx context.Context, id int64, name string, isActive bool, actorID int64) (User, error) {
	user, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return User{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return User{}, fmt.Errorf("%w: user name required", httpx.ErrValidation)
	}
	user.Name = name
	user.IsActive = isActive
	updated, err := s.repo.UpdateUser(ctx, user)
	if err != nil {
		return User{}, err
	}
	s.record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   AuditUserUpdated,
		Entity:   AuditEntityUser,
		EntityID: strconv.FormatInt(id, 10),
		Meta:     map[string]any{"name": name, "is_active": isActive},
	})
	return updated, nil
}

// ListAssignments returns the user's role assignments.
func (s *Service) ListAssignments(ctx context.Context, userID int64) ([]RoleAssignment, error) {
	if _, err := s.repo.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	return s.repo.ListAssignments(ctx, userID)
}

// AssignRole binds a role to a user inside an organization. The role must
// belong to that organization or be global.
func (s *Service) AssignRole(ctx context.Context, a RoleAssignment, actorID int64) error {
	if _, err := s.repo.GetUser(ctx, a.UserID); err != nil {
		return err
	}
	role, err := s.roles.GetRole(ctx, a.RoleID)
	if err != nil {
		return fmt.Errorf("role: %w", httpx.ErrNotFound)
	}
	if !role.IsGlobal() && role.OrgID != a.OrgID {
		return fmt.Errorf("%w: role belongs to a different organization", httpx.ErrValidation)
	}
	if err := s.repo.InsertAssignment(ctx, a); err != nil {
		return err
	}
	s.record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   AuditRoleAssigned,
		Entity:   AuditEntityUser,
		EntityID: strconv.FormatInt(a.UserID, 10),
		Meta:     assignmentMeta(a),
	})
	return nil
}

// RevokeRole removes a role assignment.
func (s *Service) RevokeRole(ctx context.Context, a RoleAssignment, actorID int64) error {
	removed, err := s.repo.DeleteAssignment(ctx, a)
	if err != nil {
		return err
	}
	if !removed {
		return httpx.ErrNotFound
	}
	s.record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   AuditRoleRevoked,
		Entity:   AuditEntityUser,
		EntityID: strconv.FormatInt(a.UserID, 10),
		Meta:     assignmentMeta(a),
	})
	return nil
}

// HasPermission answers an access question for one user in one scope.
func (s *Service) HasPermission(ctx context.Context, userID int64, code string, orgID int64, departmentID *int64) (bool, error) {
	if _, err := s.repo.GetUser(ctx, userID); err != nil {
		return false, err
	}
	return s.roles.UserHasPermission(ctx, userID, code, orgID, departmentID)
}

func assignmentMeta(a RoleAssignment) map[string]any {
	meta := map[string]any{"role_id": a.RoleID, "org_id": a.OrgID}
	if a.DepartmentID != nil {
		meta["department_id"] = *a.DepartmentID
	}
	return meta
}

func (s *Service) record(ctx context.Context, log shared.AuditLog) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, log); err != nil && s.logger != nil {
		s.logger.Warn("record audit entry", slog.String("action", log.Action), slog.Any("error", err))
	}
}
