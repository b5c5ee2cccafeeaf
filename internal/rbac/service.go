package rbac

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// RepositoryPort defines the data access required by the service.
// Loaders return materialized collections; nothing is lazy-loaded.
type RepositoryPort interface {
	GetPermission(ctx context.Context, code string) (Permission, error)
	ListPermissions(ctx context.Context, category string) ([]Permission, error)
	EnsurePermission(ctx context.Context, perm Permission) (Permission, error)
	DeactivatePermission(ctx context.Context, code string) error
	ListDependencies(ctx context.Context) ([]Dependency, error)

	GetRole(ctx context.Context, id int64) (Role, error)
	GetRoleByCode(ctx context.Context, orgID int64, code string) (Role, error)
	ListRoles(ctx context.Context, orgID int64) ([]Role, error)
	CreateRole(ctx context.Context, role Role) (Role, error)
	UpdateRole(ctx context.Context, role Role) (Role, error)
	DeleteRole(ctx context.Context, id int64) error
	CountRoleReferences(ctx context.Context, id int64) (int64, error)

	GetRule(ctx context.Context, id int64) (InheritanceRule, error)
	LoadSnapshot(ctx context.Context, orgID int64) (*Snapshot, error)

	ListUserRoleIDs(ctx context.Context, userID, orgID int64, departmentID *int64) ([]int64, error)
	ListAllUserRoleIDs(ctx context.Context, userID int64) ([]int64, error)

	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes the mutations that must share one transaction
// with their validation reads.
type TxRepository interface {
	LoadSnapshot(ctx context.Context, orgID int64) (*Snapshot, error)
	ListDependencies(ctx context.Context) ([]Dependency, error)
	InsertRule(ctx context.Context, rule InheritanceRule) (InheritanceRule, error)
	UpdateRule(ctx context.Context, rule InheritanceRule) (InheritanceRule, error)
	InsertDependency(ctx context.Context, dep Dependency) error
	DeleteDependency(ctx context.Context, dep Dependency) (bool, error)
	SetGrant(ctx context.Context, grant Grant) error
	ClearGrant(ctx context.Context, roleID int64, code string) (bool, error)
}

// AuditRecorder captures audit entries for mutating operations.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service orchestrates the permission catalog, role hierarchy, conflict
// resolution and effective-permission evaluation.
type Service struct {
	repo   RepositoryPort
	audit  AuditRecorder
	cache  *Cache
	logger *slog.Logger
	opts   EvalOptions
}

// NewService wires the service. audit and cache may be nil in tests.
func NewService(repo RepositoryPort, audit AuditRecorder, cache *Cache, logger *slog.Logger, opts EvalOptions) *Service {
	return &Service{repo: repo, audit: audit, cache: cache, logger: logger, opts: opts}
}

// --- Roles ---

// CreateRoleInput carries the fields for a new role.
type CreateRoleInput struct {
	OrgID       int64
	Code        string
	Name        string
	Description string
	ActorID     int64
}

// CreateRole inserts a role scoped to an organization.
func (s *Service) CreateRole(ctx context.Context, input CreateRoleInput) (Role, error) {
	code := strings.TrimSpace(input.Code)
	name := strings.TrimSpace(input.Name)
	if code == "" || name == "" {
		return Role{}, fmt.Errorf("%w: role code and name required", ErrValidation)
	}
	role, err := s.repo.CreateRole(ctx, Role{
		OrgID:       input.OrgID,
		Code:        code,
		Name:        name,
		Description: strings.TrimSpace(input.Description),
	})
	if err != nil {
		return Role{}, err
	}
	return role, nil
}

// GetRole fetches one role.
func (s *Service) GetRole(ctx context.Context, id int64) (Role, error) {
	return s.repo.GetRole(ctx, id)
}

// ListRoles returns the organization's roles plus global roles.
func (s *Service) ListRoles(ctx context.Context, orgID int64) ([]Role, error) {
	return s.repo.ListRoles(ctx, orgID)
}

// UpdateRole renames a role. Codes are immutable once created.
func (s *Service) UpdateRole(ctx context.Context, id int64, name, description string) (Role, error) {
	role, err := s.repo.GetRole(ctx, id)
	if err != nil {
		return Role{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, fmt.Errorf("%w: role name required", ErrValidation)
	}
	role.Name = name
	role.Description = strings.TrimSpace(description)
	return s.repo.UpdateRole(ctx, role)
}

// DeleteRole removes a role, refusing while inheritance rules or user
// assignments still reference it.
func (s *Service) DeleteRole(ctx context.Context, id int64) error {
	refs, err := s.repo.CountRoleReferences(ctx, id)
	if err != nil {
		return err
	}
	if refs > 0 {
		return fmt.Errorf("%w: %d references", ErrRoleInUse, refs)
	}
	return s.repo.DeleteRole(ctx, id)
}

// --- Direct grants ---

// SetGrantInput describes an explicit allow or deny on a role.
type SetGrantInput struct {
	RoleID         int64
	PermissionCode string
	Granted        bool
	ActorID        int64
}

// SetGrant records a direct grant, upserting the (role, permission) pair.
func (s *Service) SetGrant(ctx context.Context, input SetGrantInput) error {
	role, err := s.repo.GetRole(ctx, input.RoleID)
	if err != nil {
		return err
	}
	perm, err := s.repo.GetPermission(ctx, input.PermissionCode)
	if err != nil {
		return err
	}
	if !perm.IsActive {
		return fmt.Errorf("%w: permission %s is inactive", ErrValidation, perm.Code)
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.SetGrant(ctx, Grant{RoleID: role.ID, PermissionCode: perm.Code, Granted: input.Granted})
	})
	if err != nil {
		return err
	}
	action := AuditPermissionGranted
	if !input.Granted {
		action = AuditPermissionDenied
	}
	s.record(ctx, shared.AuditLog{
		ActorID:  input.ActorID,
		Action:   action,
		Entity:   AuditEntityRole,
		EntityID: strconv.FormatInt(role.ID, 10),
		Meta: map[string]any{
			"permission_code": perm.Code,
			"granted":         input.Granted,
		},
	})
	s.invalidateSubtree(ctx, role)
	return nil
}

// ClearGrant removes a direct grant, restoring "not specified".
func (s *Service) ClearGrant(ctx context.Context, roleID int64, code string, actorID int64) error {
	role, err := s.repo.GetRole(ctx, roleID)
	if err != nil {
		return err
	}
	var removed bool
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var txErr error
		removed, txErr = tx.ClearGrant(ctx, roleID, code)
		return txErr
	})
	if err != nil {
		return err
	}
	if !removed {
		return ErrNotFound
	}
	s.record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   AuditGrantCleared,
		Entity:   AuditEntityRole,
		EntityID: strconv.FormatInt(roleID, 10),
		Meta:     map[string]any{"permission_code": code},
	})
	s.invalidateSubtree(ctx, role)
	return nil
}

// --- Evaluation entry points ---

// EffectivePermissions computes the final grant/deny map for a role.
// Pure function of persisted state; identical calls on unchanged data
// yield identical results.
func (s *Service) EffectivePermissions(ctx context.Context, roleID int64) (map[string]bool, error) {
	verdicts, err := s.effectiveVerdicts(ctx, roleID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(verdicts))
	for code, verdict := range verdicts {
		out[code] = verdict.Granted
	}
	return out, nil
}

// EffectivePermissionsWithSource additionally reports which role in the
// chain produced each verdict and the inheritance depth.
func (s *Service) EffectivePermissionsWithSource(ctx context.Context, roleID int64) (map[string]Verdict, error) {
	return s.effectiveVerdicts(ctx, roleID)
}

// InheritanceConflicts reports disagreements among the role's parent paths.
func (s *Service) InheritanceConflicts(ctx context.Context, roleID int64) ([]Conflict, error) {
	eval, _, err := s.evaluatorFor(ctx, roleID)
	if err != nil {
		return nil, err
	}
	return eval.Conflicts(roleID), nil
}

// CheckDependencyConsistency flags granted permissions whose
// prerequisites are explicitly denied for the role.
func (s *Service) CheckDependencyConsistency(ctx context.Context, roleID int64) ([]DependencyIssue, error) {
	eval, _, err := s.evaluatorFor(ctx, roleID)
	if err != nil {
		return nil, err
	}
	return eval.DependencyIssues(roleID), nil
}

// UserHasPermission reports whether any of the user's roles in the given
// organization (and optional department) grants the permission. A deny
// in one role does not veto a grant from an unrelated role. Unknown
// permission codes simply evaluate to false.
func (s *Service) UserHasPermission(ctx context.Context, userID int64, code string, orgID int64, departmentID *int64) (bool, error) {
	roleIDs, err := s.repo.ListUserRoleIDs(ctx, userID, orgID, departmentID)
	if err != nil {
		return false, err
	}
	for _, roleID := range roleIDs {
		effective, err := s.EffectivePermissions(ctx, roleID)
		if err != nil {
			return false, err
		}
		if effective[code] {
			return true, nil
		}
	}
	return false, nil
}

// UserPermissions unions effective grants across every role the user
// holds, in any organization. Used by the HTTP authorization middleware.
func (s *Service) UserPermissions(ctx context.Context, userID int64) ([]string, error) {
	roleIDs, err := s.repo.ListAllUserRoleIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	granted := make(map[string]struct{})
	for _, roleID := range roleIDs {
		effective, err := s.EffectivePermissions(ctx, roleID)
		if err != nil {
			return nil, err
		}
		for code, ok := range effective {
			if ok {
				granted[code] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(granted))
	for code := range granted {
		out = append(out, code)
	}
	return out, nil
}

// --- internals ---

func (s *Service) effectiveVerdicts(ctx context.Context, roleID int64) (map[string]Verdict, error) {
	role, err := s.repo.GetRole(ctx, roleID)
	if err != nil {
		return nil, err
	}
	loader := func(ctx context.Context) (map[string]Verdict, error) {
		eval, err := s.buildEvaluator(ctx, role.OrgID)
		if err != nil {
			return nil, err
		}
		return eval.EffectiveWithSource(roleID), nil
	}
	if s.cache != nil {
		return s.cache.Fetch(ctx, roleID, loader)
	}
	return loader(ctx)
}

func (s *Service) evaluatorFor(ctx context.Context, roleID int64) (*Evaluator, Role, error) {
	role, err := s.repo.GetRole(ctx, roleID)
	if err != nil {
		return nil, Role{}, err
	}
	eval, err := s.buildEvaluator(ctx, role.OrgID)
	if err != nil {
		return nil, Role{}, err
	}
	return eval, role, nil
}

func (s *Service) buildEvaluator(ctx context.Context, orgID int64) (*Evaluator, error) {
	snap, err := s.repo.LoadSnapshot(ctx, orgID)
	if err != nil {
		return nil, err
	}
	edges, err := s.repo.ListDependencies(ctx)
	if err != nil {
		return nil, err
	}
	return NewEvaluator(snap, NewDependencyGraph(edges), s.opts), nil
}

// invalidateSubtree drops cached effective maps for the role and every
// descendant, since inherited values may have changed.
func (s *Service) invalidateSubtree(ctx context.Context, role Role) {
	if s.cache == nil {
		return
	}
	snap, err := s.repo.LoadSnapshot(ctx, role.OrgID)
	if err != nil {
		s.log().Warn("load snapshot for cache invalidation", slog.Any("error", err))
		return
	}
	ids := []int64{role.ID}
	for id := range snap.Descendants(role.ID) {
		ids = append(ids, id)
	}
	if err := s.cache.Invalidate(ctx, ids...); err != nil {
		s.log().Warn("invalidate effective permission cache", slog.Any("error", err))
	}
}

func (s *Service) record(ctx context.Context, log shared.AuditLog) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, log); err != nil {
		s.log().Warn("record audit entry", slog.String("action", log.Action), slog.Any("error", err))
	}
}

func (s *Service) log() *slog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return slog.Default()
}
