package rbac

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

type assignment struct {
	userID       int64
	roleID       int64
	orgID        int64
	departmentID *int64
}

// memoryRepo implements RepositoryPort and TxRepository against maps.
type memoryRepo struct {
	perms       map[string]Permission
	deps        []Dependency
	roles       map[int64]Role
	rules       map[int64]InheritanceRule
	grants      map[string]Grant
	assignments []assignment
	nextRoleID  int64
	nextRuleID  int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		perms:  make(map[string]Permission),
		roles:  make(map[int64]Role),
		rules:  make(map[int64]InheritanceRule),
		grants: make(map[string]Grant),
	}
}

func grantKey(roleID int64, code string) string {
	return fmt.Sprintf("%d|%s", roleID, code)
}

func (m *memoryRepo) GetPermission(_ context.Context, code string) (Permission, error) {
	perm, ok := m.perms[code]
	if !ok {
		return Permission{}, ErrNotFound
	}
	return perm, nil
}

func (m *memoryRepo) ListPermissions(_ context.Context, category string) ([]Permission, error) {
	var out []Permission
	for _, perm := range m.perms {
		if category == "" || perm.Category == category {
			out = append(out, perm)
		}
	}
	return out, nil
}

func (m *memoryRepo) EnsurePermission(_ context.Context, perm Permission) (Permission, error) {
	if existing, ok := m.perms[perm.Code]; ok {
		perm.ID = existing.ID
	} else {
		perm.ID = int64(len(m.perms) + 1)
	}
	m.perms[perm.Code] = perm
	return perm, nil
}

func (m *memoryRepo) DeactivatePermission(_ context.Context, code string) error {
	perm, ok := m.perms[code]
	if !ok {
		return ErrNotFound
	}
	perm.IsActive = false
	m.perms[code] = perm
	return nil
}

func (m *memoryRepo) ListDependencies(_ context.Context) ([]Dependency, error) {
	return append([]Dependency(nil), m.deps...), nil
}

func (m *memoryRepo) GetRole(_ context.Context, id int64) (Role, error) {
	role, ok := m.roles[id]
	if !ok {
		return Role{}, ErrNotFound
	}
	return role, nil
}

func (m *memoryRepo) GetRoleByCode(_ context.Context, orgID int64, code string) (Role, error) {
	for _, role := range m.roles {
		if role.OrgID == orgID && role.Code == code {
			return role, nil
		}
	}
	return Role{}, ErrNotFound
}

func (m *memoryRepo) ListRoles(_ context.Context, orgID int64) ([]Role, error) {
	var out []Role
	for _, role := range m.roles {
		if role.OrgID == orgID || role.IsGlobal() {
			out = append(out, role)
		}
	}
	return out, nil
}

func (m *memoryRepo) CreateRole(_ context.Context, role Role) (Role, error) {
	for _, existing := range m.roles {
		if existing.OrgID == role.OrgID && existing.Code == role.Code {
			return Role{}, ErrDuplicate
		}
	}
	m.nextRoleID++
	role.ID = m.nextRoleID
	m.roles[role.ID] = role
	return role, nil
}

func (m *memoryRepo) UpdateRole(_ context.Context, role Role) (Role, error) {
	if _, ok := m.roles[role.ID]; !ok {
		return Role{}, ErrNotFound
	}
	m.roles[role.ID] = role
	return role, nil
}

func (m *memoryRepo) DeleteRole(_ context.Context, id int64) error {
	if _, ok := m.roles[id]; !ok {
		return ErrNotFound
	}
	delete(m.roles, id)
	return nil
}

func (m *memoryRepo) CountRoleReferences(_ context.Context, id int64) (int64, error) {
	var count int64
	for _, rule := range m.rules {
		if rule.ParentRoleID == id || rule.ChildRoleID == id {
			count++
		}
	}
	for _, a := range m.assignments {
		if a.roleID == id {
			count++
		}
	}
	return count, nil
}

func (m *memoryRepo) GetRule(_ context.Context, id int64) (InheritanceRule, error) {
	rule, ok := m.rules[id]
	if !ok {
		return InheritanceRule{}, ErrNotFound
	}
	return rule, nil
}

func (m *memoryRepo) LoadSnapshot(_ context.Context, orgID int64) (*Snapshot, error) {
	var roles []Role
	ids := make(map[int64]struct{})
	for _, role := range m.roles {
		if role.OrgID == orgID || role.IsGlobal() {
			roles = append(roles, role)
			ids[role.ID] = struct{}{}
		}
	}
	var rules []InheritanceRule
	for _, rule := range m.rules {
		if _, ok := ids[rule.ChildRoleID]; ok {
			rules = append(rules, rule)
		}
	}
	var grants []Grant
	for _, grant := range m.grants {
		if _, ok := ids[grant.RoleID]; ok {
			grants = append(grants, grant)
		}
	}
	return NewSnapshot(roles, rules, grants), nil
}

func (m *memoryRepo) ListUserRoleIDs(_ context.Context, userID, orgID int64, departmentID *int64) ([]int64, error) {
	var out []int64
	for _, a := range m.assignments {
		if a.userID != userID || a.orgID != orgID {
			continue
		}
		if a.departmentID != nil && (departmentID == nil || *a.departmentID != *departmentID) {
			continue
		}
		out = append(out, a.roleID)
	}
	return out, nil
}

func (m *memoryRepo) ListAllUserRoleIDs(_ context.Context, userID int64) ([]int64, error) {
	var out []int64
	for _, a := range m.assignments {
		if a.userID == userID {
			out = append(out, a.roleID)
		}
	}
	return out, nil
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, m)
}

func (m *memoryRepo) InsertRule(_ context.Context, rule InheritanceRule) (InheritanceRule, error) {
	m.nextRuleID++
	rule.ID = m.nextRuleID
	m.rules[rule.ID] = rule
	return rule, nil
}

func (m *memoryRepo) UpdateRule(_ context.Context, rule InheritanceRule) (InheritanceRule, error) {
	if _, ok := m.rules[rule.ID]; !ok {
		return InheritanceRule{}, ErrNotFound
	}
	m.rules[rule.ID] = rule
	return rule, nil
}

func (m *memoryRepo) InsertDependency(_ context.Context, dep Dependency) error {
	for _, existing := range m.deps {
		if existing == dep {
			return ErrDuplicate
		}
	}
	m.deps = append(m.deps, dep)
	return nil
}

func (m *memoryRepo) DeleteDependency(_ context.Context, dep Dependency) (bool, error) {
	for i, existing := range m.deps {
		if existing == dep {
			m.deps = append(m.deps[:i], m.deps[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryRepo) SetGrant(_ context.Context, grant Grant) error {
	m.grants[grantKey(grant.RoleID, grant.PermissionCode)] = grant
	return nil
}

func (m *memoryRepo) ClearGrant(_ context.Context, roleID int64, code string) (bool, error) {
	key := grantKey(roleID, code)
	if _, ok := m.grants[key]; !ok {
		return false, nil
	}
	delete(m.grants, key)
	return true, nil
}

type auditRecorderStub struct {
	logs []shared.AuditLog
}

func (a *auditRecorderStub) Record(_ context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

func newTestService(t *testing.T) (*Service, *memoryRepo, *auditRecorderStub) {
	t.Helper()
	repo := newMemoryRepo()
	audit := &auditRecorderStub{}
	svc := NewService(repo, audit, nil, nil, EvalOptions{})
	return svc, repo, audit
}

func mustPermission(t *testing.T, svc *Service, code string) {
	t.Helper()
	_, err := svc.EnsurePermission(context.Background(), Permission{Code: code, Category: "test"})
	require.NoError(t, err)
}

func mustRole(t *testing.T, svc *Service, orgID int64, code string) Role {
	t.Helper()
	role, err := svc.CreateRole(context.Background(), CreateRoleInput{OrgID: orgID, Code: code, Name: code})
	require.NoError(t, err)
	return role
}

func TestServiceCreateRoleValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateRole(ctx, CreateRoleInput{OrgID: 1, Code: "", Name: "x"})
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.CreateRole(ctx, CreateRoleInput{OrgID: 1, Code: "clerk", Name: "Clerk"})
	require.NoError(t, err)

	_, err = svc.CreateRole(ctx, CreateRoleInput{OrgID: 1, Code: "clerk", Name: "Other"})
	require.ErrorIs(t, err, ErrDuplicate)
}

func TestServiceDeleteRoleBlockedWhileReferenced(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	parent := mustRole(t, svc, 1, "parent")
	child := mustRole(t, svc, 1, "child")
	_, err := svc.CreateInheritanceRule(ctx, CreateRuleInput{ParentRoleID: parent.ID, ChildRoleID: child.ID, InheritAll: true})
	require.NoError(t, err)

	err = svc.DeleteRole(ctx, parent.ID)
	require.ErrorIs(t, err, ErrRoleInUse)

	_, err = svc.GetRole(ctx, parent.ID)
	require.NoError(t, err)
}

func TestServiceInheritAllEndToEnd(t *testing.T) {
	svc, _, audit := newTestService(t)
	ctx := context.Background()

	mustPermission(t, svc, "orders:read")
	mustPermission(t, svc, "orders:approve")

	employee := mustRole(t, svc, 1, "employee")
	manager := mustRole(t, svc, 1, "manager")

	require.NoError(t, svc.SetGrant(ctx, SetGrantInput{RoleID: employee.ID, PermissionCode: "orders:read", Granted: true, ActorID: 9}))
	require.NoError(t, svc.SetGrant(ctx, SetGrantInput{RoleID: manager.ID, PermissionCode: "orders:approve", Granted: true, ActorID: 9}))

	_, err := svc.CreateInheritanceRule(ctx, CreateRuleInput{ParentRoleID: employee.ID, ChildRoleID: manager.ID, InheritAll: true, ActorID: 9})
	require.NoError(t, err)

	effective, err := svc.EffectivePermissions(ctx, manager.ID)
	require.NoError(t, err)
	require.True(t, effective["orders:read"])
	require.True(t, effective["orders:approve"])

	base, err := svc.EffectivePermissions(ctx, employee.ID)
	require.NoError(t, err)
	require.True(t, base["orders:read"])
	_, present := base["orders:approve"]
	require.False(t, present, "inheritance flows parent to child only")

	var actions []string
	for _, log := range audit.logs {
		actions = append(actions, log.Action)
	}
	require.Contains(t, actions, AuditPermissionGranted)
	require.Contains(t, actions, AuditInheritanceCreated)
}

func TestServiceLocalDenyOverridesInherited(t *testing.T) {
	svc, _, audit := newTestService(t)
	ctx := context.Background()

	mustPermission(t, svc, "orders:approve")
	parent := mustRole(t, svc, 1, "parent")
	child := mustRole(t, svc, 1, "child")

	require.NoError(t, svc.SetGrant(ctx, SetGrantInput{RoleID: parent.ID, PermissionCode: "orders:approve", Granted: true}))
	_, err := svc.CreateInheritanceRule(ctx, CreateRuleInput{ParentRoleID: parent.ID, ChildRoleID: child.ID, InheritAll: true})
	require.NoError(t, err)
	require.NoError(t, svc.SetGrant(ctx, SetGrantInput{RoleID: child.ID, PermissionCode: "orders:approve", Granted: false, ActorID: 4}))

	verdicts, err := svc.EffectivePermissionsWithSource(ctx, child.ID)
	require.NoError(t, err)
	require.False(t, verdicts["orders:approve"].Granted)
	require.Equal(t, child.ID, verdicts["orders:approve"].SourceRoleID)

	last := audit.logs[len(audit.logs)-1]
	require.Equal(t, AuditPermissionDenied, last.Action)
	require.Equal(t, int64(4), last.ActorID)
}

func TestServiceSelectiveInheritance(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	mustPermission(t, svc, "reports:read")
	mustPermission(t, svc, "users:edit")
	admin := mustRole(t, svc, 1, "admin")
	auditor := mustRole(t, svc, 1, "auditor")

	require.NoError(t, svc.SetGrant(ctx, SetGrantInput{RoleID: admin.ID, PermissionCode: "reports:read", Granted: true}))
	require.NoError(t, svc.SetGrant(ctx, SetGrantInput{RoleID: admin.ID, PermissionCode: "users:edit", Granted: true}))

	_, err := svc.CreateInheritanceRule(ctx, CreateRuleInput{
		ParentRoleID:        admin.ID,
		ChildRoleID:         auditor.ID,
		SelectedPermissions: []string{"reports:read"},
	})
	require.NoError(t, err)

	effective, err := svc.EffectivePermissions(ctx, auditor.ID)
	require.NoError(t, err)
	require.True(t, effective["reports:read"])
	_, present := effective["users:edit"]
	require.False(t, present)
}

func TestServiceSelectionValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	mustPermission(t, svc, "known:perm")
	a := mustRole(t, svc, 1, "a")
	b := mustRole(t, svc, 1, "b")

	_, err := svc.CreateInheritanceRule(ctx, CreateRuleInput{ParentRoleID: a.ID, ChildRoleID: b.ID})
	require.ErrorIs(t, err, ErrValidation, "selective rule without permissions")

	_, err = svc.CreateInheritanceRule(ctx, CreateRuleInput{
		ParentRoleID:        a.ID,
		ChildRoleID:         b.ID,
		SelectedPermissions: []string{"nope:nope"},
	})
	require.ErrorIs(t, err, ErrValidation, "unknown selected permission")
}

func TestServiceCircularInheritanceRejected(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	a := mustRole(t, svc, 1, "a")
	b := mustRole(t, svc, 1, "b")
	c := mustRole(t, svc, 1, "c")

	_, err := svc.CreateInheritanceRule(ctx, CreateRuleInput{ParentRoleID: a.ID, ChildRoleID: b.ID, InheritAll: true})
	require.NoError(t, err)
	_, err = svc.CreateInheritanceRule(ctx, CreateRuleInput{ParentRoleID: b.ID, ChildRoleID: c.ID, InheritAll: true})
	require.NoError(t, err)

	before := len(repo.rules)
	_, err = svc.CreateInheritanceRule(ctx, CreateRuleInput{ParentRoleID: c.ID, ChildRoleID: a.ID, InheritAll: true})
	require.ErrorIs(t, err, ErrCircularInheritance)
	require.Len(t, repo.rules, before, "rejected rule must leave the graph unchanged")

	_, err = svc.CreateInheritanceRule(ctx, CreateRuleInput{ParentRoleID: a.ID, ChildRoleID: a.ID, InheritAll: true})
	require.ErrorIs(t, err, ErrCircularInheritance)
}

func TestServiceUpdateRuleExcludesOwnEdge(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	a := mustRole(t, svc, 1, "a")
	b := mustRole(t, svc, 1, "b")

	rule, err := svc.CreateInheritanceRule(ctx, CreateRuleInput{ParentRoleID: a.ID, ChildRoleID: b.ID, InheritAll: true})
	require.NoError(t, err)

	// Reversing the only edge is legal once the old direction is ignored.
	updated, err := svc.UpdateInheritanceRule(ctx, UpdateRuleInput{
		RuleID:       rule.ID,
		ParentRoleID: &b.ID,
		ChildRoleID:  &a.ID,
	})
	require.NoError(t, err)
	require.Equal(t, b.ID, updated.ParentRoleID)
	require.Equal(t, a.ID, updated.ChildRoleID)
}

func TestServiceOrgBoundary(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	org1 := mustRole(t, svc, 1, "org1-role")
	org2 := mustRole(t, svc, 2, "org2-role")
	global := mustRole(t, svc, 0, "global-base")

	_, err := svc.CreateInheritanceRule(ctx, CreateRuleInput{ParentRoleID: org2.ID, ChildRoleID: org1.ID, InheritAll: true})
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.CreateInheritanceRule(ctx, CreateRuleInput{ParentRoleID: global.ID, ChildRoleID: org1.ID, InheritAll: true})
	require.NoError(t, err, "global roles may parent any organization")
}

func TestServiceConflictResolution(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	mustPermission(t, svc, "discounts:apply")
	sales := mustRole(t, svc, 1, "sales")
	compliance := mustRole(t, svc, 1, "compliance")
	hybrid := mustRole(t, svc, 1, "hybrid")

	require.NoError(t, svc.SetGrant(ctx, SetGrantInput{RoleID: sales.ID, PermissionCode: "discounts:apply", Granted: true}))
	require.NoError(t, svc.SetGrant(ctx, SetGrantInput{RoleID: compliance.ID, PermissionCode: "discounts:apply", Granted: false}))

	_, err := svc.CreateInheritanceRule(ctx, CreateRuleInput{ParentRoleID: sales.ID, ChildRoleID: hybrid.ID, InheritAll: true, Priority: 8})
	require.NoError(t, err)
	_, err = svc.CreateInheritanceRule(ctx, CreateRuleInput{ParentRoleID: compliance.ID, ChildRoleID: hybrid.ID, InheritAll: true, Priority: 2})
	require.NoError(t, err)

	conflicts, err := svc.InheritanceConflicts(ctx, hybrid.ID)
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	require.Equal(t, "discounts:apply", conflicts[0].PermissionCode)

	require.True(t, ResolveConflict(conflicts[0], StrategyPriority))
	require.False(t, ResolveConflict(conflicts[0], StrategyDenyWins))

	// Evaluation itself follows priority, then deny-wins on ties.
	effective, err := svc.EffectivePermissions(ctx, hybrid.ID)
	require.NoError(t, err)
	require.True(t, effective["discounts:apply"])
}

func TestServiceDependencyLifecycle(t *testing.T) {
	svc, repo, audit := newTestService(t)
	ctx := context.Background()

	mustPermission(t, svc, "orders:read")
	mustPermission(t, svc, "orders:write")
	mustPermission(t, svc, "orders:delete")

	require.NoError(t, svc.AddDependency(ctx, "orders:write", "orders:read", 7))
	require.NoError(t, svc.AddDependency(ctx, "orders:delete", "orders:write", 7))

	all, err := svc.AllDependencies(ctx, "orders:delete")
	require.NoError(t, err)
	require.Equal(t, []string{"orders:read", "orders:write"}, all)

	before := len(repo.deps)
	err = svc.AddDependency(ctx, "orders:read", "orders:delete", 7)
	require.ErrorIs(t, err, ErrDependencyCycle)
	require.Len(t, repo.deps, before)

	err = svc.AddDependency(ctx, "orders:read", "missing:perm", 7)
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, svc.RemoveDependency(ctx, "orders:delete", "orders:write", 7))
	err = svc.RemoveDependency(ctx, "orders:delete", "orders:write", 7)
	require.ErrorIs(t, err, ErrNotFound)

	var actions []string
	for _, log := range audit.logs {
		actions = append(actions, log.Action)
	}
	require.Contains(t, actions, AuditDependencyCreated)
	require.Contains(t, actions, AuditDependencyRemoved)
}

func TestServiceDependencyConsistency(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	mustPermission(t, svc, "orders:read")
	mustPermission(t, svc, "orders:write")
	editor := mustRole(t, svc, 1, "editor")

	require.NoError(t, svc.AddDependency(ctx, "orders:write", "orders:read", 1))
	require.NoError(t, svc.SetGrant(ctx, SetGrantInput{RoleID: editor.ID, PermissionCode: "orders:write", Granted: true}))
	require.NoError(t, svc.SetGrant(ctx, SetGrantInput{RoleID: editor.ID, PermissionCode: "orders:read", Granted: false}))

	issues, err := svc.CheckDependencyConsistency(ctx, editor.ID)
	require.NoError(t, err)
	require.Equal(t, []DependencyIssue{{PermissionCode: "orders:write", RequiresCode: "orders:read"}}, issues)
}

func TestServiceUserHasPermission(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	mustPermission(t, svc, "orders:read")
	granting := mustRole(t, svc, 1, "granting")
	denying := mustRole(t, svc, 1, "denying")

	require.NoError(t, svc.SetGrant(ctx, SetGrantInput{RoleID: granting.ID, PermissionCode: "orders:read", Granted: true}))
	require.NoError(t, svc.SetGrant(ctx, SetGrantInput{RoleID: denying.ID, PermissionCode: "orders:read", Granted: false}))

	repo.assignments = append(repo.assignments,
		assignment{userID: 42, roleID: granting.ID, orgID: 1},
		assignment{userID: 42, roleID: denying.ID, orgID: 1},
	)

	ok, err := svc.UserHasPermission(ctx, 42, "orders:read", 1, nil)
	require.NoError(t, err)
	require.True(t, ok, "a deny in one role does not veto a grant from another")

	ok, err = svc.UserHasPermission(ctx, 42, "unknown:perm", 1, nil)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = svc.UserHasPermission(ctx, 42, "orders:read", 2, nil)
	require.NoError(t, err)
	require.False(t, ok, "assignments are organization scoped")
}

func TestServiceUserHasPermissionDepartmentScope(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	mustPermission(t, svc, "stock:adjust")
	role := mustRole(t, svc, 1, "warehouse")
	require.NoError(t, svc.SetGrant(ctx, SetGrantInput{RoleID: role.ID, PermissionCode: "stock:adjust", Granted: true}))

	dept := int64(5)
	repo.assignments = append(repo.assignments, assignment{userID: 7, roleID: role.ID, orgID: 1, departmentID: &dept})

	ok, err := svc.UserHasPermission(ctx, 7, "stock:adjust", 1, &dept)
	require.NoError(t, err)
	require.True(t, ok)

	other := int64(6)
	ok, err = svc.UserHasPermission(ctx, 7, "stock:adjust", 1, &other)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = svc.UserHasPermission(ctx, 7, "stock:adjust", 1, nil)
	require.NoError(t, err)
	require.False(t, ok, "department bound assignments need a department context")
}

func TestServiceClearGrant(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	mustPermission(t, svc, "orders:read")
	role := mustRole(t, svc, 1, "clerk")
	require.NoError(t, svc.SetGrant(ctx, SetGrantInput{RoleID: role.ID, PermissionCode: "orders:read", Granted: true}))

	require.NoError(t, svc.ClearGrant(ctx, role.ID, "orders:read", 1))

	effective, err := svc.EffectivePermissions(ctx, role.ID)
	require.NoError(t, err)
	_, present := effective["orders:read"]
	require.False(t, present, "cleared grants revert to not specified")

	err = svc.ClearGrant(ctx, role.ID, "orders:read", 1)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestServiceGrantRequiresActivePermission(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	mustPermission(t, svc, "legacy:op")
	role := mustRole(t, svc, 1, "clerk")
	require.NoError(t, svc.DeactivatePermission(ctx, "legacy:op"))

	err := svc.SetGrant(ctx, SetGrantInput{RoleID: role.ID, PermissionCode: "legacy:op", Granted: true})
	require.ErrorIs(t, err, ErrValidation)

	err = svc.SetGrant(ctx, SetGrantInput{RoleID: role.ID, PermissionCode: "missing:op", Granted: true})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestServiceHierarchyQueries(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	top := mustRole(t, svc, 1, "top")
	mid := mustRole(t, svc, 1, "mid")
	leaf := mustRole(t, svc, 1, "leaf")

	_, err := svc.CreateInheritanceRule(ctx, CreateRuleInput{ParentRoleID: top.ID, ChildRoleID: mid.ID, InheritAll: true, Priority: 3})
	require.NoError(t, err)
	_, err = svc.CreateInheritanceRule(ctx, CreateRuleInput{ParentRoleID: mid.ID, ChildRoleID: leaf.ID, InheritAll: true, Priority: 1})
	require.NoError(t, err)

	ancestors, err := svc.GetAncestors(ctx, leaf.ID)
	require.NoError(t, err)
	require.Len(t, ancestors, 2)

	descendants, err := svc.GetDescendants(ctx, top.ID)
	require.NoError(t, err)
	require.Len(t, descendants, 2)

	parents, err := svc.GetParents(ctx, leaf.ID)
	require.NoError(t, err)
	require.Len(t, parents, 1)
	require.Equal(t, mid.ID, parents[0].Role.ID)
}
