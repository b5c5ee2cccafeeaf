package rbac

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func roleFixture(id int64, code string) Role {
	return Role{ID: id, OrgID: 1, Code: code, Name: code}
}

func TestEvaluatorDirectGrantOverridesInherited(t *testing.T) {
	snap := NewSnapshot(
		[]Role{roleFixture(1, "manager"), roleFixture(2, "clerk")},
		[]InheritanceRule{{ID: 10, ParentRoleID: 1, ChildRoleID: 2, InheritAll: true, IsActive: true}},
		[]Grant{
			{RoleID: 1, PermissionCode: "orders:approve", Granted: true},
			{RoleID: 2, PermissionCode: "orders:approve", Granted: false},
		},
	)
	eval := NewEvaluator(snap, nil, EvalOptions{})

	effective := eval.Effective(2)
	require.False(t, effective["orders:approve"], "local deny must beat inherited allow")

	verdict := eval.EffectiveWithSource(2)["orders:approve"]
	require.Equal(t, int64(2), verdict.SourceRoleID)
	require.Equal(t, 0, verdict.Depth)
}

func TestEvaluatorSelectiveInheritance(t *testing.T) {
	snap := NewSnapshot(
		[]Role{roleFixture(1, "admin"), roleFixture(2, "auditor")},
		[]InheritanceRule{{
			ID:                  10,
			ParentRoleID:        1,
			ChildRoleID:         2,
			SelectedPermissions: []string{"reports:read"},
			IsActive:            true,
		}},
		[]Grant{
			{RoleID: 1, PermissionCode: "reports:read", Granted: true},
			{RoleID: 1, PermissionCode: "users:edit", Granted: true},
		},
	)
	eval := NewEvaluator(snap, nil, EvalOptions{})

	effective := eval.Effective(2)
	require.True(t, effective["reports:read"])
	_, present := effective["users:edit"]
	require.False(t, present, "unselected permissions must not leak through")
}

func TestEvaluatorPriorityOrdersLayers(t *testing.T) {
	snap := NewSnapshot(
		[]Role{roleFixture(1, "strict"), roleFixture(2, "lenient"), roleFixture(3, "worker")},
		[]InheritanceRule{
			{ID: 10, ParentRoleID: 1, ChildRoleID: 3, InheritAll: true, Priority: 10, IsActive: true},
			{ID: 11, ParentRoleID: 2, ChildRoleID: 3, InheritAll: true, Priority: 5, IsActive: true},
		},
		[]Grant{
			{RoleID: 1, PermissionCode: "vault:open", Granted: false},
			{RoleID: 2, PermissionCode: "vault:open", Granted: true},
		},
	)
	eval := NewEvaluator(snap, nil, EvalOptions{})

	require.False(t, eval.Effective(3)["vault:open"], "higher priority layer decides first")

	verdict := eval.EffectiveWithSource(3)["vault:open"]
	require.Equal(t, int64(1), verdict.SourceRoleID)
	require.Equal(t, 1, verdict.Depth)
}

func TestEvaluatorEqualPriorityDenyWins(t *testing.T) {
	snap := NewSnapshot(
		[]Role{roleFixture(1, "a"), roleFixture(2, "b"), roleFixture(3, "child")},
		[]InheritanceRule{
			{ID: 10, ParentRoleID: 1, ChildRoleID: 3, InheritAll: true, Priority: 5, IsActive: true},
			{ID: 11, ParentRoleID: 2, ChildRoleID: 3, InheritAll: true, Priority: 5, IsActive: true},
		},
		[]Grant{
			{RoleID: 1, PermissionCode: "payments:send", Granted: true},
			{RoleID: 2, PermissionCode: "payments:send", Granted: false},
		},
	)
	eval := NewEvaluator(snap, nil, EvalOptions{})

	require.False(t, eval.Effective(3)["payments:send"])
}

func TestEvaluatorDiamondProvenance(t *testing.T) {
	// top -> left -> bottom and top -> right -> bottom.
	snap := NewSnapshot(
		[]Role{roleFixture(1, "top"), roleFixture(2, "left"), roleFixture(3, "right"), roleFixture(4, "bottom")},
		[]InheritanceRule{
			{ID: 10, ParentRoleID: 1, ChildRoleID: 2, InheritAll: true, IsActive: true},
			{ID: 11, ParentRoleID: 1, ChildRoleID: 3, InheritAll: true, IsActive: true},
			{ID: 12, ParentRoleID: 2, ChildRoleID: 4, InheritAll: true, IsActive: true},
			{ID: 13, ParentRoleID: 3, ChildRoleID: 4, InheritAll: true, IsActive: true},
		},
		[]Grant{{RoleID: 1, PermissionCode: "core:login", Granted: true}},
	)
	eval := NewEvaluator(snap, nil, EvalOptions{})

	verdict := eval.EffectiveWithSource(4)["core:login"]
	require.True(t, verdict.Granted)
	require.Equal(t, int64(1), verdict.SourceRoleID)
	require.Equal(t, "top", verdict.SourceRoleCode)
	require.Equal(t, 2, verdict.Depth)
}

func TestEvaluatorDeterministic(t *testing.T) {
	snap := NewSnapshot(
		[]Role{roleFixture(1, "a"), roleFixture(2, "b"), roleFixture(3, "child")},
		[]InheritanceRule{
			{ID: 10, ParentRoleID: 1, ChildRoleID: 3, InheritAll: true, Priority: 1, IsActive: true},
			{ID: 11, ParentRoleID: 2, ChildRoleID: 3, InheritAll: true, Priority: 1, IsActive: true},
		},
		[]Grant{
			{RoleID: 1, PermissionCode: "x", Granted: true},
			{RoleID: 2, PermissionCode: "y", Granted: true},
			{RoleID: 1, PermissionCode: "z", Granted: false},
			{RoleID: 2, PermissionCode: "z", Granted: true},
		},
	)

	first := NewEvaluator(snap, nil, EvalOptions{}).EffectiveWithSource(3)
	for i := 0; i < 20; i++ {
		again := NewEvaluator(snap, nil, EvalOptions{}).EffectiveWithSource(3)
		require.Equal(t, first, again)
	}
}

func TestEvaluatorInactiveRuleIgnored(t *testing.T) {
	snap := NewSnapshot(
		[]Role{roleFixture(1, "parent"), roleFixture(2, "child")},
		[]InheritanceRule{{ID: 10, ParentRoleID: 1, ChildRoleID: 2, InheritAll: true, IsActive: false}},
		[]Grant{{RoleID: 1, PermissionCode: "x", Granted: true}},
	)
	eval := NewEvaluator(snap, nil, EvalOptions{})

	require.Empty(t, eval.Effective(2))
}

func TestEvaluatorTerminatesOnCyclicRules(t *testing.T) {
	// Rule creation rejects cycles; evaluation must still terminate when
	// handed degenerate data.
	snap := NewSnapshot(
		[]Role{roleFixture(1, "a"), roleFixture(2, "b")},
		[]InheritanceRule{
			{ID: 10, ParentRoleID: 1, ChildRoleID: 2, InheritAll: true, IsActive: true},
			{ID: 11, ParentRoleID: 2, ChildRoleID: 1, InheritAll: true, IsActive: true},
		},
		[]Grant{{RoleID: 1, PermissionCode: "x", Granted: true}},
	)
	eval := NewEvaluator(snap, nil, EvalOptions{})

	require.True(t, eval.Effective(2)["x"])
}

func TestEvaluatorEnforceDependencies(t *testing.T) {
	deps := NewDependencyGraph([]Dependency{
		{PermissionCode: "orders:write", RequiresCode: "orders:read"},
		{PermissionCode: "orders:read", RequiresCode: "core:login"},
	})
	snap := NewSnapshot(
		[]Role{roleFixture(1, "editor")},
		nil,
		[]Grant{{RoleID: 1, PermissionCode: "orders:write", Granted: true}},
	)

	relaxed := NewEvaluator(snap, deps, EvalOptions{}).Effective(1)
	_, present := relaxed["orders:read"]
	require.False(t, present)

	strict := NewEvaluator(snap, deps, EvalOptions{EnforceDependencies: true}).Effective(1)
	require.True(t, strict["orders:read"])
	require.True(t, strict["core:login"])
}

func TestEvaluatorEnforceKeepsExplicitDeny(t *testing.T) {
	deps := NewDependencyGraph([]Dependency{
		{PermissionCode: "orders:write", RequiresCode: "orders:read"},
	})
	snap := NewSnapshot(
		[]Role{roleFixture(1, "editor")},
		nil,
		[]Grant{
			{RoleID: 1, PermissionCode: "orders:write", Granted: true},
			{RoleID: 1, PermissionCode: "orders:read", Granted: false},
		},
	)
	eval := NewEvaluator(snap, deps, EvalOptions{EnforceDependencies: true})

	require.False(t, eval.Effective(1)["orders:read"], "explicit deny is never auto-granted over")
}

func TestDependencyIssues(t *testing.T) {
	deps := NewDependencyGraph([]Dependency{
		{PermissionCode: "orders:write", RequiresCode: "orders:read"},
		{PermissionCode: "reports:read", RequiresCode: "core:login"},
	})
	snap := NewSnapshot(
		[]Role{roleFixture(1, "editor")},
		nil,
		[]Grant{
			{RoleID: 1, PermissionCode: "orders:write", Granted: true},
			{RoleID: 1, PermissionCode: "orders:read", Granted: false},
			{RoleID: 1, PermissionCode: "reports:read", Granted: true},
		},
	)
	eval := NewEvaluator(snap, deps, EvalOptions{})

	issues := eval.DependencyIssues(1)
	require.Equal(t, []DependencyIssue{{PermissionCode: "orders:write", RequiresCode: "orders:read"}}, issues)
}
