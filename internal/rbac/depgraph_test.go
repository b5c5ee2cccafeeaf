package rbac

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDependencyGraphTransitiveClosure(t *testing.T) {
	graph := NewDependencyGraph([]Dependency{
		{PermissionCode: "orders:delete", RequiresCode: "orders:write"},
		{PermissionCode: "orders:write", RequiresCode: "orders:read"},
		{PermissionCode: "orders:read", RequiresCode: "orders:list"},
	})

	require.Equal(t, []string{"orders:write"}, graph.Direct("orders:delete"))
	require.Equal(t, []string{"orders:list", "orders:read", "orders:write"}, graph.All("orders:delete"))
	require.Empty(t, graph.All("orders:list"))
}

func TestDependencyGraphDiamondVisitsOnce(t *testing.T) {
	graph := NewDependencyGraph([]Dependency{
		{PermissionCode: "reports:export", RequiresCode: "reports:read"},
		{PermissionCode: "reports:export", RequiresCode: "orders:read"},
		{PermissionCode: "reports:read", RequiresCode: "core:login"},
		{PermissionCode: "orders:read", RequiresCode: "core:login"},
	})

	all := graph.All("reports:export")
	require.Equal(t, []string{"core:login", "orders:read", "reports:read"}, all)
}

func TestDependencyGraphWouldCycle(t *testing.T) {
	graph := NewDependencyGraph([]Dependency{
		{PermissionCode: "b", RequiresCode: "a"},
		{PermissionCode: "c", RequiresCode: "b"},
	})

	require.True(t, graph.WouldCycle("a", "c"), "a requires c closes a->b->c->a")
	require.True(t, graph.WouldCycle("a", "a"))
	require.False(t, graph.WouldCycle("d", "c"))
}

func TestDependencyGraphTerminatesOnCyclicData(t *testing.T) {
	// Persistence forbids cycles, but traversal must still terminate if
	// one slips in.
	graph := NewDependencyGraph([]Dependency{
		{PermissionCode: "x", RequiresCode: "y"},
		{PermissionCode: "y", RequiresCode: "x"},
	})

	require.Equal(t, []string{"y"}, graph.All("x"))
	require.Equal(t, []string{"x"}, graph.All("y"))
}
