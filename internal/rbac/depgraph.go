package rbac

import "sort"

// DependencyGraph holds prerequisite edges between permission codes and
// answers reachability queries. Built fresh from persisted edges, never
// mutated concurrently.
type DependencyGraph struct {
	requires map[string][]string
}

// NewDependencyGraph indexes the given edges by permission code.
func NewDependencyGraph(edges []Dependency) *DependencyGraph {
	g := &DependencyGraph{requires: make(map[string][]string, len(edges))}
	for _, e := range edges {
		g.requires[e.PermissionCode] = append(g.requires[e.PermissionCode], e.RequiresCode)
	}
	for code := range g.requires {
		sort.Strings(g.requires[code])
	}
	return g
}

// Direct returns the immediate prerequisites of a permission.
func (g *DependencyGraph) Direct(code string) []string {
	deps := g.requires[code]
	out := make([]string, len(deps))
	copy(out, deps)
	return out
}

// All returns every transitively required permission, breadth-first.
// The visited set guarantees termination even on degenerate cyclic data.
func (g *DependencyGraph) All(code string) []string {
	visited := map[string]struct{}{code: {}}
	queue := []string{code}
	var out []string
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, dep := range g.requires[current] {
			if _, seen := visited[dep]; seen {
				continue
			}
			visited[dep] = struct{}{}
			out = append(out, dep)
			queue = append(queue, dep)
		}
	}
	sort.Strings(out)
	return out
}

// WouldCycle reports whether adding "permission requires prerequisite"
// would close a cycle, i.e. permission is already reachable from the
// prerequisite.
func (g *DependencyGraph) WouldCycle(permission, prerequisite string) bool {
	if permission == prerequisite {
		return true
	}
	for _, dep := range g.All(prerequisite) {
		if dep == permission {
			return true
		}
	}
	return false
}
