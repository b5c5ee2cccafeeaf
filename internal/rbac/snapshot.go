package rbac

import "sort"

// Snapshot is a materialized view of one organization's role graph:
// roles (including global roles), their active inheritance rules and
// direct grants. Loaded once per evaluation so traversal never touches
// the database.
type Snapshot struct {
	Roles    map[int64]Role
	Parents  map[int64][]InheritanceRule
	Children map[int64][]InheritanceRule
	Grants   map[int64][]Grant
}

// NewSnapshot builds the adjacency indexes from materialized rows.
// Inactive rules are excluded from traversal.
func NewSnapshot(roles []Role, rules []InheritanceRule, grants []Grant) *Snapshot {
	snap := &Snapshot{
		Roles:    make(map[int64]Role, len(roles)),
		Parents:  make(map[int64][]InheritanceRule),
		Children: make(map[int64][]InheritanceRule),
		Grants:   make(map[int64][]Grant),
	}
	for _, role := range roles {
		snap.Roles[role.ID] = role
	}
	for _, rule := range rules {
		if !rule.IsActive {
			continue
		}
		snap.Parents[rule.ChildRoleID] = append(snap.Parents[rule.ChildRoleID], rule)
		snap.Children[rule.ParentRoleID] = append(snap.Children[rule.ParentRoleID], rule)
	}
	for _, grant := range grants {
		snap.Grants[grant.RoleID] = append(snap.Grants[grant.RoleID], grant)
	}
	for id := range snap.Parents {
		sortRules(snap.Parents[id])
	}
	for id := range snap.Children {
		sortRules(snap.Children[id])
	}
	return snap
}

// sortRules orders by priority descending, then by rule ID for determinism.
func sortRules(rules []InheritanceRule) {
	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority > rules[j].Priority
		}
		return rules[i].ID < rules[j].ID
	})
}

// ParentRules returns the active rules feeding the role, ordered by
// priority descending.
func (s *Snapshot) ParentRules(roleID int64) []InheritanceRule {
	return s.Parents[roleID]
}

// DirectGrants returns the role's own grant records.
func (s *Snapshot) DirectGrants(roleID int64) []Grant {
	return s.Grants[roleID]
}

// Ancestors walks parent edges iteratively and returns every transitive
// ancestor role ID. The visited set guards against degenerate data even
// though rule creation forbids cycles.
func (s *Snapshot) Ancestors(roleID int64) map[int64]struct{} {
	visited := make(map[int64]struct{})
	stack := []int64{roleID}
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, rule := range s.Parents[current] {
			if _, seen := visited[rule.ParentRoleID]; seen {
				continue
			}
			visited[rule.ParentRoleID] = struct{}{}
			stack = append(stack, rule.ParentRoleID)
		}
	}
	return visited
}

// Descendants walks child edges iteratively and returns every transitive
// descendant role ID.
func (s *Snapshot) Descendants(roleID int64) map[int64]struct{} {
	visited := make(map[int64]struct{})
	stack := []int64{roleID}
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, rule := range s.Children[current] {
			if _, seen := visited[rule.ChildRoleID]; seen {
				continue
			}
			visited[rule.ChildRoleID] = struct{}{}
			stack = append(stack, rule.ChildRoleID)
		}
	}
	return visited
}

// WouldCycle reports whether adding parentID as a parent of childID would
// make childID reachable from itself. Runs in O(V+E) over the rule graph.
func (s *Snapshot) WouldCycle(parentID, childID int64) bool {
	return s.WouldCycleExcluding(parentID, childID, 0)
}

// WouldCycleExcluding performs the same check while ignoring one existing
// rule, used when re-validating an edge that is being updated in place.
func (s *Snapshot) WouldCycleExcluding(parentID, childID, excludeRuleID int64) bool {
	if parentID == childID {
		return true
	}
	visited := make(map[int64]struct{})
	stack := []int64{parentID}
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, rule := range s.Parents[current] {
			if rule.ID == excludeRuleID {
				continue
			}
			if rule.ParentRoleID == childID {
				return true
			}
			if _, seen := visited[rule.ParentRoleID]; seen {
				continue
			}
			visited[rule.ParentRoleID] = struct{}{}
			stack = append(stack, rule.ParentRoleID)
		}
	}
	return false
}
