package rbac

import "sort"

// Conflicts surfaces permissions for which the role's direct parent
// paths disagree. Each path contributes its nearest-ancestor verdict:
// the parent's own effective value, already folded through that parent's
// chain, so a grandparent grant overridden closer to the parent never
// reaches the comparison.
func (e *Evaluator) Conflicts(roleID int64) []Conflict {
	sides := make(map[string][]ConflictSide)
	var order []string

	for _, rule := range e.snap.ParentRules(roleID) {
		parentEffective := e.EffectiveWithSource(rule.ParentRoleID)
		parentRole := e.snap.Roles[rule.ParentRoleID]
		for _, code := range sortedCodes(parentEffective) {
			if !rule.Inherits(code) {
				continue
			}
			verdict := parentEffective[code]
			if _, seen := sides[code]; !seen {
				order = append(order, code)
			}
			sides[code] = append(sides[code], ConflictSide{
				RuleID:         rule.ID,
				ParentRoleID:   rule.ParentRoleID,
				ParentRoleCode: parentRole.Code,
				Priority:       rule.Priority,
				Granted:        verdict.Granted,
				SourceRoleID:   verdict.SourceRoleID,
				SourceRoleCode: verdict.SourceRoleCode,
			})
		}
	}

	sort.Strings(order)
	var conflicts []Conflict
	for _, code := range order {
		if disagrees(sides[code]) {
			conflicts = append(conflicts, Conflict{PermissionCode: code, Sides: sides[code]})
		}
	}
	return conflicts
}

func disagrees(sides []ConflictSide) bool {
	var sawGrant, sawDeny bool
	for _, side := range sides {
		if side.Granted {
			sawGrant = true
		} else {
			sawDeny = true
		}
	}
	return sawGrant && sawDeny
}

// ResolveConflict applies a resolution strategy to already-collected
// conflict data. Pure function: no additional data access.
//
// StrategyPriority lets the highest-priority side decide; when the
// highest-priority sides still disagree, deny wins. StrategyDenyWins
// (and any unknown strategy) rejects the permission outright.
func ResolveConflict(conflict Conflict, strategy Strategy) bool {
	if len(conflict.Sides) == 0 {
		return false
	}
	switch strategy {
	case StrategyPriority:
		top := conflict.Sides[0].Priority
		for _, side := range conflict.Sides[1:] {
			if side.Priority > top {
				top = side.Priority
			}
		}
		verdict := true
		decided := false
		for _, side := range conflict.Sides {
			if side.Priority != top {
				continue
			}
			if !decided {
				verdict = side.Granted
				decided = true
				continue
			}
			if side.Granted != verdict {
				// Ties at the top priority fall back to deny-wins.
				return false
			}
		}
		return verdict
	default:
		for _, side := range conflict.Sides {
			if !side.Granted {
				return false
			}
		}
		return true
	}
}
