package rbac

import "sort"

// EvalOptions configures evaluation policy.
type EvalOptions struct {
	// EnforceDependencies auto-grants transitive prerequisites of every
	// granted permission instead of only reporting inconsistencies.
	EnforceDependencies bool
}

// Evaluator computes effective permission maps over a loaded snapshot.
// It is pure in-memory computation; results for a role are memoized so
// diamond-shaped hierarchies evaluate each ancestor once.
type Evaluator struct {
	snap *Snapshot
	deps *DependencyGraph
	opts EvalOptions
	memo map[int64]map[string]Verdict
}

// NewEvaluator builds an evaluator over the snapshot. deps may be nil
// when dependency handling is not needed.
func NewEvaluator(snap *Snapshot, deps *DependencyGraph, opts EvalOptions) *Evaluator {
	return &Evaluator{
		snap: snap,
		deps: deps,
		opts: opts,
		memo: make(map[int64]map[string]Verdict),
	}
}

// Effective returns the effective grant/deny map for the role.
// Permissions never mentioned anywhere are absent from the map.
func (e *Evaluator) Effective(roleID int64) map[string]bool {
	sourced := e.EffectiveWithSource(roleID)
	out := make(map[string]bool, len(sourced))
	for code, verdict := range sourced {
		out[code] = verdict.Granted
	}
	return out
}

// EffectiveWithSource computes the effective map with provenance: which
// role in the chain produced each verdict and at what inheritance depth.
func (e *Evaluator) EffectiveWithSource(roleID int64) map[string]Verdict {
	e.resolve(roleID)
	base := e.memo[roleID]
	out := make(map[string]Verdict, len(base))
	for code, verdict := range base {
		out[code] = verdict
	}
	if e.opts.EnforceDependencies && e.deps != nil {
		e.enforceDependencies(out)
	}
	return out
}

// resolve fills the memo for roleID and all of its ancestors using an
// explicit stack: parents are computed before the role itself, and the
// in-progress set guards traversal against degenerate cyclic data.
func (e *Evaluator) resolve(rootID int64) {
	type frame struct {
		roleID   int64
		expanded bool
	}
	inProgress := make(map[int64]struct{})
	stack := []frame{{roleID: rootID}}
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if _, done := e.memo[top.roleID]; done {
			stack = stack[:len(stack)-1]
			continue
		}
		if !top.expanded {
			top.expanded = true
			inProgress[top.roleID] = struct{}{}
			for _, rule := range e.snap.ParentRules(top.roleID) {
				if _, done := e.memo[rule.ParentRoleID]; done {
					continue
				}
				if _, busy := inProgress[rule.ParentRoleID]; busy {
					continue
				}
				stack = append(stack, frame{roleID: rule.ParentRoleID})
			}
			continue
		}
		e.memo[top.roleID] = e.compute(top.roleID, inProgress)
		delete(inProgress, top.roleID)
		stack = stack[:len(stack)-1]
	}
}

// compute folds inherited layers (priority descending) and overlays the
// role's own direct grants, which always win.
func (e *Evaluator) compute(roleID int64, inProgress map[int64]struct{}) map[string]Verdict {
	out := make(map[string]Verdict)
	rules := e.snap.ParentRules(roleID)

	for start := 0; start < len(rules); {
		end := start
		for end < len(rules) && rules[end].Priority == rules[start].Priority {
			end++
		}
		e.foldPriorityGroup(out, rules[start:end], inProgress)
		start = end
	}

	role := e.snap.Roles[roleID]
	for _, grant := range e.snap.DirectGrants(roleID) {
		out[grant.PermissionCode] = Verdict{
			Granted:        grant.Granted,
			SourceRoleID:   roleID,
			SourceRoleCode: role.Code,
			Depth:          0,
		}
	}
	return out
}

// foldPriorityGroup merges one equal-priority layer of parent rules into
// out. Codes already decided by a higher-priority layer are untouched;
// disagreements inside the layer resolve deny-wins, since priorities
// within the group are equal.
func (e *Evaluator) foldPriorityGroup(out map[string]Verdict, group []InheritanceRule, inProgress map[int64]struct{}) {
	type proposal struct {
		verdict Verdict
	}
	proposals := make(map[string][]proposal)
	var order []string

	for _, rule := range group {
		if _, busy := inProgress[rule.ParentRoleID]; busy {
			continue
		}
		parent := e.memo[rule.ParentRoleID]
		for _, code := range sortedCodes(parent) {
			if !rule.Inherits(code) {
				continue
			}
			if _, decided := out[code]; decided {
				continue
			}
			verdict := parent[code]
			verdict.Depth++
			if _, seen := proposals[code]; !seen {
				order = append(order, code)
			}
			proposals[code] = append(proposals[code], proposal{verdict: verdict})
		}
	}

	for _, code := range order {
		candidates := proposals[code]
		chosen := candidates[0].verdict
		for _, candidate := range candidates[1:] {
			if candidate.verdict.Granted != chosen.Granted {
				// Equal-priority disagreement: deny wins.
				if !candidate.verdict.Granted {
					chosen = candidate.verdict
				}
			}
		}
		out[code] = chosen
	}
}

// enforceDependencies grants the transitive prerequisites of every
// granted permission unless a closer layer explicitly denied them.
func (e *Evaluator) enforceDependencies(out map[string]Verdict) {
	for _, code := range sortedCodes(out) {
		verdict := out[code]
		if !verdict.Granted {
			continue
		}
		for _, required := range e.deps.All(code) {
			if _, present := out[required]; present {
				continue
			}
			out[required] = Verdict{
				Granted:        true,
				SourceRoleID:   verdict.SourceRoleID,
				SourceRoleCode: verdict.SourceRoleCode,
				Depth:          verdict.Depth,
			}
		}
	}
}

// DependencyIssues reports granted permissions whose prerequisites are
// explicitly denied in the same effective map. Missing prerequisites are
// treated as implicitly satisfied and not flagged.
func (e *Evaluator) DependencyIssues(roleID int64) []DependencyIssue {
	if e.deps == nil {
		return nil
	}
	effective := e.EffectiveWithSource(roleID)
	var issues []DependencyIssue
	for _, code := range sortedCodes(effective) {
		if !effective[code].Granted {
			continue
		}
		for _, required := range e.deps.All(code) {
			if verdict, present := effective[required]; present && !verdict.Granted {
				issues = append(issues, DependencyIssue{PermissionCode: code, RequiresCode: required})
			}
		}
	}
	return issues
}

func sortedCodes[V any](m map[string]V) []string {
	codes := make([]string, 0, len(m))
	for code := range m {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}
