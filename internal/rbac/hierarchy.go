package rbac

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// CreateRuleInput carries the fields for a new inheritance rule.
type CreateRuleInput struct {
	ParentRoleID        int64
	ChildRoleID         int64
	InheritAll          bool
	SelectedPermissions []string
	Priority            int
	ActorID             int64
}

// UpdateRuleInput patches an existing rule. Nil fields stay unchanged.
type UpdateRuleInput struct {
	RuleID              int64
	ParentRoleID        *int64
	ChildRoleID         *int64
	InheritAll          *bool
	SelectedPermissions []string
	Priority            *int
	IsActive            *bool
	ActorID             int64
}

// CreateInheritanceRule validates and persists a parent→child edge.
// The cycle check runs inside the same transaction as the insert, so a
// conflicting concurrent write either serializes or fails validation
// against committed state. Nothing is written when validation fails.
func (s *Service) CreateInheritanceRule(ctx context.Context, input CreateRuleInput) (InheritanceRule, error) {
	parent, child, err := s.loadRulePair(ctx, input.ParentRoleID, input.ChildRoleID)
	if err != nil {
		return InheritanceRule{}, err
	}
	if err := s.validateSelection(ctx, input.InheritAll, input.SelectedPermissions); err != nil {
		return InheritanceRule{}, err
	}

	rule := InheritanceRule{
		ParentRoleID:        parent.ID,
		ChildRoleID:         child.ID,
		InheritAll:          input.InheritAll,
		SelectedPermissions: input.SelectedPermissions,
		Priority:            input.Priority,
		IsActive:            true,
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		snap, err := tx.LoadSnapshot(ctx, child.OrgID)
		if err != nil {
			return err
		}
		if snap.WouldCycle(parent.ID, child.ID) {
			return fmt.Errorf("%w: role %s is already an ancestor of %s", ErrCircularInheritance, child.Code, parent.Code)
		}
		rule, err = tx.InsertRule(ctx, rule)
		return err
	})
	if err != nil {
		return InheritanceRule{}, err
	}

	s.record(ctx, shared.AuditLog{
		ActorID:  input.ActorID,
		Action:   AuditInheritanceCreated,
		Entity:   AuditEntityRule,
		EntityID: strconv.FormatInt(rule.ID, 10),
		Meta:     map[string]any{"after": ruleMeta(rule)},
	})
	s.invalidateSubtree(ctx, child)
	return rule, nil
}

// UpdateInheritanceRule patches a rule, re-validating acyclicity whenever
// either endpoint changes. The old edge is excluded from the check.
func (s *Service) UpdateInheritanceRule(ctx context.Context, input UpdateRuleInput) (InheritanceRule, error) {
	before, err := s.repo.GetRule(ctx, input.RuleID)
	if err != nil {
		return InheritanceRule{}, err
	}

	updated := before
	if input.ParentRoleID != nil {
		updated.ParentRoleID = *input.ParentRoleID
	}
	if input.ChildRoleID != nil {
		updated.ChildRoleID = *input.ChildRoleID
	}
	if input.InheritAll != nil {
		updated.InheritAll = *input.InheritAll
	}
	if input.SelectedPermissions != nil {
		updated.SelectedPermissions = input.SelectedPermissions
	}
	if input.Priority != nil {
		updated.Priority = *input.Priority
	}
	if input.IsActive != nil {
		updated.IsActive = *input.IsActive
	}

	parent, child, err := s.loadRulePair(ctx, updated.ParentRoleID, updated.ChildRoleID)
	if err != nil {
		return InheritanceRule{}, err
	}
	if err := s.validateSelection(ctx, updated.InheritAll, updated.SelectedPermissions); err != nil {
		return InheritanceRule{}, err
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		snap, err := tx.LoadSnapshot(ctx, child.OrgID)
		if err != nil {
			return err
		}
		if snap.WouldCycleExcluding(parent.ID, child.ID, updated.ID) {
			return fmt.Errorf("%w: role %s is already an ancestor of %s", ErrCircularInheritance, child.Code, parent.Code)
		}
		updated, err = tx.UpdateRule(ctx, updated)
		return err
	})
	if err != nil {
		return InheritanceRule{}, err
	}

	s.record(ctx, shared.AuditLog{
		ActorID:  input.ActorID,
		Action:   AuditInheritanceUpdated,
		Entity:   AuditEntityRule,
		EntityID: strconv.FormatInt(updated.ID, 10),
		Meta: map[string]any{
			"before": ruleMeta(before),
			"after":  ruleMeta(updated),
		},
	})
	s.invalidateSubtree(ctx, child)
	// When the rule moved to a different child the old subtree changes too.
	if before.ChildRoleID != updated.ChildRoleID {
		if oldChild, err := s.repo.GetRole(ctx, before.ChildRoleID); err == nil {
			s.invalidateSubtree(ctx, oldChild)
		}
	}
	return updated, nil
}

// GetRule fetches one inheritance rule.
func (s *Service) GetRule(ctx context.Context, id int64) (InheritanceRule, error) {
	return s.repo.GetRule(ctx, id)
}

// GetParents returns the role's direct parents with their rules, ordered
// by priority descending.
func (s *Service) GetParents(ctx context.Context, roleID int64) ([]ParentLink, error) {
	role, err := s.repo.GetRole(ctx, roleID)
	if err != nil {
		return nil, err
	}
	snap, err := s.repo.LoadSnapshot(ctx, role.OrgID)
	if err != nil {
		return nil, err
	}
	rules := snap.ParentRules(roleID)
	links := make([]ParentLink, 0, len(rules))
	for _, rule := range rules {
		links = append(links, ParentLink{Rule: rule, Role: snap.Roles[rule.ParentRoleID]})
	}
	return links, nil
}

// GetAncestors returns every transitive ancestor role.
func (s *Service) GetAncestors(ctx context.Context, roleID int64) ([]Role, error) {
	role, err := s.repo.GetRole(ctx, roleID)
	if err != nil {
		return nil, err
	}
	snap, err := s.repo.LoadSnapshot(ctx, role.OrgID)
	if err != nil {
		return nil, err
	}
	return collectRoles(snap, snap.Ancestors(roleID)), nil
}

// GetDescendants returns every transitive descendant role.
func (s *Service) GetDescendants(ctx context.Context, roleID int64) ([]Role, error) {
	role, err := s.repo.GetRole(ctx, roleID)
	if err != nil {
		return nil, err
	}
	snap, err := s.repo.LoadSnapshot(ctx, role.OrgID)
	if err != nil {
		return nil, err
	}
	return collectRoles(snap, snap.Descendants(roleID)), nil
}

// loadRulePair fetches both endpoints and enforces the organization
// boundary: the parent must share the child's organization or be global.
func (s *Service) loadRulePair(ctx context.Context, parentID, childID int64) (Role, Role, error) {
	if parentID == childID {
		return Role{}, Role{}, fmt.Errorf("%w: a role cannot inherit from itself", ErrCircularInheritance)
	}
	parent, err := s.repo.GetRole(ctx, parentID)
	if err != nil {
		return Role{}, Role{}, fmt.Errorf("parent role: %w", err)
	}
	child, err := s.repo.GetRole(ctx, childID)
	if err != nil {
		return Role{}, Role{}, fmt.Errorf("child role: %w", err)
	}
	if !parent.IsGlobal() && parent.OrgID != child.OrgID {
		return Role{}, Role{}, fmt.Errorf("%w: roles belong to different organizations", ErrValidation)
	}
	return parent, child, nil
}

// validateSelection ensures selective rules name known, active permissions.
func (s *Service) validateSelection(ctx context.Context, inheritAll bool, selected []string) error {
	if inheritAll {
		return nil
	}
	if len(selected) == 0 {
		return fmt.Errorf("%w: selective inheritance requires at least one permission", ErrValidation)
	}
	for _, code := range selected {
		perm, err := s.repo.GetPermission(ctx, code)
		if err != nil {
			return fmt.Errorf("%w: unknown permission %s", ErrValidation, code)
		}
		if !perm.IsActive {
			return fmt.Errorf("%w: permission %s is inactive", ErrValidation, code)
		}
	}
	return nil
}

func ruleMeta(rule InheritanceRule) map[string]any {
	return map[string]any{
		"parent_role_id":       rule.ParentRoleID,
		"child_role_id":        rule.ChildRoleID,
		"inherit_all":          rule.InheritAll,
		"selected_permissions": rule.SelectedPermissions,
		"priority":             rule.Priority,
		"is_active":            rule.IsActive,
	}
}

func collectRoles(snap *Snapshot, ids map[int64]struct{}) []Role {
	roles := make([]Role, 0, len(ids))
	for id := range ids {
		if role, ok := snap.Roles[id]; ok {
			roles = append(roles, role)
		}
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i].ID < roles[j].ID })
	return roles
}
