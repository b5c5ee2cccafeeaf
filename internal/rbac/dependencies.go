package rbac

import (
	"context"
	"fmt"
	"strings"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// AddDependency persists "permission requires prerequisite", rejecting
// edges that would close a cycle. The reachability check runs inside the
// insert transaction so concurrent edge creation cannot sneak a cycle in.
func (s *Service) AddDependency(ctx context.Context, permission, prerequisite string, actorID int64) error {
	permission = strings.TrimSpace(permission)
	prerequisite = strings.TrimSpace(prerequisite)
	if _, err := s.repo.GetPermission(ctx, permission); err != nil {
		return fmt.Errorf("permission: %w", err)
	}
	if _, err := s.repo.GetPermission(ctx, prerequisite); err != nil {
		return fmt.Errorf("prerequisite: %w", err)
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		edges, err := tx.ListDependencies(ctx)
		if err != nil {
			return err
		}
		graph := NewDependencyGraph(edges)
		if graph.WouldCycle(permission, prerequisite) {
			return fmt.Errorf("%w: %s is already required by %s", ErrDependencyCycle, permission, prerequisite)
		}
		return tx.InsertDependency(ctx, Dependency{PermissionCode: permission, RequiresCode: prerequisite})
	})
	if err != nil {
		return err
	}

	s.record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   AuditDependencyCreated,
		Entity:   AuditEntityPermission,
		EntityID: permission,
		Meta:     map[string]any{"requires": prerequisite},
	})
	return nil
}

// RemoveDependency deletes a prerequisite edge.
func (s *Service) RemoveDependency(ctx context.Context, permission, prerequisite string, actorID int64) error {
	var removed bool
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var txErr error
		removed, txErr = tx.DeleteDependency(ctx, Dependency{
			PermissionCode: strings.TrimSpace(permission),
			RequiresCode:   strings.TrimSpace(prerequisite),
		})
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
		Action:   AuditDependencyRemoved,
		Entity:   AuditEntityPermission,
		EntityID: permission,
		Meta:     map[string]any{"requires": prerequisite},
	})
	return nil
}

// DirectDependencies returns the immediate prerequisites of a permission.
func (s *Service) DirectDependencies(ctx context.Context, code string) ([]string, error) {
	graph, err := s.dependencyGraph(ctx)
	if err != nil {
		return nil, err
	}
	return graph.Direct(strings.TrimSpace(code)), nil
}

// AllDependencies returns every transitively required permission.
func (s *Service) AllDependencies(ctx context.Context, code string) ([]string, error) {
	graph, err := s.dependencyGraph(ctx)
	if err != nil {
		return nil, err
	}
	return graph.All(strings.TrimSpace(code)), nil
}

func (s *Service) dependencyGraph(ctx context.Context) (*DependencyGraph, error) {
	edges, err := s.repo.ListDependencies(ctx)
	if err != nil {
		return nil, err
	}
	return NewDependencyGraph(edges), nil
}
