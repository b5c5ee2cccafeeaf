package rbac

import (
	"context"
	"fmt"
	"strings"
)

// GetPermission looks up one catalog entry by code.
func (s *Service) GetPermission(ctx context.Context, code string) (Permission, error) {
	return s.repo.GetPermission(ctx, strings.TrimSpace(code))
}

// ListPermissions returns catalog entries, optionally filtered by category.
func (s *Service) ListPermissions(ctx context.Context, category string) ([]Permission, error) {
	return s.repo.ListPermissions(ctx, strings.TrimSpace(category))
}

// EnsurePermission upserts a catalog entry by code. Codes are immutable;
// name, category and description follow the latest call.
func (s *Service) EnsurePermission(ctx context.Context, perm Permission) (Permission, error) {
	perm.Code = strings.TrimSpace(perm.Code)
	perm.Name = strings.TrimSpace(perm.Name)
	if perm.Code == "" {
		return Permission{}, fmt.Errorf("%w: permission code required", ErrValidation)
	}
	if perm.Name == "" {
		perm.Name = perm.Code
	}
	perm.IsActive = true
	return s.repo.EnsurePermission(ctx, perm)
}

// DeactivatePermission retires a permission without deleting it, since
// roles may still reference the code.
func (s *Service) DeactivatePermission(ctx context.Context, code string) error {
	return s.repo.DeactivatePermission(ctx, strings.TrimSpace(code))
}
