package orgs

import (
	"context"
	"fmt"
	"strings"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
)

// RepositoryPort defines data access methods for organizations.
type RepositoryPort interface {
	ListOrganizations(ctx context.Context) ([]Organization, error)
	GetOrganization(ctx context.Context, id int64) (Organization, error)
	CreateOrganization(ctx context.Context, org Organization) (Organization, error)
	UpdateOrganization(ctx context.Context, org Organization) (Organization, error)

	ListDepartments(ctx context.Context, orgID int64) ([]Department, error)
	CreateDepartment(ctx context.Context, dept Department) (Department, error)
	DeleteDepartment(ctx context.Context, id int64) error
}

// Service handles organization business logic.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// ListOrganizations returns all organizations.
func (s *Service) ListOrganizations(ctx context.Context) ([]Organization, error) {
	return s.repo.ListOrganizations(ctx)
}

// GetOrganization fetches one organization.
func (s *Service) GetOrganization(ctx context.Context, id int64) (Organization, error) {
	return s.repo.GetOrganization(ctx, id)
}

// CreateOrganization registers a new tenant.
func (s *Service) CreateOrganization(ctx context.Context, code, name string) (Organization, error) {
	code = strings.TrimSpace(code)
	name = strings.TrimSpace(name)
	if code == "" || name == "" {
		return Organization{}, fmt.Errorf("%w: organization code and name required", httpx.ErrValidation)
	}
	return s.repo.CreateOrganization(ctx, Organization{Code: code, Name: name})
}

// UpdateOrganization renames an organization. Codes stay fixed.
func (s *Service) UpdateOrganization(ctx context.Context, id int64, name string) (Organization, error) {
	org, err := s.repo.GetOrganization(ctx, id)
	if err != nil {
		return Organization{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Organization{}, fmt.Errorf("%w: organization name required", httpx.ErrValidation)
	}
	org.Name = name
	return s.repo.UpdateOrganization(ctx, org)
}

// ListDepartments returns the organization's departments.
func (s *Service) ListDepartments(ctx context.Context, orgID int64) ([]Department, error) {
	if _, err := s.repo.GetOrganization(ctx, orgID); err != nil {
		return nil, err
	}
	return s.repo.ListDepartments(ctx, orgID)
}

// CreateDepartment adds a department to an organization.
func (s *Service) CreateDepartment(ctx context.Context, orgID int64, code, name string) (Department, error) {
	if _, err := s.repo.GetOrganization(ctx, orgID); err != nil {
		return Department{}, err
	}
	code = strings.TrimSpace(code)
	name = strings.TrimSpace(name)
	if code == "" || name == "" {
		return Department{}, fmt.Errorf("%w: department code and name required", httpx.ErrValidation)
	}
	return s.repo.CreateDepartment(ctx, Department{OrgID: orgID, Code: code, Name: name})
}

// DeleteDepartment removes a department.
func (s *Service) DeleteDepartment(ctx context.Context, id int64) error {
	return s.repo.DeleteDepartment(ctx, id)
}
