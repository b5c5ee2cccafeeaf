package rbac

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Handler exposes the permission subsystem as a JSON API.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
	rbac      Middleware
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, mw Middleware) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New(), rbac: mw}
}

// MountRoleRoutes registers role and inheritance-rule routes.
func (h *Handler) MountRoleRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermRolesView))
		r.Get("/", h.listRoles)
		r.Get("/{roleID}", h.getRole)
		r.Get("/{roleID}/parents", h.listParents)
		r.Get("/{roleID}/ancestors", h.listAncestors)
		r.Get("/{roleID}/descendants", h.listDescendants)
		r.Get("/{roleID}/effective", h.effectivePermissions)
		r.Get("/{roleID}/conflicts", h.listConflicts)
		r.Get("/{roleID}/consistency", h.checkConsistency)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermRolesEdit))
		r.Post("/", h.createRole)
		r.Patch("/{roleID}", h.updateRole)
		r.Delete("/{roleID}", h.deleteRole)
		r.Put("/{roleID}/grants", h.setGrant)
		r.Delete("/{roleID}/grants/{code}", h.clearGrant)
		r.Post("/inheritance-rules", h.createRule)
		r.Patch("/inheritance-rules/{ruleID}", h.updateRule)
	})
}

// MountPermissionRoutes registers catalog and dependency routes.
func (h *Handler) MountPermissionRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermPermissionsView))
		r.Get("/", h.listPermissions)
		r.Get("/{code}", h.getPermission)
		r.Get("/{code}/dependencies", h.listDependencies)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermPermissionsEdit))
		r.Post("/", h.ensurePermission)
		r.Post("/{code}/deactivate", h.deactivatePermission)
		r.Post("/dependencies", h.addDependency)
		r.Delete("/dependencies", h.removeDependency)
	})
}

// --- roles ---

type createRoleRequest struct {
	OrgID       int64  `json:"org_id"`
	Code        string `json:"code" validate:"required"`
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	orgID, _ := strconv.ParseInt(r.URL.Query().Get("org_id"), 10, 64)
	roles, err := h.service.ListRoles(r.Context(), orgID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": roles})
}

func (h *Handler) getRole(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "roleID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid role id")
		return
	}
	role, err := h.service.GetRole(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if !h.decode(w, r, &req) {
		return
	}
	role, err := h.service.CreateRole(r.Context(), CreateRoleInput{
		OrgID:       req.OrgID,
		Code:        req.Code,
		Name:        req.Name,
		Description: req.Description,
		ActorID:     actorID(r),
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, role)
}

type updateRoleRequest struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "roleID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid role id")
		return
	}
	var req updateRoleRequest
	if !h.decode(w, r, &req) {
		return
	}
	role, err := h.service.UpdateRole(r.Context(), id, req.Name, req.Description)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "roleID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid role id")
		return
	}
	if err := h.service.DeleteRole(r.Context(), id); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- grants ---

type grantRequest struct {
	PermissionCode string `json:"permission_code" validate:"required"`
	Granted        *bool  `json:"granted" validate:"required"`
}

func (h *Handler) setGrant(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "roleID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid role id")
		return
	}
	var req grantRequest
	if !h.decode(w, r, &req) {
		return
	}
	err = h.service.SetGrant(r.Context(), SetGrantInput{
		RoleID:         id,
		PermissionCode: req.PermissionCode,
		Granted:        *req.Granted,
		ActorID:        actorID(r),
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) clearGrant(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "roleID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid role id")
		return
	}
	code := chi.URLParam(r, "code")
	if err := h.service.ClearGrant(r.Context(), id, code, actorID(r)); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- hierarchy ---

type createRuleRequest struct {
	ParentRoleID        int64    `json:"parent_role_id" validate:"required"`
	ChildRoleID         int64    `json:"child_role_id" validate:"required"`
	InheritAll          bool     `json:"inherit_all"`
	SelectedPermissions []string `json:"selected_permissions"`
	Priority            int      `json:"priority"`
}

func (h *Handler) createRule(w http.ResponseWriter, r *http.Request) {
	var req createRuleRequest
	if !h.decode(w, r, &req) {
		return
	}
	rule, err := h.service.CreateInheritanceRule(r.Context(), CreateRuleInput{
		ParentRoleID:        req.ParentRoleID,
		ChildRoleID:         req.ChildRoleID,
		InheritAll:          req.InheritAll,
		SelectedPermissions: req.SelectedPermissions,
		Priority:            req.Priority,
		ActorID:             actorID(r),
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, rule)
}

type updateRuleRequest struct {
	ParentRoleID        *int64   `json:"parent_role_id"`
	ChildRoleID         *int64   `json:"child_role_id"`
	InheritAll          *bool    `json:"inherit_all"`
	SelectedPermissions []string `json:"selected_permissions"`
	Priority            *int     `json:"priority"`
	IsActive            *bool    `json:"is_active"`
}

func (h *Handler) updateRule(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "ruleID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid rule id")
		return
	}
	var req updateRuleRequest
	if !h.decode(w, r, &req) {
		return
	}
	rule, err := h.service.UpdateInheritanceRule(r.Context(), UpdateRuleInput{
		RuleID:              id,
		ParentRoleID:        req.ParentRoleID,
		ChildRoleID:         req.ChildRoleID,
		InheritAll:          req.InheritAll,
		SelectedPermissions: req.SelectedPermissions,
		Priority:            req.Priority,
		IsActive:            req.IsActive,
		ActorID:             actorID(r),
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rule)
}

func (h *Handler) listParents(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "roleID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid role id")
		return
	}
	links, err := h.service.GetParents(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"parents": links})
}

func (h *Handler) listAncestors(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "roleID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid role id")
		return
	}
	roles, err := h.service.GetAncestors(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"ancestors": roles})
}

func (h *Handler) listDescendants(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "roleID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid role id")
		return
	}
	roles, err := h.service.GetDescendants(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"descendants": roles})
}

// --- evaluation ---

func (h *Handler) effectivePermissions(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "roleID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid role id")
		return
	}
	if r.URL.Query().Get("trace") == "1" {
		verdicts, err := h.service.EffectivePermissionsWithSource(r.Context(), id)
		if err != nil {
			h.respondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]any{"permissions": verdicts})
		return
	}
	effective, err := h.service.EffectivePermissions(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"permissions": effective})
}

func (h *Handler) listConflicts(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "roleID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid role id")
		return
	}
	conflicts, err := h.service.InheritanceConflicts(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	strategy := Strategy(strings.TrimSpace(r.URL.Query().Get("strategy")))
	resolutions := make(map[string]bool, len(conflicts))
	for _, conflict := range conflicts {
		resolutions[conflict.PermissionCode] = ResolveConflict(conflict, strategy)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"conflicts": conflicts, "resolutions": resolutions})
}

func (h *Handler) checkConsistency(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "roleID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid role id")
		return
	}
	issues, err := h.service.CheckDependencyConsistency(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"issues": issues})
}

// --- catalog ---

type permissionRequest struct {
	Code        string `json:"code" validate:"required"`
	Name        string `json:"name"`
	Category    string `json:"category"`
	Description string `json:"description"`
}

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.service.ListPermissions(r.Context(), r.URL.Query().Get("category"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"permissions": perms})
}

func (h *Handler) getPermission(w http.ResponseWriter, r *http.Request) {
	perm, err := h.service.GetPermission(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, perm)
}

func (h *Handler) ensurePermission(w http.ResponseWriter, r *http.Request) {
	var req permissionRequest
	if !h.decode(w, r, &req) {
		return
	}
	perm, err := h.service.EnsurePermission(r.Context(), Permission{
		Code:        req.Code,
		Name:        req.Name,
		Category:    req.Category,
		Description: req.Description,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, perm)
}

func (h *Handler) deactivatePermission(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeactivatePermission(r.Context(), chi.URLParam(r, "code")); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- dependencies ---

type dependencyRequest struct {
	PermissionCode string `json:"permission_code" validate:"required"`
	RequiresCode   string `json:"requires_code" validate:"required"`
}

func (h *Handler) listDependencies(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	var (
		deps []string
		err  error
	)
	if r.URL.Query().Get("transitive") == "1" {
		deps, err = h.service.AllDependencies(r.Context(), code)
	} else {
		deps, err = h.service.DirectDependencies(r.Context(), code)
	}
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"permission_code": code, "requires": deps})
}

func (h *Handler) addDependency(w http.ResponseWriter, r *http.Request) {
	var req dependencyRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.service.AddDependency(r.Context(), req.PermissionCode, req.RequiresCode, actorID(r)); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (h *Handler) removeDependency(w http.ResponseWriter, r *http.Request) {
	var req dependencyRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.service.RemoveDependency(r.Context(), req.PermissionCode, req.RequiresCode, actorID(r)); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- helpers ---

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return false
	}
	if err := h.validator.Struct(target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return false
	}
	return true
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrCircularInheritance):
		httpx.Problem(w, http.StatusConflict, "Circular Inheritance", err.Error())
	case errors.Is(err, ErrDependencyCycle):
		httpx.Problem(w, http.StatusConflict, "Dependency Cycle", err.Error())
	case errors.Is(err, ErrDuplicate):
		httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, ErrRoleInUse):
		httpx.Problem(w, http.StatusConflict, "Role In Use", err.Error())
	default:
		h.logger.Error("rbac handler", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func pathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}

// actorID extracts the authenticated user from the session; zero when
// the request is unauthenticated (middleware normally prevents that).
func actorID(r *http.Request) int64 {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		return 0
	}
	id, err := strconv.ParseInt(strings.TrimSpace(sess.User()), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
