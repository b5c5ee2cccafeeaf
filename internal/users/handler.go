package users

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/rbac"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Handler manages user management endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
	rbac      rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, mw rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New(), rbac: mw}
}

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermUsersView))
		r.Get("/", h.listUsers)
		r.Get("/{userID}", h.getUser)
		r.Get("/{userID}/roles", h.listAssignments)
		r.Get("/{userID}/access", h.checkAccess)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermUsersEdit))
		r.Post("/", h.createUser)
		r.Patch("/{userID}", h.updateUser)
		r.Post("/{userID}/roles", h.assignRole)
		r.Delete("/{userID}/roles", h.revokeRole)
	})
}

type createUserRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Name     string `json:"name" validate:"required"`
	Password string `json:"password" validate:"required,min=8"`
}

type updateUserRequest struct {
	Name     string `json:"name" validate:"required"`
	IsActive *bool  `json:"is_active" validate:"required"`
}

type assignmentRequest struct {
	RoleID       int64  `json:"role_id" validate:"required"`
	OrgID        int64  `json:"org_id" validate:"required"`
	DepartmentID *int64 `json:"department_id"`
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsers(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	p := shared.NewPagination(page, perPage, len(users))
	start := (p.Page - 1) * p.PerPage
	if start > len(users) {
		start = len(users)
	}
	end := start + p.PerPage
	if end > len(users) {
		end = len(users)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"users": users[start:end], "pagination": p})
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	id, ok := h.userID(w, r)
	if !ok {
		return
	}
	user, err := h.service.GetUser(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, user)
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if !h.decode(w, r, &req) {
		return
	}
	user, err := h.service.CreateUser(r.Context(), req.Email, req.Name, req.Password, actorID(r))
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, user)
}

func (h *Handler) updateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := h.userID(w, r)
	if !ok {
		return
	}
	var req updateUserRequest
	if !h.decode(w, r, &req) {
		return
	}
	user, err := h.service.UpdateUser(r.Context(), id, req.Name, *req.IsActive, actorID(r))
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, user)
}

func (h *Handler) listAssignments(w http.ResponseWriter, r *http.Request) {
	id, ok := h.userID(w, r)
	if !ok {
		return
	}
	assignments, err := h.service.ListAssignments(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"assignments": assignments})
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	id, ok := h.userID(w, r)
	if !ok {
		return
	}
	var req assignmentRequest
	if !h.decode(w, r, &req) {
		return
	}
	err := h.service.AssignRole(r.Context(), RoleAssignment{
		UserID:       id,
		RoleID:       req.RoleID,
		OrgID:        req.OrgID,
		DepartmentID: req.DepartmentID,
	}, actorID(r))
	if err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (h *Handler) revokeRole(w http.ResponseWriter, r *http.Request) {
	id, ok := h.userID(w, r)
	if !ok {
		return
	}
	var req assignmentRequest
	if !h.decode(w, r, &req) {
		return
	}
	err := h.service.RevokeRole(r.Context(), RoleAssignment{
		UserID:       id,
		RoleID:       req.RoleID,
		OrgID:        req.OrgID,
		DepartmentID: req.DepartmentID,
	}, actorID(r))
	if err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// checkAccess answers "does this user hold this permission here" from
// query parameters: permission, org_id and optional department_id.
func (h *Handler) checkAccess(w http.ResponseWriter, r *http.Request) {
	id, ok := h.userID(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	code := q.Get("permission")
	orgID, err := strconv.ParseInt(q.Get("org_id"), 10, 64)
	if code == "" || err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "permission and org_id query parameters required")
		return
	}
	var departmentID *int64
	if raw := q.Get("department_id"); raw != "" {
		dept, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid department_id")
			return
		}
		departmentID = &dept
	}
	granted, err := h.service.HasPermission(r.Context(), id, code, orgID, departmentID)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"permission": code, "granted": granted})
}

func (h *Handler) userID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid user id")
		return 0, false
	}
	return id, true
}

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

func (h *Handler) fail(w http.ResponseWriter, err error) {
	h.logger.Error("users handler", slog.Any("error", err))
	httpx.RespondError(w, err)
}

func actorID(r *http.Request) int64 {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		return 0
	}
	id, err := strconv.ParseInt(sess.User(), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
