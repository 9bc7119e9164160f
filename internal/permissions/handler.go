package permissions

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/accessd/accessd/internal/authz"
	"github.com/accessd/accessd/internal/platform/httpx"
	"github.com/accessd/accessd/internal/shared"
)

// Handler exposes permission management endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	selection RoleSelectionFunc
	guard     authz.Middleware
	validator *validator.Validate
}

// RoleSelectionFunc returns the permission IDs currently assigned to a role,
// used to flag tree nodes for the editing UI.
type RoleSelectionFunc func(ctx context.Context, roleID int64) ([]int64, error)

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, selection RoleSelectionFunc, guard authz.Middleware) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		selection: selection,
		guard:     guard,
		validator: validator.New(),
	}
}

// MountRoutes registers permission routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequirePolicy(shared.PermPermissionsView))
		r.Get("/", h.list)
		r.Get("/tree", h.tree)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequirePolicy(shared.PermPermissionsEdit))
		r.Post("/", h.create)
		r.Put("/{id}", h.update)
		r.Delete("/{id}", h.delete)
	})
}

type permissionPayload struct {
	Name        string `json:"name" validate:"required,max=255"`
	DisplayName string `json:"display_name" validate:"max=255"`
	// Page/Grid/Button are the well-known tags but the set is open for
	// renderers that define their own widgets.
	ElementType string `json:"element_type" validate:"required,max=255"`
	ParentID    *int64 `json:"parent_id"`
}

type permissionResponse struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	ElementType string `json:"element_type"`
	ParentID    *int64 `json:"parent_id,omitempty"`
}

func toResponse(p Permission) permissionResponse {
	return permissionResponse{
		ID:          p.ID,
		Name:        p.Name,
		DisplayName: p.DisplayName,
		ElementType: p.ElementType,
		ParentID:    p.ParentID,
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	perms, err := h.service.List(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := make([]permissionResponse, 0, len(perms))
	for _, p := range perms {
		out = append(out, toResponse(p))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"permissions": out})
}

// tree returns the full hierarchy as a forest, optionally flagging the
// permissions held by ?role_id for selection checkboxes.
func (h *Handler) tree(w http.ResponseWriter, r *http.Request) {
	perms, err := h.service.List(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	selected := map[int64]bool{}
	if raw := r.URL.Query().Get("role_id"); raw != "" {
		roleID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "role_id must be an integer")
			return
		}
		ids, err := h.selection(r.Context(), roleID)
		if err != nil {
			h.respondError(w, err)
			return
		}
		for _, id := range ids {
			selected[id] = true
		}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"tree": BuildTree(perms, selected)})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var payload permissionPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	created, err := h.service.Create(r.Context(), Permission{
		Name:        payload.Name,
		DisplayName: payload.DisplayName,
		ElementType: payload.ElementType,
		ParentID:    payload.ParentID,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(created))
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "id must be an integer")
		return
	}
	var payload permissionPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	updated, err := h.service.Update(r.Context(), Permission{
		ID:          id,
		Name:        payload.Name,
		DisplayName: payload.DisplayName,
		ElementType: payload.ElementType,
		ParentID:    payload.ParentID,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(updated))
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "id must be an integer")
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, shared.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrDuplicateName):
		httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, ErrParentNotFound), errors.Is(err, ErrHierarchyCycle), errors.Is(err, ErrHasChildren):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Invalid Hierarchy", err.Error())
	default:
		h.logger.Error("permissions handler", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
