package filters

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/taskdesk/taskdesk/internal/auth"
	"github.com/taskdesk/taskdesk/internal/platform/httpx"
	"github.com/taskdesk/taskdesk/internal/rbac"
)

// FilterService is the behaviour the HTTP layer needs from the service.
type FilterService interface {
	ListFilters(ctx context.Context, caller auth.Principal) ([]Filter, error)
	ListUserFilters(ctx context.Context, caller auth.Principal) ([]Filter, error)
	GetFilterByID(ctx context.Context, caller auth.Principal, id int64) (Filter, error)
	CreateFilter(ctx context.Context, caller auth.Principal, in FilterInput) (Filter, error)
	UpdateFilter(ctx context.Context, caller auth.Principal, id int64, in FilterInput) (Filter, error)
	MarkInactive(ctx context.Context, caller auth.Principal, id int64) error
}

// Handler exposes the filter REST endpoints.
type Handler struct {
	logger       *slog.Logger
	service      FilterService
	schema       *Schema
	rbac         rbac.Middleware
	reviewerRole string
}

// NewHandler builds a Handler. Every route requires reviewerRole.
func NewHandler(logger *slog.Logger, service FilterService, schema *Schema, rbac rbac.Middleware, reviewerRole string) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if schema == nil {
		schema = NewSchema()
	}
	return &Handler{logger: logger, service: service, schema: schema, rbac: rbac, reviewerRole: reviewerRole}
}

// MountRoutes registers filter routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(h.reviewerRole))
		r.Get("/", h.listFilters)
		r.Post("/", h.createFilter)
		r.Get("/user", h.listUserFilters)
		r.Get("/{id:[0-9]+}", h.getFilter)
		r.Put("/{id:[0-9]+}", h.updateFilter)
		r.Delete("/{id:[0-9]+}", h.deleteFilter)
	})
}

func (h *Handler) listFilters(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.PrincipalFromContext(r.Context())
	list, err := h.service.ListFilters(r.Context(), caller)
	if err != nil {
		h.fail(w, r, 0, err)
		return
	}
	httpx.JSON(w, http.StatusOK, h.schema.DumpMany(list))
}

func (h *Handler) listUserFilters(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.PrincipalFromContext(r.Context())
	list, err := h.service.ListUserFilters(r.Context(), caller)
	if err != nil {
		h.fail(w, r, 0, err)
		return
	}
	httpx.JSON(w, http.StatusOK, h.schema.DumpMany(list))
}

func (h *Handler) createFilter(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.PrincipalFromContext(r.Context())
	in, err := h.schema.Load(r.Body)
	if err != nil {
		h.fail(w, r, 0, err)
		return
	}
	created, err := h.service.CreateFilter(r.Context(), caller, in)
	if err != nil {
		h.fail(w, r, 0, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, h.schema.Dump(created))
}

func (h *Handler) getFilter(w http.ResponseWriter, r *http.Request) {
	id, ok := h.filterID(w, r)
	if !ok {
		return
	}
	caller, _ := auth.PrincipalFromContext(r.Context())
	f, err := h.service.GetFilterByID(r.Context(), caller, id)
	if err != nil {
		h.fail(w, r, id, err)
		return
	}
	httpx.JSON(w, http.StatusOK, h.schema.Dump(f))
}

// updateFilter maps faults like every other route, so unclassified errors
// surface as 500 rather than 400.
func (h *Handler) updateFilter(w http.ResponseWriter, r *http.Request) {
	id, ok := h.filterID(w, r)
	if !ok {
		return
	}
	caller, _ := auth.PrincipalFromContext(r.Context())
	in, err := h.schema.Load(r.Body)
	if err != nil {
		h.fail(w, r, id, err)
		return
	}
	updated, err := h.service.UpdateFilter(r.Context(), caller, id, in)
	if err != nil {
		h.fail(w, r, id, err)
		return
	}
	httpx.JSON(w, http.StatusOK, h.schema.Dump(updated))
}

func (h *Handler) deleteFilter(w http.ResponseWriter, r *http.Request) {
	id, ok := h.filterID(w, r)
	if !ok {
		return
	}
	caller, _ := auth.PrincipalFromContext(r.Context())
	if err := h.service.MarkInactive(r.Context(), caller, id); err != nil {
		h.fail(w, r, id, err)
		return
	}
	httpx.JSON(w, http.StatusOK, "Deleted")
}

func (h *Handler) filterID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		http.NotFound(w, r)
		return 0, false
	}
	return id, true
}

// fail translates service and schema errors into responses. id is zero for
// collection endpoints.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, id int64, err error) {
	var business *BusinessError
	switch {
	case errors.Is(err, ErrValidation):
		h.logger.Warn("invalid filter payload", slog.String("method", r.Method), slog.Any("error", err))
		httpx.InvalidRequest(w)
	case errors.Is(err, ErrPermission):
		h.logger.Warn("filter access denied", slog.Int64("filter_id", id), slog.Any("error", err))
		httpx.Error(w, http.StatusForbidden, httpx.TypePermission,
			fmt.Sprintf("Access to filter id - %d is prohibited.", id))
	case errors.As(err, &business):
		h.logger.Warn("filter business error", slog.Int64("filter_id", id), slog.String("code", business.Code))
		httpx.JSON(w, business.Status, httpx.ErrorBody{
			Type:    httpx.TypeBadRequest,
			Code:    business.Code,
			Message: business.Message,
		})
	default:
		h.logger.Error("filter request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
		httpx.Internal(w)
	}
}
