package employees

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/hieuvqhe/SEP490-G163-sub001/internal/assignments"
	"github.com/hieuvqhe/SEP490-G163-sub001/internal/platform/httpx"
)

// Handler manages employee endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers employee routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/employees", h.list)
	r.Get("/employees/{employeeID}", h.get)
	r.Post("/employees/{employeeID}/deactivate", h.deactivate)
	r.Post("/employees/{employeeID}/activate", h.activate)
	r.Put("/employees/{employeeID}/role", h.changeRole)
}

type changeRoleRequest struct {
	RoleType string `json:"role_type" validate:"required,oneof=STAFF MARKETING CASHIER"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := ListFilters{Search: q.Get("q")}
	if raw := q.Get("role"); raw != "" {
		role, err := assignments.ParseRoleType(raw)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		filters.RoleType = &role
	}
	if raw := q.Get("active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			httpx.RespondError(w, fmt.Errorf("%w: invalid active flag %q", httpx.ErrValidation, raw))
			return
		}
		filters.IsActive = &active
	}
	filters.Limit, _ = strconv.Atoi(q.Get("limit"))
	filters.Offset, _ = strconv.Atoi(q.Get("offset"))

	employees, err := h.service.List(r.Context(), filters)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if employees == nil {
		employees = []Employee{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"employees": employees})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	employeeID, err := httpx.IDParam(r, "employeeID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	emp, err := h.service.Get(r.Context(), employeeID)
	h.respond(w, r, emp, err)
}

func (h *Handler) deactivate(w http.ResponseWriter, r *http.Request) {
	employeeID, err := httpx.IDParam(r, "employeeID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	emp, err := h.service.Deactivate(r.Context(), employeeID)
	h.respond(w, r, emp, err)
}

func (h *Handler) activate(w http.ResponseWriter, r *http.Request) {
	employeeID, err := httpx.IDParam(r, "employeeID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	emp, err := h.service.Activate(r.Context(), employeeID)
	h.respond(w, r, emp, err)
}

func (h *Handler) changeRole(w http.ResponseWriter, r *http.Request) {
	employeeID, err := httpx.IDParam(r, "employeeID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req changeRoleRequest
	if err := httpx.Bind(r, h.validate, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	emp, err := h.service.ChangeRole(r.Context(), employeeID, assignments.RoleType(req.RoleType))
	h.respond(w, r, emp, err)
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, emp Employee, err error) {
	if err != nil && !errors.Is(err, ErrNoChange) {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, emp)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, assignments.ErrNotFound):
		err = fmt.Errorf("%w: %v", httpx.ErrNotFound, err)
	case errors.Is(err, ErrActiveAssignments):
		err = fmt.Errorf("%w: %v", httpx.ErrConflict, err)
	case errors.Is(err, assignments.ErrInvalidRole):
		err = fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	default:
		h.logger.Error("employees request", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
