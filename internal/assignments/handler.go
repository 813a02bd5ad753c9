package assignments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/hieuvqhe/SEP490-G163-sub001/internal/platform/httpx"
	"github.com/hieuvqhe/SEP490-G163-sub001/internal/shared"
)

const idempotencyModule = "assignments.commit"

// IdempotencyClaimer guards commits against replays of the same request key.
type IdempotencyClaimer interface {
	Claim(ctx context.Context, module, key string) error
	Release(ctx context.Context, module, key string) error
}

// Handler exposes the allocator over JSON.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	validate    *validator.Validate
	idempotency IdempotencyClaimer
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// SetIdempotency enables Idempotency-Key handling on commit.
func (h *Handler) SetIdempotency(store IdempotencyClaimer) {
	h.idempotency = store
}

// MountRoutes registers assignment routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/assignments/active", h.listActive)
	r.Get("/employees/{employeeID}/assignments", h.listAssignments)
	r.Post("/employees/{employeeID}/assignments/proposal", h.propose)
	r.Post("/employees/{employeeID}/assignments/commit", h.commit)
	r.Get("/employees/{employeeID}/lifecycle-guard", h.guard)
}

type proposalRequest struct {
	CinemaIDs []int64 `json:"cinema_ids" validate:"dive,gt=0"`
}

type commitRequest struct {
	ToAssign   []int64 `json:"to_assign" validate:"dive,gt=0"`
	ToUnassign []int64 `json:"to_unassign" validate:"dive,gt=0"`
}

type commitResponse struct {
	CommitResult
	Succeeded   bool          `json:"succeeded"`
	NeedsResync bool          `json:"needs_resync"`
	Retry       CommitRequest `json:"retry"`
}

func (h *Handler) listActive(w http.ResponseWriter, r *http.Request) {
	var role *RoleType
	if raw := r.URL.Query().Get("role"); raw != "" {
		parsed, err := ParseRoleType(raw)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		role = &parsed
	}
	rows, err := h.service.ListActive(r.Context(), role)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"assignments": nonNil(rows)})
}

func (h *Handler) listAssignments(w http.ResponseWriter, r *http.Request) {
	employeeID, err := httpx.IDParam(r, "employeeID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rows, err := h.service.ListAssignments(r.Context(), employeeID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"employee_id":  employeeID,
		"assignments":  nonNil(rows),
		"active_count": CountActive(rows),
	})
}

func (h *Handler) propose(w http.ResponseWriter, r *http.Request) {
	employeeID, err := httpx.IDParam(r, "employeeID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req proposalRequest
	if err := httpx.Bind(r, h.validate, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	proposal, err := h.service.Propose(r.Context(), employeeID, req.CinemaIDs)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, proposal)
}

func (h *Handler) commit(w http.ResponseWriter, r *http.Request) {
	employeeID, err := httpx.IDParam(r, "employeeID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req commitRequest
	if err := httpx.Bind(r, h.validate, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	key := r.Header.Get(shared.IdempotencyHeader)
	if h.idempotency != nil {
		if err := h.idempotency.Claim(r.Context(), idempotencyModule, key); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				err = fmt.Errorf("%w: %v", httpx.ErrConflict, err)
			}
			h.fail(w, r, err)
			return
		}
	}
	result, err := h.service.Commit(r.Context(), CommitRequest{
		EmployeeID: employeeID,
		ToAssign:   req.ToAssign,
		ToUnassign: req.ToUnassign,
	})
	if err != nil {
		if h.idempotency != nil {
			if relErr := h.idempotency.Release(r.Context(), idempotencyModule, key); relErr != nil {
				h.logger.Warn("release idempotency key", slog.Any("error", relErr))
			}
		}
		h.fail(w, r, err)
		return
	}
	status := http.StatusOK
	if !result.Succeeded() {
		status = http.StatusMultiStatus
	}
	httpx.JSON(w, status, commitResponse{
		CommitResult: result,
		Succeeded:    result.Succeeded(),
		NeedsResync:  result.NeedsResync(),
		Retry:        result.Retry(),
	})
}

func (h *Handler) guard(w http.ResponseWriter, r *http.Request) {
	employeeID, err := httpx.IDParam(r, "employeeID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	guard, err := h.service.CanDeactivateOrRetype(r.Context(), employeeID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, guard)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		err = fmt.Errorf("%w: %v", httpx.ErrNotFound, err)
	case errors.Is(err, ErrInvalidRole), errors.Is(err, ErrNothingToApply):
		err = fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	case errors.Is(err, httpx.ErrConflict):
	default:
		h.logger.Error("assignments request", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func nonNil(rows []CinemaAssignment) []CinemaAssignment {
	if rows == nil {
		return []CinemaAssignment{}
	}
	return rows
}
