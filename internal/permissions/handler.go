package permissions

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/hieuvqhe/SEP490-G163-sub001/internal/platform/httpx"
	"github.com/hieuvqhe/SEP490-G163-sub001/internal/shared"
)

const editorPath = "/employees/{employeeID}/permissions/editor"

// Handler exposes the permission editor over JSON.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	snapshots SnapshotSource
	validate  *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, snapshots SnapshotSource) *Handler {
	return &Handler{logger: logger, service: service, snapshots: snapshots, validate: validator.New()}
}

// MountRoutes registers permission routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/employees/{employeeID}/permissions", h.listGrants)
	r.Post(editorPath, h.open)
	r.Get(editorPath, h.view)
	r.Delete(editorPath, h.discard)
	r.Put(editorPath+"/selection", h.selectCinemas)
	r.Post(editorPath+"/toggle", h.toggle)
	r.Post(editorPath+"/groups/{resourceType}/select-all", h.selectAll)
	r.Post(editorPath+"/groups/{resourceType}/deselect-all", h.deselectAll)
	r.Post(editorPath+"/reset", h.reset)
	r.Post(editorPath+"/save", h.save)
}

type selectionRequest struct {
	CinemaIDs []int64 `json:"cinema_ids" validate:"required,min=1,dive,gt=0"`
}

type toggleRequest struct {
	Code string `json:"code" validate:"required"`
}

type editorCall struct {
	operatorID int64
	employeeID int64
}

func (h *Handler) identify(w http.ResponseWriter, r *http.Request) (editorCall, bool) {
	operatorID, ok := shared.OperatorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrUnauthorized, shared.ErrOperatorMissing))
		return editorCall{}, false
	}
	employeeID, err := httpx.IDParam(r, "employeeID")
	if err != nil {
		httpx.RespondError(w, err)
		return editorCall{}, false
	}
	return editorCall{operatorID: operatorID, employeeID: employeeID}, true
}

func (h *Handler) listGrants(w http.ResponseWriter, r *http.Request) {
	employeeID, err := httpx.IDParam(r, "employeeID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	ids, err := parseIDList(r.URL.Query().Get("cinema_ids"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	grants, err := h.snapshots.Load(r.Context(), employeeID, NewSelection(ids))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"employee_id": employeeID, "grants": grants.Grants(employeeID)})
}

func (h *Handler) open(w http.ResponseWriter, r *http.Request) {
	call, ok := h.identify(w, r)
	if !ok {
		return
	}
	var req selectionRequest
	if err := httpx.Bind(r, h.validate, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	view, err := h.service.Open(r.Context(), call.operatorID, call.employeeID, req.CinemaIDs)
	h.respondView(w, r, http.StatusCreated, view, err)
}

func (h *Handler) view(w http.ResponseWriter, r *http.Request) {
	call, ok := h.identify(w, r)
	if !ok {
		return
	}
	view, err := h.service.View(r.Context(), call.operatorID, call.employeeID)
	h.respondView(w, r, http.StatusOK, view, err)
}

func (h *Handler) discard(w http.ResponseWriter, r *http.Request) {
	call, ok := h.identify(w, r)
	if !ok {
		return
	}
	if err := h.service.Discard(r.Context(), call.operatorID, call.employeeID); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) selectCinemas(w http.ResponseWriter, r *http.Request) {
	call, ok := h.identify(w, r)
	if !ok {
		return
	}
	var req selectionRequest
	if err := httpx.Bind(r, h.validate, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	view, err := h.service.Select(r.Context(), call.operatorID, call.employeeID, req.CinemaIDs)
	h.respondView(w, r, http.StatusOK, view, err)
}

func (h *Handler) toggle(w http.ResponseWriter, r *http.Request) {
	call, ok := h.identify(w, r)
	if !ok {
		return
	}
	var req toggleRequest
	if err := httpx.Bind(r, h.validate, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	view, err := h.service.Toggle(r.Context(), call.operatorID, call.employeeID, req.Code)
	h.respondView(w, r, http.StatusOK, view, err)
}

func (h *Handler) selectAll(w http.ResponseWriter, r *http.Request) {
	call, ok := h.identify(w, r)
	if !ok {
		return
	}
	view, err := h.service.SelectAll(r.Context(), call.operatorID, call.employeeID, chi.URLParam(r, "resourceType"))
	h.respondView(w, r, http.StatusOK, view, err)
}

func (h *Handler) deselectAll(w http.ResponseWriter, r *http.Request) {
	call, ok := h.identify(w, r)
	if !ok {
		return
	}
	view, err := h.service.DeselectAll(r.Context(), call.operatorID, call.employeeID, chi.URLParam(r, "resourceType"))
	h.respondView(w, r, http.StatusOK, view, err)
}

func (h *Handler) reset(w http.ResponseWriter, r *http.Request) {
	call, ok := h.identify(w, r)
	if !ok {
		return
	}
	view, err := h.service.Reset(r.Context(), call.operatorID, call.employeeID)
	h.respondView(w, r, http.StatusOK, view, err)
}

func (h *Handler) save(w http.ResponseWriter, r *http.Request) {
	call, ok := h.identify(w, r)
	if !ok {
		return
	}
	outcome, err := h.service.Save(r.Context(), call.operatorID, call.employeeID)
	switch {
	case errors.Is(err, ErrSaveIncomplete):
		httpx.JSON(w, http.StatusMultiStatus, outcome)
	case err != nil:
		h.fail(w, r, err)
	default:
		httpx.JSON(w, http.StatusOK, outcome)
	}
}

func (h *Handler) respondView(w http.ResponseWriter, r *http.Request, status int, view View, err error) {
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, status, view)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrNoDraft):
		err = fmt.Errorf("%w: %v", httpx.ErrNotFound, err)
	case errors.Is(err, ErrInvalidSelection), errors.Is(err, ErrUnknownPermission):
		err = fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	default:
		h.logger.Error("permissions request", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func parseIDList(raw string) ([]int64, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("%w: cinema_ids required", httpx.ErrValidation)
	}
	parts := strings.Split(raw, ",")
	ids := make([]int64, 0, len(parts))
	for _, part := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("%w: invalid cinema id %q", httpx.ErrValidation, part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
