package catalog

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hieuvqhe/SEP490-G163-sub001/internal/platform/httpx"
)

// Handler serves the catalog.
type Handler struct {
	catalog *Catalog
}

// NewHandler builds Handler instance.
func NewHandler(c *Catalog) *Handler {
	return &Handler{catalog: c}
}

// MountRoutes registers catalog routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/permissions/catalog", h.list)
	r.Get("/permissions/catalog/{resourceType}", h.group)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string]any{"groups": h.catalog.Groups()})
}

func (h *Handler) group(w http.ResponseWriter, r *http.Request) {
	g, err := h.catalog.Group(chi.URLParam(r, "resourceType"))
	if err != nil {
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
		return
	}
	httpx.JSON(w, http.StatusOK, g)
}
