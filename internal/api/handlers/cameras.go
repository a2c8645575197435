// Package handlers contains the HTTP handler implementations for the
// LotWatch dashboard API: the camera registry, the parking-event ledger, and
// the timelapse surface (artifact listing, scheduler settings).
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"lotwatch/internal/core"
	"lotwatch/internal/types"
)

// CameraRegistry defines the repository contract for the camera handler.
// Defined locally to avoid tight coupling per the handler injection pattern.
type CameraRegistry interface {
	List(ctx context.Context) ([]types.Camera, error)
	Get(ctx context.Context, id string) (*types.Camera, error)
	UpsertHeartbeat(ctx context.Context, id string, seenAt time.Time) error
}

// CameraHandler maps HTTP requests to camera registry operations.
type CameraHandler struct {
	registry CameraRegistry
	logger   *slog.Logger
}

// NewCameraHandler creates a CameraHandler with the provided dependencies.
func NewCameraHandler(registry CameraRegistry, logger *slog.Logger) *CameraHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CameraHandler{registry: registry, logger: logger}
}

// RegisterRoutes mounts the camera endpoints onto the mux.
func (h *CameraHandler) RegisterRoutes(r chi.Router) {
	r.Route("/cameras", func(r chi.Router) {
		r.Get("/", h.HandleList)
		r.Get("/{id}", h.HandleGet)
		r.Post("/{id}/heartbeat", h.HandleHeartbeat)
	})
}

// HandleList handles GET /v1/cameras.
func (h *CameraHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	cameras, err := h.registry.List(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, cameras)
}

// HandleGet handles GET /v1/cameras/{id}.
func (h *CameraHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	camera, err := h.registry.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, camera)
}

// HandleHeartbeat handles POST /v1/cameras/{id}/heartbeat. Cameras (or the
// relay on their behalf) call this periodically; first contact creates the
// registry row.
func (h *CameraHandler) HandleHeartbeat(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	now := time.Now().UTC()
	if err := h.registry.UpsertHeartbeat(r.Context(), id, now); err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, map[string]any{"camera_id": id, "seen_at": now})
}
