package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"lotwatch/internal/core"
	"lotwatch/internal/timelapse"
	"lotwatch/internal/types"
)

// SettingsStore defines the scheduler-settings contract for the timelapse
// handler.
type SettingsStore interface {
	Load(ctx context.Context) (types.TimelapseSettings, error)
	Save(ctx context.Context, settings types.TimelapseSettings) error
}

// UpdateSettingsRequest is the DTO for PUT /v1/timelapse/settings.
type UpdateSettingsRequest struct {
	IntervalSeconds  int      `json:"interval_seconds" validate:"required,min=1"`
	PeriodValue      int      `json:"period_value" validate:"required,min=1"`
	PeriodUnit       string   `json:"period_unit" validate:"required,oneof=hour day month year"`
	EnabledCameraIDs []string `json:"enabled_camera_ids"`
}

// TimelapseHandler serves the timelapse surface: finalized artifact listing
// and operator-editable scheduler settings.
type TimelapseHandler struct {
	root      string
	store     SettingsStore
	validator *core.Validator
	logger    *slog.Logger
}

// NewTimelapseHandler creates a TimelapseHandler. root is the on-disk
// timelapse artifact tree.
func NewTimelapseHandler(root string, store SettingsStore, val *core.Validator, logger *slog.Logger) *TimelapseHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TimelapseHandler{root: root, store: store, validator: val, logger: logger}
}

// RegisterRoutes mounts the timelapse endpoints onto the mux.
func (h *TimelapseHandler) RegisterRoutes(r chi.Router) {
	r.Get("/timelapses", h.HandleListArtifacts)
	r.Route("/timelapse/settings", func(r chi.Router) {
		r.Get("/", h.HandleGetSettings)
		r.Put("/", h.HandleUpdateSettings)
	})
}

// HandleListArtifacts handles GET /v1/timelapses: enumerates finalized
// videos on disk. A bucket that failed to finalize simply does not appear
// here; its frames stay on disk for operator inspection.
func (h *TimelapseHandler) HandleListArtifacts(w http.ResponseWriter, r *http.Request) {
	artifacts, err := timelapse.ListArtifacts(h.root)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to enumerate timelapse artifacts", "error", err)
		core.Error(w, r, types.NewAppError(types.ErrCodeInternalUnexpected,
			"failed to list timelapse artifacts", err))
		return
	}
	core.JSON(w, r, http.StatusOK, artifacts)
}

// HandleGetSettings handles GET /v1/timelapse/settings.
func (h *TimelapseHandler) HandleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.store.Load(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, settings)
}

// HandleUpdateSettings handles PUT /v1/timelapse/settings. The scheduler
// re-reads the store every tick, so changes take effect without a restart.
func (h *TimelapseHandler) HandleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req UpdateSettingsRequest
	if err := core.DecodeJSON(r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	settings := types.TimelapseSettings{
		IntervalSeconds:  req.IntervalSeconds,
		PeriodValue:      req.PeriodValue,
		PeriodUnit:       types.PeriodUnit(req.PeriodUnit),
		EnabledCameraIDs: req.EnabledCameraIDs,
	}
	if err := h.store.Save(r.Context(), settings); err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "timelapse settings updated",
		"interval_seconds", settings.IntervalSeconds,
		"period_value", settings.PeriodValue,
		"period_unit", string(settings.PeriodUnit),
		"enabled_cameras", len(settings.EnabledCameraIDs),
	)
	core.JSON(w, r, http.StatusOK, settings)
}
