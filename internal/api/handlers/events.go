package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"lotwatch/internal/core"
	"lotwatch/internal/types"
)

// EventLedger defines the repository contract for the parking-event handler.
type EventLedger interface {
	Insert(ctx context.Context, e *types.ParkingEvent) error
	List(ctx context.Context, limit, offset int) ([]types.ParkingEvent, error)
	OpenCount(ctx context.Context) (int, error)
}

// CreateEventRequest is the DTO for POST /v1/events.
type CreateEventRequest struct {
	CameraID   string     `json:"camera_id" validate:"required"`
	EventType  string     `json:"event_type" validate:"required,oneof=entry exit"`
	Plate      string     `json:"plate" validate:"max=16"`
	OccurredAt *time.Time `json:"occurred_at,omitempty"`
}

// EventHandler maps HTTP requests to ledger operations.
type EventHandler struct {
	ledger    EventLedger
	validator *core.Validator
	logger    *slog.Logger
}

// NewEventHandler creates an EventHandler with the provided dependencies.
func NewEventHandler(ledger EventLedger, val *core.Validator, logger *slog.Logger) *EventHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventHandler{ledger: ledger, validator: val, logger: logger}
}

// RegisterRoutes mounts the ledger endpoints onto the mux.
func (h *EventHandler) RegisterRoutes(r chi.Router) {
	r.Route("/events", func(r chi.Router) {
		r.Post("/", h.HandleCreate)
		r.Get("/", h.HandleList)
		r.Get("/occupancy", h.HandleOccupancy)
	})
}

// HandleCreate handles POST /v1/events: appends one entry/exit observation
// to the ledger.
func (h *EventHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateEventRequest
	if err := core.DecodeJSON(r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	event := &types.ParkingEvent{
		CameraID:  req.CameraID,
		EventType: types.EventType(req.EventType),
		Plate:     req.Plate,
	}
	if req.OccurredAt != nil {
		event.OccurredAt = req.OccurredAt.UTC()
	}

	if err := h.ledger.Insert(r.Context(), event); err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "parking event recorded",
		"event_id", event.ID,
		"camera_id", event.CameraID,
		"event_type", string(event.EventType),
	)
	core.JSON(w, r, http.StatusCreated, event)
}

// HandleList handles GET /v1/events?limit=&offset=.
func (h *EventHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	events, err := h.ledger.List(r.Context(), limit, offset)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, events)
}

// HandleOccupancy handles GET /v1/events/occupancy: the current in-facility
// vehicle count derived from the ledger.
func (h *EventHandler) HandleOccupancy(w http.ResponseWriter, r *http.Request) {
	count, err := h.ledger.OpenCount(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, map[string]int{"occupied": count})
}
