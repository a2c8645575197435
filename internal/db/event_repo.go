package db

import (
	"context"

	"github.com/google/uuid"

	"lotwatch/internal/types"
)

// maxEventPageSize caps the List page size to keep ledger queries bounded.
const maxEventPageSize = 200

// EventRepository provides data access for the parking_events ledger table.
// The ledger records raw entry/exit observations; fee computation happens
// elsewhere and is out of scope for this service.
type EventRepository struct {
	db DBTX
}

// NewEventRepository creates an EventRepository backed by the given database
// connection (pool or transaction).
func NewEventRepository(db DBTX) *EventRepository {
	return &EventRepository{db: db}
}

// Insert appends a parking event to the ledger. A missing ID is generated;
// a zero OccurredAt defaults to NOW() in the database.
func (r *EventRepository) Insert(ctx context.Context, e *types.ParkingEvent) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	row := r.db.QueryRow(ctx,
		`INSERT INTO parking_events (id, camera_id, event_type, plate, occurred_at)
		 VALUES ($1, $2, $3, $4, COALESCE($5, NOW()))
		 RETURNING occurred_at, created_at`,
		e.ID,
		e.CameraID,
		string(e.EventType),
		e.Plate,
		nilIfZeroTime(e.OccurredAt),
	)
	if err := row.Scan(&e.OccurredAt, &e.CreatedAt); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to insert parking event", err)
	}
	return nil
}

// List returns ledger events in reverse chronological order. Limit is
// clamped to maxEventPageSize; a non-positive limit yields the default page.
func (r *EventRepository) List(ctx context.Context, limit, offset int) ([]types.ParkingEvent, error) {
	if limit <= 0 || limit > maxEventPageSize {
		limit = maxEventPageSize
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, camera_id, event_type, plate, occurred_at, created_at
		 FROM parking_events
		 ORDER BY occurred_at DESC
		 LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list parking events", err)
	}
	defer rows.Close()

	var events []types.ParkingEvent
	for rows.Next() {
		var e types.ParkingEvent
		var eventType string
		if err := rows.Scan(&e.ID, &e.CameraID, &eventType, &e.Plate, &e.OccurredAt, &e.CreatedAt); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan parking event", err)
		}
		e.EventType = types.EventType(eventType)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to read parking events", err)
	}
	return events, nil
}

// OpenCount returns the number of vehicles currently inside the facility:
// total entries minus total exits, floored at zero to tolerate missed
// entry observations.
func (r *EventRepository) OpenCount(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT GREATEST(
		   COALESCE(SUM(CASE event_type WHEN 'entry' THEN 1 WHEN 'exit' THEN -1 ELSE 0 END), 0),
		   0)
		 FROM parking_events`).Scan(&count)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to compute occupancy", err)
	}
	return count, nil
}
