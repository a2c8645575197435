package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"lotwatch/internal/types"
)

// CameraRepository provides data access for the cameras table. It is the
// registry of record for camera identity and display names; the streaming
// relay only knows source URLs.
type CameraRepository struct {
	db DBTX
}

// NewCameraRepository creates a CameraRepository backed by the given
// database connection (pool or transaction).
func NewCameraRepository(db DBTX) *CameraRepository {
	return &CameraRepository{db: db}
}

// List returns all registered cameras ordered by name.
func (r *CameraRepository) List(ctx context.Context) ([]types.Camera, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, name, location, last_seen_at, created_at
		 FROM cameras
		 ORDER BY name`)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list cameras", err)
	}
	defer rows.Close()

	var cameras []types.Camera
	for rows.Next() {
		var c types.Camera
		if err := rows.Scan(&c.ID, &c.Name, &c.Location, &c.LastSeenAt, &c.CreatedAt); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan camera", err)
		}
		cameras = append(cameras, c)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to read cameras", err)
	}
	return cameras, nil
}

// Get returns a single camera by ID. Returns a not-found AppError when the
// camera does not exist.
func (r *CameraRepository) Get(ctx context.Context, id string) (*types.Camera, error) {
	var c types.Camera
	err := r.db.QueryRow(ctx,
		`SELECT id, name, location, last_seen_at, created_at
		 FROM cameras
		 WHERE id = $1`, id).
		Scan(&c.ID, &c.Name, &c.Location, &c.LastSeenAt, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, types.NewAppError(types.ErrCodeNotFoundCamera, "camera not found", err)
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get camera", err)
	}
	return &c, nil
}

// DisplayName returns the camera's display name. Used by the timelapse
// finalizer to build human-readable artifact names.
func (r *CameraRepository) DisplayName(ctx context.Context, id string) (string, error) {
	var name string
	err := r.db.QueryRow(ctx, `SELECT name FROM cameras WHERE id = $1`, id).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", types.NewAppError(types.ErrCodeNotFoundCamera, "camera not found", err)
	}
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalDB, "failed to resolve camera name", err)
	}
	return name, nil
}

// UpsertHeartbeat records that a camera was seen alive at seenAt, creating
// the registry row on first contact. The name defaults to the camera ID
// until an operator renames it.
func (r *CameraRepository) UpsertHeartbeat(ctx context.Context, id string, seenAt time.Time) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO cameras (id, name, last_seen_at)
		 VALUES ($1, $1, $2)
		 ON CONFLICT (id) DO UPDATE SET last_seen_at = EXCLUDED.last_seen_at`,
		id, seenAt)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to record camera heartbeat", err)
	}
	return nil
}
