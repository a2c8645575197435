package types

import "time"

// Camera is a registered facility camera. The registry is the source of truth
// for display names; the streaming relay is the source of truth for live
// source URLs.
type Camera struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Location   string     `json:"location,omitempty"`
	LastSeenAt *time.Time `json:"last_seen_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// ParkingEvent is one entry or exit observation in the facility ledger.
// Fee computation is out of scope; the ledger records raw events only.
type ParkingEvent struct {
	ID         string    `json:"id"`
	CameraID   string    `json:"camera_id"`
	EventType  EventType `json:"event_type"`
	Plate      string    `json:"plate,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
	CreatedAt  time.Time `json:"created_at"`
}

// TimelapseSettings drives the capture scheduler. It is persisted as a single
// JSON document and cached in memory after first load.
type TimelapseSettings struct {
	IntervalSeconds  int        `json:"interval_seconds"`
	PeriodValue      int        `json:"period_value"`
	PeriodUnit       PeriodUnit `json:"period_unit"`
	EnabledCameraIDs []string   `json:"enabled_camera_ids"`
}

// TimelapseArtifact describes one finalized timelapse video on disk.
type TimelapseArtifact struct {
	JobID      string    `json:"job_id"`
	FileName   string    `json:"file_name"`
	SizeBytes  int64     `json:"size_bytes"`
	ModifiedAt time.Time `json:"modified_at"`
}
