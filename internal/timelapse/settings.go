package timelapse

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"lotwatch/internal/types"
)

// DefaultSettings is the documented default scheduler configuration,
// materialized and persisted when no settings document exists yet.
func DefaultSettings() types.TimelapseSettings {
	return types.TimelapseSettings{
		IntervalSeconds:  60,
		PeriodValue:      1,
		PeriodUnit:       types.PeriodMonth,
		EnabledCameraIDs: []string{},
	}
}

// settingsDoc is the persisted shape of the settings document. The legacy
// single-field period predates the split into value+unit and is migrated on
// first load.
type settingsDoc struct {
	IntervalSeconds  int      `json:"interval_seconds"`
	PeriodValue      int      `json:"period_value,omitempty"`
	PeriodUnit       string   `json:"period_unit,omitempty"`
	EnabledCameraIDs []string `json:"enabled_camera_ids"`

	// Deprecated: replaced by period_value/period_unit.
	Period string `json:"period,omitempty"`
}

// SettingsStore loads and persists the scheduler settings document. The
// document is cached after the first successful load; edits go through Save,
// which persists before replacing the cache.
type SettingsStore struct {
	path   string
	logger *slog.Logger

	mu     sync.Mutex
	cached *types.TimelapseSettings
}

// NewSettingsStore creates a SettingsStore persisting to path.
func NewSettingsStore(path string, logger *slog.Logger) *SettingsStore {
	return &SettingsStore{path: path, logger: logger}
}

// Load returns the scheduler settings. The first successful load is cached
// for the store's lifetime. A missing or unreadable document falls back to
// DefaultSettings, which is persisted best-effort; configuration problems are
// never fatal.
//
// A legacy document carrying only the single period field is migrated to
// (period_value=1, period_unit=period) and immediately re-persisted. The
// migration runs at most once per store lifetime: once the migrated shape is
// cached (and normally persisted), the condition never re-triggers.
func (s *SettingsStore) Load(ctx context.Context) (types.TimelapseSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached != nil {
		return *s.cached, nil
	}

	raw, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.WarnContext(ctx, "settings document unreadable, using defaults",
				"path", s.path,
				"error", err,
			)
		}
		return s.adoptLocked(ctx, DefaultSettings()), nil
	}

	var doc settingsDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		s.logger.WarnContext(ctx, "settings document corrupt, using defaults",
			"path", s.path,
			"error", err,
		)
		return s.adoptLocked(ctx, DefaultSettings()), nil
	}

	migrated := false
	if doc.PeriodUnit == "" && doc.Period != "" {
		doc.PeriodValue = 1
		doc.PeriodUnit = doc.Period
		doc.Period = ""
		migrated = true
	}

	settings := types.TimelapseSettings{
		IntervalSeconds:  doc.IntervalSeconds,
		PeriodValue:      doc.PeriodValue,
		PeriodUnit:       types.PeriodUnit(doc.PeriodUnit),
		EnabledCameraIDs: doc.EnabledCameraIDs,
	}
	normalizeSettings(&settings)

	if migrated {
		// Persisting the migrated shape is best-effort: the cache alone
		// guarantees the migration will not re-run in this process, and a
		// write failure here must not take the scheduler down.
		if err := s.write(settings); err != nil {
			s.logger.WarnContext(ctx, "failed to persist migrated settings",
				"path", s.path,
				"error", err,
			)
		} else {
			s.logger.InfoContext(ctx, "migrated legacy period settings",
				"period_unit", string(settings.PeriodUnit),
			)
		}
	}

	s.cached = &settings
	return settings, nil
}

// Save validates settings, persists them, and replaces the in-memory cache.
func (s *SettingsStore) Save(ctx context.Context, settings types.TimelapseSettings) error {
	if settings.IntervalSeconds <= 0 {
		return types.NewAppError(types.ErrCodeValidationInterval, "interval_seconds must be positive", nil)
	}
	if !settings.PeriodUnit.Valid() {
		return types.NewAppError(types.ErrCodeValidationPeriodUnit,
			fmt.Sprintf("unknown period unit %q", settings.PeriodUnit), nil)
	}
	normalizeSettings(&settings)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.write(settings); err != nil {
		return fmt.Errorf("persisting settings: %w", err)
	}
	s.cached = &settings
	return nil
}

// adoptLocked caches the given settings and persists them best-effort.
// Caller must hold s.mu.
func (s *SettingsStore) adoptLocked(ctx context.Context, settings types.TimelapseSettings) types.TimelapseSettings {
	if err := s.write(settings); err != nil {
		s.logger.WarnContext(ctx, "failed to persist default settings",
			"path", s.path,
			"error", err,
		)
	}
	s.cached = &settings
	return settings
}

// write marshals and persists the settings document, creating the parent
// directory when absent.
func (s *SettingsStore) write(settings types.TimelapseSettings) error {
	doc := settingsDoc{
		IntervalSeconds:  settings.IntervalSeconds,
		PeriodValue:      settings.PeriodValue,
		PeriodUnit:       string(settings.PeriodUnit),
		EnabledCameraIDs: settings.EnabledCameraIDs,
	}
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(s.path, raw, 0o644)
}

// normalizeSettings clamps out-of-range values to safe equivalents.
func normalizeSettings(settings *types.TimelapseSettings) {
	if settings.PeriodValue < 1 {
		settings.PeriodValue = 1
	}
	if settings.EnabledCameraIDs == nil {
		settings.EnabledCameraIDs = []string{}
	}
}
