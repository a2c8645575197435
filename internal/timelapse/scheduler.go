package timelapse

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"lotwatch/internal/metrics"
	"lotwatch/internal/types"
)

// defaultTickInterval is the fixed cadence of the scheduler driver. It is
// independent of the configured capture interval: the driver fires often and
// each tick decides per camera whether a capture is due.
const defaultTickInterval = 5 * time.Second

// SettingsSource provides the current scheduler settings. The tick re-reads
// it every firing so operator edits take effect without a restart.
type SettingsSource interface {
	Load(ctx context.Context) (types.TimelapseSettings, error)
}

// SourceResolver maps camera IDs to capturable live source endpoints.
// The streaming relay client implements this.
type SourceResolver interface {
	StreamSources(ctx context.Context) (map[string]string, error)
}

// JobFinalizer converts a closed bucket's frames into a video artifact.
type JobFinalizer interface {
	Finalize(ctx context.Context, cameraID, jobID string, startedAt time.Time) error
}

// Scheduler is the periodic driver of the timelapse pipeline. Each tick it
// advances every enabled camera's state machine: initializing tracking,
// dispatching bucket finalization, and capturing single frames on the
// configured cadence.
//
// All per-camera state is owned by the single tick goroutine; cameras are
// processed sequentially within a tick, so no locking is needed beyond the
// finalizer's guard set.
type Scheduler struct {
	store     SettingsSource
	sources   SourceResolver
	directory CameraDirectory
	finalizer JobFinalizer
	runner    Runner

	root           string
	ffmpegPath     string
	tickInterval   time.Duration
	captureTimeout time.Duration

	logger  *slog.Logger
	metrics *metrics.Collector
	now     func() time.Time

	states map[string]*cameraState

	started atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// SchedulerConfig holds the configuration for creating a Scheduler.
type SchedulerConfig struct {
	Store     SettingsSource
	Sources   SourceResolver
	Directory CameraDirectory
	Finalizer JobFinalizer
	Runner    Runner

	Root           string
	FFmpegPath     string
	TickInterval   time.Duration
	CaptureTimeout time.Duration

	Logger  *slog.Logger
	Metrics *metrics.Collector
	Now     func() time.Time
}

// NewScheduler creates a Scheduler with the given configuration.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	tick := cfg.TickInterval
	if tick <= 0 {
		tick = defaultTickInterval
	}
	return &Scheduler{
		store:          cfg.Store,
		sources:        cfg.Sources,
		directory:      cfg.Directory,
		finalizer:      cfg.Finalizer,
		runner:         cfg.Runner,
		root:           cfg.Root,
		ffmpegPath:     cfg.FFmpegPath,
		tickInterval:   tick,
		captureTimeout: cfg.CaptureTimeout,
		logger:         logger,
		metrics:        cfg.Metrics,
		now:            now,
		states:         make(map[string]*cameraState),
	}
}

// Start launches the periodic driver. It is idempotent for the process
// lifetime: subsequent calls are no-ops.
func (s *Scheduler) Start(ctx context.Context) {
	if !s.started.CompareAndSwap(false, true) {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	s.logger.InfoContext(ctx, "timelapse scheduler starting",
		"tick_interval", s.tickInterval,
		"root", s.root,
	)

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.tickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				s.tick(runCtx)
			}
		}
	}()
}

// Stop halts the periodic driver and waits for the in-progress tick to
// return. Detached finalizations are abandoned, matching process-shutdown
// semantics: partially written artifacts are untrusted until a later
// successful run overwrites them.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
}

// tick advances the state machine of every enabled camera once.
func (s *Scheduler) tick(ctx context.Context) {
	settings, err := s.store.Load(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to load scheduler settings", "error", err)
		return
	}
	if settings.IntervalSeconds <= 0 || len(settings.EnabledCameraIDs) == 0 {
		return
	}

	streams, err := s.sources.StreamSources(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to resolve camera sources", "error", err)
		return
	}

	now := s.now()
	bucket := BucketID(now, settings.PeriodValue, settings.PeriodUnit)

	for _, cameraID := range settings.EnabledCameraIDs {
		source, ok := streams[cameraID]
		if !ok || source == "" {
			s.logger.DebugContext(ctx, "camera has no resolvable source, skipping",
				"camera_id", cameraID,
			)
			continue
		}
		s.advanceCamera(ctx, cameraID, source, bucket, now, settings)
	}

	if s.metrics != nil {
		s.metrics.SetTrackedCameras(len(s.states))
	}
}

// advanceCamera runs one camera through the per-tick state machine:
// initialize on first observation, roll the bucket when it changed, then
// capture a frame if the cadence says one is due.
func (s *Scheduler) advanceCamera(ctx context.Context, cameraID, source, bucket string, now time.Time, settings types.TimelapseSettings) {
	state, tracked := s.states[cameraID]
	switch {
	case !tracked:
		state = &cameraState{}
		state.reset(bucket, newJobID(s.resolveName(ctx, cameraID), now), now)
		s.states[cameraID] = state
		s.logger.InfoContext(ctx, "tracking camera",
			"camera_id", cameraID,
			"bucket", bucket,
			"job_id", state.jobID,
		)

	case state.bucket != bucket:
		closedJobID := state.jobID
		closedStartedAt := state.bucketStartedAt
		closedFrames := state.frameCount

		// Reset to the new bucket before dispatching finalize, so the
		// detached operation can never observe or touch the new bucket's
		// state. The two buckets share nothing on disk either: the old job
		// directory belongs to the closed job ID alone.
		state.reset(bucket, newJobID(s.resolveName(ctx, cameraID), now), now)

		s.logger.InfoContext(ctx, "bucket closed, dispatching finalization",
			"camera_id", cameraID,
			"closed_job_id", closedJobID,
			"frame_count", closedFrames,
			"new_bucket", bucket,
			"new_job_id", state.jobID,
		)

		// Fire-and-forget: a slow encode must not stall this tick, other
		// cameras, or the new bucket's captures. The finalize context is
		// detached from the tick's cancellation; shutdown abandons it.
		go func() {
			_ = s.finalizer.Finalize(context.WithoutCancel(ctx), cameraID, closedJobID, closedStartedAt)
		}()
	}

	interval := time.Duration(settings.IntervalSeconds) * time.Second
	if !state.lastCaptureAt.IsZero() && now.Sub(state.lastCaptureAt) < interval {
		return
	}

	if err := s.capture(ctx, cameraID, state, source); err != nil {
		// Transient: source unreachable, encoder nonzero exit, timeout.
		// State is untouched so the next tick retries.
		s.logger.ErrorContext(ctx, "frame capture failed",
			"camera_id", cameraID,
			"job_id", state.jobID,
			"error", err,
		)
		if s.metrics != nil {
			s.metrics.RecordCaptureFailure()
		}
		return
	}

	state.lastCaptureAt = now
	state.frameCount++
	if s.metrics != nil {
		s.metrics.RecordCapture()
	}
}

// capture extracts exactly one still frame from the camera's live source
// into the job's frames directory.
func (s *Scheduler) capture(ctx context.Context, cameraID string, state *cameraState, source string) error {
	framesDir := filepath.Join(s.root, state.jobID, framesDirName)
	if err := os.MkdirAll(framesDir, 0o755); err != nil {
		return fmt.Errorf("creating frames directory: %w", err)
	}

	// The next sequence number comes from disk, not from the in-memory
	// counter: a restart mid-bucket must not overwrite surviving frames.
	existing, err := countFrames(framesDir)
	if err != nil {
		return fmt.Errorf("counting existing frames: %w", err)
	}

	outPath := filepath.Join(framesDir, frameName(existing+1, ".jpg"))
	err = s.runner.Run(ctx, s.captureTimeout, s.ffmpegPath,
		"-y",
		"-i", source,
		"-frames:v", "1",
		"-q:v", "2",
		outPath,
	)
	if err != nil {
		return fmt.Errorf("extracting frame from %s: %w", cameraID, err)
	}

	s.logger.DebugContext(ctx, "frame captured",
		"camera_id", cameraID,
		"job_id", state.jobID,
		"frame", outPath,
	)
	return nil
}

// resolveName returns the camera's display name for job naming, falling back
// to the camera ID when the registry lookup fails. Resolution happens once
// per bucket, not per tick.
func (s *Scheduler) resolveName(ctx context.Context, cameraID string) string {
	if s.directory == nil {
		return cameraID
	}
	name, err := s.directory.DisplayName(ctx, cameraID)
	if err != nil || name == "" {
		return cameraID
	}
	return name
}
