package timelapse

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"lotwatch/internal/metrics"
)

// CameraDirectory resolves camera display names. The camera registry
// implements this; the finalizer falls back to the raw camera ID when the
// lookup fails so a registry outage cannot block finalization.
type CameraDirectory interface {
	DisplayName(ctx context.Context, cameraID string) (string, error)
}

// Finalizer converts a closed bucket's frame set into a single video
// artifact. A guard set keyed by job ID makes finalization exactly-once:
// concurrent invocations for the same job collapse into one encode.
type Finalizer struct {
	root          string
	ffmpegPath    string
	frameRate     int
	encodeTimeout time.Duration
	cleanupGrace  time.Duration

	directory CameraDirectory
	runner    Runner
	logger    *slog.Logger
	metrics   *metrics.Collector
	now       func() time.Time

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// FinalizerConfig holds the configuration for creating a Finalizer.
type FinalizerConfig struct {
	Root          string
	FFmpegPath    string
	FrameRate     int
	EncodeTimeout time.Duration
	CleanupGrace  time.Duration
	Directory     CameraDirectory
	Runner        Runner
	Logger        *slog.Logger
	Metrics       *metrics.Collector
	Now           func() time.Time
}

// NewFinalizer creates a Finalizer with the given configuration.
func NewFinalizer(cfg FinalizerConfig) *Finalizer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	frameRate := cfg.FrameRate
	if frameRate < 1 {
		frameRate = 30
	}
	return &Finalizer{
		root:          cfg.Root,
		ffmpegPath:    cfg.FFmpegPath,
		frameRate:     frameRate,
		encodeTimeout: cfg.EncodeTimeout,
		cleanupGrace:  cfg.CleanupGrace,
		directory:     cfg.Directory,
		runner:        cfg.Runner,
		logger:        logger,
		metrics:       cfg.Metrics,
		now:           now,
		inFlight:      make(map[string]struct{}),
	}
}

// Finalize closes the bucket identified by jobID: it renumbers the captured
// frames into a canonical sequence, moves them under the finalized job
// directory, encodes them into a single video, and cleans up intermediates.
//
// The scheduler invokes Finalize as a detached operation and never awaits it.
// If the job is already being finalized, Finalize returns immediately without
// error. An absent or empty frames directory is an expected no-op (a camera
// that never captured a frame in the bucket). Frames are never deleted before
// a successful encode, so any failure leaves them recoverable on disk.
func (f *Finalizer) Finalize(ctx context.Context, cameraID, jobID string, startedAt time.Time) error {
	if jobID == "" {
		// A missing job ID means the scheduler dispatched finalize for a
		// camera it never initialized. That is a bug, not an environmental
		// condition.
		return fmt.Errorf("finalize: empty job id for camera %q", cameraID)
	}

	if !f.acquire(jobID) {
		f.logger.InfoContext(ctx, "finalization already in progress, skipping",
			"camera_id", cameraID,
			"job_id", jobID,
		)
		return nil
	}
	defer f.release(jobID)

	err := f.finalize(ctx, cameraID, jobID, startedAt)
	if err != nil {
		f.logger.ErrorContext(ctx, "bucket finalization failed",
			"camera_id", cameraID,
			"job_id", jobID,
			"error", err,
		)
		if f.metrics != nil {
			f.metrics.RecordFinalize("failure")
		}
	}
	return err
}

// acquire inserts jobID into the guard set, returning false when already
// present.
func (f *Finalizer) acquire(jobID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.inFlight[jobID]; exists {
		return false
	}
	f.inFlight[jobID] = struct{}{}
	return true
}

// release removes jobID from the guard set. Runs on every Finalize exit path
// so a failed job is never permanently blocked from a later retry.
func (f *Finalizer) release(jobID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.inFlight, jobID)
}

// frameRename is one deferred second-phase rename during renumbering.
type frameRename struct {
	tmp    string
	target string
}

func (f *Finalizer) finalize(ctx context.Context, cameraID, jobID string, startedAt time.Time) error {
	srcDir := filepath.Join(f.root, jobID)
	framesDir := filepath.Join(srcDir, framesDirName)

	frames, err := listFrames(framesDir)
	if os.IsNotExist(err) {
		frames = nil
	} else if err != nil {
		return fmt.Errorf("listing frames for job %s: %w", jobID, err)
	}
	if len(frames) == 0 {
		f.logger.InfoContext(ctx, "no frames captured for bucket, nothing to assemble",
			"camera_id", cameraID,
			"job_id", jobID,
		)
		if f.metrics != nil {
			f.metrics.RecordFinalize("empty")
		}
		return nil
	}

	name := f.resolveName(ctx, cameraID)
	finalID := finalJobID(name, startedAt, f.now())
	finalDir := filepath.Join(f.root, finalID)

	// Renumber frames into the contiguous, consistently padded sequence the
	// encoder's pattern input requires. Renames go through a temporary name
	// first: in an inconsistently padded set a canonical target can match a
	// not-yet-processed source (frame_0000 beside frame_0001), and a direct
	// rename would overwrite that frame before the encode ever runs.
	var pending []frameRename
	for i, frame := range frames {
		target := frameName(i+1, frame.ext)
		if frame.name == target {
			continue
		}
		tmp := fmt.Sprintf("renumber_%04d%s", i+1, frame.ext)
		if err := os.Rename(filepath.Join(framesDir, frame.name), filepath.Join(framesDir, tmp)); err != nil {
			return fmt.Errorf("renumbering frame %s in job %s: %w", frame.name, jobID, err)
		}
		pending = append(pending, frameRename{tmp: tmp, target: target})
	}
	for _, r := range pending {
		if err := os.Rename(filepath.Join(framesDir, r.tmp), filepath.Join(framesDir, r.target)); err != nil {
			return fmt.Errorf("renumbering frame %s in job %s: %w", r.target, jobID, err)
		}
	}

	if err := os.MkdirAll(finalDir, 0o755); err != nil {
		return fmt.Errorf("creating final job directory %s: %w", finalID, err)
	}

	destFrames := filepath.Join(finalDir, framesDirName)
	if err := os.Rename(framesDir, destFrames); err != nil {
		// Rename can fail across filesystems; fall back to copy then delete
		// the source only after the copy fully succeeded.
		if copyErr := copyDir(framesDir, destFrames); copyErr != nil {
			return fmt.Errorf("moving frames for job %s: %w", jobID, copyErr)
		}
		if err := os.RemoveAll(framesDir); err != nil {
			f.logger.WarnContext(ctx, "failed to remove source frames after copy",
				"job_id", jobID,
				"error", err,
			)
		}
	}

	videoPath := filepath.Join(finalDir, finalID+".mp4")
	encodeStart := time.Now()
	err = f.runner.Run(ctx, f.encodeTimeout, f.ffmpegPath,
		"-y",
		"-framerate", strconv.Itoa(f.frameRate),
		"-i", framePattern(destFrames),
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		videoPath,
	)
	if f.metrics != nil {
		f.metrics.RecordEncodeDuration(time.Since(encodeStart))
	}
	if err != nil {
		return fmt.Errorf("encoding timelapse %s: %w", finalID, err)
	}

	// Success: remove the pre-rename job directory, then the frames after a
	// short grace delay in case the encoder still has files open.
	if srcDir != finalDir {
		if err := os.RemoveAll(srcDir); err != nil {
			f.logger.WarnContext(ctx, "failed to remove source job directory",
				"job_id", jobID,
				"error", err,
			)
		}
	}
	if f.cleanupGrace > 0 {
		time.Sleep(f.cleanupGrace)
	}
	if err := os.RemoveAll(destFrames); err != nil {
		f.logger.WarnContext(ctx, "failed to remove frames after encode",
			"job_id", finalID,
			"error", err,
		)
	}

	f.logger.InfoContext(ctx, "bucket finalized",
		"camera_id", cameraID,
		"job_id", jobID,
		"final_job_id", finalID,
		"frame_count", len(frames),
	)
	if f.metrics != nil {
		f.metrics.RecordFinalize("success")
	}
	return nil
}

// resolveName returns the camera's display name, falling back to the camera
// ID when the registry lookup fails.
func (f *Finalizer) resolveName(ctx context.Context, cameraID string) string {
	if f.directory == nil {
		return cameraID
	}
	name, err := f.directory.DisplayName(ctx, cameraID)
	if err != nil || name == "" {
		return cameraID
	}
	return name
}

// copyDir recursively copies src into dst. Used as the fallback when a
// cross-device rename fails.
func copyDir(src, dst string) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return err
	}
	for _, entry := range entries {
		srcPath := filepath.Join(src, entry.Name())
		dstPath := filepath.Join(dst, entry.Name())
		if entry.IsDir() {
			if err := copyDir(srcPath, dstPath); err != nil {
				return err
			}
			continue
		}
		if err := copyFile(srcPath, dstPath); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
