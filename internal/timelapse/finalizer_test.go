package timelapse

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// ============================================================
// Mock Implementations
// ============================================================

// mockRunner records child process invocations instead of spawning them.
type mockRunner struct {
	mu    sync.Mutex
	calls [][]string
	err   error

	// entered is signalled (once) when Run begins; block, when set, delays
	// Run until closed. Used by the concurrency tests.
	entered chan struct{}
	block   chan struct{}

	// onRun, when set, runs inside Run with the full argv.
	onRun func(args []string) error
}

func (m *mockRunner) Run(_ context.Context, _ time.Duration, name string, args ...string) error {
	argv := append([]string{name}, args...)

	m.mu.Lock()
	m.calls = append(m.calls, argv)
	entered := m.entered
	m.entered = nil
	m.mu.Unlock()

	if entered != nil {
		close(entered)
	}
	if m.block != nil {
		<-m.block
	}
	if m.onRun != nil {
		if err := m.onRun(argv); err != nil {
			return err
		}
	}
	return m.err
}

func (m *mockRunner) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *mockRunner) lastCall() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return nil
	}
	return m.calls[len(m.calls)-1]
}

// mockDirectory is an in-memory camera registry.
type mockDirectory struct {
	names map[string]string
	err   error
}

func (m *mockDirectory) DisplayName(_ context.Context, cameraID string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	return m.names[cameraID], nil
}

// ============================================================
// Helpers
// ============================================================

func newTestFinalizer(t *testing.T, root string, runner Runner, dir CameraDirectory) *Finalizer {
	t.Helper()
	return NewFinalizer(FinalizerConfig{
		Root:          root,
		FFmpegPath:    "ffmpeg",
		FrameRate:     30,
		EncodeTimeout: time.Minute,
		CleanupGrace:  0,
		Directory:     dir,
		Runner:        runner,
		Logger:        testLogger(),
	})
}

// seedFrames writes frame files with the given names under the job's frames
// directory.
func seedFrames(t *testing.T, root, jobID string, names ...string) {
	t.Helper()
	framesDir := filepath.Join(root, jobID, framesDirName)
	if err := os.MkdirAll(framesDir, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(framesDir, name), []byte(name), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

// ============================================================
// Tests
// ============================================================

func TestFinalize_EmptyJobIDIsLoud(t *testing.T) {
	f := newTestFinalizer(t, t.TempDir(), &mockRunner{}, nil)

	err := f.Finalize(context.Background(), "cam-01", "", time.Now())
	if err == nil {
		t.Fatal("expected error for empty job ID")
	}
}

func TestFinalize_NoFramesIsNoOp(t *testing.T) {
	root := t.TempDir()
	runner := &mockRunner{}
	f := newTestFinalizer(t, root, runner, nil)

	// No job directory at all.
	if err := f.Finalize(context.Background(), "cam-01", "cam_1756600000000", time.Now()); err != nil {
		t.Fatalf("Finalize on missing job dir: %v", err)
	}
	// Frames directory exists but is empty.
	if err := os.MkdirAll(filepath.Join(root, "cam_2", framesDirName), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := f.Finalize(context.Background(), "cam-01", "cam_2", time.Now()); err != nil {
		t.Fatalf("Finalize on empty frames dir: %v", err)
	}

	if runner.callCount() != 0 {
		t.Errorf("encoder invoked %d times for empty buckets", runner.callCount())
	}
}

func TestFinalize_RenumbersAndEncodes(t *testing.T) {
	root := t.TempDir()
	start := time.UnixMilli(1_756_600_000_000)
	end := time.UnixMilli(1_756_603_600_000)
	jobID := "Lot_A_1756600000000"

	// Inconsistent padding and a gap, as left behind by a crashed process.
	seedFrames(t, root, jobID, "frame_2.jpg", "frame_10.jpg", "frame_0001.jpg")

	runner := &mockRunner{}
	var framesAtEncode []string
	runner.onRun = func(argv []string) error {
		// Snapshot the frames directory as the encoder would see it.
		finalDir := filepath.Dir(argv[len(argv)-1])
		entries, err := os.ReadDir(filepath.Join(finalDir, framesDirName))
		if err != nil {
			return err
		}
		for _, e := range entries {
			framesAtEncode = append(framesAtEncode, e.Name())
		}
		return nil
	}

	dir := &mockDirectory{names: map[string]string{"cam-01": "Lot A"}}
	f := NewFinalizer(FinalizerConfig{
		Root:          root,
		FFmpegPath:    "ffmpeg",
		FrameRate:     24,
		EncodeTimeout: time.Minute,
		Directory:     dir,
		Runner:        runner,
		Logger:        testLogger(),
		Now:           func() time.Time { return end },
	})

	if err := f.Finalize(context.Background(), "cam-01", jobID, start); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	finalID := "Lot_A_1756600000000_1756603600000"
	finalDir := filepath.Join(root, finalID)

	// Encoder saw the contiguous canonical sequence.
	want := []string{"frame_0001.jpg", "frame_0002.jpg", "frame_0003.jpg"}
	if len(framesAtEncode) != len(want) {
		t.Fatalf("encoder saw %v, want %v", framesAtEncode, want)
	}
	for i, name := range want {
		if framesAtEncode[i] != name {
			t.Errorf("framesAtEncode[%d] = %q, want %q", i, framesAtEncode[i], name)
		}
	}

	// Encoder argv: framerate and output path.
	argv := runner.lastCall()
	joined := strings.Join(argv, " ")
	if !strings.Contains(joined, "-framerate 24") {
		t.Errorf("argv missing framerate: %v", argv)
	}
	wantOut := filepath.Join(finalDir, finalID+".mp4")
	if argv[len(argv)-1] != wantOut {
		t.Errorf("output path = %q, want %q", argv[len(argv)-1], wantOut)
	}

	// Source job directory and intermediate frames are cleaned up.
	if _, err := os.Stat(filepath.Join(root, jobID)); !os.IsNotExist(err) {
		t.Error("source job directory survived a successful finalize")
	}
	if _, err := os.Stat(filepath.Join(finalDir, framesDirName)); !os.IsNotExist(err) {
		t.Error("frames directory survived a successful finalize")
	}
}

func TestFinalize_RenumberSurvivesCollidingNames(t *testing.T) {
	root := t.TempDir()
	end := time.UnixMilli(1_756_603_600_000)
	jobID := "cam-01_1756600000000"

	// A zero-based set: every frame's canonical target is the name of the
	// next frame, so a naive in-place rename would overwrite each one before
	// the encoder ever sees it.
	seedFrames(t, root, jobID, "frame_0000.jpg", "frame_0001.jpg", "frame_0002.jpg")

	runner := &mockRunner{}
	contentsAtEncode := map[string]string{}
	runner.onRun = func(argv []string) error {
		finalDir := filepath.Dir(argv[len(argv)-1])
		framesDir := filepath.Join(finalDir, framesDirName)
		entries, err := os.ReadDir(framesDir)
		if err != nil {
			return err
		}
		for _, e := range entries {
			data, err := os.ReadFile(filepath.Join(framesDir, e.Name()))
			if err != nil {
				return err
			}
			contentsAtEncode[e.Name()] = string(data)
		}
		return nil
	}

	f := NewFinalizer(FinalizerConfig{
		Root:          root,
		FFmpegPath:    "ffmpeg",
		EncodeTimeout: time.Minute,
		Runner:        runner,
		Logger:        testLogger(),
		Now:           func() time.Time { return end },
	})

	if err := f.Finalize(context.Background(), "cam-01", jobID, time.UnixMilli(1_756_600_000_000)); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	// Seeded frames carry their original filename as content, so the encoder
	// must see every source frame exactly once, shifted to one-based.
	want := map[string]string{
		"frame_0001.jpg": "frame_0000.jpg",
		"frame_0002.jpg": "frame_0001.jpg",
		"frame_0003.jpg": "frame_0002.jpg",
	}
	if len(contentsAtEncode) != len(want) {
		t.Fatalf("encoder saw %d frames %v, want %d", len(contentsAtEncode), contentsAtEncode, len(want))
	}
	for name, content := range want {
		if contentsAtEncode[name] != content {
			t.Errorf("frame %s content = %q, want %q", name, contentsAtEncode[name], content)
		}
	}
}

func TestFinalize_EncodeFailureKeepsFrames(t *testing.T) {
	root := t.TempDir()
	jobID := "cam-01_1756600000000"
	seedFrames(t, root, jobID, "frame_0001.jpg", "frame_0002.jpg")

	runner := &mockRunner{err: &ProcessError{Command: "ffmpeg", ExitCode: 1, Stderr: "moov atom not found"}}
	end := time.UnixMilli(1_756_603_600_000)
	f := NewFinalizer(FinalizerConfig{
		Root:          root,
		FFmpegPath:    "ffmpeg",
		EncodeTimeout: time.Minute,
		Runner:        runner,
		Logger:        testLogger(),
		Now:           func() time.Time { return end },
	})

	err := f.Finalize(context.Background(), "cam-01", jobID, time.UnixMilli(1_756_600_000_000))
	if err == nil {
		t.Fatal("expected encode failure to propagate")
	}

	// The frames moved under the final job directory and must still be there.
	finalID := "cam-01_1756600000000_1756603600000"
	frames, listErr := listFrames(filepath.Join(root, finalID, framesDirName))
	if listErr != nil {
		t.Fatalf("frames directory gone after failed encode: %v", listErr)
	}
	if len(frames) != 2 {
		t.Errorf("expected 2 surviving frames, got %d", len(frames))
	}

	// The guard set was released: a retry reaches the encoder again.
	runner.err = nil
	if retryErr := f.Finalize(context.Background(), "cam-01", finalID, time.UnixMilli(1_756_600_000_000)); retryErr != nil {
		t.Fatalf("retry after failure: %v", retryErr)
	}
	if runner.callCount() != 2 {
		t.Errorf("encoder invoked %d times, want 2 (original + retry)", runner.callCount())
	}
}

func TestFinalize_ExactlyOnce(t *testing.T) {
	root := t.TempDir()
	jobID := "cam-01_1756600000000"
	seedFrames(t, root, jobID, "frame_0001.jpg")

	runner := &mockRunner{
		entered: make(chan struct{}),
		block:   make(chan struct{}),
	}
	f := newTestFinalizer(t, root, runner, nil)

	firstDone := make(chan error, 1)
	go func() {
		firstDone <- f.Finalize(context.Background(), "cam-01", jobID, time.Now())
	}()

	// Wait until the first invocation is inside the encoder, holding the guard.
	select {
	case <-runner.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("first finalize never reached the encoder")
	}

	// A concurrent duplicate must return immediately without encoding.
	if err := f.Finalize(context.Background(), "cam-01", jobID, time.Now()); err != nil {
		t.Fatalf("duplicate Finalize: %v", err)
	}
	if n := runner.callCount(); n != 1 {
		t.Errorf("encoder invoked %d times while guarded, want 1", n)
	}

	close(runner.block)
	if err := <-firstDone; err != nil {
		t.Fatalf("first Finalize: %v", err)
	}
}

func TestFinalize_RegistryOutageFallsBackToCameraID(t *testing.T) {
	root := t.TempDir()
	jobID := "cam-01_1756600000000"
	seedFrames(t, root, jobID, "frame_0001.jpg")

	runner := &mockRunner{}
	dir := &mockDirectory{err: errors.New("registry down")}
	end := time.UnixMilli(1_756_603_600_000)
	f := NewFinalizer(FinalizerConfig{
		Root:          root,
		FFmpegPath:    "ffmpeg",
		EncodeTimeout: time.Minute,
		Directory:     dir,
		Runner:        runner,
		Logger:        testLogger(),
		Now:           func() time.Time { return end },
	})

	if err := f.Finalize(context.Background(), "cam-01", jobID, time.UnixMilli(1_756_600_000_000)); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	argv := runner.lastCall()
	out := argv[len(argv)-1]
	if !strings.Contains(out, "cam-01_1756600000000_1756603600000") {
		t.Errorf("output %q does not use the camera ID fallback", out)
	}
}
