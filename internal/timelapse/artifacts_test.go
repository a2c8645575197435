package timelapse

import (
	"archive/tar"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
)

// seedArtifact creates a finalized job directory with its video file.
func seedArtifact(t *testing.T, root, jobID string, size int, modTime time.Time) {
	t.Helper()
	dir := filepath.Join(root, jobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, jobID+".mp4")
	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(path, modTime, modTime); err != nil {
		t.Fatal(err)
	}
}

func TestListArtifacts_MissingRoot(t *testing.T) {
	artifacts, err := ListArtifacts(filepath.Join(t.TempDir(), "nope"))
	if err != nil {
		t.Fatalf("ListArtifacts on missing root: %v", err)
	}
	if len(artifacts) != 0 {
		t.Errorf("expected no artifacts, got %d", len(artifacts))
	}
}

func TestListArtifacts_SortedNewestFirst(t *testing.T) {
	root := t.TempDir()
	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	seedArtifact(t, root, "lot_a_1_2", 100, base)
	seedArtifact(t, root, "lot_b_3_4", 200, base.Add(time.Hour))

	// In-progress job: frames but no video. Must not appear.
	seedFrames(t, root, "lot_c_5", "frame_0001.jpg")
	// Stray file at the root. Must not appear.
	if err := os.WriteFile(filepath.Join(root, "settings.json"), []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	artifacts, err := ListArtifacts(root)
	if err != nil {
		t.Fatalf("ListArtifacts: %v", err)
	}
	if len(artifacts) != 2 {
		t.Fatalf("expected 2 artifacts, got %d: %+v", len(artifacts), artifacts)
	}
	if artifacts[0].JobID != "lot_b_3_4" || artifacts[1].JobID != "lot_a_1_2" {
		t.Errorf("artifacts not sorted newest first: %+v", artifacts)
	}
	if artifacts[0].FileName != "lot_b_3_4.mp4" {
		t.Errorf("FileName = %q", artifacts[0].FileName)
	}
	if artifacts[0].SizeBytes != 200 {
		t.Errorf("SizeBytes = %d, want 200", artifacts[0].SizeBytes)
	}
}

func TestListOrphans(t *testing.T) {
	root := t.TempDir()

	seedFrames(t, root, "orphan_b", "frame_0001.jpg")
	seedFrames(t, root, "orphan_a", "frame_0001.jpg", "frame_0002.jpg")
	seedArtifact(t, root, "finalized_1_2", 10, time.Now())
	// Empty job directory: nothing worth salvaging.
	if err := os.MkdirAll(filepath.Join(root, "empty_job", framesDirName), 0o755); err != nil {
		t.Fatal(err)
	}

	orphans, err := ListOrphans(root)
	if err != nil {
		t.Fatalf("ListOrphans: %v", err)
	}
	want := []string{"orphan_a", "orphan_b"}
	if len(orphans) != len(want) {
		t.Fatalf("orphans = %v, want %v", orphans, want)
	}
	for i := range want {
		if orphans[i] != want[i] {
			t.Errorf("orphans[%d] = %q, want %q", i, orphans[i], want[i])
		}
	}
}

func TestArchiveJob_RoundTrip(t *testing.T) {
	root := t.TempDir()
	jobID := "orphan_1756600000000"
	seedFrames(t, root, jobID, "frame_0001.jpg", "frame_0002.jpg")

	archivePath, err := ArchiveJob(root, jobID)
	if err != nil {
		t.Fatalf("ArchiveJob: %v", err)
	}
	if archivePath != filepath.Join(root, jobID+".tar.zst") {
		t.Errorf("archive path = %q", archivePath)
	}
	if _, err := os.Stat(filepath.Join(root, jobID)); !os.IsNotExist(err) {
		t.Error("job directory survived archiving")
	}

	// The archive must contain every frame, rooted at the job ID.
	f, err := os.Open(archivePath)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	zr, err := zstd.NewReader(f)
	if err != nil {
		t.Fatalf("opening zstd stream: %v", err)
	}
	defer zr.Close()

	names := map[string]bool{}
	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("reading tar: %v", err)
		}
		names[hdr.Name] = true
	}
	for _, want := range []string{
		jobID + "/frames/frame_0001.jpg",
		jobID + "/frames/frame_0002.jpg",
	} {
		if !names[want] {
			t.Errorf("archive missing %q; has %v", want, names)
		}
	}
}

func TestArchiveJob_MissingJob(t *testing.T) {
	if _, err := ArchiveJob(t.TempDir(), "nope"); err == nil {
		t.Fatal("expected error for missing job directory")
	}
}
