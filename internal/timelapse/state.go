package timelapse

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// framesDirName is the subdirectory of a job directory holding captured
// stills while the bucket is open.
const framesDirName = "frames"

// cameraState is the per-camera scheduler state. All fields are always
// present; the struct is created on the first tick that observes the camera
// enabled and reset wholesale on every bucket transition. It is mutated only
// from the scheduler's tick goroutine.
type cameraState struct {
	bucket          string
	jobID           string
	lastCaptureAt   time.Time
	frameCount      int
	bucketStartedAt time.Time
}

// reset moves the state to a fresh bucket, discarding all capture-position
// bookkeeping of the previous one.
func (s *cameraState) reset(bucket, jobID string, startedAt time.Time) {
	s.bucket = bucket
	s.jobID = jobID
	s.lastCaptureAt = time.Time{}
	s.frameCount = 0
	s.bucketStartedAt = startedAt
}

// unsafeNameChars matches every character that may not appear in a
// filesystem-safe job name token.
var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// normalizeName converts a camera display name into a filesystem-safe token
// used in job and artifact names.
func normalizeName(name string) string {
	token := unsafeNameChars.ReplaceAllString(strings.TrimSpace(name), "_")
	token = strings.Trim(token, "_")
	if token == "" {
		return "camera"
	}
	return token
}

// newJobID builds the working job identifier for a bucket that starts
// capturing at startedAt.
func newJobID(name string, startedAt time.Time) string {
	return fmt.Sprintf("%s_%d", normalizeName(name), startedAt.UnixMilli())
}

// finalJobID builds the finalized job identifier covering [startedAt, endedAt].
func finalJobID(name string, startedAt, endedAt time.Time) string {
	return fmt.Sprintf("%s_%d_%d", normalizeName(name), startedAt.UnixMilli(), endedAt.UnixMilli())
}

// JobStartTime extracts the bucket start time embedded in a job identifier.
// Open jobs carry one trailing millis token (name_start); finalized jobs
// carry two (name_start_end). Numeric tokens shorter than twelve digits are
// treated as part of the camera name, not timestamps. Returns false when the
// ID carries no timestamp token.
func JobStartTime(jobID string) (time.Time, bool) {
	parts := strings.Split(jobID, "_")
	var millis []int64
	for i := len(parts) - 1; i >= 0 && len(millis) < 2; i-- {
		if len(parts[i]) < 12 {
			break
		}
		v, err := strconv.ParseInt(parts[i], 10, 64)
		if err != nil {
			break
		}
		millis = append(millis, v)
	}
	if len(millis) == 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(millis[len(millis)-1]).UTC(), true
}

// frameNameRe extracts the numeric sequence token from a frame filename.
// Padding is deliberately not assumed consistent: frames written by older
// builds or repaired by operators sort by numeric value, not lexically.
var frameNameRe = regexp.MustCompile(`^frame_(\d+)(\.[A-Za-z0-9]+)?$`)

// frameFile is one captured still inside a frames directory.
type frameFile struct {
	name string
	seq  int
	ext  string
}

// listFrames returns the frame files in dir sorted by their numeric sequence
// token. Non-frame entries are ignored. A missing directory propagates the
// os.IsNotExist error for the caller to treat as an empty bucket.
func listFrames(dir string) ([]frameFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var frames []frameFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m := frameNameRe.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		seq, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		frames = append(frames, frameFile{name: entry.Name(), seq: seq, ext: m[2]})
	}

	sort.Slice(frames, func(i, j int) bool { return frames[i].seq < frames[j].seq })
	return frames, nil
}

// countFrames returns the number of frame files in dir, tolerating a missing
// directory (zero frames).
func countFrames(dir string) (int, error) {
	frames, err := listFrames(dir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return len(frames), nil
}

// frameName formats the canonical frame filename for a sequence number.
func frameName(seq int, ext string) string {
	if ext == "" {
		ext = ".jpg"
	}
	return fmt.Sprintf("frame_%04d%s", seq, ext)
}

// framePattern returns the encoder's pattern-based input path for a frames
// directory.
func framePattern(dir string) string {
	return filepath.Join(dir, "frame_%04d.jpg")
}
