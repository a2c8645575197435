package timelapse

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// maxStderrBytes bounds the diagnostic output kept from a failed child
// process so a chatty encoder cannot blow up log entries.
const maxStderrBytes = 4096

// Runner spawns an external process with an enforced wall-clock timeout.
// Implementations report success or a structured failure; child output is
// captured only for the failure case.
type Runner interface {
	Run(ctx context.Context, timeout time.Duration, name string, args ...string) error
}

// ProcessError is the structured failure report for a child process: the
// command, its exit code (or -1 when unknown), whether the timeout fired,
// and the tail of its stderr.
type ProcessError struct {
	Command  string
	ExitCode int
	TimedOut bool
	Stderr   string
	Err      error
}

// Error implements the error interface.
func (e *ProcessError) Error() string {
	if e.TimedOut {
		return fmt.Sprintf("%s timed out: %s", e.Command, e.Stderr)
	}
	return fmt.Sprintf("%s exited with code %d: %s", e.Command, e.ExitCode, e.Stderr)
}

// Unwrap returns the underlying exec error.
func (e *ProcessError) Unwrap() error {
	return e.Err
}

// IsTimeout reports whether err is a ProcessError caused by the enforced
// wall-clock timeout.
func IsTimeout(err error) bool {
	var pe *ProcessError
	return errors.As(err, &pe) && pe.TimedOut
}

// ExecRunner runs child processes via os/exec. The context deadline
// force-terminates the child; a timeout is reported as a ProcessError, not
// a crash.
type ExecRunner struct {
	logger *slog.Logger
}

// NewExecRunner creates an ExecRunner.
func NewExecRunner(logger *slog.Logger) *ExecRunner {
	return &ExecRunner{logger: logger}
}

// Run executes name with args, killing the child once timeout elapses.
// Success output is discarded to avoid log noise; stderr is captured into
// the returned ProcessError on failure only.
func (r *ExecRunner) Run(ctx context.Context, timeout time.Duration, name string, args ...string) error {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	if err == nil {
		return nil
	}

	pe := &ProcessError{
		Command:  name,
		ExitCode: -1,
		TimedOut: errors.Is(runCtx.Err(), context.DeadlineExceeded),
		Stderr:   tailString(stderr.String(), maxStderrBytes),
		Err:      err,
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		pe.ExitCode = exitErr.ExitCode()
	}

	r.logger.ErrorContext(ctx, "child process failed",
		"command", name,
		"exit_code", pe.ExitCode,
		"timed_out", pe.TimedOut,
		"duration", time.Since(start),
	)

	return pe
}

// tailString returns the last max bytes of s, trimmed of surrounding
// whitespace.
func tailString(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return s[len(s)-max:]
}
