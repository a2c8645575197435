package timelapse

import (
	"context"
	"errors"
	"runtime"
	"strings"
	"testing"
	"time"
)

func skipWithoutShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
}

func TestExecRunner_Success(t *testing.T) {
	skipWithoutShell(t)
	r := NewExecRunner(testLogger())

	if err := r.Run(context.Background(), 5*time.Second, "true"); err != nil {
		t.Fatalf("Run(true): %v", err)
	}
}

func TestExecRunner_ExitCodeAndStderr(t *testing.T) {
	skipWithoutShell(t)
	r := NewExecRunner(testLogger())

	err := r.Run(context.Background(), 5*time.Second, "sh", "-c", "echo encoder blew up >&2; exit 3")
	if err == nil {
		t.Fatal("expected error for nonzero exit")
	}

	var pe *ProcessError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ProcessError, got %T: %v", err, err)
	}
	if pe.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", pe.ExitCode)
	}
	if pe.TimedOut {
		t.Error("TimedOut = true for a plain nonzero exit")
	}
	if !strings.Contains(pe.Stderr, "encoder blew up") {
		t.Errorf("Stderr = %q, want captured diagnostic", pe.Stderr)
	}
}

func TestExecRunner_Timeout(t *testing.T) {
	skipWithoutShell(t)
	r := NewExecRunner(testLogger())

	start := time.Now()
	err := r.Run(context.Background(), 100*time.Millisecond, "sleep", "10")
	elapsed := time.Since(start)

	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !IsTimeout(err) {
		t.Errorf("IsTimeout = false for %v", err)
	}
	if elapsed > 5*time.Second {
		t.Errorf("timeout was not enforced: child ran for %v", elapsed)
	}
}

func TestIsTimeout_OtherErrors(t *testing.T) {
	if IsTimeout(errors.New("plain")) {
		t.Error("IsTimeout(plain error) = true")
	}
	if IsTimeout(&ProcessError{ExitCode: 1}) {
		t.Error("IsTimeout(nonzero exit) = true")
	}
	if !IsTimeout(&ProcessError{TimedOut: true}) {
		t.Error("IsTimeout(timed out) = false")
	}
}
