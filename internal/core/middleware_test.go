package core

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"lotwatch/internal/config"
	"lotwatch/internal/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testConfig() *config.Config {
	return &config.Config{
		Environment: "local",
		Service:     "lotwatch",
		Server: config.ServerConfig{
			Port:               "8080",
			CorsAllowedOrigins: []string{"*"},
		},
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	srv, err := NewServer(testConfig(), testLogger())
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return srv
}

func TestRequestIDMiddleware_Propagates(t *testing.T) {
	var seen string
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = types.GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "inbound-id")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if seen != "inbound-id" {
		t.Errorf("context request ID = %q, want inbound-id", seen)
	}
	if got := rec.Header().Get("X-Request-ID"); got != "inbound-id" {
		t.Errorf("response header = %q, want inbound-id", got)
	}
}

func TestRequestIDMiddleware_Generates(t *testing.T) {
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	id := rec.Header().Get("X-Request-ID")
	if id == "" {
		t.Fatal("no request ID generated")
	}
	if len(id) != 32 {
		t.Errorf("generated ID %q is not a 16-byte hex token", id)
	}
}

func TestContextTimeoutMiddleware(t *testing.T) {
	var deadline time.Time
	var ok bool
	handler := ContextTimeoutMiddleware(5 * time.Second)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		deadline, ok = r.Context().Deadline()
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if !ok {
		t.Fatal("request context carries no deadline")
	}
	if remaining := time.Until(deadline); remaining > 5*time.Second || remaining < 4*time.Second {
		t.Errorf("deadline %v from now, want ~5s", remaining)
	}
}

func TestRequestTimeout_ConfigAndFallback(t *testing.T) {
	srv := newTestServer(t)
	if got := srv.requestTimeout(); got != defaultRequestTimeout {
		t.Errorf("requestTimeout = %v, want default %v", got, defaultRequestTimeout)
	}

	srv.Config.Server.RequestTimeout = 3 * time.Second
	if got := srv.requestTimeout(); got != 3*time.Second {
		t.Errorf("requestTimeout = %v, want 3s", got)
	}
}

func TestRecoverer(t *testing.T) {
	srv := newTestServer(t)
	handler := srv.Recoverer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	var body APIErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding error envelope: %v", err)
	}
	if body.Error.Code != string(types.ErrCodeInternalUnexpected) {
		t.Errorf("error code = %q", body.Error.Code)
	}
	if strings.Contains(body.Error.Message, "boom") {
		t.Error("panic detail leaked to the client")
	}
}

func TestCORSMiddleware(t *testing.T) {
	t.Run("allow all", func(t *testing.T) {
		handler := NewCORSMiddleware([]string{"*"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", "https://dashboard.example")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
			t.Errorf("Allow-Origin = %q, want *", got)
		}
	})

	t.Run("allowlist match", func(t *testing.T) {
		handler := NewCORSMiddleware([]string{"https://dashboard.example"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", "https://dashboard.example")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://dashboard.example" {
			t.Errorf("Allow-Origin = %q", got)
		}
	})

	t.Run("allowlist miss", func(t *testing.T) {
		handler := NewCORSMiddleware([]string{"https://dashboard.example"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", "https://evil.example")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
			t.Errorf("Allow-Origin = %q for disallowed origin", got)
		}
	})

	t.Run("preflight", func(t *testing.T) {
		called := false
		handler := NewCORSMiddleware([]string{"*"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
		}))
		req := httptest.NewRequest(http.MethodOptions, "/", nil)
		req.Header.Set("Origin", "https://dashboard.example")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusNoContent {
			t.Errorf("preflight status = %d, want 204", rec.Code)
		}
		if called {
			t.Error("preflight reached the handler chain")
		}
	})
}

// recordingCollector captures RecordRequest calls.
type recordingCollector struct {
	mu       sync.Mutex
	methods  []string
	statuses []string
}

func (c *recordingCollector) RecordRequest(method, status string, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.methods = append(c.methods, method)
	c.statuses = append(c.statuses, status)
}

func TestMetricsMiddleware(t *testing.T) {
	srv := newTestServer(t)
	collector := &recordingCollector{}
	srv.Metrics = collector

	handler := srv.MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/events", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if len(collector.statuses) != 1 || collector.statuses[0] != "404" {
		t.Errorf("recorded statuses = %v, want [404]", collector.statuses)
	}
	if collector.methods[0] != http.MethodPost {
		t.Errorf("recorded method = %q", collector.methods[0])
	}
}

// failingPinger simulates an unreachable dependency.
type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("connection refused") }

// okPinger reports healthy.
type okPinger struct{}

func (okPinger) Ping(context.Context) error { return nil }

func TestHandleHealth(t *testing.T) {
	srv := newTestServer(t)
	srv.RegisterHealthProbe("database", okPinger{})

	rec := httptest.NewRecorder()
	srv.HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("healthy status = %d, want 200", rec.Code)
	}

	srv.RegisterHealthProbe("relay", failingPinger{})
	rec = httptest.NewRecorder()
	srv.HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("unhealthy status = %d, want 503", rec.Code)
	}
}
