package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func scrape(t *testing.T, c *Collector) string {
	t.Helper()
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics endpoint status = %d", rec.Code)
	}
	return rec.Body.String()
}

func TestCollector_Exposition(t *testing.T) {
	c := NewCollector()

	c.RecordCapture()
	c.RecordCapture()
	c.RecordCaptureFailure()
	c.RecordFinalize("success")
	c.RecordFinalize("empty")
	c.RecordEncodeDuration(42 * time.Second)
	c.SetTrackedCameras(3)
	c.RecordRequest("GET", "200", 15*time.Millisecond)

	body := scrape(t, c)

	for _, want := range []string{
		"timelapse_captures_total 2",
		"timelapse_capture_failures_total 1",
		`timelapse_finalize_total{outcome="success"} 1`,
		`timelapse_finalize_total{outcome="empty"} 1`,
		"timelapse_tracked_cameras 3",
		"timelapse_encode_duration_seconds_count 1",
		`http_request_duration_seconds_count{method="GET",status="200"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}

func TestCollector_InstancesAreIsolated(t *testing.T) {
	a := NewCollector()
	b := NewCollector()

	a.RecordCapture()

	if body := scrape(t, b); strings.Contains(body, "timelapse_captures_total 1") {
		t.Error("collector instances share a registry")
	}
}
