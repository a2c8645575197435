// Package metrics collects and exposes Prometheus metrics for the LotWatch
// service: timelapse pipeline counters (captures, finalizations, encode
// latency) and API request telemetry.
//
// The Collector owns a private prometheus.Registry so instances are fully
// scoped; tests can construct collectors freely without global registration
// conflicts.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns all Prometheus instruments for the service.
type Collector struct {
	registry *prometheus.Registry

	capturesTotal        prometheus.Counter
	captureFailuresTotal prometheus.Counter
	finalizeTotal        *prometheus.CounterVec
	encodeDuration       prometheus.Histogram
	trackedCameras       prometheus.Gauge

	requestDuration *prometheus.HistogramVec
}

// NewCollector creates a Collector with all instruments registered on a
// fresh registry.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		capturesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "timelapse_captures_total",
			Help: "Total number of still frames captured successfully",
		}),
		captureFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "timelapse_capture_failures_total",
			Help: "Total number of failed frame capture attempts",
		}),
		finalizeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "timelapse_finalize_total",
			Help: "Total number of bucket finalizations by outcome",
		}, []string{"outcome"}),
		encodeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "timelapse_encode_duration_seconds",
			Help:    "Wall-clock duration of timelapse encode invocations",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 900},
		}),
		trackedCameras: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "timelapse_tracked_cameras",
			Help: "Number of cameras currently tracked by the capture scheduler",
		}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "API request latency by method and status",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "status"}),
	}

	c.registry.MustRegister(
		c.capturesTotal,
		c.captureFailuresTotal,
		c.finalizeTotal,
		c.encodeDuration,
		c.trackedCameras,
		c.requestDuration,
	)

	return c
}

// Handler returns the HTTP handler serving the /metrics endpoint.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// RecordCapture increments the successful-capture counter.
func (c *Collector) RecordCapture() {
	c.capturesTotal.Inc()
}

// RecordCaptureFailure increments the failed-capture counter.
func (c *Collector) RecordCaptureFailure() {
	c.captureFailuresTotal.Inc()
}

// RecordFinalize records a finalization attempt. Outcome is one of
// "success", "failure", or "empty".
func (c *Collector) RecordFinalize(outcome string) {
	c.finalizeTotal.WithLabelValues(outcome).Inc()
}

// RecordEncodeDuration records the wall-clock duration of an encode run.
func (c *Collector) RecordEncodeDuration(d time.Duration) {
	c.encodeDuration.Observe(d.Seconds())
}

// SetTrackedCameras records the number of cameras the scheduler is tracking.
func (c *Collector) SetTrackedCameras(n int) {
	c.trackedCameras.Set(float64(n))
}

// RecordRequest records API request latency and count.
func (c *Collector) RecordRequest(method, status string, duration time.Duration) {
	c.requestDuration.WithLabelValues(method, status).Observe(duration.Seconds())
}
