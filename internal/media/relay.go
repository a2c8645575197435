// Package media implements the client for the external streaming relay.
// The relay serves the live camera feeds; LotWatch only queries its config
// API to resolve the capturable source endpoint for each registered camera.
package media

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"

	"lotwatch/internal/types"
)

// maxResponseBytes caps relay config responses to guard against a
// misconfigured base URL pointing at an arbitrary endpoint.
const maxResponseBytes = 4 << 20 // 4 MB

// systemConfig is the relay's config document: live stream source URLs and
// display metadata, both keyed by camera ID.
type systemConfig struct {
	Streams  map[string]string     `json:"streams"`
	Metadata map[string]cameraMeta `json:"metadata"`
}

type cameraMeta struct {
	Name string `json:"name"`
}

// RelayClient queries the streaming relay's config API. All calls go through
// a circuit breaker so a dead relay fails fast instead of stalling every
// scheduler tick on connect timeouts.
type RelayClient struct {
	baseURL string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[*http.Response]
	logger  *slog.Logger
}

// NewRelayClient creates a RelayClient for the relay at baseURL (no trailing
// slash). The timeout bounds each individual config request.
func NewRelayClient(baseURL string, timeout time.Duration, logger *slog.Logger) *RelayClient {
	cb := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        "streaming-relay",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	})

	return &RelayClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		breaker: cb,
		logger:  logger,
	}
}

// StreamSources returns the live source URL for every camera the relay knows
// about, keyed by camera ID. Cameras absent from the map have no capturable
// feed right now and are skipped by the capture scheduler.
func (c *RelayClient) StreamSources(ctx context.Context) (map[string]string, error) {
	cfg, err := c.readConfig(ctx)
	if err != nil {
		return nil, err
	}
	return cfg.Streams, nil
}

// DisplayName resolves a camera's display name from the relay metadata.
// Returns an empty string without error when the relay has no metadata for
// the camera; callers fall back to the camera ID.
func (c *RelayClient) DisplayName(ctx context.Context, cameraID string) (string, error) {
	cfg, err := c.readConfig(ctx)
	if err != nil {
		return "", err
	}
	return cfg.Metadata[cameraID].Name, nil
}

// readConfig fetches and decodes the relay's config document.
func (c *RelayClient) readConfig(ctx context.Context) (*systemConfig, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/config", nil)
	if err != nil {
		return nil, fmt.Errorf("media: building relay config request: %w", err)
	}

	resp, err := c.breaker.Execute(func() (*http.Response, error) {
		resp, err := c.client.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			resp.Body.Close()
			return nil, fmt.Errorf("relay returned status %d", resp.StatusCode)
		}
		return resp, nil
	})
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamRelay, "streaming relay unavailable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, types.NewAppError(types.ErrCodeUpstreamRelay,
			fmt.Sprintf("streaming relay returned status %d", resp.StatusCode), nil)
	}

	var cfg systemConfig
	body := io.LimitReader(resp.Body, maxResponseBytes)
	if err := json.NewDecoder(body).Decode(&cfg); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamRelay, "failed to decode relay config", err)
	}

	return &cfg, nil
}
