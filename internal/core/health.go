package core

import (
	"context"
	"net/http"
	"time"
)

// healthCheckTimeout is the maximum time allowed for the health probes.
const healthCheckTimeout = 2 * time.Second

// Pinger is satisfied by *pgxpool.Pool and any dependency that can report
// liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// healthResponse is the JSON response body for the health check endpoint.
type healthResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components,omitempty"`
}

// RegisterHealthProbe adds a named liveness probe checked by GET /health.
func (s *Server) RegisterHealthProbe(name string, p Pinger) {
	if s.healthProbes == nil {
		s.healthProbes = map[string]Pinger{}
	}
	s.healthProbes[name] = p
}

// HandleHealth reports service liveness. Returns 200 when every registered
// probe succeeds within the deadline, 503 otherwise. The endpoint is public.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	resp := healthResponse{Status: "healthy", Components: map[string]string{}}
	status := http.StatusOK

	for name, probe := range s.healthProbes {
		if err := probe.Ping(ctx); err != nil {
			resp.Components[name] = "unhealthy"
			resp.Status = "unhealthy"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Components[name] = "healthy"
	}

	JSON(w, r, status, resp)
}
