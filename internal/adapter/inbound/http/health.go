package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/resource"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/sse"
)

// HealthResponse is the JSON response from the /health endpoint.
type HealthResponse struct {
	Status  string            `json:"status"`            // "healthy" or "unhealthy"
	Checks  map[string]string `json:"checks"`            // Component check results
	Version string            `json:"version,omitempty"` // Optional version info
}

// HealthChecker verifies component health: registry reachability and the
// SSE bus's current subscriber load.
type HealthChecker struct {
	registry *resource.Registry
	bus      *sse.Bus
	version  string
}

// NewHealthChecker creates a HealthChecker. Pass a nil bus if the split SSE
// transport is disabled.
func NewHealthChecker(registry *resource.Registry, bus *sse.Bus, version string) *HealthChecker {
	return &HealthChecker{registry: registry, bus: bus, version: version}
}

// Check performs health checks on all components.
func (h *HealthChecker) Check() HealthResponse {
	checks := make(map[string]string)
	healthy := true

	if h.registry != nil {
		routes := h.registry.Routes.Len()
		upstreams := h.registry.Upstreams.Len()
		checks["registry"] = fmt.Sprintf("ok: %d routes, %d upstreams", routes, upstreams)
	} else {
		checks["registry"] = "not configured"
		healthy = false
	}

	if h.bus != nil {
		checks["sse_bus"] = fmt.Sprintf("ok: %d subscribers", h.bus.Count())
	} else {
		checks["sse_bus"] = "not configured"
	}

	checks["goroutines"] = fmt.Sprintf("%d", runtime.NumGoroutine())

	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}

	return HealthResponse{
		Status:  status,
		Checks:  checks,
		Version: h.version,
	}
}

// Handler returns an HTTP handler for the health endpoint.
func (h *HealthChecker) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		health := h.Check()

		w.Header().Set("Content-Type", "application/json")
		if health.Status != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}

		_ = json.NewEncoder(w).Encode(health)
	})
}
