package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/resource"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/sse"
)

func TestHealthChecker_Healthy(t *testing.T) {
	reg := resource.NewRegistry()
	bus := sse.NewBus()

	hc := NewHealthChecker(reg, bus, "test-version")
	health := hc.Check()

	if health.Status != "healthy" {
		t.Errorf("Status = %q, want healthy", health.Status)
	}
	if health.Version != "test-version" {
		t.Errorf("Version = %q, want test-version", health.Version)
	}
	if health.Checks["sse_bus"] != "ok: 0 subscribers" {
		t.Errorf("sse_bus check = %q, want 'ok: 0 subscribers'", health.Checks["sse_bus"])
	}
}

func TestHealthChecker_NilBus(t *testing.T) {
	reg := resource.NewRegistry()
	hc := NewHealthChecker(reg, nil, "")
	health := hc.Check()

	if health.Status != "healthy" {
		t.Errorf("Status = %q, want healthy", health.Status)
	}
	if health.Checks["sse_bus"] != "not configured" {
		t.Errorf("sse_bus = %q, want 'not configured'", health.Checks["sse_bus"])
	}
}

func TestHealthChecker_NilRegistry(t *testing.T) {
	hc := NewHealthChecker(nil, nil, "")
	health := hc.Check()

	if health.Status != "unhealthy" {
		t.Errorf("Status = %q, want unhealthy when registry is unavailable", health.Status)
	}
	if health.Checks["registry"] != "not configured" {
		t.Errorf("registry = %q, want 'not configured'", health.Checks["registry"])
	}
}

func TestHealthChecker_Handler_HTTP(t *testing.T) {
	reg := resource.NewRegistry()
	hc := NewHealthChecker(reg, sse.NewBus(), "1.0.0")

	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()

	hc.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("Status code = %d, want %d", rec.Code, http.StatusOK)
	}

	contentType := rec.Header().Get("Content-Type")
	if contentType != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", contentType)
	}

	var resp HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if resp.Status != "healthy" {
		t.Errorf("Response status = %q, want healthy", resp.Status)
	}
	if resp.Version != "1.0.0" {
		t.Errorf("Response version = %q, want 1.0.0", resp.Version)
	}
}

func TestHealthChecker_Handler_Unhealthy_503(t *testing.T) {
	hc := NewHealthChecker(nil, nil, "")

	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()

	hc.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Status code = %d, want %d (503 Service Unavailable)", rec.Code, http.StatusServiceUnavailable)
	}

	var resp HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if resp.Status != "unhealthy" {
		t.Errorf("Response status = %q, want unhealthy", resp.Status)
	}
}

func TestHealthChecker_GoroutineCount(t *testing.T) {
	hc := NewHealthChecker(resource.NewRegistry(), sse.NewBus(), "")
	health := hc.Check()

	if health.Checks["goroutines"] == "" {
		t.Error("goroutines check should be present")
	}
	if health.Checks["goroutines"] == "0" {
		t.Error("goroutines count should be > 0")
	}
}
