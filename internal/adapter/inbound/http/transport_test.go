package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Sentinel-Gate/Sentinelgate/internal/adapter/outbound/upstream"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/resource"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/respond"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/rewrite"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/rpc"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/sse"
)

// markerHandler returns an http.Handler that writes a specific marker string.
func markerHandler(marker string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Handler", marker)
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, marker)
	})
}

// newTestTransport creates an HTTPTransport wired to empty-but-real domain
// components, suitable for routing-focused tests.
func newTestTransport(t *testing.T, extraHandler http.Handler) *HTTPTransport {
	t.Helper()
	logger := slog.Default()
	registry := resource.NewRegistry()
	rewriter := rewrite.New(registry)
	dispatcher := rpc.New(registry, rewriter, rpc.ServerInfo{Name: "sentinelgate", Version: "test"})
	bus := sse.NewBus()
	matcher := newEmptyMatcher()

	opts := []Option{
		WithAddr(":0"),
		WithLogger(logger),
	}
	if extraHandler != nil {
		opts = append(opts, WithExtraHandler(extraHandler))
	}

	return NewHTTPTransport(registry, dispatcher, bus, respond.New(bus, logger), matcher, upstream.NewClient(), opts...)
}

func TestRouting_MCPRoute(t *testing.T) {
	transport := newTestTransport(t, nil)
	mux, cleanup := buildRoutingMux(t, transport)
	defer cleanup()

	req := httptest.NewRequest(http.MethodOptions, "/mcp", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("OPTIONS /mcp status = %d, want %d", rec.Code, http.StatusNoContent)
	}
}

func TestRouting_AdminRouteMarker(t *testing.T) {
	transport := newTestTransport(t, markerHandler("admin"))

	mux, cleanup := buildRoutingMux(t, transport)
	defer cleanup()

	req := httptest.NewRequest(http.MethodGet, "/admin/api/v1/system/info", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Header().Get("X-Handler") != "admin" {
		t.Errorf("admin route handler = %q, want admin", rec.Header().Get("X-Handler"))
	}
}

func TestRouting_HealthRoute(t *testing.T) {
	transport := newTestTransport(t, nil)
	mux, cleanup := buildRoutingMux(t, transport)
	defer cleanup()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("GET /health status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestRouting_PassthroughFallback404(t *testing.T) {
	transport := newTestTransport(t, nil)
	mux, cleanup := buildRoutingMux(t, transport)
	defer cleanup()

	req := httptest.NewRequest(http.MethodGet, "/nonexistent/path", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("GET /nonexistent/path status = %d, want %d (no route configured)", rec.Code, http.StatusNotFound)
	}
}

func TestRouting_MCPAndSSEPaths(t *testing.T) {
	transport := newTestTransport(t, nil)
	mux, cleanup := buildRoutingMux(t, transport)
	defer cleanup()

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodOptions, "/mcp", http.StatusNoContent},
		{http.MethodDelete, "/mcp", http.StatusBadRequest}, // no Mcp-Session-Id header
		{http.MethodPost, "/messages/?session_id=x", http.StatusAccepted},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

// buildRoutingMux registers the global-scope admin, health, MCP, SSE and
// passthrough routes that Start() registers, without starting a real
// listener, so routing can be exercised via httptest. It leaves out Start()'s
// middleware chain, /metrics, /favicon.ico and the tenant-scoped routes.
func buildRoutingMux(t *testing.T, transport *HTTPTransport) (http.Handler, func()) {
	t.Helper()

	srv := &mcpServer{
		registry:   transport.registry,
		dispatcher: transport.dispatcher,
		bus:        transport.bus,
		respond:    transport.respond,
		upstream:   transport.upstreamClient,
	}
	passthrough := &passthroughHandler{
		registry: transport.registry,
		matcher:  transport.matcher,
		upstream: transport.upstreamClient,
		logger:   transport.logger,
	}

	mux := http.NewServeMux()
	if transport.extraHandler != nil {
		mux.Handle("/admin/", transport.extraHandler)
		mux.Handle("/admin", transport.extraHandler)
	}
	mux.Handle("/health", healthHandler())
	mux.Handle("/mcp", srv.streamableHandler(""))
	mux.Handle("/mcp/", srv.streamableHandler(""))
	mux.Handle("/sse", srv.sseHandler(""))
	mux.Handle("/messages", srv.messagesHandler(""))
	mux.Handle("/messages/", srv.messagesHandler(""))
	mux.Handle("/", passthrough)

	return mux, func() {}
}

func TestWithExtraHandler_Option(t *testing.T) {
	handler := markerHandler("test-admin")
	transport := &HTTPTransport{}
	opt := WithExtraHandler(handler)
	opt(transport)

	if transport.extraHandler == nil {
		t.Fatal("WithExtraHandler did not set extraHandler")
	}
}

func TestTransport_StartAndShutdown(t *testing.T) {
	transport := newTestTransport(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- transport.Start(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Start() returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start() did not return within 5 seconds after cancel")
	}
}
