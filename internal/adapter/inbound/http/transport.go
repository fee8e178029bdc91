// Package http provides the HTTP transport adapter for the proxy.
package http

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net/http"
	"time"

	"github.com/Sentinel-Gate/Sentinelgate/internal/adapter/outbound/upstream"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/resource"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/respond"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/route"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/rpc"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/sse"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTPTransport is the inbound adapter that serves the MCP wire dialects to
// downstream clients and reverse-proxies anything else via the route table.
type HTTPTransport struct {
	registry       *resource.Registry
	dispatcher     *rpc.Dispatcher
	bus            *sse.Bus
	respond        *respond.Adapter
	matcher        *route.Matcher
	upstreamClient *upstream.Client

	server         *http.Server
	addr           string
	allowedOrigins []string
	certFile       string
	keyFile        string
	logger         *slog.Logger
	extraHandler   http.Handler
	metrics        *Metrics
	healthChecker  *HealthChecker
}

// Option is a functional option for configuring HTTPTransport.
type Option func(*HTTPTransport)

// WithAddr sets the listen address for the HTTP server.
// Default is "127.0.0.1:8080" (localhost only).
func WithAddr(addr string) Option {
	return func(t *HTTPTransport) { t.addr = addr }
}

// WithTLS enables TLS with the provided certificate and key files.
// If not set, the server runs without TLS (plain HTTP).
func WithTLS(certFile, keyFile string) Option {
	return func(t *HTTPTransport) {
		t.certFile = certFile
		t.keyFile = keyFile
	}
}

// WithAllowedOrigins sets the allowed origins for DNS rebinding protection.
// If empty, all requests with an Origin header are blocked (local-only mode).
func WithAllowedOrigins(origins []string) Option {
	return func(t *HTTPTransport) { t.allowedOrigins = origins }
}

// WithLogger sets the logger for the HTTP transport.
func WithLogger(logger *slog.Logger) Option {
	return func(t *HTTPTransport) { t.logger = logger }
}

// WithExtraHandler adds an extra HTTP handler consulted for /admin/... paths.
func WithExtraHandler(h http.Handler) Option {
	return func(t *HTTPTransport) { t.extraHandler = h }
}

// WithHealthChecker sets the health checker for the /health endpoint.
func WithHealthChecker(hc *HealthChecker) Option {
	return func(t *HTTPTransport) { t.healthChecker = hc }
}

// NewHTTPTransport wires the route matcher, JSON-RPC dispatcher, SSE bus,
// response adapter, and outbound upstream client into a downstream-facing
// HTTP server.
func NewHTTPTransport(
	registry *resource.Registry,
	dispatcher *rpc.Dispatcher,
	bus *sse.Bus,
	respondAdapter *respond.Adapter,
	matcher *route.Matcher,
	upstreamClient *upstream.Client,
	opts ...Option,
) *HTTPTransport {
	t := &HTTPTransport{
		registry:       registry,
		dispatcher:     dispatcher,
		bus:            bus,
		respond:        respondAdapter,
		matcher:        matcher,
		upstreamClient: upstreamClient,
		addr:           "127.0.0.1:8080",
		allowedOrigins: []string{},
		logger:         slog.Default(),
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// Start begins accepting HTTP connections and processing MCP messages.
// It blocks until the context is cancelled or an error occurs.
func (t *HTTPTransport) Start(ctx context.Context) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	t.metrics = NewMetrics(reg)

	srv := &mcpServer{
		registry:   t.registry,
		dispatcher: t.dispatcher,
		bus:        t.bus,
		respond:    t.respond,
		upstream:   t.upstreamClient,
	}
	passthrough := &passthroughHandler{
		registry: t.registry,
		matcher:  t.matcher,
		upstream: t.upstreamClient,
		logger:   t.logger,
	}

	// Middleware chain (outermost first): Metrics -> RequestID -> RealIP -> DNSRebinding.
	// There is no client-facing auth layer on the MCP channel; the admin
	// channel authenticates separately via its own x-api-key middleware.
	wrap := func(h http.Handler) http.Handler {
		h = DNSRebindingProtection(t.allowedOrigins)(h)
		h = RealIPMiddleware(h)
		h = RequestIDMiddleware(t.logger)(h)
		h = MetricsMiddleware(t.metrics)(h)
		return h
	}

	mux := http.NewServeMux()
	if t.extraHandler != nil {
		mux.Handle("/admin/", t.extraHandler)
		mux.Handle("/admin", t.extraHandler)
	}
	if t.healthChecker != nil {
		mux.Handle("/health", t.healthChecker.Handler())
	} else {
		mux.Handle("/health", healthHandler())
	}
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.Handle("/favicon.ico", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	// Streamable HTTP transport, global and tenant-scoped.
	mux.Handle("/mcp", wrap(srv.streamableHandler("")))
	mux.Handle("/mcp/", wrap(srv.streamableHandler("")))
	mux.Handle("/api/{tenant}/mcp", wrap(tenantHandler(srv.streamableHandler)))
	mux.Handle("/api/{tenant}/mcp/", wrap(tenantHandler(srv.streamableHandler)))

	// Split SSE transport, global and tenant-scoped.
	mux.Handle("/sse", wrap(srv.sseHandler("")))
	mux.Handle("/messages", wrap(srv.messagesHandler("")))
	mux.Handle("/messages/", wrap(srv.messagesHandler("")))
	mux.Handle("/api/{tenant}/sse", wrap(tenantHandler(srv.sseHandler)))
	mux.Handle("/api/{tenant}/messages", wrap(tenantHandler(srv.messagesHandler)))
	mux.Handle("/api/{tenant}/messages/", wrap(tenantHandler(srv.messagesHandler)))

	// Anything else: reverse-proxy against the configured route table.
	mux.Handle("/", wrap(passthrough))

	t.server = &http.Server{Addr: t.addr, Handler: mux}

	if t.certFile != "" && t.keyFile != "" {
		t.server.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if t.certFile != "" && t.keyFile != "" {
			t.logger.Info("starting HTTPS server", "addr", t.addr)
			err = t.server.ListenAndServeTLS(t.certFile, t.keyFile)
		} else {
			t.logger.Info("starting HTTP server", "addr", t.addr)
			err = t.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		t.logger.Info("context cancelled, shutting down HTTP server")
		return t.shutdown()
	case err := <-errCh:
		return err
	}
}

// tenantHandler adapts a (tenant string) http.Handler factory into a plain
// http.Handler that reads the {tenant} path value set by the enhanced mux.
func tenantHandler(factory func(tenant string) http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		factory(r.PathValue("tenant")).ServeHTTP(w, r)
	})
}

// shutdown performs graceful shutdown of the HTTP server.
func (t *HTTPTransport) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	t.bus.CloseAll()

	if err := t.server.Shutdown(ctx); err != nil {
		t.logger.Error("error during server shutdown", "error", err)
		return err
	}

	t.logger.Info("HTTP server shutdown complete")
	return nil
}

// Close gracefully shuts down the transport.
func (t *HTTPTransport) Close() error {
	if t.server == nil {
		return nil
	}
	return t.shutdown()
}
