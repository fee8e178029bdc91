// Package cmd provides the CLI commands for Sentinel Gate.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Sentinel-Gate/Sentinelgate/internal/adapter/inbound/admin"
	"github.com/Sentinel-Gate/Sentinelgate/internal/adapter/inbound/http"
	"github.com/Sentinel-Gate/Sentinelgate/internal/adapter/outbound/configwatch"
	"github.com/Sentinel-Gate/Sentinelgate/internal/adapter/outbound/upstream"
	"github.com/Sentinel-Gate/Sentinelgate/internal/config"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/respond"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/rewrite"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/route"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/rpc"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/sse"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the gateway",
	Long: `Start the Sentinel Gate gateway.

The gateway loads its resource configuration (routes, upstreams, services,
global rules, MCP services, SSL certs) from sentinel-gate.yaml, serves the
MCP streamable-HTTP and SSE transports to downstream clients, and
reverse-proxies unmatched requests through the route table.

Examples:
  # Start with config file settings
  sentinel-gate start

  # Start with a specific config file
  sentinel-gate --config /path/to/config.yaml start`,
	RunE: runStart,
}

var devMode bool

func init() {
	startCmd.Flags().BoolVar(&devMode, "dev", false, "Enable development mode (verbose logging)")
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigRaw()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if devMode {
		cfg.DevMode = true
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		stop() // Restore default signal handling: next Ctrl+C is a hard kill.
	}()

	logLevel := parseLogLevel(cfg.LogLevel)
	if cfg.DevMode {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	logger.Debug("log level configured", "level", cfg.LogLevel, "effective", logLevel.String())

	if configFile := config.ConfigFileUsed(); configFile != "" {
		logger.Info("loaded config", "file", configFile)
	}

	if err := run(ctx, cfg, logger); err != nil {
		return err
	}

	logger.Info("sentinel-gate stopped")
	return nil
}

// run wires the resource registry and the six domain components
// (route matcher, JSON-RPC dispatcher, tool-call rewriter, SSE bus,
// response adapter, upstream client) into the downstream-facing HTTP
// transport and the admin resource-management API, then serves until
// ctx is cancelled.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	startTime := time.Now().UTC()

	stopTracing, err := http.StartTracing(os.Stderr, cfg.DevMode, logger)
	if err != nil {
		return fmt.Errorf("failed to start tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := stopTracing(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown error", "error", err)
		}
	}()

	registry, err := cfg.Registry()
	if err != nil {
		return fmt.Errorf("failed to build resource registry: %w", err)
	}
	logger.Info("registry loaded",
		"routes", registry.Routes.Len(),
		"upstreams", registry.Upstreams.Len(),
		"services", registry.Services.Len(),
		"global_rules", registry.GlobalRules.Len(),
		"mcp_services", registry.MCPServices.Len(),
		"ssls", registry.SSLs.Len(),
	)

	rewriter := rewrite.New(registry)
	dispatcher := rpc.New(registry, rewriter, rpc.ServerInfo{
		Name:    "sentinel-gate",
		Version: Version,
	})
	bus := sse.NewBus()
	respondAdapter := respond.New(bus, logger)

	matcher := route.New()
	route.Rebuild(matcher, registry.Routes.Iter())
	registry.Routes.OnChange(func() {
		route.Rebuild(matcher, registry.Routes.Iter())
	})

	upstreamClient := upstream.NewClient()

	if configFile := config.ConfigFileUsed(); configFile != "" {
		watcher, err := configwatch.NewLocalWatcher(configFile, registry, logger)
		if err != nil {
			logger.Warn("config file watcher disabled", "error", err)
		} else {
			go func() {
				<-ctx.Done()
				_ = watcher.Close()
			}()
		}
	}
	if etcd := cfg.AccessPoint.Etcd; etcd != nil && len(etcd.Endpoints) > 0 {
		remoteWatcher := configwatch.NewRemoteWatcher(etcd.Endpoints[0], etcd.Prefix, registry, logger)
		go remoteWatcher.Run(ctx)
	}

	apiKey := ""
	if cfg.AccessPoint.Admin != nil {
		apiKey = cfg.AccessPoint.Admin.APIKey
	}
	apiHandler := admin.NewAdminAPIHandler(
		admin.WithRegistry(registry),
		admin.WithAPIKey(apiKey),
		admin.WithAPILogger(logger),
		admin.WithStartTime(startTime),
	)

	addr := "0.0.0.0:8080"
	if len(cfg.AccessPoint.Listeners) > 0 {
		addr = cfg.AccessPoint.Listeners[0].Address
	}

	healthChecker := http.NewHealthChecker(registry, bus, Version)

	transportOpts := []http.Option{
		http.WithAddr(addr),
		http.WithLogger(logger),
		http.WithHealthChecker(healthChecker),
		http.WithExtraHandler(apiHandler.Routes()),
	}

	transport := http.NewHTTPTransport(registry, dispatcher, bus, respondAdapter, matcher, upstreamClient, transportOpts...)

	printBanner(Version, addr, cfg.DevMode, registry.Upstreams.Len(), registry.Routes.Len(), registry.MCPServices.Len())

	logger.Info("sentinel-gate starting",
		"version", Version,
		"dev_mode", cfg.DevMode,
		"addr", addr,
	)

	return transport.Start(ctx)
}

// parseLogLevel converts a string log level to slog.Level.
// Returns slog.LevelInfo for unrecognized values.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// printBanner prints a formatted startup banner to stderr with version,
// listen address, mode, and resource counts.
func printBanner(version, addr string, devMode bool, upstreamCount, routeCount, mcpCount int) {
	const (
		reset  = "\033[0m"
		bold   = "\033[1m"
		cyan   = "\033[36m"
		green  = "\033[32m"
		yellow = "\033[33m"
		dim    = "\033[2m"
	)

	host := addr
	if strings.HasPrefix(addr, "0.0.0.0") {
		host = "localhost" + strings.TrimPrefix(addr, "0.0.0.0")
	}
	mcpURL := fmt.Sprintf("http://%s/mcp", host)
	adminURL := fmt.Sprintf("http://%s/admin", host)

	modeStr := green + "production" + reset
	if devMode {
		modeStr = yellow + "development" + reset
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  %s%s Sentinel Gate %s%s\n", bold, cyan, version, reset)
	fmt.Fprintf(os.Stderr, "  %s─────────────────────────────────────%s\n", dim, reset)
	fmt.Fprintf(os.Stderr, "  %-14s %s\n", "MCP:", mcpURL)
	fmt.Fprintf(os.Stderr, "  %-14s %s\n", "Admin API:", adminURL)
	fmt.Fprintf(os.Stderr, "  %-14s %s\n", "Mode:", modeStr)
	fmt.Fprintf(os.Stderr, "  %-14s %d configured\n", "Upstreams:", upstreamCount)
	fmt.Fprintf(os.Stderr, "  %-14s %d configured\n", "Routes:", routeCount)
	fmt.Fprintf(os.Stderr, "  %-14s %d configured\n", "MCP services:", mcpCount)
	fmt.Fprintf(os.Stderr, "  %s─────────────────────────────────────%s\n", dim, reset)
	fmt.Fprintf(os.Stderr, "\n")
}
