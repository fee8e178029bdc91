// Package integration exercises the wired gateway end to end: a real HTTP
// listener serving the MCP streamable transport, routed through the
// dispatcher/rewriter/upstream-client chain against a real REST upstream
// test server, the same shape of test this package held for the proxy the
// gateway's own component set replaced.
package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	gwhttp "github.com/Sentinel-Gate/Sentinelgate/internal/adapter/inbound/http"
	"github.com/Sentinel-Gate/Sentinelgate/internal/adapter/outbound/upstream"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/resource"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/respond"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/rewrite"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/route"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/rpc"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/sse"
)

// testLogger returns a logger that writes to stderr at error level (quiet tests).
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// freeAddr reserves an ephemeral localhost port and returns its address,
// closing the listener immediately so HTTPTransport.Start can bind it.
func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserve port: %v", err)
	}
	addr := l.Addr().String()
	_ = l.Close()
	return addr
}

// restUpstream is a minimal REST backend recording the last request it saw,
// standing in for the OpenAPI-described upstream a real MCPService targets.
type restUpstream struct {
	*httptest.Server
	lastPath   string
	lastMethod string
}

func newRESTUpstream(t *testing.T) *restUpstream {
	t.Helper()
	ru := &restUpstream{}
	ru.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ru.lastPath = r.URL.Path
		ru.lastMethod = r.Method
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"id": r.URL.Query().Get("id"), "content": "hello world"})
	}))
	t.Cleanup(ru.Close)
	return ru
}

// gatewayFixture wires a full Registry/rewriter/dispatcher/transport stack,
// the same construction sequence start.go's run() performs, against one
// REST upstream and one tool binding.
type gatewayFixture struct {
	addr     string
	registry *resource.Registry
	cancel   func()
	done     chan error
}

func newGatewayFixture(t *testing.T, up *restUpstream) *gatewayFixture {
	t.Helper()
	logger := testLogger()

	host := up.Listener.Addr().String()
	registry := resource.NewRegistry()
	registry.Upstreams.Insert(&resource.Upstream{
		ID:    "files-api",
		Nodes: map[string]int{host: 1},
	})
	registry.RouteMetas.Replace("", map[string]*resource.RouteMeta{
		"get_file": {
			OperationID: "get_file",
			Method:      "GET",
			URITemplate: "/files/{id}",
			UpstreamID:  "files-api",
			Kind:        resource.RouteMetaTool,
			Description: "Fetch a file's metadata",
		},
	})

	rewriter := rewrite.New(registry)
	dispatcher := rpc.New(registry, rewriter, rpc.ServerInfo{Name: "sentinel-gate-test", Version: "test"})
	bus := sse.NewBus()
	respondAdapter := respond.New(bus, logger)
	matcher := route.New()
	upstreamClient := upstream.NewClient()

	addr := freeAddr(t)
	transport := gwhttp.NewHTTPTransport(registry, dispatcher, bus, respondAdapter, matcher, upstreamClient,
		gwhttp.WithAddr(addr),
		gwhttp.WithLogger(logger),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- transport.Start(ctx) }()
	waitForListener(t, addr)

	return &gatewayFixture{addr: addr, registry: registry, cancel: cancel, done: done}
}

func (f *gatewayFixture) stop(t *testing.T) {
	t.Helper()
	f.cancel()
	select {
	case err := <-f.done:
		if err != nil {
			t.Errorf("transport.Start returned error on shutdown: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("transport did not shut down within 5 seconds")
	}
}

// waitForListener polls addr until it accepts connections or the test times
// out, avoiding a fixed sleep racing the goroutine that calls Start.
func waitForListener(t *testing.T, addr string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 50*time.Millisecond)
		if err == nil {
			_ = conn.Close()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("gateway listener at %s never came up", addr)
}

// TestMCPStreamableFullPath_ToolCallForwardsToUpstream validates the full
// chain: POST /mcp tools/call -> dispatcher hands off to the rewriter ->
// rewriter interpolates the RouteMeta's URI template and binds the upstream
// -> upstream client forwards a real GET to the REST test server -> response
// adapter wraps the REST JSON body back into a tools/call result.
func TestMCPStreamableFullPath_ToolCallForwardsToUpstream(t *testing.T) {
	rest := newRESTUpstream(t)
	gw := newGatewayFixture(t, rest)
	defer gw.stop(t)

	reqBody := []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"get_file","arguments":{"id":"42"}}}`)
	resp, err := http.Post(fmt.Sprintf("http://%s/mcp", gw.addr), "application/json", bytes.NewReader(reqBody))
	if err != nil {
		t.Fatalf("POST /mcp: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var frame struct {
		Result struct {
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&frame); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if rest.lastMethod != http.MethodGet {
		t.Errorf("upstream saw method %q, want GET", rest.lastMethod)
	}
	if rest.lastPath != "/files/42" {
		t.Errorf("upstream saw path %q, want /files/42 (URI template interpolation failed)", rest.lastPath)
	}
	if len(frame.Result.Content) != 1 {
		t.Fatalf("result content length = %d, want 1", len(frame.Result.Content))
	}
	if want := `hello world`; !bytes.Contains([]byte(frame.Result.Content[0].Text), []byte(want)) {
		t.Errorf("result text = %q, want it to contain %q", frame.Result.Content[0].Text, want)
	}
}

// TestMCPStreamableFullPath_ToolsListReflectsRouteMetas validates that
// tools/list surfaces exactly the RouteMeta entries the registry carries,
// without ever reaching the REST upstream.
func TestMCPStreamableFullPath_ToolsListReflectsRouteMetas(t *testing.T) {
	rest := newRESTUpstream(t)
	gw := newGatewayFixture(t, rest)
	defer gw.stop(t)

	reqBody := []byte(`{"jsonrpc":"2.0","id":7,"method":"tools/list"}`)
	resp, err := http.Post(fmt.Sprintf("http://%s/mcp", gw.addr), "application/json", bytes.NewReader(reqBody))
	if err != nil {
		t.Fatalf("POST /mcp: %v", err)
	}
	defer resp.Body.Close()

	var frame struct {
		Result struct {
			Tools []struct {
				Name string `json:"name"`
			} `json:"tools"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&frame); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if len(frame.Result.Tools) != 1 || frame.Result.Tools[0].Name != "get_file" {
		t.Fatalf("tools/list = %+v, want exactly [get_file]", frame.Result.Tools)
	}
	if rest.lastPath != "" {
		t.Errorf("tools/list should never reach the REST upstream, but it saw path %q", rest.lastPath)
	}
}

// TestMCPStreamableFullPath_UnknownToolReturnsLocalError validates that an
// unresolvable tool name short-circuits in the rewriter (handled=true) and
// never reaches the upstream client.
func TestMCPStreamableFullPath_UnknownToolReturnsLocalError(t *testing.T) {
	rest := newRESTUpstream(t)
	gw := newGatewayFixture(t, rest)
	defer gw.stop(t)

	reqBody := []byte(`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"does_not_exist","arguments":{}}}`)
	resp, err := http.Post(fmt.Sprintf("http://%s/mcp", gw.addr), "application/json", bytes.NewReader(reqBody))
	if err != nil {
		t.Fatalf("POST /mcp: %v", err)
	}
	defer resp.Body.Close()

	var frame struct {
		Result struct {
			IsError bool `json:"isError"`
			Content []struct {
				Text string `json:"text"`
			} `json:"content"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&frame); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if !frame.Result.IsError {
		t.Errorf("result.isError = false, want true for an unknown tool")
	}
	if rest.lastPath != "" {
		t.Errorf("unknown tool should never reach the REST upstream, but it saw path %q", rest.lastPath)
	}
}
