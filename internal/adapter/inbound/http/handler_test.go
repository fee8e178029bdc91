package http

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Sentinel-Gate/Sentinelgate/internal/adapter/outbound/upstream"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/resource"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/respond"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/rewrite"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/route"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/rpc"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/sse"
)

// discardLogger returns a logger that discards all output (for tests).
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newEmptyMatcher() *route.Matcher {
	m := route.New()
	route.Rebuild(m, nil)
	return m
}

func newTestServer() *mcpServer {
	registry := resource.NewRegistry()
	rewriter := rewrite.New(registry)
	dispatcher := rpc.New(registry, rewriter, rpc.ServerInfo{Name: "sentinelgate", Version: "test"})
	bus := sse.NewBus()
	return &mcpServer{
		registry:   registry,
		dispatcher: dispatcher,
		bus:        bus,
		respond:    respond.New(bus, discardLogger()),
		upstream:   upstream.NewClient(),
	}
}

func TestDecodeEnvelope_EmptyBody(t *testing.T) {
	_, errFrame := decodeEnvelope(nil)
	code, msg := parseJSONRPCError(t, errFrame)
	if code != -32700 {
		t.Errorf("error code = %d, want -32700", code)
	}
	if !strings.Contains(msg, "empty request body") {
		t.Errorf("error message = %q, want it to contain 'empty request body'", msg)
	}
}

func TestDecodeEnvelope_InvalidJSON(t *testing.T) {
	_, errFrame := decodeEnvelope([]byte("{not valid json}"))
	code, msg := parseJSONRPCError(t, errFrame)
	if code != -32700 {
		t.Errorf("error code = %d, want -32700", code)
	}
	if !strings.Contains(msg, "invalid JSON") {
		t.Errorf("error message = %q, want it to contain 'invalid JSON'", msg)
	}
}

func TestDecodeEnvelope_MissingJsonrpcVersion(t *testing.T) {
	_, errFrame := decodeEnvelope([]byte(`{"method":"test","id":1}`))
	code, msg := parseJSONRPCError(t, errFrame)
	if code != -32600 {
		t.Errorf("error code = %d, want -32600", code)
	}
	if !strings.Contains(msg, "jsonrpc") {
		t.Errorf("error message = %q, want it to contain 'jsonrpc'", msg)
	}
}

func TestDecodeEnvelope_MissingMethod(t *testing.T) {
	_, errFrame := decodeEnvelope([]byte(`{"jsonrpc":"2.0","id":1}`))
	code, msg := parseJSONRPCError(t, errFrame)
	if code != -32600 {
		t.Errorf("error code = %d, want -32600", code)
	}
	if !strings.Contains(msg, "method") {
		t.Errorf("error message = %q, want it to contain 'method'", msg)
	}
}

func TestDecodeEnvelope_Valid(t *testing.T) {
	env, errFrame := decodeEnvelope([]byte(`{"jsonrpc":"2.0","method":"ping","id":1}`))
	if errFrame != nil {
		t.Fatalf("unexpected error frame: %s", errFrame)
	}
	if env.Method != "ping" {
		t.Errorf("method = %q, want ping", env.Method)
	}
}

// parseJSONRPCError is a test helper that parses a JSON-RPC error response body.
func parseJSONRPCError(t *testing.T, body []byte) (code int, message string) {
	t.Helper()
	type rpcErr struct {
		JSONRPC string `json:"jsonrpc"`
		Error   struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	var resp rpcErr
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("failed to parse JSON-RPC error response: %v\nbody: %s", err, body)
	}
	return resp.Error.Code, resp.Error.Message
}

func TestStreamablePost_Initialize(t *testing.T) {
	srv := newTestServer()
	body := `{"jsonrpc":"2.0","method":"initialize","id":1}`
	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	srv.streamableHandler("").ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d, want %d, body=%s", rec.Code, http.StatusOK, rec.Body.String())
	}
	if rec.Header().Get(MCPSessionIDHeader) == "" {
		t.Error("expected a minted Mcp-Session-Id header on initialize")
	}
}

func TestStreamablePost_Notification(t *testing.T) {
	srv := newTestServer()
	body := `{"jsonrpc":"2.0","method":"notifications/initialized"}`
	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	srv.streamableHandler("").ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Errorf("status code = %d, want %d", rec.Code, http.StatusAccepted)
	}
}

func TestStreamablePost_ToolNotFound(t *testing.T) {
	srv := newTestServer()
	body := `{"jsonrpc":"2.0","method":"tools/call","id":2,"params":{"name":"missing","arguments":{}}}`
	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	srv.streamableHandler("").ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d, want %d", rec.Code, http.StatusOK)
	}
	if !strings.Contains(rec.Body.String(), "Tool not found") {
		t.Errorf("body = %q, want it to mention 'Tool not found'", rec.Body.String())
	}
}

func TestStreamableDelete_MissingSessionID(t *testing.T) {
	srv := newTestServer()
	req := httptest.NewRequest(http.MethodDelete, "/mcp", nil)
	rec := httptest.NewRecorder()

	srv.streamableHandler("").ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status code = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestMessagesHandler_AlwaysAccepted(t *testing.T) {
	srv := newTestServer()
	body := `{"jsonrpc":"2.0","method":"tools/list","id":3}`
	req := httptest.NewRequest(http.MethodPost, "/messages/?session_id=abc", strings.NewReader(body))
	rec := httptest.NewRecorder()

	srv.messagesHandler("").ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Errorf("status code = %d, want %d", rec.Code, http.StatusAccepted)
	}
	if rec.Body.String() != "Accepted" {
		t.Errorf("body = %q, want Accepted", rec.Body.String())
	}
}

func TestMessagesHandler_MissingSessionID(t *testing.T) {
	srv := newTestServer()
	req := httptest.NewRequest(http.MethodPost, "/messages/", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()

	srv.messagesHandler("").ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status code = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestHandleOptions_CORS(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "/mcp", nil)
	rec := httptest.NewRecorder()

	handleOptions(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("status code = %d, want %d", rec.Code, http.StatusNoContent)
	}
	if rec.Header().Get("Access-Control-Allow-Methods") == "" {
		t.Error("expected Access-Control-Allow-Methods header")
	}
}

func TestStreamableHandler_UnsupportedMethod(t *testing.T) {
	srv := newTestServer()
	methods := []string{http.MethodPatch, http.MethodPut, http.MethodHead}

	for _, method := range methods {
		t.Run(method, func(t *testing.T) {
			req := httptest.NewRequest(method, "/mcp", nil)
			rec := httptest.NewRecorder()

			srv.streamableHandler("").ServeHTTP(rec, req)

			if rec.Code != http.StatusMethodNotAllowed {
				t.Errorf("%s: status code = %d, want %d", method, rec.Code, http.StatusMethodNotAllowed)
			}
		})
	}
}

func TestPassthroughHandler_NoMatch(t *testing.T) {
	registry := resource.NewRegistry()
	h := &passthroughHandler{
		registry: registry,
		matcher:  newEmptyMatcher(),
		upstream: upstream.NewClient(),
		logger:   discardLogger(),
	}

	req := httptest.NewRequest(http.MethodGet, "/unmatched", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status code = %d, want %d", rec.Code, http.StatusNotFound)
	}
}
