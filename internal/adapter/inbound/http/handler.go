package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Sentinel-Gate/Sentinelgate/internal/adapter/outbound/upstream"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/proxycontext"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/resource"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/respond"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/route"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/rpc"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/sse"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/validation"
	"github.com/Sentinel-Gate/Sentinelgate/pkg/mcp"
	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// MCPProtocolVersion is the MCP protocol version this handler supports.
const MCPProtocolVersion = "2024-11-05"

// maxRequestBodySize is the maximum allowed request body size (1 MB).
const maxRequestBodySize = 1 << 20

// MCPSessionIDHeader is the header carrying the streamable-transport session id.
const MCPSessionIDHeader = "Mcp-Session-Id"

// MCPProtocolVersionHeader is the header for protocol version.
const MCPProtocolVersionHeader = "MCP-Protocol-Version"

// mcpServer bundles the dispatch pipeline the MCP handlers share: the
// registry, the JSON-RPC dispatcher, the SSE bus, the upstream response
// adapter, and the outbound client that actually talks to the resolved
// upstream.
type mcpServer struct {
	registry   *resource.Registry
	dispatcher *rpc.Dispatcher
	bus        *sse.Bus
	respond    *respond.Adapter
	upstream   *upstream.Client
}

// rpcEnvelope is the subset of a JSON-RPC frame the transport needs before
// handing params off to the dispatcher.
type rpcEnvelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// messageValidator runs MCP-specific structural checks (method known,
// id/result/error shape) on every inbound frame, ahead of dispatch.
var messageValidator = validation.NewMessageValidator()

// decodeEnvelope validates and decodes one JSON-RPC request body, producing
// the parse/invalid-request error frames a JSON-RPC 2.0 server must return.
// Decoding goes through pkg/mcp.WrapMessage (jsonrpc.DecodeMessage under
// it), and the decoded frame is run through messageValidator before the
// dispatcher ever sees it.
func decodeEnvelope(body []byte) (rpcEnvelope, []byte) {
	if len(body) == 0 {
		return rpcEnvelope{}, rpc.BuildError(nil, rpc.CodeParseError, "Parse error: empty request body")
	}

	msg, err := mcp.WrapMessage(body, mcp.ClientToServer)
	if err != nil {
		if !json.Valid(body) {
			return rpcEnvelope{}, rpc.BuildError(nil, rpc.CodeParseError, "Parse error: invalid JSON")
		}
		return rpcEnvelope{}, rpc.BuildError(nil, rpc.CodeInvalidRequest, "Invalid Request: missing or invalid jsonrpc version or id")
	}

	req, ok := msg.Decoded.(*jsonrpc.Request)
	if !ok {
		return rpcEnvelope{}, rpc.BuildError(nil, rpc.CodeInvalidRequest, "Invalid Request: expected a JSON-RPC request with a method")
	}

	if verr := messageValidator.Validate(msg); verr != nil {
		var valErr *validation.ValidationError
		if errors.As(verr, &valErr) {
			return rpcEnvelope{}, rpc.BuildError(req.ID.Raw(), valErr.Code, valErr.Message)
		}
		return rpcEnvelope{}, rpc.BuildError(req.ID.Raw(), rpc.CodeInvalidRequest, "Invalid Request")
	}

	return rpcEnvelope{JSONRPC: "2.0", ID: req.ID.Raw(), Method: req.Method, Params: req.Params}, nil
}

// readBody applies the payload size limit and reads the full request body.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, []byte) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer func() { _ = r.Body.Close() }()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return nil, rpc.BuildError(nil, rpc.CodeParseError, "Parse error: request body too large (max 1MB)")
		}
		return nil, rpc.BuildError(nil, rpc.CodeParseError, "Parse error: failed to read request body")
	}
	return body, nil
}

// resolveForTool handles a tools/call the dispatcher could not resolve
// locally: it forwards ctx (already rewritten) to the bound upstream and
// adapts the HTTP response back into a JSON-RPC frame or SSE publish.
func (s *mcpServer) resolveForTool(r *http.Request, ctx *proxycontext.ProxyContext) []byte {
	up, err := s.registry.ResolveUpstream(ctx.UpstreamID, "", nil)
	if err != nil {
		frame := rpc.BuildError(ctx.RPCRequestID, rpc.CodeInternalError, "Internal error")
		if ctx.IsOldTransport() {
			s.bus.Publish(sse.Event{SessionID: ctx.SessionID, Name: "message", Data: frame})
			return []byte("Accepted")
		}
		return frame
	}

	resp, err := s.upstream.Forward(r.Context(), ctx, up)
	if err != nil {
		frame := rpc.BuildError(ctx.RPCRequestID, rpc.CodeInternalError, "Internal error")
		if ctx.IsOldTransport() {
			s.bus.Publish(sse.Event{SessionID: ctx.SessionID, Name: "message", Data: frame})
			return []byte("Accepted")
		}
		return frame
	}

	ctx.ContentEncoding = resp.ContentEncoding
	outcome := s.respond.Adapt(ctx, resp.Body, resp.ContentEncoding)
	return outcome.Body
}

// dispatch runs one decoded JSON-RPC request through the dispatcher, and
// through the rewriter/upstream-forward path when it hands a tools/call off
// upstream. The whole call is wrapped in a span so a tools/call that hops
// out to an upstream and one served entirely from the registry both show up
// on the same trace, with the upstream hop as a nested span (Forward has
// its own instrumentation point, not added here to keep this package from
// reaching into the upstream client's internals).
func (s *mcpServer) dispatch(r *http.Request, ctx *proxycontext.ProxyContext, env rpcEnvelope) []byte {
	spanCtx, span := requestTracer().Start(r.Context(), "mcp.dispatch", trace.WithAttributes(
		dispatchAttributes(ctx.Tenant, env.Method)...,
	))
	defer span.End()
	r = r.WithContext(spanCtx)

	response, forwardUpstream := s.dispatcher.Dispatch(ctx, env.Method, env.ID, env.Params)
	if forwardUpstream {
		span.SetAttributes(attribute.Bool("mcp.forwarded_upstream", true))
		response = s.resolveForTool(r, ctx)
	}
	span.SetStatus(codes.Ok, "")
	return response
}

// --- Streamable HTTP transport (GET/POST/DELETE /mcp) ---

func (s *mcpServer) streamableHandler(tenant string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			s.handleStreamablePost(w, r, tenant)
		case http.MethodGet:
			s.handleStreamableGet(w, r, tenant)
		case http.MethodDelete:
			s.handleStreamableDelete(w, r)
		case http.MethodOptions:
			handleOptions(w, r)
		default:
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		}
	})
}

func (s *mcpServer) handleStreamablePost(w http.ResponseWriter, r *http.Request, tenant string) {
	contentType := r.Header.Get("Content-Type")
	if contentType != "" && !strings.HasPrefix(contentType, "application/json") {
		writeRaw(w, http.StatusOK, rpc.BuildError(nil, rpc.CodeParseError, "Parse error: content type must be application/json"))
		return
	}

	body, errFrame := readBody(w, r)
	if errFrame != nil {
		writeRaw(w, http.StatusOK, errFrame)
		return
	}
	env, errFrame := decodeEnvelope(body)
	if errFrame != nil {
		writeRaw(w, http.StatusOK, errFrame)
		return
	}

	ctx := proxycontext.New(uuid.New().String())
	ctx.Tenant = tenant
	ctx.Transport = proxycontext.TransportStreamable
	ctx.SessionID = r.Header.Get(MCPSessionIDHeader)
	ctx.Streaming = acceptsEventStream(r)

	response := s.dispatch(r, ctx, env)

	w.Header().Set(MCPProtocolVersionHeader, MCPProtocolVersion)
	if ctx.SessionID != "" {
		w.Header().Set(MCPSessionIDHeader, ctx.SessionID)
	} else if env.Method == "initialize" {
		w.Header().Set(MCPSessionIDHeader, uuid.New().String())
	}

	isNotification := len(env.ID) == 0
	if isNotification && response == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	if ctx.Streaming {
		w.Header().Set("Content-Type", "text/event-stream")
	} else {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(response)
}

// handleStreamableGet opens an SSE stream on /mcp for server-initiated
// messages, keyed by the mcp-session-id header.
func (s *mcpServer) handleStreamableGet(w http.ResponseWriter, r *http.Request, tenant string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	sessionID := r.Header.Get(MCPSessionIDHeader)
	if sessionID == "" {
		http.Error(w, "Mcp-Session-Id header required for SSE", http.StatusBadRequest)
		return
	}
	// Last-Event-ID: resumption is not honored, only logged.
	if lastEventID := r.Header.Get("Last-Event-ID"); lastEventID != "" {
		LoggerFromContext(r.Context()).Info("sse resume requested but not supported", "last_event_id", lastEventID, "session_id", sessionID)
	}

	ch, unsubscribe := s.bus.SubscribeID(sessionID)
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set(MCPProtocolVersionHeader, MCPProtocolVersion)
	w.Header().Set(MCPSessionIDHeader, sessionID)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	streamEvents(r, w, flusher, ch)
}

// handleStreamableDelete acknowledges session termination. The bus itself has
// no notion of an explicitly terminated session id outside of an open
// subscription's own unsubscribe call, so this is an idempotent 204.
func (s *mcpServer) handleStreamableDelete(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get(MCPSessionIDHeader) == "" {
		http.Error(w, "Mcp-Session-Id header required", http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Split SSE transport (GET /sse, POST /messages) ---

func (s *mcpServer) sseHandler(tenant string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "SSE not supported", http.StatusInternalServerError)
			return
		}

		sessionID, ch, unsubscribe := s.bus.Subscribe()
		defer unsubscribe()

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)

		base := ""
		if tenant != "" {
			base = "/api/" + tenant
		}
		endpoint := fmt.Sprintf("%s/messages/?session_id=%s", base, sessionID)
		_, _ = fmt.Fprintf(w, "event: endpoint\r\ndata: %s\r\n\r\n", endpoint)
		flusher.Flush()

		streamEvents(r, w, flusher, ch)
	})
}

func (s *mcpServer) messagesHandler(tenant string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}

		sessionID := r.URL.Query().Get("session_id")
		if sessionID == "" {
			http.Error(w, "session_id query parameter required", http.StatusBadRequest)
			return
		}

		body, errFrame := readBody(w, r)
		if errFrame != nil {
			s.bus.Publish(sse.Event{SessionID: sessionID, Name: "message", Data: errFrame})
			writeRaw(w, http.StatusAccepted, []byte("Accepted"))
			return
		}
		env, errFrame := decodeEnvelope(body)
		if errFrame != nil {
			s.bus.Publish(sse.Event{SessionID: sessionID, Name: "message", Data: errFrame})
			writeRaw(w, http.StatusAccepted, []byte("Accepted"))
			return
		}

		ctx := proxycontext.New(uuid.New().String())
		ctx.Tenant = tenant
		ctx.Transport = proxycontext.TransportSSE
		ctx.SessionID = sessionID
		ctx.RPCRequestID = env.ID

		response := s.dispatch(r, ctx, env)
		if response != nil {
			// Locally handled (e.g. initialize, tools/list): still delivered
			// out-of-band on the SSE stream, per the old transport's contract.
			s.bus.Publish(sse.Event{SessionID: sessionID, Name: "message", Data: response})
		}

		writeRaw(w, http.StatusAccepted, []byte("Accepted"))
	})
}

func streamEvents(r *http.Request, w http.ResponseWriter, flusher http.Flusher, ch <-chan sse.Event) {
	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if ev.Name != "" {
				_, _ = fmt.Fprintf(w, "event: %s\r\ndata: %s\r\n\r\n", ev.Name, ev.Data)
			} else {
				_, _ = fmt.Fprintf(w, "data: %s\r\n\r\n", ev.Data)
			}
			flusher.Flush()
		}
	}
}

func acceptsEventStream(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/event-stream")
}

func writeRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// handleOptions answers CORS preflight for the MCP endpoints, for browser-
// based MCP clients.
func handleOptions(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Mcp-Session-Id, MCP-Protocol-Version, Last-Event-ID")
	w.Header().Set("Access-Control-Max-Age", "86400")
	w.WriteHeader(http.StatusNoContent)
}

// --- Non-MCP passthrough ---

// passthroughHandler reverse-proxies a request that matched a configured
// Route directly to its bound upstream, without any JSON-RPC envelope.
type passthroughHandler struct {
	registry *resource.Registry
	matcher  *route.Matcher
	upstream *upstream.Client
	logger   interface {
		Error(msg string, args ...any)
	}
}

func (h *passthroughHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rt := h.matcher.Match(r.Host, r.URL.Path, r.Method)
	if rt == nil {
		http.NotFound(w, r)
		return
	}

	up, err := h.registry.ResolveUpstream(rt.UpstreamID, rt.ServiceID, rt.Upstream)
	if err != nil {
		http.Error(w, "Bad Gateway: "+err.Error(), http.StatusBadGateway)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodySize))
	if err != nil {
		http.Error(w, "Bad Request: failed to read body", http.StatusBadRequest)
		return
	}

	ctx := proxycontext.New(uuid.New().String())
	ctx.RouteID = rt.ID
	ctx.UpstreamMethod = r.Method
	ctx.UpstreamPath = r.URL.Path
	ctx.NewBody = body
	ctx.Headers = map[string]string{}
	for k := range r.Header {
		ctx.Headers[k] = r.Header.Get(k)
	}
	delete(ctx.Headers, "Content-Length")
	if len(r.URL.Query()) > 0 {
		ctx.QueryParams = r.URL.Query()
	}

	resp, err := h.upstream.Forward(r.Context(), ctx, up)
	if err != nil {
		h.logger.Error("passthrough upstream request failed", "route", rt.ID, "error", err)
		http.Error(w, "Bad Gateway", http.StatusBadGateway)
		return
	}

	if resp.ContentEncoding != "" {
		w.Header().Set("Content-Encoding", resp.ContentEncoding)
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(resp.Body)
}

// healthHandler returns an HTTP handler that responds with 200 OK for basic
// liveness checks (used when no HealthChecker is configured).
func healthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
}
