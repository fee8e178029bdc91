// Package proxycontext holds the per-request scratch state threaded through
// the route-matcher -> dispatcher -> rewriter -> response-adapter pipeline.
package proxycontext

import "time"

// Transport identifies which MCP wire dialect produced this request.
type Transport int

const (
	// TransportSSE is the split GET /sse + POST /messages dialect.
	TransportSSE Transport = iota
	// TransportStreamable is the single POST/GET /mcp dialect.
	TransportStreamable
)

// ProxyContext is created at request start and destroyed at response end.
// It is exclusively owned by its request task and is never shared across
// requests; the Route/Upstream handles it references are read-only shared
// data owned by the resource store.
type ProxyContext struct {
	RequestID string
	Tenant    string // "" means global scope
	Transport Transport

	// SessionID identifies the SSE connection (old transport) or the
	// mcp-session-id (new transport, stateful). Empty for stateless
	// streamable-HTTP calls.
	SessionID string
	// RPCRequestID is the echoed JSON-RPC request id, raw JSON bytes.
	RPCRequestID []byte
	// Streaming, when true, means the new-transport response should be
	// delivered as SSE frames on the same connection rather than inline.
	Streaming bool

	// RouteID is the id of the route selected for this request, if any.
	RouteID string
	// PathParams holds values captured from a templated URI segment match.
	PathParams map[string]string

	// UpstreamID is the upstream this request will be (or was) forwarded to.
	UpstreamID string
	// UpstreamAddr is the concrete node address chosen from the upstream's
	// node map by the selection policy.
	UpstreamAddr string
	// UpstreamPath and UpstreamMethod are the interpolated request-line the
	// Tool-Call Rewriter built for the upstream HTTP call.
	UpstreamPath   string
	UpstreamMethod string

	// NewBody is the rewritten request body to send upstream, if the
	// tool-call rewriter produced one.
	NewBody []byte
	// Headers are extra headers to attach to the upstream request.
	Headers map[string]string
	// QueryParams are extra query parameters to attach (GET/HEAD only).
	QueryParams map[string][]string

	// ContentEncoding records the upstream response's Content-Encoding so
	// the response adapter can re-encode the substituted body to match.
	ContentEncoding string

	// Tries counts connect-phase retry attempts so far.
	Tries int
	// StartedAt is the request's start timestamp, used for retry-timeout
	// accounting and latency metrics.
	StartedAt time.Time
}

// New creates a ProxyContext stamped with the current time.
func New(requestID string) *ProxyContext {
	return &ProxyContext{
		RequestID:  requestID,
		PathParams: make(map[string]string),
		Headers:    make(map[string]string),
		StartedAt:  time.Now(),
	}
}

// IsOldTransport reports whether both a session id and an RPC request id
// are set, which is the response adapter's marker for the split SSE/POST
// transport.
func (c *ProxyContext) IsOldTransport() bool {
	return c.Transport == TransportSSE && c.SessionID != "" && len(c.RPCRequestID) > 0
}
