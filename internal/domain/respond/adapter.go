// Package respond implements the upstream response adapter: it wraps an
// upstream HTTP response body into a JSON-RPC response and dispatches it
// either via the SSE bus (split transport) or inline on the open HTTP
// response (streamable transport). Grounded on the bounded-scanner/
// sanitized-error idiom of internal/adapter/outbound/mcp/http_client.go
// and the inbound handler's body-buffering/gzip idiom.
package respond

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/proxycontext"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/rpc"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/sse"
)

// acceptedBody is the literal downstream body substituted for the split
// transport and the streamable-transport streaming placeholder.
var acceptedBody = []byte("Accepted")

// Adapter runs at upstream-response-body-filter time.
type Adapter struct {
	bus    *sse.Bus
	logger *slog.Logger
}

// New creates an Adapter.
func New(bus *sse.Bus, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{bus: bus, logger: logger}
}

// Outcome is what the caller should write back to the downstream client.
type Outcome struct {
	Body            []byte
	GzipEncode      bool
	PublishedToSSE  bool
}

// Adapt picks the right delivery path for an upstream response based on
// ctx's transport markers: published onto the SSE bus, inlined as an SSE
// frame, inlined as raw JSON-RPC, or passed through untouched.
func (a *Adapter) Adapt(ctx *proxycontext.ProxyContext, upstreamBody []byte, contentEncodingIn string) Outcome {
	decoded, decodeErr := decodeBody(upstreamBody, contentEncodingIn)
	if decodeErr != nil {
		a.logger.Warn("upstream response decode failed, passing through raw bytes", "error", decodeErr)
		decoded = upstreamBody
	}

	switch {
	case ctx.IsOldTransport():
		frame, err := a.buildResponseFrame(ctx, decoded)
		if err != nil {
			return Outcome{Body: internalErrorFrame(ctx.RPCRequestID, err)}
		}
		a.bus.Publish(sse.Event{SessionID: ctx.SessionID, Name: "message", Data: frame})
		return Outcome{Body: acceptedBody}

	case ctx.Transport == proxycontext.TransportStreamable && ctx.Streaming:
		// Streaming mode: deliver the result inline as an SSE frame on the
		// same response before the Accepted marker. Decided in DESIGN.md to
		// never silently drop the result rather than match split-transport
		// semantics exactly.
		frame, err := a.buildResponseFrame(ctx, decoded)
		if err != nil {
			return Outcome{Body: internalErrorFrame(ctx.RPCRequestID, err)}
		}
		var buf bytes.Buffer
		fmt.Fprintf(&buf, "event: message\r\ndata: %s\r\n\r\n", frame)
		buf.Write(acceptedBody)
		return Outcome{Body: buf.Bytes()}

	case ctx.Transport == proxycontext.TransportStreamable:
		// Stateless mode: write the serialized JSON-RPC response inline.
		frame, err := a.buildResponseFrame(ctx, decoded)
		if err != nil {
			return Outcome{Body: internalErrorFrame(ctx.RPCRequestID, err)}
		}
		return Outcome{Body: frame}

	default:
		// No markers: non-MCP route, pass through untouched.
		return Outcome{Body: upstreamBody}
	}
}

func (a *Adapter) buildResponseFrame(ctx *proxycontext.ProxyContext, body []byte) ([]byte, error) {
	result := rpc.CallToolResult{
		Content: []rpc.ContentItem{{Type: "text", Text: string(body)}},
		IsError: false,
	}
	return rpc.BuildResult(ctx.RPCRequestID, result), nil
}

func internalErrorFrame(id json.RawMessage, err error) []byte {
	return rpc.BuildError(id, rpc.CodeInternalError, "Internal error")
}

func decodeBody(body []byte, contentEncoding string) ([]byte, error) {
	if contentEncoding != "gzip" {
		return body, nil
	}
	r, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("gzip decode: %w", err)
	}
	defer func() { _ = r.Close() }()
	return io.ReadAll(r)
}

// EncodeForDownstream re-encodes body to match contentEncoding, mirroring
// what the upstream sent so client expectations are preserved.
func EncodeForDownstream(body []byte, contentEncoding string) ([]byte, error) {
	if contentEncoding != "gzip" {
		return body, nil
	}
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(body); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
