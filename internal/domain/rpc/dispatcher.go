package rpc

import (
	"encoding/json"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/proxycontext"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/resource"
)

// Rewriter is the tool-call rewriting seam the dispatcher calls into for
// tools/call. It returns handled=true with a non-nil result when the call
// could not be resolved locally; handled=false means ctx has been
// populated and the caller must continue to the upstream-request phase.
type Rewriter interface {
	Rewrite(ctx *proxycontext.ProxyContext, name string, arguments json.RawMessage) (handled bool, result *CallToolResult)
}

// ServerInfo names this gateway in the initialize response.
type ServerInfo struct {
	Name    string
	Version string
}

// Dispatcher decodes JSON-RPC frames and routes them over a fixed
// method-to-handler dispatch table.
type Dispatcher struct {
	registry *resource.Registry
	rewriter Rewriter
	server   ServerInfo
}

// New creates a Dispatcher.
func New(registry *resource.Registry, rewriter Rewriter, server ServerInfo) *Dispatcher {
	return &Dispatcher{registry: registry, rewriter: rewriter, server: server}
}

type callToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Dispatch handles one decoded JSON-RPC request. It returns the response
// bytes to send (nil for notifications/acks and for tools/call handed off
// upstream), and whether the caller must continue to the upstream-request
// phase (tools/call, not found locally).
func (d *Dispatcher) Dispatch(ctx *proxycontext.ProxyContext, method string, id json.RawMessage, params json.RawMessage) (response []byte, forwardUpstream bool) {
	switch method {
	case "initialize":
		return d.handleInitialize(id), false

	case "ping":
		return BuildResult(id, map[string]any{}), false

	case "notifications/initialized", "notifications/cancelled", "notifications/roots/list_changed", "completion/complete":
		return nil, false

	case "tools/list":
		return d.handleToolsList(ctx, id), false

	case "tools/call":
		return d.handleToolsCall(ctx, id, params)

	case "prompts/list":
		return BuildResult(id, map[string]any{"prompts": []any{}}), false
	case "prompts/get":
		return BuildResult(id, map[string]any{}), false

	case "resources/list":
		return BuildResult(id, map[string]any{"resources": []any{}}), false
	case "resources/read":
		return BuildResult(id, map[string]any{"contents": []any{}}), false
	case "resources/templates/list":
		return BuildResult(id, map[string]any{"resourceTemplates": []any{}}), false

	default:
		if len(id) == 0 {
			return nil, false
		}
		return BuildError(id, CodeMethodNotFound, "Method not found"), false
	}
}

func (d *Dispatcher) handleInitialize(id json.RawMessage) []byte {
	result := map[string]any{
		"protocolVersion": ProtocolVersion,
		"capabilities": map[string]any{
			"tools":       map[string]any{"listChanged": nil},
			"prompts":     map[string]any{},
			"resources":   map[string]any{},
			"completions": map[string]any{},
		},
		"serverInfo": map[string]any{
			"name":    d.server.Name,
			"version": d.server.Version,
		},
	}
	return BuildResult(id, result)
}

type toolEntry struct {
	Name        string                     `json:"name"`
	Description string                     `json:"description,omitempty"`
	InputSchema *resource.ToolInputSchema  `json:"inputSchema"`
}

func (d *Dispatcher) handleToolsList(ctx *proxycontext.ProxyContext, id json.RawMessage) []byte {
	metas := d.registry.RouteMetas.List(ctx.Tenant)
	tools := make([]toolEntry, 0, len(metas))
	for _, m := range metas {
		if m.Kind != resource.RouteMetaTool {
			continue
		}
		tools = append(tools, toolEntry{Name: m.OperationID, Description: m.Description, InputSchema: m.Schema})
	}
	return BuildResult(id, map[string]any{"tools": tools})
}

func (d *Dispatcher) handleToolsCall(ctx *proxycontext.ProxyContext, id json.RawMessage, params json.RawMessage) ([]byte, bool) {
	var p callToolParams
	if err := json.Unmarshal(params, &p); err != nil {
		return BuildError(id, CodeInvalidParams, "Invalid params"), false
	}

	ctx.RPCRequestID = id
	handled, result := d.rewriter.Rewrite(ctx, p.Name, p.Arguments)
	if handled {
		return BuildResult(id, result), false
	}
	// Not handled locally: the real reply is produced later by the response
	// adapter once the upstream HTTP call completes.
	return nil, true
}
