// Package rpc implements the JSON-RPC dispatcher: it decodes a JSON-RPC
// frame and routes by method to the initialize / ping / tools-list /
// tools-call handlers. Frame encode/decode wraps pkg/mcp's envelope, which
// in turn delegates to github.com/modelcontextprotocol/go-sdk/jsonrpc, the
// same wrapping pkg/mcp/{message,codec}.go already did; this package stops
// hand-rolling the wire shape and builds real jsonrpc.Response values.
// Method dispatch follows the table idiom of
// internal/domain/proxy/upstream_router.go.
package rpc

import (
	"encoding/json"

	"github.com/Sentinel-Gate/Sentinelgate/pkg/mcp"
	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
)

// Error codes follow the standard JSON-RPC taxonomy.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// ProtocolVersion is the MCP protocol version advertised by initialize.
const ProtocolVersion = "2024-11-05"

// idFromRaw converts a request's raw JSON-RPC id (as carried around the
// dispatch pipeline) into the SDK's jsonrpc.ID, which a jsonrpc.Response
// must carry instead of the bare json.RawMessage the wire id started as.
// An empty or unparseable id maps to the SDK's zero value, its documented
// invalid/nil id.
func idFromRaw(id json.RawMessage) jsonrpc.ID {
	if len(id) == 0 {
		return jsonrpc.ID{}
	}
	var v any
	if err := json.Unmarshal(id, &v); err != nil {
		return jsonrpc.ID{}
	}
	rpcID, err := jsonrpc.MakeID(v)
	if err != nil {
		return jsonrpc.ID{}
	}
	return rpcID
}

// BuildError serializes a JSON-RPC error response for id through the SDK's
// wire encoder.
func BuildError(id json.RawMessage, code int, message string) []byte {
	resp := &jsonrpc.Response{ID: idFromRaw(id), Error: &jsonrpc.Error{Code: code, Message: message}}
	b, err := mcp.EncodeMessage(resp)
	if err != nil {
		// The SDK encoder only fails on a malformed Response; this frame is
		// always well-formed, so this is unreachable in practice. Fall back
		// to a minimal hand-built frame rather than return nothing.
		b, _ = json.Marshal(map[string]any{
			"jsonrpc": "2.0", "id": json.RawMessage(id),
			"error": map[string]any{"code": code, "message": message},
		})
	}
	return b
}

// BuildResult serializes a JSON-RPC success response for id through the
// SDK's wire encoder.
func BuildResult(id json.RawMessage, result interface{}) []byte {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return BuildError(id, CodeInternalError, "Internal error")
	}
	resp := &jsonrpc.Response{ID: idFromRaw(id), Result: resultJSON}
	b, err := mcp.EncodeMessage(resp)
	if err != nil {
		b, _ = json.Marshal(map[string]any{"jsonrpc": "2.0", "id": json.RawMessage(id), "result": result})
	}
	return b
}

// CallToolResult is the tools/call success payload, used both for normal
// results and for the "tool not found" case: MCP wants that reported as a
// JSON-RPC response with isError=true, not a JSON-RPC error frame.
type CallToolResult struct {
	Content []ContentItem `json:"content"`
	IsError bool          `json:"isError"`
}

// ContentItem is one piece of tool-result content.
type ContentItem struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ToolNotFoundResult builds the CallToolResult returned on a RouteMeta
// lookup miss.
func ToolNotFoundResult(name string) CallToolResult {
	return CallToolResult{
		Content: []ContentItem{{Type: "text", Text: "Tool not found: " + name}},
		IsError: true,
	}
}
