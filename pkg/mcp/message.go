package mcp

import (
	"time"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
)

// Direction indicates which way a Message travelled through the gateway.
type Direction int

const (
	// ClientToServer marks a frame read from the downstream client.
	ClientToServer Direction = iota
	// ServerToClient marks a frame written back to the downstream client.
	ServerToClient
)

// String implements fmt.Stringer.
func (d Direction) String() string {
	switch d {
	case ClientToServer:
		return "client->server"
	case ServerToClient:
		return "server->client"
	default:
		return "unknown"
	}
}

// Message wraps a decoded JSON-RPC frame together with the raw bytes it was
// decoded from and bookkeeping the gateway needs to route and log it.
type Message struct {
	Raw       []byte
	Direction Direction
	Decoded   jsonrpc.Message
	Timestamp time.Time

	// SessionID is the SSE or streamable-HTTP session this frame belongs to,
	// if any. Empty for stateless streamable-HTTP requests.
	SessionID string
	// Tenant is the scope this frame was routed under ("" means global).
	Tenant string
}

// IsRequest reports whether the decoded message is a JSON-RPC request.
func (m *Message) IsRequest() bool {
	_, ok := m.Decoded.(*jsonrpc.Request)
	return ok
}

// IsResponse reports whether the decoded message is a JSON-RPC response.
func (m *Message) IsResponse() bool {
	_, ok := m.Decoded.(*jsonrpc.Response)
	return ok
}

// Request returns the decoded request, or nil if this message is not one.
func (m *Message) Request() *jsonrpc.Request {
	req, _ := m.Decoded.(*jsonrpc.Request)
	return req
}

// Response returns the decoded response, or nil if this message is not one.
func (m *Message) Response() *jsonrpc.Response {
	resp, _ := m.Decoded.(*jsonrpc.Response)
	return resp
}

// Method returns the request method, or "" if this message is not a request.
func (m *Message) Method() string {
	if req := m.Request(); req != nil {
		return req.Method
	}
	return ""
}

// IsToolCall reports whether this message is a tools/call request.
func (m *Message) IsToolCall() bool {
	return m.Method() == "tools/call"
}

// IsNotification reports whether this message is a request with no id,
// i.e. a JSON-RPC notification that expects no response.
func (m *Message) IsNotification() bool {
	req := m.Request()
	return req != nil && !req.ID.IsValid()
}
