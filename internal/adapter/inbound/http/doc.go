// Package http provides the downstream-facing HTTP transport for the two
// MCP wire dialects the gateway serves side by side: the older split-channel
// SSE transport (GET /sse + POST /messages) and the newer single-endpoint
// streamable HTTP transport (GET/POST/DELETE /mcp). Both forms also exist
// tenant-scoped under /api/{tenant}/....
//
// Requests that don't match a reserved MCP path are matched against the
// configured route table and reverse-proxied directly, without the
// JSON-RPC envelope; anything that matches no route gets a 404.
package http
