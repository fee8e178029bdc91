package rpc

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/proxycontext"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/resource"
)

type fakeRewriter struct {
	handled bool
	result  *CallToolResult
}

func (f *fakeRewriter) Rewrite(ctx *proxycontext.ProxyContext, name string, arguments json.RawMessage) (bool, *CallToolResult) {
	return f.handled, f.result
}

func newTestDispatcher(rw Rewriter) *Dispatcher {
	reg := resource.NewRegistry()
	reg.RouteMetas.Replace("", map[string]*resource.RouteMeta{
		"get_user": {OperationID: "get_user", Kind: resource.RouteMetaTool, UpstreamID: "u1"},
	})
	return New(reg, rw, ServerInfo{Name: "gateway", Version: "test"})
}

func TestDispatchInitialize(t *testing.T) {
	d := newTestDispatcher(&fakeRewriter{})
	resp, forward := d.Dispatch(proxycontext.New("r1"), "initialize", json.RawMessage("1"), nil)
	if forward {
		t.Fatalf("initialize must not forward upstream")
	}
	if !strings.Contains(string(resp), ProtocolVersion) {
		t.Fatalf("initialize response missing protocol version: %s", resp)
	}
}

func TestDispatchNotificationProducesNoResponse(t *testing.T) {
	d := newTestDispatcher(&fakeRewriter{})
	resp, forward := d.Dispatch(proxycontext.New("r1"), "notifications/initialized", nil, nil)
	if resp != nil || forward {
		t.Fatalf("notification must produce nil response and no forward, got %s, %v", resp, forward)
	}
}

func TestDispatchToolsListReturnsManifest(t *testing.T) {
	d := newTestDispatcher(&fakeRewriter{})
	resp, _ := d.Dispatch(proxycontext.New("r1"), "tools/list", json.RawMessage("2"), nil)
	if !strings.Contains(string(resp), "get_user") {
		t.Fatalf("tools/list response missing tool: %s", resp)
	}
}

func TestDispatchToolsCallForwardsWhenNotHandled(t *testing.T) {
	d := newTestDispatcher(&fakeRewriter{handled: false})
	resp, forward := d.Dispatch(proxycontext.New("r1"), "tools/call", json.RawMessage("3"),
		json.RawMessage(`{"name":"get_user","arguments":{"id":"42"}}`))
	if !forward || resp != nil {
		t.Fatalf("expected forward=true, resp=nil; got forward=%v, resp=%s", forward, resp)
	}
}

func TestDispatchToolsCallNotFoundReturnsErrorResult(t *testing.T) {
	notFound := ToolNotFoundResult("bogus")
	d := newTestDispatcher(&fakeRewriter{handled: true, result: &notFound})
	resp, forward := d.Dispatch(proxycontext.New("r1"), "tools/call", json.RawMessage("4"),
		json.RawMessage(`{"name":"bogus","arguments":{}}`))
	if forward {
		t.Fatalf("tool-not-found must not forward upstream")
	}
	if !strings.Contains(string(resp), "Tool not found") || !strings.Contains(string(resp), `"result"`) {
		t.Fatalf("expected a JSON-RPC result frame (not an error frame) with isError text, got %s", resp)
	}
}

func TestDispatchUnknownMethod(t *testing.T) {
	d := newTestDispatcher(&fakeRewriter{})
	resp, _ := d.Dispatch(proxycontext.New("r1"), "bogus/method", json.RawMessage("5"), nil)
	if !strings.Contains(string(resp), "-32601") {
		t.Fatalf("unknown method response missing method-not-found code: %s", resp)
	}
}
