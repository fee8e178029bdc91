// Package upstream sends the rewritten ProxyContext as an HTTP request to
// the resolved upstream node and returns the bounded response body for the
// response adapter to translate back into MCP. TLS 1.2 floor, bounded
// idle-conn pool, and a size-capped response read so a malicious or
// misbehaving upstream can't exhaust memory.
package upstream

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/proxycontext"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/resource"
)

// tracer names this package's spans in the otel tracer registry. A
// package-level var (not a lazy otel.Tracer() call per request) is fine
// here since, unlike the inbound http package, nothing in this package's
// own tests installs a custom TracerProvider mid-run.
var tracer = otel.Tracer("github.com/Sentinel-Gate/Sentinelgate/internal/adapter/outbound/upstream")

// maxResponseBodySize bounds how much of an upstream response is buffered.
const maxResponseBodySize = 10 * 1024 * 1024

// Response is the bounded upstream reply handed to the response adapter.
type Response struct {
	StatusCode      int
	Body            []byte
	ContentEncoding string
}

// Client forwards ProxyContext-described requests over HTTP(S).
type Client struct {
	httpClient *http.Client
	cursors    sync.Map // upstream id -> *uint64 round-robin cursor
}

// NewClient creates a Client with a bounded connection pool and a TLS 1.2
// floor.
func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					MinVersion: tls.VersionTLS12,
				},
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// Forward selects a node from up per its SelectionPolicy, builds the
// request from ctx's rewritten path/method/body/headers/query, and returns
// the bounded response body.
func (c *Client) Forward(ctx context.Context, pc *proxycontext.ProxyContext, up *resource.Upstream) (*Response, error) {
	ctx, span := tracer.Start(ctx, "upstream.forward", trace.WithAttributes(
		attribute.String("upstream.id", up.ID),
	))
	defer span.End()

	resp, err := c.doForward(ctx, pc, up)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.String("upstream.node", pc.UpstreamAddr),
		attribute.Int("http.status_code", resp.StatusCode),
	)
	span.SetStatus(codes.Ok, "")
	return resp, nil
}

// doForward is Forward's body, split out so the span above wraps the whole
// node-pick-through-response-read sequence without the tracing bookkeeping
// cluttering the request-building logic.
func (c *Client) doForward(ctx context.Context, pc *proxycontext.ProxyContext, up *resource.Upstream) (*Response, error) {
	node, err := c.pickNode(up, pc.UpstreamPath)
	if err != nil {
		return nil, err
	}
	pc.UpstreamAddr = node

	scheme := up.Scheme
	if scheme == "" {
		scheme = "http"
	}
	reqURL := url.URL{Scheme: scheme, Host: node, Path: pc.UpstreamPath}
	if len(pc.QueryParams) > 0 {
		q := reqURL.Query()
		for k, vs := range pc.QueryParams {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		reqURL.RawQuery = q.Encode()
	}

	var body io.Reader
	if len(pc.NewBody) > 0 {
		body = bytes.NewReader(pc.NewBody)
	}

	method := pc.UpstreamMethod
	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	for k, v := range pc.Headers {
		req.Header.Set(k, v)
	}
	if up.UpstreamHost != "" && up.PassHost == "rewrite" {
		req.Host = up.UpstreamHost
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream %s unreachable: %w", up.ID, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("reading upstream %s response: %w", up.ID, err)
	}
	if len(data) > maxResponseBodySize {
		return nil, fmt.Errorf("upstream %s response exceeds %d bytes", up.ID, maxResponseBodySize)
	}

	return &Response{
		StatusCode:      resp.StatusCode,
		Body:            data,
		ContentEncoding: resp.Header.Get("Content-Encoding"),
	}, nil
}

// pickNode applies up.SelectionPolicy over its weighted node map. key is
// hashed with xxhash for the fnv/ketama policies (names kept for
// config-format compatibility) so the same tool-call path keeps landing on
// the same node; ketama's usual consistent-hash ring isn't built here since
// node membership only changes on an admin mutation, not continuously.
func (c *Client) pickNode(up *resource.Upstream, key string) (string, error) {
	if len(up.Nodes) == 0 {
		return "", fmt.Errorf("upstream %s has no nodes", up.ID)
	}
	nodes := expandWeighted(up.Nodes)

	switch up.SelectionPolicy {
	case "random":
		return nodes[rand.Intn(len(nodes))], nil
	case "fnv", "ketama":
		sum := xxhash.Sum64String(key)
		return nodes[int(sum%uint64(len(nodes)))], nil
	default: // "round_robin" and unset
		v, _ := c.cursors.LoadOrStore(up.ID, new(uint64))
		cursor := v.(*uint64)
		n := atomic.AddUint64(cursor, 1)
		return nodes[int(n-1)%len(nodes)], nil
	}
}

// expandWeighted turns a weighted node map into a deterministically ordered
// slice where each node address appears once per unit of weight.
func expandWeighted(nodes map[string]int) []string {
	addrs := make([]string, 0, len(nodes))
	for addr := range nodes {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)

	out := make([]string, 0, len(nodes))
	for _, addr := range addrs {
		weight := nodes[addr]
		if weight <= 0 {
			weight = 1
		}
		for i := 0; i < weight; i++ {
			out = append(out, addr)
		}
	}
	return out
}
