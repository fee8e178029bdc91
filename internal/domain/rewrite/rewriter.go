// Package rewrite implements the tools/call rewriter: look up the
// RouteMeta by tool name, fill the path template with arguments, choose
// body vs query params per method, and install the selected upstream into
// the request's ProxyContext.
package rewrite

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/proxycontext"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/resource"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/rpc"
)

// bodyMethods are the HTTP methods that carry a request body.
var bodyMethods = map[string]bool{"POST": true, "PUT": true, "PATCH": true, "DELETE": true, "OPTIONS": true}

// Rewriter implements rpc.Rewriter against a resource Registry.
type Rewriter struct {
	registry *resource.Registry
}

// New creates a Rewriter.
func New(registry *resource.Registry) *Rewriter {
	return &Rewriter{registry: registry}
}

// Rewrite performs the lookup/interpolate/flatten/body/bind/hygiene steps
// in order. handled=true means the call could not be resolved locally;
// handled=false means ctx has been populated for the upstream-request
// phase.
func (w *Rewriter) Rewrite(ctx *proxycontext.ProxyContext, name string, arguments json.RawMessage) (handled bool, result *rpc.CallToolResult) {
	// Step 1: lookup.
	meta, ok := w.registry.RouteMetas.Lookup(ctx.Tenant, name)
	if !ok {
		r := rpc.ToolNotFoundResult(name)
		return true, &r
	}

	var args map[string]any
	if len(arguments) > 0 {
		_ = json.Unmarshal(arguments, &args)
	}
	if args == nil {
		args = map[string]any{}
	}

	// Step 2: path interpolation.
	consumed := make(map[string]bool)
	path := interpolatePath(meta.URITemplate, args, consumed)

	// Step 3: flatten remaining arguments into dotted-path query params.
	method := strings.ToUpper(meta.Method)
	flat := flatten("", args, consumed)
	if method == "GET" || method == "HEAD" {
		ctx.QueryParams = toQueryParams(flat)
	}

	// Step 4: body decision.
	if bodyMethods[method] {
		var bodyValue any
		if b, ok := args["body"]; ok {
			bodyValue = b
		} else {
			bodyValue = args
		}
		body, err := json.Marshal(bodyValue)
		if err != nil {
			body = []byte("{}")
		}
		ctx.NewBody = body
	} else {
		ctx.NewBody = []byte{}
	}

	// Step 5: upstream binding — synthesize a transient route and install it.
	ctx.RouteID = "" // transient: not a stored Route, just the upstream binding
	ctx.UpstreamID = meta.UpstreamID
	for k, v := range meta.Headers {
		ctx.Headers[k] = v
	}

	// Step 6: header hygiene.
	delete(ctx.Headers, "Content-Length")
	if !bodyMethods[method] {
		delete(ctx.Headers, "Content-Type")
	}

	ctx.UpstreamPath = path
	ctx.UpstreamMethod = method
	return false, nil
}

// interpolatePath replaces every {k} in template with arguments[k],
// JSON-value-stringified. Missing keys collapse to "".
func interpolatePath(template string, args map[string]any, consumed map[string]bool) string {
	var b strings.Builder
	i := 0
	for i < len(template) {
		if template[i] == '{' {
			end := strings.IndexByte(template[i:], '}')
			if end < 0 {
				b.WriteString(template[i:])
				break
			}
			key := template[i+1 : i+end]
			consumed[key] = true
			b.WriteString(stringify(args[key]))
			i += end + 1
			continue
		}
		b.WriteByte(template[i])
		i++
	}
	return b.String()
}

// stringify renders a JSON value for path/query interpolation: string
// as-is, number/bool canonical, null/missing as empty string.
func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case float64:
		if x == float64(int64(x)) {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'g', -1, 64)
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// flatten turns nested arguments not consumed by the path template into a
// flat map of dotted paths ("a.b[0].c").
func flatten(prefix string, v any, consumed map[string]bool) map[string]string {
	out := make(map[string]string)
	flattenInto(prefix, v, consumed, out, prefix == "")
	return out
}

func flattenInto(prefix string, v any, consumed map[string]bool, out map[string]string, topLevel bool) {
	switch x := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if topLevel && (consumed[k] || k == "body") {
				continue
			}
			childPrefix := k
			if prefix != "" {
				childPrefix = prefix + "." + k
			}
			flattenInto(childPrefix, x[k], consumed, out, false)
		}
	case []any:
		for i, item := range x {
			childPrefix := fmt.Sprintf("%s[%d]", prefix, i)
			flattenInto(childPrefix, item, consumed, out, false)
		}
	default:
		if prefix != "" {
			out[prefix] = stringify(x)
		}
	}
}

func toQueryParams(flat map[string]string) map[string][]string {
	out := make(map[string][]string, len(flat))
	for k, v := range flat {
		out[k] = []string{v}
	}
	return out
}
