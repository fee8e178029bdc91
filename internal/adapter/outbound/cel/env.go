package cel

import (
	"github.com/google/cel-go/cel"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/proxycontext"
)

// NewUniversalPolicyEnvironment creates the CEL environment GlobalRule
// conditions are compiled and evaluated against: the ProxyContext fields a
// condition plausibly branches on.
func NewUniversalPolicyEnvironment() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("tenant", cel.StringType),
		cel.Variable("method", cel.StringType),
		cel.Variable("path", cel.StringType),
		cel.Variable("route_id", cel.StringType),
		cel.Variable("upstream_id", cel.StringType),
		cel.Variable("headers", cel.MapType(cel.StringType, cel.StringType)),
	)
}

// BuildUniversalActivation turns a ProxyContext into the activation map the
// environment's variables resolve against.
func BuildUniversalActivation(ctx *proxycontext.ProxyContext) map[string]interface{} {
	headers := make(map[string]string, len(ctx.Headers))
	for k, v := range ctx.Headers {
		headers[k] = v
	}
	return map[string]interface{}{
		"tenant":      ctx.Tenant,
		"method":      ctx.UpstreamMethod,
		"path":        ctx.UpstreamPath,
		"route_id":    ctx.RouteID,
		"upstream_id": ctx.UpstreamID,
		"headers":     headers,
	}
}
