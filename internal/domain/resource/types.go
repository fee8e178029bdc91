// Package resource defines the gateway's resource-kind data model (Route,
// Upstream, Service, GlobalRule, MCPService, SSL, RouteMeta) and the
// concurrent store that holds them, generalizing the single-kind upstream
// store this gateway started from to all six resource kinds.
package resource

import (
	"fmt"
	"regexp"
	"time"
)

// Identifiable is implemented by every resource kind held in a Store.
type Identifiable interface {
	GetID() string
}

// nodeAddrPattern matches "host[:port]" or "[ipv6]:port", the address
// grammar an Upstream node key must satisfy.
var nodeAddrPattern = regexp.MustCompile(`^(\[[0-9a-fA-F:]+\]|[a-zA-Z0-9_.\-]+)(:\d{1,5})?$`)

// Timeout is a Route's optional connect/send/read triple.
type Timeout struct {
	Connect time.Duration `json:"connect,omitempty" mapstructure:"connect" yaml:"connect"`
	Send    time.Duration `json:"send,omitempty" mapstructure:"send" yaml:"send"`
	Read    time.Duration `json:"read,omitempty" mapstructure:"read" yaml:"read"`
}

// Route binds a URI/method/host match to an upstream, directly or via a
// Service.
type Route struct {
	ID         string    `json:"id" mapstructure:"id" yaml:"id" validate:"required"`
	URIs       []string  `json:"uris,omitempty" mapstructure:"uris" yaml:"uris"`
	URI        string    `json:"uri,omitempty" mapstructure:"uri" yaml:"uri"`
	Methods    []string  `json:"methods,omitempty" mapstructure:"methods" yaml:"methods"`
	Hosts      []string  `json:"hosts,omitempty" mapstructure:"hosts" yaml:"hosts"`
	Priority   int       `json:"priority" mapstructure:"priority" yaml:"priority"`
	UpstreamID string    `json:"upstream_id,omitempty" mapstructure:"upstream_id" yaml:"upstream_id"`
	Upstream   *Upstream `json:"upstream,omitempty" mapstructure:"upstream" yaml:"upstream"`
	ServiceID  string    `json:"service_id,omitempty" mapstructure:"service_id" yaml:"service_id"`
	Timeout    *Timeout  `json:"timeout,omitempty" mapstructure:"timeout" yaml:"timeout"`
	PluginChain []string `json:"plugins,omitempty" mapstructure:"plugins" yaml:"plugins"`
	CreatedAt  time.Time `json:"created_at,omitempty" mapstructure:"created_at" yaml:"created_at"`
	UpdatedAt  time.Time `json:"updated_at,omitempty" mapstructure:"updated_at" yaml:"updated_at"`
}

// GetID implements Identifiable.
func (r *Route) GetID() string { return r.ID }

// allURIs returns the route's URI(s) regardless of which field was used.
func (r *Route) allURIs() []string {
	if len(r.URIs) > 0 {
		return r.URIs
	}
	if r.URI != "" {
		return []string{r.URI}
	}
	return nil
}

// Validate enforces Route's structural invariants.
func (r *Route) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("route: id is required")
	}
	if len(r.allURIs()) == 0 {
		return fmt.Errorf("route %s: neither uri nor uris present", r.ID)
	}
	boundCount := 0
	if r.Upstream != nil {
		boundCount++
	}
	if r.UpstreamID != "" {
		boundCount++
	}
	if r.ServiceID != "" {
		boundCount++
	}
	if boundCount == 0 {
		return fmt.Errorf("route %s: one of upstream, upstream_id, service_id is required", r.ID)
	}
	if r.Priority < 0 {
		return fmt.Errorf("route %s: priority must be >= 0", r.ID)
	}
	return nil
}

// HealthCheck is an Upstream's optional active health-check configuration.
type HealthCheck struct {
	Path     string        `json:"path,omitempty" mapstructure:"path" yaml:"path"`
	Interval time.Duration `json:"interval,omitempty" mapstructure:"interval" yaml:"interval"`
}

// Upstream is a weighted set of backend nodes with a selection policy.
type Upstream struct {
	ID            string         `json:"id" mapstructure:"id" yaml:"id" validate:"required"`
	Nodes         map[string]int `json:"nodes" mapstructure:"nodes" yaml:"nodes" validate:"required"`
	SelectionPolicy string       `json:"selection_policy,omitempty" mapstructure:"selection_policy" yaml:"selection_policy"` // round_robin|random|fnv|ketama
	Scheme        string         `json:"scheme,omitempty" mapstructure:"scheme" yaml:"scheme"`           // http|https|grpc|grpcs
	HashOn        string         `json:"hash_on,omitempty" mapstructure:"hash_on" yaml:"hash_on"`          // vars|head|cookie
	HashOnKey     string         `json:"hash_on_key,omitempty" mapstructure:"hash_on_key" yaml:"hash_on_key"`
	PassHost      string         `json:"pass_host,omitempty" mapstructure:"pass_host" yaml:"pass_host"` // pass|rewrite
	UpstreamHost  string         `json:"upstream_host,omitempty" mapstructure:"upstream_host" yaml:"upstream_host"`
	Health        *HealthCheck   `json:"health_check,omitempty" mapstructure:"health_check" yaml:"health_check"`
	Retries       int            `json:"retries,omitempty" mapstructure:"retries" yaml:"retries"`
	RetryTimeout  time.Duration  `json:"retry_timeout,omitempty" mapstructure:"retry_timeout" yaml:"retry_timeout"`
	CreatedAt     time.Time      `json:"created_at,omitempty" mapstructure:"created_at" yaml:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at,omitempty" mapstructure:"updated_at" yaml:"updated_at"`
}

// GetID implements Identifiable.
func (u *Upstream) GetID() string { return u.ID }

var validSelectionPolicies = map[string]bool{"": true, "round_robin": true, "random": true, "fnv": true, "ketama": true}
var validSchemes = map[string]bool{"": true, "http": true, "https": true, "grpc": true, "grpcs": true}
var validHashOn = map[string]bool{"": true, "vars": true, "head": true, "cookie": true}

// Validate enforces Upstream's structural invariants.
func (u *Upstream) Validate() error {
	if u.ID == "" {
		return fmt.Errorf("upstream: id is required")
	}
	if len(u.Nodes) == 0 {
		return fmt.Errorf("upstream %s: nodes must be non-empty", u.ID)
	}
	for addr, weight := range u.Nodes {
		if weight <= 0 {
			return fmt.Errorf("upstream %s: node %s weight must be > 0", u.ID, addr)
		}
		if !nodeAddrPattern.MatchString(addr) {
			return fmt.Errorf("upstream %s: node %q does not match the address grammar", u.ID, addr)
		}
	}
	if !validSelectionPolicies[u.SelectionPolicy] {
		return fmt.Errorf("upstream %s: unknown selection_policy %q", u.ID, u.SelectionPolicy)
	}
	if !validSchemes[u.Scheme] {
		return fmt.Errorf("upstream %s: unknown scheme %q", u.ID, u.Scheme)
	}
	if !validHashOn[u.HashOn] {
		return fmt.Errorf("upstream %s: unknown hash_on %q", u.ID, u.HashOn)
	}
	if u.PassHost == "rewrite" && u.UpstreamHost == "" {
		return fmt.Errorf("upstream %s: pass_host=rewrite requires upstream_host", u.ID)
	}
	return nil
}

// Service is a reusable named bundle of upstream + plugin chain.
type Service struct {
	ID          string    `json:"id" mapstructure:"id" yaml:"id" validate:"required"`
	UpstreamID  string    `json:"upstream_id,omitempty" mapstructure:"upstream_id" yaml:"upstream_id"`
	Upstream    *Upstream `json:"upstream,omitempty" mapstructure:"upstream" yaml:"upstream"`
	PluginChain []string  `json:"plugins,omitempty" mapstructure:"plugins" yaml:"plugins"`
	CreatedAt   time.Time `json:"created_at,omitempty" mapstructure:"created_at" yaml:"created_at"`
	UpdatedAt   time.Time `json:"updated_at,omitempty" mapstructure:"updated_at" yaml:"updated_at"`
}

// GetID implements Identifiable.
func (s *Service) GetID() string { return s.ID }

// Validate enforces Service invariants: it must bind to an upstream somehow.
func (s *Service) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("service: id is required")
	}
	if s.UpstreamID == "" && s.Upstream == nil {
		return fmt.Errorf("service %s: upstream or upstream_id is required", s.ID)
	}
	return nil
}

// GlobalRule is a plugin chain applied to every request.
type GlobalRule struct {
	ID          string    `json:"id" mapstructure:"id" yaml:"id" validate:"required"`
	Priority    int       `json:"priority" mapstructure:"priority" yaml:"priority"`
	PluginChain []string  `json:"plugins,omitempty" mapstructure:"plugins" yaml:"plugins"`
	// Condition is an optional CEL expression; when non-empty the rule's
	// plugin chain only applies if it evaluates to true.
	Condition string    `json:"condition,omitempty" mapstructure:"condition" yaml:"condition"`
	CreatedAt time.Time `json:"created_at,omitempty" mapstructure:"created_at" yaml:"created_at"`
	UpdatedAt time.Time `json:"updated_at,omitempty" mapstructure:"updated_at" yaml:"updated_at"`
}

// GetID implements Identifiable.
func (g *GlobalRule) GetID() string { return g.ID }

// Validate enforces GlobalRule invariants.
func (g *GlobalRule) Validate() error {
	if g.ID == "" {
		return fmt.Errorf("global_rule: id is required")
	}
	if g.Priority < 0 {
		return fmt.Errorf("global_rule %s: priority must be >= 0", g.ID)
	}
	return nil
}

// RouteMetaKind tags what kind of tool-manifest entry a RouteMeta represents.
type RouteMetaKind string

const (
	RouteMetaTool     RouteMetaKind = "Tool"
	RouteMetaPrompt   RouteMetaKind = "Prompt"
	RouteMetaResource RouteMetaKind = "Resource"
)

// RouteMeta binds a tool (operation id) to its upstream HTTP contract.
type RouteMeta struct {
	OperationID string            `json:"operation_id" mapstructure:"operation_id" yaml:"operation_id"`
	Method      string            `json:"method" mapstructure:"method" yaml:"method"`
	URITemplate string            `json:"uri_template" mapstructure:"uri_template" yaml:"uri_template"`
	UpstreamID  string            `json:"upstream_id" mapstructure:"upstream_id" yaml:"upstream_id"`
	Headers     map[string]string `json:"headers,omitempty" mapstructure:"headers" yaml:"headers"`
	Kind        RouteMetaKind     `json:"kind" mapstructure:"kind" yaml:"kind"`
	Schema      *ToolInputSchema  `json:"schema,omitempty" mapstructure:"schema" yaml:"schema"`
	Description string            `json:"description,omitempty" mapstructure:"description" yaml:"description"`
}

// GetID implements Identifiable, keyed by operation id.
func (m *RouteMeta) GetID() string { return m.OperationID }

// ToolInputSchema is the JSON-schema-shaped input a Tool advertises.
type ToolInputSchema struct {
	Type       string                    `json:"type" mapstructure:"type" yaml:"type"`
	Properties map[string]*SchemaProperty `json:"properties,omitempty" mapstructure:"properties" yaml:"properties"`
	Required   []string                  `json:"required,omitempty" mapstructure:"required" yaml:"required"`
}

// SchemaProperty is one property of a ToolInputSchema. Type/Format carries
// the $ref-resolved schema property type pair the original implementation
// preserves (spec_full §C).
type SchemaProperty struct {
	Type   string `json:"type" mapstructure:"type" yaml:"type"`
	Format string `json:"format,omitempty" mapstructure:"format" yaml:"format"`
	Title  string `json:"title,omitempty" mapstructure:"title" yaml:"title"`
	In     string `json:"-" mapstructure:"-" yaml:"-"` // path|query|header|cookie|body, compiler bookkeeping only
}

// MCPService is a tenant's manifest source: an OpenAPI doc, an explicit
// RouteMeta list, or both.
type MCPService struct {
	ID          string      `json:"id" mapstructure:"id" yaml:"id" validate:"required"`
	OpenAPIPath string      `json:"path,omitempty" mapstructure:"path" yaml:"path"`
	Routes      []RouteMeta `json:"routes,omitempty" mapstructure:"routes" yaml:"routes"`
	RouteIDs    []string    `json:"route_ids,omitempty" mapstructure:"route_ids" yaml:"route_ids"`
	UpstreamID  string      `json:"upstream_id,omitempty" mapstructure:"upstream_id" yaml:"upstream_id"`
	Upstream    *Upstream   `json:"upstream,omitempty" mapstructure:"upstream" yaml:"upstream"`
	PluginChain []string    `json:"plugins,omitempty" mapstructure:"plugins" yaml:"plugins"`
	CreatedAt   time.Time   `json:"created_at,omitempty" mapstructure:"created_at" yaml:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at,omitempty" mapstructure:"updated_at" yaml:"updated_at"`
}

// GetID implements Identifiable.
func (m *MCPService) GetID() string { return m.ID }

// Validate enforces the MCPService invariant: at least one manifest source.
func (m *MCPService) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("mcp_service: id is required")
	}
	if m.OpenAPIPath == "" && len(m.Routes) == 0 && len(m.RouteIDs) == 0 {
		return fmt.Errorf("mcp_service %s: at least one of path, routes, route_ids must be populated", m.ID)
	}
	return nil
}

// SSLStatus is the lifecycle state of an SSL resource.
type SSLStatus string

const (
	SSLStatusEnabled  SSLStatus = "enabled"
	SSLStatusDisabled SSLStatus = "disabled"
)

// SSL holds TLS material (certificate + key) bound to one or more SNIs.
type SSL struct {
	ID        string    `json:"id" mapstructure:"id" yaml:"id" validate:"required"`
	Snis      []string  `json:"snis" mapstructure:"snis" yaml:"snis" validate:"required"`
	Cert      string    `json:"cert" mapstructure:"cert" yaml:"cert" validate:"required"`
	Key       string    `json:"key" mapstructure:"key" yaml:"key" validate:"required"`
	Status    SSLStatus `json:"status,omitempty" mapstructure:"status" yaml:"status"`
	CreatedAt time.Time `json:"created_at,omitempty" mapstructure:"created_at" yaml:"created_at"`
	UpdatedAt time.Time `json:"updated_at,omitempty" mapstructure:"updated_at" yaml:"updated_at"`
}

// GetID implements Identifiable.
func (s *SSL) GetID() string { return s.ID }

// Validate enforces SSL invariants.
func (s *SSL) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("ssl: id is required")
	}
	if len(s.Snis) == 0 {
		return fmt.Errorf("ssl %s: at least one sni is required", s.ID)
	}
	if s.Cert == "" || s.Key == "" {
		return fmt.Errorf("ssl %s: cert and key are required", s.ID)
	}
	return nil
}
