package resource

import (
	"fmt"
	"log/slog"
)

// Registry is the process-wide collection of all six resource-kind stores,
// wired together so admin dependency checks and route/dispatch/rewrite
// scope lookups have one place to reach every kind from.
type Registry struct {
	Routes       *Store[*Route]
	Upstreams    *Store[*Upstream]
	Services     *Store[*Service]
	GlobalRules  *Store[*GlobalRule]
	MCPServices  *Store[*MCPService]
	SSLs         *Store[*SSL]

	// RouteMetas holds the compiled tool-manifest bindings: global scope
	// and one map per tenant. Guarded by its own mutex since swaps replace
	// the whole map wholesale (copy-on-write).
	RouteMetas *ScopedRouteMetas
}

// NewRegistry creates an empty Registry with all six stores initialized.
func NewRegistry() *Registry {
	return &Registry{
		Routes:      NewStore[*Route](),
		Upstreams:   NewStore[*Upstream](),
		Services:    NewStore[*Service](),
		GlobalRules: NewStore[*GlobalRule](),
		MCPServices: NewStore[*MCPService](),
		SSLs:        NewStore[*SSL](),
		RouteMetas:  NewScopedRouteMetas(),
	}
}

// ResolveUpstream follows a Route or Service's upstream binding to a
// concrete *Upstream, resolving upstream_id/service_id references through
// the registry.
func (r *Registry) ResolveUpstream(upstreamID, serviceID string, inline *Upstream) (*Upstream, error) {
	if inline != nil {
		return inline, nil
	}
	if upstreamID != "" {
		u, ok := r.Upstreams.Get(upstreamID)
		if !ok {
			return nil, fmt.Errorf("upstream %q not found", upstreamID)
		}
		return u, nil
	}
	if serviceID != "" {
		svc, ok := r.Services.Get(serviceID)
		if !ok {
			return nil, fmt.Errorf("service %q not found", serviceID)
		}
		return r.ResolveUpstream(svc.UpstreamID, "", svc.Upstream)
	}
	return nil, fmt.Errorf("no upstream, upstream_id, or service_id bound")
}

// CheckCreateDependencies runs the cross-resource dependency checks
// required on create/replace of the given kind, against the decoded
// candidate value itself rather than a copy already sitting in the store.
// Callers must run this before Store.Insert, so an invalid or dangling
// resource is never briefly visible to a concurrent reader.
func (r *Registry) CheckCreateDependencies(kind string, candidate any) error {
	switch kind {
	case "routes":
		route, ok := candidate.(*Route)
		if !ok {
			return nil
		}
		if route.UpstreamID != "" && route.ServiceID != "" {
			// Both set: warning only, upstream_id wins.
			slog.Warn("route sets both upstream_id and service_id; upstream_id wins", "route", route.ID)
			return nil
		}
		if route.UpstreamID != "" {
			if _, ok := r.Upstreams.Get(route.UpstreamID); !ok {
				return fmt.Errorf("missing dependency: route %s references unknown upstream %s", route.ID, route.UpstreamID)
			}
		}
		if route.ServiceID != "" {
			if _, ok := r.Services.Get(route.ServiceID); !ok {
				return fmt.Errorf("missing dependency: route %s references unknown service %s", route.ID, route.ServiceID)
			}
		}
	case "services":
		svc, ok := candidate.(*Service)
		if !ok {
			return nil
		}
		if svc.UpstreamID != "" {
			if _, ok := r.Upstreams.Get(svc.UpstreamID); !ok {
				return fmt.Errorf("missing dependency: service %s references unknown upstream %s", svc.ID, svc.UpstreamID)
			}
		}
	case "mcp_services":
		mcp, ok := candidate.(*MCPService)
		if !ok {
			return nil
		}
		if mcp.UpstreamID != "" {
			if _, ok := r.Upstreams.Get(mcp.UpstreamID); !ok {
				return fmt.Errorf("missing dependency: mcp_service %s references unknown upstream %s", mcp.ID, mcp.UpstreamID)
			}
		}
	}
	return nil
}

// Referrers returns the ids of resources that reference upstreamOrServiceID,
// used to block deletion of a resource still in use.
func (r *Registry) Referrers(kind, id string) []string {
	var refs []string
	switch kind {
	case "upstreams":
		for _, rt := range r.Routes.Iter() {
			if rt.UpstreamID == id {
				refs = append(refs, "route:"+rt.ID)
			}
		}
		for _, svc := range r.Services.Iter() {
			if svc.UpstreamID == id {
				refs = append(refs, "service:"+svc.ID)
			}
		}
		for _, mcp := range r.MCPServices.Iter() {
			if mcp.UpstreamID == id {
				refs = append(refs, "mcp_service:"+mcp.ID)
			}
		}
	case "services":
		for _, rt := range r.Routes.Iter() {
			if rt.ServiceID == id {
				refs = append(refs, "route:"+rt.ID)
			}
		}
	}
	return refs
}
