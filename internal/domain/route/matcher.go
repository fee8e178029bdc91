// Package route implements the route matcher: given a downstream request,
// return the best matching route by host + URI + method + priority.
// Grounded on the method-dispatch and priority-sort idiom of
// internal/domain/proxy/upstream_router.go, with templated URI segments
// compiled to gobwas/glob patterns.
package route

import (
	"sort"
	"strings"
	"sync"

	"github.com/gobwas/glob"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/resource"
)

// compiledRoute is one route's precompiled match entries, one per URI.
type compiledRoute struct {
	route   *resource.Route
	uris    []compiledURI
	methods map[string]bool // empty means "any"
	hosts   map[string]bool // empty means "any"
}

type compiledURI struct {
	literal string // "" if templated
	g       glob.Glob
}

// Matcher holds a rebuildable, read-only match index. Lookups never
// allocate match-table memory on the hot path; only Rebuild allocates.
type Matcher struct {
	mu     sync.RWMutex
	routes []*compiledRoute
}

// New creates an empty Matcher.
func New() *Matcher {
	return &Matcher{}
}

// Rebuild recompiles the match index from the current route set. Intended
// to be wired as the resource store's ChangeHook for the Routes store, so
// a rebuild happens after every mutation of the route set.
func Rebuild(m *Matcher, routes []*resource.Route) {
	compiled := make([]*compiledRoute, 0, len(routes))
	for _, r := range routes {
		compiled = append(compiled, compile(r))
	}
	// Highest priority first; ties broken by id ascending.
	sort.Slice(compiled, func(i, j int) bool {
		if compiled[i].route.Priority != compiled[j].route.Priority {
			return compiled[i].route.Priority > compiled[j].route.Priority
		}
		return compiled[i].route.ID < compiled[j].route.ID
	})

	m.mu.Lock()
	m.routes = compiled
	m.mu.Unlock()
}

func compile(r *resource.Route) *compiledRoute {
	cr := &compiledRoute{route: r}

	uris := r.URIs
	if len(uris) == 0 && r.URI != "" {
		uris = []string{r.URI}
	}
	for _, u := range uris {
		if strings.Contains(u, "{") {
			cr.uris = append(cr.uris, compiledURI{g: glob.MustCompile(templateToGlob(u), '/')})
		} else {
			cr.uris = append(cr.uris, compiledURI{literal: u})
		}
	}

	if len(r.Methods) > 0 {
		cr.methods = make(map[string]bool, len(r.Methods))
		for _, m := range r.Methods {
			cr.methods[strings.ToUpper(m)] = true
		}
	}
	if len(r.Hosts) > 0 {
		cr.hosts = make(map[string]bool, len(r.Hosts))
		for _, h := range r.Hosts {
			cr.hosts[h] = true
		}
	}
	return cr
}

// templateToGlob turns "/users/{id}" into "/users/*", matching any single
// path segment per templated placeholder.
func templateToGlob(uri string) string {
	segments := strings.Split(uri, "/")
	for i, seg := range segments {
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			segments[i] = "*"
		}
	}
	return strings.Join(segments, "/")
}

// Match returns the best matching route for the given host/uri/method, or
// nil if none matches. Match order: host, then URI (exact beats
// templated), then method, then priority/id among survivors.
//
// m.routes is already sorted by priority desc / id asc (Rebuild), so the
// first candidate found within a tier (exact, then templated) is the
// answer for that tier.
func (m *Matcher) Match(host, uri, method string) *resource.Route {
	m.mu.RLock()
	defer m.mu.RUnlock()

	method = strings.ToUpper(method)
	var firstExact, firstTemplated *compiledRoute

	for _, cr := range m.routes {
		if len(cr.hosts) > 0 && !cr.hosts[host] {
			continue
		}
		if len(cr.methods) > 0 && !cr.methods[method] {
			continue
		}
		exact, ok := matchURI(cr, uri)
		if !ok {
			continue
		}
		if exact && firstExact == nil {
			firstExact = cr
		}
		if !exact && firstTemplated == nil {
			firstTemplated = cr
		}
	}

	if firstExact != nil {
		return firstExact.route
	}
	if firstTemplated != nil {
		return firstTemplated.route
	}
	return nil
}

func matchURI(cr *compiledRoute, uri string) (exact bool, ok bool) {
	for _, u := range cr.uris {
		if u.literal != "" {
			if u.literal == uri {
				return true, true
			}
			continue
		}
		if u.g != nil && u.g.Match(uri) {
			ok = true
		}
	}
	return false, ok
}
