package resource

import "sync"

// ScopedRouteMetas holds the compiled tool-manifest bindings for the global
// scope and every tenant scope, each behind its own copy-on-write swap so
// readers never observe a partially updated manifest.
type ScopedRouteMetas struct {
	mu     sync.RWMutex
	global map[string]*RouteMeta
	tenant map[string]map[string]*RouteMeta
}

// NewScopedRouteMetas creates an empty ScopedRouteMetas.
func NewScopedRouteMetas() *ScopedRouteMetas {
	return &ScopedRouteMetas{
		global: make(map[string]*RouteMeta),
		tenant: make(map[string]map[string]*RouteMeta),
	}
}

// Replace swaps the whole map for one scope ("" means global) wholesale.
func (s *ScopedRouteMetas) Replace(tenant string, metas map[string]*RouteMeta) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tenant == "" {
		s.global = metas
		return
	}
	s.tenant[tenant] = metas
}

// Lookup resolves a tool name, with per-tenant maps shadowing the global
// map (see DESIGN.md: per-tenant shadows global by decision, not default).
func (s *ScopedRouteMetas) Lookup(tenant, name string) (*RouteMeta, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if tenant != "" {
		if m, ok := s.tenant[tenant]; ok {
			if meta, ok := m[name]; ok {
				return meta, true
			}
		}
	}
	meta, ok := s.global[name]
	return meta, ok
}

// List returns every RouteMeta visible for a scope (tenant entries plus any
// global entries not shadowed by a same-named tenant entry).
func (s *ScopedRouteMetas) List(tenant string) []*RouteMeta {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]bool)
	var out []*RouteMeta
	if tenant != "" {
		for name, meta := range s.tenant[tenant] {
			out = append(out, meta)
			seen[name] = true
		}
	}
	for name, meta := range s.global {
		if !seen[name] {
			out = append(out, meta)
		}
	}
	return out
}
