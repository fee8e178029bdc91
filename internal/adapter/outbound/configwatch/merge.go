// Package configwatch keeps a running Registry in sync with its config
// source: a local file watched with fsnotify, or a remote HTTP config store
// polled on an interval. Both paths funnel through ApplyConfig, which
// validates the whole incoming config before mutating anything and reuses
// the existing pointer for any resource whose value didn't change, so a
// reload that only touches one route doesn't also replace every other
// route's identity.
package configwatch

import (
	"fmt"
	"reflect"

	"github.com/Sentinel-Gate/Sentinelgate/internal/config"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/resource"
)

// ApplyConfig validates every resource in cfg and, only if all validate,
// merges them into reg one store at a time. A validation failure leaves reg
// untouched.
func ApplyConfig(cfg *config.Config, reg *resource.Registry) error {
	upstreams, err := validateAll(cfg.Upstreams, func(u *resource.Upstream) error { return u.Validate() })
	if err != nil {
		return fmt.Errorf("upstreams: %w", err)
	}
	services, err := validateAll(cfg.Services, func(s *resource.Service) error { return s.Validate() })
	if err != nil {
		return fmt.Errorf("services: %w", err)
	}
	routes, err := validateAll(cfg.Routes, func(r *resource.Route) error { return r.Validate() })
	if err != nil {
		return fmt.Errorf("routes: %w", err)
	}
	globalRules, err := validateAll(cfg.GlobalRules, func(g *resource.GlobalRule) error { return g.Validate() })
	if err != nil {
		return fmt.Errorf("global_rules: %w", err)
	}
	ssls, err := validateAll(cfg.SSLs, func(s *resource.SSL) error { return s.Validate() })
	if err != nil {
		return fmt.Errorf("ssls: %w", err)
	}
	mcps, err := validateAll(cfg.MCPs, func(m *resource.MCPService) error { return m.Validate() })
	if err != nil {
		return fmt.Errorf("mcps: %w", err)
	}

	mergeReload(reg.Upstreams, upstreams)
	mergeReload(reg.Services, services)
	mergeReload(reg.Routes, routes)
	mergeReload(reg.GlobalRules, globalRules)
	mergeReload(reg.SSLs, ssls)
	mergeReload(reg.MCPServices, mcps)
	return nil
}

// validateAll runs validate over a copy of each element of list (so the
// returned pointers don't alias cfg's backing array) and collects the
// pointers, failing fast on the first invalid entry.
func validateAll[T any](list []T, validate func(*T) error) ([]*T, error) {
	out := make([]*T, 0, len(list))
	for i := range list {
		item := list[i]
		if err := validate(&item); err != nil {
			return nil, err
		}
		out = append(out, &item)
	}
	return out, nil
}

// mergeReload swaps store's contents for next, except that an entry whose
// id already exists in store with a deeply-equal value keeps the store's
// existing pointer instead of next's. Store.Reload always replaces its
// shard contents wholesale; this is the identity-preserving diff in front
// of it that a config reload needs and a plain Reload doesn't provide.
func mergeReload[T resource.Identifiable](store *resource.Store[T], next []T) {
	merged := make([]T, len(next))
	for i, item := range next {
		if old, ok := store.Get(item.GetID()); ok && reflect.DeepEqual(old, item) {
			merged[i] = old
			continue
		}
		merged[i] = item
	}
	store.Reload(merged)
}
