package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validate validates the Config using struct tags plus the resource
// package's own per-kind Validate() methods, then runs the cross-resource
// dependency checks required at load time.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())

	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	for i := range c.Upstreams {
		if err := c.Upstreams[i].Validate(); err != nil {
			return err
		}
	}
	for i := range c.Services {
		if err := c.Services[i].Validate(); err != nil {
			return err
		}
	}
	for i := range c.Routes {
		if err := c.Routes[i].Validate(); err != nil {
			return err
		}
	}
	for i := range c.GlobalRules {
		if err := c.GlobalRules[i].Validate(); err != nil {
			return err
		}
	}
	for i := range c.SSLs {
		if err := c.SSLs[i].Validate(); err != nil {
			return err
		}
	}
	for i := range c.MCPs {
		if err := c.MCPs[i].Validate(); err != nil {
			return err
		}
	}

	return c.validateReferences()
}

// validateReferences ensures every route/service/mcp upstream_id or
// service_id reference resolves within this same Config, mirroring spec
// §8's "For every Route r with upstream_id = u, Upstream u is present"
// invariant at load time rather than only at lookup time.
func (c *Config) validateReferences() error {
	upstreams := make(map[string]struct{}, len(c.Upstreams))
	for _, u := range c.Upstreams {
		upstreams[u.ID] = struct{}{}
	}
	services := make(map[string]struct{}, len(c.Services))
	for _, s := range c.Services {
		services[s.ID] = struct{}{}
	}

	for _, r := range c.Routes {
		if r.UpstreamID != "" {
			if _, ok := upstreams[r.UpstreamID]; !ok {
				return fmt.Errorf("route %s: unknown upstream_id %q", r.ID, r.UpstreamID)
			}
		}
		if r.ServiceID != "" {
			if _, ok := services[r.ServiceID]; !ok {
				return fmt.Errorf("route %s: unknown service_id %q", r.ID, r.ServiceID)
			}
		}
	}
	for _, s := range c.Services {
		if s.UpstreamID != "" {
			if _, ok := upstreams[s.UpstreamID]; !ok {
				return fmt.Errorf("service %s: unknown upstream_id %q", s.ID, s.UpstreamID)
			}
		}
	}
	for _, m := range c.MCPs {
		if m.UpstreamID != "" {
			if _, ok := upstreams[m.UpstreamID]; !ok {
				return fmt.Errorf("mcp_service %s: unknown upstream_id %q", m.ID, m.UpstreamID)
			}
		}
	}
	return nil
}

// formatValidationErrors converts validator.ValidationErrors to user-friendly messages.
func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		var messages []string
		for _, e := range validationErrors {
			messages = append(messages, formatSingleValidationError(e))
		}
		return errors.New(strings.Join(messages, "; "))
	}
	return err
}

// formatSingleValidationError creates a user-friendly message for a single validation error.
func formatSingleValidationError(e validator.FieldError) string {
	field := e.Namespace()
	tag := e.Tag()

	switch tag {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must have at least %s items", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "hostname_port":
		return fmt.Sprintf("%s must be a valid host:port", field)
	default:
		return fmt.Sprintf("%s failed validation: %s", field, tag)
	}
}
