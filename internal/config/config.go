// Package config provides configuration types for the gateway.
//
// Config{pingora, access_point{listeners, admin?, etcd?}, routes, upstreams,
// services, global_rules, ssls, mcps} mirrors the Rust gateway's YAML
// grammar, with each list keyed by its resource id. Pingora/AccessPoint
// are the ambient process/listener settings; the six resource lists are
// unmarshaled straight into the internal/domain/resource types so a loaded
// Config can be handed to a Registry with no further translation.
package config

import (
	"time"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/resource"
)

// ListenerConfig is one bind address the gateway accepts downstream
// connections on.
type ListenerConfig struct {
	Address string `yaml:"address" mapstructure:"address" validate:"required,hostname_port"`
	TLS     bool   `yaml:"tls" mapstructure:"tls"`
	OfferH2 bool   `yaml:"offer_h2" mapstructure:"offer_h2"`
}

// AdminConfig configures the admin API's own bind address and key.
type AdminConfig struct {
	Address string `yaml:"address" mapstructure:"address"`
	APIKey  string `yaml:"api_key" mapstructure:"api_key"`
}

// EtcdConfig configures the remote config-store watcher's etcd half.
type EtcdConfig struct {
	Endpoints []string      `yaml:"endpoints" mapstructure:"endpoints"`
	Prefix    string        `yaml:"prefix" mapstructure:"prefix"`
	Timeout   time.Duration `yaml:"timeout,omitempty" mapstructure:"timeout"`
}

// AccessPointConfig is the downstream-facing half of the process config.
type AccessPointConfig struct {
	Listeners []ListenerConfig `yaml:"listeners" mapstructure:"listeners" validate:"required,min=1,dive"`
	Admin     *AdminConfig     `yaml:"admin,omitempty" mapstructure:"admin"`
	Etcd      *EtcdConfig      `yaml:"etcd,omitempty" mapstructure:"etcd"`
}

// PingoraConfig carries the process-level settings named after the field the
// abridged schema borrows its name from; OSS gateway has no Pingora runtime,
// so this only holds what this gateway's own server pool can use.
type PingoraConfig struct {
	Threads  int    `yaml:"threads" mapstructure:"threads"`
	Daemon   bool   `yaml:"daemon" mapstructure:"daemon"`
	ErrorLog string `yaml:"error_log,omitempty" mapstructure:"error_log"`
}

// Config is the top-level gateway configuration.
type Config struct {
	Pingora     PingoraConfig         `yaml:"pingora" mapstructure:"pingora"`
	AccessPoint AccessPointConfig     `yaml:"access_point" mapstructure:"access_point"`
	Routes      []resource.Route      `yaml:"routes,omitempty" mapstructure:"routes" validate:"omitempty,dive"`
	Upstreams   []resource.Upstream   `yaml:"upstreams,omitempty" mapstructure:"upstreams" validate:"omitempty,dive"`
	Services    []resource.Service    `yaml:"services,omitempty" mapstructure:"services" validate:"omitempty,dive"`
	GlobalRules []resource.GlobalRule `yaml:"global_rules,omitempty" mapstructure:"global_rules" validate:"omitempty,dive"`
	SSLs        []resource.SSL        `yaml:"ssls,omitempty" mapstructure:"ssls" validate:"omitempty,dive"`
	MCPs        []resource.MCPService `yaml:"mcps,omitempty" mapstructure:"mcps" validate:"omitempty,dive"`

	LogLevel string `yaml:"log_level,omitempty" mapstructure:"log_level"`
	DevMode  bool   `yaml:"dev_mode,omitempty" mapstructure:"dev_mode"`
}

// SetDefaults fills in the fields that are optional in the config grammar.
// It tests each field for its zero value, so an explicit zero value in the
// file (threads: 0, an empty log_level) is replaced by the default just as
// an absent one is.
func (c *Config) SetDefaults() {
	if len(c.AccessPoint.Listeners) == 0 {
		c.AccessPoint.Listeners = []ListenerConfig{{Address: "0.0.0.0:8080"}}
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Pingora.Threads == 0 {
		c.Pingora.Threads = 1
	}
	for i := range c.Upstreams {
		if c.Upstreams[i].SelectionPolicy == "" {
			c.Upstreams[i].SelectionPolicy = "round_robin"
		}
		if c.Upstreams[i].Scheme == "" {
			c.Upstreams[i].Scheme = "http"
		}
	}
}

// Registry materializes the resource-kind lists into a fresh
// *resource.Registry, the form every other component consumes.
func (c *Config) Registry() (*resource.Registry, error) {
	reg := resource.NewRegistry()
	for i := range c.Upstreams {
		u := c.Upstreams[i]
		if err := u.Validate(); err != nil {
			return nil, err
		}
		reg.Upstreams.Insert(&u)
	}
	for i := range c.Services {
		s := c.Services[i]
		if err := s.Validate(); err != nil {
			return nil, err
		}
		reg.Services.Insert(&s)
	}
	for i := range c.Routes {
		r := c.Routes[i]
		if err := r.Validate(); err != nil {
			return nil, err
		}
		reg.Routes.Insert(&r)
	}
	for i := range c.GlobalRules {
		g := c.GlobalRules[i]
		if err := g.Validate(); err != nil {
			return nil, err
		}
		reg.GlobalRules.Insert(&g)
	}
	for i := range c.SSLs {
		s := c.SSLs[i]
		if err := s.Validate(); err != nil {
			return nil, err
		}
		reg.SSLs.Insert(&s)
	}
	for i := range c.MCPs {
		m := c.MCPs[i]
		if err := m.Validate(); err != nil {
			return nil, err
		}
		reg.MCPServices.Insert(&m)
	}
	return reg, nil
}
