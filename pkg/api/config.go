package api

import (
	"fmt"
	"time"
)

// Service names an eec HTTP service.
type Service string

const (
	ServiceAuth    Service = "auth"
	ServiceEntity  Service = "entity"
	ServiceCluster Service = "cluster"
	ServiceUser    Service = "user"
	ServiceMention Service = "mention"
)

// AllServices lists every service in start order: auth first so that the
// bootstrap admin exists before the other services take requests.
var AllServices = []Service{ServiceAuth, ServiceEntity, ServiceCluster, ServiceUser, ServiceMention}

// BasePath returns the URL prefix of the service's API routes.
func (s Service) BasePath() string {
	switch s {
	case ServiceEntity:
		return "/api/v1/entity"
	case ServiceCluster:
		return "/api/v1/clusters"
	case ServiceUser:
		return "/api/v1/users"
	case ServiceMention:
		return "/api/v1/mention"
	default:
		return "/api/v1/auth"
	}
}

// Verifier modes.
const (
	VerifierLocal  = "local"
	VerifierRemote = "remote"
)

// ServerConfig configures the HTTP services.
type ServerConfig struct {
	// Services lists the services this process runs.
	// Default: all of them
	Services []string `mapstructure:"services" validate:"dive,oneof=auth entity cluster user mention" yaml:"services"`

	// Host is the listen address. Default: "" (all interfaces)
	Host string `mapstructure:"host" yaml:"host"`

	// Ports assigns one port per service.
	Ports PortsConfig `mapstructure:"ports" yaml:"ports"`

	// ReadTimeout is the maximum duration for reading the entire request,
	// including the body. Default: 10s
	ReadTimeout time.Duration `mapstructure:"read_timeout" validate:"gte=0" yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of the
	// response. Default: 60s
	WriteTimeout time.Duration `mapstructure:"write_timeout" validate:"gte=0" yaml:"write_timeout"`

	// IdleTimeout is the keep-alive idle limit. Default: 60s
	IdleTimeout time.Duration `mapstructure:"idle_timeout" validate:"gte=0" yaml:"idle_timeout"`

	// RequestTimeout bounds a request, including the wait for data locks.
	// Default: 30s
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"gte=0" yaml:"request_timeout"`

	// Verifier selects how non-auth services check bearer tokens.
	Verifier VerifierConfig `mapstructure:"verifier" yaml:"verifier"`
}

// PortsConfig holds one TCP port per service.
type PortsConfig struct {
	Auth    int `mapstructure:"auth" validate:"omitempty,min=1,max=65535" yaml:"auth"`
	Entity  int `mapstructure:"entity" validate:"omitempty,min=1,max=65535" yaml:"entity"`
	Cluster int `mapstructure:"cluster" validate:"omitempty,min=1,max=65535" yaml:"cluster"`
	User    int `mapstructure:"user" validate:"omitempty,min=1,max=65535" yaml:"user"`
	Mention int `mapstructure:"mention" validate:"omitempty,min=1,max=65535" yaml:"mention"`
}

// VerifierConfig configures token verification.
type VerifierConfig struct {
	// Mode is "local" (shared JWT secret) or "remote" (ask the auth
	// service). Default: local
	Mode string `mapstructure:"mode" validate:"omitempty,oneof=local remote" yaml:"mode"`

	// AuthURL is the auth service base URL used in remote mode, e.g.
	// "http://auth:8001/api/v1/auth".
	AuthURL string `mapstructure:"auth_url" validate:"required_if=Mode remote" yaml:"auth_url"`

	// Timeout bounds one remote verification. Default: 5s
	Timeout time.Duration `mapstructure:"timeout" validate:"gte=0" yaml:"timeout"`
}

// ApplyDefaults fills in zero values with sensible defaults.
func (c *ServerConfig) ApplyDefaults() {
	if len(c.Services) == 0 {
		for _, s := range AllServices {
			c.Services = append(c.Services, string(s))
		}
	}
	if c.Ports.Auth == 0 {
		c.Ports.Auth = 8001
	}
	if c.Ports.Entity == 0 {
		c.Ports.Entity = 8002
	}
	if c.Ports.Cluster == 0 {
		c.Ports.Cluster = 8003
	}
	if c.Ports.User == 0 {
		c.Ports.User = 8004
	}
	if c.Ports.Mention == 0 {
		c.Ports.Mention = 8005
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 60 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 60 * time.Second
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.Verifier.Mode == "" {
		c.Verifier.Mode = VerifierLocal
	}
	if c.Verifier.Timeout == 0 {
		c.Verifier.Timeout = 5 * time.Second
	}
}

// Port returns the configured port of s.
func (c *ServerConfig) Port(s Service) int {
	switch s {
	case ServiceEntity:
		return c.Ports.Entity
	case ServiceCluster:
		return c.Ports.Cluster
	case ServiceUser:
		return c.Ports.User
	case ServiceMention:
		return c.Ports.Mention
	default:
		return c.Ports.Auth
	}
}

// Addr returns the listen address of s.
func (c *ServerConfig) Addr(s Service) string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port(s))
}

// Enabled returns the configured services in start order.
func (c *ServerConfig) Enabled() []Service {
	var out []Service
	for _, s := range AllServices {
		for _, name := range c.Services {
			if name == string(s) {
				out = append(out, s)
				break
			}
		}
	}
	return out
}
