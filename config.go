// Package nosqldb is the top-level client driver core: Config, Client,
// Request, the retry/rate-limit pipeline, and the observer surface (spec
// §2 control flow). It wires pkg/protocol + pkg/ops + pkg/transport +
// pkg/ratelimit + pkg/auth + pkg/nosqlerr together the way the teacher's
// internal/app/app.go wires its own subsystems.
package nosqldb

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"progressdb/nosqldb/pkg/auth"
	"progressdb/nosqldb/pkg/metrics"
	"progressdb/nosqldb/pkg/wirebinary"
)

// TransportKind selects which pkg/transport.Transport implementation a
// Client uses (SPEC_FULL.md DOMAIN STACK: net/http default, fasthttp
// alternate, mirroring the teacher's two httpx adapters).
type TransportKind int

const (
	TransportNetHTTP TransportKind = iota
	TransportFastHTTP
)

// RateLimiterConfig configures the §4.7 control loop. Enabled defaults to
// false: rate limiting is opt-in, since it requires a GetTable round trip
// per table touched.
type RateLimiterConfig struct {
	Enabled      bool
	Percentage   float64 // share of table limits this client may use; 0 means 100
	BurstSeconds float64 // 0 means a 1-second burst window
}

// Config is the struct a Client is built from (spec §6 "Configured values
// (no CLI)"; SPEC_FULL.md AMBIENT STACK "Configuration"). No command-line
// parsing lives in this package; a host binary (e.g. cmd/nosqlctl) is
// free to populate one from flags or from a YAML file loaded with
// pkg/config.Load.
type Config struct {
	Endpoint string `yaml:"endpoint"`

	Auth auth.Provider `yaml:"-"`

	DefaultTimeout      time.Duration `yaml:"default_timeout"`
	SecurityInfoTimeout time.Duration `yaml:"security_info_timeout"`
	MaxRequestTimeout   time.Duration `yaml:"max_request_timeout"`

	StartProtocolVersion wirebinary.SerialVersion `yaml:"start_protocol_version"`
	Transport            TransportKind            `yaml:"transport"`

	Namespace   string `yaml:"namespace"`
	Compartment string `yaml:"compartment"`

	RateLimiter RateLimiterConfig `yaml:"rate_limiter"`

	Registerer  prometheus.Registerer `yaml:"-"`
	Observer    Observer              `yaml:"-"`
	RetryPolicy RetryHandler          `yaml:"-"`

	UserAgentSuffix string `yaml:"user_agent_suffix"`
}

// DefaultMaxRequestTimeout is the per-attempt cap spec §4.6 fixes
// regardless of the caller's overall timeout ("MAX_REQUEST_TIMEOUT = 30s").
const DefaultMaxRequestTimeout = 30 * time.Second

func (c Config) withDefaults() Config {
	if c.DefaultTimeout <= 0 {
		c.DefaultTimeout = 5 * time.Second
	}
	if c.MaxRequestTimeout <= 0 {
		c.MaxRequestTimeout = DefaultMaxRequestTimeout
	}
	if c.SecurityInfoTimeout <= 0 {
		c.SecurityInfoTimeout = 10 * time.Second
	}
	if c.StartProtocolVersion == 0 {
		c.StartProtocolVersion = wirebinary.V4
	}
	if c.Auth == nil {
		c.Auth = auth.NoAuth{}
	}
	if c.Registerer == nil {
		c.Registerer = prometheus.NewRegistry()
	}
	if c.RetryPolicy == nil {
		c.RetryPolicy = DefaultRetryHandler{}
	}
	return c
}

func (c Config) newMetrics() *metrics.Collectors {
	return metrics.New(c.Registerer)
}
