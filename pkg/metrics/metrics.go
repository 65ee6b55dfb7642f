// Package metrics exposes client-side Prometheus metrics for the request
// pipeline: attempt/retry counts, consumed capacity, and rate-limiter
// delay (SPEC_FULL.md DOMAIN STACK "Metrics"). The teacher exposes server
// metrics via promhttp.Handler (internal/app/http.go); this driver has no
// HTTP server of its own, so it registers against a caller-supplied
// *prometheus.Registry (or the default one) instead of mounting a route.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collectors bundles the counters/histograms one Client registers. Every
// Client builds one through New and records into it on each request.
type Collectors struct {
	Attempts          *prometheus.CounterVec
	Retries           *prometheus.CounterVec
	Errors            *prometheus.CounterVec
	ConsumedReadUnits prometheus.Counter
	ConsumedWriteKB   prometheus.Counter
	RateLimitDelay    *prometheus.HistogramVec
	ProtocolVersion   prometheus.Gauge
}

// New registers a fresh Collectors set against reg. Pass
// prometheus.DefaultRegisterer for process-global metrics, or a private
// *prometheus.Registry in tests to avoid collisions across subtests.
func New(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		Attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nosqldb",
			Name:      "attempts_total",
			Help:      "Total request attempts by opcode.",
		}, []string{"op"}),
		Retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nosqldb",
			Name:      "retries_total",
			Help:      "Total retry re-entries by opcode.",
		}, []string{"op"}),
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nosqldb",
			Name:      "errors_total",
			Help:      "Total final (non-retried) errors by opcode and kind.",
		}, []string{"op", "kind"}),
		ConsumedReadUnits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nosqldb",
			Name:      "consumed_read_units_total",
			Help:      "Cumulative read units reported by the server.",
		}),
		ConsumedWriteKB: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nosqldb",
			Name:      "consumed_write_kb_total",
			Help:      "Cumulative write KB reported by the server.",
		}),
		RateLimitDelay: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "nosqldb",
			Name:      "rate_limit_delay_seconds",
			Help:      "Delay imposed by the client-side rate limiter, by direction.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"direction"}),
		ProtocolVersion: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "nosqldb",
			Name:      "active_protocol_version",
			Help:      "Currently active wire protocol version (2, 3, or 4).",
		}),
	}
	reg.MustRegister(c.Attempts, c.Retries, c.Errors, c.ConsumedReadUnits, c.ConsumedWriteKB, c.RateLimitDelay, c.ProtocolVersion)
	return c
}
