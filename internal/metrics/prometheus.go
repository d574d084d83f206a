package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collectors holds the Prometheus instruments exposed on /metrics.
type Collectors struct {
	DispatchTotal    *prometheus.CounterVec
	DispatchDuration *prometheus.HistogramVec
	CacheHits        *prometheus.CounterVec
	RateLimited      *prometheus.CounterVec
	ChainTotal       *prometheus.CounterVec
	ChainDuration    *prometheus.HistogramVec
}

// NewCollectors registers the engine's instruments on reg. Pass
// prometheus.DefaultRegisterer in the host, a fresh registry in tests.
func NewCollectors(reg prometheus.Registerer) *Collectors {
	factory := promauto.With(reg)
	return &Collectors{
		DispatchTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "braid_dispatch_total",
				Help: "Tool dispatches by outcome",
			},
			[]string{"tool", "status"}, // status: ok, error, cache_hit
		),
		DispatchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "braid_dispatch_duration_seconds",
				Help:    "End-to-end dispatch latency including the executor call",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"tool"},
		),
		CacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "braid_cache_hits_total",
				Help: "Read-through cache hits",
			},
			[]string{"tool"},
		),
		RateLimited: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "braid_rate_limited_total",
				Help: "Dispatches refused by the per-minute rate limit",
			},
			[]string{"tool_class"},
		),
		ChainTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "braid_chain_total",
				Help: "Chain executions by outcome",
			},
			[]string{"chain", "status"}, // status: ok, failed
		),
		ChainDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "braid_chain_duration_seconds",
				Help:    "Chain execution latency across all steps",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"chain"},
		),
	}
}

// RecordDispatch classifies one finished dispatch.
func (c *Collectors) RecordDispatch(tool string, success, cacheHit bool, seconds float64) {
	status := "error"
	switch {
	case cacheHit:
		status = "cache_hit"
		c.CacheHits.WithLabelValues(tool).Inc()
	case success:
		status = "ok"
	}
	c.DispatchTotal.WithLabelValues(tool, status).Inc()
	c.DispatchDuration.WithLabelValues(tool).Observe(seconds)
}

// RecordRateLimited counts a refusal for a tool class.
func (c *Collectors) RecordRateLimited(toolClass string) {
	c.RateLimited.WithLabelValues(toolClass).Inc()
}

// RecordChain classifies one finished chain execution.
func (c *Collectors) RecordChain(chain string, success bool, seconds float64) {
	status := "failed"
	if success {
		status = "ok"
	}
	c.ChainTotal.WithLabelValues(chain, status).Inc()
	c.ChainDuration.WithLabelValues(chain).Observe(seconds)
}
