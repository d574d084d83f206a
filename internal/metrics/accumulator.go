// Package metrics records dispatch activity twice: short-lived Redis
// counters powering the realtime dashboard, and Prometheus collectors
// for long-term scraping. Both paths are fire-and-forget; a metrics
// failure never disturbs a dispatch.
package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"
)

// GlobalTenant mirrors every per-tenant counter so fleet-wide numbers
// need no cross-tenant scan.
const GlobalTenant = "global"

const (
	minuteTTL  = 300 * time.Second
	hourTTL    = 7200 * time.Second
	latencyTTL = 7200 * time.Second
)

// Backend is the slice of the store the accumulator writes through.
type Backend interface {
	Increment(ctx context.Context, key string, ttl time.Duration) (int64, error)
	GetInt(ctx context.Context, key string) (int64, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Sample describes one finished dispatch.
type Sample struct {
	Tenant   string
	Tool     string
	Success  bool
	CacheHit bool
	Duration time.Duration
}

// Window selects the readback bucket granularity.
type Window string

const (
	WindowMinute Window = "minute"
	WindowHour   Window = "hour"
)

// Realtime is the dashboard readback shape.
type Realtime struct {
	Calls        int64   `json:"calls"`
	Errors       int64   `json:"errors"`
	CacheHits    int64   `json:"cacheHits"`
	SuccessRate  float64 `json:"successRate"`
	CacheHitRate float64 `json:"cacheHitRate"`
}

// Accumulator maintains the Redis counter families.
type Accumulator struct {
	backend Backend
	logger  *slog.Logger
	now     func() time.Time
}

func NewAccumulator(backend Backend, logger *slog.Logger) *Accumulator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Accumulator{
		backend: backend,
		logger:  logger.With("component", "metrics"),
		now:     time.Now,
	}
}

func counterKey(tenant, window string, bucket int64, suffix string) string {
	return fmt.Sprintf("braid:metrics:%s:%s:%d:%s", tenant, window, bucket, suffix)
}

func toolKey(tenant, tool string, bucket int64, suffix string) string {
	return fmt.Sprintf("braid:metrics:%s:tool:%s:%d:%s", tenant, tool, bucket, suffix)
}

func latencyKey(tenant string, epoch int64) string {
	return fmt.Sprintf("braid:metrics:%s:latency:%d", tenant, epoch)
}

// Record bumps every counter family for one dispatch. Callers run it
// off the dispatch goroutine; all storage errors are logged and
// dropped.
func (a *Accumulator) Record(ctx context.Context, s Sample) {
	now := a.now().Unix()
	minBucket := now / 60 * 60
	hourBucket := now / 3600 * 3600

	suffixes := []string{"calls"}
	if !s.Success {
		suffixes = append(suffixes, "errors")
	}
	if s.CacheHit {
		suffixes = append(suffixes, "cache_hits")
	}

	tenants := []string{GlobalTenant}
	if s.Tenant != "" && s.Tenant != GlobalTenant {
		tenants = append(tenants, s.Tenant)
	}

	for _, tenant := range tenants {
		for _, suffix := range suffixes {
			a.bump(ctx, counterKey(tenant, "min", minBucket, suffix), minuteTTL)
			a.bump(ctx, counterKey(tenant, "hour", hourBucket, suffix), hourTTL)
			if suffix != "cache_hits" {
				a.bump(ctx, toolKey(tenant, s.Tool, hourBucket, suffix), hourTTL)
			}
		}
		latency := latencyKey(tenant, now)
		ms := strconv.FormatInt(s.Duration.Milliseconds(), 10)
		if err := a.backend.Set(ctx, latency, []byte(ms), latencyTTL); err != nil {
			a.logger.Warn("latency sample dropped", "key", latency, "error", err)
		}
	}
}

func (a *Accumulator) bump(ctx context.Context, key string, ttl time.Duration) {
	if _, err := a.backend.Increment(ctx, key, ttl); err != nil {
		a.logger.Warn("metric increment dropped", "key", key, "error", err)
	}
}

// RealtimeMetrics reads back the current bucket for a tenant. An empty
// tenant selects the global mirror.
func (a *Accumulator) RealtimeMetrics(ctx context.Context, tenant string, window Window) (Realtime, error) {
	if tenant == "" {
		tenant = GlobalTenant
	}
	now := a.now().Unix()
	var (
		bucket int64
		name   string
	)
	switch window {
	case WindowHour:
		bucket, name = now/3600*3600, "hour"
	default:
		bucket, name = now/60*60, "min"
	}

	var out Realtime
	var err error
	if out.Calls, err = a.backend.GetInt(ctx, counterKey(tenant, name, bucket, "calls")); err != nil {
		return Realtime{}, fmt.Errorf("read calls: %w", err)
	}
	if out.Errors, err = a.backend.GetInt(ctx, counterKey(tenant, name, bucket, "errors")); err != nil {
		return Realtime{}, fmt.Errorf("read errors: %w", err)
	}
	if out.CacheHits, err = a.backend.GetInt(ctx, counterKey(tenant, name, bucket, "cache_hits")); err != nil {
		return Realtime{}, fmt.Errorf("read cache hits: %w", err)
	}

	if out.Calls > 0 {
		out.SuccessRate = round2(float64(out.Calls-out.Errors) / float64(out.Calls) * 100)
		out.CacheHitRate = round2(float64(out.CacheHits) / float64(out.Calls) * 100)
	} else {
		// An idle window reads as healthy, not failing.
		out.SuccessRate = 100
	}
	return out, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
