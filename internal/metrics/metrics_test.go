package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/braidhq/engine/internal/infra"
)

const tenantID = "4f6d2c1e-9a0b-4c3d-8e2f-1a2b3c4d5e6f"

func fixedAccumulator(t *testing.T) (*Accumulator, *infra.MemoryStore) {
	t.Helper()
	store := infra.NewMemoryStore()
	acc := NewAccumulator(store, nil)
	at := time.Date(2026, 8, 25, 14, 30, 45, 0, time.UTC)
	acc.now = func() time.Time { return at }
	return acc, store
}

func TestRecordBumpsTenantAndGlobal(t *testing.T) {
	acc, store := fixedAccumulator(t)
	ctx := context.Background()

	acc.Record(ctx, Sample{Tenant: tenantID, Tool: "list_leads", Success: true, Duration: 120 * time.Millisecond})
	acc.Record(ctx, Sample{Tenant: tenantID, Tool: "list_leads", Success: false, Duration: 80 * time.Millisecond})
	acc.Record(ctx, Sample{Tenant: tenantID, Tool: "list_leads", Success: true, CacheHit: true})

	for _, tenant := range []string{tenantID, GlobalTenant} {
		got, err := acc.RealtimeMetrics(ctx, tenant, WindowMinute)
		require.NoError(t, err)
		assert.EqualValues(t, 3, got.Calls, tenant)
		assert.EqualValues(t, 1, got.Errors, tenant)
		assert.EqualValues(t, 1, got.CacheHits, tenant)
		assert.InDelta(t, 66.67, got.SuccessRate, 0.01, tenant)
		assert.InDelta(t, 33.33, got.CacheHitRate, 0.01, tenant)
	}

	// Hour buckets accumulate the same samples.
	hour, err := acc.RealtimeMetrics(ctx, tenantID, WindowHour)
	require.NoError(t, err)
	assert.EqualValues(t, 3, hour.Calls)

	// Per-tool hour counters exist under both tenants.
	bucket := acc.now().Unix() / 3600 * 3600
	n, err := store.GetInt(ctx, toolKey(tenantID, "list_leads", bucket, "calls"))
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
	n, err = store.GetInt(ctx, toolKey(GlobalTenant, "list_leads", bucket, "errors"))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestLatencySampleWritten(t *testing.T) {
	acc, store := fixedAccumulator(t)
	ctx := context.Background()

	acc.Record(ctx, Sample{Tenant: tenantID, Tool: "get_lead", Success: true, Duration: 250 * time.Millisecond})

	raw, ok, err := store.Get(ctx, latencyKey(tenantID, acc.now().Unix()))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "250", string(raw))
}

func TestIdleWindowReadsHealthy(t *testing.T) {
	acc, _ := fixedAccumulator(t)
	got, err := acc.RealtimeMetrics(context.Background(), "", WindowMinute)
	require.NoError(t, err)
	assert.Zero(t, got.Calls)
	assert.EqualValues(t, 100, got.SuccessRate)
	assert.Zero(t, got.CacheHitRate)
}

func TestEmptyTenantSelectsGlobal(t *testing.T) {
	acc, _ := fixedAccumulator(t)
	ctx := context.Background()

	acc.Record(ctx, Sample{Tenant: tenantID, Tool: "get_lead", Success: true})

	global, err := acc.RealtimeMetrics(ctx, "", WindowMinute)
	require.NoError(t, err)
	assert.EqualValues(t, 1, global.Calls)
}

func TestCollectors(t *testing.T) {
	c := NewCollectors(prometheus.NewRegistry())

	c.RecordDispatch("list_leads", true, false, 0.12)
	c.RecordDispatch("list_leads", true, true, 0)
	c.RecordDispatch("create_lead", false, false, 0.4)
	c.RecordRateLimited("external_operations")
	c.RecordChain("lead_to_opportunity", true, 1.1)
	c.RecordChain("lead_to_opportunity", false, 0.2)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.DispatchTotal.WithLabelValues("list_leads", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.DispatchTotal.WithLabelValues("list_leads", "cache_hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.DispatchTotal.WithLabelValues("create_lead", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.CacheHits.WithLabelValues("list_leads")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.RateLimited.WithLabelValues("external_operations")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.ChainTotal.WithLabelValues("lead_to_opportunity", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.ChainTotal.WithLabelValues("lead_to_opportunity", "failed")))
}
