package dispatch

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/braidhq/engine/internal/audit"
	"github.com/braidhq/engine/internal/cache"
	"github.com/braidhq/engine/internal/canon"
	"github.com/braidhq/engine/internal/core"
	"github.com/braidhq/engine/internal/events"
	"github.com/braidhq/engine/internal/executor"
	"github.com/braidhq/engine/internal/gate"
	"github.com/braidhq/engine/internal/infra"
	"github.com/braidhq/engine/internal/metrics"
	"github.com/braidhq/engine/internal/registry"
	"github.com/braidhq/engine/internal/security"
)

const (
	testTenantID = "4f6d2c1e-9a0b-4c3d-8e2f-1a2b3c4d5e6f"
	testUserID   = "0b7e9d4a-1c2f-4a5b-9d8e-7f6a5b4c3d2e"
)

type stubExecutor struct {
	mu      sync.Mutex
	calls   []executor.Call
	results map[string]core.Result // keyed by function name
	panicOn string
}

func (s *stubExecutor) Execute(_ context.Context, call executor.Call) core.Result {
	s.mu.Lock()
	s.calls = append(s.calls, call)
	s.mu.Unlock()
	if s.panicOn != "" && s.panicOn == call.FunctionName {
		panic("runtime exploded")
	}
	if r, ok := s.results[call.FunctionName]; ok {
		return r
	}
	return core.Ok(map[string]any{"ok": true})
}

func (s *stubExecutor) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *stubExecutor) lastCall() executor.Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[len(s.calls)-1]
}

type auditCapture struct {
	mu   sync.Mutex
	rows []*audit.Row
}

func (c *auditCapture) Append(_ context.Context, row *audit.Row) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rows = append(c.rows, row)
	return nil
}

func (c *auditCapture) all() []*audit.Row {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*audit.Row(nil), c.rows...)
}

type harness struct {
	dispatcher *Dispatcher
	exec       *stubExecutor
	store      *infra.MemoryStore
	auditRows  *auditCapture
	sink       *audit.Sink
	bus        *events.Bus
	minter     *security.Minter
	tenant     core.TenantRecord
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	reg := registry.New(nil)
	reg.SetParamOrder("listLeads", []string{"tenant", "status", "limit"})

	store := infra.NewMemoryStore()
	rows := &auditCapture{}
	sink := audit.NewSink(rows, nil)
	minter := security.NewMinter(security.MinterConfig{Secret: "dispatch-test"})
	exec := &stubExecutor{results: make(map[string]core.Result)}
	bus := events.NewBus()

	d := New(Deps{
		Registry: reg,
		Gate:     gate.New(reg, store, nil),
		Canon:    canon.New(nil),
		Cache:    cache.New(store, nil),
		Metrics:  metrics.NewAccumulator(store, nil),
		Audit:    sink,
		Minter:   minter,
		Executor: exec,
		Events:   bus,
	}, Config{
		BackendBaseURL: "http://backend:3000",
		DataSource:     "supabase",
	})

	return &harness{
		dispatcher: d,
		exec:       exec,
		store:      store,
		auditRows:  rows,
		sink:       sink,
		bus:        bus,
		minter:     minter,
		tenant:     core.TenantRecord{ID: testTenantID, Slug: "acme"},
	}
}

func token(role core.Role) *core.AccessToken {
	return &core.AccessToken{
		Verified:  true,
		Source:    core.TokenSource,
		UserRole:  role,
		UserID:    testUserID,
		UserEmail: "rep@acme.io",
		UserName:  "Casey Rep",
	}
}

func (h *harness) execute(t *testing.T, tool string, args core.Args, role core.Role) core.Result {
	t.Helper()
	return h.dispatcher.Execute(context.Background(), tool, args, h.tenant, testUserID, token(role))
}

func TestDispatchNormalizesAndProjectsArgs(t *testing.T) {
	h := newHarness(t)

	// The model layer sends a filter wrapper with string types.
	result := h.execute(t, "list_leads", core.Args{
		"filter": map[string]any{"status": "all", "limit": "25"},
	}, core.RoleUser)
	require.True(t, result.Success)

	call := h.exec.lastCall()
	assert.Equal(t, "leads.js", call.SourceFile)
	assert.Equal(t, "listLeads", call.FunctionName)

	// Positional projection: tenant injected, status erased (nil),
	// limit coerced to an integer.
	require.Len(t, call.Args, 3)
	assert.Equal(t, testTenantID, call.Args[0])
	assert.Nil(t, call.Args[1])
	assert.Equal(t, 25, call.Args[2])

	// The policy context carries identity alongside the policy entry.
	assert.Equal(t, "read-only", call.Policy["name"])
	assert.Equal(t, testTenantID, call.Policy["tenant_id"])
	assert.Equal(t, testUserID, call.Policy["user_id"])

	// The minted credential verifies and carries the dispatch identity.
	claims, err := h.minter.Verify(call.Deps.InternalToken)
	require.NoError(t, err)
	assert.Equal(t, testUserID, claims.Subject)
	assert.Equal(t, testTenantID, claims.TenantID)
	assert.True(t, claims.Internal)
}

func TestInvalidTokenProducesNoSideEffects(t *testing.T) {
	h := newHarness(t)

	bad := &core.AccessToken{Verified: false, Source: core.TokenSource}
	result := h.dispatcher.Execute(context.Background(), "list_leads", core.Args{}, h.tenant, testUserID, bad)

	require.False(t, result.Success)
	assert.Equal(t, core.ErrAuthorization, result.Error.Kind)

	// No executor call, no audit row, no metric counter.
	assert.Equal(t, 0, h.exec.callCount())
	h.sink.Drain()
	assert.Empty(t, h.auditRows.all())

	bucket := time.Now().Unix() / 60 * 60
	calls, err := h.store.GetInt(context.Background(), fmt.Sprintf("braid:metrics:global:min:%d:calls", bucket))
	require.NoError(t, err)
	assert.Zero(t, calls)
}

func TestRoleIsCheckedBeforeConfirmation(t *testing.T) {
	h := newHarness(t)

	// A plain user may not delete at all; confirmation never comes up.
	result := h.execute(t, "delete_lead", core.Args{"lead_id": "l-4"}, core.RoleUser)
	require.False(t, result.Success)
	assert.Equal(t, core.ErrInsufficientPerms, result.Error.Kind)
	assert.Equal(t, 0, h.exec.callCount())
}

func TestDeleteRequiresConfirmation(t *testing.T) {
	h := newHarness(t)

	result := h.execute(t, "delete_lead", core.Args{"lead_id": "l-4"}, core.RoleManager)
	require.False(t, result.Success)
	assert.Equal(t, core.ErrConfirmation, result.Error.Kind)
	assert.Equal(t, 0, h.exec.callCount())

	// The gate refusal is still audited.
	h.sink.Drain()
	rows := h.auditRows.all()
	require.NotEmpty(t, rows)
	assert.Equal(t, "delete_lead", rows[0].ToolName)
	assert.Equal(t, "error", rows[0].ResultStatus)

	// confirmed=true lets the call through.
	result = h.execute(t, "delete_lead", core.Args{"lead_id": "l-4", "confirmed": true}, core.RoleManager)
	require.True(t, result.Success)
	assert.Equal(t, 1, h.exec.callCount())
}

func TestCallerSuppliedTenantIsOverridden(t *testing.T) {
	h := newHarness(t)

	result := h.execute(t, "list_leads", core.Args{"tenant": "11111111-2222-3333-4444-555555555555"}, core.RoleUser)
	require.True(t, result.Success)

	call := h.exec.lastCall()
	assert.Equal(t, testTenantID, call.Args[0])
	assert.Equal(t, testTenantID, call.Deps.TenantID)
}

func TestReadOnlyDispatchIsCached(t *testing.T) {
	h := newHarness(t)
	h.exec.results["listLeads"] = core.Ok(map[string]any{
		"leads": []any{map[string]any{"id": "l-1", "name": "Acme"}},
	})

	first := h.execute(t, "list_leads", core.Args{}, core.RoleUser)
	require.True(t, first.Success)
	assert.Equal(t, 1, h.exec.callCount())
	h.sink.Drain()

	// The cache store is asynchronous; wait for the key to land.
	key := cache.Key(testTenantID, "list_leads", core.Args{"tenant": testTenantID})
	require.Eventually(t, func() bool {
		_, found, _ := h.store.Get(context.Background(), key)
		return found
	}, time.Second, 5*time.Millisecond)

	second := h.execute(t, "list_leads", core.Args{}, core.RoleUser)
	require.True(t, second.Success)
	assert.Equal(t, 1, h.exec.callCount(), "second read must be served from cache")

	h.sink.Drain()
	rows := h.auditRows.all()
	require.Len(t, rows, 2)
	assert.False(t, rows[0].CacheHit)
	assert.True(t, rows[1].CacheHit)
}

func TestWriteInvalidatesTenantCache(t *testing.T) {
	h := newHarness(t)

	// Prime the read cache.
	require.True(t, h.execute(t, "list_leads", core.Args{}, core.RoleUser).Success)
	key := cache.Key(testTenantID, "list_leads", core.Args{"tenant": testTenantID})
	require.Eventually(t, func() bool {
		_, found, _ := h.store.Get(context.Background(), key)
		return found
	}, time.Second, 5*time.Millisecond)

	invalidated := h.bus.Subscribe(events.EventCacheInvalidated)
	defer h.bus.Unsubscribe(invalidated)

	// A successful write for the same tenant clears its namespace.
	result := h.execute(t, "update_lead", core.Args{
		"lead_id": "l-1",
		"updates": map[string]any{"status": "qualified"},
	}, core.RoleUser)
	require.True(t, result.Success)

	_, found, err := h.store.Get(context.Background(), key)
	require.NoError(t, err)
	assert.False(t, found, "tenant cache must be invalidated before the write returns")

	require.Len(t, invalidated, 1)
	ev := <-invalidated
	assert.Equal(t, "lead", ev.Data["entity"])

	// The next read goes back to the executor.
	before := h.exec.callCount()
	require.True(t, h.execute(t, "list_leads", core.Args{}, core.RoleUser).Success)
	assert.Equal(t, before+1, h.exec.callCount())
}

func TestFailedReadIsNeverCached(t *testing.T) {
	h := newHarness(t)
	h.exec.results["listLeads"] = core.Failf(core.ErrDatabase, "connection refused")

	require.False(t, h.execute(t, "list_leads", core.Args{}, core.RoleUser).Success)
	require.False(t, h.execute(t, "list_leads", core.Args{}, core.RoleUser).Success)
	assert.Equal(t, 2, h.exec.callCount(), "errors must not be served from cache")
}

func TestPanicBecomesExecutionError(t *testing.T) {
	h := newHarness(t)
	h.exec.panicOn = "listLeads"

	result := h.execute(t, "list_leads", core.Args{}, core.RoleUser)
	require.False(t, result.Success)
	assert.Equal(t, core.ErrExecution, result.Error.Kind)

	h.sink.Drain()
	rows := h.auditRows.all()
	require.Len(t, rows, 1)
	assert.Equal(t, "error", rows[0].ResultStatus)
	assert.Equal(t, string(core.ErrExecution), rows[0].ErrorType)
}

func TestResultFieldsAreRoleFiltered(t *testing.T) {
	h := newHarness(t)
	h.exec.results["getLead"] = core.Ok(map[string]any{
		"id":               "l-9",
		"name":             "Northwind",
		"internal_notes":   "pushy about pricing",
		"acquisition_cost": 1200,
	})

	asUser := h.execute(t, "get_lead", core.Args{"lead_id": "l-9"}, core.RoleUser)
	require.True(t, asUser.Success)
	data := asUser.Data.(map[string]any)
	assert.NotContains(t, data, "internal_notes")
	assert.NotContains(t, data, "acquisition_cost")

	asAdmin := h.execute(t, "get_lead", core.Args{"lead_id": "l-9"}, core.RoleAdmin)
	data = asAdmin.Data.(map[string]any)
	assert.Contains(t, data, "internal_notes")
	assert.Contains(t, data, "acquisition_cost")
}

func TestUnknownToolIsAudited(t *testing.T) {
	h := newHarness(t)

	result := h.execute(t, "does_not_exist", core.Args{}, core.RoleUser)
	require.False(t, result.Success)
	assert.Equal(t, core.ErrUnknownTool, result.Error.Kind)
	assert.Contains(t, result.Error.Message, "does_not_exist")

	h.sink.Drain()
	rows := h.auditRows.all()
	require.Len(t, rows, 1)
	assert.Equal(t, "does_not_exist", rows[0].ToolName)
	assert.Empty(t, rows[0].BraidFunction)
}

func TestRateLimitWallIsAudited(t *testing.T) {
	h := newHarness(t)

	// external-api tools allow 10 calls per minute.
	for i := 0; i < 10; i++ {
		result := h.execute(t, "enrich_company", core.Args{"domain": "acme.io"}, core.RoleUser)
		require.True(t, result.Success, "call %d", i)
	}

	result := h.execute(t, "enrich_company", core.Args{"domain": "acme.io"}, core.RoleUser)
	require.False(t, result.Success)
	assert.Equal(t, core.ErrRateLimitExceeded, result.Error.Kind)
	assert.Equal(t, 60, result.Error.RetryAfter)
	assert.Equal(t, 10, h.exec.callCount())

	// The refused call is still audited.
	h.sink.Drain()
	rows := h.auditRows.all()
	require.Len(t, rows, 11)
	limited := 0
	for _, row := range rows {
		if row.ErrorType == string(core.ErrRateLimitExceeded) {
			limited++
		}
	}
	assert.Equal(t, 1, limited)
}

func TestDispatchEmitsLifecycleEvents(t *testing.T) {
	h := newHarness(t)
	executed := h.bus.Subscribe(events.EventToolExecuted)
	failed := h.bus.Subscribe(events.EventToolFailed)
	defer h.bus.Unsubscribe(executed)
	defer h.bus.Unsubscribe(failed)

	h.execute(t, "list_leads", core.Args{}, core.RoleUser)
	require.Len(t, executed, 1)
	ev := <-executed
	assert.Equal(t, testTenantID, ev.TenantID)
	assert.Equal(t, "list_leads", ev.Data["tool"])

	h.exec.results["getLead"] = core.Failf(core.ErrNotFound, "missing")
	h.execute(t, "get_lead", core.Args{"lead_id": "l-1"}, core.RoleUser)
	require.Len(t, failed, 1)
	ev = <-failed
	assert.Equal(t, string(core.ErrNotFound), ev.Data["error_type"])
}

func TestDispatchRecordsMetrics(t *testing.T) {
	h := newHarness(t)

	require.True(t, h.execute(t, "list_leads", core.Args{}, core.RoleUser).Success)

	bucket := time.Now().Unix() / 60 * 60
	key := fmt.Sprintf("braid:metrics:%s:min:%d:calls", testTenantID, bucket)
	assert.Eventually(t, func() bool {
		n, err := h.store.GetInt(context.Background(), key)
		return err == nil && n == 1
	}, time.Second, 5*time.Millisecond)
}

func TestBatchSequentialPreservesOrder(t *testing.T) {
	h := newHarness(t)
	h.exec.results["listLeads"] = core.Ok(map[string]any{"kind": "leads"})
	h.exec.results["listAccounts"] = core.Ok(map[string]any{"kind": "accounts"})

	calls := []BatchCall{
		{Tool: "list_leads", Args: core.Args{}},
		{Tool: "list_accounts", Args: core.Args{}},
		{Tool: "does_not_exist", Args: core.Args{}},
	}
	results := h.dispatcher.ExecuteBatch(context.Background(), calls, false, h.tenant, testUserID, token(core.RoleUser))

	require.Len(t, results, 3)
	assert.Equal(t, "leads", results[0].Data.(map[string]any)["kind"])
	assert.Equal(t, "accounts", results[1].Data.(map[string]any)["kind"])
	assert.True(t, results[2].IsKind(core.ErrUnknownTool))
}

func TestBatchParallelPreservesOrder(t *testing.T) {
	h := newHarness(t)
	h.exec.results["listLeads"] = core.Ok(map[string]any{"kind": "leads"})
	h.exec.results["listAccounts"] = core.Ok(map[string]any{"kind": "accounts"})
	h.exec.results["listActivities"] = core.Ok(map[string]any{"kind": "activities"})

	calls := []BatchCall{
		{Tool: "list_leads", Args: core.Args{}},
		{Tool: "list_accounts", Args: core.Args{}},
		{Tool: "list_activities", Args: core.Args{}},
	}
	results := h.dispatcher.ExecuteBatch(context.Background(), calls, true, h.tenant, testUserID, token(core.RoleUser))

	require.Len(t, results, 3)
	assert.Equal(t, "leads", results[0].Data.(map[string]any)["kind"])
	assert.Equal(t, "accounts", results[1].Data.(map[string]any)["kind"])
	assert.Equal(t, "activities", results[2].Data.(map[string]any)["kind"])
	assert.Equal(t, 3, h.exec.callCount())
}
