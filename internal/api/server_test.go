package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/braidhq/engine/internal/chain"
	"github.com/braidhq/engine/internal/core"
	"github.com/braidhq/engine/internal/database"
	"github.com/braidhq/engine/internal/dispatch"
	"github.com/braidhq/engine/internal/events"
	"github.com/braidhq/engine/internal/graph"
	"github.com/braidhq/engine/internal/infra"
	"github.com/braidhq/engine/internal/metrics"
	"github.com/braidhq/engine/internal/registry"
)

const (
	testKey      = "braid_abc123_s3cr3t"
	testTenantID = "4f6d2c1e-9a0b-4c3d-8e2f-1a2b3c4d5e6f"
	testUserID   = "0b7e9d4a-1c2f-4a5b-9d8e-7f6a5b4c3d2e"
)

type stubAuth struct {
	role string
}

func (a stubAuth) ValidateAPIKey(ctx context.Context, fullKey string) (*database.APIKey, *database.Tenant, error) {
	if fullKey != testKey {
		return nil, nil, errors.New("invalid api key")
	}
	role := a.role
	if role == "" {
		role = "manager"
	}
	return &database.APIKey{KeyID: "abc123", TenantID: testTenantID, Role: role, IsActive: true},
		&database.Tenant{TenantID: testTenantID, TenantSlug: "acme", Status: "ACTIVE"},
		nil
}

type dispatchRecord struct {
	tool   string
	args   core.Args
	tenant core.TenantRecord
	userID string
	token  *core.AccessToken
}

type stubDispatcher struct {
	mu      sync.Mutex
	calls   []dispatchRecord
	results map[string]core.Result
}

func (d *stubDispatcher) Execute(ctx context.Context, toolName string, rawArgs core.Args, tenant core.TenantRecord, userID string, token *core.AccessToken) core.Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, dispatchRecord{toolName, rawArgs, tenant, userID, token})
	if r, ok := d.results[toolName]; ok {
		return r
	}
	return core.Ok(map[string]any{"id": toolName + "-1"})
}

func (d *stubDispatcher) ExecuteBatch(ctx context.Context, calls []dispatch.BatchCall, parallel bool, tenant core.TenantRecord, userID string, token *core.AccessToken) []core.Result {
	out := make([]core.Result, len(calls))
	for i, c := range calls {
		out[i] = d.Execute(ctx, c.Tool, c.Args, tenant, userID, token)
	}
	return out
}

func (d *stubDispatcher) last(t *testing.T) dispatchRecord {
	t.Helper()
	d.mu.Lock()
	defer d.mu.Unlock()
	require.NotEmpty(t, d.calls)
	return d.calls[len(d.calls)-1]
}

type stubChains struct {
	mu     sync.Mutex
	name   string
	input  core.Args
	result chain.ChainResult
}

func (c *stubChains) Execute(ctx context.Context, name string, input core.Args, tenant core.TenantRecord, userID string, token *core.AccessToken) chain.ChainResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.name, c.input = name, input
	return c.result
}

type apiHarness struct {
	server     *httptest.Server
	dispatcher *stubDispatcher
	chains     *stubChains
	realtime   *metrics.Accumulator
	bus        *events.Bus
}

func newAPIHarness(t *testing.T, role string) *apiHarness {
	t.Helper()

	store := infra.NewMemoryStore()
	bus := events.NewBus()
	chainDefs := chain.NewRegistry(chain.Builtins()...)
	d := &stubDispatcher{results: map[string]core.Result{}}
	c := &stubChains{result: chain.ChainResult{Success: true, ChainName: "lead_to_opportunity"}}
	acc := metrics.NewAccumulator(store, nil)

	s := NewServer(Deps{
		Dispatcher: d,
		Chains:     c,
		ChainDefs:  chainDefs,
		Registry:   registry.New(nil),
		Analyzer:   graph.New(graph.DefaultNodes(), chainDefs.List()),
		Realtime:   acc,
		Bus:        bus,
		Auth:       stubAuth{role: role},
	})

	ts := httptest.NewServer(s.Router())
	t.Cleanup(ts.Close)
	return &apiHarness{server: ts, dispatcher: d, chains: c, realtime: acc, bus: bus}
}

func (h *apiHarness) request(t *testing.T, method, path, key string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, h.server.URL+path, &buf)
	require.NoError(t, err)
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := h.server.Client().Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func validUser() map[string]any {
	return map[string]any{"id": testUserID, "email": "rep@acme.test", "name": "Dana Scully"}
}

func TestHealthzNeedsNoKey(t *testing.T) {
	h := newAPIHarness(t, "")

	resp := h.request(t, http.MethodGet, "/healthz", "", nil)
	body := decodeBody(t, resp)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, float64(48), body["tools"])
	assert.Equal(t, float64(4), body["chains"])
}

func TestAPIKeyIsRequired(t *testing.T) {
	h := newAPIHarness(t, "")

	resp := h.request(t, http.MethodGet, "/api/tools", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	resp = h.request(t, http.MethodGet, "/api/tools", "braid_wrong_key", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, "invalid api key", body["error"])

	assert.Empty(t, h.dispatcher.calls)
}

func TestExecuteBuildsTokenFromKeyRole(t *testing.T) {
	h := newAPIHarness(t, "manager")

	resp := h.request(t, http.MethodPost, "/api/tools/execute", testKey, map[string]any{
		"tool": "get_lead",
		"args": map[string]any{"lead_id": "lead-1"},
		"user": validUser(),
	})
	body := decodeBody(t, resp)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	result := body["result"].(map[string]any)
	assert.Equal(t, true, result["success"])
	assert.NotEmpty(t, body["summary"])

	call := h.dispatcher.last(t)
	assert.Equal(t, "get_lead", call.tool)
	assert.Equal(t, testTenantID, call.tenant.ID)
	assert.Equal(t, "acme", call.tenant.Slug)
	assert.Equal(t, testUserID, call.userID)
	require.NotNil(t, call.token)
	assert.True(t, call.token.Valid())
	assert.Equal(t, core.RoleManager, call.token.UserRole)
	assert.Equal(t, "rep@acme.test", call.token.UserEmail)
}

func TestExecuteRejectsBadRequests(t *testing.T) {
	h := newAPIHarness(t, "")

	cases := []struct {
		name string
		body any
		raw  string
	}{
		{name: "missing tool", body: map[string]any{"args": map[string]any{}, "user": validUser()}},
		{name: "missing user id", body: map[string]any{"tool": "get_lead"}},
		{name: "malformed json", raw: "{not json"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var resp *http.Response
			if tc.raw != "" {
				req, err := http.NewRequest(http.MethodPost, h.server.URL+"/api/tools/execute", strings.NewReader(tc.raw))
				require.NoError(t, err)
				req.Header.Set("Authorization", "Bearer "+testKey)
				resp, err = h.server.Client().Do(req)
				require.NoError(t, err)
			} else {
				resp = h.request(t, http.MethodPost, "/api/tools/execute", testKey, tc.body)
			}
			defer resp.Body.Close()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
	assert.Empty(t, h.dispatcher.calls)
}

func TestExecuteRateLimitMapsTo429(t *testing.T) {
	h := newAPIHarness(t, "")
	e := core.Errorf(core.ErrRateLimitExceeded, "rate limit exceeded for write operations")
	e.RetryAfter = 60
	h.dispatcher.results["create_lead"] = core.Fail(e)

	resp := h.request(t, http.MethodPost, "/api/tools/execute", testKey, map[string]any{
		"tool": "create_lead",
		"args": map[string]any{"name": "ACME"},
		"user": validUser(),
	})
	body := decodeBody(t, resp)

	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "60", resp.Header.Get("Retry-After"))
	result := body["result"].(map[string]any)
	assert.Equal(t, false, result["success"])
}

func TestBatchKeepsPositions(t *testing.T) {
	h := newAPIHarness(t, "")
	h.dispatcher.results["broken_tool"] = core.Failf(core.ErrUnknownTool, "unknown tool: broken_tool")

	resp := h.request(t, http.MethodPost, "/api/tools/batch", testKey, map[string]any{
		"calls": []map[string]any{
			{"tool": "list_leads", "args": map[string]any{}},
			{"tool": "broken_tool", "args": map[string]any{}},
			{"tool": "get_lead", "args": map[string]any{"lead_id": "x"}},
		},
		"user": validUser(),
	})
	body := decodeBody(t, resp)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(3), body["count"])
	results := body["results"].([]any)
	require.Len(t, results, 3)
	assert.Equal(t, true, results[0].(map[string]any)["success"])
	assert.Equal(t, false, results[1].(map[string]any)["success"])
	assert.Equal(t, true, results[2].(map[string]any)["success"])
}

func TestBatchSizeIsCapped(t *testing.T) {
	h := newAPIHarness(t, "")

	calls := make([]map[string]any, maxBatchCalls+1)
	for i := range calls {
		calls[i] = map[string]any{"tool": "list_leads"}
	}
	resp := h.request(t, http.MethodPost, "/api/tools/batch", testKey, map[string]any{
		"calls": calls,
		"user":  validUser(),
	})
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, h.dispatcher.calls)
}

func TestChainExecuteReturnsChainEnvelope(t *testing.T) {
	h := newAPIHarness(t, "")
	h.chains.result = chain.ChainResult{
		Success:    false,
		ChainName:  "account_with_contact",
		FailedStep: "contact",
		RolledBack: true,
		Error:      core.Errorf(core.ErrChainStepFailed, "chain account_with_contact failed at step contact: boom"),
	}

	resp := h.request(t, http.MethodPost, "/api/chains/account_with_contact/execute", testKey, map[string]any{
		"input": map[string]any{"account_name": "ACME"},
		"user":  validUser(),
	})
	body := decodeBody(t, resp)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "contact", body["failedStep"])
	assert.Equal(t, true, body["rolledBack"])
	assert.Equal(t, "account_with_contact", h.chains.name)
	assert.Equal(t, "ACME", h.chains.input["account_name"])
}

func TestListToolsAndChains(t *testing.T) {
	h := newAPIHarness(t, "")

	resp := h.request(t, http.MethodGet, "/api/tools", testKey, nil)
	body := decodeBody(t, resp)
	assert.Equal(t, float64(48), body["count"])

	resp = h.request(t, http.MethodGet, "/api/chains", testKey, nil)
	body = decodeBody(t, resp)
	assert.Equal(t, float64(4), body["count"])
	chains := body["chains"].([]any)
	first := chains[0].(map[string]any)
	assert.NotEmpty(t, first["name"])
	assert.NotEmpty(t, first["required_role"])
}

func TestGraphEndpoints(t *testing.T) {
	h := newAPIHarness(t, "")

	resp := h.request(t, http.MethodGet, "/api/graph?format=adjacency&category=enrichment", testKey, nil)
	body := decodeBody(t, resp)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "adjacency", body["format"])

	resp = h.request(t, http.MethodGet, "/api/graph?format=dot", testKey, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = h.request(t, http.MethodGet, "/api/graph/cycles", testKey, nil)
	body = decodeBody(t, resp)
	assert.Equal(t, false, body["hasCircular"])

	resp = h.request(t, http.MethodGet, "/api/tools/convert_lead/dependencies", testKey, nil)
	body = decodeBody(t, resp)
	assert.Equal(t, "convert_lead", body["tool"])

	resp = h.request(t, http.MethodGet, "/api/tools/qualify_lead/impact", testKey, nil)
	body = decodeBody(t, resp)
	assert.Equal(t, "qualify_lead", body["tool"])
	assert.NotZero(t, body["impact_score"])

	resp = h.request(t, http.MethodGet, "/api/tools/nope/impact", testKey, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestRealtimeMetricsReadsTenantWindow(t *testing.T) {
	h := newAPIHarness(t, "")
	h.realtime.Record(context.Background(), metrics.Sample{
		Tenant:   testTenantID,
		Tool:     "list_leads",
		Success:  true,
		CacheHit: true,
		Duration: 12 * time.Millisecond,
	})

	resp := h.request(t, http.MethodGet, "/api/metrics/realtime", testKey, nil)
	body := decodeBody(t, resp)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, testTenantID, body["tenant_id"])
	assert.Equal(t, "minute", body["window"])
	m := body["metrics"].(map[string]any)
	assert.Equal(t, float64(1), m["calls"])
	assert.Equal(t, float64(1), m["cacheHits"])
	assert.Equal(t, float64(100), m["successRate"])
}

func TestEventStreamDeliversOnlyTenantEvents(t *testing.T) {
	h := newAPIHarness(t, "")

	wsURL := "ws" + strings.TrimPrefix(h.server.URL, "http") + "/api/events/stream?api_key=" + testKey
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	// Give the stream a beat to subscribe before emitting.
	time.Sleep(50 * time.Millisecond)

	h.bus.Emit(events.EventToolExecuted, "braid.dispatch", "list_leads", map[string]any{
		"tenant_id": "some-other-tenant",
		"tool":      "list_leads",
	})
	h.bus.Emit(events.EventToolExecuted, "braid.dispatch", "get_lead", map[string]any{
		"tenant_id": testTenantID,
		"tool":      "get_lead",
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var event events.CloudEvent
	require.NoError(t, conn.ReadJSON(&event))

	assert.Equal(t, events.EventToolExecuted, event.Type)
	assert.Equal(t, testTenantID, event.TenantID)
	assert.Equal(t, "get_lead", event.Data["tool"])
}

func TestEventStreamTypeFilter(t *testing.T) {
	h := newAPIHarness(t, "")

	wsURL := "ws" + strings.TrimPrefix(h.server.URL, "http") +
		fmt.Sprintf("/api/events/stream?api_key=%s&types=%s", testKey, events.EventChainFailed)
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	time.Sleep(50 * time.Millisecond)

	h.bus.Emit(events.EventToolExecuted, "braid.dispatch", "list_leads", map[string]any{
		"tenant_id": testTenantID,
	})
	h.bus.Emit(events.EventChainFailed, "braid.chain", "lead_to_opportunity", map[string]any{
		"tenant_id": testTenantID,
		"chain":     "lead_to_opportunity",
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var event events.CloudEvent
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, events.EventChainFailed, event.Type)
}
