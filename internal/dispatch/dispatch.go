// Package dispatch is the engine's front door: every tool call from
// the model layer passes through Execute, which runs the security
// gate, canonicalizes arguments, consults the cache, invokes the
// functions runtime, and fans out metrics, audit, and events.
package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/braidhq/engine/internal/audit"
	"github.com/braidhq/engine/internal/cache"
	"github.com/braidhq/engine/internal/canon"
	"github.com/braidhq/engine/internal/core"
	"github.com/braidhq/engine/internal/events"
	"github.com/braidhq/engine/internal/executor"
	"github.com/braidhq/engine/internal/gate"
	"github.com/braidhq/engine/internal/masking"
	"github.com/braidhq/engine/internal/metrics"
	"github.com/braidhq/engine/internal/policy"
	"github.com/braidhq/engine/internal/registry"
	"github.com/braidhq/engine/internal/security"
)

// DefaultTimeout bounds the external executor call.
const DefaultTimeout = 30 * time.Second

// Executor invokes one Braid function. Satisfied by executor.Client;
// tests substitute stubs.
type Executor interface {
	Execute(ctx context.Context, call executor.Call) core.Result
}

// Config carries the per-deployment dispatch settings.
type Config struct {
	BackendBaseURL string
	DataSource     string
	Timeout        time.Duration
}

// Deps bundles the collaborators the dispatcher orchestrates.
type Deps struct {
	Registry   *registry.Registry
	Gate       *gate.Gate
	Canon      *canon.Canonicalizer
	Cache      *cache.Coordinator
	Metrics    *metrics.Accumulator
	Collectors *metrics.Collectors
	Audit      *audit.Sink
	Minter     *security.Minter
	Executor   Executor
	Events     events.Emitter
	Logger     *slog.Logger
}

// Dispatcher mediates every tool call.
type Dispatcher struct {
	registry   *registry.Registry
	gate       *gate.Gate
	canon      *canon.Canonicalizer
	cache      *cache.Coordinator
	metrics    *metrics.Accumulator
	collectors *metrics.Collectors
	audit      *audit.Sink
	minter     *security.Minter
	executor   Executor
	events     events.Emitter
	cfg        Config
	logger     *slog.Logger
	now        func() time.Time
}

func New(deps Deps, cfg Config) *Dispatcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if deps.Events == nil {
		deps.Events = events.NopEmitter{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Dispatcher{
		registry:   deps.Registry,
		gate:       deps.Gate,
		canon:      deps.Canon,
		cache:      deps.Cache,
		metrics:    deps.Metrics,
		collectors: deps.Collectors,
		audit:      deps.Audit,
		minter:     deps.Minter,
		executor:   deps.Executor,
		events:     deps.Events,
		cfg:        cfg,
		logger:     deps.Logger.With("component", "dispatch"),
		now:        time.Now,
	}
}

// Execute mediates one tool call end to end.
//
// An invalid access token is the single early exit that produces no
// metrics and no audit row: nothing was authenticated, so nothing is
// attributed. Every later outcome, including authorization failures,
// is counted and audited.
func (d *Dispatcher) Execute(ctx context.Context, toolName string, rawArgs core.Args, tenant core.TenantRecord, userID string, token *core.AccessToken) core.Result {
	if cerr := d.gate.CheckToken(token); cerr != nil {
		return core.Fail(cerr)
	}

	start := d.now()

	grant, cerr := d.gate.Authorize(ctx, gate.Request{
		Tool:   toolName,
		Args:   rawArgs,
		Tenant: tenant,
		UserID: userID,
		Token:  token,
	})
	if cerr != nil {
		result := core.Fail(cerr)
		if cerr.Kind == core.ErrRateLimitExceeded && d.collectors != nil {
			d.collectors.RecordRateLimited(d.toolClass(toolName))
		}
		d.finish(dispatchOutcome{
			toolName: toolName,
			tool:     d.lookupTool(toolName),
			args:     rawArgs,
			tenant:   tenant,
			userID:   userID,
			token:    token,
			result:   result,
			duration: d.now().Sub(start),
		})
		return result
	}
	tool, pol := grant.Tool, grant.Policy

	args := d.canon.Normalize(tool.Name, rawArgs, tenant)

	credential, err := d.minter.Mint(userID, tenant.ID)
	if err != nil {
		result := core.Failf(core.ErrExecution, "could not mint service credential: %v", err)
		d.finish(dispatchOutcome{
			toolName: tool.Name, tool: tool, toolClass: pol.ToolClass,
			args: args, tenant: tenant, userID: userID, token: token,
			result: result, duration: d.now().Sub(start),
		})
		return result
	}

	readOnly := pol.Name == policy.ReadOnly
	cacheKey := ""
	if readOnly {
		cacheKey = cache.Key(tenant.ID, tool.Name, args)
		if cached, hit := d.cache.Lookup(ctx, cacheKey); hit {
			d.finish(dispatchOutcome{
				toolName: tool.Name, tool: tool, toolClass: pol.ToolClass,
				args: args, tenant: tenant, userID: userID, token: token,
				result: cached, duration: d.now().Sub(start), cacheHit: true,
			})
			return d.filter(tool.Name, token, cached)
		}
	}

	call := d.buildCall(tool, pol, args, tenant, userID, credential)
	result := d.invoke(ctx, tool, call)
	duration := d.now().Sub(start)

	if result.Success {
		if readOnly {
			d.storeAsync(cacheKey, result, d.registry.TTL(tool.Name))
		} else if entity, matched := d.invalidate(tenant.ID, tool.Name); matched {
			d.events.Emit(events.EventCacheInvalidated, "/dispatch", tool.Name, map[string]interface{}{
				"tenant_id": tenant.ID,
				"entity":    entity,
			})
		}
	}

	d.finish(dispatchOutcome{
		toolName: tool.Name, tool: tool, toolClass: pol.ToolClass,
		args: args, tenant: tenant, userID: userID, token: token,
		result: result, duration: duration,
	})
	return d.filter(tool.Name, token, result)
}

// dispatchOutcome gathers everything the fire-and-forget side effects
// need after a dispatch settles.
type dispatchOutcome struct {
	toolName  string
	tool      *registry.Tool
	toolClass string
	args      core.Args
	tenant    core.TenantRecord
	userID    string
	token     *core.AccessToken
	result    core.Result
	duration  time.Duration
	cacheHit  bool
}

// finish emits metrics, audit, and lifecycle events. None of these can
// change the dispatch result.
func (d *Dispatcher) finish(out dispatchOutcome) {
	toolClass := out.toolClass
	if toolClass == "" {
		toolClass = d.toolClass(out.toolName)
	}

	go d.metrics.Record(context.Background(), metrics.Sample{
		Tenant:   out.tenant.ID,
		Tool:     out.toolName,
		Success:  out.result.Success,
		CacheHit: out.cacheHit,
		Duration: out.duration,
	})

	if d.collectors != nil {
		d.collectors.RecordDispatch(out.toolName, out.result.Success, out.cacheHit, out.duration.Seconds())
	}

	d.audit.Record(audit.Entry{
		Tool:      out.tool,
		ToolName:  out.toolName,
		ToolClass: toolClass,
		Tenant:    out.tenant,
		UserID:    out.userID,
		UserEmail: out.token.UserEmail,
		UserRole:  out.token.UserRole,
		Args:      out.args,
		Result:    out.result,
		Duration:  out.duration,
		CacheHit:  out.cacheHit,
	})

	data := map[string]interface{}{
		"tenant_id":   out.tenant.ID,
		"tool":        out.toolName,
		"user_id":     out.userID,
		"duration_ms": out.duration.Milliseconds(),
		"cache_hit":   out.cacheHit,
	}
	if out.result.Success {
		d.events.Emit(events.EventToolExecuted, "/dispatch", out.toolName, data)
	} else {
		if out.result.Error != nil {
			data["error_type"] = string(out.result.Error.Kind)
		}
		d.events.Emit(events.EventToolFailed, "/dispatch", out.toolName, data)
	}
}

// invoke calls the executor with a panic guard. A panicking call
// surfaces as ExecutionError, never as a crashed dispatch goroutine.
func (d *Dispatcher) invoke(ctx context.Context, tool *registry.Tool, call executor.Call) (result core.Result) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("tool execution panicked", "tool", tool.Name, "panic", r)
			result = core.Failf(core.ErrExecution, "tool %s panicked: %v", tool.Name, r)
		}
	}()
	return d.executor.Execute(ctx, call)
}

func (d *Dispatcher) buildCall(tool *registry.Tool, pol *policy.Policy, args core.Args, tenant core.TenantRecord, userID, credential string) executor.Call {
	call := executor.Call{
		SourceFile:   tool.SourceFile,
		FunctionName: tool.FunctionName,
		Policy:       policyContext(pol, tenant.ID, userID),
		Deps: executor.Deps{
			DataSource:     d.cfg.DataSource,
			BackendBaseURL: d.cfg.BackendBaseURL,
			TenantID:       tenant.ID,
			UserID:         userID,
			InternalToken:  credential,
			CreatedBy:      userID,
		},
		Timeout: d.cfg.Timeout,
	}
	if order, ok := d.registry.ParamOrder(tool.FunctionName); ok {
		call.Args = d.canon.Positional(order, args)
	} else {
		call.ArgsMap = args
	}
	return call
}

// policyContext is the policy table entry merged with the caller
// identity, handed to the runtime for its own enforcement.
func policyContext(pol *policy.Policy, tenantID, userID string) map[string]any {
	return map[string]any{
		"name":                  pol.Name,
		"tool_class":            pol.ToolClass,
		"rate_per_minute":       pol.RatePerMinute,
		"requires_confirmation": pol.RequiresConfirmation,
		"audit_required":        pol.AuditRequired,
		"tenant_isolation":      pol.TenantIsolation,
		"tenant_id":             tenantID,
		"user_id":               userID,
	}
}

// filter applies role-gated field redaction to successful results.
func (d *Dispatcher) filter(toolName string, token *core.AccessToken, result core.Result) core.Result {
	if !result.Success || result.Data == nil {
		return result
	}
	result.Data = masking.Apply(toolName, token.UserRole, result.Data)
	return result
}

func (d *Dispatcher) storeAsync(key string, result core.Result, ttl time.Duration) {
	go d.cache.Store(context.Background(), key, result, ttl)
}

func (d *Dispatcher) invalidate(tenantID, toolName string) (string, bool) {
	return d.cache.InvalidateOnWrite(context.Background(), tenantID, toolName)
}

func (d *Dispatcher) lookupTool(name string) *registry.Tool {
	if tool, ok := d.registry.Lookup(name); ok {
		return tool
	}
	return nil
}

func (d *Dispatcher) toolClass(name string) string {
	if tool, ok := d.registry.Lookup(name); ok {
		if pol, ok := policy.Lookup(tool.Policy); ok {
			return pol.ToolClass
		}
	}
	return "unknown"
}
