package chain

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/braidhq/engine/internal/core"
	"github.com/braidhq/engine/internal/events"
	"github.com/braidhq/engine/internal/metrics"
	"github.com/braidhq/engine/internal/registry"
)

// Dispatcher is the slice of the dispatch engine a chain step needs.
type Dispatcher interface {
	Execute(ctx context.Context, tool string, args core.Args, tenant core.TenantRecord, userID string, token *core.AccessToken) core.Result
}

// Deps wires an Executor. Chains, Tools, and Dispatcher are required;
// the rest degrade to no-ops.
type Deps struct {
	Chains     *Registry
	Tools      *registry.Registry
	Dispatcher Dispatcher
	Collectors *metrics.Collectors
	Events     events.Emitter
	Logger     *slog.Logger
}

// Executor runs chains. A single invocation is sequential; separate
// invocations may run concurrently because all per-run state lives in
// the invocation's Context.
type Executor struct {
	chains     *Registry
	tools      *registry.Registry
	dispatcher Dispatcher
	collectors *metrics.Collectors
	events     events.Emitter
	logger     *slog.Logger
	now        func() time.Time
}

func NewExecutor(deps Deps) *Executor {
	if deps.Events == nil {
		deps.Events = events.NopEmitter{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Executor{
		chains:     deps.Chains,
		tools:      deps.Tools,
		dispatcher: deps.Dispatcher,
		collectors: deps.Collectors,
		events:     deps.Events,
		logger:     deps.Logger.With("component", "chain"),
		now:        time.Now,
	}
}

// Execute runs the named chain against input. Validation failures run
// no steps; a required-step failure triggers reverse rollback before
// the result surfaces.
func (e *Executor) Execute(ctx context.Context, name string, input core.Args, tenant core.TenantRecord, userID string, token *core.AccessToken) ChainResult {
	start := e.now()

	def, ok := e.chains.Get(name)
	if !ok {
		return e.finish(ChainResult{
			ChainName: name,
			Input:     input,
			Error:     core.Errorf(core.ErrChainValidation, "unknown chain: %s", name),
		}, tenant, userID, start)
	}

	steps := def.Steps
	if def.Dynamic {
		if def.GenerateSteps == nil {
			return e.finish(ChainResult{
				ChainName: def.Name,
				Input:     input,
				Error:     core.Errorf(core.ErrChainValidation, "dynamic chain %s has no step generator", def.Name),
			}, tenant, userID, start)
		}
		generated, err := def.GenerateSteps(input)
		if err != nil {
			return e.finish(ChainResult{
				ChainName: def.Name,
				Input:     input,
				Error:     core.Errorf(core.ErrArgumentGeneration, "chain %s: generate steps: %v", def.Name, err),
			}, tenant, userID, start)
		}
		if len(generated) == 0 {
			return e.finish(ChainResult{
				ChainName: def.Name,
				Input:     input,
				Error:     core.Errorf(core.ErrEmptyChain, "chain %s generated no steps for this input", def.Name),
			}, tenant, userID, start)
		}
		steps = generated
	}

	if reasons := e.validate(def, steps, token); len(reasons) > 0 {
		return e.finish(ChainResult{
			ChainName: def.Name,
			Input:     input,
			Error:     core.Errorf(core.ErrChainValidation, "chain %s invalid: %s", def.Name, strings.Join(reasons, "; ")),
		}, tenant, userID, start)
	}

	chainCtx := Context{}
	results := make(map[string]any)
	log := make([]LogEntry, 0, len(steps))

	for _, step := range steps {
		if step.Condition != nil && !step.Condition(chainCtx) {
			log = append(log, LogEntry{
				ID:        step.ID,
				Tool:      step.Tool,
				Status:    StatusSkipped,
				Reason:    ReasonConditionNotMet,
				Timestamp: e.stamp(),
			})
			continue
		}

		args, err := e.stepArgs(step, input, chainCtx)
		if err != nil {
			stepErr := core.Errorf(core.ErrArgumentGeneration, "step %s: %v", step.ID, err)
			log = append(log, LogEntry{
				ID:        step.ID,
				Tool:      step.Tool,
				Status:    StatusError,
				Error:     stepErr.Message,
				Timestamp: e.stamp(),
			})
			if step.Required {
				e.rollback(ctx, def, chainCtx, &log, tenant, userID, token)
				return e.finish(e.stepFailed(def, input, step, stepErr, chainCtx, results, log), tenant, userID, start)
			}
			chainCtx[step.ID] = core.Fail(stepErr)
			continue
		}

		stepStart := e.now()
		result := e.dispatcher.Execute(ctx, step.Tool, args, tenant, userID, token)
		elapsed := e.now().Sub(stepStart)

		entry := LogEntry{
			ID:         step.ID,
			Tool:       step.Tool,
			Args:       args,
			DurationMS: elapsed.Milliseconds(),
			Timestamp:  stepStart.UTC().Format(time.RFC3339Nano),
		}
		chainCtx[step.ID] = result
		if result.Success {
			entry.Status = StatusSuccess
			results[step.ID] = result.Data
		} else {
			entry.Status = StatusError
			if result.Error != nil {
				entry.Error = result.Error.Message
			}
		}
		log = append(log, entry)

		if !result.Success && step.Required {
			e.rollback(ctx, def, chainCtx, &log, tenant, userID, token)
			return e.finish(e.stepFailed(def, input, step, result.Error, chainCtx, results, log), tenant, userID, start)
		}
	}

	return e.finish(ChainResult{
		Success:      true,
		ChainName:    def.Name,
		Input:        input,
		Context:      chainCtx,
		Results:      results,
		ExecutionLog: log,
		CompletedAt:  e.stamp(),
	}, tenant, userID, start)
}

// validate collects every structural problem so the caller sees them
// all at once instead of one per attempt.
func (e *Executor) validate(def *Definition, steps []Step, token *core.AccessToken) []string {
	var reasons []string
	if len(steps) == 0 {
		reasons = append(reasons, "chain has no steps")
	}
	seen := make(map[string]struct{}, len(steps))
	for _, s := range steps {
		if _, dup := seen[s.ID]; dup {
			reasons = append(reasons, fmt.Sprintf("duplicate step id %q", s.ID))
		}
		seen[s.ID] = struct{}{}
		if _, ok := e.tools.Lookup(s.Tool); !ok {
			reasons = append(reasons, fmt.Sprintf("step %q references unknown tool %q", s.ID, s.Tool))
		}
	}
	if def.RequiredRole != "" {
		if token == nil || !token.UserRole.AtLeast(def.RequiredRole) {
			role := core.Role("")
			if token != nil {
				role = token.UserRole
			}
			reasons = append(reasons, fmt.Sprintf("role %q cannot execute a chain requiring %q", role, def.RequiredRole))
		}
	}
	return reasons
}

// stepArgs evaluates the step's argument builder with a panic guard:
// builders dig through untyped payload maps and a bad assertion must
// read as an argument failure, not a crashed chain.
func (e *Executor) stepArgs(step Step, input core.Args, chainCtx Context) (args core.Args, err error) {
	defer func() {
		if r := recover(); r != nil {
			args, err = nil, fmt.Errorf("argument builder panicked: %v", r)
		}
	}()
	if step.Args == nil {
		return core.Args{}, nil
	}
	return step.Args(input, chainCtx)
}

// rollback walks the compensation list in reverse. Failures and skips
// are logged; nothing here can change the chain's outcome.
func (e *Executor) rollback(ctx context.Context, def *Definition, chainCtx Context, log *[]LogEntry, tenant core.TenantRecord, userID string, token *core.AccessToken) {
	for i := len(def.Rollback) - 1; i >= 0; i-- {
		rb := def.Rollback[i]
		if rb.Condition != nil && !rb.Condition(chainCtx) {
			continue
		}
		args := e.rollbackArgs(rb, chainCtx)
		if args == nil {
			continue
		}

		stepStart := e.now()
		result := e.dispatcher.Execute(ctx, rb.Tool, args, tenant, userID, token)
		entry := LogEntry{
			ID:         "rollback:" + rb.Tool,
			Tool:       rb.Tool,
			Args:       args,
			DurationMS: e.now().Sub(stepStart).Milliseconds(),
			Timestamp:  stepStart.UTC().Format(time.RFC3339Nano),
		}
		if result.Success {
			entry.Status = StatusSuccess
		} else {
			entry.Status = StatusError
			if result.Error != nil {
				entry.Error = result.Error.Message
			}
			e.logger.Warn("rollback step failed",
				"chain", def.Name, "tool", rb.Tool, "error", entry.Error)
		}
		*log = append(*log, entry)
	}
}

func (e *Executor) rollbackArgs(rb RollbackStep, chainCtx Context) (args core.Args) {
	defer func() {
		if r := recover(); r != nil {
			args = nil
		}
	}()
	if rb.Args == nil {
		return nil
	}
	return rb.Args(chainCtx)
}

func (e *Executor) stepFailed(def *Definition, input core.Args, step Step, stepErr *core.Error, chainCtx Context, results map[string]any, log []LogEntry) ChainResult {
	msg := "step failed"
	if stepErr != nil {
		msg = stepErr.Message
	}
	return ChainResult{
		ChainName:    def.Name,
		Input:        input,
		Context:      chainCtx,
		Results:      results,
		ExecutionLog: log,
		Error:        core.Errorf(core.ErrChainStepFailed, "chain %s failed at step %s: %s", def.Name, step.ID, msg),
		FailedStep:   step.ID,
		StepError:    stepErr,
		RolledBack:   true,
	}
}

// finish attaches metrics and lifecycle events to every exit path.
func (e *Executor) finish(res ChainResult, tenant core.TenantRecord, userID string, start time.Time) ChainResult {
	elapsed := e.now().Sub(start)
	if e.collectors != nil {
		e.collectors.RecordChain(res.ChainName, res.Success, elapsed.Seconds())
	}

	data := map[string]interface{}{
		"tenant_id":   tenant.ID,
		"chain":       res.ChainName,
		"user_id":     userID,
		"steps":       len(res.ExecutionLog),
		"duration_ms": elapsed.Milliseconds(),
	}
	if res.Success {
		e.events.Emit(events.EventChainCompleted, "/chains", res.ChainName, data)
	} else {
		if res.Error != nil {
			data["error_type"] = string(res.Error.Kind)
		}
		if res.FailedStep != "" {
			data["failed_step"] = res.FailedStep
		}
		e.events.Emit(events.EventChainFailed, "/chains", res.ChainName, data)
	}
	return res
}

func (e *Executor) stamp() string {
	return e.now().UTC().Format(time.RFC3339Nano)
}
