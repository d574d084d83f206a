// Package chain executes multi-step tool workflows. A chain is an
// ordered list of steps dispatched one at a time through the engine;
// each step sees the accumulated results of the steps before it. When a
// required step fails, the chain's rollback list runs in reverse as
// best-effort compensation.
package chain

import (
	"fmt"
	"sort"
	"sync"

	"github.com/braidhq/engine/internal/core"
)

// Log entry statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusSkipped = "skipped"
)

// ReasonConditionNotMet marks a skipped step in the execution log.
const ReasonConditionNotMet = "condition_not_met"

// Context accumulates step results keyed by step id. Each executed
// step's full Result lands here, including failed optional steps, so
// later conditions and argument builders can branch on earlier
// outcomes. A Context is owned by a single chain invocation.
type Context map[string]core.Result

// Succeeded reports whether the step ran and returned Ok.
func (c Context) Succeeded(id string) bool {
	r, ok := c[id]
	return ok && r.Success
}

// Data returns the step's payload as a map. Nil when the step did not
// run, failed, or returned a non-map payload.
func (c Context) Data(id string) map[string]any {
	r, ok := c[id]
	if !ok || !r.Success {
		return nil
	}
	m, _ := r.Data.(map[string]any)
	return m
}

// Field walks a key path into the step's map payload.
func (c Context) Field(id string, path ...string) (any, bool) {
	m := c.Data(id)
	if m == nil {
		return nil, false
	}
	var cur any = m
	for _, key := range path {
		node, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = node[key]; !ok {
			return nil, false
		}
	}
	return cur, true
}

// StringField is Field narrowed to string values.
func (c Context) StringField(id string, path ...string) (string, bool) {
	v, ok := c.Field(id, path...)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Step is one unit of a chain. Args builds the dispatch arguments from
// the chain input and the context; a nil Condition always passes.
type Step struct {
	ID        string
	Tool      string
	Required  bool
	Condition func(ctx Context) bool
	Args      func(input core.Args, ctx Context) (core.Args, error)
}

// RollbackStep compensates for completed work after a required step
// fails. A nil Condition always passes; an Args result of nil skips the
// dispatch.
type RollbackStep struct {
	Tool      string
	Condition func(ctx Context) bool
	Args      func(ctx Context) core.Args
}

// Definition declares a chain. Static chains carry Steps; dynamic
// chains build them per invocation through GenerateSteps.
type Definition struct {
	Name          string
	Description   string
	RequiredRole  core.Role
	Steps         []Step
	Rollback      []RollbackStep
	Dynamic       bool
	GenerateSteps func(input core.Args) ([]Step, error)
}

// StepSummary is the serializable view of one step.
type StepSummary struct {
	ID       string `json:"id"`
	Tool     string `json:"tool"`
	Required bool   `json:"required"`
}

// Summary is the serializable view of a definition. Step closures are
// process-local, so listings expose structure only.
type Summary struct {
	Name         string        `json:"name"`
	Description  string        `json:"description"`
	RequiredRole core.Role     `json:"required_role"`
	Dynamic      bool          `json:"dynamic"`
	Steps        []StepSummary `json:"steps,omitempty"`
}

// Summary returns the listing view of the definition.
func (d *Definition) Summary() Summary {
	s := Summary{
		Name:         d.Name,
		Description:  d.Description,
		RequiredRole: d.RequiredRole,
		Dynamic:      d.Dynamic,
	}
	for _, step := range d.Steps {
		s.Steps = append(s.Steps, StepSummary{ID: step.ID, Tool: step.Tool, Required: step.Required})
	}
	return s
}

// LogEntry records one step outcome in a chain's execution log.
type LogEntry struct {
	ID         string    `json:"id"`
	Tool       string    `json:"tool"`
	Args       core.Args `json:"args,omitempty"`
	Status     string    `json:"status"`
	Reason     string    `json:"reason,omitempty"`
	Error      string    `json:"error,omitempty"`
	DurationMS int64     `json:"execution_time_ms"`
	Timestamp  string    `json:"timestamp"`
}

// ChainResult is the outcome envelope for one chain invocation. On
// success CompletedAt is set; on failure Error carries the chain-level
// kind and, for step failures, FailedStep/StepError/RolledBack describe
// what broke and whether compensation ran.
type ChainResult struct {
	Success      bool           `json:"success"`
	ChainName    string         `json:"chainName"`
	Input        core.Args      `json:"input"`
	Context      Context        `json:"context,omitempty"`
	Results      map[string]any `json:"results,omitempty"`
	ExecutionLog []LogEntry     `json:"executionLog,omitempty"`
	CompletedAt  string         `json:"completedAt,omitempty"`
	Error        *core.Error    `json:"error,omitempty"`
	FailedStep   string         `json:"failedStep,omitempty"`
	StepError    *core.Error    `json:"stepError,omitempty"`
	RolledBack   bool           `json:"rolledBack,omitempty"`
}

// Registry holds the chain definitions the engine can execute.
type Registry struct {
	mu     sync.RWMutex
	chains map[string]*Definition
}

// NewRegistry builds a registry seeded with defs. Later defs with a
// duplicate name replace earlier ones.
func NewRegistry(defs ...*Definition) *Registry {
	r := &Registry{chains: make(map[string]*Definition, len(defs))}
	for _, d := range defs {
		r.chains[d.Name] = d
	}
	return r
}

// Register adds a definition. Duplicate names are refused so a typo in
// wiring cannot silently shadow a builtin.
func (r *Registry) Register(def *Definition) error {
	if def == nil || def.Name == "" {
		return fmt.Errorf("chain definition needs a name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.chains[def.Name]; exists {
		return fmt.Errorf("chain %q already registered", def.Name)
	}
	r.chains[def.Name] = def
	return nil
}

// Get returns the named definition.
func (r *Registry) Get(name string) (*Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.chains[name]
	return d, ok
}

// List returns every definition ordered by name.
func (r *Registry) List() []*Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Definition, 0, len(r.chains))
	for _, d := range r.chains {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of registered chains.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.chains)
}
