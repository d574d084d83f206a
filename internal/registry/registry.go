// Package registry maps tool names to their executable identity (source
// file, function name) and governing policy, and carries the per-tool
// cache TTLs and the positional parameter orders produced by the schema
// parser at startup.
package registry

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/braidhq/engine/internal/policy"
)

// Tool is one registered tool. Immutable after registration.
type Tool struct {
	Name         string `json:"name"`
	SourceFile   string `json:"source_file"`
	FunctionName string `json:"function_name"`
	Policy       string `json:"policy"`
}

// DefaultTTL applies to cacheable tools without an explicit TTL entry.
const DefaultTTL = 90 * time.Second

// Registry is the static tool table. The tool set is fixed at
// construction; parameter orders arrive once during startup via
// LoadManifest and are guarded for concurrent readers.
type Registry struct {
	tools map[string]*Tool
	ttls  map[string]time.Duration

	mu          sync.RWMutex
	paramOrders map[string][]string

	logger *slog.Logger
}

// New builds the registry with the built-in Braid tool set.
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		tools:       make(map[string]*Tool, len(defaultTools)),
		ttls:        make(map[string]time.Duration, len(defaultTTLs)),
		paramOrders: make(map[string][]string),
		logger:      logger.With("component", "registry"),
	}
	for i := range defaultTools {
		t := defaultTools[i]
		r.tools[t.Name] = &t
	}
	for name, secs := range defaultTTLs {
		r.ttls[name] = time.Duration(secs) * time.Second
	}
	return r
}

// Lookup returns the tool registered under name.
func (r *Registry) Lookup(name string) (*Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// List returns every tool ordered by name.
func (r *Registry) List() []*Tool {
	out := make([]*Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	return len(r.tools)
}

// TTL returns the cache TTL for a tool, DefaultTTL when unlisted.
func (r *Registry) TTL(name string) time.Duration {
	if ttl, ok := r.ttls[name]; ok {
		return ttl
	}
	return DefaultTTL
}

// ParamOrder returns the ordered parameter names for a function. The
// second return is false when the schema parser produced no entry; the
// dispatcher then passes arguments as a single map.
func (r *Registry) ParamOrder(functionName string) ([]string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	params, ok := r.paramOrders[functionName]
	return params, ok
}

// SetParamOrder records the parameter order for one function.
func (r *Registry) SetParamOrder(functionName string, params []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paramOrders[functionName] = params
}

// Validate cross-checks the table: every tool must reference a known
// policy and every function should have a parameter order. Returns the
// problems as warnings; none of them are fatal.
func (r *Registry) Validate() []string {
	var warnings []string
	for _, t := range r.List() {
		if _, ok := policy.Lookup(t.Policy); !ok {
			warnings = append(warnings, fmt.Sprintf("tool %s references unknown policy %q", t.Name, t.Policy))
		}
		if _, ok := r.ParamOrder(t.FunctionName); !ok {
			warnings = append(warnings, fmt.Sprintf("function %s has no parameter order; args will pass as a single map", t.FunctionName))
		}
	}
	for _, w := range warnings {
		r.logger.Warn("registry validation", "warning", w)
	}
	return warnings
}
