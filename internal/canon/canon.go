// Package canon rewrites raw tool arguments into the canonical form the
// functions runtime expects: authorized tenant injected, filter objects
// unwrapped, scalars normalized, update payloads rehydrated, and finally
// a positional projection driven by the registry's parameter orders.
package canon

import (
	"encoding/json"
	"log/slog"
	"strconv"

	"github.com/braidhq/engine/internal/core"
)

// filterUnwrapTools accept a {filter: {...}} wrapper from the model
// layer; its fields are hoisted onto the top-level argument map.
var filterUnwrapTools = map[string]struct{}{
	"list_leads":                  {},
	"list_opportunities_by_stage": {},
	"list_accounts":               {},
	"search_contacts":             {},
}

// updateTools carry an updates payload that must be a map with the
// tenant id merged in before the runtime sees it.
var updateTools = map[string]struct{}{
	"update_activity":      {},
	"update_lead":          {},
	"update_account":       {},
	"update_contact":       {},
	"update_opportunity":   {},
	"update_note":          {},
	"update_bizdev_source": {},
}

// Canonicalizer normalizes argument maps. Stateless apart from the
// logger; safe for concurrent use.
type Canonicalizer struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Canonicalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Canonicalizer{logger: logger.With("component", "canon")}
}

// Normalize applies the argument rewrites for a tool. The returned map
// never aliases the caller's. Normalize is idempotent:
// Normalize(Normalize(x)) equals Normalize(x).
func (c *Canonicalizer) Normalize(tool string, raw core.Args, tenant core.TenantRecord) core.Args {
	args := raw.Clone()

	// Tenant injection. A caller-supplied tenant that disagrees with the
	// authorized one is overridden, not rejected.
	if supplied, ok := args.String("tenant"); ok && supplied != "" && supplied != "default" && supplied != tenant.ID {
		c.logger.Warn("security override: caller-supplied tenant replaced",
			"tool", tool, "supplied", supplied, "authorized", tenant.ID)
	}
	args["tenant"] = tenant.ID

	// Filter unwrap for the list-style tools.
	if _, unwrap := filterUnwrapTools[tool]; unwrap {
		if filter, ok := args.Map("filter"); ok {
			for k, v := range filter {
				args[k] = v
			}
			delete(args, "filter")
			// The filter may not smuggle a different tenant in.
			args["tenant"] = tenant.ID
		}
	}

	// Scalar normalization.
	if s, ok := args.String("limit"); ok {
		if n, err := strconv.Atoi(s); err == nil {
			args["limit"] = n
		}
	}
	if status, ok := args.String("status"); ok {
		switch status {
		case "all", "any", "":
			delete(args, "status")
		}
	}

	// Updates rehydration for update-style tools.
	if _, isUpdate := updateTools[tool]; isUpdate {
		if s, ok := args.String("updates"); ok {
			var parsed map[string]any
			if err := json.Unmarshal([]byte(s), &parsed); err != nil {
				c.logger.Warn("updates payload is not valid JSON; passing through",
					"tool", tool, "error", err)
			} else {
				args["updates"] = parsed
			}
		}
		if updates, ok := args.Map("updates"); ok {
			updates["tenant_id"] = tenant.ID
		}
	}

	return args
}

// Positional projects a canonical argument map onto the function's
// ordered parameter list. Parameters absent from the map become nil,
// which the runtime treats as unset.
func (c *Canonicalizer) Positional(paramOrder []string, args core.Args) []any {
	out := make([]any, len(paramOrder))
	for i, name := range paramOrder {
		if v, ok := args[name]; ok {
			out[i] = v
		}
	}
	return out
}
