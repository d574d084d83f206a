// Package policy holds the static access policies governing tool
// dispatch. The table is fixed at process start; lookups are safe for
// concurrent use without locks.
package policy

import (
	"github.com/braidhq/engine/internal/core"
)

// Policy names referenced by the tool registry.
const (
	ReadOnly       = "read-only"
	Write          = "write"
	Delete         = "delete"
	AdminOnly      = "admin-only"
	SystemInternal = "system-internal"
	AISuggestions  = "ai-suggestions"
	ExternalAPI    = "external-api"
)

// Policy bundles the access rules for one class of tools.
type Policy struct {
	Name                 string              `json:"name"`
	ToolClass            string              `json:"tool_class"`
	AllowedOps           map[string]struct{} `json:"-"`
	DeniedOps            map[string]struct{} `json:"-"`
	RequiredRoles        []core.Role         `json:"required_roles"` // empty = unrestricted
	RatePerMinute        int                 `json:"rate_per_minute"`
	RequiresConfirmation bool                `json:"requires_confirmation"`
	AuditRequired        bool                `json:"audit_required"`
	TenantIsolation      bool                `json:"tenant_isolation"`
}

// AllowsRole reports whether the role may use tools under this policy.
// Membership is literal: the table lists every role at or above each
// policy's minimum, so rank ordering is preserved.
func (p *Policy) AllowsRole(role core.Role) bool {
	if len(p.RequiredRoles) == 0 {
		return true
	}
	for _, r := range p.RequiredRoles {
		if r == role {
			return true
		}
	}
	return false
}

func ops(names ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return set
}

func rolesFrom(min core.Role) []core.Role {
	all := []core.Role{core.RoleUser, core.RoleManager, core.RoleAdmin, core.RoleSuperadmin, core.RoleSystem}
	out := make([]core.Role, 0, len(all))
	for _, r := range all {
		if r.AtLeast(min) {
			out = append(out, r)
		}
	}
	return out
}

var table = map[string]*Policy{
	ReadOnly: {
		Name:            ReadOnly,
		ToolClass:       "read_operations",
		AllowedOps:      ops("read", "list", "search", "get", "count"),
		DeniedOps:       ops("create", "update", "delete"),
		RequiredRoles:   nil, // every authenticated role
		RatePerMinute:   100,
		TenantIsolation: true,
	},
	Write: {
		Name:            Write,
		ToolClass:       "write_operations",
		AllowedOps:      ops("create", "update", "qualify", "convert", "log"),
		DeniedOps:       ops("delete"),
		RequiredRoles:   rolesFrom(core.RoleUser),
		RatePerMinute:   50,
		AuditRequired:   true,
		TenantIsolation: true,
	},
	Delete: {
		Name:                 Delete,
		ToolClass:            "delete_operations",
		AllowedOps:           ops("delete"),
		RequiredRoles:        rolesFrom(core.RoleManager),
		RatePerMinute:        20,
		RequiresConfirmation: true,
		AuditRequired:        true,
		TenantIsolation:      true,
	},
	AdminOnly: {
		Name:                 AdminOnly,
		ToolClass:            "admin_operations",
		RequiredRoles:        rolesFrom(core.RoleAdmin),
		RatePerMinute:        30,
		RequiresConfirmation: true,
		TenantIsolation:      true,
	},
	SystemInternal: {
		Name:          SystemInternal,
		ToolClass:     "system_operations",
		RequiredRoles: []core.Role{core.RoleSystem},
		RatePerMinute: 200,
		// System jobs run across tenants (migrations, rollups).
		TenantIsolation: false,
	},
	AISuggestions: {
		Name:            AISuggestions,
		ToolClass:       "ai_operations",
		AllowedOps:      ops("read", "suggest", "analyze", "draft"),
		DeniedOps:       ops("create", "update", "delete"),
		RequiredRoles:   rolesFrom(core.RoleUser),
		RatePerMinute:   40,
		AuditRequired:   true,
		TenantIsolation: true,
	},
	ExternalAPI: {
		Name:            ExternalAPI,
		ToolClass:       "external_operations",
		AllowedOps:      ops("enrich", "lookup", "sync"),
		DeniedOps:       ops("delete"),
		RequiredRoles:   rolesFrom(core.RoleUser),
		RatePerMinute:   10,
		AuditRequired:   true,
		TenantIsolation: true,
	},
}

// Lookup returns the named policy. Callers must not mutate it.
func Lookup(name string) (*Policy, bool) {
	p, ok := table[name]
	return p, ok
}

// MinimumRole returns the lowest-ranked role the policy admits. The
// second return is false when the policy is unrestricted.
func MinimumRole(name string) (core.Role, bool) {
	p, ok := table[name]
	if !ok || len(p.RequiredRoles) == 0 {
		return "", false
	}
	min := p.RequiredRoles[0]
	for _, r := range p.RequiredRoles[1:] {
		if r.Rank() < min.Rank() {
			min = r
		}
	}
	return min, true
}

// IsOperationAllowed checks op against the policy's allow and deny
// sets. The deny set wins; an empty allow set admits everything.
func IsOperationAllowed(name, op string) bool {
	p, ok := table[name]
	if !ok {
		return false
	}
	if _, denied := p.DeniedOps[op]; denied {
		return false
	}
	if len(p.AllowedOps) == 0 {
		return true
	}
	_, allowed := p.AllowedOps[op]
	return allowed
}

// RateLimit returns the policy's per-minute dispatch budget, 0 if the
// policy is unknown.
func RateLimit(name string) int {
	if p, ok := table[name]; ok {
		return p.RatePerMinute
	}
	return 0
}

// RequiresConfirmation reports whether tools under the policy need an
// explicit confirmation flag.
func RequiresConfirmation(name string) bool {
	p, ok := table[name]
	return ok && p.RequiresConfirmation
}

// Names returns every policy name, for startup validation and ops
// tooling. Order is unspecified.
func Names() []string {
	out := make([]string, 0, len(table))
	for name := range table {
		out = append(out, name)
	}
	return out
}
