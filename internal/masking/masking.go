// Package masking strips role-gated fields from successful dispatch
// results before they reach the caller. The field tables are static;
// the filter is stateless and safe for concurrent use.
package masking

import (
	"regexp"

	"github.com/braidhq/engine/internal/core"
)

// sensitiveFields maps entity -> field -> minimum role allowed to see it.
// Fields absent from the table always pass through.
var sensitiveFields = map[string]map[string]core.Role{
	"employee": {
		"salary":             core.RoleAdmin,
		"ssn":                core.RoleSuperadmin,
		"compensation_notes": core.RoleAdmin,
		"performance_rating": core.RoleManager,
	},
	"user": {
		"password_hash":  core.RoleSuperadmin,
		"mfa_secret":     core.RoleSuperadmin,
		"last_login_ip":  core.RoleAdmin,
		"internal_flags": core.RoleAdmin,
	},
	"account": {
		"credit_limit":        core.RoleAdmin,
		"internal_risk_score": core.RoleAdmin,
		"billing_email":       core.RoleManager,
		"payment_terms":       core.RoleManager,
	},
	"contact": {
		"personal_phone":   core.RoleManager,
		"personal_email":   core.RoleManager,
		"compliance_notes": core.RoleAdmin,
	},
	"lead": {
		"acquisition_cost": core.RoleAdmin,
		"internal_notes":   core.RoleManager,
		"score_breakdown":  core.RoleManager,
	},
	"opportunity": {
		"margin_pct":        core.RoleAdmin,
		"discount_floor":    core.RoleAdmin,
		"internal_forecast": core.RoleManager,
	},
	"activity": {
		"private_notes": core.RoleManager,
	},
	"document": {
		"storage_path": core.RoleAdmin,
		"signed_url":   core.RoleManager,
	},
	"bizdev": {
		"commission_rate": core.RoleAdmin,
		"contract_value":  core.RoleManager,
	},
	"note": {
		"author_ip": core.RoleAdmin,
	},
}

// entityPatterns recognizes which entity a tool touches from its name.
// First match wins.
var entityPatterns = []struct {
	entity  string
	pattern *regexp.Regexp
}{
	{"employee", regexp.MustCompile(`employee`)},
	{"user", regexp.MustCompile(`user`)},
	{"bizdev", regexp.MustCompile(`bizdev`)},
	{"account", regexp.MustCompile(`account`)},
	{"contact", regexp.MustCompile(`contact`)},
	{"lead", regexp.MustCompile(`lead`)},
	{"opportunity", regexp.MustCompile(`opportunit`)},
	{"activity", regexp.MustCompile(`activit`)},
	{"document", regexp.MustCompile(`document`)},
	{"note", regexp.MustCompile(`note`)},
}

// EntityFor returns the entity a tool name maps to, "" when none.
func EntityFor(tool string) string {
	for _, ep := range entityPatterns {
		if ep.pattern.MatchString(tool) {
			return ep.entity
		}
	}
	return ""
}

// Apply returns a copy of payload with every field whose minimum role
// outranks the caller removed. Tools that map to no entity and payloads
// that are not maps or arrays pass through untouched.
func Apply(tool string, role core.Role, payload any) any {
	entity := EntityFor(tool)
	if entity == "" {
		return payload
	}
	fields, ok := sensitiveFields[entity]
	if !ok {
		return payload
	}
	return filterValue(fields, role.Rank(), payload)
}

func filterValue(fields map[string]core.Role, rank int, v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			if minRole, sensitive := fields[k]; sensitive && minRole.Rank() > rank {
				continue
			}
			out[k] = filterValue(fields, rank, inner)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = filterValue(fields, rank, inner)
		}
		return out
	default:
		return v
	}
}
