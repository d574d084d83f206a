// Package gate enforces the dispatch security checks in their fixed
// order: access token, registry membership, argument validation, role,
// rate limit, delete confirmation. The first failing check decides the
// error; later checks never run.
package gate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/braidhq/engine/internal/core"
	"github.com/braidhq/engine/internal/policy"
	"github.com/braidhq/engine/internal/registry"
)

// RetryAfterSeconds is surfaced on every RateLimitExceeded error.
const RetryAfterSeconds = 60

// rateWindow is the fixed rate-limit window length.
const rateWindow = 60 * time.Second

// Counter is the slice of the store used for rate limiting.
type Counter interface {
	GetInt(ctx context.Context, key string) (int64, error)
	Increment(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// Request carries everything the gate inspects for one dispatch.
type Request struct {
	Tool   string
	Args   core.Args
	Tenant core.TenantRecord
	UserID string
	Token  *core.AccessToken
}

// Grant is the gate's output on success: the resolved tool and its
// policy, so the dispatcher does not repeat the lookups.
type Grant struct {
	Tool   *registry.Tool
	Policy *policy.Policy
}

// requiredFields lists argument names that must be present per tool.
// Missing entries fail validation before the tool runs.
var requiredFields = map[string][]string{
	"get_lead":             {"lead_id"},
	"update_lead":          {"lead_id", "updates"},
	"qualify_lead":         {"lead_id"},
	"convert_lead":         {"lead_id"},
	"delete_lead":          {"lead_id"},
	"get_account":          {"account_id"},
	"create_account":       {"name"},
	"update_account":       {"account_id", "updates"},
	"delete_account":       {"account_id"},
	"get_contact":          {"contact_id"},
	"create_contact":       {"name"},
	"update_contact":       {"contact_id", "updates"},
	"delete_contact":       {"contact_id"},
	"get_opportunity":      {"opportunity_id"},
	"create_opportunity":   {"name"},
	"update_opportunity":   {"opportunity_id", "updates"},
	"delete_opportunity":   {"opportunity_id"},
	"create_lead":          {"name"},
	"create_activity":      {"subject"},
	"update_activity":      {"activity_id", "updates"},
	"complete_activity":    {"activity_id"},
	"delete_activity":      {"activity_id"},
	"update_note":          {"note_id", "updates"},
	"delete_note":          {"note_id"},
	"update_bizdev_source": {"source_id", "updates"},
	"delete_bizdev_source": {"source_id"},
	"reassign_owner":       {"entity_type", "entity_id", "new_owner_id"},
	"merge_accounts":       {"primary_account_id", "duplicate_account_id"},
	"enrich_company":       {"domain"},
}

// uuidFields are argument names that must hold a uuid when present.
// Business record ids are tenant-local strings and are NOT checked.
var uuidFields = []string{"new_owner_id", "assigned_to", "owner_id"}

// Gate runs the security checks.
type Gate struct {
	registry *registry.Registry
	counter  Counter
	logger   *slog.Logger
}

func New(reg *registry.Registry, counter Counter, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{registry: reg, counter: counter, logger: logger.With("component", "gate")}
}

// CheckToken is the first gate step. The dispatcher calls it before
// anything else so a rejected token produces no side effects at all.
func (g *Gate) CheckToken(token *core.AccessToken) *core.Error {
	if !token.Valid() {
		return core.NewError(core.ErrAuthorization, "invalid or missing access token")
	}
	return nil
}

// Authorize runs gate steps 2 through 6 and returns the resolved tool
// and policy on success.
func (g *Gate) Authorize(ctx context.Context, req Request) (*Grant, *core.Error) {
	// Registry membership.
	tool, ok := g.registry.Lookup(req.Tool)
	if !ok {
		return nil, core.Errorf(core.ErrUnknownTool, "unknown tool: %s", req.Tool)
	}
	pol, ok := policy.Lookup(tool.Policy)
	if !ok {
		// Registry validation warns about this at startup; refuse at
		// dispatch time rather than running ungoverned.
		return nil, core.Errorf(core.ErrValidation, "tool %s references unknown policy %s", tool.Name, tool.Policy)
	}

	// Argument validation.
	if cerr := g.validate(tool, pol, req); cerr != nil {
		return nil, cerr
	}

	// Role membership is literal against the policy's role list.
	role := req.Token.UserRole
	if !pol.AllowsRole(role) {
		return nil, &core.Error{
			Kind:      core.ErrInsufficientPerms,
			Message:   fmt.Sprintf("role %s may not call %s (policy %s)", role, tool.Name, pol.Name),
			Operation: tool.Name,
		}
	}

	// Rate limit: read, refuse at the limit, otherwise count this call.
	if cerr := g.checkRateLimit(ctx, req, pol); cerr != nil {
		return nil, cerr
	}

	// Delete confirmation.
	if pol.RequiresConfirmation && strings.Contains(tool.Name, "delete") {
		if !req.Args.Flag("confirmed") && !req.Args.Flag("force") {
			return nil, &core.Error{
				Kind:      core.ErrConfirmation,
				Message:   fmt.Sprintf("%s is destructive; pass confirmed=true or force=true", tool.Name),
				Operation: tool.Name,
				Field:     "confirmed",
			}
		}
	}

	return &Grant{Tool: tool, Policy: pol}, nil
}

func (g *Gate) validate(tool *registry.Tool, pol *policy.Policy, req Request) *core.Error {
	if req.Tenant.ID == "" || uuid.Validate(req.Tenant.ID) != nil {
		return &core.Error{
			Kind:    core.ErrValidation,
			Message: "tenant id missing or not a uuid",
			Field:   "tenant",
		}
	}

	for _, field := range requiredFields[tool.Name] {
		v, present := req.Args[field]
		if !present || v == nil || v == "" {
			return &core.Error{
				Kind:      core.ErrValidation,
				Message:   fmt.Sprintf("%s requires %s", tool.Name, field),
				Operation: tool.Name,
				Field:     field,
			}
		}
	}

	for _, field := range uuidFields {
		if s, ok := req.Args.String(field); ok && s != "" {
			if uuid.Validate(s) != nil {
				return &core.Error{
					Kind:      core.ErrValidation,
					Message:   fmt.Sprintf("%s must be a uuid", field),
					Operation: tool.Name,
					Field:     field,
				}
			}
		}
	}

	// Confirmation is only warned about here; the dedicated check at
	// the end of the gate owns enforcement so the caller sees
	// ConfirmationRequired, not ValidationError.
	if pol.RequiresConfirmation && strings.Contains(tool.Name, "delete") {
		if !req.Args.Flag("confirmed") && !req.Args.Flag("force") {
			g.logger.Warn("destructive call without confirmation flag",
				"tool", tool.Name, "tenant", req.Tenant.ID, "user", req.UserID)
		}
	}
	return nil
}

// RateLimitKey builds the counter key for one (tenant, user, class).
func RateLimitKey(tenantID, userID, toolClass string) string {
	return "braid:ratelimit:" + tenantID + ":" + userID + ":" + toolClass
}

func (g *Gate) checkRateLimit(ctx context.Context, req Request, pol *policy.Policy) *core.Error {
	key := RateLimitKey(req.Tenant.ID, req.UserID, pol.ToolClass)

	current, err := g.counter.GetInt(ctx, key)
	if err != nil {
		// Fail open: a counter outage must not block dispatch.
		g.logger.Warn("rate-limit read failed, allowing call", "key", key, "error", err)
		return nil
	}
	if current >= int64(pol.RatePerMinute) {
		return &core.Error{
			Kind:       core.ErrRateLimitExceeded,
			Message:    fmt.Sprintf("rate limit exceeded for %s: %d/%d per minute", pol.ToolClass, current, pol.RatePerMinute),
			RetryAfter: RetryAfterSeconds,
		}
	}
	if _, err := g.counter.Increment(ctx, key, rateWindow); err != nil {
		g.logger.Warn("rate-limit increment failed", "key", key, "error", err)
	}
	return nil
}
