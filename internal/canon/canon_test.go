package canon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/braidhq/engine/internal/core"
)

var tenant = core.TenantRecord{ID: "4f6d2c1e-9a0b-4c3d-8e2f-1a2b3c4d5e6f", Slug: "acme"}

func TestNormalizeInjectsTenant(t *testing.T) {
	c := New(nil)

	args := c.Normalize("get_lead", core.Args{"lead_id": "L1"}, tenant)
	assert.Equal(t, tenant.ID, args["tenant"])

	// A disagreeing tenant is silently overridden.
	args = c.Normalize("get_lead", core.Args{"lead_id": "L1", "tenant": "someone-else"}, tenant)
	assert.Equal(t, tenant.ID, args["tenant"])
}

func TestNormalizeDoesNotMutateInput(t *testing.T) {
	c := New(nil)
	raw := core.Args{"filter": map[string]any{"status": "open"}}

	c.Normalize("list_leads", raw, tenant)

	_, stillThere := raw["filter"]
	assert.True(t, stillThere)
	_, injected := raw["tenant"]
	assert.False(t, injected)
}

func TestFilterUnwrapOnlyForListTools(t *testing.T) {
	c := New(nil)

	args := c.Normalize("list_leads", core.Args{"filter": map[string]any{"source": "web", "limit": "25"}}, tenant)
	assert.NotContains(t, args, "filter")
	assert.Equal(t, "web", args["source"])
	assert.Equal(t, 25, args["limit"])

	// Non-list tools keep their filter untouched.
	args = c.Normalize("create_lead", core.Args{"filter": map[string]any{"source": "web"}}, tenant)
	assert.Contains(t, args, "filter")
}

func TestFilterCannotOverrideTenant(t *testing.T) {
	c := New(nil)
	args := c.Normalize("list_accounts", core.Args{"filter": map[string]any{"tenant": "intruder"}}, tenant)
	assert.Equal(t, tenant.ID, args["tenant"])
}

func TestLimitCoercion(t *testing.T) {
	c := New(nil)

	args := c.Normalize("list_leads", core.Args{"limit": "10"}, tenant)
	assert.Equal(t, 10, args["limit"])

	// Unparseable limits pass through unchanged.
	args = c.Normalize("list_leads", core.Args{"limit": "x"}, tenant)
	assert.Equal(t, "x", args["limit"])

	args = c.Normalize("list_leads", core.Args{"limit": 7}, tenant)
	assert.Equal(t, 7, args["limit"])
}

func TestStatusErasure(t *testing.T) {
	c := New(nil)
	for _, status := range []string{"all", "any", ""} {
		args := c.Normalize("list_leads", core.Args{"status": status}, tenant)
		assert.NotContains(t, args, "status", "status %q should be erased", status)
	}
	args := c.Normalize("list_leads", core.Args{"status": "qualified"}, tenant)
	assert.Equal(t, "qualified", args["status"])
}

func TestUpdatesRehydration(t *testing.T) {
	c := New(nil)

	// String updates are parsed and receive the tenant id.
	args := c.Normalize("update_lead", core.Args{"lead_id": "L1", "updates": `{"status":"qualified"}`}, tenant)
	updates, ok := args.Map("updates")
	require.True(t, ok)
	assert.Equal(t, "qualified", updates["status"])
	assert.Equal(t, tenant.ID, updates["tenant_id"])

	// Map updates just get the tenant id merged.
	args = c.Normalize("update_account", core.Args{"updates": map[string]any{"name": "Acme"}}, tenant)
	updates, ok = args.Map("updates")
	require.True(t, ok)
	assert.Equal(t, tenant.ID, updates["tenant_id"])

	// Broken JSON passes through with a warning.
	args = c.Normalize("update_note", core.Args{"updates": `{broken`}, tenant)
	assert.Equal(t, `{broken`, args["updates"])

	// Non-update tools never touch updates.
	args = c.Normalize("create_note", core.Args{"updates": `{"x":1}`}, tenant)
	assert.Equal(t, `{"x":1}`, args["updates"])
}

func TestNormalizeIsIdempotent(t *testing.T) {
	c := New(nil)
	cases := []struct {
		tool string
		args core.Args
	}{
		{"list_leads", core.Args{"filter": map[string]any{"status": "all", "limit": "25"}}},
		{"update_lead", core.Args{"lead_id": "L1", "updates": `{"status":"qualified"}`}},
		{"update_lead", core.Args{"updates": `{broken`}},
		{"search_contacts", core.Args{"limit": "x", "status": "any", "tenant": "wrong"}},
		{"get_lead", core.Args{}},
	}
	for _, tc := range cases {
		once := c.Normalize(tc.tool, tc.args, tenant)
		twice := c.Normalize(tc.tool, once, tenant)
		assert.Equal(t, once, twice, "tool %s", tc.tool)
	}
}

func TestPositionalProjection(t *testing.T) {
	c := New(nil)
	order := []string{"tenant", "status", "source", "assigned_to", "limit", "offset"}
	args := c.Normalize("list_leads", core.Args{"filter": map[string]any{"status": "all", "limit": "25"}}, tenant)

	positional := c.Positional(order, args)
	require.Len(t, positional, 6)
	assert.Equal(t, tenant.ID, positional[0])
	assert.Nil(t, positional[1], "erased status must surface as unset")
	assert.Nil(t, positional[2])
	assert.Equal(t, 25, positional[4])
	assert.Nil(t, positional[5])
}
