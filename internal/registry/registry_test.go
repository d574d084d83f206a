package registry

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/braidhq/engine/internal/policy"
)

func TestLookupKnownTool(t *testing.T) {
	r := New(nil)

	tool, ok := r.Lookup("list_leads")
	require.True(t, ok)
	assert.Equal(t, "leads.js", tool.SourceFile)
	assert.Equal(t, "listLeads", tool.FunctionName)
	assert.Equal(t, policy.ReadOnly, tool.Policy)

	_, ok = r.Lookup("unknown_tool")
	assert.False(t, ok)
}

func TestEveryToolReferencesAKnownPolicy(t *testing.T) {
	r := New(nil)
	for _, tool := range r.List() {
		_, ok := policy.Lookup(tool.Policy)
		assert.True(t, ok, "tool %s has unknown policy %s", tool.Name, tool.Policy)
		assert.NotEmpty(t, tool.SourceFile, "tool %s", tool.Name)
		assert.NotEmpty(t, tool.FunctionName, "tool %s", tool.Name)
	}
}

func TestListIsNameOrdered(t *testing.T) {
	r := New(nil)
	tools := r.List()
	require.Equal(t, r.Count(), len(tools))
	for i := 1; i < len(tools); i++ {
		assert.Less(t, tools[i-1].Name, tools[i].Name)
	}
}

func TestTTLFallsBackToDefault(t *testing.T) {
	r := New(nil)
	assert.Equal(t, 300*time.Second, r.TTL("get_sales_snapshot"))
	assert.Equal(t, 60*time.Second, r.TTL("list_leads"))
	assert.Equal(t, DefaultTTL, r.TTL("list_notes"))
	assert.Equal(t, DefaultTTL, r.TTL("never_registered"))
}

func TestParamOrderMissingUntilLoaded(t *testing.T) {
	r := New(nil)

	_, ok := r.ParamOrder("listLeads")
	assert.False(t, ok)

	r.SetParamOrder("listLeads", []string{"tenant", "status", "limit"})
	params, ok := r.ParamOrder("listLeads")
	require.True(t, ok)
	assert.Equal(t, []string{"tenant", "status", "limit"}, params)
}

func TestLoadManifest(t *testing.T) {
	manifest := `
functions:
  listLeads:
    file: leads.js
    policy: read-only
    params: [tenant, status, source, assigned_to, limit, offset]
  deleteAccount:
    file: accounts.js
    policy: delete
    params: [tenant, account_id, confirmed]
  ghostFunction:
    file: ghosts.js
    policy: read-only
    params: [tenant]
`
	path := filepath.Join(t.TempDir(), "manifest.yaml")
	require.NoError(t, os.WriteFile(path, []byte(manifest), 0o644))

	r := New(nil)
	require.NoError(t, r.LoadManifest(path))

	params, ok := r.ParamOrder("listLeads")
	require.True(t, ok)
	assert.Equal(t, []string{"tenant", "status", "source", "assigned_to", "limit", "offset"}, params)

	// Unknown functions still get an order; the mismatch is only logged.
	_, ok = r.ParamOrder("ghostFunction")
	assert.True(t, ok)
}

func TestLoadManifestMissingFile(t *testing.T) {
	r := New(nil)
	assert.Error(t, r.LoadManifest("/does/not/exist.yaml"))
}

func TestValidateWarnsOnMissingParamOrders(t *testing.T) {
	r := New(nil)
	warnings := r.Validate()
	// No manifest loaded: every function should warn, no policy warnings.
	assert.Equal(t, r.Count(), len(warnings))

	for _, tool := range r.List() {
		r.SetParamOrder(tool.FunctionName, []string{"tenant"})
	}
	assert.Empty(t, r.Validate())
}
