package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/braidhq/engine/internal/core"
)

func TestTableCoversAllSevenPolicies(t *testing.T) {
	for _, name := range []string{ReadOnly, Write, Delete, AdminOnly, SystemInternal, AISuggestions, ExternalAPI} {
		p, ok := Lookup(name)
		require.True(t, ok, "policy %s missing", name)
		assert.Equal(t, name, p.Name)
		assert.Positive(t, p.RatePerMinute)
	}
	_, ok := Lookup("yolo")
	assert.False(t, ok)
}

func TestRateLimits(t *testing.T) {
	assert.Equal(t, 100, RateLimit(ReadOnly))
	assert.Equal(t, 50, RateLimit(Write))
	assert.Equal(t, 20, RateLimit(Delete))
	assert.Equal(t, 30, RateLimit(AdminOnly))
	assert.Equal(t, 200, RateLimit(SystemInternal))
	assert.Equal(t, 40, RateLimit(AISuggestions))
	assert.Equal(t, 10, RateLimit(ExternalAPI))
	assert.Zero(t, RateLimit("missing"))
}

func TestRoleMembershipMatchesRankOrder(t *testing.T) {
	tests := []struct {
		policy string
		min    core.Role
	}{
		{Write, core.RoleUser},
		{Delete, core.RoleManager},
		{AdminOnly, core.RoleAdmin},
		{SystemInternal, core.RoleSystem},
	}
	allRoles := []core.Role{core.RoleUser, core.RoleManager, core.RoleAdmin, core.RoleSuperadmin, core.RoleSystem}

	for _, tc := range tests {
		t.Run(tc.policy, func(t *testing.T) {
			p, ok := Lookup(tc.policy)
			require.True(t, ok)
			for _, r := range allRoles {
				assert.Equal(t, r.AtLeast(tc.min), p.AllowsRole(r),
					"%s under %s", r, tc.policy)
			}
			min, restricted := MinimumRole(tc.policy)
			require.True(t, restricted)
			assert.Equal(t, tc.min, min)
		})
	}
}

func TestReadOnlyAdmitsEveryRole(t *testing.T) {
	p, ok := Lookup(ReadOnly)
	require.True(t, ok)
	assert.Empty(t, p.RequiredRoles)
	assert.True(t, p.AllowsRole(core.RoleUser))

	_, restricted := MinimumRole(ReadOnly)
	assert.False(t, restricted)
}

func TestIsOperationAllowedDeniedWins(t *testing.T) {
	assert.True(t, IsOperationAllowed(ReadOnly, "list"))
	assert.False(t, IsOperationAllowed(ReadOnly, "delete"))
	assert.False(t, IsOperationAllowed(Write, "delete"))
	assert.True(t, IsOperationAllowed(Write, "create"))

	// Empty allow set admits anything not denied.
	assert.True(t, IsOperationAllowed(AdminOnly, "reassign"))
	assert.True(t, IsOperationAllowed(SystemInternal, "migrate"))

	assert.False(t, IsOperationAllowed("missing", "read"))
}

func TestConfirmationFlags(t *testing.T) {
	assert.True(t, RequiresConfirmation(Delete))
	assert.True(t, RequiresConfirmation(AdminOnly))
	assert.False(t, RequiresConfirmation(ReadOnly))
	assert.False(t, RequiresConfirmation(Write))
}

func TestTenantIsolationOffForSystemOnly(t *testing.T) {
	for _, name := range Names() {
		p, _ := Lookup(name)
		if name == SystemInternal {
			assert.False(t, p.TenantIsolation)
		} else {
			assert.True(t, p.TenantIsolation, "policy %s", name)
		}
	}
}
