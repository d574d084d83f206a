package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoleOrdering(t *testing.T) {
	order := []Role{RoleUser, RoleManager, RoleAdmin, RoleSuperadmin, RoleSystem}
	for i := 1; i < len(order); i++ {
		assert.Greater(t, order[i].Rank(), order[i-1].Rank(), "%s should outrank %s", order[i], order[i-1])
	}

	assert.True(t, RoleSystem.AtLeast(RoleUser))
	assert.True(t, RoleManager.AtLeast(RoleManager))
	assert.False(t, RoleUser.AtLeast(RoleManager))
}

func TestParseRoleFallsBackToUser(t *testing.T) {
	assert.Equal(t, RoleAdmin, ParseRole("admin"))
	assert.Equal(t, RoleUser, ParseRole("root"))
	assert.Equal(t, RoleUser, ParseRole(""))
}

func TestAccessTokenValid(t *testing.T) {
	tests := []struct {
		name  string
		token *AccessToken
		want  bool
	}{
		{"nil token", nil, false},
		{"verified with right source", &AccessToken{Verified: true, Source: TokenSource}, true},
		{"unverified", &AccessToken{Verified: false, Source: TokenSource}, false},
		{"wrong source", &AccessToken{Verified: true, Source: "session-cookie"}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.token.Valid())
		})
	}
}
