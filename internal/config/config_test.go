package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "engine.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "development", cfg.Server.Env)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "supabase", cfg.Backend.DataSource)
	assert.Equal(t, 30, cfg.Backend.TimeoutSeconds)
	assert.Equal(t, 300, cfg.Security.CredentialTTLSeconds)
	assert.Equal(t, "braid-engine", cfg.Security.Issuer)
	assert.Equal(t, "redis", cfg.Cache.Backend)
	assert.Equal(t, "memory", cfg.Events.Backend)
	assert.Equal(t, "none", cfg.Audit.Backend)
	assert.Equal(t, "tool_audit_log", cfg.Audit.Table)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: "9090"
  env: production
redis:
  addr: redis.internal:6379
  db: 2
backend:
  base_url: http://functions.internal:3000
  timeout_seconds: 10
security:
  jwt_secret: file-secret
events:
  backend: pubsub
  project_id: braid-prod
audit:
  backend: postgres
postgres:
  dsn: postgres://braid@db/braid
webhooks:
  endpoints:
    - url: https://ops.example.com/hooks
      secret: hush
      events: [tool.failed, chain.failed]
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "production", cfg.Server.Env)
	assert.Equal(t, "redis.internal:6379", cfg.Redis.Addr)
	assert.Equal(t, 2, cfg.Redis.DB)
	assert.Equal(t, "http://functions.internal:3000", cfg.Backend.BaseURL)
	assert.Equal(t, 10, cfg.Backend.TimeoutSeconds)
	assert.Equal(t, "pubsub", cfg.Events.Backend)
	assert.Equal(t, "braid-prod", cfg.Events.ProjectID)
	assert.Equal(t, "postgres", cfg.Audit.Backend)
	require.Len(t, cfg.Webhooks.Endpoints, 1)
	assert.Equal(t, "https://ops.example.com/hooks", cfg.Webhooks.Endpoints[0].URL)
	assert.Equal(t, []string{"tool.failed", "chain.failed"}, cfg.Webhooks.Endpoints[0].Events)

	// Sections the file does not mention keep their defaults.
	assert.Equal(t, "supabase", cfg.Backend.DataSource)
	assert.Equal(t, "braid-events", cfg.Events.Topic)
}

func TestEnvAlwaysWins(t *testing.T) {
	path := writeConfig(t, `
server:
  port: "9090"
redis:
  addr: redis.internal:6379
security:
  jwt_secret: file-secret
`)

	t.Setenv("PORT", "7070")
	t.Setenv("REDIS_ADDR", "override:6379")
	t.Setenv("REDIS_DB", "5")
	t.Setenv("BRAID_JWT_SECRET", "env-secret")
	t.Setenv("AUDIT_BACKEND", "supabase")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "7070", cfg.Server.Port)
	assert.Equal(t, "override:6379", cfg.Redis.Addr)
	assert.Equal(t, 5, cfg.Redis.DB)
	assert.Equal(t, "env-secret", cfg.Security.JWTSecret)
	assert.Equal(t, "supabase", cfg.Audit.Backend)
}

func TestMalformedEnvIntIsIgnored(t *testing.T) {
	t.Setenv("REDIS_DB", "not-a-number")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Redis.DB)
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := writeConfig(t, "server: [not a map")
	_, err := Load(path)
	require.Error(t, err)
}

func TestValidateFlagsProblems(t *testing.T) {
	cfg := Default()
	cfg.Server.Env = "production"
	cfg.Cache.Backend = "disk"
	cfg.Events.Backend = "pubsub" // no project id
	cfg.Audit.Backend = "postgres"
	cfg.Backend.BaseURL = ""
	cfg.Webhooks.Endpoints = []WebhookEndpoint{{Secret: "s"}} // no url

	problems := cfg.Validate()
	joined := ""
	for _, p := range problems {
		joined += p + "\n"
	}

	assert.Len(t, problems, 6)
	assert.Contains(t, joined, `cache.backend "disk"`)
	assert.Contains(t, joined, "events.project_id")
	assert.Contains(t, joined, "postgres.dsn")
	assert.Contains(t, joined, "backend.base_url")
	assert.Contains(t, joined, "security.jwt_secret")
	assert.Contains(t, joined, "webhooks.endpoints[0]")
}

func TestValidatePassesDefaults(t *testing.T) {
	assert.Empty(t, Default().Validate())
}
