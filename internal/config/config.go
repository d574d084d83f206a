// Package config loads the engine configuration from a YAML file and
// overlays environment variables. Environment always wins, so a
// container deployment can run with no file at all.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Redis    RedisConfig    `yaml:"redis"`
	Supabase SupabaseConfig `yaml:"supabase"`
	Postgres PostgresConfig `yaml:"postgres"`
	Backend  BackendConfig  `yaml:"backend"`
	Security SecurityConfig `yaml:"security"`
	Cache    CacheConfig    `yaml:"cache"`
	Events   EventsConfig   `yaml:"events"`
	Audit    AuditConfig    `yaml:"audit"`
	Webhooks WebhooksConfig `yaml:"webhooks"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
	Env  string `yaml:"env"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type SupabaseConfig struct {
	URL        string `yaml:"url"`
	ServiceKey string `yaml:"service_key"`
}

type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

// BackendConfig locates the Braid functions runtime that actually
// executes tools.
type BackendConfig struct {
	BaseURL        string `yaml:"base_url"`
	DataSource     string `yaml:"data_source"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type SecurityConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	// JWTPreviousSecret keeps verifying for RotationGraceHours after
	// startup so in-flight credentials survive a key rotation.
	JWTPreviousSecret    string `yaml:"jwt_previous_secret"`
	RotationGraceHours   int    `yaml:"rotation_grace_hours"`
	CredentialTTLSeconds int    `yaml:"credential_ttl_seconds"`
	Issuer               string `yaml:"issuer"`
}

// CacheConfig selects where cached tool results live. "redis" shares
// entries across replicas; "memory" pins them to the process, which is
// the automatic fallback when Redis is unreachable.
type CacheConfig struct {
	Backend string `yaml:"backend"`
}

// EventsConfig selects the event fan-out. "memory" serves only the
// in-process websocket stream; "pubsub" additionally publishes every
// event to a Google Cloud Pub/Sub topic.
type EventsConfig struct {
	Backend   string `yaml:"backend"`
	ProjectID string `yaml:"project_id"`
	Topic     string `yaml:"topic"`
}

// AuditConfig selects the audit row store: "supabase", "postgres" or
// "none".
type AuditConfig struct {
	Backend string `yaml:"backend"`
	Table   string `yaml:"table"`
}

// WebhooksConfig lists the outbound endpoints that receive engine
// events as signed JSON POSTs.
type WebhooksConfig struct {
	Endpoints []WebhookEndpoint `yaml:"endpoints"`
}

type WebhookEndpoint struct {
	URL      string   `yaml:"url"`
	Secret   string   `yaml:"secret"`
	TenantID string   `yaml:"tenant_id"`
	Events   []string `yaml:"events"`
}

// Default returns the development configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Port: "8080", Env: "development"},
		Redis:  RedisConfig{Addr: "localhost:6379"},
		Backend: BackendConfig{
			BaseURL:        "http://localhost:3000",
			DataSource:     "supabase",
			TimeoutSeconds: 30,
		},
		Security: SecurityConfig{
			RotationGraceHours:   24,
			CredentialTTLSeconds: 300,
			Issuer:               "braid-engine",
		},
		Cache:  CacheConfig{Backend: "redis"},
		Events: EventsConfig{Backend: "memory", Topic: "braid-events"},
		Audit:  AuditConfig{Backend: "none", Table: "tool_audit_log"},
	}
}

// Load reads the YAML file at path over the defaults, then overlays
// environment variables. An empty path skips the file entirely.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		decoder := yaml.NewDecoder(f)
		if err := decoder.Decode(cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	envString(&c.Server.Port, "PORT")
	envString(&c.Server.Env, "APP_ENV")
	envString(&c.Redis.Addr, "REDIS_ADDR")
	envString(&c.Redis.Password, "REDIS_PASSWORD")
	envInt(&c.Redis.DB, "REDIS_DB")
	envString(&c.Supabase.URL, "SUPABASE_URL")
	envString(&c.Supabase.ServiceKey, "SUPABASE_SERVICE_KEY")
	envString(&c.Postgres.DSN, "DATABASE_URL")
	envString(&c.Backend.BaseURL, "BACKEND_BASE_URL")
	envString(&c.Backend.DataSource, "BACKEND_DATA_SOURCE")
	envInt(&c.Backend.TimeoutSeconds, "BACKEND_TIMEOUT_SECONDS")
	envString(&c.Security.JWTSecret, "BRAID_JWT_SECRET")
	envString(&c.Security.JWTPreviousSecret, "BRAID_JWT_PREVIOUS_SECRET")
	envString(&c.Cache.Backend, "CACHE_BACKEND")
	envString(&c.Events.Backend, "EVENTS_BACKEND")
	envString(&c.Events.ProjectID, "PUBSUB_PROJECT_ID")
	envString(&c.Events.Topic, "PUBSUB_TOPIC")
	envString(&c.Audit.Backend, "AUDIT_BACKEND")
	envString(&c.Audit.Table, "AUDIT_TABLE")
}

// Validate reports configuration mistakes that would otherwise surface
// as confusing runtime failures.
func (c *Config) Validate() []string {
	var problems []string

	switch c.Cache.Backend {
	case "redis", "memory":
	default:
		problems = append(problems, fmt.Sprintf("cache.backend %q is not redis or memory", c.Cache.Backend))
	}

	switch c.Events.Backend {
	case "memory":
	case "pubsub":
		if c.Events.ProjectID == "" {
			problems = append(problems, "events.backend pubsub requires events.project_id")
		}
	default:
		problems = append(problems, fmt.Sprintf("events.backend %q is not memory or pubsub", c.Events.Backend))
	}

	switch c.Audit.Backend {
	case "", "none":
	case "supabase":
		if c.Supabase.URL == "" || c.Supabase.ServiceKey == "" {
			problems = append(problems, "audit.backend supabase requires supabase.url and supabase.service_key")
		}
	case "postgres":
		if c.Postgres.DSN == "" {
			problems = append(problems, "audit.backend postgres requires postgres.dsn")
		}
	default:
		problems = append(problems, fmt.Sprintf("audit.backend %q is not supabase, postgres or none", c.Audit.Backend))
	}

	for i, ep := range c.Webhooks.Endpoints {
		if ep.URL == "" {
			problems = append(problems, fmt.Sprintf("webhooks.endpoints[%d]: url is required", i))
		}
	}

	if c.Backend.BaseURL == "" {
		problems = append(problems, "backend.base_url must be set")
	}
	if c.Server.Env == "production" && c.Security.JWTSecret == "" {
		problems = append(problems, "security.jwt_secret must be set in production")
	}
	return problems
}

func envString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
