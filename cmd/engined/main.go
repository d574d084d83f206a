// engined is the Braid tool dispatch engine host: it wires the policy
// table, registry, gate, cache, metrics, audit trail and chain executor
// behind the REST/WebSocket surface agent hosts call.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/braidhq/engine/internal/api"
	"github.com/braidhq/engine/internal/audit"
	"github.com/braidhq/engine/internal/cache"
	"github.com/braidhq/engine/internal/canon"
	"github.com/braidhq/engine/internal/chain"
	"github.com/braidhq/engine/internal/config"
	"github.com/braidhq/engine/internal/database"
	"github.com/braidhq/engine/internal/dispatch"
	"github.com/braidhq/engine/internal/events"
	"github.com/braidhq/engine/internal/executor"
	"github.com/braidhq/engine/internal/gate"
	"github.com/braidhq/engine/internal/graph"
	"github.com/braidhq/engine/internal/infra"
	"github.com/braidhq/engine/internal/metrics"
	"github.com/braidhq/engine/internal/registry"
	"github.com/braidhq/engine/internal/security"
	"github.com/braidhq/engine/internal/webhooks"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, using environment variables")
	}

	var (
		configPath   = flag.String("config", "", "path to engine.yaml (optional)")
		manifestPath = flag.String("manifest", "configs/braid-manifest.yaml", "path to the parsed tool manifest")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("config load failed", "path", *configPath, "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Server.Env)
	slog.SetDefault(logger)

	if problems := cfg.Validate(); len(problems) > 0 {
		for _, p := range problems {
			logger.Error("configuration problem", "problem", p)
		}
		os.Exit(1)
	}

	// Shared counter/cache store: Redis, or in-process when unreachable.
	var (
		cacheBackend   cache.Backend
		metricsBackend metrics.Backend
		rateCounter    gate.Counter
	)
	redisStore, err := infra.NewRedisStore(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Warn("redis unreachable, using in-process store; rate limits and cache are per-replica", "error", err)
		mem := infra.NewMemoryStore()
		cacheBackend, metricsBackend, rateCounter = mem, mem, mem
	} else {
		defer redisStore.Close()
		cacheBackend, metricsBackend, rateCounter = redisStore, redisStore, redisStore
	}
	if cfg.Cache.Backend == "memory" {
		logger.Info("cache pinned to process-local memory")
		cacheBackend = infra.NewMemoryStore()
	}

	auditStore, err := audit.OpenStore(audit.Options{
		Backend:     cfg.Audit.Backend,
		Table:       cfg.Audit.Table,
		SupabaseURL: cfg.Supabase.URL,
		SupabaseKey: cfg.Supabase.ServiceKey,
		PostgresDSN: cfg.Postgres.DSN,
	}, logger)
	if err != nil {
		logger.Error("audit store init failed", "backend", cfg.Audit.Backend, "error", err)
		os.Exit(1)
	}
	auditSink := audit.NewSink(auditStore, logger)

	// Event fan-out: in-memory always, Pub/Sub additionally when configured.
	bus := events.NewBus()
	var emitter events.Emitter = bus
	if cfg.Events.Backend == "pubsub" {
		pubsubBus, err := events.NewPubSubBus(cfg.Events.ProjectID, cfg.Events.Topic, logger)
		if err != nil {
			logger.Warn("pub/sub unavailable, events stay in-process", "error", err)
		} else {
			defer pubsubBus.Close()
			bus = pubsubBus.Bus
			emitter = pubsubBus
		}
	}

	// Outbound webhooks ride the same bus as the websocket stream.
	if len(cfg.Webhooks.Endpoints) > 0 {
		hookReg := webhooks.NewRegistry()
		for _, ep := range cfg.Webhooks.Endpoints {
			err := hookReg.Register(&webhooks.Endpoint{
				URL:      ep.URL,
				Secret:   ep.Secret,
				TenantID: ep.TenantID,
				Events:   ep.Events,
			})
			if err != nil {
				logger.Warn("skipping webhook endpoint", "url", ep.URL, "error", err)
			}
		}
		hookDispatcher := webhooks.NewDispatcher(hookReg, 4, logger)
		defer hookDispatcher.Close()
		go hookDispatcher.Run(bus.Subscribe())
		logger.Info("webhook delivery enabled", "endpoints", hookReg.Len())
	}

	reg := registry.New(logger)
	if *manifestPath != "" {
		if err := reg.LoadManifest(*manifestPath); err != nil {
			logger.Warn("manifest not loaded; calls will pass args as a single map", "path", *manifestPath, "error", err)
		}
	}
	reg.Validate()

	minter := security.NewMinter(security.MinterConfig{
		Secret:         cfg.Security.JWTSecret,
		PreviousSecret: cfg.Security.JWTPreviousSecret,
		RotationGrace:  time.Duration(cfg.Security.RotationGraceHours) * time.Hour,
		TTL:            time.Duration(cfg.Security.CredentialTTLSeconds) * time.Second,
		Issuer:         cfg.Security.Issuer,
	})

	collectors := metrics.NewCollectors(prometheus.DefaultRegisterer)
	accumulator := metrics.NewAccumulator(metricsBackend, logger)

	dispatcher := dispatch.New(dispatch.Deps{
		Registry:   reg,
		Gate:       gate.New(reg, rateCounter, logger),
		Canon:      canon.New(logger),
		Cache:      cache.New(cacheBackend, logger),
		Metrics:    accumulator,
		Collectors: collectors,
		Audit:      auditSink,
		Minter:     minter,
		Executor:   executor.NewClient(cfg.Backend.BaseURL, logger),
		Events:     emitter,
		Logger:     logger,
	}, dispatch.Config{
		BackendBaseURL: cfg.Backend.BaseURL,
		DataSource:     cfg.Backend.DataSource,
		Timeout:        time.Duration(cfg.Backend.TimeoutSeconds) * time.Second,
	})

	chainDefs := chain.NewRegistry(chain.Builtins()...)
	chainExec := chain.NewExecutor(chain.Deps{
		Chains:     chainDefs,
		Tools:      reg,
		Dispatcher: dispatcher,
		Collectors: collectors,
		Events:     emitter,
		Logger:     logger,
	})

	auth, err := newAuthenticator(cfg, logger)
	if err != nil {
		logger.Error("authenticator init failed", "error", err)
		os.Exit(1)
	}

	server := api.NewServer(api.Deps{
		Dispatcher: dispatcher,
		Chains:     chainExec,
		ChainDefs:  chainDefs,
		Registry:   reg,
		Analyzer:   graph.New(graph.DefaultNodes(), chainDefs.List()),
		Realtime:   accumulator,
		Bus:        bus,
		Auth:       auth,
		Logger:     logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("braid engine starting",
		"port", cfg.Server.Port,
		"tools", reg.Count(),
		"chains", chainDefs.Len(),
		"audit", cfg.Audit.Backend,
		"events", cfg.Events.Backend,
	)
	if err := server.Start(ctx, ":"+cfg.Server.Port); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}

	// Flush queued audit rows before the process exits.
	auditSink.Drain()
	logger.Info("braid engine stopped")
}

func newLogger(env string) *slog.Logger {
	if env == "production" {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// newAuthenticator picks the API-key verifier for the REST surface.
// Supabase is the real backend; a single static dev key can stand in
// for local work when Supabase is not configured.
func newAuthenticator(cfg *config.Config, logger *slog.Logger) (api.Authenticator, error) {
	if cfg.Supabase.URL != "" && cfg.Supabase.ServiceKey != "" {
		client, err := database.NewSupabaseClient(cfg.Supabase.URL, cfg.Supabase.ServiceKey)
		if err != nil {
			return nil, err
		}
		return security.NewAuthenticator(client), nil
	}

	devKey := os.Getenv("BRAID_DEV_API_KEY")
	if devKey == "" {
		return nil, fmt.Errorf("no supabase configured and BRAID_DEV_API_KEY not set")
	}
	if cfg.Server.Env == "production" {
		return nil, fmt.Errorf("static dev key is not allowed in production")
	}
	logger.Warn("using static dev API key; every request maps to the dev tenant")
	return &devAuth{
		key:      devKey,
		tenantID: envOr("BRAID_DEV_TENANT_ID", "00000000-0000-4000-8000-000000000000"),
		role:     envOr("BRAID_DEV_ROLE", "admin"),
	}, nil
}

type devAuth struct {
	key      string
	tenantID string
	role     string
}

func (d *devAuth) ValidateAPIKey(ctx context.Context, fullKey string) (*database.APIKey, *database.Tenant, error) {
	if fullKey != d.key {
		return nil, nil, fmt.Errorf("invalid api key")
	}
	return &database.APIKey{KeyID: "dev", TenantID: d.tenantID, Name: "dev", Role: d.role, IsActive: true},
		&database.Tenant{TenantID: d.tenantID, TenantSlug: "dev", Status: "ACTIVE"},
		nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
