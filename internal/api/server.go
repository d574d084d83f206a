// Package api exposes the engine over REST and WebSocket for agent
// hosts. Every /api route requires a tenant API key; the key's role
// caps what the calls on that connection may do.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/braidhq/engine/internal/chain"
	"github.com/braidhq/engine/internal/core"
	"github.com/braidhq/engine/internal/database"
	"github.com/braidhq/engine/internal/dispatch"
	"github.com/braidhq/engine/internal/events"
	"github.com/braidhq/engine/internal/graph"
	"github.com/braidhq/engine/internal/metrics"
	"github.com/braidhq/engine/internal/registry"
)

// ToolDispatcher runs single and batch tool dispatches. Satisfied by
// *dispatch.Dispatcher.
type ToolDispatcher interface {
	Execute(ctx context.Context, toolName string, rawArgs core.Args, tenant core.TenantRecord, userID string, token *core.AccessToken) core.Result
	ExecuteBatch(ctx context.Context, calls []dispatch.BatchCall, parallel bool, tenant core.TenantRecord, userID string, token *core.AccessToken) []core.Result
}

// ChainRunner executes a named chain. Satisfied by *chain.Executor.
type ChainRunner interface {
	Execute(ctx context.Context, name string, input core.Args, tenant core.TenantRecord, userID string, token *core.AccessToken) chain.ChainResult
}

// Authenticator resolves a presented API key to the key row and its
// active tenant. Satisfied by *security.Authenticator.
type Authenticator interface {
	ValidateAPIKey(ctx context.Context, fullKey string) (*database.APIKey, *database.Tenant, error)
}

// Deps are the engine components the REST surface fronts.
type Deps struct {
	Dispatcher ToolDispatcher
	Chains     ChainRunner
	ChainDefs  *chain.Registry
	Registry   *registry.Registry
	Analyzer   *graph.Analyzer
	Realtime   *metrics.Accumulator
	Bus        *events.Bus
	Auth       Authenticator
	Logger     *slog.Logger
}

// Server is the HTTP host for the engine.
type Server struct {
	dispatcher ToolDispatcher
	chains     ChainRunner
	chainDefs  *chain.Registry
	registry   *registry.Registry
	analyzer   *graph.Analyzer
	realtime   *metrics.Accumulator
	bus        *events.Bus
	auth       Authenticator
	logger     *slog.Logger

	httpServer *http.Server
	startedAt  time.Time
}

func NewServer(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		dispatcher: deps.Dispatcher,
		chains:     deps.Chains,
		chainDefs:  deps.ChainDefs,
		registry:   deps.Registry,
		analyzer:   deps.Analyzer,
		realtime:   deps.Realtime,
		bus:        deps.Bus,
		auth:       deps.Auth,
		logger:     logger.With("component", "api"),
		startedAt:  time.Now(),
	}
}

// Router builds the full route table. Exposed separately from Start so
// tests can drive it through httptest.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.corsMiddleware)
	r.Use(s.loggingMiddleware)

	r.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.Use(s.authMiddleware)

	api.HandleFunc("/tools/execute", s.handleExecute).Methods("POST")
	api.HandleFunc("/tools/batch", s.handleBatch).Methods("POST")
	api.HandleFunc("/tools", s.handleListTools).Methods("GET")
	api.HandleFunc("/tools/{name}/impact", s.handleImpact).Methods("GET")
	api.HandleFunc("/tools/{name}/dependencies", s.handleDependencies).Methods("GET")
	api.HandleFunc("/tools/{name}/dependents", s.handleDependents).Methods("GET")

	api.HandleFunc("/chains/{name}/execute", s.handleChainExecute).Methods("POST")
	api.HandleFunc("/chains", s.handleListChains).Methods("GET")

	api.HandleFunc("/metrics/realtime", s.handleRealtimeMetrics).Methods("GET")

	api.HandleFunc("/graph", s.handleGraph).Methods("GET")
	api.HandleFunc("/graph/cycles", s.handleCycles).Methods("GET")

	api.HandleFunc("/events/stream", s.handleEventStream).Methods("GET")

	return r
}

// Start serves until the context is cancelled, then drains in-flight
// requests.
func (s *Server) Start(ctx context.Context, addr string) error {
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("rest surface listening", "addr", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

// requestIdentity is the authenticated state the middleware stamps on
// every /api request.
type requestIdentity struct {
	tenant core.TenantRecord
	role   core.Role
	keyID  string
}

type identityKey struct{}

func identityFrom(ctx context.Context) (requestIdentity, bool) {
	id, ok := ctx.Value(identityKey{}).(requestIdentity)
	return id, ok
}

// authMiddleware validates the API key and resolves the tenant. The
// key travels as a bearer header, or as an api_key query parameter for
// websocket clients that cannot set headers.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := bearerToken(r)
		if key == "" {
			key = r.URL.Query().Get("api_key")
		}
		if key == "" {
			writeError(w, http.StatusUnauthorized, "missing api key")
			return
		}

		apiKey, tenant, err := s.auth.ValidateAPIKey(r.Context(), key)
		if err != nil {
			s.logger.Warn("api key rejected", "error", err)
			writeError(w, http.StatusUnauthorized, "invalid api key")
			return
		}

		identity := requestIdentity{
			tenant: core.TenantRecord{ID: tenant.TenantID, Slug: tenant.TenantSlug},
			role:   core.ParseRole(apiKey.Role),
			keyID:  apiKey.KeyID,
		}
		ctx := context.WithValue(r.Context(), identityKey{}, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "healthy",
		"service":        "braid-engine",
		"uptime_seconds": int(time.Since(s.startedAt).Seconds()),
		"tools":          s.registry.Count(),
		"chains":         s.chainDefs.Len(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("response encode failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, format string, args ...any) {
	writeJSON(w, status, map[string]string{"error": fmt.Sprintf(format, args...)})
}
