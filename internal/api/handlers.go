package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/braidhq/engine/internal/chain"
	"github.com/braidhq/engine/internal/core"
	"github.com/braidhq/engine/internal/dispatch"
	"github.com/braidhq/engine/internal/graph"
	"github.com/braidhq/engine/internal/metrics"
	"github.com/braidhq/engine/internal/summary"
)

// maxBatchCalls bounds one batch request.
const maxBatchCalls = 25

// userPayload identifies the end user the agent host acts for. The
// role never travels in the body; it comes from the API key.
type userPayload struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

type executeRequest struct {
	Tool string      `json:"tool"`
	Args core.Args   `json:"args"`
	User userPayload `json:"user"`
}

type batchRequest struct {
	Calls    []dispatch.BatchCall `json:"calls"`
	Parallel bool                 `json:"parallel"`
	User     userPayload          `json:"user"`
}

type chainRequest struct {
	Input core.Args   `json:"input"`
	User  userPayload `json:"user"`
}

// token builds the dispatch access token for an authenticated request.
// Verified and the source constant are set here and nowhere else on
// this surface; the upstream tenant check already passed.
func (id requestIdentity) token(user userPayload) *core.AccessToken {
	return &core.AccessToken{
		Verified:  true,
		Source:    core.TokenSource,
		UserRole:  id.role,
		UserID:    user.ID,
		UserEmail: user.Email,
		UserName:  user.Name,
	}
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing tenant context")
		return
	}

	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Tool == "" {
		writeError(w, http.StatusBadRequest, "tool is required")
		return
	}
	if req.User.ID == "" {
		writeError(w, http.StatusBadRequest, "user.id is required")
		return
	}

	result := s.dispatcher.Execute(r.Context(), req.Tool, req.Args, identity.tenant, req.User.ID, identity.token(req.User))

	status := http.StatusOK
	if result.Error != nil && result.Error.Kind == core.ErrRateLimitExceeded {
		status = http.StatusTooManyRequests
		if result.Error.RetryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(result.Error.RetryAfter))
		}
	}
	writeJSON(w, status, map[string]any{
		"result":  result,
		"summary": summary.Summarize(req.Tool, result),
	})
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing tenant context")
		return
	}

	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Calls) == 0 {
		writeError(w, http.StatusBadRequest, "calls must not be empty")
		return
	}
	if len(req.Calls) > maxBatchCalls {
		writeError(w, http.StatusBadRequest, "batch exceeds %d calls", maxBatchCalls)
		return
	}
	if req.User.ID == "" {
		writeError(w, http.StatusBadRequest, "user.id is required")
		return
	}

	results := s.dispatcher.ExecuteBatch(r.Context(), req.Calls, req.Parallel, identity.tenant, req.User.ID, identity.token(req.User))
	writeJSON(w, http.StatusOK, map[string]any{
		"results": results,
		"count":   len(results),
	})
}

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	tools := s.registry.List()
	writeJSON(w, http.StatusOK, map[string]any{
		"tools": tools,
		"count": len(tools),
	})
}

func (s *Server) handleChainExecute(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing tenant context")
		return
	}
	name := mux.Vars(r)["name"]

	var req chainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.User.ID == "" {
		writeError(w, http.StatusBadRequest, "user.id is required")
		return
	}

	result := s.chains.Execute(r.Context(), name, req.Input, identity.tenant, req.User.ID, identity.token(req.User))
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleListChains(w http.ResponseWriter, r *http.Request) {
	defs := s.chainDefs.List()
	summaries := make([]chain.Summary, 0, len(defs))
	for _, d := range defs {
		summaries = append(summaries, d.Summary())
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"chains": summaries,
		"count":  len(summaries),
	})
}

func (s *Server) handleRealtimeMetrics(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing tenant context")
		return
	}

	window := metrics.WindowMinute
	if r.URL.Query().Get("window") == string(metrics.WindowHour) {
		window = metrics.WindowHour
	}

	rt, err := s.realtime.RealtimeMetrics(r.Context(), identity.tenant.ID, window)
	if err != nil {
		s.logger.Warn("realtime metrics read failed", "tenant", identity.tenant.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "metrics unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tenant_id": identity.tenant.ID,
		"window":    window,
		"metrics":   rt,
	})
}

func (s *Server) handleImpact(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	report, err := s.analyzer.Impact(name)
	if err != nil {
		writeError(w, http.StatusNotFound, "%s", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleDependencies(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	deps, err := s.analyzer.Dependencies(name)
	if err != nil {
		writeError(w, http.StatusNotFound, "%s", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tool":         name,
		"dependencies": deps,
	})
}

func (s *Server) handleDependents(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	deps, err := s.analyzer.Dependents(name)
	if err != nil {
		writeError(w, http.StatusNotFound, "%s", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tool":       name,
		"dependents": deps,
	})
}

func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	opts := graph.ViewOptions{
		Category: r.URL.Query().Get("category"),
		Format:   r.URL.Query().Get("format"),
	}
	view, err := s.analyzer.Graph(opts)
	if err != nil {
		writeError(w, http.StatusBadRequest, "%s", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleCycles(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.analyzer.DetectCycles())
}
