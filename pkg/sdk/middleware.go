package sdk

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
)

// Intercept turns an HTTP endpoint into a braid-governed tool executor.
// Requests recognized as tool calls are dispatched through the engine
// and answered with its envelope; everything else falls through to
// next. Because the engine executes the tool itself, recognized calls
// never reach next.
//
// Recognized body shapes:
//
//	{"tool": "...", "args": {...}}        braid native
//	{"name": "...", "arguments": {...}}   MCP tools/call
//	{"function": "...", "params": {...}}  OpenAI-style function call
//
// Usage with Gorilla Mux:
//
//	router.Handle("/tools", sdk.Intercept(client, fallback))
func Intercept(client *Client, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		tool, args, ok := sniffToolCall(body)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		exec, err := client.Execute(r.Context(), tool, args)
		if err != nil {
			// An unreachable engine must not take the agent host down
			// with it; the fallback handler decides what to do.
			slog.Warn("braid engine unreachable, falling through", "tool", tool, "error", err)
			next.ServeHTTP(w, r)
			return
		}

		// The engine speaks through envelopes; this surface translates
		// to plain HTTP semantics for framework callers.
		status := http.StatusOK
		if !exec.Result.Success {
			status = http.StatusForbidden
			w.Header().Set("X-Braid-Refused", exec.Result.Error.Type)
			if exec.Result.Is(KindRateLimited) {
				status = http.StatusTooManyRequests
				if exec.Result.Error.RetryAfter > 0 {
					w.Header().Set("Retry-After", strconv.Itoa(exec.Result.Error.RetryAfter))
				}
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(exec)
	})
}

// InterceptFunc returns Gorilla Mux compatible middleware.
func InterceptFunc(client *Client) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return Intercept(client, next)
	}
}

func sniffToolCall(body []byte) (string, map[string]interface{}, bool) {
	var probe struct {
		Tool      string                 `json:"tool"`
		Name      string                 `json:"name"`
		Function  string                 `json:"function"`
		Args      map[string]interface{} `json:"args"`
		Arguments map[string]interface{} `json:"arguments"`
		Params    map[string]interface{} `json:"params"`
	}
	if json.Unmarshal(body, &probe) != nil {
		return "", nil, false
	}

	tool := probe.Tool
	if tool == "" {
		tool = probe.Name
	}
	if tool == "" {
		tool = probe.Function
	}
	if tool == "" {
		return "", nil, false
	}

	args := probe.Args
	if args == nil {
		args = probe.Arguments
	}
	if args == nil {
		args = probe.Params
	}
	return tool, args, true
}
