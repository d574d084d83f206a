// Package executor calls the Braid functions runtime over HTTP. A
// circuit breaker sits in front so a dead runtime sheds load fast
// instead of stacking up 30-second timeouts.
package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/braidhq/engine/internal/core"
)

// DefaultTimeout bounds one function invocation.
const DefaultTimeout = 30 * time.Second

// maxResponseBytes caps how much of a runtime response is read.
const maxResponseBytes = 4 << 20

// Deps is the backend dependency block handed to every function.
type Deps struct {
	DataSource     string `json:"data_source"`
	BackendBaseURL string `json:"backend_base_url"`
	TenantID       string `json:"tenant_id"`
	UserID         string `json:"user_id"`
	InternalToken  string `json:"-"` // sent as the bearer header, never in the body
	CreatedBy      string `json:"created_by"`
}

// Options mirror the runtime's invocation options. Cache is always
// false; the engine manages its own cache.
type Options struct {
	Cache     bool  `json:"cache"`
	TimeoutMS int64 `json:"timeout_ms"`
}

// Call is one function invocation. Args carries the positional form
// when the schema parser knew the parameter order; ArgsMap is the
// single-map fallback.
type Call struct {
	SourceFile   string
	FunctionName string
	Policy       map[string]any
	Deps         Deps
	Args         []any
	ArgsMap      core.Args
	Timeout      time.Duration
}

// Client is the HTTP adapter for the functions runtime.
type Client struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

func NewClient(baseURL string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "executor")

	settings := gobreaker.Settings{
		Name:        "braid-functions",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio > 0.5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	}

	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: DefaultTimeout + 5*time.Second},
		breaker: gobreaker.NewCircuitBreaker(settings),
		logger:  logger,
	}
}

// upstreamError marks responses that should count as breaker failures.
type upstreamError struct {
	status int
	body   string
}

func (e *upstreamError) Error() string {
	return fmt.Sprintf("runtime returned %d: %s", e.status, e.body)
}

// Execute invokes one function and maps every failure mode onto the
// canonical Result. It never returns a Go error; dispatch consumes
// Results only.
func (c *Client) Execute(ctx context.Context, call Call) core.Result {
	timeout := call.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.do(ctx, call)
	})
	if err != nil {
		return c.mapFailure(err, call, timeout)
	}
	return out.(core.Result)
}

func (c *Client) mapFailure(err error, call Call, timeout time.Duration) core.Result {
	var upstream *upstreamError
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return core.Failf(core.ErrExecution, "function runtime unavailable (circuit open)")
	case errors.As(err, &upstream):
		e := core.Errorf(core.ErrAPI, "function %s failed: %s", call.FunctionName, upstream.body)
		e.Code = upstream.status
		e.Operation = call.FunctionName
		return core.Fail(e)
	case errors.Is(err, context.DeadlineExceeded):
		return core.Failf(core.ErrExecution, "function %s timed out after %s", call.FunctionName, timeout)
	default:
		e := core.Errorf(core.ErrNetwork, "function runtime unreachable: %v", err)
		e.Operation = call.FunctionName
		return core.Fail(e)
	}
}

// do performs the HTTP exchange. It returns a Go error only for
// failures that should trip the breaker (transport errors and 5xx);
// caller-class failures (4xx) come back as failed Results.
func (c *Client) do(ctx context.Context, call Call) (core.Result, error) {
	var args any = call.Args
	if call.Args == nil {
		args = call.ArgsMap
	}
	payload := map[string]any{
		"function": call.FunctionName,
		"file":     call.SourceFile,
		"args":     args,
		"policy":   call.Policy,
		"context": map[string]any{
			"tenant_id":  call.Deps.TenantID,
			"user_id":    call.Deps.UserID,
			"created_by": call.Deps.CreatedBy,
		},
		"deps": call.Deps,
		"options": Options{
			Cache:     false,
			TimeoutMS: call.Timeout.Milliseconds(),
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return core.Failf(core.ErrValidation, "arguments are not serializable: %v", err), nil
	}

	url := fmt.Sprintf("%s/functions/%s/%s", c.baseURL, call.SourceFile, call.FunctionName)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return core.Result{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if call.Deps.InternalToken != "" {
		req.Header.Set("Authorization", "Bearer "+call.Deps.InternalToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return core.Result{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return core.Result{}, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 500 {
		return core.Result{}, &upstreamError{status: resp.StatusCode, body: compact(raw)}
	}
	if resp.StatusCode >= 400 {
		return c.mapClientError(resp.StatusCode, raw, call), nil
	}

	// Prefer the canonical envelope; fall back to wrapping the body.
	var result core.Result
	if err := json.Unmarshal(raw, &result); err == nil && (result.Success || result.Error != nil) {
		return result, nil
	}
	var data any
	if err := json.Unmarshal(raw, &data); err == nil {
		return core.Ok(data), nil
	}
	return core.Ok(string(raw)), nil
}

func (c *Client) mapClientError(status int, raw []byte, call Call) core.Result {
	var kind core.ErrorKind
	switch status {
	case http.StatusBadRequest:
		kind = core.ErrValidation
	case http.StatusUnauthorized, http.StatusForbidden:
		kind = core.ErrPermissionDenied
	case http.StatusNotFound:
		kind = core.ErrNotFound
	default:
		kind = core.ErrAPI
	}

	message := compact(raw)
	// The runtime may already have wrapped the failure in an envelope.
	var envelope core.Result
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Error != nil {
		message = envelope.Error.Message
		if envelope.Error.Kind != "" {
			kind = envelope.Error.Kind
		}
	}

	e := core.Errorf(kind, "%s", message)
	e.Code = status
	e.Operation = call.FunctionName
	return core.Fail(e)
}

func compact(raw []byte) string {
	s := string(bytes.TrimSpace(raw))
	if len(s) > 200 {
		s = s[:200]
	}
	if s == "" {
		s = "no response body"
	}
	return s
}
