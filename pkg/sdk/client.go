// Package sdk is the Go client for the braid engine. Agent hosts embed
// it to route model-initiated tool calls through the engine's policy
// gate, cache and audit trail instead of invoking backend functions
// directly.
//
// Quick start:
//
//	client := sdk.NewClient(sdk.Config{
//	    BaseURL: "https://braid.internal",
//	    APIKey:  os.Getenv("BRAID_API_KEY"),
//	    User:    sdk.User{ID: "usr-42", Email: "ada@example.com"},
//	})
//
//	exec, err := client.Execute(ctx, "list_leads", map[string]interface{}{
//	    "filter": map[string]interface{}{"status": "open", "limit": 25},
//	})
//	if err != nil {
//	    // transport failure; the engine was never reached
//	}
//	if !exec.Result.Success {
//	    log.Printf("refused: %s", exec.Result.Error.Message)
//	}
package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Config holds the client configuration.
type Config struct {
	// BaseURL is the engine's root URL (required).
	BaseURL string

	// APIKey is the tenant API key, "braid_<id>_<secret>" (required).
	APIKey string

	// User is the default end user attached to every call. Override
	// per call with ExecuteAs.
	User User

	// Timeout bounds each round trip. Defaults to 35s, slightly above
	// the engine's own 30s executor timeout so engine-side timeouts
	// surface as refusals instead of transport errors.
	Timeout time.Duration

	// OnRateLimit is called when the engine refuses a call for rate.
	OnRateLimit func(tool string, retryAfterSeconds int)
}

// Client talks to one braid engine on behalf of one tenant.
type Client struct {
	config Config
	http   *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 35 * time.Second
	}
	return &Client{
		config: cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
	}
}

// Execute dispatches one tool call as the configured user.
func (c *Client) Execute(ctx context.Context, tool string, args map[string]interface{}) (*Execution, error) {
	return c.ExecuteAs(ctx, c.config.User, tool, args)
}

// ExecuteAs dispatches one tool call for an explicit end user.
func (c *Client) ExecuteAs(ctx context.Context, user User, tool string, args map[string]interface{}) (*Execution, error) {
	payload := map[string]interface{}{"tool": tool, "args": args, "user": user}

	var exec Execution
	if err := c.post(ctx, "/api/tools/execute", payload, &exec); err != nil {
		return nil, err
	}
	if exec.Result.Is(KindRateLimited) && c.config.OnRateLimit != nil {
		c.config.OnRateLimit(tool, exec.Result.Error.RetryAfter)
	}
	return &exec, nil
}

// ExecuteBatch dispatches up to 25 calls in one request. Results are
// positional: results[i] belongs to calls[i] even when parallel.
func (c *Client) ExecuteBatch(ctx context.Context, calls []Call, parallel bool) ([]Result, error) {
	payload := map[string]interface{}{"calls": calls, "parallel": parallel, "user": c.config.User}

	var out struct {
		Results []Result `json:"results"`
		Count   int      `json:"count"`
	}
	if err := c.post(ctx, "/api/tools/batch", payload, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

// RunChain executes a named chain with the given input.
func (c *Client) RunChain(ctx context.Context, name string, input map[string]interface{}) (*ChainOutcome, error) {
	payload := map[string]interface{}{"input": input, "user": c.config.User}

	var outcome ChainOutcome
	if err := c.post(ctx, "/api/chains/"+name+"/execute", payload, &outcome); err != nil {
		return nil, err
	}
	return &outcome, nil
}

// ListTools returns the tool surface the engine exposes.
func (c *Client) ListTools(ctx context.Context) ([]Tool, error) {
	var out struct {
		Tools []Tool `json:"tools"`
		Count int    `json:"count"`
	}
	if err := c.get(ctx, "/api/tools", &out); err != nil {
		return nil, err
	}
	return out.Tools, nil
}

func (c *Client) post(ctx context.Context, path string, payload, into interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("braid-sdk: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("braid-sdk: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, into)
}

func (c *Client) get(ctx context.Context, path string, into interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("braid-sdk: build request: %w", err)
	}
	return c.do(req, into)
}

func (c *Client) do(req *http.Request, into interface{}) error {
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("braid-sdk: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("braid-sdk: read response: %w", err)
	}

	// 200 and 429 both carry the dispatch envelope; anything else is a
	// request-level failure shaped {"error": "..."}.
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusTooManyRequests {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("braid-sdk: %s: %s", resp.Status, apiErr.Error)
		}
		return fmt.Errorf("braid-sdk: unexpected status %s", resp.Status)
	}

	if err := json.Unmarshal(body, into); err != nil {
		return fmt.Errorf("braid-sdk: parse response: %w", err)
	}
	return nil
}
