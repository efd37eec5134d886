// Package llm wraps the OpenAI-style chat-completions wire protocol shared
// by every provider ralph talks to: retry/backoff/circuit-breaking around a
// plain net/http POST, no SDK required.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/forgecrew/ralph/internal/config"
)

// Role selects which instruction block the Client appends to the caller's
// prompt before sending it.
type Role string

const (
	RoleDeveloper Role = "DEVELOPER"
	RoleReviewer  Role = "REVIEWER"
	RolePRD       Role = "PRD"
	RoleJSON      Role = "JSON"
)

// Response is one completed chat-completions round trip.
type Response struct {
	Text  string
	Usage Usage
}

// Usage is the token accounting reported by the provider, named to match
// internal/telemetry.Usage's shape so callers can forward it directly.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
	Latency      time.Duration
}

// Client is a stateless, reentrant chat-completions caller. One Client is
// shared process-wide; MaxConcurrentCalls caps outstanding HTTP calls
// across every Pipeline, not per Pipeline.
type Client struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
	model      string

	retry RetryConfig
	cb    *CircuitBreaker
	sem   *semaphore.Weighted
}

// New builds a Client from a config snapshot. cfg is optional; the zero
// value selects DefaultRetryConfig.
func New(snap config.Snapshot, cfg RetryConfig) *Client {
	if cfg.MaxRetries == 0 && cfg.Timeout == 0 {
		cfg = DefaultRetryConfig()
	}

	var cb *CircuitBreaker
	if cfg.CircuitBreakerEnabled {
		cb = NewCircuitBreaker(cfg.FailureThreshold, cfg.SuccessThreshold, cfg.OpenTimeout)
	}

	concurrency := cfg.MaxConcurrentCalls
	if concurrency <= 0 {
		concurrency = 1
	}

	return &Client{
		httpClient: &http.Client{},
		endpoint:   snap.Endpoint(),
		apiKey:     snap.APIKey(),
		model:      snap.Model,
		retry:      cfg,
		cb:         cb,
		sem:        semaphore.NewWeighted(int64(concurrency)),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatChoice struct {
	Message chatMessage `json:"message"`
}

type chatUsage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

// Complete enriches prompt with role's instruction block and sends it to
// the configured provider, retrying transient failures with backoff and
// tripping the circuit breaker on sustained failure.
func (c *Client) Complete(ctx context.Context, role Role, prompt string) (*Response, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquiring call slot: %w", err)
	}
	defer c.sem.Release(1)

	content := enrich(role, prompt)

	var resp *Response
	err := retryWithBackoff(ctx, c.retry, c.cb, "llm.Complete", func(attemptCtx context.Context) error {
		start := time.Now()
		r, err := c.doRequest(attemptCtx, content)
		if err != nil {
			return err
		}
		r.Usage.Latency = time.Since(start)
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) doRequest(ctx context.Context, content string) (*Response, error) {
	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    []chatMessage{{Role: "user", Content: content}},
		Temperature: 0.1,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling provider: %w", err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("provider returned %d: %s", httpResp.StatusCode, truncate(string(raw), 500))
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("provider returned no choices")
	}

	return &Response{
		Text: parsed.Choices[0].Message.Content,
		Usage: Usage{
			InputTokens:  parsed.Usage.PromptTokens,
			OutputTokens: parsed.Usage.CompletionTokens,
		},
	}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
