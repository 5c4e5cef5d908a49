// Package llm provides an HTTP client for an OpenAI-compatible
// chat-completions backend, with API key rotation and circuit breaking.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/riskgate/riskgate/internal/resilience"
)

// ChatMessage is a single message in a chat completion request.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletionRequest is the request body for a chat completion.
type ChatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

// ChatCompletionResponse is the parsed result of a chat completion.
type ChatCompletionResponse struct {
	Content          string
	Model            string
	PromptTokens     int64
	CompletionTokens int64
}

// statusError carries the HTTP status of a failed backend call so the
// client can decide whether to rotate keys.
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("llm API error %d: %s", e.status, e.body)
}

// Client talks to an OpenAI-compatible chat-completions API.
type Client struct {
	baseURL    string
	pool       *KeyPool
	httpClient *http.Client
	breaker    *resilience.Breaker
}

// NewClient creates a chat-completions client over the given key pool.
func NewClient(baseURL string, pool *KeyPool, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		pool:    pool,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// SetBreaker attaches a circuit breaker to all outgoing HTTP calls.
func (c *Client) SetBreaker(b *resilience.Breaker) {
	c.breaker = b
}

// KeySwitches returns the cumulative key rotation count.
func (c *Client) KeySwitches() int64 {
	return c.pool.Switches()
}

// ActiveKeyIndex returns the index of the key currently in use.
func (c *Client) ActiveKeyIndex() int {
	_, idx := c.pool.Active()
	return idx
}

// Health checks if the backend is reachable.
func (c *Client) Health(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, err
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode < 400, nil
}

// ChatCompletion performs a chat completion, rotating the API key on
// 401/429 and retrying once per key in the pool.
func (c *Client) ChatCompletion(ctx context.Context, req ChatCompletionRequest) (*ChatCompletionResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	attempts := c.pool.Size()
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for range attempts {
		key, idx := c.pool.Active()
		data, err := c.doRequest(ctx, body, key)
		if err == nil {
			return parseCompletion(data)
		}
		lastErr = err

		var se *statusError
		if isStatus(err, &se) && (se.status == http.StatusUnauthorized || se.status == http.StatusTooManyRequests) {
			c.pool.Rotate(idx)
			continue
		}
		break
	}
	return nil, lastErr
}

func isStatus(err error, target **statusError) bool {
	se, ok := err.(*statusError) //nolint:errorlint // doRequest returns the error unwrapped
	if ok {
		*target = se
	}
	return ok
}

func (c *Client) doRequest(ctx context.Context, body []byte, key string) ([]byte, error) {
	var result []byte
	call := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}

		req.Header.Set("Content-Type", "application/json")
		if key != "" {
			req.Header.Set("Authorization", "Bearer "+key)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("http request: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}

		if resp.StatusCode >= 400 {
			return &statusError{status: resp.StatusCode, body: string(data)}
		}

		result = data
		return nil
	}

	if c.breaker != nil {
		if err := c.breaker.Execute(call); err != nil {
			return nil, err
		}
		return result, nil
	}

	if err := call(); err != nil {
		return nil, err
	}
	return result, nil
}

// parseCompletion extracts the first choice and token usage from an
// OpenAI-style response body.
func parseCompletion(data []byte) (*ChatCompletionResponse, error) {
	var raw struct {
		Model   string `json:"model"`
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int64 `json:"prompt_tokens"`
			CompletionTokens int64 `json:"completion_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal completion: %w", err)
	}
	if len(raw.Choices) == 0 {
		return nil, fmt.Errorf("completion has no choices")
	}
	return &ChatCompletionResponse{
		Content:          raw.Choices[0].Message.Content,
		Model:            raw.Model,
		PromptTokens:     raw.Usage.PromptTokens,
		CompletionTokens: raw.Usage.CompletionTokens,
	}, nil
}
