// Package model talks to the external decision endpoint: one HTTP call
// per executor round, with endpoint status classified into the protocol
// error codes and throttled by a proactive token bucket.
package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/agentic-research/strata/api"
)

// DecisionSource produces one structured decision per round.
// Implemented by *Client; swapped for scripted fakes in executor tests.
type DecisionSource interface {
	Decide(ctx context.Context, req api.DecisionRequest) (*api.Decision, error)
}

// RemoteError is a classified failure of the decision endpoint.
// RetryAfter carries the endpoint's suggested wait when it sent one;
// the caller decides whether to honor it.
type RemoteError struct {
	Code       string
	Message    string
	RetryAfter time.Duration
}

func (e *RemoteError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s: %s (retry after %s)", e.Code, e.Message, e.RetryAfter)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Retryable reports whether waiting and resending could succeed.
func (e *RemoteError) Retryable() bool {
	return e.Code == api.CodeRateLimited || e.Code == api.CodeModelOverloaded
}

// Default configuration values.
const (
	DefaultTimeout = 2 * time.Minute

	// defaultRate throttles proactively so the endpoint's limiter is
	// rarely the one saying no.
	defaultRate  = 2.0
	defaultBurst = 4
)

// Config holds the decision endpoint settings.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration

	// RequestsPerSecond for the proactive throttle; 0 uses the default.
	RequestsPerSecond float64
}

// Client is the HTTP decision source.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	bucket  *rate.Limiter
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("model: base URL is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	rps := cfg.RequestsPerSecond
	if rps == 0 {
		rps = defaultRate
	}
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: cfg.Timeout},
		bucket:  rate.NewLimiter(rate.Limit(rps), defaultBurst),
	}, nil
}

// Decide posts one decision request and parses the structured response.
// Endpoint overload statuses come back as *RemoteError; a 2xx body that
// is not valid decision JSON comes back as INVALID_JSON.
func (c *Client) Decide(ctx context.Context, req api.DecisionRequest) (*api.Decision, error) {
	if err := c.bucket.Wait(ctx); err != nil {
		return nil, err
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal decision request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/decisions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build decision request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("decision request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(resp)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read decision response: %w", err)
	}
	var decision api.Decision
	if err := json.Unmarshal(raw, &decision); err != nil {
		return nil, &RemoteError{
			Code:    api.CodeInvalidJSON,
			Message: fmt.Sprintf("unparsable decision: %v", err),
		}
	}
	return &decision, nil
}

func classifyStatus(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	msg := string(raw)
	if msg == "" {
		msg = resp.Status
	}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return &RemoteError{
			Code:       api.CodeRateLimited,
			Message:    msg,
			RetryAfter: retryAfter(resp),
		}
	case resp.StatusCode >= http.StatusInternalServerError:
		// Covers 503 and the 529 overload convention along with any
		// other server-side failure; all are worth retrying.
		return &RemoteError{
			Code:       api.CodeModelOverloaded,
			Message:    msg,
			RetryAfter: retryAfter(resp),
		}
	default:
		return fmt.Errorf("decision endpoint returned %d: %s", resp.StatusCode, msg)
	}
}

func retryAfter(resp *http.Response) time.Duration {
	secs, err := strconv.Atoi(resp.Header.Get("Retry-After"))
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
