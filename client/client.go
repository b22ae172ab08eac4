// Package client is the Go SDK for submitting audit events to a collector.
// It validates events locally before sending and retries transient failures
// with exponential backoff.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/vigil-systems/vigil/audit"
)

// Defaults for the HTTP transport and retry policy.
const (
	DefaultTimeout    = 10 * time.Second
	DefaultMaxRetries = 3
	DefaultRetryWait  = 500 * time.Millisecond
)

// Client submits events to a collector. Safe for concurrent use.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	maxRetries int
	retryWait  time.Duration
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithAPIKey sets the Bearer API key sent on every request.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithMaxRetries bounds retry attempts for transient failures.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

// WithRetryWait sets the base backoff; each attempt doubles it.
func WithRetryWait(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.retryWait = d
		}
	}
}

// WithLogger sets the logger for retry warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a Client for the collector at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("collector URL cannot be empty")
	}

	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		maxRetries: DefaultMaxRetries,
		retryWait:  DefaultRetryWait,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Log validates and submits one event.
func (c *Client) Log(ctx context.Context, event *audit.AuditEvent) (*audit.IngestResponse, error) {
	if event == nil {
		return nil, &audit.ValidationError{Field: "event", Reason: "cannot be nil"}
	}
	event.FillDefaults()
	if err := event.Validate(); err != nil {
		return nil, err
	}

	body, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}

	var resp audit.IngestResponse
	if err := c.post(ctx, "/api/v1/events", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// LogBatch validates and submits up to 100 events in one request.
func (c *Client) LogBatch(ctx context.Context, events []audit.AuditEvent) (*audit.BatchResponse, error) {
	if len(events) == 0 {
		return nil, &audit.ValidationError{Field: "events", Reason: "batch cannot be empty"}
	}
	if len(events) > audit.MaxBatchSize {
		return nil, &audit.ValidationError{
			Field:  "events",
			Reason: fmt.Sprintf("batch of %d exceeds maximum of %d", len(events), audit.MaxBatchSize),
		}
	}

	for i := range events {
		events[i].FillDefaults()
		if err := events[i].Validate(); err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
	}

	body, err := json.Marshal(audit.BatchRequest{Events: events})
	if err != nil {
		return nil, fmt.Errorf("encode batch: %w", err)
	}

	var resp audit.BatchResponse
	if err := c.post(ctx, "/api/v1/events/batch", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// post sends the request, retrying network errors and 5xx responses with
// exponential backoff. 4xx responses are the caller's bug and never retried.
func (c *Client) post(ctx context.Context, path string, body []byte, out any) error {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			wait := c.retryWait << (attempt - 1)
			c.logger.Warn("retrying collector request",
				slog.String("path", path),
				slog.Int("attempt", attempt),
				slog.Duration("wait", wait),
				slog.String("error", lastErr.Error()),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			continue
		}

		respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		resp.Body.Close()
		if readErr != nil {
			lastErr = fmt.Errorf("read response: %w", readErr)
			continue
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			if out != nil {
				if err := json.Unmarshal(respBody, out); err != nil {
					return fmt.Errorf("decode response: %w", err)
				}
			}
			return nil
		case resp.StatusCode >= 500:
			lastErr = fmt.Errorf("collector returned %d: %s", resp.StatusCode, apiError(respBody))
			continue
		default:
			return fmt.Errorf("collector rejected request (%d): %s", resp.StatusCode, apiError(respBody))
		}
	}

	return fmt.Errorf("request failed after %d attempts: %w", c.maxRetries+1, lastErr)
}

func apiError(body []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	return strings.TrimSpace(string(body))
}
