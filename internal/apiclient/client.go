// Package apiclient wraps the backend REST surface with typed calls,
// a uniform error taxonomy, and bounded retry.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Kind classifies an API failure.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindUnauthorized Kind = "unauthorized"
	KindForbidden    Kind = "forbidden"
	KindNotFound     Kind = "not_found"
	KindTimeout      Kind = "timeout"
	KindNetwork      Kind = "network"
	KindInternal     Kind = "internal"
)

// Error is a classified API failure. Status is 0 for transport-level
// failures that never produced a response.
type Error struct {
	Kind    Kind
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("api: %s (HTTP %d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("api: %s: %s", e.Kind, e.Message)
}

// Retryable reports whether the failure is worth another attempt.
// 4xx responses are never retried, including 408: a definitive server
// answer is not transient. Transport failures and 5xx are.
func (e *Error) Retryable() bool {
	if e.Status >= 400 && e.Status < 500 {
		return false
	}
	switch e.Kind {
	case KindNetwork, KindTimeout, KindInternal:
		return true
	}
	return false
}

// Client talks to the deskflow backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	retries    int // extra attempts after the first
	retryDelay time.Duration
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithRetries sets how many extra attempts follow a retryable failure.
func WithRetries(n int) Option {
	return func(c *Client) { c.retries = n }
}

// WithRetryDelay sets the linear backoff base: attempt n waits n×d.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Client) { c.retryDelay = d }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the client's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New creates a Client for the given base URL (e.g.
// http://localhost:3001/api).
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		retries:    1,
		retryDelay: 500 * time.Millisecond,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// errorResponse is the backend's error body shape.
type errorResponse struct {
	Error string `json:"error"`
}

// do performs one logical call with retry. body (if non-nil) is JSON
// encoded; a 2xx response body is decoded into out (if non-nil).
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("api: marshal request: %w", err)
		}
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var lastErr *Error
	for attempt := 0; ; attempt++ {
		apiErr := c.doOnce(ctx, method, u, payload, out)
		if apiErr == nil {
			return nil
		}
		lastErr = apiErr

		if !apiErr.Retryable() || attempt >= c.retries {
			break
		}

		delay := time.Duration(attempt+1) * c.retryDelay
		c.logger.Debug("api call retrying",
			"method", method,
			"path", path,
			"attempt", attempt+1,
			"delay", delay,
			"error", apiErr,
		)
		select {
		case <-ctx.Done():
			return &Error{Kind: KindTimeout, Message: ctx.Err().Error()}
		case <-time.After(delay):
		}
	}
	return lastErr
}

// doOnce performs a single HTTP exchange and classifies its outcome.
func (c *Client) doOnce(ctx context.Context, method, url string, payload []byte, out any) *Error {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return &Error{Kind: KindInternal, Message: err.Error()}
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		kind := KindNetwork
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			kind = KindTimeout
		}
		return &Error{Kind: kind, Message: err.Error()}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Kind: KindNetwork, Message: err.Error()}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return classify(resp.StatusCode, respBody)
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return &Error{Kind: KindInternal, Message: fmt.Sprintf("decode response: %v", err)}
		}
	}
	return nil
}

// classify maps a non-2xx status to the error taxonomy.
func classify(status int, body []byte) *Error {
	msg := http.StatusText(status)
	var er errorResponse
	if json.Unmarshal(body, &er) == nil && er.Error != "" {
		msg = er.Error
	}

	var kind Kind
	switch {
	case status == http.StatusBadRequest:
		kind = KindValidation
	case status == http.StatusUnauthorized:
		kind = KindUnauthorized
	case status == http.StatusForbidden:
		kind = KindForbidden
	case status == http.StatusNotFound:
		kind = KindNotFound
	case status == http.StatusRequestTimeout:
		kind = KindTimeout
	case status >= 500:
		kind = KindInternal
	default:
		kind = KindInternal
	}
	return &Error{Kind: kind, Status: status, Message: msg}
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}

// Health checks backend liveness.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil, nil)
}
