// Package httpclient is the outbound HTTP transport shared by the payment,
// shipping and messaging provider clients. Every call gets a bounded per-attempt
// timeout and a small exponential retry budget for network failures and 5xx
// responses; 4xx responses are returned immediately.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/angelmondragon/estore-backend/pkg/config"
	"github.com/angelmondragon/estore-backend/pkg/metrics"
)

const (
	responseReadLimit int64 = 1 << 20
	errorBodyLimit          = 512

	defaultTimeout = 10 * time.Second
	defaultBackoff = 200 * time.Millisecond
	defaultCap     = 2 * time.Second
)

// ErrEmptyBody is returned by DoJSON when a 2xx response carries no body.
var ErrEmptyBody = errors.New("empty response body")

// StatusError is a non-2xx response that survived the retry budget.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// DecodeError wraps a 2xx body that could not be parsed.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return "decode response: " + e.Err.Error()
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Request describes one logical call. Body is re-sent on every attempt.
type Request struct {
	Operation string
	Method    string
	URL       string
	Header    http.Header
	Body      []byte
}

// Response is a successful (2xx) reply.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Client executes provider requests with retries and metrics.
type Client struct {
	httpClient  *http.Client
	provider    string
	timeout     time.Duration
	maxRetries  uint64
	baseBackoff time.Duration
	maxBackoff  time.Duration
	metrics     *metrics.GatewayMetrics
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the underlying *http.Client (tests inject a RoundTripper here).
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithMetrics records every attempt on the given collector.
func WithMetrics(m *metrics.GatewayMetrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// New builds a client labelled with provider for logs and metrics.
func New(provider string, cfg config.GatewayConfig, opts ...Option) *Client {
	c := &Client{
		httpClient:  &http.Client{},
		provider:    provider,
		timeout:     cfg.Timeout,
		maxRetries:  cfg.MaxRetries,
		baseBackoff: cfg.RetryBackoff,
		maxBackoff:  cfg.MaxBackoff,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	if c.timeout <= 0 {
		c.timeout = defaultTimeout
	}
	if c.baseBackoff <= 0 {
		c.baseBackoff = defaultBackoff
	}
	if c.maxBackoff <= 0 {
		c.maxBackoff = defaultCap
	}
	return c
}

// Do sends req, retrying transient failures. The returned error is a *StatusError
// for HTTP failures and the transport error otherwise.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	backoff := retry.NewExponential(c.baseBackoff)
	backoff = retry.WithCappedDuration(c.maxBackoff, backoff)
	backoff = retry.WithMaxRetries(c.maxRetries, backoff)

	var resp *Response
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		r, err := c.attempt(ctx, req)
		if err != nil {
			var statusErr *StatusError
			if errors.As(err, &statusErr) && !retryableStatus(statusErr.StatusCode) {
				return err
			}
			if ctx.Err() != nil {
				return err
			}
			return retry.RetryableError(err)
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// DoJSON sends req and decodes the 2xx body into out.
func (c *Client) DoJSON(ctx context.Context, req Request, out any) error {
	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(resp.Body)) == 0 {
		return ErrEmptyBody
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return &DecodeError{Err: err}
	}
	return nil
}

func (c *Client) attempt(ctx context.Context, req Request) (*Response, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(attemptCtx, req.Method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", req.Operation, err)
	}
	for key, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}

	started := time.Now()
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.metrics.Observe(c.provider, req.Operation, 0, time.Since(started))
		return nil, err
	}
	defer func() { _ = httpResp.Body.Close() }()
	c.metrics.Observe(c.provider, req.Operation, httpResp.StatusCode, time.Since(started))

	payload, err := io.ReadAll(io.LimitReader(httpResp.Body, responseReadLimit))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", req.Operation, err)
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: httpResp.StatusCode, Body: truncate(strings.TrimSpace(string(payload)))}
	}
	return &Response{StatusCode: httpResp.StatusCode, Header: httpResp.Header, Body: payload}, nil
}

// JSONBody marshals v for use as Request.Body.
func JSONBody(v any) ([]byte, error) {
	return json.Marshal(v)
}

func retryableStatus(code int) bool {
	return code >= 500 || code == http.StatusTooManyRequests
}

func truncate(s string) string {
	if len(s) <= errorBodyLimit {
		return s
	}
	return s[:errorBodyLimit]
}
