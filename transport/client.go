// Package transport provides the HTTP client used for every upstream call.
//
// All calls share the same policy:
// - HTTP 429 is retried with exponential backoff up to a fixed budget
// - one extra retry round covers "failed to fetch"-class network errors
// - every call is bounded by a timeout; expiry surfaces as ErrTimeout
// - other non-2xx responses are returned as *StatusError, never retried,
//   so callers can branch on semantics (401 vs 500)
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/richinex/oraculo/internal/log"
)

// ErrTimeout indicates an upstream call exceeded its deadline.
// The in-flight request is aborted before this is returned.
var ErrTimeout = errors.New("transport: upstream timeout")

// ErrRateLimited indicates HTTP 429 persisted past the retry budget.
var ErrRateLimited = errors.New("transport: rate limited")

// StatusError is a non-2xx, non-429 upstream response, surfaced as-is.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("transport: upstream returned %d: %s", e.StatusCode, e.Body)
}

// Request describes one upstream HTTP call.
type Request struct {
	URL     string
	Method  string
	Headers map[string]string
	Body    []byte
	Timeout time.Duration
}

// Response is a fully-read upstream response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Client performs upstream HTTP calls with retry and timeout policy.
type Client struct {
	httpClient  *http.Client
	maxRetries  int
	backoffBase time.Duration
	logger      log.Logger
}

// NewClient creates a transport client.
// maxRetries is the 429 budget; backoffBase the initial retry delay.
func NewClient(maxRetries int, backoffBase time.Duration, logger log.Logger) *Client {
	return &Client{
		httpClient:  &http.Client{},
		maxRetries:  maxRetries,
		backoffBase: backoffBase,
		logger:      logger,
	}
}

// Do performs the request and reads the full response body.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	resp, err := c.Open(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.classify(ctx, fmt.Errorf("read response body: %w", err))
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

// Open performs the request and returns the raw response with a 2xx status.
// The caller owns resp.Body and must close it. Retry policy applies to
// establishing the response, not to reading the body.
//
// If req.Timeout is set, the returned body read is also bounded by it; the
// caller's context may impose a tighter deadline.
func (c *Client) Open(ctx context.Context, req Request) (*http.Response, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		// The body outlives this function; tie the timeout to body exhaustion
		// instead of cancelling on return.
		resp, err := c.open(ctx, req)
		if err != nil {
			cancel()
			return nil, err
		}
		resp.Body = &cancelReadCloser{ReadCloser: resp.Body, cancel: cancel}
		return resp, nil
	}
	return c.open(ctx, req)
}

func (c *Client) open(ctx context.Context, req Request) (*http.Response, error) {
	var lastErr error
	delay := c.backoffBase
	networkRetryLeft := 1

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		resp, err := c.send(ctx, req)
		if err != nil {
			lastErr = c.classify(ctx, err)
			// Timeouts and cancellations are terminal.
			if errors.Is(lastErr, ErrTimeout) || errors.Is(lastErr, context.Canceled) {
				return nil, lastErr
			}
			// Generic network failure: one extra retry round, independent
			// of the 429 budget.
			if networkRetryLeft > 0 {
				networkRetryLeft--
				attempt--
				if err := c.sleep(ctx, delay); err != nil {
					return nil, err
				}
				continue
			}
			return nil, lastErr
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			lastErr = fmt.Errorf("%w: %s", ErrRateLimited, bytes.TrimSpace(body))
			if attempt == c.maxRetries {
				break
			}
			c.logger.Debug("rate limited, retrying",
				"attempt", attempt+1,
				"delay", delay,
			)
			if err := c.sleep(ctx, delay); err != nil {
				return nil, err
			}
			delay *= 2
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			return nil, &StatusError{
				StatusCode: resp.StatusCode,
				Body:       string(bytes.TrimSpace(body)),
			}
		}

		return resp, nil
	}

	return nil, lastErr
}

func (c *Client) send(ctx context.Context, req Request) (*http.Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	return c.httpClient.Do(httpReq)
}

// classify maps context expiry onto the error taxonomy.
func (c *Client) classify(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
		return context.Canceled
	}
	return err
}

func (c *Client) sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return c.classify(ctx, ctx.Err())
	case <-time.After(d):
		return nil
	}
}

// cancelReadCloser releases a timeout context when the body is closed.
type cancelReadCloser struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelReadCloser) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
