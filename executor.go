package turbofetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultMaxBodyBytes caps how much of a response body is read.
const DefaultMaxBodyBytes int64 = 10 << 20

var errBodyTooLarge = errors.New("response body exceeds limit")

// execute performs one network call for a normalized spec. The deadline and
// the token watcher are released on every return path. A non-2xx response is
// returned together with an HTTPStatusError carrying the raw body.
func (c *Client) execute(ctx context.Context, spec *RequestSpec, target string) (*Response, error) {
	start := time.Now()

	ctx, stop := spec.CancelToken.bind(ctx)
	defer stop()

	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if data := bodyBytes(spec); data != nil {
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, spec.Method, target, body)
	if err != nil {
		return nil, c.newError(ErrorTypeValidation, "build request", err, spec, target, start)
	}
	req.Header = spec.Header.Clone()
	if req.Header == nil {
		req.Header = make(http.Header)
	}

	resp, err := c.roundTripper().RoundTrip(req)
	if err != nil {
		return nil, c.newError(classifyTransport(ctx, err), "network request failed", transportCause(ctx, err), spec, target, start)
	}
	defer resp.Body.Close()

	data, err := readLimited(resp.Body, c.maxBodyBytes)
	if ctx.Err() != nil {
		// The call was aborted while the body was in flight; the partial
		// result is discarded.
		return nil, c.newError(classifyTransport(ctx, ctx.Err()), "network request failed", transportCause(ctx, ctx.Err()), spec, target, start)
	}
	if err != nil {
		return nil, c.newError(ErrorTypeNetwork, "read response body", err, spec, target, start)
	}

	out := &Response{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Header:     resp.Header,
		Body:       data,
		URL:        target,
		Duration:   time.Since(start),
	}
	if !out.OK() {
		clientErr := c.newError(ErrorTypeHTTPStatus, fmt.Sprintf("HTTP error! status: %d", resp.StatusCode), nil, spec, target, start)
		clientErr.StatusCode = resp.StatusCode
		clientErr.Body = data
		clientErr.Header = resp.Header
		return out, clientErr
	}
	return out, nil
}

// roundTripper wraps the HTTP client in the middleware chain. The first
// registered middleware is the outermost.
func (c *Client) roundTripper() RoundTripper {
	var current RoundTripper = RoundTripperFunc(c.httpClient.Do)
	for i := len(c.middleware) - 1; i >= 0; i-- {
		middleware := c.middleware[i]
		next := current
		current = RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
			return middleware(r, next)
		})
	}
	return current
}

func readLimited(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		limit = DefaultMaxBodyBytes
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

// classifyTransport tells a timeout from a cancellation from a plain
// transport failure by looking at why ctx ended.
func classifyTransport(ctx context.Context, err error) string {
	if errors.Is(context.Cause(ctx), ErrCanceledByToken) {
		return ErrorTypeCanceled
	}
	switch ctx.Err() {
	case context.DeadlineExceeded:
		return ErrorTypeTimeout
	case context.Canceled:
		return ErrorTypeCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTypeTimeout
	}
	return ErrorTypeNetwork
}

func transportCause(ctx context.Context, err error) error {
	if cause := context.Cause(ctx); cause != nil && !errors.Is(err, cause) {
		return fmt.Errorf("%w: %w", cause, err)
	}
	return err
}

func (c *Client) newError(errType, message string, cause error, spec *RequestSpec, target string, start time.Time) *ClientError {
	return &ClientError{
		Type:      errType,
		Message:   message,
		Cause:     cause,
		RequestID: spec.requestID,
		Method:    spec.Method,
		URL:       target,
		Timestamp: time.Now(),
		Duration:  time.Since(start),
	}
}
