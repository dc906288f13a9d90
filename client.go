package turbofetch

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/devops-sunny/turbofetch/calllog"
)

// Client dispatches calls through the interceptor chains, keeps the in-flight
// counter and writes call outcomes to the call log. It is safe for
// concurrent use.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	defaultHeaders http.Header
	timeout        time.Duration
	maxBodyBytes   int64
	userAgent      string
	defaultPage    string

	logging bool
	callLog *calllog.Log

	indicator    BusyIndicator
	counter      *InFlightCounter
	interceptors interceptorChain
	middleware   []Middleware
	prefetcher   Prefetcher

	metrics *MetricsCollector
	debug   *DebugConfig
	logger  Logger

	validationError error
}

// New constructs a Client using the provided functional options. A best effort
// validation is performed; call IsValid / ValidationError for errors.
func New(options ...Option) *Client {
	client := &Client{
		httpClient: &http.Client{},
		defaultHeaders: http.Header{
			"Accept": []string{contentTypeJSON},
		},
		timeout:      DefaultTimeout,
		maxBodyBytes: DefaultMaxBodyBytes,
		userAgent:    DefaultUserAgent(),
		debug:        DefaultDebugConfig(),
		logger:       nopLogger{},
	}

	for _, option := range options {
		option(client)
	}

	client.counter = NewInFlightCounter(client.indicator)

	if err := client.ValidateConfiguration(); err != nil {
		client.validationError = err
	}
	if client.logger == nil {
		client.logger = nopLogger{}
	}
	if client.debug == nil {
		client.debug = DefaultDebugConfig()
	}

	return client
}

// AddRequestInterceptor appends a request interceptor. Nil is ignored.
func (c *Client) AddRequestInterceptor(i RequestInterceptor) {
	c.interceptors.addRequest(i)
}

// AddResponseInterceptor appends a response interceptor. Nil is ignored.
func (c *Client) AddResponseInterceptor(i ResponseInterceptor) {
	c.interceptors.addResponse(i)
}

// NewRequest builds a spec carrying the client defaults, then applies opts.
func (c *Client) NewRequest(ctx context.Context, method, path string, body Body, opts ...CallOption) *RequestSpec {
	spec := &RequestSpec{
		Method:  method,
		Path:    path,
		Header:  make(http.Header),
		Body:    body,
		Timeout: c.timeout,
		Logging: c.logging,
		Page:    c.defaultPage,
	}
	if page, ok := pageFromContext(ctx); ok {
		spec.Page = page
	}
	for _, opt := range opts {
		if opt != nil {
			opt(spec)
		}
	}
	return spec
}

// Do runs spec through the full pipeline: body normalization, request
// interceptors, dispatch, response interceptors and call logging.
//
// On an HTTPStatusError the returned Response is non-nil and carries the
// failure payload.
func (c *Client) Do(ctx context.Context, spec *RequestSpec) (*Response, error) {
	if c.validationError != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, c.validationError)
	}
	if spec == nil {
		return nil, &ClientError{Type: ErrorTypeValidation, Message: "nil request spec"}
	}

	spec = c.prepare(spec)
	if err := normalizeBody(spec); err != nil {
		return nil, &ClientError{Type: ErrorTypeValidation, Message: "encode request body", Cause: err, Method: spec.Method, URL: spec.Path, RequestID: spec.requestID}
	}

	if c.debugEnabled(c.debug.LogRequests) {
		c.logger.Debug("Starting request", "requestID", spec.requestID, "method", spec.Method, "path", spec.Path, "page", spec.Page)
	}

	requestChain, responseChain := c.interceptors.snapshot()
	intercepted, err := applyRequest(ctx, requestChain, spec)
	if err != nil {
		c.metrics.RecordError(ErrorTypeInterceptor, spec.Method)
		return nil, err
	}
	spec = intercepted
	if err := normalizeBody(spec); err != nil {
		return nil, &ClientError{Type: ErrorTypeValidation, Message: "encode request body", Cause: err, Method: spec.Method, URL: spec.Path, RequestID: spec.requestID}
	}

	target, err := c.resolveURL(spec)
	if err != nil {
		return nil, &ClientError{Type: ErrorTypeValidation, Message: "invalid request URL", Cause: err, Method: spec.Method, URL: spec.Path, RequestID: spec.requestID}
	}

	start := time.Now()
	resp, err := c.dispatch(ctx, spec, target, responseChain)
	duration := time.Since(start)

	statusCode := 0
	if resp != nil {
		statusCode = resp.StatusCode
	}
	c.metrics.RecordRequest(spec.Method, statusCode, duration)
	if err != nil {
		c.metrics.RecordError(errorType(err), spec.Method)
	}

	if c.debugEnabled(c.debug.LogRequests) {
		if err != nil {
			c.logger.Debug("Request failed", "requestID", spec.requestID, "method", spec.Method, "url", target, "duration", duration, "error", err)
		} else {
			c.logger.Debug("Request completed", "requestID", spec.requestID, "method", spec.Method, "url", target, "statusCode", statusCode, "duration", duration)
		}
	}

	if spec.Logging && c.callLog != nil {
		c.recordCall(ctx, spec, target, resp, err, duration)
	}

	return resp, err
}

// dispatch brackets the network call and the response interceptors with the
// in-flight counter.
func (c *Client) dispatch(ctx context.Context, spec *RequestSpec, target string, chain []ResponseInterceptor) (*Response, error) {
	c.counter.Increment()
	c.metrics.RecordRequestStart()
	defer func() {
		c.metrics.RecordRequestEnd()
		c.counter.Decrement()
	}()

	if spec.OfflineCache && c.prefetcher != nil {
		if c.debugEnabled(c.debug.LogOffline) {
			c.logger.Debug("Offline cache prefetch requested", "requestID", spec.requestID, "url", target)
		}
		c.prefetcher.CacheURL(ctx, target)
	}

	resp, err := c.execute(ctx, spec, target)
	if err != nil {
		return resp, err
	}
	return applyResponse(ctx, chain, spec, resp)
}

// prepare clones spec and fills in what the caller left empty. Call headers
// take precedence over the default headers.
func (c *Client) prepare(spec *RequestSpec) *RequestSpec {
	spec = spec.Clone()
	if spec.Method == "" {
		spec.Method = http.MethodGet
	}
	spec.Method = strings.ToUpper(spec.Method)
	if spec.Timeout <= 0 {
		spec.Timeout = c.timeout
	}
	if spec.Header == nil {
		spec.Header = make(http.Header)
	}
	for key, values := range c.defaultHeaders {
		if _, ok := spec.Header[key]; !ok {
			spec.Header[key] = append([]string(nil), values...)
		}
	}
	if c.userAgent != "" && spec.Header.Get("User-Agent") == "" {
		spec.Header.Set("User-Agent", c.userAgent)
	}
	if c.debug != nil && c.debug.Enabled && c.debug.RequestIDGen != nil {
		spec.requestID = c.debug.RequestIDGen()
	}
	return spec
}

// resolveURL joins the base URL and the request path. Absolute paths are used
// as is.
func (c *Client) resolveURL(spec *RequestSpec) (string, error) {
	raw := spec.Path
	if !isAbsoluteURL(raw) {
		raw = c.baseURL + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if len(spec.Query) > 0 {
		q := u.Query()
		for k, v := range spec.Query {
			for _, item := range v {
				q.Add(k, item)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func isAbsoluteURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// recordCall writes the outcome of a call. A failing write is reported and
// counted but never replaces the call result.
func (c *Client) recordCall(ctx context.Context, spec *RequestSpec, target string, resp *Response, callErr error, duration time.Duration) {
	entry := &calllog.Entry{
		URL:        target,
		Method:     spec.Method,
		Status:     calllog.StatusSuccess,
		DurationMs: duration.Milliseconds(),
		Page:       spec.Page,
		Agent:      c.userAgent,
	}
	if resp != nil {
		entry.Response = calllog.Snapshot(resp.Body)
	}
	if callErr != nil {
		entry.Status = calllog.StatusFailed
		entry.ErrorMessage = callErrorMessage(callErr)
	}

	op, err := c.callLog.Record(context.WithoutCancel(ctx), entry)
	if err != nil {
		c.metrics.RecordCallLogWrite("error")
		c.logger.Warn("Call log write failed", "requestID", spec.requestID, "method", spec.Method, "url", target, "error", err)
		return
	}
	c.metrics.RecordCallLogWrite(string(op))
	if c.debugEnabled(c.debug.LogCallLog) {
		c.logger.Debug("Call logged", "requestID", spec.requestID, "op", string(op), "id", entry.ID, "status", string(entry.Status))
	}
}

func callErrorMessage(err error) string {
	if clientErr, ok := err.(*ClientError); ok {
		if clientErr.Cause != nil {
			return clientErr.Message + ": " + clientErr.Cause.Error()
		}
		return clientErr.Message
	}
	return err.Error()
}

func (c *Client) debugEnabled(flag bool) bool {
	return c.debug != nil && c.debug.Enabled && flag
}

// InFlight returns the number of outstanding calls.
func (c *Client) InFlight() int {
	return c.counter.Count()
}

// Busy reports whether any call is outstanding.
func (c *Client) Busy() bool {
	return c.counter.Busy()
}

// CallLog returns the configured call log, or nil.
func (c *Client) CallLog() *calllog.Log {
	return c.callLog
}

// CallLogs returns every call log entry.
func (c *Client) CallLogs(ctx context.Context) ([]*calllog.Entry, error) {
	if c.callLog == nil {
		return nil, ErrCallLogDisabled
	}
	return c.callLog.QueryAll(ctx)
}

// CallLogsByPage returns the entries attributed to page.
func (c *Client) CallLogsByPage(ctx context.Context, page string) ([]*calllog.Entry, error) {
	if c.callLog == nil {
		return nil, ErrCallLogDisabled
	}
	return c.callLog.QueryByPage(ctx, page)
}

// CallCount returns the number of endpoints called from page. An empty page
// falls back to the client default page.
func (c *Client) CallCount(ctx context.Context, page string) (int, error) {
	if c.callLog == nil {
		return 0, ErrCallLogDisabled
	}
	if page == "" {
		page = c.defaultPage
	}
	return c.callLog.Count(ctx, page)
}

// ClearCallLogs wipes the call log store. A blocked wipe is logged and
// reported through blocked; it is not an error.
func (c *Client) ClearCallLogs(ctx context.Context) (blocked bool, err error) {
	if c.callLog == nil {
		return false, ErrCallLogDisabled
	}
	blocked, err = c.callLog.Wipe(ctx)
	if blocked {
		c.logger.Warn("Call log wipe blocked by an open handle; it completes once the handle closes")
	}
	return blocked, err
}

// IsValid reports whether configuration validation passed at construction.
func (c *Client) IsValid() bool {
	return c.validationError == nil
}

// ValidationError returns the configuration validation error, if any.
func (c *Client) ValidationError() error {
	return c.validationError
}
