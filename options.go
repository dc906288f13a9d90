package turbofetch

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/devops-sunny/turbofetch/calllog"
)

// WithBaseURL sets the prefix joined to every relative call path.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithDefaultHeaders replaces the headers sent with every call. Call
// headers take precedence.
func WithDefaultHeaders(headers map[string]string) Option {
	return func(c *Client) {
		c.defaultHeaders = make(http.Header, len(headers))
		for k, v := range headers {
			c.defaultHeaders.Set(k, v)
		}
	}
}

// WithDefaultHeader adds a single default header.
func WithDefaultHeader(key, value string) Option {
	return func(c *Client) {
		if c.defaultHeaders == nil {
			c.defaultHeaders = make(http.Header)
		}
		c.defaultHeaders.Set(key, value)
	}
}

// WithTimeout sets the default per-call timeout
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithHTTPClient sets a custom HTTP client. Its own Timeout is left alone;
// per-call deadlines come from the call context.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithMiddleware adds transport middleware to the client
func WithMiddleware(middleware ...Middleware) Option {
	return func(c *Client) {
		c.middleware = append(c.middleware, middleware...)
	}
}

// WithRequestInterceptor registers request interceptors at construction.
func WithRequestInterceptor(interceptors ...RequestInterceptor) Option {
	return func(c *Client) {
		for _, i := range interceptors {
			c.interceptors.addRequest(i)
		}
	}
}

// WithResponseInterceptor registers response interceptors at construction.
func WithResponseInterceptor(interceptors ...ResponseInterceptor) Option {
	return func(c *Client) {
		for _, i := range interceptors {
			c.interceptors.addResponse(i)
		}
	}
}

// WithCallLog sets the call log that outcomes are recorded to.
func WithCallLog(log *calllog.Log) Option {
	return func(c *Client) {
		c.callLog = log
	}
}

// WithCallLogStore records outcomes into store through a new calllog.Log.
func WithCallLogStore(store calllog.Store) Option {
	return func(c *Client) {
		c.callLog = calllog.New(store)
	}
}

// WithLogging sets whether calls are logged unless a call says otherwise.
func WithLogging(enabled bool) Option {
	return func(c *Client) {
		c.logging = enabled
	}
}

// WithBusyIndicator sets the collaborator notified when the client becomes
// busy and idle.
func WithBusyIndicator(indicator BusyIndicator) Option {
	return func(c *Client) {
		c.indicator = indicator
	}
}

// WithPrefetcher connects the offline cache side channel.
func WithPrefetcher(p Prefetcher) Option {
	return func(c *Client) {
		c.prefetcher = p
	}
}

// WithUserAgent sets the User-Agent header and the agent recorded in the
// call log.
func WithUserAgent(agent string) Option {
	return func(c *Client) {
		c.userAgent = agent
	}
}

// WithDefaultPage sets the page calls are attributed to when neither the
// call nor its context names one.
func WithDefaultPage(page string) Option {
	return func(c *Client) {
		c.defaultPage = page
	}
}

// WithMaxBodyBytes caps the response body size.
func WithMaxBodyBytes(n int64) Option {
	return func(c *Client) {
		c.maxBodyBytes = n
	}
}

// WithMetrics enables Prometheus metrics collection
func WithMetrics() Option {
	return func(c *Client) {
		c.metrics = NewMetricsCollector()
	}
}

// WithMetricsCollector sets a custom metrics collector
func WithMetricsCollector(collector *MetricsCollector) Option {
	return func(c *Client) {
		c.metrics = collector
	}
}

// WithDebug enables debug logging with default configuration
func WithDebug() Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.Enabled = true
	}
}

// WithDebugConfig sets custom debug configuration
func WithDebugConfig(config *DebugConfig) Option {
	return func(c *Client) {
		c.debug = config
	}
}

// WithLogger sets the logger used for warnings and debug output
func WithLogger(logger Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRequestIDGenerator sets a custom function for generating request IDs
func WithRequestIDGenerator(gen func() string) Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.RequestIDGen = gen
	}
}

// ValidateConfiguration validates the client configuration and returns an error if invalid
func (c *Client) ValidateConfiguration() error {
	var errors []string

	errors = append(errors, c.validateTransportConfig()...)
	errors = append(errors, c.validateCallLogConfig()...)
	errors = append(errors, c.validateDebugConfig()...)
	errors = append(errors, c.validateMiddlewareConfig()...)
	errors = append(errors, c.validateExtremeValues()...)

	if len(errors) > 0 {
		return &ClientError{
			Type:    ErrorTypeValidation,
			Message: "configuration validation failed",
			Cause:   fmt.Errorf("validation errors: %v", errors),
		}
	}

	return nil
}

func (c *Client) validateTransportConfig() []string {
	var errors []string

	if c.httpClient == nil {
		errors = append(errors, "HTTP client cannot be nil")
	}

	if c.timeout <= 0 {
		errors = append(errors, "timeout must be positive")
	}

	if c.maxBodyBytes <= 0 {
		errors = append(errors, "maxBodyBytes must be positive")
	}

	if c.baseURL != "" {
		if u, err := url.Parse(c.baseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			errors = append(errors, "baseURL must be an absolute http or https URL")
		}
	}

	return errors
}

func (c *Client) validateCallLogConfig() []string {
	var errors []string

	if c.logging && c.callLog == nil {
		errors = append(errors, "logging enabled but no call log configured")
	}

	return errors
}

// validateDebugConfig validates debug configuration
func (c *Client) validateDebugConfig() []string {
	var errors []string

	if c.logger == nil {
		errors = append(errors, "logger cannot be nil")
	}

	if c.debug != nil && c.debug.Enabled && c.debug.RequestIDGen == nil {
		errors = append(errors, "debug RequestIDGen must be set when debug is enabled")
	}

	return errors
}

// validateMiddlewareConfig validates middleware configuration
func (c *Client) validateMiddlewareConfig() []string {
	var errors []string

	for i, middleware := range c.middleware {
		if middleware == nil {
			errors = append(errors, fmt.Sprintf("middleware[%d] cannot be nil", i))
		}
	}

	return errors
}

// validateExtremeValues validates that configuration values are within reasonable bounds
func (c *Client) validateExtremeValues() []string {
	var errors []string

	if c.timeout > 10*time.Minute {
		errors = append(errors, "timeout > 10m may cause requests to hang for too long")
	}

	if c.maxBodyBytes > 1<<30 {
		errors = append(errors, "maxBodyBytes > 1GiB may cause memory issues")
	}

	return errors
}
