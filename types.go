package turbofetch

import (
	"context"
	"net/http"
)

// Middleware wraps the transport call of a single dispatched request.
type Middleware func(req *http.Request, next RoundTripper) (*http.Response, error)

// RoundTripper represents the HTTP transport interface
type RoundTripper interface {
	RoundTrip(*http.Request) (*http.Response, error)
}

// RoundTripperFunc is a helper type for middleware
type RoundTripperFunc func(*http.Request) (*http.Response, error)

func (f RoundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// RequestInterceptor transforms an outgoing request before dispatch. Returning
// a nil spec and a nil error keeps the previous spec unchanged.
type RequestInterceptor func(ctx context.Context, spec *RequestSpec) (*RequestSpec, error)

// ResponseInterceptor transforms a successful response before the caller sees
// it. Returning a nil response and a nil error keeps the previous response.
type ResponseInterceptor func(ctx context.Context, resp *Response) (*Response, error)

// Prefetcher is the offline-cache side channel. CacheURL asks the cache to
// fetch and keep a copy of url; it must not block the calling request.
type Prefetcher interface {
	CacheURL(ctx context.Context, url string)
}

// Option represents a configuration option
type Option func(*Client)

// CallOption configures a single call.
type CallOption func(*RequestSpec)

// Context keys for per-call page attribution
type contextKey string

const (
	PageContextKey contextKey = "turbofetch_page"
)

// WithContextPage attaches the page context used for call log attribution.
func WithContextPage(ctx context.Context, page string) context.Context {
	return context.WithValue(ctx, PageContextKey, page)
}

func pageFromContext(ctx context.Context) (string, bool) {
	page, ok := ctx.Value(PageContextKey).(string)
	return page, ok
}
