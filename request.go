package turbofetch

import (
	"encoding/json"
	"net/http"
	"net/url"
	"time"
)

// DefaultTimeout bounds a call when neither the client nor the call sets one.
const DefaultTimeout = 5 * time.Second

// RequestSpec describes one call. It is built fresh for every call and may be
// replaced by request interceptors before dispatch.
type RequestSpec struct {
	Method string
	// Path is joined to the client base URL unless it is already absolute.
	Path   string
	Query  url.Values
	Header http.Header
	Body   Body

	Timeout time.Duration
	// Logging controls whether the outcome is written to the call log.
	Logging bool
	// Page attributes the call in the call log.
	Page        string
	CancelToken *CancelToken
	// OfflineCache asks the client's Prefetcher to keep a copy of the URL.
	OfflineCache bool

	requestID string
}

// Clone returns a copy that shares no mutable maps with s.
func (s *RequestSpec) Clone() *RequestSpec {
	if s == nil {
		return nil
	}
	c := *s
	c.Header = s.Header.Clone()
	if s.Query != nil {
		c.Query = make(url.Values, len(s.Query))
		for k, v := range s.Query {
			c.Query[k] = append([]string(nil), v...)
		}
	}
	return &c
}

// RequestID returns the identifier assigned to the call, if debug request
// IDs are enabled.
func (s *RequestSpec) RequestID() string {
	return s.requestID
}

// WithHeader sets a single request header.
func WithHeader(key, value string) CallOption {
	return func(s *RequestSpec) {
		if s.Header == nil {
			s.Header = make(http.Header)
		}
		s.Header.Set(key, value)
	}
}

// WithHeaders sets several request headers. They take precedence over the
// client default headers.
func WithHeaders(headers map[string]string) CallOption {
	return func(s *RequestSpec) {
		if s.Header == nil {
			s.Header = make(http.Header)
		}
		for k, v := range headers {
			s.Header.Set(k, v)
		}
	}
}

// WithQuery adds query parameters to the request URL.
func WithQuery(values url.Values) CallOption {
	return func(s *RequestSpec) {
		if s.Query == nil {
			s.Query = make(url.Values)
		}
		for k, v := range values {
			s.Query[k] = append(s.Query[k], v...)
		}
	}
}

// WithCallTimeout overrides the timeout for a single call.
func WithCallTimeout(d time.Duration) CallOption {
	return func(s *RequestSpec) {
		s.Timeout = d
	}
}

// LogCall overrides the client level logging setting for a single call.
func LogCall(enabled bool) CallOption {
	return func(s *RequestSpec) {
		s.Logging = enabled
	}
}

// WithPage attributes the call to page in the call log.
func WithPage(page string) CallOption {
	return func(s *RequestSpec) {
		s.Page = page
	}
}

// WithCancelToken attaches token to the call.
func WithCancelToken(token *CancelToken) CallOption {
	return func(s *RequestSpec) {
		s.CancelToken = token
	}
}

// WithOfflineCache asks the offline cache to keep a copy of the URL.
func WithOfflineCache() CallOption {
	return func(s *RequestSpec) {
		s.OfflineCache = true
	}
}

// Response is a completed call. The body is read once and shared by the
// caller, the response interceptors and the call log.
type Response struct {
	StatusCode int
	Status     string
	Header     http.Header
	Body       []byte
	URL        string
	Duration   time.Duration
}

// OK reports whether the status is in the 2xx range.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Text returns the body as a string.
func (r *Response) Text() string {
	return string(r.Body)
}

// JSON decodes the body into v.
func (r *Response) JSON(v any) error {
	return json.Unmarshal(r.Body, v)
}

// DecodeJSON decodes the body of resp into a new T.
func DecodeJSON[T any](resp *Response) (T, error) {
	var out T
	if resp == nil {
		return out, &ClientError{Type: ErrorTypeValidation, Message: "nil response"}
	}
	if err := resp.JSON(&out); err != nil {
		return out, &ClientError{Type: ErrorTypeValidation, Message: "decode response body", Cause: err, URL: resp.URL, StatusCode: resp.StatusCode}
	}
	return out, nil
}
