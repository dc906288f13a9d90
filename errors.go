package turbofetch

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Error types
const (
	ErrorTypeNetwork     = "NetworkError"
	ErrorTypeTimeout     = "TimeoutError"
	ErrorTypeCanceled    = "CanceledError"
	ErrorTypeHTTPStatus  = "HTTPStatusError"
	ErrorTypeInterceptor = "InterceptorError"
	ErrorTypeValidation  = "ValidationError"
)

// Interceptor stages
const (
	StageRequest  = "request"
	StageResponse = "response"
)

var (
	// ErrInvalidConfig is returned by calls on a client whose configuration
	// failed validation.
	ErrInvalidConfig = errors.New("turbofetch: invalid configuration")

	// ErrCallLogDisabled is returned by the call log accessors when the client
	// has no call log configured.
	ErrCallLogDisabled = errors.New("turbofetch: call log not configured")
)

// ClientError is the single error type returned by a call. Type tells which
// failure kind occurred so callers can branch without inspecting fields.
type ClientError struct {
	Type    string
	Message string
	Cause   error

	RequestID  string
	Method     string
	URL        string
	StatusCode int
	Stage      string

	// Body and Header carry the raw failure payload of an HTTPStatusError.
	Body   []byte
	Header http.Header

	Timestamp time.Time
	Duration  time.Duration
}

// Error implements error interface.
func (e *ClientError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("%s: %s", e.Type, e.Message)
	if e.Cause != nil {
		msg = fmt.Sprintf("%s (%v)", msg, e.Cause)
	}
	if e.RequestID != "" {
		msg = fmt.Sprintf("[%s] %s", e.RequestID, msg)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *ClientError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is compares error types for errors.Is.
func (e *ClientError) Is(target error) bool {
	if e == nil {
		return false
	}
	if targetErr, ok := target.(*ClientError); ok {
		return e.Type == targetErr.Type
	}
	return false
}

// DebugInfo renders a multi-line string with diagnostic context.
func (e *ClientError) DebugInfo() string {
	if e == nil {
		return "Error: <nil>"
	}
	info := fmt.Sprintf("Error Type: %s\n", e.Type)
	info += fmt.Sprintf("Message: %s\n", e.Message)
	if e.RequestID != "" {
		info += fmt.Sprintf("Request ID: %s\n", e.RequestID)
	}
	if e.Method != "" {
		info += fmt.Sprintf("Method: %s\n", e.Method)
	}
	if e.URL != "" {
		info += fmt.Sprintf("URL: %s\n", e.URL)
	}
	if e.Stage != "" {
		info += fmt.Sprintf("Stage: %s\n", e.Stage)
	}
	if e.StatusCode > 0 {
		info += fmt.Sprintf("Status Code: %d\n", e.StatusCode)
	}
	if len(e.Body) > 0 {
		info += fmt.Sprintf("Body: %s\n", truncateBody(e.Body, 512))
	}
	if !e.Timestamp.IsZero() {
		info += fmt.Sprintf("Timestamp: %s\n", e.Timestamp.Format(time.RFC3339))
	}
	if e.Duration > 0 {
		info += fmt.Sprintf("Duration: %v\n", e.Duration)
	}
	if e.Cause != nil {
		info += fmt.Sprintf("Cause: %v\n", e.Cause)
	}
	return info
}

func truncateBody(b []byte, limit int) string {
	if len(b) <= limit {
		return string(b)
	}
	return string(b[:limit]) + "..."
}

func errorType(err error) string {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return clientErr.Type
	}
	return ""
}

// IsNetworkError reports whether err means no response was produced:
// a transport failure, a timeout or a cancellation.
func IsNetworkError(err error) bool {
	switch errorType(err) {
	case ErrorTypeNetwork, ErrorTypeTimeout, ErrorTypeCanceled:
		return true
	default:
		return false
	}
}

// IsTimeout reports whether err is a call that hit its deadline.
func IsTimeout(err error) bool {
	return errorType(err) == ErrorTypeTimeout
}

// IsCanceled reports whether err is a call aborted through its cancel token
// or the caller's context.
func IsCanceled(err error) bool {
	return errorType(err) == ErrorTypeCanceled
}

// IsHTTPStatus reports whether err is a completed call with a non-2xx status.
func IsHTTPStatus(err error) bool {
	return errorType(err) == ErrorTypeHTTPStatus
}

// IsInterceptor reports whether err was raised by a request or response
// interceptor.
func IsInterceptor(err error) bool {
	return errorType(err) == ErrorTypeInterceptor
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return clientErr.StatusCode
	}
	return 0
}
