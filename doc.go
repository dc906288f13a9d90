// Package turbofetch is an HTTP client that adds a small call pipeline on top
// of net/http:
//
//   - Request and response interceptors applied in registration order
//   - Per-call timeout and cancel tokens that never leak timers
//   - An in-flight counter driving a busy indicator
//   - A call log keeping the latest outcome per (url, method)
//   - An optional offline cache side channel (see package offline)
//   - Prometheus metrics and structured debug logging
//
// Typical usage:
//
//	client := turbofetch.New(
//	    turbofetch.WithBaseURL("https://api.example.com"),
//	    turbofetch.WithCallLogStore(calllog.NewMemoryStore("logs")),
//	    turbofetch.WithLogging(true),
//	)
//	resp, err := client.Post(ctx, "/items", turbofetch.JSONBody(map[string]string{"name": "x"}))
//
// Every failure is a *ClientError. Branch on it with IsNetworkError,
// IsHTTPStatus or IsInterceptor; an HTTP status error still returns the
// Response so the failure payload can be read.
package turbofetch
