package turbofetch

import (
	"context"
	"net/http"
	"strconv"
	"sync"
)

// interceptorChain holds the registered request and response interceptors.
// Interceptors are only ever appended.
type interceptorChain struct {
	mu       sync.RWMutex
	request  []RequestInterceptor
	response []ResponseInterceptor
}

func (ic *interceptorChain) addRequest(i RequestInterceptor) {
	if i == nil {
		return
	}
	ic.mu.Lock()
	ic.request = append(ic.request, i)
	ic.mu.Unlock()
}

func (ic *interceptorChain) addResponse(i ResponseInterceptor) {
	if i == nil {
		return
	}
	ic.mu.Lock()
	ic.response = append(ic.response, i)
	ic.mu.Unlock()
}

// snapshot returns the chains as registered at the start of a call, so a
// registration racing with the call does not affect it.
func (ic *interceptorChain) snapshot() ([]RequestInterceptor, []ResponseInterceptor) {
	ic.mu.RLock()
	defer ic.mu.RUnlock()
	return append([]RequestInterceptor(nil), ic.request...),
		append([]ResponseInterceptor(nil), ic.response...)
}

// applyRequest threads spec through chain in registration order. A nil
// result keeps the previous spec. A replacement spec inherits the request ID
// and gets an empty header map if it has none. The first failure aborts the
// chain.
func applyRequest(ctx context.Context, chain []RequestInterceptor, spec *RequestSpec) (*RequestSpec, error) {
	for i, interceptor := range chain {
		next, err := interceptor(ctx, spec)
		if err != nil {
			return nil, interceptorError(StageRequest, i, spec, err)
		}
		if next == nil {
			continue
		}
		if next.Header == nil {
			next.Header = make(http.Header)
		}
		if next.requestID == "" {
			next.requestID = spec.requestID
		}
		spec = next
	}
	return spec, nil
}

// applyResponse threads resp through chain in registration order with the
// same rules as applyRequest. On failure the last good response is returned
// alongside the error.
func applyResponse(ctx context.Context, chain []ResponseInterceptor, spec *RequestSpec, resp *Response) (*Response, error) {
	for i, interceptor := range chain {
		next, err := interceptor(ctx, resp)
		if err != nil {
			return resp, interceptorError(StageResponse, i, spec, err)
		}
		if next != nil {
			resp = next
		}
	}
	return resp, nil
}

func interceptorError(stage string, index int, spec *RequestSpec, cause error) *ClientError {
	return &ClientError{
		Type:      ErrorTypeInterceptor,
		Message:   stage + " interceptor " + strconv.Itoa(index) + " failed",
		Cause:     cause,
		Stage:     stage,
		Method:    spec.Method,
		URL:       spec.Path,
		RequestID: spec.requestID,
	}
}
