package turbofetch

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// HeaderXRequestID is the default header used by RequestIDInterceptor.
const HeaderXRequestID = "X-Request-ID"

// RequestIDInterceptor sets header to a fresh UUID unless the request already
// carries one. An empty header selects X-Request-ID.
func RequestIDInterceptor(header string) RequestInterceptor {
	if header == "" {
		header = HeaderXRequestID
	}
	return func(_ context.Context, spec *RequestSpec) (*RequestSpec, error) {
		if spec.Header.Get(header) == "" {
			id := spec.requestID
			if id == "" {
				id = uuid.NewString()
			}
			spec.Header.Set(header, id)
		}
		return nil, nil
	}
}

// TracePropagationInterceptor injects the span context of ctx into the
// request headers using the global OpenTelemetry propagator.
func TracePropagationInterceptor() RequestInterceptor {
	return TracePropagationInterceptorWith(nil)
}

// TracePropagationInterceptorWith is TracePropagationInterceptor with an
// explicit propagator. A nil propagator resolves the global one per call.
func TracePropagationInterceptorWith(p propagation.TextMapPropagator) RequestInterceptor {
	return func(ctx context.Context, spec *RequestSpec) (*RequestSpec, error) {
		prop := p
		if prop == nil {
			prop = otel.GetTextMapPropagator()
		}
		prop.Inject(ctx, propagation.HeaderCarrier(spec.Header))
		return nil, nil
	}
}

// ErrEmptyToken is returned by BearerTokenInterceptor when the token source
// yields an empty token.
var ErrEmptyToken = errors.New("turbofetch: empty bearer token")

// BearerTokenInterceptor sets the Authorization header from source, which is
// called once per request and may refresh the token.
func BearerTokenInterceptor(source func(ctx context.Context) (string, error)) RequestInterceptor {
	return func(ctx context.Context, spec *RequestSpec) (*RequestSpec, error) {
		token, err := source(ctx)
		if err != nil {
			return nil, err
		}
		if token == "" {
			return nil, ErrEmptyToken
		}
		spec.Header.Set("Authorization", "Bearer "+token)
		return nil, nil
	}
}
