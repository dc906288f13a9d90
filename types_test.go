package turbofetch

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTripperFunc(t *testing.T) {
	called := false
	rt := RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
		called = true
		return &http.Response{StatusCode: http.StatusTeapot, Body: io.NopCloser(strings.NewReader(""))}, nil
	})

	req := httptest.NewRequest(http.MethodGet, "http://example.com", nil)
	resp, err := rt.RoundTrip(req)
	require.NoError(t, err)
	assert.True(t, called)
	assert.Equal(t, http.StatusTeapot, resp.StatusCode)
}

func TestMiddlewareOrder(t *testing.T) {
	var order []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "server")
	}))
	defer server.Close()

	named := func(name string) Middleware {
		return func(req *http.Request, next RoundTripper) (*http.Response, error) {
			order = append(order, name+">")
			resp, err := next.RoundTrip(req)
			order = append(order, "<"+name)
			return resp, err
		}
	}

	client := New(WithBaseURL(server.URL), WithMiddleware(named("outer"), named("inner")))
	_, err := client.Get(context.Background(), "/")
	require.NoError(t, err)

	assert.Equal(t, []string{"outer>", "inner>", "server", "<inner", "<outer"}, order)
}

func TestMiddlewareCanShortCircuit(t *testing.T) {
	client := New(WithMiddleware(func(req *http.Request, _ RoundTripper) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusOK,
			Status:     "200 OK",
			Header:     http.Header{"X-Stub": {"1"}},
			Body:       io.NopCloser(strings.NewReader(`{"stub":true}`)),
			Request:    req,
		}, nil
	}))

	resp, err := client.Get(context.Background(), "http://example.invalid/anything")
	require.NoError(t, err)
	assert.JSONEq(t, `{"stub":true}`, resp.Text())
	assert.Equal(t, "1", resp.Header.Get("X-Stub"))
}

func TestContextPage(t *testing.T) {
	ctx := context.Background()
	_, ok := pageFromContext(ctx)
	assert.False(t, ok)

	page, ok := pageFromContext(WithContextPage(ctx, "/orders"))
	assert.True(t, ok)
	assert.Equal(t, "/orders", page)
}

func TestNewRequestAppliesDefaultsAndOptions(t *testing.T) {
	client := New(WithTimeout(3*time.Second), WithDefaultPage("/home"))
	token := NewCancelToken()

	spec := client.NewRequest(WithContextPage(context.Background(), "/ctx"), http.MethodPost, "/items", TextBody("hi"),
		WithHeader("X-One", "1"),
		WithHeaders(map[string]string{"X-Two": "2"}),
		WithQuery(url.Values{"a": {"1"}}),
		WithQuery(url.Values{"a": {"2"}}),
		WithCallTimeout(time.Second),
		LogCall(true),
		WithCancelToken(token),
		WithOfflineCache(),
		nil,
	)

	assert.Equal(t, http.MethodPost, spec.Method)
	assert.Equal(t, "/items", spec.Path)
	assert.Equal(t, "1", spec.Header.Get("X-One"))
	assert.Equal(t, "2", spec.Header.Get("X-Two"))
	assert.Equal(t, []string{"1", "2"}, spec.Query["a"])
	assert.Equal(t, time.Second, spec.Timeout)
	assert.True(t, spec.Logging)
	assert.Equal(t, "/ctx", spec.Page)
	assert.Same(t, token, spec.CancelToken)
	assert.True(t, spec.OfflineCache)

	spec = client.NewRequest(context.Background(), http.MethodGet, "/x", nil)
	assert.Equal(t, "/home", spec.Page)
	assert.Equal(t, 3*time.Second, spec.Timeout)
}

func TestRequestSpecClone(t *testing.T) {
	spec := &RequestSpec{
		Method: http.MethodGet,
		Header: http.Header{"X-A": {"1"}},
		Query:  url.Values{"q": {"x"}},
	}
	clone := spec.Clone()
	clone.Header.Set("X-A", "2")
	clone.Query.Add("q", "y")

	assert.Equal(t, "1", spec.Header.Get("X-A"))
	assert.Equal(t, []string{"x"}, spec.Query["q"])

	var nilSpec *RequestSpec
	assert.Nil(t, nilSpec.Clone())
}

func TestPrepareUppercasesAndDefaults(t *testing.T) {
	client := New(WithDefaultHeader("X-App", "web"), WithTimeout(time.Second))
	spec := client.prepare(&RequestSpec{Method: "patch"})

	assert.Equal(t, http.MethodPatch, spec.Method)
	assert.Equal(t, time.Second, spec.Timeout)
	assert.Equal(t, "web", spec.Header.Get("X-App"))
	assert.Equal(t, client.userAgent, spec.Header.Get("User-Agent"))

	spec = client.prepare(&RequestSpec{})
	assert.Equal(t, http.MethodGet, spec.Method)
}

func TestResponseHelpers(t *testing.T) {
	resp := &Response{StatusCode: 204, Body: []byte(`{"n":3}`)}
	assert.True(t, resp.OK())
	assert.False(t, (&Response{StatusCode: 302}).OK())

	var v struct{ N int }
	require.NoError(t, resp.JSON(&v))
	assert.Equal(t, 3, v.N)

	decoded, err := DecodeJSON[map[string]int](resp)
	require.NoError(t, err)
	assert.Equal(t, 3, decoded["n"])

	_, err = DecodeJSON[int](nil)
	assert.Error(t, err)
	_, err = DecodeJSON[int](&Response{Body: []byte("nope")})
	var clientErr *ClientError
	require.ErrorAs(t, err, &clientErr)
	assert.Equal(t, ErrorTypeValidation, clientErr.Type)
}

func TestVersion(t *testing.T) {
	assert.Contains(t, GetVersion(), "turbofetch v"+Version)
	info := GetVersionInfo()
	assert.Equal(t, Version, info["version"])
	assert.Equal(t, GoVersion, info["go_version"])
	assert.True(t, strings.HasPrefix(DefaultUserAgent(), "turbofetch/"+Version+" ("))
}
