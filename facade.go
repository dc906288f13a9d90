package turbofetch

import (
	"context"
	"net/http"
)

// Get performs a GET call.
func (c *Client) Get(ctx context.Context, path string, opts ...CallOption) (*Response, error) {
	return c.Do(ctx, c.NewRequest(ctx, http.MethodGet, path, nil, opts...))
}

// Delete performs a DELETE call. body may be nil.
func (c *Client) Delete(ctx context.Context, path string, body Body, opts ...CallOption) (*Response, error) {
	return c.Do(ctx, c.NewRequest(ctx, http.MethodDelete, path, body, opts...))
}

// Post performs a POST call.
func (c *Client) Post(ctx context.Context, path string, body Body, opts ...CallOption) (*Response, error) {
	return c.Do(ctx, c.NewRequest(ctx, http.MethodPost, path, body, opts...))
}

// Put performs a PUT call.
func (c *Client) Put(ctx context.Context, path string, body Body, opts ...CallOption) (*Response, error) {
	return c.Do(ctx, c.NewRequest(ctx, http.MethodPut, path, body, opts...))
}

// Patch performs a PATCH call.
func (c *Client) Patch(ctx context.Context, path string, body Body, opts ...CallOption) (*Response, error) {
	return c.Do(ctx, c.NewRequest(ctx, http.MethodPatch, path, body, opts...))
}

// Upload POSTs file as the multipart field "file".
func (c *Client) Upload(ctx context.Context, path string, file File, opts ...CallOption) (*Response, error) {
	form := NewForm().AddFile(UploadField, file)
	return c.Post(ctx, path, MultipartBody(form), opts...)
}

// GetJSON performs a GET call and decodes the JSON response into T.
func GetJSON[T any](ctx context.Context, c *Client, path string, opts ...CallOption) (T, error) {
	resp, err := c.Get(ctx, path, opts...)
	if err != nil {
		var zero T
		return zero, err
	}
	return DecodeJSON[T](resp)
}

// PostJSON sends payload as JSON and decodes the JSON response into T.
func PostJSON[T any](ctx context.Context, c *Client, path string, payload any, opts ...CallOption) (T, error) {
	resp, err := c.Post(ctx, path, JSONBody(payload), opts...)
	if err != nil {
		var zero T
		return zero, err
	}
	return DecodeJSON[T](resp)
}
