package turbofetch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCancelToken(t *testing.T) {
	token := NewCancelToken()
	assert.False(t, token.Canceled())

	token.Cancel()
	token.Cancel()
	assert.True(t, token.Canceled())

	select {
	case <-token.Done():
	default:
		t.Fatal("Done should be closed after Cancel")
	}
}

func TestCancelTokenBind(t *testing.T) {
	token := NewCancelToken()
	ctx, stop := token.bind(context.Background())
	defer stop()

	assert.NoError(t, ctx.Err())
	token.Cancel()

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("bound context was not canceled")
	}
	assert.ErrorIs(t, context.Cause(ctx), ErrCanceledByToken)
}

func TestCancelTokenBindAlreadyCanceled(t *testing.T) {
	token := NewCancelToken()
	token.Cancel()

	ctx, stop := token.bind(context.Background())
	defer stop()
	assert.ErrorIs(t, context.Cause(ctx), ErrCanceledByToken)
}

func TestCancelTokenBindNil(t *testing.T) {
	var token *CancelToken
	ctx, stop := token.bind(context.Background())
	assert.NoError(t, ctx.Err())

	stop()
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
	assert.NotErrorIs(t, context.Cause(ctx), ErrCanceledByToken)
}

func TestCancelTokenStopReleasesWatcher(t *testing.T) {
	token := NewCancelToken()
	ctx, stop := token.bind(context.Background())
	stop()

	assert.Error(t, ctx.Err())
	token.Cancel()
	assert.NotErrorIs(t, context.Cause(ctx), ErrCanceledByToken)
}

func TestSharedTokenCancelsEveryCall(t *testing.T) {
	client := New(WithHTTPClient(hangingTransport()), WithTimeout(time.Minute))
	token := NewCancelToken()

	const n = 3
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			_, err := client.Get(context.Background(), "http://example.invalid/", WithCancelToken(token))
			errs <- err
		}()
	}

	assert.Eventually(t, func() bool { return client.InFlight() == n }, time.Second, time.Millisecond)
	token.Cancel()

	for i := 0; i < n; i++ {
		select {
		case err := <-errs:
			assert.True(t, IsCanceled(err))
		case <-time.After(2 * time.Second):
			t.Fatal("call did not return after cancel")
		}
	}
	assert.Zero(t, client.InFlight())
}
