package turbofetch

import (
	"context"
	"errors"
	"sync"
)

// ErrCanceledByToken is the cause recorded when a CancelToken aborts a call.
var ErrCanceledByToken = errors.New("turbofetch: canceled by token")

// CancelToken aborts the calls it is attached to. One token may be shared by
// several calls; canceling it aborts all of them. The zero value is not
// usable, create tokens with NewCancelToken.
type CancelToken struct {
	once sync.Once
	done chan struct{}
}

// NewCancelToken returns a fresh, uncanceled token.
func NewCancelToken() *CancelToken {
	return &CancelToken{done: make(chan struct{})}
}

// Cancel aborts every call using the token. It is safe to call more than once.
func (t *CancelToken) Cancel() {
	t.once.Do(func() { close(t.done) })
}

// Canceled reports whether Cancel has been called.
func (t *CancelToken) Canceled() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Done is closed once the token is canceled.
func (t *CancelToken) Done() <-chan struct{} {
	return t.done
}

// bind derives a context that is canceled with ErrCanceledByToken when the
// token fires. The returned stop func must be called to release the watcher.
func (t *CancelToken) bind(parent context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancelCause(parent)
	stop := func() { cancel(nil) }
	if t == nil {
		return ctx, stop
	}
	if t.Canceled() {
		cancel(ErrCanceledByToken)
		return ctx, stop
	}
	go func() {
		select {
		case <-t.done:
			cancel(ErrCanceledByToken)
		case <-ctx.Done():
		}
	}()
	return ctx, stop
}
