package singleflight

import (
	"errors"
	"sync"
)

// ErrInProgress is returned by TryDo while another call holds the key.
var ErrInProgress = errors.New("singleflight: key busy")

// Group collapses concurrent calls that share a key into a single execution.
// Callers that arrive while the owner is running wait for it and receive the
// owner's result. Once the owner returns, the key is free again.
type Group[T any] struct {
	mu sync.Mutex
	m  map[string]*call[T]
}

type call[T any] struct {
	wg  sync.WaitGroup
	val T
	err error
	dup int
}

// New creates a new Group.
func New[T any]() *Group[T] {
	return &Group[T]{
		m: make(map[string]*call[T]),
	}
}

// Do executes fn once per in-flight key. shared reports whether the result
// was handed to more than one caller.
func (g *Group[T]) Do(key string, fn func() (T, error)) (val T, err error, shared bool) {
	g.mu.Lock()
	if c, ok := g.m[key]; ok {
		c.dup++
		g.mu.Unlock()
		c.wg.Wait()
		return c.val, c.err, true
	}

	c := &call[T]{}
	c.wg.Add(1)
	g.m[key] = c
	g.mu.Unlock()

	g.run(key, c, fn)

	return c.val, c.err, c.dup > 0
}

// TryDo executes fn only if no call for key is in progress. Otherwise it
// returns ErrInProgress immediately and ran is false.
func (g *Group[T]) TryDo(key string, fn func() (T, error)) (val T, err error, ran bool) {
	g.mu.Lock()
	if _, ok := g.m[key]; ok {
		g.mu.Unlock()
		var zero T
		return zero, ErrInProgress, false
	}

	c := &call[T]{}
	c.wg.Add(1)
	g.m[key] = c
	g.mu.Unlock()

	g.run(key, c, fn)

	return c.val, c.err, true
}

// InFlight reports whether a call for key is currently running.
func (g *Group[T]) InFlight(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.m[key]
	return ok
}

// Forget drops key so the next call starts a fresh execution even if the
// current one has not finished.
func (g *Group[T]) Forget(key string) {
	g.mu.Lock()
	delete(g.m, key)
	g.mu.Unlock()
}

func (g *Group[T]) run(key string, c *call[T], fn func() (T, error)) {
	defer func() {
		g.mu.Lock()
		if g.m[key] == c {
			delete(g.m, key)
		}
		g.mu.Unlock()
		c.wg.Done()
	}()
	c.val, c.err = fn()
}
