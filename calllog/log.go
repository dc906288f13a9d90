package calllog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/devops-sunny/turbofetch/internal/singleflight"
)

// Op tells whether Record inserted a new entry or updated an existing one.
type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
)

// Log applies the upsert-by-endpoint policy on top of a Store. It is safe for
// concurrent use.
type Log struct {
	store Store
	now   func() time.Time

	ready atomic.Bool
	init  *singleflight.Group[struct{}]

	// keyed serializes Record per (url, method) within this process.
	keyed keyedMutex
}

// New returns a Log backed by store.
func New(store Store) *Log {
	return &Log{
		store: store,
		now:   time.Now,
		init:  singleflight.New[struct{}](),
	}
}

// Store returns the backing store.
func (l *Log) Store() Store {
	return l.store
}

// open runs the store's schema setup once. Concurrent first users share a
// single Init call.
func (l *Log) open(ctx context.Context) error {
	if l.ready.Load() {
		return nil
	}
	initializer, ok := l.store.(Initializer)
	if !ok {
		l.ready.Store(true)
		return nil
	}
	_, err, _ := l.init.Do("init", func() (struct{}, error) {
		if l.ready.Load() {
			return struct{}{}, nil
		}
		if err := initializer.Init(ctx); err != nil {
			return struct{}{}, err
		}
		l.ready.Store(true)
		return struct{}{}, nil
	})
	if err != nil {
		return fmt.Errorf("calllog: open store: %w", err)
	}
	return nil
}

func (l *Log) lockFor(url, method string) func() {
	return l.keyed.lock(method + " " + url)
}

// keyedMutex hands out one mutex per key. An entry lives only while some
// caller holds or waits on it.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*refMutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

// Record stores the outcome of a call. If an entry for (e.URL, e.Method)
// already exists its status, response, duration, error message and timestamp
// are overwritten in place; its identity, page and agent are preserved.
// Otherwise e is inserted and e.ID is set to the new identity.
func (l *Log) Record(ctx context.Context, e *Entry) (Op, error) {
	if e == nil {
		return "", errors.New("calllog: nil entry")
	}
	if err := l.open(ctx); err != nil {
		return "", err
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = l.now()
	}

	unlock := l.lockFor(e.URL, e.Method)
	defer unlock()

	candidates, err := l.store.QueryByIndex(ctx, IndexURL, e.URL)
	if err != nil {
		return "", fmt.Errorf("calllog: lookup %s %s: %w", e.Method, e.URL, err)
	}

	var existing *Entry
	for _, c := range candidates {
		if c.Method == e.Method {
			existing = c
			break
		}
	}

	if existing != nil {
		existing.applyOutcome(e)
		if err := l.store.Update(ctx, existing.ID, existing); err != nil {
			return "", fmt.Errorf("calllog: update %s: %w", existing.ID, err)
		}
		e.ID = existing.ID
		return OpUpdate, nil
	}

	id, err := l.store.Add(ctx, e)
	if err != nil {
		return "", fmt.Errorf("calllog: add %s %s: %w", e.Method, e.URL, err)
	}
	e.ID = id
	return OpInsert, nil
}

// QueryByPage returns the entries first recorded from page.
func (l *Log) QueryByPage(ctx context.Context, page string) ([]*Entry, error) {
	if err := l.open(ctx); err != nil {
		return nil, err
	}
	return l.store.QueryByIndex(ctx, IndexPage, page)
}

// QueryAll returns every entry.
func (l *Log) QueryAll(ctx context.Context) ([]*Entry, error) {
	if err := l.open(ctx); err != nil {
		return nil, err
	}
	return l.store.GetAll(ctx)
}

// Count returns the number of entries recorded for page.
func (l *Log) Count(ctx context.Context, page string) (int, error) {
	entries, err := l.QueryByPage(ctx, page)
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

// Wipe destroys the store. A blocked deletion is reported through blocked
// and is not an error; the backend finishes it once the other handles close.
func (l *Log) Wipe(ctx context.Context) (blocked bool, err error) {
	err = l.store.DeleteStore(ctx)
	l.ready.Store(false)
	if errors.Is(err, ErrBlocked) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("calllog: wipe: %w", err)
	}
	return false, nil
}
