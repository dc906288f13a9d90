package calllog

import (
	"context"
	"strconv"
	"sync"
)

// MemoryStore is an in-process Store with real page and url indexes.
// Records handed in and out are copies.
type MemoryStore struct {
	mu      sync.RWMutex
	name    string
	nextID  int64
	records map[string]*Entry
	order   []string
	byIndex map[Index]map[string][]string

	handles     int
	pendingWipe bool
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore(name string) *MemoryStore {
	s := &MemoryStore{name: name}
	s.reset()
	return s
}

func (s *MemoryStore) reset() {
	s.records = make(map[string]*Entry)
	s.order = nil
	s.byIndex = map[Index]map[string][]string{
		IndexPage: {},
		IndexURL:  {},
	}
}

// Name returns the store name.
func (s *MemoryStore) Name() string {
	return s.name
}

// Add implements Store.
func (s *MemoryStore) Add(ctx context.Context, e *Entry) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := strconv.FormatInt(s.nextID, 10)
	rec := e.Clone()
	rec.ID = id
	s.records[id] = rec
	s.order = append(s.order, id)
	for idx, values := range s.byIndex {
		v := rec.indexValue(idx)
		values[v] = append(values[v], id)
	}
	return id, nil
}

// Update implements Store. Index fields of the stored record are kept.
func (s *MemoryStore) Update(ctx context.Context, id string, e *Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return ErrNotFound
	}
	next := e.Clone()
	next.ID = id
	next.URL = rec.URL
	next.Page = rec.Page
	s.records[id] = next
	return nil
}

// QueryByIndex implements Store.
func (s *MemoryStore) QueryByIndex(ctx context.Context, idx Index, value string) ([]*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	values, ok := s.byIndex[idx]
	if !ok {
		return nil, ErrUnknownIndex
	}
	ids := values[value]
	out := make([]*Entry, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.records[id].Clone())
	}
	return out, nil
}

// GetAll implements Store. Entries come back in insertion order.
func (s *MemoryStore) GetAll(ctx context.Context) ([]*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Entry, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.records[id].Clone())
	}
	return out, nil
}

// Acquire opens a handle on the store. While any handle is open DeleteStore
// reports ErrBlocked and defers the deletion until the last release.
func (s *MemoryStore) Acquire() (release func()) {
	s.mu.Lock()
	s.handles++
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.handles--
			if s.handles == 0 && s.pendingWipe {
				s.pendingWipe = false
				s.reset()
			}
		})
	}
}

// DeleteStore implements Store.
func (s *MemoryStore) DeleteStore(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.handles > 0 {
		s.pendingWipe = true
		return ErrBlocked
	}
	s.reset()
	return nil
}

// Len returns the number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
