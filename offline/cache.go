package offline

import (
	"context"
	"errors"
	"hash/fnv"
	"net/http"
	"sync"
	"time"
)

// ErrNotCached is returned by Cache.Get on a miss.
var ErrNotCached = errors.New("offline: not cached")

// Entry is a stored response.
type Entry struct {
	StatusCode int         `json:"status"`
	Header     http.Header `json:"header"`
	Body       []byte      `json:"body"`
	StoredAt   time.Time   `json:"storedAt"`

	expiresAt time.Time
}

// Cache stores responses keyed by URL. Implementations must be safe for
// concurrent use.
type Cache interface {
	Get(ctx context.Context, key string) (*Entry, error)
	// Set stores e. A ttl of zero keeps the entry until it is deleted.
	Set(ctx context.Context, key string, e *Entry, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

// MemoryCache is a sharded in-process Cache.
type MemoryCache struct {
	shards    []*cacheShard
	numShards int
	now       func() time.Time
}

type cacheShard struct {
	mu    sync.RWMutex
	store map[string]*Entry
}

var _ Cache = (*MemoryCache)(nil)

// NewMemoryCache returns an empty cache.
func NewMemoryCache() *MemoryCache {
	numShards := 16
	shards := make([]*cacheShard, numShards)
	for i := range shards {
		shards[i] = &cacheShard{
			store: make(map[string]*Entry),
		}
	}
	return &MemoryCache{
		shards:    shards,
		numShards: numShards,
		now:       time.Now,
	}
}

func (c *MemoryCache) getShard(key string) *cacheShard {
	hash := fnv.New32a()
	hash.Write([]byte(key))
	return c.shards[hash.Sum32()%uint32(c.numShards)]
}

func (c *MemoryCache) Get(ctx context.Context, key string) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	shard := c.getShard(key)
	shard.mu.RLock()
	entry, exists := shard.store[key]
	shard.mu.RUnlock()

	if !exists {
		return nil, ErrNotCached
	}

	if !entry.expiresAt.IsZero() && c.now().After(entry.expiresAt) {
		shard.mu.Lock()
		if shard.store[key] == entry {
			delete(shard.store, key)
		}
		shard.mu.Unlock()
		return nil, ErrNotCached
	}

	return entry.clone(), nil
}

func (c *MemoryCache) Set(ctx context.Context, key string, e *Entry, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	stored := e.clone()
	if ttl > 0 {
		stored.expiresAt = c.now().Add(ttl)
	}

	shard := c.getShard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	shard.store[key] = stored
	return nil
}

func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	shard := c.getShard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	delete(shard.store, key)
	return nil
}

func (c *MemoryCache) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, shard := range c.shards {
		shard.mu.Lock()
		shard.store = make(map[string]*Entry)
		shard.mu.Unlock()
	}
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (c *MemoryCache) Len() int {
	n := 0
	for _, shard := range c.shards {
		shard.mu.RLock()
		n += len(shard.store)
		shard.mu.RUnlock()
	}
	return n
}

func (e *Entry) clone() *Entry {
	c := *e
	c.Header = e.Header.Clone()
	c.Body = append([]byte(nil), e.Body...)
	return &c
}
