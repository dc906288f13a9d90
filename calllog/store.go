package calllog

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrBlocked is returned by DeleteStore when another handle still holds
	// the store open. The deletion completes once the handle is released.
	ErrBlocked = errors.New("calllog: store deletion blocked")

	// ErrNotFound is returned by Update for an unknown ID.
	ErrNotFound = errors.New("calllog: entry not found")

	// ErrUnknownIndex is returned by QueryByIndex for an index the store does
	// not define.
	ErrUnknownIndex = errors.New("calllog: unknown index")
)

// Store is a keyed record store with the page and url secondary indexes.
// Implementations must be safe for concurrent use.
type Store interface {
	// Add inserts e and returns the identity assigned to it.
	Add(ctx context.Context, e *Entry) (string, error)

	// Update replaces the stored record with the given id.
	Update(ctx context.Context, id string, e *Entry) error

	// QueryByIndex returns all records whose index field equals value.
	QueryByIndex(ctx context.Context, idx Index, value string) ([]*Entry, error)

	// GetAll returns every stored record.
	GetAll(ctx context.Context) ([]*Entry, error)

	// DeleteStore destroys the store and everything in it. It may return
	// ErrBlocked, which callers treat as a soft outcome.
	DeleteStore(ctx context.Context) error
}

// Initializer is implemented by stores that need one-time schema setup
// (collection, table and the two secondary indexes).
type Initializer interface {
	Init(ctx context.Context) error
}

// StoreError wraps a backend failure with the operation that produced it.
type StoreError struct {
	Op    string
	Store string
	Cause error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("calllog: %s %s: %v", e.Store, e.Op, e.Cause)
}

func (e *StoreError) Unwrap() error {
	return e.Cause
}

// ValidIndex reports whether idx is one of the defined secondary indexes.
func ValidIndex(idx Index) bool {
	return idx == IndexPage || idx == IndexURL
}
