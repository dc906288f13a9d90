package calllog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreAddAssignsIdentity(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore("logs")

	id1, err := s.Add(ctx, &Entry{URL: "/a", Method: "GET", Page: "/p"})
	require.NoError(t, err)
	id2, err := s.Add(ctx, &Entry{URL: "/a", Method: "POST", Page: "/p"})
	require.NoError(t, err)

	assert.NotEqual(t, id1, id2)
	assert.Equal(t, "logs", s.Name())
	assert.Equal(t, 2, s.Len())
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore("logs")

	id, err := s.Add(ctx, &Entry{URL: "/a", Method: "GET", Status: StatusSuccess})
	require.NoError(t, err)

	got, err := s.QueryByIndex(ctx, IndexURL, "/a")
	require.NoError(t, err)
	require.Len(t, got, 1)
	got[0].Status = StatusFailed

	again, err := s.GetAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, id, again[0].ID)
	assert.Equal(t, StatusSuccess, again[0].Status)
}

func TestMemoryStoreUpdateKeepsIndexFields(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore("logs")

	id, err := s.Add(ctx, &Entry{URL: "/a", Method: "GET", Page: "/p"})
	require.NoError(t, err)

	require.NoError(t, s.Update(ctx, id, &Entry{URL: "/changed", Method: "GET", Page: "/q", Status: StatusFailed}))

	byURL, err := s.QueryByIndex(ctx, IndexURL, "/a")
	require.NoError(t, err)
	require.Len(t, byURL, 1)
	assert.Equal(t, StatusFailed, byURL[0].Status)
	assert.Equal(t, "/p", byURL[0].Page)

	byPage, err := s.QueryByIndex(ctx, IndexPage, "/q")
	require.NoError(t, err)
	assert.Empty(t, byPage)
}

func TestMemoryStoreUpdateUnknown(t *testing.T) {
	err := NewMemoryStore("logs").Update(context.Background(), "404", &Entry{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreUnknownIndex(t *testing.T) {
	_, err := NewMemoryStore("logs").QueryByIndex(context.Background(), Index("method"), "GET")
	assert.ErrorIs(t, err, ErrUnknownIndex)
	assert.False(t, ValidIndex(Index("method")))
	assert.True(t, ValidIndex(IndexPage))
}

func TestMemoryStoreCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewMemoryStore("logs").Add(ctx, &Entry{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStoreError(t *testing.T) {
	err := &StoreError{Op: "add", Store: "mongo", Cause: ErrNotFound}
	assert.Contains(t, err.Error(), "mongo add")
	assert.ErrorIs(t, err, ErrNotFound)
}
