//go:build integration

package offline

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

func startRedis(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Skipf("redis container unavailable: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379/tcp")
	require.NoError(t, err)
	return fmt.Sprintf("%s:%s", host, port.Port())
}

func TestRedisCacheRoundTrip(t *testing.T) {
	addr := startRedis(t)
	ctx := context.Background()

	cache, err := DialRedis(ctx, addr, "", 0, "test")
	require.NoError(t, err)
	defer cache.Close()

	_, err = cache.Get(ctx, "https://api.example.com/users")
	assert.ErrorIs(t, err, ErrNotCached)

	entry := &Entry{
		StatusCode: 200,
		Header:     http.Header{"Content-Type": {"application/json"}},
		Body:       []byte(`[{"id":1}]`),
		StoredAt:   time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, cache.Set(ctx, "https://api.example.com/users", entry, time.Minute))

	got, err := cache.Get(ctx, "https://api.example.com/users")
	require.NoError(t, err)
	assert.Equal(t, entry.StatusCode, got.StatusCode)
	assert.Equal(t, entry.Body, got.Body)
	assert.Equal(t, "application/json", got.Header.Get("Content-Type"))
	assert.True(t, entry.StoredAt.Equal(got.StoredAt))

	require.NoError(t, cache.Delete(ctx, "https://api.example.com/users"))
	_, err = cache.Get(ctx, "https://api.example.com/users")
	assert.ErrorIs(t, err, ErrNotCached)
}

func TestRedisCacheClearIsScopedToName(t *testing.T) {
	addr := startRedis(t)
	ctx := context.Background()

	first, err := DialRedis(ctx, addr, "", 0, "first")
	require.NoError(t, err)
	defer first.Close()
	second, err := DialRedis(ctx, addr, "", 0, "second")
	require.NoError(t, err)
	defer second.Close()

	for i := 0; i < 250; i++ {
		require.NoError(t, first.Set(ctx, fmt.Sprintf("k%d", i), &Entry{StatusCode: 200}, 0))
	}
	require.NoError(t, second.Set(ctx, "k0", &Entry{StatusCode: 200}, 0))

	require.NoError(t, first.Clear(ctx))

	_, err = first.Get(ctx, "k0")
	assert.ErrorIs(t, err, ErrNotCached)
	_, err = second.Get(ctx, "k0")
	assert.NoError(t, err)
}

func TestDialRedisUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := DialRedis(ctx, "127.0.0.1:1", "", 0, "")
	assert.Error(t, err)
}
