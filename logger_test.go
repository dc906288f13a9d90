package turbofetch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devops-sunny/turbofetch/calllog"
)

func decodeLogLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestWriterLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger(&buf, "debug")

	logger.Debug("Request completed", "method", "GET", "statusCode", 200, "duration", 1500*time.Millisecond)
	logger.Warn("Call log write failed", "error", errors.New("disk full"), "dangling")

	lines := decodeLogLines(t, &buf)
	require.Len(t, lines, 2)

	assert.Equal(t, "debug", lines[0]["level"])
	assert.Equal(t, "Request completed", lines[0]["message"])
	assert.Equal(t, "GET", lines[0]["method"])
	assert.Equal(t, float64(200), lines[0]["statusCode"])
	assert.Contains(t, lines[0], "duration")

	assert.Equal(t, "warn", lines[1]["level"])
	assert.Equal(t, "disk full", lines[1]["error"])
	assert.Contains(t, lines[1], "dangling")
	assert.Nil(t, lines[1]["dangling"])
}

func TestWriterLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger(&buf, "warn")

	logger.Debug("hidden")
	logger.Info("hidden")
	logger.Error("shown")

	lines := decodeLogLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "error", lines[0]["level"])

	buf.Reset()
	fallback := NewWriterLogger(&buf, "verbose")
	fallback.Debug("hidden")
	fallback.Info("shown")
	assert.Len(t, decodeLogLines(t, &buf), 1)
}

func TestNewZerologLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerologLogger(zerolog.New(&buf))
	logger.Info("hello", "k", "v")

	lines := decodeLogLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "v", lines[0]["k"])
}

func TestDefaultDebugConfig(t *testing.T) {
	config := DefaultDebugConfig()

	assert.False(t, config.Enabled)
	assert.True(t, config.LogRequests)
	assert.True(t, config.LogCallLog)
	assert.True(t, config.LogOffline)
	require.NotNil(t, config.RequestIDGen)
	assert.NotEqual(t, config.RequestIDGen(), config.RequestIDGen())
	assert.Len(t, config.RequestIDGen(), 36)
}

func TestClientDebugLogging(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	var buf bytes.Buffer
	client := New(
		WithBaseURL(server.URL),
		WithDebug(),
		WithLogger(NewWriterLogger(&buf, "debug")),
		WithCallLogStore(calllog.NewMemoryStore("logs")),
		WithLogging(true),
	)
	_, err := client.Get(context.Background(), "/ping")
	require.NoError(t, err)

	var messages []string
	for _, line := range decodeLogLines(t, &buf) {
		messages = append(messages, line["message"].(string))
		assert.NotEmpty(t, line["requestID"])
	}
	assert.Equal(t, []string{"Starting request", "Request completed", "Call logged"}, messages)
}

func TestClientSilentWithoutDebug(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	var buf bytes.Buffer
	client := New(WithBaseURL(server.URL), WithLogger(NewWriterLogger(&buf, "debug")))
	_, err := client.Get(context.Background(), "/ping")
	require.NoError(t, err)
	assert.Empty(t, buf.String())
}

func TestClientDebugLogsOfflinePrefetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	var buf bytes.Buffer
	debug := DefaultDebugConfig()
	debug.Enabled = true
	debug.LogRequests = false
	client := New(
		WithBaseURL(server.URL),
		WithDebugConfig(debug),
		WithLogger(NewWriterLogger(&buf, "debug")),
		WithPrefetcher(&prefetchRecorder{}),
	)
	_, err := client.Get(context.Background(), "/cached", WithOfflineCache())
	require.NoError(t, err)

	lines := decodeLogLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "Offline cache prefetch requested", lines[0]["message"])
	assert.Equal(t, server.URL+"/cached", lines[0]["url"])
}
