// Package offline is a cache-first side channel for a turbofetch client. Its
// middleware answers GET calls from a response cache, stores fresh 200
// responses, and falls back to a pre-cached offline page when the network is
// unreachable. CacheURL prefetches a URL in the background so it is available
// later without a connection.
package offline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/devops-sunny/turbofetch"
	"github.com/devops-sunny/turbofetch/internal/singleflight"
)

const (
	// DefaultCacheName names the cache when none is configured.
	DefaultCacheName = "api-cache-v1"

	// HeaderSource is set on responses served by the proxy instead of the
	// network. Its value is "cache" or "fallback".
	HeaderSource = "X-Turbofetch-Offline"

	defaultMaxEntryBytes int64 = 10 << 20
)

var (
	// ErrClosed is returned by Prefetch after Close.
	ErrClosed = errors.New("offline: proxy closed")

	// ErrPrefetchInProgress is returned by Prefetch when the URL is already
	// being fetched.
	ErrPrefetchInProgress = singleflight.ErrInProgress
)

// Proxy is the offline cache. It is safe for concurrent use.
type Proxy struct {
	cache         Cache
	client        *http.Client
	offlinePage   string
	ttl           time.Duration
	maxEntryBytes int64
	logger        turbofetch.Logger
	metrics       *turbofetch.MetricsCollector

	prefetches *singleflight.Group[struct{}]
	mu         sync.Mutex
	wg         sync.WaitGroup
	closed     atomic.Bool
	stop       context.CancelFunc
	baseCtx    context.Context
}

var _ turbofetch.Prefetcher = (*Proxy)(nil)

// Option configures a Proxy.
type Option func(*Proxy)

// WithHTTPClient sets the client used for prefetching and for Install.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Proxy) {
		p.client = c
	}
}

// WithOfflinePage sets the URL served when the network is unreachable. It
// must be cached, typically with Install, before it can be served.
func WithOfflinePage(url string) Option {
	return func(p *Proxy) {
		p.offlinePage = url
	}
}

// WithTTL sets how long responses without max-age are kept. Zero keeps them
// until cleared.
func WithTTL(ttl time.Duration) Option {
	return func(p *Proxy) {
		p.ttl = ttl
	}
}

// WithMaxEntryBytes caps the body size of a cached response.
func WithMaxEntryBytes(n int64) Option {
	return func(p *Proxy) {
		p.maxEntryBytes = n
	}
}

// WithLogger sets the logger for cache failures.
func WithLogger(l turbofetch.Logger) Option {
	return func(p *Proxy) {
		p.logger = l
	}
}

// WithMetrics records hits and misses on collector.
func WithMetrics(collector *turbofetch.MetricsCollector) Option {
	return func(p *Proxy) {
		p.metrics = collector
	}
}

// New returns a Proxy over cache. A nil cache selects a MemoryCache.
func New(cache Cache, opts ...Option) *Proxy {
	if cache == nil {
		cache = NewMemoryCache()
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Proxy{
		cache:         cache,
		client:        &http.Client{Timeout: 30 * time.Second},
		maxEntryBytes: defaultMaxEntryBytes,
		logger:        turbofetch.NewConsoleLogger("warn"),
		prefetches:    singleflight.New[struct{}](),
		stop:          cancel,
		baseCtx:       ctx,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Cache returns the backing cache.
func (p *Proxy) Cache() Cache {
	return p.cache
}

// Install fetches and stores the offline page.
func (p *Proxy) Install(ctx context.Context) error {
	if p.offlinePage == "" {
		return nil
	}
	if err := p.Prefetch(ctx, p.offlinePage); err != nil {
		return fmt.Errorf("offline: install offline page: %w", err)
	}
	return nil
}

// Middleware returns the cache-first transport middleware. Only GET requests
// are served from or stored to the cache; a request carrying
// Cache-Control: no-cache or no-store skips the lookup.
func (p *Proxy) Middleware() turbofetch.Middleware {
	return func(req *http.Request, next turbofetch.RoundTripper) (*http.Response, error) {
		if req.Method != http.MethodGet {
			return next.RoundTrip(req)
		}
		ctx := req.Context()
		key := req.URL.String()

		reqDirectives := parseCacheControl(req.Header.Get("Cache-Control"))
		if !reqDirectives.NoCache && !reqDirectives.NoStore {
			entry, err := p.cache.Get(ctx, key)
			if err == nil {
				p.metrics.RecordOfflineHit("cache")
				return entry.response(req, "cache"), nil
			}
			if !errors.Is(err, ErrNotCached) {
				p.logger.Warn("Offline cache lookup failed", "url", key, "error", err)
			}
		}
		p.metrics.RecordOfflineMiss(req.Method)

		resp, err := next.RoundTrip(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			if fallback := p.fallback(ctx); fallback != nil {
				p.logger.Warn("Network unreachable, serving offline page", "url", key, "error", err)
				p.metrics.RecordOfflineHit("fallback")
				return fallback.response(req, "fallback"), nil
			}
			return nil, err
		}

		if resp.StatusCode == http.StatusOK && !reqDirectives.NoStore {
			p.store(ctx, key, resp)
		}
		return resp, nil
	}
}

// store caches a 200 response and restores its body for the caller.
func (p *Proxy) store(ctx context.Context, key string, resp *http.Response) {
	ttl, ok := ttlFor(resp.Header.Get("Cache-Control"), p.ttl)
	if !ok {
		return
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, p.maxEntryBytes+1))
	if err != nil || int64(len(body)) > p.maxEntryBytes {
		// Not cacheable; hand back what was read followed by the unread rest.
		resp.Body = replayBody{
			Reader: io.MultiReader(bytes.NewReader(body), resp.Body),
			Closer: resp.Body,
		}
		return
	}
	_ = resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(body))

	entry := &Entry{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       body,
		StoredAt:   time.Now(),
	}
	if err := p.cache.Set(context.WithoutCancel(ctx), key, entry, ttl); err != nil {
		p.logger.Warn("Failed to cache response", "url", key, "error", err)
	}
}

type replayBody struct {
	io.Reader
	io.Closer
}

func (p *Proxy) fallback(ctx context.Context) *Entry {
	if p.offlinePage == "" {
		return nil
	}
	entry, err := p.cache.Get(context.WithoutCancel(ctx), p.offlinePage)
	if err != nil {
		return nil
	}
	return entry
}

// CacheURL prefetches url in the background. Concurrent requests for the same
// URL share one fetch. It never blocks the caller.
func (p *Proxy) CacheURL(_ context.Context, url string) {
	p.mu.Lock()
	if p.closed.Load() {
		p.mu.Unlock()
		return
	}
	p.wg.Add(1)
	p.mu.Unlock()
	go func() {
		defer p.wg.Done()
		if err := p.Prefetch(p.baseCtx, url); err != nil && !errors.Is(err, ErrPrefetchInProgress) {
			p.logger.Warn("Failed to cache URL", "url", url, "error", err)
		}
	}()
}

// Prefetch fetches url and stores a 200 response. If a prefetch for url is
// already running it returns ErrPrefetchInProgress without waiting.
func (p *Proxy) Prefetch(ctx context.Context, url string) error {
	if p.closed.Load() {
		return ErrClosed
	}
	_, err, _ := p.prefetches.TryDo(url, func() (struct{}, error) {
		return struct{}{}, p.fetchAndStore(ctx, url)
	})
	return err
}

func (p *Proxy) fetchAndStore(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	p.store(ctx, url, resp)
	return nil
}

// Wait blocks until every background prefetch has finished.
func (p *Proxy) Wait() {
	p.wg.Wait()
}

// Close stops accepting prefetches, cancels the running ones and waits for
// them to return.
func (p *Proxy) Close() error {
	p.mu.Lock()
	if !p.closed.CompareAndSwap(false, true) {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()
	p.stop()
	p.wg.Wait()
	return nil
}

func (e *Entry) response(req *http.Request, source string) *http.Response {
	header := e.Header.Clone()
	if header == nil {
		header = make(http.Header)
	}
	header.Set(HeaderSource, source)
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", e.StatusCode, http.StatusText(e.StatusCode)),
		StatusCode:    e.StatusCode,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(e.Body)),
		ContentLength: int64(len(e.Body)),
		Request:       req,
	}
}

// IsFromCache reports whether a response with header was served by the proxy.
func IsFromCache(header http.Header) bool {
	return strings.TrimSpace(header.Get(HeaderSource)) != ""
}
