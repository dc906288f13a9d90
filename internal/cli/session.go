package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/devops-sunny/turbofetch"
	"github.com/devops-sunny/turbofetch/calllog"
	"github.com/devops-sunny/turbofetch/calllog/mongostore"
	"github.com/devops-sunny/turbofetch/calllog/pgstore"
	"github.com/devops-sunny/turbofetch/internal/config"
	"github.com/devops-sunny/turbofetch/offline"
)

// Overridable in tests.
var (
	openStore        = openCallLogStore
	openOfflineCache = openCache
)

// session holds everything a command needs, built from one Config.
type session struct {
	cfg      *config.Config
	zlog     zerolog.Logger
	logger   *turbofetch.ZerologLogger
	registry *prometheus.Registry
	metrics  *turbofetch.MetricsCollector
	log      *calllog.Log
	proxy    *offline.Proxy
	client   *turbofetch.Client

	closers []func() error
}

func newSession(ctx context.Context, cfg *config.Config, stderr io.Writer) (_ *session, err error) {
	zlog, logCloser, err := newLogger(cfg.Log, stderr)
	if err != nil {
		return nil, fmt.Errorf("setup logger: %w", err)
	}

	rt := &session{
		cfg:      cfg,
		zlog:     zlog,
		logger:   turbofetch.NewZerologLogger(zlog),
		registry: prometheus.NewRegistry(),
		closers:  []func() error{logCloser.Close},
	}
	defer func() {
		if err != nil {
			_ = rt.Close()
		}
	}()
	rt.metrics = turbofetch.NewMetricsCollectorWithRegistry(rt.registry)

	opts := []turbofetch.Option{
		turbofetch.WithBaseURL(cfg.Client.BaseURL),
		turbofetch.WithTimeout(cfg.Client.Timeout),
		turbofetch.WithMaxBodyBytes(cfg.Client.MaxBodyBytes),
		turbofetch.WithDefaultPage(cfg.Client.Page),
		turbofetch.WithLogging(cfg.Client.Logging),
		turbofetch.WithLogger(rt.logger),
		turbofetch.WithMetricsCollector(rt.metrics),
		turbofetch.WithRequestInterceptor(
			turbofetch.RequestIDInterceptor("X-Request-ID"),
			turbofetch.TracePropagationInterceptor(),
		),
	}
	for k, v := range cfg.Client.Headers {
		opts = append(opts, turbofetch.WithDefaultHeader(k, v))
	}
	if cfg.Client.UserAgent != "" {
		opts = append(opts, turbofetch.WithUserAgent(cfg.Client.UserAgent))
	}
	if cfg.Client.Debug {
		opts = append(opts, turbofetch.WithDebug())
	}

	if cfg.CallLog.Backend != config.BackendNone {
		store, closeStore, err := openStore(ctx, cfg.CallLog)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, closeStore)
		rt.log = calllog.New(store)
		opts = append(opts, turbofetch.WithCallLog(rt.log))
	}

	if cfg.Offline.Enabled {
		cache, closeCache, err := openOfflineCache(ctx, cfg.Offline)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, closeCache)
		rt.proxy = offline.New(cache,
			offline.WithOfflinePage(cfg.Offline.Page),
			offline.WithTTL(cfg.Offline.TTL),
			offline.WithLogger(rt.logger),
			offline.WithMetrics(rt.metrics),
		)
		rt.closers = append(rt.closers, rt.proxy.Close)
		if err := rt.proxy.Install(ctx); err != nil {
			rt.zlog.Warn().Err(err).Str("page", cfg.Offline.Page).Msg("Offline page not installed")
		}
		opts = append(opts, turbofetch.WithMiddleware(rt.proxy.Middleware()), turbofetch.WithPrefetcher(rt.proxy))
	}

	rt.client = turbofetch.New(opts...)
	if err := rt.client.ValidationError(); err != nil {
		return nil, err
	}
	return rt, nil
}

// Close releases resources in reverse order of acquisition.
func (rt *session) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}

func openCallLogStore(ctx context.Context, cfg config.CallLogConfig) (calllog.Store, func() error, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return calllog.NewMemoryStore(cfg.Name), func() error { return nil }, nil
	case config.BackendMongo:
		store, err := mongostore.Connect(ctx, mongostore.Config{
			URI:        cfg.Mongo.URI,
			Database:   cfg.Mongo.Database,
			Collection: cfg.Mongo.Collection,
		})
		if err != nil {
			return nil, nil, err
		}
		return store, func() error { return store.Close(context.Background()) }, nil
	case config.BackendPostgres:
		store, err := pgstore.Open(ctx, pgstore.Config{
			DSN:         cfg.Postgres.DSN,
			Table:       cfg.Postgres.Table,
			LockTimeout: cfg.Postgres.LockTimeout,
		})
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown call log backend %q", cfg.Backend)
	}
}

func openCache(ctx context.Context, cfg config.OfflineConfig) (offline.Cache, func() error, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return offline.NewMemoryCache(), func() error { return nil }, nil
	case config.BackendRedis:
		cache, err := offline.DialRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Name)
		if err != nil {
			return nil, nil, err
		}
		return cache, cache.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown offline cache backend %q", cfg.Backend)
	}
}

func openSession(cmd *cobra.Command) (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return newSession(cmd.Context(), cfg, cmd.ErrOrStderr())
}
