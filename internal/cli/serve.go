package cli

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/devops-sunny/turbofetch"
	"github.com/devops-sunny/turbofetch/calllog"
)

var serveAddr string

var logsServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the call log over HTTP",
	Long: `Serve the call log and client metrics over HTTP until interrupted.

Endpoints:
  GET    /logs[?page=/dashboard]   list entries
  GET    /logs/count[?page=...]    count endpoints for a page
  DELETE /logs                     wipe the store
  GET    /metrics                  Prometheus metrics
  GET    /healthz                  liveness`,
	Example: `  fetchctl logs serve --addr 127.0.0.1:8089`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		addr := s.cfg.Serve.Addr
		if serveAddr != "" {
			addr = serveAddr
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		srv := &http.Server{
			Addr:              addr,
			Handler:           newLogsRouter(s),
			ReadHeaderTimeout: 10 * time.Second,
		}
		return runServer(ctx, srv, s.cfg.Serve.ShutdownTimeout, s.zlog)
	},
}

func init() {
	logsServeCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default: serve.addr)")
}

// runServer serves until ctx is done, then shuts srv down within timeout.
func runServer(ctx context.Context, srv *http.Server, timeout time.Duration, log zerolog.Logger) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Msg("Call log server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		log.Info().Msg("Call log server shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func newLogsRouter(s *session) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(s.zlog))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": turbofetch.Version})
	})
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	r.Route("/logs", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, req *http.Request) {
			var (
				entries []*calllog.Entry
				err     error
			)
			if page := req.URL.Query().Get("page"); page != "" {
				entries, err = s.client.CallLogsByPage(req.Context(), page)
			} else {
				entries, err = s.client.CallLogs(req.Context())
			}
			if err != nil {
				writeError(w, err)
				return
			}
			if entries == nil {
				entries = []*calllog.Entry{}
			}
			writeJSON(w, http.StatusOK, entries)
		})

		r.Get("/count", func(w http.ResponseWriter, req *http.Request) {
			page := req.URL.Query().Get("page")
			n, err := s.client.CallCount(req.Context(), page)
			if err != nil {
				writeError(w, err)
				return
			}
			if page == "" {
				page = s.cfg.Client.Page
			}
			writeJSON(w, http.StatusOK, countResult{Page: page, Count: n})
		})

		r.Delete("/", func(w http.ResponseWriter, req *http.Request) {
			blocked, err := s.client.ClearCallLogs(req.Context())
			if err != nil {
				writeError(w, err)
				return
			}
			status := http.StatusOK
			if blocked {
				status = http.StatusAccepted
			}
			writeJSON(w, status, wipeResult{Blocked: blocked})
		})
	})

	return r
}

func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Int64("duration_ms", time.Since(start).Milliseconds()).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("http request")
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, turbofetch.ErrCallLogDisabled) {
		status = http.StatusNotFound
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
