// Package server exposes the scan pipeline and the SBOM archive over HTTP.
//
// Routes:
//
//	GET  /healthz            liveness and build version
//	POST /v1/scans           scan a directory below the configured root
//	GET  /v1/scans           recent scan summaries, newest first
//	GET  /v1/scans/{id}      stored SBOM document
//	POST /v1/transcribe      transcribe a posted conanfile (?type=py|txt)
//
// Errors are answered as {"code": ..., "message": ...} with the HTTP
// status derived from the error code.
package server

import (
	"context"
	stderrors "errors"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/matzehuels/cppsbom/pkg/errors"
	"github.com/matzehuels/cppsbom/pkg/pipeline"
	"github.com/matzehuels/cppsbom/pkg/store"
)

// Defaults for [Options].
const (
	DefaultAddr           = ":8080"
	DefaultRequestTimeout = 10 * time.Minute
	maxManifestBytes      = 1 << 20
)

// Options configures a Server.
type Options struct {
	// Root confines scan requests. Request paths are resolved relative to it
	// and may not escape it.
	Root string

	// Scan holds the pipeline settings applied to every scan request; Dir
	// and Format are taken from the request.
	Scan pipeline.Options

	// RequestTimeout bounds each request. Zero means DefaultRequestTimeout.
	RequestTimeout time.Duration
}

// Server handles the HTTP API.
type Server struct {
	runner *pipeline.Runner
	store  store.Store
	opts   Options
	logger *log.Logger
	router chi.Router
}

// New creates a server. A nil store keeps records in memory.
func New(runner *pipeline.Runner, st store.Store, opts Options, logger *log.Logger) *Server {
	if st == nil {
		st = store.NewMemoryStore()
	}
	if logger == nil {
		logger = log.Default()
	}
	if opts.Root == "" {
		opts.Root = "."
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}

	s := &Server{runner: runner, store: st, opts: opts, logger: logger}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.opts.RequestTimeout))

	r.Get("/healthz", s.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/scans", s.handleCreateScan)
		r.Get("/scans", s.handleListScans)
		r.Get("/scans/{id}", s.handleGetScan)
		r.Post("/transcribe", s.handleTranscribe)
	})
	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr, "root", s.opts.Root)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if stderrors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Info("shutting down")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(errors.ErrCodeInternal, err, "shutdown")
		}
		return nil
	}
}

// requestLogger logs one line per request through the charm logger.
func requestLogger(logger *log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Info("request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"bytes", ww.BytesWritten(),
					"duration", time.Since(start),
					"request_id", middleware.GetReqID(r.Context()))
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
