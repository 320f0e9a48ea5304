// =============================================================================
// SEPA Direct Debit Export - HTTP Server
// =============================================================================
//
// Serves the export form endpoint and delivers stored export files.
//
// ROUTES:
//   GET  /healthz            liveness probe
//   POST /exports            run an export (form fields execution_date, purpose)
//   GET  /download?file=...  download a stored export
//
// Requests share only the read-only configuration and the export store.
//
// =============================================================================

package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/exp/slog"

	"github.com/ginjaninja78/sepa-export/internal/config"
	"github.com/ginjaninja78/sepa-export/internal/types"
	"github.com/ginjaninja78/sepa-export/pkg/utils"
)

// MemberLoader returns the member rows for an export run.
type MemberLoader func(ctx context.Context) ([]types.MemberRow, error)

// Server is the export HTTP server.
type Server struct {
	Addr string

	logger      *slog.Logger
	config      *config.Config
	store       *utils.ExportStore
	loadMembers MemberLoader
	now         func() time.Time

	srv *http.Server
	wg  sync.WaitGroup
}

// New creates a Server.
func New(logger *slog.Logger, cfg *config.Config, store *utils.ExportStore, loader MemberLoader) *Server {
	return &Server{
		logger:      logger.With(slog.String("component", "server")),
		config:      cfg,
		store:       store,
		loadMembers: loader,
		now:         time.Now,
	}
}

// Handler returns the router with all routes mounted.
func (s *Server) Handler() http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Use(requestLogger(s.logger))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("ok"))
	})
	router.Post("/exports", s.handleExport)
	router.Get("/download", s.handleDownload)

	return router
}

// Start listens on addr and serves in the background. The bound address is
// stored in s.Addr.
func (s *Server) Start(addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening tcp port: %w", err)
	}

	s.Addr = l.Addr().String()
	s.srv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		s.logger.Info("http server started", slog.String("addr", s.Addr))
		if err := s.srv.Serve(l); err != nil && err != http.ErrServerClosed {
			s.logger.Error("serving http", slog.Any("err", err))
		}
		s.logger.Info("http server stopped")
	}()

	return nil
}

// Shutdown stops the server and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	err := s.srv.Shutdown(ctx)
	s.wg.Wait()
	return err
}

// requestLogger logs one line per request.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			defer func() {
				logger.Info("http request",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.Int("status", ww.Status()),
					slog.Int("bytes", ww.BytesWritten()),
					slog.Duration("duration", time.Since(start)),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
