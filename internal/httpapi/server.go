// Package httpapi exposes the dashboard over HTTP.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// ShutdownTimeout bounds how long Run waits for in-flight requests.
const ShutdownTimeout = 5 * time.Second

// NewRouter wires the API routes and middleware.
func NewRouter(log *slog.Logger, svc Service) http.Handler {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(requestLogger(log))
	router.Use(middleware.Recoverer)

	router.Get("/healthz", healthz)
	router.Route("/api", func(r chi.Router) {
		r.Get("/pulls", listPulls(log, svc))
		r.Post("/refresh", refresh(log, svc))
		r.Get("/cache/stats", cacheStats(log, svc))
		r.Delete("/cache", clearCache(log, svc))
	})

	return router
}

// Config holds listener settings.
type Config struct {
	Address     string
	Timeout     time.Duration
	IdleTimeout time.Duration
}

// Server serves the API until its context is cancelled.
type Server struct {
	cfg Config
	log *slog.Logger
	srv *http.Server
}

// NewServer creates a Server for svc.
func NewServer(cfg Config, log *slog.Logger, svc Service) *Server {
	return &Server{
		cfg: cfg,
		log: log,
		srv: &http.Server{
			Addr:              cfg.Address,
			Handler:           NewRouter(log, svc),
			ReadHeaderTimeout: cfg.Timeout,
			IdleTimeout:       cfg.IdleTimeout,
		},
	}
}

// Run listens on the configured address and blocks until ctx is cancelled
// or the listener fails. On cancellation in-flight requests get
// ShutdownTimeout to finish.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run over an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("starting server", slog.String("address", ln.Addr().String()))
		errCh <- s.srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ShutdownTimeout)
	defer cancel()

	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		s.log.Error("server shutdown failed", slog.Any("err", err))
		return err
	}

	s.log.Info("server exited gracefully")
	return nil
}
