// Package server exposes an inference service over HTTP and WebSocket.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/hailam/chessnet/internal/inference"
)

// Server is the HTTP API server.
type Server struct {
	handlers *Handlers
	server   *http.Server
	log      zerolog.Logger
}

// New creates a server listening on addr.
func New(addr string, svc *inference.Service, version string, log zerolog.Logger) *Server {
	log = log.With().Str("component", "server").Logger()
	s := &Server{
		handlers: NewHandlers(svc, version, log),
		log:      log,
	}
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handlers.Health)
	mux.HandleFunc("GET /model", s.handlers.Model)
	mux.HandleFunc("POST /evaluate", s.handlers.Evaluate)
	mux.HandleFunc("GET /ws", s.handlers.WebSocket)
	return CORS(RequestID(AccessLog(s.log, mux)))
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.server.Addr).Msg("listening")
		errCh <- s.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.log.Info().Msg("shutting down")
	return s.server.Shutdown(shutdownCtx)
}
