// Package httpapi serves the liveness and readiness probes.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/dmitrijs2005/groupware/internal/logging"
	"github.com/gorilla/mux"
)

// Pinger reports whether a backing service answers. *sql.DB satisfies it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

const (
	pingTimeout     = 2 * time.Second
	shutdownTimeout = 5 * time.Second
)

type Server struct {
	address string
	store   Pinger
	logger  logging.Logger
}

func NewServer(address string, store Pinger, l logging.Logger) *Server {
	return &Server{address: address, store: store, logger: l.With("module", "http_server")}
}

// Router returns the probe routes.
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet)
	return router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
	defer cancel()

	if err := s.store.PingContext(ctx); err != nil {
		s.logger.Warn(ctx, "readiness check failed", "error", err)
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": "store unreachable"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(response)
}

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve serves on lis until ctx is done, then shuts down, giving running
// requests a few seconds to finish.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	server := &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		s.logger.Info(ctx, "Starting HTTP server", "address", lis.Addr().String())
		if err := server.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-serverErr:
		return err
	}
}
