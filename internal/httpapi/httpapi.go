// Package httpapi exposes the pipeline orchestration surface over HTTP:
// method/parameter discovery, run definition CRUD, file attachment,
// commit-to-queue, status and result retrieval, plus the small set of
// ops endpoints (health, client config, metrics) a deployed instance
// needs.
package httpapi

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/metakeggweb/mekeweserver/internal/config"
	"github.com/metakeggweb/mekeweserver/internal/metrics"
	"github.com/metakeggweb/mekeweserver/internal/statemanager"
	"github.com/metakeggweb/mekeweserver/internal/store"
)

// API holds the dependencies every handler needs.
type API struct {
	sm      *statemanager.StateManager
	store   store.Store
	cfg     config.Config
	metrics *metrics.Metrics
	log     *log.Logger
}

func newAPI(sm *statemanager.StateManager, st store.Store, cfg config.Config, m *metrics.Metrics, logger *log.Logger) *API {
	return &API{sm: sm, store: st, cfg: cfg, metrics: m, log: logger}
}

// Server wraps an http.Server bound to an API mux, with the same
// signal-driven graceful shutdown shape used throughout the module.
type Server struct {
	api     *API
	httpSrv *http.Server
	baseCtx context.Context
	cancel  context.CancelFunc
	log     *log.Logger
}

// New builds a Server ready to ListenAndServe on cfg.ListenAddr.
func New(sm *statemanager.StateManager, st store.Store, cfg config.Config, m *metrics.Metrics, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(os.Stderr, "[mekeweserver] ", log.LstdFlags)
	}
	ctx, cancel := context.WithCancel(context.Background())
	api := newAPI(sm, st, cfg, m, logger)

	s := &Server{api: api, baseCtx: ctx, cancel: cancel, log: logger}
	s.httpSrv = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      originProtect(api.routes()),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // result downloads can be large
		IdleTimeout:  120 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}
	return s
}

// ListenAndServe starts the server and blocks until a shutdown signal
// or an unrecoverable listener error.
func (s *Server) ListenAndServe() error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		s.log.Printf("received %s, shutting down...", sig)
		s.Shutdown()
	}()

	s.log.Printf("listening on %s", s.httpSrv.Addr)
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests for up to 15 seconds, then cancels
// the server's base context.
func (s *Server) Shutdown() {
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	_ = s.httpSrv.Shutdown(shutdownCtx)
	s.cancel()
}
