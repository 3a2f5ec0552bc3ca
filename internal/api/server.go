// Package api provides the operational HTTP and gRPC endpoints of the
// autotrader: health, Prometheus metrics, the engine status snapshot and a
// live event stream.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"

	"autotrader/internal/engine"
	"autotrader/internal/events"
	"autotrader/internal/scheduler"
	"autotrader/internal/store"
)

// StatusSource produces the engine snapshot served on /v1/status.
type StatusSource interface {
	Status() engine.Status
}

// Options configures a Server. Only the addresses are required for
// ListenAndServe; every other field is optional.
type Options struct {
	HTTPAddr string
	GRPCAddr string

	// Gatherer backs /metrics. Defaults to prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer
	// Bus feeds /v1/events/stream. The route is absent when nil.
	Bus *events.Bus
	// Journal backs /v1/events.
	Journal store.EventJournal
	// Stages backs /v1/scheduler.
	Stages func() []scheduler.StageStatus

	// HealthInterval is how often the gRPC health status is re-synced with
	// the engine. Defaults to one second.
	HealthInterval time.Duration
	Logger         *slog.Logger
}

// Server hosts the HTTP and gRPC listeners.
type Server struct {
	src    StatusSource
	opts   Options
	log    *slog.Logger
	hub    *Hub
	health *health.Server

	httpSrv *http.Server
	grpcSrv *grpc.Server
}

// NewServer creates a Server reporting on src.
func NewServer(src StatusSource, opts Options) *Server {
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	if opts.HealthInterval <= 0 {
		opts.HealthInterval = time.Second
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "api")

	s := &Server{
		src:    src,
		opts:   opts,
		log:    log,
		health: health.NewServer(),
	}
	if opts.Bus != nil {
		s.hub = NewHub(opts.Bus, log)
	}
	s.grpcSrv = newGRPCServer(s.health)
	s.refreshHealth()
	return s
}

// ListenAndServe starts the HTTP and gRPC listeners and blocks until the
// context is cancelled or a listener fails. Both servers are shut down
// before it returns.
func (s *Server) ListenAndServe(ctx context.Context) error {
	httpLn, err := net.Listen("tcp", s.opts.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.opts.HTTPAddr, err)
	}
	grpcLn, err := net.Listen("tcp", s.opts.GRPCAddr)
	if err != nil {
		httpLn.Close()
		return fmt.Errorf("listening on %s: %w", s.opts.GRPCAddr, err)
	}

	s.httpSrv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errc := make(chan error, 2)
	go func() {
		if err := s.httpSrv.Serve(httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		if err := s.grpcSrv.Serve(grpcLn); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errc <- fmt.Errorf("grpc server: %w", err)
		}
	}()
	if s.hub != nil {
		go s.hub.Run(runCtx)
	}
	go s.watchHealth(runCtx)

	s.log.Info("api listening", "http", httpLn.Addr().String(), "grpc", grpcLn.Addr().String())

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errc:
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	if err := s.Shutdown(shutdownCtx); err != nil {
		s.log.Warn("api shutdown", "error", err)
	}
	return serveErr
}

// Shutdown performs a graceful shutdown of the HTTP and gRPC servers.
func (s *Server) Shutdown(ctx context.Context) error {
	s.health.Shutdown()

	var err error
	if s.httpSrv != nil {
		err = s.httpSrv.Shutdown(ctx)
	}

	done := make(chan struct{})
	go func() {
		s.grpcSrv.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.grpcSrv.Stop()
	}
	return err
}

func (s *Server) watchHealth(ctx context.Context) {
	ticker := time.NewTicker(s.opts.HealthInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.refreshHealth()
		}
	}
}
