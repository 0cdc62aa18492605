// Package server exposes the engine over HTTP.
package server

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/nikbrunner/bmsort/internal/engine"
	"github.com/nikbrunner/bmsort/internal/metrics"
)

// DefaultAddr is the listen address used when none is given.
const DefaultAddr = "127.0.0.1:8377"

// Params holds dependencies for a Server.
type Params struct {
	Addr    string
	Engine  *engine.Engine
	Metrics *metrics.Metrics
	// Gatherer backs /metrics; defaults to the global registry.
	Gatherer prometheus.Gatherer
	Logger   zerolog.Logger
	// RequestsPerSecond limits mutating requests per client; 0 disables.
	RequestsPerSecond float64
}

type Server struct {
	addr       string
	httpServer *http.Server
	engine     *engine.Engine
	metrics    *metrics.Metrics
	gatherer   prometheus.Gatherer
	log        zerolog.Logger
	limiter    *clientLimiter
}

func NewServer(params Params) *Server {
	addr := params.Addr
	if addr == "" {
		addr = DefaultAddr
	}
	m := params.Metrics
	if m == nil {
		m = metrics.New(nil)
	}
	gatherer := params.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		addr:     addr,
		engine:   params.Engine,
		metrics:  m,
		gatherer: gatherer,
		log:      params.Logger,
		limiter:  newClientLimiter(params.RequestsPerSecond),
	}
	// No WriteTimeout: analyze and the progress stream outlive any fixed
	// deadline.
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.RegisterRoutes(),
		IdleTimeout:       time.Minute,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.addr).Msg("Starting server")
	return s.httpServer.ListenAndServe()
}

// Shutdown stops accepting connections and waits for handlers to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// GracefulShutdown blocks until SIGINT or SIGTERM, shuts the server down and
// signals done.
func (s *Server) GracefulShutdown(done chan<- bool) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	s.log.Info().Msg("Shutting down gracefully, press Ctrl+C again to force")
	stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.log.Error().Err(err).Msg("Server forced to shutdown with error")
	}

	s.log.Info().Msg("Server exiting")
	done <- true
}
