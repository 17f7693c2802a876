// Package server exposes the monitoring API over HTTP: health_check,
// status, token, restart_failed_jobs and amount_check under
// /api/v1/monitoring, plus /metrics and an unauthenticated /health probe.
package server

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/teranos/pulsedesk/auth"
	"github.com/teranos/pulsedesk/errors"
	"github.com/teranos/pulsedesk/logger"
	"github.com/teranos/pulsedesk/monitor"
	"github.com/teranos/pulsedesk/pulse/async"
)

// HTTP server timeouts
const (
	readHeaderTimeout = 5 * time.Second
	writeTimeout      = 30 * time.Second
	shutdownTimeout   = 10 * time.Second
)

// Deps are the collaborators the handlers call into
type Deps struct {
	Auth     *auth.Authenticator
	Health   *monitor.HealthAggregator
	Amount   *monitor.AmountChecker
	Status   *monitor.StatusCollector
	Queue    *async.Queue
	Metrics  *monitor.Metrics    // nil disables observation
	Gatherer prometheus.Gatherer // nil hides /metrics
}

// Config configures listening and rate limiting
type Config struct {
	Bind              string
	Port              int
	RequestsPerSecond float64 // 0 = unlimited
	Burst             int
}

// Server is the monitoring HTTP server
type Server struct {
	deps    Deps
	cfg     Config
	limiter atomic.Pointer[rate.Limiter] // nil = unlimited
	log     *zap.SugaredLogger
	now     func() time.Time

	httpServer *http.Server
}

// New creates a server. Call Handler for tests or ListenAndServe to run it.
func New(deps Deps, cfg Config, log *zap.SugaredLogger) (*Server, error) {
	if deps.Auth == nil || deps.Health == nil {
		return nil, errors.NewConfigurationError("server needs an authenticator and a health aggregator")
	}
	if log == nil {
		log = logger.ComponentLogger("server")
	}
	s := &Server{deps: deps, cfg: cfg, log: log, now: time.Now}
	s.SetRateLimit(cfg.RequestsPerSecond, cfg.Burst)
	return s, nil
}

// SetRateLimit replaces the token bucket of the monitoring endpoints
// (config reload). rps <= 0 disables limiting.
func (s *Server) SetRateLimit(rps float64, burst int) {
	if rps <= 0 {
		s.limiter.Store(nil)
		return
	}
	if burst < 1 {
		burst = 1
	}
	s.limiter.Store(rate.NewLimiter(rate.Limit(rps), burst))
}

// Addr returns the listen address
func (s *Server) Addr() string {
	return net.JoinHostPort(s.cfg.Bind, strconv.Itoa(s.cfg.Port))
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.Addr(),
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Infow("Monitoring server listening", logger.FieldAddress, s.httpServer.Addr)
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrapf(err, "failed to listen on %s", s.httpServer.Addr)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.log.Infow("Monitoring server shutting down")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "failed to shut down monitoring server")
	}
	return nil
}
