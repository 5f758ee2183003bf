// Package server exposes the daemon's status over HTTP: health, Prometheus
// metrics, registered channels, scheduled jobs and their execution history.
package server

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/teranos/sentinel/channel"
	"github.com/teranos/sentinel/errors"
	"github.com/teranos/sentinel/logger"
	"github.com/teranos/sentinel/pulse/schedule"
)

// Channels is the part of the registry the status server reads
type Channels interface {
	Statuses() []channel.Status
}

// Scheduler is the part of the scheduler the status server reads and controls
type Scheduler interface {
	Jobs() []schedule.Job
	Job(name string) (schedule.Job, bool)
	ExecutionStore() *schedule.ExecutionStore
	Pause(name string) error
	Resume(name string) error
	GetStats() map[string]interface{}
}

// StatusServer serves the status endpoints
type StatusServer struct {
	channels  Channels
	scheduler Scheduler
	gatherer  prometheus.Gatherer
	version   string
	started   time.Time
	logger    *zap.SugaredLogger

	mu       sync.Mutex
	srv      *http.Server
	listener net.Listener
}

// Options configures a StatusServer
type Options struct {
	Channels  Channels
	Scheduler Scheduler
	Gatherer  prometheus.Gatherer // nil = prometheus.DefaultGatherer
	Version   string
	Logger    *zap.SugaredLogger
}

// New creates a status server
func New(opts Options) *StatusServer {
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	return &StatusServer{
		channels:  opts.Channels,
		scheduler: opts.Scheduler,
		gatherer:  opts.Gatherer,
		version:   opts.Version,
		started:   time.Now(),
		logger:    logger.OrNop(opts.Logger),
	}
}

// Start listens on addr and serves in the background. The bound address is
// returned, so ":0" can be used in tests.
func (s *StatusServer) Start(addr string) (string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", errors.Wrapf(err, "listen on %s", addr)
	}

	srv := &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.mu.Lock()
	s.srv = srv
	s.listener = ln
	s.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Errorw("Status server stopped", logger.FieldError, err)
		}
	}()

	s.logger.Infow("Status server listening", "addr", ln.Addr().String())
	return ln.Addr().String(), nil
}

// Stop gracefully shuts the server down
func (s *StatusServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.srv = nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	s.logger.Infow("Initiating status server shutdown")
	if err := srv.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "shutdown status server")
	}
	return nil
}
