package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// requestsPerMinute bounds each client of the status endpoints
const requestsPerMinute = 600

// Router builds the status routes
func (s *StatusServer) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(httprate.LimitByIP(requestsPerMinute, time.Minute))

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Get("/channels", s.handleChannels)

	r.Route("/jobs", func(r chi.Router) {
		r.Get("/", s.handleJobs)
		r.Get("/{name}", s.handleJob)
		r.Get("/{name}/executions", s.handleJobExecutions)
		r.Post("/{name}/pause", s.handlePause)
		r.Post("/{name}/resume", s.handleResume)
	})

	r.Get("/executions", s.handleExecutions)
	r.Get("/executions/{id}", s.handleExecution)
	r.Get("/stats", s.handleStats)

	return r
}
