package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/teranos/sentinel/channel"
	"github.com/teranos/sentinel/pulse/schedule"
	"github.com/teranos/sentinel/report"
)

// HealthResponse is the /healthz body
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Uptime  string `json:"uptime"`
}

// ChannelsResponse is the /channels body
type ChannelsResponse struct {
	Channels []channel.Status `json:"channels"`
	Count    int              `json:"count"`
}

// JobResponse is one scheduled job as served over HTTP
type JobResponse struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	Channel         string         `json:"channel"`
	Recurrence      string         `json:"recurrence"`
	State           string         `json:"state"`
	RunOnStart      bool           `json:"run_on_start"`
	NextRunAt       time.Time      `json:"next_run_at"`
	LastRunAt       *time.Time     `json:"last_run_at,omitempty"`
	LastResult      report.Outcome `json:"last_result,omitempty"`
	LastError       string         `json:"last_error,omitempty"`
	LastExecutionID string         `json:"last_execution_id,omitempty"`
	Runs            int            `json:"runs"`
}

// ListJobsResponse is the /jobs body
type ListJobsResponse struct {
	Jobs  []JobResponse `json:"jobs"`
	Count int           `json:"count"`
}

// ListExecutionsResponse represents the response for listing job executions
type ListExecutionsResponse struct {
	Executions []schedule.Execution `json:"executions"`
	Count      int                  `json:"count"`
}

func toJobResponse(j schedule.Job) JobResponse {
	out := JobResponse{
		ID:              j.ID,
		Name:            j.Name,
		Channel:         j.Channel,
		Recurrence:      j.Recurrence.String(),
		State:           j.State,
		RunOnStart:      j.RunOnStart,
		NextRunAt:       j.NextRunAt,
		LastResult:      j.LastResult,
		LastError:       j.LastError,
		LastExecutionID: j.LastExecutionID,
		Runs:            j.Runs,
	}
	if !j.LastRunAt.IsZero() {
		last := j.LastRunAt
		out.LastRunAt = &last
	}
	return out
}

func (s *StatusServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: s.version,
		Uptime:  time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *StatusServer) handleChannels(w http.ResponseWriter, _ *http.Request) {
	statuses := s.channels.Statuses()
	writeJSON(w, http.StatusOK, ChannelsResponse{Channels: statuses, Count: len(statuses)})
}

func (s *StatusServer) handleJobs(w http.ResponseWriter, _ *http.Request) {
	jobs := s.scheduler.Jobs()
	out := make([]JobResponse, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, toJobResponse(j))
	}
	writeJSON(w, http.StatusOK, ListJobsResponse{Jobs: out, Count: len(out)})
}

func (s *StatusServer) handleJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	job, ok := s.scheduler.Job(name)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("job %q not found", name))
		return
	}
	writeJSON(w, http.StatusOK, toJobResponse(job))
}

// handleJobExecutions serves GET /jobs/{name}/executions?limit=50&result=failed
func (s *StatusServer) handleJobExecutions(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if _, ok := s.scheduler.Job(name); !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("job %q not found", name))
		return
	}
	s.listExecutions(w, r, name)
}

func (s *StatusServer) handleExecutions(w http.ResponseWriter, r *http.Request) {
	s.listExecutions(w, r, "")
}

func (s *StatusServer) listExecutions(w http.ResponseWriter, r *http.Request, jobName string) {
	limit := parseIntQueryParam(r, "limit", 50, 1, 1000)
	resultFilter := r.URL.Query().Get("result")

	if resultFilter != "" {
		valid := map[string]bool{
			string(report.OutcomeOK):     true,
			string(report.OutcomeEmpty):  true,
			string(report.OutcomeFailed): true,
		}
		if !valid[resultFilter] {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid result: %s", resultFilter))
			return
		}
	}

	execs := s.scheduler.ExecutionStore().ListExecutions(jobName, limit, resultFilter)
	if execs == nil {
		execs = []schedule.Execution{}
	}
	writeJSON(w, http.StatusOK, ListExecutionsResponse{Executions: execs, Count: len(execs)})
}

func (s *StatusServer) handleExecution(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	exec, ok := s.scheduler.ExecutionStore().GetExecution(id)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("execution %q not found", id))
		return
	}
	writeJSON(w, http.StatusOK, exec)
}

func (s *StatusServer) handlePause(w http.ResponseWriter, r *http.Request) {
	s.setJobState(w, r, s.scheduler.Pause)
}

func (s *StatusServer) handleResume(w http.ResponseWriter, r *http.Request) {
	s.setJobState(w, r, s.scheduler.Resume)
}

func (s *StatusServer) setJobState(w http.ResponseWriter, r *http.Request, apply func(string) error) {
	name := chi.URLParam(r, "name")
	if _, ok := s.scheduler.Job(name); !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("job %q not found", name))
		return
	}
	if err := apply(name); err != nil {
		s.logger.Warnw("Failed to change job state", "job", name, "error", err)
		writeError(w, statusFor(err), err.Error())
		return
	}
	job, _ := s.scheduler.Job(name)
	writeJSON(w, http.StatusOK, toJobResponse(job))
}

func (s *StatusServer) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.scheduler.GetStats())
}
