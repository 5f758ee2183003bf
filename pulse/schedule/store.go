package schedule

import (
	"sync"
	"time"

	"github.com/teranos/sentinel/errors"
)

// Store holds the scheduler's job list in registration order. Only the
// scheduler mutates it; the lock lets the status endpoint read snapshots
// while the loop runs.
type Store struct {
	mu   sync.RWMutex
	jobs []*Job
}

// NewStore creates an empty job store
func NewStore() *Store {
	return &Store{}
}

// CreateJob appends job. Names are unique.
func (s *Store) CreateJob(job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, j := range s.jobs {
		if j.Name == job.Name {
			return errors.NewInvalidRequestError("job %q already scheduled", job.Name)
		}
	}
	s.jobs = append(s.jobs, job)
	return nil
}

// GetJob returns a copy of the named job
func (s *Store) GetJob(name string) (Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, j := range s.jobs {
		if j.Name == name {
			return *j, true
		}
	}
	return Job{}, false
}

// ListJobsDue returns active jobs with NextRunAt at or before now, in
// registration order.
func (s *Store) ListJobsDue(now time.Time) []*Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var due []*Job
	for _, j := range s.jobs {
		if j.State == StateActive && !j.NextRunAt.After(now) {
			due = append(due, j)
		}
	}
	return due
}

// ListEagerJobs returns active jobs flagged for the startup run
func (s *Store) ListEagerJobs() []*Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Job
	for _, j := range s.jobs {
		if j.State == StateActive && j.RunOnStart {
			out = append(out, j)
		}
	}
	return out
}

// ListAllScheduledJobs returns copies of every job in registration order
func (s *Store) ListAllScheduledJobs() []Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, *j)
	}
	return out
}

// UpdateJobState pauses or resumes the named job
func (s *Store) UpdateJobState(name, state string) error {
	if state != StateActive && state != StatePaused {
		return errors.NewInvalidRequestError("invalid job state %q", state)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, j := range s.jobs {
		if j.Name == name {
			j.State = state
			return nil
		}
	}
	return errors.NewInvalidRequestError("job %q not found", name)
}

// UpdateJobAfterExecution records the outcome of a run. A zero nextRun
// leaves the schedule unchanged (eager runs).
func (s *Store) UpdateJobAfterExecution(job *Job, exec Execution, nextRun time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job.LastRunAt = exec.StartedAt
	job.LastResult = exec.Result
	job.LastError = exec.ErrorMessage
	job.LastExecutionID = exec.ID
	job.Runs++
	if !nextRun.IsZero() {
		job.NextRunAt = nextRun
	}
}

// GetNextScheduledJob returns the active job due soonest
func (s *Store) GetNextScheduledJob() (Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var next *Job
	for _, j := range s.jobs {
		if j.State != StateActive {
			continue
		}
		if next == nil || j.NextRunAt.Before(next.NextRunAt) {
			next = j
		}
	}
	if next == nil {
		return Job{}, false
	}
	return *next, true
}
