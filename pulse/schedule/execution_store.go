package schedule

import "sync"

// DefaultHistorySize is the number of executions kept when none is configured
const DefaultHistorySize = 50

// ExecutionStore keeps the most recent executions in memory, oldest evicted
// first.
type ExecutionStore struct {
	mu    sync.RWMutex
	limit int
	execs []Execution
}

// NewExecutionStore keeps up to limit executions (limit <= 0 selects
// DefaultHistorySize).
func NewExecutionStore(limit int) *ExecutionStore {
	if limit <= 0 {
		limit = DefaultHistorySize
	}
	return &ExecutionStore{limit: limit}
}

// Record appends an execution, evicting the oldest beyond the limit
func (s *ExecutionStore) Record(exec Execution) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.execs = append(s.execs, exec)
	if over := len(s.execs) - s.limit; over > 0 {
		s.execs = append([]Execution(nil), s.execs[over:]...)
	}
}

// GetExecution returns the execution with id
func (s *ExecutionStore) GetExecution(id string) (Execution, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.execs {
		if e.ID == id {
			return e, true
		}
	}
	return Execution{}, false
}

// ListExecutions returns executions newest first, optionally filtered by job
// name and result. limit <= 0 returns all matches.
func (s *ExecutionStore) ListExecutions(jobName string, limit int, resultFilter string) []Execution {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Execution
	for i := len(s.execs) - 1; i >= 0; i-- {
		e := s.execs[i]
		if jobName != "" && e.JobName != jobName {
			continue
		}
		if resultFilter != "" && string(e.Result) != resultFilter {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// Len returns the number of stored executions
func (s *ExecutionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.execs)
}
