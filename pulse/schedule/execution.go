package schedule

import (
	"time"

	"github.com/teranos/sentinel/report"
)

// Execution represents a single run of a scheduled job
//
// Each time a job runs, an Execution records its timing, how it ended and
// what it produced, for the status endpoint and for debugging failures.
type Execution struct {
	// Identity
	ID      string `json:"id"` // uuid
	JobID   string `json:"job_id"`
	JobName string `json:"job_name"`
	Channel string `json:"channel"`
	Eager   bool   `json:"eager,omitempty"` // startup run, outside the recurrence

	// Timing
	DueAt      time.Time     `json:"due_at"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration_ns"`
	DurationMs int64         `json:"duration_ms"`

	// Outcome
	Result       report.Outcome `json:"result"`
	ErrorKind    string         `json:"error_kind,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	ErrorDetails []string       `json:"error_details,omitempty"`
	Records      int            `json:"records"`
	ArtifactPath string         `json:"artifact_path,omitempty"`
	ReportPath   string         `json:"report_path,omitempty"`
	NotifyError  string         `json:"notify_error,omitempty"`
}
