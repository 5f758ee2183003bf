package schedule

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teranos/sentinel/channel"
	"github.com/teranos/sentinel/errors"
	"github.com/teranos/sentinel/logger"
	"github.com/teranos/sentinel/report"
)

// Runner executes one job's pipeline. *report.Pipeline implements it.
type Runner interface {
	Run(ctx context.Context, name string, req channel.FetchRequest) report.Result
}

// RunnerFunc adapts a function to Runner
type RunnerFunc func(ctx context.Context, name string, req channel.FetchRequest) report.Result

func (f RunnerFunc) Run(ctx context.Context, name string, req channel.FetchRequest) report.Result {
	return f(ctx, name, req)
}

// Config contains configuration for the scheduler
type Config struct {
	Interval    time.Duration    // How often to check for due jobs (default: 1 second)
	HistorySize int              // Executions kept in memory (default: 50)
	Now         func() time.Time // default time.Now
	Metrics     *Metrics         // nil = no metrics
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Interval:    1 * time.Second,
		HistorySize: DefaultHistorySize,
	}
}

// Scheduler owns the job list and runs due jobs from a single loop. Jobs due
// in the same tick run sequentially in registration order, and a job never
// runs concurrently with itself.
type Scheduler struct {
	store      *Store
	executions *ExecutionStore
	runner     Runner
	metrics    *Metrics
	interval   time.Duration
	now        func() time.Time
	logger     *zap.SugaredLogger

	shutdown atomic.Bool

	mu              sync.Mutex
	lastTickAt      time.Time
	ticksSinceStart int64
}

// New creates a scheduler that runs jobs through runner
func New(runner Runner, cfg Config, log *zap.SugaredLogger) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Scheduler{
		store:      NewStore(),
		executions: NewExecutionStore(cfg.HistorySize),
		runner:     runner,
		metrics:    cfg.Metrics,
		interval:   cfg.Interval,
		now:        cfg.Now,
		logger:     logger.OrNop(log),
	}
}

// Add registers a job. Name defaults to the channel; a zero NextRunAt is set
// to the recurrence's first occurrence.
func (s *Scheduler) Add(job Job) (Job, error) {
	if job.Channel == "" {
		return Job{}, errors.NewInvalidRequestError("job requires a channel")
	}
	if err := job.Recurrence.Validate(); err != nil {
		return Job{}, err
	}
	if job.Name == "" {
		job.Name = job.Channel
	}
	now := s.now()
	job.ID = uuid.NewString()
	job.State = StateActive
	job.CreatedAt = now
	if job.NextRunAt.IsZero() {
		job.NextRunAt = job.Recurrence.First(now)
	}

	j := job
	if err := s.store.CreateJob(&j); err != nil {
		return Job{}, err
	}
	s.logger.Infow("Job scheduled",
		logger.FieldJobID, j.ID,
		"job", j.Name,
		logger.FieldChannel, j.Channel,
		"recurrence", j.Recurrence.String(),
		logger.FieldNextRunAt, j.NextRunAt.Format(time.RFC3339),
	)
	return j, nil
}

// Pause stops a job from running until Resume
func (s *Scheduler) Pause(name string) error {
	return s.store.UpdateJobState(name, StatePaused)
}

// Resume reactivates a paused job
func (s *Scheduler) Resume(name string) error {
	return s.store.UpdateJobState(name, StateActive)
}

// Jobs returns a snapshot of the job list in registration order
func (s *Scheduler) Jobs() []Job {
	return s.store.ListAllScheduledJobs()
}

// Job returns a snapshot of the named job
func (s *Scheduler) Job(name string) (Job, bool) {
	return s.store.GetJob(name)
}

// Executions returns recorded executions, newest first
func (s *Scheduler) Executions() []Execution {
	return s.executions.ListExecutions("", 0, "")
}

// ExecutionStore exposes the execution history for filtered queries
func (s *Scheduler) ExecutionStore() *ExecutionStore {
	return s.executions
}

// Shutdown sets the shutdown flag. The loop exits at its next check, after
// the in-flight job completes.
func (s *Scheduler) Shutdown() {
	if s.shutdown.CompareAndSwap(false, true) {
		s.logger.Infow("Scheduler shutdown requested")
	}
}

// ShuttingDown reports whether Shutdown was called
func (s *Scheduler) ShuttingDown() bool {
	return s.shutdown.Load()
}

// RunEager executes every job flagged RunOnStart once, immediately. The
// schedule only moves when its next occurrence was already due at start,
// so a daemon started exactly at a job's time of day runs it once.
// Returns the number of jobs run.
func (s *Scheduler) RunEager(ctx context.Context) int {
	jobs := s.store.ListEagerJobs()
	if len(jobs) > 0 {
		s.logger.Infow("Running startup jobs", logger.FieldCount, len(jobs))
	}
	ran := 0
	for _, job := range jobs {
		if s.stopped(ctx) {
			break
		}
		s.execute(ctx, job, s.now(), true)
		ran++
	}
	return ran
}

// Tick runs every job due at now, in registration order, and reschedules
// each from its due time. It returns the number of jobs executed.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) int {
	s.mu.Lock()
	s.lastTickAt = now
	s.ticksSinceStart++
	s.mu.Unlock()

	ran := 0
	for _, job := range s.store.ListJobsDue(now) {
		// Cancellation is cooperative, checked between jobs only
		if s.stopped(ctx) {
			break
		}
		s.execute(ctx, job, job.NextRunAt, false)
		ran++
	}
	return ran
}

// Run performs the eager startup run, then ticks every interval until ctx is
// cancelled or Shutdown is called.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Infow("Scheduler started", "interval", s.interval, "jobs", len(s.store.ListAllScheduledJobs()))
	s.RunEager(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if s.shutdown.Load() {
			s.logger.Infow("Scheduler stopped")
			return nil
		}
		select {
		case <-ctx.Done():
			s.logger.Infow("Scheduler stopped", "reason", ctx.Err())
			return nil
		case <-ticker.C:
			s.Tick(ctx, s.now())
		}
	}
}

func (s *Scheduler) stopped(ctx context.Context) bool {
	return s.shutdown.Load() || ctx.Err() != nil
}

// execute runs one job under the guard and records the execution. The next
// occurrence is scheduled the same way whatever the outcome.
func (s *Scheduler) execute(ctx context.Context, job *Job, due time.Time, eager bool) {
	start := s.now()
	exec := Execution{
		ID:        uuid.NewString(),
		JobID:     job.ID,
		JobName:   job.Name,
		Channel:   job.Channel,
		Eager:     eager,
		DueAt:     due,
		StartedAt: start,
	}
	ctx = logger.WithChannel(logger.WithExecutionID(ctx, exec.ID), job.Channel)
	log := logger.FromContext(ctx, s.logger)

	log.Infow("Executing job", "job", job.Name, "eager", eager)

	res := s.guard(ctx, job)

	exec.Duration = s.now().Sub(start)
	if exec.Duration < 0 {
		exec.Duration = 0
	}
	exec.DurationMs = exec.Duration.Milliseconds()
	exec.Result = res.Outcome
	exec.Records = res.Records
	exec.ArtifactPath = res.Artifact.Path
	exec.ReportPath = res.ReportPath
	if res.NotifyErr != nil {
		exec.NotifyError = res.NotifyErr.Error()
	}
	if res.Err != nil {
		exec.ErrorKind = string(errors.KindOf(res.Err))
		exec.ErrorMessage = res.Err.Error()
		exec.ErrorDetails = errors.GetAllDetails(res.Err)
	}

	// An eager run only consumes an occurrence that was already due
	var next time.Time
	if !eager || !job.NextRunAt.After(start) {
		var skipped int
		next, skipped = job.Recurrence.Next(job.NextRunAt, s.now())
		if skipped > 0 {
			log.Warnw("Missed occurrences collapsed into one run",
				"job", job.Name,
				"skipped", skipped,
			)
		}
	}
	s.store.UpdateJobAfterExecution(job, exec, next)
	s.executions.Record(exec)
	s.metrics.Observe(exec)

	fields := []interface{}{
		"job", job.Name,
		logger.FieldResult, exec.Result,
		logger.FieldCount, exec.Records,
		logger.FieldDurationMS, exec.DurationMs,
	}
	if !next.IsZero() {
		fields = append(fields, logger.FieldNextRunAt, next.Format(time.RFC3339))
	}
	if res.Err != nil {
		fields = append(fields, logger.FieldErrorType, exec.ErrorKind, logger.FieldError, res.Err)
		log.Errorw("Job failed", fields...)
		return
	}
	log.Infow("Job finished", fields...)
}

// guard converts a panic inside a job into a failed result so one job can
// never take down the loop.
func (s *Scheduler) guard(ctx context.Context, job *Job) (res report.Result) {
	defer func() {
		if r := recover(); r != nil {
			res = report.Result{
				Channel: job.Channel,
				Outcome: report.OutcomeFailed,
				Err:     errors.Newf("job %s panicked: %v", job.Name, r),
			}
		}
	}()
	res = s.runner.Run(ctx, job.Channel, channel.FetchRequest{})
	if res.Outcome == "" {
		res.Outcome = report.OutcomeFailed
		if res.Err == nil {
			res.Err = errors.New("runner returned no outcome")
		}
	}
	return res
}

// GetStats returns scheduler statistics
func (s *Scheduler) GetStats() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := map[string]interface{}{
		"last_tick_at":      s.lastTickAt,
		"ticks_since_start": s.ticksSinceStart,
		"interval":          s.interval.String(),
		"shutting_down":     s.shutdown.Load(),
	}
	if next, ok := s.store.GetNextScheduledJob(); ok {
		stats["next_job"] = next.Name
		stats["next_run_at"] = next.NextRunAt
		stats["next_in"] = fmt.Sprint(next.NextRunAt.Sub(s.now()).Round(time.Second))
	}
	return stats
}
