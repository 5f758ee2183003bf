// Package schedule provides the daemon's recurring job scheduling: a
// single cooperative loop that runs due jobs in registration order, isolates
// failures per job and keeps a bounded execution history.
package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/adhocore/gronx"

	"github.com/teranos/sentinel/errors"
	"github.com/teranos/sentinel/report"
)

// Job represents a recurring unit of work bound to one channel
type Job struct {
	ID              string
	Name            string // unique; defaults to the channel name
	Channel         string
	Recurrence      Recurrence
	RunOnStart      bool // included in the eager startup run
	NextRunAt       time.Time
	LastRunAt       time.Time
	LastResult      report.Outcome
	LastError       string
	LastExecutionID string
	Runs            int
	State           string
	CreatedAt       time.Time
}

// State constants for scheduled jobs
const (
	StateActive = "active" // Job is running on schedule
	StatePaused = "paused" // Job is skipped by the loop
)

// TimeOfDay is a wall-clock time in the scheduler's location
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "HH:MM" (24h clock)
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return TimeOfDay{}, errors.NewConfigError("time of day %q must be HH:MM", s)
	}
	hour, err := strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 {
		return TimeOfDay{}, errors.NewConfigError("invalid hour in %q", s)
	}
	minute, err := strconv.Atoi(m)
	if err != nil || minute < 0 || minute > 59 {
		return TimeOfDay{}, errors.NewConfigError("invalid minute in %q", s)
	}
	return TimeOfDay{Hour: hour, Minute: minute}, nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// Recurrence is a time-of-day rule. Days > 0 runs every Days days at At;
// Days == 0 runs hourly at minute At.Minute. A non-empty Cron overrides both.
type Recurrence struct {
	Days int
	At   TimeOfDay
	Cron string
}

// Daily runs every n days at the given time of day
func Daily(n int, at TimeOfDay) Recurrence {
	if n < 1 {
		n = 1
	}
	return Recurrence{Days: n, At: at}
}

// Hourly runs every hour at the given minute
func Hourly(minute int) Recurrence {
	return Recurrence{At: TimeOfDay{Minute: minute}}
}

// Cron runs on a standard five-field cron expression, evaluated in the
// scheduler clock's location.
func Cron(expr string) (Recurrence, error) {
	r := Recurrence{Cron: strings.TrimSpace(expr)}
	return r, r.Validate()
}

// IsHourly reports whether the rule repeats every hour
func (r Recurrence) IsHourly() bool {
	return r.Days == 0 && r.Cron == ""
}

// Validate checks the rule's fields
func (r Recurrence) Validate() error {
	if r.Cron != "" {
		// gronx also accepts a sixth seconds field; ticks are minute-grained
		if len(strings.Fields(r.Cron)) != 5 || !gronx.IsValid(r.Cron) {
			return errors.NewConfigError("invalid cron expression %q", r.Cron)
		}
		return nil
	}
	if r.Days < 0 {
		return errors.NewConfigError("recurrence days must be >= 0, got %d", r.Days)
	}
	if r.At.Hour < 0 || r.At.Hour > 23 || r.At.Minute < 0 || r.At.Minute > 59 {
		return errors.NewConfigError("invalid time of day %s", r.At)
	}
	return nil
}

// First returns the first occurrence at or after now: today if the time of
// day is still ahead (or exactly now), tomorrow otherwise. The day interval
// is never applied to the first run.
func (r Recurrence) First(now time.Time) time.Time {
	if r.Cron != "" {
		return r.cronTick(now, true)
	}
	y, m, d := now.Date()
	if r.IsHourly() {
		t := time.Date(y, m, d, now.Hour(), r.At.Minute, 0, 0, now.Location())
		if t.Before(now) {
			t = t.Add(time.Hour)
		}
		return t
	}
	t := time.Date(y, m, d, r.At.Hour, r.At.Minute, 0, 0, now.Location())
	if t.Before(now) {
		t = t.AddDate(0, 0, 1)
	}
	return t
}

// Next advances from the original due time, not from completion, so
// execution latency never accumulates as drift. Occurrences at or before
// now are skipped; the count of skipped occurrences is returned.
func (r Recurrence) Next(due, now time.Time) (time.Time, int) {
	next := r.advance(due)
	skipped := 0
	for !next.After(now) {
		next = r.advance(next)
		skipped++
	}
	return next, skipped
}

func (r Recurrence) advance(t time.Time) time.Time {
	if r.Cron != "" {
		return r.cronTick(t, false)
	}
	if r.IsHourly() {
		return t.Add(time.Hour)
	}
	return t.AddDate(0, 0, r.Days)
}

// cronTick is the next cron occurrence after t (or at t when inclusive). An
// expression with no occurrence in gronx's search range parks the job a
// year out rather than making it permanently due.
func (r Recurrence) cronTick(t time.Time, inclusive bool) time.Time {
	next, err := gronx.NextTickAfter(r.Cron, t, inclusive)
	if err != nil {
		return t.AddDate(1, 0, 0)
	}
	return next
}

func (r Recurrence) String() string {
	if r.Cron != "" {
		return "cron " + r.Cron
	}
	if r.IsHourly() {
		return fmt.Sprintf("hourly at :%02d", r.At.Minute)
	}
	if r.Days == 1 {
		return "daily at " + r.At.String()
	}
	return fmt.Sprintf("every %d days at %s", r.Days, r.At)
}
