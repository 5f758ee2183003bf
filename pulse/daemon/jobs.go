package daemon

import (
	"github.com/teranos/sentinel/am"
	"github.com/teranos/sentinel/pulse/schedule"
)

// JobFor derives the scheduled job of one channel entry.
//
//   - cron set: that expression
//   - execution_time set: every every_n_days days at that time (the primary
//     channel falls back to daemon.freq_days)
//   - primary channel without execution_time: daemon.exec_time every
//     daemon.freq_days days
//   - otherwise: hourly on the hour
//
// The primary channel, entries with run_on_start, and hourly channels also
// run once at startup.
func JobFor(e am.ChannelEntry, d am.DaemonConfig) (schedule.Job, error) {
	primary := e.Name == d.PrimaryChannel
	job := schedule.Job{
		Name:       e.Name,
		Channel:    e.Name,
		RunOnStart: primary || e.RunOnStart,
	}

	switch {
	case e.Cron != "":
		r, err := schedule.Cron(e.Cron)
		if err != nil {
			return schedule.Job{}, err
		}
		job.Recurrence = r
	case e.ExecutionTime != "":
		at, err := schedule.ParseTimeOfDay(e.ExecutionTime)
		if err != nil {
			return schedule.Job{}, err
		}
		days := e.EveryNDays
		if days == 0 && primary {
			days = d.FreqDays
		}
		job.Recurrence = schedule.Daily(days, at)
	case primary:
		at, err := schedule.ParseTimeOfDay(d.ExecTime)
		if err != nil {
			return schedule.Job{}, err
		}
		job.Recurrence = schedule.Daily(d.FreqDays, at)
	default:
		job.Recurrence = schedule.Hourly(0)
		job.RunOnStart = true
	}
	return job, nil
}
