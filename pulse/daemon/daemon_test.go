package daemon

import (
	"context"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/sentinel/am"
	"github.com/teranos/sentinel/errors"
	"github.com/teranos/sentinel/pulse/schedule"
)

var morning = time.Date(2026, 10, 16, 7, 30, 0, 0, time.UTC)

func testConfig() *am.Config {
	cfg := am.DefaultConfig()
	cfg.GitHub.Token = "ghp_test"
	cfg.Daemon.OutputDir = "out"
	return cfg
}

func newTestDaemon(t *testing.T, cfg *am.Config) *Daemon {
	t.Helper()
	d, err := New(cfg, Options{
		Fs:     afero.NewMemMapFs(),
		Now:    func() time.Time { return morning },
		Logger: zaptest.NewLogger(t).Sugar(),
	})
	require.NoError(t, err)
	return d
}

func TestJobFor(t *testing.T) {
	daemonCfg := am.DaemonConfig{PrimaryChannel: "primary-repo", ExecTime: "08:00", FreqDays: 2}

	tests := []struct {
		name       string
		entry      am.ChannelEntry
		recurrence string
		runOnStart bool
	}{
		{
			name:       "primary uses daemon schedule",
			entry:      am.ChannelEntry{Name: "primary-repo", Type: "github"},
			recurrence: "every 2 days at 08:00",
			runOnStart: true,
		},
		{
			name:       "primary with own time keeps freq_days",
			entry:      am.ChannelEntry{Name: "primary-repo", Type: "github", ExecutionTime: "06:15"},
			recurrence: "every 2 days at 06:15",
			runOnStart: true,
		},
		{
			name:       "daily channel",
			entry:      am.ChannelEntry{Name: "news", Type: "hacker_news", ExecutionTime: "09:00"},
			recurrence: "daily at 09:00",
		},
		{
			name:       "every n days",
			entry:      am.ChannelEntry{Name: "feed-x", Type: "rss", ExecutionTime: "10:00", EveryNDays: 3, RunOnStart: true},
			recurrence: "every 3 days at 10:00",
			runOnStart: true,
		},
		{
			name:       "cron wins over execution time",
			entry:      am.ChannelEntry{Name: "digest", Type: "rss", Cron: "30 7 * * 1-5", ExecutionTime: "09:00"},
			recurrence: "cron 30 7 * * 1-5",
		},
		{
			name:       "no time means hourly",
			entry:      am.ChannelEntry{Name: "subreddit", Type: "reddit"},
			recurrence: "hourly at :00",
			runOnStart: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job, err := JobFor(tt.entry, daemonCfg)
			require.NoError(t, err)
			assert.Equal(t, tt.entry.Name, job.Channel)
			assert.Equal(t, tt.recurrence, job.Recurrence.String())
			assert.Equal(t, tt.runOnStart, job.RunOnStart)
		})
	}
}

func TestJobForBadTime(t *testing.T) {
	_, err := JobFor(am.ChannelEntry{Name: "news", ExecutionTime: "25:00"}, am.DaemonConfig{})
	assert.True(t, errors.IsConfigError(err))
}

func TestNewSchedulesRegisteredChannels(t *testing.T) {
	d := newTestDaemon(t, testConfig())

	assert.Equal(t, []string{"feed-x", "news", "primary-repo"}, d.Registry().List())
	assert.Equal(t, []string{"feed-x"}, d.Registered().Deferred)

	jobs := d.Scheduler().Jobs()
	require.Len(t, jobs, 3)
	assert.Equal(t, "primary-repo", jobs[0].Name)
	assert.True(t, jobs[0].RunOnStart)
	assert.Equal(t, time.Date(2026, 10, 16, 8, 0, 0, 0, time.UTC), jobs[0].NextRunAt)
	assert.Equal(t, "news", jobs[1].Name)
	assert.False(t, jobs[1].RunOnStart)
	assert.Equal(t, time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC), jobs[1].NextRunAt)
	assert.Equal(t, "feed-x", jobs[2].Name)
	assert.Equal(t, schedule.StateActive, jobs[2].State)
}

func TestNewSkipsInvalidChannel(t *testing.T) {
	cfg := testConfig()
	cfg.GitHub.Token = ""

	d := newTestDaemon(t, cfg)

	require.Contains(t, d.Registered().Skipped, "primary-repo")
	assert.True(t, errors.IsConfigError(d.Registered().Skipped["primary-repo"]))
	_, scheduled := d.Scheduler().Job("primary-repo")
	assert.False(t, scheduled)
	assert.Len(t, d.Scheduler().Jobs(), 2)
}

func TestNewRejectsInvalidGlobalConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Daemon.FreqDays = 0

	_, err := New(cfg, Options{Fs: afero.NewMemMapFs()})
	require.Error(t, err)
	assert.True(t, errors.IsConfigError(err))
}

func TestReload(t *testing.T) {
	d := newTestDaemon(t, testConfig())

	next := testConfig()
	next.Channels = []am.ChannelEntry{
		next.Channels[0],
		{Type: "rss", Name: "feed-y", Deferred: true, Params: map[string]any{"feed_url": "https://example.com/feed.xml"}},
	}
	require.NoError(t, d.Reload(next))

	assert.Equal(t, []string{"feed-y", "primary-repo"}, d.Registry().List())
	assert.Len(t, d.Scheduler().Jobs(), 3, "job list is not touched by reload")

	_, err := d.Registry().Resolve("news")
	assert.True(t, errors.IsChannelNotFound(err))
}

func TestReloadKeepsInstanceOfInvalidEntry(t *testing.T) {
	d := newTestDaemon(t, testConfig())

	next := testConfig()
	next.Channels[2].Params = nil // feed-x loses its feed_url
	next.Channels[2].Deferred = false

	err := d.Reload(next)
	require.Error(t, err)
	assert.True(t, errors.IsConfigError(err))
	assert.Contains(t, d.Registry().List(), "feed-x")
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg := testConfig()
	cfg.Channels = nil
	cfg.Daemon.MetricsAddr = "127.0.0.1:0"
	d := newTestDaemon(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop")
	}
}

func TestLocation(t *testing.T) {
	loc, err := Location("")
	require.NoError(t, err)
	assert.Equal(t, time.Local, loc)

	loc, err = Location("UTC")
	require.NoError(t, err)
	assert.Equal(t, "UTC", loc.String())

	_, err = Location("Mars/Olympus")
	assert.Error(t, err)
}
