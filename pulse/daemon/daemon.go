// Package daemon assembles the long-running sentinel process from
// configuration: the channel registry, the report pipeline, the scheduler
// and the optional status server.
package daemon

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/teranos/sentinel/ai/provider"
	"github.com/teranos/sentinel/am"
	"github.com/teranos/sentinel/channel"
	"github.com/teranos/sentinel/channel/builtin"
	"github.com/teranos/sentinel/errors"
	"github.com/teranos/sentinel/logger"
	"github.com/teranos/sentinel/notify"
	"github.com/teranos/sentinel/pulse/schedule"
	"github.com/teranos/sentinel/report"
	"github.com/teranos/sentinel/server"
	"github.com/teranos/sentinel/version"
)

const statusShutdownTimeout = 5 * time.Second

// Options configures a Daemon
type Options struct {
	ConfigPath string           // watched when daemon.watch_config is set
	Fs         afero.Fs         // nil = OS filesystem
	Now        func() time.Time // nil = wall clock in daemon.timezone
	Logger     *zap.SugaredLogger
}

// Daemon is the assembled process
type Daemon struct {
	cfg        *am.Config
	configPath string
	deps       builtin.Deps
	registry   *channel.Registry
	pipeline   *report.Pipeline
	scheduler  *schedule.Scheduler
	metrics    *prometheus.Registry
	registered builtin.Result
	closers    []func()
	logger     *zap.SugaredLogger

	reloadMu sync.Mutex
}

// Location resolves daemon.timezone. Empty means the host's local zone.
func Location(tz string) (*time.Location, error) {
	if tz == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, errors.Wrapf(err, "load timezone %q", tz)
	}
	return loc, nil
}

// Clock returns a wall clock reading in loc
func Clock(loc *time.Location) func() time.Time {
	return func() time.Time { return time.Now().In(loc) }
}

// NewRegistry registers every configured channel. Invalid entries are
// skipped and reported in the result; they never fail the call.
func NewRegistry(cfg *am.Config, fs afero.Fs, now func() time.Time, log *zap.SugaredLogger) (*channel.Registry, builtin.Deps, builtin.Result) {
	deps := builtin.NewDeps(cfg, fs, log)
	deps.Now = now
	reg := channel.NewRegistry(logger.ChildLogger(log, "component", "registry"))
	res := builtin.RegisterFromConfig(reg, cfg.Channels, deps)
	return reg, deps, res
}

// New validates cfg and assembles the daemon. Only global configuration
// errors fail; a bad channel entry, an unusable summarizer backend or an
// unreachable broker degrade the daemon and are logged.
func New(cfg *am.Config, opts Options) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "invalid configuration"), errors.ErrConfig)
	}
	log := logger.OrNop(opts.Logger)
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Now == nil {
		loc, err := Location(cfg.Daemon.Timezone)
		if err != nil {
			return nil, err
		}
		opts.Now = Clock(loc)
	}

	d := &Daemon{
		cfg:        cfg,
		configPath: opts.ConfigPath,
		logger:     log,
	}
	d.registry, d.deps, d.registered = NewRegistry(cfg, opts.Fs, opts.Now, log)

	summarizer := newSummarizer(cfg.LLM, opts.Fs, log)
	notifier := d.newNotifier(cfg.Notify)

	d.pipeline = report.NewPipeline(report.Options{
		Channels:   d.registry,
		Summarizer: summarizer,
		Notifier:   notifier,
		Fs:         opts.Fs,
		Now:        opts.Now,
		Logger:     logger.ChildLogger(log, "component", "pipeline"),
	})

	d.metrics = prometheus.NewRegistry()
	d.metrics.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	d.scheduler = schedule.New(d.pipeline, schedule.Config{
		Interval:    time.Duration(cfg.Daemon.TickIntervalSeconds) * time.Second,
		HistorySize: cfg.Daemon.HistorySize,
		Now:         opts.Now,
		Metrics:     schedule.NewMetrics(d.metrics),
	}, logger.ChildLogger(log, "component", "scheduler"))

	for _, e := range cfg.Channels {
		if _, skipped := d.registered.Skipped[e.Name]; skipped {
			continue
		}
		job, err := JobFor(e, cfg.Daemon)
		if err == nil {
			_, err = d.scheduler.Add(job)
		}
		if err != nil {
			log.Errorw("Not scheduling channel",
				logger.FieldChannel, e.Name,
				logger.FieldErrorType, errors.KindOf(err),
				logger.FieldError, err)
		}
	}
	return d, nil
}

func newSummarizer(cfg am.LLMConfig, fs afero.Fs, log *zap.SugaredLogger) report.Summarizer {
	client, err := provider.NewAIClient(cfg, logger.ChildLogger(log, "component", "llm"))
	if err != nil {
		log.Warnw("Summarizer disabled, reports will be export only",
			logger.FieldErrorType, errors.KindOf(err),
			logger.FieldError, err)
		return nil
	}
	prompts, err := report.LoadPrompts(fs, cfg.PromptDir, log)
	if err != nil {
		log.Warnw("Using built-in prompts", logger.FieldError, err)
		prompts = report.DefaultPrompts()
	}
	s, err := report.NewLLMSummarizer(report.LLMOptions{
		Client:  client,
		Prompts: prompts,
		Fs:      fs,
		DryRun:  cfg.DryRun,
		Logger:  log,
	})
	if err != nil {
		log.Warnw("Summarizer disabled", logger.FieldError, err)
		return nil
	}
	return s
}

func (d *Daemon) newNotifier(cfg am.NotifyConfig) notify.Notifier {
	log := logger.ChildLogger(d.logger, "component", "notify")
	multi, closer, err := notify.FromConfig(cfg, d.deps.Client, log)
	if err != nil {
		d.logger.Warnw("NATS notifier unavailable, continuing without it",
			"nats_url", cfg.NATSURL,
			logger.FieldError, err)
		cfg.NATSURL = ""
		multi, closer, _ = notify.FromConfig(cfg, d.deps.Client, log)
	}
	d.closers = append(d.closers, closer)
	return multi
}

// Registry returns the channel registry
func (d *Daemon) Registry() *channel.Registry { return d.registry }

// Scheduler returns the scheduler
func (d *Daemon) Scheduler() *schedule.Scheduler { return d.scheduler }

// Pipeline returns the report pipeline
func (d *Daemon) Pipeline() *report.Pipeline { return d.pipeline }

// Metrics returns the Prometheus registry served on /metrics
func (d *Daemon) Metrics() *prometheus.Registry { return d.metrics }

// Registered reports the startup registration pass
func (d *Daemon) Registered() builtin.Result { return d.registered }

// Run starts the status server and config watcher when configured, then
// drives the scheduler until ctx is cancelled or Shutdown is called.
func (d *Daemon) Run(ctx context.Context) error {
	defer d.close()

	if addr := d.cfg.Daemon.MetricsAddr; addr != "" {
		status := server.New(server.Options{
			Channels:  d.registry,
			Scheduler: d.scheduler,
			Gatherer:  d.metrics,
			Version:   version.Get().Version,
			Logger:    logger.ChildLogger(d.logger, "component", "status"),
		})
		if _, err := status.Start(addr); err != nil {
			return err
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), statusShutdownTimeout)
			defer cancel()
			if err := status.Stop(stopCtx); err != nil {
				d.logger.Warnw("Status server shutdown failed", logger.FieldError, err)
			}
		}()
	}

	if d.cfg.Daemon.WatchConfig && d.configPath != "" {
		watcher, err := am.NewConfigWatcher(d.configPath, logger.ChildLogger(d.logger, "component", "config"))
		if err != nil {
			d.logger.Warnw("Config watching disabled", logger.FieldError, err)
		} else {
			watcher.OnReload(d.Reload)
			watcher.Start()
			defer watcher.Stop()
		}
	}

	return d.scheduler.Run(ctx)
}

// Reload re-registers channels from a new configuration. Registration
// replaces instances under the same name; names no longer configured are
// removed. An entry that now fails validation keeps its previous instance.
// The job list is left alone, so jobs of removed channels fail with
// channel_not_found until the process restarts.
func (d *Daemon) Reload(cfg *am.Config) error {
	d.reloadMu.Lock()
	defer d.reloadMu.Unlock()

	res := builtin.RegisterFromConfig(d.registry, cfg.Channels, d.deps)

	configured := make(map[string]bool, len(cfg.Channels))
	for _, e := range cfg.Channels {
		configured[e.Name] = true
	}
	var removed []string
	for _, name := range d.registry.List() {
		if !configured[name] && d.registry.Remove(name) {
			removed = append(removed, name)
		}
	}

	d.logger.Infow("Channels reloaded",
		"registered", len(res.Registered),
		"deferred", len(res.Deferred),
		"skipped", len(res.Skipped),
		"removed", removed)
	if len(res.Skipped) > 0 {
		return errors.NewConfigError("%d channel entries skipped on reload", len(res.Skipped))
	}
	return nil
}

// Shutdown asks the scheduler to stop after the job in flight
func (d *Daemon) Shutdown() {
	d.scheduler.Shutdown()
}

func (d *Daemon) close() {
	for _, c := range d.closers {
		c()
	}
	d.closers = nil
}
