// Package builtin binds the channel type tags of am.toml to their
// constructors and registers configured channels.
package builtin

import (
	"sort"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/teranos/sentinel/am"
	"github.com/teranos/sentinel/channel"
	"github.com/teranos/sentinel/channel/github"
	"github.com/teranos/sentinel/channel/gitlog"
	"github.com/teranos/sentinel/channel/hackernews"
	"github.com/teranos/sentinel/channel/reddit"
	"github.com/teranos/sentinel/channel/rss"
	"github.com/teranos/sentinel/errors"
	"github.com/teranos/sentinel/internal/httpclient"
	"github.com/teranos/sentinel/logger"
)

// Deps are the dependencies shared by every constructed channel.
type Deps struct {
	Client httpclient.Doer
	Writer *channel.ArtifactWriter
	GitHub am.GitHubConfig
	Logger *zap.SugaredLogger
	Now    func() time.Time
	Sleep  github.SleepFunc
}

// NewDeps builds the production dependencies from configuration: one
// SSRF-safe client (shared per-host limiter) and an artifact writer rooted
// at daemon.output_dir on fs.
func NewDeps(cfg *am.Config, fs afero.Fs, log *zap.SugaredLogger) Deps {
	timeout := time.Duration(cfg.GitHub.TimeoutSeconds) * time.Second
	return Deps{
		Client: httpclient.New(httpclient.Options{
			Timeout:           timeout,
			RequestsPerSecond: cfg.GitHub.RequestsPerSecond,
		}),
		Writer: channel.NewArtifactWriter(fs, cfg.Daemon.OutputDir),
		GitHub: cfg.GitHub,
		Logger: logger.OrNop(log),
	}
}

func (d Deps) fetcherConfig() github.FetcherConfig {
	return github.FetcherConfig{
		BaseURL:      d.GitHub.APIBaseURL,
		PerPage:      d.GitHub.PerPage,
		MaxResetWait: time.Duration(d.GitHub.MaxResetWaitSeconds) * time.Second,
		PageRetries:  d.GitHub.PageRetries,
		AllowPartial: d.GitHub.AllowPartial,
	}
}

// Factories maps each type tag to its constructor. Constructors validate
// their parameters and fail with ConfigError.
func Factories(d Deps) map[string]channel.Factory {
	log := logger.OrNop(d.Logger)
	return map[string]channel.Factory{
		github.Type: func(name string, params map[string]string) (channel.Channel, error) {
			cfg, err := github.ParseConfig(params, d.GitHub.Token)
			if err != nil {
				return nil, err
			}
			return github.New(name, cfg, github.Options{
				Client:  d.Client,
				Fetcher: d.fetcherConfig(),
				Writer:  d.Writer,
				Logger:  log,
				Now:     d.Now,
				Sleep:   d.Sleep,
			}), nil
		},
		hackernews.Type: func(name string, params map[string]string) (channel.Channel, error) {
			cfg, err := hackernews.ParseConfig(params)
			if err != nil {
				return nil, err
			}
			return hackernews.New(name, cfg, hackernews.Options{Client: d.Client, Writer: d.Writer, Logger: log, Now: d.Now}), nil
		},
		reddit.Type: func(name string, params map[string]string) (channel.Channel, error) {
			cfg, err := reddit.ParseConfig(params)
			if err != nil {
				return nil, err
			}
			return reddit.New(name, cfg, reddit.Options{Client: d.Client, Writer: d.Writer, Logger: log, Now: d.Now}), nil
		},
		rss.Type: func(name string, params map[string]string) (channel.Channel, error) {
			cfg, err := rss.ParseConfig(params)
			if err != nil {
				return nil, err
			}
			return rss.New(name, cfg, rss.Options{Client: d.Client, Writer: d.Writer, Logger: log, Now: d.Now}), nil
		},
		gitlog.Type: func(name string, params map[string]string) (channel.Channel, error) {
			cfg, err := gitlog.ParseConfig(params)
			if err != nil {
				return nil, err
			}
			return gitlog.New(name, cfg, gitlog.Options{Writer: d.Writer, Logger: log, Now: d.Now}), nil
		},
	}
}

// Types lists the supported type tags, sorted.
func Types() []string {
	types := make([]string, 0, 5)
	for t := range Factories(Deps{}) {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Result reports what a registration pass did.
type Result struct {
	Registered []string
	Deferred   []string
	Skipped    map[string]error
}

// RegisterFromConfig registers every entry into reg. Eager entries are
// constructed now; deferred entries store the constructor for first use. An
// entry with an unknown type or invalid parameters is logged and skipped;
// the others proceed.
func RegisterFromConfig(reg *channel.Registry, entries []am.ChannelEntry, d Deps) Result {
	log := logger.OrNop(d.Logger)
	factories := Factories(d)
	res := Result{Skipped: map[string]error{}}

	skip := func(name string, err error) {
		log.Errorw("Skipping channel",
			logger.FieldChannel, name,
			logger.FieldErrorType, errors.KindOf(err),
			logger.FieldError, err)
		res.Skipped[name] = err
	}

	for _, e := range entries {
		if err := e.Validate(); err != nil {
			skip(e.Name, err)
			continue
		}
		factory, ok := factories[e.Type]
		if !ok {
			skip(e.Name, errors.WithHintf(
				errors.NewConfigError("channel %q: unknown type %q", e.Name, e.Type),
				"supported types: %v", Types()))
			continue
		}

		if e.Deferred {
			reg.RegisterDeferred(e.Name, e.Type, factory, e.StringParams())
			res.Deferred = append(res.Deferred, e.Name)
			continue
		}

		ch, err := factory(e.Name, e.StringParams())
		if err != nil {
			skip(e.Name, err)
			continue
		}
		reg.RegisterInstance(ch)
		res.Registered = append(res.Registered, e.Name)
	}

	log.Infow("Channels registered",
		"eager", len(res.Registered),
		"deferred", len(res.Deferred),
		"skipped", len(res.Skipped))
	return res
}
