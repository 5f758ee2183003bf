package report

import (
	"context"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/teranos/sentinel/channel"
	"github.com/teranos/sentinel/errors"
	"github.com/teranos/sentinel/logger"
	"github.com/teranos/sentinel/notify"
)

// Outcome is how one pipeline run ended.
type Outcome string

const (
	OutcomeOK     Outcome = "ok"
	OutcomeEmpty  Outcome = "empty"
	OutcomeFailed Outcome = "failed"
)

// Result records one pipeline run. Err is set only when Outcome is failed;
// NotifyErr records a delivery failure, which does not fail the run.
type Result struct {
	Channel    string
	Outcome    Outcome
	Records    int
	Artifact   channel.ExportArtifact
	ReportPath string
	Summary    string
	Err        error
	NotifyErr  error
}

// Resolver looks up channels by name. *channel.Registry implements it.
type Resolver interface {
	Resolve(name string) (channel.Channel, error)
}

// Options configures a Pipeline
type Options struct {
	Channels   Resolver
	Summarizer Summarizer      // nil = export only
	Notifier   notify.Notifier // nil = no delivery
	Fs         afero.Fs        // filesystem artifacts live on; nil = OS filesystem
	Now        func() time.Time
	Logger     *zap.SugaredLogger
}

// Pipeline runs fetch, export, summarize and notify for one channel.
type Pipeline struct {
	channels   Resolver
	summarizer Summarizer
	notifier   notify.Notifier
	fs         afero.Fs
	now        func() time.Time
	logger     *zap.SugaredLogger
}

// NewPipeline creates a pipeline
func NewPipeline(opts Options) *Pipeline {
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.Nop
	}
	return &Pipeline{
		channels:   opts.Channels,
		summarizer: opts.Summarizer,
		notifier:   opts.Notifier,
		fs:         opts.Fs,
		now:        opts.Now,
		logger:     logger.OrNop(opts.Logger),
	}
}

// Run executes one job for the named channel. It never panics on channel
// errors and never returns them: every failure lands in the Result.
func (p *Pipeline) Run(ctx context.Context, name string, req channel.FetchRequest) Result {
	res := Result{Channel: name}
	fail := func(err error) Result {
		res.Outcome = OutcomeFailed
		res.Err = err
		return res
	}
	log := logger.FromContext(ctx, p.logger)

	ch, err := p.channels.Resolve(name)
	if err != nil {
		return fail(err)
	}
	if err := req.Validate(); err != nil {
		return fail(err)
	}

	records, err := ch.Fetch(ctx, req)
	if err != nil {
		return fail(errors.Wrapf(err, "fetch %s", name))
	}
	res.Records = len(records)
	if len(records) == 0 {
		log.Infow("Fetch returned no records, nothing to export", logger.FieldChannel, name)
		res.Outcome = OutcomeEmpty
		return res
	}

	art, err := ch.Export(records, channel.ExportOptions{Request: req, Now: p.now()})
	if err != nil {
		return fail(errors.Wrapf(err, "export %s", name))
	}
	res.Artifact = art
	log.Infow("Artifact exported",
		logger.FieldChannel, name,
		logger.FieldPath, art.Path,
		logger.FieldCount, len(records),
	)

	if p.summarizer == nil {
		res.Outcome = OutcomeOK
		return res
	}

	_, body, err := channel.ReadArtifact(p.fs, art.Path)
	if err != nil {
		return fail(errors.WrapSummarize(err, "load artifact for %s", name))
	}
	desc := ch.Descriptor()
	summary, err := p.summarizer.Summarize(ctx, Input{Channel: desc, ArtifactPath: art.Path, Content: body})
	if err != nil {
		return fail(err)
	}
	res.Summary = summary

	res.ReportPath = ReportPath(art.Path)
	if err := afero.WriteFile(p.fs, res.ReportPath, []byte(summary+"\n"), 0644); err != nil {
		return fail(errors.WrapExport(err, "write report %s", res.ReportPath))
	}

	msg := notify.Message{
		Subject:      Subject(desc, records),
		Body:         summary,
		Channel:      name,
		ArtifactPath: art.Path,
		ReportPath:   res.ReportPath,
		GeneratedAt:  art.GeneratedAt,
	}
	if err := p.notifier.Notify(ctx, msg); err != nil {
		log.Warnw("Report delivery failed",
			logger.FieldChannel, name,
			logger.FieldError, err,
		)
		res.NotifyErr = err
	}

	res.Outcome = OutcomeOK
	return res
}

// Subject names a report: the repository for source-control channels, the
// channel name otherwise.
func Subject(d channel.Descriptor, records []channel.RawRecord) string {
	if d.Kind == channel.SourceControl {
		for _, r := range records {
			if repo := r.Fields.Value("repo"); repo != "" {
				return repo
			}
		}
	}
	return d.Name
}
