// Package gitlog is the local source-control channel: commits of a clone on
// disk, read with go-git instead of a hosted API.
package gitlog

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
	"go.uber.org/zap"

	"github.com/teranos/sentinel/channel"
	"github.com/teranos/sentinel/errors"
	"github.com/teranos/sentinel/logger"
)

const (
	Type     = "gitlog"
	Category = "daily_progress"
)

// Config is the per-channel configuration.
type Config struct {
	Path   string // clone on disk; a subdirectory of the work tree is accepted
	Branch string // empty = HEAD
	Days   int    // Default: 1
	Limit  int    // Default: 10
}

// ParseConfig reads the string parameters of a channel entry and checks that
// path opens as a git repository.
func ParseConfig(params map[string]string) (Config, error) {
	cfg := Config{Path: params["path"], Branch: params["branch"], Days: 1, Limit: 10}
	if cfg.Path == "" {
		return cfg, errors.NewConfigError("gitlog channel requires 'path'")
	}
	abs, err := filepath.Abs(cfg.Path)
	if err != nil {
		return cfg, errors.NewConfigError("path %q: %v", cfg.Path, err)
	}
	cfg.Path = abs

	for key, dst := range map[string]*int{"days": &cfg.Days, "limit": &cfg.Limit} {
		if v := params[key]; v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				return cfg, errors.NewConfigError("%s must be a positive integer, got %q", key, v)
			}
			*dst = n
		}
	}

	if _, err := open(cfg.Path); err != nil {
		return cfg, errors.WithHint(
			errors.NewConfigError("path %q is not a git repository: %v", cfg.Path, err),
			"point params.path at a local clone")
	}
	return cfg, nil
}

func open(path string) (*git.Repository, error) {
	return git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
}

// Options carries shared dependencies.
type Options struct {
	Writer *channel.ArtifactWriter
	Logger *zap.SugaredLogger
	Now    func() time.Time
}

// Channel reads commits from a local clone.
type Channel struct {
	name   string
	cfg    Config
	repo   string
	writer *channel.ArtifactWriter
	now    func() time.Time
	logger *zap.SugaredLogger
}

// New creates a gitlog channel. cfg must come from ParseConfig.
func New(name string, cfg Config, opts Options) *Channel {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Writer == nil {
		opts.Writer = channel.NewArtifactWriter(nil, ".")
	}
	return &Channel{
		name:   name,
		cfg:    cfg,
		repo:   filepath.Base(cfg.Path),
		writer: opts.Writer,
		now:    opts.Now,
		logger: logger.OrNop(opts.Logger).With(logger.FieldChannel, name),
	}
}

// Descriptor implements channel.Channel
func (c *Channel) Descriptor() channel.Descriptor {
	return channel.Descriptor{
		Name: c.name,
		Type: Type,
		Kind: channel.SourceControl,
		Config: map[string]string{
			"path":   c.cfg.Path,
			"branch": c.cfg.Branch,
			"days":   strconv.Itoa(c.cfg.Days),
			"limit":  strconv.Itoa(c.cfg.Limit),
		},
	}
}

// Window resolves the effective window the same way as the hosted
// source-control channel: an absent since is today - Days (UTC date).
func (c *Channel) Window(req channel.FetchRequest) channel.FetchRequest {
	if req.Since.IsZero() {
		y, m, d := c.now().UTC().Date()
		req.Since = time.Date(y, m, d, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -c.cfg.Days)
	}
	return req
}

// Fetch implements channel.Channel. Commits reachable from the branch (or
// HEAD) are walked newest first by committer time and kept when their author
// date lies in the window. The repository is reopened on every fetch so new
// commits are seen.
func (c *Channel) Fetch(ctx context.Context, req channel.FetchRequest) ([]channel.RawRecord, error) {
	repo, err := open(c.cfg.Path)
	if err != nil {
		return nil, errors.WrapTransient(err, "open %s", c.cfg.Path)
	}

	from, err := c.head(repo)
	if err != nil {
		return nil, errors.Mark(
			errors.Wrapf(err, "resolve %s in %s", firstNonEmpty(c.cfg.Branch, "HEAD"), c.repo),
			errors.ErrPermanentFailure)
	}

	iter, err := repo.Log(&git.LogOptions{From: from, Order: git.LogOrderCommitterTime})
	if err != nil {
		return nil, errors.WrapTransient(err, "log %s", c.repo)
	}
	defer iter.Close()

	req = c.Window(req)
	limit := req.LimitOr(c.cfg.Limit)
	var records []channel.RawRecord

	err = iter.ForEach(func(commit *object.Commit) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		// Committer time bounds author time from above in practice; once the
		// walk is a day past the window start nothing older can match.
		if commit.Committer.When.Before(req.Since.Add(-24 * time.Hour)) {
			return storer.ErrStop
		}
		when := commit.Author.When.UTC()
		if !req.InWindow(when) {
			return nil
		}
		records = append(records, channel.NewRecord(channel.KindCommit, c.name, when,
			"repo", c.repo,
			"sha", commit.Hash.String()[:7],
			"message", strings.TrimSpace(commit.Message),
			"author", commit.Author.Name,
			"date", when.Format(time.RFC3339)))
		if len(records) == limit {
			return storer.ErrStop
		}
		return nil
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "walk %s", c.repo)
	}

	c.logger.Infow("Read local commits",
		"repo", c.repo,
		logger.FieldCount, len(records))
	return records, nil
}

func (c *Channel) head(repo *git.Repository) (plumbing.Hash, error) {
	if c.cfg.Branch == "" {
		ref, err := repo.Head()
		if err != nil {
			return plumbing.ZeroHash, err
		}
		return ref.Hash(), nil
	}
	ref, err := repo.Reference(plumbing.NewBranchReferenceName(c.cfg.Branch), true)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	return ref.Hash(), nil
}

// Export implements channel.Channel, writing
// daily_progress/{repo dir}/{date}.md or {since}_to_{until}.md.
func (c *Channel) Export(records []channel.RawRecord, opts channel.ExportOptions) (channel.ExportArtifact, error) {
	if len(records) == 0 {
		return channel.ExportArtifact{}, nil
	}
	now := opts.ExportTime()

	since, until := opts.Request.Since, opts.Request.Until
	if until.IsZero() {
		until = now
	}
	if since.IsZero() {
		since = until
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Local Commits for %s (%s)\n\n## Commits\n\n", c.repo, now.Format("2006-01-02"))
	for _, r := range records {
		subject, _, _ := strings.Cut(r.Fields.Value("message"), "\n")
		fmt.Fprintf(&b, "- [%s] %s - %s\n", r.Fields.Value("sha"), subject, r.Fields.Value("author"))
	}

	fm := channel.NewFrontMatter(c.Descriptor(), records, opts, now)
	return c.writer.Write(channel.RangePath(Category, c.repo, since, until), fm, b.String())
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
