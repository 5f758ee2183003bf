// Package github is the source-control channel: commits, issues, pull
// requests and releases of one repository over a time window, fetched from
// the paginated, rate-limited REST API.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/sentinel/channel"
	"github.com/teranos/sentinel/errors"
	"github.com/teranos/sentinel/internal/httpclient"
	"github.com/teranos/sentinel/logger"
)

// Type is the registration type tag
const Type = "github"

// Category is the artifact directory
const Category = "daily_progress"

// Config is the per-channel configuration.
type Config struct {
	Token        string
	DefaultRepo  string
	Days         int    // window length when a fetch gives no since (Default: 1)
	PerKindLimit int    // records kept per kind (Default: 10)
	State        string // issue/pull state filter (Default: closed)
	Releases     bool   // also fetch releases (Default: true)
}

// ParseConfig reads the string parameters of a channel entry.
// fallbackToken is used when the entry carries no token of its own.
func ParseConfig(params map[string]string, fallbackToken string) (Config, error) {
	cfg := Config{
		Token:        params["token"],
		DefaultRepo:  params["default_repo"],
		Days:         1,
		PerKindLimit: 10,
		State:        "closed",
		Releases:     true,
	}
	if cfg.Token == "" {
		cfg.Token = fallbackToken
	}
	if cfg.Token == "" {
		return cfg, errors.WithHint(
			errors.NewConfigError("github channel requires 'token'"),
			"set params.token, [github] token, or SENTINEL_GITHUB_TOKEN")
	}
	if cfg.DefaultRepo != "" && !validRepo(cfg.DefaultRepo) {
		return cfg, errors.NewConfigError("default_repo %q is not owner/name", cfg.DefaultRepo)
	}

	var err error
	if cfg.Days, err = intParam(params, "days", cfg.Days); err != nil {
		return cfg, err
	}
	if cfg.PerKindLimit, err = intParam(params, "per_kind_limit", cfg.PerKindLimit); err != nil {
		return cfg, err
	}
	if v := params["state"]; v != "" {
		switch v {
		case "open", "closed", "all":
			cfg.State = v
		default:
			return cfg, errors.NewConfigError("state must be open, closed or all, got %q", v)
		}
	}
	if v := params["releases"]; v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, errors.NewConfigError("releases must be a boolean, got %q", v)
		}
		cfg.Releases = b
	}
	return cfg, nil
}

func intParam(params map[string]string, key string, def int) (int, error) {
	v, ok := params[key]
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, errors.NewConfigError("%s must be a positive integer, got %q", key, v)
	}
	return n, nil
}

func validRepo(repo string) bool {
	owner, name, ok := strings.Cut(repo, "/")
	return ok && owner != "" && name != "" && !strings.Contains(name, "/")
}

// Options carries the shared dependencies of a github channel.
type Options struct {
	Client  httpclient.Doer
	Fetcher FetcherConfig // Token is taken from Config
	Writer  *channel.ArtifactWriter
	Logger  *zap.SugaredLogger
	Now     func() time.Time
	Sleep   SleepFunc
}

// Channel is the source-control channel.
type Channel struct {
	name    string
	cfg     Config
	fetcher *Fetcher
	writer  *channel.ArtifactWriter
	now     func() time.Time
	logger  *zap.SugaredLogger
}

// New creates a github channel.
func New(name string, cfg Config, opts Options) *Channel {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Writer == nil {
		opts.Writer = channel.NewArtifactWriter(nil, ".")
	}
	log := logger.OrNop(opts.Logger).With(logger.FieldChannel, name)

	fc := opts.Fetcher
	fc.Token = cfg.Token
	return &Channel{
		name:    name,
		cfg:     cfg,
		fetcher: NewFetcher(fc, opts.Client, opts.Now, opts.Sleep, log),
		writer:  opts.Writer,
		now:     opts.Now,
		logger:  log,
	}
}

// Descriptor implements channel.Channel
func (c *Channel) Descriptor() channel.Descriptor {
	return channel.Descriptor{
		Name: c.name,
		Type: Type,
		Kind: channel.SourceControl,
		Config: channel.RedactConfig(map[string]string{
			"token":          c.cfg.Token,
			"default_repo":   c.cfg.DefaultRepo,
			"days":           strconv.Itoa(c.cfg.Days),
			"per_kind_limit": strconv.Itoa(c.cfg.PerKindLimit),
			"state":          c.cfg.State,
		}),
	}
}

// startOfDay truncates t to midnight UTC
func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Window resolves the effective fetch window: an absent since becomes
// today - Days (UTC date); an absent until stays open.
func (c *Channel) Window(req channel.FetchRequest) channel.FetchRequest {
	if req.Since.IsZero() {
		req.Since = startOfDay(c.now()).AddDate(0, 0, -c.cfg.Days)
	}
	return req
}

// listing is one paginated endpoint and its record parser
type listing struct {
	kind  channel.RecordKind
	list  ListRequest
	parse func(items []json.RawMessage, source, repo string) []stamped
}

// Fetch implements channel.Channel. Commits, issues, pull requests and
// releases are fetched in that order; the first failing listing fails the
// fetch. Each kind keeps at most PerKindLimit records (or req.Limit).
func (c *Channel) Fetch(ctx context.Context, req channel.FetchRequest) ([]channel.RawRecord, error) {
	repo := firstNonEmpty(req.SourceID, c.cfg.DefaultRepo)
	if repo == "" {
		return nil, errors.NewConfigError("channel %s: no repository given and no default_repo configured", c.name)
	}
	if !validRepo(repo) {
		return nil, errors.NewInvalidRequestError("repository %q is not owner/name", repo)
	}

	req = c.Window(req)
	limit := req.LimitOr(c.cfg.PerKindLimit)
	base := "/repos/" + repo

	since := req.Since.UTC().Format(time.RFC3339)
	stopBefore := func(fields ...string) func(json.RawMessage) bool {
		return func(last json.RawMessage) bool {
			ts, ok := itemTimestamp(last, fields...)
			return ok && ts.Before(req.Since)
		}
	}

	commitQuery := url.Values{"since": {since}}
	if !req.Until.IsZero() {
		commitQuery.Set("until", req.Until.UTC().Format(time.RFC3339))
	}

	listings := []listing{
		{channel.KindCommit, ListRequest{Path: base + "/commits", Query: commitQuery}, parseCommits},
		{channel.KindIssue, ListRequest{
			Path:  base + "/issues",
			Query: url.Values{"state": {c.cfg.State}, "since": {since}, "sort": {"updated"}, "direction": {"desc"}},
		}, parseIssues},
		{channel.KindPullRequest, ListRequest{
			Path:  base + "/pulls",
			Query: url.Values{"state": {c.cfg.State}, "sort": {"updated"}, "direction": {"desc"}},
			Stop:  stopBefore("updated_at"),
		}, parsePulls},
	}
	if c.cfg.Releases {
		listings = append(listings, listing{channel.KindRelease, ListRequest{
			Path: base + "/releases",
			Stop: stopBefore("published_at", "created_at"),
		}, parseReleases})
	}

	var records []channel.RawRecord
	for _, l := range listings {
		res, err := c.fetcher.FetchAll(ctx, l.list)
		if err != nil {
			return nil, errors.Wrapf(err, "fetch %s %s", repo, l.kind)
		}
		kept := filterWindow(l.parse(res.Items, c.name, repo), req, c.logger)
		if l.kind == channel.KindRelease {
			sortReleases(kept)
		}
		if len(kept) > limit {
			kept = kept[:limit]
		}
		records = append(records, kept...)
	}

	c.logger.Infow("Fetched repository updates",
		"repo", repo,
		logger.FieldCount, len(records))
	return records, nil
}

// Export implements channel.Channel. Records are grouped by kind under
// daily_progress/{owner_repo}/. A fetch without explicit window writes
// {today}.md (or {since}_to_{today}.md when Days > 1); an explicit window
// names the file after it.
func (c *Channel) Export(records []channel.RawRecord, opts channel.ExportOptions) (channel.ExportArtifact, error) {
	if len(records) == 0 {
		return channel.ExportArtifact{}, nil
	}
	now := opts.ExportTime()
	repo := firstNonEmpty(records[0].Fields.Value("repo"), opts.Request.SourceID, c.cfg.DefaultRepo)

	since, until := opts.Request.Since, opts.Request.Until
	if until.IsZero() {
		until = now
	}
	if since.IsZero() {
		since = until
		if c.cfg.Days > 1 {
			since = startOfDay(now).AddDate(0, 0, -c.cfg.Days)
		}
	}

	fm := channel.NewFrontMatter(c.Descriptor(), records, opts, now)
	return c.writer.Write(channel.RangePath(Category, repo, since, until), fm, renderMarkdown(repo, now, records))
}

var sections = []struct {
	kind  channel.RecordKind
	title string
}{
	{channel.KindCommit, "Commits"},
	{channel.KindIssue, "Issues"},
	{channel.KindPullRequest, "Pull Requests"},
	{channel.KindRelease, "Releases"},
}

func renderMarkdown(repo string, now time.Time, records []channel.RawRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# GitHub Updates for %s (%s)\n", repo, now.Format("2006-01-02"))

	for _, s := range sections {
		first := true
		for _, r := range records {
			if r.Kind != s.kind {
				continue
			}
			if first {
				fmt.Fprintf(&b, "\n## %s\n\n", s.title)
				first = false
			}
			f := r.Fields
			switch r.Kind {
			case channel.KindCommit:
				fmt.Fprintf(&b, "- [%s] %s - %s\n", f.Value("sha"), firstLine(f.Value("message"), 80), f.Value("author"))
			case channel.KindRelease:
				pre := ""
				if f.Value("prerelease") == "true" {
					pre = " (prerelease)"
				}
				fmt.Fprintf(&b, "- %s %s%s - %s\n", f.Value("tag"), f.Value("name"), pre, f.Value("date"))
			default:
				fmt.Fprintf(&b, "- #%s %s - %s\n", f.Value("number"), f.Value("title"), f.Value("user"))
			}
		}
	}
	return b.String()
}
