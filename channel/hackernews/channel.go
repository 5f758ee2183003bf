// Package hackernews is the link-aggregator channel: the ranked front page
// of a Hacker News style site, scraped from HTML.
package hackernews

import (
	"context"
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

const (
	Type           = "hacker_news"
	Category       = "hacker_news"
	DefaultBaseURL = "https://news.ycombinator.com/"
	DefaultLimit   = 30
)

// Config is the per-channel configuration.
type Config struct {
	BaseURL string
	Limit   int
}

// ParseConfig reads the string parameters of a channel entry.
func ParseConfig(params map[string]string) (Config, error) {
	cfg := Config{BaseURL: DefaultBaseURL, Limit: DefaultLimit}
	if v := params["base_url"]; v != "" {
		u, err := url.Parse(v)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return cfg, errors.NewConfigError("base_url %q is not an http(s) url", v)
		}
		cfg.BaseURL = v
	}
	if v := params["limit"]; v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return cfg, errors.NewConfigError("limit must be a positive integer, got %q", v)
		}
		cfg.Limit = n
	}
	return cfg, nil
}

// Options carries shared dependencies.
type Options struct {
	Client httpclient.Doer
	Writer *channel.ArtifactWriter
	Logger *zap.SugaredLogger
	Now    func() time.Time
}

// Channel scrapes a front page.
type Channel struct {
	name   string
	cfg    Config
	base   *url.URL
	client httpclient.Doer
	writer *channel.ArtifactWriter
	now    func() time.Time
	logger *zap.SugaredLogger
}

// New creates a hacker_news channel. cfg must come from ParseConfig.
func New(name string, cfg Config, opts Options) *Channel {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Writer == nil {
		opts.Writer = channel.NewArtifactWriter(nil, ".")
	}
	base, _ := url.Parse(cfg.BaseURL)
	return &Channel{
		name:   name,
		cfg:    cfg,
		base:   base,
		client: opts.Client,
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
		Kind: channel.LinkAggregator,
		Config: map[string]string{
			"base_url": c.cfg.BaseURL,
			"limit":    strconv.Itoa(c.cfg.Limit),
		},
	}
}

// Fetch implements channel.Channel. Stories are a snapshot of the page at
// fetch time: each record is stamped with now, so the window is not applied.
// A SourceID selects another listing relative to the base ("newest", "best").
func (c *Channel) Fetch(ctx context.Context, req channel.FetchRequest) ([]channel.RawRecord, error) {
	page := c.base
	if req.SourceID != "" {
		ref, err := url.Parse(req.SourceID)
		if err != nil {
			return nil, errors.NewInvalidRequestError("listing %q: %v", req.SourceID, err)
		}
		page = c.base.ResolveReference(ref)
	}

	body, err := httpclient.FetchBody(ctx, c.client, page.String(), nil)
	if err != nil {
		return nil, errors.Wrapf(err, "fetch %s", c.name)
	}
	stories, err := parseFrontPage(body, page)
	if err != nil {
		return nil, errors.WrapTransient(err, "fetch %s", c.name)
	}

	limit := req.LimitOr(c.cfg.Limit)
	if len(stories) > limit {
		stories = stories[:limit]
	}

	now := c.now()
	records := make([]channel.RawRecord, 0, len(stories))
	for _, s := range stories {
		rec := channel.NewRecord(channel.KindStory, c.name, now,
			"title", s.title,
			"link", s.link,
			"site", s.site,
			"comments", s.comments)
		rec.Rank = s.rank
		records = append(records, rec)
	}

	c.logger.Infow("Fetched front page", logger.FieldCount, len(records))
	return records, nil
}

// Export implements channel.Channel, writing hacker_news/{name}/{date}/{hour}.md.
func (c *Channel) Export(records []channel.RawRecord, opts channel.ExportOptions) (channel.ExportArtifact, error) {
	if len(records) == 0 {
		return channel.ExportArtifact{}, nil
	}
	now := opts.ExportTime()

	var b strings.Builder
	fmt.Fprintf(&b, "# Hacker News Top Stories (%s)\n\n", now.Format("2006-01-02 15:00"))
	for _, r := range records {
		fmt.Fprintf(&b, "%d. [%s](%s)", r.Rank, r.Fields.Value("title"), r.Fields.Value("link"))
		if site := r.Fields.Value("site"); site != "" {
			fmt.Fprintf(&b, " (%s)", site)
		}
		if comments := r.Fields.Value("comments"); comments != "" {
			fmt.Fprintf(&b, " [comments](%s)", comments)
		}
		b.WriteString("\n")
	}

	fm := channel.NewFrontMatter(c.Descriptor(), records, opts, now)
	return c.writer.Write(channel.HourlyPath(Category, c.name, now), fm, b.String())
}
