// Package rss is the syndication-feed channel for RSS, Atom and JSON
// feeds. Item descriptions are sanitized and rendered as markdown.
package rss

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/teranos/sentinel/channel"
	"github.com/teranos/sentinel/errors"
	"github.com/teranos/sentinel/internal/httpclient"
	"github.com/teranos/sentinel/logger"
)

const (
	Type         = "rss"
	Category     = "rss_feeds"
	DefaultLimit = 20

	maxDescription = 1000
	previewLength  = 200
)

// Config is the per-channel configuration.
type Config struct {
	FeedURL string
	Limit   int
}

// ParseConfig reads the string parameters of a channel entry. feed_url is
// required.
func ParseConfig(params map[string]string) (Config, error) {
	cfg := Config{FeedURL: params["feed_url"], Limit: DefaultLimit}
	if cfg.FeedURL == "" {
		return cfg, errors.WithHint(
			errors.NewConfigError("rss channel requires 'feed_url'"),
			`add params = { feed_url = "https://..." } to the channel entry`)
	}
	u, err := url.Parse(cfg.FeedURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return cfg, errors.NewConfigError("feed_url %q is not an http(s) url", cfg.FeedURL)
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

// Channel reads one feed.
type Channel struct {
	name     string
	cfg      Config
	client   httpclient.Doer
	writer   *channel.ArtifactWriter
	now      func() time.Time
	logger   *zap.SugaredLogger
	policy   *bluemonday.Policy
	markdown *converter.Converter
}

// New creates an rss channel. cfg must come from ParseConfig.
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
		client: opts.Client,
		writer: opts.Writer,
		now:    opts.Now,
		logger: logger.OrNop(opts.Logger).With(logger.FieldChannel, name),
		policy: bluemonday.UGCPolicy(),
		markdown: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
			),
		),
	}
}

// Descriptor implements channel.Channel
func (c *Channel) Descriptor() channel.Descriptor {
	return channel.Descriptor{
		Name: c.name,
		Type: Type,
		Kind: channel.Feed,
		Config: map[string]string{
			"feed_url": c.cfg.FeedURL,
			"limit":    strconv.Itoa(c.cfg.Limit),
		},
	}
}

// Fetch implements channel.Channel. Items keep feed order; those with a
// parsable date outside an explicit window are dropped, undated items are
// kept without a timestamp.
func (c *Channel) Fetch(ctx context.Context, req channel.FetchRequest) ([]channel.RawRecord, error) {
	body, err := httpclient.FetchBody(ctx, c.client, c.cfg.FeedURL, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "fetch feed %s", c.name)
	}
	title, entries, err := parseFeed(body)
	if err != nil {
		return nil, errors.WrapTransient(err, "feed %s", c.name)
	}

	limit := req.LimitOr(c.cfg.Limit)
	records := make([]channel.RawRecord, 0, min(limit, len(entries)))
	for _, e := range entries {
		if e.dated && !req.InWindow(e.ts) {
			continue
		}
		rec := channel.NewRecord(channel.KindFeedItem, c.name, e.ts,
			"title", e.title,
			"link", e.link,
			"author", e.author,
			"description", c.toMarkdown(e.description, e.link),
			"date", e.published,
			"feed", title)
		rec.Rank = len(records) + 1
		records = append(records, rec)
		if len(records) == limit {
			break
		}
	}

	c.logger.Infow("Fetched feed",
		"feed", title,
		logger.FieldCount, len(records))
	return records, nil
}

// toMarkdown sanitizes description HTML and converts it to markdown. When
// conversion fails the sanitized text is used as is.
func (c *Channel) toMarkdown(raw, link string) string {
	if raw == "" {
		return ""
	}
	clean := c.policy.Sanitize(raw)
	md, err := c.markdown.ConvertString(clean, converter.WithDomain(domainOf(link)))
	if err != nil || strings.TrimSpace(md) == "" {
		md = clean
	}
	md = strings.TrimSpace(md)
	if r := []rune(md); len(r) > maxDescription {
		md = string(r[:maxDescription])
	}
	return md
}

func domainOf(link string) string {
	u, err := url.Parse(link)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

// Export implements channel.Channel, writing rss_feeds/{name}/{date}/{hour}.md.
func (c *Channel) Export(records []channel.RawRecord, opts channel.ExportOptions) (channel.ExportArtifact, error) {
	if len(records) == 0 {
		return channel.ExportArtifact{}, nil
	}
	now := opts.ExportTime()

	var b strings.Builder
	fmt.Fprintf(&b, "# RSS Feed: %s (%s)\n\n", c.name, now.Format("2006-01-02 15:00"))
	fmt.Fprintf(&b, "Source: %s\n\n", c.cfg.FeedURL)
	for _, r := range records {
		f := r.Fields
		fmt.Fprintf(&b, "%d. [%s](%s)\n", r.Rank, f.Value("title"), f.Value("link"))
		if d := f.Value("description"); d != "" {
			preview := strings.Join(strings.Fields(d), " ")
			if rr := []rune(preview); len(rr) > previewLength {
				preview = string(rr[:previewLength]) + "..."
			}
			fmt.Fprintf(&b, "   %s\n", preview)
		}
		b.WriteString("\n")
	}

	fm := channel.NewFrontMatter(c.Descriptor(), records, opts, now)
	return c.writer.Write(channel.HourlyPath(Category, c.name, now), fm, b.String())
}
