// Package reddit is the link-aggregator channel over subreddit JSON
// listings.
package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
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
	Type             = "reddit"
	Category         = "reddit_feeds"
	DefaultBaseURL   = "https://www.reddit.com"
	DefaultUserAgent = "sentinel/1.0 (information channel bot)"
	DefaultLimit     = 25
	MaxLimit         = 100

	maxSelftext = 500
)

var sorts = map[string]bool{"hot": true, "new": true, "top": true, "rising": true}

// Config is the per-channel configuration.
type Config struct {
	Subreddit string
	Sort      string
	Limit     int
	BaseURL   string
	UserAgent string
}

// ParseConfig reads the string parameters of a channel entry.
func ParseConfig(params map[string]string) (Config, error) {
	cfg := Config{
		Subreddit: "all",
		Sort:      "hot",
		Limit:     DefaultLimit,
		BaseURL:   DefaultBaseURL,
		UserAgent: DefaultUserAgent,
	}
	if v := params["subreddit"]; v != "" {
		if strings.ContainsAny(v, "/?# ") {
			return cfg, errors.NewConfigError("subreddit %q is not a plain name", v)
		}
		cfg.Subreddit = v
	}
	if v := params["sort"]; v != "" {
		if !sorts[v] {
			return cfg, errors.NewConfigError("sort must be hot, new, top or rising, got %q", v)
		}
		cfg.Sort = v
	}
	if v := params["limit"]; v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return cfg, errors.NewConfigError("limit must be a positive integer, got %q", v)
		}
		cfg.Limit = n
	}
	if v := params["base_url"]; v != "" {
		cfg.BaseURL = strings.TrimSuffix(v, "/")
	}
	if v := params["user_agent"]; v != "" {
		cfg.UserAgent = v
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

// Channel fetches one subreddit listing.
type Channel struct {
	name   string
	cfg    Config
	client httpclient.Doer
	writer *channel.ArtifactWriter
	now    func() time.Time
	logger *zap.SugaredLogger
}

// New creates a reddit channel. cfg must come from ParseConfig.
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
	}
}

// Descriptor implements channel.Channel
func (c *Channel) Descriptor() channel.Descriptor {
	return channel.Descriptor{
		Name: c.name,
		Type: Type,
		Kind: channel.LinkAggregator,
		Config: map[string]string{
			"subreddit": c.cfg.Subreddit,
			"sort":      c.cfg.Sort,
			"limit":     strconv.Itoa(c.cfg.Limit),
		},
	}
}

type listing struct {
	Data struct {
		Children []struct {
			Data post `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type post struct {
	Title       string  `json:"title"`
	Author      string  `json:"author"`
	Subreddit   string  `json:"subreddit"`
	Score       int     `json:"score"`
	NumComments int     `json:"num_comments"`
	URL         string  `json:"url"`
	Permalink   string  `json:"permalink"`
	CreatedUTC  float64 `json:"created_utc"`
	Selftext    string  `json:"selftext"`
	Stickied    bool    `json:"stickied"`
}

// Fetch implements channel.Channel. SourceID overrides the configured
// subreddit. Posts carry their creation time, so an explicit window is
// applied; limit is capped at 100 by the provider.
func (c *Channel) Fetch(ctx context.Context, req channel.FetchRequest) ([]channel.RawRecord, error) {
	sub := c.cfg.Subreddit
	if req.SourceID != "" {
		sub = strings.TrimPrefix(req.SourceID, "r/")
	}
	limit := req.LimitOr(c.cfg.Limit)
	if limit > MaxLimit {
		limit = MaxLimit
	}

	q := url.Values{"limit": {strconv.Itoa(limit)}, "raw_json": {"1"}}
	u := fmt.Sprintf("%s/r/%s/%s.json?%s", c.cfg.BaseURL, url.PathEscape(sub), c.cfg.Sort, q.Encode())

	body, err := httpclient.FetchBody(ctx, c.client, u, http.Header{"User-Agent": {c.cfg.UserAgent}})
	if err != nil {
		return nil, errors.Wrapf(err, "fetch r/%s", sub)
	}

	var l listing
	if err := json.Unmarshal(body, &l); err != nil {
		return nil, errors.WrapTransient(err, "decode r/%s listing", sub)
	}

	records := make([]channel.RawRecord, 0, len(l.Data.Children))
	for _, child := range l.Data.Children {
		p := child.Data
		ts := time.Unix(int64(p.CreatedUTC), 0).UTC()
		if p.CreatedUTC > 0 && !req.InWindow(ts) {
			continue
		}
		if p.CreatedUTC == 0 {
			ts = time.Time{}
		}
		selftext := p.Selftext
		if r := []rune(selftext); len(r) > maxSelftext {
			selftext = string(r[:maxSelftext])
		}
		rec := channel.NewRecord(channel.KindPost, c.name, ts,
			"title", p.Title,
			"author", p.Author,
			"subreddit", p.Subreddit,
			"score", strconv.Itoa(p.Score),
			"num_comments", strconv.Itoa(p.NumComments),
			"url", p.URL,
			"permalink", c.cfg.BaseURL+p.Permalink,
			"selftext", selftext)
		rec.Rank = len(records) + 1
		records = append(records, rec)
		if len(records) == limit {
			break
		}
	}

	c.logger.Infow("Fetched subreddit listing",
		"subreddit", sub,
		logger.FieldCount, len(records))
	return records, nil
}

// Export implements channel.Channel, writing reddit_feeds/{name}/{date}/{hour}.md.
func (c *Channel) Export(records []channel.RawRecord, opts channel.ExportOptions) (channel.ExportArtifact, error) {
	if len(records) == 0 {
		return channel.ExportArtifact{}, nil
	}
	now := opts.ExportTime()
	sub := firstSubreddit(records, c.cfg.Subreddit)

	var b strings.Builder
	fmt.Fprintf(&b, "# Reddit Feed: r/%s (%s)\n\n", sub, now.Format("2006-01-02 15:00"))
	fmt.Fprintf(&b, "Source: %s/r/%s\n\n", c.cfg.BaseURL, sub)
	for _, r := range records {
		f := r.Fields
		fmt.Fprintf(&b, "## %d. %s\n\n", r.Rank, f.Value("title"))
		fmt.Fprintf(&b, "- **Author**: u/%s\n", f.Value("author"))
		fmt.Fprintf(&b, "- **Score**: %s | **Comments**: %s\n", f.Value("score"), f.Value("num_comments"))
		if r.HasTimestamp() {
			fmt.Fprintf(&b, "- **Posted**: %s\n", r.Timestamp.Format(time.RFC3339))
		}
		fmt.Fprintf(&b, "- **Link**: [discussion](%s)\n", f.Value("permalink"))
		if s := f.Value("selftext"); s != "" {
			fmt.Fprintf(&b, "\n%s\n", s)
		}
		b.WriteString("\n---\n\n")
	}

	fm := channel.NewFrontMatter(c.Descriptor(), records, opts, now)
	return c.writer.Write(channel.HourlyPath(Category, c.name, now), fm, b.String())
}

func firstSubreddit(records []channel.RawRecord, fallback string) string {
	for _, r := range records {
		if s := r.Fields.Value("subreddit"); s != "" {
			return s
		}
	}
	return fallback
}
