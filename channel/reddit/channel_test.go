package reddit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/sentinel/channel"
	"github.com/teranos/sentinel/errors"
	"github.com/teranos/sentinel/internal/httpclient"
)

var now = time.Date(2026, 10, 16, 14, 5, 0, 0, time.UTC)

func listingJSON(t *testing.T, posts ...post) []byte {
	t.Helper()
	var l listing
	for _, p := range posts {
		l.Data.Children = append(l.Data.Children, struct {
			Data post `json:"data"`
		}{Data: p})
	}
	b, err := json.Marshal(l)
	require.NoError(t, err)
	return b
}

func newTestChannel(t *testing.T, handler http.HandlerFunc, params map[string]string) (*Channel, afero.Fs) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	if params == nil {
		params = map[string]string{}
	}
	params["base_url"] = srv.URL
	cfg, err := ParseConfig(params)
	require.NoError(t, err)

	fs := afero.NewMemMapFs()
	return New("golang-sub", cfg, Options{
		Client: httpclient.New(httpclient.Options{AllowPrivateIP: true}),
		Writer: channel.NewArtifactWriter(fs, ""),
		Now:    func() time.Time { return now },
	}), fs
}

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, "all", cfg.Subreddit)
	assert.Equal(t, "hot", cfg.Sort)
	assert.Equal(t, DefaultUserAgent, cfg.UserAgent)

	for _, params := range []map[string]string{
		{"sort": "controversial"},
		{"limit": "-3"},
		{"subreddit": "golang/new"},
	} {
		_, err := ParseConfig(params)
		assert.True(t, errors.IsConfigError(err), "params %v", params)
	}
}

func TestFetch_Listing(t *testing.T) {
	long := strings.Repeat("x", 800)
	ch, _ := newTestChannel(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/r/golang/top.json", r.URL.Path)
		assert.Equal(t, "100", r.URL.Query().Get("limit"))
		assert.Equal(t, "1", r.URL.Query().Get("raw_json"))
		assert.Equal(t, DefaultUserAgent, r.Header.Get("User-Agent"))
		w.Write(listingJSON(t,
			post{Title: "Go 1.30 released", Author: "gopher", Subreddit: "golang", Score: 512, NumComments: 64,
				Permalink: "/r/golang/comments/abc/go_130/", CreatedUTC: float64(now.Add(-time.Hour).Unix()), Selftext: long},
			post{Title: "Weekly thread", Author: "bot", Subreddit: "golang", Permalink: "/r/golang/comments/def/"},
		))
	}, map[string]string{"subreddit": "golang", "sort": "top", "limit": "500"})

	records, err := ch.Fetch(context.Background(), channel.FetchRequest{})
	require.NoError(t, err)
	require.Len(t, records, 2)

	first := records[0]
	assert.Equal(t, channel.KindPost, first.Kind)
	assert.Equal(t, 1, first.Rank)
	assert.Equal(t, "512", first.Fields.Value("score"))
	assert.Equal(t, "64", first.Fields.Value("num_comments"))
	assert.True(t, strings.HasSuffix(first.Fields.Value("permalink"), "/r/golang/comments/abc/go_130/"))
	assert.Len(t, first.Fields.Value("selftext"), 500)
	assert.Equal(t, now.Add(-time.Hour).Truncate(time.Second), first.Timestamp)

	assert.False(t, records[1].HasTimestamp())
	assert.Equal(t, 2, records[1].Rank)
}

func TestFetch_WindowAndSourceOverride(t *testing.T) {
	ch, _ := newTestChannel(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/r/rust/hot.json", r.URL.Path)
		w.Write(listingJSON(t,
			post{Title: "new", CreatedUTC: float64(now.Add(-time.Hour).Unix())},
			post{Title: "old", CreatedUTC: float64(now.Add(-72 * time.Hour).Unix())},
		))
	}, nil)

	records, err := ch.Fetch(context.Background(), channel.FetchRequest{
		SourceID: "r/rust",
		Since:    now.Add(-24 * time.Hour),
	})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "new", records[0].Fields.Value("title"))
}

func TestFetch_Throttled(t *testing.T) {
	ch, _ := newTestChannel(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	}, nil)

	_, err := ch.Fetch(context.Background(), channel.FetchRequest{})
	assert.True(t, errors.IsThrottled(err))
}

func TestFetch_GarbledBodyIsTransient(t *testing.T) {
	ch, _ := newTestChannel(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>blocked</html>"))
	}, nil)

	_, err := ch.Fetch(context.Background(), channel.FetchRequest{})
	assert.True(t, errors.IsTransient(err))
}

func TestExport(t *testing.T) {
	ch, fs := newTestChannel(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write(listingJSON(t, post{Title: "Hello", Author: "a", Subreddit: "golang", Score: 3, Permalink: "/r/golang/x/"}))
	}, nil)

	records, err := ch.Fetch(context.Background(), channel.FetchRequest{})
	require.NoError(t, err)

	art, err := ch.Export(records, channel.ExportOptions{Now: now})
	require.NoError(t, err)
	assert.Equal(t, "reddit_feeds/golang-sub/2026-10-16/14.md", art.Path)

	_, body, err := channel.ReadArtifact(fs, art.Path)
	require.NoError(t, err)
	assert.Contains(t, body, "# Reddit Feed: r/golang (2026-10-16 14:00)")
	assert.Contains(t, body, "## 1. Hello")
	assert.Contains(t, body, "- **Author**: u/a")
}
