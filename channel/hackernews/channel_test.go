package hackernews

import (
	"context"
	"fmt"
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

var now = time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC)

func frontPage(n int) string {
	var b strings.Builder
	b.WriteString(`<html><body><center><table id="hnmain"><tr><td><table>`)
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&b, `<tr class="athing submission" id="%d">
<td align="right" valign="top" class="title"><span class="rank">%d.</span></td>
<td valign="top" class="votelinks"></td>
<td class="title"><span class="titleline"><a href="https://example.com/story/%d">Story &amp; number %d</a><span class="sitebit comhead"> (<a href="from?site=example.com"><span class="sitestr">example.com</span></a>)</span></span></td>
</tr>
<tr><td colspan="2"></td><td class="subtext">points</td></tr>`, 1000+i, i, i, i)
	}
	b.WriteString(`<tr class="athing" id="9999"><td class="title"><span class="rank">99.</span></td><td class="title"><span class="titleline"><a href="item?id=9999">Ask HN: relative link</a></span></td></tr>`)
	b.WriteString(`</table></td></tr></table></center></body></html>`)
	return b.String()
}

func newTestChannel(t *testing.T, handler http.HandlerFunc, params map[string]string) (*Channel, afero.Fs) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	if params == nil {
		params = map[string]string{}
	}
	params["base_url"] = srv.URL + "/"
	cfg, err := ParseConfig(params)
	require.NoError(t, err)

	fs := afero.NewMemMapFs()
	ch := New("news", cfg, Options{
		Client: httpclient.New(httpclient.Options{AllowPrivateIP: true}),
		Writer: channel.NewArtifactWriter(fs, "out"),
		Now:    func() time.Time { return now },
	})
	return ch, fs
}

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultBaseURL, cfg.BaseURL)
	assert.Equal(t, 30, cfg.Limit)

	_, err = ParseConfig(map[string]string{"limit": "0"})
	assert.True(t, errors.IsConfigError(err))
	_, err = ParseConfig(map[string]string{"base_url": "ftp://news"})
	assert.True(t, errors.IsConfigError(err))
}

func TestFetch_RankedStories(t *testing.T) {
	ch, _ := newTestChannel(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, frontPage(3))
	}, nil)

	records, err := ch.Fetch(context.Background(), channel.FetchRequest{})
	require.NoError(t, err)
	require.Len(t, records, 4)

	first := records[0]
	assert.Equal(t, channel.KindStory, first.Kind)
	assert.Equal(t, 1, first.Rank)
	assert.Equal(t, "Story & number 1", first.Fields.Value("title"))
	assert.Equal(t, "https://example.com/story/1", first.Fields.Value("link"))
	assert.Equal(t, "example.com", first.Fields.Value("site"))
	assert.True(t, strings.HasSuffix(first.Fields.Value("comments"), "/item?id=1001"))
	assert.Equal(t, now, first.Timestamp)

	last := records[3]
	assert.Equal(t, 99, last.Rank)
	assert.True(t, strings.HasSuffix(last.Fields.Value("link"), "/item?id=9999"))
}

func TestFetch_LimitApplied(t *testing.T) {
	ch, _ := newTestChannel(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, frontPage(40))
	}, nil)

	records, err := ch.Fetch(context.Background(), channel.FetchRequest{})
	require.NoError(t, err)
	assert.Len(t, records, 30)

	records, err = ch.Fetch(context.Background(), channel.FetchRequest{Limit: 5})
	require.NoError(t, err)
	assert.Len(t, records, 5)
}

func TestFetch_SourceIDSelectsListing(t *testing.T) {
	var path string
	ch, _ := newTestChannel(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		fmt.Fprint(w, frontPage(1))
	}, nil)

	_, err := ch.Fetch(context.Background(), channel.FetchRequest{SourceID: "newest"})
	require.NoError(t, err)
	assert.Equal(t, "/newest", path)
}

func TestFetch_ServerErrorIsPermanent(t *testing.T) {
	ch, _ := newTestChannel(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}, nil)

	_, err := ch.Fetch(context.Background(), channel.FetchRequest{})
	require.Error(t, err)
	assert.Equal(t, errors.KindPermanent, errors.KindOf(err))
}

func TestFetch_EmptyPage(t *testing.T) {
	ch, _ := newTestChannel(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body>nothing here</body></html>")
	}, nil)

	records, err := ch.Fetch(context.Background(), channel.FetchRequest{})
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestExport_HourlyArtifact(t *testing.T) {
	ch, fs := newTestChannel(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, frontPage(2))
	}, nil)

	records, err := ch.Fetch(context.Background(), channel.FetchRequest{})
	require.NoError(t, err)

	art, err := ch.Export(records, channel.ExportOptions{Now: now})
	require.NoError(t, err)
	assert.Equal(t, "out/hacker_news/news/2026-10-16/09.md", art.Path)

	fm, body, err := channel.ReadArtifact(fs, art.Path)
	require.NoError(t, err)
	assert.Equal(t, Type, fm.Type)
	assert.Equal(t, 3, fm.Records)
	assert.Contains(t, body, "# Hacker News Top Stories (2026-10-16 09:00)")
	assert.Contains(t, body, "1. [Story & number 1](https://example.com/story/1) (example.com)")

	empty, err := ch.Export(nil, channel.ExportOptions{Now: now})
	require.NoError(t, err)
	assert.True(t, empty.IsEmpty())
}
