package github

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/sentinel/channel"
	"github.com/teranos/sentinel/errors"
)

// fakeAPI routes requests by path to canned JSON bodies
type fakeAPI struct {
	mu       sync.Mutex
	bodies   map[string]string
	statuses map[string]int
	requests []*http.Request
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{bodies: map[string]string{}, statuses: map[string]int{}}
}

func (a *fakeAPI) Do(req *http.Request) (*http.Response, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.requests = append(a.requests, req)

	p := req.URL.Path
	if status, ok := a.statuses[p]; ok {
		return response(status, `{"message":"Not Found"}`, nil), nil
	}
	body, ok := a.bodies[p]
	if !ok {
		body = `[]`
	}
	return response(http.StatusOK, body, nil), nil
}

func (a *fakeAPI) paths() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.requests))
	for i, r := range a.requests {
		out[i] = r.URL.Path
	}
	return out
}

func (a *fakeAPI) query(path string) map[string]string {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, r := range a.requests {
		if r.URL.Path == path {
			q := map[string]string{}
			for k := range r.URL.Query() {
				q[k] = r.URL.Query().Get(k)
			}
			return q
		}
	}
	return nil
}

func commitJSON(sha, msg, date string) string {
	return fmt.Sprintf(`{"sha":%q,"html_url":"https://github.com/acme/widgets/commit/%s","commit":{"message":%q,"author":{"name":"Ada","date":%q}}}`,
		sha, sha, msg, date)
}

func array(parts ...string) string {
	return "[" + strings.Join(parts, ",") + "]"
}

func newTestChannel(t *testing.T, api *fakeAPI, params map[string]string, now time.Time) (*Channel, afero.Fs) {
	t.Helper()
	if params == nil {
		params = map[string]string{}
	}
	params["token"] = "ghp_testtoken"
	if _, ok := params["default_repo"]; !ok {
		params["default_repo"] = "acme/widgets"
	}
	cfg, err := ParseConfig(params, "")
	require.NoError(t, err)

	fs := afero.NewMemMapFs()
	clock := newFakeClock(now)
	ch := New("primary-repo", cfg, Options{
		Client: api,
		Writer: channel.NewArtifactWriter(fs, "out"),
		Now:    clock.Now,
		Sleep:  clock.Sleep,
	})
	return ch, fs
}

func TestParseConfig(t *testing.T) {
	t.Run("missing token", func(t *testing.T) {
		_, err := ParseConfig(map[string]string{"default_repo": "acme/widgets"}, "")
		require.Error(t, err)
		assert.True(t, errors.IsConfigError(err))
	})

	t.Run("fallback token", func(t *testing.T) {
		cfg, err := ParseConfig(map[string]string{}, "ghp_shared")
		require.NoError(t, err)
		assert.Equal(t, "ghp_shared", cfg.Token)
		assert.Equal(t, 1, cfg.Days)
		assert.Equal(t, 10, cfg.PerKindLimit)
		assert.Equal(t, "closed", cfg.State)
		assert.True(t, cfg.Releases)
	})

	t.Run("explicit values", func(t *testing.T) {
		cfg, err := ParseConfig(map[string]string{
			"token": "ghp_own", "days": "7", "per_kind_limit": "25", "state": "all", "releases": "false",
		}, "ghp_shared")
		require.NoError(t, err)
		assert.Equal(t, "ghp_own", cfg.Token)
		assert.Equal(t, 7, cfg.Days)
		assert.Equal(t, 25, cfg.PerKindLimit)
		assert.Equal(t, "all", cfg.State)
		assert.False(t, cfg.Releases)
	})

	for _, params := range []map[string]string{
		{"days": "0"},
		{"days": "many"},
		{"state": "merged"},
		{"releases": "sometimes"},
		{"default_repo": "widgets"},
	} {
		_, err := ParseConfig(params, "ghp_x")
		assert.True(t, errors.IsConfigError(err), "params %v", params)
	}
}

func TestChannel_Descriptor(t *testing.T) {
	ch, _ := newTestChannel(t, newFakeAPI(), nil, epoch)
	d := ch.Descriptor()
	assert.Equal(t, "primary-repo", d.Name)
	assert.Equal(t, Type, d.Type)
	assert.Equal(t, channel.SourceControl, d.Kind)
	assert.NotEqual(t, "ghp_testtoken", d.Config["token"])
	assert.Equal(t, "acme/widgets", d.Config["default_repo"])
}

func TestChannel_FetchDailyDigest(t *testing.T) {
	api := newFakeAPI()

	var commits []string
	for i := 1; i <= 12; i++ {
		commits = append(commits, commitJSON(fmt.Sprintf("abcdef%02d1234", i), fmt.Sprintf("change %d\n\nbody", i),
			fmt.Sprintf("2026-10-15T%02d:00:00Z", i)))
	}
	api.bodies["/repos/acme/widgets/commits"] = array(commits...)
	api.bodies["/repos/acme/widgets/issues"] = array(
		`{"number":1,"title":"Crash on start","state":"closed","user":{"login":"bob"},"closed_at":"2026-10-15T10:00:00Z"}`,
		`{"number":2,"title":"A pull request","state":"closed","user":{"login":"bob"},"closed_at":"2026-10-15T10:00:00Z","pull_request":{"url":"x"}}`,
		`{"number":3,"title":"Old","state":"closed","user":{"login":"eve"},"closed_at":"2026-10-14T10:00:00Z"}`,
		`{"number":4,"title":"Odd date","state":"closed","user":{"login":"eve"},"closed_at":"yesterday"}`,
	)
	api.bodies["/repos/acme/widgets/pulls"] = array(
		`{"number":5,"title":"Add widget","state":"closed","user":{"login":"ada"},"merged_at":"2026-10-16T09:00:00Z","updated_at":"2026-10-16T09:00:00Z"}`,
		`{"number":6,"title":"Stale","state":"closed","user":{"login":"ada"},"closed_at":"2026-10-13T09:00:00Z","updated_at":"2026-10-13T09:00:00Z"}`,
	)
	api.bodies["/repos/acme/widgets/releases"] = array(
		`{"tag_name":"v1.2.0","name":"Widgets 1.2","published_at":"2026-10-15T12:00:00Z"}`,
		`{"tag_name":"v2.0.0","draft":true,"published_at":"2026-10-16T01:00:00Z"}`,
		`{"tag_name":"v1.3.0-rc.1","published_at":"2026-10-16T08:00:00Z"}`,
	)

	ch, fs := newTestChannel(t, api, nil, epoch)
	records, err := ch.Fetch(context.Background(), channel.FetchRequest{})
	require.NoError(t, err)

	counts := channel.CountByKind(records)
	assert.Equal(t, 10, counts[channel.KindCommit])
	assert.Equal(t, 1, counts[channel.KindIssue])
	assert.Equal(t, 1, counts[channel.KindPullRequest])
	assert.Equal(t, 2, counts[channel.KindRelease])

	assert.Equal(t, []string{
		"/repos/acme/widgets/commits",
		"/repos/acme/widgets/issues",
		"/repos/acme/widgets/pulls",
		"/repos/acme/widgets/releases",
	}, api.paths())
	assert.Equal(t, "2026-10-15T00:00:00Z", api.query("/repos/acme/widgets/commits")["since"])
	assert.Equal(t, "closed", api.query("/repos/acme/widgets/issues")["state"])

	first := records[0]
	assert.Equal(t, "abcdef0", first.Fields.Value("sha"))
	assert.Equal(t, "primary-repo", first.SourceChannel)
	assert.True(t, first.HasTimestamp())

	var releases []channel.RawRecord
	for _, r := range records {
		if r.Kind == channel.KindRelease {
			releases = append(releases, r)
		}
		if r.Kind == channel.KindPullRequest {
			assert.Equal(t, "true", r.Fields.Value("merged"))
		}
	}
	require.Len(t, releases, 2)
	assert.Equal(t, "v1.3.0-rc.1", releases[0].Fields.Value("tag"))
	assert.Equal(t, "true", releases[0].Fields.Value("prerelease"))
	assert.Equal(t, "1.2.0", releases[1].Fields.Value("version"))

	art, err := ch.Export(records, channel.ExportOptions{Now: epoch})
	require.NoError(t, err)
	assert.Equal(t, "out/daily_progress/acme_widgets/2026-10-16.md", art.Path)
	assert.Equal(t, 14, art.Records)

	fm, body, err := channel.ReadArtifact(fs, art.Path)
	require.NoError(t, err)
	assert.Equal(t, "primary-repo", fm.Channel)
	assert.Equal(t, 10, fm.Counts[channel.KindCommit])
	assert.Contains(t, body, "# GitHub Updates for acme/widgets (2026-10-16)")
	assert.Contains(t, body, "## Commits")
	assert.Contains(t, body, "- [abcdef0] change 1 - Ada")
	assert.Contains(t, body, "## Issues")
	assert.Contains(t, body, "- #1 Crash on start - bob")
	assert.Contains(t, body, "## Pull Requests")
	assert.Contains(t, body, "## Releases")
	assert.Contains(t, body, "v1.3.0-rc.1 v1.3.0-rc.1 (prerelease)")
}

func TestChannel_FetchWindowIsInclusive(t *testing.T) {
	api := newFakeAPI()
	api.bodies["/repos/acme/widgets/commits"] = array(
		commitJSON("1111111aaa", "before", "2026-09-30T23:59:59Z"),
		commitJSON("2222222bbb", "at since", "2026-10-01T00:00:00Z"),
		commitJSON("3333333ccc", "at until", "2026-10-02T00:00:00Z"),
		commitJSON("4444444ddd", "after", "2026-10-02T00:00:01Z"),
	)

	ch, _ := newTestChannel(t, api, map[string]string{"releases": "false"}, epoch)
	req := channel.FetchRequest{
		Since: time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC),
		Until: time.Date(2026, 10, 2, 0, 0, 0, 0, time.UTC),
	}
	records, err := ch.Fetch(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, records, 2)
	assert.Equal(t, "at since", records[0].Fields.Value("message"))
	assert.Equal(t, "at until", records[1].Fields.Value("message"))
	assert.Equal(t, "2026-10-02T00:00:00Z", api.query("/repos/acme/widgets/commits")["until"])
	assert.NotContains(t, api.paths(), "/repos/acme/widgets/releases")

	art, err := ch.Export(records, channel.ExportOptions{Request: req, Now: epoch})
	require.NoError(t, err)
	assert.Equal(t, "out/daily_progress/acme_widgets/2026-10-01_to_2026-10-02.md", art.Path)
}

func TestChannel_FetchLimitOverride(t *testing.T) {
	api := newFakeAPI()
	var commits []string
	for i := 0; i < 150; i++ {
		commits = append(commits, commitJSON(fmt.Sprintf("%07d", i), "c", "2026-10-15T06:00:00Z"))
	}
	api.bodies["/repos/acme/widgets/commits"] = array(commits...)

	ch, _ := newTestChannel(t, api, map[string]string{"releases": "false"}, epoch)
	records, err := ch.Fetch(context.Background(), channel.FetchRequest{Limit: 200})
	require.NoError(t, err)
	assert.Len(t, records, 150)
}

func TestChannel_FetchSourceIDOverridesDefault(t *testing.T) {
	api := newFakeAPI()
	ch, _ := newTestChannel(t, api, map[string]string{"releases": "false"}, epoch)

	_, err := ch.Fetch(context.Background(), channel.FetchRequest{SourceID: "other/repo"})
	require.NoError(t, err)
	assert.Equal(t, "/repos/other/repo/commits", api.paths()[0])
}

func TestChannel_FetchPermanentFailureStops(t *testing.T) {
	api := newFakeAPI()
	api.statuses["/repos/acme/widgets/commits"] = http.StatusNotFound

	ch, _ := newTestChannel(t, api, nil, epoch)
	_, err := ch.Fetch(context.Background(), channel.FetchRequest{})

	require.Error(t, err)
	assert.True(t, errors.IsPermanent(err))
	assert.Equal(t, errors.KindPermanent, errors.KindOf(err))
	assert.Len(t, api.paths(), 1)
}

func TestChannel_FetchRequiresRepository(t *testing.T) {
	api := newFakeAPI()
	ch, _ := newTestChannel(t, api, map[string]string{"default_repo": ""}, epoch)

	_, err := ch.Fetch(context.Background(), channel.FetchRequest{})
	assert.True(t, errors.IsConfigError(err))

	_, err = ch.Fetch(context.Background(), channel.FetchRequest{SourceID: "no-slash"})
	assert.True(t, errors.IsInvalidRequestError(err))
	assert.Empty(t, api.paths())
}

func TestChannel_ExportMultiDayName(t *testing.T) {
	ch, _ := newTestChannel(t, newFakeAPI(), map[string]string{"days": "3"}, epoch)
	rec := channel.NewRecord(channel.KindCommit, "primary-repo", epoch, "repo", "acme/widgets", "sha", "abc1234", "message", "m")

	art, err := ch.Export([]channel.RawRecord{rec}, channel.ExportOptions{Now: epoch})
	require.NoError(t, err)
	assert.Equal(t, "out/daily_progress/acme_widgets/2026-10-13_to_2026-10-16.md", art.Path)
}

func TestChannel_ExportEmpty(t *testing.T) {
	ch, fs := newTestChannel(t, newFakeAPI(), nil, epoch)

	art, err := ch.Export(nil, channel.ExportOptions{Now: epoch})
	require.NoError(t, err)
	assert.True(t, art.IsEmpty())

	exists, err := afero.DirExists(fs, "out/daily_progress")
	require.NoError(t, err)
	assert.False(t, exists)
}
