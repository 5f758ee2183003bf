package github

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/teranos/sentinel/channel"
)

// Provider payload shapes, reduced to the fields records carry

type apiUser struct {
	Login string `json:"login"`
}

type apiCommit struct {
	SHA     string `json:"sha"`
	HTMLURL string `json:"html_url"`
	Commit  struct {
		Message string `json:"message"`
		Author  struct {
			Name string `json:"name"`
			Date string `json:"date"`
		} `json:"author"`
	} `json:"commit"`
}

type apiIssue struct {
	Number      int             `json:"number"`
	Title       string          `json:"title"`
	State       string          `json:"state"`
	User        apiUser         `json:"user"`
	HTMLURL     string          `json:"html_url"`
	ClosedAt    string          `json:"closed_at"`
	MergedAt    string          `json:"merged_at"`
	UpdatedAt   string          `json:"updated_at"`
	PullRequest json.RawMessage `json:"pull_request"`
}

type apiRelease struct {
	TagName     string `json:"tag_name"`
	Name        string `json:"name"`
	HTMLURL     string `json:"html_url"`
	Prerelease  bool   `json:"prerelease"`
	Draft       bool   `json:"draft"`
	PublishedAt string `json:"published_at"`
}

// stamped pairs a record with the raw timestamp string it was dated by
type stamped struct {
	record channel.RawRecord
	raw    string
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func parseCommits(items []json.RawMessage, source, repo string) []stamped {
	out := make([]stamped, 0, len(items))
	for _, raw := range items {
		var c apiCommit
		if json.Unmarshal(raw, &c) != nil || c.SHA == "" {
			continue
		}
		sha := c.SHA
		if len(sha) > 7 {
			sha = sha[:7]
		}
		out = append(out, stamped{
			raw: c.Commit.Author.Date,
			record: channel.NewRecord(channel.KindCommit, source, time.Time{},
				"repo", repo,
				"sha", sha,
				"message", c.Commit.Message,
				"author", c.Commit.Author.Name,
				"date", c.Commit.Author.Date,
				"url", c.HTMLURL),
		})
	}
	return out
}

// parseIssues reads the issues listing, which also contains pull requests;
// those are skipped here and fetched from the pulls listing instead.
func parseIssues(items []json.RawMessage, source, repo string) []stamped {
	out := make([]stamped, 0, len(items))
	for _, raw := range items {
		var is apiIssue
		if json.Unmarshal(raw, &is) != nil || is.Number == 0 {
			continue
		}
		if len(is.PullRequest) > 0 && string(is.PullRequest) != "null" {
			continue
		}
		date := firstNonEmpty(is.ClosedAt, is.UpdatedAt)
		out = append(out, stamped{
			raw: date,
			record: channel.NewRecord(channel.KindIssue, source, time.Time{},
				"repo", repo,
				"number", strconv.Itoa(is.Number),
				"title", is.Title,
				"state", is.State,
				"user", is.User.Login,
				"date", date,
				"url", is.HTMLURL),
		})
	}
	return out
}

func parsePulls(items []json.RawMessage, source, repo string) []stamped {
	out := make([]stamped, 0, len(items))
	for _, raw := range items {
		var pr apiIssue
		if json.Unmarshal(raw, &pr) != nil || pr.Number == 0 {
			continue
		}
		date := firstNonEmpty(pr.MergedAt, pr.ClosedAt, pr.UpdatedAt)
		merged := "false"
		if pr.MergedAt != "" {
			merged = "true"
		}
		out = append(out, stamped{
			raw: date,
			record: channel.NewRecord(channel.KindPullRequest, source, time.Time{},
				"repo", repo,
				"number", strconv.Itoa(pr.Number),
				"title", pr.Title,
				"state", pr.State,
				"merged", merged,
				"user", pr.User.Login,
				"date", date,
				"url", pr.HTMLURL),
		})
	}
	return out
}

// parseReleases skips drafts. Tags that parse as semantic versions get a
// normalized "version" field; the prerelease flag is set when either the
// provider or the version says so.
func parseReleases(items []json.RawMessage, source, repo string) []stamped {
	out := make([]stamped, 0, len(items))
	for _, raw := range items {
		var rel apiRelease
		if json.Unmarshal(raw, &rel) != nil || rel.TagName == "" || rel.Draft {
			continue
		}
		version := ""
		prerelease := rel.Prerelease
		if v, err := semver.NewVersion(rel.TagName); err == nil {
			version = v.String()
			prerelease = prerelease || v.Prerelease() != ""
		}
		out = append(out, stamped{
			raw: rel.PublishedAt,
			record: channel.NewRecord(channel.KindRelease, source, time.Time{},
				"repo", repo,
				"tag", rel.TagName,
				"name", firstNonEmpty(rel.Name, rel.TagName),
				"version", version,
				"prerelease", strconv.FormatBool(prerelease),
				"date", rel.PublishedAt,
				"url", rel.HTMLURL),
		})
	}
	return out
}

// sortReleases orders releases highest version first; tags that are not
// semantic versions keep provider order after the versioned ones.
func sortReleases(records []channel.RawRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		vi, ei := semver.NewVersion(records[i].Fields.Value("version"))
		vj, ej := semver.NewVersion(records[j].Fields.Value("version"))
		switch {
		case ei == nil && ej == nil:
			return vi.GreaterThan(vj)
		case ei == nil:
			return true
		default:
			return false
		}
	})
}

// itemTimestamp extracts a timestamp field from a raw item for early
// pagination stop. Unparsable values never stop pagination.
func itemTimestamp(raw json.RawMessage, fields ...string) (time.Time, bool) {
	var obj map[string]any
	if json.Unmarshal(raw, &obj) != nil {
		return time.Time{}, false
	}
	for _, f := range fields {
		if s, ok := obj[f].(string); ok && s != "" {
			if t, err := time.Parse(time.RFC3339, s); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

// firstLine trims a commit message to its subject, at most n runes
func firstLine(s string, n int) string {
	s, _, _ = strings.Cut(s, "\n")
	s = strings.TrimSpace(s)
	if r := []rune(s); len(r) > n {
		return string(r[:n])
	}
	return s
}
