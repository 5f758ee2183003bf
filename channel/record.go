package channel

import (
	"time"

	"github.com/teranos/sentinel/errors"
)

// RecordKind tags what a RawRecord describes, independent of its channel.
type RecordKind string

const (
	KindCommit      RecordKind = "commit"
	KindIssue       RecordKind = "issue"
	KindPullRequest RecordKind = "pull_request"
	KindRelease     RecordKind = "release"
	KindStory       RecordKind = "story"
	KindPost        RecordKind = "post"
	KindFeedItem    RecordKind = "feed_item"
)

// Field is one ordered key/value pair of a record.
type Field struct {
	Key   string `json:"key" yaml:"key"`
	Value string `json:"value" yaml:"value"`
}

// Fields is an ordered mapping. Order is the order the channel produced them
// in and is kept through export.
type Fields []Field

// Get returns the value for key.
func (f Fields) Get(key string) (string, bool) {
	for _, kv := range f {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return "", false
}

// Value returns the value for key, or "" when absent.
func (f Fields) Value(key string) string {
	v, _ := f.Get(key)
	return v
}

// RawRecord is the normalized unit of ingested data. Values are never
// mutated after Fetch returns them.
type RawRecord struct {
	Kind          RecordKind `json:"kind"`
	SourceChannel string     `json:"source_channel"`
	Fields        Fields     `json:"fields"`
	Rank          int        `json:"rank,omitempty"`      // 0 = unranked
	Timestamp     time.Time  `json:"timestamp,omitempty"` // zero = unknown
}

// HasTimestamp reports whether the provider supplied a usable time.
func (r RawRecord) HasTimestamp() bool {
	return !r.Timestamp.IsZero()
}

// NewRecord builds a record from alternating key/value strings.
func NewRecord(kind RecordKind, source string, ts time.Time, kv ...string) RawRecord {
	fields := make(Fields, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		fields = append(fields, Field{Key: kv[i], Value: kv[i+1]})
	}
	return RawRecord{Kind: kind, SourceChannel: source, Fields: fields, Timestamp: ts}
}

// FetchRequest parameterizes one fetch. Zero times mean "no bound".
type FetchRequest struct {
	SourceID string    // repo "owner/name", subreddit, feed url override
	Since    time.Time // inclusive
	Until    time.Time // inclusive
	Limit    int       // 0 = channel default
}

// Validate enforces since <= until when both are present.
func (r FetchRequest) Validate() error {
	if r.Limit < 0 {
		return errors.NewInvalidRequestError("limit must be >= 0, got %d", r.Limit)
	}
	if !r.Since.IsZero() && !r.Until.IsZero() && r.Since.After(r.Until) {
		return errors.NewInvalidRequestError("since %s is after until %s",
			r.Since.Format(time.RFC3339), r.Until.Format(time.RFC3339))
	}
	return nil
}

// InWindow reports whether t lies in [Since, Until]. Both bounds are inclusive
// and a zero bound is open.
func (r FetchRequest) InWindow(t time.Time) bool {
	if !r.Since.IsZero() && t.Before(r.Since) {
		return false
	}
	if !r.Until.IsZero() && t.After(r.Until) {
		return false
	}
	return true
}

// LimitOr returns the request limit, or def when unset.
func (r FetchRequest) LimitOr(def int) int {
	if r.Limit > 0 {
		return r.Limit
	}
	return def
}

// CountByKind tallies records per kind.
func CountByKind(records []RawRecord) map[RecordKind]int {
	counts := make(map[RecordKind]int)
	for _, r := range records {
		counts[r.Kind]++
	}
	return counts
}
