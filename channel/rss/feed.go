package rss

import (
	"bytes"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/teranos/sentinel/errors"
)

// entry is one feed item, normalized
type entry struct {
	title       string
	link        string
	description string // raw HTML
	published   string // as written in the feed
	author      string
	ts          time.Time
	dated       bool
}

// parseFeed detects the format (RSS 0.9x/1.0/2.0, Atom, JSON Feed) and
// returns the feed title and its items in feed order.
func parseFeed(data []byte) (string, []entry, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return "", nil, errors.New("empty feed")
	}
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(data))
	if err != nil {
		return "", nil, errors.Wrap(err, "parse feed")
	}
	out := make([]entry, 0, len(feed.Items))
	for _, it := range feed.Items {
		if it == nil {
			continue
		}
		out = append(out, toEntry(it))
	}
	return strings.TrimSpace(feed.Title), out, nil
}

func toEntry(it *gofeed.Item) entry {
	e := entry{
		title:       strings.TrimSpace(it.Title),
		link:        strings.TrimSpace(it.Link),
		description: strings.TrimSpace(firstNonEmpty(it.Description, it.Content)),
		published:   strings.TrimSpace(firstNonEmpty(it.Published, it.Updated)),
	}
	for _, p := range it.Authors {
		if p != nil && strings.TrimSpace(p.Name) != "" {
			e.author = strings.TrimSpace(p.Name)
			break
		}
	}
	e.ts, e.dated = itemTime(it)
	return e
}

// itemTime is the publication time in UTC, falling back to the update time
func itemTime(it *gofeed.Item) (time.Time, bool) {
	switch {
	case it.PublishedParsed != nil:
		return it.PublishedParsed.UTC(), true
	case it.UpdatedParsed != nil:
		return it.UpdatedParsed.UTC(), true
	}
	return time.Time{}, false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
