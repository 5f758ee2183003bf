package hackernews

import (
	"bytes"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/teranos/sentinel/errors"
)

// story is one front-page entry
type story struct {
	rank     int
	id       string
	title    string
	link     string
	site     string
	comments string
}

// parseFrontPage extracts stories in page order. Each story row is a
// tr.athing whose span.titleline holds the title anchor; span.rank carries
// the displayed position. Relative links are resolved against base.
func parseFrontPage(body []byte, base *url.URL) ([]story, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "parse front page")
	}

	var stories []story
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Tr && hasClass(n, "athing") {
			if s, ok := parseRow(n, base); ok {
				if s.rank == 0 {
					s.rank = len(stories) + 1
				}
				stories = append(stories, s)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return stories, nil
}

func parseRow(row *html.Node, base *url.URL) (story, bool) {
	s := story{id: attr(row, "id")}

	if rank := findFirst(row, func(n *html.Node) bool { return hasClass(n, "rank") }); rank != nil {
		s.rank, _ = strconv.Atoi(strings.TrimSuffix(strings.TrimSpace(text(rank)), "."))
	}

	line := findFirst(row, func(n *html.Node) bool { return hasClass(n, "titleline") })
	if line == nil {
		// older markup: td.title > a.storylink
		line = row
	}
	anchor := findFirst(line, func(n *html.Node) bool {
		return n.DataAtom == atom.A && (line != row || hasClass(n, "storylink"))
	})
	if anchor == nil {
		return s, false
	}

	s.title = strings.TrimSpace(text(anchor))
	s.link = resolve(base, attr(anchor, "href"))
	if site := findFirst(line, func(n *html.Node) bool { return hasClass(n, "sitestr") }); site != nil {
		s.site = strings.TrimSpace(text(site))
	}
	if s.id != "" {
		s.comments = resolve(base, "item?id="+s.id)
	}
	return s, s.title != ""
}

func findFirst(n *html.Node, match func(*html.Node) bool) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && match(c) {
			return c
		}
		if found := findFirst(c, match); found != nil {
			return found
		}
	}
	return nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func text(n *html.Node) string {
	var b strings.Builder
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(n)
	return b.String()
}

func resolve(base *url.URL, href string) string {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil || base == nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
