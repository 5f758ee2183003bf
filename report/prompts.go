package report

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/teranos/sentinel/channel"
	"github.com/teranos/sentinel/errors"
	"github.com/teranos/sentinel/logger"
)

// Prompt file names looked up in the prompt directory.
const (
	ReportPromptFile     = "report_prompt.txt"
	HackerNewsPromptFile = "hacker_news_prompt.txt"
	FeedPromptFile       = "feed_prompt.txt"
)

const defaultReportPrompt = `You are a project progress analyst. The input is a markdown list of one
repository's commits, closed issues, merged pull requests and releases for a
date range. Write a concise progress report with the sections "New features",
"Fixes" and "Other changes". Mention issue and pull request numbers. Do not
invent work that is not in the input.`

const defaultTrendPrompt = `You are a technology trend analyst. The input is a ranked list of the
current top stories on a link aggregator. Group related stories into themes,
name the three strongest trends and say in one sentence each why they matter
to software engineers. Keep the report under 400 words.`

const defaultFeedPrompt = `You summarize new feed entries. The input is a markdown list of feed items
with titles, links and excerpts. Write a short digest: one line per notable
item, most significant first, and skip entries that carry no information.`

// Prompts holds the system prompt for each channel kind.
type Prompts struct {
	Report string // source control
	Trend  string // link aggregators
	Feed   string
}

// DefaultPrompts returns the built-in prompts.
func DefaultPrompts() Prompts {
	return Prompts{Report: defaultReportPrompt, Trend: defaultTrendPrompt, Feed: defaultFeedPrompt}
}

// LoadPrompts reads prompt overrides from dir. Missing files keep the
// built-in prompt; an empty dir returns the defaults.
func LoadPrompts(fs afero.Fs, dir string, log *zap.SugaredLogger) (Prompts, error) {
	p := DefaultPrompts()
	if dir == "" {
		return p, nil
	}
	log = logger.OrNop(log)

	for file, dst := range map[string]*string{
		ReportPromptFile:     &p.Report,
		HackerNewsPromptFile: &p.Trend,
		FeedPromptFile:       &p.Feed,
	} {
		full := filepath.Join(dir, file)
		raw, err := afero.ReadFile(fs, full)
		if err != nil {
			if os.IsNotExist(err) {
				log.Debugw("Prompt file not found, using built-in prompt", logger.FieldPath, full)
				continue
			}
			return p, errors.Wrapf(err, "read prompt %s", full)
		}
		if text := strings.TrimSpace(string(raw)); text != "" {
			*dst = text
		}
	}
	return p, nil
}

// For selects the prompt for a channel kind.
func (p Prompts) For(kind channel.ChannelKind) string {
	switch kind {
	case channel.LinkAggregator:
		return p.Trend
	case channel.Feed:
		return p.Feed
	default:
		return p.Report
	}
}
