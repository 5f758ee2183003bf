// Package report turns exported artifacts into human-readable reports: a
// Summarizer condenses the artifact and the Pipeline hands the result to a
// notifier. The Pipeline is the single place a fetch, export, summarize or
// notify failure becomes a recorded Result.
package report

import (
	"context"
	"encoding/json"
	"path"
	"strings"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/teranos/sentinel/ai/chat"
	"github.com/teranos/sentinel/ai/provider"
	"github.com/teranos/sentinel/channel"
	"github.com/teranos/sentinel/errors"
	"github.com/teranos/sentinel/logger"
)

// DryRun is returned in place of a summary when no model call was made.
const DryRun = "DRY RUN"

// PromptFile is written next to the artifact in dry-run mode.
const PromptFile = "prompt.json"

// Input is one artifact to summarize.
type Input struct {
	Channel      channel.Descriptor
	ArtifactPath string
	Content      string // artifact body, front matter stripped
}

// Summarizer condenses raw markdown into prose.
type Summarizer interface {
	Summarize(ctx context.Context, in Input) (string, error)
}

// LLMSummarizer summarizes through a chat completion backend.
type LLMSummarizer struct {
	client  provider.AIClient
	prompts Prompts
	fs      afero.Fs
	dryRun  bool
	logger  *zap.SugaredLogger
}

// LLMOptions configures an LLMSummarizer
type LLMOptions struct {
	Client  provider.AIClient // may be nil when DryRun is set
	Prompts Prompts
	Fs      afero.Fs // where dry-run prompts are written; nil = OS filesystem
	DryRun  bool
	Logger  *zap.SugaredLogger
}

// NewLLMSummarizer creates a summarizer. Zero prompts fall back to the
// built-in ones.
func NewLLMSummarizer(opts LLMOptions) (*LLMSummarizer, error) {
	if opts.Client == nil && !opts.DryRun {
		return nil, errors.NewConfigError("summarizer requires an llm client unless dry_run is set")
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	defaults := DefaultPrompts()
	if opts.Prompts.Report == "" {
		opts.Prompts.Report = defaults.Report
	}
	if opts.Prompts.Trend == "" {
		opts.Prompts.Trend = defaults.Trend
	}
	if opts.Prompts.Feed == "" {
		opts.Prompts.Feed = defaults.Feed
	}
	return &LLMSummarizer{
		client:  opts.Client,
		prompts: opts.Prompts,
		fs:      opts.Fs,
		dryRun:  opts.DryRun,
		logger:  logger.OrNop(opts.Logger),
	}, nil
}

// Summarize sends the artifact with the prompt for the channel's kind. In
// dry-run mode the messages are saved to prompt.json beside the artifact
// and DryRun is returned.
func (s *LLMSummarizer) Summarize(ctx context.Context, in Input) (string, error) {
	req := chat.ChatRequest{
		SystemPrompt: s.prompts.For(in.Channel.Kind),
		UserPrompt:   in.Content,
	}

	if s.dryRun {
		p := path.Join(path.Dir(in.ArtifactPath), PromptFile)
		data, err := json.MarshalIndent(chat.Messages(req), "", "    ")
		if err != nil {
			return "", errors.WrapSummarize(err, "marshal prompt")
		}
		if err := afero.WriteFile(s.fs, p, data, 0644); err != nil {
			return "", errors.WrapSummarize(err, "write %s", p)
		}
		s.logger.Infow("Dry run, prompt saved", logger.FieldChannel, in.Channel.Name, logger.FieldPath, p)
		return DryRun, nil
	}

	s.logger.Debugw("Requesting summary",
		logger.FieldChannel, in.Channel.Name,
		logger.FieldKind, in.Channel.Kind,
		"input_chars", len(in.Content),
	)
	resp, err := s.client.Chat(ctx, req)
	if err != nil {
		return "", errors.WrapSummarize(err, "summarize %s", in.ArtifactPath)
	}
	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return "", errors.WrapSummarize(errors.New("model returned an empty reply"), "summarize %s", in.ArtifactPath)
	}
	return text, nil
}

// ReportPath names the report written for an artifact:
// "2026-10-16.md" becomes "2026-10-16_report.md".
func ReportPath(artifactPath string) string {
	return strings.TrimSuffix(artifactPath, path.Ext(artifactPath)) + "_report.md"
}
