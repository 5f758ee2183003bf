package report

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/sentinel/ai/chat"
	"github.com/teranos/sentinel/channel"
	"github.com/teranos/sentinel/errors"
)

type fakeAI struct {
	requests []chat.ChatRequest
	reply    string
	err      error
}

func (f *fakeAI) Chat(_ context.Context, req chat.ChatRequest) (*chat.ChatResponse, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return &chat.ChatResponse{Content: f.reply, Model: "gpt-4o-mini"}, nil
}

func input(kind channel.ChannelKind) Input {
	return Input{
		Channel:      channel.Descriptor{Name: "news", Type: "hacker_news", Kind: kind},
		ArtifactPath: "out/hacker_news/news/2026-10-16/09.md",
		Content:      "1. [Show HN: sentinel](https://example.com)\n",
	}
}

func TestLLMSummarizerPicksPromptByKind(t *testing.T) {
	ai := &fakeAI{reply: "  Trends: tooling.  \n"}
	s, err := NewLLMSummarizer(LLMOptions{
		Client:  ai,
		Prompts: Prompts{Trend: "trend prompt"},
		Fs:      afero.NewMemMapFs(),
	})
	require.NoError(t, err)

	got, err := s.Summarize(context.Background(), input(channel.LinkAggregator))
	require.NoError(t, err)
	assert.Equal(t, "Trends: tooling.", got)

	_, err = s.Summarize(context.Background(), input(channel.SourceControl))
	require.NoError(t, err)

	require.Len(t, ai.requests, 2)
	assert.Equal(t, "trend prompt", ai.requests[0].SystemPrompt)
	assert.Equal(t, input(channel.LinkAggregator).Content, ai.requests[0].UserPrompt)
	assert.Equal(t, DefaultPrompts().Report, ai.requests[1].SystemPrompt, "unset prompts fall back to built-ins")
}

func TestLLMSummarizerFailures(t *testing.T) {
	s, err := NewLLMSummarizer(LLMOptions{Client: &fakeAI{err: errors.New("status 500")}})
	require.NoError(t, err)
	_, err = s.Summarize(context.Background(), input(channel.Feed))
	assert.True(t, errors.Is(err, errors.ErrSummarize))

	s, err = NewLLMSummarizer(LLMOptions{Client: &fakeAI{reply: "   "}})
	require.NoError(t, err)
	_, err = s.Summarize(context.Background(), input(channel.Feed))
	assert.True(t, errors.Is(err, errors.ErrSummarize))
	assert.Contains(t, err.Error(), "empty reply")
}

func TestLLMSummarizerRequiresClient(t *testing.T) {
	_, err := NewLLMSummarizer(LLMOptions{})
	assert.True(t, errors.IsConfigError(err))
}

func TestLLMSummarizerDryRun(t *testing.T) {
	fs := afero.NewMemMapFs()
	ai := &fakeAI{}
	s, err := NewLLMSummarizer(LLMOptions{Client: ai, DryRun: true, Fs: fs})
	require.NoError(t, err)

	got, err := s.Summarize(context.Background(), input(channel.LinkAggregator))
	require.NoError(t, err)
	assert.Equal(t, DryRun, got)
	assert.Empty(t, ai.requests, "no model call in dry run")

	raw, err := afero.ReadFile(fs, "out/hacker_news/news/2026-10-16/prompt.json")
	require.NoError(t, err)
	var msgs []chat.Message
	require.NoError(t, json.Unmarshal(raw, &msgs))
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].Role)
	assert.Equal(t, DefaultPrompts().Trend, msgs[0].Content)
	assert.Equal(t, "user", msgs[1].Role)
}

func TestLoadPrompts(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "prompts/report_prompt.txt", []byte("  custom report prompt\n"), 0644))
	require.NoError(t, afero.WriteFile(fs, "prompts/feed_prompt.txt", []byte("\n\n"), 0644))

	p, err := LoadPrompts(fs, "prompts", nil)
	require.NoError(t, err)
	assert.Equal(t, "custom report prompt", p.Report)
	assert.Equal(t, DefaultPrompts().Trend, p.Trend, "missing file keeps built-in")
	assert.Equal(t, DefaultPrompts().Feed, p.Feed, "blank file keeps built-in")

	p, err = LoadPrompts(fs, "", nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultPrompts(), p)
}

func TestPromptsFor(t *testing.T) {
	p := Prompts{Report: "r", Trend: "t", Feed: "f"}
	assert.Equal(t, "r", p.For(channel.SourceControl))
	assert.Equal(t, "t", p.For(channel.LinkAggregator))
	assert.Equal(t, "f", p.For(channel.Feed))
	assert.Equal(t, "r", p.For("unknown"))
}

func TestReportPath(t *testing.T) {
	assert.Equal(t, "out/daily_progress/acme_widgets/2026-10-16_report.md",
		ReportPath("out/daily_progress/acme_widgets/2026-10-16.md"))
	assert.Equal(t, "out/hacker_news/news/2026-10-16/09_report.md",
		ReportPath("out/hacker_news/news/2026-10-16/09.md"))
}
