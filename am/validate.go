package am

import (
	"time"

	"github.com/teranos/sentinel/errors"
)

// Supported summarizer backends
var validLLMTypes = map[string]bool{
	"openai":     true,
	"ollama":     true,
	"openrouter": true,
}

// Validate checks that the global sections are usable. Channel entries are
// validated one by one at registration (ChannelEntry.Validate) so a bad entry
// only skips that channel.
func (c *Config) Validate() error {
	if c.GitHub.PerPage < 1 || c.GitHub.PerPage > 100 {
		return errors.Newf("github.per_page must be in [1, 100], got %d", c.GitHub.PerPage)
	}
	if c.GitHub.MaxResetWaitSeconds <= 0 {
		return errors.Newf("github.max_reset_wait_seconds must be > 0, got %d", c.GitHub.MaxResetWaitSeconds)
	}
	if c.GitHub.PageRetries < 0 {
		return errors.Newf("github.page_retries must be >= 0, got %d", c.GitHub.PageRetries)
	}
	if c.GitHub.RequestsPerSecond < 0 {
		return errors.Newf("github.requests_per_second must be >= 0, got %f", c.GitHub.RequestsPerSecond)
	}

	if c.Daemon.TickIntervalSeconds <= 0 {
		return errors.Newf("daemon.tick_interval_seconds must be > 0, got %d", c.Daemon.TickIntervalSeconds)
	}
	if c.Daemon.FreqDays < 1 {
		return errors.Newf("daemon.freq_days must be >= 1, got %d", c.Daemon.FreqDays)
	}
	if _, err := time.Parse("15:04", c.Daemon.ExecTime); err != nil {
		return errors.WithHint(
			errors.Newf("daemon.exec_time %q is not HH:MM", c.Daemon.ExecTime),
			"use 24h notation, e.g. exec_time = \"08:00\"")
	}
	if c.Daemon.Timezone != "" {
		if _, err := time.LoadLocation(c.Daemon.Timezone); err != nil {
			return errors.Wrapf(err, "daemon.timezone %q", c.Daemon.Timezone)
		}
	}

	if !validLLMTypes[c.LLM.Type] {
		return errors.Newf("llm.type must be one of openai, ollama, openrouter, got %q", c.LLM.Type)
	}

	if c.Notify.NATSURL != "" && c.Notify.NATSSubject == "" {
		return errors.New("notify.nats_subject cannot be empty when notify.nats_url is set")
	}

	return nil
}

// Validate checks the fields every channel entry needs regardless of type.
// Failures are ConfigErrors: the entry is skipped, other channels proceed.
func (e ChannelEntry) Validate() error {
	if e.Name == "" {
		return errors.NewConfigError("channel entry of type %q has no name", e.Type)
	}
	if e.Type == "" {
		return errors.NewConfigError("channel %q has no type", e.Name)
	}
	if e.ExecutionTime != "" {
		if _, err := time.Parse("15:04", e.ExecutionTime); err != nil {
			return errors.NewConfigError("channel %q: execution_time %q is not HH:MM", e.Name, e.ExecutionTime)
		}
	}
	if e.EveryNDays < 0 {
		return errors.NewConfigError("channel %q: every_n_days must be >= 0, got %d", e.Name, e.EveryNDays)
	}
	return nil
}
