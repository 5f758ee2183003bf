package am

import (
	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Source-control provider
	v.SetDefault("github.api_base_url", "https://api.github.com")
	v.SetDefault("github.per_page", 100)
	v.SetDefault("github.max_reset_wait_seconds", 3600)
	v.SetDefault("github.page_retries", 3)
	v.SetDefault("github.allow_partial", true)
	v.SetDefault("github.requests_per_second", 0)
	v.SetDefault("github.timeout_seconds", 30)

	// Daemon
	v.SetDefault("daemon.tick_interval_seconds", 1)
	v.SetDefault("daemon.freq_days", 1)
	v.SetDefault("daemon.exec_time", "08:00")
	v.SetDefault("daemon.primary_channel", "primary-repo")
	v.SetDefault("daemon.output_dir", ".")
	v.SetDefault("daemon.metrics_addr", "")
	v.SetDefault("daemon.history_size", 50)
	v.SetDefault("daemon.watch_config", false)
	v.SetDefault("daemon.timezone", "")

	// Summarizer
	v.SetDefault("llm.type", "openai")
	v.SetDefault("llm.base_url", "") // per-backend default
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.timeout_seconds", 120)
	v.SetDefault("llm.max_tokens", 4096)
	v.SetDefault("llm.dry_run", false)

	// Notifier
	v.SetDefault("notify.log", true)
	v.SetDefault("notify.nats_subject", "sentinel.reports")
}

// DefaultConfig returns the configuration written by `sentinel am init`:
// the viper defaults plus a starter channel list.
func DefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)
	cfg, err := LoadWithViper(v)
	if err != nil {
		// defaults always decode
		panic(err)
	}

	cfg.Channels = []ChannelEntry{
		{
			Type: "github",
			Name: "primary-repo",
			Params: map[string]any{
				"default_repo": "acme/widgets",
				"days":         1,
			},
		},
		{
			Type:          "hacker_news",
			Name:          "news",
			ExecutionTime: "09:00",
		},
		{
			Type:          "rss",
			Name:          "feed-x",
			ExecutionTime: "10:00",
			Deferred:      true,
			Params: map[string]any{
				"feed_url": "https://go.dev/blog/feed.atom",
			},
		},
	}
	return cfg
}
