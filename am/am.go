// Package am loads and validates sentinel's configuration (am.toml).
//
// Configuration is read with viper from a TOML file, overlaid with
// SENTINEL_* environment variables. The [[channels]] list is the declarative
// channel registration input consumed by the daemon at startup and on reload.
package am

import (
	"fmt"
	"sort"
)

// Config represents the sentinel configuration
type Config struct {
	GitHub   GitHubConfig   `mapstructure:"github" toml:"github"`
	Daemon   DaemonConfig   `mapstructure:"daemon" toml:"daemon"`
	LLM      LLMConfig      `mapstructure:"llm" toml:"llm"`
	Notify   NotifyConfig   `mapstructure:"notify" toml:"notify"`
	Channels []ChannelEntry `mapstructure:"channels" toml:"channels"`
}

// GitHubConfig configures the source-control provider shared by all github channels
type GitHubConfig struct {
	Token               string  `mapstructure:"token" toml:"token"`                                   // Fallback token when a channel has none
	APIBaseURL          string  `mapstructure:"api_base_url" toml:"api_base_url"`                     // default https://api.github.com
	PerPage             int     `mapstructure:"per_page" toml:"per_page"`                             // capped at 100
	MaxResetWaitSeconds int     `mapstructure:"max_reset_wait_seconds" toml:"max_reset_wait_seconds"` // longest quota reset we block for (default 3600)
	PageRetries         int     `mapstructure:"page_retries" toml:"page_retries"`                     // transient retries per page (default 3)
	AllowPartial        bool    `mapstructure:"allow_partial" toml:"allow_partial"`                   // return accumulated pages on transient failure
	RequestsPerSecond   float64 `mapstructure:"requests_per_second" toml:"requests_per_second"`       // client-side limiter, 0 = unlimited
	TimeoutSeconds      int     `mapstructure:"timeout_seconds" toml:"timeout_seconds"`
}

// DaemonConfig configures the scheduler loop
type DaemonConfig struct {
	TickIntervalSeconds int    `mapstructure:"tick_interval_seconds" toml:"tick_interval_seconds"` // default 1
	FreqDays            int    `mapstructure:"freq_days" toml:"freq_days"`                         // primary job cadence in days
	ExecTime            string `mapstructure:"exec_time" toml:"exec_time"`                         // primary job time of day, "HH:MM"
	PrimaryChannel      string `mapstructure:"primary_channel" toml:"primary_channel"`             // always runs on start
	OutputDir           string `mapstructure:"output_dir" toml:"output_dir"`                       // artifact root
	MetricsAddr         string `mapstructure:"metrics_addr" toml:"metrics_addr"`                   // status server, empty = disabled
	HistorySize         int    `mapstructure:"history_size" toml:"history_size"`                   // executions kept in memory
	WatchConfig         bool   `mapstructure:"watch_config" toml:"watch_config"`                   // re-register channels on am.toml change
	Timezone            string `mapstructure:"timezone" toml:"timezone"`                           // IANA zone for times of day, empty = Local
}

// LLMConfig configures the summarizer backend
type LLMConfig struct {
	Type           string `mapstructure:"type" toml:"type"` // openai, ollama, openrouter
	BaseURL        string `mapstructure:"base_url" toml:"base_url"`
	Model          string `mapstructure:"model" toml:"model"`
	APIKey         string `mapstructure:"api_key" toml:"api_key"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" toml:"timeout_seconds"`
	MaxTokens      int    `mapstructure:"max_tokens" toml:"max_tokens"`
	DryRun         bool   `mapstructure:"dry_run" toml:"dry_run"`
	PromptDir      string `mapstructure:"prompt_dir" toml:"prompt_dir"`
}

// NotifyConfig configures report delivery. Every configured target receives every report.
type NotifyConfig struct {
	Log         bool   `mapstructure:"log" toml:"log"`
	WebhookURL  string `mapstructure:"webhook_url" toml:"webhook_url"`
	NATSURL     string `mapstructure:"nats_url" toml:"nats_url"`
	NATSSubject string `mapstructure:"nats_subject" toml:"nats_subject"`
}

// ChannelEntry is one declarative channel registration
type ChannelEntry struct {
	Type          string         `mapstructure:"type" toml:"type"`
	Name          string         `mapstructure:"name" toml:"name"`
	ExecutionTime string         `mapstructure:"execution_time" toml:"execution_time,omitempty"` // "HH:MM", empty = hourly channel default
	Cron          string         `mapstructure:"cron" toml:"cron,omitempty"`                     // five-field cron, overrides execution_time
	EveryNDays    int            `mapstructure:"every_n_days" toml:"every_n_days,omitempty"`
	RunOnStart    bool           `mapstructure:"run_on_start" toml:"run_on_start,omitempty"`
	Deferred      bool           `mapstructure:"deferred" toml:"deferred,omitempty"` // construct on first use
	Params        map[string]any `mapstructure:"params" toml:"params,omitempty"`
}

// StringParams flattens Params to the string mapping channels consume.
// Numbers and booleans are rendered with their natural formatting.
func (e ChannelEntry) StringParams() map[string]string {
	out := make(map[string]string, len(e.Params))
	for k, v := range e.Params {
		if v == nil {
			continue
		}
		out[k] = fmt.Sprint(v)
	}
	return out
}

// ChannelNames returns the configured channel names, sorted.
func (c *Config) ChannelNames() []string {
	names := make([]string, 0, len(c.Channels))
	for _, e := range c.Channels {
		names = append(names, e.Name)
	}
	sort.Strings(names)
	return names
}

// Permissions used when creating artifact and config directories
const (
	DefaultDirPermissions  = 0755
	DefaultFilePermissions = 0644
)
