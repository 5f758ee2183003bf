package am

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/teranos/sentinel/errors"
)

// EnvPrefix is prepended to environment overrides, e.g. SENTINEL_GITHUB_TOKEN.
const EnvPrefix = "SENTINEL"

// ConfigFileName is the file searched for when no explicit path is given.
const ConfigFileName = "am.toml"

// Load resolves the configuration file (see ResolvePath) and loads it.
// A missing file is not an error: defaults and environment apply.
func Load(explicitPath string) (*Config, string, error) {
	path := ResolvePath(explicitPath)
	if path == "" {
		cfg, err := LoadWithViper(newViper())
		return cfg, "", err
	}
	cfg, err := LoadFromFile(path)
	return cfg, path, err
}

// LoadWithViper loads configuration using a provided Viper instance
func LoadWithViper(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	return &config, nil
}

// LoadFromFile loads configuration from a specific file path.
// This is the startup load: an unreadable or malformed file is fatal.
func LoadFromFile(configPath string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(configPath)
	v.SetConfigType("toml")

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", configPath)
	}

	config, err := LoadWithViper(v)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal config from %s", configPath)
	}
	return config, nil
}

// newViper initializes Viper with environment binding and defaults
func newViper() *viper.Viper {
	v := viper.New()

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only sees keys viper already knows; secrets have no defaults
	_ = v.BindEnv("github.token", EnvPrefix+"_GITHUB_TOKEN", "GITHUB_TOKEN")
	_ = v.BindEnv("llm.api_key", EnvPrefix+"_LLM_API_KEY")

	SetDefaults(v)
	return v
}

// ResolvePath picks the configuration file to load.
// Precedence: explicit path, then am.toml found walking up from the working
// directory, then ~/.sentinel/am.toml. Returns "" when none exists.
func ResolvePath(explicitPath string) string {
	if explicitPath != "" {
		return explicitPath
	}
	if p := findProjectConfig(); p != "" {
		return p
	}
	if home, err := os.UserHomeDir(); err == nil {
		p := filepath.Join(home, ".sentinel", ConfigFileName)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// findProjectConfig searches for am.toml by walking up the directory tree
func findProjectConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		p := filepath.Join(dir, ConfigFileName)
		if _, err := os.Stat(p); err == nil {
			return p
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}
