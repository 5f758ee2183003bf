package am

import (
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/teranos/sentinel/channel"
	"github.com/teranos/sentinel/errors"
)

const redacted = "********"

// Marshal renders cfg as TOML.
func Marshal(cfg *Config) ([]byte, error) {
	out, err := toml.Marshal(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal config")
	}
	return out, nil
}

// WriteDefault writes the starter configuration to configPath.
// An existing file is kept as configPath.back1 when overwrite is set,
// otherwise WriteDefault refuses to touch it.
func WriteDefault(configPath string, overwrite bool) error {
	if _, err := os.Stat(configPath); err == nil {
		if !overwrite {
			return errors.WithHint(
				errors.Newf("%s already exists", configPath),
				"pass --force to replace it (a .back1 copy is kept)")
		}
		if err := createBackup(configPath); err != nil {
			return err
		}
	}

	content, err := Marshal(DefaultConfig())
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(configPath), DefaultDirPermissions); err != nil {
		return errors.Wrapf(err, "failed to create directory for %s", configPath)
	}
	if err := os.WriteFile(configPath, content, DefaultFilePermissions); err != nil {
		return errors.Wrapf(err, "failed to write %s", configPath)
	}
	return nil
}

// createBackup copies the current file to .back1 before it is replaced
func createBackup(configPath string) error {
	content, err := os.ReadFile(configPath)
	if err != nil {
		return errors.Wrap(err, "failed to read config for backup")
	}
	if err := os.WriteFile(configPath+".back1", content, DefaultFilePermissions); err != nil {
		return errors.Wrap(err, "failed to create .back1")
	}
	return nil
}

// Redacted returns a copy of cfg with credentials masked, for display.
func (c *Config) Redacted() *Config {
	out := *c
	out.GitHub.Token = mask(c.GitHub.Token)
	out.LLM.APIKey = mask(c.LLM.APIKey)

	out.Channels = make([]ChannelEntry, len(c.Channels))
	for i, e := range c.Channels {
		params := make(map[string]any, len(e.Params))
		for k, v := range e.Params {
			if channel.IsSecretKey(k) {
				if s, ok := v.(string); ok {
					v = mask(s)
				}
			}
			params[k] = v
		}
		e.Params = params
		out.Channels[i] = e
	}
	return &out
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return redacted
}
