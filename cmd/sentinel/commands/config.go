package commands

import (
	"github.com/spf13/cobra"

	"github.com/teranos/sentinel/am"
	"github.com/teranos/sentinel/logger"
)

// loadConfig loads the configuration selected by --config. Unknown keys are
// reported as warnings: viper drops them silently.
func loadConfig(cmd *cobra.Command) (*am.Config, string, error) {
	explicit, _ := cmd.Flags().GetString("config")
	cfg, path, err := am.Load(explicit)
	if err != nil {
		return nil, path, err
	}
	if path != "" {
		unknown, err := am.CheckUnknownKeys(path)
		if err != nil {
			logger.Logger.Warnw("Could not check for unknown config keys", logger.FieldPath, path, logger.FieldError, err)
		}
		for _, key := range unknown {
			logger.Logger.Warnw("Unknown config key ignored", "key", key, logger.FieldPath, path)
		}
	}
	return cfg, path, nil
}
