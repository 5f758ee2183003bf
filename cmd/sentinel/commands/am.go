package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/teranos/sentinel/am"
	"github.com/teranos/sentinel/channel/builtin"
	"github.com/teranos/sentinel/display"
	"github.com/teranos/sentinel/errors"
)

// AmCmd represents the am (configuration) command
var AmCmd = &cobra.Command{
	Use:   "am",
	Short: "Show or initialize configuration",
	Long: `am - sentinel configuration ("I am")

Configuration sources (in order of precedence):
1. Environment variables (SENTINEL_* prefix, e.g. SENTINEL_GITHUB_TOKEN)
2. --config path
3. Project config (./am.toml, searched walking up)
4. User config (~/.sentinel/am.toml)
5. Default values

Examples:
  sentinel am show                 # Show current configuration (secrets masked)
  sentinel am show --format json   # Show configuration as JSON
  sentinel am init                 # Write a starter ./am.toml
  sentinel am validate             # Validate configuration and channel entries`,
}

var amShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runAmShow,
}

var amInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a starter configuration",
	Long:  "Write the default configuration with an example channel list to path (default ./am.toml).",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAmInit,
}

var amValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate current configuration",
	RunE:  runAmValidate,
}

var configFormat string

func init() {
	amShowCmd.Flags().StringVar(&configFormat, "format", "toml", "Output format: toml, json, yaml")
	amInitCmd.Flags().Bool("force", false, "Replace an existing file (a .back1 copy is kept)")

	AmCmd.AddCommand(amShowCmd)
	AmCmd.AddCommand(amInitCmd)
	AmCmd.AddCommand(amValidateCmd)
}

func runAmShow(cmd *cobra.Command, args []string) error {
	cfg, path, err := loadConfig(cmd)
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	cfg = cfg.Redacted()

	source := path
	if source == "" {
		source = "defaults and environment"
	}

	switch configFormat {
	case "json":
		return display.OutputJSON(cfg)
	case "yaml":
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return errors.Wrap(err, "failed to marshal config to YAML")
		}
		fmt.Printf("# sentinel configuration (%s)\n%s", source, data)
	case "toml":
		data, err := am.Marshal(cfg)
		if err != nil {
			return err
		}
		fmt.Printf("# sentinel configuration (%s)\n%s", source, data)
	default:
		return errors.Newf("unsupported format: %s (supported: toml, json, yaml)", configFormat)
	}
	return nil
}

func runAmInit(cmd *cobra.Command, args []string) error {
	path := am.ConfigFileName
	if len(args) == 1 {
		path = args[0]
	}
	force, _ := cmd.Flags().GetBool("force")

	if err := am.WriteDefault(path, force); err != nil {
		return err
	}
	abs, _ := filepath.Abs(path)
	pterm.Success.Printfln("Wrote %s", abs)
	pterm.Info.Println("Set SENTINEL_GITHUB_TOKEN and SENTINEL_LLM_API_KEY, then run: sentinel daemon")
	return nil
}

func runAmValidate(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "configuration validation failed")
	}

	types := make(map[string]bool)
	for _, t := range builtin.Types() {
		types[t] = true
	}
	invalid := 0
	for _, e := range cfg.Channels {
		err := e.Validate()
		if err == nil && !types[e.Type] {
			err = errors.Newf("channel %q: unknown type %q", e.Name, e.Type)
		}
		if err != nil {
			pterm.Warning.Println(err.Error())
			invalid++
		}
	}
	if invalid > 0 {
		fmt.Fprintf(os.Stderr, "%d of %d channel entries will be skipped\n", invalid, len(cfg.Channels))
		return nil
	}
	pterm.Success.Printfln("Configuration is valid (%d channels)", len(cfg.Channels))
	return nil
}
