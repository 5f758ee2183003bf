package commands

import (
	"sort"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/teranos/sentinel/channel"
	"github.com/teranos/sentinel/display"
	"github.com/teranos/sentinel/errors"
	"github.com/teranos/sentinel/logger"
	"github.com/teranos/sentinel/pulse/daemon"
)

// ChannelsCmd groups channel inspection commands
var ChannelsCmd = &cobra.Command{
	Use:   "channels",
	Short: "Inspect configured channels",
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var channelsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List registered channels",
	Long: `Register every [[channels]] entry the way the daemon does and list the
result. Deferred channels are not constructed. Entries that fail validation
are listed as skipped with the reason.`,
	RunE: runChannelsLs,
}

func init() {
	channelsLsCmd.Flags().BoolP("json", "j", false, "Output as JSON")
	ChannelsCmd.AddCommand(channelsLsCmd)
}

func runChannelsLs(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	loc, err := daemon.Location(cfg.Daemon.Timezone)
	if err != nil {
		return err
	}
	reg, _, res := daemon.NewRegistry(cfg, afero.NewOsFs(), daemon.Clock(loc), logger.ComponentLogger("channels"))
	statuses := reg.Statuses()

	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(statuses)
	}

	data := pterm.TableData{{"NAME", "TYPE", "KIND", "MODE", "CONFIG"}}
	for _, s := range statuses {
		mode := "eager"
		if s.Deferred {
			mode = "deferred"
		}
		data = append(data, []string{s.Name, s.Type, string(s.Kind), mode, formatConfig(s.Config)})
	}
	if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
		return err
	}

	if len(res.Skipped) > 0 {
		pterm.Println()
		names := make([]string, 0, len(res.Skipped))
		for name := range res.Skipped {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			pterm.Warning.Printfln("skipped %q: %v", name, res.Skipped[name])
		}
	}
	return nil
}

// formatConfig renders redacted channel parameters as sorted key=value pairs
func formatConfig(cfg map[string]string) string {
	redacted := channel.RedactConfig(cfg)
	keys := make([]string, 0, len(redacted))
	for k := range redacted {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+redacted[k])
	}
	return strings.Join(parts, " ")
}
