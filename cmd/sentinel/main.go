package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/teranos/sentinel/cmd/sentinel/commands"
	"github.com/teranos/sentinel/logger"
)

var rootCmd = &cobra.Command{
	Use:   "sentinel",
	Short: "sentinel - scheduled activity digests from code hosts, link aggregators and feeds",
	Long: `sentinel pulls activity from configured channels (a source-control host,
link aggregators, syndication feeds), writes each run as a dated markdown
artifact, summarizes it and delivers the report.

Available commands:
  daemon    - Run the scheduler until interrupted
  channels  - Inspect configured channels
  fetch     - Fetch (and optionally export) one channel now
  am        - Show or initialize configuration ("I am")
  version   - Show build information

Examples:
  sentinel am init                    # Write a starter am.toml
  sentinel channels ls                # List registered channels
  sentinel fetch news --limit 10      # One-shot fetch
  sentinel daemon -v                  # Run the scheduler with info logs`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Secrets may live in ./.env; a missing file is fine
		_ = godotenv.Load()

		verbosity, _ := cmd.Flags().GetCount("verbose")
		jsonLogs, _ := cmd.Flags().GetBool("json-logs")
		if err := logger.Initialize(jsonLogs, verbosity); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to am.toml (default: ./am.toml, walking up, then ~/.sentinel/am.toml)")
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv, -vvv)")
	rootCmd.PersistentFlags().Bool("json-logs", false, "Emit structured JSON logs")

	rootCmd.AddCommand(commands.DaemonCmd)
	rootCmd.AddCommand(commands.ChannelsCmd)
	rootCmd.AddCommand(commands.FetchCmd)
	rootCmd.AddCommand(commands.AmCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	err := rootCmd.Execute()
	logger.Cleanup()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
