package commands

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/pterm/pterm"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/teranos/sentinel/channel"
	"github.com/teranos/sentinel/display"
	"github.com/teranos/sentinel/errors"
	"github.com/teranos/sentinel/logger"
	"github.com/teranos/sentinel/pulse/daemon"
	"github.com/teranos/sentinel/report"
)

// FetchCmd runs one channel outside the scheduler
var FetchCmd = &cobra.Command{
	Use:   "fetch <channel>",
	Short: "Fetch one channel now",
	Long: `Fetch records from one registered channel and print them.

With --export the records are also written as an artifact under
daemon.output_dir. With --report the full pipeline runs: fetch, export,
summarize and notify, exactly as a scheduled job would.

--since and --until accept a date (2006-01-02) or an RFC3339 timestamp.
A date-only --until covers the whole day.

Examples:
  sentinel fetch primary-repo --since 2026-10-01 --until 2026-10-15 --export
  sentinel fetch news --limit 10
  sentinel fetch feed-x --report`,
	Args: cobra.ExactArgs(1),
	RunE: runFetch,
}

func init() {
	addFetchFlags(FetchCmd.Flags())
}

func addFetchFlags(flags *pflag.FlagSet) {
	flags.String("since", "", "Window start (inclusive)")
	flags.String("until", "", "Window end (inclusive)")
	flags.Int("limit", 0, "Maximum records (0 = channel default)")
	flags.String("source", "", "Source override (repo owner/name, subreddit, feed url)")
	flags.Bool("export", false, "Write the records as an artifact")
	flags.Bool("report", false, "Run the full report pipeline")
	flags.BoolP("json", "j", false, "Print records as JSON")
}

func runFetch(cmd *cobra.Command, args []string) error {
	name := args[0]
	req, err := fetchRequestFromFlags(cmd)
	if err != nil {
		return err
	}

	cfg, path, err := loadConfig(cmd)
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	log := logger.ComponentLogger("fetch")
	ctx := logger.WithChannel(context.Background(), name)

	if doReport, _ := cmd.Flags().GetBool("report"); doReport {
		d, err := daemon.New(cfg, daemon.Options{ConfigPath: path, Logger: log})
		if err != nil {
			return err
		}
		res := d.Pipeline().Run(ctx, name, req)
		return printResult(res)
	}

	loc, err := daemon.Location(cfg.Daemon.Timezone)
	if err != nil {
		return err
	}
	reg, _, _ := daemon.NewRegistry(cfg, afero.NewOsFs(), daemon.Clock(loc), log)

	start := time.Now()
	records, err := reg.Fetch(ctx, name, req)
	if err != nil {
		return err
	}

	if display.ShouldOutputJSON(cmd) {
		if err := display.OutputJSON(records); err != nil {
			return err
		}
	} else {
		printRecords(records)
		pterm.Info.Printfln("%d records from %s in %s", len(records), name, time.Since(start).Round(time.Millisecond))
	}

	if doExport, _ := cmd.Flags().GetBool("export"); doExport {
		if len(records) == 0 {
			pterm.Warning.Println("No records, nothing exported")
			return nil
		}
		artifact, err := reg.Export(ctx, name, records, channel.ExportOptions{Request: req})
		if err != nil {
			return err
		}
		pterm.Success.Printfln("Exported %d records to %s", artifact.Records, artifact.Path)
	}
	return nil
}

func fetchRequestFromFlags(cmd *cobra.Command) (channel.FetchRequest, error) {
	var req channel.FetchRequest
	var err error

	since, _ := cmd.Flags().GetString("since")
	if req.Since, err = parseWindowTime(since, false); err != nil {
		return req, err
	}
	until, _ := cmd.Flags().GetString("until")
	if req.Until, err = parseWindowTime(until, true); err != nil {
		return req, err
	}
	req.Limit, _ = cmd.Flags().GetInt("limit")
	req.SourceID, _ = cmd.Flags().GetString("source")

	return req, req.Validate()
}

// parseWindowTime accepts RFC3339 or a bare UTC date. A bare date used as
// an upper bound is extended to the last second of that day.
func parseWindowTime(s string, endOfDay bool) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, errors.WithHint(
			errors.NewInvalidRequestError("invalid time %q", s),
			"use 2006-01-02 or RFC3339")
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Second)
	}
	return t, nil
}

func printRecords(records []channel.RawRecord) {
	if len(records) == 0 {
		return
	}
	data := pterm.TableData{{"#", "KIND", "TITLE", "TIME"}}
	for i, r := range records {
		ts := "-"
		if r.HasTimestamp() {
			ts = r.Timestamp.Format("2006-01-02 15:04")
		}
		data = append(data, []string{fmt.Sprint(i + 1), string(r.Kind), recordTitle(r), ts})
	}
	_ = pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

// recordTitle picks the most descriptive field of a record for display
func recordTitle(r channel.RawRecord) string {
	for _, key := range []string{"title", "message", "name", "tag", "sha"} {
		if v := r.Fields.Value(key); v != "" {
			return shorten(v, 72)
		}
	}
	return ""
}

func shorten(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n-3]) + "..."
}

func printResult(res report.Result) error {
	switch res.Outcome {
	case report.OutcomeEmpty:
		pterm.Warning.Printfln("%s: no records, nothing exported", res.Channel)
	case report.OutcomeOK:
		pterm.Success.Printfln("%s: %d records", res.Channel, res.Records)
		pterm.Info.Printfln("Artifact: %s", res.Artifact.Path)
		if res.ReportPath != "" {
			pterm.Info.Printfln("Report:   %s", res.ReportPath)
		}
		if res.NotifyErr != nil {
			pterm.Warning.Printfln("Delivery failed: %v", res.NotifyErr)
		}
	case report.OutcomeFailed:
		return res.Err
	}
	return nil
}
