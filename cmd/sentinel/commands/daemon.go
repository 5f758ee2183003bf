package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teranos/sentinel/errors"
	"github.com/teranos/sentinel/logger"
	"github.com/teranos/sentinel/pulse/daemon"
	"github.com/teranos/sentinel/version"
)

// DaemonCmd runs the scheduler in the foreground
var DaemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the scheduler until interrupted",
	Long: `Run the sentinel daemon in the foreground.

The daemon will:
- Register every [[channels]] entry (bad entries are logged and skipped)
- Run the primary channel and hourly channels once immediately
- Tick every daemon.tick_interval_seconds and run due jobs in order
- Serve /healthz, /metrics, /channels and /jobs on daemon.metrics_addr
- Stop after the job in flight on SIGINT or SIGTERM (a second signal cancels it)`,
	RunE: runDaemon,
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, path, err := loadConfig(cmd)
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	log := logger.ComponentLogger("daemon")
	log.Infow("Starting sentinel", "version", version.Get().String(), logger.FieldPath, path)

	d, err := daemon.New(cfg, daemon.Options{ConfigPath: path, Logger: log})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	// First signal lets the job in flight finish; a second one cancels it.
	go func() {
		select {
		case sig := <-sigChan:
			log.Infow("Received signal, shutting down after the current job", "signal", sig.String())
			d.Shutdown()
		case <-ctx.Done():
			return
		}
		select {
		case sig := <-sigChan:
			log.Warnw("Received second signal, cancelling", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	return d.Run(ctx)
}
