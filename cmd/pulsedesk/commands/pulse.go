package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/pulsedesk/am"
	"github.com/teranos/pulsedesk/errors"
)

// PulseCmd groups the background processing commands
var PulseCmd = &cobra.Command{
	Use:   "pulse",
	Short: "Run background workers and the scheduler",
	Long: `Pulse runs the background job workers (ticket notifications) and the
scheduler ticker, which runs the automation jobs and cleans up finished
background jobs on their configured periods.

Example:
  pulsedesk pulse start              # Run in foreground
  pulsedesk pulse start --workers 3  # With 3 concurrent workers`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// PulseStartCmd starts workers and ticker in the foreground
var PulseStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start workers and scheduler in the foreground",
	RunE:  runPulseStart,
}

func init() {
	PulseStartCmd.Flags().Int("workers", 0, "Number of concurrent workers (overrides config)")
	PulseCmd.AddCommand(PulseStartCmd)
}

func runPulseStart(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	if workers, _ := cmd.Flags().GetInt("workers"); workers > 0 {
		cfg.Pulse.Workers = workers
	}

	database, err := openDatabase(cfg, "")
	if err != nil {
		return err
	}
	defer database.Close()

	a, err := newApp(cfg, database)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool := a.newWorkerPool()
	ticker, err := a.newTicker(ctx)
	if err != nil {
		return err
	}
	pool.Start(ctx)
	ticker.Start(ctx)
	if watcher := startConfigWatcher(a, nil); watcher != nil {
		defer watcher.Stop()
	}

	pterm.Info.Printfln("Pulse started: %d worker(s), scheduler every %s", cfg.Pulse.Workers, cfg.Pulse.TickerInterval)
	pterm.Info.Println("Press Ctrl+C for graceful shutdown")
	<-ctx.Done()

	pterm.Info.Println("Shutting down...")
	ticker.Stop()
	pool.Stop()
	pterm.Success.Println("Pulse stopped")
	return nil
}
