package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teranos/pulsedesk/am"
	"github.com/teranos/pulsedesk/cmd/pulsedesk/commands"
	"github.com/teranos/pulsedesk/logger"
)

var rootCmd = &cobra.Command{
	Use:   "pulsedesk",
	Short: "pulsedesk - helpdesk automation engine and health monitor",
	Long: `pulsedesk runs time-planned automation jobs against helpdesk records
and watches the health of the system around them.

Available commands:
  am      - Show the configuration ("I am")
  db      - Migrate and inspect the database
  jobs    - Run, list and import automation jobs
  monitor - Run the health check or an amount check
  pulse   - Run background workers and the scheduler
  server  - Start the monitoring HTTP server (includes pulse)

Examples:
  pulsedesk server                 # Serve /api/v1/monitoring and run pulse
  pulsedesk jobs import jobs.yaml  # Create or update automation jobs
  pulsedesk monitor health         # Print the health report`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		jsonLogs, _ := cmd.Flags().GetBool("json-logs")
		if !jsonLogs {
			if cfg, err := am.Load(); err == nil {
				jsonLogs = cfg.Log.JSON
			}
		}
		if err := logger.Initialize(jsonLogs); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		verbosity, _ := cmd.Flags().GetCount("verbose")
		logger.SetLevel(logger.VerbosityToLevel(verbosity))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv)")
	rootCmd.PersistentFlags().Bool("json-logs", false, "Write logs as JSON")

	rootCmd.AddCommand(commands.AmCmd)
	rootCmd.AddCommand(commands.DbCmd)
	rootCmd.AddCommand(commands.JobsCmd)
	rootCmd.AddCommand(commands.MonitorCmd)
	rootCmd.AddCommand(commands.PulseCmd)
	rootCmd.AddCommand(commands.ServerCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	defer logger.Cleanup()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
