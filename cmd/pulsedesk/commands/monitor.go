package commands

import (
	"fmt"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/pulsedesk/display"
	"github.com/teranos/pulsedesk/errors"
	"github.com/teranos/pulsedesk/logger"
	"github.com/teranos/pulsedesk/monitor"
)

// MonitorCmd runs the monitoring checks from the command line
var MonitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Run the health check or an amount check",
	Long: `Run the same checks the monitoring API serves, without the server.
The exit status is non-zero when the system is unhealthy or an amount check is
not ok, so the commands can back a cron job or an external probe.

Examples:
  pulsedesk monitor health
  pulsedesk monitor amount --periode 1h --min-warning 5 --min-critical 1`,
}

var monitorHealthCmd = &cobra.Command{
	Use:   "health",
	Short: "Print the health report",
	RunE:  runMonitorHealth,
}

var monitorAmountCmd = &cobra.Command{
	Use:   "amount",
	Short: "Count recently created records against thresholds",
	RunE:  runMonitorAmount,
}

var (
	amountPeriode string
	amountMinWarn int
	amountMinCrit int
	amountMaxWarn int
	amountMaxCrit int
)

func init() {
	MonitorCmd.PersistentFlags().Bool("json", false, "Print JSON")
	monitorAmountCmd.Flags().StringVar(&amountPeriode, "periode", "1h", "Window to count, e.g. 30s, 15m, 1h, 2d")
	monitorAmountCmd.Flags().IntVar(&amountMinWarn, "min-warning", 0, "Warn below this count")
	monitorAmountCmd.Flags().IntVar(&amountMinCrit, "min-critical", 0, "Critical below this count")
	monitorAmountCmd.Flags().IntVar(&amountMaxWarn, "max-warning", 0, "Warn above this count")
	monitorAmountCmd.Flags().IntVar(&amountMaxCrit, "max-critical", 0, "Critical above this count")
	MonitorCmd.AddCommand(monitorHealthCmd, monitorAmountCmd)
}

func runMonitorHealth(cmd *cobra.Command, args []string) error {
	a, closeDB, err := loadApp()
	if err != nil {
		return err
	}
	defer closeDB()

	report := a.health.Check(cmd.Context(), time.Now())
	if display.ShouldOutputJSON(cmd) {
		if err := display.OutputJSON(report); err != nil {
			return err
		}
	} else {
		printReport(report)
	}
	if !report.Healthy {
		logger.MonitorWarnw("Health check failed", logger.FieldCount, len(report.Issues))
		return errors.New("system is unhealthy")
	}
	return nil
}

func printReport(r monitor.Report) {
	if r.Healthy {
		pterm.Success.Println("Healthy")
	} else {
		pterm.Error.Printfln("Unhealthy: %d issue(s)", len(r.Issues))
		items := make([]pterm.BulletListItem, 0, len(r.Issues))
		for _, issue := range r.Issues {
			items = append(items, pterm.BulletListItem{Level: 0, Text: issue})
		}
		_ = pterm.DefaultBulletList.WithItems(items).Render()
	}
	for _, check := range r.Unknown {
		pterm.Warning.Printfln("Check %s could not run", check)
	}
}

// flagThreshold turns an int flag into a threshold when it was set
func flagThreshold(cmd *cobra.Command, name string, v int) *int {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	return &v
}

func runMonitorAmount(cmd *cobra.Command, args []string) error {
	a, closeDB, err := loadApp()
	if err != nil {
		return err
	}
	defer closeDB()

	th := monitor.Thresholds{
		MinWarning:  flagThreshold(cmd, "min-warning", amountMinWarn),
		MinCritical: flagThreshold(cmd, "min-critical", amountMinCrit),
		MaxWarning:  flagThreshold(cmd, "max-warning", amountMaxWarn),
		MaxCritical: flagThreshold(cmd, "max-critical", amountMaxCrit),
	}
	res, err := a.amount.Check(cmd.Context(), amountPeriode, th, time.Now())
	if err != nil {
		return err
	}

	if display.ShouldOutputJSON(cmd) {
		if err := display.OutputJSON(res); err != nil {
			return err
		}
	} else {
		msg := fmt.Sprintf("%s: %d %s in the last %s", res.State, res.Count, a.cfg.Monitoring.AmountCheckEntity, amountPeriode)
		if res.Message != "" {
			msg += " (" + res.Message + ")"
		}
		switch res.State {
		case monitor.StateOK:
			pterm.Success.Println(msg)
		case monitor.StateWarning:
			pterm.Warning.Println(msg)
		default:
			pterm.Error.Println(msg)
		}
	}
	if res.State != monitor.StateOK {
		return errors.Newf("amount check is %s", res.State)
	}
	return nil
}
