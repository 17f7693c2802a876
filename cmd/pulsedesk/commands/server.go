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
	"github.com/teranos/pulsedesk/logger"
	"github.com/teranos/pulsedesk/server"
	"github.com/teranos/pulsedesk/version"
)

// ServerCmd starts the monitoring server together with pulse
var ServerCmd = &cobra.Command{
	Use:     "server",
	Aliases: []string{"serve"},
	Short:   "Start the monitoring HTTP server with workers and scheduler",
	Long: `Serve the monitoring API under /api/v1/monitoring, Prometheus metrics
under /metrics and run the background workers and scheduler ticker until
interrupted. Config file changes to thresholds and the token apply live.`,
	RunE: runServer,
}

var (
	serverDBPath  string
	serverPort    int
	serverNoPulse bool
)

func init() {
	ServerCmd.Flags().StringVar(&serverDBPath, "db-path", "", "Custom database path (overrides config)")
	ServerCmd.Flags().IntVar(&serverPort, "port", 0, "Listen port (overrides config)")
	ServerCmd.Flags().BoolVar(&serverNoPulse, "no-pulse", false, "Serve monitoring only, without workers and scheduler")
}

func runServer(cmd *cobra.Command, args []string) error {
	if v, _ := cmd.Flags().GetCount("verbose"); v == 0 {
		logger.SetLevel(logger.VerbosityToLevel(logger.VerbosityInfo))
	}

	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	if serverDBPath != "" {
		cfg.Database.Path = serverDBPath
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

	if !serverNoPulse {
		pool := a.newWorkerPool()
		ticker, err := a.newTicker(ctx)
		if err != nil {
			return err
		}
		pool.Start(ctx)
		defer pool.Stop()
		ticker.Start(ctx)
		defer ticker.Stop()
	}

	port := am.DefaultServerPort
	if cfg.Server.Port != nil {
		port = *cfg.Server.Port
	}
	if serverPort > 0 {
		port = serverPort
	}

	deps := server.Deps{
		Auth:    a.auth,
		Health:  a.health,
		Amount:  a.amount,
		Status:  a.status,
		Queue:   a.queue,
		Metrics: a.metrics,
	}
	if cfg.Server.MetricsEnabled {
		deps.Gatherer = a.reg
	}
	srv, err := server.New(deps, server.Config{
		Bind:              cfg.Server.Bind,
		Port:              port,
		RequestsPerSecond: cfg.Server.RequestsPerSecond,
		Burst:             cfg.Server.Burst,
	}, nil)
	if err != nil {
		return err
	}

	if watcher := startConfigWatcher(a, func(c *am.Config) {
		srv.SetRateLimit(c.Server.RequestsPerSecond, c.Server.Burst)
	}); watcher != nil {
		defer watcher.Stop()
	}

	printBanner(srv.Addr(), cfg.Database.Path, !serverNoPulse)
	return srv.ListenAndServe(ctx)
}

// startConfigWatcher reloads the app when a loaded config file changes.
// Without config files there is nothing to watch.
func startConfigWatcher(a *app, extra func(*am.Config)) *am.ConfigWatcher {
	files := am.LoadedFrom()
	if len(files) == 0 {
		return nil
	}
	watcher, err := am.NewConfigWatcher(files...)
	if err != nil {
		logger.Warnw("Config watcher unavailable", logger.FieldError, err)
		return nil
	}
	watcher.OnReload(a.reload)
	if extra != nil {
		watcher.OnReload(func(c *am.Config) error {
			extra(c)
			return nil
		})
	}
	watcher.Start()
	return watcher
}

func printBanner(addr, dbPath string, pulse bool) {
	pterm.DefaultSection.Println(version.Name + " " + version.Get().Short())
	_ = pterm.DefaultBulletList.WithItems([]pterm.BulletListItem{
		{Level: 0, Text: "Monitoring: http://" + addr + "/api/v1/monitoring"},
		{Level: 0, Text: "Database:   " + dbPath},
		{Level: 0, Text: "Pulse:      " + onOff(pulse)},
	}).Render()
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
