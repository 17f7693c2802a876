package commands

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/teranos/pulsedesk/am"
	"github.com/teranos/pulsedesk/auth"
	"github.com/teranos/pulsedesk/automation"
	"github.com/teranos/pulsedesk/automation/record"
	"github.com/teranos/pulsedesk/channel"
	"github.com/teranos/pulsedesk/db"
	"github.com/teranos/pulsedesk/errors"
	"github.com/teranos/pulsedesk/importjob"
	"github.com/teranos/pulsedesk/logger"
	"github.com/teranos/pulsedesk/monitor"
	"github.com/teranos/pulsedesk/pulse/async"
	"github.com/teranos/pulsedesk/pulse/schedule"
	"github.com/teranos/pulsedesk/ticket"
	"github.com/teranos/pulsedesk/version"
)

// Scheduler task methods registered with the ticker
const (
	methodAutomationRun = "automation.Runner.run"
	methodAsyncCleanup  = "pulse.async.cleanup"
	cleanupPeriod       = time.Hour
)

// app holds every component wired from one configuration
type app struct {
	cfg *am.Config
	db  *sql.DB

	jobs    *automation.Store
	tickets *ticket.Store
	runner  *automation.Runner

	queue    *async.Queue
	handlers *async.HandlerRegistry
	tasks    *schedule.Store

	health  *monitor.HealthAggregator
	amount  *monitor.AmountChecker
	status  *monitor.StatusCollector
	metrics *monitor.Metrics
	reg     *prometheus.Registry

	auth *auth.Authenticator
}

// openDatabase opens and migrates the database at path, falling back to the
// configured path.
func openDatabase(cfg *am.Config, path string) (*sql.DB, error) {
	if path == "" {
		path = cfg.Database.Path
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, am.DefaultDirPermissions); err != nil {
			return nil, errors.Wrapf(err, "failed to create database directory %s", dir)
		}
	}
	database, err := db.OpenWithMigrations(path, logger.Logger)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database at %s", path)
	}
	return database, nil
}

func runnerConfig(cfg *am.Config) automation.RunnerConfig {
	loc, err := cfg.Automation.Location()
	if err != nil {
		// Validate rejects unknown zones before we get here
		loc = time.UTC
	}
	return automation.RunnerConfig{
		Cooldown:   cfg.Automation.Cooldown,
		BatchLimit: cfg.Automation.BatchLimit,
		PageSize:   cfg.Automation.PageSize,
		Location:   loc,
		Interval:   cfg.Automation.RunPeriod,
	}
}

// newApp wires the stores, the runner and the monitor on database.
func newApp(cfg *am.Config, database *sql.DB) (*app, error) {
	a := &app{cfg: cfg, db: database}

	a.queue = async.NewQueue(database, async.QueueConfig{
		MaxAttempts:  cfg.Pulse.MaxAttempts,
		RetryBackoff: cfg.Pulse.RetryBackoff,
	})
	a.handlers = async.NewHandlerRegistry()
	a.handlers.Register(ticket.NewNotificationJobHandler(ticket.NewLogDeliverer(nil)))

	a.jobs = automation.NewStore(database)
	a.tickets = ticket.NewStore(database, ticket.NewQueueNotifier(a.queue))
	a.runner = automation.NewRunner(a.jobs, []record.Store{a.tickets}, runnerConfig(cfg), nil)

	a.reg = prometheus.NewRegistry()
	a.reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = monitor.NewMetrics(version.Name, a.reg)
	a.runner.SetObserver(a.metrics)

	a.tasks = schedule.NewStore(database)
	a.health = monitor.NewHealthAggregator(monitor.Sources{
		Channels: channel.NewStore(database),
		Tasks:    a.tasks,
		Jobs:     a.queue,
		Mail:     monitor.DirSpool{Dir: cfg.Monitoring.UnprocessableMailDir},
		Imports:  importjob.NewStore(database),
	}, monitor.HealthConfigFrom(cfg.Monitoring), nil)

	counter, err := monitor.NewTableCounter(database, cfg.Monitoring.AmountCheckEntity)
	if err != nil {
		return nil, err
	}
	a.amount = monitor.NewAmountChecker(counter)
	a.status = monitor.NewStatusCollector(database, cfg.Database.Path)
	a.auth = auth.NewAuthenticator(auth.NewStore(database), cfg.Monitoring.Token, nil)

	return a, nil
}

// newWorkerPool creates the background worker pool from configuration
func (a *app) newWorkerPool() *async.WorkerPool {
	poolCfg := async.DefaultWorkerPoolConfig()
	poolCfg.Workers = a.cfg.Pulse.Workers
	if a.cfg.Pulse.PollInterval > 0 {
		poolCfg.PollInterval = a.cfg.Pulse.PollInterval
	}
	return async.NewWorkerPool(a.queue, a.handlers, poolCfg, nil)
}

// newTicker registers the scheduler tasks and their methods. A task an
// operator disabled stays disabled.
func (a *app) newTicker(ctx context.Context) (*schedule.Ticker, error) {
	ticker := schedule.NewTicker(a.tasks, schedule.TickerConfig{Interval: a.cfg.Pulse.TickerInterval}, nil)

	actor := a.cfg.Automation.ActorID
	maxAge := a.cfg.Pulse.CompletedMaxAge
	ticker.Register(methodAutomationRun, func(ctx context.Context, now time.Time) error {
		res, err := a.runner.RunOnce(ctx, now, actor)
		if err != nil {
			return err
		}
		for _, j := range res.Jobs {
			if j.Err != nil {
				return errors.Wrapf(j.Err, "job %q", j.Name)
			}
		}
		return nil
	})
	ticker.Register(methodAsyncCleanup, func(ctx context.Context, now time.Time) error {
		n, err := a.queue.Cleanup(ctx, maxAge, now)
		if err != nil {
			return err
		}
		if n > 0 {
			logger.PulseInfow("Cleaned up completed background jobs", logger.FieldCount, n)
		}
		return nil
	})

	now := time.Now()
	for _, task := range []*schedule.Task{
		{Name: "Run automation jobs", Method: methodAutomationRun, Period: a.cfg.Automation.RunPeriod, Active: true},
		{Name: "Clean up background jobs", Method: methodAsyncCleanup, Period: cleanupPeriod, Active: true},
	} {
		existing, err := a.tasks.GetByMethod(ctx, task.Method)
		switch {
		case err == nil:
			task.Active = existing.Active
		case !errors.IsNotFoundError(err):
			return nil, err
		}
		if err := a.tasks.Upsert(ctx, task, now); err != nil {
			return nil, err
		}
	}
	return ticker, nil
}

// reload applies the reloadable parts of a new configuration: runner and
// monitor thresholds and the static token. Database, workers and listen
// address need a restart.
func (a *app) reload(cfg *am.Config) error {
	a.runner.UpdateConfig(runnerConfig(cfg))
	logger.AutomationInfow("Runner config reloaded", "cooldown", cfg.Automation.Cooldown, "timezone", cfg.Automation.Timezone)
	a.health.UpdateConfig(monitor.HealthConfigFrom(cfg.Monitoring))
	a.auth.SetStaticToken(cfg.Monitoring.Token)
	return nil
}
