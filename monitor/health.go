// Package monitor turns the state of the helpdesk's subsystems into the
// health verdict, the amount check and the status snapshot served on the
// monitoring API.
package monitor

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/pulsedesk/am"
	"github.com/teranos/pulsedesk/channel"
	"github.com/teranos/pulsedesk/importjob"
	"github.com/teranos/pulsedesk/logger"
	"github.com/teranos/pulsedesk/pulse/async"
	"github.com/teranos/pulsedesk/pulse/schedule"
)

// Check names, in evaluation order
const (
	CheckChannels          = "channels"
	CheckScheduler         = "scheduler"
	CheckBacklog           = "backlog"
	CheckUnprocessableMail = "unprocessable_mail"
	CheckFailedJobs        = "failed_jobs"
	CheckImports           = "imports"
)

// SuccessMessage is the message of a healthy report
const SuccessMessage = "success"

// ChannelSource lists the channels to check
type ChannelSource interface {
	ListActive(ctx context.Context) ([]*channel.Channel, error)
}

// TaskSource lists the scheduler tasks to check
type TaskSource interface {
	ListActive(ctx context.Context) ([]*schedule.Task, error)
}

// JobSource answers the background job questions
type JobSource interface {
	CountPending(ctx context.Context, createdBefore time.Time) (int, error)
	CountFailing(ctx context.Context, ceiling int) (int, error)
	ListFailing(ctx context.Context, ceiling, limit int) ([]*async.Job, error)
}

// MailSpool counts mails that could not be processed
type MailSpool interface {
	Count(ctx context.Context) (int, error)
}

// ImportSource finds failed and hanging import runs
type ImportSource interface {
	LatestFinished(ctx context.Context, name string) (*importjob.ImportJob, error)
	OldestStuck(ctx context.Context, name string, idleSince time.Time) (*importjob.ImportJob, error)
}

// Sources are the collaborators the aggregator reads. A nil source skips
// its check.
type Sources struct {
	Channels ChannelSource
	Tasks    TaskSource
	Jobs     JobSource
	Mail     MailSpool
	Imports  ImportSource
}

// HealthConfig holds the thresholds of the checks
type HealthConfig struct {
	BacklogCeiling            int
	BacklogMinAge             time.Duration
	RetryCeiling              int
	FailedJobSample           int
	FailedJobSummaryThreshold int
	FailedJobTop              int
	SchedulerGrace            time.Duration
	Imports                   []string
	StuckThreshold            time.Duration
}

// DefaultHealthConfig returns the thresholds used when nothing is configured
func DefaultHealthConfig() HealthConfig {
	return HealthConfig{
		BacklogCeiling:            8000,
		BacklogMinAge:             15 * time.Minute,
		RetryCeiling:              0,
		FailedJobSample:           10,
		FailedJobSummaryThreshold: 10,
		FailedJobTop:              2,
		SchedulerGrace:            10 * time.Minute,
		StuckThreshold:            10 * time.Minute,
	}
}

// HealthConfigFrom maps the monitoring configuration onto the checks
func HealthConfigFrom(m am.MonitoringConfig) HealthConfig {
	cfg := DefaultHealthConfig()
	cfg.BacklogCeiling = m.BacklogCeiling
	cfg.BacklogMinAge = m.BacklogMinAge
	cfg.RetryCeiling = m.RetryCeiling
	cfg.FailedJobSample = m.FailedJobSample
	cfg.FailedJobSummaryThreshold = m.FailedJobSummaryThreshold
	cfg.SchedulerGrace = m.SchedulerGrace
	cfg.Imports = append([]string(nil), m.Imports.Enabled...)
	cfg.StuckThreshold = m.Imports.StuckThreshold
	return cfg
}

// Report is the outcome of one health check.
//
// Unknown names the checks whose source could not be read. Those checks
// add no issue, so a report can be Healthy with Message "success" while
// Unknown is non-empty: success means no check found a problem, not that
// every check ran.
type Report struct {
	Healthy bool     `json:"healthy"`
	Message string   `json:"message"`
	Issues  []string `json:"issues"`
	Unknown []string `json:"unknown,omitempty"`
}

// HealthAggregator runs the checks in a fixed order and joins their issues.
// It only reads; concurrent Check calls are safe.
type HealthAggregator struct {
	src Sources
	log *zap.SugaredLogger

	mu  sync.RWMutex
	cfg HealthConfig
}

// NewHealthAggregator creates an aggregator over the given sources
func NewHealthAggregator(src Sources, cfg HealthConfig, log *zap.SugaredLogger) *HealthAggregator {
	if log == nil {
		log = logger.ComponentLogger("monitor.health")
	}
	return &HealthAggregator{
		src: src,
		cfg: cfg,
		log: logger.AddSubsystem(log, logger.SubsystemMonitor),
	}
}

// UpdateConfig swaps the thresholds (config reload)
func (h *HealthAggregator) UpdateConfig(cfg HealthConfig) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cfg = cfg
}

// Config returns the thresholds in use
func (h *HealthAggregator) Config() HealthConfig {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cfg
}

// Check evaluates every check at now. A check whose source fails is
// listed in Unknown and adds no issue; the other checks still run.
func (h *HealthAggregator) Check(ctx context.Context, now time.Time) Report {
	cfg := h.Config()
	report := Report{Issues: []string{}}

	run := func(name string, fn func() ([]string, error)) {
		issues, err := fn()
		if err != nil {
			h.log.Warnw("Health check could not run", logger.FieldCheck, name, logger.FieldError, err)
			report.Unknown = append(report.Unknown, name)
			return
		}
		report.Issues = append(report.Issues, issues...)
	}

	run(CheckChannels, func() ([]string, error) { return h.checkChannels(ctx) })
	run(CheckScheduler, func() ([]string, error) { return h.checkScheduler(ctx, now, cfg) })

	backlog := false
	run(CheckBacklog, func() ([]string, error) {
		issues, err := h.checkBacklog(ctx, now, cfg)
		backlog = len(issues) > 0
		return issues, err
	})
	run(CheckUnprocessableMail, func() ([]string, error) { return h.checkMail(ctx) })
	if !backlog {
		run(CheckFailedJobs, func() ([]string, error) { return h.checkFailedJobs(ctx, cfg) })
	}
	run(CheckImports, func() ([]string, error) { return h.checkImports(ctx, now, cfg) })

	report.Healthy = len(report.Issues) == 0
	if report.Healthy {
		report.Message = SuccessMessage
	} else {
		report.Message = strings.Join(report.Issues, ";")
	}

	h.log.Debugw("Health check finished",
		logger.FieldHealthy, report.Healthy,
		logger.FieldCount, len(report.Issues),
		"unknown", report.Unknown)
	return report
}

func (h *HealthAggregator) checkChannels(ctx context.Context) ([]string, error) {
	if h.src.Channels == nil {
		return nil, nil
	}
	channels, err := h.src.Channels.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	var issues []string
	for _, c := range channels {
		for _, d := range []channel.Direction{channel.In, channel.Out} {
			if c.Status(d) != channel.StatusError {
				continue
			}
			issues = append(issues, ChannelIssue(c, d))
		}
	}
	return issues, nil
}

// ChannelIssue renders "Channel: {area} {in|out} " followed by the
// identifying options as key:value; and, after a space, the last log.
func ChannelIssue(c *channel.Channel, d channel.Direction) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Channel: %s %s ", c.Area, d)
	for _, key := range channel.OptionKeys {
		if v := c.Options[key]; v != "" {
			fmt.Fprintf(&b, "%s:%s;", key, v)
		}
	}
	b.WriteString(" ")
	b.WriteString(c.LastLog(d))
	return b.String()
}

func (h *HealthAggregator) checkScheduler(ctx context.Context, now time.Time, cfg HealthConfig) ([]string, error) {
	if h.src.Tasks == nil {
		return nil, nil
	}
	tasks, err := h.src.Tasks.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	var issues []string
	for _, task := range tasks {
		late, err := task.Overdue(now)
		if err != nil {
			return nil, err
		}
		if late <= cfg.SchedulerGrace {
			continue
		}
		issues = append(issues, fmt.Sprintf(
			"scheduler may not run (last execution of %s %s over) - please contact your system administrator",
			task.Method, DistanceInWords(late)))
	}
	return issues, nil
}

func (h *HealthAggregator) checkBacklog(ctx context.Context, now time.Time, cfg HealthConfig) ([]string, error) {
	if h.src.Jobs == nil {
		return nil, nil
	}
	pending, err := h.src.Jobs.CountPending(ctx, now.Add(-cfg.BacklogMinAge))
	if err != nil {
		return nil, err
	}
	if pending <= cfg.BacklogCeiling {
		return nil, nil
	}
	return []string{fmt.Sprintf("%d background jobs in queue", pending)}, nil
}

func (h *HealthAggregator) checkMail(ctx context.Context) ([]string, error) {
	if h.src.Mail == nil {
		return nil, nil
	}
	count, err := h.src.Mail.Count(ctx)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}
	return []string{fmt.Sprintf("unprocessable mails: %d", count)}, nil
}

type failedGroup struct {
	name     string
	count    int
	attempts int
}

func (h *HealthAggregator) checkFailedJobs(ctx context.Context, cfg HealthConfig) ([]string, error) {
	if h.src.Jobs == nil {
		return nil, nil
	}
	total, err := h.src.Jobs.CountFailing(ctx, cfg.RetryCeiling)
	if err != nil {
		return nil, err
	}
	if total == 0 {
		return nil, nil
	}
	sample, err := h.src.Jobs.ListFailing(ctx, cfg.RetryCeiling, cfg.FailedJobSample)
	if err != nil {
		return nil, err
	}

	var issues []string
	if total > cfg.FailedJobSummaryThreshold {
		issues = append(issues, fmt.Sprintf("%d failing background jobs", total))
	}
	for i, g := range rankFailedJobs(sample) {
		if i >= cfg.FailedJobTop {
			break
		}
		issues = append(issues, fmt.Sprintf("Failed to run background job #%d '%s' %d time(s) with %d attempt(s).",
			i+1, g.name, g.count, g.attempts))
	}
	return issues, nil
}

// rankFailedJobs groups jobs by handler, most failing jobs first, then
// most attempts, then name.
func rankFailedJobs(jobs []*async.Job) []failedGroup {
	byName := make(map[string]*failedGroup)
	var groups []*failedGroup
	for _, job := range jobs {
		g, ok := byName[job.HandlerName]
		if !ok {
			g = &failedGroup{name: job.HandlerName}
			byName[job.HandlerName] = g
			groups = append(groups, g)
		}
		g.count++
		g.attempts += job.Attempts
	}

	sort.SliceStable(groups, func(i, j int) bool {
		a, b := groups[i], groups[j]
		if a.count != b.count {
			return a.count > b.count
		}
		if a.attempts != b.attempts {
			return a.attempts > b.attempts
		}
		return a.name < b.name
	})

	out := make([]failedGroup, len(groups))
	for i, g := range groups {
		out[i] = *g
	}
	return out
}

// ImportTimeLayout renders the last update of a stuck import
const ImportTimeLayout = "2006-01-02 15:04:05 UTC"

func (h *HealthAggregator) checkImports(ctx context.Context, now time.Time, cfg HealthConfig) ([]string, error) {
	if h.src.Imports == nil || len(cfg.Imports) == 0 {
		return nil, nil
	}

	var failed, stuck []string
	for _, name := range cfg.Imports {
		job, err := h.src.Imports.LatestFinished(ctx, name)
		if err != nil {
			return nil, err
		}
		if job != nil && job.Failed() {
			failed = append(failed, fmt.Sprintf("Failed to run import backend '%s'. Cause: %s", name, job.Result.Error))
		}
	}
	for _, name := range cfg.Imports {
		job, err := h.src.Imports.OldestStuck(ctx, name, now.Add(-cfg.StuckThreshold))
		if err != nil {
			return nil, err
		}
		if job != nil {
			stuck = append(stuck, fmt.Sprintf("Stuck import backend '%s' detected. Last update: %s",
				name, job.UpdatedAt.UTC().Format(ImportTimeLayout)))
		}
	}
	return append(failed, stuck...), nil
}
