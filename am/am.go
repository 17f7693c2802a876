// Package am ("I am") holds the pulsedesk configuration: the database, the
// HTTP monitoring surface, the automation runner and the health monitor's
// thresholds. Values come from viper (defaults, toml files, PULSEDESK_* env).
package am

import "time"

// Config represents the complete pulsedesk configuration
type Config struct {
	Database   DatabaseConfig   `mapstructure:"database"`
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	Pulse      PulseConfig      `mapstructure:"pulse"`
	Automation AutomationConfig `mapstructure:"automation"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// DatabaseConfig configures the SQLite database
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// ServerConfig configures the HTTP monitoring server
type ServerConfig struct {
	Port              *int    `mapstructure:"port"`                // nil = DefaultServerPort, 0 is invalid
	Bind              string  `mapstructure:"bind"`                // Interface to listen on
	RequestsPerSecond float64 `mapstructure:"requests_per_second"` // Token bucket refill rate for /api/v1/monitoring (0 = unlimited)
	Burst             int     `mapstructure:"burst"`               // Token bucket size
	MetricsEnabled    bool    `mapstructure:"metrics_enabled"`     // Expose /metrics
}

// DefaultServerPort is the monitoring server port when none is configured
const DefaultServerPort = 3077

// LogConfig configures the global zap logger
type LogConfig struct {
	JSON bool `mapstructure:"json"`
}

// PulseConfig configures background workers and the scheduler ticker
type PulseConfig struct {
	Workers         int           `mapstructure:"workers"`          // Concurrent background job workers (0 = none)
	PollInterval    time.Duration `mapstructure:"poll_interval"`    // How often idle workers look for jobs
	TickerInterval  time.Duration `mapstructure:"ticker_interval"`  // How often the scheduler looks for due tasks
	MaxAttempts     int           `mapstructure:"max_attempts"`     // Attempts before a background job is marked failed
	RetryBackoff    time.Duration `mapstructure:"retry_backoff"`    // Base delay before a failed job runs again
	CompletedMaxAge time.Duration `mapstructure:"completed_max_age"` // Completed jobs older than this are cleaned up
}

// AutomationConfig configures the job runner
type AutomationConfig struct {
	Cooldown   time.Duration `mapstructure:"cooldown"`    // Minimum time since last run and last edit
	RunPeriod  time.Duration `mapstructure:"run_period"`  // Scheduler period of the runner task
	ActorID    int64         `mapstructure:"actor_id"`    // User id stamped on automation writes
	BatchLimit int           `mapstructure:"batch_limit"` // Max matching records per job and pass (0 = unlimited)
	PageSize   int           `mapstructure:"page_size"`   // Candidate records read per query (0 = all at once)
	Timezone   string        `mapstructure:"timezone"`    // IANA zone timeplans are evaluated in
}

// Location resolves the timezone timeplans are evaluated in.
func (c AutomationConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Timezone)
}

// MonitoringConfig configures the health aggregator and amount checker
type MonitoringConfig struct {
	Token                     string        `mapstructure:"token"`                        // Static token; overrides the stored one when set
	BacklogCeiling            int           `mapstructure:"backlog_ceiling"`              // Pending jobs above this are reported as backlog
	BacklogMinAge             time.Duration `mapstructure:"backlog_min_age"`              // Only jobs older than this count toward the backlog
	RetryCeiling              int           `mapstructure:"retry_ceiling"`                // Jobs with more attempts than this are failing
	FailedJobSample           int           `mapstructure:"failed_job_sample"`            // Oldest failing jobs grouped into the detail
	FailedJobSummaryThreshold int           `mapstructure:"failed_job_summary_threshold"` // Prepend the total when more jobs fail than this
	SchedulerGrace            time.Duration `mapstructure:"scheduler_grace"`              // Allowed delay past a task's period
	UnprocessableMailDir      string        `mapstructure:"unprocessable_mail_dir"`       // Dead-letter spool of raw mails
	Imports                   ImportsConfig `mapstructure:"imports"`
	AmountCheckEntity         string        `mapstructure:"amount_check_entity"` // Table counted by amount_check
}

// ImportsConfig configures which import integrations are monitored
type ImportsConfig struct {
	Enabled        []string      `mapstructure:"enabled"`         // Backend names, e.g. "Import::Ldap"
	StuckThreshold time.Duration `mapstructure:"stuck_threshold"` // Unfinished imports idle longer than this are stuck
}

// ImportEnabled reports whether the named import backend is monitored.
func (c MonitoringConfig) ImportEnabled(name string) bool {
	for _, n := range c.Imports.Enabled {
		if n == name {
			return true
		}
	}
	return false
}

// DefaultDirPermissions is used when creating the database directory
const DefaultDirPermissions = 0755
