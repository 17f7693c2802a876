package am

import (
	"time"

	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.path", "pulsedesk.db")

	// Server defaults
	v.SetDefault("server.port", DefaultServerPort)
	v.SetDefault("server.bind", "127.0.0.1")
	v.SetDefault("server.requests_per_second", 20.0)
	v.SetDefault("server.burst", 40)
	v.SetDefault("server.metrics_enabled", true)

	v.SetDefault("log.json", false)

	// Pulse (background jobs + scheduler) defaults
	v.SetDefault("pulse.workers", 1)
	v.SetDefault("pulse.poll_interval", time.Second)
	v.SetDefault("pulse.ticker_interval", 5*time.Second)
	v.SetDefault("pulse.max_attempts", 25)
	v.SetDefault("pulse.retry_backoff", 5*time.Second)
	v.SetDefault("pulse.completed_max_age", 24*time.Hour)

	// Automation defaults
	v.SetDefault("automation.cooldown", 10*time.Minute) // one timeplan bucket
	v.SetDefault("automation.run_period", 5*time.Minute)
	v.SetDefault("automation.actor_id", 1)
	v.SetDefault("automation.batch_limit", 2000)
	v.SetDefault("automation.page_size", 500)
	v.SetDefault("automation.timezone", "UTC")

	// Monitoring defaults
	v.SetDefault("monitoring.backlog_ceiling", 8000)
	v.SetDefault("monitoring.backlog_min_age", 15*time.Minute)
	v.SetDefault("monitoring.retry_ceiling", 0)
	v.SetDefault("monitoring.failed_job_sample", 10)
	v.SetDefault("monitoring.failed_job_summary_threshold", 10)
	v.SetDefault("monitoring.scheduler_grace", 10*time.Minute)
	v.SetDefault("monitoring.unprocessable_mail_dir", "var/spool/unprocessable_mail")
	v.SetDefault("monitoring.imports.enabled", []string{})
	v.SetDefault("monitoring.imports.stuck_threshold", 10*time.Minute)
	v.SetDefault("monitoring.amount_check_entity", "tickets")
}

// BindSensitiveEnvVars explicitly binds sensitive configuration to environment variables
func BindSensitiveEnvVars(v *viper.Viper) {
	v.BindEnv("monitoring.token", "PULSEDESK_MONITORING_TOKEN")
	v.BindEnv("database.path", "PULSEDESK_DATABASE_PATH", "DB_PATH")
}
