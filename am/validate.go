package am

import "github.com/teranos/pulsedesk/errors"

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	// Server port: 0 is invalid (omit for default), negative is invalid
	if c.Server.Port != nil && *c.Server.Port == 0 {
		return errors.Newf("server.port cannot be 0 (omit for default port %d)", DefaultServerPort)
	}
	if c.Server.Port != nil && (*c.Server.Port < 0 || *c.Server.Port > 65535) {
		return errors.Newf("server.port must be between 1 and 65535, got %d", *c.Server.Port)
	}
	if c.Server.RequestsPerSecond < 0 {
		return errors.Newf("server.requests_per_second must be >= 0, got %f", c.Server.RequestsPerSecond)
	}
	if c.Server.RequestsPerSecond > 0 && c.Server.Burst <= 0 {
		return errors.Newf("server.burst must be > 0 when rate limiting is on, got %d", c.Server.Burst)
	}

	// Pulse workers: 0 = no background workers, negative = invalid
	if c.Pulse.Workers < 0 {
		return errors.Newf("pulse.workers must be >= 0, got %d", c.Pulse.Workers)
	}
	if c.Pulse.TickerInterval < 0 {
		return errors.Newf("pulse.ticker_interval must be >= 0, got %s", c.Pulse.TickerInterval)
	}
	if c.Pulse.MaxAttempts < 1 {
		return errors.Newf("pulse.max_attempts must be >= 1, got %d", c.Pulse.MaxAttempts)
	}

	if c.Automation.Cooldown < 0 {
		return errors.Newf("automation.cooldown must be >= 0, got %s", c.Automation.Cooldown)
	}
	if c.Automation.RunPeriod <= 0 {
		return errors.Newf("automation.run_period must be > 0, got %s", c.Automation.RunPeriod)
	}
	if c.Automation.BatchLimit < 0 {
		return errors.Newf("automation.batch_limit must be >= 0, got %d", c.Automation.BatchLimit)
	}
	if c.Automation.PageSize < 0 {
		return errors.Newf("automation.page_size must be >= 0, got %d", c.Automation.PageSize)
	}

	if _, err := c.Automation.Location(); err != nil {
		return errors.Wrapf(err, "automation.timezone %q is not a known zone", c.Automation.Timezone)
	}

	m := c.Monitoring
	if m.BacklogCeiling < 0 {
		return errors.Newf("monitoring.backlog_ceiling must be >= 0, got %d", m.BacklogCeiling)
	}
	if m.BacklogMinAge < 0 {
		return errors.Newf("monitoring.backlog_min_age must be >= 0, got %s", m.BacklogMinAge)
	}
	if m.RetryCeiling < 0 {
		return errors.Newf("monitoring.retry_ceiling must be >= 0, got %d", m.RetryCeiling)
	}
	if m.FailedJobSample < 1 {
		return errors.Newf("monitoring.failed_job_sample must be >= 1, got %d", m.FailedJobSample)
	}
	if m.FailedJobSummaryThreshold < 0 {
		return errors.Newf("monitoring.failed_job_summary_threshold must be >= 0, got %d", m.FailedJobSummaryThreshold)
	}
	if m.SchedulerGrace < 0 {
		return errors.Newf("monitoring.scheduler_grace must be >= 0, got %s", m.SchedulerGrace)
	}
	if m.Imports.StuckThreshold <= 0 {
		return errors.Newf("monitoring.imports.stuck_threshold must be > 0, got %s", m.Imports.StuckThreshold)
	}
	switch m.AmountCheckEntity {
	case "tickets", "users", "background_jobs", "import_jobs":
	default:
		return errors.Newf("monitoring.amount_check_entity %q is not countable", m.AmountCheckEntity)
	}

	return nil
}
