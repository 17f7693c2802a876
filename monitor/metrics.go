package monitor

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/teranos/pulsedesk/automation"
)

// Metrics exposes health and automation results to Prometheus.
type Metrics struct {
	healthy        prometheus.Gauge
	issues         prometheus.Gauge
	checksUnknown  *prometheus.CounterVec
	passes         prometheus.Counter
	passDuration   prometheus.Histogram
	jobsRun        prometheus.Counter
	recordsWritten prometheus.Counter
	jobFailures    prometheus.Counter
	amountChecks   *prometheus.CounterVec
}

// NewMetrics registers the collectors on reg (the default registerer when nil).
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		healthy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "health_healthy",
			Help:      "1 when the last health check found no issue",
		}),
		issues: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "health_issues",
			Help:      "Number of issues found by the last health check",
		}),
		checksUnknown: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "health_check_unknown_total",
			Help:      "Health checks that could not read their source",
		}, []string{"check"}),
		passes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "automation_passes_total",
			Help:      "Automation runner passes",
		}),
		passDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "automation_pass_duration_seconds",
			Help:      "Duration of automation runner passes",
			Buckets:   []float64{.01, .05, .1, .5, 1, 5, 10, 30, 60},
		}),
		jobsRun: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "automation_jobs_run_total",
			Help:      "Jobs evaluated by the automation runner",
		}),
		recordsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "automation_records_written_total",
			Help:      "Records changed by automation jobs",
		}),
		jobFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "automation_job_failures_total",
			Help:      "Job passes that ended with an error",
		}),
		amountChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "amount_checks_total",
			Help:      "Amount checks by resulting state",
		}, []string{"state"}),
	}

	reg.MustRegister(
		m.healthy,
		m.issues,
		m.checksUnknown,
		m.passes,
		m.passDuration,
		m.jobsRun,
		m.recordsWritten,
		m.jobFailures,
		m.amountChecks,
	)
	return m
}

// ObserveReport records a health report
func (m *Metrics) ObserveReport(r Report) {
	if r.Healthy {
		m.healthy.Set(1)
	} else {
		m.healthy.Set(0)
	}
	m.issues.Set(float64(len(r.Issues)))
	for _, check := range r.Unknown {
		m.checksUnknown.WithLabelValues(check).Inc()
	}
}

// ObserveAmount records an amount check result
func (m *Metrics) ObserveAmount(r AmountResult) {
	m.amountChecks.WithLabelValues(r.State).Inc()
}

// ObservePass implements automation.PassObserver
func (m *Metrics) ObservePass(r automation.PassResult, d time.Duration) {
	m.passes.Inc()
	m.passDuration.Observe(d.Seconds())
	m.jobsRun.Add(float64(r.Ran()))
	m.recordsWritten.Add(float64(r.Processed()))
	for _, j := range r.Jobs {
		if j.Err != nil {
			m.jobFailures.Inc()
		}
	}
}

var _ automation.PassObserver = (*Metrics)(nil)
