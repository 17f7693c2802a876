package automation

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/pulsedesk/automation/condition"
	"github.com/teranos/pulsedesk/automation/perform"
	"github.com/teranos/pulsedesk/automation/record"
	"github.com/teranos/pulsedesk/errors"
	"github.com/teranos/pulsedesk/logger"
)

// RunnerConfig contains configuration for the automation runner
type RunnerConfig struct {
	Cooldown   time.Duration  // Minimum time since both last run and last edit
	BatchLimit int            // Max matching records per job and pass (0 = unlimited)
	PageSize   int            // Candidate records read per query (0 = all at once)
	Location   *time.Location // Zone timeplans are evaluated in
	Interval   time.Duration  // Tick interval when started with Start
}

// DefaultRunnerConfig returns the defaults used when no configuration is loaded
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		Cooldown:   10 * time.Minute,
		BatchLimit: 2000,
		PageSize:   500,
		Location:   time.UTC,
		Interval:   5 * time.Minute,
	}
}

// PassObserver receives the outcome of every pass (metrics).
type PassObserver interface {
	ObservePass(result PassResult, duration time.Duration)
}

// JobResult is the outcome of one job within a pass.
type JobResult struct {
	JobID     int64
	Name      string
	Skipped   string // Skip reason; empty when the job ran
	Matching  int    // Records that satisfied the condition
	Processed int    // Records changed and saved
	Failed    int    // Records whose evaluation, apply or save failed
	Stamped   bool   // last_run_at was advanced
	Err       error  // Job-level failure (configuration, listing, total failure)
}

// PassResult is the outcome of one RunOnce call.
type PassResult struct {
	Started time.Time
	Jobs    []JobResult
}

// Ran counts the jobs that were evaluated.
func (r PassResult) Ran() int {
	n := 0
	for _, j := range r.Jobs {
		if j.Skipped == "" {
			n++
		}
	}
	return n
}

// Processed sums the written records across jobs.
func (r PassResult) Processed() int {
	n := 0
	for _, j := range r.Jobs {
		n += j.Processed
	}
	return n
}

// Runner evaluates active jobs against record stores. Passes are
// serialized: RunOnce holds the runner lock for the whole pass.
type Runner struct {
	jobs      *Store
	records   map[string]record.Store
	evaluator *condition.Evaluator
	applier   *perform.Applier
	observer  PassObserver
	log       *zap.SugaredLogger

	cfgMu sync.RWMutex
	cfg   RunnerConfig

	passMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRunner creates a runner over the job store and the given record stores,
// keyed by their entity.
func NewRunner(jobs *Store, stores []record.Store, cfg RunnerConfig, log *zap.SugaredLogger) *Runner {
	if log == nil {
		log = logger.ComponentLogger("automation.runner")
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	records := make(map[string]record.Store, len(stores))
	for _, s := range stores {
		records[s.Entity()] = s
	}
	return &Runner{
		jobs:      jobs,
		records:   records,
		evaluator: condition.NewEvaluator(),
		applier:   perform.NewApplier(),
		cfg:       cfg,
		log:       logger.AddSubsystem(log, logger.SubsystemAutomation),
	}
}

// SetObserver attaches a pass observer.
func (r *Runner) SetObserver(o PassObserver) {
	r.observer = o
}

// Evaluator exposes the operator registry so callers can register operators.
func (r *Runner) Evaluator() *condition.Evaluator {
	return r.evaluator
}

// UpdateConfig swaps cooldown, batch limit and location (config reload).
// The interval of a started runner is not changed.
func (r *Runner) UpdateConfig(cfg RunnerConfig) {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	r.cfgMu.Lock()
	defer r.cfgMu.Unlock()
	cfg.Interval = r.cfg.Interval
	r.cfg = cfg
}

func (r *Runner) config() RunnerConfig {
	r.cfgMu.RLock()
	defer r.cfgMu.RUnlock()
	return r.cfg
}

// Validate checks a job definition against the runner's operators and stores.
func (r *Runner) Validate(job *Job) error {
	if err := r.evaluator.Validate(job.Condition); err != nil {
		return err
	}
	if err := r.applier.Validate(job.Perform); err != nil {
		return err
	}
	entity := job.Entity()
	if _, ok := r.records[entity]; !ok {
		return errors.NewConfigurationError("job %q writes to unknown entity %q", job.Name, entity)
	}
	for _, e := range job.Condition.Entities() {
		if e != entity {
			return errors.NewConfigurationError("job %q reads %s attributes but writes %s records", job.Name, e, entity)
		}
	}
	for _, a := range job.Perform {
		if e, _, _ := record.SplitPath(a.Path); e != entity {
			return errors.NewConfigurationError("job %q writes both %s and %s attributes", job.Name, entity, e)
		}
	}
	return nil
}

// RunOnce evaluates every active job at now. Per-job and per-record
// failures are logged and reported in the result; the returned error is
// only set when the job list itself cannot be read.
func (r *Runner) RunOnce(ctx context.Context, now time.Time, actor int64) (PassResult, error) {
	r.passMu.Lock()
	defer r.passMu.Unlock()

	started := time.Now()
	result := PassResult{Started: now}
	defer func() {
		if r.observer != nil {
			r.observer.ObservePass(result, time.Since(started))
		}
	}()

	jobs, err := r.jobs.ListActive(ctx)
	if err != nil {
		return result, errors.Wrap(err, "failed to list active jobs")
	}

	cfg := r.config()
	for _, job := range jobs {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		if job.DefinitionErr != nil {
			r.log.Errorw("Job definition cannot be decoded, skipped",
				logger.FieldJobID, job.ID, "name", job.Name, logger.FieldError, job.DefinitionErr)
			result.Jobs = append(result.Jobs, JobResult{JobID: job.ID, Name: job.Name, Skipped: SkipInvalid, Err: job.DefinitionErr})
			continue
		}

		if ok, reason := job.Eligible(now, cfg.Cooldown, cfg.Location); !ok {
			r.log.Debugw("Job skipped", logger.FieldJobID, job.ID, "name", job.Name, "reason", reason)
			result.Jobs = append(result.Jobs, JobResult{JobID: job.ID, Name: job.Name, Skipped: reason})
			continue
		}

		jr := r.runJob(ctx, job, now, actor, cfg)
		result.Jobs = append(result.Jobs, jr)
	}

	r.log.Infow("Automation pass finished",
		"jobs", len(jobs),
		"ran", result.Ran(),
		logger.FieldWritten, result.Processed(),
		logger.FieldActorID, actor,
		logger.FieldDurationMS, time.Since(started).Milliseconds())
	return result, nil
}

func (r *Runner) runJob(ctx context.Context, job *Job, now time.Time, actor int64, cfg RunnerConfig) JobResult {
	jr := JobResult{JobID: job.ID, Name: job.Name}
	log := r.log.With(logger.FieldJobID, job.ID, "name", job.Name)

	if err := r.Validate(job); err != nil {
		log.Errorw("Job definition invalid, skipped", logger.FieldError, err)
		jr.Err = err
		return jr
	}
	store := r.records[job.Entity()]

	if err := r.jobs.MarkRunning(ctx, job.ID, true); err != nil {
		log.Warnw("Failed to mark job running", logger.FieldError, err)
	}

	evalFailed, applyFailed, seen := 0, 0, 0
	for offset := 0; ; {
		page, err := store.Candidates(ctx, offset, cfg.PageSize)
		if err != nil {
			jr.Err = errors.Wrapf(err, "failed to list %s records", store.Entity())
			log.Errorw("Job pass failed", logger.FieldError, jr.Err)
			r.clearRunning(ctx, job, log)
			return jr
		}
		seen += len(page)
		offset += len(page)

		limited := false
		for _, rec := range page {
			ok, err := r.evaluator.Matches(job.Condition, rec, now)
			if err != nil {
				evalFailed++
				log.Warnw("Condition evaluation failed, record skipped", logger.FieldError, err)
				continue
			}
			if !ok {
				continue
			}
			if cfg.BatchLimit > 0 && jr.Matching >= cfg.BatchLimit {
				limited = true
				break
			}
			jr.Matching++

			changed, err := r.applier.Apply(rec, job.Perform)
			if err != nil {
				applyFailed++
				log.Warnw("Perform failed, record skipped", logger.FieldError, err)
				continue
			}
			if !changed {
				continue
			}

			opts := record.SaveOptions{Actor: actor, DisableNotification: job.DisableNotification, Now: now}
			if err := store.Save(ctx, rec, opts); err != nil {
				applyFailed++
				log.Warnw("Save failed, record skipped", logger.FieldError, err)
				continue
			}
			jr.Processed++
		}

		if limited {
			log.Infow("Batch limit reached, remaining matches wait for the next pass", "limit", cfg.BatchLimit)
			break
		}
		if cfg.PageSize <= 0 || len(page) < cfg.PageSize {
			break
		}
	}
	jr.Failed = evalFailed + applyFailed

	totalFailure := (seen > 0 && evalFailed == seen) ||
		(jr.Matching > 0 && applyFailed == jr.Matching)
	if totalFailure {
		jr.Err = errors.Newf("all %d records failed", jr.Failed)
		log.Errorw("Job pass failed, will retry", logger.FieldFailed, jr.Failed)
		r.clearRunning(ctx, job, log)
		return jr
	}

	if err := r.jobs.FinishPass(ctx, job.ID, now, jr.Matching, jr.Processed); err != nil {
		jr.Err = err
		log.Errorw("Failed to stamp job pass", logger.FieldError, err)
		return jr
	}
	jr.Stamped = true

	log.Infow("Job ran",
		logger.FieldMatched, jr.Matching,
		logger.FieldWritten, jr.Processed,
		logger.FieldFailed, jr.Failed)
	return jr
}

func (r *Runner) clearRunning(ctx context.Context, job *Job, log *zap.SugaredLogger) {
	if err := r.jobs.MarkRunning(ctx, job.ID, false); err != nil {
		log.Warnw("Failed to clear running flag", logger.FieldError, err)
	}
}

// Start runs a pass every configured interval until Stop is called.
func (r *Runner) Start(ctx context.Context, actor int64) {
	r.ctx, r.cancel = context.WithCancel(ctx)
	interval := r.config().Interval
	if interval <= 0 {
		interval = DefaultRunnerConfig().Interval
	}

	r.wg.Add(1)
	go r.run(interval, actor)
	r.log.Infow("Automation runner started", "interval", interval)
}

// Stop stops the loop started by Start and waits for a running pass.
func (r *Runner) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	r.wg.Wait()
	r.log.Infow("Automation runner stopped")
}

func (r *Runner) run(interval time.Duration, actor int64) {
	defer r.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case tick := <-ticker.C:
			if _, err := r.RunOnce(r.ctx, tick, actor); err != nil {
				r.log.Warnw("Automation tick error", logger.FieldError, err)
			}
		}
	}
}
