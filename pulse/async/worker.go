package async

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/pulsedesk/errors"
	"github.com/teranos/pulsedesk/logger"
)

// WorkerPoolConfig contains configuration for the worker pool
type WorkerPoolConfig struct {
	Workers      int           `json:"workers"`       // Number of concurrent workers
	PollInterval time.Duration `json:"poll_interval"` // How often idle workers look for jobs
	StopTimeout  time.Duration `json:"stop_timeout"`  // How long Stop waits for running handlers
}

// DefaultWorkerPoolConfig returns sensible defaults
func DefaultWorkerPoolConfig() WorkerPoolConfig {
	return WorkerPoolConfig{
		Workers:      1,
		PollInterval: time.Second,
		StopTimeout:  30 * time.Second,
	}
}

// WorkerPool runs queued jobs through the handler registry
type WorkerPool struct {
	queue    *Queue
	registry *HandlerRegistry
	cfg      WorkerPoolConfig
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	log    *zap.SugaredLogger

	mu            sync.Mutex
	activeWorkers int
	jobsProcessed int
}

// NewWorkerPool creates a worker pool. Register handlers on the registry
// before calling Start.
func NewWorkerPool(queue *Queue, registry *HandlerRegistry, cfg WorkerPoolConfig, log *zap.SugaredLogger) *WorkerPool {
	if log == nil {
		log = logger.ComponentLogger("pulse.workers")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultWorkerPoolConfig().PollInterval
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = DefaultWorkerPoolConfig().StopTimeout
	}
	return &WorkerPool{
		queue:    queue,
		registry: registry,
		cfg:      cfg,
		now:      time.Now,
		log:      logger.AddSubsystem(log, logger.SubsystemPulse),
	}
}

// Start recovers jobs orphaned by a crash and starts the workers.
func (wp *WorkerPool) Start(ctx context.Context) {
	wp.ctx, wp.cancel = context.WithCancel(ctx)

	if n, err := wp.queue.store.RequeueRunning(wp.ctx, wp.now()); err != nil {
		wp.log.Warnw("Failed to recover orphaned jobs", logger.FieldError, err)
	} else if n > 0 {
		wp.log.Infow("Recovered orphaned jobs from previous run", logger.FieldCount, n)
	}

	if warning := wp.checkMemoryPressure(); warning != "" {
		wp.log.Warnw("Memory pressure warning", "warning", warning, "workers", wp.cfg.Workers)
	}

	for i := 0; i < wp.cfg.Workers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
	wp.log.Infow("Worker pool started", "workers", wp.cfg.Workers, "handlers", wp.registry.Names())
}

// Stop cancels the workers and waits up to StopTimeout for them to exit.
func (wp *WorkerPool) Stop() {
	if wp.cancel == nil {
		return
	}
	wp.cancel()

	done := make(chan struct{})
	go func() {
		wp.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		wp.log.Infow("Worker pool stopped")
	case <-time.After(wp.cfg.StopTimeout):
		wp.log.Warnw("Worker pool stop timed out, handlers may still be running", "timeout", wp.cfg.StopTimeout)
	}
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	ticker := time.NewTicker(wp.cfg.PollInterval)
	defer ticker.Stop()

	errorCount := 0
	const maxConsecutiveErrors = 5
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		select {
		case <-wp.ctx.Done():
			return
		case <-ticker.C:
			// Drain runnable jobs before waiting for the next tick
			for {
				ran, err := wp.ProcessNext(wp.ctx)
				if err != nil {
					if wp.ctx.Err() != nil || errors.Is(err, sql.ErrConnDone) {
						return
					}
					errorCount++
					wp.log.Errorw("Worker error processing job",
						"worker_id", id,
						logger.FieldError, err,
						"consecutive_errors", errorCount)
					if errorCount >= maxConsecutiveErrors {
						time.Sleep(backoff)
						backoff = min(backoff*2, maxBackoff)
					}
					break
				}
				errorCount = 0
				backoff = time.Second
				if !ran || wp.ctx.Err() != nil {
					break
				}
			}
		}
	}
}

// ProcessNext runs one runnable job, if any. It reports whether a job ran.
// Handler failures are recorded on the job and are not returned.
func (wp *WorkerPool) ProcessNext(ctx context.Context) (bool, error) {
	job, err := wp.queue.Dequeue(ctx, wp.now())
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}

	wp.mu.Lock()
	wp.activeWorkers++
	wp.mu.Unlock()
	defer func() {
		wp.mu.Lock()
		wp.activeWorkers--
		wp.jobsProcessed++
		wp.mu.Unlock()
	}()

	log := wp.log.With(logger.FieldJobID, job.ID, "handler", job.HandlerName)
	started := time.Now()

	if execErr := wp.registry.Execute(ctx, job); execErr != nil {
		if err := wp.queue.Fail(ctx, job, execErr, wp.now()); err != nil {
			return true, err
		}
		log.Warnw("Background job failed",
			logger.FieldError, execErr,
			"attempts", job.Attempts,
			logger.FieldState, job.Status)
		return true, nil
	}

	if err := wp.queue.Complete(ctx, job, wp.now()); err != nil {
		return true, err
	}
	log.Debugw("Background job completed", logger.FieldDurationMS, time.Since(started).Milliseconds())
	return true, nil
}
