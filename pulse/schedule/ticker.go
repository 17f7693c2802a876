package schedule

import (
	"context"
	"os"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/pulsedesk/errors"
	"github.com/teranos/pulsedesk/logger"
)

// MethodFunc is the code behind a task method. now is the tick time.
type MethodFunc func(ctx context.Context, now time.Time) error

// TickerConfig contains configuration for the scheduler ticker
type TickerConfig struct {
	Interval time.Duration // How often to look for due tasks
}

// DefaultTickerConfig returns sensible defaults
func DefaultTickerConfig() TickerConfig {
	return TickerConfig{Interval: 5 * time.Second}
}

// Ticker runs due scheduler tasks. Tasks whose method has no registered
// function are left alone; another process may own them.
type Ticker struct {
	store    *Store
	interval time.Duration
	pid      string
	log      *zap.SugaredLogger

	mu              sync.Mutex
	methods         map[string]MethodFunc
	lastTickAt      time.Time
	ticksSinceStart int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewTicker creates a scheduler ticker over the task store
func NewTicker(store *Store, cfg TickerConfig, log *zap.SugaredLogger) *Ticker {
	if log == nil {
		log = logger.ComponentLogger("pulse.schedule")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultTickerConfig().Interval
	}
	return &Ticker{
		store:    store,
		interval: cfg.Interval,
		pid:      strconv.Itoa(os.Getpid()),
		log:      logger.AddSubsystem(log, logger.SubsystemPulse),
		methods:  make(map[string]MethodFunc),
	}
}

// Register binds a method name to its function.
// Panics if the method is already registered.
func (t *Ticker) Register(method string, fn MethodFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.methods[method]; exists {
		panic("scheduler method already registered: " + method)
	}
	t.methods[method] = fn
}

func (t *Ticker) method(name string) MethodFunc {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.methods[name]
}

// Start begins the ticker loop
func (t *Ticker) Start(ctx context.Context) {
	t.ctx, t.cancel = context.WithCancel(ctx)
	t.wg.Add(1)
	go t.run()
	t.log.Infow("Scheduler ticker started", "interval", t.interval)
}

// Stop stops the loop and waits for a running task.
func (t *Ticker) Stop() {
	if t.cancel == nil {
		return
	}
	t.cancel()
	t.wg.Wait()
	t.log.Infow("Scheduler ticker stopped")
}

func (t *Ticker) run() {
	defer t.wg.Done()

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.ctx.Done():
			return
		case tickTime := <-ticker.C:
			t.mu.Lock()
			t.lastTickAt = tickTime
			t.ticksSinceStart++
			ticks := t.ticksSinceStart
			t.mu.Unlock()

			if _, err := t.RunDue(t.ctx, tickTime); err != nil {
				t.log.Warnw("Scheduler tick error", logger.FieldError, err, "tick", ticks)
			}
		}
	}
}

// RunDue executes every active task that is due at now and returns how
// many ran. A failing task is recorded and does not stop the others.
func (t *Ticker) RunDue(ctx context.Context, now time.Time) (int, error) {
	tasks, err := t.store.ListActive(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "failed to list scheduler tasks")
	}

	ran := 0
	for _, task := range tasks {
		if ctx.Err() != nil {
			return ran, ctx.Err()
		}

		fn := t.method(task.Method)
		if fn == nil {
			continue
		}
		due, err := task.Due(now)
		if err != nil {
			t.log.Errorw("Scheduler task has an invalid schedule", logger.FieldMethod, task.Method, logger.FieldError, err)
			continue
		}
		if !due {
			continue
		}

		t.execute(ctx, task, fn, now)
		ran++
	}
	return ran, nil
}

func (t *Ticker) execute(ctx context.Context, task *Task, fn MethodFunc, now time.Time) {
	log := t.log.With(logger.FieldMethod, task.Method)
	if err := t.store.MarkStarted(ctx, task.ID, t.pid, now); err != nil {
		log.Errorw("Failed to stamp scheduler task", logger.FieldError, err)
		return
	}

	started := time.Now()
	runErr := fn(ctx, now)
	duration := time.Since(started).Milliseconds()

	if runErr != nil {
		log.Errorw("Scheduler task failed", logger.FieldError, runErr, logger.FieldDurationMS, duration)
	} else {
		log.Debugw("Scheduler task ran", logger.FieldDurationMS, duration)
	}

	if err := t.store.Finish(ctx, task.ID, runErr, now); err != nil {
		log.Warnw("Failed to record scheduler task outcome", logger.FieldError, err)
	}
}

// Stats returns ticker statistics
func (t *Ticker) Stats() map[string]interface{} {
	t.mu.Lock()
	defer t.mu.Unlock()

	return map[string]interface{}{
		"last_tick_at":      t.lastTickAt,
		"ticks_since_start": t.ticksSinceStart,
		"interval":          t.interval,
		"methods":           len(t.methods),
	}
}
