package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bandwatch/bandwatch/internal/logging"
	"github.com/bandwatch/bandwatch/internal/metrics"
)

// Handler is a job body. Errors are logged and counted; they never stop the
// engine or other jobs.
type Handler func(ctx context.Context) error

// Job pairs a named handler with its cadence.
type Job struct {
	Name    string
	Cadence Cadence
	Handler Handler

	lastRun time.Time
}

// Engine runs registered jobs from a single tick loop. Jobs execute
// sequentially in registration order; a slow or panicking job delays but
// never cancels the others.
type Engine struct {
	mu      sync.Mutex
	jobs    []*Job
	tick    time.Duration
	logger  *logging.Logger
	metrics *metrics.Metrics
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	now func() time.Time
}

// NewEngine creates an engine with the given tick interval.
func NewEngine(tick time.Duration, logger *logging.Logger, m *metrics.Metrics) *Engine {
	if tick <= 0 {
		tick = time.Minute
	}
	return &Engine{
		tick:    tick,
		logger:  logger,
		metrics: m,
		now:     time.Now,
	}
}

// Register adds a job. Jobs registered first run first within a tick.
// Registration after Start is not supported.
func (e *Engine) Register(name string, cadence Cadence, handler Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.jobs = append(e.jobs, &Job{Name: name, Cadence: cadence, Handler: handler})
	e.logger.Info("job registered", "job", name, "cadence", cadence.String())
}

// Start launches the tick loop. Calling Start on a running engine is a no-op.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return
	}
	e.running = true
	e.stopCh = make(chan struct{})

	e.wg.Add(1)
	go e.loop()

	e.logger.Info("scheduler started", "tick", e.tick.String(), "jobs", len(e.jobs))
}

// Stop halts the tick loop and waits for an in-flight tick to finish.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	close(e.stopCh)
	e.mu.Unlock()

	e.wg.Wait()
	e.logger.Info("scheduler stopped")
}

func (e *Engine) loop() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.tick)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopCh:
			return
		case <-ticker.C:
			e.Tick(context.Background())
		}
	}
}

// Tick evaluates every job's cadence once and runs those that are due.
// Exported so tests can drive the engine with a fake clock.
func (e *Engine) Tick(ctx context.Context) {
	e.mu.Lock()
	jobs := e.jobs
	e.mu.Unlock()

	now := e.now()
	for _, job := range jobs {
		if !job.Cadence.Due(now, job.lastRun) {
			continue
		}
		e.runJob(ctx, job, now)
	}
}

// runJob executes one job body with panic isolation. lastRun advances only
// after the handler returns, so overlapping cadence checks within one run
// are impossible.
func (e *Engine) runJob(ctx context.Context, job *Job, now time.Time) {
	ctx = logging.WithCorrelationID(ctx, logging.GenerateCorrelationID())
	started := e.now()

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("job panicked: %v", r)
			}
		}()
		return job.Handler(ctx)
	}()

	elapsed := e.now().Sub(started)
	e.metrics.ObserveJobDuration(job.Name, elapsed.Seconds())

	if err != nil {
		e.metrics.RecordJobRun(job.Name, "error")
		e.logger.ErrorWithContext(ctx, "job failed", "job", job.Name, "duration_ms", elapsed.Milliseconds(), "error", err.Error())
	} else {
		e.metrics.RecordJobRun(job.Name, "success")
		e.logger.DebugWithContext(ctx, "job completed", "job", job.Name, "duration_ms", elapsed.Milliseconds())
	}

	job.lastRun = now
}
