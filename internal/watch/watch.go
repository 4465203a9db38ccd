// Package watch repeats a scan on a cron schedule.
package watch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/anstrom/hostsweep/internal/errors"
	"github.com/anstrom/hostsweep/internal/logging"
)

// ScanFunc runs one scan. The context is canceled when the watcher stops.
type ScanFunc func(ctx context.Context) error

// Status is a snapshot of the watcher's history.
type Status struct {
	Schedule  string
	Running   bool
	Runs      int
	Failures  int
	LastRun   time.Time
	LastError error
	NextRun   time.Time
}

// Watcher runs a ScanFunc on a schedule. At most one run is in flight: a
// tick that arrives while a scan is still running is skipped.
type Watcher struct {
	schedule string
	parsed   cron.Schedule
	scan     ScanFunc
	logger   *logging.Logger

	cron    *cron.Cron
	job     cron.Job
	entryID cron.EntryID

	triggered sync.WaitGroup

	mu       sync.RWMutex
	running  bool
	runs     int
	failures int
	lastRun  time.Time
	lastErr  error
	ctx      context.Context
	cancel   context.CancelFunc
}

// New validates schedule (standard five-field cron or a descriptor such as
// "@every 10m") and prepares a watcher.
func New(schedule string, scan ScanFunc, logger *logging.Logger) (*Watcher, error) {
	parsed, err := cron.ParseStandard(schedule)
	if err != nil {
		return nil, errors.NewConfigFieldError(errors.CodeValidation,
			fmt.Sprintf("invalid watch schedule: %v", err), "watch.schedule", schedule)
	}
	if scan == nil {
		return nil, fmt.Errorf("watch: scan function is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	logger = logger.WithComponent("watch")

	cl := cronLogger{logger: logger}
	w := &Watcher{
		schedule: schedule,
		parsed:   parsed,
		scan:     scan,
		logger:   logger,
		cron:     cron.New(cron.WithLogger(cl)),
	}
	w.job = cron.NewChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)).Then(cron.FuncJob(w.execute))
	return w, nil
}

// Start begins scheduling. It does not run a scan immediately.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("watcher is already running")
	}
	w.ctx, w.cancel = context.WithCancel(context.Background())
	w.entryID = w.cron.Schedule(w.parsed, w.job)
	w.cron.Start()
	w.running = true

	w.logger.Info("Watch started", "schedule", w.schedule)
	return nil
}

// Stop cancels any running scan and waits for it to return.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.cancel()
	w.cron.Remove(w.entryID)
	done := w.cron.Stop()
	w.mu.Unlock()

	<-done.Done()
	w.triggered.Wait()
	w.logger.Info("Watch stopped", "runs", w.Status().Runs)
}

// Run starts the watcher, optionally scans once right away, and blocks until
// ctx is done.
func (w *Watcher) Run(ctx context.Context, immediately bool) error {
	if err := w.Start(); err != nil {
		return err
	}
	defer w.Stop()

	if immediately {
		w.triggered.Add(1)
		go func() {
			defer w.triggered.Done()
			w.job.Run()
		}()
	}

	<-ctx.Done()
	return nil
}

// Trigger runs a scan now through the same skip and recover guards as a
// scheduled tick.
func (w *Watcher) Trigger() {
	w.job.Run()
}

// Status returns a snapshot of the run history.
func (w *Watcher) Status() Status {
	w.mu.RLock()
	defer w.mu.RUnlock()

	st := Status{
		Schedule:  w.schedule,
		Running:   w.running,
		Runs:      w.runs,
		Failures:  w.failures,
		LastRun:   w.lastRun,
		LastError: w.lastErr,
	}
	if w.running {
		st.NextRun = w.cron.Entry(w.entryID).Next
	} else {
		st.NextRun = w.parsed.Next(time.Now())
	}
	return st
}

func (w *Watcher) execute() {
	w.mu.Lock()
	ctx := w.ctx
	w.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	started := time.Now()
	err := w.scan(ctx)

	w.mu.Lock()
	w.runs++
	w.lastRun = started
	w.lastErr = err
	if err != nil {
		w.failures++
	}
	w.mu.Unlock()

	if err != nil {
		w.logger.Error("Scheduled scan failed", "error", err, "duration", time.Since(started))
		return
	}
	w.logger.Debug("Scheduled scan finished", "duration", time.Since(started))
}

// cronLogger adapts the structured logger to cron's logging interface.
type cronLogger struct {
	logger *logging.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.logger.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.logger.Error(msg, append([]any{"error", err}, keysAndValues...)...)
}
