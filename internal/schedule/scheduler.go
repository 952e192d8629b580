// Package schedule runs deferred one-shot tasks with at-least-once
// semantics. Tasks live in a store.Store so they survive restarts; a
// polling loop fires the ones that are due and removes each only after
// its callback succeeds. Callbacks must therefore be idempotent.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"sphexbot/internal/store"
)

const defaultInterval = time.Second

// Callback performs a task. A returned error keeps the task for the next
// tick.
type Callback func(ctx context.Context, due time.Time, payload []byte) error

type Option func(*Scheduler)

// WithInterval sets the poll interval of Run.
func WithInterval(interval time.Duration) Option {
	return func(s *Scheduler) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

type Scheduler struct {
	tasks    *TaskStore
	callback Callback
	interval time.Duration
	now      func() time.Time
	logger   *slog.Logger

	tickMu sync.Mutex

	scheduled atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	lastTick  atomic.Int64

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Stats is a point-in-time view of the scheduler counters.
type Stats struct {
	Scheduled       int64     `json:"scheduled"`
	Completed       int64     `json:"completed"`
	Failed          int64     `json:"failed"`
	IntervalSeconds float64   `json:"interval_seconds"`
	LastTick        time.Time `json:"last_tick,omitempty"`
}

// TickResult summarises one tick.
type TickResult struct {
	Due       int
	Completed int
	Failed    int
}

// New creates a scheduler keeping its tasks in s. Give each scheduler its
// own key prefix.
func New(s store.Store, callback Callback, opts ...Option) (*Scheduler, error) {
	if s == nil {
		return nil, errors.New("scheduler store is required")
	}
	if callback == nil {
		return nil, errors.New("scheduler callback is required")
	}
	scheduler := &Scheduler{
		callback: callback,
		interval: defaultInterval,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(scheduler)
	}
	scheduler.tasks = NewTaskStore(s, scheduler.logger)
	return scheduler, nil
}

// Schedule persists a task due after delay and returns without waiting
// for it.
func (s *Scheduler) Schedule(ctx context.Context, delay time.Duration, payload []byte) (Task, error) {
	if delay < 0 {
		delay = 0
	}
	id, err := uuid.NewV7()
	if err != nil {
		return Task{}, fmt.Errorf("generate task id: %w", err)
	}
	task := Task{
		ID:      id.String(),
		Due:     s.now().Add(delay),
		Payload: append([]byte(nil), payload...),
	}
	if err := s.tasks.Add(ctx, task); err != nil {
		return Task{}, err
	}
	s.scheduled.Add(1)
	s.logger.Debug("task scheduled", "task_id", task.ID, "due", task.Due)
	return task, nil
}

// Pending lists stored tasks, due or not.
func (s *Scheduler) Pending(ctx context.Context) ([]Task, error) {
	return s.tasks.Pending(ctx)
}

// Tick runs every due task once, oldest first. Failures are logged and
// leave the task in place; they never stop the remaining tasks.
func (s *Scheduler) Tick(ctx context.Context) (TickResult, error) {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	now := s.now()
	s.lastTick.Store(now.UnixNano())

	due, err := s.tasks.Due(ctx, now)
	if err != nil {
		return TickResult{}, err
	}

	result := TickResult{Due: len(due)}
	for _, task := range due {
		if err := s.execute(ctx, task); err != nil {
			result.Failed++
			s.failed.Add(1)
			s.logger.Warn("scheduled task failed; will retry", "task_id", task.ID, "due", task.Due, "error", err)
			continue
		}
		if err := s.tasks.Remove(ctx, task.ID); err != nil {
			result.Failed++
			s.failed.Add(1)
			s.logger.Error("scheduled task ran but could not be removed", "task_id", task.ID, "error", err)
			continue
		}
		result.Completed++
		s.completed.Add(1)
		s.logger.Debug("scheduled task completed", "task_id", task.ID)
	}
	return result, nil
}

func (s *Scheduler) execute(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in scheduled task: %v\n%s", r, debug.Stack())
		}
	}()
	return s.callback(ctx, task.Due, task.Payload)
}

// Run polls until ctx is cancelled. A tick that has started runs to
// completion even if ctx is cancelled meanwhile.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("scheduler started", "interval", s.interval.String())
	for {
		if _, err := s.Tick(context.WithoutCancel(ctx)); err != nil {
			s.logger.Error("scheduler tick failed", "error", err)
		}
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Start runs the poll loop in the background until Stop.
func (s *Scheduler) Start(ctx context.Context) {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.cancel != nil {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	go func() {
		defer close(done)
		_ = s.Run(runCtx)
	}()
}

// Stop cancels the loop started by Start and waits for the current tick.
func (s *Scheduler) Stop() {
	s.runMu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.runMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Scheduler) Stats() Stats {
	stats := Stats{
		Scheduled:       s.scheduled.Load(),
		Completed:       s.completed.Load(),
		Failed:          s.failed.Load(),
		IntervalSeconds: s.interval.Seconds(),
	}
	if last := s.lastTick.Load(); last != 0 {
		stats.LastTick = time.Unix(0, last)
	}
	return stats
}
