// Package runner executes deferred command work off the transport path.
//
// A Runner owns two bounded queues, each drained by one worker goroutine:
//
//	long-run:  executes Task.Run, the only place slow module logic may block
//	send-out:  calls Task.Deliver with the final status
//
// Submitting to a full long-run queue fails fast with ErrBusy. When the
// long-run worker cannot hand a finished task to a full send-out queue
// within the configured wait, it marks the task StatusBusy and calls
// Deliver itself, so every accepted task gets exactly one Deliver call.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/wtap-core/internal/dispatch"
)

var (
	// ErrBusy is returned when the long-run queue stays full for the
	// whole submit wait.
	ErrBusy = errors.New("runner: long-run queue full")

	// ErrStopped is returned after Stop.
	ErrStopped = errors.New("runner: stopped")

	// ErrInvalidTask is returned for a task without Run or Deliver.
	ErrInvalidTask = errors.New("runner: task needs Run and Deliver")
)

// Logger defines the logging interface used by the Runner.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Task is one deferred command.
//
// Run is called on the long-run worker. Deliver is called exactly once
// with the final status, normally on the send-out worker. Deliver owns
// the transport reply and the release of the request buffer.
type Task struct {
	ID      uuid.UUID
	Run     func(ctx context.Context) dispatch.Status
	Deliver func(status dispatch.Status)

	status dispatch.Status
}

// NewTask builds a Task with a fresh ID.
func NewTask(run func(ctx context.Context) dispatch.Status, deliver func(dispatch.Status)) *Task {
	return &Task{ID: uuid.New(), Run: run, Deliver: deliver}
}

// Config sizes the queues.
type Config struct {
	LongRunCapacity int
	SendOutCapacity int

	// SendOutTimeout bounds the long-run worker's wait on a full send-out
	// queue before it delivers inline.
	SendOutTimeout time.Duration
}

// Stats is a point-in-time snapshot of runner counters.
type Stats struct {
	Submitted       uint64 `json:"submitted"`
	Rejected        uint64 `json:"rejected"`
	Completed       uint64 `json:"completed"`
	InlineFallbacks uint64 `json:"inline_fallbacks"`
	Panics          uint64 `json:"panics"`
	LongRunDepth    int    `json:"long_run_depth"`
	SendOutDepth    int    `json:"send_out_depth"`
}

// Runner is the two-stage task pipeline.
//
// Thread Safety:
//   - SubmitLongRun and Stats are safe for concurrent use.
//   - Start and Stop must not be called concurrently with each other.
type Runner struct {
	cfg     Config
	longRun chan *Task
	sendOut chan *Task
	logger  Logger

	// mu orders submissions against Stop: submitters hold the read lock
	// while enqueuing, Stop takes the write lock before draining.
	mu      sync.RWMutex
	stopped bool
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	submitted       atomic.Uint64
	rejected        atomic.Uint64
	completed       atomic.Uint64
	inlineFallbacks atomic.Uint64
	panics          atomic.Uint64
}

// New creates a Runner. Capacities below 1 are raised to 1.
func New(cfg Config) *Runner {
	cfg.LongRunCapacity = max(cfg.LongRunCapacity, 1)
	cfg.SendOutCapacity = max(cfg.SendOutCapacity, 1)
	return &Runner{
		cfg:     cfg,
		longRun: make(chan *Task, cfg.LongRunCapacity),
		sendOut: make(chan *Task, cfg.SendOutCapacity),
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger. Call before Start.
func (r *Runner) SetLogger(logger Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// Start launches both workers. They run until ctx is cancelled or Stop
// is called.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started || r.stopped {
		return
	}
	r.started = true

	ctx, r.cancel = context.WithCancel(ctx)
	r.wg.Add(2)
	go r.longRunWorker(ctx)
	go r.sendOutWorker(ctx)
	r.logger.Info("request runner started",
		"long_run_capacity", r.cfg.LongRunCapacity,
		"send_out_capacity", r.cfg.SendOutCapacity)
}

// Stop halts the workers and delivers every task still queued: tasks that
// already ran get their status, tasks that never ran get
// StatusInternalError.
func (r *Runner) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	if r.cancel != nil {
		r.cancel()
	}
	r.mu.Unlock()

	r.wg.Wait()

	for {
		select {
		case t := <-r.sendOut:
			r.deliver(t)
		case t := <-r.longRun:
			t.status = dispatch.StatusInternalError
			r.deliver(t)
		default:
			r.logger.Info("request runner stopped")
			return
		}
	}
}

// SubmitLongRun queues t, waiting at most timeout for space.
func (r *Runner) SubmitLongRun(t *Task, timeout time.Duration) error {
	if t == nil || t.Run == nil || t.Deliver == nil {
		return ErrInvalidTask
	}
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.stopped {
		return ErrStopped
	}

	select {
	case r.longRun <- t:
		r.submitted.Add(1)
		return nil
	default:
	}

	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case r.longRun <- t:
			r.submitted.Add(1)
			return nil
		case <-timer.C:
		}
	}

	r.rejected.Add(1)
	return fmt.Errorf("%w (task %s)", ErrBusy, t.ID)
}

// Stats returns current counters and queue depths.
func (r *Runner) Stats() Stats {
	return Stats{
		Submitted:       r.submitted.Load(),
		Rejected:        r.rejected.Load(),
		Completed:       r.completed.Load(),
		InlineFallbacks: r.inlineFallbacks.Load(),
		Panics:          r.panics.Load(),
		LongRunDepth:    len(r.longRun),
		SendOutDepth:    len(r.sendOut),
	}
}

func (r *Runner) longRunWorker(ctx context.Context) {
	defer r.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-r.longRun:
			t.status = r.run(ctx, t)
			r.handOff(ctx, t)
		}
	}
}

// handOff moves a finished task to the send-out queue. It never retries:
// if the queue stays full past SendOutTimeout the task is failed as busy
// and delivered right here.
func (r *Runner) handOff(ctx context.Context, t *Task) {
	select {
	case r.sendOut <- t:
		return
	default:
	}

	timer := time.NewTimer(r.cfg.SendOutTimeout)
	defer timer.Stop()

	select {
	case r.sendOut <- t:
		return
	case <-timer.C:
	case <-ctx.Done():
	}

	r.inlineFallbacks.Add(1)
	r.logger.Warn("send-out queue full, delivering inline", "task_id", t.ID, "status", int(t.status))
	t.status = dispatch.StatusBusy
	r.deliver(t)
}

func (r *Runner) sendOutWorker(ctx context.Context) {
	defer r.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-r.sendOut:
			r.deliver(t)
		}
	}
}

func (r *Runner) run(ctx context.Context, t *Task) (status dispatch.Status) {
	defer func() {
		if rec := recover(); rec != nil {
			r.panics.Add(1)
			r.logger.Error("panic in long-run task", "task_id", t.ID, "panic", rec)
			status = dispatch.StatusInternalError
		}
	}()
	return t.Run(ctx)
}

func (r *Runner) deliver(t *Task) {
	defer func() {
		if rec := recover(); rec != nil {
			r.panics.Add(1)
			r.logger.Error("panic in task delivery", "task_id", t.ID, "panic", rec)
		}
	}()
	r.completed.Add(1)
	t.Deliver(t.status)
}
