// Package reactor runs the relay's tasks.
//
// A task is a goroutine that owns one state machine (an inbound handler and
// the relay session it dispatches) for its whole life. The Reactor keeps track
// of every task it started so that shutdown can wait for in-flight relays, and
// it contains panics so one task can never take the listener down.
package reactor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/julienstroheker/wsrelay/internal/logging"
	"github.com/julienstroheker/wsrelay/internal/metrics"
)

// ErrClosed is returned by Go after Close
var ErrClosed = errors.New("reactor is closed")

// Options configures a Reactor
type Options struct {
	Logger  *logging.Logger
	Metrics *metrics.Metrics
}

// Reactor schedules tasks and tracks how many are outstanding
type Reactor struct {
	logger  *logging.Logger
	metrics *metrics.Metrics

	// ctx is handed to tasks; it is never cancelled by Close so that
	// started sessions run to a terminal state.
	ctx context.Context

	mu       sync.Mutex
	closed   bool
	inFlight atomic.Int64
	idle     chan struct{}
}

// New creates a Reactor
func New(opts *Options) *Reactor {
	if opts == nil {
		opts = &Options{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	idle := make(chan struct{})
	close(idle)

	return &Reactor{
		logger:  logger,
		metrics: opts.Metrics,
		ctx:     context.Background(),
		idle:    idle,
	}
}

// Go starts task on its own goroutine. name identifies the task in logs.
func (r *Reactor) Go(name string, task func(ctx context.Context)) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	if r.inFlight.Add(1) == 1 {
		r.idle = make(chan struct{})
	}
	r.mu.Unlock()

	r.metrics.TaskStarted()

	go func() {
		defer r.done()
		defer func() {
			if p := recover(); p != nil {
				r.metrics.TaskPanicked()
				r.logger.Error("Task panicked",
					logging.String("task", name),
					logging.String("panic", fmt.Sprint(p)))
			}
		}()
		task(r.ctx)
	}()

	return nil
}

func (r *Reactor) done() {
	r.metrics.TaskDone()

	r.mu.Lock()
	if r.inFlight.Add(-1) == 0 {
		close(r.idle)
	}
	r.mu.Unlock()
}

// InFlight returns the number of tasks that have not returned yet
func (r *Reactor) InFlight() int64 {
	return r.inFlight.Load()
}

// Idle returns a channel that is closed while no task is running.
// The channel is replaced whenever a new task starts after an idle period.
func (r *Reactor) Idle() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.idle
}

// Wait blocks until no task is running or ctx is done
func (r *Reactor) Wait(ctx context.Context) error {
	select {
	case <-r.Idle():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for %d tasks: %w", r.InFlight(), ctx.Err())
	}
}

// Close stops the Reactor from accepting new tasks. Running tasks are not interrupted.
func (r *Reactor) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}
