package service

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tejashwikalptaru/mantra/internal/domain"
	"github.com/tejashwikalptaru/mantra/internal/ports"
)

// CommandFunc is one unit of work run by the CommandQueue.
type CommandFunc func(ctx context.Context) error

// CommandErrorHandler receives the error of a failed command.
type CommandErrorHandler func(name string, err error)

// CommandQueue runs commands one at a time in the order they were enqueued.
//
// A single goroutine consumes an unbounded FIFO, so Enqueue never blocks and may be
// called from inside a running command. A failing or panicking command is reported to
// the error handler and the next command still runs.
type CommandQueue struct {
	logger  *slog.Logger
	bus     ports.EventBus
	onError CommandErrorHandler
	timeout time.Duration

	mu      sync.Mutex
	pending []*command
	closed  bool

	wake chan struct{}
	done chan struct{}
}

// command is a queued CommandFunc.
type command struct {
	id   string
	name string
	fn   CommandFunc
	done chan struct{}
}

// NewCommandQueue creates a queue and starts its consumer.
// A timeout of zero runs commands without a deadline.
func NewCommandQueue(logger *slog.Logger, bus ports.EventBus, onError CommandErrorHandler, timeout time.Duration) *CommandQueue {
	q := &CommandQueue{
		logger:  logger,
		bus:     bus,
		onError: onError,
		timeout: timeout,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}

	go q.run()

	return q
}

// Enqueue appends fn to the queue. The returned channel is closed once fn has returned,
// whether it failed or not.
//
// Returns domain.ErrEngineClosed after Close.
func (q *CommandQueue) Enqueue(name string, fn CommandFunc) (<-chan struct{}, error) {
	cmd := &command{
		id:   uuid.NewString(),
		name: name,
		fn:   fn,
		done: make(chan struct{}),
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil, domain.ErrEngineClosed
	}
	q.pending = append(q.pending, cmd)
	q.mu.Unlock()

	q.signal()

	q.logger.Debug("command enqueued", slog.String("command", name), slog.String("id", cmd.id))
	return cmd.done, nil
}

// Pending returns the number of commands waiting to run.
func (q *CommandQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Close stops accepting commands, runs the ones already queued and waits for the consumer to exit.
func (q *CommandQueue) Close() {
	q.mu.Lock()
	alreadyClosed := q.closed
	q.closed = true
	q.mu.Unlock()

	if !alreadyClosed {
		q.signal()
	}
	<-q.done
}

func (q *CommandQueue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *CommandQueue) run() {
	defer close(q.done)

	for {
		cmd, ok := q.next()
		if !ok {
			return
		}
		q.execute(cmd)
	}
}

// next blocks until a command is available. It returns false once the queue is closed and empty.
func (q *CommandQueue) next() (*command, bool) {
	for {
		q.mu.Lock()
		if len(q.pending) > 0 {
			cmd := q.pending[0]
			q.pending[0] = nil
			q.pending = q.pending[1:]
			q.mu.Unlock()
			return cmd, true
		}
		if q.closed {
			q.mu.Unlock()
			return nil, false
		}
		q.mu.Unlock()

		<-q.wake
	}
}

func (q *CommandQueue) execute(cmd *command) {
	defer close(cmd.done)

	ctx := context.Background()
	if q.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.timeout)
		defer cancel()
	}

	start := time.Now()
	err := q.call(ctx, cmd)
	elapsed := time.Since(start)

	if err != nil {
		q.logger.Warn("command failed",
			slog.String("command", cmd.name),
			slog.String("id", cmd.id),
			slog.Duration("elapsed", elapsed),
			slog.Any("error", err))
		if q.onError != nil {
			q.onError(cmd.name, err)
		}
	} else {
		q.logger.Debug("command completed",
			slog.String("command", cmd.name),
			slog.String("id", cmd.id),
			slog.Duration("elapsed", elapsed))
	}

	if q.bus != nil {
		q.bus.Publish(domain.NewCommandCompletedEvent(cmd.id, cmd.name, elapsed, err))
	}
}

// call runs the command, turning a panic into an error.
func (q *CommandQueue) call(ctx context.Context, cmd *command) (err error) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("command panicked",
				slog.String("command", cmd.name),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
			err = fmt.Errorf("command %s panicked: %v", cmd.name, r)
		}
	}()

	return cmd.fn(ctx)
}
