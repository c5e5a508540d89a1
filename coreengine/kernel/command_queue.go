// Package kernel provides the CommandQueue, which runs dispatch work with
// bounded concurrency and publishes results in submission order.
//
// Two loops cooperate under an errgroup:
//   - the driver takes submitted commands, acquires an in-flight slot and
//     spawns a unit of work per command
//   - the join loop awaits the spawned work front to back and hands each
//     result to the ResultHandlers
//
// Quit stops the driver; a terminate result sets the halt flag; a panic in a
// unit of work is fatal and is returned from Run as a *PanicError.
package kernel

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/o008/registry/coreengine/command"
	"github.com/o008/registry/coreengine/observability"
)

// Logger is the logging interface used by the kernel.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Dispatcher executes one command. *dispatcher.Dispatcher implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, cmd command.DispatchCommand) (command.Value, error)
}

// ErrQueueStopped is returned by Submit once Run has returned.
var ErrQueueStopped = errors.New("kernel: command queue stopped")

// =============================================================================
// CONFIGURATION
// =============================================================================

// QueueConfig configures a CommandQueue.
type QueueConfig struct {
	// DispatchWait is the driver pause after spawning a unit of work (default: 64ms).
	DispatchWait time.Duration
	// JoinWait is the join loop pause between passes (default: 24ms).
	JoinWait time.Duration
	// MaxInFlight bounds spawned but not yet joined work (default: 8).
	MaxInFlight int
	// Capacity is the number of submitted commands buffered ahead of the driver (default: 128).
	Capacity int
}

// DefaultQueueConfig returns default queue configuration.
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		DispatchWait: 64 * time.Millisecond,
		JoinWait:     24 * time.Millisecond,
		MaxInFlight:  8,
		Capacity:     128,
	}
}

// ResultHandlers receive joined results in submission order. Either may be nil.
type ResultHandlers struct {
	OnResult func(cmd command.DispatchCommand, value command.Value)
	OnError  func(cmd command.DispatchCommand, err error)
}

// =============================================================================
// COMMAND QUEUE
// =============================================================================

// work is the handle of one spawned unit of work.
type work struct {
	cmd   command.DispatchCommand
	done  chan struct{}
	value command.Value
	err   error
}

// CommandQueue runs submitted commands through a Dispatcher.
// Run must be called at most once.
type CommandQueue struct {
	dispatcher Dispatcher
	cfg        QueueConfig
	logger     Logger
	handlers   ResultHandlers

	queue    chan command.DispatchCommand
	inFlight *semaphore.Weighted

	mu      sync.Mutex
	handles []*work

	halted   chan struct{}
	haltOnce sync.Once
	stopped  chan struct{}
	stopOnce sync.Once
}

// NewCommandQueue creates a CommandQueue. Zero config fields take defaults.
func NewCommandQueue(dispatcher Dispatcher, cfg QueueConfig, logger Logger, handlers ResultHandlers) *CommandQueue {
	def := DefaultQueueConfig()
	if cfg.DispatchWait <= 0 {
		cfg.DispatchWait = def.DispatchWait
	}
	if cfg.JoinWait <= 0 {
		cfg.JoinWait = def.JoinWait
	}
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = def.MaxInFlight
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = def.Capacity
	}

	return &CommandQueue{
		dispatcher: dispatcher,
		cfg:        cfg,
		logger:     logger,
		handlers:   handlers,
		queue:      make(chan command.DispatchCommand, cfg.Capacity),
		inFlight:   semaphore.NewWeighted(int64(cfg.MaxInFlight)),
		halted:     make(chan struct{}),
		stopped:    make(chan struct{}),
	}
}

// Submit enqueues cmd. It blocks while the queue is full.
func (q *CommandQueue) Submit(ctx context.Context, cmd command.DispatchCommand) error {
	select {
	case <-q.stopped:
		return ErrQueueStopped
	default:
	}

	select {
	case q.queue <- cmd:
		return nil
	case <-q.stopped:
		return ErrQueueStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run drives and joins work until Quit (or a terminate result) has been
// joined, ctx is cancelled, or a unit of work panics.
// It returns nil, ctx.Err() or a *PanicError respectively.
func (q *CommandQueue) Run(ctx context.Context) error {
	defer q.stopOnce.Do(func() { close(q.stopped) })

	g, gctx := errgroup.WithContext(ctx)
	driverDone := make(chan struct{})

	g.Go(func() error {
		defer close(driverDone)
		return q.drive(gctx)
	})
	g.Go(func() error {
		return q.join(gctx, driverDone)
	})

	err := g.Wait()
	if err != nil && q.logger != nil {
		var panicErr *PanicError
		if errors.As(err, &panicErr) {
			q.logger.Error("queue_aborted", "command", panicErr.Operation, "error", err.Error())
		} else {
			q.logger.Info("queue_cancelled", "error", err.Error())
		}
	}
	return err
}

// RunOnce submits cmds followed by Quit and runs the queue to completion.
func (q *CommandQueue) RunOnce(ctx context.Context, cmds ...command.DispatchCommand) error {
	errc := make(chan error, 1)
	go func() { errc <- q.Run(ctx) }()

	all := make([]command.DispatchCommand, 0, len(cmds)+1)
	all = append(all, cmds...)
	all = append(all, command.Internal(command.Quit))

	for _, cmd := range all {
		if err := q.Submit(ctx, cmd); err != nil {
			// Run already returned; its error is the one that matters.
			if errors.Is(err, ErrQueueStopped) {
				break
			}
			return err
		}
	}
	return <-errc
}

// Halted reports whether the queue stopped accepting work.
func (q *CommandQueue) Halted() bool {
	select {
	case <-q.halted:
		return true
	default:
		return false
	}
}

func (q *CommandQueue) halt(reason string) {
	q.haltOnce.Do(func() {
		close(q.halted)
		if q.logger != nil {
			q.logger.Info("queue_halted", "reason", reason)
		}
	})
}

// =============================================================================
// DRIVER
// =============================================================================

func (q *CommandQueue) drive(ctx context.Context) error {
	for {
		if q.Halted() {
			q.discardPending()
			return nil
		}

		var cmd command.DispatchCommand
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-q.halted:
			q.discardPending()
			return nil
		case cmd = <-q.queue:
		}

		if err := q.inFlight.Acquire(ctx, 1); err != nil {
			return err
		}

		w := &work{cmd: cmd, done: make(chan struct{})}
		q.mu.Lock()
		q.handles = append(q.handles, w)
		q.mu.Unlock()

		observability.QueueWorkStarted()
		go q.execute(ctx, w)

		if cmd.IsQuit() {
			// Quit is dispatched like any command so its terminate result is
			// joined in order; nothing after it is spawned.
			q.halt("quit")
			q.discardPending()
			return nil
		}

		if !sleep(ctx, q.cfg.DispatchWait) {
			return ctx.Err()
		}
	}
}

func (q *CommandQueue) execute(ctx context.Context, w *work) {
	defer close(w.done)
	w.value, w.err = SafeExecuteWithResult(q.logger, w.cmd.Name(), func() (command.Value, error) {
		return q.dispatcher.Dispatch(ctx, w.cmd)
	})
}

func (q *CommandQueue) discardPending() {
	discarded := 0
	for {
		select {
		case <-q.queue:
			discarded++
		default:
			if discarded > 0 && q.logger != nil {
				q.logger.Warn("queue_commands_discarded", "count", discarded)
			}
			return
		}
	}
}

// =============================================================================
// JOIN LOOP
// =============================================================================

func (q *CommandQueue) join(ctx context.Context, driverDone <-chan struct{}) error {
	for {
		q.mu.Lock()
		batch := q.handles
		q.handles = nil
		q.mu.Unlock()

		for _, w := range batch {
			select {
			case <-w.done:
			case <-ctx.Done():
				return ctx.Err()
			}
			q.inFlight.Release(1)
			observability.QueueWorkJoined()

			var panicErr *PanicError
			if errors.As(w.err, &panicErr) {
				observability.RecordQueueResult("panic")
				return panicErr
			}
			q.publish(w)
		}

		select {
		case <-driverDone:
			q.mu.Lock()
			drained := len(q.handles) == 0
			q.mu.Unlock()
			if drained {
				return nil
			}
		default:
		}

		if !sleep(ctx, q.cfg.JoinWait) {
			return ctx.Err()
		}
	}
}

func (q *CommandQueue) publish(w *work) {
	status := command.Status(w.err)
	observability.RecordQueueResult(status)

	switch {
	case command.IsTerminate(w.err):
		q.halt("terminate")
	case w.err != nil:
		if q.logger != nil {
			q.logger.Debug("queue_command_failed", "command", w.cmd.Name(), "status", status)
		}
		if q.handlers.OnError != nil {
			q.handlers.OnError(w.cmd, w.err)
		}
	default:
		if q.handlers.OnResult != nil {
			q.handlers.OnResult(w.cmd, w.value)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
