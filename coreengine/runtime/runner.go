// Package runtime provides the CommandRunner, the correlated request/response
// core of the registry.
//
// A CommandRunner owns two broadcast buses. Producers publish requests on the
// request bus and wait on the response bus for the response whose From equals
// their request id. Request pollers consume the request bus, dispatch each
// command exactly once and publish the result. Internal(Quit) on the request
// bus stops every poller.
//
// The buses are lossy and never replay, so every consumer subscribes before
// the message it needs can be published:
//
//	runner := runtime.NewCommandRunner(dispatcher, runtime.DefaultConfig(), logger)
//	go runner.Serve(ctx)
//	result, ok := runner.DispatchAndWait(ctx, command.App(command.GetTenant{...}))
package runtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/o008/registry/commbus"
	"github.com/o008/registry/coreengine/command"
	"github.com/o008/registry/coreengine/observability"
)

// Bus names, used in logs and metrics.
const (
	RequestBusName  = "requests"
	ResponseBusName = "responses"
)

// ErrTerminated is returned by Send once the runner has been terminated.
// Send wraps commbus.ErrNoSubscribers when no request poller is subscribed.
var ErrTerminated = errors.New("runtime: runner terminated")

// Request is a dispatch command travelling on the request bus.
type Request = commbus.RequestEnvelope[command.DispatchCommand]

// Response is a dispatch response travelling on the response bus.
type Response = commbus.ResponseEnvelope[command.DispatchResponse]

// Logger is the logging interface used by the runtime.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Handler turns a command into a result. *dispatcher.Dispatcher implements it.
type Handler interface {
	Handle(ctx context.Context, cmd command.DispatchCommand) command.Result
}

// Config holds bus sizing and poller backoff.
type Config struct {
	// RequestCapacity is the per-subscription buffer of the request bus.
	RequestCapacity int
	// ResponseCapacity is the per-subscription buffer of the response bus.
	ResponseCapacity int
	// RequestWait is the request poller backoff when nothing is buffered.
	RequestWait time.Duration
	// ResponseWait is the response poller backoff when nothing is buffered.
	ResponseWait time.Duration
	// MaxDispatch bounds the commands a persistent request poller dispatches
	// at once. When it is reached the poller stops reading the request bus
	// until a dispatch finishes, and requests beyond RequestCapacity are
	// dropped for that poller.
	MaxDispatch int
}

// DefaultConfig returns the default runner configuration.
func DefaultConfig() Config {
	return Config{
		RequestCapacity:  64,
		ResponseCapacity: 64,
		RequestWait:      10 * time.Millisecond,
		ResponseWait:     10 * time.Millisecond,
		MaxDispatch:      16,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.RequestCapacity <= 0 {
		c.RequestCapacity = def.RequestCapacity
	}
	if c.ResponseCapacity <= 0 {
		c.ResponseCapacity = def.ResponseCapacity
	}
	if c.RequestWait <= 0 {
		c.RequestWait = def.RequestWait
	}
	if c.ResponseWait <= 0 {
		c.ResponseWait = def.ResponseWait
	}
	if c.MaxDispatch <= 0 {
		c.MaxDispatch = def.MaxDispatch
	}
	return c
}

// =============================================================================
// COMMAND RUNNER
// =============================================================================

// CommandRunner wires a Handler to a request bus and a response bus.
type CommandRunner struct {
	cfg       Config
	handler   Handler
	logger    Logger
	requests  *commbus.Bus[Request]
	responses *commbus.Bus[Response]
	claims    *claimSet

	serving       atomic.Int32
	shutdown      chan struct{}
	terminateOnce sync.Once
}

// NewCommandRunner creates a runner with its own pair of buses.
func NewCommandRunner(handler Handler, cfg Config, logger Logger) *CommandRunner {
	cfg = cfg.withDefaults()
	return &CommandRunner{
		cfg:       cfg,
		handler:   handler,
		logger:    logger,
		requests:  commbus.NewBus[Request](RequestBusName, cfg.RequestCapacity, logger),
		responses: commbus.NewBus[Response](ResponseBusName, cfg.ResponseCapacity, logger),
		claims:    newClaimSet(),
		shutdown:  make(chan struct{}),
	}
}

// RequestHandle identifies an in-flight request. Its response subscription
// was opened before the request was published.
type RequestHandle struct {
	id      uuid.UUID
	command string
	sentAt  time.Time
	poller  *ResponsePoller
}

// ID returns the correlation id.
func (h *RequestHandle) ID() uuid.UUID { return h.id }

// Command returns the name of the submitted command.
func (h *RequestHandle) Command() string { return h.command }

// Close abandons the request. A later Poll reports no response.
func (h *RequestHandle) Close() { h.poller.Close() }

// Send publishes cmd on the request bus and returns a handle for Poll.
func (r *CommandRunner) Send(ctx context.Context, cmd command.DispatchCommand) (*RequestHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.send(commbus.NewRequestEnvelope(cmd))
}

func (r *CommandRunner) send(req Request) (*RequestHandle, error) {
	if r.stopped() {
		return nil, ErrTerminated
	}
	poller := r.newResponsePoller(req.ID())

	if _, err := r.requests.Send(req); err != nil {
		poller.Close()
		observability.RecordBusSend(RequestBusName, sendOutcome(err))
		return nil, fmt.Errorf("send %s: %w", req.Payload().Name(), err)
	}
	observability.RecordBusSend(RequestBusName, "delivered")

	if r.logger != nil {
		r.logger.Debug("request_sent",
			"request_id", req.ID().String(),
			"command", req.Payload().Name(),
		)
	}
	return &RequestHandle{
		id:      req.ID(),
		command: req.Payload().Name(),
		sentAt:  time.Now(),
		poller:  poller,
	}, nil
}

// Poll waits for the response to handle. It returns false when the runner
// is told to quit, a bus closes, ctx is done, or the handle was already
// polled. There is no timeout of its own.
func (r *CommandRunner) Poll(ctx context.Context, handle *RequestHandle) (command.Result, bool) {
	result, outcome := handle.poller.Wait(ctx)
	observability.RecordPollerResult(outcome)
	if outcome == OutcomeResolved {
		observability.RecordResponseWait(int(time.Since(handle.sentAt).Milliseconds()))
		return result, true
	}

	if r.logger != nil {
		r.logger.Debug("request_unanswered",
			"request_id", handle.id.String(),
			"command", handle.command,
			"outcome", outcome,
		)
	}
	return command.Result{}, false
}

// DispatchAndWait sends cmd and waits for its response. When no persistent
// request poller is serving, a single-shot poller targeted at this request
// is started first.
func (r *CommandRunner) DispatchAndWait(ctx context.Context, cmd command.DispatchCommand) (command.Result, bool) {
	if r.stopped() {
		return command.Result{}, false
	}
	req := commbus.NewRequestEnvelope(cmd)

	if !r.Serving() {
		pollCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		poller := r.newRequestPoller(req.ID())
		go func() {
			_ = poller.Run(pollCtx)
		}()
	}

	handle, err := r.send(req)
	if err != nil {
		if r.logger != nil {
			r.logger.Warn("request_send_failed",
				"command", cmd.Name(),
				"error", err.Error(),
			)
		}
		return command.Result{}, false
	}
	return r.Poll(ctx, handle)
}

// Serve runs a persistent request poller until Quit, runner shutdown or ctx
// cancellation. It returns ctx.Err() only when ctx ended the loop.
func (r *CommandRunner) Serve(ctx context.Context) error {
	poller := r.NewRequestPoller()
	r.serving.Add(1)
	defer r.serving.Add(-1)

	if r.logger != nil {
		r.logger.Info("runner_serving")
	}
	return poller.Run(ctx)
}

// Serving reports whether a persistent request poller is running.
func (r *CommandRunner) Serving() bool {
	return r.serving.Load() > 0
}

// Terminate publishes Quit on the request bus and closes the shutdown
// channel, so sleeping pollers wake within one backoff interval.
// It is idempotent.
func (r *CommandRunner) Terminate() {
	r.terminateOnce.Do(func() {
		_, err := r.requests.Send(commbus.NewRequestEnvelope(command.Internal(command.Quit)))
		observability.RecordBusSend(RequestBusName, sendOutcome(err))
		close(r.shutdown)

		if r.logger != nil {
			r.logger.Info("runner_terminated", "quit_published", err == nil)
		}
	})
}

// Close terminates the runner and closes both buses.
func (r *CommandRunner) Close() {
	r.Terminate()
	r.requests.Close()
	r.responses.Close()
}

// Done is closed once Terminate has been called.
func (r *CommandRunner) Done() <-chan struct{} { return r.shutdown }

// RequestBus exposes the request bus for introspection.
func (r *CommandRunner) RequestBus() *commbus.Bus[Request] { return r.requests }

// ResponseBus exposes the response bus for introspection.
func (r *CommandRunner) ResponseBus() *commbus.Bus[Response] { return r.responses }

// sleep waits d and reports false when ctx or the runner ended first.
func (r *CommandRunner) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-r.shutdown:
		return false
	case <-timer.C:
		return true
	}
}

func (r *CommandRunner) stopped() bool {
	select {
	case <-r.shutdown:
		return true
	default:
		return false
	}
}

func sendOutcome(err error) string {
	switch {
	case err == nil:
		return "delivered"
	case isClosed(err):
		return "closed"
	default:
		return "no_subscribers"
	}
}
