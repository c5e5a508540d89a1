package runtime

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/o008/registry/commbus"
	"github.com/o008/registry/coreengine/command"
	"github.com/o008/registry/coreengine/observability"
)

// PollerState is the lifecycle state of a RequestPoller.
type PollerState int32

const (
	StateWaiting PollerState = iota
	StateDispatching
	StatePublished
	StateDone
	StateAborted
)

func (s PollerState) String() string {
	switch s {
	case StateWaiting:
		return "waiting"
	case StateDispatching:
		return "dispatching"
	case StatePublished:
		return "published"
	case StateDone:
		return "done"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// RequestPoller consumes the request bus and dispatches App commands.
//
// A persistent poller serves any request until Quit, running up to
// Config.MaxDispatch dispatches at once. A single-shot poller serves only its
// target request, inline, and then finishes. Either way a request is
// dispatched by at most one poller of the runner: the request id is claimed
// before dispatch.
type RequestPoller struct {
	runner *CommandRunner
	sub    *commbus.Subscription[Request]
	target uuid.UUID
	state  atomic.Int32

	slots    *semaphore.Weighted
	inFlight sync.WaitGroup
	active   atomic.Int32
}

// NewRequestPoller creates a persistent poller. It subscribes immediately,
// so every request sent after this call is visible to it.
func (r *CommandRunner) NewRequestPoller() *RequestPoller {
	return r.newRequestPoller(uuid.Nil)
}

func (r *CommandRunner) newRequestPoller(target uuid.UUID) *RequestPoller {
	return &RequestPoller{
		runner: r,
		sub:    r.requests.Subscribe(),
		target: target,
		slots:  semaphore.NewWeighted(int64(r.cfg.MaxDispatch)),
	}
}

// State returns the current lifecycle state.
func (p *RequestPoller) State() PollerState {
	return PollerState(p.state.Load())
}

// SingleShot reports whether the poller serves one request only.
func (p *RequestPoller) SingleShot() bool { return p.target != uuid.Nil }

// Run polls until the poller is done or aborted. Dispatches already started
// finish and publish before Run returns. It returns ctx.Err() when ctx ended
// the loop and nil otherwise.
func (p *RequestPoller) Run(ctx context.Context) error {
	defer p.inFlight.Wait()
	defer p.sub.Close()
	r := p.runner

	for {
		req, err := p.sub.TryRecv()
		switch {
		case err == nil:
			if stop := p.handle(ctx, req); stop {
				return nil
			}
			continue

		case commbus.IsLagged(err):
			var lagged *commbus.LaggedError
			if errors.As(err, &lagged) {
				observability.RecordBusLag(RequestBusName, lagged.Missed)
				if r.logger != nil {
					r.logger.Warn("request_poller_lagged", "missed", lagged.Missed)
				}
			}

		case isClosed(err):
			p.setState(StateAborted)
			return nil
		}

		if !r.sleep(ctx, r.cfg.RequestWait) {
			p.setState(StateAborted)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return nil
		}
	}
}

// handle processes one request and reports whether the poller must stop.
func (p *RequestPoller) handle(ctx context.Context, req Request) bool {
	r := p.runner
	cmd := req.Payload()

	if cmd.IsQuit() {
		_, err := r.responses.Send(commbus.NewResponseEnvelope(req.ID(), command.InternalResponse(command.Quit)))
		observability.RecordBusSend(ResponseBusName, sendOutcome(err))
		p.setState(StateAborted)
		if r.logger != nil {
			r.logger.Info("request_poller_quit", "single_shot", p.SingleShot())
		}
		return true
	}

	if _, ok := cmd.AsApp(); !ok {
		if r.logger != nil {
			r.logger.Debug("request_ignored", "request_id", req.ID().String(), "command", cmd.Name())
		}
		return false
	}
	if p.SingleShot() && req.ID() != p.target {
		return false
	}

	if !r.claims.claim(req.ID()) {
		// Another poller owns it. A single-shot poller has nothing left to do.
		return p.SingleShot()
	}

	if p.SingleShot() {
		p.setState(StateDispatching)
		p.dispatch(ctx, req)
		p.setState(StateDone)
		return true
	}

	if err := p.slots.Acquire(ctx, 1); err != nil {
		// ctx ended; the claimed request goes unanswered like any other
		// request dropped by a stopping poller.
		return false
	}
	p.inFlight.Add(1)
	p.setState(StateDispatching)
	p.active.Add(1)
	go func() {
		defer p.inFlight.Done()
		defer p.slots.Release(1)
		p.dispatch(ctx, req)
		if p.active.Add(-1) == 0 {
			p.state.CompareAndSwap(int32(StateDispatching), int32(StateWaiting))
		}
	}()
	return false
}

// dispatch runs one claimed request and publishes its response.
func (p *RequestPoller) dispatch(ctx context.Context, req Request) {
	r := p.runner
	cmd := req.Payload()
	result := r.handler.Handle(ctx, cmd)

	_, err := r.responses.Send(commbus.NewResponseEnvelope(req.ID(), command.AppResponse(result)))
	observability.RecordBusSend(ResponseBusName, sendOutcome(err))
	if p.SingleShot() {
		p.setState(StatePublished)
	}

	if r.logger == nil {
		return
	}
	if err != nil {
		r.logger.Warn("response_unobserved",
			"request_id", req.ID().String(),
			"command", cmd.Name(),
			"error", err.Error(),
		)
		return
	}
	r.logger.Debug("request_dispatched",
		"request_id", req.ID().String(),
		"command", cmd.Name(),
		"status", command.Status(result.Err),
	)
}

func (p *RequestPoller) setState(s PollerState) {
	p.state.Store(int32(s))
}
