package runtime

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/o008/registry/commbus"
	"github.com/o008/registry/coreengine/command"
	"github.com/o008/registry/coreengine/observability"
)

// Response poller outcomes.
const (
	OutcomeResolved  = "resolved"
	OutcomeQuit      = "quit"
	OutcomeClosed    = "closed"
	OutcomeCancelled = "cancelled"
)

// ResponsePoller waits for the single response answering one request.
//
// It watches the response bus for From == target and for the Quit that
// request pollers forward. Terminate is seen through the runner's shutdown
// channel, so the poller also stops when no request poller is left to
// forward Quit. It is one-shot: after Wait returns, its subscription is
// closed.
type ResponsePoller struct {
	runner    *CommandRunner
	target    uuid.UUID
	responses *commbus.Subscription[Response]
	closeOnce sync.Once
}

func (r *CommandRunner) newResponsePoller(target uuid.UUID) *ResponsePoller {
	return &ResponsePoller{
		runner:    r,
		target:    target,
		responses: r.responses.Subscribe(),
	}
}

// Target returns the request id this poller waits for.
func (p *ResponsePoller) Target() uuid.UUID { return p.target }

// Wait returns the matching result with OutcomeResolved, or a zero Result
// with the reason no response will arrive.
func (p *ResponsePoller) Wait(ctx context.Context) (command.Result, string) {
	defer p.Close()

	for {
		if result, outcome, done := p.drainResponses(); done {
			return result, outcome
		}
		if ctx.Err() != nil {
			return command.Result{}, OutcomeCancelled
		}
		if !p.runner.sleep(ctx, p.runner.cfg.ResponseWait) {
			// A response may have landed while sleeping.
			if result, outcome, done := p.drainResponses(); done && outcome == OutcomeResolved {
				return result, outcome
			}
			if ctx.Err() != nil {
				return command.Result{}, OutcomeCancelled
			}
			return command.Result{}, OutcomeQuit
		}
	}
}

// Close releases the subscription. It is idempotent.
func (p *ResponsePoller) Close() {
	p.closeOnce.Do(p.responses.Close)
}

func (p *ResponsePoller) drainResponses() (command.Result, string, bool) {
	for {
		resp, err := p.responses.TryRecv()
		switch {
		case err == nil:
			if ic, ok := resp.Payload().AsInternal(); ok && ic == command.Quit {
				return command.Result{}, OutcomeQuit, true
			}
			if resp.From() != p.target {
				continue
			}
			if result, ok := resp.Payload().AsApp(); ok {
				return result, OutcomeResolved, true
			}
		case commbus.IsLagged(err):
			p.recordLag(ResponseBusName, err)
		case isClosed(err):
			return command.Result{}, OutcomeClosed, true
		default:
			return command.Result{}, "", false
		}
	}
}

func (p *ResponsePoller) recordLag(bus string, err error) {
	var lagged *commbus.LaggedError
	if errors.As(err, &lagged) {
		observability.RecordBusLag(bus, lagged.Missed)
		if p.runner.logger != nil {
			p.runner.logger.Warn("response_poller_lagged",
				"request_id", p.target.String(),
				"missed", lagged.Missed,
			)
		}
	}
}

func isClosed(err error) bool {
	return errors.Is(err, commbus.ErrBusClosed)
}
