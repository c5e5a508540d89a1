package kernel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/o008/registry/coreengine/command"
	"github.com/o008/registry/coreengine/dispatcher"
	mocks "github.com/o008/registry/coreengine/testutil"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

type dispatchFunc func(ctx context.Context, cmd command.DispatchCommand) (command.Value, error)

func (f dispatchFunc) Dispatch(ctx context.Context, cmd command.DispatchCommand) (command.Value, error) {
	return f(ctx, cmd)
}

type recorder struct {
	mu      sync.Mutex
	results []string
	errs    []error
}

func (r *recorder) handlers() ResultHandlers {
	return ResultHandlers{
		OnResult: func(cmd command.DispatchCommand, value command.Value) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.results = append(r.results, mocks.CommandName(value))
		},
		OnError: func(cmd command.DispatchCommand, err error) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.errs = append(r.errs, err)
		},
	}
}

func fastConfig() QueueConfig {
	return QueueConfig{
		DispatchWait: time.Millisecond,
		JoinWait:     time.Millisecond,
		MaxInFlight:  4,
		Capacity:     16,
	}
}

func newTestQueue(actions *mocks.MockActions, cfg QueueConfig, rec *recorder) *CommandQueue {
	return NewCommandQueue(dispatcher.New(actions), cfg, mocks.NewMockLogger(), rec.handlers())
}

// =============================================================================
// ORDERING TESTS
// =============================================================================

func TestDefaultQueueConfig(t *testing.T) {
	cfg := DefaultQueueConfig()

	assert.Equal(t, 64*time.Millisecond, cfg.DispatchWait)
	assert.Equal(t, 24*time.Millisecond, cfg.JoinWait)
	assert.Equal(t, 8, cfg.MaxInFlight)
	assert.Equal(t, 128, cfg.Capacity)
}

func TestJoinPublishesInSubmissionOrder(t *testing.T) {
	// The first command finishes last.
	actions := mocks.NewMockActions().WithDelay("get-service", 100*time.Millisecond)
	rec := &recorder{}
	q := newTestQueue(actions, fastConfig(), rec)

	err := q.RunOnce(context.Background(),
		mocks.GetServiceCommand("billing", "payments", "acme"),
		mocks.GetTenantCommand("acme"),
	)

	require.NoError(t, err)
	assert.Equal(t, []string{"get-service", "get-tenant"}, rec.results)
	assert.Empty(t, rec.errs)
}

func TestRunOnceReportsDomainErrors(t *testing.T) {
	actions := mocks.NewMockActions().
		WithError("get-tenant", command.NewNotFoundError("tenant %s", "ghost"))
	rec := &recorder{}
	q := newTestQueue(actions, fastConfig(), rec)

	err := q.RunOnce(context.Background(),
		mocks.GetTenantCommand("ghost"),
		mocks.NewTenantCommand("acme", false),
	)

	require.NoError(t, err)
	require.Len(t, rec.errs, 1)
	assert.ErrorIs(t, rec.errs[0], command.ErrNotFound)
	assert.Equal(t, []string{"create-tenant"}, rec.results)
}

// =============================================================================
// HALT TESTS
// =============================================================================

func TestQuitStopsSpawning(t *testing.T) {
	actions := mocks.NewMockActions()
	rec := &recorder{}
	q := newTestQueue(actions, fastConfig(), rec)
	ctx := context.Background()

	require.NoError(t, q.Submit(ctx, mocks.GetTenantCommand("acme")))
	require.NoError(t, q.Submit(ctx, command.Internal(command.Quit)))
	require.NoError(t, q.Submit(ctx, mocks.NewTenantCommand("late", false)))

	require.NoError(t, q.Run(ctx))

	assert.True(t, q.Halted())
	assert.Equal(t, 1, actions.CallsTo("get-tenant"))
	assert.Equal(t, 0, actions.CallsTo("create-tenant"))
	assert.Equal(t, []string{"get-tenant"}, rec.results)
}

func TestTerminateResultHalts(t *testing.T) {
	var calls atomic.Int32
	d := dispatchFunc(func(ctx context.Context, cmd command.DispatchCommand) (command.Value, error) {
		calls.Add(1)
		return nil, command.NewTerminateError("store unavailable")
	})
	cfg := fastConfig()
	cfg.DispatchWait = 100 * time.Millisecond
	q := NewCommandQueue(d, cfg, nil, ResultHandlers{})
	ctx := context.Background()

	require.NoError(t, q.Submit(ctx, mocks.GetTenantCommand("a")))
	require.NoError(t, q.Submit(ctx, mocks.GetTenantCommand("b")))

	require.NoError(t, q.Run(ctx))

	assert.True(t, q.Halted())
	assert.Equal(t, int32(1), calls.Load())
}

func TestSubmitAfterRunReturns(t *testing.T) {
	q := newTestQueue(mocks.NewMockActions(), fastConfig(), &recorder{})

	require.NoError(t, q.RunOnce(context.Background()))

	err := q.Submit(context.Background(), mocks.GetTenantCommand("acme"))
	assert.ErrorIs(t, err, ErrQueueStopped)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	q := newTestQueue(mocks.NewMockActions(), fastConfig(), &recorder{})
	ctx, cancel := context.WithCancel(context.Background())

	errc := make(chan error, 1)
	go func() { errc <- q.Run(ctx) }()
	cancel()

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}

// =============================================================================
// CONCURRENCY TESTS
// =============================================================================

func TestMaxInFlightIsRespected(t *testing.T) {
	var current, peak atomic.Int32
	d := dispatchFunc(func(ctx context.Context, cmd command.DispatchCommand) (command.Value, error) {
		if cmd.IsQuit() {
			return nil, command.NewTerminateError("")
		}
		n := current.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		current.Add(-1)
		return []byte(`{}`), nil
	})

	cfg := fastConfig()
	cfg.MaxInFlight = 2
	var joined atomic.Int32
	q := NewCommandQueue(d, cfg, nil, ResultHandlers{
		OnResult: func(command.DispatchCommand, command.Value) { joined.Add(1) },
	})

	cmds := make([]command.DispatchCommand, 6)
	for i := range cmds {
		cmds[i] = mocks.GetTenantCommand(fmt.Sprintf("t%d", i))
	}

	require.NoError(t, q.RunOnce(context.Background(), cmds...))

	assert.Equal(t, int32(6), joined.Load())
	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.GreaterOrEqual(t, peak.Load(), int32(1))
}

// =============================================================================
// PANIC TESTS
// =============================================================================

func TestPanicIsFatal(t *testing.T) {
	actions := mocks.NewMockActions().WithPanic("get-tenant")
	logger := mocks.NewMockLogger()
	rec := &recorder{}
	q := NewCommandQueue(dispatcher.New(actions), fastConfig(), logger, rec.handlers())

	err := q.RunOnce(context.Background(), mocks.GetTenantCommand("boom"))

	var panicErr *PanicError
	require.True(t, errors.As(err, &panicErr))
	assert.Equal(t, "get-tenant", panicErr.Operation)
	assert.Contains(t, fmt.Sprint(panicErr.Value), "panicked")
	assert.NotEmpty(t, panicErr.Stack)
	assert.True(t, logger.HasMessage("panic_recovered"))
	assert.True(t, logger.HasMessage("queue_aborted"))
	assert.Empty(t, rec.results)
}

func TestSafeExecuteWithResult(t *testing.T) {
	logger := mocks.NewMockLogger()

	v, err := SafeExecuteWithResult(logger, "ok", func() (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	expected := errors.New("plain failure")
	_, err = SafeExecuteWithResult(logger, "fails", func() (int, error) { return 0, expected })
	assert.Equal(t, expected, err)

	_, err = SafeExecuteWithResult(nil, "explodes", func() (int, error) { panic("test panic") })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic in explodes")
	assert.Contains(t, err.Error(), "test panic")
	assert.False(t, logger.HasMessage("panic_recovered"))
}
