package commbus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newTestBus(capacity int) *Bus[string] {
	return NewBus[string]("test", capacity, nil)
}

// =============================================================================
// SEND TESTS
// =============================================================================

func TestSendWithoutSubscribers(t *testing.T) {
	bus := newTestBus(4)

	n, err := bus.Send("lost")

	assert.Equal(t, 0, n)
	assert.ErrorIs(t, err, ErrNoSubscribers)
}

func TestSendReturnsDeliveredCount(t *testing.T) {
	bus := newTestBus(4)
	a := bus.Subscribe()
	b := bus.Subscribe()
	defer a.Close()
	defer b.Close()

	n, err := bus.Send("hello")

	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, bus.SubscriberCount())
}

func TestSendFansOutToEverySubscriber(t *testing.T) {
	bus := newTestBus(4)
	subs := []*Subscription[string]{bus.Subscribe(), bus.Subscribe(), bus.Subscribe()}

	_, err := bus.Send("hello")
	require.NoError(t, err)

	for _, sub := range subs {
		msg, err := sub.TryRecv()
		require.NoError(t, err)
		assert.Equal(t, "hello", msg)
		sub.Close()
	}
}

func TestSubscribeAfterSendMissesMessage(t *testing.T) {
	bus := newTestBus(4)
	early := bus.Subscribe()
	defer early.Close()

	_, err := bus.Send("first")
	require.NoError(t, err)

	late := bus.Subscribe()
	defer late.Close()

	_, err = late.TryRecv()
	assert.ErrorIs(t, err, ErrEmpty)

	msg, err := early.TryRecv()
	require.NoError(t, err)
	assert.Equal(t, "first", msg)
}

func TestMessagesArriveInSendOrder(t *testing.T) {
	bus := newTestBus(8)
	sub := bus.Subscribe()
	defer sub.Close()

	for _, m := range []string{"a", "b", "c"} {
		_, err := bus.Send(m)
		require.NoError(t, err)
	}

	for _, want := range []string{"a", "b", "c"} {
		got, err := sub.TryRecv()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

// =============================================================================
// LAG TESTS
// =============================================================================

func TestFullSubscriptionLags(t *testing.T) {
	bus := newTestBus(2)
	slow := bus.Subscribe()
	defer slow.Close()

	for _, m := range []string{"a", "b", "c", "d"} {
		_, err := bus.Send(m)
		require.NoError(t, err)
	}

	_, err := slow.TryRecv()
	var lagged *LaggedError
	require.ErrorAs(t, err, &lagged)
	assert.Equal(t, uint64(2), lagged.Missed)
	assert.True(t, IsLagged(err))
	assert.Equal(t, uint64(2), bus.Dropped())

	// Buffered messages survive the lag report.
	msg, err := slow.TryRecv()
	require.NoError(t, err)
	assert.Equal(t, "a", msg)
	msg, err = slow.TryRecv()
	require.NoError(t, err)
	assert.Equal(t, "b", msg)

	_, err = slow.TryRecv()
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestLagIsPerSubscription(t *testing.T) {
	bus := newTestBus(1)
	slow := bus.Subscribe()
	fast := bus.Subscribe()
	defer slow.Close()
	defer fast.Close()

	n, err := bus.Send("a")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = fast.TryRecv()
	require.NoError(t, err)

	n, err = bus.Send("b")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	msg, err := fast.TryRecv()
	require.NoError(t, err)
	assert.Equal(t, "b", msg)

	_, err = slow.TryRecv()
	assert.True(t, IsLagged(err))
}

// =============================================================================
// CLOSE TESTS
// =============================================================================

func TestCloseDrainsThenReportsClosed(t *testing.T) {
	bus := newTestBus(4)
	sub := bus.Subscribe()

	_, err := bus.Send("pending")
	require.NoError(t, err)
	bus.Close()

	msg, err := sub.TryRecv()
	require.NoError(t, err)
	assert.Equal(t, "pending", msg)

	_, err = sub.TryRecv()
	assert.ErrorIs(t, err, ErrBusClosed)
	assert.True(t, bus.IsClosed())
}

func TestSendAfterClose(t *testing.T) {
	bus := newTestBus(4)
	bus.Close()
	bus.Close()

	_, err := bus.Send("late")
	assert.ErrorIs(t, err, ErrBusClosed)

	sub := bus.Subscribe()
	_, err = sub.TryRecv()
	assert.ErrorIs(t, err, ErrBusClosed)
	sub.Close()
}

func TestSubscriptionCloseUnsubscribes(t *testing.T) {
	bus := newTestBus(4)
	sub := bus.Subscribe()
	sub.Close()
	sub.Close()

	assert.Equal(t, 0, bus.SubscriberCount())
	_, err := bus.Send("nobody")
	assert.ErrorIs(t, err, ErrNoSubscribers)

	_, err = sub.TryRecv()
	assert.ErrorIs(t, err, ErrBusClosed)
}

// =============================================================================
// RECV TESTS
// =============================================================================

func TestRecvBlocksUntilSend(t *testing.T) {
	bus := newTestBus(4)
	sub := bus.Subscribe()
	defer sub.Close()

	go func() {
		time.Sleep(10 * time.Millisecond)
		_, _ = bus.Send("wake")
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	msg, err := sub.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, "wake", msg)
}

func TestRecvHonoursContext(t *testing.T) {
	bus := newTestBus(4)
	sub := bus.Subscribe()
	defer sub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := sub.Recv(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestConcurrentSendAndSubscribe(t *testing.T) {
	bus := newTestBus(1024)
	sub := bus.Subscribe()
	defer sub.Close()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				_, _ = bus.Send("x")
				other := bus.Subscribe()
				other.Close()
			}
		}()
	}
	wg.Wait()

	received := 0
	for {
		if _, err := sub.TryRecv(); err != nil {
			assert.ErrorIs(t, err, ErrEmpty)
			break
		}
		received++
	}
	assert.Equal(t, 100, received)
}

// =============================================================================
// ERROR TESTS
// =============================================================================

func TestSendErrorWrapsCause(t *testing.T) {
	err := NewSendError("requests", ErrNoSubscribers)

	assert.Contains(t, err.Error(), "requests")
	assert.ErrorIs(t, err, ErrNoSubscribers)
}

func TestLaggedErrorMessage(t *testing.T) {
	err := NewLaggedError("responses", 3)

	assert.Contains(t, err.Error(), "3 messages missed")
	assert.False(t, IsLagged(ErrEmpty))
}
