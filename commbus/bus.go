package commbus

import (
	"context"
	"sync"
	"sync/atomic"
)

// Bus is an in-memory broadcast channel.
//
// Every active subscription receives every message sent after it was
// created. There is no replay: a subscription created after a Send never
// observes that message, so a consumer must subscribe before the message it
// is waiting for can be sent.
//
// Each subscription buffers up to capacity messages. When a subscription's
// buffer is full the message is dropped for that subscription only and its
// lag counter grows; the next TryRecv/Recv reports a *LaggedError before
// resuming with the messages still buffered. Consumers must treat a missed
// unrelated message as harmless.
//
// Usage:
//
//	bus := NewBus[string]("greetings", 64, logger)
//	sub := bus.Subscribe()
//	defer sub.Close()
//
//	n, err := bus.Send("hello")
//	msg, err := sub.Recv(ctx)
type Bus[T any] struct {
	name        string
	capacity    int
	subscribers map[uint64]*Subscription[T]
	nextID      uint64
	closed      bool
	dropped     atomic.Uint64
	logger      Logger
	mu          sync.RWMutex
}

// NewBus creates a Bus with the given per-subscription capacity.
// A capacity below 1 is raised to 1.
func NewBus[T any](name string, capacity int, logger Logger) *Bus[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Bus[T]{
		name:        name,
		capacity:    capacity,
		subscribers: make(map[uint64]*Subscription[T]),
		logger:      logger,
	}
}

// =============================================================================
// MESSAGING
// =============================================================================

// Subscribe registers a new subscription that observes every subsequent Send.
// Subscribing to a closed bus returns a subscription that reports ErrBusClosed.
func (b *Bus[T]) Subscribe() *Subscription[T] {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &Subscription[T]{
		bus: b,
		ch:  make(chan T, b.capacity),
	}
	if b.closed {
		sub.closed = true
		close(sub.ch)
		return sub
	}

	b.nextID++
	sub.id = b.nextID
	b.subscribers[sub.id] = sub
	return sub
}

// Send delivers msg to every registered subscription and returns how many
// subscriptions it was queued for. It returns ErrNoSubscribers when nobody
// is subscribed and ErrBusClosed after Close.
func (b *Bus[T]) Send(msg T) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return 0, ErrBusClosed
	}
	if len(b.subscribers) == 0 {
		return 0, NewSendError(b.name, ErrNoSubscribers)
	}

	delivered := 0
	for _, sub := range b.subscribers {
		select {
		case sub.ch <- msg:
			delivered++
		default:
			sub.lagged.Add(1)
			b.dropped.Add(1)
		}
	}

	if delivered < len(b.subscribers) && b.logger != nil {
		b.logger.Debug("bus_message_dropped",
			"bus", b.name,
			"subscribers", len(b.subscribers),
			"delivered", delivered,
		)
	}
	return delivered, nil
}

// Close closes the bus. Subscriptions drain their buffered messages and then
// report ErrBusClosed. Close is idempotent.
func (b *Bus[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subscribers {
		sub.closed = true
		close(sub.ch)
		delete(b.subscribers, id)
	}
	if b.logger != nil {
		b.logger.Debug("bus_closed", "bus", b.name)
	}
}

// =============================================================================
// INTROSPECTION
// =============================================================================

// Name returns the bus name used in logs and errors.
func (b *Bus[T]) Name() string { return b.name }

// Capacity returns the per-subscription buffer size.
func (b *Bus[T]) Capacity() int { return b.capacity }

// SubscriberCount returns the number of active subscriptions.
func (b *Bus[T]) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Dropped returns the total number of per-subscription drops since creation.
func (b *Bus[T]) Dropped() uint64 { return b.dropped.Load() }

// IsClosed reports whether Close was called.
func (b *Bus[T]) IsClosed() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.closed
}

func (b *Bus[T]) unsubscribe(sub *Subscription[T]) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub.closed {
		return
	}
	sub.closed = true
	delete(b.subscribers, sub.id)
	close(sub.ch)
}

// =============================================================================
// SUBSCRIPTION
// =============================================================================

// Subscription is a receiver handle on a Bus. It is safe for one consumer
// goroutine; Close may be called from any goroutine.
type Subscription[T any] struct {
	id     uint64
	bus    *Bus[T]
	ch     chan T
	lagged atomic.Uint64
	// closed is guarded by bus.mu.
	closed bool
}

// TryRecv returns the next buffered message without blocking.
// It returns ErrEmpty when nothing is buffered, a *LaggedError once after
// messages were dropped, and ErrBusClosed when the subscription is closed
// and drained.
func (s *Subscription[T]) TryRecv() (T, error) {
	var zero T
	if missed := s.lagged.Swap(0); missed > 0 {
		return zero, NewLaggedError(s.bus.name, missed)
	}
	select {
	case msg, ok := <-s.ch:
		if !ok {
			return zero, ErrBusClosed
		}
		return msg, nil
	default:
		return zero, ErrEmpty
	}
}

// Recv blocks until a message is available, the subscription is closed, or
// ctx is done.
func (s *Subscription[T]) Recv(ctx context.Context) (T, error) {
	var zero T
	if missed := s.lagged.Swap(0); missed > 0 {
		return zero, NewLaggedError(s.bus.name, missed)
	}
	select {
	case msg, ok := <-s.ch:
		if !ok {
			return zero, ErrBusClosed
		}
		return msg, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Ready returns a channel that yields buffered messages. It is closed when the
// subscription is closed. Lag is not reported through it.
func (s *Subscription[T]) Ready() <-chan T { return s.ch }

// Close unsubscribes from the bus. It is idempotent.
func (s *Subscription[T]) Close() {
	s.bus.unsubscribe(s)
}
