// Package commbus provides the broadcast channels the command runtime is
// built on.
//
// A Bus fans every message out to every live subscription. Request and
// response traffic travel on two separate buses and are correlated by the
// envelope ids defined in this package.
package commbus

// =============================================================================
// PROTOCOLS
// =============================================================================

// Logger is the structured logging protocol used by the bus.
// *slog.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Sender is the publishing side of a Bus.
type Sender[T any] interface {
	Send(msg T) (int, error)
}

// Receiver is the consuming side of a Subscription.
type Receiver[T any] interface {
	TryRecv() (T, error)
	Close()
}

var (
	_ Sender[int]   = (*Bus[int])(nil)
	_ Receiver[int] = (*Subscription[int])(nil)
)
