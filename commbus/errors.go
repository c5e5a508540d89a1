package commbus

import (
	"errors"
	"fmt"
)

// =============================================================================
// EXCEPTIONS
// =============================================================================

var (
	// ErrNoSubscribers is returned by Send when the bus has no subscriptions.
	// The message is not retained.
	ErrNoSubscribers = errors.New("no active subscribers")

	// ErrBusClosed is returned once a bus or subscription is closed and drained.
	ErrBusClosed = errors.New("bus closed")

	// ErrEmpty is returned by TryRecv when no message is buffered.
	ErrEmpty = errors.New("no message buffered")
)

// CommBusError is the base error type for commbus errors.
type CommBusError struct {
	Bus     string
	Message string
	Cause   error
}

func (e *CommBusError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Bus, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Bus, e.Message)
}

func (e *CommBusError) Unwrap() error {
	return e.Cause
}

// NewSendError wraps a send failure on the named bus.
func NewSendError(bus string, cause error) *CommBusError {
	return &CommBusError{Bus: bus, Message: "send failed", Cause: cause}
}

// LaggedError reports that a subscription fell behind and Missed messages
// were dropped for it. Receiving can continue after it is returned.
type LaggedError struct {
	Bus    string
	Missed uint64
}

func (e *LaggedError) Error() string {
	return fmt.Sprintf("%s: subscription lagged, %d messages missed", e.Bus, e.Missed)
}

// NewLaggedError creates a new LaggedError.
func NewLaggedError(bus string, missed uint64) *LaggedError {
	return &LaggedError{Bus: bus, Missed: missed}
}

// IsLagged reports whether err is a *LaggedError.
func IsLagged(err error) bool {
	var lagged *LaggedError
	return errors.As(err, &lagged)
}
