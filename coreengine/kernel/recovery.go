package kernel

import (
	"fmt"
	"runtime/debug"
)

// PanicError is a panic captured from a unit of work, with the stack of the
// goroutine that panicked.
type PanicError struct {
	Operation string
	Value     any
	Stack     string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic in %s: %v", e.Operation, e.Value)
}

// NewPanicError creates a PanicError.
func NewPanicError(operation string, value any, stack []byte) *PanicError {
	return &PanicError{Operation: operation, Value: value, Stack: string(stack)}
}

// SafeExecuteWithResult executes fn with panic recovery. A panic is logged
// and returned as a *PanicError.
func SafeExecuteWithResult[T any](logger Logger, operation string, fn func() (T, error)) (T, error) {
	var result T
	var err error

	func() {
		defer func() {
			if r := recover(); r != nil {
				stack := debug.Stack()
				if logger != nil {
					logger.Error("panic_recovered",
						"operation", operation,
						"panic", r,
						"stack", string(stack),
					)
				}
				err = NewPanicError(operation, r, stack)
			}
		}()
		result, err = fn()
	}()

	return result, err
}
