package command

import (
	"errors"
	"fmt"
)

// =============================================================================
// APP COMMAND ERRORS
// =============================================================================

// ErrorKind classifies domain failures.
type ErrorKind string

const (
	KindCreate          ErrorKind = "create"
	KindNotFound        ErrorKind = "not found"
	KindDestroy         ErrorKind = "destroy"
	KindInvalidRequest  ErrorKind = "invalid request"
	KindInvalidResponse ErrorKind = "invalid response"
	KindUpdate          ErrorKind = "update"
)

// AppCommandError is a recoverable domain failure returned to the caller
// that issued the command.
type AppCommandError struct {
	Kind   ErrorKind
	Detail string
}

func (e *AppCommandError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("app command: %s", e.Kind)
	}
	return fmt.Sprintf("app command: %s: %s", e.Kind, e.Detail)
}

// Is matches any *AppCommandError of the same kind, so the kind sentinels
// work with errors.Is.
func (e *AppCommandError) Is(target error) bool {
	t, ok := target.(*AppCommandError)
	return ok && t.Kind == e.Kind
}

// Kind sentinels for errors.Is.
var (
	ErrCreate          = &AppCommandError{Kind: KindCreate}
	ErrNotFound        = &AppCommandError{Kind: KindNotFound}
	ErrDestroy         = &AppCommandError{Kind: KindDestroy}
	ErrInvalidRequest  = &AppCommandError{Kind: KindInvalidRequest}
	ErrInvalidResponse = &AppCommandError{Kind: KindInvalidResponse}
	ErrUpdate          = &AppCommandError{Kind: KindUpdate}
)

// NewAppCommandError creates a new AppCommandError.
func NewAppCommandError(kind ErrorKind, detail string) *AppCommandError {
	return &AppCommandError{Kind: kind, Detail: detail}
}

// NewCreateError creates a Create error.
func NewCreateError(format string, args ...any) *AppCommandError {
	return NewAppCommandError(KindCreate, fmt.Sprintf(format, args...))
}

// NewNotFoundError creates a NotFound error.
func NewNotFoundError(format string, args ...any) *AppCommandError {
	return NewAppCommandError(KindNotFound, fmt.Sprintf(format, args...))
}

// NewDestroyError creates a Destroy error.
func NewDestroyError(format string, args ...any) *AppCommandError {
	return NewAppCommandError(KindDestroy, fmt.Sprintf(format, args...))
}

// NewInvalidRequestError creates an InvalidRequest error.
func NewInvalidRequestError(format string, args ...any) *AppCommandError {
	return NewAppCommandError(KindInvalidRequest, fmt.Sprintf(format, args...))
}

// NewInvalidResponseError creates an InvalidResponse error.
func NewInvalidResponseError(format string, args ...any) *AppCommandError {
	return NewAppCommandError(KindInvalidResponse, fmt.Sprintf(format, args...))
}

// NewUpdateError creates an Update error.
func NewUpdateError(format string, args ...any) *AppCommandError {
	return NewAppCommandError(KindUpdate, fmt.Sprintf(format, args...))
}

// =============================================================================
// INTERNAL COMMAND ERRORS
// =============================================================================

// InternalCommandError signals intentional shutdown. It is a control error,
// not a failure.
type InternalCommandError struct {
	Reason string
}

func (e *InternalCommandError) Error() string {
	if e.Reason == "" {
		return "internal command: application terminates"
	}
	return fmt.Sprintf("internal command: application terminates: %s", e.Reason)
}

// Is matches any *InternalCommandError.
func (e *InternalCommandError) Is(target error) bool {
	_, ok := target.(*InternalCommandError)
	return ok
}

// ErrTerminate matches every terminate error.
var ErrTerminate = &InternalCommandError{}

// NewTerminateError creates a terminate error with an optional reason.
func NewTerminateError(reason string) *InternalCommandError {
	return &InternalCommandError{Reason: reason}
}

// IsTerminate reports whether err is a terminate signal.
func IsTerminate(err error) bool {
	return errors.Is(err, ErrTerminate)
}

// KindOf returns the kind of a domain error, or "" for anything else.
func KindOf(err error) ErrorKind {
	var appErr *AppCommandError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return ""
}

// Status returns a low-cardinality label for err: "success", "terminated",
// the domain error kind, or "error".
func Status(err error) string {
	switch {
	case err == nil:
		return "success"
	case IsTerminate(err):
		return "terminated"
	}
	if kind := KindOf(err); kind != "" {
		return string(kind)
	}
	return "error"
}
