package commbus

import (
	"time"

	"github.com/google/uuid"
)

// RequestEnvelope wraps a request payload with an identity and a creation
// timestamp. The id is the correlation key for the whole request lifecycle.
type RequestEnvelope[T any] struct {
	id        uuid.UUID
	payload   T
	createdAt time.Time
}

// NewRequestEnvelope creates a RequestEnvelope with a fresh id.
func NewRequestEnvelope[T any](payload T) RequestEnvelope[T] {
	return RequestEnvelope[T]{
		id:        uuid.New(),
		payload:   payload,
		createdAt: time.Now(),
	}
}

// ID returns the correlation id of the request.
func (e RequestEnvelope[T]) ID() uuid.UUID { return e.id }

// Payload returns the wrapped request.
func (e RequestEnvelope[T]) Payload() T { return e.payload }

// CreatedAt returns the creation time.
func (e RequestEnvelope[T]) CreatedAt() time.Time { return e.createdAt }

// Elapsed returns the time since the envelope was created.
func (e RequestEnvelope[T]) Elapsed() time.Duration { return time.Since(e.createdAt) }

// ResponseEnvelope wraps a response payload and binds it to the request
// that produced it through From.
type ResponseEnvelope[T any] struct {
	id        uuid.UUID
	from      uuid.UUID
	payload   T
	createdAt time.Time
}

// NewResponseEnvelope creates a ResponseEnvelope answering the request with id from.
func NewResponseEnvelope[T any](from uuid.UUID, payload T) ResponseEnvelope[T] {
	return ResponseEnvelope[T]{
		id:        uuid.New(),
		from:      from,
		payload:   payload,
		createdAt: time.Now(),
	}
}

// ID identifies this response instance. It is not used for correlation.
func (e ResponseEnvelope[T]) ID() uuid.UUID { return e.id }

// From returns the id of the originating request.
func (e ResponseEnvelope[T]) From() uuid.UUID { return e.from }

// Payload returns the wrapped response.
func (e ResponseEnvelope[T]) Payload() T { return e.payload }

// CreatedAt returns the creation time.
func (e ResponseEnvelope[T]) CreatedAt() time.Time { return e.createdAt }

// Elapsed returns the time since the envelope was created.
func (e ResponseEnvelope[T]) Elapsed() time.Duration { return time.Since(e.createdAt) }
