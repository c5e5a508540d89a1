package dispatcher

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/o008/registry/coreengine/command"
	"github.com/o008/registry/coreengine/observability"
)

// Middleware intercepts commands before and after routing.
type Middleware interface {
	// Before is called before the command is routed. Returning an error
	// vetoes the command; the error becomes its result.
	Before(ctx context.Context, cmd command.DispatchCommand) (context.Context, error)

	// After is called with the routing outcome and returns the outcome to
	// pass on.
	After(ctx context.Context, cmd command.DispatchCommand, value command.Value, err error) (command.Value, error)
}

// Logger is the structured logging protocol used by the dispatcher.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type startKey struct{}

func startedAt(ctx context.Context) time.Time {
	if t, ok := ctx.Value(startKey{}).(time.Time); ok {
		return t
	}
	return time.Time{}
}

func withStart(ctx context.Context) context.Context {
	if _, ok := ctx.Value(startKey{}).(time.Time); ok {
		return ctx
	}
	return context.WithValue(ctx, startKey{}, time.Now())
}

// =============================================================================
// LOGGING MIDDLEWARE
// =============================================================================

// LoggingMiddleware logs every command and its outcome.
type LoggingMiddleware struct {
	logger Logger
}

// NewLoggingMiddleware creates a new LoggingMiddleware.
func NewLoggingMiddleware(logger Logger) *LoggingMiddleware {
	return &LoggingMiddleware{logger: logger}
}

// Before logs command receipt.
func (m *LoggingMiddleware) Before(ctx context.Context, cmd command.DispatchCommand) (context.Context, error) {
	m.logger.Debug("command_received", "command", cmd.Name())
	return withStart(ctx), nil
}

// After logs command completion.
func (m *LoggingMiddleware) After(ctx context.Context, cmd command.DispatchCommand, value command.Value, err error) (command.Value, error) {
	elapsed := time.Since(startedAt(ctx))
	switch {
	case err == nil:
		m.logger.Info("command_completed", "command", cmd.Name(), "duration_ms", elapsed.Milliseconds())
	case command.IsTerminate(err):
		m.logger.Info("command_terminated", "command", cmd.Name())
	default:
		m.logger.Warn("command_failed", "command", cmd.Name(), "status", command.Status(err), "error", err.Error())
	}
	return value, err
}

// =============================================================================
// METRICS MIDDLEWARE
// =============================================================================

// MetricsMiddleware records dispatch counts and latency.
type MetricsMiddleware struct{}

// NewMetricsMiddleware creates a new MetricsMiddleware.
func NewMetricsMiddleware() *MetricsMiddleware {
	return &MetricsMiddleware{}
}

// Before stamps the start time.
func (m *MetricsMiddleware) Before(ctx context.Context, cmd command.DispatchCommand) (context.Context, error) {
	return withStart(ctx), nil
}

// After records the outcome.
func (m *MetricsMiddleware) After(ctx context.Context, cmd command.DispatchCommand, value command.Value, err error) (command.Value, error) {
	elapsed := time.Since(startedAt(ctx))
	observability.RecordDispatch(cmd.Name(), command.Status(err), int(elapsed.Milliseconds()))
	return value, err
}

// =============================================================================
// TRACING MIDDLEWARE
// =============================================================================

const tracerName = "github.com/o008/registry/coreengine/dispatcher"

// TracingMiddleware wraps each command in a span.
type TracingMiddleware struct {
	tracer trace.Tracer
}

// NewTracingMiddleware creates a TracingMiddleware using tp, or the global
// provider when tp is nil.
func NewTracingMiddleware(tp trace.TracerProvider) *TracingMiddleware {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &TracingMiddleware{tracer: tp.Tracer(tracerName)}
}

// Before starts the span.
func (m *TracingMiddleware) Before(ctx context.Context, cmd command.DispatchCommand) (context.Context, error) {
	ctx, _ = m.tracer.Start(ctx, "dispatch "+cmd.Name(),
		trace.WithAttributes(attribute.String("o008.command", cmd.Name())),
	)
	return ctx, nil
}

// After ends the span, recording domain errors.
func (m *TracingMiddleware) After(ctx context.Context, cmd command.DispatchCommand, value command.Value, err error) (command.Value, error) {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(attribute.String("o008.status", command.Status(err)))
	if err != nil && !command.IsTerminate(err) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
	return value, err
}

// Ensure all middleware types implement Middleware interface.
var (
	_ Middleware = (*LoggingMiddleware)(nil)
	_ Middleware = (*MetricsMiddleware)(nil)
	_ Middleware = (*TracingMiddleware)(nil)
)
