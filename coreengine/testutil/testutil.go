// Package testutil provides shared test utilities and mocks.
//
// All mocks in this package are designed for testing the coreengine components
// in isolation without requiring external dependencies.
package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/o008/registry/coreengine/command"
	"github.com/o008/registry/coreengine/request"
)

// =============================================================================
// MOCK LOGGER
// =============================================================================

// LogEntry records a single log call.
type LogEntry struct {
	Level         string
	Message       string
	KeysAndValues []any
}

// MockLogger records log calls for assertion. It satisfies every package's
// Logger protocol.
type MockLogger struct {
	Entries []LogEntry
	mu      sync.Mutex
}

// NewMockLogger creates an empty MockLogger.
func NewMockLogger() *MockLogger {
	return &MockLogger{}
}

func (l *MockLogger) record(level, msg string, kv []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Entries = append(l.Entries, LogEntry{Level: level, Message: msg, KeysAndValues: kv})
}

func (l *MockLogger) Debug(msg string, keysAndValues ...any) { l.record("DEBUG", msg, keysAndValues) }
func (l *MockLogger) Info(msg string, keysAndValues ...any)  { l.record("INFO", msg, keysAndValues) }
func (l *MockLogger) Warn(msg string, keysAndValues ...any)  { l.record("WARN", msg, keysAndValues) }
func (l *MockLogger) Error(msg string, keysAndValues ...any) { l.record("ERROR", msg, keysAndValues) }

// HasMessage reports whether msg was logged at any level.
func (l *MockLogger) HasMessage(msg string) bool {
	return l.Count(msg) > 0
}

// Count returns how many times msg was logged.
func (l *MockLogger) Count(msg string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.Entries {
		if e.Message == msg {
			n++
		}
	}
	return n
}

// Messages returns "LEVEL: msg" lines in call order.
func (l *MockLogger) Messages() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.Entries))
	for _, e := range l.Entries {
		out = append(out, e.Level+": "+e.Message)
	}
	return out
}

// =============================================================================
// MOCK ACTIONS
// =============================================================================

// ActionCall records a single action invocation.
type ActionCall struct {
	Command string
	Args    []any
}

// MockActions implements every dispatcher action. By default each action
// echoes its command name and arguments as JSON.
type MockActions struct {
	// Errors maps command names to errors they should return.
	Errors map[string]error

	// Delays maps command names to simulated latency.
	Delays map[string]time.Duration

	// PanicOn makes the named command panic.
	PanicOn string

	// Calls records all calls for assertion.
	Calls []ActionCall

	mu sync.Mutex
}

// NewMockActions creates a MockActions with no configured failures.
func NewMockActions() *MockActions {
	return &MockActions{
		Errors: make(map[string]error),
		Delays: make(map[string]time.Duration),
	}
}

// WithError configures the named command to fail.
func (m *MockActions) WithError(cmd string, err error) *MockActions {
	m.Errors[cmd] = err
	return m
}

// WithDelay configures latency for the named command.
func (m *MockActions) WithDelay(cmd string, d time.Duration) *MockActions {
	m.Delays[cmd] = d
	return m
}

// WithPanic makes the named command panic.
func (m *MockActions) WithPanic(cmd string) *MockActions {
	m.PanicOn = cmd
	return m
}

// GetCallCount returns the number of calls (thread-safe).
func (m *MockActions) GetCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// CallsTo returns how many times the named command ran.
func (m *MockActions) CallsTo(cmd string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.Calls {
		if c.Command == cmd {
			n++
		}
	}
	return n
}

// Reset clears call history.
func (m *MockActions) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = nil
}

func (m *MockActions) handle(ctx context.Context, cmd string, args ...any) (command.Value, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, ActionCall{Command: cmd, Args: args})
	delay := m.Delays[cmd]
	err := m.Errors[cmd]
	panicking := m.PanicOn == cmd
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if panicking {
		panic(fmt.Sprintf("mock action %s panicked", cmd))
	}
	if err != nil {
		return nil, err
	}

	raw, merr := json.Marshal(map[string]any{"command": cmd, "args": args})
	if merr != nil {
		return nil, command.NewInvalidResponseError("%s: %v", cmd, merr)
	}
	return raw, nil
}

func (m *MockActions) CreateBuilder(ctx context.Context, req request.Builder) (command.Value, error) {
	return m.handle(ctx, "create-builder", req)
}

func (m *MockActions) GetBuilder(ctx context.Context, req request.Builder) (command.Value, error) {
	return m.handle(ctx, "get-builder", req)
}

func (m *MockActions) DeleteBuilder(ctx context.Context, req request.Builder) (command.Value, error) {
	return m.handle(ctx, "delete-builder", req)
}

func (m *MockActions) CreateTenant(ctx context.Context, req request.Tenant) (command.Value, error) {
	return m.handle(ctx, "create-tenant", req)
}

func (m *MockActions) GetTenant(ctx context.Context, req request.Tenant) (command.Value, error) {
	return m.handle(ctx, "get-tenant", req)
}

func (m *MockActions) CreateApplication(ctx context.Context, req request.Application) (command.Value, error) {
	return m.handle(ctx, "create-application", req)
}

func (m *MockActions) GetApplication(ctx context.Context, req request.Application) (command.Value, error) {
	return m.handle(ctx, "get-application", req)
}

func (m *MockActions) CreateService(ctx context.Context, req request.Service) (command.Value, error) {
	return m.handle(ctx, "create-service", req)
}

func (m *MockActions) GetService(ctx context.Context, req request.Service) (command.Value, error) {
	return m.handle(ctx, "get-service", req)
}

func (m *MockActions) GetServiceVersions(ctx context.Context, req request.Service) (command.Value, error) {
	return m.handle(ctx, "get-service-versions", req)
}

func (m *MockActions) UpdateService(ctx context.Context, source, req request.Service) (command.Value, error) {
	return m.handle(ctx, "update-service", source, req)
}

func (m *MockActions) PersistService(ctx context.Context, source, req request.Service) (command.Value, error) {
	return m.handle(ctx, "persist-service", source, req)
}

func (m *MockActions) CreateServiceVersion(ctx context.Context, req request.ServiceVersion) (command.Value, error) {
	return m.handle(ctx, "create-service-version", req)
}

func (m *MockActions) PersistServiceVersion(ctx context.Context, source, req request.ServiceVersion) (command.Value, error) {
	return m.handle(ctx, "persist-service-version", source, req)
}

// =============================================================================
// FIXTURES
// =============================================================================

// CommandName extracts the "command" field written by MockActions.
func CommandName(v command.Value) string {
	var doc struct {
		Command string `json:"command"`
	}
	if err := json.Unmarshal(v, &doc); err != nil {
		return ""
	}
	return doc.Command
}

// NewTenantCommand builds a CreateTenant command.
func NewTenantCommand(name string, coexisting bool) command.DispatchCommand {
	return command.App(command.CreateTenant{Request: request.Tenant{
		Name:       request.String(name),
		Coexisting: request.Bool(coexisting),
	}})
}

// GetTenantCommand builds a GetTenant command.
func GetTenantCommand(name string) command.DispatchCommand {
	return command.App(command.GetTenant{Request: request.GetTenant(name)})
}

// GetServiceCommand builds a GetService command.
func GetServiceCommand(name, app, tenant string) command.DispatchCommand {
	return command.App(command.GetService{Request: request.GetService(name, app, tenant)})
}

// Slug lower-cases and dash-joins words, for unique fixture names.
func Slug(words ...string) string {
	return strings.ToLower(strings.Join(words, "-"))
}
