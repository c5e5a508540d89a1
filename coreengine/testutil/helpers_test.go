package testutil

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/o008/registry/coreengine/command"
	"github.com/o008/registry/coreengine/request"
)

// =============================================================================
// MOCK LOGGER TESTS
// =============================================================================

func TestMockLoggerRecords(t *testing.T) {
	l := NewMockLogger()

	l.Debug("a")
	l.Info("b", "k", 1)
	l.Warn("b")
	l.Error("c")

	assert.Equal(t, []string{"DEBUG: a", "INFO: b", "WARN: b", "ERROR: c"}, l.Messages())
	assert.Equal(t, 2, l.Count("b"))
	assert.True(t, l.HasMessage("c"))
	assert.False(t, l.HasMessage("d"))
}

// =============================================================================
// MOCK ACTIONS TESTS
// =============================================================================

func TestMockActionsEchoesCommand(t *testing.T) {
	m := NewMockActions()

	v, err := m.GetTenant(context.Background(), request.GetTenant("acme"))

	require.NoError(t, err)
	assert.Equal(t, "get-tenant", CommandName(v))
	assert.Equal(t, 1, m.CallsTo("get-tenant"))
}

func TestMockActionsError(t *testing.T) {
	m := NewMockActions().WithError("get-tenant", command.NewNotFoundError("acme"))

	_, err := m.GetTenant(context.Background(), request.GetTenant("acme"))

	assert.ErrorIs(t, err, command.ErrNotFound)
}

func TestMockActionsDelayHonoursContext(t *testing.T) {
	m := NewMockActions().WithDelay("get-builder", time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := m.GetBuilder(ctx, request.GetBuilder("b"))

	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestMockActionsPanic(t *testing.T) {
	m := NewMockActions().WithPanic("delete-builder")

	assert.Panics(t, func() {
		_, _ = m.DeleteBuilder(context.Background(), request.GetBuilder("b"))
	})
	m.Reset()
	assert.Equal(t, 0, m.GetCallCount())
}

func TestCommandFixtures(t *testing.T) {
	assert.Equal(t, "create-tenant", NewTenantCommand("acme", false).Name())
	assert.Equal(t, "get-tenant", GetTenantCommand("acme").Name())
	assert.Equal(t, "get-service", GetServiceCommand("s", "a", "t").Name())
	assert.Equal(t, "a-b", Slug("A", "B"))
}
