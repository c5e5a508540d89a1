package runtime

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/o008/registry/coreengine/dispatcher"
	mocks "github.com/o008/registry/coreengine/testutil"
)

func TestDefaultCleanupConfig(t *testing.T) {
	cfg := DefaultCleanupConfig()

	assert.Equal(t, time.Minute, cfg.Interval)
	assert.Equal(t, 5*time.Minute, cfg.ClaimRetention)
}

func TestClaimIsExclusive(t *testing.T) {
	claims := newClaimSet()
	id := uuid.New()

	assert.True(t, claims.claim(id))
	assert.False(t, claims.claim(id))
	assert.True(t, claims.claim(uuid.New()))
	assert.Equal(t, 2, claims.len())
}

func TestForgetDropsOnlyOldClaims(t *testing.T) {
	claims := newClaimSet()
	old := uuid.New()
	claims.claim(old)
	time.Sleep(20 * time.Millisecond)
	fresh := uuid.New()
	claims.claim(fresh)

	removed := claims.forget(10 * time.Millisecond)

	assert.Equal(t, 1, removed)
	assert.True(t, claims.claim(old))
	assert.False(t, claims.claim(fresh))
}

func TestRunner_StartCleanupLoop(t *testing.T) {
	logger := mocks.NewMockLogger()
	r := NewCommandRunner(dispatcher.New(mocks.NewMockActions()), testConfig(), logger)
	defer r.Close()

	r.claims.claim(uuid.New())

	stop := r.StartCleanupLoop(CleanupConfig{
		Interval:       5 * time.Millisecond,
		ClaimRetention: time.Millisecond,
	})
	require.NotNil(t, stop)

	require.Eventually(t, func() bool {
		return logger.HasMessage("cleanup_cycle_completed")
	}, time.Second, 5*time.Millisecond)
	stop()
	stop()

	assert.Equal(t, 0, r.claims.len())
}

func TestRunner_StartCleanupLoop_DefaultConfig(t *testing.T) {
	r := NewCommandRunner(dispatcher.New(mocks.NewMockActions()), testConfig(), nil)
	defer r.Close()

	stop := r.StartCleanupLoop(CleanupConfig{})
	require.NotNil(t, stop)
	stop()
}

func TestRunner_CleanupLoopStopsOnTerminate(t *testing.T) {
	logger := mocks.NewMockLogger()
	r := NewCommandRunner(dispatcher.New(mocks.NewMockActions()), testConfig(), logger)

	stop := r.StartCleanupLoop(CleanupConfig{Interval: time.Millisecond, ClaimRetention: time.Hour})
	defer stop()
	r.Terminate()

	time.Sleep(20 * time.Millisecond)
	cycles := logger.Count("cleanup_cycle_completed")
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, cycles, logger.Count("cleanup_cycle_completed"))
}
