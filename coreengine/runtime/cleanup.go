package runtime

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// claimSet records which request ids have been taken by a request poller.
type claimSet struct {
	claimed sync.Map // uuid.UUID -> time.Time
}

func newClaimSet() *claimSet {
	return &claimSet{}
}

// claim reports whether the caller is the first to claim id.
func (c *claimSet) claim(id uuid.UUID) bool {
	_, loaded := c.claimed.LoadOrStore(id, time.Now())
	return !loaded
}

// forget drops claims older than retention and returns how many went.
func (c *claimSet) forget(retention time.Duration) int {
	cutoff := time.Now().Add(-retention)
	removed := 0
	c.claimed.Range(func(key, value any) bool {
		if at, ok := value.(time.Time); ok && at.Before(cutoff) {
			c.claimed.Delete(key)
			removed++
		}
		return true
	})
	return removed
}

func (c *claimSet) len() int {
	n := 0
	c.claimed.Range(func(any, any) bool {
		n++
		return true
	})
	return n
}

// CleanupConfig holds configurable cleanup parameters.
type CleanupConfig struct {
	// Interval is how often to run cleanup (default: 1 minute).
	Interval time.Duration
	// ClaimRetention is how long a claimed request id is remembered (default: 5 minutes).
	ClaimRetention time.Duration
}

// DefaultCleanupConfig returns default cleanup configuration.
func DefaultCleanupConfig() CleanupConfig {
	return CleanupConfig{
		Interval:       time.Minute,
		ClaimRetention: 5 * time.Minute,
	}
}

// StartCleanupLoop starts a background goroutine that periodically forgets
// old claims. Returns a stop function that should be called to stop the loop.
// The loop also stops when the runner terminates.
func (r *CommandRunner) StartCleanupLoop(cfg CleanupConfig) func() {
	if cfg.Interval <= 0 {
		cfg = DefaultCleanupConfig()
	}

	ticker := time.NewTicker(cfg.Interval)
	done := make(chan struct{})
	var once sync.Once

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.runCleanupCycle(cfg)
			case <-done:
				return
			case <-r.shutdown:
				return
			}
		}
	}()

	return func() { once.Do(func() { close(done) }) }
}

// runCleanupCycle performs a single cleanup cycle with panic recovery.
func (r *CommandRunner) runCleanupCycle(cfg CleanupConfig) {
	defer func() {
		if rec := recover(); rec != nil {
			if r.logger != nil {
				r.logger.Error("cleanup_panic_recovered", "error", rec)
			}
		}
	}()

	removed := r.claims.forget(cfg.ClaimRetention)

	if r.logger != nil {
		r.logger.Debug("cleanup_cycle_completed", "claims_forgotten", removed)
	}
}
