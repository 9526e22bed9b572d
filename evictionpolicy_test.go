package pool

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// fakeCandidate lets eviction-policy tests fix idle/active durations without
// going through a real PooledEntry's state machine and clock.
type fakeCandidate struct {
	idle   time.Duration
	active time.Duration
}

func (f fakeCandidate) IdleDuration(time.Time) time.Duration   { return f.idle }
func (f fakeCandidate) ActiveDuration(time.Time) time.Duration { return f.active }

func TestDefaultEvictionPolicyHardThreshold(t *testing.T) {
	p := DefaultEvictionPolicy{}
	cfg := &EvictionConfig{IdleEvictTime: time.Minute, IdleSoftEvictTime: -1, MinIdle: 0}

	assert.False(t, p.Evict(cfg, fakeCandidate{idle: 30 * time.Second}, 5))
	assert.True(t, p.Evict(cfg, fakeCandidate{idle: 2 * time.Minute}, 5))
}

func TestDefaultEvictionPolicySoftThresholdRespectsMinIdle(t *testing.T) {
	p := DefaultEvictionPolicy{}
	cfg := &EvictionConfig{IdleEvictTime: -1, IdleSoftEvictTime: time.Minute, MinIdle: 3}

	// Soft threshold exceeded, but idleCount is at MinIdle: must not evict,
	// spec.md §4.4.4's "honored only while idle > MinIdle" rule.
	assert.False(t, p.Evict(cfg, fakeCandidate{idle: 2 * time.Minute}, 3))

	// Above MinIdle and past the soft threshold: evict.
	assert.True(t, p.Evict(cfg, fakeCandidate{idle: 2 * time.Minute}, 4))

	// Above MinIdle but under the soft threshold: no eviction.
	assert.False(t, p.Evict(cfg, fakeCandidate{idle: 30 * time.Second}, 4))
}

func TestDefaultEvictionPolicyDisabledThresholdsMeanNeverEvict(t *testing.T) {
	p := DefaultEvictionPolicy{}
	cfg := &EvictionConfig{IdleEvictTime: 0, IdleSoftEvictTime: -1, MinIdle: 0}

	assert.False(t, p.Evict(cfg, fakeCandidate{idle: 365 * 24 * time.Hour}, 100))
}

func TestDefaultEvictionPolicyBothThresholdsActive(t *testing.T) {
	p := DefaultEvictionPolicy{}
	cfg := &EvictionConfig{IdleEvictTime: time.Hour, IdleSoftEvictTime: time.Minute, MinIdle: 1}

	// Past the soft threshold and above MinIdle, well under the hard one:
	// still evicted via the soft path.
	assert.True(t, p.Evict(cfg, fakeCandidate{idle: 2 * time.Minute}, 2))

	// Past the hard threshold alone evicts regardless of MinIdle.
	assert.True(t, p.Evict(cfg, fakeCandidate{idle: 2 * time.Hour}, 1))
}
