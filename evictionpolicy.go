package pool

import "time"

// EvictionCandidate is the narrow view of a PooledEntry an EvictionPolicy
// needs. It is deliberately non-generic (unlike PooledEntry[T]) so a single
// EvictionPolicy implementation can serve SinglePool[T] and KeyedPool[K,T]
// for any T/K -- the teacher's EvictionPolicy took interface{}, for the
// same reason.
type EvictionCandidate interface {
	IdleDuration(now time.Time) time.Duration
	ActiveDuration(now time.Time) time.Duration
}

// EvictionConfig is the snapshot of eviction thresholds passed to
// EvictionPolicy.Evict for a single sweep, grounded on the teacher's
// EvictionConfig{IdleEvictTime, IdleSoftEvictTime, MinIdle}.
type EvictionConfig struct {
	IdleEvictTime     time.Duration // <=0 disables the hard threshold
	IdleSoftEvictTime time.Duration // <=0 disables the soft threshold
	MinIdle           int
}

// EvictionPolicy decides whether a single idle entry should be evicted
// during a sweep. It is pluggable through PoolConfig.EvictionPolicy and
// KeyedPoolConfig.EvictionPolicy; unlike the teacher there is no by-name
// registry, and the only built-in policy is DefaultEvictionPolicy.
type EvictionPolicy interface {
	Evict(cfg *EvictionConfig, candidate EvictionCandidate, idleCount int) bool
}

// DefaultEvictionPolicy implements spec.md §4.4.4's two-threshold rule:
// evict if idle time exceeds the hard threshold, or if it exceeds the soft
// threshold while more than MinIdle entries remain idle.
type DefaultEvictionPolicy struct{}

func (DefaultEvictionPolicy) Evict(cfg *EvictionConfig, candidate EvictionCandidate, idleCount int) bool {
	now := time.Now()
	idle := candidate.IdleDuration(now)
	if cfg.IdleEvictTime > 0 && idle > cfg.IdleEvictTime {
		return true
	}
	if cfg.IdleSoftEvictTime > 0 && idle > cfg.IdleSoftEvictTime && idleCount > cfg.MinIdle {
		return true
	}
	return false
}
