package pool

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liangfflia/genpool/internal/collections"
)

func TestPooledEntryAllocateDeallocate(t *testing.T) {
	e := NewPooledEntry(42)
	assert.Equal(t, StateIdle, e.State())

	assert.True(t, e.Allocate())
	assert.Equal(t, StateAllocated, e.State())

	assert.False(t, e.Allocate(), "double allocate must fail")

	assert.True(t, e.Deallocate())
	assert.Equal(t, StateIdle, e.State())

	assert.False(t, e.Deallocate(), "double deallocate must fail")
}

func TestPooledEntryBeginReturnIsAtomic(t *testing.T) {
	e := NewPooledEntry(1)
	require.True(t, e.Allocate())

	assert.True(t, e.BeginReturn())
	assert.False(t, e.BeginReturn(), "a second BeginReturn on the same allocation must fail")

	assert.True(t, e.Deallocate())
}

func TestPooledEntryEvictionTestReturnToHead(t *testing.T) {
	e := NewPooledEntry(1)
	require.True(t, e.StartEvictionTest())

	// A concurrent Allocate while under eviction test does not succeed; the
	// entry instead flags itself to be re-queued at the head once the
	// evictor finishes, per spec.md §4.1's state table.
	assert.False(t, e.Allocate())
	assert.Equal(t, StateEvictionTestReturnToHead, e.State())

	idle := collections.NewIdleDeque[*PooledEntry[int]](-1)
	assert.True(t, e.EndEvictionTest(idle))
	assert.Equal(t, StateIdle, e.State())

	v, ok := idle.PollFirst()
	require.True(t, ok)
	assert.Same(t, e, v)
}

func TestPooledEntryEndEvictionTestWithoutRace(t *testing.T) {
	e := NewPooledEntry(1)
	require.True(t, e.StartEvictionTest())

	idle := collections.NewIdleDeque[*PooledEntry[int]](-1)
	assert.True(t, e.EndEvictionTest(idle))
	assert.Equal(t, StateIdle, e.State())
	assert.Equal(t, 0, idle.Size(), "no race occurred, so nothing should be re-queued by EndEvictionTest itself")
}

func TestPooledEntryInvalidateIfLiveSingleWinner(t *testing.T) {
	e := NewPooledEntry(1)

	assert.True(t, e.InvalidateIfLive())
	assert.Equal(t, StateInvalid, e.State())
	assert.False(t, e.InvalidateIfLive(), "a second caller must not also win")
}

func TestPooledEntryIsAbandonable(t *testing.T) {
	e := NewPooledEntry(1)
	require.True(t, e.Allocate())

	now := time.Now()
	assert.False(t, e.IsAbandonable(time.Hour, now), "not abandonable immediately after borrow")

	future := now.Add(2 * time.Hour)
	assert.True(t, e.IsAbandonable(time.Hour, future))

	require.True(t, e.BeginReturn())
	assert.False(t, e.IsAbandonable(time.Hour, future), "mid-return entries are never abandonable")
}

func TestPooledEntryIdleDuration(t *testing.T) {
	e := NewPooledEntry(1)
	past := e.LastReturnedAt()
	later := past.Add(5 * time.Minute)
	assert.Equal(t, 5*time.Minute, e.IdleDuration(later))
}
