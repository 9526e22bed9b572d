package pool

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/liangfflia/genpool/internal/collections"
	"github.com/liangfflia/genpool/internal/concurrent"
)

// SinglePool is the unkeyed pool of spec.md §4.4: a single idle deque and
// allObjects index shared by every caller, bounded by Config.MaxTotal, with
// an optional background evictor. It is grounded directly on the teacher's
// ObjectPool (pool.go), generalized from interface{} to a type parameter
// and from a bare createCount comparison to a semaphore-backed permit.
type SinglePool[T comparable] struct {
	factory Factory[T]
	config  *PoolConfig
	logger  FieldLogger

	closed concurrent.AtomicBool

	idle       *collections.IdleDeque[*PooledEntry[T]]
	allObjects *collections.IdentityMap[T, *PooledEntry[T]]

	// createPermits bounds |allObjects| + in-flight creations at MaxTotal,
	// spec.md §3's createPermits counter, implemented as a semaphore so it
	// can never transiently overshoot the cap the way a raw
	// increment-then-compare-then-maybe-decrement sequence can.
	createPermits *semaphore.Weighted

	createCount                     concurrent.AtomicInt
	destroyedCount                  concurrent.AtomicInt
	destroyedByEvictorCount         concurrent.AtomicInt
	destroyedByValidationCount      concurrent.AtomicInt
	borrowedCount                   concurrent.AtomicInt
	returnedCount                   concurrent.AtomicInt

	scheduler      *Scheduler
	evictionHandle *Handle
	evictionMu     sync.Mutex
	evictionCursor []*PooledEntry[T]
	evictionIdx    int
}

// NewSinglePool creates a pool bound to factory and config. If
// config.TimeBetweenEvictionRuns > 0, the evictor is started immediately
// against DefaultScheduler(); use NewSinglePoolWithScheduler to supply a
// different scheduler.
func NewSinglePool[T comparable](factory Factory[T], config *PoolConfig) *SinglePool[T] {
	return NewSinglePoolWithScheduler(factory, config, DefaultScheduler())
}

// NewSinglePoolWithScheduler is NewSinglePool with an explicit, injectable
// EvictionScheduler (spec.md §9's design note), useful for tests that want
// to drive eviction deterministically.
func NewSinglePoolWithScheduler[T comparable](factory Factory[T], config *PoolConfig, scheduler *Scheduler) *SinglePool[T] {
	if config == nil {
		config = NewDefaultPoolConfig()
	}
	logger := config.Logger
	if logger == nil {
		logger = defaultLogger()
	}
	p := &SinglePool[T]{
		factory:    factory,
		config:     config,
		logger:     logger,
		idle:       collections.NewIdleDeque[*PooledEntry[T]](-1),
		allObjects: collections.NewIdentityMap[T, *PooledEntry[T]](),
		scheduler:  scheduler,
	}
	if config.MaxTotal >= 0 {
		p.createPermits = semaphore.NewWeighted(int64(config.MaxTotal))
	}
	p.StartEvictor()
	return p
}

// StartEvictor (re)starts the background sweep at the configured period.
// Call this after mutating Config.TimeBetweenEvictionRuns to have the
// change take effect, mirroring the teacher's StartEvictor/startEvictor
// split.
func (p *SinglePool[T]) StartEvictor() {
	if p.evictionHandle != nil {
		p.evictionHandle.Cancel()
		p.evictionHandle = nil
	}
	if p.config.TimeBetweenEvictionRuns > 0 {
		period := p.config.TimeBetweenEvictionRuns
		p.evictionHandle = p.scheduler.Schedule(func(ctx context.Context) {
			p.runEvictionSweep(ctx)
			p.ensureMinIdle(ctx)
		}, period, period)
	}
}

func (p *SinglePool[T]) acquirePermit() bool {
	if p.createPermits == nil {
		return true
	}
	return p.createPermits.TryAcquire(1)
}

func (p *SinglePool[T]) releasePermit() {
	if p.createPermits != nil {
		p.createPermits.Release(1)
	}
}

// create reserves a permit, calls the factory outside any lock, and indexes
// the new entry. Returns (nil, nil) when the pool is at capacity -- not an
// error, just "no room right now" per spec.md §4.4.1 step 2.
func (p *SinglePool[T]) create(ctx context.Context) (*PooledEntry[T], error) {
	if !p.acquirePermit() {
		return nil, nil
	}
	obj, err := p.factory.Create(ctx)
	if err != nil {
		p.releasePermit()
		return nil, err
	}
	entry := NewPooledEntry(obj)
	p.allObjects.Put(obj, entry)
	p.createCount.IncrementAndGet()
	return entry, nil
}

func (p *SinglePool[T]) destroy(ctx context.Context, e *PooledEntry[T], byEvictor bool) {
	e.Invalidate()
	p.idle.RemoveFirstOccurrence(e)
	p.allObjects.Remove(e.Object)
	p.factory.Destroy(ctx, e.Object)
	p.destroyedCount.IncrementAndGet()
	if byEvictor {
		p.destroyedByEvictorCount.IncrementAndGet()
	}
	p.releasePermit()
}

// Borrow obtains an instance, waiting up to Config.MaxWait if the pool is
// exhausted and Config.BlockWhenExhausted is set.
func (p *SinglePool[T]) Borrow(ctx context.Context) (T, error) {
	return p.borrow(ctx, p.config.MaxWait)
}

// BorrowWait is Borrow with an explicit wait override (spec.md §6.2's
// borrow(maxWait) form).
func (p *SinglePool[T]) BorrowWait(ctx context.Context, maxWait time.Duration) (T, error) {
	return p.borrow(ctx, maxWait)
}

func (p *SinglePool[T]) borrow(ctx context.Context, maxWait time.Duration) (T, error) {
	var zero T
	if p.closed.Get() {
		return zero, NewClosedErr("pool not open")
	}

	if ac := p.config.Abandoned; ac != nil && ac.RemoveAbandonedOnBorrow {
		if p.config.MaxTotal >= 0 && p.NumIdle() < 2 && p.NumActive() > p.config.MaxTotal-3 {
			p.removeAbandoned(ctx, ac)
		}
	}

	for {
		var entry *PooledEntry[T]
		var created bool

		entry, _ = p.idle.PollFirst()
		if entry == nil {
			e, err := p.create(ctx)
			if err != nil {
				return zero, NewFactoryErr(err)
			}
			if e != nil {
				entry = e
				created = true
			}
		}

		if entry == nil {
			if !p.config.BlockWhenExhausted {
				return zero, NewExhaustedErr("pool exhausted")
			}
			var err error
			if maxWait < 0 {
				entry, err = p.idle.TakeFirst(ctx)
			} else {
				var ok bool
				entry, ok, err = p.idle.PollFirstWait(ctx, maxWait)
				if err == nil && !ok {
					return zero, NewExhaustedErr("timeout waiting for idle object")
				}
			}
			if err != nil {
				if p.closed.Get() {
					return zero, NewClosedErr("pool closed while waiting")
				}
				return zero, NewInterruptedErr(err)
			}
		}

		if entry == nil || !entry.Allocate() {
			// Either nothing was available (defensive) or the entry raced
			// the evictor (spec.md §4.4.1 step 4): discard and restart.
			continue
		}

		if err := p.factory.Activate(ctx, entry.Object); err != nil {
			p.destroy(ctx, entry, false)
			if created {
				return zero, NewActivationErr(err)
			}
			continue
		}

		if p.config.TestOnBorrow || (created && p.config.TestOnCreate) {
			if !p.factory.Validate(ctx, entry.Object) {
				p.destroy(ctx, entry, false)
				p.destroyedByValidationCount.IncrementAndGet()
				if created {
					return zero, NewValidationErr()
				}
				continue
			}
		}

		p.borrowedCount.IncrementAndGet()
		return entry.Object, nil
	}
}

// Return gives obj back to the pool. obj must have come from Borrow.
func (p *SinglePool[T]) Return(ctx context.Context, obj T) error {
	entry, ok := p.allObjects.Get(obj)
	if !ok {
		if p.config.Abandoned != nil {
			// the abandoned sweep may have legitimately removed this entry
			// out from under a caller that is now returning it.
			return nil
		}
		return NewNotFromThisPoolErr("returned object is not currently part of this pool")
	}
	if !entry.BeginReturn() {
		return NewAlreadyReturnedErr()
	}

	if p.config.TestOnReturn && !p.factory.Validate(ctx, obj) {
		p.destroy(ctx, entry, false)
		p.ensureIdle(ctx, 1, false)
		return nil
	}

	if err := p.factory.Passivate(ctx, obj); err != nil {
		p.destroy(ctx, entry, false)
		p.ensureIdle(ctx, 1, false)
		return nil
	}

	if !entry.Deallocate() {
		return NewAlreadyReturnedErr()
	}
	p.returnedCount.IncrementAndGet()

	if p.closed.Get() || (p.config.MaxIdle >= 0 && p.idle.Size() >= p.config.MaxIdle) {
		p.destroy(ctx, entry, false)
		return nil
	}
	if p.config.Lifo {
		p.idle.AddFirst(entry)
	} else {
		p.idle.AddLast(entry)
	}
	if p.closed.Get() {
		p.Clear(ctx)
	}
	return nil
}

// Invalidate forces removal of a live, possibly-borrowed entry.
func (p *SinglePool[T]) Invalidate(ctx context.Context, obj T) error {
	entry, ok := p.allObjects.Get(obj)
	if !ok {
		if p.config.Abandoned != nil {
			return nil
		}
		return NewNotFromThisPoolErr("invalidated object is not currently part of this pool")
	}
	if entry.InvalidateIfLive() {
		p.destroy(ctx, entry, false)
	}
	p.ensureIdle(ctx, 1, false)
	return nil
}

// AddObject creates one entry and passivates it straight into idle, useful
// for pre-loading a pool (spec.md §6.2).
func (p *SinglePool[T]) AddObject(ctx context.Context) error {
	if p.closed.Get() {
		return NewClosedErr("pool not open")
	}
	entry, err := p.create(ctx)
	if err != nil {
		return NewFactoryErr(err)
	}
	if entry == nil {
		return nil // at capacity; silently a no-op, matching the teacher's AddObject
	}
	p.addIdle(ctx, entry)
	return nil
}

func (p *SinglePool[T]) addIdle(ctx context.Context, entry *PooledEntry[T]) {
	if err := p.factory.Passivate(ctx, entry.Object); err != nil {
		p.destroy(ctx, entry, false)
		return
	}
	if p.config.Lifo {
		p.idle.AddFirst(entry)
	} else {
		p.idle.AddLast(entry)
	}
}

// Clear destroys every currently idle entry, releasing their resources.
func (p *SinglePool[T]) Clear(ctx context.Context) {
	for {
		entry, ok := p.idle.PollFirst()
		if !ok {
			return
		}
		p.destroy(ctx, entry, false)
	}
}

// Close shuts the pool down: no further Borrow will succeed, every idle
// entry is destroyed, the evictor is cancelled, and parked borrowers are
// woken with ClosedErr. This resolves spec.md §9's open question in favor
// of waking parked borrowers rather than leaving them stuck forever.
func (p *SinglePool[T]) Close(ctx context.Context) {
	if !p.closed.CompareAndSet(false, true) {
		return
	}
	if p.evictionHandle != nil {
		p.evictionHandle.Cancel()
		p.evictionHandle = nil
	}
	p.Clear(ctx)
	p.idle.InterruptTakeWaiters()
}

func (p *SinglePool[T]) IsClosed() bool {
	return p.closed.Get()
}

func (p *SinglePool[T]) NumIdle() int {
	return p.idle.Size()
}

func (p *SinglePool[T]) NumActive() int {
	return p.allObjects.Size() - p.idle.Size()
}

// Stats returns a snapshot of the narrow, in-scope counters spec.md §1/§7
// allow (see stats.go).
func (p *SinglePool[T]) Stats() PoolStats {
	return PoolStats{
		NumIdle:                    p.NumIdle(),
		NumActive:                  p.NumActive(),
		CreatedCount:               p.createCount.Get(),
		DestroyedCount:             p.destroyedCount.Get(),
		DestroyedByEvictorCount:    p.destroyedByEvictorCount.Get(),
		DestroyedByValidationCount: p.destroyedByValidationCount.Get(),
		BorrowedCount:              p.borrowedCount.Get(),
		ReturnedCount:              p.returnedCount.Get(),
	}
}

func (p *SinglePool[T]) getMinIdle() int {
	if p.config.MinIdle > p.config.MaxIdle && p.config.MaxIdle >= 0 {
		return p.config.MaxIdle
	}
	return p.config.MinIdle
}

// ensureIdle tops the idle deque up to idleCount, stopping at the first
// creation failure (spec.md §4.4.4 step 4). always=false only creates when
// a borrower is actually parked waiting, matching the teacher's
// ensureIdle(count, always) gate used after a destroy-on-return.
func (p *SinglePool[T]) ensureIdle(ctx context.Context, idleCount int, always bool) {
	if idleCount < 1 || p.closed.Get() || (!always && !p.idle.HasTakeWaiters()) {
		return
	}
	for p.idle.Size() < idleCount {
		entry, err := p.create(ctx)
		if err != nil || entry == nil {
			break
		}
		if p.config.Lifo {
			p.idle.AddFirst(entry)
		} else {
			p.idle.AddLast(entry)
		}
	}
	if p.closed.Get() {
		p.Clear(ctx)
	}
}

func (p *SinglePool[T]) ensureMinIdle(ctx context.Context) {
	p.ensureIdle(ctx, p.getMinIdle(), true)
}

func (p *SinglePool[T]) getNumTests() int {
	n := p.config.NumTestsPerEvictionRun
	idleSize := p.idle.Size()
	if n >= 0 {
		if n < idleSize {
			return n
		}
		return idleSize
	}
	if n == 0 {
		return 0
	}
	return ceilDiv(idleSize, -n)
}

func ceilDiv(a, b int) int {
	if b <= 0 {
		return a
	}
	return (a + b - 1) / b
}

// evictionSnapshot returns the traversal order for a sweep: head to tail
// when returns are appended at the tail (FIFO), tail to head when returns
// are pushed at the head (LIFO) -- in both cases walking from the
// longest-idle entry toward the most recently returned one.
func (p *SinglePool[T]) evictionSnapshot() []*PooledEntry[T] {
	if p.config.Lifo {
		return p.idle.DescendingIterator()
	}
	return p.idle.Iterator()
}

// runEvictionSweep implements spec.md §4.4.4: tests up to getNumTests()
// idle entries, resuming from a cursor that survives across sweeps.
func (p *SinglePool[T]) runEvictionSweep(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.WithField("panic", r).Warnf("eviction sweep recovered from panic")
		}
	}()
	p.evictionMu.Lock()
	defer p.evictionMu.Unlock()
	if ac := p.config.Abandoned; ac != nil && ac.RemoveAbandonedOnMaintenance {
		p.removeAbandoned(ctx, ac)
	}
	if p.idle.Size() == 0 {
		return
	}

	policy := p.config.EvictionPolicy
	if policy == nil {
		policy = DefaultEvictionPolicy{}
	}
	cfg := &EvictionConfig{
		IdleEvictTime:     p.config.MinEvictableIdleTime,
		IdleSoftEvictTime: p.config.SoftMinEvictableIdleTime,
		MinIdle:           p.getMinIdle(),
	}

	tests := p.getNumTests()
	for i := 0; i < tests; i++ {
		if p.evictionIdx >= len(p.evictionCursor) {
			p.evictionCursor = p.evictionSnapshot()
			p.evictionIdx = 0
		}
		if p.evictionIdx >= len(p.evictionCursor) {
			return // pool exhausted, nothing left to test
		}
		underTest := p.evictionCursor[p.evictionIdx]
		p.evictionIdx++

		if !underTest.StartEvictionTest() {
			// Borrowed concurrently; doesn't count toward this run's tests.
			i--
			continue
		}

		if policy.Evict(cfg, underTest, p.idle.Size()) {
			p.destroy(ctx, underTest, true)
			continue
		}

		if p.config.TestWhileIdle {
			if err := p.factory.Activate(ctx, underTest.Object); err != nil {
				p.destroy(ctx, underTest, true)
				continue
			}
			if !p.factory.Validate(ctx, underTest.Object) {
				p.destroy(ctx, underTest, true)
				continue
			}
			if err := p.factory.Passivate(ctx, underTest.Object); err != nil {
				p.destroy(ctx, underTest, true)
				continue
			}
		}
		underTest.EndEvictionTest(p.idle)
	}
}

// removeAbandoned implements the supplemented abandoned-object sweep
// (SPEC_FULL.md §4), grounded on the teacher's removeAbandoned.
func (p *SinglePool[T]) removeAbandoned(ctx context.Context, ac *AbandonedConfig) {
	now := time.Now()
	var toRemove []*PooledEntry[T]
	for _, entry := range p.allObjects.Values() {
		if entry.IsAbandonable(ac.RemoveAbandonedTimeout, now) && entry.InvalidateIfLive() {
			toRemove = append(toRemove, entry)
		}
	}
	for _, entry := range toRemove {
		p.logger.WithField("entry", entry.ID()).Warnf("removing abandoned pooled object")
		p.allObjects.Remove(entry.Object)
		p.idle.RemoveFirstOccurrence(entry)
		p.factory.Destroy(ctx, entry.Object)
		p.destroyedCount.IncrementAndGet()
		p.releasePermit()
	}
}
