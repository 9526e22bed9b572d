package pool

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/liangfflia/genpool/internal/collections"
	"github.com/liangfflia/genpool/internal/concurrent"
)

// subPoolState is the per-key container of spec.md §3's SubPoolState: an
// idle deque, an allObjects index, a per-key live+in-flight create count,
// and the interest bracket that keeps the sub-pool alive across a parked
// borrow (spec.md §4.5.1).
type subPoolState[T comparable] struct {
	idle            *collections.IdleDeque[*PooledEntry[T]]
	allObjects      *collections.IdentityMap[T, *PooledEntry[T]]
	createCount     concurrent.AtomicInt
	interestedCount concurrent.AtomicInt
}

func newSubPoolState[T comparable]() *subPoolState[T] {
	return &subPoolState[T]{
		idle:       collections.NewIdleDeque[*PooledEntry[T]](-1),
		allObjects: collections.NewIdentityMap[T, *PooledEntry[T]](),
	}
}

func (sp *subPoolState[T]) evictionSnapshot(lifo bool) []*PooledEntry[T] {
	if lifo {
		return sp.idle.DescendingIterator()
	}
	return sp.idle.Iterator()
}

// KeyedPool is the keyed variant of spec.md §4.5: a dynamic map of
// sub-pools sharing a global cap, a per-key cap, oldest-15% compaction when
// the global cap is saturated, and round-robin cross-key eviction.
type KeyedPool[K comparable, T comparable] struct {
	factory KeyedFactory[K, T]
	config  *KeyedPoolConfig
	logger  FieldLogger

	closed concurrent.AtomicBool

	keyLock  sync.RWMutex
	subPools map[K]*subPoolState[T]
	keyList  []K

	numTotal concurrent.AtomicInt

	createCount                concurrent.AtomicInt
	destroyedCount              concurrent.AtomicInt
	destroyedByEvictorCount     concurrent.AtomicInt
	destroyedByValidationCount  concurrent.AtomicInt
	borrowedCount               concurrent.AtomicInt
	returnedCount               concurrent.AtomicInt

	scheduler      *Scheduler
	evictionHandle *Handle

	evictionMu        sync.Mutex
	evictKeysSnapshot []K
	evictKeyIdx       int
	evictEntries      []*PooledEntry[T]
	evictEntryIdx     int
	evictEntryKey     K
	evictEntrySP      *subPoolState[T]
}

func NewKeyedPool[K comparable, T comparable](factory KeyedFactory[K, T], config *KeyedPoolConfig) *KeyedPool[K, T] {
	return NewKeyedPoolWithScheduler(factory, config, DefaultScheduler())
}

func NewKeyedPoolWithScheduler[K comparable, T comparable](factory KeyedFactory[K, T], config *KeyedPoolConfig, scheduler *Scheduler) *KeyedPool[K, T] {
	if config == nil {
		config = NewDefaultKeyedPoolConfig()
	}
	logger := config.Logger
	if logger == nil {
		logger = defaultLogger()
	}
	kp := &KeyedPool[K, T]{
		factory:   factory,
		config:    config,
		logger:    logger,
		subPools:  make(map[K]*subPoolState[T]),
		scheduler: scheduler,
	}
	kp.StartEvictor()
	return kp
}

func (kp *KeyedPool[K, T]) StartEvictor() {
	if kp.evictionHandle != nil {
		kp.evictionHandle.Cancel()
		kp.evictionHandle = nil
	}
	if kp.config.TimeBetweenEvictionRuns > 0 {
		period := kp.config.TimeBetweenEvictionRuns
		kp.evictionHandle = kp.scheduler.Schedule(func(ctx context.Context) {
			kp.runEvictionSweep(ctx)
		}, period, period)
	}
}

// register finds or lazily creates the sub-pool for k and brackets the
// caller's interest in it so a concurrent deregister cannot drop it out
// from under a parked borrow (spec.md §4.5.1).
func (kp *KeyedPool[K, T]) register(k K) *subPoolState[T] {
	kp.keyLock.RLock()
	sp, ok := kp.subPools[k]
	kp.keyLock.RUnlock()
	if !ok {
		kp.keyLock.Lock()
		sp, ok = kp.subPools[k]
		if !ok {
			sp = newSubPoolState[T]()
			kp.subPools[k] = sp
			kp.keyList = append(kp.keyList, k)
		}
		kp.keyLock.Unlock()
	}
	sp.interestedCount.IncrementAndGet()
	return sp
}

// deregister releases the interest bracket and removes the sub-pool once
// both no caller is interested in it and it holds no live/in-flight entry.
func (kp *KeyedPool[K, T]) deregister(k K, sp *subPoolState[T]) {
	if sp.interestedCount.DecrementAndGet() != 0 || sp.createCount.Get() != 0 {
		return
	}
	kp.keyLock.Lock()
	defer kp.keyLock.Unlock()
	if cur, ok := kp.subPools[k]; ok && cur == sp && sp.interestedCount.Get() == 0 && sp.createCount.Get() == 0 {
		delete(kp.subPools, k)
		kp.removeKeyFromListLocked(k)
	}
}

func (kp *KeyedPool[K, T]) removeKeyFromListLocked(k K) {
	for i, kk := range kp.keyList {
		if kk == k {
			kp.keyList = append(kp.keyList[:i], kp.keyList[i+1:]...)
			return
		}
	}
}

func (kp *KeyedPool[K, T]) snapshotSubPools() map[K]*subPoolState[T] {
	kp.keyLock.RLock()
	defer kp.keyLock.RUnlock()
	out := make(map[K]*subPoolState[T], len(kp.subPools))
	for k, sp := range kp.subPools {
		out[k] = sp
	}
	return out
}

func (kp *KeyedPool[K, T]) totalIdle() int {
	total := 0
	for _, sp := range kp.snapshotSubPools() {
		total += sp.idle.Size()
	}
	return total
}

// create implements spec.md §4.5.2's two-cap creation protocol: reserve a
// global permit, retry via oldest-15% compaction if the global cap is
// saturated but idle entries exist somewhere, then reserve a per-key
// permit, then call the factory outside any lock.
func (kp *KeyedPool[K, T]) create(ctx context.Context, k K, sp *subPoolState[T]) (*PooledEntry[T], error) {
	for {
		newTotal := kp.numTotal.IncrementAndGet()
		if kp.config.MaxTotal >= 0 && newTotal > int64(kp.config.MaxTotal) {
			kp.numTotal.DecrementAndGet()
			if kp.totalIdle() == 0 {
				return nil, nil
			}
			kp.compactOldest(ctx)
			continue
		}
		break
	}

	newPerKey := sp.createCount.IncrementAndGet()
	if kp.config.MaxTotalPerKey >= 0 && newPerKey > int64(kp.config.MaxTotalPerKey) {
		sp.createCount.DecrementAndGet()
		kp.numTotal.DecrementAndGet()
		return nil, nil
	}

	obj, err := kp.factory.Create(ctx, k)
	if err != nil {
		sp.createCount.DecrementAndGet()
		kp.numTotal.DecrementAndGet()
		return nil, err
	}
	entry := NewPooledEntry(obj)
	sp.allObjects.Put(obj, entry)
	kp.createCount.IncrementAndGet()
	return entry, nil
}

// destroyEntry performs the bookkeeping common to every teardown path once
// the caller already holds exclusive ownership of entry (via Allocate,
// BeginReturn, StartEvictionTest, or InvalidateIfLive).
func (kp *KeyedPool[K, T]) destroyEntry(ctx context.Context, k K, sp *subPoolState[T], entry *PooledEntry[T], byEvictor bool) {
	entry.Invalidate()
	sp.idle.RemoveFirstOccurrence(entry)
	sp.allObjects.Remove(entry.Object)
	kp.factory.Destroy(ctx, k, entry.Object)
	sp.createCount.DecrementAndGet()
	kp.numTotal.DecrementAndGet()
	kp.destroyedCount.IncrementAndGet()
	if byEvictor {
		kp.destroyedByEvictorCount.IncrementAndGet()
	}
}

// compactOldest implements spec.md §4.5.3: destroy the floor(0.15*N)+1
// globally-oldest idle entries, across whichever keys they belong to, to
// give a saturated pool headroom for a new key. Guards the N==0 case per
// spec.md §9's open question.
func (kp *KeyedPool[K, T]) compactOldest(ctx context.Context) {
	type idleRef struct {
		key   K
		sp    *subPoolState[T]
		entry *PooledEntry[T]
	}
	var all []idleRef
	for k, sp := range kp.snapshotSubPools() {
		for _, e := range sp.idle.Iterator() {
			all = append(all, idleRef{key: k, sp: sp, entry: e})
		}
	}
	n := len(all)
	if n == 0 {
		return
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].entry.LastReturnedAt().Before(all[j].entry.LastReturnedAt())
	})
	numToDestroy := (15*n)/100 + 1
	if numToDestroy > n {
		numToDestroy = n
	}
	for i := 0; i < numToDestroy; i++ {
		ref := all[i]
		if !ref.entry.StartEvictionTest() {
			// No longer idle (borrowed concurrently); leave it alone.
			continue
		}
		kp.destroyEntry(ctx, ref.key, ref.sp, ref.entry, false)
	}
}

func (kp *KeyedPool[K, T]) getMinIdlePerKey() int {
	if kp.config.MinIdlePerKey > kp.config.MaxIdlePerKey && kp.config.MaxIdlePerKey >= 0 {
		return kp.config.MaxIdlePerKey
	}
	return kp.config.MinIdlePerKey
}

func (kp *KeyedPool[K, T]) ensureIdleForKey(ctx context.Context, k K, sp *subPoolState[T], count int, always bool) {
	if count < 1 || kp.closed.Get() || (!always && !sp.idle.HasTakeWaiters()) {
		return
	}
	for sp.idle.Size() < count {
		entry, err := kp.create(ctx, k, sp)
		if err != nil || entry == nil {
			break
		}
		if kp.config.Lifo {
			sp.idle.AddFirst(entry)
		} else {
			sp.idle.AddLast(entry)
		}
	}
	if kp.closed.Get() {
		kp.clearSubPool(ctx, k, sp)
	}
}

// reuseCapacityOnReturn implements spec.md §4.5.4: best-effort, after a
// successful return, create one new entry under whichever sub-pool has the
// most borrowers parked and still has per-key headroom, so capacity freed
// on one key can unblock borrowers parked on another.
func (kp *KeyedPool[K, T]) reuseCapacityOnReturn(ctx context.Context) {
	var bestKey K
	var bestSP *subPoolState[T]
	bestLen := 0
	found := false
	for k, sp := range kp.snapshotSubPools() {
		tql := sp.idle.TakeQueueLength()
		if tql == 0 {
			continue
		}
		if kp.config.MaxTotalPerKey >= 0 && sp.createCount.Get() >= int64(kp.config.MaxTotalPerKey) {
			continue
		}
		if !found || tql > bestLen {
			bestKey, bestSP, bestLen, found = k, sp, tql, true
		}
	}
	if !found {
		return
	}
	bestSP.interestedCount.IncrementAndGet()
	defer kp.deregister(bestKey, bestSP)

	entry, err := kp.create(ctx, bestKey, bestSP)
	if err != nil || entry == nil {
		return
	}
	if kp.config.Lifo {
		bestSP.idle.AddFirst(entry)
	} else {
		bestSP.idle.AddLast(entry)
	}
}

// Borrow obtains an instance for key k.
func (kp *KeyedPool[K, T]) Borrow(ctx context.Context, k K) (T, error) {
	return kp.borrow(ctx, k, kp.config.MaxWait)
}

func (kp *KeyedPool[K, T]) BorrowWait(ctx context.Context, k K, maxWait time.Duration) (T, error) {
	return kp.borrow(ctx, k, maxWait)
}

func (kp *KeyedPool[K, T]) borrow(ctx context.Context, k K, maxWait time.Duration) (T, error) {
	var zero T
	if kp.closed.Get() {
		return zero, NewClosedErr("pool not open")
	}

	if ac := kp.config.Abandoned; ac != nil && ac.RemoveAbandonedOnBorrow {
		if kp.config.MaxTotal >= 0 && kp.NumIdle() < 2 && kp.NumActive() > kp.config.MaxTotal-3 {
			kp.removeAbandoned(ctx, ac)
		}
	}

	sp := kp.register(k)
	defer kp.deregister(k, sp)

	for {
		var entry *PooledEntry[T]
		var created bool

		entry, _ = sp.idle.PollFirst()
		if entry == nil {
			e, err := kp.create(ctx, k, sp)
			if err != nil {
				return zero, NewFactoryErr(err)
			}
			if e != nil {
				entry = e
				created = true
			}
		}

		if entry == nil {
			if !kp.config.BlockWhenExhausted {
				return zero, NewExhaustedErr("pool exhausted")
			}
			var err error
			if maxWait < 0 {
				entry, err = sp.idle.TakeFirst(ctx)
			} else {
				var ok bool
				entry, ok, err = sp.idle.PollFirstWait(ctx, maxWait)
				if err == nil && !ok {
					return zero, NewExhaustedErr("timeout waiting for idle object")
				}
			}
			if err != nil {
				if kp.closed.Get() {
					return zero, NewClosedErr("pool closed while waiting")
				}
				return zero, NewInterruptedErr(err)
			}
		}

		if entry == nil || !entry.Allocate() {
			continue
		}

		if err := kp.factory.Activate(ctx, k, entry.Object); err != nil {
			kp.destroyEntry(ctx, k, sp, entry, false)
			if created {
				return zero, NewActivationErr(err)
			}
			continue
		}

		if kp.config.TestOnBorrow || (created && kp.config.TestOnCreate) {
			if !kp.factory.Validate(ctx, k, entry.Object) {
				kp.destroyEntry(ctx, k, sp, entry, false)
				kp.destroyedByValidationCount.IncrementAndGet()
				if created {
					return zero, NewValidationErr()
				}
				continue
			}
		}

		kp.borrowedCount.IncrementAndGet()
		return entry.Object, nil
	}
}

// Return gives obj back to key k's sub-pool.
func (kp *KeyedPool[K, T]) Return(ctx context.Context, k K, obj T) error {
	sp := kp.register(k)
	defer kp.deregister(k, sp)

	entry, ok := sp.allObjects.Get(obj)
	if !ok {
		if kp.config.Abandoned != nil {
			return nil
		}
		return NewNotFromThisPoolErr("returned object is not currently part of this pool")
	}
	if !entry.BeginReturn() {
		return NewAlreadyReturnedErr()
	}

	if kp.config.TestOnReturn && !kp.factory.Validate(ctx, k, obj) {
		kp.destroyEntry(ctx, k, sp, entry, false)
		kp.ensureIdleForKey(ctx, k, sp, 1, false)
		return nil
	}
	if err := kp.factory.Passivate(ctx, k, obj); err != nil {
		kp.destroyEntry(ctx, k, sp, entry, false)
		kp.ensureIdleForKey(ctx, k, sp, 1, false)
		return nil
	}
	if !entry.Deallocate() {
		return NewAlreadyReturnedErr()
	}
	kp.returnedCount.IncrementAndGet()

	if kp.closed.Get() || (kp.config.MaxIdlePerKey >= 0 && sp.idle.Size() >= kp.config.MaxIdlePerKey) {
		kp.destroyEntry(ctx, k, sp, entry, false)
		return nil
	}
	if kp.config.Lifo {
		sp.idle.AddFirst(entry)
	} else {
		sp.idle.AddLast(entry)
	}
	if kp.closed.Get() {
		kp.clearSubPool(ctx, k, sp)
		return nil
	}

	kp.reuseCapacityOnReturn(ctx)
	return nil
}

// Invalidate forces removal of a live, possibly-borrowed entry for key k.
func (kp *KeyedPool[K, T]) Invalidate(ctx context.Context, k K, obj T) error {
	sp := kp.register(k)
	defer kp.deregister(k, sp)

	entry, ok := sp.allObjects.Get(obj)
	if !ok {
		if kp.config.Abandoned != nil {
			return nil
		}
		return NewNotFromThisPoolErr("invalidated object is not currently part of this pool")
	}
	if entry.InvalidateIfLive() {
		kp.destroyEntry(ctx, k, sp, entry, false)
	}
	kp.ensureIdleForKey(ctx, k, sp, 1, false)
	return nil
}

// AddObject preloads one entry under key k.
func (kp *KeyedPool[K, T]) AddObject(ctx context.Context, k K) error {
	if kp.closed.Get() {
		return NewClosedErr("pool not open")
	}
	sp := kp.register(k)
	defer kp.deregister(k, sp)

	entry, err := kp.create(ctx, k, sp)
	if err != nil {
		return NewFactoryErr(err)
	}
	if entry == nil {
		return nil
	}
	if perr := kp.factory.Passivate(ctx, k, entry.Object); perr != nil {
		kp.destroyEntry(ctx, k, sp, entry, false)
		return nil
	}
	if kp.config.Lifo {
		sp.idle.AddFirst(entry)
	} else {
		sp.idle.AddLast(entry)
	}
	return nil
}

func (kp *KeyedPool[K, T]) clearSubPool(ctx context.Context, k K, sp *subPoolState[T]) {
	for {
		entry, ok := sp.idle.PollFirst()
		if !ok {
			return
		}
		kp.destroyEntry(ctx, k, sp, entry, false)
	}
}

// Clear destroys every idle entry under key k.
func (kp *KeyedPool[K, T]) Clear(ctx context.Context, k K) {
	kp.keyLock.RLock()
	sp, ok := kp.subPools[k]
	kp.keyLock.RUnlock()
	if !ok {
		return
	}
	kp.clearSubPool(ctx, k, sp)
}

// ClearAll destroys every idle entry across every key.
func (kp *KeyedPool[K, T]) ClearAll(ctx context.Context) {
	for k, sp := range kp.snapshotSubPools() {
		kp.clearSubPool(ctx, k, sp)
	}
}

// Close shuts the whole keyed pool down, waking parked borrowers on every
// sub-pool with ClosedErr (same resolution as SinglePool.Close).
func (kp *KeyedPool[K, T]) Close(ctx context.Context) {
	if !kp.closed.CompareAndSet(false, true) {
		return
	}
	if kp.evictionHandle != nil {
		kp.evictionHandle.Cancel()
		kp.evictionHandle = nil
	}
	for k, sp := range kp.snapshotSubPools() {
		kp.clearSubPool(ctx, k, sp)
		sp.idle.InterruptTakeWaiters()
	}
}

func (kp *KeyedPool[K, T]) IsClosed() bool {
	return kp.closed.Get()
}

func (kp *KeyedPool[K, T]) NumIdle() int {
	total := 0
	for _, sp := range kp.snapshotSubPools() {
		total += sp.idle.Size()
	}
	return total
}

func (kp *KeyedPool[K, T]) NumActive() int {
	total := 0
	for _, sp := range kp.snapshotSubPools() {
		total += sp.allObjects.Size() - sp.idle.Size()
	}
	return total
}

func (kp *KeyedPool[K, T]) NumIdleForKey(k K) int {
	kp.keyLock.RLock()
	sp, ok := kp.subPools[k]
	kp.keyLock.RUnlock()
	if !ok {
		return 0
	}
	return sp.idle.Size()
}

func (kp *KeyedPool[K, T]) NumActiveForKey(k K) int {
	kp.keyLock.RLock()
	sp, ok := kp.subPools[k]
	kp.keyLock.RUnlock()
	if !ok {
		return 0
	}
	return sp.allObjects.Size() - sp.idle.Size()
}

func (kp *KeyedPool[K, T]) Stats() PoolStats {
	return PoolStats{
		NumIdle:                    kp.NumIdle(),
		NumActive:                  kp.NumActive(),
		CreatedCount:               kp.createCount.Get(),
		DestroyedCount:             kp.destroyedCount.Get(),
		DestroyedByEvictorCount:    kp.destroyedByEvictorCount.Get(),
		DestroyedByValidationCount: kp.destroyedByValidationCount.Get(),
		BorrowedCount:              kp.borrowedCount.Get(),
		ReturnedCount:              kp.returnedCount.Get(),
	}
}

func (kp *KeyedPool[K, T]) getNumTests(totalIdle int) int {
	n := kp.config.NumTestsPerEvictionRun
	if n >= 0 {
		if n < totalIdle {
			return n
		}
		return totalIdle
	}
	if n == 0 {
		return 0
	}
	return ceilDiv(totalIdle, -n)
}

// nextEvictionCandidate advances the two-level cursor of spec.md §4.5.5:
// an outer cursor over a snapshot of keyList, an inner cursor over the
// current key's idle deque. Both persist across sweeps and wrap around.
func (kp *KeyedPool[K, T]) nextEvictionCandidate() (*PooledEntry[T], K, *subPoolState[T], bool) {
	maxAdvances := 2*len(kp.evictKeysSnapshot) + 2
	for attempts := 0; attempts < maxAdvances+2; attempts++ {
		if kp.evictEntryIdx < len(kp.evictEntries) {
			e := kp.evictEntries[kp.evictEntryIdx]
			kp.evictEntryIdx++
			return e, kp.evictEntryKey, kp.evictEntrySP, true
		}
		if kp.evictKeyIdx >= len(kp.evictKeysSnapshot) {
			kp.keyLock.RLock()
			kp.evictKeysSnapshot = append([]K(nil), kp.keyList...)
			kp.keyLock.RUnlock()
			kp.evictKeyIdx = 0
			maxAdvances = 2*len(kp.evictKeysSnapshot) + 2
			if len(kp.evictKeysSnapshot) == 0 {
				var zero *PooledEntry[T]
				var zeroK K
				return zero, zeroK, nil, false
			}
		}
		k := kp.evictKeysSnapshot[kp.evictKeyIdx]
		kp.evictKeyIdx++
		kp.keyLock.RLock()
		sp, ok := kp.subPools[k]
		kp.keyLock.RUnlock()
		if !ok {
			continue
		}
		kp.evictEntries = sp.evictionSnapshot(kp.config.Lifo)
		kp.evictEntryIdx = 0
		kp.evictEntryKey = k
		kp.evictEntrySP = sp
	}
	var zero *PooledEntry[T]
	var zeroK K
	return zero, zeroK, nil, false
}

func (kp *KeyedPool[K, T]) runEvictionSweep(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			kp.logger.WithField("panic", r).Warnf("keyed eviction sweep recovered from panic")
		}
	}()
	kp.evictionMu.Lock()
	defer kp.evictionMu.Unlock()

	if ac := kp.config.Abandoned; ac != nil && ac.RemoveAbandonedOnMaintenance {
		kp.removeAbandoned(ctx, ac)
	}

	totalIdle := kp.totalIdle()
	if totalIdle == 0 {
		return
	}

	policy := kp.config.EvictionPolicy
	if policy == nil {
		policy = DefaultEvictionPolicy{}
	}
	minIdlePerKey := kp.getMinIdlePerKey()

	tests := kp.getNumTests(totalIdle)
	for i := 0; i < tests; i++ {
		underTest, key, sp, ok := kp.nextEvictionCandidate()
		if !ok {
			break
		}
		if !underTest.StartEvictionTest() {
			i--
			continue
		}
		cfg := &EvictionConfig{
			IdleEvictTime:     kp.config.MinEvictableIdleTime,
			IdleSoftEvictTime: kp.config.SoftMinEvictableIdleTime,
			MinIdle:           minIdlePerKey,
		}
		if policy.Evict(cfg, underTest, sp.idle.Size()) {
			kp.destroyEntry(ctx, key, sp, underTest, true)
			continue
		}
		if kp.config.TestWhileIdle {
			if err := kp.factory.Activate(ctx, key, underTest.Object); err != nil {
				kp.destroyEntry(ctx, key, sp, underTest, true)
				continue
			}
			if !kp.factory.Validate(ctx, key, underTest.Object) {
				kp.destroyEntry(ctx, key, sp, underTest, true)
				continue
			}
			if err := kp.factory.Passivate(ctx, key, underTest.Object); err != nil {
				kp.destroyEntry(ctx, key, sp, underTest, true)
				continue
			}
		}
		underTest.EndEvictionTest(sp.idle)
	}

	for k, sp := range kp.snapshotSubPools() {
		kp.ensureIdleForKey(ctx, k, sp, minIdlePerKey, true)
	}
}

// removeAbandoned is the keyed analogue of SinglePool.removeAbandoned
// (SPEC_FULL.md §4), scanning every sub-pool's allObjects.
func (kp *KeyedPool[K, T]) removeAbandoned(ctx context.Context, ac *AbandonedConfig) {
	now := time.Now()
	type ref struct {
		key   K
		sp    *subPoolState[T]
		entry *PooledEntry[T]
	}
	var toRemove []ref
	for k, sp := range kp.snapshotSubPools() {
		for _, entry := range sp.allObjects.Values() {
			if entry.IsAbandonable(ac.RemoveAbandonedTimeout, now) && entry.InvalidateIfLive() {
				toRemove = append(toRemove, ref{key: k, sp: sp, entry: entry})
			}
		}
	}
	for _, r := range toRemove {
		kp.logger.WithField("entry", r.entry.ID()).Warnf("removing abandoned keyed pooled object")
		r.sp.idle.RemoveFirstOccurrence(r.entry)
		r.sp.allObjects.Remove(r.entry.Object)
		kp.factory.Destroy(ctx, r.key, r.entry.Object)
		r.sp.createCount.DecrementAndGet()
		kp.numTotal.DecrementAndGet()
		kp.destroyedCount.IncrementAndGet()
	}
}
