package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// counterFactory hands out increasing ints, recording every Destroy,
// Activate, Passivate and Validate call so tests can assert on the hooks
// invoked.
type counterFactory struct {
	next int32

	mu         sync.Mutex
	destroyed  []int
	activated  []int
	passivated []int
	validated  []int

	createErr   error
	activateErr func(int) error
	validateOK  func(int) bool
	passivateErr func(int) error
}

func newCounterFactory() *counterFactory {
	return &counterFactory{}
}

func (f *counterFactory) Create(ctx context.Context) (int, error) {
	if f.createErr != nil {
		return 0, f.createErr
	}
	return int(atomic.AddInt32(&f.next, 1)), nil
}

func (f *counterFactory) Destroy(ctx context.Context, obj int) {
	f.mu.Lock()
	f.destroyed = append(f.destroyed, obj)
	f.mu.Unlock()
}

func (f *counterFactory) Validate(ctx context.Context, obj int) bool {
	f.mu.Lock()
	f.validated = append(f.validated, obj)
	f.mu.Unlock()
	if f.validateOK != nil {
		return f.validateOK(obj)
	}
	return true
}

func (f *counterFactory) Activate(ctx context.Context, obj int) error {
	f.mu.Lock()
	f.activated = append(f.activated, obj)
	f.mu.Unlock()
	if f.activateErr != nil {
		return f.activateErr(obj)
	}
	return nil
}

func (f *counterFactory) Passivate(ctx context.Context, obj int) error {
	f.mu.Lock()
	f.passivated = append(f.passivated, obj)
	f.mu.Unlock()
	if f.passivateErr != nil {
		return f.passivateErr(obj)
	}
	return nil
}

func (f *counterFactory) destroyedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.destroyed)
}

func testScheduler() *Scheduler {
	return NewScheduler(time.Second, 4)
}

func TestSinglePoolBorrowReturnRoundTrip(t *testing.T) {
	factory := newCounterFactory()
	cfg := NewDefaultPoolConfig()
	cfg.MaxTotal = 2
	p := NewSinglePoolWithScheduler[int](factory, cfg, testScheduler())
	ctx := context.Background()

	obj, err := p.Borrow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, obj)
	assert.Equal(t, 1, p.NumActive())
	assert.Equal(t, 0, p.NumIdle())

	require.NoError(t, p.Return(ctx, obj))
	assert.Equal(t, 0, p.NumActive())
	assert.Equal(t, 1, p.NumIdle())

	obj2, err := p.Borrow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, obj2, "the returned entry should be reused rather than creating a new one")
}

func TestSinglePoolExhaustedNonBlocking(t *testing.T) {
	factory := newCounterFactory()
	cfg := NewDefaultPoolConfig()
	cfg.MaxTotal = 1
	cfg.BlockWhenExhausted = false
	p := NewSinglePoolWithScheduler[int](factory, cfg, testScheduler())
	ctx := context.Background()

	_, err := p.Borrow(ctx)
	require.NoError(t, err)

	_, err = p.Borrow(ctx)
	require.Error(t, err)
	var exhausted *ExhaustedErr
	assert.ErrorAs(t, err, &exhausted)
}

func TestSinglePoolBlockWhenExhaustedTimesOut(t *testing.T) {
	factory := newCounterFactory()
	cfg := NewDefaultPoolConfig()
	cfg.MaxTotal = 1
	p := NewSinglePoolWithScheduler[int](factory, cfg, testScheduler())
	ctx := context.Background()

	_, err := p.Borrow(ctx)
	require.NoError(t, err)

	start := time.Now()
	_, err = p.BorrowWait(ctx, 50*time.Millisecond)
	require.Error(t, err)
	var exhausted *ExhaustedErr
	assert.ErrorAs(t, err, &exhausted)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestSinglePoolBorrowUnblocksOnReturn(t *testing.T) {
	factory := newCounterFactory()
	cfg := NewDefaultPoolConfig()
	cfg.MaxTotal = 1
	p := NewSinglePoolWithScheduler[int](factory, cfg, testScheduler())
	ctx := context.Background()

	obj, err := p.Borrow(ctx)
	require.NoError(t, err)

	result := make(chan int, 1)
	go func() {
		v, err := p.Borrow(ctx)
		require.NoError(t, err)
		result <- v
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, p.Return(ctx, obj))

	select {
	case v := <-result:
		assert.Equal(t, obj, v)
	case <-time.After(time.Second):
		t.Fatal("parked borrow did not unblock after return")
	}
}

func TestSinglePoolActivationFailureOnCreateDestroysAndPropagates(t *testing.T) {
	factory := newCounterFactory()
	failOnce := int32(1)
	factory.activateErr = func(obj int) error {
		if atomic.CompareAndSwapInt32(&failOnce, int32(obj), 0) {
			return errors.New("boom")
		}
		return nil
	}
	cfg := NewDefaultPoolConfig()
	cfg.MaxTotal = 5
	p := NewSinglePoolWithScheduler[int](factory, cfg, testScheduler())
	ctx := context.Background()

	// First created object (id 1) fails activation and is destroyed; since
	// it was freshly created, the error propagates directly rather than
	// retrying forever.
	_, err := p.Borrow(ctx)
	require.Error(t, err)
	var activationErr *ActivationErr
	assert.ErrorAs(t, err, &activationErr)
	assert.Equal(t, 1, factory.destroyedCount())
}

func TestSinglePoolValidationFailureOnBorrow(t *testing.T) {
	factory := newCounterFactory()
	factory.validateOK = func(obj int) bool { return false }
	cfg := NewDefaultPoolConfig()
	cfg.MaxTotal = 2
	cfg.TestOnBorrow = true
	p := NewSinglePoolWithScheduler[int](factory, cfg, testScheduler())
	ctx := context.Background()

	_, err := p.Borrow(ctx)
	require.Error(t, err)
	var validationErr *ValidationErr
	assert.ErrorAs(t, err, &validationErr)
}

func TestSinglePoolReturnNotFromThisPool(t *testing.T) {
	factory := newCounterFactory()
	p := NewSinglePoolWithScheduler[int](factory, NewDefaultPoolConfig(), testScheduler())
	err := p.Return(context.Background(), 999)
	var notFromThisPool *NotFromThisPoolErr
	assert.ErrorAs(t, err, &notFromThisPool)
}

func TestSinglePoolReturnNotFromThisPoolIsGracefulUnderAbandonedConfig(t *testing.T) {
	factory := newCounterFactory()
	cfg := NewDefaultPoolConfig()
	cfg.Abandoned = &AbandonedConfig{RemoveAbandonedOnMaintenance: true, RemoveAbandonedTimeout: time.Minute}
	p := NewSinglePoolWithScheduler[int](factory, cfg, testScheduler())
	ctx := context.Background()

	// Simulates a caller returning/invalidating an entry the abandoned
	// sweep has already reaped out from under it: must be a benign no-op,
	// not NotFromThisPoolErr.
	assert.NoError(t, p.Return(ctx, 999))
	assert.NoError(t, p.Invalidate(ctx, 999))
}

func TestSinglePoolReturnTwiceFails(t *testing.T) {
	factory := newCounterFactory()
	p := NewSinglePoolWithScheduler[int](factory, NewDefaultPoolConfig(), testScheduler())
	ctx := context.Background()

	obj, err := p.Borrow(ctx)
	require.NoError(t, err)
	require.NoError(t, p.Return(ctx, obj))

	err = p.Return(ctx, obj)
	var alreadyReturned *AlreadyReturnedErr
	assert.ErrorAs(t, err, &alreadyReturned)
}

func TestSinglePoolInvalidateDestroysExactlyOnce(t *testing.T) {
	factory := newCounterFactory()
	p := NewSinglePoolWithScheduler[int](factory, NewDefaultPoolConfig(), testScheduler())
	ctx := context.Background()

	obj, err := p.Borrow(ctx)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = p.Invalidate(ctx, obj)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, factory.destroyedCount(), "concurrent Invalidate calls must destroy the object exactly once")
	assert.Equal(t, 0, p.NumActive())
}

func TestSinglePoolCloseWakesParkedBorrowers(t *testing.T) {
	factory := newCounterFactory()
	cfg := NewDefaultPoolConfig()
	cfg.MaxTotal = 1
	p := NewSinglePoolWithScheduler[int](factory, cfg, testScheduler())
	ctx := context.Background()

	_, err := p.Borrow(ctx)
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		_, err := p.Borrow(ctx)
		errCh <- err
	}()
	time.Sleep(20 * time.Millisecond)

	p.Close(ctx)

	select {
	case err := <-errCh:
		var closedErr *ClosedErr
		assert.ErrorAs(t, err, &closedErr)
	case <-time.After(time.Second):
		t.Fatal("Close did not wake the parked borrower")
	}

	_, err = p.Borrow(ctx)
	var closedErr *ClosedErr
	assert.ErrorAs(t, err, &closedErr)
}

func TestSinglePoolCloseIsIdempotent(t *testing.T) {
	factory := newCounterFactory()
	p := NewSinglePoolWithScheduler[int](factory, NewDefaultPoolConfig(), testScheduler())
	p.Close(context.Background())
	assert.NotPanics(t, func() { p.Close(context.Background()) })
}

func TestSinglePoolEvictionHardThreshold(t *testing.T) {
	factory := newCounterFactory()
	cfg := NewDefaultPoolConfig()
	cfg.MaxTotal = 5
	cfg.MinEvictableIdleTime = 10 * time.Millisecond
	cfg.SoftMinEvictableIdleTime = -1
	cfg.NumTestsPerEvictionRun = -1 // test all idle entries each sweep
	p := NewSinglePoolWithScheduler[int](factory, cfg, testScheduler())
	ctx := context.Background()

	obj, err := p.Borrow(ctx)
	require.NoError(t, err)
	require.NoError(t, p.Return(ctx, obj))

	time.Sleep(30 * time.Millisecond)
	p.runEvictionSweep(ctx)

	assert.Equal(t, 0, p.NumIdle())
	assert.Equal(t, 1, factory.destroyedCount())
}

func TestSinglePoolEvictionSoftThresholdHonorsMinIdle(t *testing.T) {
	factory := newCounterFactory()
	cfg := NewDefaultPoolConfig()
	cfg.MaxTotal = 5
	cfg.MinIdle = 1
	cfg.MinEvictableIdleTime = -1
	cfg.SoftMinEvictableIdleTime = 10 * time.Millisecond
	cfg.NumTestsPerEvictionRun = -1
	p := NewSinglePoolWithScheduler[int](factory, cfg, testScheduler())
	ctx := context.Background()

	// Hold both borrows before returning either, so two distinct entries are
	// created rather than one being reused.
	objs := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		obj, err := p.Borrow(ctx)
		require.NoError(t, err)
		objs = append(objs, obj)
	}
	for _, obj := range objs {
		require.NoError(t, p.Return(ctx, obj))
	}
	require.Equal(t, 2, p.NumIdle())

	time.Sleep(30 * time.Millisecond)
	p.runEvictionSweep(ctx)

	// One entry must survive to satisfy MinIdle even though both are past
	// the soft threshold.
	assert.Equal(t, 1, p.NumIdle())
	assert.Equal(t, 1, factory.destroyedCount())
}

func TestSinglePoolAbandonedSweepRemovesStaleBorrow(t *testing.T) {
	factory := newCounterFactory()
	cfg := NewDefaultPoolConfig()
	cfg.MaxTotal = 5
	cfg.Abandoned = &AbandonedConfig{
		RemoveAbandonedOnMaintenance: true,
		RemoveAbandonedTimeout:       10 * time.Millisecond,
	}
	cfg.NumTestsPerEvictionRun = -1
	p := NewSinglePoolWithScheduler[int](factory, cfg, testScheduler())
	ctx := context.Background()

	_, err := p.Borrow(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, p.NumActive())

	time.Sleep(30 * time.Millisecond)
	p.runEvictionSweep(ctx)

	assert.Equal(t, 0, p.NumActive())
	assert.Equal(t, 1, factory.destroyedCount())
}

func TestSinglePoolStatsReflectActivity(t *testing.T) {
	factory := newCounterFactory()
	p := NewSinglePoolWithScheduler[int](factory, NewDefaultPoolConfig(), testScheduler())
	ctx := context.Background()

	obj, err := p.Borrow(ctx)
	require.NoError(t, err)
	require.NoError(t, p.Return(ctx, obj))

	stats := p.Stats()
	assert.Equal(t, int64(1), stats.CreatedCount)
	assert.Equal(t, int64(1), stats.BorrowedCount)
	assert.Equal(t, int64(1), stats.ReturnedCount)
	assert.Equal(t, 1, stats.NumIdle)
	assert.Equal(t, 0, stats.NumActive)
}
