package pool

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulerRunsPeriodically(t *testing.T) {
	s := NewScheduler(200*time.Millisecond, 2)
	var count int32

	h := s.Schedule(func(ctx context.Context) {
		atomic.AddInt32(&count, 1)
	}, 5*time.Millisecond, 15*time.Millisecond)
	defer h.Cancel()

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&count) >= 3
	}, time.Second, 5*time.Millisecond)
}

func TestSchedulerCancelStopsFutureRuns(t *testing.T) {
	s := NewScheduler(200*time.Millisecond, 2)
	var count int32

	h := s.Schedule(func(ctx context.Context) {
		atomic.AddInt32(&count, 1)
	}, 5*time.Millisecond, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&count) >= 1
	}, time.Second, 5*time.Millisecond)

	h.Cancel()
	seenAtCancel := atomic.LoadInt32(&count)
	time.Sleep(100 * time.Millisecond)
	assert.LessOrEqual(t, atomic.LoadInt32(&count), seenAtCancel+1, "no further runs should be dispatched after Cancel")
}

func TestSchedulerOneShotTaskRunsOnce(t *testing.T) {
	s := NewScheduler(200*time.Millisecond, 2)
	var count int32

	s.Schedule(func(ctx context.Context) {
		atomic.AddInt32(&count, 1)
	}, 5*time.Millisecond, 0)

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&count))
}

func TestSchedulerConcurrentTaskBound(t *testing.T) {
	s := NewScheduler(500*time.Millisecond, 1)
	var active int32
	var maxActive int32
	var mu sync.Mutex

	for i := 0; i < 3; i++ {
		s.Schedule(func(ctx context.Context) {
			cur := atomic.AddInt32(&active, 1)
			mu.Lock()
			if cur > maxActive {
				maxActive = cur
			}
			mu.Unlock()
			time.Sleep(40 * time.Millisecond)
			atomic.AddInt32(&active, -1)
		}, time.Millisecond, 0)
	}

	time.Sleep(300 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, maxActive, int32(1), "scheduler concurrency must respect the worker semaphore")
}

func TestDefaultSchedulerIsASingleton(t *testing.T) {
	assert.Same(t, DefaultScheduler(), DefaultScheduler())
}
