package pool

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// schedTask is one periodic job registered with a Scheduler.
type schedTask struct {
	id        int64
	fn        func(ctx context.Context)
	nextRun   time.Time
	period    time.Duration
	cancelled bool
}

// Handle cancels a task scheduled with Scheduler.Schedule. Cancellation is
// cooperative (spec.md §4.3): a sweep already running completes, but no
// further run is dispatched.
type Handle struct {
	id int64
	s  *Scheduler
}

func (h *Handle) Cancel() {
	h.s.cancel(h.id)
}

// Scheduler is the process-wide periodic task runner spec.md §4.3
// describes, shared by every SinglePool/KeyedPool that enables eviction. A
// single dispatch goroutine decides what is due; actual task bodies run on
// a small bounded worker pool (golang.org/x/sync/semaphore) so one slow
// factory sweep cannot starve another pool's evictor. The dispatch
// goroutine starts lazily on the first Schedule call and exits
// idleShutdown after the last task is cancelled, per spec.md's stated
// rationale of not pinning a background goroutine for pools that only
// enable eviction briefly.
type Scheduler struct {
	mu           sync.Mutex
	tasks        map[int64]*schedTask
	nextID       int64
	running      bool
	wake         chan struct{}
	idleShutdown time.Duration
	sem          *semaphore.Weighted
}

// NewScheduler creates a scheduler with its own dispatch goroutine
// lifecycle and a worker concurrency bound of maxConcurrentTasks. Most
// callers should use DefaultScheduler rather than constructing their own,
// but an explicit, injectable scheduler is useful for tests and for
// isolating pools that must not share a background goroutine
// (spec.md §9's "explicit, injectable scheduler handle" design note).
func NewScheduler(idleShutdown time.Duration, maxConcurrentTasks int64) *Scheduler {
	if maxConcurrentTasks < 1 {
		maxConcurrentTasks = 4
	}
	return &Scheduler{
		tasks:        make(map[int64]*schedTask),
		wake:         make(chan struct{}, 1),
		idleShutdown: idleShutdown,
		sem:          semaphore.NewWeighted(maxConcurrentTasks),
	}
}

var defaultSchedulerOnce sync.Once
var defaultScheduler *Scheduler

// DefaultScheduler returns the lazily-initialized process-wide scheduler
// singleton spec.md §9 allows as "a convenience" default.
func DefaultScheduler() *Scheduler {
	defaultSchedulerOnce.Do(func() {
		defaultScheduler = NewScheduler(defaultSchedulerIdleShutdownPeriod, 4)
	})
	return defaultScheduler
}

// Schedule registers fn to run once after initialDelay, then every period
// thereafter. period <= 0 means run exactly once. Returns a Handle whose
// Cancel stops future runs.
func (s *Scheduler) Schedule(fn func(ctx context.Context), initialDelay, period time.Duration) *Handle {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.tasks[id] = &schedTask{
		id:      id,
		fn:      fn,
		nextRun: time.Now().Add(initialDelay),
		period:  period,
	}
	needStart := !s.running
	if needStart {
		s.running = true
	}
	s.mu.Unlock()

	if needStart {
		go s.run()
	} else {
		s.notifyWake()
	}
	return &Handle{id: id, s: s}
}

func (s *Scheduler) cancel(id int64) {
	s.mu.Lock()
	if t, ok := s.tasks[id]; ok {
		t.cancelled = true
		delete(s.tasks, id)
	}
	s.mu.Unlock()
	s.notifyWake()
}

func (s *Scheduler) notifyWake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// run is the single dispatch goroutine. It sleeps until the earliest due
// task, hands due tasks off to bounded worker goroutines, and exits after
// idleShutdown of having nothing left to schedule.
func (s *Scheduler) run() {
	idleTimer := time.NewTimer(s.idleShutdown)
	defer idleTimer.Stop()
	sleepTimer := time.NewTimer(time.Hour)
	defer sleepTimer.Stop()

	for {
		next, hasTasks := s.nextDeadline()
		if !hasTasks {
			if !idleTimer.Stop() {
				select {
				case <-idleTimer.C:
				default:
				}
			}
			idleTimer.Reset(s.idleShutdown)
			select {
			case <-idleTimer.C:
				s.mu.Lock()
				if len(s.tasks) == 0 {
					s.running = false
					s.mu.Unlock()
					return
				}
				s.mu.Unlock()
				continue
			case <-s.wake:
				continue
			}
		}

		d := time.Until(next)
		if d < 0 {
			d = 0
		}
		if !sleepTimer.Stop() {
			select {
			case <-sleepTimer.C:
			default:
			}
		}
		sleepTimer.Reset(d)

		select {
		case <-sleepTimer.C:
			s.dispatchDue()
		case <-s.wake:
			continue
		}
	}
}

func (s *Scheduler) nextDeadline() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var earliest time.Time
	found := false
	for _, t := range s.tasks {
		if t.cancelled {
			continue
		}
		if !found || t.nextRun.Before(earliest) {
			earliest = t.nextRun
			found = true
		}
	}
	return earliest, found
}

func (s *Scheduler) dispatchDue() {
	now := time.Now()
	var due []*schedTask
	s.mu.Lock()
	for _, t := range s.tasks {
		if t.cancelled {
			continue
		}
		if !t.nextRun.After(now) {
			due = append(due, t)
			if t.period > 0 {
				t.nextRun = now.Add(t.period)
			} else {
				t.cancelled = true
				delete(s.tasks, t.id)
			}
		}
	}
	s.mu.Unlock()

	ctx := context.Background()
	for _, t := range due {
		t := t
		if err := s.sem.Acquire(ctx, 1); err != nil {
			continue
		}
		go func() {
			defer s.sem.Release(1)
			t.fn(ctx)
		}()
	}
}
