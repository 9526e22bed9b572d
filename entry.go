package pool

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/liangfflia/genpool/internal/collections"
)

// State is one of the five states a PooledEntry can occupy, spec.md §4.1.
type State int

const (
	StateIdle State = iota
	StateAllocated
	StateEvictionTest
	StateEvictionTestReturnToHead
	StateInvalid
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateAllocated:
		return "ALLOCATED"
	case StateEvictionTest:
		return "EVICTION_TEST"
	case StateEvictionTestReturnToHead:
		return "EVICTION_TEST_RETURN_TO_HEAD"
	case StateInvalid:
		return "INVALID"
	default:
		return "UNKNOWN"
	}
}

// PooledEntry wraps a single user-owned value of type T with the state
// machine and timestamps of spec.md §3/§4.1. All transitions are guarded by
// a per-entry mutex; the pool never holds its own lock while calling into
// an entry, and an entry never calls back into factory code.
type PooledEntry[T comparable] struct {
	Object T

	id uuid.UUID

	mu        sync.Mutex
	state     State
	returning bool // set by BeginReturn, cleared by Deallocate

	createdAt      time.Time
	lastBorrowedAt time.Time
	lastReturnedAt time.Time
}

// NewPooledEntry wraps obj, fresh out of Factory.Create, in the Idle state.
func NewPooledEntry[T comparable](obj T) *PooledEntry[T] {
	now := time.Now()
	return &PooledEntry[T]{
		Object:         obj,
		id:             uuid.New(),
		state:          StateIdle,
		createdAt:      now,
		lastReturnedAt: now,
	}
}

func (e *PooledEntry[T]) ID() string {
	return e.id.String()
}

func (e *PooledEntry[T]) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Allocate transitions Idle->Allocated for a borrow. If the entry is
// currently under eviction test it instead records
// EvictionTestReturnToHead and reports failure: the caller must skip this
// entry and keep looking, per spec.md §4.1's table.
func (e *PooledEntry[T]) Allocate() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch e.state {
	case StateIdle:
		e.state = StateAllocated
		e.lastBorrowedAt = time.Now()
		return true
	case StateEvictionTest:
		e.state = StateEvictionTestReturnToHead
		return false
	default:
		return false
	}
}

// Deallocate transitions Allocated->Idle on return. Returns false if the
// entry was not Allocated, i.e. a double return.
func (e *PooledEntry[T]) Deallocate() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateAllocated {
		return false
	}
	e.state = StateIdle
	e.lastReturnedAt = time.Now()
	e.returning = false
	return true
}

// BeginReturn atomically checks that the entry is Allocated and flags it as
// mid-return, so a concurrent abandoned sweep cannot race in and invalidate
// it between validate/passivate and Deallocate. Returns false if the entry
// was not Allocated (a double return). Grounded on the teacher's
// state-check-then-markReturning sequence in pool.go's ReturnObject, done
// here under a single lock acquisition to close the check-then-act race the
// teacher's two separate locked sections left open.
func (e *PooledEntry[T]) BeginReturn() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateAllocated {
		return false
	}
	e.returning = true
	return true
}

// StartEvictionTest leases the entry to the evictor: Idle->EvictionTest.
func (e *PooledEntry[T]) StartEvictionTest() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateIdle {
		return false
	}
	e.state = StateEvictionTest
	return true
}

// EndEvictionTest releases the evictor's lease. If a borrower raced the
// evictor (EvictionTestReturnToHead), the entry is re-queued at the head of
// idle instead of wherever the evictor's cursor would otherwise leave it.
func (e *PooledEntry[T]) EndEvictionTest(idle *collections.IdleDeque[*PooledEntry[T]]) bool {
	e.mu.Lock()
	switch e.state {
	case StateEvictionTest:
		e.state = StateIdle
		e.mu.Unlock()
		return true
	case StateEvictionTestReturnToHead:
		e.state = StateIdle
		e.mu.Unlock()
		idle.AddFirst(e)
		return true
	default:
		e.mu.Unlock()
		return false
	}
}

// Invalidate forces the entry to the terminal Invalid state. No further
// transitions are legal afterward.
func (e *PooledEntry[T]) Invalidate() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = StateInvalid
}

// InvalidateIfLive transitions to Invalid and reports true only if the
// entry was not already Invalid, atomically. Callers use this to decide
// whether they -- and not a racing caller -- are the one responsible for
// destroying the entry exactly once (spec.md §4.4.3's single-destroy
// guarantee).
func (e *PooledEntry[T]) InvalidateIfLive() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateInvalid {
		return false
	}
	e.state = StateInvalid
	return true
}

// IsAbandonable reports whether the entry is Allocated, not mid-return, and
// has been borrowed for longer than timeout -- the condition the abandoned
// object sweep (SPEC_FULL.md §4) tests.
func (e *PooledEntry[T]) IsAbandonable(timeout time.Duration, now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateAllocated || e.returning {
		return false
	}
	return now.Sub(e.lastBorrowedAt) > timeout
}

// IdleDuration is now - lastReturnedAt, used by eviction policies.
func (e *PooledEntry[T]) IdleDuration(now time.Time) time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return now.Sub(e.lastReturnedAt)
}

// ActiveDuration is now - lastBorrowedAt while Allocated, else the last
// completed active span (lastReturnedAt - lastBorrowedAt).
func (e *PooledEntry[T]) ActiveDuration(now time.Time) time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateAllocated {
		return now.Sub(e.lastBorrowedAt)
	}
	return e.lastReturnedAt.Sub(e.lastBorrowedAt)
}

func (e *PooledEntry[T]) LastReturnedAt() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastReturnedAt
}

func (e *PooledEntry[T]) LastBorrowedAt() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastBorrowedAt
}

func (e *PooledEntry[T]) CreatedAt() time.Time {
	return e.createdAt
}
