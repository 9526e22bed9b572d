// Package collections implements the bounded, blocking, FIFO-fair deque and
// the identity-keyed concurrent map the pool needs, the same two data
// structures the teacher's github.com/jolestar/go-commons-pool/collections
// package provided as LinkedBlockingDeque and SyncIdentityMap.
package collections

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// waiter is a single parked PollFirstWait/TakeFirst call. Waiters are
// served in the order they parked: IdleDeque keeps them in a FIFO list and
// always hands a newly offered element to the head of that list.
type waiter[E any] struct {
	ch   chan E
	done chan struct{} // closed by InterruptTakeWaiters to wake without a value
}

// IdleDeque is a bounded double-ended queue of idle pool entries. It
// implements the fairness contract of spec.md §4.2: the longest-parked
// waiter receives the next offered element, never one that arrived more
// recently.
type IdleDeque[E comparable] struct {
	mu       sync.Mutex
	items    *list.List // list.Element.Value is E
	waiters  *list.List // list.Element.Value is *waiter[E]
	capacity int
}

// NewIdleDeque creates an idle deque bounded at capacity elements. A
// non-positive capacity means unbounded, mirroring the teacher's
// collections.NewDeque(math.MaxInt32) convention for "no idle cap".
func NewIdleDeque[E comparable](capacity int) *IdleDeque[E] {
	return &IdleDeque[E]{
		items:    list.New(),
		waiters:  list.New(),
		capacity: capacity,
	}
}

// AddFirst enqueues e at the head. If a waiter is parked, it is woken with e
// directly and e never touches the backing list. Returns false if the deque
// is at capacity and no waiter could accept e immediately.
func (d *IdleDeque[E]) AddFirst(e E) bool {
	return d.offer(e, true)
}

// AddLast enqueues e at the tail, with the same waiter hand-off semantics as
// AddFirst.
func (d *IdleDeque[E]) AddLast(e E) bool {
	return d.offer(e, false)
}

func (d *IdleDeque[E]) offer(e E, front bool) bool {
	d.mu.Lock()
	if w := d.waiters.Front(); w != nil {
		d.waiters.Remove(w)
		ch := w.Value.(*waiter[E]).ch
		d.mu.Unlock()
		ch <- e
		return true
	}
	if d.capacity > 0 && d.items.Len() >= d.capacity {
		d.mu.Unlock()
		return false
	}
	if front {
		d.items.PushFront(e)
	} else {
		d.items.PushBack(e)
	}
	d.mu.Unlock()
	return true
}

// PollFirst removes and returns the head element without blocking.
func (d *IdleDeque[E]) PollFirst() (E, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.popFrontLocked()
}

func (d *IdleDeque[E]) popFrontLocked() (E, bool) {
	front := d.items.Front()
	if front == nil {
		var zero E
		return zero, false
	}
	d.items.Remove(front)
	return front.Value.(E), true
}

// TakeFirst blocks until an element is available, the deque is interrupted,
// or ctx is cancelled.
func (d *IdleDeque[E]) TakeFirst(ctx context.Context) (E, error) {
	v, ok, err := d.pollFirstWait(ctx, -1)
	if err != nil {
		var zero E
		return zero, err
	}
	if !ok {
		var zero E
		return zero, context.Canceled
	}
	return v, nil
}

// PollFirstWait blocks up to timeout for an element (timeout < 0 means no
// deadline, equivalent to TakeFirst). ok is false on a plain timeout; err is
// non-nil only when ctx was cancelled or the deque was interrupted via
// InterruptTakeWaiters, which the pool surfaces as InterruptedErr/ClosedErr
// respectively.
func (d *IdleDeque[E]) PollFirstWait(ctx context.Context, timeout time.Duration) (E, bool, error) {
	return d.pollFirstWait(ctx, timeout)
}

func (d *IdleDeque[E]) pollFirstWait(ctx context.Context, timeout time.Duration) (E, bool, error) {
	d.mu.Lock()
	if v, ok := d.popFrontLocked(); ok {
		d.mu.Unlock()
		return v, true, nil
	}
	w := &waiter[E]{ch: make(chan E, 1), done: make(chan struct{})}
	elem := d.waiters.PushBack(w)
	d.mu.Unlock()

	var timeoutCh <-chan struct{}
	if timeout >= 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case v := <-w.ch:
		return v, true, nil
	case <-w.done:
		var zero E
		return zero, false, context.Canceled
	case <-ctx.Done():
		if !d.abandonWaiter(elem) {
			// offer() had already removed us from the waiters list and
			// committed to delivering on w.ch before we got here; the
			// value is in flight and must not be dropped on the floor.
			d.AddFirst(<-w.ch)
		}
		var zero E
		return zero, false, ctx.Err()
	case <-timeoutCh:
		if !d.abandonWaiter(elem) {
			d.AddFirst(<-w.ch)
		}
		var zero E
		return zero, false, nil
	}
}

// abandonWaiter removes elem from the waiters list if it is still parked
// there, returning true. It returns false if offer() has already claimed
// the waiter by removing it from the list: in that case a value is (or is
// about to be) in flight on the waiter's channel, and the caller must
// receive it and requeue it rather than treat this as a plain timeout.
func (d *IdleDeque[E]) abandonWaiter(elem *list.Element) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for e := d.waiters.Front(); e != nil; e = e.Next() {
		if e == elem {
			d.waiters.Remove(e)
			return true
		}
	}
	return false
}

// RemoveFirstOccurrence removes e by identity from anywhere in the deque.
// O(n), acceptable per spec.md §4.2.
func (d *IdleDeque[E]) RemoveFirstOccurrence(e E) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for el := d.items.Front(); el != nil; el = el.Next() {
		if el.Value.(E) == e {
			d.items.Remove(el)
			return true
		}
	}
	return false
}

// Size returns the number of idle elements currently queued (not counting
// parked waiters).
func (d *IdleDeque[E]) Size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.items.Len()
}

// TakeQueueLength returns the number of goroutines currently parked in
// TakeFirst/PollFirstWait, exposed for the keyed pool's reuse-capacity
// heuristic (spec.md §4.5.4).
func (d *IdleDeque[E]) TakeQueueLength() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.waiters.Len()
}

func (d *IdleDeque[E]) HasTakeWaiters() bool {
	return d.TakeQueueLength() > 0
}

// InterruptTakeWaiters wakes every currently parked waiter without handing
// it an element. Used by Close to resolve spec.md §5's open question in
// favor of waking parked borrowers with a closed-pool error.
func (d *IdleDeque[E]) InterruptTakeWaiters() {
	d.mu.Lock()
	var woken []*waiter[E]
	for e := d.waiters.Front(); e != nil; e = e.Next() {
		woken = append(woken, e.Value.(*waiter[E]))
	}
	d.waiters.Init()
	d.mu.Unlock()
	for _, w := range woken {
		close(w.done)
	}
}

// Iterator returns a head-to-tail snapshot for eviction traversal
// (FIFO reuse order).
func (d *IdleDeque[E]) Iterator() []E {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]E, 0, d.items.Len())
	for el := d.items.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value.(E))
	}
	return out
}

// DescendingIterator returns a tail-to-head snapshot (LIFO reuse order),
// used when the pool is configured LIFO so eviction still walks
// oldest-first relative to reuse order.
func (d *IdleDeque[E]) DescendingIterator() []E {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]E, 0, d.items.Len())
	for el := d.items.Back(); el != nil; el = el.Prev() {
		out = append(out, el.Value.(E))
	}
	return out
}
