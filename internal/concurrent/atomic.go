// Package concurrent provides the small set of atomic counter helpers the
// pool needs, named after java.util.concurrent.atomic.AtomicInteger the way
// the teacher's github.com/jolestar/go-commons-pool/concurrent package did.
package concurrent

import "sync/atomic"

// AtomicInt is a monotonic-capable int64 counter safe for concurrent use.
type AtomicInt struct {
	v atomic.Int64
}

func (a *AtomicInt) Get() int64 {
	return a.v.Load()
}

func (a *AtomicInt) Set(n int64) {
	a.v.Store(n)
}

func (a *AtomicInt) IncrementAndGet() int64 {
	return a.v.Add(1)
}

func (a *AtomicInt) DecrementAndGet() int64 {
	return a.v.Add(-1)
}

func (a *AtomicInt) AddAndGet(delta int64) int64 {
	return a.v.Add(delta)
}

func (a *AtomicInt) CompareAndSet(old, new int64) bool {
	return a.v.CompareAndSwap(old, new)
}

// AtomicBool is a CAS-capable boolean flag.
type AtomicBool struct {
	v atomic.Bool
}

func (a *AtomicBool) Get() bool {
	return a.v.Load()
}

func (a *AtomicBool) Set(b bool) {
	a.v.Store(b)
}

func (a *AtomicBool) CompareAndSet(old, new bool) bool {
	return a.v.CompareAndSwap(old, new)
}
