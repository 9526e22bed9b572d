// Package pool implements a generic, concurrency-safe object pool modeled on
// Apache Commons Pool 2: a PooledEntry state machine, a fair blocking idle
// deque, a shared background eviction scheduler, and both an unkeyed
// SinglePool and a sharded KeyedPool built on the same primitives. Callers
// plug in resource lifecycle behavior through the five-hook Factory
// contract (Create, Activate, Validate, Passivate, Destroy); the pool owns
// borrowing, returning, idle-time eviction, and abandoned-entry recovery.
package pool
