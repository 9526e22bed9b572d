package pool

import "context"

// Factory is the five-hook contract spec.md §6.1 requires from callers of
// SinglePool. Every method may be invoked by any goroutine and must never
// be called by this package while a pool-wide lock is held (spec.md §4.1,
// §5); implementations are free to block.
type Factory[T comparable] interface {
	// Create makes a brand new instance. Fail-fast: any error is surfaced
	// to the borrower unchanged, wrapped as FactoryErr.
	Create(ctx context.Context) (T, error)
	// Destroy releases obj. Must not panic; log instead.
	Destroy(ctx context.Context, obj T)
	// Validate reports whether obj is still usable. Must be side-effect
	// free and must not panic.
	Validate(ctx context.Context, obj T) bool
	// Activate prepares obj to be handed to a borrower. Failure destroys
	// the entry.
	Activate(ctx context.Context, obj T) error
	// Passivate prepares obj to return to idle. Failure destroys the
	// entry.
	Passivate(ctx context.Context, obj T) error
}

// KeyedFactory is the keyed analogue of Factory, threading the sub-pool key
// as an explicit parameter to every hook rather than via a thread-local, the
// way spec.md §9 calls out the source's factory-adapter/thread-local wiring
// as a cyclic-reference hazard to avoid.
type KeyedFactory[K comparable, T comparable] interface {
	Create(ctx context.Context, key K) (T, error)
	Destroy(ctx context.Context, key K, obj T)
	Validate(ctx context.Context, key K, obj T) bool
	Activate(ctx context.Context, key K, obj T) error
	Passivate(ctx context.Context, key K, obj T) error
}

// FactoryFuncs is a struct-of-function-pointers adapter satisfying Factory,
// for callers who would rather not declare a named type, per the
// "dynamic dispatch on the factory" design note (SPEC_FULL.md / spec.md §9).
// A nil hook other than CreateFunc is a no-op/always-valid/always-ok.
type FactoryFuncs[T comparable] struct {
	CreateFunc    func(ctx context.Context) (T, error)
	DestroyFunc   func(ctx context.Context, obj T)
	ValidateFunc  func(ctx context.Context, obj T) bool
	ActivateFunc  func(ctx context.Context, obj T) error
	PassivateFunc func(ctx context.Context, obj T) error
}

func (f FactoryFuncs[T]) Create(ctx context.Context) (T, error) {
	return f.CreateFunc(ctx)
}

func (f FactoryFuncs[T]) Destroy(ctx context.Context, obj T) {
	if f.DestroyFunc != nil {
		f.DestroyFunc(ctx, obj)
	}
}

func (f FactoryFuncs[T]) Validate(ctx context.Context, obj T) bool {
	if f.ValidateFunc == nil {
		return true
	}
	return f.ValidateFunc(ctx, obj)
}

func (f FactoryFuncs[T]) Activate(ctx context.Context, obj T) error {
	if f.ActivateFunc == nil {
		return nil
	}
	return f.ActivateFunc(ctx, obj)
}

func (f FactoryFuncs[T]) Passivate(ctx context.Context, obj T) error {
	if f.PassivateFunc == nil {
		return nil
	}
	return f.PassivateFunc(ctx, obj)
}

// KeyedFactoryFuncs is the keyed analogue of FactoryFuncs.
type KeyedFactoryFuncs[K comparable, T comparable] struct {
	CreateFunc    func(ctx context.Context, key K) (T, error)
	DestroyFunc   func(ctx context.Context, key K, obj T)
	ValidateFunc  func(ctx context.Context, key K, obj T) bool
	ActivateFunc  func(ctx context.Context, key K, obj T) error
	PassivateFunc func(ctx context.Context, key K, obj T) error
}

func (f KeyedFactoryFuncs[K, T]) Create(ctx context.Context, key K) (T, error) {
	return f.CreateFunc(ctx, key)
}

func (f KeyedFactoryFuncs[K, T]) Destroy(ctx context.Context, key K, obj T) {
	if f.DestroyFunc != nil {
		f.DestroyFunc(ctx, key, obj)
	}
}

func (f KeyedFactoryFuncs[K, T]) Validate(ctx context.Context, key K, obj T) bool {
	if f.ValidateFunc == nil {
		return true
	}
	return f.ValidateFunc(ctx, key, obj)
}

func (f KeyedFactoryFuncs[K, T]) Activate(ctx context.Context, key K, obj T) error {
	if f.ActivateFunc == nil {
		return nil
	}
	return f.ActivateFunc(ctx, key, obj)
}

func (f KeyedFactoryFuncs[K, T]) Passivate(ctx context.Context, key K, obj T) error {
	if f.PassivateFunc == nil {
		return nil
	}
	return f.PassivateFunc(ctx, key, obj)
}
