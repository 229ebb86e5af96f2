// Package lazy defers expensive initialisation (model loading) to first use.
package lazy

import (
	"context"
	"sync"
	"sync/atomic"
)

// Value holds a T produced on first Get. Concurrent first calls share one
// initialisation; a failed initialisation is not cached and runs again on the
// next Get.
type Value[T any] struct {
	mu   sync.Mutex
	init func(ctx context.Context) (T, error)
	v    atomic.Pointer[T]
}

// New returns a Value that runs init on first use.
func New[T any](init func(ctx context.Context) (T, error)) *Value[T] {
	return &Value[T]{init: init}
}

// Get returns the value, initialising it if needed.
func (l *Value[T]) Get(ctx context.Context) (T, error) {
	if p := l.v.Load(); p != nil {
		return *p, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if p := l.v.Load(); p != nil {
		return *p, nil
	}
	v, err := l.init(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	l.v.Store(&v)
	return v, nil
}

// Ready reports whether initialisation has succeeded.
func (l *Value[T]) Ready() bool {
	return l.v.Load() != nil
}

// Close calls release on the value if it was initialised. A Get running
// concurrently either sees the old value or initialises a new one.
func (l *Value[T]) Close(release func(T) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	p := l.v.Swap(nil)
	if p == nil {
		return nil
	}
	return release(*p)
}
