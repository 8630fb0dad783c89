// Package inflight coalesces concurrent identical computations.
package inflight

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Registry guarantees at most one running computation per key. Callers that
// arrive while a computation is pending join it and receive the same result.
// The entry is removed as soon as the computation returns, fails or panics.
type Registry[T any] struct {
	group singleflight.Group

	mu      sync.Mutex
	pending map[string]int
}

// New creates an empty registry
func New[T any]() *Registry[T] {
	return &Registry[T]{pending: make(map[string]int)}
}

// Do runs compute under key unless a computation for key is already
// pending, in which case it waits for that one. shared reports whether the
// result was delivered to more than one caller.
//
// compute receives a context detached from the caller's cancellation so a
// caller that gives up does not abort the work for the callers that joined.
func (r *Registry[T]) Do(ctx context.Context, key string, compute func(ctx context.Context) (T, error)) (result T, shared bool, err error) {
	r.enter(key)
	defer r.leave(key)

	detached := context.WithoutCancel(ctx)
	v, err, shared := r.group.Do(key, func() (out any, err error) {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("inflight %s: panic: %v", key, p)
			}
		}()
		return compute(detached)
	})
	if v != nil {
		result = v.(T)
	}
	return result, shared, err
}

// Pending reports whether a computation for key is running
func (r *Registry[T]) Pending(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending[key] > 0
}

// Waiters returns the number of callers currently blocked on key
func (r *Registry[T]) Waiters(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending[key]
}

// Len returns the number of keys with a running computation
func (r *Registry[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

func (r *Registry[T]) enter(key string) {
	r.mu.Lock()
	r.pending[key]++
	r.mu.Unlock()
}

func (r *Registry[T]) leave(key string) {
	r.mu.Lock()
	if r.pending[key] <= 1 {
		delete(r.pending, key)
	} else {
		r.pending[key]--
	}
	r.mu.Unlock()
}
