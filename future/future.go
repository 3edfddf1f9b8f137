// Package future provides a minimal deferred value: a result that is
// produced by someone else, on their own schedule, and consumed by attaching
// continuations instead of blocking.
//
// A Future is completed exactly once. Continuations registered with
// [Future.OnComplete] run on the goroutine that completes the future (or
// immediately, on the caller's goroutine, when the future is already done),
// so they must be cheap.
package future

import (
	"context"
	"sync"
)

// Future holds a value of type V or an error that becomes available later.
type Future[V any] struct {
	mu        sync.Mutex
	done      chan struct{}
	val       V
	err       error
	callbacks []func(V, error)
}

// New returns a pending Future. The producer completes it with
// [Future.Complete], [Future.Resolve] or [Future.Fail].
func New[V any]() *Future[V] {
	return &Future[V]{done: make(chan struct{})}
}

// Resolved returns a Future that is already completed with v.
func Resolved[V any](v V) *Future[V] {
	f := New[V]()
	f.Complete(v, nil)
	return f
}

// Failed returns a Future that is already completed with err.
func Failed[V any](err error) *Future[V] {
	f := New[V]()
	var zero V
	f.Complete(zero, err)
	return f
}

// Go runs fn on a new goroutine and returns a Future for its result.
func Go[V any](ctx context.Context, fn func(context.Context) (V, error)) *Future[V] {
	f := New[V]()
	go func() {
		f.Complete(fn(ctx))
	}()
	return f
}

// Complete settles the future. Only the first call has an effect; it
// reports whether this call settled the future.
func (f *Future[V]) Complete(v V, err error) bool {
	f.mu.Lock()
	select {
	case <-f.done:
		f.mu.Unlock()
		return false
	default:
	}
	f.val, f.err = v, err
	callbacks := f.callbacks
	f.callbacks = nil
	close(f.done)
	f.mu.Unlock()

	for _, cb := range callbacks {
		cb(v, err)
	}
	return true
}

// Resolve completes the future successfully with v.
func (f *Future[V]) Resolve(v V) bool {
	return f.Complete(v, nil)
}

// Fail completes the future with err.
func (f *Future[V]) Fail(err error) bool {
	var zero V
	return f.Complete(zero, err)
}

// Done returns a channel that is closed once the future is completed.
func (f *Future[V]) Done() <-chan struct{} {
	return f.done
}

// Peek returns the result without blocking. ok is false while the future is
// still pending.
func (f *Future[V]) Peek() (v V, err error, ok bool) {
	select {
	case <-f.done:
		return f.val, f.err, true
	default:
		return v, nil, false
	}
}

// Await blocks until the future completes or ctx is done. It is meant for
// the outermost caller (a handler, a test); the caching core itself never
// calls it.
func (f *Future[V]) Await(ctx context.Context) (V, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

// OnComplete registers fn to run once the future is completed. If the
// future is already done fn runs immediately on the calling goroutine.
func (f *Future[V]) OnComplete(fn func(V, error)) {
	f.mu.Lock()
	select {
	case <-f.done:
		f.mu.Unlock()
		fn(f.val, f.err)
		return
	default:
	}
	f.callbacks = append(f.callbacks, fn)
	f.mu.Unlock()
}

// Pipe completes dst with the result of src once src completes.
func Pipe[V any](src, dst *Future[V]) {
	src.OnComplete(func(v V, err error) {
		dst.Complete(v, err)
	})
}

// Map returns a Future that completes with fn applied to the successful
// result of f. Errors pass through without calling fn.
func Map[V, W any](f *Future[V], fn func(V) W) *Future[W] {
	out := New[W]()
	f.OnComplete(func(v V, err error) {
		if err != nil {
			out.Fail(err)
			return
		}
		out.Resolve(fn(v))
	})
	return out
}

// Recover returns a Future that completes with the result of f, except that
// a failure is replaced by whatever fn returns for it.
func Recover[V any](f *Future[V], fn func(error) (V, error)) *Future[V] {
	out := New[V]()
	f.OnComplete(func(v V, err error) {
		if err != nil {
			out.Complete(fn(err))
			return
		}
		out.Resolve(v)
	})
	return out
}
