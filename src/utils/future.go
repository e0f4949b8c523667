package utils

import (
	"context"
	"sync"
)

// Future is a one-shot asynchronous result. It completes exactly once, either
// with a value or with an error, never both.
type Future[T any] struct {
	done  chan struct{}
	once  sync.Once
	value T
	err   error
}

// -----------------------------------------------------------------------------

func NewFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// -----------------------------------------------------------------------------

// Async runs fn on its own goroutine and completes the returned future with its
// result. The caller always observes completion asynchronously.
func Async[T any](fn func() (T, error)) *Future[T] {
	f := NewFuture[T]()
	go func() {
		v, err := fn()
		if err != nil {
			f.Reject(err)
			return
		}
		f.Resolve(v)
	}()
	return f
}

// -----------------------------------------------------------------------------

// Resolve completes the future with v. It reports false if already completed.
func (f *Future[T]) Resolve(v T) bool {
	completed := false
	f.once.Do(func() {
		f.value = v
		completed = true
		close(f.done)
	})
	return completed
}

// Reject completes the future with err. It reports false if already completed.
func (f *Future[T]) Reject(err error) bool {
	completed := false
	f.once.Do(func() {
		f.err = err
		completed = true
		close(f.done)
	})
	return completed
}

// -----------------------------------------------------------------------------

// Done is closed once the future has completed.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Await blocks until completion or until ctx is done.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Then invokes exactly one of onValue or onError on a separate goroutine once
// the future completes. Nil handlers are skipped.
func (f *Future[T]) Then(onValue func(T), onError func(error)) {
	go func() {
		<-f.done
		if f.err != nil {
			if onError != nil {
				onError(f.err)
			}
			return
		}
		if onValue != nil {
			onValue(f.value)
		}
	}()
}
