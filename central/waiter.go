package central

import (
	"context"
	"sync/atomic"
)

// WaiterState is the resolution state of a Waiter.
type WaiterState int32

const (
	WaiterPending WaiterState = iota
	waiterSettling
	WaiterSucceeded
	WaiterFailed
	WaiterCancelled
)

func (s WaiterState) String() string {
	switch s {
	case WaiterPending, waiterSettling:
		return "pending"
	case WaiterSucceeded:
		return "succeeded"
	case WaiterFailed:
		return "failed"
	case WaiterCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Waiter is a single-resolution slot backing a one-shot bridge call.
//
// The first of Succeed, Fail or Cancel wins; every later attempt returns false
// and leaves the recorded outcome untouched.
type Waiter[T any] struct {
	state atomic.Int32
	value T
	err   error
	done  chan struct{}
}

// NewWaiter creates a pending Waiter.
func NewWaiter[T any]() *Waiter[T] {
	return &Waiter[T]{done: make(chan struct{})}
}

// Succeed resolves the waiter with v.
func (w *Waiter[T]) Succeed(v T) bool {
	return w.settle(WaiterSucceeded, v, nil)
}

// Fail resolves the waiter with err.
func (w *Waiter[T]) Fail(err error) bool {
	var zero T
	return w.settle(WaiterFailed, zero, err)
}

// Cancel resolves the waiter as cancelled; cause is what Result reports.
func (w *Waiter[T]) Cancel(cause error) bool {
	if cause == nil {
		cause = context.Canceled
	}
	var zero T
	return w.settle(WaiterCancelled, zero, cause)
}

// Resolve settles the waiter from a (value, error) completion pair.
func (w *Waiter[T]) Resolve(v T, err error) bool {
	if err != nil {
		return w.Fail(err)
	}
	return w.Succeed(v)
}

// State returns the current resolution state.
func (w *Waiter[T]) State() WaiterState {
	s := WaiterState(w.state.Load())
	if s == waiterSettling {
		return WaiterPending
	}
	return s
}

// Done returns a channel closed once the waiter has been resolved.
func (w *Waiter[T]) Done() <-chan struct{} {
	return w.done
}

// Result returns the recorded outcome. It must only be called after Done is closed.
func (w *Waiter[T]) Result() (T, error) {
	return w.value, w.err
}

// Wait blocks until the waiter is resolved or ctx is done. When ctx wins the
// race the waiter is cancelled with ctx's cause and onCancel, if not nil, runs
// exactly once before Wait returns. When a real resolution wins, onCancel is
// never called.
func (w *Waiter[T]) Wait(ctx context.Context, onCancel func()) (T, error) {
	select {
	case <-w.done:
	case <-ctx.Done():
		if w.Cancel(context.Cause(ctx)) && onCancel != nil {
			onCancel()
		}
		<-w.done
	}
	return w.Result()
}

func (w *Waiter[T]) settle(final WaiterState, v T, err error) bool {
	if !w.state.CompareAndSwap(int32(WaiterPending), int32(waiterSettling)) {
		return false
	}
	w.value = v
	w.err = err
	w.state.Store(int32(final))
	close(w.done)
	return true
}
