package central

import (
	"sync"
	"sync/atomic"
)

// DispatchFunc receives every event published while its Subscription is live.
// Calling done finishes the subscription; no event is delivered after that.
type DispatchFunc func(ev Event, done func())

// Subscription is a filter-and-dispatch registration on a Bus.
//
// A Subscription finishes exactly once, either through the done signal handed
// to its DispatchFunc or through Cancel. The completion hook runs on whichever
// path finishes first; the other path is a no-op.
type Subscription struct {
	id         string
	dispatch   DispatchFunc
	onComplete func()
	detach     func(id string)

	// deliverMu serializes dispatch. finish never takes it, so a dispatch
	// blocked on a slow consumer can still be released by Cancel.
	deliverMu sync.Mutex
	finished  atomic.Bool
	done      chan struct{}
}

func newSubscription(id string, dispatch DispatchFunc, onComplete func(), detach func(string)) *Subscription {
	return &Subscription{
		id:         id,
		dispatch:   dispatch,
		onComplete: onComplete,
		detach:     detach,
		done:       make(chan struct{}),
	}
}

// ID returns the bus-unique identifier of the subscription.
func (s *Subscription) ID() string {
	return s.id
}

// Done returns a channel closed once the subscription has finished.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Finished reports whether the subscription has finished.
func (s *Subscription) Finished() bool {
	return s.finished.Load()
}

// Cancel finishes the subscription. It is idempotent and safe to call from any
// goroutine, including from inside the dispatch function.
func (s *Subscription) Cancel() {
	s.finish()
}

func (s *Subscription) deliver(ev Event) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	if s.finished.Load() {
		return
	}
	s.dispatch(ev, s.finish)
}

func (s *Subscription) finish() {
	if !s.finished.CompareAndSwap(false, true) {
		return
	}
	close(s.done)

	if s.detach != nil {
		s.detach(s.id)
	}
	if s.onComplete != nil {
		s.onComplete()
	}
}
