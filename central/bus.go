package central

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Bus fans raw Manager events out to the live subscriptions.
//
// A Bus is created with its Manager and closed with it. Publish delivers
// synchronously on the calling goroutine, in registration order. Events are
// never buffered for subscriptions registered after they were published.
type Bus struct {
	logger *logrus.Logger

	mu     sync.RWMutex
	subs   *orderedmap.OrderedMap[string, *Subscription]
	closed bool

	published  atomic.Uint64
	subscribed atomic.Uint64
}

// BusStats is a snapshot of bus counters.
type BusStats struct {
	Published  uint64 // events published
	Subscribed uint64 // subscriptions ever registered
	Active     int    // live subscriptions
}

// NewBus creates an empty Bus.
func NewBus(logger *logrus.Logger) *Bus {
	if logger == nil {
		logger = logrus.New()
	}

	return &Bus{
		logger: logger,
		subs:   orderedmap.New[string, *Subscription](),
	}
}

// Subscribe registers dispatch to receive every event published from now on.
// onComplete may be nil. On a closed Bus the returned subscription is already
// finished and onComplete has run.
func (b *Bus) Subscribe(dispatch DispatchFunc, onComplete func()) *Subscription {
	sub := newSubscription(uuid.NewString(), dispatch, onComplete, b.detach)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		b.logger.WithField("subscription", sub.id).Debug("Subscribe on closed bus")
		sub.finish()
		return sub
	}
	b.subs.Set(sub.id, sub)
	b.mu.Unlock()
	b.subscribed.Add(1)

	return sub
}

// Publish delivers ev to every live subscription. Registration and
// cancellation may run concurrently with Publish.
func (b *Bus) Publish(ev Event) {
	b.published.Add(1)
	for _, sub := range b.snapshot() {
		b.deliver(sub, ev)
	}
}

// Len returns the number of live subscriptions.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.subs.Len()
}

// Stats returns the bus counters.
func (b *Bus) Stats() BusStats {
	return BusStats{
		Published:  b.published.Load(),
		Subscribed: b.subscribed.Load(),
		Active:     b.Len(),
	}
}

// Close cancels every live subscription and rejects later ones. Publishing
// after Close is a no-op.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := b.snapshotLocked()
	b.subs = orderedmap.New[string, *Subscription]()
	b.mu.Unlock()

	for _, sub := range subs {
		sub.Cancel()
	}
	b.logger.WithField("cancelled", len(subs)).Debug("Event bus closed")
}

func (b *Bus) snapshot() []*Subscription {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.snapshotLocked()
}

func (b *Bus) snapshotLocked() []*Subscription {
	subs := make([]*Subscription, 0, b.subs.Len())
	for pair := b.subs.Oldest(); pair != nil; pair = pair.Next() {
		subs = append(subs, pair.Value)
	}
	return subs
}

func (b *Bus) detach(id string) {
	b.mu.Lock()
	b.subs.Delete(id)
	b.mu.Unlock()
}

// deliver isolates a panicking dispatch so the remaining subscriptions still
// receive the event.
func (b *Bus) deliver(sub *Subscription, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.WithFields(logrus.Fields{
				"subscription": sub.id,
				"event":        ev.Kind(),
				"panic":        r,
			}).Error("Subscription dispatch panicked")
		}
	}()
	sub.deliver(ev)
}
