package central

import (
	"context"
)

// WaitUntilReady blocks until the manager reports a ready radio.
//
// When the manager is already ready it returns immediately without touching
// the bus. There is no compensating action: a done ctx only releases the
// caller, returning ctx's cause.
func (c *Central) WaitUntilReady(ctx context.Context) error {
	if c.manager.IsReady() {
		return nil
	}

	w := NewWaiter[struct{}]()
	sub := c.bus.Subscribe(func(ev Event, done func()) {
		changed, ok := ev.(ReadyStateChanged)
		if !ok || !changed.State.Ready() {
			return
		}
		done()
		if !w.Succeed(struct{}{}) {
			c.logger.Debug("Ready state change after waiter resolved, ignoring")
		}
	}, nil)
	defer sub.Cancel()

	// The state may have flipped between the first check and Subscribe.
	if c.manager.IsReady() {
		w.Succeed(struct{}{})
	}

	c.logger.Debug("Waiting for radio to become ready...")
	_, err := w.Wait(ctx, nil)
	return err
}
