package central

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Connect asks the manager to connect to p and blocks until the attempt settles.
//
// The manager's failure is returned unchanged. If ctx is done before the
// manager calls back, CancelConnection is issued for p exactly once (its
// outcome is only logged) and Connect returns ctx's cause. A completion
// arriving after that is ignored.
func (c *Central) Connect(ctx context.Context, p Peripheral, opts *ConnectOptions) (Peripheral, error) {
	log := c.logger.WithField("peripheral", p.ID)
	log.Info("Connecting...")

	w := NewWaiter[Peripheral]()
	c.manager.Connect(p, opts, func(connected Peripheral, err error) {
		if !w.Resolve(connected, err) {
			log.WithField("state", w.State()).Debug("Connect completion after waiter resolved, ignoring")
		}
	})

	connected, err := w.Wait(ctx, func() {
		log.WithField("cause", context.Cause(ctx)).Info("Connect cancelled, cancelling peripheral connection")
		c.manager.CancelConnection(p, func(err error) {
			if err != nil {
				log.WithError(err).Warn("Compensating cancel-connection failed")
				return
			}
			log.Debug("Compensating cancel-connection completed")
		})
	})
	if err != nil {
		if w.State() == WaiterFailed {
			log.WithError(err).Error("Connect failed")
		}
		return Peripheral{}, err
	}

	log.WithFields(logrus.Fields{"name": connected.Name}).Info("Connected")
	return connected, nil
}

// CancelConnection asks the manager to tear down the connection to p and
// blocks until it reports the outcome. A done ctx only releases the caller.
func (c *Central) CancelConnection(ctx context.Context, p Peripheral) error {
	log := c.logger.WithField("peripheral", p.ID)
	log.Debug("Cancelling connection...")

	w := NewWaiter[struct{}]()
	c.manager.CancelConnection(p, func(err error) {
		if !w.Resolve(struct{}{}, err) {
			log.WithField("state", w.State()).Debug("Cancel-connection completion after waiter resolved, ignoring")
		}
	})

	if _, err := w.Wait(ctx, nil); err != nil {
		return err
	}
	log.Info("Connection cancelled")
	return nil
}
