package central

import (
	"time"

	"github.com/sirupsen/logrus"
)

// ConnectOptions is passed through to Manager.Connect.
type ConnectOptions struct {
	ConnectTimeout time.Duration
}

// Manager is the callback-driven BLE central the bridge wraps.
//
// Completions and events may arrive on any goroutine. Each completion passed
// to Connect or CancelConnection is expected to be invoked once; extra
// invocations are ignored by the bridge.
type Manager interface {
	// Bus returns the event feed the manager publishes to.
	Bus() *Bus
	IsReady() bool
	Connect(p Peripheral, opts *ConnectOptions, completion func(Peripheral, error))
	CancelConnection(p Peripheral, completion func(error))
	StartScan(filter *ScanFilter, opts *ScanOptions)
	StopScan()
}

// Central adapts a Manager into blocking, context-cancellable calls and lazy
// scan sequences.
//
// Calls resume on whichever goroutine delivers the manager's completion;
// callers needing a particular goroutine must hand off themselves.
type Central struct {
	manager Manager
	bus     *Bus
	logger  *logrus.Logger
}

// New creates a Central over manager.
func New(manager Manager, logger *logrus.Logger) *Central {
	if logger == nil {
		logger = logrus.New()
	}

	return &Central{
		manager: manager,
		bus:     manager.Bus(),
		logger:  logger,
	}
}

// Manager returns the wrapped manager.
func (c *Central) Manager() Manager {
	return c.manager
}
