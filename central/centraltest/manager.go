// Package centraltest provides a scriptable central.Manager for tests.
package centraltest

import (
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"github.com/srg/blecentral/central"
	"github.com/stretchr/testify/mock"
)

// Manager is a testify mock implementing central.Manager.
//
// Every method records its call, so tests can use AssertCalled and
// AssertNumberOfCalls. Completions handed to Connect and CancelConnection are
// kept until the test fires them with CompleteConnect / CompleteCancel, which
// lets tests decide on which goroutine and in which order the manager calls
// back. Completions are kept after firing so a test can fire them twice.
type Manager struct {
	mock.Mock

	bus      *central.Bus
	ready    atomic.Bool
	scanning atomic.Bool

	mu       sync.Mutex
	connects map[string]func(central.Peripheral, error)
	cancels  map[string]func(error)
}

// NewManager creates a not-ready Manager with permissive expectations for every method.
func NewManager(logger *logrus.Logger) *Manager {
	m := &Manager{
		bus:      central.NewBus(logger),
		connects: make(map[string]func(central.Peripheral, error)),
		cancels:  make(map[string]func(error)),
	}

	m.On("Connect", mock.Anything, mock.Anything).Return()
	m.On("CancelConnection", mock.Anything).Return()
	m.On("StartScan", mock.Anything, mock.Anything).Return()
	m.On("StopScan").Return()
	return m
}

func (m *Manager) Bus() *central.Bus {
	return m.bus
}

func (m *Manager) IsReady() bool {
	return m.ready.Load()
}

func (m *Manager) Connect(p central.Peripheral, opts *central.ConnectOptions, completion func(central.Peripheral, error)) {
	m.mu.Lock()
	m.connects[p.ID] = completion
	m.mu.Unlock()
	m.Called(p, opts)
}

func (m *Manager) CancelConnection(p central.Peripheral, completion func(error)) {
	m.mu.Lock()
	m.cancels[p.ID] = completion
	m.mu.Unlock()
	m.Called(p)
}

func (m *Manager) StartScan(filter *central.ScanFilter, opts *central.ScanOptions) {
	m.Called(filter, opts)
	m.scanning.Store(true)
}

func (m *Manager) StopScan() {
	m.scanning.Store(false)
	m.Called()
}

// SetReady changes the radio state and publishes ReadyStateChanged.
func (m *Manager) SetReady(state central.State) {
	m.ready.Store(state.Ready())
	m.bus.Publish(central.ReadyStateChanged{State: state})
}

// Scanning reports whether StartScan was called more recently than StopScan.
func (m *Manager) Scanning() bool {
	return m.scanning.Load()
}

// PendingConnect reports whether Connect has been called for id.
func (m *Manager) PendingConnect(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.connects[id]
	return ok
}

// PendingCancel reports whether CancelConnection has been called for id.
func (m *Manager) PendingCancel(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.cancels[id]
	return ok
}

// CompleteConnect publishes Connected or FailedToConnect and fires the
// completion recorded for id. It returns false if Connect was never called.
func (m *Manager) CompleteConnect(id string, p central.Peripheral, err error) bool {
	m.mu.Lock()
	completion, ok := m.connects[id]
	m.mu.Unlock()
	if !ok {
		return false
	}

	if err != nil {
		m.bus.Publish(central.FailedToConnect{Peripheral: p, Err: err})
	} else {
		m.bus.Publish(central.Connected{Peripheral: p})
	}
	completion(p, err)
	return true
}

// CompleteCancel publishes CancelledConnection and fires the completion
// recorded for id. It returns false if CancelConnection was never called.
func (m *Manager) CompleteCancel(id string, err error) bool {
	m.mu.Lock()
	completion, ok := m.cancels[id]
	m.mu.Unlock()
	if !ok {
		return false
	}

	m.bus.Publish(central.CancelledConnection{Peripheral: central.Peripheral{ID: id}, Err: err})
	completion(err)
	return true
}

// Discover publishes a Discovered event.
func (m *Manager) Discover(p central.Peripheral, adv central.Advertisement, rssi float64) {
	m.bus.Publish(central.Discovered{Peripheral: p, Advertisement: adv, RSSI: rssi})
}

// EndScan publishes StopScan, as a manager does when its scan ends on its own.
func (m *Manager) EndScan() {
	m.bus.Publish(central.StopScan{})
}

// Close marks the manager not ready and closes its bus.
func (m *Manager) Close() error {
	m.ready.Store(false)
	m.bus.Close()
	return nil
}
