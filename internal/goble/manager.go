package goble

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/blecentral/central"
	"github.com/srg/blecentral/internal/groutine"
	"go.uber.org/multierr"
)

// DefaultConnectTimeout applies when ConnectOptions carry no timeout.
const DefaultConnectTimeout = 30 * time.Second

// errConnectCancelled is the cause recorded on a dial aborted by CancelConnection.
var errConnectCancelled = errors.New("connection attempt cancelled")

// link is the part of ble.Client the manager needs once connected.
type link interface {
	CancelConnection() error
	Disconnected() <-chan struct{}
}

type scanFunc func(ctx context.Context, allowDup bool, handler func(advertisement)) error

type dialFunc func(ctx context.Context, address string) (link, error)

// dialing is a connection attempt in flight; compared by pointer.
type dialing struct {
	abort context.CancelCauseFunc
}

// Manager implements central.Manager on top of a go-ble device.
//
// All completions and bus events are delivered from the manager's own
// goroutines, never from the caller of Connect, CancelConnection or StartScan,
// except for requests rejected up front.
type Manager struct {
	bus    *central.Bus
	logger *logrus.Logger
	state  atomic.Int32

	scan scanFunc
	dial dialFunc
	stop func() error // releases the device; nil in tests

	ctx    context.Context
	cancel context.CancelFunc

	scanMu     sync.Mutex
	scanCancel context.CancelFunc
	scanGen    uint64

	// connMu guards transitions between pending and links; lookups use the maps directly.
	connMu  sync.Mutex
	pending *hashmap.Map[string, *dialing]
	links   *hashmap.Map[string, link]
}

// NewManager opens the platform BLE device through DeviceFactory.
func NewManager(logger *logrus.Logger) (*Manager, error) {
	dev, err := DeviceFactory()
	if err != nil {
		return nil, fmt.Errorf("failed to create BLE device: %w", central.NormalizeError(err))
	}

	m := newManager(
		func(ctx context.Context, allowDup bool, handler func(advertisement)) error {
			return dev.Scan(ctx, allowDup, func(adv ble.Advertisement) {
				handler(adv)
			})
		},
		func(ctx context.Context, address string) (link, error) {
			client, err := dev.Dial(ctx, ble.NewAddr(address))
			if err != nil {
				return nil, err
			}
			return client, nil
		},
		logger,
	)
	m.stop = dev.Stop
	return m, nil
}

func newManager(scan scanFunc, dial dialFunc, logger *logrus.Logger) *Manager {
	if logger == nil {
		logger = logrus.New()
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		bus:     central.NewBus(logger),
		logger:  logger,
		scan:    scan,
		dial:    dial,
		ctx:     ctx,
		cancel:  cancel,
		pending: hashmap.New[string, *dialing](),
		links:   hashmap.New[string, link](),
	}
	m.setState(central.StatePoweredOn)
	return m
}

// Bus returns the manager's event feed.
func (m *Manager) Bus() *central.Bus {
	return m.bus
}

// IsReady reports whether the device is powered on and the manager open.
func (m *Manager) IsReady() bool {
	return m.State().Ready()
}

// State returns the current radio state.
func (m *Manager) State() central.State {
	return central.State(m.state.Load())
}

// IsConnected reports whether a link to address is established.
func (m *Manager) IsConnected(address string) bool {
	_, ok := m.links.Get(normalizeAddress(address))
	return ok
}

// StartScan starts scanning on a named goroutine. A scan already running is
// replaced without a StopScan event. When the scan ends on its own, StopScan
// is published; scan errors are logged and otherwise dropped.
func (m *Manager) StartScan(filter *central.ScanFilter, opts *central.ScanOptions) {
	if !m.IsReady() {
		m.logger.Warn("StartScan while not ready, ignoring")
		m.bus.Publish(central.StopScan{})
		return
	}

	allowDup := opts != nil && opts.AllowDuplicates

	m.scanMu.Lock()
	if m.scanCancel != nil {
		m.scanCancel()
		m.logger.Debug("Replacing running scan")
	}
	ctx, cancel := context.WithCancel(m.ctx)
	m.scanGen++
	gen := m.scanGen
	m.scanCancel = cancel
	m.scanMu.Unlock()

	log := m.logger.WithField("scan", gen)
	log.WithField("allow_duplicates", allowDup).Info("Starting BLE scan...")

	groutine.Go(ctx, m.logger, fmt.Sprintf("goble-scan-%d", gen), func(ctx context.Context) {
		err := m.scan(ctx, allowDup, func(adv advertisement) {
			ev := toDiscovered(adv)
			log.WithFields(logrus.Fields{
				"address": ev.Peripheral.ID,
				"name":    ev.Peripheral.Name,
				"rssi":    ev.RSSI,
			}).Debug("Advertisement received")
			m.bus.Publish(ev)
		})
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			log.WithError(central.NormalizeError(err)).Error("Scan failed")
		}

		m.scanMu.Lock()
		current := m.scanGen == gen && m.scanCancel != nil
		if current {
			m.scanCancel = nil
		}
		m.scanMu.Unlock()
		cancel()

		if current {
			log.Info("BLE scan ended")
			m.bus.Publish(central.StopScan{})
		}
	})
}

// StopScan stops the running scan and publishes StopScan. Without a running
// scan it does nothing.
func (m *Manager) StopScan() {
	m.scanMu.Lock()
	cancel := m.scanCancel
	m.scanCancel = nil
	m.scanGen++
	m.scanMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	m.logger.Info("BLE scan stopped")
	m.bus.Publish(central.StopScan{})
}

// Connect dials p on a named goroutine and reports through completion, after
// publishing Connected or FailedToConnect.
func (m *Manager) Connect(p central.Peripheral, opts *central.ConnectOptions, completion func(central.Peripheral, error)) {
	address := normalizeAddress(p.ID)
	log := m.logger.WithField("address", address)

	if !m.IsReady() {
		m.failConnect(p, central.ErrNotReady, completion)
		return
	}

	timeout := DefaultConnectTimeout
	if opts != nil && opts.ConnectTimeout > 0 {
		timeout = opts.ConnectTimeout
	}

	m.connMu.Lock()
	if _, ok := m.links.Get(address); ok {
		m.connMu.Unlock()
		log.Warn("Connection attempt while already connected")
		m.failConnect(p, central.ErrAlreadyConnected, completion)
		return
	}
	if _, ok := m.pending.Get(address); ok {
		m.connMu.Unlock()
		log.Warn("Connection attempt while already connecting")
		m.failConnect(p, &central.ConnectionError{State: central.AlreadyConnected, Msg: "connection in progress"}, completion)
		return
	}
	ctx, cancel := context.WithCancelCause(m.ctx)
	attempt := &dialing{abort: cancel}
	m.pending.Set(address, attempt)
	m.connMu.Unlock()

	log.WithField("timeout", timeout).Info("Connecting to BLE device...")

	groutine.Go(ctx, m.logger, "goble-dial-"+address, func(ctx context.Context) {
		dialCtx, stop := context.WithTimeout(ctx, timeout)
		defer stop()

		l, err := m.dial(dialCtx, address)

		m.connMu.Lock()
		if current, ok := m.pending.Get(address); ok && current == attempt {
			m.pending.Del(address)
		}
		if err == nil && ctx.Err() != nil {
			// Cancelled while the dial was completing.
			err = context.Cause(ctx)
			if cerr := l.CancelConnection(); cerr != nil {
				log.WithError(cerr).Warn("Failed to drop link established after cancel")
			}
		}
		if err == nil {
			m.links.Set(address, l)
		}
		m.connMu.Unlock()
		cancel(nil)

		if err != nil {
			log.WithError(err).Error("Failed to dial BLE device")
			m.failConnect(p, fmt.Errorf("failed to connect to device with address %q: %w", address, central.NormalizeError(err)), completion)
			return
		}

		log.Info("Connected to BLE device")
		m.bus.Publish(central.Connected{Peripheral: p})
		completion(p, nil)

		m.watchLink(p, address, l)
	})
}

// CancelConnection aborts a pending dial or drops an established link, then
// publishes CancelledConnection and reports through completion.
func (m *Manager) CancelConnection(p central.Peripheral, completion func(error)) {
	address := normalizeAddress(p.ID)
	log := m.logger.WithField("address", address)

	m.connMu.Lock()
	if attempt, ok := m.pending.Get(address); ok {
		m.pending.Del(address)
		m.connMu.Unlock()

		attempt.abort(errConnectCancelled)
		log.Info("Pending connection cancelled")
		m.bus.Publish(central.CancelledConnection{Peripheral: p})
		completion(nil)
		return
	}

	l, ok := m.links.Get(address)
	if !ok {
		m.connMu.Unlock()
		err := fmt.Errorf("%w: %s", central.ErrNotConnected, address)
		m.bus.Publish(central.CancelledConnection{Peripheral: p, Err: err})
		completion(err)
		return
	}
	m.links.Del(address)
	m.connMu.Unlock()

	groutine.Go(m.ctx, m.logger, "goble-cancel-"+address, func(ctx context.Context) {
		err := central.NormalizeError(l.CancelConnection())
		m.bus.Publish(central.CancelledConnection{Peripheral: p, Err: err})
		if err != nil {
			log.WithError(err).Error("Failed to cancel connection")
		} else {
			log.Info("Disconnected from BLE device")
			m.bus.Publish(central.Disconnected{Peripheral: p})
		}
		completion(err)
	})
}

// Close stops scanning, drops every link and closes the bus. The manager is
// not ready afterwards.
func (m *Manager) Close() error {
	m.setState(central.StatePoweredOff)
	m.StopScan()

	m.connMu.Lock()
	links := make(map[string]link, m.links.Len())
	m.links.Range(func(address string, l link) bool {
		links[address] = l
		return true
	})
	var attempts []*dialing
	m.pending.Range(func(_ string, attempt *dialing) bool {
		attempts = append(attempts, attempt)
		return true
	})
	for address := range links {
		m.links.Del(address)
	}
	m.pending = hashmap.New[string, *dialing]()
	m.connMu.Unlock()

	for _, attempt := range attempts {
		attempt.abort(errConnectCancelled)
	}

	var errs error
	for address, l := range links {
		if err := l.CancelConnection(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("disconnect %s: %w", address, central.NormalizeError(err)))
		}
	}

	if m.stop != nil {
		if err := m.stop(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("stop device: %w", err))
		}
		m.stop = nil
	}

	m.cancel()
	m.bus.Close()
	return errs
}

// watchLink publishes Disconnected when the peripheral drops a link that was
// not cancelled locally.
func (m *Manager) watchLink(p central.Peripheral, address string, l link) {
	select {
	case <-l.Disconnected():
	case <-m.ctx.Done():
		return
	}

	m.connMu.Lock()
	current, ok := m.links.Get(address)
	remote := ok && current == l
	if remote {
		m.links.Del(address)
	}
	m.connMu.Unlock()

	if remote {
		m.logger.WithField("address", address).Warn("BLE device disconnected")
		m.bus.Publish(central.Disconnected{
			Peripheral: p,
			Err:        &central.ConnectionError{State: central.NotConnected, Msg: "link lost"},
		})
	}
}

func (m *Manager) failConnect(p central.Peripheral, err error, completion func(central.Peripheral, error)) {
	m.bus.Publish(central.FailedToConnect{Peripheral: p, Err: err})
	completion(central.Peripheral{}, err)
}

func (m *Manager) setState(s central.State) {
	if central.State(m.state.Swap(int32(s))) == s {
		return
	}
	m.logger.WithField("state", s).Debug("Radio state changed")
	m.bus.Publish(central.ReadyStateChanged{State: s})
}

func normalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}
