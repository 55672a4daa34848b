package central

import (
	"encoding/binary"
	"fmt"
)

// State is the power/authorization state of the radio as reported by the Manager.
type State int

const (
	StateUnknown State = iota
	StatePoweredOff
	StateUnauthorized
	StateUnsupported
	StatePoweredOn
)

// Ready reports whether the radio accepts scan and connect requests.
func (s State) Ready() bool {
	return s == StatePoweredOn
}

func (s State) String() string {
	switch s {
	case StatePoweredOff:
		return "powered_off"
	case StateUnauthorized:
		return "unauthorized"
	case StateUnsupported:
		return "unsupported"
	case StatePoweredOn:
		return "powered_on"
	default:
		return "unknown"
	}
}

// Peripheral is an opaque handle to a remote device.
type Peripheral struct {
	ID   string `json:"id"` // address on the radio
	Name string `json:"name,omitempty"`
}

func (p Peripheral) String() string {
	if p.Name == "" {
		return p.ID
	}
	return fmt.Sprintf("%s (%s)", p.Name, p.ID)
}

// Advertisement is the decoded advertising payload attached to a discovery.
type Advertisement struct {
	LocalName        string            `json:"local_name,omitempty"`
	ManufacturerData []byte            `json:"manufacturer_data,omitempty"`
	ServiceData      map[string][]byte `json:"service_data,omitempty"`
	Services         []string          `json:"services,omitempty"`
	TxPower          *int              `json:"tx_power,omitempty"`
	Connectable      bool              `json:"connectable"`
}

// CompanyID returns the Bluetooth SIG company identifier that, by convention,
// opens the manufacturer data (little-endian). ok is false when the data is
// too short to carry one.
func (a Advertisement) CompanyID() (id uint16, ok bool) {
	if len(a.ManufacturerData) < 2 {
		return 0, false
	}
	return binary.LittleEndian.Uint16(a.ManufacturerData[:2]), true
}

// Event is a raw event emitted by a Manager onto its Bus.
//
// The set of variants is closed: ReadyStateChanged, Discovered, StopScan,
// Connected, FailedToConnect, Disconnected and CancelledConnection.
type Event interface {
	Kind() string
	event()
}

// ReadyStateChanged reports a radio state transition.
type ReadyStateChanged struct {
	State State
}

// Discovered reports one received advertisement.
type Discovered struct {
	Peripheral    Peripheral
	Advertisement Advertisement
	RSSI          float64
}

// StopScan reports that the current scan has ended.
type StopScan struct{}

// Connected reports a successful connection.
type Connected struct {
	Peripheral Peripheral
}

// FailedToConnect reports a connection attempt that did not succeed.
type FailedToConnect struct {
	Peripheral Peripheral
	Err        error
}

// Disconnected reports the loss of an established connection. Err is nil for a
// locally requested disconnect.
type Disconnected struct {
	Peripheral Peripheral
	Err        error
}

// CancelledConnection reports the outcome of a cancel-connection request.
type CancelledConnection struct {
	Peripheral Peripheral
	Err        error
}

func (ReadyStateChanged) Kind() string   { return "ready_state_changed" }
func (Discovered) Kind() string          { return "discovered" }
func (StopScan) Kind() string            { return "stop_scan" }
func (Connected) Kind() string           { return "connected" }
func (FailedToConnect) Kind() string     { return "failed_to_connect" }
func (Disconnected) Kind() string        { return "disconnected" }
func (CancelledConnection) Kind() string { return "cancelled_connection" }

func (ReadyStateChanged) event()   {}
func (Discovered) event()          {}
func (StopScan) event()            {}
func (Connected) event()           {}
func (FailedToConnect) event()     {}
func (Disconnected) event()        {}
func (CancelledConnection) event() {}
