package goble

import (
	"sort"

	"github.com/go-ble/ble"
	"github.com/srg/blecentral/central"
)

// txPowerUnavailable is what go-ble reports when the TX power field is absent.
const txPowerUnavailable = 127

// advertisement is the part of ble.Advertisement the manager reads.
type advertisement interface {
	LocalName() string
	ManufacturerData() []byte
	ServiceData() []ble.ServiceData
	Services() []ble.UUID
	TxPowerLevel() int
	Connectable() bool
	RSSI() int
	Addr() ble.Addr
}

// toDiscovered converts a go-ble advertisement into the bus event.
func toDiscovered(adv advertisement) central.Discovered {
	services := make([]string, 0, len(adv.Services()))
	for _, uuid := range adv.Services() {
		services = append(services, central.NormalizeUUID(uuid.String()))
	}
	sort.Strings(services)

	var serviceData map[string][]byte
	if sd := adv.ServiceData(); len(sd) > 0 {
		serviceData = make(map[string][]byte, len(sd))
		for _, d := range sd {
			serviceData[central.NormalizeUUID(d.UUID.String())] = d.Data
		}
	}

	var txPower *int
	if level := adv.TxPowerLevel(); level != txPowerUnavailable {
		txPower = &level
	}

	return central.Discovered{
		Peripheral: central.Peripheral{
			ID:   normalizeAddress(adv.Addr().String()),
			Name: adv.LocalName(),
		},
		Advertisement: central.Advertisement{
			LocalName:        adv.LocalName(),
			ManufacturerData: adv.ManufacturerData(),
			ServiceData:      serviceData,
			Services:         services,
			TxPower:          txPower,
			Connectable:      adv.Connectable(),
		},
		RSSI: float64(adv.RSSI()),
	}
}
