package central_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/srg/blecentral/central"
	"github.com/stretchr/testify/assert"
)

func TestNormalizeError(t *testing.T) {
	tests := []struct {
		name     string
		input    error
		expected error
	}{
		{"invalid state", errors.New("central manager has invalid state: have=4 want=5"), central.ErrBluetoothOff},
		{"turned off", errors.New("Bluetooth is turned off"), central.ErrBluetoothOff},
		{"not connected", errors.New("device not connected"), central.ErrNotConnected},
		{"already connected", errors.New("device already connected"), central.ErrAlreadyConnected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := central.NormalizeError(tt.input)
			assert.ErrorIs(t, err, tt.expected)
			assert.Contains(t, err.Error(), tt.input.Error())
		})
	}

	other := errors.New("something else")
	assert.Same(t, other, central.NormalizeError(other))
	assert.NoError(t, central.NormalizeError(nil))
}

func TestConnectionErrorMatchesByState(t *testing.T) {
	err := fmt.Errorf("connect: %w", &central.ConnectionError{State: central.AlreadyConnected, Msg: "connection in progress"})

	assert.ErrorIs(t, err, central.ErrAlreadyConnected)
	assert.NotErrorIs(t, err, central.ErrNotConnected)
	assert.True(t, central.IsConnectionState(err, central.AlreadyConnected))
	assert.False(t, central.IsConnectionState(errors.New("plain"), central.AlreadyConnected))
	assert.Equal(t, "already_connected: connection in progress", errors.Unwrap(err).Error())
	assert.Equal(t, "not_ready", central.ErrNotReady.Error())
}

func TestAdvertisementCompanyID(t *testing.T) {
	id, ok := central.Advertisement{ManufacturerData: []byte{0x4c, 0x00, 0x02, 0x15}}.CompanyID()
	assert.True(t, ok)
	assert.Equal(t, uint16(0x004c), id)

	_, ok = central.Advertisement{ManufacturerData: []byte{0x4c}}.CompanyID()
	assert.False(t, ok)
}
