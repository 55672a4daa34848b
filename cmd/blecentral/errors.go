package main

import (
	"context"
	"errors"
	"strings"

	"github.com/srg/blecentral/central"
)

// Command-level errors
var (
	// ErrNoAddress is returned when a command needs at least one peripheral address.
	ErrNoAddress = errors.New("no peripheral address given")
)

// FormatUserError turns err into a message for the terminal. Known radio and
// connection failures get a hint; anything else is printed as is.
func FormatUserError(err error) string {
	if err == nil {
		return ""
	}

	var hint string
	switch {
	case errors.Is(err, central.ErrBluetoothOff):
		hint = "Bluetooth is turned off or unavailable. Turn it on and try again."
	case errors.Is(err, central.ErrUnsupported):
		hint = "BLE central mode is not supported on this platform."
	case errors.Is(err, central.ErrNotReady):
		hint = "The Bluetooth radio is not ready."
	case errors.Is(err, central.ErrAlreadyConnected):
		hint = "The peripheral is already connected or a connection is in progress."
	case errors.Is(err, central.ErrNotConnected):
		hint = "The peripheral is not connected."
	case errors.Is(err, context.DeadlineExceeded):
		hint = "The operation timed out."
	}

	msg := strings.TrimSpace(err.Error())
	if hint == "" {
		return msg
	}
	return hint + "\n  " + msg
}
