//go:build darwin

package goble

import (
	"github.com/go-ble/ble"
	"github.com/go-ble/ble/darwin"
)

// CoreBluetooth owns scan timing and the adapter choice; only the dial timeout is honoured upstream.
func newDevice(opts Options) (ble.Device, error) {
	return darwin.NewDevice()
}
