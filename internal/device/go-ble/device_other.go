//go:build !linux && !darwin

package goble

import (
	"github.com/go-ble/ble"
	"github.com/srg/mastgate/internal/device"
)

func newDevice(opts Options) (ble.Device, error) {
	return nil, device.ErrUnsupported
}
