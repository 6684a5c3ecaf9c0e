//go:build linux

package goble

import (
	"time"

	"github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"
	"github.com/go-ble/ble/linux/hci/cmd"
)

// scanUnit is the HCI time unit for scan interval and window.
const scanUnit = 625 * time.Microsecond

func newDevice(opts Options) (ble.Device, error) {
	params := cmd.LESetScanParameters{
		LEScanType:           0,                          // Passive
		LEScanInterval:       toScanUnits(opts.ScanParams.Interval, 0x10),
		LEScanWindow:         toScanUnits(opts.ScanParams.Window, 0x10),
		OwnAddressType:       0, // Static
		ScanningFilterPolicy: 0, // Accept all
	}
	if opts.ScanParams.Active {
		params.LEScanType = 1
	}
	if params.LEScanWindow > params.LEScanInterval {
		params.LEScanWindow = params.LEScanInterval
	}

	return linux.NewDevice(
		ble.OptDeviceID(opts.DeviceID),
		ble.OptDialerTimeout(opts.DialTimeout),
		ble.OptScanParams(params),
	)
}

// toScanUnits converts d to 0.625ms units, clamped to the range the controller accepts.
func toScanUnits(d time.Duration, fallback uint16) uint16 {
	if d <= 0 {
		return fallback
	}
	units := d / scanUnit
	switch {
	case units < 0x0004:
		return 0x0004
	case units > 0x4000:
		return 0x4000
	default:
		return uint16(units)
	}
}
