package goble

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/srg/mastgate/internal/device"
)

// knownErrors maps go-ble and host stack messages to device errors.
// Matching is by lowercase substring; the first hit wins.
var knownErrors = []struct {
	fragment string
	target   error
}{
	{"is bluetooth turned on", device.ErrBluetoothOff},
	{"bluetooth is turned off", device.ErrBluetoothOff},
	{"device already connected", device.ErrAlreadyConnected},
	{"device not connected", device.ErrNotConnected},
	{"disconnected", device.ErrNotConnected},
	{"connection timed out", device.ErrTimeout},
	{"can't dial", device.ErrTimeout},
}

// NormalizeError wraps known radio failures with the matching device error,
// keeping the original message
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", device.ErrTimeout, err)
	}

	msg := strings.ToLower(err.Error())
	for _, k := range knownErrors {
		if strings.Contains(msg, k.fragment) {
			return fmt.Errorf("%w: %v", k.target, err)
		}
	}
	return err
}
