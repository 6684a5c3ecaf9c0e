package main

import (
	"errors"
	"fmt"

	"github.com/srg/mastgate/internal/device"
	"github.com/srg/mastgate/internal/session"
	"github.com/srg/mastgate/internal/telemetry"
)

// Command-level errors
var (
	// ErrRadioUnavailable indicates the host adapter could not be opened
	ErrRadioUnavailable = errors.New("bluetooth adapter unavailable")
)

// FormatUserError turns an error chain into a one-line message with a hint
func FormatUserError(err error) string {
	var notFound *device.NotFoundError

	switch {
	case errors.Is(err, device.ErrBluetoothOff):
		return fmt.Sprintf("%v (turn Bluetooth on and retry)", err)
	case errors.Is(err, ErrRadioUnavailable):
		return fmt.Sprintf("%v (check the adapter and permissions, e.g. run with CAP_NET_ADMIN)", err)
	case errors.Is(err, telemetry.ErrMalformedFrame):
		return fmt.Sprintf("%v (a frame has at least %d bytes)", err, telemetry.MinFrameLen)
	case errors.As(err, &notFound):
		return fmt.Sprintf("%v (is this a wind transducer?)", err)
	}

	if reason, ok := session.ReasonOf(err); ok {
		switch reason {
		case session.PoolExhausted:
			return fmt.Sprintf("%v (disconnect other peripherals or raise radio.max_clients)", err)
		case session.NotConnected:
			return fmt.Sprintf("%v (wait for the sensor to connect)", err)
		}
	}
	return err.Error()
}
