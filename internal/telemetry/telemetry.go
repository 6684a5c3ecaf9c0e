// Package telemetry decodes the wind transducer's notification frames.
package telemetry

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Frame layout (little-endian):
//
//	[0..1] wind speed, uint16, 1/100 m/s
//	[2]    wind direction, uint8, degrees
//	[3]    battery, uint8, tenths (0..10)
//	[4]    temperature, int8, degrees
//	[5..8] roll, pitch, compass (not decoded)
const (
	MinFrameLen = 9

	speedScale   = 100.0
	batteryScale = 10.0
)

// ErrMalformedFrame is returned for frames shorter than MinFrameLen.
var ErrMalformedFrame = errors.New("malformed telemetry frame")

// Sample is one decoded measurement. The zero value is the "no data yet" sample.
type Sample struct {
	WindSpeed     float64 // m/s
	WindDirection float64 // degrees, 0..255 as carried by the one-byte wire field
	Battery       float64 // raw byte / 10
	Temperature   float64 // signed degrees
}

func (s Sample) String() string {
	return fmt.Sprintf("speed=%.2fm/s dir=%.0f° battery=%.1f temp=%.0f°",
		s.WindSpeed, s.WindDirection, s.Battery, s.Temperature)
}

// Decode parses a notification frame. Trailing bytes beyond the documented layout are ignored.
func Decode(frame []byte) (Sample, error) {
	if len(frame) < MinFrameLen {
		return Sample{}, fmt.Errorf("%w: %d bytes, want at least %d", ErrMalformedFrame, len(frame), MinFrameLen)
	}

	return Sample{
		WindSpeed:     float64(binary.LittleEndian.Uint16(frame[0:2])) / speedScale,
		WindDirection: float64(frame[2]),
		Battery:       float64(frame[3]) / batteryScale,
		Temperature:   float64(int8(frame[4])),
	}, nil
}
