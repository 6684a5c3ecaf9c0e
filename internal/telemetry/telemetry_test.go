package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	t.Run("documented example frame", func(t *testing.T) {
		s, err := Decode([]byte{0x64, 0x00, 0x2D, 0x0A, 0xF6, 0, 0, 0, 0})

		require.NoError(t, err)
		assert.InDelta(t, 1.00, s.WindSpeed, 1e-9)
		assert.Equal(t, 45.0, s.WindDirection)
		assert.InDelta(t, 1.0, s.Battery, 1e-9)
		assert.Equal(t, -10.0, s.Temperature)
	})

	t.Run("speed is little-endian", func(t *testing.T) {
		s, err := Decode([]byte{0x34, 0x12, 0, 0, 0, 0, 0, 0, 0})

		require.NoError(t, err)
		assert.InDelta(t, 46.60, s.WindSpeed, 1e-9) // 0x1234 = 4660
	})

	t.Run("direction keeps the literal byte range", func(t *testing.T) {
		s, err := Decode([]byte{0, 0, 0xFF, 0, 0, 0, 0, 0, 0})

		require.NoError(t, err)
		assert.Equal(t, 255.0, s.WindDirection)
	})

	t.Run("temperature extremes", func(t *testing.T) {
		hot, err := Decode([]byte{0, 0, 0, 0, 0x7F, 0, 0, 0, 0})
		require.NoError(t, err)
		assert.Equal(t, 127.0, hot.Temperature)

		cold, err := Decode([]byte{0, 0, 0, 0, 0x80, 0, 0, 0, 0})
		require.NoError(t, err)
		assert.Equal(t, -128.0, cold.Temperature)
	})

	t.Run("trailing bytes are ignored", func(t *testing.T) {
		base := []byte{0x64, 0x00, 0x2D, 0x0A, 0xF6, 1, 2, 3, 4}
		long := append(append([]byte{}, base...), 0xAA, 0xBB, 0xCC)

		a, err := Decode(base)
		require.NoError(t, err)
		b, err := Decode(long)
		require.NoError(t, err)
		assert.Equal(t, a, b)
	})
}

func TestDecode_ShortFrames(t *testing.T) {
	for n := 0; n < MinFrameLen; n++ {
		s, err := Decode(make([]byte, n))

		assert.ErrorIs(t, err, ErrMalformedFrame, "frame of %d bytes MUST be rejected", n)
		assert.Equal(t, Sample{}, s, "no sample MUST be produced for %d bytes", n)
	}

	_, err := Decode(nil)
	assert.ErrorIs(t, err, ErrMalformedFrame)
}

func TestSample_String(t *testing.T) {
	s := Sample{WindSpeed: 3.5, WindDirection: 90, Battery: 0.8, Temperature: -2}
	assert.Equal(t, "speed=3.50m/s dir=90° battery=0.8 temp=-2°", s.String())
}
