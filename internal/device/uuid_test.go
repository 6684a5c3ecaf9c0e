package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeUUID(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		// 16-bit UUID formats
		{
			name:     "16-bit UUID lowercase",
			input:    "180d",
			expected: "180d",
		},
		{
			name:     "16-bit UUID uppercase",
			input:    "180D",
			expected: "180d",
		},
		{
			name:     "16-bit UUID with 0x prefix",
			input:    "0xA002",
			expected: "a002",
		},

		// Bluetooth SIG base UUID format (should extract 16-bit form)
		{
			name:     "Full Bluetooth SIG UUID with dashes",
			input:    "0000a002-0000-1000-8000-00805f9b34fb",
			expected: "a002",
		},
		{
			name:     "Full Bluetooth SIG UUID uppercase",
			input:    "0000180D-0000-1000-8000-00805F9B34FB",
			expected: "180d",
		},
		{
			name:     "32-bit form with zero prefix",
			input:    "00002a29",
			expected: "2a29",
		},

		// Custom 128-bit UUIDs (should NOT be shortened)
		{
			name:     "Custom UUID - wrong prefix",
			input:    "AA002902-0000-1000-8000-00805f9b34fb",
			expected: "aa00290200001000800000805f9b34fb",
		},
		{
			name:     "Custom UUID - completely different",
			input:    "6e400001-b5a3-f393-e0a9-e50e24dcca9e",
			expected: "6e400001b5a3f393e0a9e50e24dcca9e",
		},

		// Edge cases
		{
			name:     "Empty string",
			input:    "",
			expected: "",
		},
		{
			name:     "Not hexadecimal",
			input:    "zz0d",
			expected: "",
		},
		{
			name:     "Odd length",
			input:    "180",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeUUID(tt.input))
		})
	}
}

func TestNormalizeUUIDs(t *testing.T) {
	got := NormalizeUUIDs([]string{"180D", "0x180a", "00002a29-0000-1000-8000-00805f9b34fb"})
	assert.Equal(t, []string{"180d", "180a", "2a29"}, got)
}

func TestShortenUUID(t *testing.T) {
	assert.Equal(t, "180d", ShortenUUID("180d"))
	assert.Equal(t, "6e400001", ShortenUUID("6e400001b5a3f393e0a9e50e24dcca9e"))
}
