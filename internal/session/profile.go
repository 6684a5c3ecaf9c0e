package session

import "fmt"

// GATT identifiers of the wind transducer
const (
	DefaultDataService        = "180d"
	DefaultDataCharacteristic = "2a39"

	DeviceInfoService              = "180a"
	ManufacturerCharacteristic     = "2a29"
	ModelNumberCharacteristic      = "2a24"
	FirmwareRevisionCharacteristic = "2a26"
)

// Opcode names a single-byte configuration characteristic in the data service
type Opcode uint16

const (
	OpDataRate            Opcode = 0xA002
	OpSensors             Opcode = 0xA003
	OpAngleOffset         Opcode = 0xA007
	OpCompassCalibration  Opcode = 0xA008
	OpWindSpeedCorrection Opcode = 0xA009
	OpFactoryReset        Opcode = 0xA00A
)

var opcodeNames = map[Opcode]string{
	OpDataRate:            "data_rate",
	OpSensors:             "sensors",
	OpAngleOffset:         "angle_offset",
	OpCompassCalibration:  "compass_calibration",
	OpWindSpeedCorrection: "wind_speed_correction",
	OpFactoryReset:        "factory_reset",
}

// UUID returns the normalized 16-bit characteristic UUID
func (o Opcode) UUID() string {
	return fmt.Sprintf("%04x", uint16(o))
}

func (o Opcode) String() string {
	if name, ok := opcodeNames[o]; ok {
		return name
	}
	return "0x" + o.UUID()
}

// Supported notification rates in Hz. The device always starts at 4 Hz after connecting.
const (
	DataRate1Hz byte = 0x01
	DataRate4Hz byte = 0x04
	DataRate8Hz byte = 0x08
)

// ValidDataRate reports whether rate is one the device accepts
func ValidDataRate(rate byte) bool {
	switch rate {
	case DataRate1Hz, DataRate4Hz, DataRate8Hz:
		return true
	default:
		return false
	}
}

// Metadata denotes immutable information about the connected device
type Metadata struct {
	Manufacturer string
	Model        string
	Firmware     string
}
