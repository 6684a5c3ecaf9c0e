package testutils

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"
)

// DefaultTestAddress is the address of the fake transducer
const DefaultTestAddress = "d7:f6:cd:3d:f4:14"

// FakeRadioSuite provides a fake radio carrying one Calypso peripheral.
//
// Usage:
//
//	type MySuite struct {
//	    testutils.FakeRadioSuite
//	}
//
//	func (s *MySuite) SetupTest() {
//	    s.WithPeripheral().WithService("180D").WithCharacteristic("2A39", "notify", nil)
//	    s.FakeRadioSuite.SetupTest() // Call parent last to apply configuration
//	}
type FakeRadioSuite struct {
	suite.Suite

	Helper *TestHelper
	Logger *logrus.Logger

	TestTimeout time.Duration
	MaxClients  int

	// PeripheralBuilder configures the GATT profile served at DefaultTestAddress
	PeripheralBuilder *PeripheralBuilder

	// Radio is rebuilt before every test
	Radio *FakeRadio
}

// SetupSuite is called once before all tests in the suite.
func (s *FakeRadioSuite) SetupSuite() {
	s.Helper = NewTestHelper(s.T())
	s.Logger = s.Helper.Logger
	s.TestTimeout = 2 * time.Second
	if s.MaxClients == 0 {
		s.MaxClients = 3
	}
}

// SetupTest builds the radio before each test.
func (s *FakeRadioSuite) SetupTest() {
	if s.PeripheralBuilder == nil {
		s.PeripheralBuilder = NewCalypsoPeripheral()
	}

	s.Radio = NewFakeRadio(s.MaxClients).
		AddPeripheral(DefaultTestAddress, s.PeripheralBuilder).
		AddAdvertisements(CreateCalypsoAdvertisement(DefaultTestAddress).Build())
}

// TearDownTest resets the peripheral builder after each test.
func (s *FakeRadioSuite) TearDownTest() {
	s.PeripheralBuilder = nil
	s.Radio = nil
}

// WithPeripheral returns a fresh peripheral builder for the next test
func (s *FakeRadioSuite) WithPeripheral() *PeripheralBuilder {
	s.PeripheralBuilder = NewPeripheralBuilder()
	return s.PeripheralBuilder
}
