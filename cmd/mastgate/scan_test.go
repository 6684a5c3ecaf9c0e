package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/srg/mastgate/internal/device"
	"github.com/srg/mastgate/internal/testutils"
	"github.com/srg/mastgate/scanner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type ScanTestSuite struct {
	CommandTestSuite
}

func (suite *ScanTestSuite) TestScanTable() {
	stdout, stderr, err := suite.ExecuteCommand("scan", "--duration", "50ms")
	suite.Require().NoError(err)

	testutils.NewTextAsserter(suite.T()).Assert(stdout, `NAME        ADDRESS            RSSI     SERVICES  SEEN
----        -------            ----     --------  ----
ULTRASONIC  d7:f6:cd:3d:f4:14  -60 dBm  180d      1
`)
	suite.Contains(stderr, "Scanning for BLE devices", "progress MUST go to stderr")
	suite.Equal(1, suite.radioOpened)
}

func (suite *ScanTestSuite) TestScanJSON() {
	stdout, _, err := suite.ExecuteCommand("scan", "-d", "50ms", "--format", "json")
	suite.Require().NoError(err)

	testutils.NewJSONAsserter(suite.T()).Assert(stdout, `[
		{
			"name": "ULTRASONIC",
			"address": "d7:f6:cd:3d:f4:14",
			"rssi": -60,
			"connectable": true,
			"services": ["180d"],
			"seen": 1,
			"last_seen": "<<PRESENCE>>"
		}
	]`)
}

func (suite *ScanTestSuite) TestScanScanParams() {
	_, _, err := suite.ExecuteCommand("scan", "-d", "50ms")
	suite.Require().NoError(err)

	scans := suite.Radio.Scans()
	suite.Require().Len(scans, 1)
	suite.Equal(50*time.Millisecond, scans[0].Duration, "--duration MUST override the configured scan duration")
	suite.True(scans[0].Active)
}

func (suite *ScanTestSuite) TestScanFilters() {
	suite.Radio.AddAdvertisements(testutils.CreateMockAdvertisement("Thermo", "aa:bb:cc:dd:ee:ff", -90).Build())

	tests := []struct {
		name      string
		args      []string
		addresses []string
	}{
		{name: "no filter", args: nil, addresses: []string{testutils.DefaultTestAddress, "aa:bb:cc:dd:ee:ff"}},
		{name: "service", args: []string{"--services", "180D"}, addresses: []string{testutils.DefaultTestAddress}},
		{name: "allow", args: []string{"--allow", "AA:BB:CC:DD:EE:FF"}, addresses: []string{"aa:bb:cc:dd:ee:ff"}},
		{name: "block", args: []string{"--block", testutils.DefaultTestAddress}, addresses: []string{"aa:bb:cc:dd:ee:ff"}},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			defer resetFlags(rootCmd)

			args := append([]string{"scan", "-d", "50ms", "-f", "json"}, tt.args...)
			stdout, _, err := suite.ExecuteCommand(args...)
			suite.Require().NoError(err)

			var expected bytes.Buffer
			expected.WriteString("[")
			for i, addr := range tt.addresses {
				if i > 0 {
					expected.WriteString(",")
				}
				expected.WriteString(`{"address": "` + addr + `"}`)
			}
			expected.WriteString("]")
			testutils.NewJSONAsserter(suite.T()).Assert(stdout, expected.String())
		})
	}
}

func (suite *ScanTestSuite) TestScanNoDevices() {
	suite.Radio = testutils.NewFakeRadio(1)

	stdout, _, err := suite.ExecuteCommand("scan", "-d", "20ms")
	suite.Require().NoError(err)
	suite.Equal("No devices discovered\n", stdout)
}

func (suite *ScanTestSuite) TestScanInvalidArguments() {
	tests := []struct {
		name    string
		args    []string
		errText string
	}{
		{name: "format", args: []string{"scan", "--format", "xml"}, errText: "invalid format 'xml'"},
		{name: "duration", args: []string{"scan", "--duration", "0s"}, errText: "invalid duration"},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			defer resetFlags(rootCmd)

			_, _, err := suite.ExecuteCommand(tt.args...)
			suite.Require().Error(err)
			suite.Contains(err.Error(), tt.errText)
			suite.Zero(suite.radioOpened, "invalid arguments MUST NOT open the adapter")
		})
	}
}

func (suite *ScanTestSuite) TestScanRadioFailure() {
	suite.Radio.FailScan(device.ErrBluetoothOff)

	_, _, err := suite.ExecuteCommand("scan", "-d", "20ms")
	suite.Require().ErrorIs(err, device.ErrBluetoothOff)
	suite.Contains(FormatUserError(err), "turn Bluetooth on")
}

func TestScanCommandSuite(t *testing.T) {
	suite.Run(t, new(ScanTestSuite))
}

func TestDisplayDevicesTable_MarksTarget(t *testing.T) {
	devices := []scanner.DeviceInfo{
		{Name: "ULTRASONIC", Address: testutils.DefaultTestAddress, RSSI: -60, Services: []string{"180d"}, Seen: 3},
		{Address: "aa:bb:cc:dd:ee:ff", RSSI: -95, Seen: 1},
	}

	var plain bytes.Buffer
	require.NoError(t, displayDevicesTable(&plain, devices, device.Identity{Address: testutils.DefaultTestAddress}, false))
	assert.NotContains(t, plain.String(), "\x1b[", "uncolored output MUST NOT carry escape codes")
	assert.Contains(t, plain.String(), "aa:bb:cc:dd:ee:ff  aa:bb:cc:dd:ee:ff", "unnamed devices MUST show their address as name")

	var colored bytes.Buffer
	require.NoError(t, displayDevicesTable(&colored, devices, device.Identity{Address: testutils.DefaultTestAddress}, true))
	assert.Contains(t, colored.String(), "\x1b[32;1mULTRASONIC\x1b[0m")
	assert.Contains(t, colored.String(), "\x1b[33m-95 dBm\x1b[0m")
}

func TestIsTarget(t *testing.T) {
	d := scanner.DeviceInfo{Address: testutils.DefaultTestAddress, Services: []string{"180d"}}

	assert.True(t, isTarget(d, device.Identity{Address: "D7:F6:CD:3D:F4:14"}))
	assert.False(t, isTarget(d, device.Identity{Address: "aa:bb:cc:dd:ee:ff", Service: "180D"}), "address MUST win over service")
	assert.True(t, isTarget(d, device.Identity{Service: "0x180D"}))
	assert.False(t, isTarget(d, device.Identity{}))
}

func TestDisplayDevicesJSON_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, displayDevicesJSON(&buf, []scanner.DeviceInfo{}))
	assert.Equal(t, "[]\n", buf.String())
}

func TestUseColor_NonTerminal(t *testing.T) {
	assert.False(t, useColor(&bytes.Buffer{}))
}
