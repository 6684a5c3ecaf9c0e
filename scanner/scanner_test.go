package scanner_test

import (
	"testing"
	"time"

	"github.com/srg/mastgate/internal/device"
	"github.com/srg/mastgate/internal/testutils"
	"github.com/srg/mastgate/scanner"
	"github.com/stretchr/testify/suite"
)

type ScannerTestSuite struct {
	suite.Suite

	helper *testutils.TestHelper
	radio  *testutils.FakeRadio
}

func (s *ScannerTestSuite) SetupTest() {
	s.helper = testutils.NewTestHelper(s.T())
	s.radio = testutils.NewFakeRadio(3).AddAdvertisements(
		testutils.NewAdvertisementBuilder().
			WithAddress("AA:BB:CC:DD:EE:FF").
			WithName("Test Device 1").
			WithRSSI(-45).
			WithServices("180F", "1800").
			Build(),
		testutils.NewAdvertisementBuilder().
			WithAddress("11:22:33:44:55:66").
			WithName("Test Device 2").
			WithRSSI(-67).
			WithServices("1801").
			Build(),
		testutils.NewAdvertisementBuilder().
			WithAddress("99:88:77:66:55:44").
			WithRSSI(-80).
			WithServices("0000180d-0000-1000-8000-00805f9b34fb").
			WithConnectable(false).
			Build(),
		// scan response for device 1 without a name
		testutils.NewAdvertisementBuilder().
			WithAddress("aa:bb:cc:dd:ee:ff").
			WithRSSI(-50).
			Build(),
	)
}

func (s *ScannerTestSuite) scan(opts *scanner.ScanOptions) map[string]scanner.DeviceInfo {
	sc, err := scanner.NewScanner(s.radio, s.helper.Logger)
	s.Require().NoError(err)

	if opts == nil {
		opts = scanner.DefaultScanOptions()
	}
	opts.Params.Duration = 30 * time.Millisecond

	devices, err := sc.Scan(s.T().Context(), opts, nil)
	s.Require().NoError(err)
	return devices
}

func (s *ScannerTestSuite) TestNewScanner() {
	_, err := scanner.NewScanner(nil, nil)
	s.Error(err, "scanner without a radio MUST be rejected")

	sc, err := scanner.NewScanner(s.radio, nil)
	s.NoError(err)
	s.NotNil(sc)
}

func (s *ScannerTestSuite) TestDiscoversAndMergesReports() {
	devices := s.scan(nil)

	s.Len(devices, 3)

	d1 := devices["aa:bb:cc:dd:ee:ff"]
	s.Equal("Test Device 1", d1.Name, "name MUST survive a nameless scan response")
	s.Equal(-50, d1.RSSI, "latest RSSI MUST win")
	s.Equal(2, d1.Seen)
	s.Equal([]string{"180f", "1800"}, d1.Services)

	d3 := devices["99:88:77:66:55:44"]
	s.Equal("99:88:77:66:55:44", d3.DisplayName())
	s.False(d3.Connectable)
	s.Equal([]string{"180d"}, d3.Services)
}

func (s *ScannerTestSuite) TestFilters() {
	s.Run("allow list", func() {
		devices := s.scan(&scanner.ScanOptions{AllowList: []string{"11:22:33:44:55:66"}})
		s.Len(devices, 1)
		s.Contains(devices, "11:22:33:44:55:66")
	})

	s.Run("block list", func() {
		devices := s.scan(&scanner.ScanOptions{BlockList: []string{"AA:BB:CC:DD:EE:FF"}})
		s.Len(devices, 2)
		s.NotContains(devices, "aa:bb:cc:dd:ee:ff")
	})

	s.Run("service filter", func() {
		devices := s.scan(&scanner.ScanOptions{ServiceUUIDs: []string{"180D"}})
		s.Len(devices, 1)
		s.Contains(devices, "99:88:77:66:55:44")
	})
}

func (s *ScannerTestSuite) TestEvents() {
	sc, err := scanner.NewScanner(s.radio, s.helper.Logger)
	s.Require().NoError(err)

	opts := scanner.DefaultScanOptions()
	opts.Params.Duration = 30 * time.Millisecond
	_, err = sc.Scan(s.T().Context(), opts, nil)
	s.Require().NoError(err)

	var kinds []scanner.DeviceEventType
	for len(kinds) < 4 {
		kinds = append(kinds, (<-sc.Events()).Type)
	}
	s.Equal([]scanner.DeviceEventType{scanner.EventNew, scanner.EventNew, scanner.EventNew, scanner.EventUpdated}, kinds)
}

func (s *ScannerTestSuite) TestScanFailure() {
	s.radio.FailScan(device.ErrBluetoothOff)

	sc, err := scanner.NewScanner(s.radio, s.helper.Logger)
	s.Require().NoError(err)

	_, err = sc.Scan(s.T().Context(), nil, nil)
	s.ErrorIs(err, device.ErrBluetoothOff)
}

func (s *ScannerTestSuite) TestSortedDevices() {
	list := scanner.SortedDevices(s.scan(nil))

	s.Require().Len(list, 3)
	s.Equal("Test Device 1", list[0].Name)
	s.Equal(-50, list[0].RSSI)
	s.Equal(-80, list[2].RSSI)
}

func TestScannerTestSuite(t *testing.T) {
	suite.Run(t, new(ScannerTestSuite))
}
