package main

import (
	"testing"

	"github.com/srg/mastgate/internal/telemetry"
	"github.com/srg/mastgate/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

type DecodeTestSuite struct {
	CommandTestSuite
}

func (suite *DecodeTestSuite) TestDecodeText() {
	stdout, _, err := suite.ExecuteCommand("decode", "6400", "2d", "0a", "f6", "00000000")
	suite.Require().NoError(err)

	testutils.NewTextAsserter(suite.T()).Assert(stdout, `Wind speed:     1.00 m/s
Wind direction: 45°
Wind angle:     0.7854 rad (45.0°)
Temperature:    -10 °C
Battery:        1.0
`)
	suite.Zero(suite.radioOpened, "decode MUST NOT touch the adapter")
}

func (suite *DecodeTestSuite) TestDecodeJSON() {
	stdout, _, err := suite.ExecuteCommand("decode", "--json", "64:00:2d:0a:f6:00:00:00:00")
	suite.Require().NoError(err)

	testutils.NewJSONAsserter(suite.T()).Assert(stdout, `{
		"wind_speed_ms": 1,
		"wind_direction_deg": 45,
		"wind_angle_rad": "<<PRESENCE>>",
		"temperature_c": -10,
		"battery": 1
	}`)
}

func (suite *DecodeTestSuite) TestDecodeErrors() {
	tests := []struct {
		name    string
		args    []string
		wantErr error
		errText string
	}{
		{name: "not hex", args: []string{"decode", "zz"}, errText: "invalid hex frame"},
		{name: "odd length", args: []string{"decode", "640"}, errText: "invalid hex frame"},
		{name: "short frame", args: []string{"decode", "64002d0a"}, wantErr: telemetry.ErrMalformedFrame},
		{name: "no argument", args: []string{"decode"}, errText: "requires at least 1 arg"},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			defer resetFlags(rootCmd)

			_, _, err := suite.ExecuteCommand(tt.args...)
			suite.Require().Error(err)
			if tt.wantErr != nil {
				suite.ErrorIs(err, tt.wantErr)
			}
			if tt.errText != "" {
				suite.Contains(err.Error(), tt.errText)
			}
		})
	}
}

func TestDecodeCommandSuite(t *testing.T) {
	suite.Run(t, new(DecodeTestSuite))
}

func TestParseHexFrame(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want []byte
	}{
		{name: "joined", args: []string{"64002d"}, want: []byte{0x64, 0x00, 0x2d}},
		{name: "colons", args: []string{"64:00:2d"}, want: []byte{0x64, 0x00, 0x2d}},
		{name: "dashes and prefix", args: []string{"0x64-00-2D"}, want: []byte{0x64, 0x00, 0x2d}},
		{name: "split arguments", args: []string{"64", "00", "2d"}, want: []byte{0x64, 0x00, 0x2d}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseHexFrame(tt.args)
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
