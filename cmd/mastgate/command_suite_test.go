package main

import (
	"bytes"
	"context"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/srg/mastgate/internal/device"
	"github.com/srg/mastgate/internal/testutils"
	"github.com/srg/mastgate/pkg/config"
)

// CalypsoFrame is a measurement notification: 1.00 m/s from 45°, battery 1.0, -10 °C
var CalypsoFrame = []byte{0x64, 0x00, 0x2d, 0x0a, 0xf6, 0x00, 0x00, 0x00, 0x00}

// CommandTestSuite runs cobra commands against the fake radio.
// All cmd/mastgate test suites should embed this instead of FakeRadioSuite.
type CommandTestSuite struct {
	testutils.FakeRadioSuite

	originalOpenRadio func(*config.Config, *logrus.Logger) (device.Radio, func() error, error)
	radioOpened       int
}

func (s *CommandTestSuite) SetupTest() {
	s.FakeRadioSuite.SetupTest()

	s.radioOpened = 0
	s.originalOpenRadio = openRadio
	openRadio = func(*config.Config, *logrus.Logger) (device.Radio, func() error, error) {
		s.radioOpened++
		return s.Radio, func() error { return nil }, nil
	}
}

func (s *CommandTestSuite) TearDownTest() {
	openRadio = s.originalOpenRadio
	resetFlags(rootCmd)
	s.FakeRadioSuite.TearDownTest()
}

// ExecuteCommand runs the root command with args and returns stdout, stderr and the error.
func (s *CommandTestSuite) ExecuteCommand(args ...string) (string, string, error) {
	return s.ExecuteCommandContext(context.Background(), args...)
}

// ExecuteCommandContext is ExecuteCommand with a caller controlled context.
func (s *CommandTestSuite) ExecuteCommandContext(ctx context.Context, args ...string) (string, string, error) {
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(ctx)
	return stdout.String(), stderr.String(), err
}

// resetFlags restores every flag of cmd and its children to its default,
// since cobra keeps parsed values across Execute calls
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, child := range cmd.Commands() {
		resetFlags(child)
	}
}
