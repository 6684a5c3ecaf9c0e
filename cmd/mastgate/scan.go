package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/srg/mastgate/internal/device"
	"github.com/srg/mastgate/scanner"
	"golang.org/x/term"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for BLE devices",
	Long: `Scan for and display Bluetooth Low Energy devices in the vicinity.

Useful to find the transducer's address before configuring the gateway.
The configured target, if seen, is highlighted.`,
	RunE: runScan,
}

// weakRSSI marks devices that will struggle to hold a link
const weakRSSI = -85

func init() {
	scanCmd.Flags().DurationP("duration", "d", 10*time.Second, "Scan duration")
	scanCmd.Flags().StringP("format", "f", "table", "Output format (table, json)")
	scanCmd.Flags().StringSliceP("services", "s", nil, "Filter by service UUIDs")
	scanCmd.Flags().StringSlice("allow", nil, "Only show devices with these addresses")
	scanCmd.Flags().StringSlice("block", nil, "Hide devices with these addresses")
}

func runScan(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	if format != "table" && format != "json" {
		return fmt.Errorf("invalid format '%s': must be one of [table json]", format)
	}
	duration, _ := cmd.Flags().GetDuration("duration")
	if duration <= 0 {
		return fmt.Errorf("invalid duration %s: must be > 0", duration)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	logger := configureLogger(cmd, cfg, true)

	radio, closeRadio, err := openRadio(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = closeRadio() }()

	s, err := scanner.NewScanner(radio, logger)
	if err != nil {
		return fmt.Errorf("failed to create BLE scanner: %w", err)
	}

	opts := scanner.DefaultScanOptions()
	opts.Params = cfg.ScanParams()
	opts.Params.Duration = duration
	opts.ServiceUUIDs, _ = cmd.Flags().GetStringSlice("services")
	opts.AllowList, _ = cmd.Flags().GetStringSlice("allow")
	opts.BlockList, _ = cmd.Flags().GetStringSlice("block")

	out := cmd.OutOrStdout()
	progress := NewCountdownProgressPrinter(cmd.ErrOrStderr(), "Scanning for BLE devices", "Scanning", duration, "Processing results")
	progress.Start()
	defer progress.Stop()

	scanCtx, stopCounting := context.WithCancel(cmd.Context())
	defer stopCounting()
	go countDiscovered(scanCtx, s.Events(), progress)

	devices, err := s.Scan(scanCtx, opts, progress.Callback())
	stopCounting()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	progress.Stop()

	sorted := scanner.SortedDevices(devices)
	if format == "json" {
		return displayDevicesJSON(out, sorted)
	}
	return displayDevicesTable(out, sorted, cfg.Identity(), useColor(out))
}

// countDiscovered feeds newly discovered devices into the progress line
func countDiscovered(ctx context.Context, events <-chan scanner.DeviceEvent, progress *ProgressPrinter) {
	found := 0
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			if ev.Type == scanner.EventNew {
				found++
				progress.Found(found)
			}
		}
	}
}

// useColor reports whether w is an interactive terminal
func useColor(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func displayDevicesTable(w io.Writer, devices []scanner.DeviceInfo, target device.Identity, colored bool) error {
	if len(devices) == 0 {
		fmt.Fprintln(w, "No devices discovered")
		return nil
	}

	highlight := color.New(color.FgGreen, color.Bold)
	weak := color.New(color.FgYellow)
	if !colored {
		highlight.DisableColor()
		weak.DisableColor()
	} else {
		highlight.EnableColor()
		weak.EnableColor()
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tADDRESS\tRSSI\tSERVICES\tSEEN")
	fmt.Fprintln(tw, "----\t-------\t----\t--------\t----")

	for _, d := range devices {
		name := d.DisplayName()
		if len(name) > 20 {
			name = name[:17] + "..."
		}
		services := strings.Join(d.Services, ",")
		if len(services) > 30 {
			services = services[:27] + "..."
		}

		rssi := fmt.Sprintf("%d dBm", d.RSSI)
		if d.RSSI < weakRSSI {
			rssi = weak.Sprint(rssi)
		}
		if isTarget(d, target) {
			name = highlight.Sprint(name)
		}

		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n", name, d.Address, rssi, services, d.Seen)
	}
	return tw.Flush()
}

func isTarget(d scanner.DeviceInfo, target device.Identity) bool {
	if target.Address != "" {
		return strings.EqualFold(d.Address, target.Address)
	}
	if target.Service == "" {
		return false
	}
	want := device.NormalizeUUID(target.Service)
	for _, s := range d.Services {
		if s == want {
			return true
		}
	}
	return false
}

func displayDevicesJSON(w io.Writer, devices []scanner.DeviceInfo) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(devices)
}
