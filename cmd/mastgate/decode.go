package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/spf13/cobra"
	"github.com/srg/mastgate/internal/telemetry"
	"github.com/srg/mastgate/internal/windsensor"
)

// decodeCmd represents the decode command
var decodeCmd = &cobra.Command{
	Use:   "decode <hex>",
	Short: "Decode a raw measurement frame",
	Long: `Decode a measurement notification captured from the transducer, e.g. with a
BLE sniffer, and print the values the gateway would publish.

Bytes may be separated by spaces, colons or dashes.`,
	Example: `  mastgate decode 6400 2d 0a f6 00000000
  mastgate decode --json 64:00:2d:0a:f6:00:00:00:00`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDecode,
}

func init() {
	decodeCmd.Flags().Bool("json", false, "Print JSON instead of text")
}

// decodedFrame is the JSON form of a decoded frame
type decodedFrame struct {
	WindSpeed     float64 `json:"wind_speed_ms"`
	WindDirection float64 `json:"wind_direction_deg"`
	WindAngle     float64 `json:"wind_angle_rad"`
	Temperature   float64 `json:"temperature_c"`
	Battery       float64 `json:"battery"`
}

func parseHexFrame(args []string) ([]byte, error) {
	s := strings.Join(args, "")
	s = strings.NewReplacer(" ", "", ":", "", "-", "", "0x", "", "0X", "").Replace(s)
	frame, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex frame: %w", err)
	}
	return frame, nil
}

func runDecode(cmd *cobra.Command, args []string) error {
	frame, err := parseHexFrame(args)
	if err != nil {
		return err
	}

	sample, err := telemetry.Decode(frame)
	if err != nil {
		return err
	}

	out := decodedFrame{
		WindSpeed:     sample.WindSpeed,
		WindDirection: sample.WindDirection,
		WindAngle:     windsensor.DirectionToRadians(sample.WindDirection),
		Temperature:   sample.Temperature,
		Battery:       sample.Battery,
	}

	w := cmd.OutOrStdout()
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(out)
	}

	fmt.Fprintf(w, "Wind speed:     %.2f m/s\n", out.WindSpeed)
	fmt.Fprintf(w, "Wind direction: %.0f°\n", out.WindDirection)
	fmt.Fprintf(w, "Wind angle:     %.4f rad (%.1f°)\n", out.WindAngle, out.WindAngle*180/math.Pi)
	fmt.Fprintf(w, "Temperature:    %.0f °C\n", out.Temperature)
	fmt.Fprintf(w, "Battery:        %.1f\n", out.Battery)
	return nil
}
