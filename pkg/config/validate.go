package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/srg/mastgate/internal/session"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate returns a *ValidationError listing every problem found
func (c *Config) Validate() error {
	ve := &ValidationError{}

	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		ve.Add("log_level %q is not a valid level", c.LogLevel)
	}

	if c.Target.Address == "" && c.Target.Service == "" {
		ve.Add("target.address or target.service must be set")
	}
	if c.Target.DataService == "" || c.Target.DataCharacteristic == "" {
		ve.Add("target.data_service and target.data_characteristic must not be empty")
	}

	if c.Scan.Duration <= 0 {
		ve.Add("scan.duration must be > 0")
	}
	if c.Scan.Window < 0 || c.Scan.Interval < 0 {
		ve.Add("scan.window and scan.interval must not be negative")
	}
	if c.Scan.Window > c.Scan.Interval {
		ve.Add("scan.window (%s) must not exceed scan.interval (%s)", c.Scan.Window, c.Scan.Interval)
	}

	if c.Radio.MaxClients <= 0 {
		ve.Add("radio.max_clients must be > 0")
	}
	if c.Radio.ConnectTimeout <= 0 {
		ve.Add("radio.connect_timeout must be > 0")
	}

	if c.Lifecycle.ScanRetryDelay < 0 || c.Lifecycle.ReconnectInterval < 0 {
		ve.Add("lifecycle delays must not be negative")
	}
	if c.Lifecycle.ReconnectBurst <= 0 {
		ve.Add("lifecycle.reconnect_burst must be > 0")
	}

	if c.PollInterval <= 0 {
		ve.Add("poll_interval must be > 0")
	}
	if c.DataRate != 0 && !session.ValidDataRate(c.DataRate) {
		ve.Add("data_rate %d must be 0, 1, 4 or 8", c.DataRate)
	}

	for _, out := range []struct{ name, path string }{
		{"wind_speed", c.Outputs.WindSpeed},
		{"wind_angle", c.Outputs.WindAngle},
		{"temperature", c.Outputs.Temperature},
		{"state_of_charge", c.Outputs.StateOfCharge},
	} {
		if out.path == "" {
			ve.Add("outputs.%s must not be empty", out.name)
		}
	}

	if c.MQTT.Broker != "" {
		if u, err := url.Parse(c.MQTT.Broker); err != nil || u.Scheme == "" || u.Host == "" {
			ve.Add("mqtt.broker %q must be a URL like tcp://host:1883", c.MQTT.Broker)
		}
		if c.MQTT.QoS > 2 {
			ve.Add("mqtt.qos must be 0, 1 or 2")
		}
		if c.MQTT.OutboxSize == 0 {
			ve.Add("mqtt.outbox_size must be > 0")
		}
	}

	if ve.HasErrors() {
		return ve
	}
	return nil
}
