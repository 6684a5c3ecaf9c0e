package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/mastgate/internal/device"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration
type Config struct {
	LogLevel     string        `yaml:"log_level" default:"info"`
	Target       Target        `yaml:"target"`
	Scan         Scan          `yaml:"scan"`
	Radio        Radio         `yaml:"radio"`
	Lifecycle    Lifecycle     `yaml:"lifecycle"`
	PollInterval time.Duration `yaml:"poll_interval" default:"500ms"`
	// DataRate is applied once connected; 0 leaves the device setting alone
	DataRate uint8   `yaml:"data_rate" default:"0"`
	Outputs  Outputs `yaml:"outputs"`
	MQTT     MQTT    `yaml:"mqtt"`
}

// Target identifies the wind transducer
type Target struct {
	Address string `yaml:"address" default:"d7:f6:cd:3d:f4:14"`
	// Service is only consulted when Address is empty
	Service string `yaml:"service" default:""`
	// DataService and DataCharacteristic locate the notification source.
	// Some gateway firmware for this sensor looks the characteristic up as
	// 180d; set data_characteristic to 180d to match it.
	DataService        string `yaml:"data_service" default:"180d"`
	DataCharacteristic string `yaml:"data_characteristic" default:"2a39"`
}

// Scan holds the radio scan parameters
type Scan struct {
	Window   time.Duration `yaml:"window" default:"100ms"`
	Interval time.Duration `yaml:"interval" default:"100ms"`
	Duration time.Duration `yaml:"duration" default:"5s"`
	Active   bool          `yaml:"active" default:"true"`
}

// Radio configures the host adapter
type Radio struct {
	DeviceID       int           `yaml:"device_id" default:"0"`
	MaxClients     int           `yaml:"max_clients" default:"3"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" default:"5s"`
}

// Lifecycle tunes retry pacing
type Lifecycle struct {
	ScanRetryDelay    time.Duration `yaml:"scan_retry_delay" default:"2s"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval" default:"1s"`
	ReconnectBurst    int           `yaml:"reconnect_burst" default:"3"`
}

// Outputs names the published paths
type Outputs struct {
	WindSpeed     string  `yaml:"wind_speed" default:"environment.wind.speedApparent"`
	WindAngle     string  `yaml:"wind_angle" default:"environment.wind.angleApparent"`
	Temperature   string  `yaml:"temperature" default:"environment.outside.temperature"`
	StateOfCharge string  `yaml:"state_of_charge" default:"electrical.batteries.99.capacity.stateOfCharge"`
	SoCMultiplier float64 `yaml:"soc_multiplier" default:"0.01"`
	SoCOffset     float64 `yaml:"soc_offset" default:"0"`
}

// MQTT configures the broker; an empty Broker disables publishing
type MQTT struct {
	Broker         string        `yaml:"broker" default:""`
	ClientID       string        `yaml:"client_id" default:"mastgate"`
	TopicPrefix    string        `yaml:"topic_prefix" default:"vessels/self"`
	QoS            uint8         `yaml:"qos" default:"0"`
	Retained       bool          `yaml:"retained" default:"false"`
	OutboxSize     uint32        `yaml:"outbox_size" default:"64"`
	PublishTimeout time.Duration `yaml:"publish_timeout" default:"5s"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads a YAML file over the defaults, applies environment overrides and
// validates the result. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	ApplyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides maps MASTGATE_* env vars to config fields
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MASTGATE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("MASTGATE_TARGET_ADDRESS"); v != "" {
		cfg.Target.Address = v
	}
	if v := os.Getenv("MASTGATE_MQTT_BROKER"); v != "" {
		cfg.MQTT.Broker = v
	}
}

// Identity returns the matcher for the configured target
func (c *Config) Identity() device.Identity {
	return device.Identity{Address: c.Target.Address, Service: c.Target.Service}
}

// ScanParams returns the configured radio scan parameters
func (c *Config) ScanParams() device.ScanParams {
	return device.ScanParams{
		Window:   c.Scan.Window,
		Interval: c.Scan.Interval,
		Duration: c.Scan.Duration,
		Active:   c.Scan.Active,
	}
}

// Level returns the parsed log level, Info when unparsable
func (c *Config) Level() logrus.Level {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.Level())

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}
