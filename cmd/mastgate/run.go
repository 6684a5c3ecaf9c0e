package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/mastgate/internal/device"
	"github.com/srg/mastgate/internal/eventloop"
	"github.com/srg/mastgate/internal/groutine"
	"github.com/srg/mastgate/internal/lifecycle"
	"github.com/srg/mastgate/internal/observable"
	"github.com/srg/mastgate/internal/publish"
	"github.com/srg/mastgate/internal/session"
	"github.com/srg/mastgate/internal/windsensor"
	"github.com/srg/mastgate/pkg/config"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the wind sensor gateway",
	Long: `Find the wind transducer, keep a link to it and publish its measurements
until interrupted.

The gateway scans for the configured address (or, without one, for any
device advertising the configured service), connects, subscribes to the
measurement characteristic and publishes speed, apparent angle, temperature
and battery charge every poll interval. Whenever the link drops it clears
the connection and starts scanning again.`,
	Example: `  mastgate run --address d7:f6:cd:3d:f4:14
  mastgate run -c /etc/mastgate.yaml --mqtt-broker tcp://signalk.local:1883 --data-rate 4`,
	RunE: runGatewayCmd,
}

// statusInterval is how often the gateway logs its counters
const statusInterval = 30 * time.Second

func init() {
	runCmd.Flags().String("address", "", "Transducer address (overrides config)")
	runCmd.Flags().String("service", "", "Match any device advertising this service when no address is set")
	runCmd.Flags().String("mqtt-broker", "", "MQTT broker URL, e.g. tcp://host:1883 (empty disables MQTT)")
	runCmd.Flags().Uint8("data-rate", 0, "Measurement rate to apply once connected: 1, 4 or 8 Hz (0 keeps the device setting)")
	runCmd.Flags().Int("hci", 0, "HCI device index (Linux)")
	runCmd.Flags().Duration("poll-interval", 0, "Publish period (overrides config)")
}

// applyRunFlags overrides config values with explicitly set flags
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("address") {
		cfg.Target.Address, _ = flags.GetString("address")
	}
	if flags.Changed("service") {
		cfg.Target.Service, _ = flags.GetString("service")
		if !flags.Changed("address") {
			cfg.Target.Address = ""
		}
	}
	if flags.Changed("mqtt-broker") {
		cfg.MQTT.Broker, _ = flags.GetString("mqtt-broker")
	}
	if flags.Changed("data-rate") {
		cfg.DataRate, _ = flags.GetUint8("data-rate")
	}
	if flags.Changed("hci") {
		cfg.Radio.DeviceID, _ = flags.GetInt("hci")
	}
	if flags.Changed("poll-interval") {
		cfg.PollInterval, _ = flags.GetDuration("poll-interval")
	}
	return cfg.Validate()
}

func runGatewayCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := applyRunFlags(cmd, cfg); err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	logger := configureLogger(cmd, cfg, false)

	radio, closeRadio, err := openRadio(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeRadio(); err != nil {
			logger.WithError(err).Warn("Failed to close BLE adapter")
		}
	}()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// Listen for Ctrl+C to stop
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			logger.Info("Shutting down")
			cancel()
		case <-ctx.Done():
		}
	}()

	return newGateway(cfg, radio, logger).run(ctx)
}

// gateway wires the session, lifecycle policy, poller and publishers together
type gateway struct {
	cfg    *config.Config
	logger *logrus.Logger

	loop    *eventloop.Loop
	session *session.Session
	policy  *lifecycle.Policy
	sensor  *windsensor.Sensor
	hub     *publish.Hub
	mqtt    *publish.MQTTPublisher

	ctx   context.Context
	tasks groutine.Group
}

func newGateway(cfg *config.Config, radio device.Radio, logger *logrus.Logger) *gateway {
	g := &gateway{
		cfg:    cfg,
		logger: logger,
		loop:   eventloop.New(logger),
		hub:    publish.NewHub(logger),
		ctx:    context.Background(),
	}

	g.session = session.New(radio,
		session.WithLogger(logger),
		session.WithDataService(cfg.Target.DataService, cfg.Target.DataCharacteristic),
		session.WithStateChangeHandler(g.onStateChange),
	)

	g.policy = lifecycle.New(g.session, radio, g.loop, lifecycle.Config{
		Target:            cfg.Identity(),
		Scan:              cfg.ScanParams(),
		ScanRetryDelay:    cfg.Lifecycle.ScanRetryDelay,
		ReconnectInterval: cfg.Lifecycle.ReconnectInterval,
		ReconnectBurst:    cfg.Lifecycle.ReconnectBurst,
	}, logger)

	g.sensor = windsensor.New(g.session, cfg.PollInterval, logger)

	g.hub.AddSink(publish.LogSink{Logger: logger})
	g.hub.Bind(cfg.Outputs.WindSpeed, g.sensor.SpeedMS)
	g.hub.Bind(cfg.Outputs.WindAngle, g.sensor.AngleRad)
	g.hub.Bind(cfg.Outputs.Temperature, g.sensor.TempC)
	g.hub.Bind(cfg.Outputs.StateOfCharge, observable.Linear(g.sensor.SoC, cfg.Outputs.SoCMultiplier, cfg.Outputs.SoCOffset))

	if cfg.MQTT.Broker != "" {
		g.mqtt = publish.NewMQTTPublisher(publish.MQTTConfig{
			Broker:         cfg.MQTT.Broker,
			ClientID:       cfg.MQTT.ClientID,
			TopicPrefix:    cfg.MQTT.TopicPrefix,
			QoS:            cfg.MQTT.QoS,
			Retained:       cfg.MQTT.Retained,
			OutboxSize:     cfg.MQTT.OutboxSize,
			PublishTimeout: cfg.MQTT.PublishTimeout,
		}, logger)
		g.hub.AddSink(g.mqtt)
	}
	return g
}

// run blocks until ctx is done, then releases the link
func (g *gateway) run(ctx context.Context) error {
	g.ctx = ctx

	if g.mqtt != nil {
		defer g.mqtt.Close()
		g.tasks.Go(ctx, "mqtt", g.mqtt.Run)
		g.tasks.Go(ctx, "mqtt-connect", func(ctx context.Context) {
			if err := g.mqtt.Connect(ctx); err != nil && ctx.Err() == nil {
				g.logger.WithError(err).Error("MQTT broker unreachable, readings stay queued")
			}
		})
	}

	if err := g.loop.Post(func() {
		if err := g.policy.Start(ctx); err != nil {
			g.logger.WithError(err).Error("Failed to start connection lifecycle")
			return
		}
		g.sensor.Start(g.loop)
		g.loop.OnRepeat(statusInterval, g.logStatus)
	}); err != nil {
		return err
	}

	g.logger.WithFields(logrus.Fields{
		"target":        g.cfg.Identity().String(),
		"poll_interval": g.cfg.PollInterval,
		"mqtt":          g.cfg.MQTT.Broker != "",
	}).Info("Gateway started")

	err := g.loop.Run(ctx)

	g.policy.Wait()
	g.session.Teardown(err)
	g.tasks.Wait()
	return err
}

// onStateChange runs on whichever goroutine moved the session
func (g *gateway) onStateChange(st session.Status) {
	entry := g.logger.WithField("state", st.State.String())
	if st.Error != nil {
		entry = entry.WithError(st.Error)
	}
	entry.Info("Sensor state")

	if st.State != session.StateConnected {
		return
	}

	md := g.session.Metadata()
	g.logger.WithFields(logrus.Fields{
		"manufacturer": md.Manufacturer,
		"model":        md.Model,
		"firmware":     md.Firmware,
	}).Info("Wind transducer ready")

	if g.cfg.DataRate == 0 {
		return
	}
	rate := g.cfg.DataRate
	g.tasks.Go(g.ctx, "data-rate", func(ctx context.Context) {
		if err := g.session.SetDataRate(ctx, rate); err != nil {
			g.logger.WithError(err).WithField("rate", rate).Warn("Failed to set data rate")
			return
		}
		g.logger.WithField("rate", rate).Info("Data rate applied")
	})
}

func (g *gateway) logStatus() {
	st := g.session.Status()
	received, dropped := g.session.Counters()
	fields := logrus.Fields{
		"state":    st.State.String(),
		"received": received,
		"dropped":  dropped,
	}
	if st.Error != nil {
		fields["last_error"] = st.Error.Error()
	}
	// paths without an update yet are left out
	for _, r := range g.hub.Snapshot() {
		if !r.Time.IsZero() {
			fields[r.Path] = r.Value
		}
	}
	if g.mqtt != nil {
		published, failed, overwritten := g.mqtt.Counters()
		fields["mqtt"] = fmt.Sprintf("published=%d failed=%d overwritten=%d", published, failed, overwritten)
	}
	g.logger.WithFields(fields).Info("Gateway status")
}
