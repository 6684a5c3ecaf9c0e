package publish

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/hedzr/go-ringbuf/v2/mpmc"
	"github.com/sirupsen/logrus"
)

// ErrStopped is returned by Connect once the publisher has been closed
var ErrStopped = errors.New("mqtt publisher stopped")

// MQTTConfig configures the broker connection
type MQTTConfig struct {
	Broker         string
	ClientID       string
	TopicPrefix    string
	QoS            byte
	Retained       bool
	OutboxSize     uint32
	PublishTimeout time.Duration
}

// MQTTPublisher is a Sink sending each reading as a plain numeric payload.
// Readings queue in an overwriting outbox and are drained by Run while the
// broker is reachable, so a slow or absent broker never blocks the caller.
type MQTTPublisher struct {
	client mqtt.Client
	cfg    MQTTConfig
	logger *logrus.Logger

	outbox mpmc.RichOverlappedRingBuffer[Reading]
	kick   chan struct{}

	mu        sync.RWMutex
	connected bool

	stopCh   chan struct{}
	stopOnce sync.Once

	published   atomic.Uint64
	failed      atomic.Uint64
	overwritten atomic.Uint64
}

// NewMQTTPublisher creates a publisher for cfg.Broker; nothing is dialled until Connect
func NewMQTTPublisher(cfg MQTTConfig, logger *logrus.Logger) *MQTTPublisher {
	p := newPublisher(nil, cfg, logger)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)

	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	opts.SetOnConnectHandler(func(_ mqtt.Client) { p.onConnect() })
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) { p.onConnectionLost(err) })

	p.client = mqtt.NewClient(opts)
	return p
}

func newPublisher(client mqtt.Client, cfg MQTTConfig, logger *logrus.Logger) *MQTTPublisher {
	if logger == nil {
		logger = logrus.New()
	}
	if cfg.OutboxSize == 0 {
		cfg.OutboxSize = 64
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 5 * time.Second
	}
	return &MQTTPublisher{
		client: client,
		cfg:    cfg,
		logger: logger,
		outbox: mpmc.NewOverlappedRingBuffer[Reading](cfg.OutboxSize),
		kick:   make(chan struct{}, 1),
		stopCh: make(chan struct{}),
	}
}

// Connect waits for the initial broker connection, honouring ctx and Close
func (p *MQTTPublisher) Connect(ctx context.Context) error {
	select {
	case <-p.stopCh:
		return ErrStopped
	default:
	}

	if p.IsConnected() {
		return nil
	}

	token := p.client.Connect()

	const poll = 200 * time.Millisecond
	for {
		if token.WaitTimeout(poll) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("mqtt connect: %w", err)
			}
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.stopCh:
			return ErrStopped
		default:
		}
	}
}

// Publish queues r for delivery. The oldest queued reading is overwritten when the outbox is full.
func (p *MQTTPublisher) Publish(r Reading) {
	overwrites, err := p.outbox.EnqueueM(r)
	if err != nil {
		p.logger.WithError(err).WithField("path", r.Path).Warn("MQTT outbox rejected reading")
		return
	}
	if overwrites > 0 {
		p.overwritten.Add(uint64(overwrites))
	}

	select {
	case p.kick <- struct{}{}:
	default:
	}
}

// Run drains the outbox while connected until ctx is done or Close is called
func (p *MQTTPublisher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-p.kick:
			p.drain()
		}
	}
}

// Close stops Run and disconnects from the broker. Safe to call more than once.
func (p *MQTTPublisher) Close() {
	p.stopOnce.Do(func() { close(p.stopCh) })

	if p.client != nil {
		p.client.Disconnect(250)
	}
	p.setConnected(false)
	p.logger.Info("MQTT disconnected")
}

// IsConnected reports whether the broker link is up
func (p *MQTTPublisher) IsConnected() bool {
	p.mu.RLock()
	connected := p.connected
	p.mu.RUnlock()
	return connected && p.client.IsConnected()
}

// Counters returns how many readings were published, failed and overwritten while queued
func (p *MQTTPublisher) Counters() (published, failed, overwritten uint64) {
	return p.published.Load(), p.failed.Load(), p.overwritten.Load()
}

// Topic maps a dotted output path to an MQTT topic under prefix
func Topic(prefix, path string) string {
	topic := strings.ReplaceAll(path, ".", "/")
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return topic
	}
	return prefix + "/" + topic
}

// Payload formats a value the way it is sent on the wire
func Payload(v float64) []byte {
	return []byte(strconv.FormatFloat(v, 'f', -1, 64))
}

func (p *MQTTPublisher) drain() {
	for p.IsConnected() && !p.outbox.IsEmpty() {
		r, err := p.outbox.Dequeue()
		if err != nil {
			return
		}
		if err := p.send(r); err != nil {
			p.failed.Add(1)
			p.logger.WithError(err).WithField("path", r.Path).Warn("MQTT publish failed")
			continue
		}
		p.published.Add(1)
	}
}

func (p *MQTTPublisher) send(r Reading) error {
	topic := Topic(p.cfg.TopicPrefix, r.Path)

	token := p.client.Publish(topic, p.cfg.QoS, p.cfg.Retained, Payload(r.Value))
	if !token.WaitTimeout(p.cfg.PublishTimeout) {
		return fmt.Errorf("publish timeout for topic %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}

	p.logger.WithFields(logrus.Fields{
		"topic": topic,
		"value": r.Value,
	}).Trace("Published")
	return nil
}

func (p *MQTTPublisher) onConnect() {
	p.setConnected(true)
	p.logger.WithField("broker", p.cfg.Broker).Info("MQTT connected")

	// flush whatever queued up while the broker was away
	select {
	case p.kick <- struct{}{}:
	default:
	}
}

func (p *MQTTPublisher) onConnectionLost(err error) {
	p.setConnected(false)
	p.logger.WithError(err).Warn("MQTT connection lost")
}

func (p *MQTTPublisher) setConnected(v bool) {
	p.mu.Lock()
	p.connected = v
	p.mu.Unlock()
}
