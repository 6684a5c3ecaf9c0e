package goble

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/mastgate/internal/device"
)

const (
	// DefaultMaxClients mirrors the connection limit of small embedded BLE controllers.
	DefaultMaxClients = 3

	// DefaultDialTimeout bounds a single connect attempt when the caller's context has no deadline.
	DefaultDialTimeout = 5 * time.Second
)

// Options configures the go-ble radio.
type Options struct {
	DeviceID    int               // HCI device index (Linux only)
	MaxClients  int               // client pool capacity
	DialTimeout time.Duration     // stack-level connect timeout
	ScanParams  device.ScanParams // applied when the adapter is opened
}

// DeviceFactory creates ble.Device instances (can be overridden in tests)
//
//nolint:revive // DeviceFactory name is intentional for test mocking
var DeviceFactory = newDevice

// Radio implements device.Radio on top of a single go-ble adapter.
type Radio struct {
	opts   Options
	logger *logrus.Logger

	devMu sync.Mutex
	dev   ble.Device

	clients *hashmap.Map[string, *Client]
}

// NewRadio creates a radio; the adapter is opened lazily on first use.
func NewRadio(opts Options, logger *logrus.Logger) *Radio {
	if logger == nil {
		logger = logrus.New()
	}
	if opts.MaxClients <= 0 {
		opts.MaxClients = DefaultMaxClients
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = DefaultDialTimeout
	}

	return &Radio{
		opts:    opts,
		logger:  logger,
		clients: hashmap.New[string, *Client](),
	}
}

// device returns the shared adapter, opening it on first use.
// Multiple adapters on Linux fight over the HCI socket, so there is exactly one.
func (r *Radio) device() (ble.Device, error) {
	r.devMu.Lock()
	defer r.devMu.Unlock()

	if r.dev != nil {
		return r.dev, nil
	}

	r.logger.WithFields(logrus.Fields{
		"device_id":     r.opts.DeviceID,
		"scan_window":   r.opts.ScanParams.Window,
		"scan_interval": r.opts.ScanParams.Interval,
		"active":        r.opts.ScanParams.Active,
	}).Debug("Opening BLE adapter")

	dev, err := DeviceFactory(r.opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BLE adapter: %w", NormalizeError(err))
	}
	r.dev = dev
	return dev, nil
}

// Open opens the adapter now instead of on first use, surfacing adapter errors early.
func (r *Radio) Open() error {
	_, err := r.device()
	return err
}

// Scan runs one scan window. It returns nil when params.Duration elapses,
// ctx.Err() when the caller cancels, and a normalized radio error otherwise.
func (r *Radio) Scan(ctx context.Context, params device.ScanParams, handler func(device.Advertisement)) error {
	dev, err := r.device()
	if err != nil {
		return err
	}

	if params.Window != r.opts.ScanParams.Window || params.Interval != r.opts.ScanParams.Interval {
		r.logger.WithFields(logrus.Fields{
			"requested_window":   params.Window,
			"requested_interval": params.Interval,
		}).Debug("Scan window/interval are fixed when the adapter opens; using adapter values")
	}

	scanCtx := ctx
	if params.Duration > 0 {
		var cancel context.CancelFunc
		scanCtx, cancel = context.WithTimeout(ctx, params.Duration)
		defer cancel()
	}

	err = dev.Scan(scanCtx, false, func(adv ble.Advertisement) {
		handler(snapshotAdvertisement(adv))
	})

	switch {
	case ctx.Err() != nil:
		return ctx.Err()
	case err == nil, errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return nil
	default:
		return NormalizeError(err)
	}
}

// ClientByAddress returns the pooled client for address, if one was created.
func (r *Radio) ClientByAddress(address string) (device.Client, bool) {
	c, ok := r.clients.Get(addressKey(address))
	if !ok {
		return nil, false
	}
	return c, true
}

// ClientCount returns the number of clients in the pool, connected or not.
func (r *Radio) ClientCount() int {
	return r.clients.Len()
}

// MaxClients returns the pool capacity.
func (r *Radio) MaxClients() int {
	return r.opts.MaxClients
}

// CreateClient registers a new client for address.
func (r *Radio) CreateClient(address string) (device.Client, error) {
	if strings.TrimSpace(address) == "" {
		return nil, fmt.Errorf("device address is empty")
	}
	if r.clients.Len() >= r.opts.MaxClients {
		return nil, fmt.Errorf("client pool full (%d/%d)", r.clients.Len(), r.opts.MaxClients)
	}

	c := newClient(r, address, r.logger)
	if existing, loaded := r.clients.GetOrInsert(addressKey(address), c); loaded {
		return nil, fmt.Errorf("client for %s already exists: %w", existing.Address(), device.ErrAlreadyConnected)
	}

	r.logger.WithFields(logrus.Fields{
		"address": address,
		"clients": r.clients.Len(),
	}).Debug("Created BLE client")
	return c, nil
}

// DeleteClient cancels the link (if any) and drops the client from the pool.
func (r *Radio) DeleteClient(dc device.Client) error {
	if dc == nil {
		return nil
	}
	c, ok := dc.(*Client)
	if !ok {
		return fmt.Errorf("client %s does not belong to this radio", dc.Address())
	}

	err := c.Disconnect()
	r.clients.Del(addressKey(c.Address()))

	r.logger.WithField("address", c.Address()).Debug("Deleted BLE client")
	return err
}

// Close disconnects every pooled client and stops the adapter.
func (r *Radio) Close() error {
	r.clients.Range(func(key string, c *Client) bool {
		if err := c.Disconnect(); err != nil {
			r.logger.WithFields(logrus.Fields{
				"address": c.Address(),
				"error":   err,
			}).Warn("Failed to disconnect client during shutdown")
		}
		r.clients.Del(key)
		return true
	})

	r.devMu.Lock()
	dev := r.dev
	r.dev = nil
	r.devMu.Unlock()

	if dev == nil {
		return nil
	}
	return dev.Stop()
}

func addressKey(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}
