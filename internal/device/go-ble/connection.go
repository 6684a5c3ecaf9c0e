package goble

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/mastgate/internal/device"
)

// Client is a pooled central-role link. The struct outlives individual links:
// Connect on a disconnected client re-dials the same peer (reconnect).
type Client struct {
	radio   *Radio
	address string
	logger  *logrus.Logger

	connMutex sync.RWMutex
	client    ble.Client
	services  map[string]*BLEService
}

func newClient(radio *Radio, address string, logger *logrus.Logger) *Client {
	return &Client{
		radio:    radio,
		address:  address,
		logger:   logger,
		services: make(map[string]*BLEService),
	}
}

func (c *Client) Address() string {
	return c.address
}

// Connect dials the peer and discovers its GATT profile.
func (c *Client) Connect(ctx context.Context) error {
	c.connMutex.Lock()
	defer c.connMutex.Unlock()

	if c.isConnectedInternal() {
		c.logger.WithField("address", c.address).Warn("Connection attempt while already connected")
		return device.ErrAlreadyConnected
	}

	dev, err := c.radio.device()
	if err != nil {
		return err
	}

	dialCtx := ctx
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, c.radio.opts.DialTimeout)
		defer cancel()
	}

	c.logger.WithField("address", c.address).Debug("Dialing BLE device...")
	client, err := dev.Dial(dialCtx, ble.NewAddr(c.address))
	if err != nil {
		c.logger.WithFields(logrus.Fields{
			"address": c.address,
			"error":   err,
		}).Debug("Failed to dial BLE device")
		return fmt.Errorf("failed to connect to device with address %q: %w", c.address, NormalizeError(err))
	}

	c.logger.WithField("address", c.address).Debug("Discovering services and characteristics...")
	profile, err := client.DiscoverProfile(true)
	if err != nil {
		if cancelErr := client.CancelConnection(); cancelErr != nil {
			c.logger.WithField("cancel_error", cancelErr).Warn("Failed to cancel connection during profile discovery failure")
		}
		return fmt.Errorf("failed to discover profile: %w", NormalizeError(err))
	}

	services := make(map[string]*BLEService, len(profile.Services))
	for _, bleSvc := range profile.Services {
		svc := newService(c, bleSvc)
		services[svc.UUID()] = svc
	}

	c.client = client
	c.services = services

	c.logger.WithFields(logrus.Fields{
		"address":  c.address,
		"services": len(services),
	}).Debug("BLE link established")
	return nil
}

// IsConnected reports whether the current link is up.
func (c *Client) IsConnected() bool {
	c.connMutex.RLock()
	defer c.connMutex.RUnlock()
	return c.isConnectedInternal()
}

// isConnectedInternal checks the link without acquiring locks.
// Should only be called when the caller already holds connMutex.
func (c *Client) isConnectedInternal() bool {
	if c.client == nil {
		return false
	}
	select {
	case <-c.client.Disconnected():
		return false
	default:
		return true
	}
}

// Disconnect cancels the current link. Calling it on a disconnected client is a no-op.
func (c *Client) Disconnect() error {
	c.connMutex.Lock()
	client := c.client
	c.client = nil
	c.services = make(map[string]*BLEService)
	c.connMutex.Unlock()

	if client == nil {
		return nil
	}

	if err := client.CancelConnection(); err != nil {
		c.logger.WithFields(logrus.Fields{
			"address": c.address,
			"error":   err,
		}).Warn("BLE device disconnected with errors")
		return NormalizeError(err)
	}

	c.logger.WithField("address", c.address).Debug("BLE link cancelled")
	return nil
}

// Disconnected is closed by the stack when the link drops.
func (c *Client) Disconnected() <-chan struct{} {
	c.connMutex.RLock()
	defer c.connMutex.RUnlock()
	if c.client == nil {
		return nil
	}
	return c.client.Disconnected()
}

// RSSI returns the link RSSI, or 0 when not connected.
func (c *Client) RSSI() int {
	c.connMutex.RLock()
	client := c.client
	c.connMutex.RUnlock()
	if client == nil {
		return 0
	}
	return client.ReadRSSI()
}

// GetService retrieves a discovered service by its UUID.
// Returns a NotFoundError if the service is not part of the peer's profile.
func (c *Client) GetService(uuid string) (device.Service, error) {
	c.connMutex.RLock()
	defer c.connMutex.RUnlock()

	if !c.isConnectedInternal() {
		return nil, device.ErrNotConnected
	}

	svc, ok := c.services[device.NormalizeUUID(uuid)]
	if !ok {
		return nil, &device.NotFoundError{Resource: "service", UUIDs: []string{uuid}}
	}
	return svc, nil
}

// bleClient returns the live go-ble client or ErrNotConnected.
func (c *Client) bleClient() (ble.Client, error) {
	c.connMutex.RLock()
	defer c.connMutex.RUnlock()
	if !c.isConnectedInternal() {
		return nil, fmt.Errorf("%w: %s", device.ErrNotConnected, c.address)
	}
	return c.client, nil
}
