package goble

import (
	"context"
	"fmt"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/mastgate/internal/device"
)

// DefaultReadTimeout is the default timeout for characteristic read and write operations.
// This prevents indefinite blocking if a device becomes unresponsive.
const DefaultReadTimeout = 5 * time.Second

// BLECharacteristic is a resolved characteristic bound to the client that discovered it.
type BLECharacteristic struct {
	uuid    string
	BLEChar *ble.Characteristic
	owner   *Client
}

func newCharacteristic(owner *Client, c *ble.Characteristic) *BLECharacteristic {
	return &BLECharacteristic{
		uuid:    device.NormalizeUUID(c.UUID.String()),
		BLEChar: c,
		owner:   owner,
	}
}

func (c *BLECharacteristic) UUID() string {
	return c.uuid
}

func (c *BLECharacteristic) CanRead() bool {
	return c.BLEChar.Property&ble.CharRead != 0
}

func (c *BLECharacteristic) CanWrite() bool {
	return c.BLEChar.Property&(ble.CharWrite|ble.CharWriteNR) != 0
}

func (c *BLECharacteristic) CanNotify() bool {
	return c.BLEChar.Property&(ble.CharNotify|ble.CharIndicate) != 0
}

// Read reads the current value from the device. Without a ctx deadline DefaultReadTimeout applies.
func (c *BLECharacteristic) Read(ctx context.Context) ([]byte, error) {
	client, err := c.owner.bleClient()
	if err != nil {
		return nil, err
	}

	var data []byte
	err = withTimeout(ctx, func() error {
		var rerr error
		data, rerr = client.ReadCharacteristic(c.BLEChar)
		return rerr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read characteristic %s: %w", c.uuid, err)
	}
	return data, nil
}

// Write sends data to the device. withResponse selects an acknowledged ATT write.
func (c *BLECharacteristic) Write(ctx context.Context, data []byte, withResponse bool) error {
	client, err := c.owner.bleClient()
	if err != nil {
		return err
	}

	err = withTimeout(ctx, func() error {
		return client.WriteCharacteristic(c.BLEChar, data, !withResponse)
	})
	if err != nil {
		return fmt.Errorf("failed to write characteristic %s: %w", c.uuid, err)
	}
	return nil
}

// Subscribe enables notifications (or indications, when that is all the peer offers).
func (c *BLECharacteristic) Subscribe(handler func(data []byte)) error {
	client, err := c.owner.bleClient()
	if err != nil {
		return err
	}

	indicate := c.BLEChar.Property&ble.CharNotify == 0 && c.BLEChar.Property&ble.CharIndicate != 0
	if err := NormalizeError(client.Subscribe(c.BLEChar, indicate, handler)); err != nil {
		return fmt.Errorf("failed to subscribe to characteristic %s: %w", c.uuid, err)
	}

	c.owner.logger.WithFields(logrus.Fields{
		"address":  c.owner.address,
		"charUUID": c.uuid,
		"indicate": indicate,
	}).Debug("Subscribed to characteristic notifications")
	return nil
}

// withTimeout runs a blocking go-ble call and gives up when ctx (or DefaultReadTimeout) expires.
// The go-ble call itself cannot be interrupted; it finishes in the background.
func withTimeout(ctx context.Context, fn func() error) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultReadTimeout)
		defer cancel()
	}

	resultCh := make(chan error, 1)
	go func() {
		resultCh <- fn()
	}()

	select {
	case err := <-resultCh:
		return NormalizeError(err)
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", device.ErrTimeout, ctx.Err())
	}
}
