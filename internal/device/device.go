package device

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// NotFoundError represents an error when a BLE resource is not found
type NotFoundError struct {
	Resource string   // "service", "characteristic"
	UUIDs    []string // One or more UUIDs (e.g., [serviceUUID] or [serviceUUID, charUUID])
}

func (e *NotFoundError) Error() string {
	if len(e.UUIDs) == 0 {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	if len(e.UUIDs) == 1 {
		return fmt.Sprintf("%s %q not found", e.Resource, e.UUIDs[0])
	}
	return fmt.Sprintf("%s %q not found in service %q", e.Resource, e.UUIDs[len(e.UUIDs)-1], e.UUIDs[0])
}

// ConnectionState represents the specific kind of connection state failure
type ConnectionState string

const (
	NotConnected     ConnectionState = "not_connected"
	AlreadyConnected ConnectionState = "already_connected"
	BluetoothOff     ConnectionState = "bluetooth_off"
)

// ConnectionError represents any connection-related problem reported by the radio
type ConnectionError struct {
	State ConnectionState
	Msg   string
}

// Error implements the error interface
func (e *ConnectionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.State)
	}
	return fmt.Sprintf("%s: %s", e.State, e.Msg)
}

// Is allows errors.Is to compare ConnectionError values by State
func (e *ConnectionError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*ConnectionError)
	if !ok {
		return false
	}
	return e.State == t.State
}

// Predefined sentinel errors for connection states
var (
	ErrNotConnected     = &ConnectionError{State: NotConnected}
	ErrAlreadyConnected = &ConnectionError{State: AlreadyConnected}
	ErrBluetoothOff     = &ConnectionError{State: BluetoothOff}
)

// Operation errors
var (
	ErrTimeout     = errors.New("timeout")
	ErrUnsupported = errors.New("unsupported")
)

// IsConnectionState reports whether err is a ConnectionError with the given state
func IsConnectionState(err error, state ConnectionState) bool {
	var cerr *ConnectionError
	if errors.As(err, &cerr) {
		return cerr.State == state
	}
	return false
}

// Advertisement is a single advertising report delivered while scanning.
type Advertisement interface {
	LocalName() string
	ManufacturerData() []byte
	Services() []string
	Connectable() bool
	RSSI() int
	Addr() string
}

// Identity describes the single peripheral the gateway tracks.
// Address wins when set; Service is a fallback matcher used only when no address is configured.
type Identity struct {
	Address string
	Service string
}

// Matches reports whether the advertisement belongs to this identity.
func (id Identity) Matches(adv Advertisement) bool {
	if adv == nil {
		return false
	}
	if id.Address != "" {
		return strings.EqualFold(strings.TrimSpace(adv.Addr()), strings.TrimSpace(id.Address))
	}
	if id.Service == "" {
		return false
	}
	want := NormalizeUUID(id.Service)
	for _, svc := range adv.Services() {
		if NormalizeUUID(svc) == want {
			return true
		}
	}
	return false
}

func (id Identity) String() string {
	if id.Address != "" {
		return id.Address
	}
	return "service:" + id.Service
}

// ScanParams carries the radio parameters of a scan run.
type ScanParams struct {
	Window   time.Duration
	Interval time.Duration
	Duration time.Duration // 0 scans until cancelled
	Active   bool
}

// Scanner represents a radio capable of scanning for advertisements.
// Scan blocks until ctx is done or the radio fails.
type Scanner interface {
	Scan(ctx context.Context, params ScanParams, handler func(Advertisement)) error
}

// ClientPool is the radio stack's bounded set of central-role clients.
type ClientPool interface {
	// ClientByAddress returns the client previously created for address, if any.
	ClientByAddress(address string) (Client, bool)
	ClientCount() int
	MaxClients() int
	// CreateClient registers a new, not yet connected client for address.
	CreateClient(address string) (Client, error)
	// DeleteClient disconnects (if needed) and removes the client from the pool.
	DeleteClient(c Client) error
}

// Radio combines the capabilities the gateway consumes from the BLE stack.
type Radio interface {
	Scanner
	ClientPool
}

// Client is one central-role link to a peripheral.
type Client interface {
	Address() string
	// Connect dials the peer; the stack's own timeout applies through ctx.
	Connect(ctx context.Context) error
	IsConnected() bool
	Disconnect() error
	// Disconnected is closed when the current link drops. Nil when not connected.
	Disconnected() <-chan struct{}
	RSSI() int
	GetService(uuid string) (Service, error)
}

// Service represents a resolved GATT service
type Service interface {
	UUID() string
	GetCharacteristic(uuid string) (Characteristic, error)
}

// Characteristic represents a resolved GATT characteristic with its operations
type Characteristic interface {
	UUID() string
	CanRead() bool
	CanWrite() bool
	CanNotify() bool
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte, withResponse bool) error
	// Subscribe enables notifications and routes every value to handler.
	Subscribe(handler func(data []byte)) error
}
