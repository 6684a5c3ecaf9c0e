package testutils

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/srg/mastgate/internal/device"
)

// CharacteristicConfig represents a GATT characteristic configuration for the fake peripheral
type CharacteristicConfig struct {
	UUID           string `json:"uuid"`
	Properties     string `json:"properties,omitempty"` // e.g., "read,write,notify"
	Value          []byte `json:"value,omitempty"`
	SubscribeError string `json:"subscribe_error,omitempty"`
}

// ServiceConfig represents a GATT service configuration for the fake peripheral
type ServiceConfig struct {
	UUID            string                 `json:"uuid"`
	Characteristics []CharacteristicConfig `json:"characteristics,omitempty"`
}

// DeviceProfileConfig represents the complete device profile
type DeviceProfileConfig struct {
	Services []ServiceConfig `json:"services"`
}

// PeripheralBuilder builds the GATT profile of a fake peripheral
type PeripheralBuilder struct {
	profile DeviceProfileConfig
}

// NewPeripheralBuilder creates a builder with an empty profile
func NewPeripheralBuilder() *PeripheralBuilder {
	return &PeripheralBuilder{}
}

// WithService adds a service to the device profile
func (b *PeripheralBuilder) WithService(uuid string) *PeripheralBuilder {
	b.profile.Services = append(b.profile.Services, ServiceConfig{UUID: uuid})
	return b
}

// WithCharacteristic adds a characteristic to the last added service
func (b *PeripheralBuilder) WithCharacteristic(uuid, properties string, value []byte) *PeripheralBuilder {
	if len(b.profile.Services) == 0 {
		panic("WithCharacteristic: no service added yet, call WithService first")
	}

	last := len(b.profile.Services) - 1
	b.profile.Services[last].Characteristics = append(b.profile.Services[last].Characteristics, CharacteristicConfig{
		UUID:       uuid,
		Properties: properties,
		Value:      value,
	})
	return b
}

// FromJSON replaces the device profile with the one described by JSON
func (b *PeripheralBuilder) FromJSON(jsonStrFmt string, args ...interface{}) *PeripheralBuilder {
	jsonStr := fmt.Sprintf(jsonStrFmt, args...)

	var config DeviceProfileConfig
	if err := json.Unmarshal([]byte(jsonStr), &config); err != nil {
		panic(fmt.Sprintf("PeripheralBuilder.FromJSON: failed to unmarshal: %v", err))
	}

	b.profile = config
	return b
}

// Profile returns the configured profile
func (b *PeripheralBuilder) Profile() DeviceProfileConfig {
	return b.profile
}

// CalypsoProfile is the GATT layout of the wind transducer as the gateway uses it
const CalypsoProfile = `{
	"services": [
		{
			"uuid": "180D",
			"characteristics": [
				{ "uuid": "2A39", "properties": "read,notify" },
				{ "uuid": "A002", "properties": "read,write", "value": [4] },
				{ "uuid": "A003", "properties": "read,write", "value": [0] },
				{ "uuid": "A007", "properties": "read,write", "value": [0] },
				{ "uuid": "A008", "properties": "write" },
				{ "uuid": "A009", "properties": "read,write", "value": [0] },
				{ "uuid": "A00A", "properties": "write" }
			]
		},
		{
			"uuid": "180A",
			"characteristics": [
				{ "uuid": "2A29", "properties": "read", "value": [67, 97, 108, 121, 112, 115, 111] },
				{ "uuid": "2A24", "properties": "read", "value": [85, 76, 80, 83, 84] },
				{ "uuid": "2A26", "properties": "read", "value": [49, 46, 48] }
			]
		}
	]
}`

// NewCalypsoPeripheral returns a builder preloaded with CalypsoProfile
func NewCalypsoPeripheral() *PeripheralBuilder {
	return NewPeripheralBuilder().FromJSON(CalypsoProfile)
}

////////////////////////////////////////////////////////////////////////////////

// FakeRadio is an in-memory device.Radio. Peripherals are registered by address
// and every advertisement in Adverts is delivered to each scan run.
type FakeRadio struct {
	mu sync.Mutex

	maxClients  int
	clients     map[string]*FakeClient
	peripherals map[string]DeviceProfileConfig
	connectErrs map[string][]error

	adverts []device.Advertisement
	scanErr error
	scans   []device.ScanParams
	scanned chan device.ScanParams
}

// NewFakeRadio creates a radio with a pool of maxClients
func NewFakeRadio(maxClients int) *FakeRadio {
	return &FakeRadio{
		maxClients:  maxClients,
		clients:     make(map[string]*FakeClient),
		peripherals: make(map[string]DeviceProfileConfig),
		connectErrs: make(map[string][]error),
		scanned:     make(chan device.ScanParams, 64),
	}
}

// AddPeripheral makes address dialable with the given profile
func (r *FakeRadio) AddPeripheral(address string, b *PeripheralBuilder) *FakeRadio {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.peripherals[strings.ToLower(address)] = b.Profile()
	return r
}

// AddAdvertisements appends advertisements delivered by every scan
func (r *FakeRadio) AddAdvertisements(ads ...device.Advertisement) *FakeRadio {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adverts = append(r.adverts, ads...)
	return r
}

// FailScan makes every subsequent scan fail with err
func (r *FakeRadio) FailScan(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scanErr = err
}

// FailConnect queues errors returned by the next Connect calls for address
func (r *FakeRadio) FailConnect(address string, errs ...error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := strings.ToLower(address)
	r.connectErrs[key] = append(r.connectErrs[key], errs...)
}

// Scans returns the parameters of every scan run so far
func (r *FakeRadio) Scans() []device.ScanParams {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]device.ScanParams(nil), r.scans...)
}

// ScanStarted delivers the parameters of each scan run as it starts
func (r *FakeRadio) ScanStarted() <-chan device.ScanParams {
	return r.scanned
}

// Client returns the pooled fake client for address
func (r *FakeRadio) Client(address string) *FakeClient {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.clients[strings.ToLower(address)]
}

// Scan delivers the configured advertisements and then waits for ctx or params.Duration
func (r *FakeRadio) Scan(ctx context.Context, params device.ScanParams, handler func(device.Advertisement)) error {
	r.mu.Lock()
	r.scans = append(r.scans, params)
	ads := append([]device.Advertisement(nil), r.adverts...)
	scanErr := r.scanErr
	r.mu.Unlock()

	select {
	case r.scanned <- params:
	default:
	}

	if scanErr != nil {
		return scanErr
	}

	if params.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, params.Duration)
		defer cancel()
	}

	// reports already received by the controller are delivered even if the scan was stopped meanwhile
	for _, adv := range ads {
		handler(adv)
	}

	<-ctx.Done()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil
	}
	return ctx.Err()
}

func (r *FakeRadio) ClientByAddress(address string) (device.Client, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[strings.ToLower(address)]
	if !ok {
		return nil, false
	}
	return c, true
}

func (r *FakeRadio) ClientCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

func (r *FakeRadio) MaxClients() int {
	return r.maxClients
}

func (r *FakeRadio) CreateClient(address string) (device.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := strings.ToLower(address)
	if _, ok := r.clients[key]; ok {
		return nil, device.ErrAlreadyConnected
	}
	if len(r.clients) >= r.maxClients {
		return nil, fmt.Errorf("client pool is full (%d)", r.maxClients)
	}

	c := &FakeClient{radio: r, address: address, handlers: make(map[string]func([]byte)), writes: make(map[string][][]byte)}
	r.clients[key] = c
	return c, nil
}

func (r *FakeRadio) DeleteClient(c device.Client) error {
	_ = c.Disconnect()

	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, strings.ToLower(c.Address()))
	return nil
}

func (r *FakeRadio) nextConnectErr(address string) (DeviceProfileConfig, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := strings.ToLower(address)
	if errs := r.connectErrs[key]; len(errs) > 0 {
		r.connectErrs[key] = errs[1:]
		return DeviceProfileConfig{}, false, errs[0]
	}
	profile, ok := r.peripherals[key]
	return profile, ok, nil
}

////////////////////////////////////////////////////////////////////////////////

// FakeClient is a pooled link to a fake peripheral
type FakeClient struct {
	mu sync.Mutex

	radio   *FakeRadio
	address string
	profile DeviceProfileConfig

	connected bool
	done      chan struct{}
	connects  int

	handlers map[string]func([]byte)
	writes   map[string][][]byte
}

func (c *FakeClient) Address() string {
	return c.address
}

func (c *FakeClient) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	profile, ok, err := c.radio.nextConnectErr(c.address)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: no peripheral at %s", device.ErrTimeout, c.address)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.profile = profile
	c.connected = true
	c.done = make(chan struct{})
	c.handlers = make(map[string]func([]byte))
	c.connects++
	return nil
}

func (c *FakeClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Disconnect closes the link from the central side
func (c *FakeClient) Disconnect() error {
	c.Drop()
	return nil
}

// Drop simulates a link loss initiated by the peer or the radio
func (c *FakeClient) Drop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return
	}
	c.connected = false
	close(c.done)
}

func (c *FakeClient) Disconnected() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done == nil {
		return nil
	}
	return c.done
}

func (c *FakeClient) RSSI() int {
	return -60
}

// Connects returns how many times the client was dialed
func (c *FakeClient) Connects() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connects
}

func (c *FakeClient) GetService(uuid string) (device.Service, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return nil, device.ErrNotConnected
	}
	want := device.NormalizeUUID(uuid)
	for _, svc := range c.profile.Services {
		if device.NormalizeUUID(svc.UUID) == want {
			return &fakeService{client: c, cfg: svc}, nil
		}
	}
	return nil, &device.NotFoundError{Resource: "service", UUIDs: []string{want}}
}

// Notify delivers a notification on the characteristic, if subscribed
func (c *FakeClient) Notify(charUUID string, data []byte) bool {
	c.mu.Lock()
	h, ok := c.handlers[device.NormalizeUUID(charUUID)]
	c.mu.Unlock()
	if !ok {
		return false
	}
	h(data)
	return true
}

// Subscribed reports whether a notification handler is registered for the characteristic
func (c *FakeClient) Subscribed(charUUID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.handlers[device.NormalizeUUID(charUUID)]
	return ok
}

// Writes returns the values written to the characteristic, in order
func (c *FakeClient) Writes(charUUID string) [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.writes[device.NormalizeUUID(charUUID)]...)
}

type fakeService struct {
	client *FakeClient
	cfg    ServiceConfig
}

func (s *fakeService) UUID() string {
	return device.NormalizeUUID(s.cfg.UUID)
}

func (s *fakeService) GetCharacteristic(uuid string) (device.Characteristic, error) {
	want := device.NormalizeUUID(uuid)
	for _, chr := range s.cfg.Characteristics {
		if device.NormalizeUUID(chr.UUID) == want {
			return &fakeCharacteristic{client: s.client, cfg: chr, props: parseProperties(chr.Properties)}, nil
		}
	}
	return nil, &device.NotFoundError{Resource: "characteristic", UUIDs: []string{s.UUID(), want}}
}

type properties struct {
	read, write, notify bool
}

func parseProperties(props string) properties {
	if props == "" {
		return properties{read: true, write: true, notify: true}
	}
	var p properties
	for _, part := range strings.Split(props, ",") {
		switch strings.TrimSpace(part) {
		case "read":
			p.read = true
		case "write":
			p.write = true
		case "notify", "indicate":
			p.notify = true
		}
	}
	return p
}

type fakeCharacteristic struct {
	client *FakeClient
	cfg    CharacteristicConfig
	props  properties
}

func (ch *fakeCharacteristic) UUID() string   { return device.NormalizeUUID(ch.cfg.UUID) }
func (ch *fakeCharacteristic) CanRead() bool  { return ch.props.read }
func (ch *fakeCharacteristic) CanWrite() bool { return ch.props.write }
func (ch *fakeCharacteristic) CanNotify() bool {
	return ch.props.notify
}

func (ch *fakeCharacteristic) Read(ctx context.Context) ([]byte, error) {
	if !ch.client.IsConnected() {
		return nil, device.ErrNotConnected
	}
	uuid := ch.UUID()

	ch.client.mu.Lock()
	defer ch.client.mu.Unlock()
	if w := ch.client.writes[uuid]; len(w) > 0 {
		return append([]byte(nil), w[len(w)-1]...), nil
	}
	return append([]byte(nil), ch.cfg.Value...), nil
}

func (ch *fakeCharacteristic) Write(ctx context.Context, data []byte, withResponse bool) error {
	if !ch.client.IsConnected() {
		return device.ErrNotConnected
	}
	uuid := ch.UUID()

	ch.client.mu.Lock()
	defer ch.client.mu.Unlock()
	ch.client.writes[uuid] = append(ch.client.writes[uuid], append([]byte(nil), data...))
	return nil
}

func (ch *fakeCharacteristic) Subscribe(handler func(data []byte)) error {
	if ch.cfg.SubscribeError != "" {
		return errors.New(ch.cfg.SubscribeError)
	}
	if !ch.client.IsConnected() {
		return device.ErrNotConnected
	}

	ch.client.mu.Lock()
	defer ch.client.mu.Unlock()
	ch.client.handlers[ch.UUID()] = handler
	return nil
}
