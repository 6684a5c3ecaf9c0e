// Package session owns the link to the wind transducer: the connection state,
// the discovered GATT handles and the most recent decoded sample.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/mastgate/internal/device"
	"github.com/srg/mastgate/internal/telemetry"
)

type link struct {
	client  device.Client
	service device.Service
	data    device.Characteristic
}

// Session is the single device session of the gateway
type Session struct {
	mu sync.RWMutex

	pool   device.ClientPool
	logger *logrus.Logger

	dataService        string
	dataCharacteristic string

	state    State
	lastErr  error
	link     *link
	metadata Metadata

	sample   telemetry.Sample
	received uint64
	dropped  uint64

	stateChangeHandler func(status Status)
	stateChangeChan    chan Status
}

// New creates an idle session on top of the given client pool, executing functional options, if any
func New(pool device.ClientPool, options ...func(*Session)) *Session {
	s := &Session{
		pool:               pool,
		logger:             logrus.StandardLogger(),
		dataService:        DefaultDataService,
		dataCharacteristic: DefaultDataCharacteristic,
	}

	for _, option := range options {
		option(s)
	}
	return s
}

// State returns the current state
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Status returns the current state with the error that caused it
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Status{State: s.state, Error: s.lastErr}
}

// LatestSample returns the most recently decoded sample, or the zero sample
// if nothing has been received yet. It never blocks on the radio.
func (s *Session) LatestSample() telemetry.Sample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sample
}

// Counters returns the number of decoded and rejected notification frames
func (s *Session) Counters() (received, dropped uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.received, s.dropped
}

// Metadata returns what was read from the device information service
func (s *Session) Metadata() Metadata {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.metadata
}

// Disconnected returns a channel closed when the current link drops, or nil without a link
func (s *Session) Disconnected() <-chan struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.link == nil {
		return nil
	}
	return s.link.client.Disconnected()
}

// Transition moves the session along a legal edge of the state table
func (s *Session) Transition(to State) error {
	return s.transition(to, nil)
}

// AttemptConnect brings a link to address up to StateConnected. On failure the
// session is left in StateFailed and the returned error carries the Failure.
func (s *Session) AttemptConnect(ctx context.Context, address string) error {
	if s.State() != StateConnecting {
		if err := s.transition(StateConnecting, nil); err != nil {
			return err
		}
	}

	client, err := s.acquireClient(ctx, address)
	if err != nil {
		return s.fail(err)
	}

	l := &link{client: client}
	s.mu.Lock()
	s.link = l
	s.mu.Unlock()
	if err := s.transition(StateServiceDiscovery, nil); err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"address": address,
		"rssi":    client.RSSI(),
	}).Info("Connected")

	svc, err := client.GetService(s.dataService)
	if err != nil {
		return s.failLink(client, newError(ServiceNotFound, address, err))
	}
	chr, err := svc.GetCharacteristic(s.dataCharacteristic)
	if err != nil {
		return s.failLink(client, newError(ServiceNotFound, address, err))
	}
	if !chr.CanNotify() {
		return s.failLink(client, newError(SubscribeFailed, address,
			fmt.Errorf("characteristic %s does not support notifications", chr.UUID())))
	}

	// a Teardown while discovery ran has already released this link
	s.mu.Lock()
	current := s.link == l
	if current {
		l.service = svc
		l.data = chr
	}
	s.mu.Unlock()
	if !current {
		return fmt.Errorf("link to %s released during discovery: %w", address, device.ErrNotConnected)
	}

	if err := chr.Subscribe(s.onNotification); err != nil {
		return s.failLink(client, newError(SubscribeFailed, address, err))
	}

	md, err := s.readMetadata(ctx, client)
	if err != nil {
		s.logger.WithError(err).WithField("address", address).Warn("Device metadata unavailable")
	}
	s.mu.Lock()
	s.metadata = md
	s.mu.Unlock()

	return s.transition(StateConnected, nil)
}

// Teardown invalidates the discovered handles, releases the link and returns
// the session to StateScanning from whatever state it is in. The pooled client
// is kept so that the next attempt for the same address reconnects it.
func (s *Session) Teardown(cause error) {
	s.mu.Lock()
	l := s.link
	s.link = nil
	s.metadata = Metadata{}
	s.mu.Unlock()

	if l != nil && l.client.IsConnected() {
		if err := l.client.Disconnect(); err != nil {
			s.logger.WithError(err).WithField("address", l.client.Address()).Debug("Disconnect during teardown failed")
		}
	}

	s.setStatus(StateScanning, cause)
}

// WriteConfigurationByte writes a single-byte value to the opcode characteristic, with response
func (s *Session) WriteConfigurationByte(ctx context.Context, op Opcode, value byte) error {
	chr, address, err := s.configCharacteristic(op, CharacteristicUnwritable)
	if err != nil {
		return err
	}
	if !chr.CanWrite() {
		return newError(CharacteristicUnwritable, address, fmt.Errorf("%s is not writable", op))
	}

	if err := chr.Write(ctx, []byte{value}, true); err != nil {
		return fmt.Errorf("write %s: %w", op, err)
	}

	s.logger.WithFields(logrus.Fields{
		"opcode": op.String(),
		"value":  value,
	}).Debug("Configuration written")
	return nil
}

// ReadConfigurationByte reads the single-byte value of the opcode characteristic
func (s *Session) ReadConfigurationByte(ctx context.Context, op Opcode) (byte, error) {
	chr, address, err := s.configCharacteristic(op, CharacteristicUnreadable)
	if err != nil {
		return 0, err
	}
	if !chr.CanRead() {
		return 0, newError(CharacteristicUnreadable, address, fmt.Errorf("%s is not readable", op))
	}

	v, err := chr.Read(ctx)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", op, err)
	}
	if len(v) == 0 {
		return 0, fmt.Errorf("read %s: empty value", op)
	}
	return v[0], nil
}

// SetDataRate selects the notification rate, one of DataRate1Hz, DataRate4Hz or DataRate8Hz
func (s *Session) SetDataRate(ctx context.Context, rate byte) error {
	if !ValidDataRate(rate) {
		return newError(InvalidArgument, "", fmt.Errorf("unsupported data rate %d Hz", rate))
	}
	return s.WriteConfigurationByte(ctx, OpDataRate, rate)
}

////////////////////////////////////////////////////////////////////////////////

func (s *Session) acquireClient(ctx context.Context, address string) (device.Client, error) {
	if client, ok := s.pool.ClientByAddress(address); ok {
		if client.IsConnected() {
			return client, nil
		}
		s.logger.WithField("address", address).Debug("Reconnecting pooled client")
		if err := client.Connect(ctx); err != nil {
			return nil, newError(ReconnectFailed, address, err)
		}
		return client, nil
	}

	if s.pool.ClientCount() >= s.pool.MaxClients() {
		return nil, newError(PoolExhausted, address,
			fmt.Errorf("%d of %d clients in use", s.pool.ClientCount(), s.pool.MaxClients()))
	}

	client, err := s.pool.CreateClient(address)
	if err != nil {
		return nil, newError(ConnectFailed, address, err)
	}
	if err := client.Connect(ctx); err != nil {
		if derr := s.pool.DeleteClient(client); derr != nil {
			s.logger.WithError(derr).WithField("address", address).Debug("Failed to release client")
		}
		return nil, newError(ConnectFailed, address, err)
	}
	return client, nil
}

func (s *Session) configCharacteristic(op Opcode, missing Failure) (device.Characteristic, string, error) {
	s.mu.RLock()
	state, l := s.state, s.link
	s.mu.RUnlock()

	if state != StateConnected || l == nil || l.service == nil {
		return nil, "", newError(NotConnected, "", fmt.Errorf("session is %s", state))
	}

	address := l.client.Address()
	chr, err := l.service.GetCharacteristic(op.UUID())
	if err != nil {
		var nf *device.NotFoundError
		if errors.As(err, &nf) {
			return nil, address, newError(missing, address, err)
		}
		return nil, address, err
	}
	return chr, address, nil
}

func (s *Session) readMetadata(ctx context.Context, client device.Client) (Metadata, error) {
	svc, err := client.GetService(DeviceInfoService)
	if err != nil {
		return Metadata{}, newError(MetadataUnavailable, client.Address(), err)
	}

	var md Metadata
	var errs []error
	for uuid, dst := range map[string]*string{
		ManufacturerCharacteristic:     &md.Manufacturer,
		ModelNumberCharacteristic:      &md.Model,
		FirmwareRevisionCharacteristic: &md.Firmware,
	} {
		chr, err := svc.GetCharacteristic(uuid)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		v, err := chr.Read(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("read %s: %w", uuid, err))
			continue
		}
		*dst = string(v)
	}

	if len(errs) > 0 {
		return md, newError(MetadataUnavailable, client.Address(), errors.Join(errs...))
	}
	return md, nil
}

// onNotification is the subscription handler for the data characteristic
func (s *Session) onNotification(frame []byte) {
	sample, err := telemetry.Decode(frame)

	s.mu.Lock()
	if s.state != StateServiceDiscovery && s.state != StateConnected {
		s.mu.Unlock()
		return
	}
	if err != nil {
		s.dropped++
		s.mu.Unlock()
		s.logger.WithError(err).Debug("Dropping notification")
		return
	}
	s.sample = sample
	s.received++
	s.mu.Unlock()

	s.logger.WithField("sample", sample.String()).Trace("Notification")
}

func (s *Session) fail(err error) error {
	s.setStatus(StateFailed, err)
	return err
}

// failLink drops a link that came up but could not be used
func (s *Session) failLink(client device.Client, err error) error {
	if client.IsConnected() {
		if derr := client.Disconnect(); derr != nil {
			s.logger.WithError(derr).WithField("address", client.Address()).Debug("Disconnect after failure")
		}
	}
	return s.fail(err)
}

func (s *Session) transition(to State, cause error) error {
	s.mu.Lock()
	from := s.state
	if !CanTransition(from, to) {
		s.mu.Unlock()
		return fmt.Errorf("illegal session transition %s -> %s", from, to)
	}
	s.state, s.lastErr = to, cause
	handler, ch := s.stateChangeHandler, s.stateChangeChan
	s.mu.Unlock()

	s.notify(from, Status{State: to, Error: cause}, handler, ch)
	return nil
}

func (s *Session) setStatus(state State, err error) {
	s.mu.Lock()
	from := s.state
	s.state, s.lastErr = state, err
	handler, ch := s.stateChangeHandler, s.stateChangeChan
	s.mu.Unlock()

	s.notify(from, Status{State: state, Error: err}, handler, ch)
}

// notify runs outside s.mu so observers may call back into the session
func (s *Session) notify(from State, status Status, handler func(Status), ch chan<- Status) {
	entry := s.logger.WithFields(logrus.Fields{"from": from.String(), "to": status.State.String()})
	if status.Error != nil {
		entry = entry.WithError(status.Error)
	}
	entry.Debug("Session state changed")

	if handler != nil {
		handler(status)
	}

	if ch != nil {
		select {
		case ch <- status:
		default:
		}
	}
}
