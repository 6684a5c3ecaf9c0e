// Package mocks holds testify mocks of the device interfaces.
package mocks

import (
	"context"

	"github.com/srg/mastgate/internal/device"
	"github.com/stretchr/testify/mock"
)

// MockAdvertisement is a mock of device.Advertisement
type MockAdvertisement struct {
	mock.Mock
}

func (m *MockAdvertisement) LocalName() string {
	return m.Called().String(0)
}

func (m *MockAdvertisement) ManufacturerData() []byte {
	args := m.Called()
	if v, ok := args.Get(0).([]byte); ok {
		return v
	}
	return nil
}

func (m *MockAdvertisement) Services() []string {
	args := m.Called()
	if v, ok := args.Get(0).([]string); ok {
		return v
	}
	return nil
}

func (m *MockAdvertisement) Connectable() bool {
	return m.Called().Bool(0)
}

func (m *MockAdvertisement) RSSI() int {
	return m.Called().Int(0)
}

func (m *MockAdvertisement) Addr() string {
	return m.Called().String(0)
}

// MockScanner is a mock of device.Scanner
type MockScanner struct {
	mock.Mock
}

func (m *MockScanner) Scan(ctx context.Context, params device.ScanParams, handler func(device.Advertisement)) error {
	return m.Called(ctx, params, handler).Error(0)
}

// MockClientPool is a mock of device.ClientPool
type MockClientPool struct {
	mock.Mock
}

func (m *MockClientPool) ClientByAddress(address string) (device.Client, bool) {
	args := m.Called(address)
	c, _ := args.Get(0).(device.Client)
	return c, args.Bool(1)
}

func (m *MockClientPool) ClientCount() int {
	return m.Called().Int(0)
}

func (m *MockClientPool) MaxClients() int {
	return m.Called().Int(0)
}

func (m *MockClientPool) CreateClient(address string) (device.Client, error) {
	args := m.Called(address)
	c, _ := args.Get(0).(device.Client)
	return c, args.Error(1)
}

func (m *MockClientPool) DeleteClient(c device.Client) error {
	return m.Called(c).Error(0)
}

// MockClient is a mock of device.Client
type MockClient struct {
	mock.Mock
}

func (m *MockClient) Address() string {
	return m.Called().String(0)
}

func (m *MockClient) Connect(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockClient) IsConnected() bool {
	return m.Called().Bool(0)
}

func (m *MockClient) Disconnect() error {
	return m.Called().Error(0)
}

func (m *MockClient) Disconnected() <-chan struct{} {
	args := m.Called()
	switch ch := args.Get(0).(type) {
	case chan struct{}:
		return ch
	case <-chan struct{}:
		return ch
	default:
		return nil
	}
}

func (m *MockClient) RSSI() int {
	return m.Called().Int(0)
}

func (m *MockClient) GetService(uuid string) (device.Service, error) {
	args := m.Called(uuid)
	s, _ := args.Get(0).(device.Service)
	return s, args.Error(1)
}

// MockService is a mock of device.Service
type MockService struct {
	mock.Mock
}

func (m *MockService) UUID() string {
	return m.Called().String(0)
}

func (m *MockService) GetCharacteristic(uuid string) (device.Characteristic, error) {
	args := m.Called(uuid)
	c, _ := args.Get(0).(device.Characteristic)
	return c, args.Error(1)
}

// MockCharacteristic is a mock of device.Characteristic
type MockCharacteristic struct {
	mock.Mock
}

func (m *MockCharacteristic) UUID() string {
	return m.Called().String(0)
}

func (m *MockCharacteristic) CanRead() bool {
	return m.Called().Bool(0)
}

func (m *MockCharacteristic) CanWrite() bool {
	return m.Called().Bool(0)
}

func (m *MockCharacteristic) CanNotify() bool {
	return m.Called().Bool(0)
}

func (m *MockCharacteristic) Read(ctx context.Context) ([]byte, error) {
	args := m.Called(ctx)
	v, _ := args.Get(0).([]byte)
	return v, args.Error(1)
}

func (m *MockCharacteristic) Write(ctx context.Context, data []byte, withResponse bool) error {
	return m.Called(ctx, data, withResponse).Error(0)
}

func (m *MockCharacteristic) Subscribe(handler func(data []byte)) error {
	return m.Called(handler).Error(0)
}
