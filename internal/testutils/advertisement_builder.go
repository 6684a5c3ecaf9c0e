package testutils

import (
	"github.com/srg/mastgate/internal/device"
	"github.com/srg/mastgate/internal/testutils/mocks"
)

// AdvertisementBuilder builds mocked advertisements for testing.
// Every accessor is mocked with Maybe() so tests only assert what they care about.
type AdvertisementBuilder struct {
	name        string
	address     string
	rssi        int
	services    []string
	manufData   []byte
	connectable bool
}

// NewAdvertisementBuilder creates a new AdvertisementBuilder with connectable=true
func NewAdvertisementBuilder() *AdvertisementBuilder {
	return &AdvertisementBuilder{connectable: true}
}

// WithName sets the local name for the advertisement.
func (b *AdvertisementBuilder) WithName(name string) *AdvertisementBuilder {
	b.name = name
	return b
}

// WithAddress sets the device address for the advertisement.
func (b *AdvertisementBuilder) WithAddress(addr string) *AdvertisementBuilder {
	b.address = addr
	return b
}

// WithRSSI sets the signal strength for the advertisement.
func (b *AdvertisementBuilder) WithRSSI(rssi int) *AdvertisementBuilder {
	b.rssi = rssi
	return b
}

// WithServices adds service UUIDs to the advertisement.
func (b *AdvertisementBuilder) WithServices(uuids ...string) *AdvertisementBuilder {
	b.services = append(b.services, uuids...)
	return b
}

// WithManufacturerData sets the manufacturer-specific data.
func (b *AdvertisementBuilder) WithManufacturerData(data []byte) *AdvertisementBuilder {
	b.manufData = data
	return b
}

// WithConnectable sets whether the device accepts connections.
func (b *AdvertisementBuilder) WithConnectable(c bool) *AdvertisementBuilder {
	b.connectable = c
	return b
}

// Build creates the mocked advertisement
func (b *AdvertisementBuilder) Build() *mocks.MockAdvertisement {
	adv := &mocks.MockAdvertisement{}
	adv.On("LocalName").Return(b.name).Maybe()
	adv.On("Addr").Return(b.address).Maybe()
	adv.On("RSSI").Return(b.rssi).Maybe()
	adv.On("Services").Return(b.services).Maybe()
	adv.On("ManufacturerData").Return(b.manufData).Maybe()
	adv.On("Connectable").Return(b.connectable).Maybe()
	return adv
}

// AdvertisementArrayBuilder collects several advertisements
type AdvertisementArrayBuilder struct {
	ads []device.Advertisement
}

// NewAdvertisementArrayBuilder creates an empty AdvertisementArrayBuilder
func NewAdvertisementArrayBuilder() *AdvertisementArrayBuilder {
	return &AdvertisementArrayBuilder{}
}

// With appends a new advertisement configured by fn
func (ab *AdvertisementArrayBuilder) With(fn func(b *AdvertisementBuilder)) *AdvertisementArrayBuilder {
	b := NewAdvertisementBuilder()
	fn(b)
	ab.ads = append(ab.ads, b.Build())
	return ab
}

// Build returns the collected advertisements
func (ab *AdvertisementArrayBuilder) Build() []device.Advertisement {
	return ab.ads
}
