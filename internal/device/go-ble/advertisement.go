package goble

import (
	"strings"

	"github.com/go-ble/ble"
	"github.com/srg/mastgate/internal/device"
)

// advertisement is a copy of a scan report taken when it is received;
// the HCI stack reuses report buffers once the scan handler returns.
type advertisement struct {
	name        string
	addr        string
	rssi        int
	connectable bool
	services    []string
	manufData   []byte
}

func snapshotAdvertisement(adv ble.Advertisement) device.Advertisement {
	services := make([]string, 0, len(adv.Services()))
	for _, svc := range adv.Services() {
		if u := device.NormalizeUUID(svc.String()); u != "" {
			services = append(services, u)
		}
	}

	return &advertisement{
		name:        adv.LocalName(),
		addr:        strings.ToLower(adv.Addr().String()),
		rssi:        adv.RSSI(),
		connectable: adv.Connectable(),
		services:    services,
		manufData:   append([]byte(nil), adv.ManufacturerData()...),
	}
}

func (a *advertisement) LocalName() string        { return a.name }
func (a *advertisement) ManufacturerData() []byte { return a.manufData }
func (a *advertisement) Connectable() bool        { return a.connectable }
func (a *advertisement) RSSI() int                { return a.rssi }
func (a *advertisement) Addr() string             { return a.addr }
func (a *advertisement) Services() []string       { return a.services }
