package scanner

import (
	"strings"
	"sync"
	"time"

	"github.com/srg/mastgate/internal/device"
)

// DeviceInfo is what discovery learned about one advertiser
type DeviceInfo struct {
	Name             string    `json:"name"`
	Address          string    `json:"address"`
	RSSI             int       `json:"rssi"`
	Connectable      bool      `json:"connectable"`
	Services         []string  `json:"services"`
	ManufacturerData []byte    `json:"manufacturer_data,omitempty"`
	Seen             int       `json:"seen"`
	LastSeen         time.Time `json:"last_seen"`
}

// tracked guards one registry entry; advertisements for the same address may race
type tracked struct {
	mu   sync.Mutex
	info DeviceInfo
}

func newTracked(adv device.Advertisement) *tracked {
	return &tracked{info: DeviceInfo{Address: adv.Addr()}}
}

// update merges a newer advertisement and returns a snapshot
func (t *tracked) update(adv device.Advertisement) DeviceInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.info.merge(adv)
	return t.info
}

func (t *tracked) snapshot() DeviceInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.info
}

// merge folds a newer advertisement in; scan responses may omit the name
func (d *DeviceInfo) merge(adv device.Advertisement) {
	if name := adv.LocalName(); name != "" {
		d.Name = name
	}
	if svcs := device.NormalizeUUIDs(adv.Services()); len(svcs) > 0 {
		d.Services = svcs
	}
	if md := adv.ManufacturerData(); len(md) > 0 {
		d.ManufacturerData = md
	}
	d.RSSI = adv.RSSI()
	d.Connectable = adv.Connectable()
	d.Seen++
	d.LastSeen = time.Now()
}

// DisplayName returns the advertised name or the address when unnamed
func (d DeviceInfo) DisplayName() string {
	if d.Name != "" {
		return d.Name
	}
	return d.Address
}

func normalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}
