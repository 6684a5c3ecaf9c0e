package scanner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"
	"github.com/srg/mastgate/internal/device"
	"github.com/srg/mastgate/internal/ringchan"
)

// ProgressCallback is called when the scan phase changes
type ProgressCallback func(phase string)

// DeviceEventType marks if the device was newly discovered or updated
type DeviceEventType int

const (
	EventNew DeviceEventType = iota
	EventUpdated
)

type DeviceEvent struct {
	Type       DeviceEventType
	DeviceInfo DeviceInfo
}

// Scanner performs one-shot discovery of advertising peripherals
type Scanner struct {
	radio   device.Scanner
	devices *hashmap.Map[string, *tracked]
	events  *ringchan.RingChannel[DeviceEvent]
	logger  *logrus.Logger

	scanOptions *ScanOptions
}

// ScanOptions configures scanning behavior
type ScanOptions struct {
	Params       device.ScanParams
	ServiceUUIDs []string
	AllowList    []string
	BlockList    []string
}

// DefaultScanOptions returns default scanning options
func DefaultScanOptions() *ScanOptions {
	return &ScanOptions{
		Params: device.ScanParams{
			Window:   100 * time.Millisecond,
			Interval: 100 * time.Millisecond,
			Duration: 10 * time.Second,
			Active:   true,
		},
	}
}

// NewScanner creates a new discovery scanner on top of radio
func NewScanner(radio device.Scanner, logger *logrus.Logger) (*Scanner, error) {
	if radio == nil {
		return nil, errors.New("scanner requires a radio")
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &Scanner{
		radio:  radio,
		events: ringchan.New[DeviceEvent](100),
		logger: logger,
	}, nil
}

// Scan performs discovery with provided options and returns what was seen, keyed by address
func (s *Scanner) Scan(ctx context.Context, opts *ScanOptions, progressCallback ProgressCallback) (map[string]DeviceInfo, error) {
	s.devices = hashmap.New[string, *tracked]()

	if opts == nil {
		opts = DefaultScanOptions()
	}
	if progressCallback == nil {
		progressCallback = func(string) {} // No-op callback
	}

	s.logger.WithField("duration", opts.Params.Duration).Info("Starting BLE scan...")

	progressCallback("Scanning")

	s.scanOptions = opts
	defer func() {
		s.scanOptions = nil
	}()
	err := s.radio.Scan(ctx, opts.Params, s.handleAdvertisement)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("scan failed: %w", err)
	}

	s.logger.WithField("device_count", s.devices.Len()).Info("BLE scan completed")

	progressCallback("Processing results")

	devices := make(map[string]DeviceInfo, s.devices.Len())
	s.devices.Range(func(key string, value *tracked) bool {
		devices[key] = value.snapshot()
		return true
	})

	return devices, nil
}

// handleAdvertisement updates existing or adds a new device
func (s *Scanner) handleAdvertisement(adv device.Advertisement) {
	addr := normalizeAddress(adv.Addr())

	entry, existing := s.devices.Get(addr)
	if !existing {
		if !s.shouldIncludeDevice(adv, s.scanOptions) {
			return
		}
		entry, existing = s.devices.GetOrInsert(addr, newTracked(adv))
	}

	info := entry.update(adv)
	if existing {
		s.events.ForceSend(DeviceEvent{Type: EventUpdated, DeviceInfo: info})
		return
	}

	s.logger.WithFields(logrus.Fields{
		"device":  info.Name,
		"address": info.Address,
		"rssi":    info.RSSI,
	}).Info("Discovered new device")
	s.events.ForceSend(DeviceEvent{Type: EventNew, DeviceInfo: info})
}

// shouldIncludeDevice applies to allow/block/service filters
func (s *Scanner) shouldIncludeDevice(adv device.Advertisement, opts *ScanOptions) bool {
	addr := adv.Addr()

	for _, blocked := range opts.BlockList {
		if strings.EqualFold(addr, blocked) {
			return false
		}
	}

	if len(opts.AllowList) > 0 {
		allowed := false
		for _, a := range opts.AllowList {
			if strings.EqualFold(addr, a) {
				allowed = true
				break
			}
		}
		if !allowed {
			return false
		}
	}

	if len(opts.ServiceUUIDs) > 0 {
		for _, required := range opts.ServiceUUIDs {
			if (device.Identity{Service: required}).Matches(adv) {
				return true
			}
		}
		return false
	}

	return true
}

// Events return a read-only channel of device events
func (s *Scanner) Events() <-chan DeviceEvent {
	return s.events.C()
}

// SortedDevices orders discovered devices by descending signal strength, then address
func SortedDevices(devices map[string]DeviceInfo) []DeviceInfo {
	list := make([]DeviceInfo, 0, len(devices))
	for _, d := range devices {
		list = append(list, d)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].RSSI != list[j].RSSI {
			return list[i].RSSI > list[j].RSSI
		}
		return list[i].Address < list[j].Address
	})
	return list
}
