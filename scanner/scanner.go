// Package scanner discovers advertising thermometers.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"
	"github.com/srg/ibbq/internal/device"
	"github.com/srg/ibbq/internal/ringchan"
)

// ProgressCallback is called when the scan phase changes
type ProgressCallback func(phase string)

// DeviceEventType marks if the device was newly discovered or updated
type DeviceEventType int

const (
	EventNew DeviceEventType = iota
	EventUpdated
)

// DeviceEvent is emitted for every matching advertisement.
type DeviceEvent struct {
	Type       DeviceEventType
	DeviceInfo DeviceInfo
}

// DeviceInfo is what the scan learned about one peripheral.
type DeviceInfo struct {
	Address     string    `json:"address"`
	Name        string    `json:"name"`
	RSSI        int       `json:"rssi"`
	Services    []string  `json:"services"`
	Connectable bool      `json:"connectable"`
	LastSeen    time.Time `json:"last_seen"`
	Seen        int       `json:"seen"`
}

// Scanner handles BLE device discovery
type Scanner struct {
	dev     device.ScanningDevice
	devices *hashmap.Map[string, *DeviceInfo]
	events  *ringchan.RingChannel[DeviceEvent]
	logger  *logrus.Logger

	filter Filter
}

// ScanOptions configures scanning behavior
type ScanOptions struct {
	Duration        time.Duration
	DuplicateFilter bool
	Filter          Filter
}

// DefaultScanOptions returns default scanning options
func DefaultScanOptions() *ScanOptions {
	return &ScanOptions{
		Duration:        10 * time.Second,
		DuplicateFilter: true,
	}
}

// NewScanner creates a new BLE scanner
func NewScanner(dev device.ScanningDevice, logger *logrus.Logger) *Scanner {
	if logger == nil {
		logger = logrus.New()
	}

	return &Scanner{
		dev:     dev,
		devices: hashmap.New[string, *DeviceInfo](),
		events:  ringchan.New[DeviceEvent](100),
		logger:  logger,
	}
}

// Scan performs BLE discovery with provided options and returns the matching
// devices ordered by signal strength.
func (s *Scanner) Scan(ctx context.Context, opts *ScanOptions, progressCallback ProgressCallback) ([]DeviceInfo, error) {
	s.devices = hashmap.New[string, *DeviceInfo]()

	if opts == nil {
		opts = DefaultScanOptions()
	}
	if progressCallback == nil {
		progressCallback = func(string) {}
	}
	s.filter = opts.Filter

	s.logger.WithField("duration", opts.Duration).Info("Starting BLE scan...")
	progressCallback("Scanning")

	scanCtx := ctx
	if opts.Duration > 0 {
		var cancel context.CancelFunc
		scanCtx, cancel = context.WithTimeout(ctx, opts.Duration)
		defer cancel()
	}

	// go-ble reports duplicates when allowDup is true
	err := s.dev.Scan(scanCtx, !opts.DuplicateFilter, s.handleAdvertisement)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("scan failed: %w", err)
	}

	s.logger.WithField("device_count", s.devices.Len()).Info("BLE scan completed")
	progressCallback("Processing results")

	return s.Devices(), nil
}

// handleAdvertisement updates existing or adds a new device
func (s *Scanner) handleAdvertisement(adv device.Advertisement) {
	addr := adv.Addr()

	info, existing := s.devices.Get(addr)
	if !existing {
		if !s.filter.Match(adv) {
			return
		}
		info, existing = s.devices.GetOrInsert(addr, &DeviceInfo{Address: addr})
	}

	// hashmap values are shared; publish a fresh copy on every update
	next := *info
	next.RSSI = adv.RSSI()
	next.Connectable = adv.Connectable()
	next.LastSeen = time.Now()
	next.Seen++
	if name := adv.LocalName(); name != "" {
		next.Name = name
	}
	if services := adv.Services(); len(services) > 0 {
		next.Services = device.NormalizeUUIDs(services)
	}
	s.devices.Set(addr, &next)

	event := DeviceEvent{DeviceInfo: next}
	if existing {
		event.Type = EventUpdated
	} else {
		s.logger.WithFields(logrus.Fields{
			"device":  next.Name,
			"address": next.Address,
			"rssi":    next.RSSI,
		}).Info("Discovered new device")
		event.Type = EventNew
	}

	s.events.Send(event)
}

// Devices returns a snapshot of discovered devices, strongest signal first.
func (s *Scanner) Devices() []DeviceInfo {
	devs := make([]DeviceInfo, 0, s.devices.Len())
	s.devices.Range(func(_ string, value *DeviceInfo) bool {
		devs = append(devs, *value)
		return true
	})
	sort.Slice(devs, func(i, j int) bool {
		if devs[i].RSSI != devs[j].RSSI {
			return devs[i].RSSI > devs[j].RSSI
		}
		return devs[i].Address < devs[j].Address
	})
	return devs
}

// Events return a read-only channel of device events
func (s *Scanner) Events() <-chan DeviceEvent {
	return s.events.C()
}
