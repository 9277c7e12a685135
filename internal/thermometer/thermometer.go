// Package thermometer holds the in-memory state of one iBBQ thermometer.
//
// A Model is not safe for concurrent use. The driver owns it and mutates it
// from its event loop only; everything else works on Snapshot copies.
package thermometer

import (
	"fmt"
	"sort"

	"github.com/srg/ibbq/internal/protocol"
)

// Status is the connection lifecycle stage.
type Status int

const (
	Disconnected Status = iota
	Scanning
	Connecting
	DiscoveringServices
	Pairing
	Ready
)

var statusNames = map[Status]string{
	Disconnected:        "disconnected",
	Scanning:            "scanning",
	Connecting:          "connecting",
	DiscoveringServices: "discovering_services",
	Pairing:             "pairing",
	Ready:               "ready",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ProbeConfig is the static part of a probe.
type ProbeConfig struct {
	Position int
	Name     string
}

// Probe is one sensor channel.
type Probe struct {
	Position int
	Name     string

	// Tenths is the last observed temperature; nil until the first frame.
	Tenths *int16
	// Present is false when the last frame carried the disconnected sentinel.
	Present bool
}

// Battery is the last battery notification.
type Battery struct {
	Current uint16  `json:"current"`
	Max     uint16  `json:"max"`
	Percent float64 `json:"percent"`
	// Valid is false before the first notification and whenever Max was zero.
	Valid bool `json:"valid"`
}

// Model is the thermometer state.
type Model struct {
	Address     string
	ServiceUUID string
	Status      Status
	Unit        protocol.Unit
	Probes      []Probe
	Battery     Battery
}

// New creates a model with probes ordered by position. Positions must be
// unique and cover 1..len(probes).
func New(serviceUUID string, unit protocol.Unit, probes []ProbeConfig) (*Model, error) {
	if !unit.Valid() {
		return nil, fmt.Errorf("%w: %d", protocol.ErrUnsupportedUnit, int(unit))
	}

	seen := make(map[int]bool, len(probes))
	m := &Model{
		ServiceUUID: serviceUUID,
		Status:      Disconnected,
		Unit:        unit,
		Probes:      make([]Probe, 0, len(probes)),
	}
	for _, p := range probes {
		if p.Position < 1 || p.Position > len(probes) {
			return nil, fmt.Errorf("probe position %d out of range 1..%d", p.Position, len(probes))
		}
		if seen[p.Position] {
			return nil, fmt.Errorf("duplicate probe position %d", p.Position)
		}
		seen[p.Position] = true
		m.Probes = append(m.Probes, Probe{Position: p.Position, Name: p.Name})
	}
	sort.Slice(m.Probes, func(i, j int) bool { return m.Probes[i].Position < m.Probes[j].Position })
	return m, nil
}

// ProbeCount is the number of slots decoded from every temperature frame.
func (m *Model) ProbeCount() int {
	return len(m.Probes)
}

// ApplyTemperatures stores one reading per probe, indexed by position.
// Readings beyond the probe count are ignored.
func (m *Model) ApplyTemperatures(readings []protocol.Reading) {
	for i := range m.Probes {
		idx := m.Probes[i].Position - 1
		if idx >= len(readings) {
			continue
		}
		r := readings[idx]
		m.Probes[i].Present = r.Connected
		if r.Connected {
			t := r.Tenths
			m.Probes[i].Tenths = &t
		} else {
			m.Probes[i].Tenths = nil
		}
	}
}

// ApplyBattery replaces the battery reading.
func (m *Model) ApplyBattery(level protocol.BatteryLevel) Battery {
	pct, ok := level.Percent()
	m.Battery = Battery{
		Current: level.Current,
		Max:     level.Max,
		Percent: pct,
		Valid:   ok,
	}
	return m.Battery
}

// Reset tears down per-connection state. Readings survive so that the last
// known values stay visible while reconnecting.
func (m *Model) Reset(status Status) {
	m.Address = ""
	m.Status = status
}

// Snapshot returns a deep copy.
func (m *Model) Snapshot() Snapshot {
	s := Snapshot{
		Address:     m.Address,
		ServiceUUID: m.ServiceUUID,
		Status:      m.Status,
		Unit:        m.Unit,
		Probes:      make([]ProbeSnapshot, len(m.Probes)),
		Battery:     m.Battery,
	}
	for i, p := range m.Probes {
		s.Probes[i] = p.snapshot()
	}
	return s
}

// ProbeSnapshots returns copies of all probes.
func (m *Model) ProbeSnapshots() []ProbeSnapshot {
	out := make([]ProbeSnapshot, len(m.Probes))
	for i, p := range m.Probes {
		out[i] = p.snapshot()
	}
	return out
}

func (p Probe) snapshot() ProbeSnapshot {
	ps := ProbeSnapshot{Position: p.Position, Name: p.Name, Present: p.Present}
	if p.Tenths != nil {
		deg := float64(*p.Tenths) / 10
		ps.Temperature = &deg
	}
	return ps
}

// ProbeSnapshot is an immutable copy of a probe.
type ProbeSnapshot struct {
	Position    int      `json:"position"`
	Name        string   `json:"name,omitempty"`
	Temperature *float64 `json:"temperature"`
	Present     bool     `json:"present"`
}

// Snapshot is an immutable copy of the model.
type Snapshot struct {
	Address     string          `json:"address,omitempty"`
	ServiceUUID string          `json:"service_uuid"`
	Status      Status          `json:"status"`
	Unit        protocol.Unit   `json:"unit"`
	Probes      []ProbeSnapshot `json:"probes"`
	Battery     Battery         `json:"battery"`
}
