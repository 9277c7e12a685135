package driver

import (
	"encoding/json"

	"github.com/srg/ibbq/internal/protocol"
	"github.com/srg/ibbq/internal/thermometer"
)

// Event is emitted to subscribers. The set of implementations is closed:
// DevicePaired, TemperatureUpdated, BatteryUpdated, StatusChanged and
// ErrorEvent.
type Event interface {
	// Name is the wire name used by the event stream.
	Name() string
	event()
}

// DevicePaired is emitted once the pairing key was accepted.
type DevicePaired struct {
	Address string `json:"address"`
}

// TemperatureUpdated carries every probe after a temperature notification.
type TemperatureUpdated struct {
	Probes []thermometer.ProbeSnapshot `json:"probes"`
	Unit   protocol.Unit               `json:"unit"`
}

// BatteryUpdated carries a decoded battery notification. Percent is only
// meaningful when Valid is true.
type BatteryUpdated struct {
	Percent float64 `json:"percent"`
	Valid   bool    `json:"valid"`
	Current uint16  `json:"current"`
	Max     uint16  `json:"max"`
}

// StatusChanged is emitted on every state machine transition.
type StatusChanged struct {
	From thermometer.Status `json:"from"`
	To   thermometer.Status `json:"to"`
}

// ErrorKind classifies ErrorEvent.
type ErrorKind int

const (
	// KindRadioError is a failed scan, dial, discovery or write.
	KindRadioError ErrorKind = iota
	// KindProtocolError is a notification that could not be decoded.
	KindProtocolError
	// KindDeviceIncompatible is a peripheral missing required characteristics.
	KindDeviceIncompatible
)

func (k ErrorKind) String() string {
	switch k {
	case KindRadioError:
		return "radio_error"
	case KindProtocolError:
		return "protocol_error"
	case KindDeviceIncompatible:
		return "device_incompatible"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k ErrorKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// ErrorEvent reports a recoverable failure.
type ErrorEvent struct {
	Kind ErrorKind
	Err  error
}

// MarshalJSON renders Err as its message.
func (e ErrorEvent) MarshalJSON() ([]byte, error) {
	msg := ""
	if e.Err != nil {
		msg = e.Err.Error()
	}
	return json.Marshal(struct {
		Kind  ErrorKind `json:"kind"`
		Error string    `json:"error"`
	}{e.Kind, msg})
}

func (DevicePaired) Name() string       { return "device_paired" }
func (TemperatureUpdated) Name() string { return "temperature_updated" }
func (BatteryUpdated) Name() string     { return "battery_updated" }
func (StatusChanged) Name() string      { return "status_changed" }
func (ErrorEvent) Name() string         { return "error" }

func (DevicePaired) event()       {}
func (TemperatureUpdated) event() {}
func (BatteryUpdated) event()     {}
func (StatusChanged) event()      {}
func (ErrorEvent) event()         {}
