// Package protocol builds the command frames an iBBQ thermometer accepts and
// decodes the telemetry frames it pushes. Everything here is pure: no I/O and
// no state beyond the immutable frame table held by a Codec.
package protocol

import (
	"encoding/binary"
	"fmt"
)

const (
	// TemperatureSlotSize is the number of bytes each probe occupies in a
	// temperature notification.
	TemperatureSlotSize = 2

	// BatteryFrameSize is the minimum length of a battery notification.
	BatteryFrameSize = 5

	// ProbeDisconnected is the raw value firmware reports for an empty probe
	// jack: 0xFFF6, i.e. int16 -10.
	ProbeDisconnected uint16 = 0xFFF6
)

// Frames is the table of fixed command frames for one firmware family.
type Frames struct {
	PairingKey           []byte
	SubscribeTemperature []byte
	SubscribeBattery     []byte
	UnitCelsius          []byte
	UnitFahrenheit       []byte
}

// DefaultFrames are the frames observed on iBBQ firmware (Inkbird IBT-2X/4XS/6XS).
var DefaultFrames = Frames{
	PairingKey:           []byte{0x21, 0x07, 0x06, 0x05, 0x04, 0x03, 0x02, 0x01, 0xb8, 0x22, 0x00, 0x00, 0x00, 0x00, 0x00},
	SubscribeTemperature: []byte{0x0b, 0x01, 0x00, 0x00, 0x00, 0x00},
	SubscribeBattery:     []byte{0x08, 0x24, 0x00, 0x00, 0x00, 0x00},
	UnitCelsius:          []byte{0x02, 0x00, 0x00, 0x00, 0x00, 0x00},
	UnitFahrenheit:       []byte{0x02, 0x01, 0x00, 0x00, 0x00, 0x00},
}

// Codec encodes commands and decodes telemetry for one firmware family.
// The zero value is not usable; start from DefaultCodec or NewCodec.
type Codec struct {
	frames   Frames
	sentinel uint16
}

// DefaultCodec uses DefaultFrames and the ProbeDisconnected sentinel.
var DefaultCodec = NewCodec(DefaultFrames, ProbeDisconnected)

// NewCodec copies frames so later changes to the caller's slices cannot leak in.
func NewCodec(frames Frames, disconnectedSentinel uint16) Codec {
	return Codec{
		frames: Frames{
			PairingKey:           clone(frames.PairingKey),
			SubscribeTemperature: clone(frames.SubscribeTemperature),
			SubscribeBattery:     clone(frames.SubscribeBattery),
			UnitCelsius:          clone(frames.UnitCelsius),
			UnitFahrenheit:       clone(frames.UnitFahrenheit),
		},
		sentinel: disconnectedSentinel,
	}
}

// DisconnectedSentinel returns the raw probe value that means "no probe".
func (c Codec) DisconnectedSentinel() uint16 { return c.sentinel }

// PairingFrame returns the key written to the pair characteristic.
func (c Codec) PairingFrame() []byte { return clone(c.frames.PairingKey) }

// SubscribeTemperatureFrame returns the command enabling real-time temperature pushes.
func (c Codec) SubscribeTemperatureFrame() []byte { return clone(c.frames.SubscribeTemperature) }

// SubscribeBatteryFrame returns the command requesting a battery push.
func (c Codec) SubscribeBatteryFrame() []byte { return clone(c.frames.SubscribeBattery) }

// SetUnitFrame returns the command switching the display unit.
func (c Codec) SetUnitFrame(unit Unit) ([]byte, error) {
	switch unit {
	case Celsius:
		return clone(c.frames.UnitCelsius), nil
	case Fahrenheit:
		return clone(c.frames.UnitFahrenheit), nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedUnit, int(unit))
	}
}

// Reading is one probe slot of a temperature frame.
type Reading struct {
	// Tenths is the raw signed value, tenths of a degree in the unit last set
	// on the device.
	Tenths int16
	// Connected is false when the slot carried the disconnected sentinel.
	Connected bool
}

// Degrees converts Tenths to degrees.
func (r Reading) Degrees() float64 {
	return float64(r.Tenths) / 10
}

// DecodeTemperatureFrame reads probeCount little-endian int16 slots. Bytes past
// probeCount*2 are ignored.
func (c Codec) DecodeTemperatureFrame(frame []byte, probeCount int) ([]Reading, error) {
	if probeCount < 0 {
		return nil, fmt.Errorf("invalid probe count %d", probeCount)
	}
	need := probeCount * TemperatureSlotSize
	if len(frame) < need {
		return nil, fmt.Errorf("%w: temperature frame has %d bytes, %d probes need %d",
			ErrFrameTooShort, len(frame), probeCount, need)
	}

	readings := make([]Reading, probeCount)
	for i := range readings {
		raw := binary.LittleEndian.Uint16(frame[i*TemperatureSlotSize:])
		if raw == c.sentinel {
			continue
		}
		readings[i] = Reading{Tenths: int16(raw), Connected: true}
	}
	return readings, nil
}

// BatteryLevel is a decoded battery notification.
type BatteryLevel struct {
	Current uint16
	Max     uint16
}

// Percent returns Current/Max*100. ok is false when Max is zero.
func (b BatteryLevel) Percent() (pct float64, ok bool) {
	if b.Max == 0 {
		return 0, false
	}
	return float64(b.Current) / float64(b.Max) * 100, true
}

// DecodeBatteryFrame reads current at offset 1 and max at offset 3. Byte 0 is
// the response opcode and is not checked.
func (c Codec) DecodeBatteryFrame(frame []byte) (BatteryLevel, error) {
	if len(frame) < BatteryFrameSize {
		return BatteryLevel{}, fmt.Errorf("%w: battery frame has %d bytes, need %d",
			ErrFrameTooShort, len(frame), BatteryFrameSize)
	}
	return BatteryLevel{
		Current: binary.LittleEndian.Uint16(frame[1:3]),
		Max:     binary.LittleEndian.Uint16(frame[3:5]),
	}, nil
}

// Package-level helpers use DefaultCodec.

func PairingFrame() []byte              { return DefaultCodec.PairingFrame() }
func SubscribeTemperatureFrame() []byte { return DefaultCodec.SubscribeTemperatureFrame() }
func SubscribeBatteryFrame() []byte     { return DefaultCodec.SubscribeBatteryFrame() }

func SetUnitFrame(unit Unit) ([]byte, error) { return DefaultCodec.SetUnitFrame(unit) }

func DecodeTemperatureFrame(frame []byte, probeCount int) ([]Reading, error) {
	return DefaultCodec.DecodeTemperatureFrame(frame, probeCount)
}

func DecodeBatteryFrame(frame []byte) (BatteryLevel, error) {
	return DefaultCodec.DecodeBatteryFrame(frame)
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
