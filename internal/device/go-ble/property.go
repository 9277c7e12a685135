package goble

import (
	"github.com/go-ble/ble"
	"github.com/srg/ibbq/internal/device"
)

// BLEProperty represents a single BLE characteristic property with its bit flag value and human-readable name.
type BLEProperty struct {
	value ble.Property
	name  string
}

// Value returns the bit flag value of the property.
func (p *BLEProperty) Value() int { return int(p.value) }

// KnownName returns the human-readable name of the property.
func (p *BLEProperty) KnownName() string { return p.name }

// BLEProperties is the decoded property bit set of one characteristic.
type BLEProperties struct {
	flags ble.Property
}

// NewProperties creates a Properties instance from ble.Property bit flags.
func NewProperties(p ble.Property) device.Properties {
	return &BLEProperties{flags: p}
}

func (p *BLEProperties) get(flag ble.Property, name string) device.Property {
	if p.flags&flag == 0 {
		return nil
	}
	return &BLEProperty{value: flag, name: name}
}

func (p *BLEProperties) Broadcast() device.Property { return p.get(ble.CharBroadcast, "Broadcast") }
func (p *BLEProperties) Read() device.Property      { return p.get(ble.CharRead, "Read") }
func (p *BLEProperties) Write() device.Property     { return p.get(ble.CharWrite, "Write") }
func (p *BLEProperties) Notify() device.Property    { return p.get(ble.CharNotify, "Notify") }
func (p *BLEProperties) Indicate() device.Property  { return p.get(ble.CharIndicate, "Indicate") }

func (p *BLEProperties) WriteWithoutResponse() device.Property {
	return p.get(ble.CharWriteNR, "WriteWithoutResponse")
}

func (p *BLEProperties) AuthenticatedSignedWrites() device.Property {
	return p.get(ble.CharSignedWrite, "AuthenticatedSignedWrites")
}

func (p *BLEProperties) ExtendedProperties() device.Property {
	return p.get(ble.CharExtended, "ExtendedProperties")
}
