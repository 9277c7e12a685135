package testutils

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DescriptorConfig represents a BLE descriptor configuration for fakes
type DescriptorConfig struct {
	UUID  string `json:"uuid"`
	Value []byte `json:"value,omitempty"`
}

// CharacteristicConfig represents a BLE characteristic configuration for fakes
type CharacteristicConfig struct {
	UUID        string             `json:"uuid"`
	Properties  string             `json:"properties,omitempty"` // e.g., "read,write,notify"
	Value       []byte             `json:"value,omitempty"`
	Descriptors []DescriptorConfig `json:"descriptors,omitempty"`
}

// ServiceConfig represents a BLE service configuration for fakes
type ServiceConfig struct {
	UUID            string                 `json:"uuid"`
	Characteristics []CharacteristicConfig `json:"characteristics,omitempty"`
}

// DeviceProfileConfig represents the complete GATT profile of a fake peripheral
type DeviceProfileConfig struct {
	Services []ServiceConfig `json:"services"`
}

// PeripheralBuilder builds FakePeripheral instances with full service/characteristic support
type PeripheralBuilder struct {
	address string
	profile DeviceProfileConfig
}

// NewPeripheralBuilder creates a builder for a peripheral at address
func NewPeripheralBuilder(address string) *PeripheralBuilder {
	return &PeripheralBuilder{address: address}
}

// WithService adds a service to the device profile
func (b *PeripheralBuilder) WithService(uuid string) *PeripheralBuilder {
	b.profile.Services = append(b.profile.Services, ServiceConfig{UUID: uuid})
	return b
}

// WithCharacteristic adds a characteristic to the last added service
func (b *PeripheralBuilder) WithCharacteristic(uuid, properties string, value []byte) *PeripheralBuilder {
	if len(b.profile.Services) == 0 {
		panic("WithCharacteristic: no service added yet, call WithService first")
	}

	last := len(b.profile.Services) - 1
	b.profile.Services[last].Characteristics = append(b.profile.Services[last].Characteristics,
		CharacteristicConfig{UUID: uuid, Properties: properties, Value: value})
	return b
}

// FromJSON fills the device profile from JSON
func (b *PeripheralBuilder) FromJSON(jsonStrFmt string, args ...interface{}) *PeripheralBuilder {
	var cfg DeviceProfileConfig
	if err := json.Unmarshal([]byte(fmt.Sprintf(jsonStrFmt, args...)), &cfg); err != nil {
		panic(fmt.Sprintf("PeripheralBuilder.FromJSON: failed to unmarshal: %v", err))
	}
	b.profile = cfg
	return b
}

// Build creates the fake peripheral
func (b *PeripheralBuilder) Build() *FakePeripheral {
	return newFakePeripheral(b.address, b.profile)
}

// IBBQProfile is the GATT layout of an iBBQ thermometer.
const IBBQProfile = `{
	"services": [
		{
			"uuid": "1800",
			"characteristics": [
				{ "uuid": "2a00", "properties": "read", "value": [105, 66, 66, 81] }
			]
		},
		{
			"uuid": "fff0",
			"characteristics": [
				{ "uuid": "fff1", "properties": "notify", "descriptors": [{ "uuid": "2902", "value": [0, 0] }] },
				{ "uuid": "fff2", "properties": "write" },
				{ "uuid": "fff3", "properties": "notify" },
				{ "uuid": "fff4", "properties": "notify", "descriptors": [{ "uuid": "2902", "value": [0, 0] }] },
				{ "uuid": "fff5", "properties": "write" }
			]
		}
	]
}`

// IBBQPeripheral builds a peripheral with the iBBQ GATT layout.
func IBBQPeripheral(address string) *PeripheralBuilder {
	return NewPeripheralBuilder(address).FromJSON("%s", IBBQProfile)
}

// IBBQPeripheralWithout builds an iBBQ peripheral missing the given characteristics.
func IBBQPeripheralWithout(address string, missing ...string) *PeripheralBuilder {
	b := IBBQPeripheral(address)
	for i, svc := range b.profile.Services {
		kept := svc.Characteristics[:0]
		for _, c := range svc.Characteristics {
			drop := false
			for _, m := range missing {
				if strings.EqualFold(c.UUID, m) {
					drop = true
				}
			}
			if !drop {
				kept = append(kept, c)
			}
		}
		b.profile.Services[i].Characteristics = kept
	}
	return b
}
