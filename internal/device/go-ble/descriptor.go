package goble

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/ibbq/internal/device"
)

// BLEDescriptor implements the Descriptor interface for BLE GATT descriptors.
type BLEDescriptor struct {
	uuid        string
	knownName   string
	value       []byte
	parsedValue interface{}
}

// newDescriptor reads the descriptor value best-effort. A zero read timeout
// skips the read; failures land in ParsedValue as *device.DescriptorError.
func (c *BLEClient) newDescriptor(ctx context.Context, d *ble.Descriptor) *BLEDescriptor {
	descRawUUID := d.UUID.String()
	desc := &BLEDescriptor{
		uuid:      device.NormalizeUUID(descRawUUID),
		knownName: device.LookupDescriptor(descRawUUID),
	}

	if c.descriptorReadTimeout == 0 {
		return desc
	}

	data, err := callWithTimeout(ctx, c.descriptorReadTimeout, func() ([]byte, error) {
		if len(d.Value) > 0 {
			return d.Value, nil
		}
		// go-ble on macOS does not populate descriptor handles
		if d.Handle == 0 {
			return nil, fmt.Errorf("descriptor handle not available")
		}
		return c.client.ReadDescriptor(d)
	})

	switch {
	case errors.Is(err, device.ErrTimeout):
		desc.parsedValue = &device.DescriptorError{Reason: "timeout"}
	case err != nil:
		desc.parsedValue = &device.DescriptorError{Reason: "read_error", Err: err}
	default:
		desc.value = data
		parsed, perr := device.ParseDescriptorValue(desc.uuid, data)
		if perr != nil {
			desc.parsedValue = &device.DescriptorError{Reason: "parse_error", Err: perr}
		} else {
			desc.parsedValue = parsed
		}
	}

	if derr, ok := desc.parsedValue.(*device.DescriptorError); ok {
		c.logger.WithFields(logrus.Fields{
			"descriptor_uuid": desc.uuid,
			"error":           derr,
		}).Debug("Failed to read descriptor value")
	}
	return desc
}

// UUID returns the normalized descriptor UUID.
func (d *BLEDescriptor) UUID() string { return d.uuid }

// KnownName returns the assigned name, or "" for unknown descriptors.
func (d *BLEDescriptor) KnownName() string { return d.knownName }

// Value returns the raw bytes, nil if the read failed or was skipped.
func (d *BLEDescriptor) Value() []byte { return d.value }

// ParsedValue returns the parsed value (*device.ClientConfig, string,
// *device.PresentationFormat or []byte), *device.DescriptorError on failure,
// nil if the read was skipped.
func (d *BLEDescriptor) ParsedValue() interface{} { return d.parsedValue }
