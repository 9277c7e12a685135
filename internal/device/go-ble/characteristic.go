package goble

import (
	"context"
	"fmt"
	"time"

	"github.com/go-ble/ble"
	"github.com/srg/ibbq/internal/device"
)

// DefaultReadTimeout is used when Read is called with a zero timeout.
const DefaultReadTimeout = 5 * time.Second

// BLECharacteristic wraps a discovered ble.Characteristic and the client it belongs to.
type BLECharacteristic struct {
	uuid        string
	knownName   string
	properties  device.Properties
	descriptors []device.Descriptor

	BLEChar *ble.Characteristic
	client  *BLEClient
}

func newCharacteristic(c *ble.Characteristic, client *BLEClient, descriptors []device.Descriptor) *BLECharacteristic {
	raw := c.UUID.String()
	return &BLECharacteristic{
		uuid:        device.NormalizeUUID(raw),
		knownName:   device.LookupCharacteristic(raw),
		properties:  NewProperties(c.Property),
		descriptors: descriptors,
		BLEChar:     c,
		client:      client,
	}
}

func (c *BLECharacteristic) UUID() string                        { return c.uuid }
func (c *BLECharacteristic) KnownName() string                   { return c.knownName }
func (c *BLECharacteristic) GetProperties() device.Properties    { return c.properties }
func (c *BLECharacteristic) GetDescriptors() []device.Descriptor { return c.descriptors }

// Read reads the current value of the characteristic with the specified timeout.
func (c *BLECharacteristic) Read(timeout time.Duration) ([]byte, error) {
	if timeout <= 0 {
		timeout = DefaultReadTimeout
	}
	data, err := callWithTimeout(context.Background(), timeout, func() ([]byte, error) {
		return c.client.client.ReadCharacteristic(c.BLEChar)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read characteristic %s: %w", c.uuid, NormalizeError(err))
	}
	return data, nil
}

// Write writes data. withResponse selects an acknowledged ATT write request
// over a write command.
func (c *BLECharacteristic) Write(data []byte, withResponse bool, timeout time.Duration) error {
	_, err := callWithTimeout(context.Background(), timeout, func() (struct{}, error) {
		return struct{}{}, c.client.client.WriteCharacteristic(c.BLEChar, data, !withResponse)
	})
	if err != nil {
		return fmt.Errorf("failed to write characteristic %s: %w", c.uuid, NormalizeError(err))
	}
	return nil
}

// Subscribe enables notifications (indications when notify is not supported).
func (c *BLECharacteristic) Subscribe(handler func([]byte)) error {
	indicate := c.BLEChar.Property&ble.CharNotify == 0 && c.BLEChar.Property&ble.CharIndicate != 0
	err := c.client.client.Subscribe(c.BLEChar, indicate, func(req []byte) {
		buf := make([]byte, len(req))
		copy(buf, req)
		handler(buf)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to characteristic %s: %w", c.uuid, NormalizeError(err))
	}
	return nil
}

// Unsubscribe disables notifications.
func (c *BLECharacteristic) Unsubscribe() error {
	indicate := c.BLEChar.Property&ble.CharNotify == 0 && c.BLEChar.Property&ble.CharIndicate != 0
	if err := c.client.client.Unsubscribe(c.BLEChar, indicate); err != nil {
		return fmt.Errorf("failed to unsubscribe from characteristic %s: %w", c.uuid, NormalizeError(err))
	}
	return nil
}
