package goble

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/ibbq/internal/device"
)

const (
	// DefaultDescriptorReadTimeout bounds each descriptor read during discovery.
	DefaultDescriptorReadTimeout = 2 * time.Second
)

// Central implements device.Central on top of a go-ble HCI/CoreBluetooth device.
type Central struct {
	dev    ble.Device
	logger *logrus.Logger

	// DescriptorReadTimeout bounds descriptor reads during discovery; 0 skips them.
	DescriptorReadTimeout time.Duration
}

// NewCentral opens the default BLE adapter through DeviceFactory.
func NewCentral(logger *logrus.Logger) (*Central, error) {
	if logger == nil {
		logger = logrus.New()
	}

	dev, err := DeviceFactory()
	if err != nil {
		logger.WithField("error", err).Error("Failed to create BLE device")
		return nil, fmt.Errorf("failed to create BLE device: %w", NormalizeError(err))
	}
	ble.SetDefaultDevice(dev)

	return &Central{
		dev:                   dev,
		logger:                logger,
		DescriptorReadTimeout: DefaultDescriptorReadTimeout,
	}, nil
}

// Scan wraps the raw ble.Device.Scan to convert ble.Advertisement to the device.Advertisement.
// A scan ended by ctx returns nil.
func (c *Central) Scan(ctx context.Context, allowDup bool, handler func(device.Advertisement)) error {
	bleHandler := func(adv ble.Advertisement) {
		handler(NewBLEAdvertisement(adv))
	}
	err := c.dev.Scan(ctx, allowDup, bleHandler)
	if err != nil && ctx.Err() == nil {
		return NormalizeError(err)
	}
	return nil
}

// Dial connects to the peripheral with the given address.
func (c *Central) Dial(ctx context.Context, address string) (device.Client, error) {
	if strings.TrimSpace(address) == "" {
		return nil, fmt.Errorf("device address is empty")
	}

	c.logger.WithField("address", address).Debug("Dialing BLE device...")
	client, err := c.dev.Dial(ctx, ble.NewAddr(address))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to device with address %q: %w", address, NormalizeError(err))
	}
	return newClient(address, client, c.DescriptorReadTimeout, c.logger), nil
}

// Stop releases the adapter.
func (c *Central) Stop() error {
	return NormalizeError(c.dev.Stop())
}

type result[T any] struct {
	val T
	err error
}

// callWithTimeout runs a blocking go-ble call and gives up after timeout or
// when ctx is done. The call keeps running in the background if abandoned.
func callWithTimeout[T any](ctx context.Context, timeout time.Duration, fn func() (T, error)) (T, error) {
	resultCh := make(chan result[T], 1)
	go func() {
		v, err := fn()
		resultCh <- result[T]{val: v, err: err}
	}()

	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}

	var zero T
	select {
	case r := <-resultCh:
		return r.val, r.err
	case <-timer:
		return zero, fmt.Errorf("%w after %v", device.ErrTimeout, timeout)
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
