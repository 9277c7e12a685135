package inspector

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/ibbq/internal/device"
)

// ProgressCallback is called when the inspection phase changes
type ProgressCallback func(phase string)

// InspectOptions defines options for inspecting a BLE device profile
type InspectOptions struct {
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
}

// DefaultInspectOptions are used when nil options are passed.
func DefaultInspectOptions() *InspectOptions {
	return &InspectOptions{ConnectTimeout: 30 * time.Second, ReadTimeout: 5 * time.Second}
}

// InspectCallback processes a connected device and produces output of type R
type InspectCallback[R any] func(client device.Client, services []device.Service) (R, error)

// InspectDevice connects to a device, discovers its profile, and executes the callback with the discovered services.
// The connection is always cancelled before returning.
func InspectDevice[R any](ctx context.Context, central device.Central, address string, opts *InspectOptions, logger *logrus.Logger, progressCallback ProgressCallback, callback InspectCallback[R]) (R, error) {
	var zero R
	if opts == nil {
		opts = DefaultInspectOptions()
	}
	if logger == nil {
		logger = logrus.New()
	}
	if progressCallback == nil {
		progressCallback = func(string) {} // No-op callback
	}

	progressCallback("Connecting")
	logger.WithField("address", address).Info("Connecting to BLE device...")

	dialCtx := ctx
	if opts.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, opts.ConnectTimeout)
		defer cancel()
	}

	client, err := central.Dial(dialCtx, address)
	if err != nil {
		progressCallback("Failed")
		return zero, fmt.Errorf("failed to connect to %s: %w", address, err)
	}

	// Ensure the device is disconnected after the callback completes
	defer func() {
		if err := client.CancelConnection(); err != nil {
			logger.WithError(err).Error("failed to disconnect device")
		}
	}()

	progressCallback("Discovering services")
	services, err := client.DiscoverServices(dialCtx)
	if err != nil {
		progressCallback("Failed")
		return zero, fmt.Errorf("failed to discover services of %s: %w", address, err)
	}

	logger.WithFields(logrus.Fields{
		"address":  address,
		"services": len(services),
	}).Debug("Service discovery completed")

	progressCallback("Processing results")
	return callback(client, services)
}
