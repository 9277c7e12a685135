package goble

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/ibbq/internal/device"
)

// BLEClient is a live go-ble connection.
type BLEClient struct {
	address               string
	client                ble.Client
	descriptorReadTimeout time.Duration
	logger                *logrus.Logger
	disconnected          <-chan struct{}
}

func newClient(address string, client ble.Client, descriptorReadTimeout time.Duration, logger *logrus.Logger) *BLEClient {
	c := &BLEClient{
		address:               address,
		client:                client,
		descriptorReadTimeout: descriptorReadTimeout,
		logger:                logger,
	}

	if notifier, ok := client.(interface{ Disconnected() <-chan struct{} }); ok {
		c.disconnected = notifier.Disconnected()
	} else {
		logger.Debug("Client does not support Disconnected() channel")
		c.disconnected = make(chan struct{})
	}
	return c
}

// Address returns the peer address used to dial.
func (c *BLEClient) Address() string {
	return c.address
}

// Disconnected is closed by go-ble when the link drops.
func (c *BLEClient) Disconnected() <-chan struct{} {
	return c.disconnected
}

// CancelConnection tears the link down.
func (c *BLEClient) CancelConnection() error {
	return NormalizeError(c.client.CancelConnection())
}

// DiscoverServices runs full profile discovery and wraps the result.
func (c *BLEClient) DiscoverServices(ctx context.Context) ([]device.Service, error) {
	c.logger.WithField("address", c.address).Debug("Discovering services and characteristics...")

	profile, err := callWithTimeout(ctx, 0, func() (*ble.Profile, error) {
		return c.client.DiscoverProfile(true)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to discover profile: %w", NormalizeError(err))
	}

	services := make([]device.Service, 0, len(profile.Services))
	totalChars := 0
	for _, bleSvc := range profile.Services {
		svcRawUUID := bleSvc.UUID.String()
		svc := &BLEService{
			uuid:      device.NormalizeUUID(svcRawUUID),
			knownName: device.LookupService(svcRawUUID),
		}

		for _, bleChar := range bleSvc.Characteristics {
			descriptors := make([]device.Descriptor, 0, len(bleChar.Descriptors))
			for _, d := range bleChar.Descriptors {
				descriptors = append(descriptors, c.newDescriptor(ctx, d))
			}
			sort.Slice(descriptors, func(i, j int) bool {
				return descriptors[i].UUID() < descriptors[j].UUID()
			})
			svc.characteristics = append(svc.characteristics, newCharacteristic(bleChar, c, descriptors))
		}
		totalChars += len(svc.characteristics)
		services = append(services, svc)
	}

	c.logger.WithFields(logrus.Fields{
		"address":         c.address,
		"services":        len(services),
		"characteristics": totalChars,
	}).Debug("Profile discovered successfully")
	return services, nil
}
