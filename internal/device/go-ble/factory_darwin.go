//go:build darwin

package goble

import (
	"github.com/go-ble/ble"
	"github.com/go-ble/ble/darwin"
)

func defaultDevice(opts ...ble.Option) (ble.Device, error) {
	return darwin.NewDevice(opts...)
}
