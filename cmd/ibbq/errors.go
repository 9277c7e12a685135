package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/srg/ibbq/internal/device"
	"github.com/srg/ibbq/internal/driver"
)

// FormatUserError turns an error chain into a one-line message for the
// terminal.
func FormatUserError(err error) string {
	if err == nil {
		return ""
	}

	var incompatible *driver.IncompatibleError
	if errors.As(err, &incompatible) {
		return fmt.Sprintf("device %s is not an iBBQ thermometer (missing %s)",
			incompatible.Address, strings.Join(incompatible.Missing, ", "))
	}

	var notFound *device.NotFoundError
	if errors.As(err, &notFound) {
		return fmt.Sprintf("device does not match: %s", notFound.Error())
	}

	var radio *driver.RadioError
	if errors.As(err, &radio) {
		return fmt.Sprintf("bluetooth %s failed: %s", radio.Op, rootCause(radio.Err))
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, device.ErrTimeout):
		return fmt.Sprintf("operation timed out: %s", err)
	case errors.Is(err, device.ErrUnsupported):
		return "Bluetooth LE is not supported on this platform"
	case errors.Is(err, device.ErrBluetoothOff):
		return "Bluetooth is turned off"
	}
	return err.Error()
}

func rootCause(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}
