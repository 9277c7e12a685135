package driver

import (
	"errors"
	"fmt"
	"strings"
)

// Radio operations reported in RadioError.Op.
const (
	OpScan      = "scan"
	OpDial      = "dial"
	OpDiscover  = "discover"
	OpPair      = "pair"
	OpSetUnit   = "set-unit"
	OpSubscribe = "subscribe"
	OpKeepalive = "keepalive"
)

var (
	// ErrDeviceIncompatible matches every *IncompatibleError.
	ErrDeviceIncompatible = errors.New("device incompatible")

	// ErrNotReady is returned by operations that need a paired thermometer.
	ErrNotReady = errors.New("thermometer not ready")

	// ErrStopped is returned once Run has exited.
	ErrStopped = errors.New("driver stopped")

	// ErrAlreadyRunning is returned by a second call to Run.
	ErrAlreadyRunning = errors.New("driver already running")
)

// RadioError is a failed BLE operation. It is recoverable: the controller
// drops the connection and scans again, except for keepalive writes which are
// retried on the next tick.
type RadioError struct {
	Op      string
	Address string
	Err     error
}

func (e *RadioError) Error() string {
	if e.Address == "" {
		return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s failed: %v", e.Op, e.Address, e.Err)
}

func (e *RadioError) Unwrap() error { return e.Err }

// IncompatibleError lists the characteristics a peripheral lacks.
type IncompatibleError struct {
	Address string
	Missing []string
}

func (e *IncompatibleError) Error() string {
	return fmt.Sprintf("device %s incompatible: missing %s", e.Address, strings.Join(e.Missing, ", "))
}

// Is reports ErrDeviceIncompatible.
func (e *IncompatibleError) Is(target error) bool {
	return target == ErrDeviceIncompatible
}
