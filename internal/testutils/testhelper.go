package testutils

import (
	"bytes"
	"time"

	"github.com/sirupsen/logrus"
)

// NewTestLogger returns a debug-level logger writing into buf, so tests can
// assert on log output.
func NewTestLogger(buf *bytes.Buffer) *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel) // enable debug logs to track execution flow
	logger.SetOutput(buf)
	logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true, DisableColors: true})
	return logger
}

// CreateMockAdvertisement starts an advertisement with name, address and RSSI.
func CreateMockAdvertisement(name, address string, rssi int) *AdvertisementBuilder {
	return NewAdvertisementBuilder().WithName(name).WithAddress(address).WithRSSI(rssi)
}

// CreateMockAdvertisementFromJSON starts an advertisement from JSON.
func CreateMockAdvertisementFromJSON(jsonStrFmt string, args ...interface{}) *AdvertisementBuilder {
	return NewAdvertisementBuilder().FromJSON(jsonStrFmt, args...)
}

// ManualTicker is a ticker driven by the test.
type ManualTicker struct {
	Interval time.Duration

	ch      chan time.Time
	stopped chan struct{}
}

// NewManualTicker creates a ticker that only fires on Tick.
func NewManualTicker(interval time.Duration) *ManualTicker {
	return &ManualTicker{
		Interval: interval,
		ch:       make(chan time.Time, 1),
		stopped:  make(chan struct{}),
	}
}

// C returns the tick channel.
func (t *ManualTicker) C() <-chan time.Time { return t.ch }

// Stop marks the ticker stopped. It is safe to call more than once.
func (t *ManualTicker) Stop() {
	select {
	case <-t.stopped:
	default:
		close(t.stopped)
	}
}

// Stopped reports whether Stop was called.
func (t *ManualTicker) Stopped() bool {
	select {
	case <-t.stopped:
		return true
	default:
		return false
	}
}

// Tick fires the ticker unless it is stopped or a tick is already pending.
func (t *ManualTicker) Tick() bool {
	if t.Stopped() {
		return false
	}
	select {
	case t.ch <- time.Now():
		return true
	default:
		return false
	}
}
