package driver

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"
)

// breakers holds one circuit breaker per peripheral address. A breaker trips
// after consecutive incompatible discoveries and keeps the address out of
// selection until its cool-down elapses. Radio failures are never recorded.
// Only the event loop touches it.
type breakers struct {
	failures uint32
	cooldown time.Duration
	logger   *logrus.Logger
	byAddr   map[string]*gobreaker.CircuitBreaker[struct{}]
}

func newBreakers(failures uint32, cooldown time.Duration, logger *logrus.Logger) *breakers {
	return &breakers{
		failures: failures,
		cooldown: cooldown,
		logger:   logger,
		byAddr:   make(map[string]*gobreaker.CircuitBreaker[struct{}]),
	}
}

func (b *breakers) get(address string) *gobreaker.CircuitBreaker[struct{}] {
	if cb, ok := b.byAddr[address]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        address,
		MaxRequests: 1, // one trial connection in half-open state
		Timeout:     b.cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= b.failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.logger.WithFields(logrus.Fields{
				"address": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Connection breaker state changed")
		},
	})
	b.byAddr[address] = cb
	return cb
}

// allow reports whether a connection to address may be attempted.
func (b *breakers) allow(address string) bool {
	return b.get(address).State() != gobreaker.StateOpen
}

// record stores a pairing (nil) or an incompatibility.
func (b *breakers) record(address string, outcome error) {
	_, _ = b.get(address).Execute(func() (struct{}, error) {
		return struct{}{}, outcome
	})
}

func (b *breakers) state(address string) gobreaker.State {
	return b.get(address).State()
}
