package driver

import (
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
)

func TestBreakersTripPerAddress(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	b := newBreakers(2, 20*time.Millisecond, logger)
	failure := &IncompatibleError{Address: "aa", Missing: []string{"fff5"}}

	b.record("aa", failure)
	assert.True(t, b.allow("aa"), "one failure MUST NOT trip a two-failure breaker")

	b.record("aa", failure)
	assert.False(t, b.allow("aa"), "consecutive failures MUST open the breaker")
	assert.Equal(t, gobreaker.StateOpen, b.state("aa"))
	assert.True(t, b.allow("bb"), "breakers MUST be independent per address")

	assert.Eventually(t, func() bool { return b.allow("aa") }, time.Second, 5*time.Millisecond,
		"breaker MUST allow a trial after the cool-down")
	assert.Equal(t, gobreaker.StateHalfOpen, b.state("aa"))

	b.record("aa", nil)
	assert.Equal(t, gobreaker.StateClosed, b.state("aa"), "a successful trial MUST close the breaker")
}

func TestBindCharacteristics(t *testing.T) {
	_, err := bindCharacteristics("aa", "fff0", nil, time.Second)

	var incompatible *IncompatibleError
	assert.ErrorAs(t, err, &incompatible)
	assert.Equal(t, []string{"service fff0"}, incompatible.Missing)
	assert.ErrorIs(t, err, ErrDeviceIncompatible)
}
