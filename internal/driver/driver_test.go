package driver_test

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/ibbq/internal/config"
	"github.com/srg/ibbq/internal/driver"
	"github.com/srg/ibbq/internal/protocol"
	"github.com/srg/ibbq/internal/testutils"
	"github.com/srg/ibbq/internal/thermometer"
	"github.com/stretchr/testify/suite"
)

const (
	thermoAddr  = "AA:BB:CC:DD:EE:01"
	waitTimeout = 2 * time.Second
	pollEvery   = 2 * time.Millisecond
)

var (
	pairFrameOp        = "write fff2 2107060504030201b8220000000000"
	celsiusFrameOp     = "write fff5 020000000000"
	fahrenheitFrameOp  = "write fff5 020100000000"
	subscribeTempOp    = "write fff5 0b0100000000"
	batteryFrameOp     = "write fff5 082400000000"
	subscribeTempChar  = "subscribe fff4"
	subscribeBattChar  = "subscribe fff1"
	batteryFiftyPctRaw = []byte{0x24, 0x64, 0x00, 0xC8, 0x00}
)

// tickerRecorder hands out manual tickers and remembers them.
type tickerRecorder struct {
	mu  sync.Mutex
	all []*testutils.ManualTicker
}

func (r *tickerRecorder) factory(interval time.Duration) driver.Ticker {
	t := testutils.NewManualTicker(interval)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.all = append(r.all, t)
	return t
}

func (r *tickerRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.all)
}

func (r *tickerRecorder) last() *testutils.ManualTicker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.all) == 0 {
		return nil
	}
	return r.all[len(r.all)-1]
}

type DriverTestSuite struct {
	suite.Suite

	cfg        *config.Config
	central    *testutils.FakeCentral
	peripheral *testutils.FakePeripheral
	tickers    *tickerRecorder
	drv        *driver.Driver
	sub        *driver.Subscription

	cancel context.CancelFunc
	runErr chan error
}

func TestDriverTestSuite(t *testing.T) {
	suite.Run(t, new(DriverTestSuite))
}

func (suite *DriverTestSuite) SetupTest() {
	// Connection settings stay at their defaults apart from the scan restart delay.
	suite.cfg = config.Default()
	suite.cfg.Connection.ScanRestartDelay = 10 * time.Millisecond

	suite.peripheral = testutils.IBBQPeripheral(thermoAddr).Build()
	suite.central = testutils.NewFakeCentral(suite.peripheral)
	suite.tickers = &tickerRecorder{}
	suite.runErr = nil
}

func (suite *DriverTestSuite) TearDownTest() {
	if suite.cancel == nil {
		return
	}
	suite.cancel()
	select {
	case err := <-suite.runErr:
		suite.NoError(err, "Run MUST return nil after cancellation")
	case <-time.After(waitTimeout):
		suite.Fail("Run MUST return after cancellation")
	}
	suite.cancel = nil
}

// start creates the driver from suite.cfg and runs it.
func (suite *DriverTestSuite) start() {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	drv, err := driver.New(suite.central, suite.cfg, logger,
		driver.WithTickerFactory(suite.tickers.factory),
		driver.WithWriteTimeout(time.Second))
	suite.Require().NoError(err)
	suite.drv = drv
	suite.sub = drv.Subscribe(512)

	ctx, cancel := context.WithCancel(context.Background())
	suite.cancel = cancel
	suite.runErr = make(chan error, 1)
	go func() { suite.runErr <- drv.Run(ctx) }()

	suite.Require().Eventually(suite.central.IsScanning, waitTimeout, pollEvery, "driver MUST start scanning")
}

func (suite *DriverTestSuite) snapshot() thermometer.Snapshot {
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	s, err := suite.drv.Snapshot(ctx)
	suite.Require().NoError(err)
	return s
}

func (suite *DriverTestSuite) waitStatus(status thermometer.Status) {
	suite.Require().Eventually(func() bool {
		return suite.snapshot().Status == status
	}, waitTimeout, pollEvery, "status MUST become %s", status)
}

func (suite *DriverTestSuite) advertise(address string) {
	suite.Require().Eventually(func() bool {
		return suite.central.Advertise(testutils.IBBQAdvertisement(address))
	}, waitTimeout, pollEvery, "advertisement of %s MUST reach a running scan", address)
}

// pair connects to the default peripheral and waits for the whole ready
// sequence, up to the keepalive ticker.
func (suite *DriverTestSuite) pair() {
	tickers := suite.tickers.count()
	suite.advertise(thermoAddr)
	suite.waitStatus(thermometer.Ready)
	suite.Require().Eventually(func() bool {
		return suite.peripheral.CountOps(batteryFrameOp) >= 1
	}, waitTimeout, pollEvery, "ready sequence MUST complete")
	suite.Require().Eventually(func() bool { return suite.tickers.count() == tickers+1 }, waitTimeout, pollEvery,
		"keepalive ticker MUST start once telemetry is set up")
}

func (suite *DriverTestSuite) waitEvent(match func(driver.Event) bool, what string) driver.Event {
	timeout := time.After(waitTimeout)
	for {
		select {
		case ev, ok := <-suite.sub.C():
			suite.Require().True(ok, "subscription closed while waiting for %s", what)
			if match(ev) {
				return ev
			}
		case <-timeout:
			suite.FailNow("timed out waiting for " + what)
			return nil
		}
	}
}

func waitFor[E driver.Event](suite *DriverTestSuite, pred func(E) bool) E {
	var zero E
	ev := suite.waitEvent(func(ev driver.Event) bool {
		e, ok := ev.(E)
		return ok && (pred == nil || pred(e))
	}, fmt.Sprintf("%T", zero))
	return ev.(E)
}

// pending drains the events already buffered in the subscription.
func (suite *DriverTestSuite) pending() []driver.Event {
	var out []driver.Event
	for {
		select {
		case ev, ok := <-suite.sub.C():
			if !ok {
				return out
			}
			out = append(out, ev)
		default:
			return out
		}
	}
}

func encodeProbes(values ...int16) []byte {
	frame := make([]byte, len(values)*2)
	for i, v := range values {
		binary.LittleEndian.PutUint16(frame[i*2:], uint16(v))
	}
	return frame
}

func temperatures(probes []thermometer.ProbeSnapshot) []*float64 {
	out := make([]*float64, len(probes))
	for i, p := range probes {
		out[i] = p.Temperature
	}
	return out
}

func ptr(v float64) *float64 { return &v }

func (suite *DriverTestSuite) TestReadySequence() {
	// GOAL: Verify the full connection sequence from scan to Ready
	//
	// TEST SCENARIO: matching advertisement → dial → discover → pair → ready commands in order

	suite.start()
	suite.pair()

	suite.Equal([]string{
		pairFrameOp,
		celsiusFrameOp,
		subscribeTempOp,
		subscribeTempChar,
		subscribeBattChar,
		batteryFrameOp,
	}, suite.peripheral.OpStrings(), "ready sequence MUST write and subscribe in order")

	var transitions []string
	suite.waitEvent(func(ev driver.Event) bool {
		if sc, ok := ev.(driver.StatusChanged); ok {
			transitions = append(transitions, sc.From.String()+"->"+sc.To.String())
		}
		_, paired := ev.(driver.DevicePaired)
		return paired
	}, "DevicePaired")
	suite.Equal([]string{
		"disconnected->scanning",
		"scanning->connecting",
		"connecting->discovering_services",
		"discovering_services->pairing",
		"pairing->ready",
	}, transitions, "MUST pass every state before DevicePaired")

	snap := suite.snapshot()
	suite.Equal(thermoAddr, snap.Address)
	suite.Equal("fff0", snap.ServiceUUID)
	suite.Eventually(func() bool { return !suite.central.IsScanning() }, waitTimeout, pollEvery,
		"scan MUST stop while connected")
	suite.Equal(1, suite.tickers.count(), "exactly one keepalive ticker MUST run")
}

func (suite *DriverTestSuite) TestSetupFailureStartsNoKeepalive() {
	// GOAL: Verify the keepalive ticker only exists after the telemetry setup succeeded
	//
	// TEST SCENARIO: fff4 subscribe fails after pairing → RadioError(subscribe) → Scanning, no ticker ever created

	subscribeErr := errors.New("cccd write rejected")
	suite.peripheral.FailSubscribe("fff4", subscribeErr)
	suite.start()

	suite.advertise(thermoAddr)

	ev := waitFor[driver.ErrorEvent](suite, nil)
	var re *driver.RadioError
	suite.Require().ErrorAs(ev.Err, &re)
	suite.Equal(driver.OpSubscribe, re.Op)
	suite.ErrorIs(ev.Err, subscribeErr)

	sc := waitFor(suite, func(ev driver.StatusChanged) bool { return ev.From == thermometer.Ready })
	suite.Equal(thermometer.Scanning, sc.To)
	suite.Zero(suite.tickers.count(), "keepalive ticker MUST NOT be created when setup fails")
	suite.Zero(suite.peripheral.CountOps(batteryFrameOp), "battery keepalive MUST NOT be written")
}

func (suite *DriverTestSuite) TestTemperatureNotifications() {
	// GOAL: Verify temperature frames become TemperatureUpdated events
	//
	// TEST SCENARIO: [205, -50, 0, 9999] → degrees; sentinel slot → probe absent

	suite.start()
	suite.pair()

	suite.Require().True(suite.peripheral.Notify("fff4", encodeProbes(205, -50, 0, 9999)))
	ev := waitFor[driver.TemperatureUpdated](suite, nil)

	suite.Equal(protocol.Celsius, ev.Unit)
	suite.Require().Len(ev.Probes, 4)
	suite.Equal([]*float64{ptr(20.5), ptr(-5.0), ptr(0.0), ptr(999.9)}, temperatures(ev.Probes))
	for i, p := range ev.Probes {
		suite.Equal(i+1, p.Position, "probes MUST be ordered by position")
		suite.True(p.Present)
	}

	suite.Require().True(suite.peripheral.Notify("fff4", []byte{0xF6, 0xFF, 0xCD, 0x00, 0xF6, 0xFF, 0xF6, 0xFF}))
	ev = waitFor[driver.TemperatureUpdated](suite, nil)
	suite.False(ev.Probes[0].Present, "sentinel MUST mark the probe absent")
	suite.Nil(ev.Probes[0].Temperature)
	suite.Equal(ptr(20.5), ev.Probes[1].Temperature)

	snap := suite.snapshot()
	suite.Equal(ev.Probes, snap.Probes, "snapshot MUST match the last event")
}

func (suite *DriverTestSuite) TestBatteryNotifications() {
	// GOAL: Verify battery frames become BatteryUpdated events with the max == 0 guard
	//
	// TEST SCENARIO: 100/200 → 50 %; 100/0 → invalid

	suite.start()
	suite.pair()

	suite.Require().True(suite.peripheral.Notify("fff1", batteryFiftyPctRaw))
	ev := waitFor[driver.BatteryUpdated](suite, nil)
	suite.Equal(driver.BatteryUpdated{Percent: 50, Valid: true, Current: 100, Max: 200}, ev)

	suite.Require().True(suite.peripheral.Notify("fff1", []byte{0x24, 0x64, 0x00, 0x00, 0x00}))
	ev = waitFor[driver.BatteryUpdated](suite, nil)
	suite.False(ev.Valid, "percentage MUST be undefined when max is zero")
	suite.Zero(ev.Percent)

	snap := suite.snapshot()
	suite.False(snap.Battery.Valid)
	suite.Equal(uint16(100), snap.Battery.Current)
}

func (suite *DriverTestSuite) TestMalformedNotification() {
	// GOAL: Verify decode errors are reported and leave previous readings untouched
	//
	// TEST SCENARIO: good frame → short frame → ProtocolError event → snapshot unchanged

	suite.start()
	suite.pair()

	suite.Require().True(suite.peripheral.Notify("fff4", encodeProbes(250, 260, 270, 280)))
	waitFor[driver.TemperatureUpdated](suite, nil)

	suite.Require().True(suite.peripheral.Notify("fff4", []byte{0x01, 0x02, 0x03}))
	ev := waitFor[driver.ErrorEvent](suite, nil)
	suite.Equal(driver.KindProtocolError, ev.Kind)
	suite.ErrorIs(ev.Err, protocol.ErrFrameTooShort)

	suite.Require().True(suite.peripheral.Notify("fff1", []byte{0x24}))
	ev = waitFor[driver.ErrorEvent](suite, nil)
	suite.Equal(driver.KindProtocolError, ev.Kind)

	snap := suite.snapshot()
	suite.Equal([]*float64{ptr(25), ptr(26), ptr(27), ptr(28)}, temperatures(snap.Probes), "MUST keep previous readings")
	suite.Equal(thermometer.Ready, snap.Status, "decode errors MUST NOT drop the connection")
}

func (suite *DriverTestSuite) TestDisconnect() {
	// GOAL: Verify a link drop returns to Scanning at once and silences the old session
	//
	// TEST SCENARIO: Ready → peripheral drops → Scanning, ticker stopped, rescan → stale handler ignored → reconnect

	suite.start()
	suite.pair()
	staleTemperature := suite.peripheral.Handler("fff4")
	suite.Require().NotNil(staleTemperature)
	ticker := suite.tickers.last()

	suite.peripheral.Disconnect()

	sc := waitFor(suite, func(ev driver.StatusChanged) bool { return ev.From == thermometer.Ready })
	suite.Equal(thermometer.Scanning, sc.To, "disconnect MUST go straight to Scanning")
	suite.True(ticker.Stopped(), "keepalive ticker MUST be stopped")
	suite.Require().Eventually(func() bool { return suite.central.ScanCount() == 2 }, waitTimeout, pollEvery,
		"scan MUST be re-issued")

	snap := suite.snapshot()
	suite.Empty(snap.Address, "address MUST be cleared")

	staleTemperature(encodeProbes(100, 100, 100, 100))
	suite.snapshot() // the loop handled the stale notification before answering
	for _, ev := range suite.pending() {
		_, isTemp := ev.(driver.TemperatureUpdated)
		suite.False(isTemp, "stale session MUST NOT produce events")
	}

	suite.peripheral.ResetOps()
	suite.advertise(thermoAddr)
	suite.waitStatus(thermometer.Ready)
	suite.Equal(2, suite.peripheral.Connections(), "MUST reconnect after disconnect")
	suite.Require().Eventually(func() bool { return suite.tickers.count() == 2 }, waitTimeout, pollEvery)
}

func (suite *DriverTestSuite) TestIncompatibleDevice() {
	// GOAL: Verify a peripheral missing a characteristic is rejected and skipped
	//
	// TEST SCENARIO: advertise broken device → DeviceIncompatible → Disconnected → Scanning →
	//                advertised 3 more times with default settings → never dialed again → good device pairs

	const brokenAddr = "AA:BB:CC:DD:EE:02"
	broken := testutils.IBBQPeripheralWithout(brokenAddr, "fff5").Build()
	suite.central.AddPeripheral(broken)
	suite.start()

	suite.advertise(brokenAddr)

	ev := waitFor(suite, func(ev driver.ErrorEvent) bool { return ev.Kind == driver.KindDeviceIncompatible })
	suite.ErrorIs(ev.Err, driver.ErrDeviceIncompatible)
	var incompatible *driver.IncompatibleError
	suite.Require().ErrorAs(ev.Err, &incompatible)
	suite.Equal([]string{"fff5"}, incompatible.Missing)
	suite.Equal(brokenAddr, incompatible.Address)

	sc := waitFor[driver.StatusChanged](suite, nil)
	suite.Equal(driver.StatusChanged{From: thermometer.DiscoveringServices, To: thermometer.Disconnected}, sc)
	sc = waitFor[driver.StatusChanged](suite, nil)
	suite.Equal(driver.StatusChanged{From: thermometer.Disconnected, To: thermometer.Scanning}, sc)

	suite.Require().Eventually(func() bool { return broken.CountOps("cancel") == 1 }, waitTimeout, pollEvery,
		"connection MUST be cancelled")
	suite.Zero(broken.CountOps("write"), "incompatible device MUST NOT be paired")

	for i := 0; i < 3; i++ {
		suite.advertise(brokenAddr)
		suite.Equal(thermometer.Scanning, suite.snapshot().Status, "open breaker MUST skip the address")
	}
	suite.Equal([]string{brokenAddr}, suite.central.Dials(), "incompatible device MUST be dialed once")

	suite.pair()
	suite.Equal([]string{brokenAddr, thermoAddr}, suite.central.Dials())
}

func (suite *DriverTestSuite) TestScanFiltering() {
	// GOAL: Verify non-matching advertisements are ignored and scanning is not restarted
	//
	// TEST SCENARIO: wrong name, wrong service → no dial, one scan

	suite.start()

	suite.True(suite.central.Advertise(testutils.NewAdvertisementBuilder().
		WithName("Other").WithAddress("11:11:11:11:11:11").WithServices("fff0").Build()))
	suite.True(suite.central.Advertise(testutils.NewAdvertisementBuilder().
		WithName("iBBQ").WithAddress("22:22:22:22:22:22").WithServices("180f").Build()))

	suite.Equal(thermometer.Scanning, suite.snapshot().Status)
	suite.Empty(suite.central.Dials(), "non-matching devices MUST NOT be dialed")
	suite.Equal(1, suite.central.ScanCount(), "scan MUST be issued once")
}

func (suite *DriverTestSuite) TestScanFailureRestarts() {
	// GOAL: Verify a failed scan is reported and retried after the restart delay
	//
	// TEST SCENARIO: scan error → RadioError(scan) → new scan

	suite.start()
	radioErr := errors.New("hci reset")
	suite.Require().True(suite.central.FailScan(radioErr))

	ev := waitFor[driver.ErrorEvent](suite, nil)
	suite.Equal(driver.KindRadioError, ev.Kind)
	var re *driver.RadioError
	suite.Require().ErrorAs(ev.Err, &re)
	suite.Equal(driver.OpScan, re.Op)
	suite.ErrorIs(ev.Err, radioErr)

	suite.Require().Eventually(func() bool { return suite.central.ScanCount() == 2 && suite.central.IsScanning() },
		waitTimeout, pollEvery, "scan MUST be retried")
	suite.pair()
}

func (suite *DriverTestSuite) TestDialError() {
	// GOAL: Verify dial failures are reported, scanning resumes and the address is never skipped for them
	//
	// TEST SCENARIO: three failing dials with default settings → RadioError(dial) + Scanning each time →
	//                dial fixed → advertised again → dialed a fourth time → Ready

	dialErr := errors.New("connection refused")
	suite.central.FailDial(thermoAddr, dialErr)
	suite.start()

	for attempt := 1; attempt <= 3; attempt++ {
		suite.advertise(thermoAddr)

		ev := waitFor[driver.ErrorEvent](suite, nil)
		var re *driver.RadioError
		suite.Require().ErrorAs(ev.Err, &re)
		suite.Equal(driver.OpDial, re.Op)
		suite.Equal(thermoAddr, re.Address)
		suite.ErrorIs(ev.Err, dialErr)

		sc := waitFor(suite, func(ev driver.StatusChanged) bool { return ev.From == thermometer.Connecting })
		suite.Equal(thermometer.Scanning, sc.To)
		suite.Len(suite.central.Dials(), attempt, "every advertisement MUST be dialed")
	}

	suite.central.FailDial(thermoAddr, nil)
	suite.pair()
	suite.Len(suite.central.Dials(), 4, "dial failures MUST NOT open the breaker")
}

func (suite *DriverTestSuite) TestPairingWriteError() {
	// GOAL: Verify a rejected pairing write drops the connection
	//
	// TEST SCENARIO: fff2 write fails → RadioError(pair) → cancel → Scanning → write fixed → Ready

	suite.peripheral.FailWrites("fff2", errors.New("write rejected"))
	suite.start()

	suite.advertise(thermoAddr)

	ev := waitFor[driver.ErrorEvent](suite, nil)
	var re *driver.RadioError
	suite.Require().ErrorAs(ev.Err, &re)
	suite.Equal(driver.OpPair, re.Op)

	suite.waitStatus(thermometer.Scanning)
	suite.Require().Eventually(func() bool { return suite.peripheral.CountOps("cancel") == 1 }, waitTimeout, pollEvery)
	suite.Zero(suite.tickers.count(), "keepalive MUST NOT start without pairing")

	suite.peripheral.FailWrites("fff2", nil)
	suite.pair()
	suite.Equal([]string{thermoAddr, thermoAddr}, suite.central.Dials(), "pairing failures MUST NOT open the breaker")
}

func (suite *DriverTestSuite) TestSetUnits() {
	// GOAL: Verify unit switching is only accepted when Ready and writes the unit frame
	//
	// TEST SCENARIO: Scanning → ErrNotReady; invalid unit → error; Ready → F frame written → events carry F;
	//                rejected C write → error, unit stays F

	suite.start()
	ctx := context.Background()

	suite.ErrorIs(suite.drv.SetUnits(ctx, protocol.Fahrenheit), driver.ErrNotReady)
	suite.ErrorIs(suite.drv.SetUnits(ctx, protocol.Unit(9)), protocol.ErrUnsupportedUnit)

	suite.pair()
	suite.peripheral.ResetOps()

	suite.Require().NoError(suite.drv.SetUnits(ctx, protocol.Fahrenheit))
	suite.Equal([]string{fahrenheitFrameOp}, suite.peripheral.OpStrings())
	suite.Equal(protocol.Fahrenheit, suite.snapshot().Unit)

	suite.Require().True(suite.peripheral.Notify("fff4", encodeProbes(700, 710, 720, 730)))
	ev := waitFor[driver.TemperatureUpdated](suite, nil)
	suite.Equal(protocol.Fahrenheit, ev.Unit)

	writeErr := errors.New("att error")
	suite.peripheral.FailWrites("fff5", writeErr)
	err := suite.drv.SetUnits(ctx, protocol.Celsius)
	suite.ErrorIs(err, writeErr, "MUST return the write result")
	var re *driver.RadioError
	suite.Require().ErrorAs(err, &re)
	suite.Equal(driver.OpSetUnit, re.Op)
	suite.Equal(thermoAddr, re.Address)
	suite.Equal(protocol.Fahrenheit, suite.snapshot().Unit, "a rejected write MUST keep the previous unit")

	suite.Require().True(suite.peripheral.Notify("fff4", encodeProbes(700, 710, 720, 730)))
	ev = waitFor[driver.TemperatureUpdated](suite, nil)
	suite.Equal(protocol.Fahrenheit, ev.Unit, "readings MUST keep the acknowledged unit")
}

func (suite *DriverTestSuite) TestKeepalive() {
	// GOAL: Verify the battery keepalive writes on every tick and survives write errors
	//
	// TEST SCENARIO: tick → battery frame; failing write → RadioError(keepalive), still Ready

	suite.start()
	suite.pair()
	ticker := suite.tickers.last()
	suite.Equal(suite.cfg.Connection.KeepaliveInterval, ticker.Interval)

	suite.Require().True(ticker.Tick())
	suite.Require().Eventually(func() bool { return suite.peripheral.CountOps(batteryFrameOp) == 2 },
		waitTimeout, pollEvery, "tick MUST write the battery frame")

	writeErr := errors.New("busy")
	suite.peripheral.FailWrites("fff5", writeErr)
	suite.Require().Eventually(ticker.Tick, waitTimeout, pollEvery)

	ev := waitFor[driver.ErrorEvent](suite, nil)
	var re *driver.RadioError
	suite.Require().ErrorAs(ev.Err, &re)
	suite.Equal(driver.OpKeepalive, re.Op)
	suite.Equal(thermometer.Ready, suite.snapshot().Status, "keepalive failure MUST NOT drop the connection")
	suite.False(ticker.Stopped())
}

func (suite *DriverTestSuite) TestShutdown() {
	// GOAL: Verify Run cleans up on cancellation
	//
	// TEST SCENARIO: Ready → cancel → Run returns nil → link cancelled, ticker stopped, subscription closed

	suite.start()
	suite.pair()
	ticker := suite.tickers.last()

	suite.cancel()
	select {
	case err := <-suite.runErr:
		suite.NoError(err)
	case <-time.After(waitTimeout):
		suite.FailNow("Run MUST return after cancellation")
	}
	suite.cancel = nil

	suite.True(ticker.Stopped())
	suite.Equal(1, suite.peripheral.CountOps("cancel"), "connection MUST be cancelled")
	suite.False(suite.central.IsScanning())

	var last driver.Event
	for ev := range suite.sub.C() {
		last = ev
	}
	suite.Equal(driver.StatusChanged{From: thermometer.Ready, To: thermometer.Disconnected}, last)

	_, err := suite.drv.Snapshot(context.Background())
	suite.ErrorIs(err, driver.ErrStopped)
	suite.ErrorIs(suite.drv.SetUnits(context.Background(), protocol.Celsius), driver.ErrStopped)
	suite.ErrorIs(suite.drv.Run(context.Background()), driver.ErrAlreadyRunning)

	late := suite.drv.Subscribe(1)
	_, open := <-late.C()
	suite.False(open, "subscriptions after shutdown MUST be closed")
}
