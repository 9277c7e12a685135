// Package driver connects to an iBBQ thermometer and turns its notifications
// into typed events.
//
// A Driver runs one event loop goroutine that owns the thermometer model, the
// characteristic bindings, the scan state and the keepalive ticker. Every
// blocking BLE call runs in a named worker goroutine that reports back to the
// loop through its inbox, tagged with the connection session it belongs to.
// Results carrying a session that is no longer live are discarded, which is
// what makes a disconnect take effect within a single loop iteration.
package driver

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
	"github.com/srg/ibbq/internal/config"
	"github.com/srg/ibbq/internal/device"
	"github.com/srg/ibbq/internal/groutine"
	"github.com/srg/ibbq/internal/protocol"
	"github.com/srg/ibbq/internal/thermometer"
	"github.com/srg/ibbq/scanner"
	"golang.org/x/time/rate"
)

const (
	inboxSize           = 64
	defaultWriteTimeout = 5 * time.Second
)

var errScanEnded = errors.New("scan ended unexpectedly")

// Ticker drives the battery keepalive.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFactory creates a Ticker firing every interval.
type TickerFactory func(interval time.Duration) Ticker

type timeTicker struct{ t *time.Ticker }

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

func newTimeTicker(interval time.Duration) Ticker {
	return timeTicker{t: time.NewTicker(interval)}
}

// Option configures a Driver.
type Option func(*Driver)

// WithTickerFactory replaces the keepalive ticker source.
func WithTickerFactory(f TickerFactory) Option {
	return func(d *Driver) { d.newTicker = f }
}

// WithWriteTimeout bounds every characteristic write.
func WithWriteTimeout(timeout time.Duration) Option {
	return func(d *Driver) { d.writeTimeout = timeout }
}

// Driver is the connection controller and telemetry dispatcher for one
// thermometer.
type Driver struct {
	central      device.Central
	cfg          *config.Config
	codec        protocol.Codec
	filter       scanner.Filter
	logger       *logrus.Logger
	newTicker    TickerFactory
	writeTimeout time.Duration
	advHandler   func(device.Advertisement)

	inbox   chan message
	done    chan struct{}
	started atomic.Bool
	workers groutine.Group
	subs    *subscribers

	// Owned by the event loop.
	runCtx       context.Context
	model        *thermometer.Model
	breakers     *breakers
	session      *session
	ticker       Ticker
	scanning     bool
	scanGen      uint64
	scanCancel   context.CancelFunc
	scanDone     chan struct{}
	restartTimer *time.Timer
	decodeLog    rate.Sometimes
	keepaliveLog rate.Sometimes
}

// session is one connection attempt, from dial to disconnect.
type session struct {
	id       string
	address  string
	ctx      context.Context
	cancel   context.CancelFunc
	client   device.Client
	bindings *bindings
}

// New creates a driver. cfg nil means config.Default(); logger nil means a
// default logrus logger.
func New(central device.Central, cfg *config.Config, logger *logrus.Logger, opts ...Option) (*Driver, error) {
	if central == nil {
		return nil, errors.New("driver: central is required")
	}
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = logrus.New()
	}

	codec, err := cfg.Codec()
	if err != nil {
		return nil, fmt.Errorf("invalid protocol configuration: %w", err)
	}
	serviceUUID := device.NormalizeUUID(cfg.Device.ServiceUUID)
	if serviceUUID == "" {
		return nil, fmt.Errorf("invalid service UUID %q", cfg.Device.ServiceUUID)
	}
	model, err := thermometer.New(serviceUUID, cfg.Device.Unit, cfg.ProbeConfigs())
	if err != nil {
		return nil, fmt.Errorf("invalid device configuration: %w", err)
	}

	d := &Driver{
		central: central,
		cfg:     cfg,
		codec:   codec,
		filter: scanner.Filter{
			ServiceUUIDs: []string{serviceUUID},
			LocalName:    cfg.Device.LocalName,
		},
		logger:       logger,
		newTicker:    newTimeTicker,
		writeTimeout: defaultWriteTimeout,
		inbox:        make(chan message, inboxSize),
		done:         make(chan struct{}),
		subs:         newSubscribers(),
		model:        model,
		breakers:     newBreakers(cfg.Connection.BreakerFailures, cfg.Connection.BreakerCooldown, logger),
		decodeLog:    rate.Sometimes{First: 3, Interval: 30 * time.Second},
		keepaliveLog: rate.Sometimes{First: 1, Interval: 30 * time.Second},
	}
	// One handler for the driver lifetime; scan restarts reuse it.
	d.advHandler = d.onAdvertisement

	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Subscribe returns a feed of events. buffer <= 0 selects
// DefaultSubscriptionBuffer. The feed is closed when Run returns.
func (d *Driver) Subscribe(buffer int) *Subscription {
	return d.subs.add(buffer)
}

// Snapshot returns a copy of the thermometer state. It needs Run to be serving.
func (d *Driver) Snapshot(ctx context.Context) (thermometer.Snapshot, error) {
	reply := make(chan thermometer.Snapshot, 1)
	if err := d.request(ctx, snapshotMsg{reply: reply}); err != nil {
		return thermometer.Snapshot{}, err
	}
	select {
	case s := <-reply:
		return s, nil
	case <-d.done:
		return thermometer.Snapshot{}, ErrStopped
	case <-ctx.Done():
		return thermometer.Snapshot{}, ctx.Err()
	}
}

// SetUnits switches the display unit. It fails with ErrNotReady until the
// thermometer is paired and returns the result of the command write. The
// new unit labels readings only after the write is acknowledged. Readings
// already received are left as they are.
func (d *Driver) SetUnits(ctx context.Context, unit protocol.Unit) error {
	if !unit.Valid() {
		return fmt.Errorf("%w: %d", protocol.ErrUnsupportedUnit, int(unit))
	}
	reply := make(chan error, 1)
	if err := d.request(ctx, setUnitsMsg{unit: unit, reply: reply}); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-d.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run scans for the thermometer and keeps it connected until ctx is done.
// On exit it stops scanning, drops the connection, stops the keepalive and
// closes every subscription. It returns nil after cancellation.
func (d *Driver) Run(ctx context.Context) error {
	if !d.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	d.runCtx = ctx

	d.logger.WithFields(logrus.Fields{
		"service":    d.model.ServiceUUID,
		"local_name": d.filter.LocalName,
		"probes":     d.model.ProbeCount(),
		"unit":       d.model.Unit.String(),
	}).Info("Starting iBBQ driver")

	d.setStatus(thermometer.Scanning)
	d.startScan()

	for {
		select {
		case <-ctx.Done():
			d.shutdown()
			return nil
		case msg := <-d.inbox:
			d.handle(msg)
		case <-d.tickC():
			d.keepalive()
		}
	}
}

func (d *Driver) shutdown() {
	d.stopScan()
	if d.restartTimer != nil {
		d.restartTimer.Stop()
	}
	if s := d.session; s != nil {
		d.dropSession(s, thermometer.Disconnected)
	} else {
		d.setStatus(thermometer.Disconnected)
	}

	close(d.done)
	d.workers.Wait()
	d.subs.closeAll()
	d.logger.Info("iBBQ driver stopped")
}

// post hands msg to the loop. It reports false once the driver is stopped.
func (d *Driver) post(msg message) bool {
	select {
	case d.inbox <- msg:
		return true
	case <-d.done:
		return false
	}
}

func (d *Driver) request(ctx context.Context, msg message) error {
	select {
	case d.inbox <- msg:
		return nil
	case <-d.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Driver) tickC() <-chan time.Time {
	if d.ticker == nil {
		return nil
	}
	return d.ticker.C()
}

func (d *Driver) emit(ev Event) {
	d.subs.publish(ev)
}

func (d *Driver) setStatus(to thermometer.Status) {
	from := d.model.Status
	if from == to {
		return
	}
	d.model.Status = to
	d.statusChanged(from, to)
}

func (d *Driver) statusChanged(from, to thermometer.Status) {
	if from == to {
		return
	}
	d.logger.WithFields(logrus.Fields{
		"from": from.String(),
		"to":   to.String(),
	}).Debug("Status changed")
	d.emit(StatusChanged{From: from, To: to})
}

func (d *Driver) sessionLogger(s *session) *logrus.Entry {
	return d.logger.WithFields(logrus.Fields{
		"address": s.address,
		"session": s.id,
	})
}

// live returns the current session if its id matches.
func (d *Driver) live(id string) *session {
	if d.session == nil || d.session.id != id {
		return nil
	}
	return d.session
}

// Scanning

func (d *Driver) startScan() {
	if d.scanning {
		return
	}
	d.scanning = true
	d.scanGen++
	gen := d.scanGen

	ctx, cancel := context.WithCancel(d.runCtx)
	d.scanCancel = cancel
	prev := d.scanDone
	done := make(chan struct{})
	d.scanDone = done

	d.logger.WithField("service", d.model.ServiceUUID).Info("Scanning for thermometer...")

	d.workers.Go(ctx, "ibbq-scan", func(ctx context.Context) {
		defer close(done)
		// The radio allows one scan at a time.
		if prev != nil {
			<-prev
		}
		if ctx.Err() != nil {
			return
		}
		err := d.central.Scan(ctx, false, d.advHandler)
		d.post(scanEndedMsg{gen: gen, err: err})
	})
}

func (d *Driver) stopScan() {
	if !d.scanning {
		return
	}
	d.scanning = false
	d.scanCancel()
}

// onAdvertisement runs on the BLE stack goroutine. Reports are dropped when
// the loop is backed up; the peripheral keeps advertising.
func (d *Driver) onAdvertisement(adv device.Advertisement) {
	select {
	case d.inbox <- advertisementMsg{adv: adv}:
	case <-d.done:
	default:
	}
}

func (d *Driver) handleScanEnded(m scanEndedMsg) {
	if m.gen != d.scanGen || !d.scanning {
		return
	}
	d.scanning = false
	d.scanCancel()
	if d.runCtx.Err() != nil {
		return
	}

	err := m.err
	if err == nil {
		err = errScanEnded
	}
	d.logger.WithError(err).WithField("retry_in", d.cfg.Connection.ScanRestartDelay).Warn("Scan stopped, will retry")
	d.emit(ErrorEvent{Kind: KindRadioError, Err: &RadioError{Op: OpScan, Err: err}})

	d.restartTimer = time.AfterFunc(d.cfg.Connection.ScanRestartDelay, func() {
		d.post(restartScanMsg{})
	})
}

func (d *Driver) handleAdvertisement(adv device.Advertisement) {
	if d.model.Status != thermometer.Scanning {
		return
	}
	if !d.filter.Match(adv) {
		return
	}
	address := adv.Addr()
	if !d.breakers.allow(address) {
		d.logger.WithField("address", address).Debug("Skipping thermometer with open connection breaker")
		return
	}
	d.connect(address, adv.RSSI())
}

// Connection sequence

func (d *Driver) connect(address string, rssi int) {
	d.stopScan()
	if d.restartTimer != nil {
		d.restartTimer.Stop()
	}

	ctx, cancel := context.WithCancel(d.runCtx)
	s := &session{id: ulid.Make().String(), address: address, ctx: ctx, cancel: cancel}
	d.session = s
	d.model.Address = address

	d.sessionLogger(s).WithField("rssi", rssi).Info("Connecting to thermometer...")
	d.setStatus(thermometer.Connecting)

	timeout := d.cfg.Connection.ConnectTimeout
	d.workers.Go(ctx, "ibbq-dial", func(ctx context.Context) {
		dialCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		client, err := d.central.Dial(dialCtx, address)
		if !d.post(dialResultMsg{session: s.id, client: client, err: err}) && client != nil {
			_ = client.CancelConnection()
		}
	})
}

func (d *Driver) handleDialResult(m dialResultMsg) {
	s := d.live(m.session)
	if s == nil {
		if m.client != nil {
			d.cancelClient(m.client)
		}
		return
	}
	if m.err != nil {
		d.fail(s, &RadioError{Op: OpDial, Address: s.address, Err: m.err})
		return
	}

	client := m.client
	s.client = client
	d.watchLink(s)
	d.setStatus(thermometer.DiscoveringServices)

	timeout := d.cfg.Connection.ConnectTimeout
	d.workers.Go(s.ctx, "ibbq-discover", func(ctx context.Context) {
		discoverCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		services, err := client.DiscoverServices(discoverCtx)
		d.post(discoveredMsg{session: s.id, services: services, err: err})
	})
}

// watchLink reports the link drop of s to the loop.
func (d *Driver) watchLink(s *session) {
	client := s.client
	d.workers.Go(s.ctx, "ibbq-link-monitor", func(ctx context.Context) {
		select {
		case <-client.Disconnected():
			d.post(disconnectedMsg{session: s.id})
		case <-ctx.Done():
		}
	})
}

func (d *Driver) handleDiscovered(m discoveredMsg) {
	s := d.live(m.session)
	if s == nil {
		return
	}
	if m.err != nil {
		d.fail(s, &RadioError{Op: OpDiscover, Address: s.address, Err: m.err})
		return
	}

	b, err := bindCharacteristics(s.address, d.model.ServiceUUID, m.services, d.writeTimeout)
	var incompatible *IncompatibleError
	switch {
	case errors.As(err, &incompatible):
		d.incompatible(s, incompatible)
		return
	case err != nil:
		d.fail(s, &RadioError{Op: OpDiscover, Address: s.address, Err: err})
		return
	}
	s.bindings = b
	d.setStatus(thermometer.Pairing)

	frame := d.codec.PairingFrame()
	d.workers.Go(s.ctx, "ibbq-pair", func(ctx context.Context) {
		d.post(pairedMsg{session: s.id, err: b.write(b.pair, frame)})
	})
}

func (d *Driver) handlePaired(m pairedMsg) {
	s := d.live(m.session)
	if s == nil {
		return
	}
	if m.err != nil {
		d.fail(s, &RadioError{Op: OpPair, Address: s.address, Err: m.err})
		return
	}

	d.breakers.record(s.address, nil)
	d.setStatus(thermometer.Ready)
	d.sessionLogger(s).Info("Thermometer paired")
	d.emit(DevicePaired{Address: s.address})

	b := s.bindings
	unit := d.model.Unit
	d.workers.Go(s.ctx, "ibbq-setup", func(ctx context.Context) {
		op, err := d.setupTelemetry(s.id, b, unit)
		d.post(setupResultMsg{session: s.id, op: op, err: err})
	})
}

// setupTelemetry runs the post-pairing command sequence. It returns the
// operation that failed.
func (d *Driver) setupTelemetry(sessionID string, b *bindings, unit protocol.Unit) (string, error) {
	unitFrame, err := d.codec.SetUnitFrame(unit)
	if err != nil {
		return OpSetUnit, err
	}

	for _, step := range []struct {
		op  string
		run func() error
	}{
		{OpSetUnit, func() error { return b.write(b.command, unitFrame) }},
		{OpSubscribe, func() error { return b.write(b.command, d.codec.SubscribeTemperatureFrame()) }},
		{OpSubscribe, func() error {
			return b.temperature.Subscribe(d.notificationHandler(sessionID, temperatureNotification))
		}},
		{OpSubscribe, func() error {
			return b.battery.Subscribe(d.notificationHandler(sessionID, batteryNotification))
		}},
		{OpKeepalive, func() error { return b.write(b.command, d.codec.SubscribeBatteryFrame()) }},
	} {
		if err := step.run(); err != nil {
			return step.op, err
		}
	}
	return "", nil
}

func (d *Driver) handleSetupResult(m setupResultMsg) {
	s := d.live(m.session)
	if s == nil {
		return
	}
	if m.err != nil {
		d.fail(s, &RadioError{Op: m.op, Address: s.address, Err: m.err})
		return
	}
	d.ticker = d.newTicker(d.cfg.Connection.KeepaliveInterval)
	d.sessionLogger(s).Info("Telemetry subscriptions active")
}

func (d *Driver) handleDisconnected(m disconnectedMsg) {
	s := d.live(m.session)
	if s == nil {
		return
	}
	d.sessionLogger(s).WithField("status", d.model.Status.String()).Warn("Thermometer disconnected")
	d.dropSession(s, thermometer.Scanning)
	d.startScan()
}

// fail reports a radio failure and goes back to scanning. Radio failures
// are transient and never count against the address.
func (d *Driver) fail(s *session, err error) {
	d.sessionLogger(s).WithError(err).Warn("Connection attempt failed")
	d.emit(ErrorEvent{Kind: KindRadioError, Err: err})
	d.dropSession(s, thermometer.Scanning)
	d.startScan()
}

// incompatible rejects the peripheral. This is the only outcome that
// counts against the address in its breaker.
func (d *Driver) incompatible(s *session, err *IncompatibleError) {
	d.sessionLogger(s).WithError(err).Warn("Peripheral is not a compatible thermometer")
	d.breakers.record(s.address, err)
	d.emit(ErrorEvent{Kind: KindDeviceIncompatible, Err: err})
	d.dropSession(s, thermometer.Disconnected)
	d.setStatus(thermometer.Scanning)
	d.startScan()
}

// dropSession invalidates s, stops the keepalive, cancels the link and
// clears the bindings, all before the next message is handled.
func (d *Driver) dropSession(s *session, to thermometer.Status) {
	d.stopTicker()
	s.cancel()
	if s.client != nil {
		d.cancelClient(s.client)
	}
	s.bindings = nil
	if d.session == s {
		d.session = nil
	}

	from := d.model.Status
	d.model.Reset(to)
	d.statusChanged(from, to)
}

func (d *Driver) cancelClient(client device.Client) {
	d.workers.Go(context.Background(), "ibbq-cancel-connection", func(ctx context.Context) {
		if err := client.CancelConnection(); err != nil {
			d.logger.WithError(err).WithField("address", client.Address()).Debug("Cancel connection failed")
		}
	})
}

func (d *Driver) stopTicker() {
	if d.ticker != nil {
		d.ticker.Stop()
		d.ticker = nil
	}
}

// Telemetry

func (d *Driver) notificationHandler(sessionID string, kind notificationKind) func([]byte) {
	return func(data []byte) {
		d.post(notificationMsg{session: sessionID, kind: kind, data: data})
	}
}

func (d *Driver) handleNotification(m notificationMsg) {
	if d.live(m.session) == nil || d.model.Status != thermometer.Ready {
		d.logger.WithField("kind", m.kind.String()).Debug("Dropping notification outside a live connection")
		return
	}

	switch m.kind {
	case temperatureNotification:
		readings, err := d.codec.DecodeTemperatureFrame(m.data, d.model.ProbeCount())
		if err != nil {
			d.protocolError(m.kind, m.data, err)
			return
		}
		d.model.ApplyTemperatures(readings)
		d.emit(TemperatureUpdated{Probes: d.model.ProbeSnapshots(), Unit: d.model.Unit})

	case batteryNotification:
		level, err := d.codec.DecodeBatteryFrame(m.data)
		if err != nil {
			d.protocolError(m.kind, m.data, err)
			return
		}
		battery := d.model.ApplyBattery(level)
		d.emit(BatteryUpdated{
			Percent: battery.Percent,
			Valid:   battery.Valid,
			Current: battery.Current,
			Max:     battery.Max,
		})
	}
}

func (d *Driver) protocolError(kind notificationKind, data []byte, err error) {
	err = fmt.Errorf("decode %s notification: %w", kind, err)
	d.decodeLog.Do(func() {
		d.logger.WithError(err).WithField("data", fmt.Sprintf("%x", data)).Warn("Skipping malformed notification")
	})
	d.emit(ErrorEvent{Kind: KindProtocolError, Err: err})
}

func (d *Driver) keepalive() {
	s := d.session
	if s == nil || s.bindings == nil || d.model.Status != thermometer.Ready {
		return
	}
	b := s.bindings
	frame := d.codec.SubscribeBatteryFrame()
	d.workers.Go(s.ctx, "ibbq-keepalive", func(ctx context.Context) {
		if err := b.write(b.command, frame); err != nil {
			d.post(keepaliveFailedMsg{session: s.id, err: err})
		}
	})
}

func (d *Driver) handleKeepaliveFailed(m keepaliveFailedMsg) {
	s := d.live(m.session)
	if s == nil {
		return
	}
	err := &RadioError{Op: OpKeepalive, Address: s.address, Err: m.err}
	d.keepaliveLog.Do(func() {
		d.sessionLogger(s).WithError(m.err).Warn("Battery keepalive write failed, retrying on next tick")
	})
	d.emit(ErrorEvent{Kind: KindRadioError, Err: err})
}

// Requests

func (d *Driver) handleSetUnits(m setUnitsMsg) {
	s := d.session
	if s == nil || s.bindings == nil || d.model.Status != thermometer.Ready {
		m.reply <- ErrNotReady
		return
	}
	frame, err := d.codec.SetUnitFrame(m.unit)
	if err != nil {
		m.reply <- err
		return
	}
	d.sessionLogger(s).WithField("unit", m.unit.String()).Info("Switching display unit")

	b := s.bindings
	address := s.address
	d.workers.Go(s.ctx, "ibbq-set-unit", func(ctx context.Context) {
		d.post(unitWrittenMsg{address: address, unit: m.unit, err: b.write(b.command, frame), reply: m.reply})
	})
}

// handleUnitWritten applies the unit once the thermometer acknowledged it.
// A failed write keeps the previous unit.
func (d *Driver) handleUnitWritten(m unitWrittenMsg) {
	if m.err != nil {
		m.reply <- &RadioError{Op: OpSetUnit, Address: m.address, Err: m.err}
		return
	}
	d.model.Unit = m.unit
	m.reply <- nil
}
