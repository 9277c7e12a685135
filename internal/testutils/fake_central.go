package testutils

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/srg/ibbq/internal/device"
)

// ErrScanInProgress is returned by FakeCentral.Scan when a scan is already running.
var ErrScanInProgress = errors.New("scan already in progress")

// FakeCentral is an in-memory device.Central. Scans block until their context
// is cancelled or FailScan is called; advertisements are injected with Advertise.
type FakeCentral struct {
	mu          sync.Mutex
	peripherals map[string]*FakePeripheral
	dialErrs    map[string]error
	dials       []string

	scanning  bool
	scanCount int
	handler   func(device.Advertisement)
	scanStop  chan error
}

var _ device.Central = (*FakeCentral)(nil)

// NewFakeCentral creates a central that can reach the given peripherals.
func NewFakeCentral(peripherals ...*FakePeripheral) *FakeCentral {
	c := &FakeCentral{
		peripherals: make(map[string]*FakePeripheral),
		dialErrs:    make(map[string]error),
	}
	for _, p := range peripherals {
		c.peripherals[p.Address] = p
	}
	return c
}

// AddPeripheral makes another peripheral reachable.
func (c *FakeCentral) AddPeripheral(p *FakePeripheral) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.peripherals[p.Address] = p
}

// Scan implements device.ScanningDevice.
func (c *FakeCentral) Scan(ctx context.Context, _ bool, handler func(device.Advertisement)) error {
	c.mu.Lock()
	if c.scanning {
		c.mu.Unlock()
		return ErrScanInProgress
	}
	stop := make(chan error, 1)
	c.scanning = true
	c.scanCount++
	c.handler = handler
	c.scanStop = stop
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.scanning = false
		c.handler = nil
		c.mu.Unlock()
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-stop:
		return err
	}
}

// Advertise delivers adv to the running scan. It reports false when no scan is running.
func (c *FakeCentral) Advertise(adv device.Advertisement) bool {
	c.mu.Lock()
	handler := c.handler
	c.mu.Unlock()
	if handler == nil {
		return false
	}
	handler(adv)
	return true
}

// FailScan ends the running scan with err.
func (c *FakeCentral) FailScan(err error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.scanning {
		return false
	}
	select {
	case c.scanStop <- err:
		return true
	default:
		return false
	}
}

// IsScanning reports whether a scan is running.
func (c *FakeCentral) IsScanning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scanning
}

// ScanCount is the number of scans started so far.
func (c *FakeCentral) ScanCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scanCount
}

// FailDial makes every dial to address fail with err (nil clears it).
func (c *FakeCentral) FailDial(address string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		delete(c.dialErrs, address)
		return
	}
	c.dialErrs[address] = err
}

// Dials lists dialed addresses in order.
func (c *FakeCentral) Dials() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.dials...)
}

// Dial implements device.Central.
func (c *FakeCentral) Dial(ctx context.Context, address string) (device.Client, error) {
	c.mu.Lock()
	c.dials = append(c.dials, address)
	err := c.dialErrs[address]
	p := c.peripherals[address]
	c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("failed to connect to device with address %q: %w", address, device.ErrTimeout)
	}
	return p.connect(), nil
}

// Op is one GATT operation recorded by a fake peripheral.
type Op struct {
	Kind         string // "write", "subscribe", "unsubscribe", "cancel"
	UUID         string
	Data         []byte
	WithResponse bool
}

func (o Op) String() string {
	if o.Kind == "write" {
		return fmt.Sprintf("write %s %x", o.UUID, o.Data)
	}
	if o.UUID == "" {
		return o.Kind
	}
	return o.Kind + " " + o.UUID
}

// FakePeripheral is a remote GATT server.
type FakePeripheral struct {
	Address string

	profile DeviceProfileConfig

	mu            sync.Mutex
	ops           []Op
	writeErrs     map[string]error
	subscribeErrs map[string]error
	discoverErr   error
	current       *FakeClient
	connections   int
}

func newFakePeripheral(address string, profile DeviceProfileConfig) *FakePeripheral {
	return &FakePeripheral{
		Address:       address,
		profile:       profile,
		writeErrs:     make(map[string]error),
		subscribeErrs: make(map[string]error),
	}
}

// FailWrites makes writes to the characteristic fail with err (nil clears it).
func (p *FakePeripheral) FailWrites(uuid string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writeErrs[device.NormalizeUUID(uuid)] = err
}

// FailSubscribe makes subscriptions to the characteristic fail with err.
func (p *FakePeripheral) FailSubscribe(uuid string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subscribeErrs[device.NormalizeUUID(uuid)] = err
}

// FailDiscovery makes service discovery fail with err.
func (p *FakePeripheral) FailDiscovery(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.discoverErr = err
}

// Ops returns the recorded operations.
func (p *FakePeripheral) Ops() []Op {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Op(nil), p.ops...)
}

// OpStrings returns the recorded operations in their String form.
func (p *FakePeripheral) OpStrings() []string {
	ops := p.Ops()
	out := make([]string, len(ops))
	for i, op := range ops {
		out[i] = op.String()
	}
	return out
}

// CountOps counts recorded operations whose String form starts with prefix.
func (p *FakePeripheral) CountOps(prefix string) int {
	n := 0
	for _, s := range p.OpStrings() {
		if strings.HasPrefix(s, prefix) {
			n++
		}
	}
	return n
}

// ResetOps clears the recorded operations.
func (p *FakePeripheral) ResetOps() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ops = nil
}

// Connections is the number of successful dials.
func (p *FakePeripheral) Connections() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connections
}

// Connected reports whether a client is attached and not disconnected.
func (p *FakePeripheral) Connected() bool {
	p.mu.Lock()
	client := p.current
	p.mu.Unlock()
	return client != nil && !client.isClosed()
}

// Handler returns the notification handler currently installed for uuid on
// the live connection, or nil.
func (p *FakePeripheral) Handler(uuid string) func([]byte) {
	p.mu.Lock()
	client := p.current
	p.mu.Unlock()
	if client == nil {
		return nil
	}
	return client.handler(device.NormalizeUUID(uuid))
}

// Notify pushes a notification on the live connection. It reports false when
// nothing is subscribed.
func (p *FakePeripheral) Notify(uuid string, data []byte) bool {
	h := p.Handler(uuid)
	if h == nil {
		return false
	}
	h(data)
	return true
}

// Disconnect drops the live link as if the peripheral went out of range.
func (p *FakePeripheral) Disconnect() {
	p.mu.Lock()
	client := p.current
	p.mu.Unlock()
	if client != nil {
		client.close()
	}
}

func (p *FakePeripheral) record(op Op) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ops = append(p.ops, op)
}

func (p *FakePeripheral) connect() *FakeClient {
	client := &FakeClient{
		peripheral:   p,
		disconnected: make(chan struct{}),
		handlers:     make(map[string]func([]byte)),
	}
	p.mu.Lock()
	p.current = client
	p.connections++
	p.mu.Unlock()
	return client
}

// FakeClient is one connection to a FakePeripheral.
type FakeClient struct {
	peripheral   *FakePeripheral
	disconnected chan struct{}
	once         sync.Once

	mu       sync.Mutex
	closed   bool
	handlers map[string]func([]byte)
}

var _ device.Client = (*FakeClient)(nil)

func (c *FakeClient) Address() string               { return c.peripheral.Address }
func (c *FakeClient) Disconnected() <-chan struct{} { return c.disconnected }

// CancelConnection implements device.Client.
func (c *FakeClient) CancelConnection() error {
	c.peripheral.record(Op{Kind: "cancel"})
	c.close()
	return nil
}

// DiscoverServices implements device.Client.
func (c *FakeClient) DiscoverServices(ctx context.Context) ([]device.Service, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.isClosed() {
		return nil, device.ErrNotConnected
	}

	c.peripheral.mu.Lock()
	err := c.peripheral.discoverErr
	c.peripheral.mu.Unlock()
	if err != nil {
		return nil, err
	}

	services := make([]device.Service, 0, len(c.peripheral.profile.Services))
	for _, svcCfg := range c.peripheral.profile.Services {
		svc := &FakeService{uuid: device.NormalizeUUID(svcCfg.UUID)}
		for _, charCfg := range svcCfg.Characteristics {
			svc.characteristics = append(svc.characteristics, newFakeCharacteristic(c, charCfg))
		}
		services = append(services, svc)
	}
	return services, nil
}

func (c *FakeClient) close() {
	c.once.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.handlers = make(map[string]func([]byte))
		c.mu.Unlock()
		close(c.disconnected)
	})
}

func (c *FakeClient) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *FakeClient) handler(uuid string) func([]byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handlers[uuid]
}

// FakeService is a discovered service.
type FakeService struct {
	uuid            string
	characteristics []device.Characteristic
}

func (s *FakeService) UUID() string                                { return s.uuid }
func (s *FakeService) KnownName() string                           { return device.LookupService(s.uuid) }
func (s *FakeService) GetCharacteristics() []device.Characteristic { return s.characteristics }

// FakeCharacteristic records writes and subscriptions on its peripheral.
type FakeCharacteristic struct {
	client      *FakeClient
	uuid        string
	props       device.Properties
	value       []byte
	descriptors []device.Descriptor
}

var _ device.Characteristic = (*FakeCharacteristic)(nil)

func newFakeCharacteristic(client *FakeClient, cfg CharacteristicConfig) *FakeCharacteristic {
	c := &FakeCharacteristic{
		client: client,
		uuid:   device.NormalizeUUID(cfg.UUID),
		props:  ParseProperties(cfg.Properties),
		value:  cfg.Value,
	}
	for _, d := range cfg.Descriptors {
		c.descriptors = append(c.descriptors, &FakeDescriptor{uuid: device.NormalizeUUID(d.UUID), value: d.Value})
	}
	return c
}

func (c *FakeCharacteristic) UUID() string                        { return c.uuid }
func (c *FakeCharacteristic) KnownName() string                   { return device.LookupCharacteristic(c.uuid) }
func (c *FakeCharacteristic) GetProperties() device.Properties    { return c.props }
func (c *FakeCharacteristic) GetDescriptors() []device.Descriptor { return c.descriptors }

// Read returns the configured value.
func (c *FakeCharacteristic) Read(time.Duration) ([]byte, error) {
	if c.client.isClosed() {
		return nil, device.ErrNotConnected
	}
	if c.props.Read() == nil {
		return nil, fmt.Errorf("characteristic %s is not readable", c.uuid)
	}
	return append([]byte(nil), c.value...), nil
}

// Write records the write and returns the configured error.
func (c *FakeCharacteristic) Write(data []byte, withResponse bool, _ time.Duration) error {
	if c.client.isClosed() {
		return device.ErrNotConnected
	}
	p := c.client.peripheral
	p.mu.Lock()
	err := p.writeErrs[c.uuid]
	p.mu.Unlock()
	if err != nil {
		return err
	}
	p.record(Op{Kind: "write", UUID: c.uuid, Data: append([]byte(nil), data...), WithResponse: withResponse})
	return nil
}

// Subscribe installs handler for Notify.
func (c *FakeCharacteristic) Subscribe(handler func([]byte)) error {
	if c.client.isClosed() {
		return device.ErrNotConnected
	}
	p := c.client.peripheral
	p.mu.Lock()
	err := p.subscribeErrs[c.uuid]
	p.mu.Unlock()
	if err != nil {
		return err
	}

	c.client.mu.Lock()
	c.client.handlers[c.uuid] = handler
	c.client.mu.Unlock()
	p.record(Op{Kind: "subscribe", UUID: c.uuid})
	return nil
}

// Unsubscribe removes the handler.
func (c *FakeCharacteristic) Unsubscribe() error {
	c.client.mu.Lock()
	delete(c.client.handlers, c.uuid)
	c.client.mu.Unlock()
	c.client.peripheral.record(Op{Kind: "unsubscribe", UUID: c.uuid})
	return nil
}

// FakeDescriptor is a descriptor with a fixed value.
type FakeDescriptor struct {
	uuid  string
	value []byte
}

func (d *FakeDescriptor) UUID() string      { return d.uuid }
func (d *FakeDescriptor) KnownName() string { return device.LookupDescriptor(d.uuid) }
func (d *FakeDescriptor) Value() []byte     { return d.value }

func (d *FakeDescriptor) ParsedValue() interface{} {
	v, err := device.ParseDescriptorValue(d.uuid, d.value)
	if err != nil {
		return &device.DescriptorError{Reason: "parse_error", Err: err}
	}
	return v
}

// Property bits as defined by the Bluetooth Core specification.
const (
	PropBroadcast = 1 << iota
	PropRead
	PropWriteWithoutResponse
	PropWrite
	PropNotify
	PropIndicate
	PropSignedWrite
	PropExtended
)

type fakeProperty struct {
	value int
	name  string
}

func (p *fakeProperty) Value() int        { return p.value }
func (p *fakeProperty) KnownName() string { return p.name }

// FakeProperties is a property bit set.
type FakeProperties int

// ParseProperties parses "read,write,notify" style strings. Empty means read,write,notify.
func ParseProperties(props string) FakeProperties {
	if strings.TrimSpace(props) == "" {
		return PropRead | PropWrite | PropNotify
	}
	var p FakeProperties
	for _, name := range strings.Split(props, ",") {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "broadcast":
			p |= PropBroadcast
		case "read":
			p |= PropRead
		case "write_nr", "writewithoutresponse":
			p |= PropWriteWithoutResponse
		case "write":
			p |= PropWrite
		case "notify":
			p |= PropNotify
		case "indicate":
			p |= PropIndicate
		default:
			panic(fmt.Sprintf("ParseProperties: unknown property %q", name))
		}
	}
	return p
}

func (p FakeProperties) get(bit int, name string) device.Property {
	if int(p)&bit == 0 {
		return nil
	}
	return &fakeProperty{value: bit, name: name}
}

func (p FakeProperties) Broadcast() device.Property { return p.get(PropBroadcast, "Broadcast") }
func (p FakeProperties) Read() device.Property      { return p.get(PropRead, "Read") }
func (p FakeProperties) Write() device.Property     { return p.get(PropWrite, "Write") }
func (p FakeProperties) Notify() device.Property    { return p.get(PropNotify, "Notify") }
func (p FakeProperties) Indicate() device.Property  { return p.get(PropIndicate, "Indicate") }

func (p FakeProperties) WriteWithoutResponse() device.Property {
	return p.get(PropWriteWithoutResponse, "WriteWithoutResponse")
}

func (p FakeProperties) AuthenticatedSignedWrites() device.Property {
	return p.get(PropSignedWrite, "AuthenticatedSignedWrites")
}

func (p FakeProperties) ExtendedProperties() device.Property {
	return p.get(PropExtended, "ExtendedProperties")
}
