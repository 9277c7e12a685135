package driver

import (
	"errors"
	"sync"
	"time"

	"github.com/srg/ibbq/internal/device"
)

// iBBQ characteristic UUIDs inside the configured service.
const (
	BatteryCharUUID     = "fff1"
	PairCharUUID        = "fff2"
	TemperatureCharUUID = "fff4"
	CommandCharUUID     = "fff5"
)

// bindings are the four characteristics of one connection. Writes are
// serialized because the firmware handles one command at a time.
type bindings struct {
	pair        device.Characteristic
	temperature device.Characteristic
	battery     device.Characteristic
	command     device.Characteristic

	writeTimeout time.Duration
	mu           sync.Mutex
}

// bindCharacteristics resolves all four characteristics by UUID. Every missing
// one is listed in the returned *IncompatibleError.
func bindCharacteristics(address, serviceUUID string, services []device.Service, writeTimeout time.Duration) (*bindings, error) {
	idx, err := device.IndexService(services, serviceUUID)
	if err != nil {
		return nil, &IncompatibleError{Address: address, Missing: []string{"service " + device.NormalizeUUID(serviceUUID)}}
	}

	b := &bindings{writeTimeout: writeTimeout}
	var missing []string
	for _, slot := range []struct {
		uuid string
		dst  *device.Characteristic
	}{
		{PairCharUUID, &b.pair},
		{TemperatureCharUUID, &b.temperature},
		{BatteryCharUUID, &b.battery},
		{CommandCharUUID, &b.command},
	} {
		c, err := idx.Lookup(serviceUUID, slot.uuid)
		if err != nil {
			var nf *device.NotFoundError
			if !errors.As(err, &nf) {
				return nil, err
			}
			missing = append(missing, slot.uuid)
			continue
		}
		*slot.dst = c
	}
	if len(missing) > 0 {
		return nil, &IncompatibleError{Address: address, Missing: missing}
	}
	return b, nil
}

func (b *bindings) write(c device.Characteristic, frame []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return c.Write(frame, true, b.writeTimeout)
}
