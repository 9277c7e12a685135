package goble

import (
	"github.com/srg/ibbq/internal/device"
)

// BLEService represents a discovered GATT service and its characteristics in
// discovery order.
type BLEService struct {
	uuid            string
	knownName       string
	characteristics []device.Characteristic
}

func (s *BLEService) UUID() string {
	return s.uuid
}

func (s *BLEService) KnownName() string {
	return s.knownName
}

func (s *BLEService) GetCharacteristics() []device.Characteristic {
	return s.characteristics
}
