package device

import (
	"encoding/binary"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Well-known GATT descriptor UUIDs (16-bit short form, normalized without dashes)
const (
	DescriptorUserDescription    = "2901"
	DescriptorClientConfig       = "2902"
	DescriptorPresentationFormat = "2904"
)

// DescriptorError represents a failed descriptor value read attempt
type DescriptorError struct {
	Reason string // "timeout", "read_error", "parse_error"
	Err    error
}

func (e *DescriptorError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *DescriptorError) Unwrap() error { return e.Err }

// ClientConfig represents the Client Characteristic Configuration descriptor (0x2902)
type ClientConfig struct {
	Notifications bool `json:"notifications"`
	Indications   bool `json:"indications"`
}

// PresentationFormat represents the Characteristic Presentation Format descriptor (0x2904)
type PresentationFormat struct {
	Format      uint8  `json:"format"`
	Exponent    int8   `json:"exponent"`
	Unit        uint16 `json:"unit"`
	Namespace   uint8  `json:"namespace"`
	Description uint16 `json:"description"`
}

// ParseClientConfig parses the 2-byte CCCD value: bit 0 notifications, bit 1 indications.
func ParseClientConfig(data []byte) (*ClientConfig, error) {
	if len(data) != 2 {
		return nil, fmt.Errorf("invalid length for client config: expected 2, got %d", len(data))
	}
	value := binary.LittleEndian.Uint16(data)
	return &ClientConfig{
		Notifications: value&0x0001 != 0,
		Indications:   value&0x0002 != 0,
	}, nil
}

// ParseUserDescription parses a possibly null-terminated UTF-8 string.
func ParseUserDescription(data []byte) (string, error) {
	str := strings.TrimRight(string(data), "\x00")
	if !utf8.ValidString(str) {
		return "", fmt.Errorf("invalid UTF-8 in user description")
	}
	return str, nil
}

// ParsePresentationFormat parses the 7-byte presentation format descriptor.
func ParsePresentationFormat(data []byte) (*PresentationFormat, error) {
	if len(data) != 7 {
		return nil, fmt.Errorf("invalid length for presentation format: expected 7, got %d", len(data))
	}
	return &PresentationFormat{
		Format:      data[0],
		Exponent:    int8(data[1]),
		Unit:        binary.LittleEndian.Uint16(data[2:4]),
		Namespace:   data[4],
		Description: binary.LittleEndian.Uint16(data[5:7]),
	}, nil
}

// ParseDescriptorValue parses a descriptor value based on its UUID.
// Unknown descriptors are returned as raw bytes; empty data yields (nil, nil).
func ParseDescriptorValue(uuid string, data []byte) (interface{}, error) {
	if len(data) == 0 {
		return nil, nil
	}

	switch NormalizeUUID(uuid) {
	case DescriptorUserDescription:
		return ParseUserDescription(data)
	case DescriptorClientConfig:
		return ParseClientConfig(data)
	case DescriptorPresentationFormat:
		return ParsePresentationFormat(data)
	default:
		return data, nil
	}
}
