package protocol

import (
	"fmt"
	"strings"
)

// Unit is the temperature unit the thermometer reports and displays in.
type Unit int

const (
	Celsius Unit = iota
	Fahrenheit
)

// String returns the single-letter form used in configuration ("C" or "F").
func (u Unit) String() string {
	switch u {
	case Celsius:
		return "C"
	case Fahrenheit:
		return "F"
	default:
		return fmt.Sprintf("Unit(%d)", int(u))
	}
}

// Valid reports whether the firmware has a command for u.
func (u Unit) Valid() bool {
	return u == Celsius || u == Fahrenheit
}

// ParseUnit accepts "C", "F", "celsius" and "fahrenheit" in any case.
func ParseUnit(s string) (Unit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "c", "celsius":
		return Celsius, nil
	case "f", "fahrenheit":
		return Fahrenheit, nil
	default:
		return 0, fmt.Errorf("%w: %q (must be C or F)", ErrUnsupportedUnit, s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (u Unit) MarshalText() ([]byte, error) {
	if !u.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedUnit, int(u))
	}
	return []byte(u.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (u *Unit) UnmarshalText(text []byte) error {
	parsed, err := ParseUnit(string(text))
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}
