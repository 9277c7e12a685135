package protocol

import "errors"

// Frame errors. Both are recoverable: callers log them and skip the frame.
var (
	// ErrFrameTooShort is returned when a notification payload is shorter than
	// the layout it is decoded with.
	ErrFrameTooShort = errors.New("frame too short")

	// ErrUnsupportedUnit is returned for a temperature unit the firmware has no
	// command for.
	ErrUnsupportedUnit = errors.New("unsupported unit")
)
