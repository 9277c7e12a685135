// Package device is the boundary between the thermometer driver and a BLE
// stack. It defines the capabilities the driver needs from a central
// (scan, dial) and from a connected peripheral (service discovery,
// characteristic read/write/notify, disconnect signal), together with the
// error taxonomy shared by every binding.
//
// The only production binding lives in internal/device/go-ble; tests use the
// fakes from internal/testutils.
package device
