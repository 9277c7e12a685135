package thermometer_test

import (
	"encoding/json"
	"testing"

	"github.com/srg/ibbq/internal/protocol"
	"github.com/srg/ibbq/internal/thermometer"
	"github.com/stretchr/testify/suite"
)

type ModelTestSuite struct {
	suite.Suite
}

func TestModelTestSuite(t *testing.T) {
	suite.Run(t, new(ModelTestSuite))
}

func fourProbes() []thermometer.ProbeConfig {
	return []thermometer.ProbeConfig{
		{Position: 3, Name: "ambient"},
		{Position: 1, Name: "brisket"},
		{Position: 4},
		{Position: 2, Name: "ribs"},
	}
}

func (suite *ModelTestSuite) TestNew() {
	// GOAL: Verify probes are validated and ordered by position
	//
	// TEST SCENARIO: Build from unordered config → positions 1..N in order; bad configs rejected

	suite.Run("orders probes", func() {
		m, err := thermometer.New("fff0", protocol.Celsius, fourProbes())

		suite.Require().NoError(err)
		suite.Equal(4, m.ProbeCount())
		suite.Equal(thermometer.Disconnected, m.Status, "new model MUST start disconnected")
		for i, p := range m.Probes {
			suite.Equal(i+1, p.Position, "probes MUST be sorted by position")
			suite.Nil(p.Tenths, "temperature MUST be unknown before the first frame")
		}
		suite.Equal("brisket", m.Probes[0].Name)
	})

	suite.Run("rejects bad configs", func() {
		cases := map[string][]thermometer.ProbeConfig{
			"zero position":      {{Position: 0}},
			"position too large": {{Position: 1}, {Position: 3}},
			"duplicate":          {{Position: 1}, {Position: 1}},
		}
		for name, probes := range cases {
			_, err := thermometer.New("fff0", protocol.Celsius, probes)
			suite.Error(err, name)
		}
	})

	suite.Run("rejects bad unit", func() {
		_, err := thermometer.New("fff0", protocol.Unit(9), nil)
		suite.ErrorIs(err, protocol.ErrUnsupportedUnit)
	})
}

func (suite *ModelTestSuite) TestApplyTemperatures() {
	// GOAL: Verify readings land on the probe at the matching position
	//
	// TEST SCENARIO: Apply decoded readings → probes updated, absent probe cleared

	m, err := thermometer.New("fff0", protocol.Celsius, fourProbes())
	suite.Require().NoError(err)

	m.ApplyTemperatures([]protocol.Reading{
		{Tenths: 205, Connected: true},
		{Tenths: -50, Connected: true},
		{Connected: false},
		{Tenths: 9999, Connected: true},
	})

	snap := m.ProbeSnapshots()
	suite.Require().Len(snap, 4)
	suite.Require().NotNil(snap[0].Temperature)
	suite.InDelta(20.5, *snap[0].Temperature, 1e-9)
	suite.InDelta(-5.0, *snap[1].Temperature, 1e-9)
	suite.Nil(snap[2].Temperature, "sentinel slot MUST leave no temperature")
	suite.False(snap[2].Present, "sentinel slot MUST be reported as not present")
	suite.InDelta(999.9, *snap[3].Temperature, 1e-9)

	m.ApplyTemperatures([]protocol.Reading{{Tenths: 210, Connected: true}})
	snap = m.ProbeSnapshots()
	suite.InDelta(21.0, *snap[0].Temperature, 1e-9)
	suite.InDelta(-5.0, *snap[1].Temperature, 1e-9, "probes without a slot MUST keep their previous value")
}

func (suite *ModelTestSuite) TestApplyBattery() {
	m, err := thermometer.New("fff0", protocol.Celsius, nil)
	suite.Require().NoError(err)

	b := m.ApplyBattery(protocol.BatteryLevel{Current: 100, Max: 200})
	suite.True(b.Valid)
	suite.InDelta(50.0, b.Percent, 1e-9)

	b = m.ApplyBattery(protocol.BatteryLevel{Current: 100, Max: 0})
	suite.False(b.Valid, "percentage MUST be undefined when max is zero")
	suite.Equal(b, m.Battery)
}

func (suite *ModelTestSuite) TestSnapshotIsDetached() {
	// GOAL: Verify snapshots never alias model state
	//
	// TEST SCENARIO: Take snapshot → mutate model → snapshot unchanged

	m, err := thermometer.New("fff0", protocol.Fahrenheit, fourProbes())
	suite.Require().NoError(err)
	m.Address = "aa:bb"
	m.Status = thermometer.Ready
	m.ApplyTemperatures([]protocol.Reading{{Tenths: 100, Connected: true}})

	snap := m.Snapshot()
	m.ApplyTemperatures([]protocol.Reading{{Tenths: 300, Connected: true}})
	m.Reset(thermometer.Scanning)

	suite.Equal("aa:bb", snap.Address)
	suite.Equal(thermometer.Ready, snap.Status)
	suite.InDelta(10.0, *snap.Probes[0].Temperature, 1e-9)
	suite.Empty(m.Address, "reset MUST drop the address")
	suite.Equal(thermometer.Scanning, m.Status)

	raw, err := json.Marshal(snap)
	suite.Require().NoError(err)
	suite.Contains(string(raw), `"status":"ready"`)
	suite.Contains(string(raw), `"unit":"F"`)
}

func (suite *ModelTestSuite) TestStatusString() {
	suite.Equal("discovering_services", thermometer.DiscoveringServices.String())
	suite.Equal("status(42)", thermometer.Status(42).String())
}
