package scanner_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/srg/ibbq/internal/testutils"
	"github.com/srg/ibbq/scanner"
	"github.com/stretchr/testify/suite"
)

type ScannerTestSuite struct {
	suite.Suite

	central *testutils.FakeCentral
	logs    bytes.Buffer
}

func TestScannerTestSuite(t *testing.T) {
	suite.Run(t, new(ScannerTestSuite))
}

func (suite *ScannerTestSuite) SetupTest() {
	suite.central = testutils.NewFakeCentral()
	suite.logs.Reset()
}

// runScan starts a scan, feeds advertisements once it is running and stops it.
func (suite *ScannerTestSuite) runScan(opts *scanner.ScanOptions, ads ...*testutils.FakeAdvertisement) ([]scanner.DeviceInfo, []string) {
	s := scanner.NewScanner(suite.central, testutils.NewTestLogger(&suite.logs))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var phases []string
	type result struct {
		devices []scanner.DeviceInfo
		err     error
	}
	done := make(chan result, 1)
	go func() {
		devices, err := s.Scan(ctx, opts, func(phase string) { phases = append(phases, phase) })
		done <- result{devices, err}
	}()

	suite.Require().Eventually(suite.central.IsScanning, time.Second, time.Millisecond, "scan MUST start")
	for _, adv := range ads {
		suite.Require().True(suite.central.Advertise(adv))
	}
	cancel()

	r := <-done
	suite.Require().NoError(r.err, "cancelled scan MUST not be an error")
	return r.devices, phases
}

func (suite *ScannerTestSuite) TestDefaultScanOptions() {
	opts := scanner.DefaultScanOptions()

	suite.Equal(10*time.Second, opts.Duration)
	suite.True(opts.DuplicateFilter)
	suite.Empty(opts.Filter.ServiceUUIDs)
}

func (suite *ScannerTestSuite) TestScanCollectsMatchingDevices() {
	// GOAL: Verify only advertisements matching the filter are reported
	//
	// TEST SCENARIO: Two thermometers + one foreign device → two results, strongest first

	opts := &scanner.ScanOptions{Filter: scanner.Filter{ServiceUUIDs: []string{"fff0"}, LocalName: "iBBQ"}}
	weak := testutils.NewAdvertisementBuilder().WithName("iBBQ").WithAddress("aa:aa").WithServices("fff0").WithRSSI(-80).Build()
	strong := testutils.NewAdvertisementBuilder().WithName("iBBQ").WithAddress("bb:bb").WithServices("0000fff0-0000-1000-8000-00805f9b34fb").WithRSSI(-40).Build()
	foreign := testutils.NewAdvertisementBuilder().WithName("Heart Rate").WithAddress("cc:cc").WithServices("180d").Build()

	devices, phases := suite.runScan(opts, weak, strong, foreign, weak)

	suite.Require().Len(devices, 2, "foreign devices MUST be filtered out")
	suite.Equal("bb:bb", devices[0].Address, "strongest signal MUST come first")
	suite.Equal([]string{"fff0"}, devices[0].Services, "service UUIDs MUST be normalized")
	suite.Equal(2, devices[1].Seen, "repeated advertisements MUST update the same entry")
	suite.Equal([]string{"Scanning", "Processing results"}, phases)
	suite.Contains(suite.logs.String(), "Discovered new device")
}

func (suite *ScannerTestSuite) TestScanFailure() {
	s := scanner.NewScanner(suite.central, nil)
	done := make(chan error, 1)
	go func() {
		_, err := s.Scan(context.Background(), &scanner.ScanOptions{}, nil)
		done <- err
	}()

	suite.Require().Eventually(suite.central.IsScanning, time.Second, time.Millisecond)
	suite.central.FailScan(context.DeadlineExceeded)
	suite.NoError(<-done, "deadline MUST end the scan normally")
}

func (suite *ScannerTestSuite) TestFilter() {
	adv := testutils.NewAdvertisementBuilder().WithName("iBBQ").WithAddress("aa:bb").WithServices("FFF0").Build()

	tests := []struct {
		name   string
		filter scanner.Filter
		match  bool
	}{
		{name: "empty filter", filter: scanner.Filter{}, match: true},
		{name: "service and name", filter: scanner.Filter{ServiceUUIDs: []string{"fff0"}, LocalName: "iBBQ"}, match: true},
		{name: "wrong name", filter: scanner.Filter{LocalName: "ibbq"}, match: false},
		{name: "wrong service", filter: scanner.Filter{ServiceUUIDs: []string{"180d"}}, match: false},
		{name: "any of the services", filter: scanner.Filter{ServiceUUIDs: []string{"180d", "fff0"}}, match: true},
		{name: "blocked", filter: scanner.Filter{BlockList: []string{"aa:bb"}}, match: false},
		{name: "not allowed", filter: scanner.Filter{AllowList: []string{"cc:dd"}}, match: false},
		{name: "allowed", filter: scanner.Filter{AllowList: []string{"aa:bb"}}, match: true},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			suite.Equal(tt.match, tt.filter.Match(adv))
		})
	}
}
