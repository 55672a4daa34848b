package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/srg/blecentral/central"
	"github.com/srg/blecentral/internal/testutils"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

type ScanCommandTestSuite struct {
	CommandTestSuite
}

func (s *ScanCommandTestSuite) TestTableOutput() {
	done := s.StartCommand("scan", "--duration", "5s")
	s.WaitFor(s.manager.Scanning, "scan MUST start")

	s.manager.Discover(central.Peripheral{ID: TestDeviceAddress1, Name: "HeartRate"},
		central.Advertisement{LocalName: "HeartRate", Services: []string{"180d"}, Connectable: true}, -55)
	s.manager.Discover(central.Peripheral{ID: TestDeviceAddress2}, central.Advertisement{}, -75)
	// scan response for the first device: no name, stronger signal
	s.manager.Discover(central.Peripheral{ID: TestDeviceAddress1},
		central.Advertisement{Services: []string{"180d"}}, -50)
	s.manager.EndScan()

	r := s.Await(done)
	s.Require().NoError(r.err)

	testutils.NewTextAsserter(s.T()).Assert(r.stdout, `
NAME       ADDRESS            RSSI     SERVICES
HeartRate  aa:bb:cc:dd:ee:01  -50 dBm  180d
-          aa:bb:cc:dd:ee:02  -75 dBm
`)
	s.manager.AssertNumberOfCalls(s.T(), "StartScan", 1)
	s.manager.AssertNumberOfCalls(s.T(), "StopScan", 1)
}

func (s *ScanCommandTestSuite) TestJSONOutputWithFilter() {
	done := s.StartCommand("scan", "--duration", "5s", "--format", "json",
		"--services", "0x180D", "--min-rssi", "-70", "--block", "AA:BB:CC:DD:EE:03")
	s.WaitFor(s.manager.Scanning, "scan MUST start")

	heartRate := central.Advertisement{LocalName: "HeartRate", Services: []string{"180d"}, Connectable: true}
	s.manager.Discover(central.Peripheral{ID: TestDeviceAddress1, Name: "HeartRate"}, heartRate, -60)
	s.manager.Discover(central.Peripheral{ID: TestDeviceAddress2, Name: "Far"}, heartRate, -80)
	s.manager.Discover(central.Peripheral{ID: TestDeviceAddress3, Name: "Blocked"}, heartRate, -40)
	s.manager.EndScan()

	r := s.Await(done)
	s.Require().NoError(r.err)

	testutils.NewJSONAsserter(s.T()).Assert(r.stdout, `[
	  {
	    "peripheral": {"id": "aa:bb:cc:dd:ee:01", "name": "HeartRate"},
	    "advertisement": {"local_name": "HeartRate", "services": ["180d"], "connectable": true},
	    "rssi": -60
	  }
	]`)

	s.manager.AssertCalled(s.T(), "StartScan", mock.MatchedBy(func(f *central.ScanFilter) bool {
		return len(f.Services) == 1 && f.Services[0] == "180d" &&
			f.MinRSSI == -70 &&
			len(f.BlockList) == 1 && f.BlockList[0] == TestDeviceAddress3
	}), mock.Anything)
}

func (s *ScanCommandTestSuite) TestEmptyResult() {
	done := s.StartCommand("scan")
	s.WaitFor(s.manager.Scanning, "scan MUST start")
	s.manager.EndScan()

	r := s.Await(done)
	s.Require().NoError(r.err)
	testutils.NewTextAsserter(s.T()).Assert(r.stdout, "No devices discovered")
}

func (s *ScanCommandTestSuite) TestConfigFileSelectsFormat() {
	path := filepath.Join(s.T().TempDir(), "blecentral.yaml")
	s.Require().NoError(os.WriteFile(path, []byte("output_format: json\nscan_buffer: 4\n"), 0o600))

	done := s.StartCommand("scan", "--config", path)
	s.WaitFor(s.manager.Scanning, "scan MUST start")
	s.manager.EndScan()

	r := s.Await(done)
	s.Require().NoError(r.err)
	testutils.NewJSONAsserter(s.T()).Assert(r.stdout, `[]`)
	s.manager.AssertCalled(s.T(), "StartScan", mock.Anything, &central.ScanOptions{Buffer: 4})
}

func (s *ScanCommandTestSuite) TestNotReady() {
	s.manager.SetReady(central.StatePoweredOff)

	r := s.ExecuteCommand("scan", "--duration", "30ms")

	s.Require().Error(r.err)
	s.ErrorIs(r.err, context.DeadlineExceeded)
	s.Contains(r.err.Error(), "bluetooth is not ready")
	s.manager.AssertNumberOfCalls(s.T(), "StartScan", 0)
}

func (s *ScanCommandTestSuite) TestArgumentValidation() {
	tests := []struct {
		name    string
		args    []string
		errText string
	}{
		{"invalid format", []string{"scan", "--format", "xml"}, "invalid format 'xml'"},
		{"invalid service", []string{"scan", "--services", "nope"}, "invalid service UUID"},
		{"invalid log level", []string{"scan", "--log-level", "verbose"}, "invalid log level: verbose"},
		{"missing config", []string{"scan", "--config", "/nonexistent/blecentral.yaml"}, "failed to read config"},
		{"unexpected argument", []string{"scan", "extra"}, "unknown command"},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			r := s.ExecuteCommand(tt.args...)
			s.Require().Error(r.err)
			s.Contains(r.err.Error(), tt.errText)
		})
	}
	s.Zero(s.factoryCalls, "no manager may be opened for invalid arguments")
}

func TestScanCommandTestSuite(t *testing.T) {
	suite.Run(t, new(ScanCommandTestSuite))
}
