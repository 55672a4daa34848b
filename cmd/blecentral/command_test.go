package main

import (
	"bytes"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/srg/blecentral/central"
	"github.com/srg/blecentral/central/centraltest"
	"github.com/srg/blecentral/internal/testutils"
	"github.com/stretchr/testify/suite"
)

// Test device addresses for consistent mock device identification
const (
	TestDeviceAddress1 = "aa:bb:cc:dd:ee:01"
	TestDeviceAddress2 = "aa:bb:cc:dd:ee:02"
	TestDeviceAddress3 = "aa:bb:cc:dd:ee:03"
)

type commandResult struct {
	stdout string
	stderr string
	err    error
}

// CommandTestSuite runs commands against a scriptable manager.
// All cmd/blecentral test suites should embed it.
type CommandTestSuite struct {
	suite.Suite

	logger  *logrus.Logger
	manager *centraltest.Manager

	originalFactory func(*logrus.Logger) (closableManager, error)
	originalNoColor bool
	factoryCalls    int
}

func (s *CommandTestSuite) SetupTest() {
	s.logger = testutils.NewTestHelper(s.T()).Logger
	s.manager = centraltest.NewManager(s.logger)
	s.manager.SetReady(central.StatePoweredOn)

	s.factoryCalls = 0
	s.originalFactory = newManager
	newManager = func(*logrus.Logger) (closableManager, error) {
		s.factoryCalls++
		return s.manager, nil
	}

	s.originalNoColor = color.NoColor
	color.NoColor = true
}

func (s *CommandTestSuite) TearDownTest() {
	newManager = s.originalFactory
	color.NoColor = s.originalNoColor
	_ = s.manager.Close()
}

// ExecuteCommand runs the root command with args and returns its output.
func (s *CommandTestSuite) ExecuteCommand(args ...string) commandResult {
	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)

	cmd := newRootCmd()
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()

	return commandResult{stdout: stdout.String(), stderr: stderr.String(), err: err}
}

// StartCommand runs ExecuteCommand on its own goroutine.
func (s *CommandTestSuite) StartCommand(args ...string) <-chan commandResult {
	out := make(chan commandResult, 1)
	go func() {
		out <- s.ExecuteCommand(args...)
	}()
	return out
}

// Await waits for a command started with StartCommand.
func (s *CommandTestSuite) Await(ch <-chan commandResult) commandResult {
	select {
	case r := <-ch:
		return r
	case <-time.After(5 * time.Second):
		s.FailNow("command did not finish")
		return commandResult{}
	}
}

func (s *CommandTestSuite) WaitFor(condition func() bool, msg string) {
	s.Require().Eventually(condition, 2*time.Second, time.Millisecond, msg)
}
