package central_test

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blecentral/central"
	"github.com/srg/blecentral/central/centraltest"
	"github.com/srg/blecentral/internal/testutils"
	"github.com/stretchr/testify/suite"
)

// CentralSuite wires a Central to a scriptable manager.
type CentralSuite struct {
	suite.Suite

	logger  *logrus.Logger
	manager *centraltest.Manager
	central *central.Central
}

func (s *CentralSuite) SetupTest() {
	s.logger = testutils.NewTestHelper(s.T()).Logger
	s.manager = centraltest.NewManager(s.logger)
	s.central = central.New(s.manager, s.logger)
}

func (s *CentralSuite) TearDownTest() {
	s.manager.Bus().Close()
}

func (s *CentralSuite) waitFor(condition func() bool, msg string) {
	s.Require().Eventually(condition, time.Second, time.Millisecond, msg)
}

func (s *CentralSuite) waitSubscribed(n int) {
	s.waitFor(func() bool { return s.manager.Bus().Len() == n }, "bus subscriptions")
}
