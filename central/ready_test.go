package central_test

import (
	"context"
	"testing"
	"time"

	"github.com/srg/blecentral/central"
	"github.com/stretchr/testify/suite"
)

type ReadyTestSuite struct {
	CentralSuite
}

func (s *ReadyTestSuite) TestAlreadyReadyReturnsWithoutSubscribing() {
	s.manager.SetReady(central.StatePoweredOn)

	s.Require().NoError(s.central.WaitUntilReady(context.Background()))
	s.Zero(s.manager.Bus().Stats().Subscribed)
}

func (s *ReadyTestSuite) TestWaitsForPoweredOn() {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.central.WaitUntilReady(context.Background())
	}()
	s.waitSubscribed(1)

	s.manager.SetReady(central.StateUnauthorized)
	s.manager.SetReady(central.StatePoweredOff)
	select {
	case err := <-errCh:
		s.FailNow("non-ready states MUST not release the waiter", "got %v", err)
	case <-time.After(20 * time.Millisecond):
	}

	s.manager.SetReady(central.StatePoweredOn)
	select {
	case err := <-errCh:
		s.NoError(err)
	case <-time.After(time.Second):
		s.FailNow("WaitUntilReady MUST return once powered on")
	}
	s.Zero(s.manager.Bus().Len())
}

func (s *ReadyTestSuite) TestContextCancellation() {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := s.central.WaitUntilReady(ctx)

	s.ErrorIs(err, context.DeadlineExceeded)
	s.Zero(s.manager.Bus().Len())
	s.manager.AssertNumberOfCalls(s.T(), "CancelConnection", 0)
}

func (s *ReadyTestSuite) TestClosedBusDoesNotReleaseWaiter() {
	s.manager.Bus().Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	s.ErrorIs(s.central.WaitUntilReady(ctx), context.DeadlineExceeded)
}

func (s *ReadyTestSuite) TestStateReady() {
	for _, st := range []central.State{central.StateUnknown, central.StatePoweredOff, central.StateUnauthorized, central.StateUnsupported} {
		s.False(st.Ready(), st.String())
	}
	s.True(central.StatePoweredOn.Ready())
}

func TestReadyTestSuite(t *testing.T) {
	suite.Run(t, new(ReadyTestSuite))
}
