package central_test

import (
	"testing"

	"github.com/srg/blecentral/central"
	"github.com/srg/blecentral/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryRecordsInOrder(t *testing.T) {
	logger := testutils.NewTestHelper(t).Logger
	bus := central.NewBus(logger)
	defer bus.Close()

	h, err := central.NewHistory(16, logger)
	require.NoError(t, err)
	require.NoError(t, h.Attach(bus))

	p := central.Peripheral{ID: "aa:bb:cc:dd:ee:ff"}
	bus.Publish(central.ReadyStateChanged{State: central.StatePoweredOn})
	bus.Publish(central.Connected{Peripheral: p})
	bus.Publish(central.Disconnected{Peripheral: p})

	records := h.Snapshot()
	require.Len(t, records, 3)
	assert.Equal(t, "ready_state_changed", records[0].Event.Kind())
	assert.Equal(t, "connected", records[1].Event.Kind())
	assert.Equal(t, "disconnected", records[2].Event.Kind())
	assert.False(t, records[0].At.After(records[2].At))

	assert.Empty(t, h.Snapshot(), "Snapshot drains the history")
}

func TestHistoryAttachDetach(t *testing.T) {
	logger := testutils.NewTestHelper(t).Logger
	bus := central.NewBus(logger)
	defer bus.Close()

	h, err := central.NewHistory(8, logger)
	require.NoError(t, err)
	require.NoError(t, h.Attach(bus))
	assert.Error(t, h.Attach(bus))
	assert.Equal(t, 1, bus.Len())

	h.Detach()
	assert.Zero(t, bus.Len())
	bus.Publish(central.StopScan{})
	assert.Empty(t, h.Snapshot())

	require.NoError(t, h.Attach(bus))
	bus.Publish(central.StopScan{})
	assert.Len(t, h.Snapshot(), 1)
}

func TestHistoryOverwritesOldest(t *testing.T) {
	logger := testutils.NewTestHelper(t).Logger
	bus := central.NewBus(logger)
	defer bus.Close()

	h, err := central.NewHistory(4, logger)
	require.NoError(t, err)
	require.NoError(t, h.Attach(bus))

	const published = 32
	for i := 0; i < published; i++ {
		bus.Publish(central.Discovered{RSSI: float64(-i)})
	}

	records := h.Snapshot()
	require.NotEmpty(t, records)
	assert.Less(t, len(records), published)
	assert.Positive(t, h.Overwritten())

	last := records[len(records)-1].Event.(central.Discovered)
	assert.Equal(t, float64(-(published - 1)), last.RSSI)
}

func TestNewHistoryValidatesSize(t *testing.T) {
	_, err := central.NewHistory(0, nil)
	assert.Error(t, err)

	_, err = central.NewHistory(central.MaxHistorySize+1, nil)
	assert.Error(t, err)
}
