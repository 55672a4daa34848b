package central

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hedzr/go-ringbuf/v2/mpmc"
	"github.com/sirupsen/logrus"
)

// MaxHistorySize bounds the ring buffer backing a History.
const MaxHistorySize = 1 << 16

// Record is one event captured by a History.
type Record struct {
	At    time.Time
	Event Event
}

// History keeps the most recent events published on a bus, dropping the
// oldest once full. It is a diagnostic aid; bridges never read it.
type History struct {
	buffer      mpmc.RichOverlappedRingBuffer[Record]
	overwritten atomic.Uint64
	logger      *logrus.Logger

	mu  sync.Mutex
	sub *Subscription
}

// NewHistory creates a History holding up to size records. The ring buffer
// may round size up.
func NewHistory(size uint32, logger *logrus.Logger) (*History, error) {
	if size == 0 {
		return nil, fmt.Errorf("history size must be > 0")
	}
	if size > MaxHistorySize {
		return nil, fmt.Errorf("history size %d exceeds maximum %d", size, MaxHistorySize)
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &History{
		buffer: mpmc.NewOverlappedRingBuffer[Record](size),
		logger: logger,
	}, nil
}

// Attach starts recording every event published on bus. Attaching an already
// attached History is an error.
func (h *History) Attach(bus *Bus) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.sub != nil && !h.sub.Finished() {
		return fmt.Errorf("history is already attached")
	}
	h.sub = bus.Subscribe(func(ev Event, _ func()) {
		h.record(ev)
	}, nil)
	return nil
}

// Detach stops recording. Recorded events stay available.
func (h *History) Detach() {
	h.mu.Lock()
	sub := h.sub
	h.sub = nil
	h.mu.Unlock()

	if sub != nil {
		sub.Cancel()
	}
}

// Snapshot drains the recorded events, oldest first.
func (h *History) Snapshot() []Record {
	var records []Record
	for !h.buffer.IsEmpty() {
		rec, err := h.buffer.Dequeue()
		if err != nil {
			h.logger.WithError(err).Debug("History dequeue stopped")
			break
		}
		records = append(records, rec)
	}
	return records
}

// Overwritten returns how many records were dropped to make room.
func (h *History) Overwritten() uint64 {
	return h.overwritten.Load()
}

func (h *History) record(ev Event) {
	overwrites, err := h.buffer.EnqueueM(Record{At: time.Now(), Event: ev})
	if err != nil {
		h.logger.WithError(err).WithField("event", ev.Kind()).Warn("Failed to record event")
		return
	}
	h.overwritten.Add(uint64(overwrites))
}
