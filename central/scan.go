package central

import (
	"context"
	"iter"
	"slices"

	"github.com/sirupsen/logrus"
)

// DefaultScanBuffer is the number of discoveries handed off to a scan consumer
// before the publishing goroutine waits for it.
const DefaultScanBuffer = 128

// ScanFilter selects which discoveries a scan yields. A nil filter selects all.
type ScanFilter struct {
	Services  []string // at least one advertised service must match
	AllowList []string // addresses; empty allows all
	BlockList []string // addresses
	MinRSSI   float64  // 0 disables the check
}

// Match reports whether d passes the filter.
func (f *ScanFilter) Match(d Discovered) bool {
	if f == nil {
		return true
	}

	addr := d.Peripheral.ID
	if slices.Contains(f.BlockList, addr) {
		return false
	}
	if len(f.AllowList) > 0 && !slices.Contains(f.AllowList, addr) {
		return false
	}
	if f.MinRSSI != 0 && d.RSSI < f.MinRSSI {
		return false
	}

	if len(f.Services) > 0 {
		for _, required := range f.Services {
			required = NormalizeUUID(required)
			for _, advertised := range d.Advertisement.Services {
				if NormalizeUUID(advertised) == required {
					return true
				}
			}
		}
		return false
	}

	return true
}

// ScanOptions configures a scan.
type ScanOptions struct {
	AllowDuplicates bool
	Buffer          int // DefaultScanBuffer when <= 0
}

// Discovery is one item of a scan sequence.
type Discovery struct {
	Peripheral    Peripheral    `json:"peripheral"`
	Advertisement Advertisement `json:"advertisement"`
	RSSI          float64       `json:"rssi"`
}

// Scan returns a lazy sequence of discoveries matching filter.
//
// Nothing happens until the sequence is ranged over. Each range subscribes to
// the bus and starts its own underlying scan, so the sequence can be ranged
// again. The sequence ends cleanly on a StopScan event, and also ends when ctx
// is done or the consumer stops ranging. On every path the underlying scan is
// stopped and the subscription removed exactly once.
//
// StopScan is a bus-wide event: a scan ended by the manager ends every live
// scan sequence on the same bus.
//
// Discoveries are handed off on the publishing goroutine. Once opts.Buffer
// items are waiting, a slow consumer blocks that goroutine and with it the
// delivery of every event to every other subscription on the bus, History and
// WaitUntilReady included. Size the buffer for the slowest consumer.
//
// A ctx that is already done when ranging starts yields nothing and never
// starts a scan. Once ctx is done no further discovery is yielded, even if
// some are still buffered.
func (c *Central) Scan(ctx context.Context, filter *ScanFilter, opts *ScanOptions) iter.Seq[Discovery] {
	return func(yield func(Discovery) bool) {
		buffer := DefaultScanBuffer
		if opts != nil && opts.Buffer > 0 {
			buffer = opts.Buffer
		}

		items := make(chan Discovery, buffer)
		released := make(chan struct{})
		yielded := 0

		sub := c.bus.Subscribe(func(ev Event, done func()) {
			switch e := ev.(type) {
			case Discovered:
				if !filter.Match(e) {
					return
				}
				select {
				case items <- Discovery{Peripheral: e.Peripheral, Advertisement: e.Advertisement, RSSI: e.RSSI}:
				case <-released:
				}
			case StopScan:
				done()
			}
		}, func() {
			close(released)
		})
		log := c.logger.WithField("subscription", sub.ID())

		// StopScan is only paired with a StartScan issued by this range, and
		// runs after StartScan has returned.
		started := false
		defer func() {
			sub.Cancel()
			if started {
				c.manager.StopScan()
			}
			log.WithFields(logrus.Fields{
				"yielded": yielded,
				"started": started,
			}).Debug("Scan sequence finished")
		}()

		if sub.Finished() {
			return
		}
		if err := ctx.Err(); err != nil {
			log.WithField("cause", context.Cause(ctx)).Debug("Scan cancelled before start")
			return
		}

		log.WithFields(logrus.Fields{
			"filter":           filter,
			"allow_duplicates": opts != nil && opts.AllowDuplicates,
		}).Info("Starting scan...")
		c.manager.StartScan(filter, opts)
		started = true

		emit := func(d Discovery) bool {
			if ctx.Err() != nil {
				log.WithField("cause", context.Cause(ctx)).Debug("Scan cancelled")
				return false
			}
			yielded++
			return yield(d)
		}

		for {
			select {
			case d := <-items:
				if !emit(d) {
					return
				}
			case <-released:
				// Discoveries handed off before the scan ended are still owed.
				for {
					select {
					case d := <-items:
						if !emit(d) {
							return
						}
					default:
						return
					}
				}
			case <-ctx.Done():
				log.WithField("cause", context.Cause(ctx)).Debug("Scan cancelled")
				return
			}
		}
	}
}
