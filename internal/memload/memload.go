// Package memload estimates how many demand data reads are outstanding
// per cycle by sweeping the counter mask of one offcore event.
//
// With cmask=N the event counts cycles with at least N outstanding demand
// reads, so the difference between consecutive thresholds is the number of
// cycles with exactly N outstanding.
package memload

import (
	"fmt"
	"io"

	"github.com/dmitriimaksimovdevelop/pmutop/internal/counter"
)

// DefaultMaxCmask is the highest threshold sampled by default.
const DefaultMaxCmask = 17

// MaxCmaskLimit is the largest threshold the 8-bit counter-mask field holds.
const MaxCmaskLimit = 255

// CheckMaxCmask rejects sweeps that yield no bucket or exceed the hardware
// counter-mask field.
func CheckMaxCmask(maxCmask int) error {
	if maxCmask < 2 {
		return fmt.Errorf("max cmask %d: need at least 2 thresholds", maxCmask)
	}
	if maxCmask > MaxCmaskLimit {
		return fmt.Errorf("max cmask %d: counter mask is at most %d", maxCmask, MaxCmaskLimit)
	}
	return nil
}

const (
	// CyclesEvent counts unhalted core cycles.
	CyclesEvent counter.Event = "CPU_CLK_UNHALTED.THREAD"

	// OutstandingEvent is the base event swept across counter masks.
	OutstandingEvent = "OFFCORE_REQUESTS_OUTSTANDING.DEMAND_DATA_RD"
)

// ThresholdEvent returns the outstanding-reads event qualified with cmask n.
func ThresholdEvent(n int) counter.Event {
	return counter.WithCounterMask(OutstandingEvent, n)
}

// Events returns the counters for a sweep up to maxCmask: the cycle count
// followed by thresholds 1..maxCmask in ascending order. maxCmask must pass
// CheckMaxCmask.
func Events(maxCmask int) []counter.Event {
	events := make([]counter.Event, 0, maxCmask+1)
	events = append(events, CyclesEvent)
	for n := 1; n <= maxCmask; n++ {
		events = append(events, ThresholdEvent(n))
	}
	return events
}

// Bucket is the share of cycles with exactly Outstanding demand reads in
// flight.
type Bucket struct {
	Outstanding int     `json:"outstanding"`
	Percent     float64 `json:"percent"`
}

// Histogram is the estimated distribution of outstanding demand reads.
type Histogram struct {
	Buckets []Bucket `json:"buckets"`
	Cycles  uint64   `json:"cycles"`

	// Overflow is the count at the highest threshold. Non-zero means the
	// real maximum exceeds the sweep and the top of the distribution is cut.
	Overflow uint64 `json:"overflow"`
}

// Truncated reports whether cycles were seen at the highest threshold.
func (h *Histogram) Truncated() bool { return h.Overflow != 0 }

// Estimate derives the distribution from a sweep up to maxCmask. Bucket i,
// for i in 1..maxCmask-1, is 100 * (count_i - count_i+1) / cycles.
func Estimate(c counter.Counts, maxCmask int) (*Histogram, error) {
	if err := CheckMaxCmask(maxCmask); err != nil {
		return nil, err
	}

	cycles := c.Get(CyclesEvent)
	h := &Histogram{
		Cycles:   cycles,
		Overflow: c.Get(ThresholdEvent(maxCmask)),
		Buckets:  make([]Bucket, 0, maxCmask-1),
	}
	for n := 1; n < maxCmask; n++ {
		atLeast := float64(c.Get(ThresholdEvent(n)))
		atLeastNext := float64(c.Get(ThresholdEvent(n + 1)))
		h.Buckets = append(h.Buckets, Bucket{
			Outstanding: n,
			Percent:     100 * (atLeast - atLeastNext) / float64(cycles),
		})
	}
	return h, nil
}

// Render writes one "<outstanding> <percent>%" line per bucket.
func (h *Histogram) Render(w io.Writer) error {
	for _, b := range h.Buckets {
		if _, err := fmt.Fprintf(w, "%2d %6.2f%%\n", b.Outstanding, b.Percent); err != nil {
			return err
		}
	}
	return nil
}
