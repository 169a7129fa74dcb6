// Package counter defines hardware event identifiers, the ordered set of
// counters requested from one sampling run, and the counts it produced.
package counter

import (
	"fmt"
	"strconv"
	"strings"
)

// cmaskQualifier separates an event name from its counter-mask threshold,
// e.g. "UOPS_EXECUTED.THREAD:cmask=2".
const cmaskQualifier = ":cmask="

// Event names a countable hardware event, optionally qualified by a
// counter mask. Events that differ only by qualifier are distinct counters.
type Event string

// WithCounterMask returns base qualified with counter mask n.
func WithCounterMask(base string, n int) Event {
	return Event(base + cmaskQualifier + strconv.Itoa(n))
}

// Base returns the event name without any counter-mask qualifier.
func (e Event) Base() string {
	if i := strings.Index(string(e), cmaskQualifier); i >= 0 {
		return string(e[:i])
	}
	return string(e)
}

// CounterMask returns the counter-mask threshold and whether one is present.
func (e Event) CounterMask() (int, bool) {
	i := strings.Index(string(e), cmaskQualifier)
	if i < 0 {
		return 0, false
	}
	n, err := strconv.Atoi(string(e[i+len(cmaskQualifier):]))
	if err != nil {
		return 0, false
	}
	return n, true
}

func (e Event) String() string { return string(e) }

// Set is a deduplicated, order-stable list of events requested for one
// sampling run. The sampler reports counts in exactly this order.
type Set struct {
	events []Event
	index  map[Event]int
}

// NewSet builds a Set from events, keeping the first occurrence of each.
func NewSet(events ...Event) *Set {
	s := &Set{index: make(map[Event]int, len(events))}
	s.Add(events...)
	return s
}

// Add appends events not already present.
func (s *Set) Add(events ...Event) {
	for _, e := range events {
		if _, ok := s.index[e]; ok {
			continue
		}
		s.index[e] = len(s.events)
		s.events = append(s.events, e)
	}
}

// Len returns the number of distinct events.
func (s *Set) Len() int { return len(s.events) }

// Events returns a copy of the events in request order.
func (s *Set) Events() []Event {
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// Index returns the request position of e.
func (s *Set) Index(e Event) (int, bool) {
	i, ok := s.index[e]
	return i, ok
}

// Counts maps events to the counts observed in a single sampling run.
// The zero value is an empty context.
type Counts struct {
	values map[Event]uint64
}

// NewCounts pairs the i-th event of set with values[i]. Pairing is by
// position only; the caller guarantees values arrive in request order.
func NewCounts(set *Set, values []uint64) (Counts, error) {
	if len(values) != set.Len() {
		return Counts{}, fmt.Errorf("got %d counts for %d requested events", len(values), set.Len())
	}
	m := make(map[Event]uint64, len(values))
	for i, e := range set.events {
		m[e] = values[i]
	}
	return Counts{values: m}, nil
}

// CountsFromMap copies m into a Counts.
func CountsFromMap(m map[Event]uint64) Counts {
	c := Counts{values: make(map[Event]uint64, len(m))}
	for e, v := range m {
		c.values[e] = v
	}
	return c
}

// Lookup returns the count for e and whether it was sampled.
func (c Counts) Lookup(e Event) (uint64, bool) {
	v, ok := c.values[e]
	return v, ok
}

// Get returns the count for e. Asking for an event that was never sampled
// means the formulas and the sampler disagree; Get panics with a
// *MissingEventError in that case.
func (c Counts) Get(e Event) uint64 {
	v, ok := c.values[e]
	if !ok {
		panic(&MissingEventError{Event: e})
	}
	return v
}

// Len returns the number of events in the context.
func (c Counts) Len() int { return len(c.values) }

// Map returns a copy of the underlying counts.
func (c Counts) Map() map[Event]uint64 {
	m := make(map[Event]uint64, len(c.values))
	for e, v := range c.values {
		m[e] = v
	}
	return m
}

// MissingEventError reports a formula reference to an unsampled event.
type MissingEventError struct {
	Event Event
}

func (e *MissingEventError) Error() string {
	return fmt.Sprintf("event %q was not sampled", string(e.Event))
}
