// Package edge detects transitions on single bits of an output bus.
package edge

import (
	"fmt"
	"time"

	"github.com/mscrnt/pwmbench/pkg/sim"
)

// Kind is the transition being searched for
type Kind int

const (
	// Rising is a 0 -> 1 transition
	Rising Kind = iota
	// Falling is a 1 -> 0 transition
	Falling
)

// String returns "rising" or "falling"
func (k Kind) String() string {
	switch k {
	case Rising:
		return "rising"
	case Falling:
		return "falling"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Opposite returns the other transition
func (k Kind) Opposite() Kind {
	if k == Rising {
		return Falling
	}
	return Rising
}

// Matches reports whether before -> after is this transition
func (k Kind) Matches(before, after uint8) bool {
	if k == Rising {
		return before == 0 && after == 1
	}
	return before == 1 && after == 0
}

// Pair is two samples of one bit taken on consecutive ticks
type Pair struct {
	Before uint8
	After  uint8
	// Tick and At locate the second sample
	Tick uint64
	At   time.Duration
}

// Event is a detected transition
type Event struct {
	Bit  int
	Kind Kind
	Tick uint64
	At   time.Duration
}

// Search is one budgeted hunt for a transition on one bit. It consumes one
// Pair per iteration and gives up after Budget iterations.
type Search struct {
	Bit       int
	Kind      Kind
	Budget    int
	Remaining int

	found   bool
	event   Event
	last    uint8
	sampled bool
}

// NewSearch starts a search. A budget <= 0 is already exhausted.
func NewSearch(bit int, kind Kind, budget int) *Search {
	if budget < 0 {
		budget = 0
	}
	return &Search{
		Bit:       bit,
		Kind:      kind,
		Budget:    budget,
		Remaining: budget,
	}
}

// Done reports whether the transition was found or the budget ran out
func (s *Search) Done() bool {
	return s.found || s.Remaining <= 0
}

// Observe consumes one iteration. It is a no-op once the search is done.
func (s *Search) Observe(p Pair) {
	if s.Done() {
		return
	}
	s.last = p.After
	s.sampled = true
	if s.Kind.Matches(p.Before, p.After) {
		s.found = true
		s.event = Event{Bit: s.Bit, Kind: s.Kind, Tick: p.Tick, At: p.At}
		return
	}
	s.Remaining--
}

// Found returns the event and whether the transition was seen
func (s *Search) Found() (Event, bool) {
	return s.event, s.found
}

// Last returns the most recently sampled level and whether any sample was
// taken
func (s *Search) Last() (uint8, bool) {
	return s.last, s.sampled
}

// Sampler polls bus bits against the bench clock
type Sampler struct {
	clock sim.Clock
}

// NewSampler creates a sampler on clock
func NewSampler(clock sim.Clock) *Sampler {
	return &Sampler{clock: clock}
}

// Sample reads bus[bit] on the next tick and on the one after it
func (s *Sampler) Sample(bus sim.Bus, bit int) Pair {
	s.clock.Advance(1)
	before := sim.Bit(bus.Read(), bit)
	s.clock.Advance(1)
	after := sim.Bit(bus.Read(), bit)
	return Pair{
		Before: before,
		After:  after,
		Tick:   s.clock.Ticks(),
		At:     s.clock.Now(),
	}
}

// Level reads bus[bit] without advancing the clock
func (s *Sampler) Level(bus sim.Bus, bit int) uint8 {
	return sim.Bit(bus.Read(), bit)
}

// Run drives search to completion
func (s *Sampler) Run(bus sim.Bus, search *Search) {
	for !search.Done() {
		search.Observe(s.Sample(bus, search.Bit))
	}
}

// AwaitEdge waits for kind on bus[bit] for at most budget sampling
// iterations. Running out of budget is not an error: the bit may simply be
// held at a constant level.
func (s *Sampler) AwaitEdge(bus sim.Bus, bit int, kind Kind, budget int) (Event, bool) {
	search := NewSearch(bit, kind, budget)
	s.Run(bus, search)
	return search.Found()
}
