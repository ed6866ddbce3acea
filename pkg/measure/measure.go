// Package measure characterizes the PWM outputs of the DUT: frequency from
// the spacing of two rising edges, and duty cycle from the high time inside
// a known nominal period.
//
// Each of the eight bits of a bus is measured independently and in order.
// A bit is a small state machine (first search, second search, done)
// advanced one sampling iteration at a time by a single driving loop, so a
// slow or stalled bit cannot reorder or starve another one.
package measure

import (
	"fmt"
	"time"

	"github.com/mscrnt/pwmbench/pkg/edge"
	"github.com/mscrnt/pwmbench/pkg/sim"
)

// Channels is the width of an output bus
const Channels = 8

// Config holds the measurement window
type Config struct {
	// TickBudget is the number of sampling iterations each edge search may
	// consume before reporting "not found"
	TickBudget int
	// NominalPeriod is the DUT's expected PWM period. The duty estimator
	// divides the measured high time by it; it must track the DUT's target
	// frequency.
	NominalPeriod time.Duration
}

// DefaultConfig returns the window used against the ~3 kHz PWM
func DefaultConfig() Config {
	return Config{
		TickBudget:    16700,
		NominalPeriod: 332890 * time.Nanosecond,
	}
}

// Validate checks the window
func (c Config) Validate() error {
	if c.TickBudget < 0 {
		return fmt.Errorf("tick budget must not be negative, got %d", c.TickBudget)
	}
	if c.NominalPeriod <= 0 {
		return fmt.Errorf("nominal period must be positive, got %s", c.NominalPeriod)
	}
	return nil
}

// EdgeOrder is the pair of transitions searched for on each bit
type EdgeOrder struct {
	First  edge.Kind
	Second edge.Kind
}

var (
	// RisingThenFalling measures high time
	RisingThenFalling = EdgeOrder{First: edge.Rising, Second: edge.Falling}
	// FallingThenRising measures low time
	FallingThenRising = EdgeOrder{First: edge.Falling, Second: edge.Rising}
	// RisingThenRising measures one full period
	RisingThenRising = EdgeOrder{First: edge.Rising, Second: edge.Rising}
)

// String formats the order as "rising->falling"
func (o EdgeOrder) String() string {
	return o.First.String() + "->" + o.Second.String()
}

type phase int

const (
	phaseFirst phase = iota
	phaseSecond
	phaseDone
)

// channel is the search state of one bit
type channel struct {
	bit    int
	phase  phase
	first  *edge.Search
	second *edge.Search
}

func newChannel(bit int, order EdgeOrder, budget int) *channel {
	c := &channel{
		bit:    bit,
		first:  edge.NewSearch(bit, order.First, budget),
		second: edge.NewSearch(bit, order.Second, budget),
	}
	c.settle()
	return c
}

// settle moves past searches that are already finished
func (c *channel) settle() {
	if c.phase == phaseFirst && c.first.Done() {
		c.phase = phaseSecond
	}
	if c.phase == phaseSecond && c.second.Done() {
		c.phase = phaseDone
	}
}

func (c *channel) done() bool {
	return c.phase == phaseDone
}

// observe feeds one sampling iteration to the active search. The second
// search starts fresh once the first one has finished, found or not.
func (c *channel) observe(p edge.Pair) {
	switch c.phase {
	case phaseFirst:
		c.first.Observe(p)
	case phaseSecond:
		c.second.Observe(p)
	default:
		return
	}
	c.settle()
}

// span returns t2 - t1 when both edges were found in order
func (c *channel) span() (time.Duration, bool) {
	t1, ok1 := c.first.Found()
	t2, ok2 := c.second.Found()
	if !ok1 || !ok2 || t2.At <= t1.At {
		return 0, false
	}
	return t2.At - t1.At, true
}

// last returns the most recent sampled level, preferring the second search
func (c *channel) last() (uint8, bool) {
	if level, ok := c.second.Last(); ok {
		return level, true
	}
	return c.first.Last()
}

// track runs one channel to completion
func track(sampler *edge.Sampler, bus sim.Bus, c *channel) {
	for !c.done() {
		c.observe(sampler.Sample(bus, c.bit))
	}
}
