// Package sim provides the discrete time base the bench runs on.
//
// One tick is one rising edge of the bench clock. Every wait in the harness is
// expressed as a number of ticks; the simulator is the only place that turns
// ticks into elapsed time.
package sim

import "time"

// DefaultPeriod is the bench clock period (10 MHz)
const DefaultPeriod = 100 * time.Nanosecond

// Clock is the sample clock seen by the encoder, the edge sampler and the
// estimators.
type Clock interface {
	// Advance blocks until n clock edges have elapsed. n <= 0 returns
	// immediately.
	Advance(n int)

	// Now returns the elapsed simulated time.
	Now() time.Duration

	// Ticks returns the number of clock edges since the simulator started.
	Ticks() uint64
}

// Component is anything clocked by the simulator. Tick is called once per
// clock edge, after the tick counter has been incremented.
type Component interface {
	Tick()
}

// ComponentFunc adapts a function to a Component
type ComponentFunc func()

// Tick calls f
func (f ComponentFunc) Tick() { f() }

// Simulator is a single-threaded Clock that steps its components on every
// edge.
type Simulator struct {
	period     time.Duration
	ticks      uint64
	components []Component
}

// New creates a simulator with the given clock period. A non-positive period
// falls back to DefaultPeriod.
func New(period time.Duration, components ...Component) *Simulator {
	if period <= 0 {
		period = DefaultPeriod
	}
	return &Simulator{
		period:     period,
		components: components,
	}
}

// Attach registers another component. Components are stepped in the order
// they were attached.
func (s *Simulator) Attach(c Component) {
	s.components = append(s.components, c)
}

// Period returns the clock period
func (s *Simulator) Period() time.Duration {
	return s.period
}

// Advance steps the simulation by n clock edges
func (s *Simulator) Advance(n int) {
	for i := 0; i < n; i++ {
		s.ticks++
		for _, c := range s.components {
			c.Tick()
		}
	}
}

// Now returns ticks * period
func (s *Simulator) Now() time.Duration {
	return time.Duration(s.ticks) * s.period
}

// Ticks returns the tick counter
func (s *Simulator) Ticks() uint64 {
	return s.ticks
}
