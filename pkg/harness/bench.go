// Package harness wires the simulator, the DUT model, the transaction
// encoder and the estimators into one bench.
package harness

import (
	"fmt"
	"sync"
	"time"

	"github.com/mscrnt/pwmbench/pkg/dut"
	"github.com/mscrnt/pwmbench/pkg/edge"
	"github.com/mscrnt/pwmbench/pkg/measure"
	"github.com/mscrnt/pwmbench/pkg/sim"
	"github.com/mscrnt/pwmbench/pkg/spi"
	"github.com/sirupsen/logrus"
)

// Bus names
const (
	BusA = "A"
	BusB = "B"
)

// Bench owns all bus access. Every operation holds the bench lock, so
// callers on different goroutines are serialized and never interleave
// inside a transaction or a measurement.
type Bench struct {
	mu     sync.Mutex
	config Config
	logger logrus.FieldLogger

	sim       *sim.Simulator
	dut       *dut.PWM
	encoder   *spi.Encoder
	sampler   *edge.Sampler
	frequency *measure.Frequency
	duty      *measure.Duty

	// tick at which reset was last released
	releasedAt uint64
}

// New builds a bench around a fresh DUT model
func New(config Config, logger logrus.FieldLogger) (*Bench, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid bench configuration: %w", err)
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	model := dut.New(dut.Config{PWMPeriodTicks: config.PWMPeriodTicks})
	s := sim.New(config.ClockPeriod, model)
	sampler := edge.NewSampler(s)

	b := &Bench{
		config:    config,
		logger:    logger,
		sim:       s,
		dut:       model,
		encoder:   spi.NewEncoder(s, model.Input(), config.Bus(), logger),
		sampler:   sampler,
		frequency: measure.NewFrequency(sampler, config.Window(), logger),
		duty:      measure.NewDuty(sampler, config.Window(), logger),
	}
	b.encoder.Idle()
	return b, nil
}

// Config returns the bench timing
func (b *Bench) Config() Config {
	return b.config
}

// DUT returns the peripheral model
func (b *Bench) DUT() *dut.PWM {
	return b.dut
}

// Reset idles the control input, holds the DUT in reset for ResetTicks,
// releases it and waits another ResetTicks
func (b *Bench) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.encoder.Idle()
	b.dut.ResetN().Set(false)
	b.sim.Advance(b.config.ResetTicks)
	b.dut.ResetN().Set(true)
	b.releasedAt = b.sim.Ticks()
	b.sim.Advance(b.config.ResetTicks)

	b.logger.WithField("tick", b.releasedAt).Debug("reset released")
}

// Send clocks one transaction out to the DUT
func (b *Bench) Send(tx spi.Transaction) (spi.Frame, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.encoder.Send(tx)
}

// Write sends a write transaction
func (b *Bench) Write(address, payload int) error {
	_, err := b.Send(spi.NewWrite(address, payload))
	return err
}

// Read sends a read transaction
func (b *Bench) Read(address, payload int) error {
	_, err := b.Send(spi.NewRead(address, payload))
	return err
}

// Wait lets n ticks pass
func (b *Bench) Wait(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sim.Advance(n)
}

// Outputs returns the current level of both output buses
func (b *Bench) Outputs() (uint8, uint8) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dut.BusA().Read(), b.dut.BusB().Read()
}

// Ticks returns the tick counter
func (b *Bench) Ticks() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sim.Ticks()
}

// Now returns the elapsed simulated time
func (b *Bench) Now() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sim.Now()
}

// MeasureFrequency measures bus A, then bus B. The two results are
// independent.
func (b *Bench) MeasureFrequency() (measure.FrequencyResult, measure.FrequencyResult) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.align()
	a := b.frequency.Measure(BusA, b.dut.BusA())
	bb := b.frequency.Measure(BusB, b.dut.BusB())
	return a, bb
}

// MeasureDuty measures bus A rising-then-falling and bus B
// falling-then-rising. The mirrored order on bus B assumes the two output
// groups are in antiphase; keep it until that assumption is confirmed
// against the DUT.
func (b *Bench) MeasureDuty() (measure.DutyResult, measure.DutyResult) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.align()
	a := b.duty.Measure(BusA, b.dut.BusA(), measure.RisingThenFalling)
	bb := b.duty.Measure(BusB, b.dut.BusB(), measure.FallingThenRising)
	return a, bb
}

// align waits one tick if needed so that the second sample of every pair
// lands on the same clock parity as the DUT's output updates since reset.
// A sampling pair cannot see a transition that happens between two pairs.
// The DUT model keeps both the period and the high time even, so after
// alignment every rising and falling edge is inside a pair.
func (b *Bench) align() {
	if (b.sim.Ticks()+b.releasedAt+1)%2 != 0 {
		b.sim.Advance(1)
	}
}
