package spi

import (
	"time"

	"github.com/mscrnt/pwmbench/pkg/sim"
	"github.com/sirupsen/logrus"
)

// Config holds the bus timing
type Config struct {
	// SCLKPeriod is the nominal serial clock period. Each half-period wait
	// lasts until more than SCLKPeriod/2 has elapsed.
	SCLKPeriod time.Duration
	// SetupTicks is how long chip-select is held before the first bit
	SetupTicks int
	// SettleTicks is how long the encoder waits after deasserting
	// chip-select so the DUT can latch the transaction
	SettleTicks int
}

// DefaultConfig returns the 100 kHz serial clock timing used against the
// 10 MHz bench clock
func DefaultConfig() Config {
	return Config{
		SCLKPeriod:  10 * time.Microsecond,
		SetupTicks:  1,
		SettleTicks: 600,
	}
}

// Encoder drives transactions onto the control input. It is the only writer
// of that pin group.
type Encoder struct {
	clock  sim.Clock
	pin    sim.Driver
	config Config
	logger logrus.FieldLogger
}

// NewEncoder creates an encoder driving pin against clock
func NewEncoder(clock sim.Clock, pin sim.Driver, config Config, logger logrus.FieldLogger) *Encoder {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Encoder{
		clock:  clock,
		pin:    pin,
		config: config,
		logger: logger,
	}
}

// Config returns the encoder timing
func (e *Encoder) Config() Config {
	return e.config
}

// Idle drives the idle frame without waiting
func (e *Encoder) Idle() Frame {
	e.pin.Drive(uint8(IdleFrame))
	return IdleFrame
}

// Send clocks tx out MSB first and returns the frame left on the bus. It
// returns only after chip-select has been released and the settle window has
// elapsed. An out-of-range transaction returns ErrInvalidArgument before any
// pin is driven.
func (e *Encoder) Send(tx Transaction) (Frame, error) {
	if err := tx.Validate(); err != nil {
		return 0, err
	}

	word := tx.Word()
	start := e.clock.Ticks()

	// Select the target
	e.drive(NewFrame(0, 0, 0))
	e.clock.Advance(e.config.SetupTicks)

	for i := WordBits - 1; i >= 0; i-- {
		bit := uint8(word>>uint(i)) & 1

		// Data changes only while the clock is low
		e.drive(NewFrame(0, bit, 0))
		e.awaitHalfPeriod()

		e.drive(NewFrame(0, bit, 1))
		e.awaitHalfPeriod()
	}

	// Release the target and let it latch
	e.drive(IdleFrame)
	e.clock.Advance(e.config.SettleTicks)

	e.logger.WithFields(logrus.Fields{
		"direction": tx.Direction.String(),
		"address":   tx.Address,
		"payload":   tx.Payload,
		"ticks":     e.clock.Ticks() - start,
	}).Debug("spi transaction sent")

	return IdleFrame, nil
}

func (e *Encoder) drive(f Frame) {
	e.pin.Drive(uint8(f))
}

// awaitHalfPeriod polls one tick at a time until strictly more than half of
// the serial clock period has elapsed since the call.
func (e *Encoder) awaitHalfPeriod() {
	start := e.clock.Now()
	half := e.config.SCLKPeriod / 2
	for {
		e.clock.Advance(1)
		if start+half < e.clock.Now() {
			return
		}
	}
}
