// Package dut is a behavioral model of the PWM peripheral the bench
// characterizes. It honors the pin-level contract only: a serial register
// interface on the control input and two 8-bit output groups.
package dut

import (
	"github.com/mscrnt/pwmbench/pkg/sim"
)

// Register map
const (
	RegOutputEnableA = 0x00
	RegOutputEnableB = 0x01
	RegPWMEnableA    = 0x02
	RegPWMEnableB    = 0x03
	RegDutyCycle     = 0x04

	// MaxRegister is the highest writable address; writes above it are
	// ignored
	MaxRegister = RegDutyCycle
)

// Control input bit positions
const (
	sclkBit = 0
	copiBit = 1
	ncsBit  = 2

	transactionBits = 16
)

// DefaultPWMPeriod is the PWM period in clock ticks (about 3004.8 Hz at
// 10 MHz)
const DefaultPWMPeriod = 3328

// Config holds the model parameters
type Config struct {
	// PWMPeriodTicks must be even. Every output transition then lands on
	// ticks of one parity, which is all a paired sampler can observe.
	PWMPeriodTicks int
}

// HighTicks returns how many ticks of each period the PWM level is high for
// a duty register value. The exact duty*period/256 is rounded down to an
// even count so the falling edge keeps the parity of the rising edge.
func (c Config) HighTicks(duty uint8) int {
	if duty == 0xFF {
		return c.PWMPeriodTicks
	}
	return (int(duty) * c.PWMPeriodTicks / 256) &^ 1
}

// DefaultConfig returns the model used by the bench
func DefaultConfig() Config {
	return Config{PWMPeriodTicks: DefaultPWMPeriod}
}

// PWM is the peripheral model. Attach it to a simulator; it is stepped once
// per clock edge.
type PWM struct {
	config Config

	ui   *sim.Wire
	uo   *sim.Wire
	uio  *sim.Wire
	rstN *sim.Line

	regs [MaxRegister + 1]uint8

	// serial target state
	prevSCLK uint8
	prevNCS  uint8
	shift    uint16
	bits     int

	counter int
	writes  int
}

// New creates a model out of reset with all registers cleared
func New(config Config) *PWM {
	if config.PWMPeriodTicks <= 0 {
		config.PWMPeriodTicks = DefaultPWMPeriod
	}
	return &PWM{
		config:  config,
		ui:      sim.NewWire(0),
		uo:      sim.NewWire(0),
		uio:     sim.NewWire(0),
		rstN:    sim.NewLine(true),
		prevNCS: 1,
	}
}

// Input returns the control input pin group
func (d *PWM) Input() *sim.Wire { return d.ui }

// BusA returns the dedicated output group
func (d *PWM) BusA() sim.Bus { return d.uo }

// BusB returns the bidirectional output group
func (d *PWM) BusB() sim.Bus { return d.uio }

// ResetN returns the active-low reset line
func (d *PWM) ResetN() *sim.Line { return d.rstN }

// Register returns a register value. It is a back door for tests; the bench
// itself only observes the output pins.
func (d *PWM) Register(addr int) (uint8, bool) {
	if addr < 0 || addr > MaxRegister {
		return 0, false
	}
	return d.regs[addr], true
}

// Writes returns the number of register writes committed since reset
func (d *PWM) Writes() int {
	return d.writes
}

// Tick advances the model by one clock edge
func (d *PWM) Tick() {
	if !d.rstN.High() {
		d.reset()
		return
	}

	in := d.ui.Read()
	sclk := sim.Bit(in, sclkBit)
	copi := sim.Bit(in, copiBit)
	ncs := sim.Bit(in, ncsBit)

	switch {
	case ncs == 0 && d.prevNCS == 1:
		// start of frame
		d.shift = 0
		d.bits = 0
	case ncs == 1 && d.prevNCS == 0:
		d.commit()
	}

	if ncs == 0 && d.prevSCLK == 0 && sclk == 1 && d.bits < transactionBits {
		d.shift = d.shift<<1 | uint16(copi)
		d.bits++
	}

	d.prevSCLK = sclk
	d.prevNCS = ncs

	d.drive()
	d.counter++
	if d.counter >= d.config.PWMPeriodTicks {
		d.counter = 0
	}
}

func (d *PWM) reset() {
	d.regs = [MaxRegister + 1]uint8{}
	d.prevSCLK = 0
	d.prevNCS = 1
	d.shift = 0
	d.bits = 0
	d.counter = 0
	d.writes = 0
	d.uo.Drive(0)
	d.uio.Drive(0)
}

// commit latches a complete write frame into the register file
func (d *PWM) commit() {
	if d.bits != transactionBits {
		return
	}
	write := d.shift>>15 == 1
	addr := int(d.shift>>8) & 0x7F
	if !write || addr > MaxRegister {
		return
	}
	d.regs[addr] = uint8(d.shift)
	d.writes++
}

// level returns the PWM level for the current counter value
func (d *PWM) level() uint8 {
	if d.counter < d.config.HighTicks(d.regs[RegDutyCycle]) {
		return 0xFF
	}
	return 0
}

func (d *PWM) drive() {
	pwm := d.level()
	d.uo.Drive(output(d.regs[RegOutputEnableA], d.regs[RegPWMEnableA], pwm))
	d.uio.Drive(output(d.regs[RegOutputEnableB], d.regs[RegPWMEnableB], pwm))
}

// output applies enable masks: disabled bits are low, enabled non-PWM bits
// are high, enabled PWM bits follow the PWM level
func output(enable, pwmEnable, pwm uint8) uint8 {
	return enable & (^pwmEnable | pwm)
}
