package spi

import "fmt"

// Bit positions of the serial signals on the control input. The remaining
// bits are don't-care and always driven low.
const (
	SCLKBit = 0
	COPIBit = 1
	NCSBit  = 2
)

// Frame is the control input pin state for one half-clock step
type Frame uint8

// IdleFrame is the bus state between transactions: chip-select inactive,
// clock and data low.
var IdleFrame = NewFrame(1, 0, 0)

// NewFrame packs chip-select (active low), serial data and serial clock
func NewFrame(ncs, copi, sclk uint8) Frame {
	return Frame((ncs&1)<<NCSBit | (copi&1)<<COPIBit | (sclk&1)<<SCLKBit)
}

// NCS returns the chip-select level (0 = selected)
func (f Frame) NCS() uint8 { return uint8(f>>NCSBit) & 1 }

// COPI returns the serial data level
func (f Frame) COPI() uint8 { return uint8(f>>COPIBit) & 1 }

// SCLK returns the serial clock level
func (f Frame) SCLK() uint8 { return uint8(f>>SCLKBit) & 1 }

// String renders the frame as its 8-bit pin vector
func (f Frame) String() string {
	return fmt.Sprintf("%08b", uint8(f))
}
