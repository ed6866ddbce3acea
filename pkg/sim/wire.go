package sim

// Bus is a read-only 8-bit signal group, such as a DUT output bus.
type Bus interface {
	Read() uint8
}

// Driver is a write-only 8-bit signal group, such as the DUT control input.
type Driver interface {
	Drive(v uint8)
}

// Wire is an 8-bit signal. The zero value reads as 0.
type Wire struct {
	value uint8
}

// NewWire creates a wire holding v
func NewWire(v uint8) *Wire {
	return &Wire{value: v}
}

// Read returns the current value
func (w *Wire) Read() uint8 {
	return w.value
}

// Drive replaces the current value
func (w *Wire) Drive(v uint8) {
	w.value = v
}

// Bit returns bit i of the wire as 0 or 1
func (w *Wire) Bit(i int) uint8 {
	return Bit(w.value, i)
}

// Bit returns bit i of v as 0 or 1. Out-of-range indices read as 0.
func Bit(v uint8, i int) uint8 {
	if i < 0 || i > 7 {
		return 0
	}
	return (v >> uint(i)) & 1
}

// Line is a single-bit signal, used for the active-low reset
type Line struct {
	high bool
}

// NewLine creates a line at the given level
func NewLine(high bool) *Line {
	return &Line{high: high}
}

// Set drives the line
func (l *Line) Set(high bool) {
	l.high = high
}

// High reports whether the line is high
func (l *Line) High() bool {
	return l.high
}
