package sim

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulatorAdvance(t *testing.T) {
	var stepped []uint64
	s := New(0)
	s.Attach(ComponentFunc(func() { stepped = append(stepped, s.Ticks()) }))

	require.Equal(t, DefaultPeriod, s.Period())
	assert.Equal(t, time.Duration(0), s.Now())

	s.Advance(3)
	assert.Equal(t, uint64(3), s.Ticks())
	assert.Equal(t, 300*time.Nanosecond, s.Now())
	assert.Equal(t, []uint64{1, 2, 3}, stepped)

	// zero and negative waits are valid and do nothing
	s.Advance(0)
	s.Advance(-4)
	assert.Equal(t, uint64(3), s.Ticks())
	assert.Len(t, stepped, 3)
}

func TestSimulatorComponentOrder(t *testing.T) {
	var order []string
	s := New(time.Microsecond,
		ComponentFunc(func() { order = append(order, "a") }),
		ComponentFunc(func() { order = append(order, "b") }),
	)
	s.Attach(ComponentFunc(func() { order = append(order, "c") }))

	s.Advance(2)
	assert.Equal(t, []string{"a", "b", "c", "a", "b", "c"}, order)
	assert.Equal(t, 2*time.Microsecond, s.Now())
}

func TestWireBits(t *testing.T) {
	w := NewWire(0b1010_0101)
	assert.Equal(t, uint8(1), w.Bit(0))
	assert.Equal(t, uint8(0), w.Bit(1))
	assert.Equal(t, uint8(1), w.Bit(7))
	assert.Equal(t, uint8(0), w.Bit(8))
	assert.Equal(t, uint8(0), w.Bit(-1))

	w.Drive(0xFF)
	assert.Equal(t, uint8(0xFF), w.Read())
}

func TestLine(t *testing.T) {
	l := NewLine(false)
	assert.False(t, l.High())
	l.Set(true)
	assert.True(t, l.High())
}
