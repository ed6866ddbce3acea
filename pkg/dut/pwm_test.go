package dut

import (
	"testing"

	"github.com/mscrnt/pwmbench/pkg/sim"
	"github.com/mscrnt/pwmbench/pkg/spi"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rig struct {
	sim     *sim.Simulator
	dut     *PWM
	encoder *spi.Encoder
}

func newRig(t *testing.T) *rig {
	t.Helper()
	d := New(DefaultConfig())
	s := sim.New(sim.DefaultPeriod, d)
	logger, _ := test.NewNullLogger()
	e := spi.NewEncoder(s, d.Input(), spi.DefaultConfig(), logger)
	e.Idle()
	return &rig{sim: s, dut: d, encoder: e}
}

func (r *rig) write(t *testing.T, addr, value int) {
	t.Helper()
	_, err := r.encoder.Send(spi.NewWrite(addr, value))
	require.NoError(t, err)
}

func TestRegisterWrites(t *testing.T) {
	r := newRig(t)

	r.write(t, RegOutputEnableA, 0xF0)
	assert.Equal(t, uint8(0xF0), r.dut.BusA().Read())
	assert.Equal(t, uint8(0x00), r.dut.BusB().Read())

	r.write(t, RegOutputEnableB, 0xCC)
	assert.Equal(t, uint8(0xCC), r.dut.BusB().Read())

	v, ok := r.dut.Register(RegOutputEnableB)
	require.True(t, ok)
	assert.Equal(t, uint8(0xCC), v)
	assert.Equal(t, 2, r.dut.Writes())
}

func TestReadsAndUnknownAddressesAreIgnored(t *testing.T) {
	r := newRig(t)
	r.write(t, RegOutputEnableA, 0xF0)

	_, err := r.encoder.Send(spi.NewRead(RegOutputEnableA, 0x0F))
	require.NoError(t, err)
	r.write(t, 0x30, 0xFF)

	assert.Equal(t, uint8(0xF0), r.dut.BusA().Read())
	assert.Equal(t, 1, r.dut.Writes())

	_, ok := r.dut.Register(0x30)
	assert.False(t, ok)
}

func TestIncompleteFrameIsDropped(t *testing.T) {
	r := newRig(t)
	in := r.dut.Input()

	// chip select low, one clock pulse, chip select high
	in.Drive(0b000)
	r.sim.Advance(2)
	in.Drive(0b011)
	r.sim.Advance(2)
	in.Drive(0b100)
	r.sim.Advance(2)

	assert.Equal(t, 0, r.dut.Writes())
}

// highTicks counts how many of the next period ticks bit 0 of bus is high
func highTicks(s *sim.Simulator, bus sim.Bus, period int) int {
	high := 0
	for i := 0; i < period; i++ {
		s.Advance(1)
		high += int(sim.Bit(bus.Read(), 0))
	}
	return high
}

func TestPWMDuty(t *testing.T) {
	tests := []struct {
		duty int
		high int
	}{
		{0x00, 0},
		{0x80, DefaultPWMPeriod / 2},
		{0x40, DefaultPWMPeriod / 4},
		{0xFF, DefaultPWMPeriod},
		// odd counts round down to even
		{0x01, 12},
		{0x81, 1676},
		{0xCF, 2690},
	}
	for _, tt := range tests {
		r := newRig(t)
		r.write(t, RegOutputEnableA, 0xFF)
		r.write(t, RegPWMEnableA, 0xFF)
		r.write(t, RegDutyCycle, tt.duty)

		assert.Equal(t, tt.high, highTicks(r.sim, r.dut.BusA(), DefaultPWMPeriod), "duty %#x", tt.duty)
	}
}

func TestPWMPeriodFromReset(t *testing.T) {
	r := newRig(t)
	r.write(t, RegOutputEnableA, 0x01)
	r.write(t, RegPWMEnableA, 0x01)
	r.write(t, RegDutyCycle, 0x80)

	r.dut.ResetN().Set(false)
	r.sim.Advance(5)
	assert.Equal(t, uint8(0), r.dut.BusA().Read())
	assert.Equal(t, 0, r.dut.Writes())

	// registers are cleared: rewrite them, the counter keeps running from
	// the release
	r.dut.ResetN().Set(true)
	released := r.sim.Ticks()
	r.write(t, RegOutputEnableA, 0x01)
	r.write(t, RegPWMEnableA, 0x01)
	r.write(t, RegDutyCycle, 0x80)

	var rises []uint64
	prev := sim.Bit(r.dut.BusA().Read(), 0)
	for len(rises) < 2 {
		r.sim.Advance(1)
		cur := sim.Bit(r.dut.BusA().Read(), 0)
		if prev == 0 && cur == 1 {
			rises = append(rises, r.sim.Ticks())
		}
		prev = cur
	}

	assert.Equal(t, uint64(DefaultPWMPeriod), rises[1]-rises[0])
	assert.Zero(t, (rises[0]-released-1)%DefaultPWMPeriod)
}

func TestHighTicksAreEven(t *testing.T) {
	c := DefaultConfig()
	for duty := 0; duty < 0xFF; duty++ {
		high := c.HighTicks(uint8(duty))
		assert.Zero(t, high%2, "duty %#x", duty)
		assert.LessOrEqual(t, duty*c.PWMPeriodTicks/256-high, 1, "duty %#x", duty)
	}
	assert.Equal(t, c.PWMPeriodTicks, c.HighTicks(0xFF))
}

func TestOutputMasks(t *testing.T) {
	assert.Equal(t, uint8(0x00), output(0x00, 0x00, 0xFF))
	assert.Equal(t, uint8(0xFF), output(0xFF, 0x00, 0x00))
	assert.Equal(t, uint8(0xF0), output(0xF0, 0xF0, 0xFF))
	assert.Equal(t, uint8(0x00), output(0xF0, 0xF0, 0x00))
	assert.Equal(t, uint8(0x0C), output(0x0F, 0x03, 0x00))
}
