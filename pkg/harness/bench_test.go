package harness

import (
	"testing"

	"github.com/mscrnt/pwmbench/pkg/dut"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// expected PWM frequency of the default DUT: 10 MHz / 3328
const pwmHz = 1e7 / dut.DefaultPWMPeriod

func newBench(t *testing.T) *Bench {
	t.Helper()
	logger, _ := test.NewNullLogger()
	b, err := New(DefaultConfig(), logger)
	require.NoError(t, err)
	b.Reset()
	return b
}

func (b *Bench) mustWrite(t *testing.T, regs ...[2]int) {
	t.Helper()
	for _, r := range regs {
		require.NoError(t, b.Write(r[0], r[1]))
	}
}

func TestDefaultConfigValid(t *testing.T) {
	c := DefaultConfig()
	require.NoError(t, c.Validate())
	assert.Equal(t, 5, c.ResetTicks)
	assert.Equal(t, 600, c.Bus().SettleTicks)
	assert.Equal(t, 16700, c.Window().TickBudget)

	c.SCLKPeriod = c.ClockPeriod
	assert.Error(t, c.Validate())

	odd := DefaultConfig()
	odd.PWMPeriodTicks = 3327
	assert.ErrorContains(t, odd.Validate(), "even")

	_, err := New(c, nil)
	assert.Error(t, err)
}

func TestResetTiming(t *testing.T) {
	b := newBench(t)
	assert.Equal(t, uint64(10), b.Ticks())

	a, bb := b.Outputs()
	assert.Equal(t, uint8(0), a)
	assert.Equal(t, uint8(0), bb)
}

func TestRegisterWrites(t *testing.T) {
	b := newBench(t)
	b.mustWrite(t, [2]int{dut.RegOutputEnableA, 0xF0}, [2]int{dut.RegOutputEnableB, 0xCC})

	a, bb := b.Outputs()
	assert.Equal(t, uint8(0xF0), a)
	assert.Equal(t, uint8(0xCC), bb)

	require.NoError(t, b.Read(dut.RegOutputEnableA, 0x00))
	a, _ = b.Outputs()
	assert.Equal(t, uint8(0xF0), a)

	assert.Error(t, b.Write(0x80, 0))
	assert.Error(t, b.Write(0, 0x100))
}

func TestFrequencyAllPWM(t *testing.T) {
	b := newBench(t)
	b.mustWrite(t,
		[2]int{dut.RegOutputEnableA, 0xFF},
		[2]int{dut.RegOutputEnableB, 0xFF},
		[2]int{dut.RegPWMEnableA, 0xFF},
		[2]int{dut.RegPWMEnableB, 0xFF},
		[2]int{dut.RegDutyCycle, 0x80},
	)

	a, bb := b.MeasureFrequency()
	assert.Equal(t, 8, a.ActiveChannels)
	assert.Equal(t, 8, bb.ActiveChannels)
	assert.InDelta(t, pwmHz, a.AverageHz, 0.01)
	assert.InDelta(t, pwmHz, bb.AverageHz, 0.01)
}

func TestFrequencyDisabledOutputs(t *testing.T) {
	b := newBench(t)
	a, bb := b.MeasureFrequency()
	assert.Equal(t, 0.0, a.AverageHz)
	assert.Equal(t, 0.0, bb.AverageHz)
}

func TestFrequencyMixed(t *testing.T) {
	b := newBench(t)
	b.mustWrite(t,
		[2]int{dut.RegOutputEnableA, 0xFF},
		[2]int{dut.RegPWMEnableA, 0xFF},
		[2]int{dut.RegDutyCycle, 0x80},
	)

	a, bb := b.MeasureFrequency()
	assert.InDelta(t, pwmHz, a.AverageHz, 0.01)
	assert.Equal(t, 0.0, bb.AverageHz)
}

func TestDuty(t *testing.T) {
	tests := []struct {
		name string
		duty int
		want float64
	}{
		{"full", 0xFF, 100},
		{"zero", 0x00, 0},
		// 1664 ticks of a 332.89us nominal period
		{"half", 0x80, 166.4 / 332.89 * 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBench(t)
			b.mustWrite(t,
				[2]int{dut.RegOutputEnableA, 0xFF},
				[2]int{dut.RegOutputEnableB, 0xFF},
				[2]int{dut.RegPWMEnableA, 0xFF},
				[2]int{dut.RegPWMEnableB, 0xFF},
				[2]int{dut.RegDutyCycle, tt.duty},
			)

			a, bb := b.MeasureDuty()
			assert.InDelta(t, tt.want, a.AveragePercent, 1e-6)
			assert.InDelta(t, tt.want, bb.AveragePercent, 1e-6)
			assert.Equal(t, "rising->falling", a.Order)
			assert.Equal(t, "falling->rising", bb.Order)
		})
	}
}

func TestDutyOddRegisterValues(t *testing.T) {
	model := dut.DefaultConfig()
	nominal := DefaultConfig().NominalPWMPeriod

	for _, duty := range []int{0x01, 0x81, 0xCF} {
		b := newBench(t)
		b.mustWrite(t,
			[2]int{dut.RegOutputEnableA, 0xFF},
			[2]int{dut.RegOutputEnableB, 0xFF},
			[2]int{dut.RegPWMEnableA, 0xFF},
			[2]int{dut.RegPWMEnableB, 0xFF},
			[2]int{dut.RegDutyCycle, duty},
		)

		high := model.HighTicks(uint8(duty))
		wantA := float64(high) * 100e-9 / nominal.Seconds() * 100
		wantB := float64(model.PWMPeriodTicks-high) * 100e-9 / nominal.Seconds() * 100

		a, bb := b.MeasureDuty()
		assert.Equal(t, 8, a.ActiveChannels, "duty %#x", duty)
		assert.Equal(t, 8, bb.ActiveChannels, "duty %#x", duty)
		for _, c := range append(a.Channels, bb.Channels...) {
			assert.False(t, c.Stalled, "duty %#x bit %d", duty, c.Bit)
		}
		assert.InDelta(t, wantA, a.AveragePercent, 1e-6, "duty %#x", duty)
		// bus B times the low phase
		assert.InDelta(t, wantB, bb.AveragePercent, 1e-6, "duty %#x", duty)
	}
}

func TestDutyHalfOnStaticGroup(t *testing.T) {
	b := newBench(t)
	b.mustWrite(t,
		[2]int{dut.RegOutputEnableA, 0xF0},
		[2]int{dut.RegPWMEnableA, 0xF0},
		[2]int{dut.RegDutyCycle, 0x80},
	)

	a, bb := b.MeasureDuty()
	assert.Equal(t, 4, a.ActiveChannels)
	assert.InDelta(t, 50, a.AveragePercent, 0.1)
	assert.Equal(t, 0, bb.ActiveChannels)
	assert.Equal(t, 0.0, bb.AveragePercent)

	fa, _ := b.MeasureFrequency()
	assert.Equal(t, 4, fa.ActiveChannels)
	assert.InDelta(t, pwmHz, fa.AverageHz, 0.01)
}

func TestMeasurementsAfterOddWait(t *testing.T) {
	b := newBench(t)
	b.mustWrite(t,
		[2]int{dut.RegOutputEnableA, 0xFF},
		[2]int{dut.RegPWMEnableA, 0xFF},
		[2]int{dut.RegDutyCycle, 0x80},
	)
	b.Wait(1)

	a, _ := b.MeasureFrequency()
	assert.Equal(t, 8, a.ActiveChannels)
	assert.InDelta(t, pwmHz, a.AverageHz, 0.01)
}
