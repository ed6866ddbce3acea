package measure

import (
	"testing"
	"time"

	"github.com/mscrnt/pwmbench/pkg/edge"
	"github.com/mscrnt/pwmbench/pkg/sim"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testPeriod = 100 // ticks, 10us at the default clock
	testHigh   = 40  // ticks
)

// bench is a simulator driving a synthetic 8-bit bus. Bits in toggling
// carry a square wave that is high for testHigh ticks out of testPeriod,
// starting with a rising edge at tick 0; every other bit holds its value
// in static.
type bench struct {
	sim     *sim.Simulator
	bus     *sim.Wire
	sampler *edge.Sampler
}

func newBench(toggling, static uint8) *bench {
	s := sim.New(sim.DefaultPeriod)
	w := sim.NewWire(static &^ toggling)
	s.Attach(sim.ComponentFunc(func() {
		var wave uint8
		if s.Ticks()%testPeriod < testHigh {
			wave = 0xFF
		}
		w.Drive(toggling&wave | static&^toggling)
	}))
	return &bench{sim: s, bus: w, sampler: edge.NewSampler(s)}
}

func testConfig() Config {
	return Config{
		TickBudget:    2 * testPeriod,
		NominalPeriod: testPeriod * sim.DefaultPeriod,
	}
}

func quietLogger() logrus.FieldLogger {
	logger, _ := test.NewNullLogger()
	return logger
}

func TestDefaultConfig(t *testing.T) {
	c := DefaultConfig()
	assert.Equal(t, 16700, c.TickBudget)
	assert.Equal(t, 332890*time.Nanosecond, c.NominalPeriod)
	assert.NoError(t, c.Validate())

	assert.Error(t, Config{TickBudget: -1, NominalPeriod: time.Second}.Validate())
	assert.Error(t, Config{TickBudget: 1}.Validate())
}

func TestEdgeOrderString(t *testing.T) {
	assert.Equal(t, "rising->falling", RisingThenFalling.String())
	assert.Equal(t, "falling->rising", FallingThenRising.String())
	assert.Equal(t, "rising->rising", RisingThenRising.String())
}

func TestFrequencyAllToggling(t *testing.T) {
	b := newBench(0xFF, 0)
	f := NewFrequency(b.sampler, testConfig(), quietLogger())

	r := f.Measure("A", b.bus)
	assert.Equal(t, "A", r.Bus)
	assert.Equal(t, Channels, r.ActiveChannels)
	assert.InDelta(t, 100000.0, r.AverageHz, 1e-6)
	require.Len(t, r.Channels, Channels)
	for i, c := range r.Channels {
		assert.Equal(t, i, c.Bit)
		assert.False(t, c.Stalled)
		assert.Equal(t, 10*time.Microsecond, c.Period)
	}
}

func TestFrequencyAllStalled(t *testing.T) {
	for _, static := range []uint8{0x00, 0xFF} {
		b := newBench(0, static)
		r := NewFrequency(b.sampler, testConfig(), quietLogger()).Measure("B", b.bus)
		assert.Equal(t, 0.0, r.AverageHz)
		assert.Equal(t, 0, r.ActiveChannels)
		for _, c := range r.Channels {
			assert.True(t, c.Stalled)
		}
	}
}

func TestFrequencyExcludesStalledChannels(t *testing.T) {
	// half the bits toggle: the average is over the toggling bits only,
	// not over all eight
	b := newBench(0x0F, 0xF0)
	r := NewFrequency(b.sampler, testConfig(), quietLogger()).Measure("A", b.bus)

	assert.Equal(t, 4, r.ActiveChannels)
	assert.InDelta(t, 100000.0, r.AverageHz, 1e-6)
	for _, c := range r.Channels {
		assert.Equal(t, c.Bit >= 4, c.Stalled, "bit %d", c.Bit)
	}
}

func TestFrequencyZeroBudget(t *testing.T) {
	b := newBench(0xFF, 0)
	config := testConfig()
	config.TickBudget = 0

	r := NewFrequency(b.sampler, config, quietLogger()).Measure("A", b.bus)
	assert.Equal(t, 0.0, r.AverageHz)
	assert.Equal(t, 0, r.ActiveChannels)
	assert.Equal(t, uint64(0), b.sim.Ticks())
}

func TestDutyToggling(t *testing.T) {
	b := newBench(0xFF, 0)
	r := NewDuty(b.sampler, testConfig(), quietLogger()).Measure("A", b.bus, RisingThenFalling)

	assert.Equal(t, "rising->falling", r.Order)
	assert.Equal(t, Channels, r.ActiveChannels)
	assert.InDelta(t, 40.0, r.AveragePercent, 1e-9)
	for _, c := range r.Channels {
		assert.False(t, c.Stalled)
		assert.Equal(t, 4*time.Microsecond, c.Span)
	}
}

func TestDutyMirroredOrderMeasuresLowTime(t *testing.T) {
	b := newBench(0xFF, 0)
	r := NewDuty(b.sampler, testConfig(), quietLogger()).Measure("B", b.bus, FallingThenRising)

	assert.Equal(t, "falling->rising", r.Order)
	assert.InDelta(t, 60.0, r.AveragePercent, 1e-9)
}

func TestDutyPinnedHigh(t *testing.T) {
	b := newBench(0, 0xFF)
	r := NewDuty(b.sampler, testConfig(), quietLogger()).Measure("A", b.bus, RisingThenFalling)

	assert.Equal(t, 100.0, r.AveragePercent)
	assert.Equal(t, Channels, r.ActiveChannels)
	for _, c := range r.Channels {
		assert.True(t, c.Stalled)
		assert.Equal(t, uint8(1), c.Level)
		assert.Equal(t, 1.0, c.Fraction)
	}
}

func TestDutyPinnedLow(t *testing.T) {
	b := newBench(0, 0)
	r := NewDuty(b.sampler, testConfig(), quietLogger()).Measure("A", b.bus, RisingThenFalling)

	assert.Equal(t, 0.0, r.AveragePercent)
	assert.Equal(t, 0, r.ActiveChannels)
}

func TestDutyDenominator(t *testing.T) {
	tests := []struct {
		name     string
		toggling uint8
		static   uint8
		active   int
		percent  float64
	}{
		{"pinned high bits count as 100%", 0x0F, 0xF0, 8, (4*0.4 + 4*1.0) / 8 * 100},
		{"pinned low bits are excluded", 0x0F, 0x00, 4, 40},
		{"mixed pins", 0x03, 0x0C, 4, (2*0.4 + 2*1.0) / 4 * 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBench(tt.toggling, tt.static)
			r := NewDuty(b.sampler, testConfig(), quietLogger()).Measure("A", b.bus, RisingThenFalling)
			assert.Equal(t, tt.active, r.ActiveChannels)
			assert.InDelta(t, tt.percent, r.AveragePercent, 1e-9)
		})
	}
}

func TestDutyZeroBudgetReadsLevel(t *testing.T) {
	s := sim.New(sim.DefaultPeriod)
	w := sim.NewWire(0x0F)
	config := testConfig()
	config.TickBudget = 0

	r := NewDuty(edge.NewSampler(s), config, quietLogger()).Measure("A", w, RisingThenFalling)
	assert.Equal(t, uint64(0), s.Ticks())
	assert.Equal(t, 4, r.ActiveChannels)
	assert.Equal(t, 100.0, r.AveragePercent)
}

func TestDutyLogsPerChannel(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	b := newBench(0xFF, 0)
	NewDuty(b.sampler, testConfig(), logger).Measure("A", b.bus, RisingThenFalling)

	// one entry per channel plus the bus summary
	require.Len(t, hook.AllEntries(), Channels+1)
	last := hook.LastEntry()
	assert.Equal(t, "bus duty", last.Message)
	assert.Equal(t, "A", last.Data["bus"])
}
