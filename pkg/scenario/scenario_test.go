package scenario

import (
	"context"
	"errors"
	"testing"

	"github.com/mscrnt/pwmbench/pkg/dut"
	"github.com/mscrnt/pwmbench/pkg/harness"
	"github.com/mscrnt/pwmbench/pkg/measure"
	"github.com/mscrnt/pwmbench/pkg/spi"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParamsAccessors(t *testing.T) {
	p := DefaultParams()
	p.Config["case"] = "mixed"
	p.Config["freq_min"] = "2900.5"
	p.Config["freq_max"] = 3100
	p.Config["tick_budget"] = float64(100)

	assert.Equal(t, "mixed", p.String("case", ""))
	assert.Equal(t, "x", p.String("missing", "x"))
	assert.Equal(t, 2900.5, p.Float("freq_min", 0))
	assert.Equal(t, 3100.0, p.Float("freq_max", 0))
	assert.Equal(t, 1.5, p.Float("missing", 1.5))
	assert.Equal(t, 100, p.BenchConfig().TickBudget)
	assert.Equal(t, 16700, p.Bench.TickBudget)
}

func TestUnmarshalParamsKeepsDefaults(t *testing.T) {
	p, err := UnmarshalParams([]byte(`{"config":{"case":"half"}}`))
	require.NoError(t, err)
	assert.Equal(t, harness.DefaultConfig(), p.Bench)
	assert.Equal(t, "half", p.String("case", ""))

	data, err := MarshalParams(p)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"tick_budget":16700`)
}

func TestResultChecks(t *testing.T) {
	r := NewResult()
	assert.True(t, r.ExpectEqual("zero", 0, 0))
	assert.True(t, r.ExpectRange("band", 3004.8, 2970, 3030))
	r.Finish(nil)
	assert.True(t, r.Success)
	assert.Empty(t, r.Error)

	r = NewResult()
	assert.False(t, r.ExpectEqual("zero", 12, 0))
	assert.False(t, r.ExpectRange("band", 0, 2970, 3030))
	r.Finish(nil)
	assert.False(t, r.Success)
	assert.Len(t, r.Failures, 2)
	assert.Contains(t, r.Error, "and 1 more")
}

func TestResultAddMeasurements(t *testing.T) {
	r := NewResult()
	r.AddFrequency("half-static", measure.FrequencyResult{
		Bus:            "A",
		AverageHz:      3000,
		ActiveChannels: 1,
		Channels:       []measure.ChannelFrequency{{Bit: 0, Hz: 3000}, {Bit: 1, Stalled: true}},
	})
	r.AddDuty("", measure.DutyResult{
		Bus:            "B",
		AveragePercent: 50,
		ActiveChannels: 1,
		Channels:       []measure.ChannelDuty{{Bit: 3, Fraction: 0.5}},
	})

	assert.Equal(t, 3000.0, r.Metrics["half_static_bus_a_frequency_hz"])
	assert.Equal(t, 1.0, r.Metrics["half_static_bus_a_frequency_active"])
	assert.Equal(t, 50.0, r.Metrics["bus_b_duty_percent"])
	require.Len(t, r.Channels, 3)
	assert.True(t, r.Channels[1].Stalled)
	assert.Equal(t, Channel{Bus: "B", Bit: 3, Kind: "duty", Value: 50}, r.Channels[2])
}

func TestSelect(t *testing.T) {
	cases := []Case{{Name: "one"}, {Name: "two"}}

	all, err := Select(cases, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	one, err := Select(cases, "two")
	require.NoError(t, err)
	assert.Equal(t, []string{"two"}, CaseNames(one))

	_, err = Select(cases, "three")
	assert.Error(t, err)
}

func TestApply(t *testing.T) {
	logger, hook := test.NewNullLogger()
	p := DefaultParams()
	p.Logger = logger

	b, err := NewBench(p)
	require.NoError(t, err)

	require.NoError(t, Apply(context.Background(), b, logger,
		W(dut.RegOutputEnableA, 0x0F),
		Write{Address: dut.RegOutputEnableB, Payload: 0xA0},
	))
	a, bb := b.Outputs()
	assert.Equal(t, uint8(0x0F), a)
	assert.Equal(t, uint8(0xA0), bb)
	assert.NotEmpty(t, hook.AllEntries())

	err = Apply(context.Background(), b, logger, W(0x80, 0))
	assert.True(t, errors.Is(err, spi.ErrInvalidArgument))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	before := b.Ticks()
	assert.ErrorIs(t, Apply(ctx, b, logger, W(0, 0)), context.Canceled)
	assert.Equal(t, before, b.Ticks())
}
