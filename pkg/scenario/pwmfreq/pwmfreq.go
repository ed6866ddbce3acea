// Package pwmfreq checks the PWM frequency of both output groups.
package pwmfreq

import (
	"context"
	"fmt"

	"github.com/mscrnt/pwmbench/pkg/dut"
	"github.com/mscrnt/pwmbench/pkg/scenario"
)

func init() {
	if err := scenario.Register(&Scenario{}); err != nil {
		panic(fmt.Sprintf("failed to register pwm-frequency scenario: %v", err))
	}
}

// Default acceptance band
const (
	DefaultMinHz = 2970.0
	DefaultMaxHz = 3030.0
)

// freqCase is a register setup and which buses are expected to toggle
type freqCase struct {
	scenario.Case
	toggleA bool
	toggleB bool
}

var cases = []freqCase{
	{
		Case: scenario.Case{
			Name:        "all",
			Description: "All Outputs Enabled with PWM",
			Writes: []scenario.Write{
				scenario.W(dut.RegOutputEnableA, 0xFF),
				scenario.W(dut.RegOutputEnableB, 0xFF),
				scenario.W(dut.RegPWMEnableA, 0xFF),
				scenario.W(dut.RegPWMEnableB, 0xFF),
				scenario.W(dut.RegDutyCycle, 0xF0),
			},
		},
		toggleA: true,
		toggleB: true,
	},
	{
		Case: scenario.Case{
			Name:        "disabled",
			Description: "All Outputs Disabled",
			Writes: []scenario.Write{
				scenario.W(dut.RegOutputEnableA, 0x00),
				scenario.W(dut.RegOutputEnableB, 0x00),
				scenario.W(dut.RegPWMEnableA, 0x00),
				scenario.W(dut.RegPWMEnableB, 0x00),
				scenario.W(dut.RegDutyCycle, 0x00),
			},
		},
	},
	{
		Case: scenario.Case{
			Name:        "mixed",
			Description: "Some Outputs Enabled with PWM",
			Writes: []scenario.Write{
				scenario.W(dut.RegOutputEnableA, 0xFF),
				scenario.W(dut.RegOutputEnableB, 0x00),
				scenario.W(dut.RegPWMEnableA, 0xF0),
				scenario.W(dut.RegPWMEnableB, 0x00),
				scenario.W(dut.RegDutyCycle, 0xC0),
			},
		},
		toggleA: true,
	},
}

// Scenario measures the PWM frequency of both buses after each register
// setup. A toggling bus must land inside [freq_min, freq_max]; a static
// bus must read exactly 0 Hz.
type Scenario struct{}

// Name returns the scenario name
func (s *Scenario) Name() string {
	return "pwm-frequency"
}

// Description returns the scenario description
func (s *Scenario) Description() string {
	return "PWM frequency of both output groups with all, none and some outputs on PWM"
}

// ValidateParams validates the parameters
func (s *Scenario) ValidateParams(params scenario.Params) error {
	if err := params.BenchConfig().Validate(); err != nil {
		return err
	}
	if _, err := scenario.Select(baseCases(), params.String("case", "")); err != nil {
		return err
	}
	min := params.Float("freq_min", DefaultMinHz)
	max := params.Float("freq_max", DefaultMaxHz)
	if min > max {
		return fmt.Errorf("freq_min %g is above freq_max %g", min, max)
	}
	return nil
}

// DefaultParams returns default parameters
func (s *Scenario) DefaultParams() scenario.Params {
	p := scenario.DefaultParams()
	p.Config["case"] = ""
	p.Config["freq_min"] = DefaultMinHz
	p.Config["freq_max"] = DefaultMaxHz
	return p
}

// Run executes the selected cases in order on one bench
func (s *Scenario) Run(ctx context.Context, params scenario.Params) (scenario.Result, error) {
	result := scenario.NewResult()

	if err := s.ValidateParams(params); err != nil {
		return result.Abort(nil, err)
	}

	selected, _ := scenario.Select(baseCases(), params.String("case", ""))
	min := params.Float("freq_min", DefaultMinHz)
	max := params.Float("freq_max", DefaultMaxHz)
	logger := params.Log()

	bench, err := scenario.NewBench(params)
	if err != nil {
		return result.Abort(nil, err)
	}

	logger.Info("test project behavior")
	for _, c := range selected {
		fc := lookup(c.Name)
		log := logger.WithField("case", c.Name)
		log.Info(c.Description)

		if err := scenario.Apply(ctx, bench, log, c.Writes...); err != nil {
			return result.Abort(bench, err)
		}

		a, b := bench.MeasureFrequency()
		result.AddFrequency(c.Name, a)
		result.AddFrequency(c.Name, b)

		check(&result, c.Name+": bus A frequency", a.AverageHz, fc.toggleA, min, max)
		check(&result, c.Name+": bus B frequency", b.AverageHz, fc.toggleB, min, max)

		bench.Wait(1000)
	}

	result.Details["cases"] = scenario.CaseNames(selected)
	result.Details["freq_min"] = min
	result.Details["freq_max"] = max
	result.Finish(bench)
	return result, nil
}

func check(r *scenario.Result, name string, hz float64, toggling bool, min, max float64) {
	if toggling {
		r.ExpectRange(name, hz, min, max)
		return
	}
	r.ExpectEqual(name, hz, 0)
}

func baseCases() []scenario.Case {
	out := make([]scenario.Case, len(cases))
	for i, c := range cases {
		out[i] = c.Case
	}
	return out
}

func lookup(name string) freqCase {
	for _, c := range cases {
		if c.Name == name {
			return c
		}
	}
	return freqCase{}
}

// Info returns detailed scenario information
func (s *Scenario) Info() scenario.Info {
	return scenario.Info{
		Name:        s.Name(),
		Description: s.Description(),
		Category:    "pwm",
		Cases:       scenario.CaseNames(baseCases()),
		Metrics: []scenario.MetricInfo{
			{
				Name:        "<case>_bus_a_frequency_hz",
				Type:        scenario.MetricTypeFrequency,
				Unit:        "Hz",
				Description: "Average frequency over the toggling bits of bus A",
			},
			{
				Name:        "<case>_bus_b_frequency_hz",
				Type:        scenario.MetricTypeFrequency,
				Unit:        "Hz",
				Description: "Average frequency over the toggling bits of bus B",
			},
			{
				Name:        "<case>_bus_a_frequency_active",
				Type:        scenario.MetricTypeGauge,
				Unit:        "bits",
				Description: "Bits of bus A that produced two rising edges",
			},
		},
		Parameters: []scenario.ParamInfo{
			{
				Name:        "case",
				Type:        "string",
				Default:     "",
				Description: "Run only this case: all, disabled or mixed",
			},
			{
				Name:        "freq_min",
				Type:        "float",
				Default:     DefaultMinHz,
				Description: "Lowest accepted frequency in Hz",
			},
			{
				Name:        "freq_max",
				Type:        "float",
				Default:     DefaultMaxHz,
				Description: "Highest accepted frequency in Hz",
			},
			{
				Name:        "tick_budget",
				Type:        "integer",
				Default:     16700,
				Description: "Sampling iterations per edge search",
			},
		},
	}
}
