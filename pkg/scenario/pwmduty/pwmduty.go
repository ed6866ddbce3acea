// Package pwmduty checks the PWM duty cycle of both output groups.
package pwmduty

import (
	"context"
	"fmt"

	"github.com/mscrnt/pwmbench/pkg/dut"
	"github.com/mscrnt/pwmbench/pkg/scenario"
)

func init() {
	if err := scenario.Register(&Scenario{}); err != nil {
		panic(fmt.Sprintf("failed to register pwm-duty scenario: %v", err))
	}
}

// Default acceptance band for the half duty cases
const (
	DefaultMinPercent = 49.0
	DefaultMaxPercent = 51.0
)

// expect is the expected duty of one bus: an exact value, or the
// configured band when banded is set
type expect struct {
	value  float64
	banded bool
}

func exactly(v float64) expect { return expect{value: v} }

var band = expect{banded: true}

type dutyCase struct {
	scenario.Case
	a expect
	b expect
}

func allPWM(duty int) []scenario.Write {
	return []scenario.Write{
		scenario.W(dut.RegOutputEnableA, 0xFF),
		scenario.W(dut.RegOutputEnableB, 0xFF),
		scenario.W(dut.RegPWMEnableA, 0xFF),
		scenario.W(dut.RegPWMEnableB, 0xFF),
		scenario.W(dut.RegDutyCycle, duty),
	}
}

var cases = []dutyCase{
	{
		Case: scenario.Case{Name: "full", Description: "100% Duty Cycle", Writes: allPWM(0xFF)},
		a:    exactly(100),
		b:    exactly(100),
	},
	{
		Case: scenario.Case{Name: "zero", Description: "0% Duty Cycle", Writes: allPWM(0x00)},
		a:    exactly(0),
		b:    exactly(0),
	},
	{
		Case: scenario.Case{Name: "half", Description: "50% Duty Cycle", Writes: allPWM(0x80)},
		a:    band,
		b:    band,
	},
	{
		// half of bus A on PWM, the other half and all of bus B low
		Case: scenario.Case{
			Name:        "half-static",
			Description: "50% Duty Cycle on half of bus A",
			Writes: []scenario.Write{
				scenario.W(dut.RegOutputEnableA, 0xF0),
				scenario.W(dut.RegOutputEnableB, 0x00),
				scenario.W(dut.RegPWMEnableA, 0xF0),
				scenario.W(dut.RegPWMEnableB, 0x00),
				scenario.W(dut.RegDutyCycle, 0x80),
			},
		},
		a: band,
		b: exactly(0),
	},
}

// Scenario measures duty cycle on bus A rising-then-falling and on bus B
// falling-then-rising after each register setup
type Scenario struct{}

// Name returns the scenario name
func (s *Scenario) Name() string {
	return "pwm-duty"
}

// Description returns the scenario description
func (s *Scenario) Description() string {
	return "PWM duty cycle of both output groups at 100%, 0% and 50%"
}

// ValidateParams validates the parameters
func (s *Scenario) ValidateParams(params scenario.Params) error {
	if err := params.BenchConfig().Validate(); err != nil {
		return err
	}
	if _, err := scenario.Select(baseCases(), params.String("case", "")); err != nil {
		return err
	}
	min := params.Float("duty_min", DefaultMinPercent)
	max := params.Float("duty_max", DefaultMaxPercent)
	if min > max {
		return fmt.Errorf("duty_min %g is above duty_max %g", min, max)
	}
	return nil
}

// DefaultParams returns default parameters
func (s *Scenario) DefaultParams() scenario.Params {
	p := scenario.DefaultParams()
	p.Config["case"] = ""
	p.Config["duty_min"] = DefaultMinPercent
	p.Config["duty_max"] = DefaultMaxPercent
	return p
}

// Run executes the selected cases in order on one bench
func (s *Scenario) Run(ctx context.Context, params scenario.Params) (scenario.Result, error) {
	result := scenario.NewResult()

	if err := s.ValidateParams(params); err != nil {
		return result.Abort(nil, err)
	}

	selected, _ := scenario.Select(baseCases(), params.String("case", ""))
	min := params.Float("duty_min", DefaultMinPercent)
	max := params.Float("duty_max", DefaultMaxPercent)
	logger := params.Log()

	bench, err := scenario.NewBench(params)
	if err != nil {
		return result.Abort(nil, err)
	}

	logger.Info("test project behavior")
	for _, c := range selected {
		dc := lookup(c.Name)
		log := logger.WithField("case", c.Name)
		log.Info(c.Description)

		if err := scenario.Apply(ctx, bench, log, c.Writes...); err != nil {
			return result.Abort(bench, err)
		}

		a, b := bench.MeasureDuty()
		result.AddDuty(c.Name, a)
		result.AddDuty(c.Name, b)

		check(&result, c.Name+": bus A duty", a.AveragePercent, dc.a, min, max)
		check(&result, c.Name+": bus B duty", b.AveragePercent, dc.b, min, max)

		bench.Wait(1000)
	}

	result.Details["cases"] = scenario.CaseNames(selected)
	result.Details["nominal_period"] = params.BenchConfig().NominalPWMPeriod.String()
	result.Finish(bench)
	return result, nil
}

func check(r *scenario.Result, name string, percent float64, e expect, min, max float64) {
	if e.banded {
		r.ExpectRange(name, percent, min, max)
		return
	}
	r.ExpectEqual(name, percent, e.value)
}

func baseCases() []scenario.Case {
	out := make([]scenario.Case, len(cases))
	for i, c := range cases {
		out[i] = c.Case
	}
	return out
}

func lookup(name string) dutyCase {
	for _, c := range cases {
		if c.Name == name {
			return c
		}
	}
	return dutyCase{}
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
				Name:        "<case>_bus_a_duty_percent",
				Type:        scenario.MetricTypeRatio,
				Unit:        "%",
				Description: "High time of bus A over the nominal period",
			},
			{
				Name:        "<case>_bus_b_duty_percent",
				Type:        scenario.MetricTypeRatio,
				Unit:        "%",
				Description: "Low time of bus B over the nominal period",
			},
		},
		Parameters: []scenario.ParamInfo{
			{
				Name:        "case",
				Type:        "string",
				Default:     "",
				Description: "Run only this case: full, zero, half or half-static",
			},
			{
				Name:        "duty_min",
				Type:        "float",
				Default:     DefaultMinPercent,
				Description: "Lowest accepted duty for the 50% cases",
			},
			{
				Name:        "duty_max",
				Type:        "float",
				Default:     DefaultMaxPercent,
				Description: "Highest accepted duty for the 50% cases",
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
