// Package spiregs checks the serial register interface through the output
// pins.
package spiregs

import (
	"context"
	"fmt"

	"github.com/mscrnt/pwmbench/pkg/dut"
	"github.com/mscrnt/pwmbench/pkg/harness"
	"github.com/mscrnt/pwmbench/pkg/scenario"
	"github.com/mscrnt/pwmbench/pkg/spi"
	"github.com/sirupsen/logrus"
)

func init() {
	if err := scenario.Register(&Scenario{}); err != nil {
		panic(fmt.Sprintf("failed to register spi-registers scenario: %v", err))
	}
}

// unchecked marks an output that is not compared after a step
const unchecked = -1

type step struct {
	title string
	tx    spi.Transaction
	wait  int
	// expected bus levels after the step, or unchecked
	wantA int
	wantB int
}

var steps = []step{
	{"Write transaction, address 0x00, data 0xF0", spi.NewWrite(dut.RegOutputEnableA, 0xF0), 1000, 0xF0, unchecked},
	{"Write transaction, address 0x01, data 0xCC", spi.NewWrite(dut.RegOutputEnableB, 0xCC), 100, unchecked, 0xCC},
	{"Write transaction, address 0x30 (invalid), data 0xAA", spi.NewWrite(0x30, 0xAA), 100, 0xF0, 0xCC},
	{"Read transaction (invalid), address 0x30, data 0xBE", spi.NewRead(0x30, 0xBE), 100, 0xF0, unchecked},
	{"Read transaction (invalid), address 0x41 (invalid), data 0xEF", spi.NewRead(0x41, 0xEF), 100, 0xF0, 0xCC},
	{"Write transaction, address 0x02, data 0xFF", spi.NewWrite(dut.RegPWMEnableA, 0xFF), 100, unchecked, 0xCC},
	{"Write transaction, address 0x04, data 0xCF", spi.NewWrite(dut.RegDutyCycle, 0xCF), 30000, unchecked, 0xCC},
	{"Write transaction, address 0x04, data 0xFF", spi.NewWrite(dut.RegDutyCycle, 0xFF), 30000, 0xF0, 0xCC},
	{"Write transaction, address 0x04, data 0x00", spi.NewWrite(dut.RegDutyCycle, 0x00), 30000, 0x00, 0xCC},
	{"Write transaction, address 0x04, data 0x01", spi.NewWrite(dut.RegDutyCycle, 0x01), 30000, unchecked, 0xCC},
}

// Scenario writes the enable and duty registers, sends transactions the
// DUT must ignore and compares the output groups after each one
type Scenario struct{}

// Name returns the scenario name
func (s *Scenario) Name() string {
	return "spi-registers"
}

// Description returns the scenario description
func (s *Scenario) Description() string {
	return "Register writes, invalid addresses and read transactions over the serial interface"
}

// ValidateParams validates the parameters
func (s *Scenario) ValidateParams(params scenario.Params) error {
	return params.BenchConfig().Validate()
}

// DefaultParams returns default parameters
func (s *Scenario) DefaultParams() scenario.Params {
	return scenario.DefaultParams()
}

// Run executes the scenario
func (s *Scenario) Run(ctx context.Context, params scenario.Params) (scenario.Result, error) {
	result := scenario.NewResult()

	if err := s.ValidateParams(params); err != nil {
		return result.Abort(nil, err)
	}
	logger := params.Log()

	bench, err := scenario.NewBench(params)
	if err != nil {
		return result.Abort(nil, err)
	}

	logger.Info("test project behavior")
	for i, st := range steps {
		if err := ctx.Err(); err != nil {
			return result.Abort(bench, err)
		}
		logger.WithFields(logrus.Fields{
			"address": fmt.Sprintf("0x%02X", st.tx.Address),
			"payload": fmt.Sprintf("0x%02X", st.tx.Payload),
		}).Info(st.title)

		if _, err := bench.Send(st.tx); err != nil {
			return result.Abort(bench, fmt.Errorf("step %d: %w", i+1, err))
		}
		compare(&result, bench, i+1, st)
		bench.Wait(st.wait)
	}

	a, b := bench.Outputs()
	result.Metrics["bus_a_value"] = float64(a)
	result.Metrics["bus_b_value"] = float64(b)
	result.Metrics["register_writes"] = float64(bench.DUT().Writes())
	result.Metrics["transactions"] = float64(len(steps))
	result.Finish(bench)
	return result, nil
}

func compare(r *scenario.Result, bench *harness.Bench, n int, st step) {
	a, b := bench.Outputs()
	if st.wantA != unchecked && int(a) != st.wantA {
		r.Failf("step %d (%s): expected bus A 0x%02X, got 0x%02X", n, st.tx, st.wantA, a)
	}
	if st.wantB != unchecked && int(b) != st.wantB {
		r.Failf("step %d (%s): expected bus B 0x%02X, got 0x%02X", n, st.tx, st.wantB, b)
	}
}

// Info returns detailed scenario information
func (s *Scenario) Info() scenario.Info {
	return scenario.Info{
		Name:        s.Name(),
		Description: s.Description(),
		Category:    "spi",
		Metrics: []scenario.MetricInfo{
			{
				Name:        "register_writes",
				Type:        scenario.MetricTypeGauge,
				Unit:        "writes",
				Description: "Writes the DUT committed",
			},
			{
				Name:        "bus_a_value",
				Type:        scenario.MetricTypeGauge,
				Unit:        "",
				Description: "Final level of bus A",
			},
			{
				Name:        "bus_b_value",
				Type:        scenario.MetricTypeGauge,
				Unit:        "",
				Description: "Final level of bus B",
			},
		},
		Parameters: []scenario.ParamInfo{},
	}
}
