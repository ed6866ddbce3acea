package harness

import (
	"fmt"
	"time"

	"github.com/mscrnt/pwmbench/pkg/dut"
	"github.com/mscrnt/pwmbench/pkg/measure"
	"github.com/mscrnt/pwmbench/pkg/sim"
	"github.com/mscrnt/pwmbench/pkg/spi"
)

// Config holds every timing constant of the bench
type Config struct {
	// ClockPeriod is the length of one tick
	ClockPeriod time.Duration `yaml:"clock_period" json:"clock_period"`

	// SCLKPeriod is the nominal serial clock period
	SCLKPeriod time.Duration `yaml:"sclk_period" json:"sclk_period"`
	// CSSetupTicks is the hold between chip-select and the first bit
	CSSetupTicks int `yaml:"cs_setup_ticks" json:"cs_setup_ticks"`
	// SettleTicks is the wait after each transaction
	SettleTicks int `yaml:"settle_ticks" json:"settle_ticks"`
	// ResetTicks is how long reset is held, and the wait after release
	ResetTicks int `yaml:"reset_ticks" json:"reset_ticks"`

	// TickBudget is the iteration budget of each edge search
	TickBudget int `yaml:"tick_budget" json:"tick_budget"`
	// NominalPWMPeriod is the duty-cycle denominator. Change it together
	// with the DUT's PWM frequency.
	NominalPWMPeriod time.Duration `yaml:"nominal_pwm_period" json:"nominal_pwm_period"`

	// PWMPeriodTicks configures the DUT model. It must be even: with an
	// odd period every other rising edge falls between two sampling pairs.
	PWMPeriodTicks int `yaml:"pwm_period_ticks" json:"pwm_period_ticks"`
}

// DefaultConfig returns the timing of the reference bench: 10 MHz clock,
// 100 kHz serial clock, ~3 kHz PWM
func DefaultConfig() Config {
	bus := spi.DefaultConfig()
	window := measure.DefaultConfig()
	return Config{
		ClockPeriod:      sim.DefaultPeriod,
		SCLKPeriod:       bus.SCLKPeriod,
		CSSetupTicks:     bus.SetupTicks,
		SettleTicks:      bus.SettleTicks,
		ResetTicks:       5,
		TickBudget:       window.TickBudget,
		NominalPWMPeriod: window.NominalPeriod,
		PWMPeriodTicks:   dut.DefaultPWMPeriod,
	}
}

// Validate checks the timing
func (c Config) Validate() error {
	if c.ClockPeriod <= 0 {
		return fmt.Errorf("clock_period must be positive, got %s", c.ClockPeriod)
	}
	if c.SCLKPeriod < 2*c.ClockPeriod {
		return fmt.Errorf("sclk_period %s must be at least two clock periods", c.SCLKPeriod)
	}
	if c.CSSetupTicks < 0 || c.SettleTicks < 0 || c.ResetTicks < 0 {
		return fmt.Errorf("tick counts must not be negative")
	}
	if c.PWMPeriodTicks <= 0 {
		return fmt.Errorf("pwm_period_ticks must be positive, got %d", c.PWMPeriodTicks)
	}
	if c.PWMPeriodTicks%2 != 0 {
		return fmt.Errorf("pwm_period_ticks must be even, got %d", c.PWMPeriodTicks)
	}
	return c.Window().Validate()
}

// Bus returns the encoder timing
func (c Config) Bus() spi.Config {
	return spi.Config{
		SCLKPeriod:  c.SCLKPeriod,
		SetupTicks:  c.CSSetupTicks,
		SettleTicks: c.SettleTicks,
	}
}

// Window returns the measurement window
func (c Config) Window() measure.Config {
	return measure.Config{
		TickBudget:    c.TickBudget,
		NominalPeriod: c.NominalPWMPeriod,
	}
}
