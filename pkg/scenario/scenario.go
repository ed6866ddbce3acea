// Package scenario holds the named verification scenarios the bench can run
// and the registry they are looked up in.
package scenario

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/mscrnt/pwmbench/pkg/harness"
	"github.com/sirupsen/logrus"
)

// Params represents parameters passed to a scenario
type Params struct {
	// Bench is the timing of the bench the scenario builds
	Bench harness.Config `json:"bench"`
	// Config carries scenario specific settings such as "case"
	Config map[string]interface{} `json:"config"`

	Logger logrus.FieldLogger `json:"-"`
}

// Result represents the outcome of a scenario
type Result struct {
	// Timing information
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`

	// Simulated time spent on the bench
	SimTicks uint64        `json:"sim_ticks"`
	SimTime  time.Duration `json:"sim_time"`

	// Outcome
	Success  bool     `json:"success"`
	Error    string   `json:"error,omitempty"`
	Failures []string `json:"failures,omitempty"`

	Metrics  map[string]float64     `json:"metrics"`
	Details  map[string]interface{} `json:"details,omitempty"`
	Channels []Channel              `json:"channels,omitempty"`
}

// Channel is one per-bit measurement
type Channel struct {
	Case    string  `json:"case"`
	Bus     string  `json:"bus"`
	Bit     int     `json:"bit"`
	Kind    string  `json:"kind"`
	Value   float64 `json:"value"`
	Stalled bool    `json:"stalled"`
}

// Scenario is the interface that all scenarios must implement
type Scenario interface {
	// Name returns the unique name of the scenario
	Name() string

	// Description returns a human-readable description
	Description() string

	// Run resets a fresh bench and plays the scenario on it. Failed checks
	// are reported in the result; the error is for bench faults only.
	Run(ctx context.Context, params Params) (Result, error)

	// ValidateParams checks if the parameters are valid for this scenario
	ValidateParams(params Params) error

	// DefaultParams returns the default parameters for this scenario
	DefaultParams() Params
}

// MetricType represents the type of a metric
type MetricType string

const (
	MetricTypeGauge     MetricType = "gauge"     // Point-in-time value
	MetricTypeFrequency MetricType = "frequency" // Hz
	MetricTypeRatio     MetricType = "ratio"     // Percent
)

// MetricInfo provides metadata about a metric
type MetricInfo struct {
	Name        string     `json:"name"`
	Type        MetricType `json:"type"`
	Unit        string     `json:"unit"`
	Description string     `json:"description"`
}

// Info provides metadata about a scenario
type Info struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Category    string       `json:"category"`
	Cases       []string     `json:"cases,omitempty"`
	Metrics     []MetricInfo `json:"metrics"`
	Parameters  []ParamInfo  `json:"parameters"`
}

// ParamInfo describes a parameter that a scenario accepts
type ParamInfo struct {
	Name        string      `json:"name"`
	Type        string      `json:"type"`
	Default     interface{} `json:"default"`
	Description string      `json:"description"`
	Required    bool        `json:"required"`
}

// DefaultParams returns the reference bench with an empty config map
func DefaultParams() Params {
	return Params{
		Bench:  harness.DefaultConfig(),
		Config: make(map[string]interface{}),
	}
}

// BenchConfig returns the bench timing with config overrides applied
func (p Params) BenchConfig() harness.Config {
	c := p.Bench
	if budget, ok := p.Int("tick_budget"); ok {
		c.TickBudget = budget
	}
	return c
}

// Log returns the logger, falling back to the standard logger
func (p Params) Log() logrus.FieldLogger {
	if p.Logger == nil {
		return logrus.StandardLogger()
	}
	return p.Logger
}

// String returns a string config value
func (p Params) String(key, def string) string {
	if v, ok := p.Config[key]; ok && v != nil {
		return fmt.Sprint(v)
	}
	return def
}

// Float returns a numeric config value
func (p Params) Float(key string, def float64) float64 {
	switch v := p.Config[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

// Int returns an integer config value and whether it was set
func (p Params) Int(key string) (int, bool) {
	switch v := p.Config[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	case string:
		if i, err := strconv.Atoi(v); err == nil {
			return i, true
		}
	}
	return 0, false
}

// MarshalParams converts Params to JSON
func MarshalParams(p Params) ([]byte, error) {
	return json.Marshal(p)
}

// UnmarshalParams converts JSON to Params. Missing bench fields keep their
// defaults.
func UnmarshalParams(data []byte) (Params, error) {
	p := DefaultParams()
	err := json.Unmarshal(data, &p)
	return p, err
}
