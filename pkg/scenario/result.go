package scenario

import (
	"fmt"
	"strings"
	"time"

	"github.com/mscrnt/pwmbench/pkg/harness"
	"github.com/mscrnt/pwmbench/pkg/measure"
)

// NewResult starts a result clock
func NewResult() Result {
	return Result{
		StartTime: time.Now(),
		Metrics:   make(map[string]float64),
		Details:   make(map[string]interface{}),
	}
}

// Failf records a failed check
func (r *Result) Failf(format string, args ...interface{}) {
	r.Failures = append(r.Failures, fmt.Sprintf(format, args...))
}

// ExpectEqual checks got == want
func (r *Result) ExpectEqual(name string, got, want float64) bool {
	if got != want {
		r.Failf("%s: expected %g, got %g", name, want, got)
		return false
	}
	return true
}

// ExpectRange checks min <= got <= max
func (r *Result) ExpectRange(name string, got, min, max float64) bool {
	if got < min || got > max {
		r.Failf("%s: expected %g <= value <= %g, got %g", name, min, max, got)
		return false
	}
	return true
}

// metricKey builds "<case>_bus_<bus>_<name>"
func metricKey(c, bus, name string) string {
	key := "bus_" + strings.ToLower(bus) + "_" + name
	if c == "" {
		return key
	}
	return strings.ReplaceAll(c, "-", "_") + "_" + key
}

// AddFrequency records a frequency measurement under case c
func (r *Result) AddFrequency(c string, m measure.FrequencyResult) {
	r.Metrics[metricKey(c, m.Bus, "frequency_hz")] = m.AverageHz
	r.Metrics[metricKey(c, m.Bus, "frequency_active")] = float64(m.ActiveChannels)
	for _, ch := range m.Channels {
		r.Channels = append(r.Channels, Channel{
			Case:    c,
			Bus:     m.Bus,
			Bit:     ch.Bit,
			Kind:    "frequency",
			Value:   ch.Hz,
			Stalled: ch.Stalled,
		})
	}
}

// AddDuty records a duty-cycle measurement under case c
func (r *Result) AddDuty(c string, m measure.DutyResult) {
	r.Metrics[metricKey(c, m.Bus, "duty_percent")] = m.AveragePercent
	r.Metrics[metricKey(c, m.Bus, "duty_active")] = float64(m.ActiveChannels)
	for _, ch := range m.Channels {
		r.Channels = append(r.Channels, Channel{
			Case:    c,
			Bus:     m.Bus,
			Bit:     ch.Bit,
			Kind:    "duty",
			Value:   ch.Fraction * 100,
			Stalled: ch.Stalled,
		})
	}
}

// Finish stops the clock and decides success
func (r *Result) Finish(b *harness.Bench) {
	r.EndTime = time.Now()
	r.Duration = r.EndTime.Sub(r.StartTime)
	if b != nil {
		r.SimTicks = b.Ticks()
		r.SimTime = b.Now()
	}
	if len(r.Failures) > 0 && r.Error == "" {
		r.Error = r.Failures[0]
		if len(r.Failures) > 1 {
			r.Error = fmt.Sprintf("%s (and %d more)", r.Failures[0], len(r.Failures)-1)
		}
	}
	r.Success = r.Error == ""
}

// Abort finishes a result with a bench fault
func (r *Result) Abort(b *harness.Bench, err error) (Result, error) {
	r.Error = err.Error()
	r.Finish(b)
	return *r, err
}
