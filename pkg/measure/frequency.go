package measure

import (
	"time"

	"github.com/mscrnt/pwmbench/pkg/edge"
	"github.com/mscrnt/pwmbench/pkg/sim"
	"github.com/sirupsen/logrus"
)

// ChannelFrequency is the measurement of one bit
type ChannelFrequency struct {
	Bit     int           `json:"bit"`
	Hz      float64       `json:"hz"`
	Period  time.Duration `json:"period"`
	Stalled bool          `json:"stalled"`
}

// FrequencyResult is the aggregate over one bus
type FrequencyResult struct {
	Bus       string  `json:"bus"`
	AverageHz float64 `json:"average_hz"`
	// ActiveChannels is the averaging denominator: stalled bits are left out
	ActiveChannels int                `json:"active_channels"`
	Channels       []ChannelFrequency `json:"channels"`
}

// Frequency estimates the PWM frequency of a bus
type Frequency struct {
	sampler *edge.Sampler
	config  Config
	logger  logrus.FieldLogger
}

// NewFrequency creates a frequency estimator
func NewFrequency(sampler *edge.Sampler, config Config, logger logrus.FieldLogger) *Frequency {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Frequency{
		sampler: sampler,
		config:  config,
		logger:  logger,
	}
}

// Measure times two consecutive rising edges on each bit of bus. A bit with
// no second edge inside the budget contributes nothing and is dropped from
// the denominator; if every bit stalls the average is 0.
func (f *Frequency) Measure(name string, bus sim.Bus) FrequencyResult {
	result := FrequencyResult{
		Bus:            name,
		ActiveChannels: Channels,
		Channels:       make([]ChannelFrequency, 0, Channels),
	}

	sum := 0.0
	for bit := 0; bit < Channels; bit++ {
		c := newChannel(bit, RisingThenRising, f.config.TickBudget)
		track(f.sampler, bus, c)

		cf := ChannelFrequency{Bit: bit}
		if period, ok := c.span(); ok {
			cf.Period = period
			cf.Hz = 1 / period.Seconds()
		} else {
			cf.Stalled = true
			result.ActiveChannels--
		}
		sum += cf.Hz
		result.Channels = append(result.Channels, cf)

		f.logger.WithFields(logrus.Fields{
			"bus":     name,
			"bit":     bit,
			"hz":      cf.Hz,
			"stalled": cf.Stalled,
		}).Debug("channel frequency")
	}

	if result.ActiveChannels > 0 {
		result.AverageHz = sum / float64(result.ActiveChannels)
	}

	f.logger.WithFields(logrus.Fields{
		"bus":    name,
		"hz":     result.AverageHz,
		"active": result.ActiveChannels,
	}).Debug("bus frequency")

	return result
}
