package measure

import (
	"time"

	"github.com/mscrnt/pwmbench/pkg/edge"
	"github.com/mscrnt/pwmbench/pkg/sim"
	"github.com/sirupsen/logrus"
)

// ChannelDuty is the measurement of one bit
type ChannelDuty struct {
	Bit int `json:"bit"`
	// Fraction is the measured span over the nominal period (1.0 = 100%)
	Fraction float64       `json:"fraction"`
	Span     time.Duration `json:"span"`
	// Stalled is set when no edge pair was found; Level is then the last
	// sampled level and decides between 100% and 0%
	Stalled bool  `json:"stalled"`
	Level   uint8 `json:"level"`
}

// DutyResult is the aggregate over one bus
type DutyResult struct {
	Bus            string        `json:"bus"`
	Order          string        `json:"order"`
	AveragePercent float64       `json:"average_percent"`
	ActiveChannels int           `json:"active_channels"`
	Channels       []ChannelDuty `json:"channels"`
}

// Duty estimates the PWM duty cycle of a bus
type Duty struct {
	sampler *edge.Sampler
	config  Config
	logger  logrus.FieldLogger
}

// NewDuty creates a duty-cycle estimator
func NewDuty(sampler *edge.Sampler, config Config, logger logrus.FieldLogger) *Duty {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Duty{
		sampler: sampler,
		config:  config,
		logger:  logger,
	}
}

// Measure finds order.First then order.Second on each bit of bus and divides
// the time between them by the nominal period.
//
// When the pair is not found the bit is pinned: it counts as 100% if the
// last sampled level was high, otherwise 0%. Only a pinned-low bit is removed
// from the denominator.
func (d *Duty) Measure(name string, bus sim.Bus, order EdgeOrder) DutyResult {
	result := DutyResult{
		Bus:            name,
		Order:          order.String(),
		ActiveChannels: Channels,
		Channels:       make([]ChannelDuty, 0, Channels),
	}

	sum := 0.0
	for bit := 0; bit < Channels; bit++ {
		c := newChannel(bit, order, d.config.TickBudget)
		track(d.sampler, bus, c)

		cd := ChannelDuty{Bit: bit}
		if span, ok := c.span(); ok {
			cd.Span = span
			cd.Fraction = span.Seconds() / d.config.NominalPeriod.Seconds()
		} else {
			cd.Stalled = true
			level, sampled := c.last()
			if !sampled {
				level = d.sampler.Level(bus, bit)
			}
			cd.Level = level
			if level == 1 {
				cd.Fraction = 1
			} else {
				result.ActiveChannels--
			}
		}
		sum += cd.Fraction
		result.Channels = append(result.Channels, cd)

		d.logger.WithFields(logrus.Fields{
			"bus":      name,
			"bit":      bit,
			"fraction": cd.Fraction,
			"stalled":  cd.Stalled,
		}).Debug("channel duty")
	}

	if result.ActiveChannels > 0 {
		result.AveragePercent = sum * 100 / float64(result.ActiveChannels)
	}

	d.logger.WithFields(logrus.Fields{
		"bus":     name,
		"order":   result.Order,
		"percent": result.AveragePercent,
		"active":  result.ActiveChannels,
	}).Debug("bus duty")

	return result
}
