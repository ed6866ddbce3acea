package scenario

import (
	"context"
	"fmt"

	"github.com/mscrnt/pwmbench/pkg/harness"
	"github.com/sirupsen/logrus"
)

// DefaultGap is the wait after each register write
const DefaultGap = 100

// Write is one register write followed by a wait in ticks
type Write struct {
	Address int `json:"address"`
	Payload int `json:"payload"`
	Wait    int `json:"wait"`
}

// W is a write followed by DefaultGap ticks
func W(address, payload int) Write {
	return Write{Address: address, Payload: payload, Wait: DefaultGap}
}

// Case is one named register setup
type Case struct {
	Name        string
	Description string
	Writes      []Write
}

// Apply plays writes on the bench. It stops at the first invalid
// transaction or when ctx is done.
func Apply(ctx context.Context, b *harness.Bench, logger logrus.FieldLogger, writes ...Write) error {
	for _, w := range writes {
		if err := ctx.Err(); err != nil {
			return err
		}
		logger.WithFields(logrus.Fields{
			"address": fmt.Sprintf("0x%02X", w.Address),
			"payload": fmt.Sprintf("0x%02X", w.Payload),
		}).Info("write transaction")
		if err := b.Write(w.Address, w.Payload); err != nil {
			return fmt.Errorf("write 0x%02X to 0x%02X: %w", w.Payload, w.Address, err)
		}
		b.Wait(w.Wait)
	}
	return nil
}

// Select returns the case named name, or every case when name is empty
func Select(cases []Case, name string) ([]Case, error) {
	if name == "" {
		return cases, nil
	}
	for _, c := range cases {
		if c.Name == name {
			return []Case{c}, nil
		}
	}
	return nil, fmt.Errorf("unknown case %q", name)
}

// CaseNames lists the names of cases
func CaseNames(cases []Case) []string {
	names := make([]string, len(cases))
	for i, c := range cases {
		names[i] = c.Name
	}
	return names
}

// NewBench builds and resets the bench described by params
func NewBench(params Params) (*harness.Bench, error) {
	b, err := harness.New(params.BenchConfig(), params.Log())
	if err != nil {
		return nil, err
	}
	params.Log().Info("reset")
	b.Reset()
	return b, nil
}

// Execute looks a scenario up in the global registry and runs it with its
// defaults overlaid by config
func Execute(ctx context.Context, name string, bench harness.Config, config map[string]interface{}, logger logrus.FieldLogger) (Result, error) {
	s, err := Get(name)
	if err != nil {
		return Result{}, err
	}

	params := s.DefaultParams()
	params.Bench = bench
	if params.Config == nil {
		params.Config = make(map[string]interface{})
	}
	for k, v := range config {
		params.Config[k] = v
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	params.Logger = logger.WithField("scenario", name)

	if err := s.ValidateParams(params); err != nil {
		return Result{}, fmt.Errorf("invalid parameters: %w", err)
	}

	params.Logger.Info("start")
	result, err := s.Run(ctx, params)
	switch {
	case err != nil:
		params.Logger.WithError(err).Error("scenario aborted")
	case !result.Success:
		params.Logger.WithField("failures", len(result.Failures)).Warn("scenario failed")
	default:
		params.Logger.Info("scenario completed successfully")
	}
	return result, err
}
