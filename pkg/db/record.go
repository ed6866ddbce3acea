package db

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mscrnt/pwmbench/pkg/harness"
	"github.com/mscrnt/pwmbench/pkg/scenario"
)

// RecordScenario stores a finished scenario run with its metrics and
// per-bit measurements. A nil units map derives units from metric names.
func (db *DB) RecordScenario(name string, params JSONData, bench harness.Config, result scenario.Result, units map[string]string) (*Run, error) {
	benchData, err := ToJSONData(bench)
	if err != nil {
		return nil, fmt.Errorf("failed to encode bench config: %w", err)
	}

	run, err := db.CreateRun(name, params, benchData)
	if err != nil {
		return nil, err
	}

	if !result.StartTime.IsZero() {
		run.StartTime = result.StartTime
	}
	end := result.EndTime
	if end.IsZero() {
		end = time.Now()
	}
	run.EndTime = &end
	run.Success = result.Success
	run.Error = result.Error
	run.SimTicks = int64(result.SimTicks)
	run.SimTimeNS = int64(result.SimTime)

	details := JSONData{}
	for k, v := range result.Details {
		details[k] = v
	}
	if len(result.Failures) > 0 {
		details["failures"] = result.Failures
	}
	if len(details) > 0 {
		if run.Details, err = ToJSONData(details); err != nil {
			return nil, fmt.Errorf("failed to encode details: %w", err)
		}
	}

	if err := db.UpdateRun(run); err != nil {
		return nil, err
	}

	if len(result.Metrics) > 0 {
		if err := db.CreateResults(run.ID, result.Metrics, units); err != nil {
			return nil, err
		}
	}

	if len(result.Channels) > 0 {
		channels := make([]Channel, len(result.Channels))
		for i, c := range result.Channels {
			channels[i] = Channel{
				Case:    c.Case,
				Bus:     c.Bus,
				Bit:     c.Bit,
				Kind:    c.Kind,
				Value:   c.Value,
				Stalled: c.Stalled,
			}
		}
		if err := db.CreateChannels(run.ID, channels); err != nil {
			return nil, err
		}
	}

	return run, nil
}

// ScenarioParams rebuilds the parameters a run was recorded with. Bench
// fields missing from older runs keep their defaults.
func (r *Run) ScenarioParams() (scenario.Params, error) {
	data, err := json.Marshal(map[string]interface{}{
		"bench":  r.Bench,
		"config": r.Params,
	})
	if err != nil {
		return scenario.Params{}, err
	}
	params, err := scenario.UnmarshalParams(data)
	if err != nil {
		return params, fmt.Errorf("run %d: failed to decode parameters: %w", r.ID, err)
	}
	if params.Config == nil {
		params.Config = make(map[string]interface{})
	}
	return params, nil
}

// Units collects the declared metric units of a scenario, if it
// describes them
func Units(s scenario.Scenario) map[string]string {
	ext, ok := s.(interface{ Info() scenario.Info })
	if !ok {
		return nil
	}
	units := make(map[string]string)
	for _, m := range ext.Info().Metrics {
		units[m.Name] = m.Unit
	}
	return units
}
