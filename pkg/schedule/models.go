package schedule

import (
	"fmt"
	"time"

	"github.com/mscrnt/pwmbench/pkg/db"
	"github.com/mscrnt/pwmbench/pkg/harness"
	"github.com/mscrnt/pwmbench/pkg/scenario"
)

// Schedule is a scenario run on a cron expression. Params holds scenario
// config only; scheduled runs use the bench timing the runner was built with.
type Schedule struct {
	ID          int64       `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	CronExpr    string      `json:"cron_expr"`
	Scenario    string      `json:"scenario"`
	Params      db.JSONData `json:"params"`
	Enabled     bool        `json:"enabled"`
	LastRunID   *int64      `json:"last_run_id"`
	LastRunTime *time.Time  `json:"last_run_time"`
	NextRunTime *time.Time  `json:"next_run_time"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Filter narrows Store.List
type Filter struct {
	Scenario string
	Enabled  *bool
	Limit    int
	Offset   int
}

// Due reports whether the schedule would be picked up by Store.GetDue at now
func (s *Schedule) Due(now time.Time) bool {
	if !s.Enabled {
		return false
	}
	return s.NextRunTime == nil || !s.NextRunTime.After(now)
}

// Validate checks the cron expression and that the named scenario accepts
// Params on the given bench, so a bad schedule fails when it is created
// rather than at its first firing.
func (s *Schedule) Validate(bench harness.Config) error {
	if _, err := NextRun(s.CronExpr, time.Now()); err != nil {
		return err
	}
	sc, err := scenario.Get(s.Scenario)
	if err != nil {
		return err
	}

	params := sc.DefaultParams()
	params.Bench = bench
	for k, v := range s.Params {
		params.Config[k] = v
	}
	if err := sc.ValidateParams(params); err != nil {
		return fmt.Errorf("schedule %s: %w", s.Name, err)
	}
	return nil
}
