package schedule

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/mscrnt/pwmbench/pkg/db"
	"github.com/mscrnt/pwmbench/pkg/harness"
	_ "github.com/mscrnt/pwmbench/pkg/scenario/spiregs"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *db.DB {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "schedule.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	return database
}

func TestNextRun(t *testing.T) {
	now := time.Date(2026, 10, 15, 9, 30, 0, 0, time.UTC)

	next, err := NextRun("0 * * * *", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC), next)

	next, err = NextRun("@daily", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC), next)

	_, err = NextRun("not a cron", now)
	assert.Error(t, err)
}

func TestStoreCRUD(t *testing.T) {
	store := NewStore(openTestDB(t))

	s := &Schedule{
		Name:     "nightly-duty",
		CronExpr: "0 2 * * *",
		Scenario: "pwm-duty",
		Params:   db.JSONData{"case": "half"},
		Enabled:  true,
	}
	require.NoError(t, store.Create(s))
	require.NotZero(t, s.ID)
	require.NotNil(t, s.NextRunTime)

	assert.Error(t, store.Create(&Schedule{Name: "bad", CronExpr: "nope", Scenario: "x"}))

	got, err := store.GetByName("nightly-duty")
	require.NoError(t, err)
	assert.Equal(t, "pwm-duty", got.Scenario)
	assert.Equal(t, "half", got.Params["case"])
	assert.False(t, got.Due(time.Now()))

	got.Description = "duty at 50%"
	got.CronExpr = "@hourly"
	require.NoError(t, store.Update(got))

	got, err = store.Get(s.ID)
	require.NoError(t, err)
	assert.Equal(t, "duty at 50%", got.Description)
	assert.Equal(t, "@hourly", got.CronExpr)

	require.NoError(t, store.Disable(s.ID))
	disabled := false
	list, err := store.List(Filter{Enabled: &disabled})
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.False(t, list[0].Due(*list[0].NextRunTime))

	require.NoError(t, store.Enable(s.ID))
	list, err = store.List(Filter{Scenario: "pwm-duty"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].Enabled)
	assert.True(t, list[0].Due(*list[0].NextRunTime))
	assert.False(t, list[0].Due(list[0].NextRunTime.Add(-time.Second)))

	due, err := store.GetDue()
	require.NoError(t, err)
	assert.Empty(t, due)

	require.NoError(t, store.Delete(s.ID))
	_, err = store.Get(s.ID)
	assert.True(t, errors.Is(err, db.ErrNotFound))
	assert.True(t, errors.Is(store.Delete(s.ID), db.ErrNotFound))
}

func TestRunnerExecute(t *testing.T) {
	database := openTestDB(t)
	logger, _ := test.NewNullLogger()
	runner := NewRunner(database, harness.DefaultConfig(), logger)

	s := &Schedule{Name: "registers", CronExpr: "@hourly", Scenario: "spi-registers", Enabled: true}
	require.NoError(t, runner.Store().Create(s))

	run, err := runner.Execute(context.Background(), s)
	require.NoError(t, err)
	assert.True(t, run.Success)

	got, err := runner.Store().Get(s.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastRunID)
	assert.Equal(t, run.ID, *got.LastRunID)
	assert.NotNil(t, got.LastRunTime)

	results, err := database.GetResults(run.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, results)

	_, err = runner.Execute(context.Background(), &Schedule{Name: "ghost", Scenario: "missing"})
	assert.Error(t, err)
}

func TestRunnerStartStop(t *testing.T) {
	database := openTestDB(t)
	logger, _ := test.NewNullLogger()
	runner := NewRunner(database, harness.DefaultConfig(), logger)

	enabled := &Schedule{Name: "on", CronExpr: "@hourly", Scenario: "spi-registers", Enabled: true}
	disabled := &Schedule{Name: "off", CronExpr: "@hourly", Scenario: "spi-registers"}
	require.NoError(t, runner.Store().Create(enabled))
	require.NoError(t, runner.Store().Create(disabled))

	require.NoError(t, runner.Start())
	assert.Len(t, runner.ListJobs(), 1)

	require.NoError(t, runner.RegisterSchedule(disabled.ID))
	assert.Len(t, runner.ListJobs(), 1)

	runner.UnregisterSchedule(enabled.ID)
	assert.Empty(t, runner.ListJobs())

	require.NoError(t, runner.RefreshSchedule(enabled.ID))
	assert.Len(t, runner.ListJobs(), 1)

	runner.Stop()
}

func TestScheduleValidate(t *testing.T) {
	bench := harness.DefaultConfig()

	s := &Schedule{Name: "registers", CronExpr: "@hourly", Scenario: "spi-registers"}
	assert.NoError(t, s.Validate(bench))

	s.CronExpr = "every hour"
	assert.Error(t, s.Validate(bench))

	s.CronExpr = "@hourly"
	s.Scenario = "missing"
	assert.Error(t, s.Validate(bench))
}

func TestScheduleDueNeverPlanned(t *testing.T) {
	s := &Schedule{Enabled: true}
	assert.True(t, s.Due(time.Now()))
	s.Enabled = false
	assert.False(t, s.Due(time.Now()))
}
