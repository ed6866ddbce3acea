package main

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mscrnt/pwmbench/pkg/db"
	"github.com/mscrnt/pwmbench/pkg/harness"
	"github.com/mscrnt/pwmbench/pkg/scenario"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("PWMBENCH_DB_PATH", filepath.Join(dir, "runs.db"))
	t.Setenv("PWMBENCH_CONFIG", "")

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--log-level", "error", "--config-file", filepath.Join(dir, "none.yaml")}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestParseValues(t *testing.T) {
	got := parseValues(map[string]string{
		"case":        "half",
		"tick_budget": "8000",
		"duty_min":    "48.5",
		"verbose":     "true",
	})
	assert.Equal(t, map[string]interface{}{
		"case":        "half",
		"tick_budget": 8000,
		"duty_min":    48.5,
		"verbose":     true,
	}, got)
}

func TestParseDuration(t *testing.T) {
	d, err := parseDuration("7d")
	require.NoError(t, err)
	assert.Equal(t, 7*24*time.Hour, d)

	d, err = parseDuration("90m")
	require.NoError(t, err)
	assert.Equal(t, 90*time.Minute, d)

	_, err = parseDuration("xd")
	assert.Error(t, err)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "a long...", truncate("a long description", 9))
}

func TestConfirm(t *testing.T) {
	var out bytes.Buffer
	assert.True(t, confirm(strings.NewReader("y\n"), &out, "Remove?"))
	assert.False(t, confirm(strings.NewReader("\n"), &out, "Remove?"))
	assert.Contains(t, out.String(), "Remove? [y/N]")
}

func TestListScenarios(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, listScenarios(&out))
	for _, name := range []string{"pwm-duty", "pwm-frequency", "spi-registers"} {
		assert.Contains(t, out.String(), name)
	}
}

func TestConfigPathMissingFile(t *testing.T) {
	_, err := execute(t, "config", "show")
	assert.Error(t, err, "an explicitly named config file must exist")
}

func TestDryRunRejectsUnknownCase(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("PWMBENCH_DB_PATH", filepath.Join(dir, "runs.db"))
	t.Setenv("PWMBENCH_CONFIG", "")

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"test", "pwm-duty", "--case", "quarter", "--dry-run"})
	assert.Error(t, root.Execute())
}

func TestRerunDryRunJSON(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "runs.db")
	t.Setenv("PWMBENCH_DB_PATH", dbPath)
	t.Setenv("PWMBENCH_CONFIG", "")

	database, err := db.Open(dbPath)
	require.NoError(t, err)
	bench := harness.DefaultConfig()
	bench.SettleTicks = 300
	run, err := database.RecordScenario("pwm-duty", db.JSONData{"case": "half"}, bench,
		scenario.Result{StartTime: time.Now(), EndTime: time.Now(), Success: true}, nil)
	require.NoError(t, err)
	require.NoError(t, database.Close())

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"--log-level", "error", "test", "--rerun", fmt.Sprint(run.ID),
		"--tick-budget", "8000", "--dry-run", "--json"})
	require.NoError(t, root.Execute())

	params, err := scenario.UnmarshalParams(out.Bytes())
	require.NoError(t, err)
	assert.Equal(t, bench, params.Bench)
	assert.Equal(t, "half", params.String("case", ""))
	budget, ok := params.Int("tick_budget")
	assert.True(t, ok)
	assert.Equal(t, 8000, budget)

	root = newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"test", "pwm-frequency", "--rerun", fmt.Sprint(run.ID), "--dry-run"})
	assert.ErrorContains(t, root.Execute(), "pwm-duty")
}
