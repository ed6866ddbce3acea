package report

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/mscrnt/pwmbench/pkg/db"
	"github.com/mscrnt/pwmbench/pkg/harness"
	"github.com/mscrnt/pwmbench/pkg/scenario"
	"github.com/mscrnt/pwmbench/pkg/sysinfo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGenerator(t *testing.T) (*Generator, *db.DB) {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "report.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	g := NewGenerator(database)
	g.collect = func() sysinfo.Info {
		var info sysinfo.Info
		info.Host.Hostname = "bench-host"
		info.Host.Platform = "ubuntu"
		info.Host.Architecture = "amd64"
		info.CPU.ModelName = "Test CPU"
		info.CPU.LogicalCores = 8
		info.Memory.Total = 16 << 30
		info.GoVersion = "go1.22"
		return info
	}
	return g, database
}

func record(t *testing.T, database *db.DB, result scenario.Result) int64 {
	t.Helper()
	run, err := database.RecordScenario("pwm-duty", db.JSONData{"case": "half"}, harness.DefaultConfig(), result, nil)
	require.NoError(t, err)
	return run.ID
}

func TestGenerateHTML(t *testing.T) {
	g, database := newTestGenerator(t)

	start := time.Now()
	id := record(t, database, scenario.Result{
		StartTime: start,
		EndTime:   start.Add(2 * time.Second),
		SimTicks:  100000,
		SimTime:   10 * time.Millisecond,
		Success:   false,
		Error:     "half: bus A duty out of band",
		Failures:  []string{"half: bus A duty out of band"},
		Metrics: map[string]float64{
			"half_bus_a_duty_percent": 12.5,
			"half_bus_b_duty_percent": 49.99,
			"register_writes":         5,
		},
		Channels: []scenario.Channel{
			{Case: "half", Bus: "A", Bit: 0, Kind: "duty", Value: 12.5},
			{Case: "half", Bus: "A", Bit: 1, Kind: "duty", Stalled: true},
			{Case: "half", Bus: "B", Bit: 0, Kind: "frequency", Value: 3004.8},
		},
	})

	html, err := g.GenerateHTML(id)
	require.NoError(t, err)

	assert.Contains(t, html, "pwmbench Run Report")
	assert.Contains(t, html, "Scenario: pwm-duty")
	assert.Contains(t, html, "FAILED")
	assert.Contains(t, html, "Failed Checks")
	assert.Contains(t, html, "half: bus A duty out of band")
	assert.Contains(t, html, "Half Bus A Duty Percent")
	assert.Contains(t, html, "12.50")
	assert.Contains(t, html, "stalled")
	assert.Contains(t, html, "3004.8 Hz")
	assert.Contains(t, html, "bench-host")
	assert.Contains(t, html, "16.0 GiB")
	assert.Contains(t, html, "100000 ticks")
	assert.NotContains(t, html, "Error Details")
}

func TestGenerateHTMLPassed(t *testing.T) {
	g, database := newTestGenerator(t)

	id := record(t, database, scenario.Result{
		StartTime: time.Now(),
		EndTime:   time.Now(),
		Success:   true,
		Metrics:   map[string]float64{"full_bus_a_duty_percent": 100},
	})

	html, err := g.GenerateHTML(id)
	require.NoError(t, err)
	assert.Contains(t, html, "PASSED")
	assert.NotContains(t, html, "Failed Checks")
	assert.NotContains(t, html, "<h2>Channels</h2>")
}

func TestGenerateHTMLMissingRun(t *testing.T) {
	g, _ := newTestGenerator(t)

	_, err := g.GenerateHTML(42)
	require.Error(t, err)
	assert.True(t, errors.Is(err, db.ErrNotFound))
}

func TestGroupMetrics(t *testing.T) {
	groups := groupMetrics([]*db.Result{
		{Metric: "transactions", Value: 10},
		{Metric: "mixed_bus_b_frequency_hz", Value: 0, Unit: "Hz"},
		{Metric: "mixed_bus_a_frequency_hz", Value: 3004.81, Unit: "Hz"},
		{Metric: "mixed_bus_a_frequency_active", Value: 4, Unit: "bits"},
	})

	require.Len(t, groups, 3)
	assert.Equal(t, "Bus A", groups[0].Name)
	assert.Equal(t, "Bus B", groups[1].Name)
	assert.Equal(t, "General", groups[2].Name)

	require.Len(t, groups[0].Metrics, 2)
	assert.Equal(t, "Mixed Bus A Frequency Active", groups[0].Metrics[0].Name)
	assert.Equal(t, "4", groups[0].Metrics[0].Value)
	assert.Equal(t, "3004.8", groups[0].Metrics[1].Value)
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		value float64
		unit  string
		want  string
	}{
		{49.987, "%", "49.99"},
		{3004.81, "Hz", "3004.8"},
		{8, "bits", "8"},
		{2500, "", "2.50K"},
		{3500000, "", "3.50M"},
		{0.5, "", "0.50"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatValue(tt.value, tt.unit))
	}
}

func TestDefaultPDFOptions(t *testing.T) {
	opts := DefaultPDFOptions()
	assert.True(t, opts.RunBanner)
	assert.Equal(t, 8.5, opts.PaperWidth)
	assert.Equal(t, 11.0, opts.PaperHeight)
}

func TestRenderBanner(t *testing.T) {
	g, database := newTestGenerator(t)

	start := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	id := record(t, database, scenario.Result{
		StartTime: start,
		EndTime:   start.Add(time.Second),
		Success:   false,
		Error:     "half: bus B stalled",
	})
	data, err := g.loadReportData(id)
	require.NoError(t, err)
	data.Run.StartTime = start

	header, footer, err := renderBanner(data, 0.6)
	require.NoError(t, err)
	assert.Contains(t, header, fmt.Sprintf("pwmbench run #%d", id))
	assert.Contains(t, header, "pwm-duty")
	assert.Contains(t, header, "FAILED")
	assert.Contains(t, header, "#cf222e")
	assert.Contains(t, header, "margin:0 0.60in")
	assert.Contains(t, footer, "started 2026-03-14 09:26:53 on bench-host")
	assert.Contains(t, footer, `<span class="pageNumber"></span>`)
	assert.Contains(t, footer, `<span class="totalPages"></span>`)

	data.Run.Success = true
	data.Scenario = "<b>x</b>"
	header, _, err = renderBanner(data, 0.4)
	require.NoError(t, err)
	assert.Contains(t, header, "PASSED")
	assert.Contains(t, header, "&lt;b&gt;x&lt;/b&gt;")
}
