package cert

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/mscrnt/pwmbench/pkg/db"
	"github.com/mscrnt/pwmbench/pkg/harness"
	"github.com/mscrnt/pwmbench/pkg/scenario"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recordRun(t *testing.T) (*db.DB, *db.RunExport) {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "cert.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	start := time.Now().Add(-time.Minute)
	run, err := database.RecordScenario("pwm-frequency", db.JSONData{"case": "all"}, harness.DefaultConfig(), scenario.Result{
		StartTime: start,
		EndTime:   start.Add(1500 * time.Millisecond),
		SimTicks:  250000,
		SimTime:   25 * time.Millisecond,
		Success:   true,
		Metrics: map[string]float64{
			"all_bus_a_frequency_hz":     3004.807,
			"all_bus_a_frequency_active": 8,
		},
		Channels: []scenario.Channel{{Case: "all", Bus: "A", Bit: 0, Kind: "frequency", Value: 3004.807}},
	}, nil)
	require.NoError(t, err)

	export, err := database.LoadExport(run.ID)
	require.NoError(t, err)
	return database, export
}

func TestIssueAndVerify(t *testing.T) {
	_, export := recordRun(t)

	issuer, err := NewCertificateIssuer()
	require.NoError(t, err)

	c, err := issuer.IssueCertificate(export)
	require.NoError(t, err)
	assert.Equal(t, export.Run.ID, c.RunID)
	require.NoError(t, issuer.Verify(c.Certificate))

	dir := t.TempDir()
	caCert, caKey := filepath.Join(dir, "ca.crt"), filepath.Join(dir, "ca.key")
	require.NoError(t, issuer.SaveCA(caCert, caKey))
	certPath := filepath.Join(dir, "run.crt")
	require.NoError(t, c.Save(certPath, filepath.Join(dir, "run.key")))

	result, err := VerifyCertificateFile(certPath, caCert)
	require.NoError(t, err)
	assert.True(t, result.Valid, result.Error)
	assert.Equal(t, export.Run.ID, result.RunID)
	assert.Equal(t, "pwm-frequency", result.Scenario)
	assert.Equal(t, "PASSED", result.Status)
	assert.Equal(t, "1.500 seconds", result.Duration)
	assert.Equal(t, "25ms", result.SimTime)
	assert.Equal(t, []string{
		"all_bus_a_frequency_active=8 bits",
		"all_bus_a_frequency_hz=3004.807 Hz",
	}, result.Metrics)
	assert.NoError(t, result.MatchRun(export))

	text := FormatVerifyResult(result)
	assert.Contains(t, text, "Status: VALID")
	assert.Contains(t, text, "Scenario: pwm-frequency")

	reloaded, err := LoadCA(caCert, caKey)
	require.NoError(t, err)
	assert.NoError(t, reloaded.Verify(c.Certificate))
}

func TestVerifyOtherCA(t *testing.T) {
	_, export := recordRun(t)

	issuer, err := NewCertificateIssuer()
	require.NoError(t, err)
	other, err := NewCertificateIssuer()
	require.NoError(t, err)

	c, err := issuer.IssueCertificate(export)
	require.NoError(t, err)

	result := VerifyCertificate(c.Certificate, other.CA())
	assert.False(t, result.Valid)
	assert.NotEmpty(t, result.Error)
	assert.Contains(t, FormatVerifyResult(result), "INVALID")
}

func TestMatchRunDetectsChanges(t *testing.T) {
	database, export := recordRun(t)

	issuer, err := NewCertificateIssuer()
	require.NoError(t, err)
	c, err := issuer.IssueCertificate(export)
	require.NoError(t, err)
	result := VerifyCertificate(c.Certificate, issuer.CA())

	export.Run.Success = false
	assert.Error(t, result.MatchRun(export))

	fresh, err := database.LoadExport(export.Run.ID)
	require.NoError(t, err)
	assert.NoError(t, result.MatchRun(fresh))

	fresh.Run.ID++
	assert.Error(t, result.MatchRun(fresh))
}

func TestIssueUnfinishedRun(t *testing.T) {
	issuer, err := NewCertificateIssuer()
	require.NoError(t, err)

	_, err = issuer.IssueCertificate(&db.RunExport{Run: &db.Run{ID: 1, StartTime: time.Now()}})
	assert.Error(t, err)
}
