package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mscrnt/pwmbench/internal/config"
	"github.com/mscrnt/pwmbench/pkg/db"
	"github.com/sirupsen/logrus"

	// scenarios available to every command
	_ "github.com/mscrnt/pwmbench/pkg/scenario/pwmduty"
	_ "github.com/mscrnt/pwmbench/pkg/scenario/pwmfreq"
	_ "github.com/mscrnt/pwmbench/pkg/scenario/spiregs"
)

var (
	configPath string
	logLevel   string
	logFormat  string
)

// env is the loaded configuration and logger shared by the commands
type env struct {
	cfg    config.Config
	logger *logrus.Logger
}

func loadEnv() (*env, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if logFormat != "" {
		cfg.LogFormat = logFormat
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := cfg.NewLogger(os.Stderr)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, logger: logger}, nil
}

func (e *env) openDB() (*db.DB, error) {
	database, err := db.Open(e.cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return database, nil
}

// parseValues turns key=value flags into typed scenario config
func parseValues(values map[string]string) map[string]interface{} {
	out := make(map[string]interface{}, len(values))
	for k, v := range values {
		if n, err := json.Number(v).Int64(); err == nil {
			out[k] = int(n)
		} else if f, err := json.Number(v).Float64(); err == nil {
			out[k] = f
		} else if v == "true" || v == "false" {
			out[k] = v == "true"
		} else {
			out[k] = v
		}
	}
	return out
}

// resolveRun picks runID, or the newest run of scenarioName when latest
// is set
func resolveRun(database *db.DB, runID int64, latest bool, scenarioName string) (int64, error) {
	if !latest && runID == 0 {
		return 0, fmt.Errorf("either --latest or --run must be specified")
	}
	if !latest {
		return runID, nil
	}

	runs, err := database.ListRuns(db.RunFilter{Scenario: scenarioName, Limit: 1})
	if err != nil {
		return 0, fmt.Errorf("failed to list runs: %w", err)
	}
	if len(runs) == 0 {
		return 0, fmt.Errorf("no runs found")
	}
	return runs[0].ID, nil
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

// createOutput opens path for writing, or stdout when path is empty
func createOutput(path string, stdout io.Writer) (io.WriteCloser, error) {
	if path == "" {
		return nopCloser{stdout}, nil
	}
	f, err := os.Create(path) // #nosec G304 -- output path from command line flag
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, nil
}

func formatMetric(value float64, unit string) string {
	if unit == "" {
		return fmt.Sprintf("%.2f", value)
	}
	return strings.TrimSpace(fmt.Sprintf("%.2f %s", value, unit))
}
