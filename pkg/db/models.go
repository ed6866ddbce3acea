package db

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned when a run or schedule does not exist
var ErrNotFound = errors.New("not found")

// Run represents one scenario execution
type Run struct {
	ID        int64      `json:"id"`
	Scenario  string     `json:"scenario"`
	Params    JSONData   `json:"params"`
	Bench     JSONData   `json:"bench"`
	StartTime time.Time  `json:"start_time"`
	EndTime   *time.Time `json:"end_time"`
	Success   bool       `json:"success"`
	Error     string     `json:"error,omitempty"`
	Details   JSONData   `json:"details,omitempty"`
	SimTicks  int64      `json:"sim_ticks"`
	SimTimeNS int64      `json:"sim_time_ns"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Result represents a metric result from a run
type Result struct {
	ID        int64     `json:"id"`
	RunID     int64     `json:"run_id"`
	Metric    string    `json:"metric"`
	Value     float64   `json:"value"`
	Unit      string    `json:"unit"`
	CreatedAt time.Time `json:"created_at"`
}

// Channel is one per-bit measurement of a run
type Channel struct {
	ID      int64   `json:"id"`
	RunID   int64   `json:"run_id"`
	Case    string  `json:"case"`
	Bus     string  `json:"bus"`
	Bit     int     `json:"bit"`
	Kind    string  `json:"kind"`
	Value   float64 `json:"value"`
	Stalled bool    `json:"stalled"`
}

// JSONData is a custom type for storing JSON in SQLite
type JSONData map[string]interface{}

// Value implements the driver.Valuer interface
func (j JSONData) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan implements the sql.Scanner interface
func (j *JSONData) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan type %T into JSONData", value)
	}

	return json.Unmarshal(data, j)
}

// ToJSONData converts any JSON-encodable value into JSONData
func ToJSONData(v interface{}) (JSONData, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out JSONData
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// RunStatus represents the status of a run
type RunStatus string

const (
	RunStatusRunning RunStatus = "running"
	RunStatusPassed  RunStatus = "passed"
	RunStatusFailed  RunStatus = "failed"
)

// GetStatus returns the status of a run
func (r *Run) GetStatus() RunStatus {
	if r.EndTime == nil {
		return RunStatusRunning
	}
	if r.Success {
		return RunStatusPassed
	}
	return RunStatusFailed
}

// Duration returns the wall-clock duration of the run
func (r *Run) Duration() time.Duration {
	if r.EndTime == nil {
		return 0
	}
	return r.EndTime.Sub(r.StartTime)
}

// SimTime returns the simulated time the run covered
func (r *Run) SimTime() time.Duration {
	return time.Duration(r.SimTimeNS)
}

// RunFilter represents filters for querying runs
type RunFilter struct {
	Scenario  string
	StartTime *time.Time
	EndTime   *time.Time
	Success   *bool
	Limit     int
	Offset    int
}

// ResultFilter represents filters for querying results
type ResultFilter struct {
	RunID  *int64
	Metric string
	Limit  int
	Offset int
}

// ExportFormat represents the format for exporting data
type ExportFormat string

const (
	ExportFormatCSV  ExportFormat = "csv"
	ExportFormatJSON ExportFormat = "json"
)

// MetricUnit derives the unit of a metric from its name
func MetricUnit(metric string) string {
	switch {
	case strings.HasSuffix(metric, "_hz"):
		return "Hz"
	case strings.HasSuffix(metric, "_percent"):
		return "%"
	case strings.HasSuffix(metric, "_active"):
		return "bits"
	default:
		return ""
	}
}
