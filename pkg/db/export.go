package db

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
)

var csvHeaders = []string{
	"Run ID", "Scenario", "Start Time", "End Time", "Duration (s)",
	"Success", "Sim Ticks", "Metric", "Value", "Unit",
}

// RunExport is the JSON export of one run
type RunExport struct {
	Run      *Run       `json:"run"`
	Results  []*Result  `json:"results"`
	Channels []*Channel `json:"channels"`
}

// ExportCSV exports the results of one run to CSV format
func (db *DB) ExportCSV(w io.Writer, runID int64) error {
	run, err := db.GetRun(runID)
	if err != nil {
		return fmt.Errorf("failed to get run: %w", err)
	}

	csvWriter := csv.NewWriter(w)
	if err := csvWriter.Write(csvHeaders); err != nil {
		return fmt.Errorf("failed to write headers: %w", err)
	}
	if err := db.writeRunCSV(csvWriter, run); err != nil {
		return err
	}
	csvWriter.Flush()
	return csvWriter.Error()
}

// ExportAllCSV exports all runs and results to CSV format
func (db *DB) ExportAllCSV(w io.Writer) error {
	runs, err := db.ListRuns(RunFilter{})
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	csvWriter := csv.NewWriter(w)
	if err := csvWriter.Write(csvHeaders); err != nil {
		return fmt.Errorf("failed to write headers: %w", err)
	}
	for _, run := range runs {
		if err := db.writeRunCSV(csvWriter, run); err != nil {
			return err
		}
	}
	csvWriter.Flush()
	return csvWriter.Error()
}

func (db *DB) writeRunCSV(csvWriter *csv.Writer, run *Run) error {
	results, err := db.GetResults(run.ID)
	if err != nil {
		return fmt.Errorf("failed to get results for run %d: %w", run.ID, err)
	}

	end := ""
	if run.EndTime != nil {
		end = run.EndTime.Format("2006-01-02 15:04:05")
	}

	for _, result := range results {
		row := []string{
			strconv.FormatInt(run.ID, 10),
			run.Scenario,
			run.StartTime.Format("2006-01-02 15:04:05"),
			end,
			fmt.Sprintf("%.3f", run.Duration().Seconds()),
			strconv.FormatBool(run.Success),
			strconv.FormatInt(run.SimTicks, 10),
			result.Metric,
			fmt.Sprintf("%.6f", result.Value),
			result.Unit,
		}
		if err := csvWriter.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	return nil
}

// ExportChannelsCSV exports the per-bit measurements of one run
func (db *DB) ExportChannelsCSV(w io.Writer, runID int64) error {
	if _, err := db.GetRun(runID); err != nil {
		return fmt.Errorf("failed to get run: %w", err)
	}
	channels, err := db.GetChannels(runID)
	if err != nil {
		return err
	}

	csvWriter := csv.NewWriter(w)
	if err := csvWriter.Write([]string{"Run ID", "Case", "Bus", "Bit", "Kind", "Value", "Stalled"}); err != nil {
		return fmt.Errorf("failed to write headers: %w", err)
	}
	for _, c := range channels {
		row := []string{
			strconv.FormatInt(c.RunID, 10),
			c.Case,
			c.Bus,
			strconv.Itoa(c.Bit),
			c.Kind,
			fmt.Sprintf("%.6f", c.Value),
			strconv.FormatBool(c.Stalled),
		}
		if err := csvWriter.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	csvWriter.Flush()
	return csvWriter.Error()
}

// LoadExport gathers a run with its results and channels
func (db *DB) LoadExport(runID int64) (*RunExport, error) {
	run, err := db.GetRun(runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	results, err := db.GetResults(runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get results: %w", err)
	}
	channels, err := db.GetChannels(runID)
	if err != nil {
		return nil, err
	}
	return &RunExport{Run: run, Results: results, Channels: channels}, nil
}

// ExportJSON exports one run to JSON format
func (db *DB) ExportJSON(w io.Writer, runID int64) error {
	export, err := db.LoadExport(runID)
	if err != nil {
		return err
	}
	return encodeJSON(w, export)
}

// ExportAllJSON exports every run to JSON format
func (db *DB) ExportAllJSON(w io.Writer) error {
	runs, err := db.ListRuns(RunFilter{})
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	exports := make([]*RunExport, 0, len(runs))
	for _, run := range runs {
		export, err := db.LoadExport(run.ID)
		if err != nil {
			return err
		}
		exports = append(exports, export)
	}
	return encodeJSON(w, exports)
}

func encodeJSON(w io.Writer, v interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}
