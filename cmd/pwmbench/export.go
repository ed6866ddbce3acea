package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/mscrnt/pwmbench/pkg/db"
	"github.com/spf13/cobra"
)

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export run results",
		Long:  "Export recorded runs as CSV or JSON",
	}

	cmd.AddCommand(exportCSVCmd())
	cmd.AddCommand(exportJSONCmd())

	return cmd
}

func exportCSVCmd() *cobra.Command {
	var (
		runID    int64
		output   string
		all      bool
		channels bool
	)

	cmd := &cobra.Command{
		Use:   "csv",
		Short: "Export results to CSV format",
		Long: `Export run metrics, or per-bit channel measurements, to CSV.

Examples:
  # Export one run to a file
  pwmbench export csv --run 42 --out results.csv

  # Per-bit measurements of one run
  pwmbench export csv --run 42 --channels

  # Export all runs
  pwmbench export csv --all --out all-results.csv`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !all && runID == 0 {
				return fmt.Errorf("either --run or --all must be specified")
			}
			if all && channels {
				return fmt.Errorf("--channels needs a single --run")
			}

			return withExport(cmd, output, func(database *db.DB, w io.Writer) error {
				switch {
				case all:
					return database.ExportAllCSV(w)
				case channels:
					return database.ExportChannelsCSV(w, runID)
				default:
					return database.ExportCSV(w, runID)
				}
			})
		},
	}

	cmd.Flags().Int64Var(&runID, "run", 0, "Run ID to export")
	cmd.Flags().StringVarP(&output, "out", "o", "", "Output file (default: stdout)")
	cmd.Flags().BoolVar(&all, "all", false, "Export all runs")
	cmd.Flags().BoolVar(&channels, "channels", false, "Export per-bit measurements instead of metrics")

	return cmd
}

func exportJSONCmd() *cobra.Command {
	var (
		runID  int64
		output string
		all    bool
	)

	cmd := &cobra.Command{
		Use:   "json",
		Short: "Export results to JSON format",
		Long: `Export runs with their metrics and channel measurements as JSON.

Examples:
  # Export one run to a file
  pwmbench export json --run 42 --out results.json

  # Export every run to stdout
  pwmbench export json --all`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !all && runID == 0 {
				return fmt.Errorf("either --run or --all must be specified")
			}

			return withExport(cmd, output, func(database *db.DB, w io.Writer) error {
				if all {
					return database.ExportAllJSON(w)
				}
				return database.ExportJSON(w, runID)
			})
		},
	}

	cmd.Flags().Int64Var(&runID, "run", 0, "Run ID to export")
	cmd.Flags().StringVarP(&output, "out", "o", "", "Output file (default: stdout)")
	cmd.Flags().BoolVar(&all, "all", false, "Export all runs")

	return cmd
}

func withExport(cmd *cobra.Command, output string, export func(*db.DB, io.Writer) error) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}
	database, err := e.openDB()
	if err != nil {
		return err
	}
	defer func() { _ = database.Close() }()

	out, err := createOutput(output, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	if err := export(database, out); err != nil {
		_ = out.Close()
		return fmt.Errorf("export failed: %w", err)
	}
	if err := out.Close(); err != nil {
		return err
	}

	if output != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "Exported to %s\n", output)
	}
	return nil
}

func listCmd() *cobra.Command {
	var (
		scenarioName string
		limit        int
		passed       bool
		failed       bool
		since        string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded runs",
		Long: `List recorded runs, newest first.

Examples:
  # List all runs
  pwmbench list

  # Only duty cycle runs
  pwmbench list --scenario pwm-duty

  # Only failed runs
  pwmbench list --failed

  # Runs from the last week
  pwmbench list --since 7d`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}
			database, err := e.openDB()
			if err != nil {
				return err
			}
			defer func() { _ = database.Close() }()

			filter := db.RunFilter{
				Scenario: scenarioName,
				Limit:    limit,
			}
			if passed != failed {
				success := passed
				filter.Success = &success
			}
			if since != "" {
				d, err := parseDuration(since)
				if err != nil {
					return fmt.Errorf("invalid duration: %w", err)
				}
				from := time.Now().Add(-d)
				filter.StartTime = &from
			}

			runs, err := database.ListRuns(filter)
			if err != nil {
				return fmt.Errorf("failed to list runs: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs found")
				return nil
			}

			fmt.Fprintf(out, "%-6s %-15s %-20s %-10s %-14s %-8s\n",
				"ID", "Scenario", "Start Time", "Duration", "Simulated", "Status")
			fmt.Fprintln(out, strings.Repeat("-", 80))

			for _, run := range runs {
				duration := "-"
				if run.EndTime != nil {
					duration = fmt.Sprintf("%.1fs", run.Duration().Seconds())
				}
				fmt.Fprintf(out, "%-6d %-15s %-20s %-10s %-14s %-8s\n",
					run.ID,
					run.Scenario,
					run.StartTime.Format("2006-01-02 15:04:05"),
					duration,
					run.SimTime(),
					run.GetStatus(),
				)
			}

			return nil
		},
	}

	cmd.Flags().StringVarP(&scenarioName, "scenario", "s", "", "Filter by scenario name")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum number of runs to show")
	cmd.Flags().BoolVar(&passed, "passed", false, "Show only passed runs")
	cmd.Flags().BoolVar(&failed, "failed", false, "Show only failed runs")
	cmd.Flags().StringVar(&since, "since", "", "Show runs since duration (e.g., 24h, 7d)")

	return cmd
}

func showCmd() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "show [run-id]",
		Short: "Show detailed run information",
		Long: `Show a recorded run with its metrics.

Examples:
  # Show run details
  pwmbench show 42

  # Include per-bit measurements
  pwmbench show 42 -v`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid run ID: %s", args[0])
			}

			e, err := loadEnv()
			if err != nil {
				return err
			}
			database, err := e.openDB()
			if err != nil {
				return err
			}
			defer func() { _ = database.Close() }()

			export, err := database.LoadExport(runID)
			if err != nil {
				return err
			}
			run := export.Run

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Run ID: %d\n", run.ID)
			fmt.Fprintf(out, "Scenario: %s\n", run.Scenario)
			fmt.Fprintf(out, "Start Time: %s\n", run.StartTime.Format("2006-01-02 15:04:05"))
			if run.EndTime != nil {
				fmt.Fprintf(out, "End Time: %s\n", run.EndTime.Format("2006-01-02 15:04:05"))
				fmt.Fprintf(out, "Duration: %.2f seconds\n", run.Duration().Seconds())
			} else {
				fmt.Fprintln(out, "End Time: (still running)")
			}
			fmt.Fprintf(out, "Simulated: %s (%d ticks)\n", run.SimTime(), run.SimTicks)
			fmt.Fprintf(out, "Status: %s\n", run.GetStatus())

			if failures, ok := run.Details["failures"].([]interface{}); ok && len(failures) > 0 {
				fmt.Fprintln(out, "\nFailures:")
				for _, f := range failures {
					fmt.Fprintf(out, "  %v\n", f)
				}
			} else if run.Error != "" {
				fmt.Fprintf(out, "Error: %s\n", run.Error)
			}

			if len(run.Params) > 0 {
				fmt.Fprintln(out, "\nParameters:")
				for _, k := range sortedKeys(run.Params) {
					fmt.Fprintf(out, "  %s: %v\n", k, run.Params[k])
				}
			}

			if len(export.Results) > 0 {
				fmt.Fprintln(out, "\nResults:")
				for _, r := range export.Results {
					fmt.Fprintf(out, "  %-40s %s\n", r.Metric, formatMetric(r.Value, r.Unit))
				}
			}

			if verbose && len(export.Channels) > 0 {
				fmt.Fprintln(out, "\nChannels:")
				for _, c := range export.Channels {
					value := formatMetric(c.Value, channelUnit(c.Kind))
					if c.Stalled {
						value = "stalled"
					}
					fmt.Fprintf(out, "  %-12s %s[%d] %-9s %s\n", c.Case, c.Bus, c.Bit, c.Kind, value)
				}
			}

			return nil
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show per-bit measurements")

	return cmd
}

func channelUnit(kind string) string {
	if kind == "duty" {
		return "%"
	}
	return "Hz"
}
