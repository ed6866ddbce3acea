package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mscrnt/pwmbench/pkg/report"
	"github.com/spf13/cobra"
)

// paperSizes are width and height in inches
var paperSizes = map[string][2]float64{
	"A3":     {11.69, 16.54},
	"A4":     {8.27, 11.69},
	"LETTER": {8.5, 11.0},
	"LEGAL":  {8.5, 14.0},
}

func reportCmd() *cobra.Command {
	var (
		format       string
		output       string
		runID        int64
		latest       bool
		scenarioName string
		landscape    bool
		pageSize     string
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Generate a run report",
		Long: `Generate an HTML or PDF report of a recorded run. PDF output needs a
local Chrome or Chromium.

Examples:
  # HTML report of the latest run
  pwmbench report --latest

  # PDF report of a specific run
  pwmbench report --run 42 --format pdf --output report.pdf

  # Latest duty cycle run, A4 landscape
  pwmbench report --latest --scenario pwm-duty --format pdf --landscape --page-size A4`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if format != "html" && format != "pdf" {
				return fmt.Errorf("format must be either 'html' or 'pdf'")
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

			runID, err = resolveRun(database, runID, latest, scenarioName)
			if err != nil {
				return err
			}
			run, err := database.GetRun(runID)
			if err != nil {
				return err
			}

			if output == "" {
				output = fmt.Sprintf("pwmbench_report_%d_%s.%s", runID, time.Now().Format("20060102_150405"), format)
			}

			generator := report.NewGenerator(database)
			switch format {
			case "html":
				html, err := generator.GenerateHTML(runID)
				if err != nil {
					return fmt.Errorf("failed to generate HTML report: %w", err)
				}
				if err := os.WriteFile(output, []byte(html), 0o600); err != nil {
					return fmt.Errorf("failed to write HTML file: %w", err)
				}

			case "pdf":
				options := report.DefaultPDFOptions()
				options.Landscape = landscape
				size, ok := paperSizes[strings.ToUpper(pageSize)]
				if !ok {
					return fmt.Errorf("unsupported page size: %s", pageSize)
				}
				options.PaperWidth, options.PaperHeight = size[0], size[1]

				e.logger.WithField("run", runID).Debug("rendering PDF")
				if err := generator.GeneratePDF(cmd.Context(), runID, output, &options); err != nil {
					return fmt.Errorf("failed to generate PDF report: %w", err)
				}
			}

			absPath, _ := filepath.Abs(output)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Generated %s report for run #%d\n", strings.ToUpper(format), runID)
			fmt.Fprintf(out, "Scenario: %s\n", run.Scenario)
			fmt.Fprintf(out, "Date: %s\n", run.StartTime.Format("2006-01-02 15:04:05"))
			fmt.Fprintf(out, "Status: %s\n", strings.ToUpper(string(run.GetStatus())))
			fmt.Fprintf(out, "Output: %s\n", absPath)

			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "html", "Output format (html or pdf)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file path")
	cmd.Flags().Int64Var(&runID, "run", 0, "Run ID to report on")
	cmd.Flags().BoolVar(&latest, "latest", false, "Use the latest run")
	cmd.Flags().StringVarP(&scenarioName, "scenario", "s", "", "Filter by scenario when using --latest")
	cmd.Flags().BoolVar(&landscape, "landscape", false, "Generate PDF in landscape mode")
	cmd.Flags().StringVar(&pageSize, "page-size", "LETTER", "PDF page size (A3, A4, LETTER, LEGAL)")

	return cmd
}

// parseDuration accepts time.ParseDuration input plus whole days ("7d")
func parseDuration(s string) (time.Duration, error) {
	if strings.HasSuffix(s, "d") {
		days, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
		if err != nil {
			return 0, err
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}
