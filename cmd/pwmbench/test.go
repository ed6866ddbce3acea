package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/mscrnt/pwmbench/pkg/db"
	"github.com/mscrnt/pwmbench/pkg/scenario"
	"github.com/spf13/cobra"
)

func testCmd() *cobra.Command {
	var (
		values   map[string]string
		caseName string
		budget   int
		noSave   bool
		dryRun   bool
		list     bool
		asJSON   bool
		rerun    int64
	)

	cmd := &cobra.Command{
		Use:   "test [scenario]",
		Short: "Run a verification scenario",
		Long: `Build a fresh bench, reset the DUT and run a scenario against it.

Examples:
  # List available scenarios
  pwmbench test --list

  # Run every PWM frequency case
  pwmbench test pwm-frequency

  # Run only the 50% duty case with a wider band
  pwmbench test pwm-duty --case half --config duty_min=48 --config duty_max=52

  # Shorter edge searches, without recording the run
  pwmbench test pwm-frequency --tick-budget 8000 --no-save

  # Repeat run 42 with the bench timing and settings it was recorded with
  pwmbench test --rerun 42`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if list {
				return listScenarios(out)
			}
			e, err := loadEnv()
			if err != nil {
				return err
			}

			bench := e.cfg.Bench
			config := make(map[string]interface{})
			var name string
			switch {
			case rerun != 0:
				previous, err := loadRerun(e, rerun)
				if err != nil {
					return err
				}
				name = previous.Scenario
				params, err := previous.ScenarioParams()
				if err != nil {
					return err
				}
				bench = params.Bench
				config = params.Config
				if len(args) > 0 && args[0] != name {
					return fmt.Errorf("run %d is a %s run, not %s", rerun, name, args[0])
				}
			case len(args) == 0:
				return fmt.Errorf("scenario name required")
			default:
				name = args[0]
			}

			sc, err := scenario.Get(name)
			if err != nil {
				_ = listScenarios(cmd.ErrOrStderr())
				return err
			}

			for k, v := range parseValues(values) {
				config[k] = v
			}
			if caseName != "" {
				config["case"] = caseName
			}
			if cmd.Flags().Changed("tick-budget") {
				config["tick_budget"] = budget
			}

			if dryRun {
				params := sc.DefaultParams()
				params.Bench = bench
				for k, v := range config {
					params.Config[k] = v
				}
				if err := sc.ValidateParams(params); err != nil {
					return fmt.Errorf("invalid parameters: %w", err)
				}
				if asJSON {
					data, err := scenario.MarshalParams(params)
					if err != nil {
						return err
					}
					_, err = fmt.Fprintf(out, "%s\n", data)
					return err
				}
				fmt.Fprintf(out, "Would run scenario: %s\n", sc.Name())
				fmt.Fprintf(out, "Description: %s\n", sc.Description())
				fmt.Fprintf(out, "Tick budget: %d\n", params.BenchConfig().TickBudget)
				fmt.Fprintln(out, "Config:")
				for _, k := range sortedKeys(params.Config) {
					fmt.Fprintf(out, "  %s: %v\n", k, params.Config[k])
				}
				return nil
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			result, runErr := scenario.Execute(ctx, name, bench, config, e.logger)
			if runErr != nil && result.EndTime.IsZero() {
				return runErr
			}

			var runID int64
			if !noSave {
				database, err := e.openDB()
				if err != nil {
					return err
				}
				defer func() { _ = database.Close() }()

				run, err := database.RecordScenario(name, db.JSONData(config), bench, result, db.Units(sc))
				if err != nil {
					return fmt.Errorf("failed to record run: %w", err)
				}
				runID = run.ID
			}

			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(struct {
					RunID  int64           `json:"run_id,omitempty"`
					Result scenario.Result `json:"result"`
				}{runID, result}); err != nil {
					return err
				}
			} else {
				printResult(out, name, runID, result, db.Units(sc))
			}

			if runErr != nil {
				return runErr
			}
			if !result.Success {
				return fmt.Errorf("scenario %s failed", name)
			}
			return nil
		},
	}

	cmd.Flags().StringToStringVarP(&values, "config", "c", map[string]string{}, "Scenario configuration (key=value)")
	cmd.Flags().StringVar(&caseName, "case", "", "Run only this case")
	cmd.Flags().IntVar(&budget, "tick-budget", 0, "Sampling iterations per edge search")
	cmd.Flags().BoolVar(&noSave, "no-save", false, "Do not record the run")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would be executed without running")
	cmd.Flags().BoolVarP(&list, "list", "l", false, "List available scenarios")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result (or, with --dry-run, the parameters) as JSON")
	cmd.Flags().Int64Var(&rerun, "rerun", 0, "Repeat a recorded run with its scenario, bench timing and settings")

	return cmd
}

func loadRerun(e *env, runID int64) (*db.Run, error) {
	database, err := e.openDB()
	if err != nil {
		return nil, err
	}
	defer func() { _ = database.Close() }()

	run, err := database.GetRun(runID)
	if err != nil {
		return nil, err
	}
	return run, nil
}

func printResult(out io.Writer, name string, runID int64, result scenario.Result, units map[string]string) {
	if runID != 0 {
		fmt.Fprintf(out, "Scenario %s (run ID: %d)\n", name, runID)
	} else {
		fmt.Fprintf(out, "Scenario %s\n", name)
	}
	fmt.Fprintf(out, "Completed in %s, simulated %s (%d ticks)\n", result.Duration, result.SimTime, result.SimTicks)
	fmt.Fprintf(out, "Success: %v\n", result.Success)

	if len(result.Failures) > 0 {
		fmt.Fprintln(out, "\nFailures:")
		for _, f := range result.Failures {
			fmt.Fprintf(out, "  %s\n", f)
		}
	} else if result.Error != "" {
		fmt.Fprintf(out, "Error: %s\n", result.Error)
	}

	if len(result.Metrics) > 0 {
		fmt.Fprintln(out, "\nMetrics:")
		names := make([]string, 0, len(result.Metrics))
		for k := range result.Metrics {
			names = append(names, k)
		}
		sort.Strings(names)
		for _, k := range names {
			unit := units[k]
			if unit == "" {
				unit = db.MetricUnit(k)
			}
			fmt.Fprintf(out, "  %-40s %s\n", k, formatMetric(result.Metrics[k], unit))
		}
	}
}

func listScenarios(out io.Writer) error {
	names := scenario.List()
	if len(names) == 0 {
		fmt.Fprintln(out, "No scenarios registered")
		return nil
	}

	fmt.Fprintln(out, "Available scenarios:")
	for _, info := range scenario.Infos() {
		fmt.Fprintf(out, "  %-15s %s\n", info.Name, info.Description)
		if len(info.Cases) > 0 {
			fmt.Fprintf(out, "  %-15s cases: %v\n", "", info.Cases)
		}
	}
	return nil
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
