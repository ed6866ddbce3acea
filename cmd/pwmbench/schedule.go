package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mscrnt/pwmbench/pkg/db"
	"github.com/mscrnt/pwmbench/pkg/scenario"
	"github.com/mscrnt/pwmbench/pkg/schedule"
	"github.com/spf13/cobra"
)

func scheduleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Manage scenario schedules",
		Long:  "Create, manage and run scenarios on cron schedules",
	}

	cmd.AddCommand(scheduleAddCmd())
	cmd.AddCommand(scheduleListCmd())
	cmd.AddCommand(scheduleShowCmd())
	cmd.AddCommand(scheduleRemoveCmd())
	cmd.AddCommand(scheduleToggleCmd("enable", true))
	cmd.AddCommand(scheduleToggleCmd("disable", false))
	cmd.AddCommand(scheduleRunCmd())
	cmd.AddCommand(scheduleStartCmd())

	return cmd
}

// withStore loads the configuration and opens the schedule store
func withStore(fn func(e *env, database *db.DB, store *schedule.Store) error) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}
	database, err := e.openDB()
	if err != nil {
		return err
	}
	defer func() { _ = database.Close() }()

	return fn(e, database, schedule.NewStore(database))
}

// findSchedule looks a schedule up by ID, then by name
func findSchedule(store *schedule.Store, identifier string) (*schedule.Schedule, error) {
	if id, err := strconv.ParseInt(identifier, 10, 64); err == nil {
		sched, err := store.Get(id)
		if err != nil {
			return nil, fmt.Errorf("schedule with ID %d: %w", id, err)
		}
		return sched, nil
	}
	sched, err := store.GetByName(identifier)
	if err != nil {
		return nil, fmt.Errorf("schedule '%s': %w", identifier, err)
	}
	return sched, nil
}

func scheduleAddCmd() *cobra.Command {
	var (
		name         string
		description  string
		cronExpr     string
		scenarioName string
		values       map[string]string
		enabled      bool
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a new schedule",
		Long: `Add a scenario schedule with cron-style timing.

Cron expression format:
  minute hour day-of-month month day-of-week
  or a descriptor such as @hourly, @daily, @every 30m

Examples:
  # Frequency check every hour
  pwmbench schedule add --name hourly-freq --cron "0 * * * *" --scenario pwm-frequency

  # Nightly 50% duty check with a tighter band
  pwmbench schedule add --name nightly-duty --cron "0 2 * * *" --scenario pwm-duty --config case=half --config duty_min=49.5`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := scenario.Get(scenarioName); err != nil {
				return err
			}

			return withStore(func(e *env, _ *db.DB, store *schedule.Store) error {
				sched := &schedule.Schedule{
					Name:        name,
					Description: description,
					CronExpr:    cronExpr,
					Scenario:    scenarioName,
					Params:      db.JSONData(parseValues(values)),
					Enabled:     enabled,
				}
				if err := sched.Validate(e.cfg.Bench); err != nil {
					return err
				}
				if err := store.Create(sched); err != nil {
					return fmt.Errorf("failed to create schedule: %w", err)
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Created schedule '%s' (ID: %d)\n", sched.Name, sched.ID)
				fmt.Fprintf(out, "Cron: %s\n", sched.CronExpr)
				fmt.Fprintf(out, "Scenario: %s\n", sched.Scenario)
				if sched.NextRunTime != nil {
					fmt.Fprintf(out, "Next run: %s\n", sched.NextRunTime.Format("2006-01-02 15:04:05"))
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&name, "name", "n", "", "Schedule name (required)")
	cmd.Flags().StringVarP(&description, "desc", "d", "", "Schedule description")
	cmd.Flags().StringVar(&cronExpr, "cron", "", "Cron expression (required)")
	cmd.Flags().StringVarP(&scenarioName, "scenario", "s", "", "Scenario to run (required)")
	cmd.Flags().StringToStringVarP(&values, "config", "c", map[string]string{}, "Scenario configuration (key=value)")
	cmd.Flags().BoolVar(&enabled, "enabled", true, "Enable schedule immediately")

	for _, f := range []string{"name", "cron", "scenario"} {
		_ = cmd.MarkFlagRequired(f)
	}

	return cmd
}

func scheduleListCmd() *cobra.Command {
	var (
		all      bool
		disabled bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List schedules",
		Long: `List configured schedules.

Examples:
  # List enabled schedules
  pwmbench schedule list

  # List all schedules
  pwmbench schedule list --all`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(func(_ *env, _ *db.DB, store *schedule.Store) error {
				filter := schedule.Filter{}
				if !all {
					enabled := !disabled
					filter.Enabled = &enabled
				}

				schedules, err := store.List(filter)
				if err != nil {
					return fmt.Errorf("failed to list schedules: %w", err)
				}

				out := cmd.OutOrStdout()
				if len(schedules) == 0 {
					fmt.Fprintln(out, "No schedules found")
					return nil
				}

				fmt.Fprintf(out, "%-4s %-20s %-15s %-20s %-8s %-20s\n",
					"ID", "Name", "Scenario", "Cron", "Enabled", "Next Run")
				fmt.Fprintln(out, strings.Repeat("-", 90))

				for _, sched := range schedules {
					nextRun := "N/A"
					if sched.NextRunTime != nil {
						nextRun = sched.NextRunTime.Format("2006-01-02 15:04")
						if sched.Due(time.Now()) {
							nextRun += " (overdue)"
						}
					}
					fmt.Fprintf(out, "%-4d %-20s %-15s %-20s %-8v %-20s\n",
						sched.ID,
						truncate(sched.Name, 20),
						sched.Scenario,
						sched.CronExpr,
						sched.Enabled,
						nextRun,
					)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&all, "all", "a", false, "Show all schedules")
	cmd.Flags().BoolVar(&disabled, "disabled", false, "Show only disabled schedules")

	return cmd
}

func scheduleShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [id|name]",
		Short: "Show schedule details and its last run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(_ *env, database *db.DB, store *schedule.Store) error {
				sched, err := findSchedule(store, args[0])
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "ID: %d\n", sched.ID)
				fmt.Fprintf(out, "Name: %s\n", sched.Name)
				if sched.Description != "" {
					fmt.Fprintf(out, "Description: %s\n", sched.Description)
				}
				fmt.Fprintf(out, "Cron: %s\n", sched.CronExpr)
				fmt.Fprintf(out, "Scenario: %s\n", sched.Scenario)
				fmt.Fprintf(out, "Enabled: %v\n", sched.Enabled)
				if sched.NextRunTime != nil {
					fmt.Fprintf(out, "Next run: %s\n", sched.NextRunTime.Format("2006-01-02 15:04:05"))
				}

				if len(sched.Params) > 0 {
					fmt.Fprintln(out, "\nParameters:")
					for _, k := range sortedKeys(sched.Params) {
						fmt.Fprintf(out, "  %s: %v\n", k, sched.Params[k])
					}
				}

				if sched.LastRunID != nil {
					run, err := database.GetRun(*sched.LastRunID)
					if err == nil {
						fmt.Fprintf(out, "\nLast run: #%d at %s, %s\n",
							run.ID, run.StartTime.Format("2006-01-02 15:04:05"), run.GetStatus())
						if run.Error != "" {
							fmt.Fprintf(out, "  %s\n", run.Error)
						}
					}
				}
				return nil
			})
		},
	}
}

func scheduleRemoveCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "remove [id|name]",
		Short: "Remove a schedule",
		Long: `Remove a schedule by ID or name.

Examples:
  pwmbench schedule remove 1
  pwmbench schedule remove nightly-duty --yes`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(_ *env, _ *db.DB, store *schedule.Store) error {
				sched, err := findSchedule(store, args[0])
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if !yes && !confirm(cmd.InOrStdin(), out, fmt.Sprintf("Delete schedule '%s' (ID: %d)?", sched.Name, sched.ID)) {
					fmt.Fprintln(out, "Cancelled")
					return nil
				}

				if err := store.Delete(sched.ID); err != nil {
					return fmt.Errorf("failed to delete schedule: %w", err)
				}
				fmt.Fprintf(out, "Deleted schedule '%s'\n", sched.Name)
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")

	return cmd
}

func scheduleToggleCmd(verb string, enable bool) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " [id|name]",
		Short: strings.ToUpper(verb[:1]) + verb[1:] + " a schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(_ *env, _ *db.DB, store *schedule.Store) error {
				sched, err := findSchedule(store, args[0])
				if err != nil {
					return err
				}

				toggle := store.Disable
				if enable {
					toggle = store.Enable
				}
				if err := toggle(sched.ID); err != nil {
					return fmt.Errorf("failed to %s schedule: %w", verb, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%sd schedule '%s'\n", strings.ToUpper(verb[:1])+verb[1:], sched.Name)
				return nil
			})
		},
	}
}

func scheduleRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run [id|name]",
		Short: "Run a schedule once now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(e *env, database *db.DB, store *schedule.Store) error {
				sched, err := findSchedule(store, args[0])
				if err != nil {
					return err
				}

				ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
				defer stop()

				runner := schedule.NewRunner(database, e.cfg.Bench, e.logger)
				run, err := runner.Execute(ctx, sched)
				if run != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "Run #%d: %s\n", run.ID, run.GetStatus())
				}
				return err
			})
		},
	}
}

func scheduleStartCmd() *cobra.Command {
	var checkInterval time.Duration

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the scheduler daemon",
		Long: `Start the scheduler in the foreground. It loads every enabled schedule,
runs scenarios on their cron expressions and records the results until
interrupted. Schedules whose next run has passed are picked up every
--check-interval.

Examples:
  pwmbench schedule start
  pwmbench schedule start --check-interval 30s --log-format json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(func(e *env, database *db.DB, _ *schedule.Store) error {
				runner := schedule.NewRunner(database, e.cfg.Bench, e.logger)
				if err := runner.Start(); err != nil {
					return fmt.Errorf("failed to start scheduler: %w", err)
				}

				ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
				defer stop()

				ticker := time.NewTicker(checkInterval)
				defer ticker.Stop()

				fmt.Fprintln(cmd.OutOrStdout(), "Scheduler started. Press Ctrl+C to stop.")
				for {
					select {
					case <-ctx.Done():
						e.logger.Info("received shutdown signal")
						runner.Stop()
						return nil
					case <-ticker.C:
						if err := runner.CheckDue(); err != nil {
							e.logger.WithError(err).Error("failed to check due schedules")
						}
					}
				}
			})
		},
	}

	cmd.Flags().DurationVar(&checkInterval, "check-interval", 60*time.Second, "Interval to check for overdue schedules")

	return cmd
}

func confirm(in io.Reader, out io.Writer, prompt string) bool {
	fmt.Fprintf(out, "%s [y/N] ", prompt)
	line, _ := bufio.NewReader(in).ReadString('\n')
	return strings.EqualFold(strings.TrimSpace(line), "y")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
