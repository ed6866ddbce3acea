package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mscrnt/pwmbench/pkg/db"
	"github.com/mscrnt/pwmbench/pkg/harness"
	"github.com/mscrnt/pwmbench/pkg/scenario"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// DefaultTimeout bounds a single scheduled run
const DefaultTimeout = 10 * time.Minute

// Runner manages scheduled scenario executions
type Runner struct {
	cron     *cron.Cron
	store    *Store
	database *db.DB
	bench    harness.Config
	jobs     map[int64]cron.EntryID
	mu       sync.RWMutex
	wg       sync.WaitGroup
	logger   logrus.FieldLogger
	ctx      context.Context
	cancel   context.CancelFunc

	// Timeout bounds each run
	Timeout time.Duration
}

// NewRunner creates a new schedule runner. Every run builds a fresh bench
// from bench.
func NewRunner(database *db.DB, bench harness.Config, logger logrus.FieldLogger) *Runner {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Runner{
		cron:     cron.New(cron.WithParser(parser)),
		store:    NewStore(database),
		database: database,
		bench:    bench,
		jobs:     make(map[int64]cron.EntryID),
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		Timeout:  DefaultTimeout,
	}
}

// Store returns the schedule store
func (r *Runner) Store() *Store {
	return r.store
}

// Start registers every enabled schedule and starts the scheduler
func (r *Runner) Start() error {
	r.logger.Info("starting scheduler")

	enabled := true
	schedules, err := r.store.List(Filter{Enabled: &enabled})
	if err != nil {
		return fmt.Errorf("failed to load schedules: %w", err)
	}

	for _, schedule := range schedules {
		if err := r.registerSchedule(schedule); err != nil {
			r.logger.WithError(err).WithField("schedule", schedule.Name).Warn("failed to register schedule")
		}
	}

	r.cron.Start()

	r.mu.RLock()
	active := len(r.jobs)
	r.mu.RUnlock()
	r.logger.WithField("active", active).Info("scheduler started")
	return nil
}

// Stop stops the scheduler and waits for running jobs
func (r *Runner) Stop() {
	r.logger.Info("stopping scheduler")

	r.cancel()
	<-r.cron.Stop().Done()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("all jobs completed")
	case <-time.After(r.Timeout):
		r.logger.Warn("timeout waiting for jobs to complete")
	}
}

// RegisterSchedule adds a schedule to the runner
func (r *Runner) RegisterSchedule(scheduleID int64) error {
	schedule, err := r.store.Get(scheduleID)
	if err != nil {
		return err
	}

	return r.registerSchedule(schedule)
}

// UnregisterSchedule removes a schedule from the runner
func (r *Runner) UnregisterSchedule(scheduleID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entryID, exists := r.jobs[scheduleID]; exists {
		r.cron.Remove(entryID)
		delete(r.jobs, scheduleID)
		r.logger.WithField("schedule_id", scheduleID).Info("unregistered schedule")
	}
}

// RefreshSchedule re-reads a schedule and re-registers it if enabled
func (r *Runner) RefreshSchedule(scheduleID int64) error {
	r.UnregisterSchedule(scheduleID)

	schedule, err := r.store.Get(scheduleID)
	if err != nil {
		return err
	}

	if schedule.Enabled {
		return r.registerSchedule(schedule)
	}

	return nil
}

func (r *Runner) registerSchedule(schedule *Schedule) error {
	if !schedule.Enabled {
		return nil
	}

	entryID, err := r.cron.AddFunc(schedule.CronExpr, r.createJob(schedule))
	if err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}

	r.mu.Lock()
	r.jobs[schedule.ID] = entryID
	r.mu.Unlock()

	r.logger.WithFields(logrus.Fields{
		"schedule": schedule.Name,
		"cron":     schedule.CronExpr,
	}).Info("registered schedule")

	return nil
}

func (r *Runner) createJob(schedule *Schedule) func() {
	return func() {
		if r.ctx.Err() != nil {
			return
		}
		r.dispatch(schedule)
	}
}

// dispatch runs schedule in the background
func (r *Runner) dispatch(schedule *Schedule) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if _, err := r.Execute(r.ctx, schedule); err != nil {
			r.logger.WithError(err).WithField("schedule", schedule.Name).Error("scheduled run failed")
		}
	}()
}

// Execute runs a schedule's scenario now, records the run and moves the
// schedule forward
func (r *Runner) Execute(ctx context.Context, schedule *Schedule) (run *db.Run, err error) {
	log := r.logger.WithField("schedule", schedule.Name)
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic in schedule %s: %v", schedule.Name, p)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	log.Info("executing scheduled job")
	result, runErr := scenario.Execute(ctx, schedule.Scenario, r.bench, schedule.Params, log)
	if runErr != nil && result.StartTime.IsZero() {
		return nil, runErr
	}

	var units map[string]string
	if s, err := scenario.Get(schedule.Scenario); err == nil {
		units = db.Units(s)
	}

	run, err = r.database.RecordScenario(schedule.Scenario, schedule.Params, r.bench, result, units)
	if err != nil {
		return nil, fmt.Errorf("failed to record run: %w", err)
	}

	if err := r.store.UpdateLastRun(schedule.ID, run.ID); err != nil {
		log.WithError(err).Warn("failed to update schedule last run")
	}

	log.WithFields(logrus.Fields{
		"run_id":   run.ID,
		"success":  result.Success,
		"duration": result.Duration,
	}).Info("completed scheduled run")

	return run, runErr
}

// CheckDue starts every overdue schedule immediately
func (r *Runner) CheckDue() error {
	schedules, err := r.store.GetDue()
	if err != nil {
		return fmt.Errorf("failed to get due schedules: %w", err)
	}

	for _, schedule := range schedules {
		r.logger.WithField("schedule", schedule.Name).Info("running overdue schedule")
		r.dispatch(schedule)
	}

	return nil
}

// ListJobs returns information about all scheduled jobs
func (r *Runner) ListJobs() []cron.Entry {
	return r.cron.Entries()
}
