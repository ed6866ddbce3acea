// Package schedule runs scenarios on cron expressions and records their
// results.
package schedule

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mscrnt/pwmbench/pkg/db"
	"github.com/robfig/cron/v3"
)

// parser accepts standard five-field cron expressions and descriptors such
// as @hourly
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// NextRun parses expr and returns its next activation after now
func NextRun(expr string, now time.Time) (time.Time, error) {
	s, err := parser.Parse(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid cron expression: %w", err)
	}
	return s.Next(now), nil
}

// Store handles schedule persistence
type Store struct {
	db *db.DB
}

// NewStore creates a new schedule store
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

const columns = `id, name, description, cron_expr, scenario, params, enabled,
	last_run_id, last_run_time, next_run_time, created_at, updated_at`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scan(s scanner) (*Schedule, error) {
	schedule := &Schedule{}
	var description sql.NullString
	err := s.Scan(
		&schedule.ID, &schedule.Name, &description,
		&schedule.CronExpr, &schedule.Scenario, &schedule.Params,
		&schedule.Enabled, &schedule.LastRunID, &schedule.LastRunTime,
		&schedule.NextRunTime, &schedule.CreatedAt, &schedule.UpdatedAt,
	)
	schedule.Description = description.String
	return schedule, err
}

// Create creates a new schedule
func (s *Store) Create(schedule *Schedule) error {
	now := time.Now()
	nextRun, err := NextRun(schedule.CronExpr, now)
	if err != nil {
		return err
	}
	schedule.NextRunTime = &nextRun
	schedule.CreatedAt = now
	schedule.UpdatedAt = now

	result, err := s.db.Conn().Exec(
		`INSERT INTO schedules (name, description, cron_expr, scenario, params, enabled, next_run_time, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		schedule.Name, schedule.Description, schedule.CronExpr, schedule.Scenario,
		schedule.Params, schedule.Enabled, schedule.NextRunTime,
		schedule.CreatedAt, schedule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create schedule: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	schedule.ID = id
	return nil
}

// Get retrieves a schedule by ID
func (s *Store) Get(id int64) (*Schedule, error) {
	schedule, err := scan(s.db.Conn().QueryRow(
		`SELECT `+columns+` FROM schedules WHERE id = ?`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("schedule %d: %w", id, db.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get schedule: %w", err)
	}
	return schedule, nil
}

// GetByName retrieves a schedule by name
func (s *Store) GetByName(name string) (*Schedule, error) {
	schedule, err := scan(s.db.Conn().QueryRow(
		`SELECT `+columns+` FROM schedules WHERE name = ?`, name,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("schedule %q: %w", name, db.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get schedule: %w", err)
	}
	return schedule, nil
}

// List retrieves schedules based on filters, sorted by name
func (s *Store) List(filter Filter) ([]*Schedule, error) {
	query := `SELECT ` + columns + ` FROM schedules WHERE 1=1`
	args := []interface{}{}

	if filter.Scenario != "" {
		query += " AND scenario = ?"
		args = append(args, filter.Scenario)
	}

	if filter.Enabled != nil {
		query += " AND enabled = ?"
		args = append(args, *filter.Enabled)
	}

	query += " ORDER BY name"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)

		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	return s.query(query, args...)
}

func (s *Store) query(query string, args ...interface{}) ([]*Schedule, error) {
	rows, err := s.db.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var schedules []*Schedule
	for rows.Next() {
		schedule, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan schedule: %w", err)
		}
		schedules = append(schedules, schedule)
	}

	return schedules, rows.Err()
}

// Update updates a schedule and recalculates its next run
func (s *Store) Update(schedule *Schedule) error {
	now := time.Now()
	nextRun, err := NextRun(schedule.CronExpr, now)
	if err != nil {
		return err
	}
	schedule.NextRunTime = &nextRun
	schedule.UpdatedAt = now

	_, err = s.db.Conn().Exec(
		`UPDATE schedules SET name = ?, description = ?, cron_expr = ?, scenario = ?,
		 params = ?, enabled = ?, next_run_time = ?, updated_at = ?
		 WHERE id = ?`,
		schedule.Name, schedule.Description, schedule.CronExpr, schedule.Scenario,
		schedule.Params, schedule.Enabled, schedule.NextRunTime, schedule.UpdatedAt,
		schedule.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update schedule: %w", err)
	}
	return nil
}

// UpdateLastRun records a finished run and moves the next run forward
func (s *Store) UpdateLastRun(scheduleID int64, runID int64) error {
	schedule, err := s.Get(scheduleID)
	if err != nil {
		return err
	}

	now := time.Now()
	nextRun, err := NextRun(schedule.CronExpr, now)
	if err != nil {
		return err
	}

	_, err = s.db.Conn().Exec(
		`UPDATE schedules SET last_run_id = ?, last_run_time = ?, next_run_time = ?
		 WHERE id = ?`,
		runID, now, nextRun, scheduleID,
	)
	if err != nil {
		return fmt.Errorf("failed to update last run: %w", err)
	}
	return nil
}

// Enable enables a schedule, counting its next run from now
func (s *Store) Enable(id int64) error {
	schedule, err := s.Get(id)
	if err != nil {
		return err
	}

	nextRun, err := NextRun(schedule.CronExpr, time.Now())
	if err != nil {
		return err
	}

	_, err = s.db.Conn().Exec(
		`UPDATE schedules SET enabled = 1, next_run_time = ? WHERE id = ?`,
		nextRun, id,
	)
	if err != nil {
		return fmt.Errorf("failed to enable schedule: %w", err)
	}
	return nil
}

// Disable disables a schedule
func (s *Store) Disable(id int64) error {
	return s.exec(id, `UPDATE schedules SET enabled = 0 WHERE id = ?`, "disable")
}

// Delete deletes a schedule
func (s *Store) Delete(id int64) error {
	return s.exec(id, `DELETE FROM schedules WHERE id = ?`, "delete")
}

func (s *Store) exec(id int64, stmt, verb string) error {
	res, err := s.db.Conn().Exec(stmt, id)
	if err != nil {
		return fmt.Errorf("failed to %s schedule: %w", verb, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("schedule %d: %w", id, db.ErrNotFound)
	}
	return nil
}

// GetDue returns all enabled schedules whose next run has passed
func (s *Store) GetDue() ([]*Schedule, error) {
	return s.query(
		`SELECT `+columns+` FROM schedules
		 WHERE enabled = 1 AND (next_run_time IS NULL OR next_run_time <= ?)
		 ORDER BY next_run_time`,
		time.Now(),
	)
}
