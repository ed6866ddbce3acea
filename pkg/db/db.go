package db

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// DB wraps the SQL database connection
type DB struct {
	conn *sql.DB
	path string
}

// Open creates or opens a SQLite database
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &DB{
		conn: conn,
		path: path,
	}

	if err := db.Migrate(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// Conn returns the underlying database connection
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Path returns the database file path
func (db *DB) Path() string {
	return db.path
}

// Migrate creates or updates the database schema
func (db *DB) Migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		scenario TEXT NOT NULL,
		params TEXT,
		bench TEXT,
		start_time DATETIME NOT NULL,
		end_time DATETIME,
		success BOOLEAN DEFAULT 0,
		error TEXT,
		details TEXT,
		sim_ticks INTEGER DEFAULT 0,
		sim_time_ns INTEGER DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER NOT NULL,
		metric TEXT NOT NULL,
		value REAL NOT NULL,
		unit TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS channels (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER NOT NULL,
		case_name TEXT,
		bus TEXT NOT NULL,
		bit INTEGER NOT NULL,
		kind TEXT NOT NULL,
		value REAL NOT NULL,
		stalled BOOLEAN DEFAULT 0,
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS schedules (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		description TEXT,
		cron_expr TEXT NOT NULL,
		scenario TEXT NOT NULL,
		params TEXT,
		enabled BOOLEAN DEFAULT 1,
		last_run_id INTEGER,
		last_run_time DATETIME,
		next_run_time DATETIME,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (last_run_id) REFERENCES runs(id) ON DELETE SET NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_scenario ON runs(scenario);
	CREATE INDEX IF NOT EXISTS idx_runs_start_time ON runs(start_time);
	CREATE INDEX IF NOT EXISTS idx_runs_success ON runs(success);
	CREATE INDEX IF NOT EXISTS idx_results_run_id ON results(run_id);
	CREATE INDEX IF NOT EXISTS idx_results_metric ON results(metric);
	CREATE INDEX IF NOT EXISTS idx_channels_run_id ON channels(run_id);
	CREATE INDEX IF NOT EXISTS idx_schedules_enabled ON schedules(enabled);
	CREATE INDEX IF NOT EXISTS idx_schedules_next_run ON schedules(next_run_time);

	CREATE TRIGGER IF NOT EXISTS update_runs_timestamp
	AFTER UPDATE ON runs
	BEGIN
		UPDATE runs SET updated_at = CURRENT_TIMESTAMP WHERE id = NEW.id;
	END;

	CREATE TRIGGER IF NOT EXISTS update_schedules_timestamp
	AFTER UPDATE ON schedules
	BEGIN
		UPDATE schedules SET updated_at = CURRENT_TIMESTAMP WHERE id = NEW.id;
	END;
	`

	_, err := db.conn.Exec(schema)
	return err
}

const runColumns = `id, scenario, params, bench, start_time, end_time, success,
	error, details, sim_ticks, sim_time_ns, created_at, updated_at`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(s scanner) (*Run, error) {
	run := &Run{}
	var errText sql.NullString
	err := s.Scan(
		&run.ID, &run.Scenario, &run.Params, &run.Bench, &run.StartTime,
		&run.EndTime, &run.Success, &errText, &run.Details, &run.SimTicks,
		&run.SimTimeNS, &run.CreatedAt, &run.UpdatedAt,
	)
	run.Error = errText.String
	return run, err
}

// CreateRun creates a new run record
func (db *DB) CreateRun(scenario string, params, bench JSONData) (*Run, error) {
	now := time.Now()
	run := &Run{
		Scenario:  scenario,
		Params:    params,
		Bench:     bench,
		StartTime: now,
		CreatedAt: now,
		UpdatedAt: now,
	}

	result, err := db.conn.Exec(
		`INSERT INTO runs (scenario, params, bench, start_time, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		run.Scenario, run.Params, run.Bench, run.StartTime, run.CreatedAt, run.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get last insert id: %w", err)
	}

	run.ID = id
	return run, nil
}

// UpdateRun updates a run record
func (db *DB) UpdateRun(run *Run) error {
	_, err := db.conn.Exec(
		`UPDATE runs SET
		 start_time = ?, end_time = ?, success = ?, error = ?, details = ?,
		 sim_ticks = ?, sim_time_ns = ?, updated_at = ?
		 WHERE id = ?`,
		run.StartTime, run.EndTime, run.Success, run.Error, run.Details,
		run.SimTicks, run.SimTimeNS, time.Now(), run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID
func (db *DB) GetRun(id int64) (*Run, error) {
	run, err := scanRun(db.conn.QueryRow(
		`SELECT `+runColumns+` FROM runs WHERE id = ?`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// DeleteRun removes a run with its results and channels
func (db *DB) DeleteRun(id int64) error {
	res, err := db.conn.Exec(`DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %d: %w", id, ErrNotFound)
	}
	return nil
}

// ListRuns retrieves runs based on filters, newest first
func (db *DB) ListRuns(filter RunFilter) ([]*Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE 1=1`
	args := []interface{}{}

	if filter.Scenario != "" {
		query += " AND scenario = ?"
		args = append(args, filter.Scenario)
	}

	if filter.StartTime != nil {
		query += " AND start_time >= ?"
		args = append(args, filter.StartTime)
	}

	if filter.EndTime != nil {
		query += " AND start_time <= ?"
		args = append(args, filter.EndTime)
	}

	if filter.Success != nil {
		query += " AND success = ?"
		args = append(args, *filter.Success)
	}

	query += " ORDER BY start_time DESC, id DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)

		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// CreateResults creates multiple result records in a transaction
func (db *DB) CreateResults(runID int64, metrics map[string]float64, units map[string]string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		// Only rollback if we haven't committed
		_ = tx.Rollback()
	}()

	stmt, err := tx.Prepare(
		`INSERT INTO results (run_id, metric, value, unit) VALUES (?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for metric, value := range metrics {
		unit, ok := units[metric]
		if !ok {
			unit = MetricUnit(metric)
		}
		if _, err := stmt.Exec(runID, metric, value, unit); err != nil {
			return fmt.Errorf("failed to insert result %s: %w", metric, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GetResults retrieves results for a run, sorted by metric
func (db *DB) GetResults(runID int64) ([]*Result, error) {
	rows, err := db.conn.Query(
		`SELECT id, run_id, metric, value, unit, created_at
		 FROM results WHERE run_id = ? ORDER BY metric`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get results: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanResults(rows)
}

// ListResults retrieves results based on filters
func (db *DB) ListResults(filter ResultFilter) ([]*Result, error) {
	query := `SELECT id, run_id, metric, value, unit, created_at
	          FROM results WHERE 1=1`
	args := []interface{}{}

	if filter.RunID != nil {
		query += " AND run_id = ?"
		args = append(args, *filter.RunID)
	}

	if filter.Metric != "" {
		query += " AND metric = ?"
		args = append(args, filter.Metric)
	}

	query += " ORDER BY created_at DESC, id DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)

		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanResults(rows)
}

func scanResults(rows *sql.Rows) ([]*Result, error) {
	var results []*Result
	for rows.Next() {
		result := &Result{}
		var unit sql.NullString
		err := rows.Scan(
			&result.ID, &result.RunID, &result.Metric,
			&result.Value, &unit, &result.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		result.Unit = unit.String
		results = append(results, result)
	}
	return results, rows.Err()
}

// CreateChannels stores per-bit measurements in a transaction
func (db *DB) CreateChannels(runID int64, channels []Channel) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(
		`INSERT INTO channels (run_id, case_name, bus, bit, kind, value, stalled)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, c := range channels {
		if _, err := stmt.Exec(runID, c.Case, c.Bus, c.Bit, c.Kind, c.Value, c.Stalled); err != nil {
			return fmt.Errorf("failed to insert channel %s[%d]: %w", c.Bus, c.Bit, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetChannels retrieves the per-bit measurements of a run in insertion
// order
func (db *DB) GetChannels(runID int64) ([]*Channel, error) {
	rows, err := db.conn.Query(
		`SELECT id, run_id, case_name, bus, bit, kind, value, stalled
		 FROM channels WHERE run_id = ? ORDER BY id`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get channels: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var channels []*Channel
	for rows.Next() {
		c := &Channel{}
		var caseName sql.NullString
		if err := rows.Scan(&c.ID, &c.RunID, &caseName, &c.Bus, &c.Bit, &c.Kind, &c.Value, &c.Stalled); err != nil {
			return nil, fmt.Errorf("failed to scan channel: %w", err)
		}
		c.Case = caseName.String
		channels = append(channels, c)
	}
	return channels, rows.Err()
}
