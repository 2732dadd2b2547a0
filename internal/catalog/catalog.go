// Package catalog records generation runs and the traces they wrote in a
// local SQLite database.
package catalog

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/scttfrdmn/collective-traffic-gen/internal/errors"
	"github.com/scttfrdmn/collective-traffic-gen/internal/types"
)

// Run statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Run is one generation run.
type Run struct {
	ID          string
	GrammarPath string
	Model       types.Model
	Devices     int
	Iterations  int
	Seed        uint64
	Status      string
	Error       string
	Traces      int
	Descriptors int
	StartedAt   time.Time
	FinishedAt  time.Time
}

// Trace is one trace file written by a run.
type Trace struct {
	RunID       string
	Iteration   int
	NodeID      string
	Mode        types.Mode
	Group       int
	Port        int
	Phases      int
	Descriptors int
	Location    string
}

// Catalog manages the run catalog database.
type Catalog struct {
	db     *sql.DB
	dbPath string
}

// Open opens or creates the catalog at path.
func Open(path string) (*Catalog, error) {
	if path == "" {
		return nil, errors.NewConfigError("Open", "catalog path cannot be empty", nil)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errors.NewConfigError("Open", "failed to create catalog directory", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_timeout=30000&_journal_mode=WAL")
	if err != nil {
		return nil, errors.NewConfigError("Open", "failed to open database", err)
	}

	c := &Catalog{db: db, dbPath: path}
	if err := c.initializeSchema(); err != nil {
		db.Close()
		return nil, errors.NewConfigError("Open", "failed to initialize database schema", err)
	}

	return c, nil
}

// initializeSchema creates the database tables if they don't exist.
func (c *Catalog) initializeSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		grammar_path TEXT,
		model TEXT,
		devices INTEGER,
		iterations INTEGER,
		seed TEXT,
		status TEXT,
		error_message TEXT,
		trace_count INTEGER DEFAULT 0,
		descriptor_count INTEGER DEFAULT 0,
		started_at INTEGER,
		finished_at INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

	CREATE TABLE IF NOT EXISTS traces (
		run_id TEXT NOT NULL,
		iteration INTEGER NOT NULL,
		node_id TEXT NOT NULL,
		mode TEXT,
		group_index INTEGER NOT NULL,
		port INTEGER,
		phases INTEGER,
		descriptors INTEGER,
		location TEXT,
		PRIMARY KEY (run_id, node_id, group_index)
	);

	CREATE INDEX IF NOT EXISTS idx_traces_run ON traces(run_id, iteration);
	`

	if _, err := c.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create database schema: %w", err)
	}

	return nil
}

// BeginRun stores a new run in the running state.
func (c *Catalog) BeginRun(run Run) error {
	if run.Status == "" {
		run.Status = StatusRunning
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}

	query := `
	INSERT OR REPLACE INTO runs (
		run_id, grammar_path, model, devices, iterations, seed, status, error_message, started_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.Exec(query,
		run.ID, run.GrammarPath, string(run.Model), run.Devices, run.Iterations,
		strconv.FormatUint(run.Seed, 10), run.Status, run.Error, run.StartedAt.Unix(),
	)
	if err != nil {
		return errors.NewConfigError("BeginRun", "failed to store run", err)
	}
	return nil
}

// UpdateRunHeader records the header values once the grammar has been read.
func (c *Catalog) UpdateRunHeader(runID string, model types.Model, devices, iterations int) error {
	_, err := c.db.Exec(`UPDATE runs SET model = ?, devices = ?, iterations = ? WHERE run_id = ?`,
		string(model), devices, iterations, runID)
	if err != nil {
		return errors.NewConfigError("UpdateRunHeader", "failed to update run", err)
	}
	return nil
}

// RecordTrace stores one written trace.
func (c *Catalog) RecordTrace(trace Trace) error {
	query := `
	INSERT OR REPLACE INTO traces (
		run_id, iteration, node_id, mode, group_index, port, phases, descriptors, location
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.Exec(query,
		trace.RunID, trace.Iteration, trace.NodeID, string(trace.Mode), trace.Group,
		trace.Port, trace.Phases, trace.Descriptors, trace.Location,
	)
	if err != nil {
		return errors.NewConfigError("RecordTrace", "failed to store trace", err)
	}
	return nil
}

// FinishRun marks a run completed, or failed when runErr is set, and stores
// its trace totals.
func (c *Catalog) FinishRun(runID string, runErr error) error {
	status, message := StatusCompleted, ""
	if runErr != nil {
		status, message = StatusFailed, runErr.Error()
	}

	query := `
	UPDATE runs SET
		status = ?,
		error_message = ?,
		finished_at = ?,
		trace_count = (SELECT COUNT(*) FROM traces WHERE run_id = ?),
		descriptor_count = (SELECT COALESCE(SUM(descriptors), 0) FROM traces WHERE run_id = ?)
	WHERE run_id = ?
	`

	res, err := c.db.Exec(query, status, message, time.Now().Unix(), runID, runID, runID)
	if err != nil {
		return errors.NewConfigError("FinishRun", "failed to update run", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.NewConfigError("FinishRun", fmt.Sprintf("run %s not found", runID), nil)
	}
	return nil
}

// ListRuns returns the most recent runs first. A non-positive limit returns
// every run.
func (c *Catalog) ListRuns(limit int) ([]Run, error) {
	query := `
	SELECT run_id, grammar_path, model, devices, iterations, seed, status, error_message,
		   trace_count, descriptor_count, started_at, COALESCE(finished_at, 0)
	FROM runs
	ORDER BY started_at DESC, rowid DESC
	`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := c.db.Query(query, args...)
	if err != nil {
		return nil, errors.NewConfigError("ListRuns", "failed to query runs", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		var model, seed string
		var startedAt, finishedAt int64

		err := rows.Scan(
			&run.ID, &run.GrammarPath, &model, &run.Devices, &run.Iterations, &seed, &run.Status, &run.Error,
			&run.Traces, &run.Descriptors, &startedAt, &finishedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}

		run.Model = types.Model(model)
		if run.Seed, err = strconv.ParseUint(seed, 10, 64); err != nil {
			return nil, fmt.Errorf("invalid seed %q for run %s: %w", seed, run.ID, err)
		}
		run.StartedAt = time.Unix(startedAt, 0)
		if finishedAt > 0 {
			run.FinishedAt = time.Unix(finishedAt, 0)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating run rows: %w", err)
	}
	return runs, nil
}

// ListTraces returns the traces of a run in write order.
func (c *Catalog) ListTraces(runID string) ([]Trace, error) {
	query := `
	SELECT run_id, iteration, node_id, mode, group_index, port, phases, descriptors, location
	FROM traces
	WHERE run_id = ?
	ORDER BY iteration, port
	`

	rows, err := c.db.Query(query, runID)
	if err != nil {
		return nil, errors.NewConfigError("ListTraces", "failed to query traces", err)
	}
	defer rows.Close()

	var traces []Trace
	for rows.Next() {
		var trace Trace
		var mode string
		err := rows.Scan(
			&trace.RunID, &trace.Iteration, &trace.NodeID, &mode, &trace.Group,
			&trace.Port, &trace.Phases, &trace.Descriptors, &trace.Location,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trace row: %w", err)
		}
		trace.Mode = types.Mode(mode)
		traces = append(traces, trace)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trace rows: %w", err)
	}
	return traces, nil
}

// Close closes the database connection.
func (c *Catalog) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Path returns the path to the catalog database.
func (c *Catalog) Path() string {
	return c.dbPath
}

// Size returns the size of the database file in bytes.
func (c *Catalog) Size() (int64, error) {
	info, err := os.Stat(c.dbPath)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
