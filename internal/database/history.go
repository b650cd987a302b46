package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/pagediff/internal/model"
)

// DBFileName is the name of the history database inside the database
// directory.
const DBFileName = "pagediff.db"

// storedTimeFormat is fixed width so that started_at sorts as text.
const storedTimeFormat = "2006-01-02T15:04:05.000000000Z"

// HistoryDB provides SQLite-based storage for past comparison runs.
// Every run is stored with its summary counts and the full report of each
// document so that two runs can be diffed later.
//
// Design decision: We use a single database file for all runs rather than
// one file per run. This keeps "latest two runs" a single ordered query and
// makes backup a file copy.
type HistoryDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures HistoryDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging for better concurrent performance.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Run is the stored summary of one comparison run.
type Run struct {
	// ID is the unique identifier of the run (a UUID).
	ID string `json:"id"`

	// StartedAt is when the run started.
	StartedAt time.Time `json:"started_at"`

	// Threshold is the pass threshold the run was classified with.
	Threshold float64 `json:"threshold"`

	// DPI is the rendering resolution.
	DPI int `json:"dpi"`

	// Total, Pass, Warn and Error are the document counts of the run.
	Total int `json:"total"`
	Pass  int `json:"pass"`
	Warn  int `json:"warn"`
	Error int `json:"error"`
}

// Open opens or creates a HistoryDB in the specified directory.
// If CreateIfNotExists is true, the directory and database file are created.
// If CreateIfNotExists is false and the database doesn't exist, ErrNotFound is
// returned.
func Open(dbDir string, opts Options) (*HistoryDB, error) {
	dbPath := filepath.Join(dbDir, DBFileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("%w at %s (run 'pagediff compare' first)", ErrNotFound, dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// mode=rw refuses to create a missing file, mode=rwc allows it.
	var dsn string
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	} else {
		dsn = dbPath + "?mode=rw"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	hdb := &HistoryDB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := hdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return hdb, nil
}

// Close closes the database connection.
func (hdb *HistoryDB) Close() error {
	return hdb.db.Close()
}

// Path returns the database file path.
func (hdb *HistoryDB) Path() string {
	return hdb.dbPath
}

// createTables creates the database schema if it doesn't exist.
func (hdb *HistoryDB) createTables() error {
	schema := `
	-- Runs store one row per comparison run
	CREATE TABLE IF NOT EXISTS runs (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		started_at DATETIME NOT NULL,
		threshold REAL NOT NULL,
		dpi INTEGER NOT NULL,
		total INTEGER NOT NULL,
		pass INTEGER NOT NULL,
		warn INTEGER NOT NULL,
		error INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

	-- Documents store the report of every document in a run
	CREATE TABLE IF NOT EXISTS documents (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES runs(id),
		position INTEGER NOT NULL,
		name TEXT NOT NULL,
		ok INTEGER NOT NULL,
		error TEXT,
		error_kind TEXT,
		min_ssim REAL NOT NULL,
		mean_ssim REAL NOT NULL,
		report_json TEXT NOT NULL,
		UNIQUE(run_id, name)
	);

	CREATE INDEX IF NOT EXISTS idx_documents_run ON documents(run_id);
	CREATE INDEX IF NOT EXISTS idx_documents_name ON documents(name);
	`

	_, err := hdb.db.ExecContext(context.Background(), schema)
	return err
}

// SaveRun stores a run and the reports of its documents in one transaction.
// Reports are stored in the given order and returned in that order by
// GetRunDocuments.
func (hdb *HistoryDB) SaveRun(ctx context.Context, run Run, reports []*model.FileReport) (err error) {
	if run.ID == "" {
		return ErrEmptyRunID
	}

	tx, err := hdb.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
	INSERT INTO runs (id, started_at, threshold, dpi, total, pass, warn, error)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		run.StartedAt.UTC().Format(storedTimeFormat),
		run.Threshold,
		run.DPI,
		run.Total,
		run.Pass,
		run.Warn,
		run.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO documents (run_id, position, name, ok, error, error_kind, min_ssim, mean_ssim, report_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare document insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range reports {
		reportJSON, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("failed to marshal report for %s: %w", r.Name, err)
		}
		if _, err := stmt.ExecContext(ctx,
			run.ID, i, r.Name, r.OK, r.Error, string(r.ErrorKind),
			r.MinSSIM, r.MeanSSIM, string(reportJSON),
		); err != nil {
			return fmt.Errorf("failed to save document %s: %w", r.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}

// runColumns is the column list scanned by scanRun.
const runColumns = `id, started_at, threshold, dpi, total, pass, warn, error`

// ListRuns returns all stored runs, newest first.
func (hdb *HistoryDB) ListRuns(ctx context.Context) ([]Run, error) {
	return hdb.queryRuns(ctx, `SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, seq DESC`)
}

// GetLatestRuns returns at most n runs, newest first.
func (hdb *HistoryDB) GetLatestRuns(ctx context.Context, n int) ([]Run, error) {
	if n <= 0 {
		return nil, nil
	}
	return hdb.queryRuns(ctx, `SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, seq DESC LIMIT ?`, n)
}

// GetRun retrieves a run by its ID. Returns nil if no such run exists.
func (hdb *HistoryDB) GetRun(ctx context.Context, id string) (*Run, error) {
	row := hdb.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return &run, nil
}

// GetRunDocuments returns the document reports of a run in the order they
// were saved.
func (hdb *HistoryDB) GetRunDocuments(ctx context.Context, runID string) ([]*model.FileReport, error) {
	rows, err := hdb.db.QueryContext(ctx, `
	SELECT report_json FROM documents
	WHERE run_id = ?
	ORDER BY position
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get run documents: %w", err)
	}
	defer rows.Close()

	var reports []*model.FileReport
	for rows.Next() {
		var reportJSON string
		if err := rows.Scan(&reportJSON); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}

		var report model.FileReport
		if err := json.Unmarshal([]byte(reportJSON), &report); err != nil {
			return nil, fmt.Errorf("failed to parse document report: %w", err)
		}
		reports = append(reports, &report)
	}

	return reports, rows.Err()
}

// DeleteRun removes a run and its documents. Deleting an unknown run is not
// an error.
func (hdb *HistoryDB) DeleteRun(ctx context.Context, id string) error {
	tx, err := hdb.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE run_id = ?`, id); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to delete documents: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to delete run: %w", err)
	}
	return tx.Commit()
}

func (hdb *HistoryDB) queryRuns(ctx context.Context, query string, args ...any) ([]Run, error) {
	rows, err := hdb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// rowScanner is implemented by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(s rowScanner) (Run, error) {
	var run Run
	var startedAt string
	if err := s.Scan(&run.ID, &startedAt, &run.Threshold, &run.DPI,
		&run.Total, &run.Pass, &run.Warn, &run.Error); err != nil {
		return Run{}, err
	}
	run.StartedAt = parseTimestamp(startedAt)
	return run, nil
}

// timestampFormats contains the timestamp formats that SQLite may return.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	time.RFC3339Nano,          // Also matches storedTimeFormat
	time.RFC3339,              // Full RFC3339 format
	"2006-01-02 15:04:05",     // SQLite default datetime format
	"2006-01-02T15:04:05Z",    // ISO 8601 with Z suffix
	"2006-01-02T15:04:05",     // ISO 8601 without timezone
	"2006-01-02 15:04:05.999", // SQLite with milliseconds
}

// parseTimestamp attempts to parse a timestamp string using multiple formats.
// If parsing fails with all formats, returns zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
