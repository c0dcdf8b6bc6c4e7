package storage

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStorage implements Storage using SQLite, same driver and
// transaction-per-save shape as benchflow's SQLiteStorage.
type SQLiteStorage struct {
	db   *sql.DB
	path string
}

// NewSQLiteStorage opens (without yet initializing) a SQLite-backed Storage.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("storage: open database: %w", err)
	}
	return &SQLiteStorage{db: db, path: path}, nil
}

// Init creates the schema if it does not already exist.
func (s *SQLiteStorage) Init() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		task_set_hash TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		duration INTEGER NOT NULL,
		overall_pass_rate REAL NOT NULL,
		total_tokens INTEGER NOT NULL,
		total_cost REAL NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_runs_task_set_hash ON runs(task_set_hash);
	CREATE INDEX IF NOT EXISTS idx_runs_timestamp ON runs(timestamp);

	CREATE TABLE IF NOT EXISTS model_stats (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER NOT NULL,
		variant_id TEXT NOT NULL,
		pass_rate REAL NOT NULL,
		avg_score REAL NOT NULL,
		avg_attempts REAL NOT NULL,
		total_tokens INTEGER NOT NULL,
		total_cost REAL NOT NULL,
		timestamp DATETIME NOT NULL,
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_model_stats_run_id ON model_stats(run_id);
	CREATE INDEX IF NOT EXISTS idx_model_stats_variant_id ON model_stats(variant_id);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("storage: create schema: %w", err)
	}
	return nil
}

// Close closes the underlying database handle.
func (s *SQLiteStorage) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SaveRun inserts a run and its per-variant stats in one transaction.
func (s *SQLiteStorage) SaveRun(run StoredRun) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("storage: begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.Exec(`
		INSERT INTO runs (run_id, task_set_hash, timestamp, duration, overall_pass_rate, total_tokens, total_cost)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, run.RunID, run.TaskSetHash, run.Timestamp, run.Duration.Nanoseconds(), run.OverallPassRate, run.TotalTokens, run.TotalCost)
	if err != nil {
		return fmt.Errorf("storage: insert run: %w", err)
	}

	runID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("storage: get run id: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO model_stats (run_id, variant_id, pass_rate, avg_score, avg_attempts, total_tokens, total_cost, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("storage: prepare model_stats insert: %w", err)
	}
	defer stmt.Close()

	for _, ms := range run.ModelStats {
		if _, err := stmt.Exec(runID, ms.VariantID, ms.PassRate, ms.AvgScore, ms.AvgAttempts, ms.TotalTokens, ms.TotalCost, run.Timestamp); err != nil {
			return fmt.Errorf("storage: insert model_stats: %w", err)
		}
	}

	return tx.Commit()
}

// LatestRun returns the most recent run for a task-set hash, or nil if none.
func (s *SQLiteStorage) LatestRun(taskSetHash string) (*StoredRun, error) {
	row := s.db.QueryRow(`
		SELECT id, run_id, task_set_hash, timestamp, duration, overall_pass_rate, total_tokens, total_cost
		FROM runs
		WHERE task_set_hash = ?
		ORDER BY timestamp DESC
		LIMIT 1
	`, taskSetHash)

	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: query latest run: %w", err)
	}

	run.ModelStats, err = s.modelStatsForRun(run.ID)
	if err != nil {
		return nil, err
	}
	return run, nil
}

// RunsInRange returns every run whose timestamp falls within [start, end].
func (s *SQLiteStorage) RunsInRange(start, end time.Time) ([]StoredRun, error) {
	rows, err := s.db.Query(`
		SELECT id, run_id, task_set_hash, timestamp, duration, overall_pass_rate, total_tokens, total_cost
		FROM runs
		WHERE timestamp BETWEEN ? AND ?
		ORDER BY timestamp ASC
	`, start, end)
	if err != nil {
		return nil, fmt.Errorf("storage: query run range: %w", err)
	}
	defer rows.Close()

	var runs []StoredRun
	for rows.Next() {
		run, err := scanRows(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan run: %w", err)
		}
		run.ModelStats, err = s.modelStatsForRun(run.ID)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// History returns variant's pass-rate/score history across runs, oldest
// first, so internal/analyzer can fit a trend through it directly.
func (s *SQLiteStorage) History(variantID string, limit int) ([]ModelStatPoint, error) {
	query := `
		SELECT variant_id, pass_rate, avg_score, avg_attempts, total_tokens, total_cost, timestamp
		FROM model_stats
		WHERE variant_id = ?
		ORDER BY timestamp ASC
	`
	if limit > 0 {
		query = fmt.Sprintf("%s LIMIT %d", query, limit)
	}

	rows, err := s.db.Query(query, variantID)
	if err != nil {
		return nil, fmt.Errorf("storage: query history: %w", err)
	}
	defer rows.Close()

	var points []ModelStatPoint
	for rows.Next() {
		var p ModelStatPoint
		if err := rows.Scan(&p.VariantID, &p.PassRate, &p.AvgScore, &p.AvgAttempts, &p.TotalTokens, &p.TotalCost, &p.Timestamp); err != nil {
			return nil, fmt.Errorf("storage: scan history point: %w", err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// Cleanup deletes runs older than retentionDays together with their
// model_stats rows.
func (s *SQLiteStorage) Cleanup(retentionDays int) error {
	if retentionDays <= 0 {
		return fmt.Errorf("storage: retention days must be positive")
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	if _, err := s.db.Exec(`DELETE FROM model_stats WHERE run_id IN (SELECT id FROM runs WHERE timestamp < ?)`, cutoff); err != nil {
		return fmt.Errorf("storage: cleanup: %w", err)
	}
	_, err := s.db.Exec(`DELETE FROM runs WHERE timestamp < ?`, cutoff)
	if err != nil {
		return fmt.Errorf("storage: cleanup: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) modelStatsForRun(runID int64) ([]ModelStatPoint, error) {
	rows, err := s.db.Query(`
		SELECT variant_id, pass_rate, avg_score, avg_attempts, total_tokens, total_cost, timestamp
		FROM model_stats
		WHERE run_id = ?
		ORDER BY variant_id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("storage: query model_stats: %w", err)
	}
	defer rows.Close()

	var points []ModelStatPoint
	for rows.Next() {
		var p ModelStatPoint
		if err := rows.Scan(&p.VariantID, &p.PassRate, &p.AvgScore, &p.AvgAttempts, &p.TotalTokens, &p.TotalCost, &p.Timestamp); err != nil {
			return nil, fmt.Errorf("storage: scan model_stats: %w", err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*StoredRun, error) {
	var run StoredRun
	var durationNs int64
	err := row.Scan(&run.ID, &run.RunID, &run.TaskSetHash, &run.Timestamp, &durationNs, &run.OverallPassRate, &run.TotalTokens, &run.TotalCost)
	if err != nil {
		return nil, err
	}
	run.Duration = time.Duration(durationNs)
	return &run, nil
}

func scanRows(rows *sql.Rows) (*StoredRun, error) {
	return scanRun(rows)
}
