package metadatastore

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mimir-aip/rfm-pipeline/pkg/models"
)

// ErrRunNotFound is returned by GetRun for an unknown ID
var ErrRunNotFound = errors.New("run not found")

// SQLiteStore archives run reports in a SQLite database
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-based storage instance
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Format: file:path?param=value
	dsn := fmt.Sprintf("file:%s?_busy_timeout=10000&_journal_mode=WAL&_synchronous=NORMAL", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// a single batch process writes; one connection avoids lock contention
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// retryOnBusy retries a database operation if it fails due to SQLITE_BUSY
func (s *SQLiteStore) retryOnBusy(operation func() error, maxRetries int) error {
	var err error
	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}
		if !strings.Contains(err.Error(), "SQLITE_BUSY") {
			return err
		}
		// Exponential backoff: 10ms, 20ms, 40ms, ...
		time.Sleep(time.Duration(10*(1<<uint(i))) * time.Millisecond)
	}
	return fmt.Errorf("operation failed after %d retries: %w", maxRetries, err)
}

// initSchema creates the database schema if it doesn't exist
func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		input TEXT NOT NULL,
		status TEXT NOT NULL,
		customers INTEGER NOT NULL,
		k INTEGER NOT NULL,
		test_r2 REAL,
		started_at DATETIME NOT NULL,
		finished_at DATETIME,
		data TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveRun inserts or replaces a run report
func (s *SQLiteStore) SaveRun(report *models.RunReport) error {
	if report == nil || report.ID == "" {
		return fmt.Errorf("run report must have an id")
	}
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}

	var testR2 sql.NullFloat64
	if report.Model != nil && report.Model.Test != nil {
		testR2 = sql.NullFloat64{Float64: report.Model.Test.R2Score, Valid: true}
	}
	var finished sql.NullTime
	if !report.FinishedAt.IsZero() {
		finished = sql.NullTime{Time: report.FinishedAt, Valid: true}
	}

	query := `
		INSERT OR REPLACE INTO runs (id, input, status, customers, k, test_r2, started_at, finished_at, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	err = s.retryOnBusy(func() error {
		_, err := s.db.Exec(query,
			report.ID,
			report.Input,
			string(report.Status),
			len(report.Segments),
			report.K,
			testR2,
			report.StartedAt,
			finished,
			string(data),
		)
		return err
	}, 5)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// GetRun retrieves a run report by ID
func (s *SQLiteStore) GetRun(id string) (*models.RunReport, error) {
	var data string
	err := s.db.QueryRow(`SELECT data FROM runs WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	var report models.RunReport
	if err := json.Unmarshal([]byte(data), &report); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run: %w", err)
	}
	return &report, nil
}

// ListRuns lists the most recent runs first; limit <= 0 lists all
func (s *SQLiteStore) ListRuns(limit int) ([]*models.RunReport, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(`SELECT data FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := make([]*models.RunReport, 0)
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		var report models.RunReport
		if err := json.Unmarshal([]byte(data), &report); err != nil {
			return nil, fmt.Errorf("failed to unmarshal run: %w", err)
		}
		runs = append(runs, &report)
	}
	return runs, rows.Err()
}

// DeleteRun deletes a run report
func (s *SQLiteStore) DeleteRun(id string) error {
	if _, err := s.db.Exec(`DELETE FROM runs WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	return nil
}
