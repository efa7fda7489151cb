package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/user/cisaudit/pkg/engine"
)

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteStore opens or creates a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS reports (
		seq          INTEGER PRIMARY KEY AUTOINCREMENT,
		id           TEXT NOT NULL UNIQUE,
		generated_at TEXT NOT NULL,
		score        REAL NOT NULL,
		incomplete   INTEGER NOT NULL DEFAULT 0,
		counts       TEXT NOT NULL DEFAULT '{}',
		report       TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_reports_generated ON reports(generated_at DESC);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveReport stores a report under a fresh id.
func (s *SQLiteStore) SaveReport(ctx context.Context, report engine.Report) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	body, err := json.Marshal(report)
	if err != nil {
		return Record{}, fmt.Errorf("encode report: %w", err)
	}
	counts, err := json.Marshal(report.Counts)
	if err != nil {
		return Record{}, fmt.Errorf("encode counts: %w", err)
	}

	rec := Record{
		ID:          uuid.NewString(),
		GeneratedAt: report.GeneratedAt.UTC().Format(time.RFC3339Nano),
		Score:       report.Score,
		Incomplete:  report.Incomplete,
		Counts:      report.Counts,
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO reports (id, generated_at, score, incomplete, counts, report) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.GeneratedAt, rec.Score, boolToInt(rec.Incomplete), string(counts), string(body),
	)
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}

// GetReport retrieves a report by id.
func (s *SQLiteStore) GetReport(ctx context.Context, id string) (Record, engine.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT id, generated_at, score, incomplete, counts, report FROM reports WHERE id = ?`, id)
	rec, report, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, engine.Report{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rec, report, err
}

// LatestReports returns up to n reports, newest first.
func (s *SQLiteStore) LatestReports(ctx context.Context, n int) ([]Record, []engine.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, generated_at, score, incomplete, counts, report FROM reports ORDER BY seq DESC LIMIT ?`, n)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var recs []Record
	var reports []engine.Report
	for rows.Next() {
		rec, report, err := scanReport(rows)
		if err != nil {
			return nil, nil, err
		}
		recs = append(recs, rec)
		reports = append(reports, report)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	if len(recs) == 0 {
		return nil, nil, ErrNotFound
	}
	return recs, reports, nil
}

// ListReports returns report summaries, newest first. limit <= 0 means all.
func (s *SQLiteStore) ListReports(ctx context.Context, limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, generated_at, score, incomplete, counts FROM reports ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []Record
	for rows.Next() {
		var rec Record
		var incomplete int
		var counts string
		if err := rows.Scan(&rec.ID, &rec.GeneratedAt, &rec.Score, &incomplete, &counts); err != nil {
			return nil, err
		}
		rec.Incomplete = incomplete != 0
		if err := json.Unmarshal([]byte(counts), &rec.Counts); err != nil {
			return nil, fmt.Errorf("decode counts %s: %w", rec.ID, err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanReport(row scanner) (Record, engine.Report, error) {
	var rec Record
	var incomplete int
	var counts, body string
	if err := row.Scan(&rec.ID, &rec.GeneratedAt, &rec.Score, &incomplete, &counts, &body); err != nil {
		return Record{}, engine.Report{}, err
	}
	rec.Incomplete = incomplete != 0
	if err := json.Unmarshal([]byte(counts), &rec.Counts); err != nil {
		return Record{}, engine.Report{}, fmt.Errorf("decode counts %s: %w", rec.ID, err)
	}

	var report engine.Report
	if err := json.Unmarshal([]byte(body), &report); err != nil {
		return Record{}, engine.Report{}, fmt.Errorf("decode report %s: %w", rec.ID, err)
	}
	return rec, report, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
