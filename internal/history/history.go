// Package history keeps an optional SQLite log of label applications.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// timeLayout is fixed-width so that text order matches time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Entry is one recorded apply attempt.
type Entry struct {
	ID         int64
	AppliedAt  time.Time
	ThreadID   string
	Label      string
	Source     string
	Confidence *float64
	Outcome    string
	Error      string
}

// Recorder is what the labeler writes to. A nil *Store is a valid no-op
// Recorder.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
}

// Store wraps a SQLite connection.
type Store struct {
	conn *sql.DB
	path string
}

// Open opens (or creates) the history database at path.
func Open(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create directory %s: %w", dir, err)
	}

	conn, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := conn.Exec(Schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return &Store{conn: conn, path: dbPath}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s == nil || s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

// Ping checks that the database is still reachable. A nil Store is
// always healthy.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.conn == nil {
		return nil
	}
	if err := s.conn.PingContext(ctx); err != nil {
		return fmt.Errorf("ping history database: %w", err)
	}
	return nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Record inserts e. AppliedAt defaults to now.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if s == nil {
		return nil
	}
	if e.AppliedAt.IsZero() {
		e.AppliedAt = time.Now()
	}

	var confidence sql.NullFloat64
	if e.Confidence != nil {
		confidence = sql.NullFloat64{Float64: *e.Confidence, Valid: true}
	}

	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO applications (applied_at, thread_id, label, source, confidence, outcome, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.AppliedAt.UTC().Format(timeLayout), e.ThreadID, e.Label, e.Source, confidence, e.Outcome, e.Error,
	)
	if err != nil {
		return fmt.Errorf("record application: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, applied_at, thread_id, label, source, confidence, outcome, error
		FROM applications
		ORDER BY applied_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e          Entry
			appliedAt  string
			confidence sql.NullFloat64
		)
		if err := rows.Scan(&e.ID, &appliedAt, &e.ThreadID, &e.Label, &e.Source, &confidence, &e.Outcome, &e.Error); err != nil {
			return nil, err
		}
		if e.AppliedAt, err = time.Parse(timeLayout, appliedAt); err != nil {
			return nil, fmt.Errorf("parse applied_at %q: %w", appliedAt, err)
		}
		if confidence.Valid {
			c := confidence.Float64
			e.Confidence = &c
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// CountByOutcome returns how many entries exist per outcome.
func (s *Store) CountByOutcome(ctx context.Context) (map[string]int, error) {
	rows, err := s.conn.QueryContext(ctx, "SELECT outcome, COUNT(*) FROM applications GROUP BY outcome")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			outcome string
			n       int
		)
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, err
		}
		counts[outcome] = n
	}
	return counts, rows.Err()
}
