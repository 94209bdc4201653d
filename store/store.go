// Package store is the append-only request log: one row per case query and
// one per rendered result.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"github.com/use-agent/courtfetch/models"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schema string

// Store wraps the SQLite request log.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
// Use ":memory:" for a throwaway log.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// One connection: SQLite serializes writers anyway, and ":memory:" is
	// per connection.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA foreign_keys=ON",
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=10000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: %s: %w", pragma, err)
		}
	}

	s, err := New(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New applies the schema to an already open database.
func New(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// LogQuery records a submitted query and returns its id.
func (s *Store) LogQuery(ctx context.Context, q models.CaseQuery) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO requests (case_type, case_number, case_year, captcha_entered) VALUES (?, ?, ?, ?)`,
		q.CaseType, q.CaseNumber, q.CaseYear, q.CaptchaEntered,
	)
	if err != nil {
		return 0, fmt.Errorf("store: insert request: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("store: request id: %w", err)
	}
	return id, nil
}

// LogResult records the rendered result of query id.
func (s *Store) LogResult(ctx context.Context, requestID int64, resultHTML string) error {
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO results (request_id, result_html) VALUES (?, ?)`,
		requestID, resultHTML,
	); err != nil {
		return fmt.Errorf("store: insert result for request %d: %w", requestID, err)
	}
	return nil
}

// Result returns the latest logged result of query id. The boolean is false
// when none was logged.
func (s *Store) Result(ctx context.Context, requestID int64) (string, bool, error) {
	var html sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT result_html FROM results WHERE request_id = ? ORDER BY id DESC LIMIT 1`,
		requestID,
	).Scan(&html)
	switch {
	case err == sql.ErrNoRows:
		return "", false, nil
	case err != nil:
		return "", false, fmt.Errorf("store: result for request %d: %w", requestID, err)
	}
	return html.String, true, nil
}

// Recent returns up to limit queries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]models.QueryRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.case_type, r.case_number, r.case_year,
		       strftime('%Y-%m-%dT%H:%M:%SZ', r.timestamp),
		       EXISTS (SELECT 1 FROM results WHERE request_id = r.id)
		FROM requests r
		ORDER BY r.id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: recent queries: %w", err)
	}
	defer rows.Close()

	records := []models.QueryRecord{}
	for rows.Next() {
		var (
			rec models.QueryRecord
			ts  sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.CaseType, &rec.CaseNumber, &rec.CaseYear, &ts, &rec.HasResult); err != nil {
			return nil, fmt.Errorf("store: scan query: %w", err)
		}
		if ts.Valid {
			if t, err := time.Parse(time.RFC3339, ts.String); err == nil {
				rec.Timestamp = t
			}
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate queries: %w", err)
	}
	return records, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
