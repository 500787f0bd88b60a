// Package requestlog persists a record of every AI generation request in a
// local SQLite database. The log is an optional diagnostic subsystem: if it
// cannot be opened the server keeps running without it.
package requestlog

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Statuses recorded per request.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// Record is one logged AI request.
type Record struct {
	ID         string `json:"id"`
	Stage      string `json:"stage"`
	Prompt     string `json:"prompt"`
	Response   string `json:"response"`
	Status     string `json:"status"`
	FailReason string `json:"fail_reason,omitempty"`
	ElapsedMS  int64  `json:"elapsed_ms"`
	CreatedAt  string `json:"created_at"`
}

// Store is the SQLite-backed request log.
type Store struct {
	db *sql.DB
}

// DefaultPath returns the database location used when STORYFORGE_DB is not
// set.
func DefaultPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".storyforge", "requests.db")
}

// Open opens (or creates) the request log database at path and runs the
// schema migration.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("requestlog: create data dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("requestlog: open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("requestlog: pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("requestlog: migration: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS ai_requests (
			id          TEXT PRIMARY KEY,
			stage       TEXT NOT NULL,
			prompt      TEXT NOT NULL,
			response    TEXT NOT NULL,
			status      TEXT NOT NULL,
			fail_reason TEXT,
			elapsed_ms  INTEGER NOT NULL DEFAULT 0,
			created_at  TEXT NOT NULL DEFAULT (datetime('now'))
		);

		CREATE INDEX IF NOT EXISTS idx_requests_created ON ai_requests(created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_requests_stage   ON ai_requests(stage);
	`)
	return err
}

// Add inserts one record. A blank ID gets a fresh UUID.
func (s *Store) Add(ctx context.Context, r Record) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ai_requests (id, stage, prompt, response, status, fail_reason, elapsed_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Stage, r.Prompt, r.Response, r.Status, r.FailReason, r.ElapsedMS,
	)
	if err != nil {
		return fmt.Errorf("requestlog: inserting record: %w", err)
	}
	return nil
}

// Recent returns up to n records, newest first.
func (s *Store) Recent(ctx context.Context, n int) ([]Record, error) {
	if n <= 0 {
		n = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, stage, prompt, response, status, COALESCE(fail_reason, ''), elapsed_ms, created_at
		FROM ai_requests
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("requestlog: querying records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.Stage, &r.Prompt, &r.Response, &r.Status,
			&r.FailReason, &r.ElapsedMS, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("requestlog: scanning record: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("requestlog: iterating records: %w", err)
	}
	return records, nil
}

// Count returns the total number of logged requests.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ai_requests`).Scan(&n); err != nil {
		return 0, fmt.Errorf("requestlog: counting records: %w", err)
	}
	return n, nil
}

// RecordRequest implements the gemini client's recorder contract. A nil
// *Store is a no-op sink, so callers never have to branch on whether the
// log came up.
func (s *Store) RecordRequest(ctx context.Context, stage, prompt, response, status, failReason string, elapsed time.Duration) {
	if s == nil {
		return
	}
	err := s.Add(ctx, Record{
		Stage:      stage,
		Prompt:     prompt,
		Response:   response,
		Status:     status,
		FailReason: failReason,
		ElapsedMS:  elapsed.Milliseconds(),
	})
	if err != nil {
		// Logging must never interfere with generation.
		log.Printf("WARNING: request log write failed: %v", err)
	}
}
