// # internal/history/store.go

// Package history persists one row per completed review: counts, source
// and timing only. Submitted source code is never written to disk.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const (
	driverName  = "sqlite"
	maxAttempts = 5

	defaultRecentLimit = 20
	maxRecentLimit     = 100
)

// Record is one persisted review outcome.
type Record struct {
	ID         string    `json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	Source     string    `json:"source"`
	LineCount  int       `json:"line_count"`
	Bugs       int       `json:"bugs"`
	Warnings   int       `json:"warnings"`
	Info       int       `json:"info"`
	Errors     int       `json:"errors"`
	Total      int       `json:"total"`
	DurationMS int64     `json:"duration_ms"`
}

// Known values for Record.Source.
const (
	SourceAPI    = "api"
	SourceUpload = "upload"
	SourceCLI    = "cli"
)

type Store struct {
	path string
	db   *sql.DB
	mu   sync.Mutex
}

func Open(path string) (*Store, error) {
	cleanPath := strings.TrimSpace(path)
	if cleanPath == "" {
		return nil, fmt.Errorf("history path must not be empty")
	}
	if info, err := os.Stat(cleanPath); err == nil && info.IsDir() {
		return nil, fmt.Errorf("history path %q is a directory, expected file", cleanPath)
	}

	dir := filepath.Dir(cleanPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history directory %q: %w", dir, err)
		}
	}

	// busy_timeout + WAL reduce lock conflicts between the recorder worker
	// and history reads.
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(2000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", cleanPath)
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite history %q: %w", cleanPath, err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite history %q: %w", cleanPath, err)
	}
	if err := EnsureSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize sqlite schema %q: %w", cleanPath, err)
	}

	return &Store{path: cleanPath, db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// Ping verifies the database is still reachable, for health checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Save persists one record. Missing identity fields are filled in: a fresh
// id, the current time, and the "api" source label.
func (s *Store) Save(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(rec.ID) == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if strings.TrimSpace(rec.Source) == "" {
		rec.Source = SourceAPI
	}

	query := `
INSERT INTO reviews (
  id, created_at_utc, source, line_count,
  bug_count, warning_count, info_count, error_count, total_count, duration_ms
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`
	return s.withRetry("save review", func() error {
		_, err := s.db.Exec(
			query,
			rec.ID,
			rec.CreatedAt.UTC().Format(time.RFC3339Nano),
			rec.Source,
			rec.LineCount,
			rec.Bugs,
			rec.Warnings,
			rec.Info,
			rec.Errors,
			rec.Total,
			rec.DurationMS,
		)
		return err
	})
}

// Recent returns the newest records, capped at 100. A non-positive limit
// means 20.
func (s *Store) Recent(limit int) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = defaultRecentLimit
	}
	if limit > maxRecentLimit {
		limit = maxRecentLimit
	}

	query := `
SELECT id, created_at_utc, source, line_count,
  bug_count, warning_count, info_count, error_count, total_count, duration_ms
FROM reviews
ORDER BY created_at_utc DESC, id DESC
LIMIT ?
`
	var rows *sql.Rows
	err := s.withRetry("load reviews", func() error {
		var qErr error
		rows, qErr = s.db.Query(query, limit)
		return qErr
	})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]Record, 0, limit)
	for rows.Next() {
		var (
			tsRaw string
			rec   Record
		)
		if err := rows.Scan(
			&rec.ID,
			&tsRaw,
			&rec.Source,
			&rec.LineCount,
			&rec.Bugs,
			&rec.Warnings,
			&rec.Info,
			&rec.Errors,
			&rec.Total,
			&rec.DurationMS,
		); err != nil {
			return nil, fmt.Errorf("scan review row: %w", err)
		}

		ts, err := time.Parse(time.RFC3339Nano, tsRaw)
		if err != nil {
			return nil, fmt.Errorf("parse review timestamp %q: %w", tsRaw, err)
		}
		rec.CreatedAt = ts.UTC()

		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate review rows: %w", err)
	}

	return records, nil
}

func (s *Store) withRetry(op string, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !isLockError(err) || attempt == maxAttempts {
			break
		}
		time.Sleep(time.Duration(attempt*25) * time.Millisecond)
	}
	return fmt.Errorf("%s: %w", op, lastErr)
}

func isLockError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "busy")
}
