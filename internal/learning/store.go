// Package learning persists typo corrections the user made themselves, so
// the correction engine improves over time. The store is opt-in, written
// only off the request hot path, and every value passes through redaction
// before it reaches disk.
package learning

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/fakeyudi/shellguard/internal/redact"
)

// Store is a SQLite-backed table of learned (wrong, corrected) pairs.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS corrections (
	wrong      TEXT PRIMARY KEY,
	corrected  TEXT NOT NULL,
	hits       INTEGER NOT NULL DEFAULT 1,
	updated_at TEXT NOT NULL DEFAULT (datetime('now'))
);`

// Open creates or opens the store at path. The parent directory is created
// owner-only and the database file is forced to 0600.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating learning store directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("opening learning store: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing learning store: %w", err)
	}

	// sql.Open is lazy; the schema exec above created the file.
	if err := os.Chmod(path, 0o600); err != nil {
		db.Close()
		return nil, fmt.Errorf("restricting learning store permissions: %w", err)
	}
	return &Store{db: db}, nil
}

// Record upserts a learned pair, bumping the hit count on repeats. Both
// sides are redacted before they touch disk; a pair that redacts to the
// placeholder is dropped rather than stored.
func (s *Store) Record(wrong, corrected string) error {
	wrong = redact.Redact(wrong)
	corrected = redact.Redact(corrected)
	if wrong == "" || corrected == "" || wrong == corrected {
		return nil
	}
	if wrong == redact.Placeholder || corrected == redact.Placeholder {
		return nil
	}

	_, err := s.db.Exec(`
		INSERT INTO corrections (wrong, corrected) VALUES (?, ?)
		ON CONFLICT(wrong) DO UPDATE SET
			corrected = excluded.corrected,
			hits = hits + 1,
			updated_at = datetime('now')`,
		wrong, corrected)
	if err != nil {
		return fmt.Errorf("recording learned correction: %w", err)
	}
	return nil
}

// All returns every learned pair as a typo-table fragment.
func (s *Store) All() (map[string]string, error) {
	rows, err := s.db.Query(`SELECT wrong, corrected FROM corrections`)
	if err != nil {
		return nil, fmt.Errorf("reading learned corrections: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var wrong, corrected string
		if err := rows.Scan(&wrong, &corrected); err != nil {
			return nil, fmt.Errorf("reading learned corrections: %w", err)
		}
		out[wrong] = corrected
	}
	return out, rows.Err()
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
