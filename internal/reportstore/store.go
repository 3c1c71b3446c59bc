// Package reportstore persists consistency check reports in a local SQLite
// database so a repair workflow can diff runs over time.
//
// Build modes:
//   - Default (CGO_ENABLED=0): Uses pure Go modernc.org/sqlite
//   - CGO mode (CGO_ENABLED=1 -tags cgo_sqlite): Uses mattn/go-sqlite3
//
// Use Open() instead of sql.Open() to ensure the correct driver is used.
package reportstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kestrelrobotics/epcheck/core/check"
	"github.com/kestrelrobotics/epcheck/core/errors"
)

// DriverType returns a string identifying the underlying implementation.
// Returns "cgo" for mattn/go-sqlite3, "purego" for modernc.org/sqlite.
func DriverType() string {
	return driverType
}

// DriverPackage returns the import path of the active driver.
func DriverPackage() string {
	return driverPackage
}

const schema = `
CREATE TABLE IF NOT EXISTS reports (
	id         TEXT PRIMARY KEY,
	created_at TEXT NOT NULL,
	reference  TEXT NOT NULL,
	candidate  TEXT NOT NULL,
	relation   TEXT NOT NULL,
	status     TEXT NOT NULL,
	report     BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_reports_created_at ON reports(created_at);
`

// Store is a SQLite-backed report archive.
type Store struct {
	db *sql.DB
}

// DefaultPath returns the per-user report database location.
func DefaultPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".epcheck-reports.db"
	}
	return filepath.Join(homeDir, ".epcheck", "reports.db")
}

// Open opens or creates the report database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create report db directory failed: %w", err)
	}
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("open report db failed: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize report db schema failed: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save stores a report. The report's UUID is the primary key; saving the
// same report twice is an error.
func (s *Store) Save(r *check.Report) error {
	blob, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal report failed: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO reports (id, created_at, reference, candidate, relation, status, report)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.CreatedAt, r.Reference, r.Candidate, string(r.Relation), r.Status, blob,
	)
	if err != nil {
		return fmt.Errorf("insert report failed: %w", err)
	}
	return nil
}

// Get retrieves a report by ID.
func (s *Store) Get(id string) (*check.Report, error) {
	var blob []byte
	err := s.db.QueryRow(`SELECT report FROM reports WHERE id = ?`, id).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("report", id)
	}
	if err != nil {
		return nil, fmt.Errorf("query report failed: %w", err)
	}
	var r check.Report
	if err := json.Unmarshal(blob, &r); err != nil {
		return nil, errors.NewParse("report", id, err.Error())
	}
	return &r, nil
}

// Summary is one row of a report listing.
type Summary struct {
	ID        string `json:"id"`
	CreatedAt string `json:"created_at"`
	Reference string `json:"reference"`
	Candidate string `json:"candidate"`
	Relation  string `json:"relation"`
	Status    string `json:"status"`
}

// List returns the most recent reports, newest first.
func (s *Store) List(limit int) ([]Summary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		`SELECT id, created_at, reference, candidate, relation, status
		 FROM reports ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list reports failed: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var sum Summary
		if err := rows.Scan(&sum.ID, &sum.CreatedAt, &sum.Reference, &sum.Candidate, &sum.Relation, &sum.Status); err != nil {
			return nil, fmt.Errorf("scan report row failed: %w", err)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Latest returns the newest report for a reference/candidate pair, or
// NotFoundError when none exists.
func (s *Store) Latest(reference, candidate string) (*check.Report, error) {
	var id string
	err := s.db.QueryRow(
		`SELECT id FROM reports WHERE reference = ? AND candidate = ?
		 ORDER BY created_at DESC, id LIMIT 1`, reference, candidate).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("report", reference+" vs "+candidate)
	}
	if err != nil {
		return nil, fmt.Errorf("query latest report failed: %w", err)
	}
	return s.Get(id)
}
