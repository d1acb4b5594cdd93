// Package history provides SQLite-backed persistence for completed
// executions, powering the REPL history surface in the UI.
package history

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Entry is one recorded execution.
type Entry struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Code      string    `json:"code"`
	OK        bool      `json:"ok"`
	Value     string    `json:"value"`
	CreatedAt time.Time `json:"created_at"`
}

// Store provides SQLite-backed persistence for execution history.
type Store struct {
	db   *sql.DB
	keep int
}

// NewStore opens the SQLite database at dbPath and creates tables if they
// don't exist. keep bounds how many entries Prune retains; <= 0 disables
// pruning.
func NewStore(dbPath string, keep int) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := createTables(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return &Store{db: db, keep: keep}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func createTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS executions (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		code TEXT NOT NULL,
		ok INTEGER NOT NULL,
		value TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_executions_created
		ON executions(created_at DESC);
	`
	_, err := db.Exec(schema)
	return err
}

// Record inserts one completed execution. Implements the dispatcher's
// HistoryRecorder; errors are swallowed because history is best-effort.
func (s *Store) Record(kind, code string, ok bool, value string) {
	_, _ = s.db.Exec(
		`INSERT INTO executions (id, kind, code, ok, value, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), kind, code, ok, value, time.Now().UTC(),
	)
}

// Recent returns the most recent entries, newest first.
func (s *Store) Recent(limit int) ([]Entry, error) {
	rows, err := s.db.Query(
		`SELECT id, kind, code, ok, value, created_at
		 FROM executions
		 ORDER BY created_at DESC, id
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query executions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var ok int
		var value sql.NullString
		if err := rows.Scan(&e.ID, &e.Kind, &e.Code, &ok, &value, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		e.OK = ok != 0
		e.Value = value.String
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return entries, nil
}

// Prune deletes everything beyond the configured retention.
func (s *Store) Prune() error {
	if s.keep <= 0 {
		return nil
	}
	_, err := s.db.Exec(
		`DELETE FROM executions WHERE id NOT IN (
			SELECT id FROM executions ORDER BY created_at DESC, id LIMIT ?
		)`,
		s.keep,
	)
	if err != nil {
		return fmt.Errorf("prune executions: %w", err)
	}
	return nil
}
