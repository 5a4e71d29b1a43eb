// Package queue is the client's durable mutation log. Every write performed
// while offline lands here and is replayed in enqueue order once the network
// returns; an entry leaves the queue only on confirmed server acceptance.
package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Entry is one pending mutation: the original HTTP method, path and body,
// keyed by a locally generated idempotency id. Seq fixes the replay order.
type Entry struct {
	ID        string          `json:"id"`
	Seq       int64           `json:"seq"`
	CreatedAt time.Time       `json:"createdAt"`
	Method    string          `json:"method"`
	Path      string          `json:"path"`
	Body      json.RawMessage `json:"body,omitempty"`
	Attempts  int             `json:"attempts"`
	LastError string          `json:"lastError,omitempty"`
}

// Store persists the mutation queue in a single SQLite file.
type Store struct {
	db *sql.DB
}

// Open creates or opens the queue database at the given path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open queue db: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS mutations (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		created_at TIMESTAMP NOT NULL,
		method TEXT NOT NULL,
		path TEXT NOT NULL,
		body BLOB,
		attempts INTEGER NOT NULL DEFAULT 0,
		last_error TEXT NOT NULL DEFAULT ''
	)`); err != nil {
		return nil, fmt.Errorf("create mutations table: %w", err)
	}
	return &Store{db: db}, nil
}

// Enqueue appends one mutation with a fresh idempotency id. The id is
// generated locally; no server round-trip is needed while offline.
func (s *Store) Enqueue(ctx context.Context, method, path string, body any) (Entry, error) {
	var raw json.RawMessage
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return Entry{}, fmt.Errorf("encode body: %w", err)
		}
		raw = encoded
	}

	entry := Entry{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		Method:    method,
		Path:      path,
		Body:      raw,
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO mutations (id, created_at, method, path, body) VALUES (?, ?, ?, ?, ?)`,
		entry.ID, entry.CreatedAt, entry.Method, entry.Path, []byte(entry.Body))
	if err != nil {
		return Entry{}, fmt.Errorf("insert mutation: %w", err)
	}
	entry.Seq, err = res.LastInsertId()
	if err != nil {
		return Entry{}, fmt.Errorf("mutation seq: %w", err)
	}
	return entry, nil
}

// List returns all pending mutations in enqueue order.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, id, created_at, method, path, body, attempts, last_error FROM mutations ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("select mutations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var body []byte
		if err := rows.Scan(&e.Seq, &e.ID, &e.CreatedAt, &e.Method, &e.Path, &body, &e.Attempts, &e.LastError); err != nil {
			return nil, fmt.Errorf("scan mutation: %w", err)
		}
		e.Body = body
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Len returns the number of pending mutations.
func (s *Store) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM mutations`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count mutations: %w", err)
	}
	return n, nil
}

// Delete removes a mutation, either confirmed by the server or dropped
// after a terminal rejection.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM mutations WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete mutation: %w", err)
	}
	return nil
}

// MarkFailed records a failed replay attempt, keeping the entry in place.
func (s *Store) MarkFailed(ctx context.Context, id string, cause string) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE mutations SET attempts = attempts + 1, last_error = ? WHERE id = ?`, cause, id); err != nil {
		return fmt.Errorf("mark mutation failed: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
