// Package cache is the client's read-through store for catalog data. Reads
// hit the network first and refresh the cached copy; when the network is
// down the last good value is served instead of an error. Search-filtered
// queries are the exception: they have no cached analog and fail rather
// than return stale or wrong results.
package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrMiss indicates no cached value exists for the key.
var ErrMiss = errors.New("cache miss")

const (
	// KeyItems and KeyLocations cache whole catalog lists.
	KeyItems     = "items"
	KeyLocations = "locations"
)

// BoxesKey is the cache key for a location's box list.
func BoxesKey(locationID string) string { return "boxes." + locationID }

// VisitKey is the cache key for one visit snapshot.
func VisitKey(visitID string) string { return "visit." + visitID }

// Store persists cached payloads as JSON blobs keyed by resource, one row
// per key, in a single SQLite file.
type Store struct {
	db *sql.DB
}

// Open creates or opens the cache database at the given path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS cache (
		key TEXT PRIMARY KEY,
		payload BLOB NOT NULL,
		fetched_at TIMESTAMP NOT NULL
	)`); err != nil {
		return nil, fmt.Errorf("create cache table: %w", err)
	}
	return &Store{db: db}, nil
}

// Put stores the JSON encoding of v under key, replacing any previous value.
func (s *Store) Put(ctx context.Context, key string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO cache (key, payload, fetched_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET payload = excluded.payload, fetched_at = excluded.fetched_at`,
		key, payload, time.Now().UTC()); err != nil {
		return fmt.Errorf("store %s: %w", key, err)
	}
	return nil
}

// Get decodes the cached value for key into out, or returns ErrMiss.
func (s *Store) Get(ctx context.Context, key string, out any) error {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM cache WHERE key = ?`, key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", key, ErrMiss)
	}
	if err != nil {
		return fmt.Errorf("load %s: %w", key, err)
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// ReadThrough fetches fresh data, caches it under key and returns it. When
// the fetch fails the last cached value is returned instead; the fetch
// error surfaces only if the cache has nothing either.
func ReadThrough[T any](ctx context.Context, s *Store, key string, fetch func(context.Context) (T, error)) (T, error) {
	fresh, err := fetch(ctx)
	if err == nil {
		// A failed cache write must not fail a successful read.
		_ = s.Put(ctx, key, fresh)
		return fresh, nil
	}

	var cached T
	if cerr := s.Get(ctx, key, &cached); cerr != nil {
		var zero T
		return zero, err
	}
	return cached, nil
}
