// Package sqlite provides a SQLite-backed result cache.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/JakeFAU/leadership-finder/internal/cache"
	"github.com/JakeFAU/leadership-finder/internal/leadership"
)

const migration = `
CREATE TABLE IF NOT EXISTS leadership_cache (
	cache_key  TEXT PRIMARY KEY,
	payload    TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	ttl_hours  REAL NOT NULL
);
`

// Cache stores results in a single SQLite table.
type Cache struct {
	db    *sql.DB
	ttl   time.Duration
	clock leadership.Clock
}

var _ leadership.Cache = (*Cache)(nil)

// Open opens (or creates) the database at dsn, enables WAL mode and runs the
// schema migration.
func Open(ctx context.Context, dsn string, ttl time.Duration, clock leadership.Clock) (*Cache, error) {
	if dsn == "" {
		return nil, errors.New("cache.sqlite_path is required")
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite: exec %s: %w", pragma, err)
		}
	}
	if _, err := db.ExecContext(ctx, migration); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: migrate: %w", err)
	}
	return &Cache{db: db, ttl: ttl, clock: clock}, nil
}

// Close releases the database handle.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Get returns the cached result for key. Rows older than their TTL are
// misses.
func (c *Cache) Get(ctx context.Context, key string) (leadership.Result, bool, error) {
	var (
		payload  string
		created  time.Time
		ttlHours float64
	)
	err := c.db.QueryRowContext(ctx,
		`SELECT payload, created_at, ttl_hours FROM leadership_cache WHERE cache_key = ?`, key,
	).Scan(&payload, &created, &ttlHours)
	if errors.Is(err, sql.ErrNoRows) {
		return leadership.Result{}, false, nil
	}
	if err != nil {
		return leadership.Result{}, false, fmt.Errorf("sqlite: get %s: %w", key, err)
	}
	ttl := time.Duration(ttlHours * float64(time.Hour))
	if cache.Expired(created, ttl, c.now()) {
		return leadership.Result{}, false, nil
	}
	var res leadership.Result
	if err := json.Unmarshal([]byte(payload), &res); err != nil {
		return leadership.Result{}, false, fmt.Errorf("sqlite: decode %s: %w", key, err)
	}
	return res, true, nil
}

// Set upserts the result for key.
func (c *Cache) Set(ctx context.Context, key string, result leadership.Result) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("sqlite: encode result: %w", err)
	}
	_, err = c.db.ExecContext(ctx, `
INSERT INTO leadership_cache (cache_key, payload, created_at, ttl_hours) VALUES (?, ?, ?, ?)
ON CONFLICT(cache_key) DO UPDATE SET
	payload = excluded.payload,
	created_at = excluded.created_at,
	ttl_hours = excluded.ttl_hours`,
		key, string(payload), c.now(), c.ttl.Hours(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: set %s: %w", key, err)
	}
	return nil
}

func (c *Cache) now() time.Time {
	if c.clock == nil {
		return time.Now().UTC()
	}
	return c.clock.Now().UTC()
}
