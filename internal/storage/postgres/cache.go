// Package postgres provides a Postgres-backed result cache.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/leadership-finder/internal/cache"
	"github.com/JakeFAU/leadership-finder/internal/leadership"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const defaultTable = "leadership_cache"

// Config controls the connection pool backing the cache.
type Config struct {
	DSN             string
	Table           string
	TTL             time.Duration
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// Cache stores results keyed by company key.
type Cache struct {
	pool  pool
	table string
	ttl   time.Duration
	clock leadership.Clock
}

var _ leadership.Cache = (*Cache)(nil)

// New connects to Postgres using cfg.
func New(ctx context.Context, cfg Config, clock leadership.Clock) (*Cache, error) {
	if cfg.DSN == "" {
		return nil, errors.New("cache.postgres_dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	c, err := NewWithPool(p, cfg.Table, cfg.TTL, clock)
	if err != nil {
		p.Close()
		return nil, err
	}
	return c, nil
}

// NewWithPool builds a cache over an existing pool.
func NewWithPool(p pool, table string, ttl time.Duration, clock leadership.Clock) (*Cache, error) {
	if p == nil {
		return nil, errors.New("pool is required")
	}
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Cache{pool: p, table: table, ttl: ttl, clock: clock}, nil
}

// Migrate creates the cache table when missing.
func (c *Cache) Migrate(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	cache_key  TEXT PRIMARY KEY,
	payload    JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	ttl_hours  DOUBLE PRECISION NOT NULL
)`, c.table)
	if _, err := c.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("migrate %s: %w", c.table, err)
	}
	return nil
}

// Close releases the pool.
func (c *Cache) Close() {
	if c == nil || c.pool == nil {
		return
	}
	c.pool.Close()
}

// Get returns the cached result for key. Rows older than their TTL are
// misses.
func (c *Cache) Get(ctx context.Context, key string) (leadership.Result, bool, error) {
	var (
		payload  []byte
		created  time.Time
		ttlHours float64
	)
	query := fmt.Sprintf(`SELECT payload, created_at, ttl_hours FROM %s WHERE cache_key = $1`, c.table)
	err := c.pool.QueryRow(ctx, query, key).Scan(&payload, &created, &ttlHours)
	if errors.Is(err, pgx.ErrNoRows) {
		return leadership.Result{}, false, nil
	}
	if err != nil {
		return leadership.Result{}, false, fmt.Errorf("select cache row: %w", err)
	}
	if cache.Expired(created, time.Duration(ttlHours*float64(time.Hour)), c.now()) {
		return leadership.Result{}, false, nil
	}
	var res leadership.Result
	if err := json.Unmarshal(payload, &res); err != nil {
		return leadership.Result{}, false, fmt.Errorf("decode cache row: %w", err)
	}
	return res, true, nil
}

// Set upserts the result for key.
func (c *Cache) Set(ctx context.Context, key string, result leadership.Result) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	cache_key,
	payload,
	created_at,
	ttl_hours
) VALUES (
	$1,$2,$3,$4
)
ON CONFLICT (cache_key) DO UPDATE SET
	payload = EXCLUDED.payload,
	created_at = EXCLUDED.created_at,
	ttl_hours = EXCLUDED.ttl_hours`, c.table)
	if _, err := c.pool.Exec(ctx, query, key, payload, c.now(), c.ttl.Hours()); err != nil {
		return fmt.Errorf("upsert cache row: %w", err)
	}
	return nil
}

func (c *Cache) now() time.Time {
	if c.clock == nil {
		return time.Now().UTC()
	}
	return c.clock.Now().UTC()
}
