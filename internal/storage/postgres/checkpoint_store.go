// Package postgres provides the Postgres-backed checkpoint store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/delta-harvester/internal/harvest"
)

const defaultTable = "sources"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// CheckpointStoreConfig controls the Postgres connection pool used for checkpoints.
type CheckpointStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type queryExecCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// CheckpointStore keeps one row per source: its canonical URL and the time
// through which it was fully processed.
type CheckpointStore struct {
	pool  queryExecCloser
	table string
}

var _ harvest.CheckpointStore = (*CheckpointStore)(nil)

// NewCheckpointStore creates a Postgres-backed CheckpointStore using the provided config.
func NewCheckpointStore(ctx context.Context, cfg CheckpointStoreConfig) (*CheckpointStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("checkpoint.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
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
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &CheckpointStore{pool: pool, table: table}, nil
}

// NewCheckpointStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewCheckpointStoreWithPool(pool queryExecCloser, table string) (*CheckpointStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &CheckpointStore{pool: pool, table: name}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool resources.
func (s *CheckpointStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the checkpoint table when it does not exist.
func (s *CheckpointStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	url        TEXT PRIMARY KEY,
	indexed_at TIMESTAMPTZ
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create checkpoint table: %w", err)
	}
	return nil
}

// Get returns the checkpoint for sourceID. A missing row or NULL timestamp
// reports ok=false.
func (s *CheckpointStore) Get(ctx context.Context, sourceID string) (time.Time, bool, error) {
	query := fmt.Sprintf(`SELECT indexed_at FROM %s WHERE url = $1 AND indexed_at IS NOT NULL`, s.table)
	var at time.Time
	if err := s.pool.QueryRow(ctx, query, sourceID).Scan(&at); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("select checkpoint %s: %w", sourceID, err)
	}
	return at.UTC(), true, nil
}

// Set upserts the checkpoint for sourceID. Writing the same value twice is a no-op.
func (s *CheckpointStore) Set(ctx context.Context, sourceID string, at time.Time) error {
	query := fmt.Sprintf(`
INSERT INTO %s (url, indexed_at) VALUES ($1, $2)
ON CONFLICT (url) DO UPDATE SET indexed_at = EXCLUDED.indexed_at`, s.table)
	if _, err := s.pool.Exec(ctx, query, sourceID, at.UTC()); err != nil {
		return fmt.Errorf("upsert checkpoint %s: %w", sourceID, err)
	}
	return nil
}
