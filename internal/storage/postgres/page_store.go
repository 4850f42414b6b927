// Package postgres keeps the page ledger in Postgres.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/cnblogs-search/internal/crawler"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const defaultTable = "indexed_pages"

// Config controls the Postgres connection pool used for ledger rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// PageStore upserts one ledger row per indexed document.
type PageStore struct {
	pool  execCloser
	table string
}

// NewPageStore connects to Postgres using cfg.
func NewPageStore(ctx context.Context, cfg Config) (*PageStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
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
	store, err := NewPageStoreWithPool(pool, cfg.Table)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// NewPageStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewPageStoreWithPool(pool execCloser, table string) (*PageStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &PageStore{pool: pool, table: table}, nil
}

// EnsureSchema creates the ledger table if it does not exist.
func (s *PageStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	doc_id       TEXT PRIMARY KEY,
	run_id       TEXT NOT NULL,
	url          TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	blob_uri     TEXT NOT NULL,
	view_count   BIGINT NOT NULL DEFAULT 0,
	indexed_at   TIMESTAMPTZ NOT NULL
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create ledger table: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *PageStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// RecordPage inserts the row for page.DocID or replaces the existing one.
func (s *PageStore) RecordPage(ctx context.Context, page crawler.PageRecord) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("page store is not configured")
	}
	if page.DocID == "" {
		return fmt.Errorf("doc id is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	doc_id,
	run_id,
	url,
	content_hash,
	blob_uri,
	view_count,
	indexed_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7
)
ON CONFLICT (doc_id) DO UPDATE SET
	run_id = EXCLUDED.run_id,
	url = EXCLUDED.url,
	content_hash = EXCLUDED.content_hash,
	blob_uri = EXCLUDED.blob_uri,
	view_count = EXCLUDED.view_count,
	indexed_at = EXCLUDED.indexed_at`, s.table)

	args := []any{
		page.DocID,
		page.RunID,
		page.URL,
		page.ContentHash,
		page.BlobURI,
		page.ViewCount,
		page.IndexedAt,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert page %s: %w", page.DocID, err)
	}
	return nil
}
