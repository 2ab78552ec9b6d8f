package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/adaptivecrawl/webcrawler/internal/crawler"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// PostgresConfig controls the connection pool backing the Postgres sink.
type PostgresConfig struct {
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

// PostgresSink writes one row per PageResult into Postgres.
type PostgresSink struct {
	pool  execCloser
	table string
}

// NewPostgresSink creates a Postgres-backed sink from cfg.
func NewPostgresSink(ctx context.Context, cfg PostgresConfig) (*PostgresSink, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres dsn is required: %w", ErrUnconfigured)
	}
	table := cfg.Table
	if table == "" {
		table = "page_results"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
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
	return &PostgresSink{pool: pool, table: table}, nil
}

// NewPostgresSinkWithPool builds a sink from an existing pool, primarily
// for tests.
func NewPostgresSinkWithPool(pool execCloser, table string) (*PostgresSink, error) {
	if pool == nil {
		return nil, ErrUnconfigured
	}
	if table == "" {
		table = "page_results"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &PostgresSink{pool: pool, table: table}, nil
}

// Put inserts one row describing result.
func (s *PostgresSink) Put(ctx context.Context, result crawler.PageResult) error {
	if s == nil || s.pool == nil {
		return ErrUnconfigured
	}
	hitsJSON, err := json.Marshal(result.KeywordHits)
	if err != nil {
		return fmt.Errorf("marshal keyword hits: %w", err)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	url, final_url, depth, status_code, kind, content_hash,
	title, used_spa, fetched_at, duration_ms,
	keyword_hits, markdown, heading_count, link_count, image_count, word_count
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16
)`, s.table)

	args := []any{
		result.URL, result.FinalURL, result.Depth, result.StatusCode, string(result.Kind), result.ContentHash,
		result.Title, result.UsedSPA, result.FetchedAt, result.Duration.Milliseconds(),
		hitsJSON, result.Markdown, result.HeadingCount, result.LinkCount, result.ImageCount, result.WordCount,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert page result: %w", err)
	}
	return nil
}

// Close releases the pool.
func (s *PostgresSink) Close(_ context.Context) error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}
