// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/ladder-battle-crawler/internal/crawler"
	"github.com/JakeFAU/ladder-battle-crawler/internal/storage"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// Pool is the subset of pgxpool.Pool used by the stores.
type Pool interface {
	Begin(context.Context) (pgx.Tx, error)
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// NewPool opens a pgx pool from cfg.
func NewPool(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
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
	return pool, nil
}

// BattleStore writes canonical battles into Postgres.
type BattleStore struct {
	pool  Pool
	table string
}

// NewBattleStore creates a BattleStore from an existing pool.
func NewBattleStore(pool Pool, table string) (*BattleStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = storage.DefaultTable
	}
	if !storage.ValidTableName(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &BattleStore{pool: pool, table: table}, nil
}

// Name identifies the store in logs and metrics.
func (s *BattleStore) Name() string { return "postgres" }

// EnsureSchema creates the battle table when missing.
func (s *BattleStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	battle_time TIMESTAMPTZ NOT NULL,
	game_mode   BIGINT      NOT NULL,
	p1_tag      TEXT        NOT NULL,
	p1_rating   INTEGER     NOT NULL,
	p1_crowns   INTEGER     NOT NULL,
	p1_cards    TEXT        NOT NULL,
	p2_tag      TEXT        NOT NULL,
	p2_rating   INTEGER     NOT NULL,
	p2_crowns   INTEGER     NOT NULL,
	p2_cards    TEXT        NOT NULL,
	run_id      UUID        NOT NULL,
	PRIMARY KEY (battle_time, game_mode, p1_tag, p2_tag)
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create battle table: %w", err)
	}
	return nil
}

// SaveBattles inserts battles in one transaction and returns how many were new.
func (s *BattleStore) SaveBattles(ctx context.Context, runID uuid.UUID, battles []crawler.Battle) (int, error) {
	if s == nil || s.pool == nil {
		return 0, fmt.Errorf("battle store is not configured")
	}
	if len(battles) == 0 {
		return 0, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin battle insert: %w", err)
	}
	query := s.insertQuery()
	inserted := 0
	for _, b := range battles {
		args := append(storage.Values(b), runID)
		tag, err := tx.Exec(ctx, query, args...)
		if err != nil {
			_ = tx.Rollback(ctx) //nolint:errcheck // the insert error is what matters
			return 0, fmt.Errorf("insert battle: %w", err)
		}
		inserted += int(tag.RowsAffected())
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit battles: %w", err)
	}
	return inserted, nil
}

// Close releases the underlying pool resources.
func (s *BattleStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

func (s *BattleStore) insertQuery() string {
	cols := append(append([]string(nil), storage.Columns...), "run_id")
	params := make([]string, len(cols))
	for i := range cols {
		params[i] = fmt.Sprintf("$%d", i+1)
	}
	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (battle_time, game_mode, p1_tag, p2_tag) DO NOTHING",
		s.table,
		strings.Join(cols, ", "),
		strings.Join(params, ","),
	)
}
