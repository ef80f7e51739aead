// Package sqlite stores battles in a local SQLite file for runs without a
// database server.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/JakeFAU/ladder-battle-crawler/internal/crawler"
	"github.com/JakeFAU/ladder-battle-crawler/internal/storage"
)

//go:embed schema.sql
var schema string

// BattleStore writes canonical battles into a SQLite database file.
type BattleStore struct {
	db   *sql.DB
	path string
}

// Open opens or creates the database at path and applies the schema.
func Open(ctx context.Context, path string) (*BattleStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return &BattleStore{db: db, path: path}, nil
}

// Name identifies the store in logs and metrics.
func (s *BattleStore) Name() string { return "sqlite" }

// Path returns the database file location.
func (s *BattleStore) Path() string { return s.path }

// SaveBattles inserts battles in one transaction and returns how many were new.
func (s *BattleStore) SaveBattles(ctx context.Context, runID uuid.UUID, battles []crawler.Battle) (int, error) {
	if len(battles) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin battle insert: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, insertQuery())
	if err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("prepare battle insert: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, b := range battles {
		args := storage.Values(b)
		args[0] = b.Time.UTC().Format(time.RFC3339)
		args = append(args, runID.String())
		res, err := stmt.ExecContext(ctx, args...)
		if err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("insert battle: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("rows affected: %w", err)
		}
		inserted += int(n)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit battles: %w", err)
	}
	return inserted, nil
}

// CountBattles returns the number of stored battles.
func (s *BattleStore) CountBattles(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM battles").Scan(&n); err != nil {
		return 0, fmt.Errorf("count battles: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (s *BattleStore) Close() error {
	return s.db.Close()
}

func insertQuery() string {
	cols := append(append([]string(nil), storage.Columns...), "run_id")
	params := strings.TrimSuffix(strings.Repeat("?,", len(cols)), ",")
	return fmt.Sprintf("INSERT OR IGNORE INTO battles (%s) VALUES (%s)", strings.Join(cols, ", "), params)
}
