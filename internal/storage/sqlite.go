//go:build sqlite
// +build sqlite

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"endwatch/pkg/logx"
)

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS subscriptions (
		chat_id  INTEGER PRIMARY KEY,
		title    TEXT NOT NULL DEFAULT '',
		added_at INTEGER NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}

	return &sqliteStore{db: db, log: log}, nil
}

func (s *sqliteStore) Add(ctx context.Context, sub Subscription) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO subscriptions (chat_id, title, added_at) VALUES (?, ?, ?)`,
		sub.ChatID, sub.Title, sub.AddedAt.UnixMilli())
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *sqliteStore) Remove(ctx context.Context, chatID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE chat_id = ?`, chatID)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *sqliteStore) List(ctx context.Context) ([]Subscription, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT chat_id, title, added_at FROM subscriptions ORDER BY chat_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Subscription
	for rows.Next() {
		var sub Subscription
		var addedMS int64
		if err := rows.Scan(&sub.ChatID, &sub.Title, &addedMS); err != nil {
			return nil, err
		}
		sub.AddedAt = time.UnixMilli(addedMS)
		out = append(out, sub)
	}
	return out, rows.Err()
}

func (s *sqliteStore) Close() error { return s.db.Close() }
