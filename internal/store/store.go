// Package store persists connections and pinned host keys in a per-user
// SQLite database.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Store wraps the SQLite handle and exposes the repositories.
type Store struct {
	conn        *sql.DB
	Connections *ConnectionRepo
	Folders     *FolderRepo
	HostKeys    *HostKeyRepo
}

// Open opens (creating if needed) the database at path and applies pending
// migrations. The connection pool is capped at one connection; the modernc
// driver serializes writers anyway and a single connection avoids busy
// errors under concurrent session activity.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create database directory %q: %w", dir, err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database at %q: %w", path, err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := conn.ExecContext(ctx, `PRAGMA foreign_keys = ON`); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := runMigrations(ctx, conn); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return &Store{
		conn:        conn,
		Connections: &ConnectionRepo{db: conn},
		Folders:     &FolderRepo{db: conn},
		HostKeys:    &HostKeyRepo{db: conn},
	}, nil
}

// SQL exposes the underlying handle for tests.
func (s *Store) SQL() *sql.DB {
	return s.conn
}

func (s *Store) Close() error {
	if s == nil || s.conn == nil {
		return nil
	}
	return s.conn.Close()
}
