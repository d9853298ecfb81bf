package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // SQLite driver registration
)

// Storage is a named-blob store backed by one SQLite table.
type Storage struct {
	db *sql.DB
}

// Open opens (creating if needed) a SQLite database at path and migrates
// its schema. The pool is limited to one connection since SQLite
// serialises writes.
func Open(ctx context.Context, path string, cfg Config) (*Storage, error) {
	cfg.defaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("sqlite: create directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if cfg.walEnabled() {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite: enable WAL: %w", err)
		}
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout=%d", cfg.BusyTimeout)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: set busy_timeout: %w", err)
	}
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Storage{db: db}, nil
}

// GetItem returns the stored value for name.
func (s *Storage) GetItem(ctx context.Context, name string) ([]byte, bool, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, "SELECT value FROM items WHERE name = ?", name).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("sqlite: get %s: %w", name, err)
	}
	return value, true, nil
}

// SetItem inserts or replaces the value for name.
func (s *Storage) SetItem(ctx context.Context, name string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO items (name, value, updated_at)
		VALUES (?, ?, strftime('%Y-%m-%dT%H:%M:%fZ','now'))
		ON CONFLICT(name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		name, value)
	if err != nil {
		return fmt.Errorf("sqlite: set %s: %w", name, err)
	}
	return nil
}

// RemoveItem deletes name. Removing a missing item is not an error.
func (s *Storage) RemoveItem(ctx context.Context, name string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM items WHERE name = ?", name); err != nil {
		return fmt.Errorf("sqlite: remove %s: %w", name, err)
	}
	return nil
}

// Names lists stored item names in lexical order.
func (s *Storage) Names(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name FROM items ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("sqlite: list items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("sqlite: scan item: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Ping checks the database connection.
func (s *Storage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Storage) Close() error {
	return s.db.Close()
}
