package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/richinex/musicbi/internal/apperror"
)

// SqliteStorage implements ChunkStore using a SQLite table of blobs.
// Thread-safe: sql.DB handles connection pooling and concurrent access.
type SqliteStorage struct {
	db     *sql.DB
	prefix string
}

// OpenSqlite opens or creates a SQLite database at the given path.
// Creates parent directories if they don't exist.
func OpenSqlite(path, prefix string) (*SqliteStorage, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	return newSqlite(db, prefix)
}

// NewSqliteInMemory creates an in-memory database (useful for testing).
func NewSqliteInMemory(prefix string) (*SqliteStorage, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory SQLite: %w", err)
	}
	// every pooled connection to :memory: would be a separate database
	db.SetMaxOpenConns(1)
	return newSqlite(db, prefix)
}

func newSqlite(db *sql.DB, prefix string) (*SqliteStorage, error) {
	s := &SqliteStorage{db: db, prefix: prefix}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *SqliteStorage) Close() error {
	return s.db.Close()
}

func (s *SqliteStorage) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS chunks (
			name TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			byte_size INTEGER NOT NULL,
			created_at TEXT NOT NULL DEFAULT (datetime('now'))
		);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Put stores a chunk, replacing any previous content.
func (s *SqliteStorage) Put(ctx context.Context, key, content string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO chunks (name, content, byte_size) VALUES (?, ?, ?)",
		BlobName(s.prefix, key), content, len(content))
	if err != nil {
		return apperror.Transient("failed to store chunk", err)
	}
	return nil
}

// Get loads a chunk.
func (s *SqliteStorage) Get(ctx context.Context, key string) (string, error) {
	var content string
	err := s.db.QueryRowContext(ctx,
		"SELECT content FROM chunks WHERE name = ?",
		BlobName(s.prefix, key)).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return "", notFound(key)
	}
	if err != nil {
		return "", apperror.Transient("failed to load chunk", err)
	}
	return content, nil
}

// Clear deletes every chunk under this store's prefix.
func (s *SqliteStorage) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM chunks WHERE substr(name, 1, ?) = ?",
		len(s.prefix), s.prefix)
	if err != nil {
		return apperror.Transient("failed to clear chunks", err)
	}
	return nil
}

// Count returns the number of chunks under this store's prefix.
func (s *SqliteStorage) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM chunks WHERE substr(name, 1, ?) = ?",
		len(s.prefix), s.prefix).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return count, nil
}

var (
	_ ChunkStore = (*SqliteStorage)(nil)
	_ Counter    = (*SqliteStorage)(nil)
)
