package kv

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// SQLiteStore is a key-value store in a single SQLite table
type SQLiteStore struct {
	sqlStore
}

// NewSQLiteStore opens (creating if needed) the database at dbPath
func NewSQLiteStore(dbPath string, logger *zap.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	// sqlite serializes writers; one connection avoids "database is locked"
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS kv_store (
			k TEXT PRIMARY KEY,
			v BLOB,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	logger.Info("Opened SQLite store", zap.String("path", dbPath))
	return &SQLiteStore{sqlStore{
		db:     db,
		logger: logger,
		driver: "sqlite",
		upsert: `INSERT INTO kv_store (k, v, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(k) DO UPDATE SET v = excluded.v, updated_at = CURRENT_TIMESTAMP`,
	}}, nil
}

// Get returns the stored value for each key of defaults, or its default
func (s *SQLiteStore) Get(ctx context.Context, defaults map[string][]byte) (map[string][]byte, error) {
	return s.get(ctx, defaults)
}

// Set stores every key of values
func (s *SQLiteStore) Set(ctx context.Context, values map[string][]byte) error {
	return s.set(ctx, values)
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.close()
}
