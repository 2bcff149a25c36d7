package kv

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
)

// MySQLStore is a key-value store in a MySQL table
type MySQLStore struct {
	sqlStore
}

// NewMySQLStore connects to dsn and creates the table if needed
func NewMySQLStore(dsn string, logger *zap.Logger) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to MySQL database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS kv_store (
			k VARCHAR(255) PRIMARY KEY,
			v LONGBLOB,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	logger.Info("Connected to MySQL store")
	return &MySQLStore{sqlStore{
		db:     db,
		logger: logger,
		driver: "mysql",
		upsert: `INSERT INTO kv_store (k, v) VALUES (?, ?) ON DUPLICATE KEY UPDATE v = VALUES(v)`,
	}}, nil
}

// Get returns the stored value for each key of defaults, or its default
func (s *MySQLStore) Get(ctx context.Context, defaults map[string][]byte) (map[string][]byte, error) {
	return s.get(ctx, defaults)
}

// Set stores every key of values
func (s *MySQLStore) Set(ctx context.Context, values map[string][]byte) error {
	return s.set(ctx, values)
}

// Close closes the connection pool
func (s *MySQLStore) Close() error {
	return s.close()
}
