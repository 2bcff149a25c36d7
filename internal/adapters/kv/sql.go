package kv

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// sqlStore holds the queries shared by the SQL-backed stores. Only the
// upsert statement differs between dialects.
type sqlStore struct {
	db     *sql.DB
	logger *zap.Logger
	driver string
	upsert string
}

func (s *sqlStore) get(ctx context.Context, defaults map[string][]byte) (map[string][]byte, error) {
	out := make(map[string][]byte, len(defaults))
	if len(defaults) == 0 {
		return out, nil
	}

	keys := make([]any, 0, len(defaults))
	for key, def := range defaults {
		out[key] = def
		keys = append(keys, key)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",")

	rows, err := s.db.QueryContext(ctx,
		`SELECT k, v FROM kv_store WHERE k IN (`+placeholders+`)`, keys...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s store: %w", s.driver, err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var value []byte
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", s.driver, err)
		}
		out[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s rows: %w", s.driver, err)
	}
	return out, nil
}

func (s *sqlStore) set(ctx context.Context, values map[string][]byte) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin %s transaction: %w", s.driver, err)
	}
	for key, value := range values {
		if _, err := tx.ExecContext(ctx, s.upsert, key, value); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to write key %s: %w", key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit %s transaction: %w", s.driver, err)
	}
	s.logger.Debug("Stored keys", zap.String("driver", s.driver), zap.Int("keys", len(values)))
	return nil
}

func (s *sqlStore) close() error {
	if err := s.db.Close(); err != nil {
		s.logger.Error("Failed to close database", zap.String("driver", s.driver), zap.Error(err))
		return err
	}
	return nil
}
