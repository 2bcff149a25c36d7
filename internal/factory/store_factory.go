package factory

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mikey/mail-labeler/internal/adapters/kv"
	"github.com/mikey/mail-labeler/internal/config"
	"github.com/mikey/mail-labeler/internal/ports"
	"go.uber.org/zap"
)

// StoreFactory creates key-value stores based on configuration
type StoreFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewStoreFactory creates a new store factory
func NewStoreFactory(cfg *config.Config, logger *zap.Logger) *StoreFactory {
	return &StoreFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateStore creates the store named by store.type
func (f *StoreFactory) CreateStore() (ports.StateStore, error) {
	sc := f.cfg.GetStore()

	switch sc.Type {
	case "memory":
		f.logger.Warn("Using in-memory store, state is lost on exit")
		return kv.NewMemoryStore(f.logger), nil
	case "sqlite":
		if err := os.MkdirAll(filepath.Dir(sc.SQLitePath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create SQLite directory: %w", err)
		}
		return kv.NewSQLiteStore(sc.SQLitePath, f.logger)
	case "mysql":
		return kv.NewMySQLStore(sc.MySQLDSN, f.logger)
	default:
		return nil, fmt.Errorf("unsupported store type: %s", sc.Type)
	}
}
