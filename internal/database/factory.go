package database

import (
	"fmt"
	"path/filepath"

	"socratic-go/internal/config"
	"socratic-go/internal/database/migrations"
	"socratic-go/internal/ledger"
)

// NewStoreFromConfig creates a ledger.Store based on the database config type.
// The sqlite store is migrated to the latest schema on open; the memory store
// gets the schema applied directly and lives only as long as the process.
func NewStoreFromConfig(cfg config.DatabaseConfig) (ledger.Store, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		store, err := NewSQLiteStore(filepath.Join(cfg.DataDir, "socratic.db"))
		if err != nil {
			return nil, err
		}
		if err := migrations.Up(store.DB()); err != nil {
			store.Close()
			return nil, fmt.Errorf("migrating database: %w", err)
		}
		return store, nil
	case "memory":
		store, err := NewSQLiteStore(":memory:")
		if err != nil {
			return nil, err
		}
		if _, err := store.DB().Exec(Schema); err != nil {
			store.Close()
			return nil, fmt.Errorf("applying schema: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}
