package database

import (
	"fmt"
	"path/filepath"

	"siashare-go/internal/config"
)

// DatabasePath returns where the configured database lives.
func DatabasePath(cfg config.DatabaseConfig, instanceID string) (string, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return "", fmt.Errorf("data_dir required for sqlite database")
		}
		return filepath.Join(cfg.DataDir, instanceID+".db"), nil
	case "memory":
		return ":memory:", nil
	default:
		return "", fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}

// NewDatabaseFromConfig creates a SQLiteDatabase based on the database config type
// and brings its schema up to date.
func NewDatabaseFromConfig(cfg config.DatabaseConfig, instanceID string) (*SQLiteDatabase, error) {
	path, err := DatabasePath(cfg, instanceID)
	if err != nil {
		return nil, err
	}

	db, err := NewSQLiteDatabase(path)
	if err != nil {
		return nil, err
	}
	if _, _, err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating %s: %w", path, err)
	}
	return db, nil
}
