package database

import (
	"os"
	"path/filepath"
	"testing"

	"siashare-go/internal/config"
)

func TestNewDatabaseFromConfig(t *testing.T) {
	t.Run("memory database", func(t *testing.T) {
		cfg := config.DatabaseConfig{Type: "memory"}
		got, err := NewDatabaseFromConfig(cfg, "test-instance")
		if err != nil {
			t.Fatalf("NewDatabaseFromConfig() unexpected error: %v", err)
		}
		defer got.Close()

		if err := got.CheckMigrations(); err != nil {
			t.Errorf("CheckMigrations() = %v, want nil after factory migration", err)
		}
	})

	t.Run("sqlite database", func(t *testing.T) {
		dir := t.TempDir()
		cfg := config.DatabaseConfig{Type: "sqlite", DataDir: dir}
		got, err := NewDatabaseFromConfig(cfg, "test-instance")
		if err != nil {
			t.Fatalf("NewDatabaseFromConfig() unexpected error: %v", err)
		}
		defer got.Close()

		want := filepath.Join(dir, "test-instance.db")
		if got.Path() != want {
			t.Errorf("Path() = %q, want %q", got.Path(), want)
		}
		if _, err := os.Stat(want); err != nil {
			t.Errorf("database file not created: %v", err)
		}
	})

	t.Run("sqlite database without data_dir", func(t *testing.T) {
		cfg := config.DatabaseConfig{Type: "sqlite"}
		got, err := NewDatabaseFromConfig(cfg, "test-instance")
		if err == nil {
			t.Error("NewDatabaseFromConfig() expected error for missing data_dir, got nil")
		}
		if got != nil {
			t.Error("NewDatabaseFromConfig() should return nil on error")
			got.Close()
		}
	})

	t.Run("unknown database type", func(t *testing.T) {
		cfg := config.DatabaseConfig{Type: "unknown"}
		got, err := NewDatabaseFromConfig(cfg, "test-instance")
		if err == nil {
			t.Error("NewDatabaseFromConfig() expected error for unknown type, got nil")
		}
		if got != nil {
			t.Error("NewDatabaseFromConfig() should return nil on error")
			got.Close()
		}
	})
}
