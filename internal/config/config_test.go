package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestManager_ReadWrite_RoundTrip(t *testing.T) {
	original := NewConfig("test-instance", "/srv/siashare")
	original.Vault = VaultConfig{
		Type:           "s3",
		Name:           "origin",
		S3Bucket:       "shares",
		S3Region:       "us-east-1",
		S3Endpoint:     "http://localhost:9000",
		S3UsePathStyle: true,
	}
	original.Upload = UploadConfig{Password: "hunter2", MaxFileSize: 1 << 30, MaxFiles: 20}
	original.RoomTTL = Duration{48 * time.Hour}

	var buf bytes.Buffer
	m := &Manager{}

	if err := m.Write(&buf, original); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if !strings.Contains(buf.String(), `room_ttl = "48h0m0s"`) {
		t.Errorf("durations should be written as strings, got:\n%s", buf.String())
	}

	got, err := m.Read(&buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if got.InstanceID != original.InstanceID {
		t.Errorf("InstanceID = %q, want %q", got.InstanceID, original.InstanceID)
	}
	if got.RoomTTL.Duration != 48*time.Hour {
		t.Errorf("RoomTTL = %v, want 48h", got.RoomTTL.Duration)
	}
	if got.Vault.Type != "s3" || got.Vault.S3Bucket != "shares" || !got.Vault.S3UsePathStyle {
		t.Errorf("Vault = %+v, want s3/shares/path-style", got.Vault)
	}
	if got.Upload != original.Upload {
		t.Errorf("Upload = %+v, want %+v", got.Upload, original.Upload)
	}
	if got.Promotion != original.Promotion {
		t.Errorf("Promotion = %+v, want %+v", got.Promotion, original.Promotion)
	}
	if got.Cache.Retention.Duration != time.Hour {
		t.Errorf("Cache.Retention = %v, want 1h", got.Cache.Retention.Duration)
	}
}

func TestManager_Read_Durations(t *testing.T) {
	input := `
instance_id = "a"

[gc]
interval = "90s"

[promotion]
max_attempts = 3
base_delay = "250ms"
max_delay = "5s"
`
	m := &Manager{}
	cfg, err := m.Read(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if cfg.GC.Interval.Duration != 90*time.Second {
		t.Errorf("GC.Interval = %v, want 90s", cfg.GC.Interval.Duration)
	}
	if cfg.Promotion.BaseDelay.Duration != 250*time.Millisecond {
		t.Errorf("Promotion.BaseDelay = %v, want 250ms", cfg.Promotion.BaseDelay.Duration)
	}

	_, err = m.Read(strings.NewReader(`room_ttl = "forever"`))
	if err == nil {
		t.Error("Read() with invalid duration expected error")
	}
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig("instance-1", "/data/siashare")

	if cfg.InstanceID != "instance-1" {
		t.Errorf("InstanceID = %q, want %q", cfg.InstanceID, "instance-1")
	}
	if cfg.LogDir != "/data/siashare/log" {
		t.Errorf("LogDir = %q, want %q", cfg.LogDir, "/data/siashare/log")
	}
	if cfg.Cache.Dir != "/data/siashare/uploads" {
		t.Errorf("Cache.Dir = %q, want %q", cfg.Cache.Dir, "/data/siashare/uploads")
	}
	if cfg.Vault.FSVaultRoot != "/data/siashare/vault" {
		t.Errorf("Vault.FSVaultRoot = %q, want %q", cfg.Vault.FSVaultRoot, "/data/siashare/vault")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{name: "defaults", modify: func(*Config) {}},
		{name: "missing instance id", modify: func(c *Config) { c.InstanceID = "" }, wantErr: "instance_id"},
		{name: "unknown vault", modify: func(c *Config) { c.Vault.Type = "tape" }, wantErr: "unknown vault type"},
		{name: "s3 without bucket", modify: func(c *Config) { c.Vault = VaultConfig{Type: "s3"} }, wantErr: "s3_bucket"},
		{name: "renterd without url", modify: func(c *Config) { c.Vault = VaultConfig{Type: "renterd"} }, wantErr: "renterd_url"},
		{name: "unknown database", modify: func(c *Config) { c.Database.Type = "postgres" }, wantErr: "unknown database type"},
		{name: "sqlite without data dir", modify: func(c *Config) { c.Database.DataDir = "" }, wantErr: "data_dir"},
		{name: "zero gc interval", modify: func(c *Config) { c.GC.Interval = Duration{} }, wantErr: "gc.interval"},
		{name: "rate limit without redis", modify: func(c *Config) { c.RateLimit.RoomCreateLimit = 5 }, wantErr: "redis.addr"},
		{name: "cert without key", modify: func(c *Config) { c.TLS.CertFile = "cert.pem" }, wantErr: "tls.cert_file"},
		{name: "bad log level", modify: func(c *Config) { c.LogLevel = "loud" }, wantErr: "log_level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig("instance-1", "/data/siashare")
			tt.modify(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_ApplyEnv(t *testing.T) {
	t.Setenv("SIASHARE_VAULT_PASSWORD", "renterd-secret")
	t.Setenv("SIASHARE_SESSION_SECRET", "session-secret")

	cfg := NewConfig("instance-1", "/data/siashare")
	cfg.ApplyEnv()

	if cfg.Vault.RenterdPassword != "renterd-secret" {
		t.Errorf("Vault.RenterdPassword = %q, want renterd-secret", cfg.Vault.RenterdPassword)
	}
	if cfg.Session.Secret != "session-secret" {
		t.Errorf("Session.Secret = %q, want session-secret", cfg.Session.Secret)
	}
}

func TestInit(t *testing.T) {
	t.Run("creates config file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "siashare.toml")
		cfg := NewConfig("i1", dir)

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("config file not created: %v", err)
		}
		if info.Mode().Perm() != 0600 {
			t.Errorf("config file mode = %v, want 0600", info.Mode().Perm())
		}
	})

	t.Run("fails if file already exists", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "siashare.toml")
		cfg := NewConfig("i1", dir)

		if err := Init(path, cfg); err != nil {
			t.Fatalf("first Init() error = %v", err)
		}

		err := Init(path, cfg)
		if err == nil {
			t.Fatal("second Init() expected error")
		}
	})
}

func TestReadFromFile(t *testing.T) {
	t.Run("reads valid config", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "siashare.toml")
		cfg := NewConfig("read-test", dir)
		cfg.Database = DatabaseConfig{Type: "memory"}

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		got, err := ReadFromFile(path)
		if err != nil {
			t.Fatalf("ReadFromFile() error = %v", err)
		}
		if got.InstanceID != "read-test" {
			t.Errorf("InstanceID = %q, want %q", got.InstanceID, "read-test")
		}
		if got.Database.Type != "memory" {
			t.Errorf("Database.Type = %q, want memory", got.Database.Type)
		}
	})

	t.Run("returns error for missing file", func(t *testing.T) {
		_, err := ReadFromFile("/nonexistent/path/siashare.toml")
		if err == nil {
			t.Fatal("ReadFromFile() expected error for missing file")
		}
	})
}
