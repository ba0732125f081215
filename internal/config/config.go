package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for siashare.
type Config struct {
	InstanceID string   `toml:"instance_id"`
	BaseDir    string   `toml:"base_dir"`
	LogDir     string   `toml:"log_dir"`
	LogLevel   string   `toml:"log_level"` // debug, info, warn or error
	ListenAddr string   `toml:"listen_addr"`
	RoomTTL    Duration `toml:"room_ttl"`

	// BehindProxy trusts X-Forwarded-* headers for client addresses and upload URLs.
	BehindProxy bool `toml:"behind_proxy"`

	Database  DatabaseConfig  `toml:"database"`
	Cache     CacheConfig     `toml:"cache"`
	Vault     VaultConfig     `toml:"vault"`
	GC        GCConfig        `toml:"gc"`
	Promotion PromotionConfig `toml:"promotion"`
	Session   SessionConfig   `toml:"session"`
	Redis     RedisConfig     `toml:"redis"`
	RateLimit RateLimitConfig `toml:"rate_limit"`
	Upload    UploadConfig    `toml:"upload"`
	Tracker   TrackerConfig   `toml:"tracker"`
	TLS       TLSConfig       `toml:"tls"`
	Metrics   MetricsConfig   `toml:"metrics"`
}

// Duration is a time.Duration written as a string ("90s", "24h") in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// DatabaseConfig represents configuration for the metadata database.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// CacheConfig locates the resumable-upload store, which doubles as the local cache.
type CacheConfig struct {
	Dir       string   `toml:"dir"`
	Retention Duration `toml:"retention"` // how long promoted uploads stay cached; 0 keeps them until the room expires
}

// VaultConfig represents configuration for the durable storage backend.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type VaultConfig struct {
	Type string `toml:"type"` // "memory", "filesystem", "s3" or "renterd"
	Name string `toml:"name"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket       string `toml:"s3_bucket,omitempty"`
	S3Prefix       string `toml:"s3_prefix,omitempty"`
	S3Region       string `toml:"s3_region,omitempty"`
	S3Endpoint     string `toml:"s3_endpoint,omitempty"`
	S3AccessKey    string `toml:"s3_access_key,omitempty"`
	S3SecretKey    string `toml:"s3_secret_key,omitempty"`
	S3UsePathStyle bool   `toml:"s3_use_path_style,omitempty"`

	// FileSystem-specific fields (only used when Type == "filesystem")
	FSVaultRoot string `toml:"fs_vault_root,omitempty"`

	// Renterd-specific fields (only used when Type == "renterd")
	RenterdURL      string `toml:"renterd_url,omitempty"`
	RenterdPassword string `toml:"renterd_password,omitempty"`
	RenterdBucket   string `toml:"renterd_bucket,omitempty"`
	RenterdRootDir  string `toml:"renterd_root_dir,omitempty"`
}

// GCConfig controls the periodic sweep.
type GCConfig struct {
	Interval Duration `toml:"interval"`
	LockTTL  Duration `toml:"lock_ttl"`
}

// PromotionConfig bounds the cache-to-vault retry loop.
type PromotionConfig struct {
	MaxAttempts int      `toml:"max_attempts"`
	BaseDelay   Duration `toml:"base_delay"`
	MaxDelay    Duration `toml:"max_delay"`
}

// SessionConfig signs the reader session cookie.
type SessionConfig struct {
	Secret string   `toml:"secret,omitempty"`
	TTL    Duration `toml:"ttl"`
}

// RedisConfig enables the shared sweep lock and rate limiting. Empty Addr disables both.
type RedisConfig struct {
	Addr     string `toml:"addr,omitempty"`
	Password string `toml:"password,omitempty"`
	DB       int    `toml:"db,omitempty"`
	Prefix   string `toml:"prefix,omitempty"`
}

// RateLimitConfig limits room creation per client IP. Zero RoomCreateLimit disables it.
type RateLimitConfig struct {
	RoomCreateLimit int      `toml:"room_create_limit"`
	Window          Duration `toml:"window"`
}

// UploadConfig restricts who may upload and how much.
type UploadConfig struct {
	Password    string `toml:"password,omitempty"`
	MaxFileSize int64  `toml:"max_file_size"` // bytes; 0 means unlimited
	MaxFiles    int    `toml:"max_files"`     // per room; 0 means unlimited
}

// TrackerConfig enables the peer rendezvous endpoint.
type TrackerConfig struct {
	Enabled          bool     `toml:"enabled"`
	AnnounceInterval Duration `toml:"announce_interval"`
}

// TLSConfig serves HTTPS from files or from a generated localhost certificate.
type TLSConfig struct {
	CertFile   string `toml:"cert_file,omitempty"`
	KeyFile    string `toml:"key_file,omitempty"`
	SelfSigned bool   `toml:"self_signed,omitempty"`
}

// Enabled reports whether the server should listen with TLS.
func (c TLSConfig) Enabled() bool {
	return c.SelfSigned || c.CertFile != ""
}

// MetricsConfig exposes Prometheus metrics on /metrics.
type MetricsConfig struct {
	Enabled bool `toml:"enabled"`
}

// NewConfig creates a new Config with the provided values and defaults for everything else.
func NewConfig(instanceID, baseDir string) *Config {
	return &Config{
		InstanceID: instanceID,
		BaseDir:    baseDir,
		LogDir:     filepath.Join(baseDir, "log"),
		LogLevel:   "info",
		ListenAddr: ":8080",
		RoomTTL:    Duration{24 * time.Hour},
		Database:   DatabaseConfig{Type: "sqlite", DataDir: filepath.Join(baseDir, "db")},
		Cache:      CacheConfig{Dir: filepath.Join(baseDir, "uploads"), Retention: Duration{time.Hour}},
		Vault:      VaultConfig{Type: "filesystem", Name: "local", FSVaultRoot: filepath.Join(baseDir, "vault")},
		GC:         GCConfig{Interval: Duration{time.Hour}, LockTTL: Duration{10 * time.Minute}},
		Promotion: PromotionConfig{
			MaxAttempts: 5,
			BaseDelay:   Duration{time.Second},
			MaxDelay:    Duration{time.Minute},
		},
		Session:   SessionConfig{TTL: Duration{time.Hour}},
		RateLimit: RateLimitConfig{Window: Duration{time.Minute}},
		Tracker:   TrackerConfig{Enabled: true, AnnounceInterval: Duration{2 * time.Minute}},
		Metrics:   MetricsConfig{Enabled: true},
	}
}

// ApplyEnv overrides secrets from the environment so they need not live in the file.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("SIASHARE_VAULT_PASSWORD"); v != "" {
		c.Vault.RenterdPassword = v
	}
	if v := os.Getenv("SIASHARE_SESSION_SECRET"); v != "" {
		c.Session.Secret = v
	}
	if v := os.Getenv("SIASHARE_UPLOAD_PASSWORD"); v != "" {
		c.Upload.Password = v
	}
	if v := os.Getenv("SIASHARE_REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
}

// Validate checks backend types and the fields each type requires.
func (c *Config) Validate() error {
	var errs []error

	if c.InstanceID == "" {
		errs = append(errs, errors.New("instance_id is required"))
	}
	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log_level: %s", c.LogLevel))
	}

	switch c.Database.Type {
	case "memory":
	case "sqlite":
		if c.Database.DataDir == "" {
			errs = append(errs, errors.New("database.data_dir required for sqlite database"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown database type: %s", c.Database.Type))
	}

	if c.Cache.Dir == "" {
		errs = append(errs, errors.New("cache.dir is required"))
	}

	switch c.Vault.Type {
	case "memory":
	case "filesystem":
		if c.Vault.FSVaultRoot == "" {
			errs = append(errs, errors.New("filesystem vault requires fs_vault_root to be set"))
		}
	case "s3":
		if c.Vault.S3Bucket == "" {
			errs = append(errs, errors.New("s3 vault requires s3_bucket to be set"))
		}
	case "renterd":
		if c.Vault.RenterdURL == "" {
			errs = append(errs, errors.New("renterd vault requires renterd_url to be set"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown vault type: %s", c.Vault.Type))
	}

	if c.GC.Interval.Duration <= 0 {
		errs = append(errs, errors.New("gc.interval must be positive"))
	}
	if c.Promotion.MaxAttempts < 1 {
		errs = append(errs, errors.New("promotion.max_attempts must be at least 1"))
	}
	if c.RateLimit.RoomCreateLimit > 0 && c.Redis.Addr == "" {
		errs = append(errs, errors.New("rate_limit requires redis.addr"))
	}
	if (c.TLS.CertFile == "") != (c.TLS.KeyFile == "") {
		errs = append(errs, errors.New("tls.cert_file and tls.key_file must be set together"))
	}

	return errors.Join(errs...)
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// The file may hold secrets.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
