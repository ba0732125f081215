package app

import (
	"fmt"
	"os"
	"path/filepath"

	"siashare-go/internal/config"
)

// Paths locates the server's config file and the directory holding its
// database, upload cache, filesystem vault and logs.
type Paths struct {
	ConfigPath string
	BaseDir    string
}

// ResolvePaths applies, in order: SIASHARE_CONFIG_PATH / SIASHARE_HOME,
// XDG_CONFIG_HOME / XDG_DATA_HOME, then ~/.config and ~/.local/share.
func ResolvePaths() (Paths, error) {
	var p Paths
	var err error
	p.ConfigPath, err = resolve("SIASHARE_CONFIG_PATH", "XDG_CONFIG_HOME", ".config", "siashare.toml")
	if err != nil {
		return Paths{}, err
	}
	p.BaseDir, err = resolve("SIASHARE_HOME", "XDG_DATA_HOME", filepath.Join(".local", "share"), "siashare")
	if err != nil {
		return Paths{}, err
	}
	return p, nil
}

// NewConfig returns the default config with every directory under BaseDir.
func (p Paths) NewConfig(instanceID string) *config.Config {
	return config.NewConfig(instanceID, p.BaseDir)
}

func resolve(override, xdg, homeRel, name string) (string, error) {
	if path := os.Getenv(override); path != "" {
		return path, nil
	}
	if dir := os.Getenv(xdg); dir != "" && filepath.IsAbs(dir) {
		return filepath.Join(dir, name), nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, homeRel, name), nil
}
