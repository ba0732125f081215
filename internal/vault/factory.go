package vault

import (
	"context"
	"fmt"

	"siashare-go/internal/config"
	"siashare-go/internal/share"
)

// NewVaultFromConfig creates a Vault implementation based on the vault config type.
func NewVaultFromConfig(ctx context.Context, cfg config.VaultConfig) (share.Vault, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryVault(cfg.Name), nil
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("s3 vault requires s3_bucket to be set")
		}
		return NewS3Vault(ctx, cfg)
	case "renterd":
		if cfg.RenterdURL == "" {
			return nil, fmt.Errorf("renterd vault requires renterd_url to be set")
		}
		return NewRenterdVault(cfg, nil), nil
	case "filesystem":
		if cfg.FSVaultRoot == "" {
			return nil, fmt.Errorf("filesystem vault requires fs_vault_root to be set")
		}
		return NewFileSystemVault(cfg.Name, cfg.FSVaultRoot)
	default:
		return nil, fmt.Errorf("unknown vault type: %s", cfg.Type)
	}
}
