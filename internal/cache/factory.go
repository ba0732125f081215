package cache

import (
	"fmt"

	"siashare-go/internal/config"
)

// NewCacheFromConfig creates the filesystem cache over the upload directory.
func NewCacheFromConfig(cfg config.CacheConfig) (*FileSystemCache, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("cache dir required")
	}
	return NewFileSystemCache(cfg.Dir)
}
