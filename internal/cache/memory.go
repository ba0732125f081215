package cache

import (
	"bytes"
	"fmt"
	"io"
	"maps"
	"slices"
	"sync"

	"siashare-go/internal/share"
)

// MemoryCache is an in-memory Cache for tests. Safe for concurrent use.
type MemoryCache struct {
	mu      sync.RWMutex
	uploads map[string][]byte
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{uploads: make(map[string][]byte)}
}

// Put stores an upload as the upload handler would.
func (c *MemoryCache) Put(tusID string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.uploads[tusID] = bytes.Clone(data)
}

// Has reports whether an upload is cached.
func (c *MemoryCache) Has(tusID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.uploads[tusID]
	return ok
}

func (c *MemoryCache) Stat(tusID string) (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	data, ok := c.uploads[tusID]
	if !ok {
		return 0, fmt.Errorf("cached upload %s: %w", tusID, share.ErrObjectNotFound)
	}
	return int64(len(data)), nil
}

func (c *MemoryCache) Open(tusID string, start, end int64) (io.ReadCloser, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	data, ok := c.uploads[tusID]
	if !ok {
		return nil, fmt.Errorf("cached upload %s: %w", tusID, share.ErrObjectNotFound)
	}
	size := int64(len(data))
	start = min(max(start, 0), size)
	end = min(end, size-1)
	if end < start {
		return io.NopCloser(bytes.NewReader(nil)), nil
	}
	return io.NopCloser(bytes.NewReader(data[start : end+1])), nil
}

func (c *MemoryCache) Delete(tusID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.uploads, tusID)
	return nil
}

func (c *MemoryCache) List() ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Sorted(maps.Keys(c.uploads)), nil
}

// Compile-time check that MemoryCache implements share.Cache interface
var _ share.Cache = (*MemoryCache)(nil)
