package testutil

import (
	"io"
	"sync"

	"siashare-go/internal/cache"
	"siashare-go/internal/share"
)

// FlakyCache wraps a MemoryCache. When BreakAfter is set, readers it opens
// fail with ErrInjected after that many bytes.
type FlakyCache struct {
	*cache.MemoryCache

	mu          sync.Mutex
	breakAfter  int64
	failDeletes bool
}

func NewFlakyCache() *FlakyCache {
	return &FlakyCache{MemoryCache: cache.NewMemoryCache(), breakAfter: -1}
}

// BreakAfter makes subsequent readers fail after n bytes. Negative disables it.
func (c *FlakyCache) BreakAfter(n int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.breakAfter = n
}

// FailDeletes toggles Delete failures.
func (c *FlakyCache) FailDeletes(fail bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failDeletes = fail
}

func (c *FlakyCache) Open(tusID string, start, end int64) (io.ReadCloser, error) {
	rc, err := c.MemoryCache.Open(tusID, start, end)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	n := c.breakAfter
	c.mu.Unlock()
	if n < 0 {
		return rc, nil
	}
	return &brokenReader{r: io.LimitReader(rc, n), c: rc}, nil
}

func (c *FlakyCache) Delete(tusID string) error {
	c.mu.Lock()
	fail := c.failDeletes
	c.mu.Unlock()
	if fail {
		return ErrInjected
	}
	return c.MemoryCache.Delete(tusID)
}

type brokenReader struct {
	r io.Reader
	c io.Closer
}

func (b *brokenReader) Read(p []byte) (int, error) {
	n, err := b.r.Read(p)
	if err == io.EOF {
		return n, ErrInjected
	}
	return n, err
}

func (b *brokenReader) Close() error { return b.c.Close() }

var _ share.Cache = (*FlakyCache)(nil)
