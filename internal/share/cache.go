package share

import "io"

// Cache is the Local Cache Tier: the resumable-upload store's finished files,
// addressed by upload id. Files may vanish at any time (GC eviction), so every
// method reports absence with ErrObjectNotFound.
type Cache interface {
	// Stat returns the size of a cached upload.
	Stat(tusID string) (int64, error)

	// Open returns a reader over bytes [start, end] (inclusive) of a cached upload.
	Open(tusID string, start, end int64) (io.ReadCloser, error)

	// Delete removes a cached upload. Deleting a missing upload succeeds.
	Delete(tusID string) error

	// List returns the ids of all cached uploads, including unfinished ones.
	List() ([]string, error)
}
