package share

import (
	"context"
	"io"
)

// Vault is the Durable Object Tier. Objects are keyed by (roomID, tusID) so a
// whole room can be removed with one prefix delete.
type Vault interface {
	// Put stores size bytes read from r. Storing the same key twice overwrites it.
	Put(ctx context.Context, roomID, tusID string, r io.Reader, size int64) error

	// Stat returns the size of a stored object, or ErrObjectNotFound.
	Stat(ctx context.Context, roomID, tusID string) (int64, error)

	// Open returns a reader over bytes [start, end] (inclusive) of an object,
	// or ErrObjectNotFound. The caller closes the reader.
	Open(ctx context.Context, roomID, tusID string, start, end int64) (io.ReadCloser, error)

	// DeleteRoom removes every object under the room. Deleting a room that has
	// no objects succeeds; only transport or backend failures return an error.
	DeleteRoom(ctx context.Context, roomID string) error

	// ValidateSetup verifies that the vault is reachable and configured.
	ValidateSetup(ctx context.Context) error
}
