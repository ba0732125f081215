package vault

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"siashare-go/internal/share"
)

// MemoryVault is an in-memory implementation of the Vault interface.
// It is useful for tests and single-process demos. Safe for concurrent use.
type MemoryVault struct {
	name    string
	objects map[string]map[string][]byte // room -> upload -> bytes
	mu      sync.RWMutex
}

// NewMemoryVault creates a new in-memory vault with the given name.
func NewMemoryVault(name string) *MemoryVault {
	return &MemoryVault{
		name:    name,
		objects: make(map[string]map[string][]byte),
	}
}

// Put stores an object, replacing any previous one under the same key.
func (m *MemoryVault) Put(ctx context.Context, roomID, tusID string, r io.Reader, size int64) error {
	if _, err := objectKey(roomID, tusID); err != nil {
		return err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read content: %w", err)
	}
	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	room, ok := m.objects[roomID]
	if !ok {
		room = make(map[string][]byte)
		m.objects[roomID] = room
	}
	room[tusID] = data
	return nil
}

func (m *MemoryVault) get(roomID, tusID string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.objects[roomID][tusID]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", roomID, tusID, share.ErrObjectNotFound)
	}
	return data, nil
}

// Stat returns the size of a stored object.
func (m *MemoryVault) Stat(ctx context.Context, roomID, tusID string) (int64, error) {
	data, err := m.get(roomID, tusID)
	if err != nil {
		return 0, err
	}
	return int64(len(data)), nil
}

// Open returns a reader over [start, end] of a stored object.
func (m *MemoryVault) Open(ctx context.Context, roomID, tusID string, start, end int64) (io.ReadCloser, error) {
	data, err := m.get(roomID, tusID)
	if err != nil {
		return nil, err
	}
	lo, hi := clampRange(start, end, int64(len(data)))
	return io.NopCloser(bytes.NewReader(data[lo:hi])), nil
}

// DeleteRoom removes every object of a room.
func (m *MemoryVault) DeleteRoom(ctx context.Context, roomID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.objects, roomID)
	return nil
}

// ValidateSetup always succeeds for in-memory vault.
func (m *MemoryVault) ValidateSetup(ctx context.Context) error {
	return nil
}

// Compile-time check that MemoryVault implements share.Vault interface
var _ share.Vault = (*MemoryVault)(nil)
