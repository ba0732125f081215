package testutil

import (
	"context"
	"errors"
	"io"
	"sync"

	"siashare-go/internal/share"
	"siashare-go/internal/vault"
)

// ErrInjected is returned by the failing test doubles.
var ErrInjected = errors.New("injected failure")

// NewTestVault creates a new in-memory vault for testing.
func NewTestVault() *vault.MemoryVault {
	return vault.NewMemoryVault("test-vault")
}

// FailingVault wraps a vault and fails selected operations on demand.
type FailingVault struct {
	share.Vault

	mu          sync.Mutex
	putFailures int
	failOpen    bool
	failDelete  bool
	putCalls    int
	deleteCalls int
	held        chan struct{}
	release     chan struct{}
}

// NewFailingVault wraps an in-memory vault.
func NewFailingVault() *FailingVault {
	return &FailingVault{Vault: NewTestVault()}
}

// FailPuts makes the next n Put calls fail. A negative n fails every call.
func (v *FailingVault) FailPuts(n int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.putFailures = n
}

// FailOpen toggles failures of Stat and Open.
func (v *FailingVault) FailOpen(fail bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.failOpen = fail
}

// FailDelete toggles failures of DeleteRoom.
func (v *FailingVault) FailDelete(fail bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.failDelete = fail
}

// HoldPuts makes Put block before writing until the returned release func is
// called. The returned channel receives once per Put that reached the hold.
func (v *FailingVault) HoldPuts() (<-chan struct{}, func()) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.held = make(chan struct{}, 16)
	v.release = make(chan struct{})
	var once sync.Once
	release := v.release
	return v.held, func() { once.Do(func() { close(release) }) }
}

// PutCalls returns the number of Put calls, failed ones included.
func (v *FailingVault) PutCalls() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.putCalls
}

// DeleteCalls returns the number of DeleteRoom calls.
func (v *FailingVault) DeleteCalls() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.deleteCalls
}

func (v *FailingVault) Put(ctx context.Context, roomID, tusID string, r io.Reader, size int64) error {
	v.mu.Lock()
	v.putCalls++
	fail := v.putFailures != 0
	if v.putFailures > 0 {
		v.putFailures--
	}
	held, release := v.held, v.release
	v.mu.Unlock()
	if fail {
		return ErrInjected
	}
	if release != nil {
		held <- struct{}{}
		select {
		case <-release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return v.Vault.Put(ctx, roomID, tusID, r, size)
}

func (v *FailingVault) Stat(ctx context.Context, roomID, tusID string) (int64, error) {
	if v.openFails() {
		return 0, ErrInjected
	}
	return v.Vault.Stat(ctx, roomID, tusID)
}

func (v *FailingVault) Open(ctx context.Context, roomID, tusID string, start, end int64) (io.ReadCloser, error) {
	if v.openFails() {
		return nil, ErrInjected
	}
	return v.Vault.Open(ctx, roomID, tusID, start, end)
}

func (v *FailingVault) DeleteRoom(ctx context.Context, roomID string) error {
	v.mu.Lock()
	v.deleteCalls++
	fail := v.failDelete
	v.mu.Unlock()
	if fail {
		return ErrInjected
	}
	return v.Vault.DeleteRoom(ctx, roomID)
}

func (v *FailingVault) openFails() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.failOpen
}

var _ share.Vault = (*FailingVault)(nil)
