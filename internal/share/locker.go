package share

import (
	"context"
	"time"
)

// Locker grants a named, expiring, single-holder lock. It guards work that
// must not run in two processes at once (GC sweeps).
type Locker interface {
	// TryLock attempts to take key for ttl. ok is false if another holder has it.
	// unlock is non-nil only when ok is true.
	TryLock(ctx context.Context, key string, ttl time.Duration) (unlock func(), ok bool, err error)
}

// NopLocker always grants the lock. Used when no shared lock store is configured.
type NopLocker struct{}

func (NopLocker) TryLock(context.Context, string, time.Duration) (func(), bool, error) {
	return func() {}, true, nil
}
