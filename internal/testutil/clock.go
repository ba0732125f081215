package testutil

import (
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"siashare-go/internal/share"
)

// Epoch is where FixedClock starts.
var Epoch = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

// StubClock only moves when a test advances it, which is how tests push rooms
// and sessions past their expiry. Safe for concurrent use.
type StubClock struct {
	mu  sync.Mutex
	now time.Time
}

// FixedClock returns a StubClock set to Epoch.
func FixedClock() *StubClock {
	return &StubClock{now: Epoch}
}

func (c *StubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *StubClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// SequentialIDs yields "id-1", "id-2", ... so room ids and writer tokens are
// predictable: the first room created is "id-1" with writer token "id-2".
type SequentialIDs struct {
	n atomic.Int64
}

func (g *SequentialIDs) New() string {
	return "id-" + strconv.FormatInt(g.n.Add(1), 10)
}

var (
	_ share.Clock       = (*StubClock)(nil)
	_ share.IDGenerator = (*SequentialIDs)(nil)
)
