package share

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// Clock abstracts time retrieval so business logic is deterministic in tests.
type Clock interface {
	Now() time.Time
}

// RealClock returns the actual current time.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// IDGenerator abstracts unique ID generation so tests are deterministic.
type IDGenerator interface {
	New() string
}

// UUIDGenerator produces random UUIDs. Used for upload identifiers.
type UUIDGenerator struct{}

func (UUIDGenerator) New() string { return uuid.New().String() }

// RandomHexGenerator produces hex-encoded random values of Bytes length.
// Room ids and writer tokens come from here, so Bytes must be at least 16.
type RandomHexGenerator struct {
	Bytes int
}

func (g RandomHexGenerator) New() string {
	n := g.Bytes
	if n < 16 {
		n = 16
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand only fails if the OS entropy source is broken.
		panic("reading random bytes: " + err.Error())
	}
	return hex.EncodeToString(buf)
}
