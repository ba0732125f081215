package testutil

import (
	"sync"
	"time"

	"siashare-go/internal/share"
)

// RecordingMetrics counts the events it receives. Safe for concurrent use.
type RecordingMetrics struct {
	mu     sync.Mutex
	events map[string]int
	served map[string]int64
}

func NewRecordingMetrics() *RecordingMetrics {
	return &RecordingMetrics{events: make(map[string]int), served: make(map[string]int64)}
}

// Count returns how often an event was seen, e.g. "promotion:success".
func (m *RecordingMetrics) Count(event string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.events[event]
}

// Served returns the bytes reported for a tier.
func (m *RecordingMetrics) Served(tier string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.served[tier]
}

func (m *RecordingMetrics) inc(event string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[event]++
}

func (m *RecordingMetrics) RoomCreated()                 { m.inc("room_created") }
func (m *RecordingMetrics) UploadAccepted()              { m.inc("upload_accepted") }
func (m *RecordingMetrics) UploadRejected(reason string) { m.inc("upload_rejected:" + reason) }
func (m *RecordingMetrics) DownloadFailed(reason string) { m.inc("download_failed:" + reason) }
func (m *RecordingMetrics) TierFallback(from, to string) { m.inc("fallback:" + from + ":" + to) }

func (m *RecordingMetrics) PromotionFinished(result string, _ time.Duration) {
	m.inc("promotion:" + result)
}

func (m *RecordingMetrics) DownloadServed(tier string, bytes int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events["served:"+tier]++
	m.served[tier] += bytes
}

func (m *RecordingMetrics) SweepFinished(result *share.SweepResult, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events["sweep:"+result.Status]++
}

var _ share.Metrics = (*RecordingMetrics)(nil)
