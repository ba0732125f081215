package share

import "time"

// Metrics receives operational counters from the service layer.
// The Prometheus implementation lives in internal/metrics.
type Metrics interface {
	RoomCreated()
	UploadAccepted()
	UploadRejected(reason string)
	PromotionFinished(result string, elapsed time.Duration)
	DownloadServed(tier string, bytes int64)
	DownloadFailed(reason string)
	TierFallback(from, to string)
	SweepFinished(result *SweepResult, elapsed time.Duration)
}

// NopMetrics discards everything.
type NopMetrics struct{}

func (NopMetrics) RoomCreated()                              {}
func (NopMetrics) UploadAccepted()                           {}
func (NopMetrics) UploadRejected(string)                     {}
func (NopMetrics) PromotionFinished(string, time.Duration)   {}
func (NopMetrics) DownloadServed(string, int64)              {}
func (NopMetrics) DownloadFailed(string)                     {}
func (NopMetrics) TierFallback(string, string)               {}
func (NopMetrics) SweepFinished(*SweepResult, time.Duration) {}
