// Package metrics exports service counters in the Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"siashare-go/internal/share"
)

// Prometheus implements share.Metrics over a private registry.
type Prometheus struct {
	registry *prometheus.Registry

	RoomsCreated      prometheus.Counter       // siashare_rooms_created_total
	Uploads           *prometheus.CounterVec   // siashare_uploads_total{result}
	Promotions        *prometheus.CounterVec   // siashare_promotions_total{result}
	PromotionDuration prometheus.Histogram     // siashare_promotion_duration_seconds
	DownloadBytes     *prometheus.CounterVec   // siashare_download_bytes_total{tier}
	Downloads         *prometheus.CounterVec   // siashare_downloads_total{tier}
	DownloadFailures  *prometheus.CounterVec   // siashare_download_failures_total{reason}
	TierFallbacks     *prometheus.CounterVec   // siashare_tier_fallbacks_total{from,to}
	Sweeps            *prometheus.CounterVec   // siashare_gc_sweeps_total{status}
	SweepRooms        *prometheus.CounterVec   // siashare_gc_rooms_total{outcome}
	FilesEvicted      prometheus.Counter       // siashare_gc_files_evicted_total
	SweepDuration     prometheus.Histogram     // siashare_gc_sweep_duration_seconds
	HTTPRequests      *prometheus.CounterVec   // siashare_http_requests_total{route,code}
	HTTPDuration      *prometheus.HistogramVec // siashare_http_request_duration_seconds{route}
	TrackerPeers      prometheus.Gauge         // siashare_tracker_peers
}

// New registers every metric on a fresh registry, along with the Go and
// process collectors.
func New() *Prometheus {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Prometheus{
		registry: reg,
		RoomsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "siashare_rooms_created_total",
			Help: "Rooms created",
		}),
		Uploads: f.NewCounterVec(prometheus.CounterOpts{
			Name: "siashare_uploads_total",
			Help: "Upload creations by result",
		}, []string{"result"}),
		Promotions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "siashare_promotions_total",
			Help: "Promotions to the vault by result",
		}, []string{"result"}),
		PromotionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "siashare_promotion_duration_seconds",
			Help:    "Time from promotion start to success or give-up, retries included",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		DownloadBytes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "siashare_download_bytes_total",
			Help: "Bytes served by the tier that finished the stream",
		}, []string{"tier"}),
		Downloads: f.NewCounterVec(prometheus.CounterOpts{
			Name: "siashare_downloads_total",
			Help: "Completed download streams by tier",
		}, []string{"tier"}),
		DownloadFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "siashare_download_failures_total",
			Help: "Downloads that no tier could serve",
		}, []string{"reason"}),
		TierFallbacks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "siashare_tier_fallbacks_total",
			Help: "Reads that moved from one storage tier to the next",
		}, []string{"from", "to"}),
		Sweeps: f.NewCounterVec(prometheus.CounterOpts{
			Name: "siashare_gc_sweeps_total",
			Help: "GC sweeps by status",
		}, []string{"status"}),
		SweepRooms: f.NewCounterVec(prometheus.CounterOpts{
			Name: "siashare_gc_rooms_total",
			Help: "Expired rooms handled by GC",
		}, []string{"outcome"}),
		FilesEvicted: f.NewCounter(prometheus.CounterOpts{
			Name: "siashare_gc_files_evicted_total",
			Help: "Promoted uploads evicted from the cache",
		}),
		SweepDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "siashare_gc_sweep_duration_seconds",
			Help:    "GC sweep duration",
			Buckets: prometheus.DefBuckets,
		}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "siashare_http_requests_total",
			Help: "HTTP requests by route and status code",
		}, []string{"route", "code"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "siashare_http_request_duration_seconds",
			Help:    "HTTP request duration by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		TrackerPeers: f.NewGauge(prometheus.GaugeOpts{
			Name: "siashare_tracker_peers",
			Help: "Peers connected to the tracker",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}

func (p *Prometheus) RoomCreated() {
	p.RoomsCreated.Inc()
}

func (p *Prometheus) UploadAccepted() {
	p.Uploads.WithLabelValues("accepted").Inc()
}

func (p *Prometheus) UploadRejected(reason string) {
	p.Uploads.WithLabelValues(reason).Inc()
}

func (p *Prometheus) PromotionFinished(result string, elapsed time.Duration) {
	p.Promotions.WithLabelValues(result).Inc()
	p.PromotionDuration.Observe(elapsed.Seconds())
}

func (p *Prometheus) DownloadServed(tier string, bytes int64) {
	p.Downloads.WithLabelValues(tier).Inc()
	p.DownloadBytes.WithLabelValues(tier).Add(float64(bytes))
}

func (p *Prometheus) DownloadFailed(reason string) {
	p.DownloadFailures.WithLabelValues(reason).Inc()
}

func (p *Prometheus) TierFallback(from, to string) {
	p.TierFallbacks.WithLabelValues(from, to).Inc()
}

func (p *Prometheus) SweepFinished(result *share.SweepResult, elapsed time.Duration) {
	p.Sweeps.WithLabelValues(result.Status).Inc()
	p.SweepRooms.WithLabelValues("reclaimed").Add(float64(result.RoomsReclaimed))
	p.SweepRooms.WithLabelValues("deferred").Add(float64(result.RoomsDeferred))
	p.FilesEvicted.Add(float64(result.FilesEvicted))
	p.SweepDuration.Observe(elapsed.Seconds())
}

// ObserveRequest records one finished HTTP request.
func (p *Prometheus) ObserveRequest(route string, code int, elapsed time.Duration) {
	p.HTTPRequests.WithLabelValues(route, statusClass(code)).Inc()
	p.HTTPDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

// PeersChanged adjusts the connected tracker peer gauge by delta.
func (p *Prometheus) PeersChanged(delta int) {
	p.TrackerPeers.Add(float64(delta))
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

var _ share.Metrics = (*Prometheus)(nil)
