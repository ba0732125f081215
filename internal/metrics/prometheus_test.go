package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"siashare-go/internal/share"
)

func TestPrometheus_Counters(t *testing.T) {
	m := New()

	m.RoomCreated()
	m.RoomCreated()
	m.UploadAccepted()
	m.UploadRejected("forbidden")
	m.PromotionFinished("success", 2*time.Second)
	m.PromotionFinished("failed", time.Minute)
	m.DownloadServed(share.TierCache, 100)
	m.DownloadServed(share.TierVault, 50)
	m.DownloadServed(share.TierVault, 25)
	m.DownloadFailed("upstream")
	m.TierFallback(share.TierCache, share.TierVault)

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"rooms created", testutil.ToFloat64(m.RoomsCreated), 2},
		{"uploads accepted", testutil.ToFloat64(m.Uploads.WithLabelValues("accepted")), 1},
		{"uploads forbidden", testutil.ToFloat64(m.Uploads.WithLabelValues("forbidden")), 1},
		{"promotions ok", testutil.ToFloat64(m.Promotions.WithLabelValues("success")), 1},
		{"promotions failed", testutil.ToFloat64(m.Promotions.WithLabelValues("failed")), 1},
		{"cache bytes", testutil.ToFloat64(m.DownloadBytes.WithLabelValues(share.TierCache)), 100},
		{"vault bytes", testutil.ToFloat64(m.DownloadBytes.WithLabelValues(share.TierVault)), 75},
		{"vault downloads", testutil.ToFloat64(m.Downloads.WithLabelValues(share.TierVault)), 2},
		{"failures", testutil.ToFloat64(m.DownloadFailures.WithLabelValues("upstream")), 1},
		{"fallbacks", testutil.ToFloat64(m.TierFallbacks.WithLabelValues(share.TierCache, share.TierVault)), 1},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestPrometheus_SweepFinished(t *testing.T) {
	m := New()
	m.SweepFinished(&share.SweepResult{RoomsReclaimed: 3, RoomsDeferred: 1, FilesEvicted: 4, Status: share.SweepCompleted}, time.Second)
	m.SweepFinished(&share.SweepResult{Status: share.SweepSkipped}, 0)

	if v := testutil.ToFloat64(m.Sweeps.WithLabelValues(share.SweepCompleted)); v != 1 {
		t.Errorf("completed sweeps = %v, want 1", v)
	}
	if v := testutil.ToFloat64(m.Sweeps.WithLabelValues(share.SweepSkipped)); v != 1 {
		t.Errorf("skipped sweeps = %v, want 1", v)
	}
	if v := testutil.ToFloat64(m.SweepRooms.WithLabelValues("reclaimed")); v != 3 {
		t.Errorf("reclaimed = %v, want 3", v)
	}
	if v := testutil.ToFloat64(m.SweepRooms.WithLabelValues("deferred")); v != 1 {
		t.Errorf("deferred = %v, want 1", v)
	}
	if v := testutil.ToFloat64(m.FilesEvicted); v != 4 {
		t.Errorf("evicted = %v, want 4", v)
	}
}

func TestStatusClass(t *testing.T) {
	tests := map[int]string{200: "2xx", 206: "2xx", 304: "3xx", 404: "4xx", 416: "4xx", 502: "5xx"}
	for code, want := range tests {
		if got := statusClass(code); got != want {
			t.Errorf("statusClass(%d) = %q, want %q", code, got, want)
		}
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.RoomCreated()
	m.ObserveRequest("POST /api/room", 201, 10*time.Millisecond)
	m.PeersChanged(2)
	m.PeersChanged(-1)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	resp := rec.Result()
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	for _, want := range []string{
		"siashare_rooms_created_total 1",
		`siashare_http_requests_total{code="2xx",route="POST /api/room"} 1`,
		"siashare_tracker_peers 1",
		"go_goroutines",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}
