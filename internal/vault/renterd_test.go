package vault

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"siashare-go/internal/config"
	"siashare-go/internal/share"
)

// fakeRenterd impersonates the worker object API of a renterd node.
type fakeRenterd struct {
	mu       sync.Mutex
	password string
	objects  map[string][]byte // path below /api/worker/objects/
	down     bool
	buckets  []string
}

func newFakeRenterd(t *testing.T, password string) (*fakeRenterd, *httptest.Server) {
	t.Helper()
	f := &fakeRenterd{password: password, objects: make(map[string][]byte)}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeRenterd) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.down {
		http.Error(w, "bus unavailable", http.StatusServiceUnavailable)
		return
	}
	if _, pass, ok := r.BasicAuth(); !ok || pass != f.password {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if r.URL.Path == "/api/worker/state" {
		w.Write([]byte(`{"id":"worker"}`))
		return
	}
	path, ok := strings.CutPrefix(r.URL.Path, "/api/worker/objects/")
	if !ok {
		http.NotFound(w, r)
		return
	}
	f.buckets = append(f.buckets, r.URL.Query().Get("bucket"))

	switch r.Method {
	case http.MethodPut:
		data, _ := io.ReadAll(r.Body)
		f.objects[path] = data
	case http.MethodGet, http.MethodHead:
		data, ok := f.objects[path]
		if !ok {
			http.Error(w, "object not found", http.StatusNotFound)
			return
		}
		http.ServeContent(w, r, path, time.Time{}, bytes.NewReader(data))
	case http.MethodDelete:
		if r.URL.Query().Get("batch") != "true" {
			http.Error(w, "batch required for prefix", http.StatusBadRequest)
			return
		}
		found := false
		for k := range f.objects {
			if strings.HasPrefix(k, path) {
				delete(f.objects, k)
				found = true
			}
		}
		if !found {
			http.Error(w, "object not found", http.StatusNotFound)
		}
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func TestRenterdVault(t *testing.T) {
	_, srv := newFakeRenterd(t, "secret")
	v := NewRenterdVault(config.VaultConfig{RenterdURL: srv.URL, RenterdPassword: "secret"}, srv.Client())
	testVaultContract(t, v)
}

func TestRenterdVault_Layout(t *testing.T) {
	fake, srv := newFakeRenterd(t, "secret")
	v := NewRenterdVault(config.VaultConfig{
		RenterdURL:      srv.URL + "/",
		RenterdPassword: "secret",
		RenterdRootDir:  "/shares/",
		RenterdBucket:   "default",
	}, srv.Client())

	if err := v.Put(context.Background(), "room", "tus", strings.NewReader("abc"), 3); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if _, ok := fake.objects["shares/room/tus"]; !ok {
		t.Errorf("stored paths = %v, want shares/room/tus", fake.objects)
	}
	if len(fake.buckets) == 0 || fake.buckets[0] != "default" {
		t.Errorf("bucket query = %v, want default", fake.buckets)
	}
}

func TestRenterdVault_Failures(t *testing.T) {
	ctx := context.Background()

	t.Run("wrong password", func(t *testing.T) {
		_, srv := newFakeRenterd(t, "secret")
		v := NewRenterdVault(config.VaultConfig{RenterdURL: srv.URL, RenterdPassword: "wrong"}, srv.Client())

		if err := v.ValidateSetup(ctx); err == nil {
			t.Error("ValidateSetup() with wrong password succeeded")
		}
		if err := v.Put(ctx, "room", "tus", strings.NewReader("x"), 1); err == nil {
			t.Error("Put() with wrong password succeeded")
		}
	})

	t.Run("node down is not absence", func(t *testing.T) {
		fake, srv := newFakeRenterd(t, "secret")
		v := NewRenterdVault(config.VaultConfig{RenterdURL: srv.URL, RenterdPassword: "secret"}, srv.Client())
		fake.down = true

		err := v.DeleteRoom(ctx, "room")
		if err == nil {
			t.Fatal("DeleteRoom() against a down node succeeded")
		}
		if _, err := v.Stat(ctx, "room", "tus"); err == nil || errors.Is(err, share.ErrObjectNotFound) {
			t.Errorf("Stat() error = %v, want a transport error", err)
		}
	})

	t.Run("unreachable node", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		v := NewRenterdVault(config.VaultConfig{RenterdURL: url}, nil)
		if err := v.DeleteRoom(ctx, "room"); err == nil {
			t.Error("DeleteRoom() against a closed server succeeded")
		}
	})
}
