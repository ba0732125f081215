package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestUpload_CancelInterruptsChunk(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			w.Header().Set("Location", uploadPath+"up-1")
			w.WriteHeader(http.StatusCreated)
		case http.MethodPatch:
			_, _ = io.Copy(io.Discard, r.Body)
			once.Do(func() { close(entered) })
			select {
			case <-r.Context().Done():
			case <-release:
			}
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()
	defer close(release)

	c, err := New(srv.URL, Options{ChunkSize: 4, MaxAttempts: 3})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errc := make(chan error, 1)
	go func() {
		_, err := c.Upload(ctx, "room-1", "writer", "file-1", strings.NewReader("payload"), 7)
		errc <- err
	}()

	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("no chunk reached the server")
	}
	cancel()

	select {
	case err := <-errc:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Upload error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Upload kept waiting on the chunk after cancel")
	}
}

func TestUpload_SendsRoomHeadersOnEveryRequest(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	var received strings.Builder
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, r.Method+" "+r.Header.Get("X-Room-Id")+" "+r.Header.Get("X-Writer-Auth-Token")+" "+r.Header.Get("X-File-Id"))
		switch r.Method {
		case http.MethodPost:
			w.Header().Set("Location", uploadPath+"up-1")
			w.WriteHeader(http.StatusCreated)
		case http.MethodPatch:
			data, _ := io.ReadAll(r.Body)
			received.Write(data)
			w.Header().Set("Upload-Offset", strconv.Itoa(received.Len()))
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	defer srv.Close()

	c, err := New(srv.URL, Options{ChunkSize: 3})
	if err != nil {
		t.Fatal(err)
	}
	id, err := c.Upload(context.Background(), "room-1", "writer", "file-1", strings.NewReader("payload"), 7)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if id != "up-1" {
		t.Errorf("upload id = %q, want up-1", id)
	}
	if received.String() != "payload" {
		t.Errorf("server received %q", received.String())
	}
	if len(seen) != 4 {
		t.Fatalf("requests = %v, want 1 POST and 3 PATCH", seen)
	}
	for _, s := range seen {
		if !strings.HasSuffix(s, " room-1 writer file-1") {
			t.Errorf("request %q missing room headers", s)
		}
	}
}
