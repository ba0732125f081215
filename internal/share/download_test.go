package share_test

import (
	"context"
	"errors"
	"io"
	"testing"

	"siashare-go/internal/share"
)

func readDownload(t *testing.T, d *share.Download) string {
	t.Helper()
	defer d.Body.Close()
	data, err := io.ReadAll(d.Body)
	if err != nil {
		t.Fatalf("reading download: %v", err)
	}
	return string(data)
}

func TestOpenDownload_Tiers(t *testing.T) {
	ctx := context.Background()

	t.Run("served from cache", func(t *testing.T) {
		h := newHarness(t, share.Options{})
		room := h.createRoom(t)
		h.upload(t, room, "f1", "tus-1", []byte("hello world"))

		d, err := h.svc.OpenDownload(ctx, share.DownloadRequest{RoomID: room.ID, Ref: "tus-1", ReaderToken: "reader-token"})
		if err != nil {
			t.Fatalf("OpenDownload: %v", err)
		}
		if d.Tier != share.TierCache {
			t.Errorf("Tier = %q, want cache", d.Tier)
		}
		if got := readDownload(t, d); got != "hello world" {
			t.Errorf("body = %q", got)
		}
		if h.metrics.Served(share.TierCache) != 11 {
			t.Errorf("served from cache = %d, want 11", h.metrics.Served(share.TierCache))
		}
	})

	t.Run("cache miss falls back to vault", func(t *testing.T) {
		h := newHarness(t, share.Options{})
		room := h.createRoom(t)
		h.upload(t, room, "f1", "tus-1", []byte("hello world"))
		if err := h.cache.Delete("tus-1"); err != nil {
			t.Fatal(err)
		}

		d, err := h.svc.OpenDownload(ctx, share.DownloadRequest{RoomID: room.ID, Ref: "tus-1", ReaderToken: "reader-token"})
		if err != nil {
			t.Fatalf("OpenDownload: %v", err)
		}
		if d.Tier != share.TierVault {
			t.Errorf("Tier = %q, want vault", d.Tier)
		}
		if got := readDownload(t, d); got != "hello world" {
			t.Errorf("body = %q", got)
		}
		if h.metrics.Count("fallback:cache:vault") != 1 {
			t.Errorf("fallback count = %d, want 1", h.metrics.Count("fallback:cache:vault"))
		}
	})

	t.Run("absent from both tiers", func(t *testing.T) {
		h := newHarness(t, share.Options{})
		room := h.createRoom(t)
		h.vault.FailPuts(-1)
		h.upload(t, room, "f1", "tus-1", []byte("hello"))
		if err := h.cache.Delete("tus-1"); err != nil {
			t.Fatal(err)
		}

		_, err := h.svc.OpenDownload(ctx, share.DownloadRequest{RoomID: room.ID, Ref: "tus-1", ReaderToken: "reader-token"})
		if !errors.Is(err, share.ErrFileUnavailable) {
			t.Errorf("error = %v, want ErrFileUnavailable", err)
		}
	})

	t.Run("vault unreachable", func(t *testing.T) {
		h := newHarness(t, share.Options{})
		room := h.createRoom(t)
		h.upload(t, room, "f1", "tus-1", []byte("hello"))
		if err := h.cache.Delete("tus-1"); err != nil {
			t.Fatal(err)
		}
		h.vault.FailOpen(true)

		_, err := h.svc.OpenDownload(ctx, share.DownloadRequest{RoomID: room.ID, Ref: "tus-1", ReaderToken: "reader-token"})
		if !errors.Is(err, share.ErrUpstreamUnavailable) {
			t.Errorf("error = %v, want ErrUpstreamUnavailable", err)
		}
		if h.metrics.Count("download_failed:upstream") != 1 {
			t.Errorf("download_failed:upstream = %d, want 1", h.metrics.Count("download_failed:upstream"))
		}
	})
}

func TestOpenDownload_Ranges(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, share.Options{})
	room := h.createRoom(t)
	h.upload(t, room, "f1", "tus-1", []byte("0123456789"))

	tests := []struct {
		name        string
		rangeHeader string
		evictCache  bool
		want        string
		wantPartial bool
		wantErr     error
	}{
		{name: "no range", want: "0123456789"},
		{name: "first byte", rangeHeader: "bytes=0-0", want: "0", wantPartial: true},
		{name: "open ended", rangeHeader: "bytes=7-", want: "789", wantPartial: true},
		{name: "suffix", rangeHeader: "bytes=-2", want: "89", wantPartial: true},
		{name: "past end", rangeHeader: "bytes=10-", wantErr: share.ErrRangeNotSatisfiable},
		{name: "vault range", rangeHeader: "bytes=2-4", evictCache: true, want: "234", wantPartial: true},
		{name: "vault past end", rangeHeader: "bytes=20-30", evictCache: true, wantErr: share.ErrRangeNotSatisfiable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.evictCache {
				_ = h.cache.Delete("tus-1")
			}
			d, err := h.svc.OpenDownload(ctx, share.DownloadRequest{
				RoomID: room.ID, Ref: "tus-1", ReaderToken: "reader-token", Range: tt.rangeHeader,
			})
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("OpenDownload: %v", err)
			}
			if d.Range.Partial != tt.wantPartial {
				t.Errorf("Partial = %v, want %v", d.Range.Partial, tt.wantPartial)
			}
			if d.Range.Size != 10 {
				t.Errorf("Size = %d, want 10", d.Range.Size)
			}
			if got := readDownload(t, d); got != tt.want {
				t.Errorf("body = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestOpenDownload_ResumesFromVaultMidStream(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, share.Options{})
	room := h.createRoom(t)
	h.upload(t, room, "f1", "tus-1", []byte("abcdefghijklmnop"))
	h.cache.BreakAfter(4)

	d, err := h.svc.OpenDownload(ctx, share.DownloadRequest{
		RoomID: room.ID, Ref: "tus-1", ReaderToken: "reader-token", Range: "bytes=2-11",
	})
	if err != nil {
		t.Fatalf("OpenDownload: %v", err)
	}
	if got := readDownload(t, d); got != "cdefghijkl" {
		t.Errorf("body = %q, want cdefghijkl", got)
	}
	if h.metrics.Served(share.TierVault) != 10 {
		t.Errorf("served reported against vault = %d, want 10", h.metrics.Served(share.TierVault))
	}
}

func TestOpenDownload_MidStreamFailureWithoutVault(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, share.Options{})
	room := h.createRoom(t)
	h.upload(t, room, "f1", "tus-1", []byte("abcdefgh"))
	h.cache.BreakAfter(3)
	h.vault.FailOpen(true)

	d, err := h.svc.OpenDownload(ctx, share.DownloadRequest{RoomID: room.ID, Ref: "tus-1", ReaderToken: "reader-token"})
	if err != nil {
		t.Fatalf("OpenDownload: %v", err)
	}
	defer d.Body.Close()
	data, err := io.ReadAll(d.Body)
	if !errors.Is(err, share.ErrUpstreamUnavailable) {
		t.Errorf("read error = %v, want ErrUpstreamUnavailable", err)
	}
	if string(data) != "abc" {
		t.Errorf("partial body = %q, want abc", data)
	}
}

func TestOpenDownload_Resolution(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, share.Options{})
	room := h.createRoom(t)
	other, err := h.svc.CreateRoom(ctx, "other-reader", "salt-2")
	if err != nil {
		t.Fatal(err)
	}
	h.upload(t, room, "f1", "tus-1", []byte("mine"))
	h.upload(t, other, "f1", "tus-2", []byte("theirs"))

	if err := h.svc.OnUploadCreate(ctx, uploadHeader(room, "f-pending"), "tus-3", 4); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		ref     string
		token   string
		want    string
		wantErr error
	}{
		{name: "by upload id", ref: "tus-1", token: "reader-token", want: "mine"},
		{name: "by file id", ref: "f1", token: "reader-token", want: "mine"},
		{name: "upload id of another room", ref: "tus-2", token: "reader-token", wantErr: share.ErrNotFound},
		{name: "unknown ref", ref: "nope", token: "reader-token", wantErr: share.ErrNotFound},
		{name: "pending upload", ref: "tus-3", token: "reader-token", wantErr: share.ErrFileUnavailable},
		{name: "wrong token", ref: "tus-1", token: "other-reader", wantErr: share.ErrForbidden},
		{name: "empty ref", ref: "", token: "reader-token", wantErr: share.ErrInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := h.svc.OpenDownload(ctx, share.DownloadRequest{RoomID: room.ID, Ref: tt.ref, ReaderToken: tt.token})
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("OpenDownload: %v", err)
			}
			if got := readDownload(t, d); got != tt.want {
				t.Errorf("body = %q, want %q", got, tt.want)
			}
		})
	}
}
