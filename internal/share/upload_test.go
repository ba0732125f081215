package share_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"siashare-go/internal/share"
)

func TestOnUploadCreate(t *testing.T) {
	h := newHarness(t, share.Options{})
	ctx := context.Background()
	room := h.createRoom(t)

	if err := h.svc.OnUploadCreate(ctx, uploadHeader(room, "f1"), "tus-1", 42); err != nil {
		t.Fatalf("OnUploadCreate: %v", err)
	}
	file, err := h.db.FindFileByTusID(ctx, "tus-1")
	if err != nil || file == nil {
		t.Fatalf("FindFileByTusID: %v, %v", file, err)
	}
	if file.RoomID != room.ID || file.FileID != "f1" || file.Status {
		t.Errorf("file = %+v", file)
	}
	if h.metrics.Count("upload_accepted") != 1 {
		t.Errorf("upload_accepted = %d, want 1", h.metrics.Count("upload_accepted"))
	}
}

func TestOnUploadCreate_Rejections(t *testing.T) {
	h := newHarness(t, share.Options{})
	room := h.createRoom(t)

	without := func(name string) http.Header {
		hdr := uploadHeader(room, "f1")
		hdr.Del(name)
		return hdr
	}
	wrongToken := uploadHeader(room, "f1")
	wrongToken.Set(share.HeaderWriterToken, "reader-token")
	unknownRoom := uploadHeader(room, "f1")
	unknownRoom.Set(share.HeaderRoomID, "missing")

	tests := []struct {
		name    string
		header  http.Header
		wantErr error
		reason  string
	}{
		{"no room id", without(share.HeaderRoomID), share.ErrInvalidRequest, "invalid"},
		{"no writer token", without(share.HeaderWriterToken), share.ErrInvalidRequest, "invalid"},
		{"no file id", without(share.HeaderFileID), share.ErrInvalidRequest, "invalid"},
		{"wrong token", wrongToken, share.ErrForbidden, "forbidden"},
		{"unknown room", unknownRoom, share.ErrNotFound, "not_found"},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tusID := "tus-" + string(rune('a'+i))
			err := h.svc.OnUploadCreate(context.Background(), tt.header, tusID, 1)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
			file, _ := h.db.FindFileByTusID(context.Background(), tusID)
			if file != nil {
				t.Error("rejected upload was recorded")
			}
		})
	}
	if got := h.metrics.Count("upload_rejected:invalid"); got != 3 {
		t.Errorf("upload_rejected:invalid = %d, want 3", got)
	}
}

func TestOnUploadCreate_MaxFiles(t *testing.T) {
	h := newHarness(t, share.Options{MaxFiles: 1})
	ctx := context.Background()
	room := h.createRoom(t)

	if err := h.svc.OnUploadCreate(ctx, uploadHeader(room, "f1"), "tus-1", 1); err != nil {
		t.Fatalf("first upload: %v", err)
	}
	err := h.svc.OnUploadCreate(ctx, uploadHeader(room, "f2"), "tus-2", 1)
	if !errors.Is(err, share.ErrInvalidRequest) {
		t.Errorf("error = %v, want ErrInvalidRequest", err)
	}
}

func TestOnUploadFinish_PromotesToVault(t *testing.T) {
	h := newHarness(t, share.Options{})
	ctx := context.Background()
	room := h.createRoom(t)

	h.upload(t, room, "f1", "tus-1", []byte("hello"))

	size, err := h.vault.Stat(ctx, room.ID, "tus-1")
	if err != nil {
		t.Fatalf("vault Stat: %v", err)
	}
	if size != 5 {
		t.Errorf("vault size = %d, want 5", size)
	}
	file, err := h.db.FindFileByTusID(ctx, "tus-1")
	if err != nil {
		t.Fatal(err)
	}
	if !file.Status || !file.UploadedAt.Valid || !file.PromotedAt.Valid {
		t.Errorf("file = %+v, want uploaded and promoted", file)
	}
	if h.metrics.Count("promotion:success") != 1 {
		t.Errorf("promotion:success = %d, want 1", h.metrics.Count("promotion:success"))
	}
}

func TestOnUploadFinish_Errors(t *testing.T) {
	h := newHarness(t, share.Options{})
	room := h.createRoom(t)

	noFileID := uploadHeader(room, "f1")
	noFileID.Del(share.HeaderFileID)
	if err := h.svc.OnUploadFinish(context.Background(), noFileID, "tus-1", 1); !errors.Is(err, share.ErrInvalidRequest) {
		t.Errorf("missing file id error = %v, want ErrInvalidRequest", err)
	}

	if err := h.svc.OnUploadFinish(context.Background(), uploadHeader(room, "f1"), "never-created", 1); !errors.Is(err, share.ErrNotFound) {
		t.Errorf("unknown upload error = %v, want ErrNotFound", err)
	}
}

func TestOnUploadFinish_ReclaimedRoomDiscardsUpload(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, share.Options{RoomTTL: time.Hour})
	room := h.createRoom(t)
	header := uploadHeader(room, "f1")
	if err := h.svc.OnUploadCreate(ctx, header, "tus-1", 4); err != nil {
		t.Fatalf("OnUploadCreate: %v", err)
	}

	h.clock.Advance(2 * time.Hour)
	if _, err := newCollector(h, share.NopLocker{}, 0).Sweep(ctx); err != nil {
		t.Fatalf("Sweep: %v", err)
	}

	// The last bytes land after the room was reclaimed.
	h.cache.Put("tus-1", []byte("late"))
	if err := h.svc.OnUploadFinish(ctx, header, "tus-1", 4); !errors.Is(err, share.ErrNotFound) {
		t.Fatalf("OnUploadFinish error = %v, want ErrNotFound", err)
	}
	if h.cache.Has("tus-1") {
		t.Error("upload of a reclaimed room left in the cache")
	}
	if h.vault.PutCalls() != 0 {
		t.Errorf("Put calls = %d, want 0", h.vault.PutCalls())
	}
}

func TestOnUploadFinish_ExpiredRoomDiscardsUpload(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, share.Options{RoomTTL: time.Hour})
	room := h.createRoom(t)
	header := uploadHeader(room, "f1")
	if err := h.svc.OnUploadCreate(ctx, header, "tus-1", 4); err != nil {
		t.Fatalf("OnUploadCreate: %v", err)
	}
	h.cache.Put("tus-1", []byte("late"))
	h.clock.Advance(2 * time.Hour)

	if err := h.svc.OnUploadFinish(ctx, header, "tus-1", 4); !errors.Is(err, share.ErrNotFound) {
		t.Fatalf("OnUploadFinish error = %v, want ErrNotFound", err)
	}
	if h.cache.Has("tus-1") {
		t.Error("upload of an expired room left in the cache")
	}
}
