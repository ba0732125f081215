package vault

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"siashare-go/internal/share"
)

// testVaultContract exercises the behavior every Vault backend must share.
func testVaultContract(t *testing.T, v share.Vault) {
	t.Helper()
	ctx := context.Background()
	data := []byte("the quick brown fox jumps over the lazy dog")

	t.Run("put then stat", func(t *testing.T) {
		if err := v.Put(ctx, "room-a", "tus-1", bytes.NewReader(data), int64(len(data))); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
		size, err := v.Stat(ctx, "room-a", "tus-1")
		if err != nil {
			t.Fatalf("Stat() error = %v", err)
		}
		if size != int64(len(data)) {
			t.Errorf("Stat() = %d, want %d", size, len(data))
		}
	})

	t.Run("ranged open", func(t *testing.T) {
		tests := []struct {
			start, end int64
			want       string
		}{
			{0, int64(len(data)) - 1, string(data)},
			{0, 0, "t"},
			{4, 8, "quick"},
			{40, 100, "dog"},
		}
		for _, tt := range tests {
			rc, err := v.Open(ctx, "room-a", "tus-1", tt.start, tt.end)
			if err != nil {
				t.Fatalf("Open(%d, %d) error = %v", tt.start, tt.end, err)
			}
			got, err := io.ReadAll(rc)
			rc.Close()
			if err != nil {
				t.Fatalf("reading range: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("Open(%d, %d) = %q, want %q", tt.start, tt.end, got, tt.want)
			}
		}
	})

	t.Run("missing object", func(t *testing.T) {
		if _, err := v.Stat(ctx, "room-a", "nope"); !errors.Is(err, share.ErrObjectNotFound) {
			t.Errorf("Stat(missing) error = %v, want ErrObjectNotFound", err)
		}
		if _, err := v.Open(ctx, "room-a", "nope", 0, 10); !errors.Is(err, share.ErrObjectNotFound) {
			t.Errorf("Open(missing) error = %v, want ErrObjectNotFound", err)
		}
	})

	t.Run("delete room is scoped and idempotent", func(t *testing.T) {
		if err := v.Put(ctx, "room-a", "tus-2", strings.NewReader("x"), 1); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
		if err := v.Put(ctx, "room-b", "tus-3", strings.NewReader("y"), 1); err != nil {
			t.Fatalf("Put() error = %v", err)
		}

		if err := v.DeleteRoom(ctx, "room-a"); err != nil {
			t.Fatalf("DeleteRoom() error = %v", err)
		}
		for _, id := range []string{"tus-1", "tus-2"} {
			if _, err := v.Stat(ctx, "room-a", id); !errors.Is(err, share.ErrObjectNotFound) {
				t.Errorf("Stat(room-a/%s) after delete error = %v, want ErrObjectNotFound", id, err)
			}
		}
		if _, err := v.Stat(ctx, "room-b", "tus-3"); err != nil {
			t.Errorf("DeleteRoom(room-a) removed room-b/tus-3: %v", err)
		}

		if err := v.DeleteRoom(ctx, "room-a"); err != nil {
			t.Errorf("second DeleteRoom() error = %v, want nil", err)
		}
		if err := v.DeleteRoom(ctx, "never-existed"); err != nil {
			t.Errorf("DeleteRoom(never-existed) error = %v, want nil", err)
		}
	})

	t.Run("rejects path components", func(t *testing.T) {
		if err := v.Put(ctx, "../escape", "tus", strings.NewReader("x"), 1); err == nil {
			t.Error("Put() with ../ room id succeeded, want error")
		}
		if err := v.Put(ctx, "room", "a/b", strings.NewReader("x"), 1); err == nil {
			t.Error("Put() with slash in upload id succeeded, want error")
		}
	})

	t.Run("validate setup", func(t *testing.T) {
		if err := v.ValidateSetup(ctx); err != nil {
			t.Errorf("ValidateSetup() error = %v", err)
		}
	})
}

func TestMemoryVault(t *testing.T) {
	testVaultContract(t, NewMemoryVault("test"))
}

func TestMemoryVault_SizeMismatch(t *testing.T) {
	v := NewMemoryVault("test")
	err := v.Put(context.Background(), "room", "tus", strings.NewReader("hello"), 10)
	if err == nil || !strings.Contains(err.Error(), "size mismatch") {
		t.Errorf("Put() error = %v, want size mismatch", err)
	}
}

func TestFileSystemVault(t *testing.T) {
	v, err := NewFileSystemVault("test", t.TempDir())
	if err != nil {
		t.Fatalf("NewFileSystemVault() error = %v", err)
	}
	testVaultContract(t, v)
}

func TestFileSystemVault_SizeMismatchLeavesNothing(t *testing.T) {
	v, err := NewFileSystemVault("test", t.TempDir())
	if err != nil {
		t.Fatalf("NewFileSystemVault() error = %v", err)
	}
	ctx := context.Background()

	err = v.Put(ctx, "room", "tus", strings.NewReader("hello"), 10)
	if err == nil || !strings.Contains(err.Error(), "size mismatch") {
		t.Fatalf("Put() error = %v, want size mismatch", err)
	}
	if _, err := v.Stat(ctx, "room", "tus"); !errors.Is(err, share.ErrObjectNotFound) {
		t.Errorf("Stat() after failed Put error = %v, want ErrObjectNotFound", err)
	}
}

func TestClampRange(t *testing.T) {
	tests := []struct {
		start, end, size int64
		lo, hi           int64
	}{
		{0, 9, 10, 0, 10},
		{0, 100, 10, 0, 10},
		{5, 4, 10, 5, 5},
		{20, 30, 10, 10, 10},
		{0, -1, 0, 0, 0},
	}
	for _, tt := range tests {
		lo, hi := clampRange(tt.start, tt.end, tt.size)
		if lo != tt.lo || hi != tt.hi {
			t.Errorf("clampRange(%d, %d, %d) = (%d, %d), want (%d, %d)", tt.start, tt.end, tt.size, lo, hi, tt.lo, tt.hi)
		}
	}
}
