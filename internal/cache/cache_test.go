package cache

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"siashare-go/internal/config"
	"siashare-go/internal/share"
)

func readAll(t *testing.T, c share.Cache, id string, start, end int64) string {
	t.Helper()
	rc, err := c.Open(id, start, end)
	if err != nil {
		t.Fatalf("Open(%s, %d, %d): %v", id, start, end, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("reading: %v", err)
	}
	return string(data)
}

func testCacheContract(t *testing.T, c share.Cache, put func(id string, data []byte)) {
	t.Helper()
	put("upload-1", []byte("hello world"))

	size, err := c.Stat("upload-1")
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if size != 11 {
		t.Errorf("size = %d, want 11", size)
	}

	tests := []struct {
		name       string
		start, end int64
		want       string
	}{
		{"full", 0, 10, "hello world"},
		{"prefix", 0, 4, "hello"},
		{"middle", 6, 8, "wor"},
		{"single byte", 0, 0, "h"},
		{"end past size", 6, 100, "world"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := readAll(t, c, "upload-1", tt.start, tt.end); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}

	if _, err := c.Stat("missing"); !errors.Is(err, share.ErrObjectNotFound) {
		t.Errorf("Stat(missing) error = %v, want ErrObjectNotFound", err)
	}
	if _, err := c.Open("missing", 0, 1); !errors.Is(err, share.ErrObjectNotFound) {
		t.Errorf("Open(missing) error = %v, want ErrObjectNotFound", err)
	}

	ids, err := c.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(ids) != 1 || ids[0] != "upload-1" {
		t.Errorf("List = %v, want [upload-1]", ids)
	}

	if err := c.Delete("upload-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := c.Stat("upload-1"); !errors.Is(err, share.ErrObjectNotFound) {
		t.Errorf("Stat after delete error = %v, want ErrObjectNotFound", err)
	}
	if err := c.Delete("upload-1"); err != nil {
		t.Errorf("second Delete: %v", err)
	}
}

func TestMemoryCache(t *testing.T) {
	c := NewMemoryCache()
	testCacheContract(t, c, c.Put)
}

func TestFileSystemCache(t *testing.T) {
	c, err := NewFileSystemCache(filepath.Join(t.TempDir(), "uploads"))
	if err != nil {
		t.Fatalf("NewFileSystemCache: %v", err)
	}
	testCacheContract(t, c, func(id string, data []byte) {
		if err := os.WriteFile(filepath.Join(c.Dir(), id), data, 0644); err != nil {
			t.Fatalf("writing upload: %v", err)
		}
	})
}

func TestFileSystemCache_DeleteRemovesInfo(t *testing.T) {
	dir := t.TempDir()
	c, err := NewFileSystemCache(dir)
	if err != nil {
		t.Fatalf("NewFileSystemCache: %v", err)
	}
	for _, name := range []string{"abc", "abc.info"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	if err := c.Delete("abc"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("directory not empty after delete: %d entries", len(entries))
	}
}

func TestFileSystemCache_ListIncludesUnfinished(t *testing.T) {
	dir := t.TempDir()
	c, err := NewFileSystemCache(dir)
	if err != nil {
		t.Fatalf("NewFileSystemCache: %v", err)
	}
	for _, name := range []string{"done", "done.info", "partial.info"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "subdir"), 0755); err != nil {
		t.Fatal(err)
	}

	ids, err := c.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(ids) != 2 || ids[0] != "done" || ids[1] != "partial" {
		t.Errorf("List = %v, want [done partial]", ids)
	}
}

func TestFileSystemCache_RejectsTraversal(t *testing.T) {
	c, err := NewFileSystemCache(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileSystemCache: %v", err)
	}
	for _, id := range []string{"", "..", "../etc/passwd", `a\b`} {
		if _, err := c.Stat(id); err == nil {
			t.Errorf("Stat(%q) succeeded, want error", id)
		}
		if err := c.Delete(id); err == nil {
			t.Errorf("Delete(%q) succeeded, want error", id)
		}
	}
}

func TestNewCacheFromConfig(t *testing.T) {
	if _, err := NewCacheFromConfig(config.CacheConfig{}); err == nil {
		t.Error("expected error for empty dir")
	}
	dir := filepath.Join(t.TempDir(), "nested", "uploads")
	c, err := NewCacheFromConfig(config.CacheConfig{Dir: dir})
	if err != nil {
		t.Fatalf("NewCacheFromConfig: %v", err)
	}
	if c.Dir() != dir {
		t.Errorf("Dir() = %q, want %q", c.Dir(), dir)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("cache dir not created: %v", err)
	}
}
