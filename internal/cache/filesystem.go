package cache

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"siashare-go/internal/share"
)

// FileSystemCache reads the resumable-upload store's directory. The upload
// handler writes each upload as "<dir>/<id>" with its state in "<dir>/<id>.info".
type FileSystemCache struct {
	dir string
}

// NewFileSystemCache creates the cache directory if needed.
func NewFileSystemCache(dir string) (*FileSystemCache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &FileSystemCache{dir: dir}, nil
}

// Dir returns the directory the upload handler should write into.
func (c *FileSystemCache) Dir() string {
	return c.dir
}

func (c *FileSystemCache) path(tusID string) (string, error) {
	if tusID == "" || tusID == "." || tusID == ".." || strings.ContainsAny(tusID, "/\\") {
		return "", fmt.Errorf("invalid upload id %q", tusID)
	}
	return filepath.Join(c.dir, tusID), nil
}

// Stat returns the size of the cached upload.
func (c *FileSystemCache) Stat(tusID string) (int64, error) {
	p, err := c.path(tusID)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, fmt.Errorf("cached upload %s: %w", tusID, share.ErrObjectNotFound)
		}
		return 0, fmt.Errorf("stat cached upload: %w", err)
	}
	return info.Size(), nil
}

// Open returns a reader over [start, end] of the cached upload.
func (c *FileSystemCache) Open(tusID string, start, end int64) (io.ReadCloser, error) {
	p, err := c.path(tusID)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("cached upload %s: %w", tusID, share.ErrObjectNotFound)
		}
		return nil, fmt.Errorf("opening cached upload: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat cached upload: %w", err)
	}
	if end >= info.Size() {
		end = info.Size() - 1
	}
	n := max(end-start+1, 0)
	return &readCloser{Reader: io.NewSectionReader(f, start, n), Closer: f}, nil
}

// Delete removes the upload and its info file.
func (c *FileSystemCache) Delete(tusID string) error {
	p, err := c.path(tusID)
	if err != nil {
		return err
	}
	for _, name := range []string{p, p + ".info", p + ".lock"} {
		if err := os.Remove(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("removing %s: %w", filepath.Base(name), err)
		}
	}
	return nil
}

// List returns the id of every upload in the directory, finished or not.
func (c *FileSystemCache) List() ([]string, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, fmt.Errorf("listing cache directory: %w", err)
	}
	seen := make(map[string]bool)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		id := strings.TrimSuffix(strings.TrimSuffix(e.Name(), ".info"), ".lock")
		if _, err := c.path(id); err == nil {
			seen[id] = true
		}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

type readCloser struct {
	io.Reader
	io.Closer
}

// Compile-time check that FileSystemCache implements share.Cache interface
var _ share.Cache = (*FileSystemCache)(nil)
