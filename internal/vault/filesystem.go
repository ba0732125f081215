package vault

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"siashare-go/internal/share"
)

// FileSystemVault is a filesystem-based implementation of the Vault interface.
// Objects are stored one file per upload:
//
//	<root>/
//	  rooms/
//	    <roomID>/
//	      <tusID>
type FileSystemVault struct {
	name     string
	root     string
	roomsDir string
}

// NewFileSystemVault creates a new filesystem vault rooted at the given path.
func NewFileSystemVault(name, root string) (*FileSystemVault, error) {
	roomsDir := filepath.Join(root, "rooms")
	if err := os.MkdirAll(roomsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create rooms directory: %w", err)
	}

	return &FileSystemVault{
		name:     name,
		root:     root,
		roomsDir: roomsDir,
	}, nil
}

func (v *FileSystemVault) objectPath(roomID, tusID string) (string, error) {
	key, err := objectKey(roomID, tusID)
	if err != nil {
		return "", err
	}
	return filepath.Join(v.roomsDir, filepath.FromSlash(key)), nil
}

// Put stores an object using an atomic write (temp file + rename).
func (v *FileSystemVault) Put(ctx context.Context, roomID, tusID string, r io.Reader, size int64) error {
	destPath, err := v.objectPath(roomID, tusID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("failed to create room directory: %w", err)
	}
	return v.writeFile(destPath, r, size)
}

// Stat returns the size of a stored object.
func (v *FileSystemVault) Stat(ctx context.Context, roomID, tusID string) (int64, error) {
	path, err := v.objectPath(roomID, tusID)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, fmt.Errorf("%s/%s: %w", roomID, tusID, share.ErrObjectNotFound)
		}
		return 0, fmt.Errorf("stat object: %w", err)
	}
	return info.Size(), nil
}

// Open returns a reader over [start, end] of a stored object.
func (v *FileSystemVault) Open(ctx context.Context, roomID, tusID string, start, end int64) (io.ReadCloser, error) {
	path, err := v.objectPath(roomID, tusID)
	if err != nil {
		return nil, err
	}
	return openFileRange(path, start, end)
}

// DeleteRoom removes the room's directory. A missing directory is not an error.
func (v *FileSystemVault) DeleteRoom(ctx context.Context, roomID string) error {
	prefix, err := roomPrefix(roomID)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(filepath.Join(v.roomsDir, filepath.FromSlash(prefix))); err != nil {
		return fmt.Errorf("removing room %s: %w", roomID, err)
	}
	return nil
}

// ValidateSetup verifies that the vault directories are accessible.
func (v *FileSystemVault) ValidateSetup(ctx context.Context) error {
	for _, dir := range []string{v.root, v.roomsDir} {
		info, err := os.Stat(dir)
		if err != nil {
			return fmt.Errorf("vault directory not accessible: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("vault path is not a directory: %s", dir)
		}
	}
	return nil
}

// writeFile writes data from r to the specified path using atomic write (temp file + rename).
func (v *FileSystemVault) writeFile(destPath string, r io.Reader, expectedSize int64) error {
	// Create temp file in the same directory to ensure atomic rename works
	dir := filepath.Dir(destPath)
	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if written != expectedSize {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", expectedSize, written)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}

// openFileRange opens path and returns a reader limited to [start, end].
func openFileRange(path string, start, end int64) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", filepath.Base(path), share.ErrObjectNotFound)
		}
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	lo, hi := clampRange(start, end, info.Size())
	return &sectionReadCloser{
		Reader: io.NewSectionReader(f, lo, hi-lo),
		Closer: f,
	}, nil
}

type sectionReadCloser struct {
	io.Reader
	io.Closer
}

// Compile-time check that FileSystemVault implements share.Vault interface
var _ share.Vault = (*FileSystemVault)(nil)
