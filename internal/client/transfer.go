package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"siashare-go/internal/model"
)

// ShareURL formats the link a sender hands out. The key travels in the
// fragment, which browsers and this client never send to the server.
func ShareURL(server, roomID string, kc *Keychain) string {
	return strings.TrimRight(server, "/") + "/r/" + url.PathEscape(roomID) + "#" + kc.KeyB64()
}

// ParseShareURL splits a share link into the server URL, room id and key.
func ParseShareURL(link string) (server, roomID, key string, err error) {
	u, err := url.Parse(link)
	if err != nil {
		return "", "", "", fmt.Errorf("parsing share link: %w", err)
	}
	id, ok := strings.CutPrefix(u.Path, "/r/")
	if !ok || id == "" || strings.Contains(id, "/") {
		return "", "", "", fmt.Errorf("share link has no room: %s", link)
	}
	if u.Fragment == "" {
		return "", "", "", errors.New("share link has no key")
	}
	server = (&url.URL{Scheme: u.Scheme, Host: u.Host}).String()
	return server, id, u.Fragment, nil
}

// SendResult describes a finished share.
type SendResult struct {
	RoomID   string
	ShareURL string
	Files    []model.ManifestFile
}

// Send encrypts and uploads files into a new room, then finalizes it with the
// sealed manifest.
func (c *Client) Send(ctx context.Context, paths []string) (*SendResult, error) {
	if len(paths) == 0 {
		return nil, errors.New("nothing to send")
	}
	cfg, err := c.ServerConfig(ctx)
	if err != nil {
		return nil, err
	}
	if cfg.PasswordRequired && c.opts.UploadPassword == "" {
		return nil, errors.New("server requires an upload password")
	}
	if cfg.MaxFiles > 0 && len(paths) > cfg.MaxFiles {
		return nil, fmt.Errorf("server accepts at most %d files per room", cfg.MaxFiles)
	}

	kc, err := NewKeychain()
	if err != nil {
		return nil, err
	}
	room, err := c.CreateRoom(ctx, kc)
	if err != nil {
		return nil, err
	}

	files := make([]model.ManifestFile, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Parallel)
	for i, p := range paths {
		g.Go(func() error {
			f, err := c.sendFile(gctx, kc, room, p, cfg.MaxFileSize)
			if err != nil {
				return fmt.Errorf("sending %s: %w", p, err)
			}
			files[i] = *f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	manifest, err := json.Marshal(model.Manifest{Files: files})
	if err != nil {
		return nil, fmt.Errorf("encoding manifest: %w", err)
	}
	sealed, err := kc.SealMetadata(manifest)
	if err != nil {
		return nil, err
	}
	if err := c.Finalize(ctx, room.ID, room.WriterAuthToken, sealed); err != nil {
		return nil, err
	}
	return &SendResult{RoomID: room.ID, ShareURL: ShareURL(c.BaseURL(), room.ID, kc), Files: files}, nil
}

// sendFile encrypts one file to a temporary file so its ciphertext size is
// known up front and chunks can be re-read on resume.
func (c *Client) sendFile(ctx context.Context, kc *Keychain, room *model.CreateRoomResponse, path string, maxSize int64) (*model.ManifestFile, error) {
	src, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer src.Close()
	info, err := src.Stat()
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, errors.New("is a directory")
	}

	tmp, err := os.CreateTemp("", "siashare-*.age")
	if err != nil {
		return nil, fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	if err := kc.Encrypt(tmp, src); err != nil {
		return nil, err
	}
	size, err := tmp.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, err
	}
	if maxSize > 0 && size > maxSize {
		return nil, fmt.Errorf("encrypted size %d exceeds server limit %d", size, maxSize)
	}

	fileID := uuid.NewString()
	tusID, err := c.Upload(ctx, room.ID, room.WriterAuthToken, fileID, tmp, size)
	if err != nil {
		return nil, err
	}
	c.logger.Info("file uploaded", "file", filepath.Base(path), "upload", tusID, "size", size)

	return &model.ManifestFile{
		FileID: fileID,
		Name:   filepath.Base(path),
		Size:   info.Size(),
		Type:   mime.TypeByExtension(filepath.Ext(path)),
	}, nil
}

// Receive downloads and decrypts every file of a room into outDir and
// returns the written paths in manifest order.
func (c *Client) Receive(ctx context.Context, roomID, key, outDir string) ([]string, error) {
	salt, err := c.Salt(ctx, roomID)
	if err != nil {
		return nil, err
	}
	kc, err := ParseKeychain(key, salt)
	if err != nil {
		return nil, err
	}
	token, err := kc.ReaderToken()
	if err != nil {
		return nil, err
	}
	room, err := c.Room(ctx, roomID, token)
	if err != nil {
		return nil, err
	}
	if room.Metadata == nil {
		return nil, errors.New("room has not been finalized yet")
	}
	plain, err := kc.OpenMetadata(*room.Metadata)
	if err != nil {
		return nil, fmt.Errorf("opening manifest: %w", err)
	}
	var manifest model.Manifest
	if err := json.Unmarshal(plain, &manifest); err != nil {
		return nil, fmt.Errorf("decoding manifest: %w", err)
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, err
	}

	written := make([]string, len(manifest.Files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Parallel)
	for i, f := range manifest.Files {
		g.Go(func() error {
			out, err := c.receiveFile(gctx, kc, roomID, token, f, outDir)
			if err != nil {
				return fmt.Errorf("receiving %s: %w", f.Name, err)
			}
			written[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return written, nil
}

func (c *Client) receiveFile(ctx context.Context, kc *Keychain, roomID, token string, f model.ManifestFile, outDir string) (string, error) {
	name := filepath.Base(filepath.Clean("/" + f.Name))
	if name == "/" || name == "." {
		return "", fmt.Errorf("unusable file name %q", f.Name)
	}
	out := filepath.Join(outDir, name)
	part := out + ".part"

	status, err := c.WaitUploaded(ctx, roomID, token, f.FileID)
	if err != nil {
		return "", err
	}
	if _, err := c.Download(ctx, roomID, token, status.TusID, part); err != nil {
		return "", err
	}

	ciphertext, err := os.Open(part)
	if err != nil {
		return "", err
	}
	defer ciphertext.Close()
	tmp, err := os.CreateTemp(outDir, "."+name+".*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())
	if err := kc.Decrypt(tmp, ciphertext); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), out); err != nil {
		return "", err
	}
	os.Remove(part)
	c.logger.Info("file received", "file", name, "size", f.Size)
	return out, nil
}
