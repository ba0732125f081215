package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"time"

	"github.com/sethvargo/go-retry"
)

const (
	tusVersion = "1.0.0"
	uploadPath = "/api/tus/upload/"
)

func (c *Client) backoff() retry.Backoff {
	b := retry.NewExponential(200 * time.Millisecond)
	b = retry.WithCappedDuration(5*time.Second, b)
	return retry.WithMaxRetries(uint64(c.opts.MaxAttempts-1), b)
}

// retryable marks transport failures and 5xx responses for another attempt.
func retryable(err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status < 500 && apiErr.Status != http.StatusConflict {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return retry.RetryableError(err)
}

// Upload sends size bytes from src as one upload of fileID into the room and
// returns the server-assigned upload id. Interrupted chunks resume from the
// offset the server reports.
func (c *Client) Upload(ctx context.Context, roomID, writerToken, fileID string, src io.ReadSeeker, size int64) (string, error) {
	header := http.Header{
		"X-Room-Id":           {roomID},
		"X-Writer-Auth-Token": {writerToken},
		"X-File-Id":           {fileID},
	}

	location, err := c.createUpload(ctx, header, size)
	if err != nil {
		return "", fmt.Errorf("creating upload: %w", err)
	}
	tusID := path.Base(location.Path)

	var offset int64
	for offset < size {
		err := retry.Do(ctx, c.backoff(), func(ctx context.Context) error {
			next, err := c.patchChunk(ctx, location, header, src, offset, min(c.opts.ChunkSize, size-offset))
			if err == nil {
				offset = next
				return nil
			}
			c.logger.Warn("upload chunk failed", "upload", tusID, "offset", offset, "error", err)
			if resumed, herr := c.uploadOffset(ctx, location); herr == nil {
				offset = resumed
			}
			return retryable(err)
		})
		if err != nil {
			return "", fmt.Errorf("uploading %s at offset %d: %w", fileID, offset, err)
		}
	}
	return tusID, nil
}

func (c *Client) createUpload(ctx context.Context, header http.Header, size int64) (*url.URL, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(uploadPath), nil)
	if err != nil {
		return nil, err
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Tus-Resumable", tusVersion)
	req.Header.Set("Upload-Length", strconv.FormatInt(size, 10))

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := checkResponse(resp); err != nil {
		return nil, err
	}
	loc, err := resp.Location()
	if err != nil {
		return nil, fmt.Errorf("upload created without a location: %w", err)
	}
	return loc, nil
}

// patchChunk sends n bytes starting at offset and returns the new offset.
func (c *Client) patchChunk(ctx context.Context, location *url.URL, header http.Header, src io.ReadSeeker, offset, n int64) (int64, error) {
	if _, err := src.Seek(offset, io.SeekStart); err != nil {
		return 0, fmt.Errorf("seeking source: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, location.String(), io.LimitReader(src, n))
	if err != nil {
		return 0, err
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.ContentLength = n
	req.Header.Set("Tus-Resumable", tusVersion)
	req.Header.Set("Upload-Offset", strconv.FormatInt(offset, 10))
	req.Header.Set("Content-Type", "application/offset+octet-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if err := checkResponse(resp); err != nil {
		return 0, err
	}
	return strconv.ParseInt(resp.Header.Get("Upload-Offset"), 10, 64)
}

// uploadOffset asks the server how many bytes of the upload it holds.
func (c *Client) uploadOffset(ctx context.Context, location *url.URL) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, location.String(), nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Tus-Resumable", tusVersion)
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	if err := checkResponse(resp); err != nil {
		return 0, err
	}
	return strconv.ParseInt(resp.Header.Get("Upload-Offset"), 10, 64)
}
