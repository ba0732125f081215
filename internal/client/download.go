package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/sethvargo/go-retry"
)

// Download fetches a file's ciphertext into partPath, appending to whatever a
// previous attempt left there. It returns the total size on success.
func (c *Client) Download(ctx context.Context, roomID, readerToken, ref, partPath string) (int64, error) {
	f, err := os.OpenFile(partPath, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return 0, fmt.Errorf("opening %s: %w", partPath, err)
	}
	defer f.Close()

	dl := "/api/room/" + url.PathEscape(roomID) + "/files/" + url.PathEscape(ref) + "/download/"
	var total int64 = -1
	err = retry.Do(ctx, c.backoff(), func(ctx context.Context) error {
		have, err := f.Seek(0, io.SeekEnd)
		if err != nil {
			return err
		}
		if total >= 0 && have == total {
			return nil
		}
		total, err = c.fetchFrom(ctx, dl, readerToken, f, have)
		if err != nil {
			c.logger.Warn("download interrupted", "room", roomID, "file", ref, "offset", have, "error", err)
			return retryable(err)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("downloading %s: %w", ref, err)
	}
	return total, nil
}

// fetchFrom requests bytes from offset onward and appends them to f. It
// returns the full object size reported by the server.
func (c *Client) fetchFrom(ctx context.Context, path, readerToken string, f *os.File, offset int64) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(path), nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("X-Reader-Auth-Token", readerToken)
	if offset > 0 {
		req.Header.Set("Range", "bytes="+strconv.FormatInt(offset, 10)+"-")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	var total int64
	switch resp.StatusCode {
	case http.StatusOK:
		// Full body; start over.
		if err := f.Truncate(0); err != nil {
			return 0, err
		}
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return 0, err
		}
		total = resp.ContentLength
	case http.StatusPartialContent:
		total, err = parseContentRangeTotal(resp.Header.Get("Content-Range"))
		if err != nil {
			return 0, err
		}
	case http.StatusRequestedRangeNotSatisfiable:
		if offset > 0 {
			// An earlier run already fetched everything.
			return offset, nil
		}
		return 0, checkResponse(resp)
	default:
		return 0, checkResponse(resp)
	}

	n, err := io.Copy(f, resp.Body)
	if err != nil {
		return 0, err
	}
	if total >= 0 {
		if got, _ := f.Seek(0, io.SeekCurrent); got != total {
			return 0, fmt.Errorf("short body: have %d of %d bytes after %d", got, total, n)
		}
	}
	return total, nil
}

// parseContentRangeTotal reads the size from "bytes a-b/size".
func parseContentRangeTotal(v string) (int64, error) {
	_, size, ok := strings.Cut(v, "/")
	if !ok || !strings.HasPrefix(v, "bytes ") {
		return 0, fmt.Errorf("malformed Content-Range %q", v)
	}
	total, err := strconv.ParseInt(size, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed Content-Range %q", v)
	}
	return total, nil
}
