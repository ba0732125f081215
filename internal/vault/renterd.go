package vault

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"siashare-go/internal/config"
	"siashare-go/internal/share"
)

// RenterdVault stores objects on the Sia network through a renterd node's
// worker API, under "<rootDir>/<roomID>/<tusID>".
type RenterdVault struct {
	name     string
	baseURL  string
	password string
	bucket   string
	rootDir  string
	client   *http.Client
}

// NewRenterdVault creates a vault talking to the renterd node at cfg.RenterdURL.
func NewRenterdVault(cfg config.VaultConfig, client *http.Client) *RenterdVault {
	if client == nil {
		// No overall timeout: uploads can take as long as the file is big.
		client = &http.Client{Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			ResponseHeaderTimeout: 2 * time.Minute,
			IdleConnTimeout:       90 * time.Second,
		}}
	}
	rootDir := strings.Trim(cfg.RenterdRootDir, "/")
	if rootDir == "" {
		rootDir = "siashare"
	}
	return &RenterdVault{
		name:     cfg.Name,
		baseURL:  strings.TrimRight(cfg.RenterdURL, "/"),
		password: cfg.RenterdPassword,
		bucket:   cfg.RenterdBucket,
		rootDir:  rootDir,
		client:   client,
	}
}

func (v *RenterdVault) objectURL(path string, query url.Values) string {
	segments := strings.Split(v.rootDir+"/"+path, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	u := v.baseURL + "/api/worker/objects/" + strings.Join(segments, "/")
	if v.bucket != "" {
		if query == nil {
			query = url.Values{}
		}
		query.Set("bucket", v.bucket)
	}
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

func (v *RenterdVault) do(ctx context.Context, method, u string, body io.Reader, size int64, header http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.ContentLength = size
	}
	for k, vals := range header {
		req.Header[k] = vals
	}
	req.SetBasicAuth("", v.password)
	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, req.URL.Path, err)
	}
	return resp, nil
}

// Put uploads an object through the worker.
func (v *RenterdVault) Put(ctx context.Context, roomID, tusID string, r io.Reader, size int64) error {
	key, err := objectKey(roomID, tusID)
	if err != nil {
		return err
	}
	if size == 0 {
		r = http.NoBody
	}
	resp, err := v.do(ctx, http.MethodPut, v.objectURL(key, nil), r, size, nil)
	if err != nil {
		return err
	}
	defer drain(resp)
	if resp.StatusCode/100 != 2 {
		return statusError("upload", key, resp)
	}
	return nil
}

// Stat returns the size of a stored object.
func (v *RenterdVault) Stat(ctx context.Context, roomID, tusID string) (int64, error) {
	key, err := objectKey(roomID, tusID)
	if err != nil {
		return 0, err
	}
	resp, err := v.do(ctx, http.MethodHead, v.objectURL(key, nil), nil, 0, nil)
	if err != nil {
		return 0, err
	}
	defer drain(resp)
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return 0, fmt.Errorf("%s: %w", key, share.ErrObjectNotFound)
	case resp.StatusCode/100 != 2:
		return 0, statusError("stat", key, resp)
	}
	if resp.ContentLength < 0 {
		n, err := strconv.ParseInt(resp.Header.Get("Content-Length"), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("stat %s: missing content length", key)
		}
		return n, nil
	}
	return resp.ContentLength, nil
}

// Open forwards [start, end] as a Range header to the worker.
func (v *RenterdVault) Open(ctx context.Context, roomID, tusID string, start, end int64) (io.ReadCloser, error) {
	key, err := objectKey(roomID, tusID)
	if err != nil {
		return nil, err
	}
	if end < start {
		return io.NopCloser(bytes.NewReader(nil)), nil
	}
	header := http.Header{}
	header.Set("Range", fmt.Sprintf("bytes=%d-%d", start, end))

	resp, err := v.do(ctx, http.MethodGet, v.objectURL(key, nil), nil, 0, header)
	if err != nil {
		return nil, err
	}
	switch resp.StatusCode {
	case http.StatusPartialContent:
		return resp.Body, nil
	case http.StatusOK:
		// The worker ignored the range; skip to start ourselves.
		if _, err := io.CopyN(io.Discard, resp.Body, start); err != nil {
			resp.Body.Close()
			return nil, fmt.Errorf("seeking %s: %w", key, err)
		}
		return &sectionReadCloser{Reader: io.LimitReader(resp.Body, end-start+1), Closer: resp.Body}, nil
	case http.StatusNotFound:
		drain(resp)
		return nil, fmt.Errorf("%s: %w", key, share.ErrObjectNotFound)
	default:
		defer drain(resp)
		return nil, statusError("download", key, resp)
	}
}

// DeleteRoom removes every object under the room prefix in one batch call.
// A 404 means the room had nothing stored and counts as success.
func (v *RenterdVault) DeleteRoom(ctx context.Context, roomID string) error {
	prefix, err := roomPrefix(roomID)
	if err != nil {
		return err
	}
	u := v.objectURL(prefix, url.Values{"batch": {"true"}})
	resp, err := v.do(ctx, http.MethodDelete, u, nil, 0, nil)
	if err != nil {
		return err
	}
	defer drain(resp)
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode/100 == 2 {
		return nil
	}
	return statusError("delete", prefix, resp)
}

// ValidateSetup checks that the worker answers and accepts the password.
func (v *RenterdVault) ValidateSetup(ctx context.Context) error {
	resp, err := v.do(ctx, http.MethodGet, v.baseURL+"/api/worker/state", nil, 0, nil)
	if err != nil {
		return err
	}
	defer drain(resp)
	if resp.StatusCode/100 != 2 {
		return statusError("validate", "worker state", resp)
	}
	return nil
}

func statusError(op, key string, resp *http.Response) error {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("%s %s: renterd returned %s: %s", op, key, resp.Status, strings.TrimSpace(string(msg)))
}

func drain(resp *http.Response) {
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}

// Compile-time check that RenterdVault implements share.Vault interface
var _ share.Vault = (*RenterdVault)(nil)
