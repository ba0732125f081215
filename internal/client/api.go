package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"siashare-go/internal/model"
	"siashare-go/internal/share"
)

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

// Options tunes a Client.
type Options struct {
	// UploadPassword is sent when creating rooms on servers that require one.
	UploadPassword string

	// ChunkSize is the largest PATCH body sent per upload request.
	ChunkSize int64

	// Parallel bounds concurrent file transfers.
	Parallel int

	// PollInterval and PollTimeout bound waiting for an upload to finish.
	PollInterval time.Duration
	PollTimeout  time.Duration

	// MaxAttempts bounds retries of one upload chunk or download stream.
	MaxAttempts int

	HTTPClient *http.Client
	Logger     share.Logger
}

// Client is a siashare API client bound to one server.
type Client struct {
	base   *url.URL
	http   *http.Client
	logger share.Logger
	opts   Options
}

// New returns a client for the server at baseURL.
func New(baseURL string, opts Options) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("server url must be http or https: %s", baseURL)
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 8 << 20
	}
	if opts.Parallel <= 0 {
		opts.Parallel = 3
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = 5 * time.Minute
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.Logger == nil {
		opts.Logger = share.NewNopLogger()
	}
	return &Client{base: u, http: opts.HTTPClient, logger: opts.Logger, opts: opts}, nil
}

// BaseURL returns the server URL without a trailing slash.
func (c *Client) BaseURL() string { return c.base.String() }

func (c *Client) url(path string) string {
	return c.base.String() + path
}

func (c *Client) doJSON(ctx context.Context, method, path string, header http.Header, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.url(path), body)
	if err != nil {
		return err
	}
	for k, v := range header {
		req.Header[k] = v
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if err := checkResponse(resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

func checkResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	var e model.Error
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if json.Unmarshal(data, &e) != nil || e.Error == "" {
		e.Error = strings.TrimSpace(string(data))
	}
	return &APIError{Status: resp.StatusCode, Message: e.Error}
}

func readerHeader(token string) http.Header {
	return http.Header{"X-Reader-Auth-Token": {token}}
}

// ServerConfig returns the server's public limits.
func (c *Client) ServerConfig(ctx context.Context) (*model.ServerConfig, error) {
	var cfg model.ServerConfig
	if err := c.doJSON(ctx, http.MethodGet, "/api/config", nil, nil, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// CreateRoom registers a room for the keychain and returns the writer credentials.
func (c *Client) CreateRoom(ctx context.Context, kc *Keychain) (*model.CreateRoomResponse, error) {
	token, err := kc.ReaderToken()
	if err != nil {
		return nil, err
	}
	var header http.Header
	if c.opts.UploadPassword != "" {
		header = http.Header{"X-Upload-Password": {c.opts.UploadPassword}}
	}
	var room model.CreateRoomResponse
	req := model.CreateRoomRequest{ReaderAuthToken: token, Salt: kc.SaltB64()}
	if err := c.doJSON(ctx, http.MethodPost, "/api/room", header, req, &room); err != nil {
		return nil, fmt.Errorf("creating room: %w", err)
	}
	return &room, nil
}

// Finalize stores the sealed manifest on the room.
func (c *Client) Finalize(ctx context.Context, roomID, writerToken, metadata string) error {
	req := model.FinalizeRequest{WriterAuthToken: writerToken, Metadata: metadata}
	if err := c.doJSON(ctx, http.MethodPut, "/api/room/"+url.PathEscape(roomID), nil, req, nil); err != nil {
		return fmt.Errorf("finalizing room: %w", err)
	}
	return nil
}

// Salt returns the room's salt. No credential is needed.
func (c *Client) Salt(ctx context.Context, roomID string) (string, error) {
	var resp model.SaltResponse
	if err := c.doJSON(ctx, http.MethodGet, "/api/room/"+url.PathEscape(roomID)+"/salt", nil, nil, &resp); err != nil {
		return "", fmt.Errorf("fetching salt: %w", err)
	}
	return resp.Salt, nil
}

// Room returns the room as a reader sees it.
func (c *Client) Room(ctx context.Context, roomID, readerToken string) (*model.Room, error) {
	var room model.Room
	if err := c.doJSON(ctx, http.MethodGet, "/api/room/"+url.PathEscape(roomID), readerHeader(readerToken), nil, &room); err != nil {
		return nil, fmt.Errorf("fetching room: %w", err)
	}
	return &room, nil
}

// FileStatus returns the upload progress of a file.
func (c *Client) FileStatus(ctx context.Context, roomID, readerToken, fileID string) (*model.FileStatus, error) {
	var status model.FileStatus
	path := "/api/room/" + url.PathEscape(roomID) + "/files/" + url.PathEscape(fileID) + "/status"
	if err := c.doJSON(ctx, http.MethodGet, path, readerHeader(readerToken), nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// WaitUploaded polls until the file's upload has finished.
func (c *Client) WaitUploaded(ctx context.Context, roomID, readerToken, fileID string) (*model.FileStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.PollTimeout)
	defer cancel()
	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()

	for {
		status, err := c.FileStatus(ctx, roomID, readerToken, fileID)
		switch {
		case err == nil && status.Uploaded:
			return status, nil
		case err != nil && !IsStatus(err, http.StatusNotFound):
			return nil, fmt.Errorf("polling %s: %w", fileID, err)
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for %s to upload: %w", fileID, ctx.Err())
		case <-ticker.C:
		}
	}
}
