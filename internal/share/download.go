package share

import (
	"context"
	"errors"
	"fmt"
	"io"

	"siashare-go/internal/database/sqlc"
)

// Storage tiers, as reported in Download.Tier and metrics labels.
const (
	TierCache = "cache"
	TierVault = "vault"
)

// DownloadRequest identifies a file to stream. Ref is an upload id owned by
// the room or, failing that, a client file id within it.
type DownloadRequest struct {
	RoomID      string
	Ref         string
	ReaderToken string
	Range       string
}

// Download is an open byte stream over Range of the file. Body must be closed.
type Download struct {
	TusID string
	Range ByteRange
	Tier  string
	Body  io.ReadCloser
}

// OpenDownload authorizes the reader and opens the requested bytes from the
// first tier that has them: the local cache, then the vault. If the cache
// stream breaks part way, the remainder is read from the vault.
func (s *Service) OpenDownload(ctx context.Context, req DownloadRequest) (*Download, error) {
	room, err := s.authorizeReader(ctx, req.RoomID, req.ReaderToken)
	if err != nil {
		return nil, err
	}
	file, err := s.resolveFile(ctx, room.ID, req.Ref)
	if err != nil {
		return nil, err
	}
	if !file.Status {
		s.metrics.DownloadFailed("pending")
		return nil, fmt.Errorf("upload %s not finished: %w", file.TusID, ErrFileUnavailable)
	}

	d, err := s.openFromCache(file, req.Range)
	if err == nil {
		d.Body = s.newTierReader(ctx, file, d, true)
		return d, nil
	}
	if errors.Is(err, ErrRangeNotSatisfiable) {
		return nil, err
	}
	s.logger.Info("cache miss, reading from vault", "room", room.ID, "upload", file.TusID, "reason", err)
	s.metrics.TierFallback(TierCache, TierVault)

	d, err = s.openFromVault(ctx, file, req.Range)
	if err != nil {
		if !errors.Is(err, ErrRangeNotSatisfiable) {
			s.metrics.DownloadFailed(failReason(err))
			s.logger.Warn("download failed", "room", room.ID, "upload", file.TusID, "error", err)
		}
		return nil, err
	}
	d.Body = s.newTierReader(ctx, file, d, false)
	return d, nil
}

func (s *Service) resolveFile(ctx context.Context, roomID, ref string) (*sqlc.File, error) {
	if ref == "" {
		return nil, fmt.Errorf("file reference required: %w", ErrInvalidRequest)
	}
	file, err := s.database.FindFileByTusID(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("finding upload: %w", err)
	}
	if file != nil && file.RoomID == roomID {
		return file, nil
	}
	file, err = s.database.FindFileByFileID(ctx, roomID, ref)
	if err != nil {
		return nil, fmt.Errorf("finding file: %w", err)
	}
	if file == nil {
		return nil, fmt.Errorf("file %s in room %s: %w", ref, roomID, ErrNotFound)
	}
	return file, nil
}

func (s *Service) openFromCache(file *sqlc.File, rangeHeader string) (*Download, error) {
	size, err := s.cache.Stat(file.TusID)
	if err != nil {
		return nil, err
	}
	rng, err := ParseRange(rangeHeader, size)
	if err != nil {
		return nil, err
	}
	body, err := s.cache.Open(file.TusID, rng.Start, rng.End)
	if err != nil {
		return nil, err
	}
	return &Download{TusID: file.TusID, Range: rng, Tier: TierCache, Body: body}, nil
}

func (s *Service) openFromVault(ctx context.Context, file *sqlc.File, rangeHeader string) (*Download, error) {
	size, err := s.vault.Stat(ctx, file.RoomID, file.TusID)
	if err != nil {
		return nil, vaultError(file, err)
	}
	rng, err := ParseRange(rangeHeader, size)
	if err != nil {
		return nil, err
	}
	body, err := s.vault.Open(ctx, file.RoomID, file.TusID, rng.Start, rng.End)
	if err != nil {
		return nil, vaultError(file, err)
	}
	return &Download{TusID: file.TusID, Range: rng, Tier: TierVault, Body: body}, nil
}

func vaultError(file *sqlc.File, err error) error {
	if errors.Is(err, ErrObjectNotFound) {
		return fmt.Errorf("upload %s absent from every tier: %w", file.TusID, ErrFileUnavailable)
	}
	return fmt.Errorf("reading upload %s from vault: %w: %w", file.TusID, ErrUpstreamUnavailable, err)
}

func failReason(err error) string {
	if errors.Is(err, ErrUpstreamUnavailable) {
		return "upstream"
	}
	return "unavailable"
}

// tierReader streams [pos, end] of an upload. A read error from the cache
// switches it to the vault at the current offset; a vault error is final.
type tierReader struct {
	ctx      context.Context
	s        *Service
	file     *sqlc.File
	cur      io.ReadCloser
	pos      int64
	end      int64
	tier     string
	canRetry bool
	served   int64
}

func (s *Service) newTierReader(ctx context.Context, file *sqlc.File, d *Download, canRetry bool) *tierReader {
	return &tierReader{
		ctx:      ctx,
		s:        s,
		file:     file,
		cur:      d.Body,
		pos:      d.Range.Start,
		end:      d.Range.End,
		tier:     d.Tier,
		canRetry: canRetry,
	}
}

func (r *tierReader) Read(p []byte) (int, error) {
	n, err := r.cur.Read(p)
	r.pos += int64(n)
	r.served += int64(n)
	if err == nil || errors.Is(err, io.EOF) || !r.canRetry {
		return n, err
	}
	if r.pos > r.end {
		return n, io.EOF
	}

	r.canRetry = false
	r.cur.Close()
	r.s.logger.Warn("cache read failed mid-stream, resuming from vault",
		"room", r.file.RoomID, "upload", r.file.TusID, "offset", r.pos, "error", err)
	r.s.metrics.TierFallback(TierCache, TierVault)

	body, verr := r.s.vault.Open(r.ctx, r.file.RoomID, r.file.TusID, r.pos, r.end)
	if verr != nil {
		r.cur = io.NopCloser(eofReader{})
		return n, fmt.Errorf("resuming from vault after %v: %w", err, vaultError(r.file, verr))
	}
	r.cur = body
	r.tier = TierVault
	return n, nil
}

func (r *tierReader) Close() error {
	r.s.metrics.DownloadServed(r.tier, r.served)
	return r.cur.Close()
}

type eofReader struct{}

func (eofReader) Read([]byte) (int, error) { return 0, io.EOF }
