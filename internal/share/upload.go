package share

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"siashare-go/internal/database/sqlc"
)

// Headers the uploader sends with every resumable-upload request.
const (
	HeaderRoomID      = "X-Room-Id"
	HeaderWriterToken = "X-Writer-Auth-Token"
	HeaderFileID      = "X-File-Id"
)

// OnUploadCreate authorizes a new upload before any bytes are accepted and
// records it as pending under tusID.
func (s *Service) OnUploadCreate(ctx context.Context, header http.Header, tusID string, size int64) error {
	roomID := header.Get(HeaderRoomID)
	writerToken := header.Get(HeaderWriterToken)
	fileID := header.Get(HeaderFileID)

	var missing string
	switch {
	case roomID == "":
		missing = "x-room-id"
	case writerToken == "":
		missing = "x-writer-auth-token"
	case fileID == "":
		missing = "x-file-id"
	}
	if missing != "" {
		s.metrics.UploadRejected("invalid")
		return fmt.Errorf("missing %s header: %w", missing, ErrInvalidRequest)
	}

	if _, err := s.authorizeWriter(ctx, roomID, writerToken); err != nil {
		s.metrics.UploadRejected(rejectReason(err))
		s.logger.Warn("upload rejected", "room", roomID, "error", err)
		return err
	}

	file := &sqlc.File{
		TusID:     tusID,
		RoomID:    roomID,
		FileID:    fileID,
		Status:    false,
		Size:      size,
		CreatedAt: s.clock.Now(),
	}
	if err := s.database.CreateFile(ctx, file, s.opts.MaxFiles); err != nil {
		s.metrics.UploadRejected(rejectReason(err))
		return fmt.Errorf("recording upload: %w", err)
	}

	s.metrics.UploadAccepted()
	s.logger.Info("upload accepted", "room", roomID, "upload", tusID, "size", size)
	return nil
}

// OnUploadFinish marks a completed upload and hands it to the promoter.
// It returns before the durable copy is written.
func (s *Service) OnUploadFinish(ctx context.Context, header http.Header, tusID string, size int64) error {
	if header.Get(HeaderFileID) == "" {
		return fmt.Errorf("missing x-file-id header: %w", ErrInvalidRequest)
	}

	file, err := s.database.FindFileByTusID(ctx, tusID)
	if err != nil {
		return fmt.Errorf("finding upload: %w", err)
	}
	if file == nil {
		s.discardUpload(tusID)
		return fmt.Errorf("upload %s: %w", tusID, ErrNotFound)
	}
	if _, err := s.loadRoom(ctx, file.RoomID); err != nil {
		if errors.Is(err, ErrNotFound) {
			s.discardUpload(tusID)
		}
		return err
	}

	if err := s.database.MarkFileUploaded(ctx, tusID, size, s.clock.Now()); err != nil {
		return fmt.Errorf("marking upload finished: %w", err)
	}

	s.logger.Info("upload finished", "room", file.RoomID, "upload", tusID, "size", size)
	s.promoter.Enqueue(file.RoomID, tusID, size)
	return nil
}

// discardUpload drops the bytes of an upload whose room is gone. GC finds
// cached uploads through their records, so nothing else would remove them.
func (s *Service) discardUpload(tusID string) {
	if err := s.cache.Delete(tusID); err != nil && !errors.Is(err, ErrObjectNotFound) {
		s.logger.Warn("discarding orphaned upload failed", "upload", tusID, "error", err)
	}
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "invalid"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	default:
		return "error"
	}
}
