package share

import (
	"context"
	"errors"
	"fmt"
	"time"

	"siashare-go/internal/database/sqlc"
)

// CreatedRoom is returned once, at creation. It is the only time the writer
// token leaves the server.
type CreatedRoom struct {
	ID              string
	WriterAuthToken string
	ExpiresAt       time.Time
}

// CreateRoom mints a room id and writer token and stores the caller's reader
// token and salt alongside them.
func (s *Service) CreateRoom(ctx context.Context, readerToken, salt string) (*CreatedRoom, error) {
	if readerToken == "" || salt == "" {
		return nil, fmt.Errorf("readerAuthToken and salt required: %w", ErrInvalidRequest)
	}

	now := s.clock.Now()
	room := &sqlc.Room{
		ID:              s.idgen.New(),
		WriterAuthToken: s.idgen.New(),
		ReaderAuthToken: readerToken,
		Salt:            salt,
		CreatedAt:       now,
		ExpiresAt:       now.Add(s.opts.RoomTTL),
	}
	if err := s.database.CreateRoom(ctx, room); err != nil {
		return nil, fmt.Errorf("creating room: %w", err)
	}

	s.metrics.RoomCreated()
	s.logger.Info("room created", "room", room.ID, "expires_at", room.ExpiresAt.Format(time.RFC3339))
	return &CreatedRoom{ID: room.ID, WriterAuthToken: room.WriterAuthToken, ExpiresAt: room.ExpiresAt}, nil
}

// GetSalt returns a room's key-derivation salt. It is the one read that needs
// no token: the salt is useless without the share key.
func (s *Service) GetSalt(ctx context.Context, id string) (string, error) {
	room, err := s.loadRoom(ctx, id)
	if err != nil {
		return "", err
	}
	return room.Salt, nil
}

// GetRoom returns a room for a reader. Callers must not expose the writer token.
func (s *Service) GetRoom(ctx context.Context, id, readerToken string) (*sqlc.Room, error) {
	return s.authorizeReader(ctx, id, readerToken)
}

// Finalize binds the encrypted manifest to a room. Calling it again replaces
// the previous manifest.
func (s *Service) Finalize(ctx context.Context, id, writerToken, metadata string) error {
	if metadata == "" {
		return fmt.Errorf("metadata required: %w", ErrInvalidRequest)
	}
	if _, err := s.authorizeWriter(ctx, id, writerToken); err != nil {
		return err
	}
	if err := s.database.UpdateRoomMetadata(ctx, id, metadata); err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return fmt.Errorf("finalizing room: %w", err)
	}

	s.logger.Info("room finalized", "room", id, "metadata_bytes", len(metadata))
	return nil
}

// FileStatus reports the upload and promotion state of a client file id so a
// receiver can wait for the upload to finish before fetching it.
func (s *Service) FileStatus(ctx context.Context, id, readerToken, fileID string) (*sqlc.File, error) {
	if fileID == "" {
		return nil, fmt.Errorf("file id required: %w", ErrInvalidRequest)
	}
	if _, err := s.authorizeReader(ctx, id, readerToken); err != nil {
		return nil, err
	}
	file, err := s.database.FindFileByFileID(ctx, id, fileID)
	if err != nil {
		return nil, fmt.Errorf("finding file: %w", err)
	}
	if file == nil {
		return nil, fmt.Errorf("file %s in room %s: %w", fileID, id, ErrNotFound)
	}
	return file, nil
}
