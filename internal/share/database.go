package share

import (
	"context"
	"time"

	"siashare-go/internal/database/sqlc"
)

// Database is the Metadata Store. Rooms, their file records and the GC sweep
// history live here. Find* methods return (nil, nil) when nothing matches.
type Database interface {
	// Room operations

	// CreateRoom persists a new room. The caller supplies every field.
	CreateRoom(ctx context.Context, room *sqlc.Room) error

	// FindRoomByID returns the room with the given id.
	FindRoomByID(ctx context.Context, id string) (*sqlc.Room, error)

	// UpdateRoomMetadata replaces the encrypted metadata blob of a room.
	// Returns ErrNotFound if the room does not exist.
	UpdateRoomMetadata(ctx context.Context, id string, metadata string) error

	// FindExpiredRooms returns rooms whose expiration is before now, oldest first.
	FindExpiredRooms(ctx context.Context, now time.Time) ([]*sqlc.Room, error)

	// DeleteRoom removes a room and all of its file records in one transaction.
	DeleteRoom(ctx context.Context, id string) error

	// File operations

	// CreateFile inserts a not-yet-uploaded file record. When maxFiles > 0 and
	// the room already holds maxFiles records, it fails with ErrInvalidRequest.
	CreateFile(ctx context.Context, file *sqlc.File, maxFiles int) error

	// FindFileByTusID returns the record for an upload id.
	FindFileByTusID(ctx context.Context, tusID string) (*sqlc.File, error)

	// FindFileByFileID returns the best record for a client file id within a
	// room: uploaded records win over pending ones, newer over older.
	FindFileByFileID(ctx context.Context, roomID, fileID string) (*sqlc.File, error)

	// FindFilesByRoom returns every record of a room in creation order.
	FindFilesByRoom(ctx context.Context, roomID string) ([]*sqlc.File, error)

	// CountFilesInRoom returns the number of records in a room.
	CountFilesInRoom(ctx context.Context, roomID string) (int64, error)

	// MarkFileUploaded sets status=true and records the final size.
	MarkFileUploaded(ctx context.Context, tusID string, size int64, at time.Time) error

	// MarkFilePromoted records that the durable copy has been written.
	MarkFilePromoted(ctx context.Context, tusID string, at time.Time) error

	// FindFilesPromotedBefore returns promoted, not yet evicted records whose
	// promotion happened before cutoff.
	FindFilesPromotedBefore(ctx context.Context, cutoff time.Time) ([]*sqlc.File, error)

	// MarkFileEvicted records that the cached copy has been removed.
	MarkFileEvicted(ctx context.Context, tusID string, at time.Time) error

	// Sweep history

	// CreateSweep records the start of a GC sweep.
	CreateSweep(ctx context.Context, startedAt time.Time) (*sqlc.GcSweep, error)

	// FinishSweep records the outcome of a GC sweep.
	FinishSweep(ctx context.Context, id int64, result *SweepResult, finishedAt time.Time) error

	// ListSweeps returns the most recent sweeps, newest first.
	ListSweeps(ctx context.Context, limit int) ([]*sqlc.GcSweep, error)

	// Close releases the underlying connection.
	Close() error
}
