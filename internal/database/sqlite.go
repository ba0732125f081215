package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"siashare-go/internal/database/migrations"
	"siashare-go/internal/database/sqlc"
	"siashare-go/internal/share"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteDatabase implements the Database interface using SQLite.
type SQLiteDatabase struct {
	db      *sql.DB
	queries *sqlc.Queries
	path    string
}

// NewSQLiteDatabase creates a new SQLite database connection.
// path can be a file path or ":memory:" for in-memory database.
func NewSQLiteDatabase(path string) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}

	return &SQLiteDatabase{
		db:      db,
		queries: sqlc.New(db),
		path:    path,
	}, nil
}

// NewSQLiteDatabaseFromDB wraps an existing database connection.
// The caller is responsible for ensuring the connection is properly configured.
func NewSQLiteDatabaseFromDB(db *sql.DB) *SQLiteDatabase {
	return &SQLiteDatabase{
		db:      db,
		queries: sqlc.New(db),
	}
}

// OpenConnection opens and configures a SQLite database connection.
// path can be a file path or ":memory:" for in-memory database.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Each new connection to ":memory:" is a fresh empty database.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	if path != ":memory:" {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	return db, nil
}

// Room operations

func (s *SQLiteDatabase) CreateRoom(ctx context.Context, room *sqlc.Room) error {
	err := s.queries.InsertRoom(ctx, sqlc.InsertRoomParams{
		ID:              room.ID,
		WriterAuthToken: room.WriterAuthToken,
		ReaderAuthToken: room.ReaderAuthToken,
		Salt:            room.Salt,
		CreatedAt:       room.CreatedAt.UTC(),
		ExpiresAt:       room.ExpiresAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("inserting room: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) FindRoomByID(ctx context.Context, id string) (*sqlc.Room, error) {
	room, err := s.queries.GetRoomByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding room by id: %w", err)
	}
	return &room, nil
}

func (s *SQLiteDatabase) UpdateRoomMetadata(ctx context.Context, id string, metadata string) error {
	n, err := s.queries.UpdateRoomMetadata(ctx, sqlc.UpdateRoomMetadataParams{
		Metadata: sql.NullString{String: metadata, Valid: true},
		ID:       id,
	})
	if err != nil {
		return fmt.Errorf("updating room metadata: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("room %s: %w", id, share.ErrNotFound)
	}
	return nil
}

func (s *SQLiteDatabase) FindExpiredRooms(ctx context.Context, now time.Time) ([]*sqlc.Room, error) {
	rooms, err := s.queries.GetExpiredRooms(ctx, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("finding expired rooms: %w", err)
	}

	result := make([]*sqlc.Room, len(rooms))
	for i := range rooms {
		result[i] = &rooms[i]
	}
	return result, nil
}

func (s *SQLiteDatabase) DeleteRoom(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	qtx := s.queries.WithTx(tx)

	if err := qtx.DeleteFilesByRoomID(ctx, id); err != nil {
		return fmt.Errorf("deleting files of room %s: %w", id, err)
	}
	if err := qtx.DeleteRoomByID(ctx, id); err != nil {
		return fmt.Errorf("deleting room %s: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// File operations

func (s *SQLiteDatabase) CreateFile(ctx context.Context, file *sqlc.File, maxFiles int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	qtx := s.queries.WithTx(tx)

	if maxFiles > 0 {
		count, err := qtx.CountFilesByRoomID(ctx, file.RoomID)
		if err != nil {
			return fmt.Errorf("counting files: %w", err)
		}
		if count >= int64(maxFiles) {
			return fmt.Errorf("room %s already has %d files: %w", file.RoomID, count, share.ErrInvalidRequest)
		}
	}

	err = qtx.InsertFile(ctx, sqlc.InsertFileParams{
		TusID:     file.TusID,
		RoomID:    file.RoomID,
		FileID:    file.FileID,
		Status:    file.Status,
		Size:      file.Size,
		CreatedAt: file.CreatedAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("inserting file: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) FindFileByTusID(ctx context.Context, tusID string) (*sqlc.File, error) {
	file, err := s.queries.GetFileByTusID(ctx, tusID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding file by tus id: %w", err)
	}
	return &file, nil
}

func (s *SQLiteDatabase) FindFileByFileID(ctx context.Context, roomID, fileID string) (*sqlc.File, error) {
	file, err := s.queries.GetLatestFileByRoomAndFileID(ctx, sqlc.GetLatestFileByRoomAndFileIDParams{
		RoomID: roomID,
		FileID: fileID,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding file by file id: %w", err)
	}
	return &file, nil
}

func (s *SQLiteDatabase) FindFilesByRoom(ctx context.Context, roomID string) ([]*sqlc.File, error) {
	files, err := s.queries.GetFilesByRoomID(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("finding files by room: %w", err)
	}
	return filePointers(files), nil
}

func (s *SQLiteDatabase) CountFilesInRoom(ctx context.Context, roomID string) (int64, error) {
	n, err := s.queries.CountFilesByRoomID(ctx, roomID)
	if err != nil {
		return 0, fmt.Errorf("counting files: %w", err)
	}
	return n, nil
}

func (s *SQLiteDatabase) MarkFileUploaded(ctx context.Context, tusID string, size int64, at time.Time) error {
	n, err := s.queries.MarkFileUploaded(ctx, sqlc.MarkFileUploadedParams{
		Size:       size,
		UploadedAt: nullTime(at),
		TusID:      tusID,
	})
	if err != nil {
		return fmt.Errorf("marking file uploaded: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("file %s: %w", tusID, share.ErrNotFound)
	}
	return nil
}

func (s *SQLiteDatabase) MarkFilePromoted(ctx context.Context, tusID string, at time.Time) error {
	n, err := s.queries.MarkFilePromoted(ctx, sqlc.MarkFilePromotedParams{
		PromotedAt: nullTime(at),
		TusID:      tusID,
	})
	if err != nil {
		return fmt.Errorf("marking file promoted: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("file %s: %w", tusID, share.ErrNotFound)
	}
	return nil
}

func (s *SQLiteDatabase) FindFilesPromotedBefore(ctx context.Context, cutoff time.Time) ([]*sqlc.File, error) {
	files, err := s.queries.GetFilesPromotedBefore(ctx, nullTime(cutoff))
	if err != nil {
		return nil, fmt.Errorf("finding promoted files: %w", err)
	}
	return filePointers(files), nil
}

func (s *SQLiteDatabase) MarkFileEvicted(ctx context.Context, tusID string, at time.Time) error {
	_, err := s.queries.MarkFileEvicted(ctx, sqlc.MarkFileEvictedParams{
		EvictedAt: nullTime(at),
		TusID:     tusID,
	})
	if err != nil {
		return fmt.Errorf("marking file evicted: %w", err)
	}
	return nil
}

// Sweep history

func (s *SQLiteDatabase) CreateSweep(ctx context.Context, startedAt time.Time) (*sqlc.GcSweep, error) {
	id, err := s.queries.InsertGcSweep(ctx, startedAt.UTC())
	if err != nil {
		return nil, fmt.Errorf("creating sweep: %w", err)
	}
	sweep, err := s.queries.GetGcSweepByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("reading sweep %d: %w", id, err)
	}
	return &sweep, nil
}

func (s *SQLiteDatabase) FinishSweep(ctx context.Context, id int64, result *share.SweepResult, finishedAt time.Time) error {
	err := s.queries.UpdateGcSweepFinished(ctx, sqlc.UpdateGcSweepFinishedParams{
		FinishedAt:     nullTime(finishedAt),
		RoomsReclaimed: int64(result.RoomsReclaimed),
		RoomsDeferred:  int64(result.RoomsDeferred),
		FilesEvicted:   int64(result.FilesEvicted),
		Status:         result.Status,
		ID:             id,
	})
	if err != nil {
		return fmt.Errorf("finishing sweep: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) ListSweeps(ctx context.Context, limit int) ([]*sqlc.GcSweep, error) {
	sweeps, err := s.queries.GetGcSweeps(ctx, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("listing sweeps: %w", err)
	}

	result := make([]*sqlc.GcSweep, len(sweeps))
	for i := range sweeps {
		result[i] = &sweeps[i]
	}
	return result, nil
}

// Path returns the database file path (or ":memory:" for in-memory databases).
func (s *SQLiteDatabase) Path() string {
	return s.path
}

// Migrate applies pending migrations and returns the schema versions before
// and after.
func (s *SQLiteDatabase) Migrate() (from, to uint, err error) {
	return migrations.Up(s.db)
}

// SchemaStatus reports the schema version and any missing tables.
func (s *SQLiteDatabase) SchemaStatus() (*migrations.Status, error) {
	return migrations.Inspect(s.db)
}

// CheckMigrations returns nil when the schema matches this binary.
func (s *SQLiteDatabase) CheckMigrations() error {
	return migrations.Check(s.db)
}

// Close closes the database connection.
func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func filePointers(files []sqlc.File) []*sqlc.File {
	result := make([]*sqlc.File, len(files))
	for i := range files {
		result[i] = &files[i]
	}
	return result
}

// Compile-time check that SQLiteDatabase implements share.Database interface
var _ share.Database = (*SQLiteDatabase)(nil)
