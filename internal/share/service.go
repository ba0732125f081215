package share

import (
	"context"
	"crypto/subtle"
	"fmt"
	"time"

	"siashare-go/internal/database/sqlc"
)

// DefaultRoomTTL is used when Options.RoomTTL is zero.
const DefaultRoomTTL = 24 * time.Hour

// Options tunes the Service.
type Options struct {
	// RoomTTL is added to the creation time to get a room's expiration.
	RoomTTL time.Duration

	// MaxFiles caps the number of uploads per room. Zero means unlimited.
	MaxFiles int
}

// Service is the room transfer coordinator. It owns room lifecycle, the
// upload hooks and the download router, and talks to the Metadata Store and
// both storage tiers through interfaces.
type Service struct {
	database Database
	vault    Vault
	cache    Cache
	promoter *Promoter
	logger   Logger
	metrics  Metrics
	clock    Clock
	idgen    IDGenerator
	opts     Options
}

// NewService creates a Service with the provided dependencies.
// idgen produces room ids and writer tokens, so it must be unguessable in production.
func NewService(database Database, vault Vault, cache Cache, promoter *Promoter, logger Logger, metrics Metrics, clock Clock, idgen IDGenerator, opts Options) *Service {
	if opts.RoomTTL <= 0 {
		opts.RoomTTL = DefaultRoomTTL
	}
	return &Service{
		database: database,
		vault:    vault,
		cache:    cache,
		promoter: promoter,
		logger:   logger,
		metrics:  metrics,
		clock:    clock,
		idgen:    idgen,
		opts:     opts,
	}
}

// loadRoom returns the room, treating expired rooms as already gone.
func (s *Service) loadRoom(ctx context.Context, id string) (*sqlc.Room, error) {
	if id == "" {
		return nil, fmt.Errorf("room id required: %w", ErrInvalidRequest)
	}
	room, err := s.database.FindRoomByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading room: %w", err)
	}
	if room == nil || !s.clock.Now().Before(room.ExpiresAt) {
		return nil, fmt.Errorf("room %s: %w", id, ErrNotFound)
	}
	return room, nil
}

// authorizeReader loads a room and checks the reader token against it.
func (s *Service) authorizeReader(ctx context.Context, id, readerToken string) (*sqlc.Room, error) {
	if readerToken == "" {
		return nil, fmt.Errorf("reader token required: %w", ErrInvalidRequest)
	}
	room, err := s.loadRoom(ctx, id)
	if err != nil {
		return nil, err
	}
	if !tokensEqual(room.ReaderAuthToken, readerToken) {
		return nil, fmt.Errorf("reader token for room %s: %w", id, ErrForbidden)
	}
	return room, nil
}

// authorizeWriter loads a room and checks the writer token against it.
func (s *Service) authorizeWriter(ctx context.Context, id, writerToken string) (*sqlc.Room, error) {
	if writerToken == "" {
		return nil, fmt.Errorf("writer token required: %w", ErrInvalidRequest)
	}
	room, err := s.loadRoom(ctx, id)
	if err != nil {
		return nil, err
	}
	if !tokensEqual(room.WriterAuthToken, writerToken) {
		return nil, fmt.Errorf("writer token for room %s: %w", id, ErrForbidden)
	}
	return room, nil
}

func tokensEqual(want, got string) bool {
	return subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1
}
