package share

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"
)

// Sweep statuses recorded in the sweep history.
const (
	SweepRunning   = "running"
	SweepCompleted = "completed"
	SweepFailed    = "failed"
	SweepSkipped   = "skipped"
)

const sweepLockKey = "gc:sweep"

// SweepResult summarizes one GC sweep.
type SweepResult struct {
	SweepID        int64
	RoomsReclaimed int
	RoomsDeferred  int
	FilesEvicted   int
	Status         string
}

// GCOptions configures the collector.
type GCOptions struct {
	// CacheRetention is how long a promoted upload stays in the cache.
	// Zero disables eviction of live rooms' uploads.
	CacheRetention time.Duration

	// LockTTL bounds how long a crashed sweeper can hold the shared lock.
	LockTTL time.Duration
}

// GarbageCollector reclaims expired rooms across the cache, the vault and the
// Metadata Store. A room's rows are deleted only after the vault confirms the
// room's objects are gone, so a failed vault delete leaves the room for the
// next sweep.
type GarbageCollector struct {
	database Database
	vault    Vault
	cache    Cache
	locker   Locker
	logger   Logger
	metrics  Metrics
	clock    Clock
	opts     GCOptions
	group    singleflight.Group
}

// NewGarbageCollector creates a GarbageCollector. locker may be NopLocker{}.
func NewGarbageCollector(database Database, vault Vault, cache Cache, locker Locker, logger Logger, metrics Metrics, clock Clock, opts GCOptions) *GarbageCollector {
	if opts.LockTTL <= 0 {
		opts.LockTTL = 10 * time.Minute
	}
	return &GarbageCollector{
		database: database,
		vault:    vault,
		cache:    cache,
		locker:   locker,
		logger:   logger,
		metrics:  metrics,
		clock:    clock,
		opts:     opts,
	}
}

// Sweep runs one collection pass. Concurrent callers in this process share a
// single pass; a pass held by another process is reported as skipped.
func (g *GarbageCollector) Sweep(ctx context.Context) (*SweepResult, error) {
	v, err, _ := g.group.Do("sweep", func() (any, error) {
		return g.sweepLocked(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*SweepResult), nil
}

func (g *GarbageCollector) sweepLocked(ctx context.Context) (*SweepResult, error) {
	unlock, ok, err := g.locker.TryLock(ctx, sweepLockKey, g.opts.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquiring sweep lock: %w", err)
	}
	if !ok {
		g.logger.Info("sweep skipped, another instance holds the lock")
		return &SweepResult{Status: SweepSkipped}, nil
	}
	defer unlock()

	started := g.clock.Now()
	sweep, err := g.database.CreateSweep(ctx, started)
	if err != nil {
		return nil, fmt.Errorf("recording sweep start: %w", err)
	}

	result := &SweepResult{SweepID: sweep.ID, Status: SweepCompleted}
	runErr := g.sweep(ctx, result)
	if runErr != nil {
		result.Status = SweepFailed
	}

	// Record the outcome even if ctx was cancelled mid-sweep.
	finishCtx := context.WithoutCancel(ctx)
	if err := g.database.FinishSweep(finishCtx, sweep.ID, result, g.clock.Now()); err != nil {
		g.logger.Error("recording sweep result failed", "sweep", sweep.ID, "error", err)
	}

	elapsed := g.clock.Now().Sub(started)
	g.metrics.SweepFinished(result, elapsed)
	g.logger.Info("sweep finished",
		"sweep", sweep.ID,
		"status", result.Status,
		"rooms_reclaimed", result.RoomsReclaimed,
		"rooms_deferred", result.RoomsDeferred,
		"files_evicted", result.FilesEvicted,
	)
	if runErr != nil {
		return result, runErr
	}
	return result, nil
}

func (g *GarbageCollector) sweep(ctx context.Context, result *SweepResult) error {
	now := g.clock.Now()

	rooms, err := g.database.FindExpiredRooms(ctx, now)
	if err != nil {
		return fmt.Errorf("finding expired rooms: %w", err)
	}
	for _, room := range rooms {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := g.reclaimRoom(ctx, room.ID); err != nil {
			result.RoomsDeferred++
			g.logger.Warn("room reclamation deferred", "room", room.ID, "error", err)
			continue
		}
		result.RoomsReclaimed++
		g.logger.Info("room reclaimed", "room", room.ID)
	}

	orphans, err := g.removeOrphans(ctx)
	result.FilesEvicted += orphans
	if err != nil {
		return fmt.Errorf("removing orphaned uploads: %w", err)
	}

	if g.opts.CacheRetention <= 0 {
		return nil
	}
	evicted, err := g.evictPromoted(ctx, now.Add(-g.opts.CacheRetention))
	result.FilesEvicted += evicted
	if err != nil {
		return fmt.Errorf("evicting cached uploads: %w", err)
	}
	return nil
}

// removeOrphans deletes cached uploads that no file record references. The
// upload-create hook records a file before the upload handler writes any
// bytes, so an unreferenced entry belongs to a reclaimed room.
func (g *GarbageCollector) removeOrphans(ctx context.Context) (int, error) {
	ids, err := g.cache.List()
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, id := range ids {
		file, err := g.database.FindFileByTusID(ctx, id)
		if err != nil {
			return removed, err
		}
		if file != nil {
			continue
		}
		if err := g.cache.Delete(id); err != nil && !errors.Is(err, ErrObjectNotFound) {
			g.logger.Warn("orphaned upload delete failed", "upload", id, "error", err)
			continue
		}
		g.logger.Info("orphaned upload removed", "upload", id)
		removed++
	}
	return removed, nil
}

// reclaimRoom clears one expired room from all three stores. The metadata
// rows go last and only after the vault delete succeeded.
func (g *GarbageCollector) reclaimRoom(ctx context.Context, roomID string) error {
	files, err := g.database.FindFilesByRoom(ctx, roomID)
	if err != nil {
		return fmt.Errorf("listing files: %w", err)
	}
	for _, f := range files {
		if err := g.cache.Delete(f.TusID); err != nil && !errors.Is(err, ErrObjectNotFound) {
			g.logger.Warn("cache delete failed", "room", roomID, "upload", f.TusID, "error", err)
		}
	}

	if err := g.vault.DeleteRoom(ctx, roomID); err != nil {
		return fmt.Errorf("deleting room from vault: %w", err)
	}

	if err := g.database.DeleteRoom(ctx, roomID); err != nil {
		return fmt.Errorf("deleting room metadata: %w", err)
	}
	return nil
}

// evictPromoted removes cached copies of uploads promoted before cutoff.
func (g *GarbageCollector) evictPromoted(ctx context.Context, cutoff time.Time) (int, error) {
	files, err := g.database.FindFilesPromotedBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	evicted := 0
	for _, f := range files {
		if err := g.cache.Delete(f.TusID); err != nil && !errors.Is(err, ErrObjectNotFound) {
			g.logger.Warn("cache eviction failed", "upload", f.TusID, "error", err)
			continue
		}
		if err := g.database.MarkFileEvicted(ctx, f.TusID, g.clock.Now()); err != nil {
			return evicted, err
		}
		evicted++
	}
	return evicted, nil
}

// Run sweeps once immediately and then every interval until ctx is cancelled.
func (g *GarbageCollector) Run(ctx context.Context, interval time.Duration) {
	g.runOnce(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.runOnce(ctx)
		}
	}
}

func (g *GarbageCollector) runOnce(ctx context.Context) {
	if _, err := g.Sweep(ctx); err != nil && ctx.Err() == nil {
		g.logger.Error("sweep failed", "error", err)
	}
}

// History returns the most recent sweeps.
func (g *GarbageCollector) History(ctx context.Context, limit int) ([]*SweepRecord, error) {
	sweeps, err := g.database.ListSweeps(ctx, limit)
	if err != nil {
		return nil, err
	}
	records := make([]*SweepRecord, len(sweeps))
	for i, s := range sweeps {
		records[i] = &SweepRecord{
			ID:             s.ID,
			StartedAt:      s.StartedAt,
			RoomsReclaimed: int(s.RoomsReclaimed),
			RoomsDeferred:  int(s.RoomsDeferred),
			FilesEvicted:   int(s.FilesEvicted),
			Status:         s.Status,
		}
		if s.FinishedAt.Valid {
			records[i].FinishedAt = s.FinishedAt.Time
		}
	}
	return records, nil
}

// SweepRecord is one entry of the sweep history.
type SweepRecord struct {
	ID             int64
	StartedAt      time.Time
	FinishedAt     time.Time
	RoomsReclaimed int
	RoomsDeferred  int
	FilesEvicted   int
	Status         string
}
