package share

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
)

// PromoterOptions bounds the retry loop for one promotion.
type PromoterOptions struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// errRoomGone stops a promotion whose room expired or was reclaimed.
var errRoomGone = errors.New("room expired or reclaimed")

// Promoter copies finished uploads from the cache into the vault in the
// background, retrying with exponential backoff. Persistent failure is
// logged and counted; the upload stays readable from the cache. A promotion
// that outlives its room removes what it wrote so GC never misses an object.
type Promoter struct {
	database Database
	vault    Vault
	cache    Cache
	logger   Logger
	metrics  Metrics
	clock    Clock
	opts     PromoterOptions

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPromoter creates a Promoter. Call Close to stop outstanding work.
func NewPromoter(database Database, vault Vault, cache Cache, logger Logger, metrics Metrics, clock Clock, opts PromoterOptions) *Promoter {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = time.Second
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Promoter{
		database: database,
		vault:    vault,
		cache:    cache,
		logger:   logger,
		metrics:  metrics,
		clock:    clock,
		opts:     opts,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Enqueue starts promoting an upload and returns immediately.
func (p *Promoter) Enqueue(roomID, tusID string, size int64) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		_ = p.Promote(p.ctx, roomID, tusID, size)
	}()
}

// Promote copies one upload to the vault and records the promotion. It blocks
// until the copy succeeds, attempts run out or ctx ends.
func (p *Promoter) Promote(ctx context.Context, roomID, tusID string, size int64) error {
	started := p.clock.Now()
	attempt := 0

	backoff := retry.NewExponential(p.opts.BaseDelay)
	backoff = retry.WithCappedDuration(p.opts.MaxDelay, backoff)
	backoff = retry.WithMaxRetries(uint64(p.opts.MaxAttempts-1), backoff)

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if gone, err := p.roomGone(ctx, roomID); err == nil && gone {
			return errRoomGone
		}
		attempt++
		err := p.copyToVault(ctx, roomID, tusID, size)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrObjectNotFound) || errors.Is(err, errRoomGone) {
			return err
		}
		p.logger.Warn("promotion attempt failed", "room", roomID, "upload", tusID, "attempt", attempt, "error", err)
		return retry.RetryableError(err)
	})
	if err == nil {
		// GC may have reclaimed the room while Put was running.
		if gone, gerr := p.roomGone(ctx, roomID); gerr != nil {
			p.logger.Warn("checking room after promotion failed", "room", roomID, "upload", tusID, "error", gerr)
		} else if gone {
			err = errRoomGone
		}
	}
	elapsed := p.clock.Now().Sub(started)
	if errors.Is(err, errRoomGone) {
		return p.abandon(ctx, roomID, tusID, elapsed)
	}
	if err != nil {
		p.metrics.PromotionFinished("failed", elapsed)
		p.logger.Error("promotion failed", "room", roomID, "upload", tusID, "attempts", attempt, "error", err)
		return fmt.Errorf("promoting %s: %w", tusID, err)
	}

	if err := p.database.MarkFilePromoted(ctx, tusID, p.clock.Now()); err != nil {
		// The durable copy exists; only the eviction bookkeeping is lost.
		p.logger.Error("recording promotion failed", "room", roomID, "upload", tusID, "error", err)
	}
	p.metrics.PromotionFinished("success", elapsed)
	p.logger.Info("upload promoted", "room", roomID, "upload", tusID, "attempts", attempt)
	return nil
}

// roomGone reports whether the room no longer accepts durable copies.
func (p *Promoter) roomGone(ctx context.Context, roomID string) (bool, error) {
	room, err := p.database.FindRoomByID(ctx, roomID)
	if err != nil {
		return false, err
	}
	return room == nil || !p.clock.Now().Before(room.ExpiresAt), nil
}

// abandon removes every vault object under the room.
func (p *Promoter) abandon(ctx context.Context, roomID, tusID string, elapsed time.Duration) error {
	if err := p.vault.DeleteRoom(context.WithoutCancel(ctx), roomID); err != nil {
		p.logger.Error("removing abandoned promotion failed", "room", roomID, "upload", tusID, "error", err)
	}
	p.metrics.PromotionFinished("abandoned", elapsed)
	p.logger.Info("promotion abandoned", "room", roomID, "upload", tusID)
	return fmt.Errorf("promoting %s: %w: %w", tusID, errRoomGone, ErrNotFound)
}

func (p *Promoter) copyToVault(ctx context.Context, roomID, tusID string, size int64) error {
	r, err := p.cache.Open(tusID, 0, size-1)
	if err != nil {
		return fmt.Errorf("opening cached upload: %w", err)
	}
	defer r.Close()

	if err := p.vault.Put(ctx, roomID, tusID, r, size); err != nil {
		return fmt.Errorf("writing to vault: %w", err)
	}
	return nil
}

// Wait blocks until all enqueued promotions finish or ctx ends.
func (p *Promoter) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close cancels outstanding promotions and waits for their goroutines.
func (p *Promoter) Close() {
	p.cancel()
	p.wg.Wait()
}
