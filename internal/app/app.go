// Package app builds every component from config and owns their lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"siashare-go/internal/cache"
	"siashare-go/internal/config"
	"siashare-go/internal/database"
	"siashare-go/internal/distlock"
	"siashare-go/internal/metrics"
	"siashare-go/internal/ratelimit"
	"siashare-go/internal/server"
	"siashare-go/internal/share"
	"siashare-go/internal/tracker"
	"siashare-go/internal/vault"
)

// promotionDrainTimeout bounds how long shutdown waits for in-flight promotions.
const promotionDrainTimeout = 30 * time.Second

// App is the application layer between the CLI and the share service.
type App struct {
	cfg      *config.Config
	op       *Operation
	clock    share.Clock
	db       *database.SQLiteDatabase
	cache    *cache.FileSystemCache
	vault    share.Vault
	redis    *redis.Client
	metrics  *metrics.Prometheus
	promoter *share.Promoter
	service  *share.Service
	gc       *share.GarbageCollector
	slog     *slog.Logger
	logger   share.Logger
	logFile  *os.File
}

// New creates a fully wired App from cfg. operation names the CLI command
// being run and tags its log lines. The caller must call Close when done.
func New(ctx context.Context, cfg *config.Config, operation string) (_ *App, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	a := &App{cfg: cfg, clock: share.RealClock{}}
	a.op = NewOperation(operation, a.clock.Now())
	defer func() {
		if err != nil {
			a.closeResources()
		}
	}()

	a.slog, a.logFile, err = newLogger(cfg.LogDir, cfg.LogLevel, cfg.InstanceID+"/"+a.op.ID())
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	a.logger = &slogAdapter{l: a.slog}

	a.db, err = database.NewDatabaseFromConfig(cfg.Database, cfg.InstanceID)
	if err != nil {
		return nil, fmt.Errorf("creating database: %w", err)
	}
	schema, err := a.db.SchemaStatus()
	if err != nil {
		return nil, fmt.Errorf("inspecting database schema: %w", err)
	}
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("database %s: %w", a.db.Path(), err)
	}
	a.logger.Debug("database ready", "path", a.db.Path(), "schema_version", schema.Version)
	a.cache, err = cache.NewCacheFromConfig(cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("creating cache: %w", err)
	}
	a.vault, err = vault.NewVaultFromConfig(ctx, cfg.Vault)
	if err != nil {
		return nil, fmt.Errorf("creating vault: %w", err)
	}
	if err := a.vault.ValidateSetup(ctx); err != nil {
		return nil, fmt.Errorf("validating vault: %w", err)
	}

	var locker share.Locker = share.NopLocker{}
	if cfg.Redis.Addr != "" {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Redis.Addr, err)
		}
		locker, err = distlock.NewRedisLocker(a.redis, cfg.Redis.Prefix, a.logger)
		if err != nil {
			return nil, err
		}
	}

	var m share.Metrics = share.NopMetrics{}
	if cfg.Metrics.Enabled {
		a.metrics = metrics.New()
		m = a.metrics
	}

	a.promoter = share.NewPromoter(a.db, a.vault, a.cache, a.logger, m, a.clock, share.PromoterOptions{
		MaxAttempts: cfg.Promotion.MaxAttempts,
		BaseDelay:   cfg.Promotion.BaseDelay.Duration,
		MaxDelay:    cfg.Promotion.MaxDelay.Duration,
	})
	a.service = share.NewService(a.db, a.vault, a.cache, a.promoter, a.logger, m, a.clock,
		share.RandomHexGenerator{Bytes: 16},
		share.Options{RoomTTL: cfg.RoomTTL.Duration, MaxFiles: cfg.Upload.MaxFiles})
	a.gc = share.NewGarbageCollector(a.db, a.vault, a.cache, locker, a.logger, m, a.clock, share.GCOptions{
		CacheRetention: cfg.Cache.Retention.Duration,
		LockTTL:        cfg.GC.LockTTL.Duration,
	})

	a.logger.Debug("app initialized", "vault", cfg.Vault.Type, "database", a.db.Path(), "cache", a.cache.Dir())
	return a, nil
}

// NewServer builds the HTTP server, including the tracker and rate limiter
// when they are configured.
func (a *App) NewServer() (*server.Server, error) {
	deps := server.Deps{
		Service:      a.service,
		Logger:       a.logger,
		UploadLogger: a.slog.With("component", "upload"),
		Clock:        a.clock,
		UploadIDs:    share.UUIDGenerator{},
	}
	if a.metrics != nil {
		deps.Metrics = a.metrics
	}
	if a.cfg.Tracker.Enabled {
		opts := tracker.Options{AnnounceInterval: a.cfg.Tracker.AnnounceInterval.Duration}
		if a.metrics != nil {
			opts.PeersChanged = a.metrics.PeersChanged
		}
		deps.Tracker = tracker.NewServer(a.logger, opts)
	}
	if a.cfg.RateLimit.RoomCreateLimit > 0 {
		if a.redis == nil {
			return nil, errors.New("rate limiting requires redis")
		}
		limiter, err := ratelimit.NewFixedWindowLimiter(a.redis, a.cfg.Redis.Prefix,
			a.cfg.RateLimit.RoomCreateLimit, a.cfg.RateLimit.Window.Duration, a.clock)
		if err != nil {
			return nil, err
		}
		deps.Limiter = limiter
	}

	return server.New(deps, server.Options{
		UploadDir:      a.cache.Dir(),
		UploadPassword: a.cfg.Upload.Password,
		MaxFileSize:    a.cfg.Upload.MaxFileSize,
		MaxFiles:       a.cfg.Upload.MaxFiles,
		RoomTTL:        a.cfg.RoomTTL.Duration,
		SessionSecret:  a.cfg.Session.Secret,
		SessionTTL:     a.cfg.Session.TTL.Duration,
		SecureCookies:  a.cfg.TLS.Enabled(),
		BehindProxy:    a.cfg.BehindProxy,
	})
}

// Serve runs the HTTP server and the periodic GC until ctx is cancelled,
// then waits a bounded time for in-flight promotions.
func (a *App) Serve(ctx context.Context) error {
	srv, err := a.NewServer()
	if err != nil {
		a.op.Fail()
		return fmt.Errorf("creating server: %w", err)
	}
	tlsConfig, err := server.TLSConfig(a.cfg.TLS, a.clock.Now())
	if err != nil {
		a.op.Fail()
		return err
	}
	if a.cfg.TLS.SelfSigned {
		a.logger.Warn("serving a self-signed certificate, for local use only")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.gc.Run(gctx, a.cfg.GC.Interval.Duration)
		return nil
	})
	g.Go(func() error {
		return srv.ListenAndServe(gctx, a.cfg.ListenAddr, tlsConfig)
	})
	err = g.Wait()

	drainCtx, cancel := context.WithTimeout(context.Background(), promotionDrainTimeout)
	defer cancel()
	if werr := a.promoter.Wait(drainCtx); werr != nil {
		a.logger.Warn("promotions still pending at shutdown", "error", werr)
	}
	if err != nil {
		a.op.Fail()
	}
	return err
}

// Sweep runs one GC sweep immediately.
func (a *App) Sweep(ctx context.Context) (*share.SweepResult, error) {
	result, err := a.gc.Sweep(ctx)
	if err != nil {
		a.op.Fail()
	}
	return result, err
}

// SweepHistory returns the most recent GC sweeps.
func (a *App) SweepHistory(ctx context.Context, limit int) ([]*share.SweepRecord, error) {
	return a.gc.History(ctx, limit)
}

// DatabasePath returns where the Metadata Store lives.
func (a *App) DatabasePath() string {
	return a.db.Path()
}

// Close stops outstanding promotions and releases every resource.
func (a *App) Close() error {
	if a.logger != nil {
		a.logger.Info("operation finished", "status", a.op.Status, "elapsed", a.clock.Now().Sub(a.op.Started).Round(time.Millisecond))
	}
	return a.closeResources()
}

func (a *App) closeResources() error {
	var errs []error
	if a.promoter != nil {
		a.promoter.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing redis: %w", err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing database: %w", err))
		}
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return errors.Join(errs...)
}
