// Package server exposes the room coordinator over HTTP: the JSON room API,
// ranged downloads, the resumable-upload mount, the tracker and /metrics.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/klauspost/compress/gzhttp"

	"siashare-go/internal/share"
)

const (
	maxJSONBody = 1 << 20
	trackerPath = "/api/tracker"
)

// Limiter decides whether a client may create another room.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Metrics records HTTP requests and serves the metrics exposition.
type Metrics interface {
	ObserveRequest(route string, code int, elapsed time.Duration)
	Handler() http.Handler
}

// Options configures request handling.
type Options struct {
	// UploadDir is the resumable-upload store directory, shared with the cache tier.
	UploadDir string

	// UploadPassword, when set, is required in x-upload-password to create rooms.
	UploadPassword string

	MaxFileSize int64
	MaxFiles    int
	RoomTTL     time.Duration

	SessionSecret string
	SessionTTL    time.Duration

	// SecureCookies marks session cookies Secure. Set when serving TLS.
	SecureCookies bool

	// BehindProxy trusts X-Forwarded-* headers for upload URLs.
	BehindProxy bool
}

// Deps are the collaborators a Server calls. Limiter, Metrics and Tracker may be nil.
type Deps struct {
	Service      *share.Service
	Logger       share.Logger
	UploadLogger *slog.Logger
	Clock        share.Clock
	UploadIDs    share.IDGenerator
	Limiter      Limiter
	Metrics      Metrics
	Tracker      http.Handler
}

// Server routes HTTP requests to the service.
type Server struct {
	svc       *share.Service
	sessions  *sessions
	limiter   Limiter
	observer  Metrics
	tracker   http.Handler
	logger    share.Logger
	clock     share.Clock
	uploadIDs share.IDGenerator
	opts      Options
	handler   http.Handler
}

// New builds the Server and its route table.
func New(deps Deps, opts Options) (*Server, error) {
	if deps.Service == nil {
		return nil, errors.New("server requires a service")
	}
	if opts.UploadDir == "" {
		return nil, errors.New("server requires an upload directory")
	}
	if deps.Clock == nil {
		deps.Clock = share.RealClock{}
	}
	if deps.UploadIDs == nil {
		deps.UploadIDs = share.UUIDGenerator{}
	}
	if deps.UploadLogger == nil {
		deps.UploadLogger = slog.New(slog.DiscardHandler)
	}

	sess, err := newSessions(opts.SessionSecret, opts.SessionTTL, opts.SecureCookies, deps.Clock)
	if err != nil {
		return nil, err
	}
	s := &Server{
		svc:       deps.Service,
		sessions:  sess,
		limiter:   deps.Limiter,
		observer:  deps.Metrics,
		tracker:   deps.Tracker,
		logger:    deps.Logger,
		clock:     deps.Clock,
		uploadIDs: deps.UploadIDs,
		opts:      opts,
	}

	uploads, err := s.newUploadHandler(opts.UploadDir, opts.MaxFileSize, deps.UploadLogger)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	compressed := func(h http.HandlerFunc) http.Handler { return gzhttp.GzipHandler(h) }

	mux.Handle("POST /api/room", compressed(s.handleCreateRoom))
	mux.Handle("PUT /api/room/{id}", compressed(s.handleFinalize))
	mux.Handle("GET /api/room/{id}/salt", compressed(s.handleGetSalt))
	mux.Handle("GET /api/room/{id}", compressed(s.handleGetRoom))
	mux.Handle("GET /api/room/{id}/files/{fileId}/status", compressed(s.handleFileStatus))
	mux.HandleFunc("GET /api/room/{id}/files/{ref}/download/{name...}", s.handleDownload)
	mux.Handle("GET /api/config", compressed(s.handleConfig))
	mux.Handle(UploadPath, http.StripPrefix(UploadPath, uploads))
	if s.tracker != nil {
		mux.Handle("GET "+trackerPath, s.tracker)
	}
	if s.observer != nil {
		mux.Handle("GET /metrics", s.observer.Handler())
	}

	s.handler = withRequestID(withSecurityHeaders(s.withRequestLog(mux)))
	return s, nil
}

// Handler returns the root handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully. tlsConfig may be nil for plain HTTP.
func (s *Server) ListenAndServe(ctx context.Context, addr string, tlsConfig *tls.Config) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln, tlsConfig)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener, tlsConfig *tls.Config) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
		TLSConfig:         tlsConfig,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	errc := make(chan error, 1)
	go func() {
		if tlsConfig != nil {
			errc <- srv.ServeTLS(ln, "", "")
		} else {
			errc <- srv.Serve(ln)
		}
	}()
	s.logger.Info("server listening", "addr", ln.Addr().String(), "tls", tlsConfig != nil)

	select {
	case err := <-errc:
		return fmt.Errorf("serving: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
