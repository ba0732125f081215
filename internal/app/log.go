package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// tabHandler is a slog.Handler that formats log records as:
//
//	<timestamp>\t<level>\t<instance>/<op>\t<message>\t<key=value ...>
type tabHandler struct {
	mu     *sync.Mutex
	w      io.Writer
	level  slog.Leveler
	prefix string
	attrs  []slog.Attr
}

func newTabHandler(w io.Writer, level slog.Leveler, prefix string) *tabHandler {
	return &tabHandler{mu: &sync.Mutex{}, w: w, level: level, prefix: prefix}
}

func (h *tabHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *tabHandler) Handle(_ context.Context, r slog.Record) error {
	ts := r.Time.UTC().Format("2006-01-02T15:04:05Z")

	// Requests log concurrently; one record must land as one line.
	h.mu.Lock()
	defer h.mu.Unlock()

	_, err := fmt.Fprintf(h.w, "%s\t%s\t%s\t%s", ts, r.Level.String(), h.prefix, r.Message)
	if err != nil {
		return err
	}
	for _, a := range h.attrs {
		fmt.Fprintf(h.w, "\t%s=%v", a.Key, a.Value)
	}
	r.Attrs(func(a slog.Attr) bool {
		fmt.Fprintf(h.w, "\t%s=%v", a.Key, a.Value)
		return true
	})

	_, err = fmt.Fprintln(h.w)
	return err
}

func (h *tabHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &tabHandler{
		mu:     h.mu,
		w:      h.w,
		level:  h.level,
		prefix: h.prefix,
		attrs:  append(append([]slog.Attr{}, h.attrs...), attrs...),
	}
}

func (h *tabHandler) WithGroup(string) slog.Handler { return h }

// parseLevel maps the config log_level to a slog level. Empty means info.
func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("parsing log level: %w", err)
	}
	return level, nil
}

// newLogger creates a structured logger that writes to both logDir/siashare.log and stderr.
// It returns the slog.Logger, the open log file (for cleanup), and any error.
func newLogger(logDir, level, prefix string) (*slog.Logger, *os.File, error) {
	lvl, err := parseLevel(level)
	if err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}

	logPath := filepath.Join(logDir, "siashare.log")
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}

	w := io.MultiWriter(f, os.Stderr)
	return slog.New(newTabHandler(w, lvl, prefix)), f, nil
}

// slogAdapter wraps *slog.Logger to satisfy the share.Logger interface.
type slogAdapter struct {
	l *slog.Logger
}

func (a *slogAdapter) Debug(msg string, args ...any) { a.l.Debug(msg, args...) }
func (a *slogAdapter) Info(msg string, args ...any)  { a.l.Info(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.l.Warn(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.l.Error(msg, args...) }
