package logging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
)

type contextKey string

const (
	NotificationIDKey contextKey = "notification_id"
	ChannelKey        contextKey = "channel"
	WorkerIDKey       contextKey = "worker_id"
)

// MultiHandler sends log records to multiple handlers.
type MultiHandler struct {
	handlers []slog.Handler
}

func NewMultiHandler(handlers ...slog.Handler) *MultiHandler {
	return &MultiHandler{handlers: handlers}
}

func (m *MultiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m *MultiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, h := range m.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			return err
		}
	}
	return nil
}

func (m *MultiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newHandlers := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		newHandlers[i] = h.WithAttrs(attrs)
	}
	return &MultiHandler{handlers: newHandlers}
}

func (m *MultiHandler) WithGroup(name string) slog.Handler {
	newHandlers := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		newHandlers[i] = h.WithGroup(name)
	}
	return &MultiHandler{handlers: newHandlers}
}

// ParseLevel maps debug/info/warn/error to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return level, nil
}

// Init installs the default logger: text on stdout and, when file is set,
// JSON appended to that file.
func Init(level, file string) {
	lvl, err := ParseLevel(level)
	if err != nil {
		lvl = slog.LevelInfo
	}

	// Custom time format: yyyy:mm:dd:HH:MM:SS -> 2006:01:02:15:04:05
	opts := &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					return slog.String(a.Key, t.Format("2006:01:02:15:04:05"))
				}
			}
			return a
		},
	}

	// Stdout: Text format
	stdoutHandler := slog.NewTextHandler(os.Stdout, opts)
	if file == "" {
		slog.SetDefault(slog.New(stdoutHandler))
		return
	}

	// File: JSON format
	logFile, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		slog.SetDefault(slog.New(stdoutHandler))
		slog.Error("failed to open log file", slog.String("file", file), slog.Any("error", err))
		return
	}

	jsonHandler := slog.NewJSONHandler(logFile, opts)
	slog.SetDefault(slog.New(NewMultiHandler(stdoutHandler, jsonHandler)))
}

func FromContext(ctx context.Context) *slog.Logger {
	l := slog.Default()
	if val, ok := ctx.Value(NotificationIDKey).(string); ok {
		l = l.With("notification_id", val)
	}
	if val, ok := ctx.Value(ChannelKey).(string); ok {
		l = l.With("channel", val)
	}
	if val, ok := ctx.Value(WorkerIDKey).(int); ok {
		l = l.With("worker_id", val)
	}
	return l
}

func WithNotification(ctx context.Context, id, channel string) context.Context {
	ctx = context.WithValue(ctx, NotificationIDKey, id)
	return context.WithValue(ctx, ChannelKey, channel)
}

func WithWorker(ctx context.Context, id int) context.Context {
	return context.WithValue(ctx, WorkerIDKey, id)
}
