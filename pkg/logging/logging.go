// Package logging builds the slog loggers used by the CLI and the monitor.
//
// Records fan out to a console text handler, an optional JSON file and, for
// the TUI, a channel of pre-rendered lines.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	slogmulti "github.com/samber/slog-multi"
)

// Options selects the outputs of a logger.
type Options struct {
	Level   string    // debug, info, warn or error
	Console io.Writer // nil disables console output
	File    string    // JSON log file, empty disables it
	Channel *ChannelHandler
}

// Logger is a slog.Logger plus the file it may own.
type Logger struct {
	*slog.Logger
	level *slog.LevelVar
	file  *os.File
	mu    sync.Mutex
}

// New builds a logger from opts.
func New(opts Options) (*Logger, error) {
	level := new(slog.LevelVar)
	level.Set(ParseLevel(opts.Level))

	var handlers []slog.Handler
	if opts.Console != nil {
		handlers = append(handlers, slog.NewTextHandler(opts.Console, &slog.HandlerOptions{
			Level: level,
		}))
	}

	var file *os.File
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		var err error
		file, err = os.OpenFile(opts.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		handlers = append(handlers, slog.NewJSONHandler(file, &slog.HandlerOptions{
			Level: level,
		}))
	}

	if opts.Channel != nil {
		opts.Channel.level = level
		handlers = append(handlers, opts.Channel)
	}

	return &Logger{
		Logger: slog.New(slogmulti.Fanout(handlers...)),
		level:  level,
		file:   file,
	}, nil
}

// SetLevel changes the level of every output.
func (l *Logger) SetLevel(level string) {
	l.level.Set(ParseLevel(level))
}

// Close syncs and closes the log file, if any.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("sync log file: %w", err)
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// ParseLevel converts a level name to a slog.Level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ValidLevels lists the accepted level names.
func ValidLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// ChannelHandler renders records as short lines onto a buffered channel.
// Lines are dropped when the channel is full.
type ChannelHandler struct {
	ch    chan string
	level slog.Leveler
	attrs []slog.Attr
}

// NewChannelHandler returns a handler with room for size pending lines.
func NewChannelHandler(size int) *ChannelHandler {
	return &ChannelHandler{
		ch:    make(chan string, size),
		level: slog.LevelInfo,
	}
}

// Lines returns the channel the rendered lines arrive on.
func (h *ChannelHandler) Lines() <-chan string {
	return h.ch
}

func (h *ChannelHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *ChannelHandler) Handle(_ context.Context, r slog.Record) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s", r.Time.Format("15:04:05"), r.Message)
	for _, a := range h.attrs {
		fmt.Fprintf(&sb, " %s=%v", a.Key, a.Value)
	}
	r.Attrs(func(a slog.Attr) bool {
		fmt.Fprintf(&sb, " %s=%v", a.Key, a.Value)
		return true
	})

	select {
	case h.ch <- sb.String():
	default:
		// Drop if channel full
	}
	return nil
}

func (h *ChannelHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ChannelHandler{
		ch:    h.ch,
		level: h.level,
		attrs: append(cloneAttrs(h.attrs), attrs...),
	}
}

// WithGroup is not supported; grouped attributes are rendered flat.
func (h *ChannelHandler) WithGroup(string) slog.Handler {
	return h
}

func cloneAttrs(attrs []slog.Attr) []slog.Attr {
	out := make([]slog.Attr, len(attrs), len(attrs)+4)
	copy(out, attrs)
	return out
}
