// Package logger provides opinionated logging capabilities for chatbox
package logger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"

	charmlog "github.com/charmbracelet/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Rotation limits for log files.
const (
	maxFileSizeMB  = 10
	maxFileBackups = 5
	maxFileAgeDays = 14
)

type config struct {
	level   slog.Level
	pretty  bool
	json    bool
	writers []io.Writer
	source  bool
	file    string
}

// New creates a *slog.Logger. The default is a text handler on os.Stdout at
// Info level. WithPretty takes precedence over WithJSON.
func New(opts ...Option) *slog.Logger {
	c := &config{
		level:   slog.LevelInfo,
		writers: []io.Writer{os.Stdout},
	}
	for _, opt := range opts {
		opt(c)
	}

	var w io.Writer
	if len(c.writers) == 1 {
		w = c.writers[0]
	} else {
		w = io.MultiWriter(c.writers...)
	}

	handler := newHandler(c, w)
	if c.file == "" {
		return slog.New(handler)
	}

	rotated := &lumberjack.Logger{
		Filename:   c.file,
		MaxSize:    maxFileSizeMB,
		MaxBackups: maxFileBackups,
		MaxAge:     maxFileAgeDays,
	}
	fileHandler := slog.NewJSONHandler(rotated, &slog.HandlerOptions{
		Level:     c.level,
		AddSource: c.source,
	})
	return slog.New(sinks{handler, fileHandler})
}

// sinks sends each record to the console handler and the rotated file
// handler. A failing sink does not stop the others from receiving the record.
type sinks []slog.Handler

func (s sinks) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range s {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (s sinks) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range s {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s sinks) WithAttrs(attrs []slog.Attr) slog.Handler {
	return s.each(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (s sinks) WithGroup(name string) slog.Handler {
	return s.each(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (s sinks) each(fn func(slog.Handler) slog.Handler) sinks {
	out := make(sinks, len(s))
	for i, h := range s {
		out[i] = fn(h)
	}
	return out
}

func newHandler(c *config, w io.Writer) slog.Handler {
	switch {
	case c.pretty:
		level := charmlog.InfoLevel
		if c.level <= slog.LevelDebug {
			level = charmlog.DebugLevel
		}
		return charmlog.NewWithOptions(w, charmlog.Options{
			Level:           level,
			ReportTimestamp: true,
			ReportCaller:    c.source,
		})
	case c.json:
		return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: c.level, AddSource: c.source})
	default:
		return slog.NewTextHandler(w, &slog.HandlerOptions{Level: c.level, AddSource: c.source})
	}
}

// Nop returns a logger that discards everything.
func Nop() *slog.Logger {
	return slog.New(nopHandler{})
}

type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (h nopHandler) WithAttrs([]slog.Attr) slog.Handler      { return h }
func (h nopHandler) WithGroup(string) slog.Handler           { return h }
