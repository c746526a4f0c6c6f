// Package logging provides structured logging for the simulation engine on
// top of log/slog.  Library code takes the Logger interface and defaults to
// Noop, so embedding the engine never forces a logging setup.
package logging

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// Field is one structured key/value attribute attached to a log record.
type Field struct {
	Key   string
	Value any
}

// String builds a string field.
func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

// Int builds an integer field.
func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

// Float64 builds a float field, the shape most simulation quantities take.
func Float64(key string, value float64) Field {
	return Field{Key: key, Value: value}
}

// Err builds the conventional error field.
func Err(err error) Field {
	return Field{Key: "err", Value: err}
}

// Any builds a field from an arbitrary value.
func Any(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// Logger is the logging interface the engine components depend on.
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...Field)
	Info(ctx context.Context, msg string, fields ...Field)
	Warn(ctx context.Context, msg string, fields ...Field)
	Error(ctx context.Context, msg string, fields ...Field)
	With(fields ...Field) Logger
}

// Config controls handler construction.
type Config struct {
	Level     string // debug, info, warn, error; info when empty or unknown
	Format    string // text or json; text when empty
	AddSource bool
}

// New builds a Logger writing to stdout per cfg.
func New(cfg Config) Logger {
	opts := &slog.HandlerOptions{
		Level:     parseLevel(cfg.Level),
		AddSource: cfg.AddSource,
	}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return &slogger{logger: slog.New(handler)}
}

// NewFromEnv builds a Logger configured by the LOG_LEVEL and LOG_FORMAT
// environment variables.
func NewFromEnv() Logger {
	return New(Config{
		Level:  os.Getenv("LOG_LEVEL"),
		Format: os.Getenv("LOG_FORMAT"),
	})
}

// Noop returns a Logger that discards everything.
func Noop() Logger {
	return noop{}
}

func parseLevel(level string) slog.Level {
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

type slogger struct {
	logger *slog.Logger
}

func (s *slogger) log(ctx context.Context, level slog.Level, msg string, fields []Field) {
	attrs := make([]slog.Attr, 0, len(fields))
	for _, f := range fields {
		attrs = append(attrs, slog.Any(f.Key, f.Value))
	}
	s.logger.LogAttrs(ctx, level, msg, attrs...)
}

func (s *slogger) Debug(ctx context.Context, msg string, fields ...Field) {
	s.log(ctx, slog.LevelDebug, msg, fields)
}

func (s *slogger) Info(ctx context.Context, msg string, fields ...Field) {
	s.log(ctx, slog.LevelInfo, msg, fields)
}

func (s *slogger) Warn(ctx context.Context, msg string, fields ...Field) {
	s.log(ctx, slog.LevelWarn, msg, fields)
}

func (s *slogger) Error(ctx context.Context, msg string, fields ...Field) {
	s.log(ctx, slog.LevelError, msg, fields)
}

func (s *slogger) With(fields ...Field) Logger {
	args := make([]any, 0, len(fields)*2)
	for _, f := range fields {
		args = append(args, f.Key, f.Value)
	}
	return &slogger{logger: s.logger.With(args...)}
}

type noop struct{}

func (noop) Debug(context.Context, string, ...Field) {}
func (noop) Info(context.Context, string, ...Field)  {}
func (noop) Warn(context.Context, string, ...Field)  {}
func (noop) Error(context.Context, string, ...Field) {}
func (noop) With(...Field) Logger                    { return noop{} }
